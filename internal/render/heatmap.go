// Package render draws pattern heatmaps using fogleman/gg.
package render

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"sync"

	"github.com/fogleman/gg"

	"github.com/cengen-heatmap/server/pkg/colormap"
)

// ErrEmptyMatrix is returned when there is nothing to draw.
var ErrEmptyMatrix = errors.New("cannot render an empty matrix")

// Config contains renderer configuration.
type Config struct {
	// CellSize is the edge length of one matrix cell in pixels.
	CellSize int
	// Legend draws a swatch column of the 8 pattern colors on the right edge.
	Legend bool
}

// HeatmapRenderer rasterizes pattern matrices to PNG. Axis labels are not
// drawn; they travel with the JSON payload for the frontend to typeset.
type HeatmapRenderer struct {
	config     Config
	palette    colormap.Colormap
	bufferPool sync.Pool
}

// NewHeatmapRenderer creates a new heatmap renderer.
func NewHeatmapRenderer(cfg Config) *HeatmapRenderer {
	if cfg.CellSize <= 0 {
		cfg.CellSize = 6
	}
	return &HeatmapRenderer{
		config:  cfg,
		palette: colormap.Pattern,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 32*1024))
			},
		},
	}
}

// legendWidth is the pixel width reserved for the swatch column, including
// the gap separating it from the matrix.
func (r *HeatmapRenderer) legendWidth() int {
	if !r.config.Legend {
		return 0
	}
	return 3 * r.config.CellSize
}

// Render draws a cells-by-genes matrix of pattern codes 0..7 as PNG.
func (r *HeatmapRenderer) Render(matrix [][]uint8) ([]byte, error) {
	if len(matrix) == 0 || len(matrix[0]) == 0 {
		return nil, ErrEmptyMatrix
	}

	nRows := len(matrix)
	nCols := len(matrix[0])
	cell := float64(r.config.CellSize)

	width := nCols*r.config.CellSize + r.legendWidth()
	height := nRows * r.config.CellSize

	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()

	for i, row := range matrix {
		for j, code := range row {
			dc.SetColor(r.palette.AtIndex(int(code)))
			dc.DrawRectangle(float64(j)*cell, float64(i)*cell, cell, cell)
			dc.Fill()
		}
	}

	if r.config.Legend {
		r.drawLegend(dc, nCols, height)
	}

	return r.encodeContext(dc)
}

// drawLegend paints the 8 pattern swatches top to bottom in code order.
func (r *HeatmapRenderer) drawLegend(dc *gg.Context, nCols, height int) {
	x := float64(nCols*r.config.CellSize + 2*r.config.CellSize)
	swatch := float64(height) / 8
	for code := 0; code < 8; code++ {
		dc.SetColor(r.palette.AtIndex(code))
		dc.DrawRectangle(x, float64(code)*swatch, float64(r.config.CellSize), swatch)
		dc.Fill()
	}
}

func (r *HeatmapRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused).
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
