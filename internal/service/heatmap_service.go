// Package service provides business logic for the heatmap server.
package service

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cengen-heatmap/server/internal/cache"
	"github.com/cengen-heatmap/server/internal/generator"
	"github.com/cengen-heatmap/server/internal/render"
)

// HeatmapServiceConfig contains heatmap service configuration.
type HeatmapServiceConfig struct {
	DatasetID string
	Generator *generator.Generator
	Cache     *cache.Manager
	Renderer  *render.HeatmapRenderer

	// Stage file paths, kept for the metadata endpoint.
	L1File string
	L4File string
	D1File string
}

// HeatmapService computes, caches and rasterizes pattern heatmaps for one
// dataset. The underlying generator is immutable after construction, so one
// service instance serves many requests.
type HeatmapService struct {
	datasetID string
	generator *generator.Generator
	cache     *cache.Manager
	renderer  *render.HeatmapRenderer
	stages    map[string]string
}

// NewHeatmapService creates a new heatmap service.
func NewHeatmapService(cfg HeatmapServiceConfig) *HeatmapService {
	datasetID := cfg.DatasetID
	if datasetID == "" {
		datasetID = "default"
	}
	return &HeatmapService{
		datasetID: datasetID,
		generator: cfg.Generator,
		cache:     cfg.Cache,
		renderer:  cfg.Renderer,
		stages: map[string]string{
			"L1": filepath.Base(cfg.L1File),
			"L4": filepath.Base(cfg.L4File),
			"D1": filepath.Base(cfg.D1File),
		},
	}
}

// Metadata describes one dataset for the API.
type Metadata struct {
	ID         string            `json:"id"`
	Stages     map[string]string `json:"stages"`
	GeneCount  int               `json:"gene_count"`
	CellCount  int               `json:"cell_count"`
	StageOrder []string          `json:"stage_order"`
}

// Metadata returns dataset identity and universe sizes.
func (s *HeatmapService) Metadata() Metadata {
	return Metadata{
		ID:         s.datasetID,
		Stages:     s.stages,
		GeneCount:  len(s.generator.Genes()),
		CellCount:  len(s.generator.Cells()),
		StageOrder: []string{"L1", "L4", "D1"},
	}
}

// Genes returns gene universe entries with an optional case-insensitive
// prefix filter. limit <= 0 means no limit.
func (s *HeatmapService) Genes(prefix string, limit int) []string {
	all := s.generator.Genes()
	out := make([]string, 0, len(all))
	lower := strings.ToLower(prefix)
	for _, g := range all {
		if lower != "" && !strings.HasPrefix(strings.ToLower(g), lower) {
			continue
		}
		out = append(out, g)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// GeneCount returns the gene universe size.
func (s *HeatmapService) GeneCount() int {
	return len(s.generator.Genes())
}

// HeatmapResponse is the JSON payload for one computed heatmap.
type HeatmapResponse struct {
	Matrix  [][]int                 `json:"matrix"`
	Cells   []string                `json:"cells"`
	Genes   []string                `json:"genes"`
	Legend  []generator.LegendEntry `json:"legend"`
	Summary generator.Summary       `json:"summary"`
}

// HeatmapJSON computes a heatmap and returns its marshalled payload,
// consulting the result cache first. Errors are never cached.
func (s *HeatmapService) HeatmapJSON(req generator.Request) ([]byte, error) {
	key := cache.HeatmapKey(s.datasetID, req.Genes, req.Threshold, req.SortByPattern, req.MaxRows, req.MaxCols)
	if data, ok := s.cache.GetResult(key); ok {
		return data, nil
	}

	hm, err := s.generator.Generate(req)
	if err != nil {
		return nil, err
	}

	matrix := make([][]int, len(hm.Matrix))
	for i, row := range hm.Matrix {
		r := make([]int, len(row))
		for j, code := range row {
			r[j] = int(code)
		}
		matrix[i] = r
	}

	data, err := json.Marshal(HeatmapResponse{
		Matrix:  matrix,
		Cells:   hm.Cells,
		Genes:   hm.Genes,
		Legend:  generator.Legend(),
		Summary: hm.Summary,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal heatmap: %w", err)
	}

	s.cache.SetResult(key, data)
	return data, nil
}

// HeatmapPNG computes a heatmap and rasterizes it, consulting the image
// cache first.
func (s *HeatmapService) HeatmapPNG(req generator.Request) ([]byte, error) {
	key := cache.HeatmapKey(s.datasetID, req.Genes, req.Threshold, req.SortByPattern, req.MaxRows, req.MaxCols) + ":png"
	if data, ok := s.cache.GetImage(key); ok {
		return data, nil
	}

	hm, err := s.generator.Generate(req)
	if err != nil {
		return nil, err
	}

	data, err := s.renderer.Render(hm.Matrix)
	if err != nil {
		return nil, fmt.Errorf("failed to render heatmap: %w", err)
	}

	// A cache write failure only costs a re-render next time.
	_ = s.cache.SetImage(key, data)
	return data, nil
}

// ParseGeneList splits free text into gene identifiers, one per logical
// line, trimming whitespace and dropping empty entries.
func ParseGeneList(text string) []string {
	var genes []string
	for _, line := range strings.Split(text, "\n") {
		if g := strings.TrimSpace(line); g != "" {
			genes = append(genes, g)
		}
	}
	return genes
}
