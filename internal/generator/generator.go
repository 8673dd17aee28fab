// Package generator computes stage presence patterns from three expression
// tables and prepares bounded matrices for rendering.
package generator

import (
	"errors"
	"math"
	"sort"

	"github.com/cengen-heatmap/server/internal/data/table"
)

// Default display bounds for a single heatmap.
const (
	DefaultMaxRows = 2000
	DefaultMaxCols = 2000
)

// ErrNoGenesInCommon is returned when no requested gene is present in all
// three stage tables.
var ErrNoGenesInCommon = errors.New("none of the requested genes are present in all three datasets")

// Generator holds the three stage tables and the reconciled identifier
// universes. It is built once and safe to reuse across requests: nothing
// mutates after construction.
type Generator struct {
	l1, l4, d1 *table.ExpressionTable

	genesAll   []string // sorted intersection of the three gene sets
	geneSet    map[string]struct{}
	cellsUnion []string // sorted union of the three cell sets
}

// New reconciles identifiers across the three stage tables.
func New(l1, l4, d1 *table.ExpressionTable) *Generator {
	g := &Generator{
		l1:      l1,
		l4:      l4,
		d1:      d1,
		geneSet: make(map[string]struct{}),
	}

	for _, gene := range l1.Genes() {
		if l4.HasGene(gene) && d1.HasGene(gene) {
			g.geneSet[gene] = struct{}{}
			g.genesAll = append(g.genesAll, gene)
		}
	}
	sort.Strings(g.genesAll)

	seen := make(map[string]struct{})
	for _, t := range []*table.ExpressionTable{l1, l4, d1} {
		for _, cell := range t.Cells() {
			if _, ok := seen[cell]; ok {
				continue
			}
			seen[cell] = struct{}{}
			g.cellsUnion = append(g.cellsUnion, cell)
		}
	}
	sort.Strings(g.cellsUnion)

	return g
}

// Genes returns the gene universe: identifiers present in all three stages.
func (g *Generator) Genes() []string { return g.genesAll }

// Cells returns the cell universe: the sorted union of cell identifiers.
func (g *Generator) Cells() []string { return g.cellsUnion }

// HasGene reports whether gene is present in all three stage tables.
func (g *Generator) HasGene(gene string) bool {
	_, ok := g.geneSet[gene]
	return ok
}

// Request carries one heatmap computation's parameters.
type Request struct {
	Genes         []string
	Threshold     float64
	SortByPattern bool
	MaxRows       int
	MaxCols       int
}

// Summary reports derived counts for one request.
type Summary struct {
	GenesRequested int      `json:"genes_requested"`
	GenesFound     int      `json:"genes_found"`
	MissingGenes   []string `json:"missing_genes"`
	TotalCells     int      `json:"total_cells"`
	GenesPlotted   int      `json:"genes_plotted"`
	CellsPlotted   int      `json:"cells_plotted"`
}

// Heatmap is the renderable result: a cells-by-genes matrix of pattern codes
// 0..7 with its axis labels, already bounded to the request's display caps.
type Heatmap struct {
	Matrix  [][]uint8
	Cells   []string
	Genes   []string
	Summary Summary
}

// Generate classifies presence per stage, encodes the 8-way pattern matrix,
// optionally reorders genes by aggregate pattern and truncates to the
// display bounds. Genes missing from the universe are reported in the
// summary and skipped; if none remain, ErrNoGenesInCommon is returned.
func (g *Generator) Generate(req Request) (*Heatmap, error) {
	maxRows := req.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	maxCols := req.MaxCols
	if maxCols <= 0 {
		maxCols = DefaultMaxCols
	}

	var selected []string
	missing := []string{}
	for _, gene := range req.Genes {
		if g.HasGene(gene) {
			selected = append(selected, gene)
		} else {
			missing = append(missing, gene)
		}
	}
	if len(selected) == 0 {
		return nil, ErrNoGenesInCommon
	}

	cells := g.cellsUnion
	binL1 := buildBinaryMatrix(g.l1, selected, cells, req.Threshold)
	binL4 := buildBinaryMatrix(g.l4, selected, cells, req.Threshold)
	binD1 := buildBinaryMatrix(g.d1, selected, cells, req.Threshold)

	if req.SortByPattern {
		order := patternOrder(binL1, binL4, binD1, len(selected))
		selected = permute(selected, order)
		binL1 = permuteColumns(binL1, order)
		binL4 = permuteColumns(binL4, order)
		binD1 = permuteColumns(binD1, order)
	}

	matrix := make([][]uint8, len(cells))
	for i := range cells {
		row := make([]uint8, len(selected))
		for j := range selected {
			row[j] = EncodePattern(binL1[i][j], binL4[i][j], binD1[i][j])
		}
		matrix[i] = row
	}

	// Display cap: keep the leading rows/columns in their current order.
	nRows := min(len(cells), maxRows)
	nCols := min(len(selected), maxCols)
	plotCells := cells[:nRows]
	plotGenes := selected[:nCols]
	plot := make([][]uint8, nRows)
	for i := range plot {
		plot[i] = matrix[i][:nCols]
	}

	return &Heatmap{
		Matrix: plot,
		Cells:  plotCells,
		Genes:  plotGenes,
		Summary: Summary{
			GenesRequested: len(req.Genes),
			GenesFound:     len(selected),
			MissingGenes:   missing,
			TotalCells:     len(cells),
			GenesPlotted:   nCols,
			CellsPlotted:   nRows,
		},
	}, nil
}

// buildBinaryMatrix classifies presence per (cell, gene) for one stage.
// Cells or genes absent from the stage table, and unparseable values, count
// as not expressed. Presence requires value strictly above the threshold.
func buildBinaryMatrix(t *table.ExpressionTable, genes, cells []string, threshold float64) [][]uint8 {
	rows := make([][]float64, len(genes))
	for j, gene := range genes {
		rows[j] = t.Row(gene)
	}

	m := make([][]uint8, len(cells))
	for i, cell := range cells {
		bits := make([]uint8, len(genes))
		if pos, ok := t.CellPos(cell); ok {
			for j := range genes {
				if vals := rows[j]; vals != nil {
					v := vals[pos]
					if !math.IsNaN(v) && v > threshold {
						bits[j] = 1
					}
				}
			}
		}
		m[i] = bits
	}
	return m
}

// patternOrder returns a stable permutation of gene indices sorted by the
// rank of each gene's aggregate presence pattern (expressed in any cell per
// stage), so genes with identical stage signatures cluster together.
func patternOrder(binL1, binL4, binD1 [][]uint8, nGenes int) []int {
	ranks := make([]int, nGenes)
	for j := 0; j < nGenes; j++ {
		pattern := PatternBits(EncodePattern(
			anyInColumn(binL1, j),
			anyInColumn(binL4, j),
			anyInColumn(binD1, j),
		))
		ranks[j] = patternRank[pattern] // unknown patterns rank as "000"
	}

	order := make([]int, nGenes)
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool {
		return ranks[order[a]] < ranks[order[b]]
	})
	return order
}

func anyInColumn(m [][]uint8, col int) uint8 {
	for i := range m {
		if m[i][col] == 1 {
			return 1
		}
	}
	return 0
}

func permute(s []string, order []int) []string {
	out := make([]string, len(order))
	for i, j := range order {
		out[i] = s[j]
	}
	return out
}

func permuteColumns(m [][]uint8, order []int) [][]uint8 {
	out := make([][]uint8, len(m))
	for i := range m {
		row := make([]uint8, len(order))
		for j, k := range order {
			row[j] = m[i][k]
		}
		out[i] = row
	}
	return out
}
