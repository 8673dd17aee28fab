// Package table loads gene-by-cell expression tables from delimited text files.
package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// ExpressionTable is a numeric matrix indexed by gene name (rows) and cell
// identifier (columns). Missing or unparseable values are stored as NaN.
type ExpressionTable struct {
	genes     []string
	cells     []string
	geneIndex map[string]int
	cellIndex map[string]int
	values    [][]float64 // gene-major, one row per gene
}

// Read parses a delimited expression file into an ExpressionTable.
//
// The header row is scanned (case-insensitive) for a column named
// "gene_name"; when present that column supplies the row identifiers and the
// first column, if different, is treated as an auxiliary gene ID and dropped.
// Otherwise the first column is the gene ID and the second the gene name.
// All remaining columns are per-cell expression values. Files ending in .gz
// are transparently decompressed.
func Read(path string, sep rune) (*ExpressionTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open expression file: %w", err)
	}
	defer f.Close()

	var src io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		src = gz
	}

	if sep == 0 {
		sep = ','
	}
	r := csv.NewReader(src)
	r.Comma = sep

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	geneNameCol, geneIDCol, err := detectGeneColumns(path, header)
	if err != nil {
		return nil, err
	}

	// Everything that is not a gene identifier column is a cell column.
	cells := make([]string, 0, len(header))
	cellCols := make([]int, 0, len(header))
	for i, name := range header {
		if i == geneNameCol || i == geneIDCol {
			continue
		}
		cells = append(cells, name)
		cellCols = append(cellCols, i)
	}

	t := &ExpressionTable{
		cells:     cells,
		geneIndex: make(map[string]int),
		cellIndex: make(map[string]int, len(cells)),
	}
	for i, c := range cells {
		t.cellIndex[c] = i
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		gene := record[geneNameCol]
		if _, dup := t.geneIndex[gene]; dup {
			// Duplicate gene names keep the first occurrence.
			continue
		}

		row := make([]float64, len(cellCols))
		for j, col := range cellCols {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[col]), 64)
			if err != nil {
				v = math.NaN()
			}
			row[j] = v
		}
		t.geneIndex[gene] = len(t.genes)
		t.genes = append(t.genes, gene)
		t.values = append(t.values, row)
	}

	return t, nil
}

// detectGeneColumns returns (geneNameCol, geneIDCol); geneIDCol is -1 when
// the file carries no separate gene ID column.
func detectGeneColumns(path string, header []string) (int, int, error) {
	for i, name := range header {
		if strings.EqualFold(name, "gene_name") {
			geneIDCol := -1
			if i != 0 {
				geneIDCol = 0
			}
			return i, geneIDCol, nil
		}
	}
	if len(header) < 2 {
		return 0, 0, fmt.Errorf("file %s must have at least 2 columns", path)
	}
	// No gene_name column: first column is the gene ID, second the gene name.
	return 1, 0, nil
}

// Genes returns the row identifiers in file order (duplicates removed).
func (t *ExpressionTable) Genes() []string { return t.genes }

// Cells returns the column identifiers in file order.
func (t *ExpressionTable) Cells() []string { return t.cells }

// HasGene reports whether the table contains a row for gene.
func (t *ExpressionTable) HasGene(gene string) bool {
	_, ok := t.geneIndex[gene]
	return ok
}

// Row returns the expression values for gene in column order, or nil when
// the gene is absent from this table.
func (t *ExpressionTable) Row(gene string) []float64 {
	i, ok := t.geneIndex[gene]
	if !ok {
		return nil
	}
	return t.values[i]
}

// CellPos returns the column position of a cell identifier.
func (t *ExpressionTable) CellPos(cell string) (int, bool) {
	i, ok := t.cellIndex[cell]
	return i, ok
}

// Value returns the expression of gene in cell. The second return is false
// when either identifier is absent; NaN values are reported as-is.
func (t *ExpressionTable) Value(gene, cell string) (float64, bool) {
	gi, ok := t.geneIndex[gene]
	if !ok {
		return 0, false
	}
	ci, ok := t.cellIndex[cell]
	if !ok {
		return 0, false
	}
	return t.values[gi][ci], true
}
