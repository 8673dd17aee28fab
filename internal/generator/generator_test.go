package generator

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cengen-heatmap/server/internal/data/table"
)

func loadTable(t *testing.T, content string) *table.ExpressionTable {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stage.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	tbl, err := table.Read(path, ',')
	if err != nil {
		t.Fatalf("failed to load fixture: %v", err)
	}
	return tbl
}

// newTestGenerator builds a generator over genes {g1,g2} and cells {c1,c2}
// where everything is zero except g1 at c1 in the L1 stage.
func newTestGenerator(t *testing.T) *Generator {
	t.Helper()

	l1 := loadTable(t, "gene_name,c1,c2\ng1,5,0\ng2,0,0\n")
	l4 := loadTable(t, "gene_name,c1,c2\ng1,0,0\ng2,0,0\n")
	d1 := loadTable(t, "gene_name,c1,c2\ng1,0,0\ng2,0,0\n")
	return New(l1, l4, d1)
}

func TestUniverses(t *testing.T) {
	l1 := loadTable(t, "gene_name,c1,c3\ng1,1,1\ng2,1,1\ngx,1,1\n")
	l4 := loadTable(t, "gene_name,c2,c1\ng2,1,1\ng1,1,1\n")
	d1 := loadTable(t, "gene_name,c4\ng1,1\ng2,1\ngy,1\n")
	g := New(l1, l4, d1)

	genes := g.Genes()
	if len(genes) != 2 || genes[0] != "g1" || genes[1] != "g2" {
		t.Errorf("expected gene universe [g1 g2], got %v", genes)
	}
	cells := g.Cells()
	want := []string{"c1", "c2", "c3", "c4"}
	if len(cells) != len(want) {
		t.Fatalf("expected %d cells, got %v", len(want), cells)
	}
	for i := range want {
		if cells[i] != want[i] {
			t.Errorf("cells[%d] = %q, want %q", i, cells[i], want[i])
		}
	}
}

func TestEncodePatternRoundTrip(t *testing.T) {
	seen := make(map[uint8]bool)
	for a := uint8(0); a <= 1; a++ {
		for b := uint8(0); b <= 1; b++ {
			for c := uint8(0); c <= 1; c++ {
				code := EncodePattern(a, b, c)
				if code != 4*a+2*b+c {
					t.Errorf("EncodePattern(%d,%d,%d) = %d", a, b, c, code)
				}
				ra, rb, rc := DecodePattern(code)
				if ra != a || rb != b || rc != c {
					t.Errorf("DecodePattern(%d) = (%d,%d,%d), want (%d,%d,%d)", code, ra, rb, rc, a, b, c)
				}
				seen[code] = true
			}
		}
	}
	if len(seen) != NumPatterns {
		t.Errorf("expected all %d codes reachable, got %d", NumPatterns, len(seen))
	}
}

func TestGenerate_SingleStagePattern(t *testing.T) {
	g := newTestGenerator(t)

	hm, err := g.Generate(Request{Genes: []string{"g1", "g2"}, Threshold: 0})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// g1 at c1 is expressed only in L1: code 4 ("100"); everything else 0.
	cellIdx := indexOf(hm.Cells, "c1")
	geneIdx := indexOf(hm.Genes, "g1")
	if cellIdx < 0 || geneIdx < 0 {
		t.Fatalf("c1/g1 missing from output axes: %v / %v", hm.Cells, hm.Genes)
	}
	for i, row := range hm.Matrix {
		for j, code := range row {
			want := uint8(0)
			if i == cellIdx && j == geneIdx {
				want = 4
			}
			if code != want {
				t.Errorf("matrix[%d][%d] = %d, want %d", i, j, code, want)
			}
		}
	}
}

func TestGenerate_ThresholdIsStrict(t *testing.T) {
	l1 := loadTable(t, "gene_name,c1\ng1,2\n")
	l4 := loadTable(t, "gene_name,c1\ng1,2\n")
	d1 := loadTable(t, "gene_name,c1\ng1,2\n")
	g := New(l1, l4, d1)

	// Value exactly equal to the threshold is not expressed.
	hm, err := g.Generate(Request{Genes: []string{"g1"}, Threshold: 2})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if hm.Matrix[0][0] != 0 {
		t.Errorf("value == threshold should classify as absent, got code %d", hm.Matrix[0][0])
	}

	hm, err = g.Generate(Request{Genes: []string{"g1"}, Threshold: 1.999})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if hm.Matrix[0][0] != 7 {
		t.Errorf("value above threshold in all stages should be 7, got %d", hm.Matrix[0][0])
	}
}

func TestGenerate_AllGenesMissing(t *testing.T) {
	g := newTestGenerator(t)

	_, err := g.Generate(Request{Genes: []string{"nope"}})
	if !errors.Is(err, ErrNoGenesInCommon) {
		t.Fatalf("expected ErrNoGenesInCommon, got %v", err)
	}
}

func TestGenerate_PartialMissing(t *testing.T) {
	g := newTestGenerator(t)

	hm, err := g.Generate(Request{Genes: []string{"g1", "nope"}})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if hm.Summary.GenesRequested != 2 || hm.Summary.GenesFound != 1 {
		t.Errorf("unexpected summary counts: %+v", hm.Summary)
	}
	if len(hm.Summary.MissingGenes) != 1 || hm.Summary.MissingGenes[0] != "nope" {
		t.Errorf("unexpected missing genes: %v", hm.Summary.MissingGenes)
	}
}

func TestGenerate_MalformedValueCountsAsAbsent(t *testing.T) {
	l1 := loadTable(t, "gene_name,c1\ng1,N/A\n")
	l4 := loadTable(t, "gene_name,c1\ng1,0\n")
	d1 := loadTable(t, "gene_name,c1\ng1,0\n")
	g := New(l1, l4, d1)

	hm, err := g.Generate(Request{Genes: []string{"g1"}, Threshold: 0})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if hm.Matrix[0][0] != 0 {
		t.Errorf("malformed value should classify as absent, got code %d", hm.Matrix[0][0])
	}
}

func TestGenerate_CellMissingFromOneStage(t *testing.T) {
	// c2 is only measured in L4, where g1 is expressed.
	l1 := loadTable(t, "gene_name,c1\ng1,0\n")
	l4 := loadTable(t, "gene_name,c1,c2\ng1,0,3\n")
	d1 := loadTable(t, "gene_name,c1\ng1,0\n")
	g := New(l1, l4, d1)

	hm, err := g.Generate(Request{Genes: []string{"g1"}})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	i := indexOf(hm.Cells, "c2")
	if i < 0 {
		t.Fatalf("c2 missing from cell axis: %v", hm.Cells)
	}
	// Absent in L1 and D1 fills as 0, expressed in L4: "010" = 2.
	if hm.Matrix[i][0] != 2 {
		t.Errorf("expected code 2 for c2, got %d", hm.Matrix[i][0])
	}
}

func TestGenerate_InputOrderPreservedWithoutSort(t *testing.T) {
	g := newTestGenerator(t)

	hm, err := g.Generate(Request{Genes: []string{"g2", "g1"}, SortByPattern: false})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if hm.Genes[0] != "g2" || hm.Genes[1] != "g1" {
		t.Errorf("expected input order [g2 g1], got %v", hm.Genes)
	}
}

func TestGenerate_SortByPatternIsMonotonicAndStable(t *testing.T) {
	// Aggregate patterns: ga=111, gb=000, gc=100, gd=000 (tie with gb).
	l1 := loadTable(t, "gene_name,c1,c2\nga,1,0\ngb,0,0\ngc,9,0\ngd,0,0\n")
	l4 := loadTable(t, "gene_name,c1,c2\nga,0,1\ngb,0,0\ngc,0,0\ngd,0,0\n")
	d1 := loadTable(t, "gene_name,c1,c2\nga,1,0\ngb,0,0\ngc,0,0\ngd,0,0\n")
	g := New(l1, l4, d1)

	hm, err := g.Generate(Request{
		Genes:         []string{"ga", "gb", "gc", "gd"},
		SortByPattern: true,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	want := []string{"gb", "gd", "gc", "ga"} // ranks 0, 0, 4, 7; stable tie
	for i := range want {
		if hm.Genes[i] != want[i] {
			t.Fatalf("expected sorted order %v, got %v", want, hm.Genes)
		}
	}

	// Aggregate codes must be non-decreasing left to right.
	prev := -1
	for j := range hm.Genes {
		agg := 0
		for i := range hm.Matrix {
			agg |= int(hm.Matrix[i][j])
		}
		rank := patternRank[PatternBits(uint8(agg))]
		if rank < prev {
			t.Errorf("aggregate rank decreased at column %d", j)
		}
		prev = rank
	}
}

func TestGenerate_TruncationIsPrefixBased(t *testing.T) {
	l1 := loadTable(t, "gene_name,c1,c2,c3\ng1,1,1,1\ng2,0,0,0\ng3,0,0,0\n")
	l4 := loadTable(t, "gene_name,c1,c2,c3\ng1,0,0,0\ng2,0,0,0\ng3,0,0,0\n")
	d1 := loadTable(t, "gene_name,c1,c2,c3\ng1,0,0,0\ng2,0,0,0\ng3,0,0,0\n")
	g := New(l1, l4, d1)

	full, err := g.Generate(Request{Genes: []string{"g1", "g2", "g3"}})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	bounded, err := g.Generate(Request{
		Genes:   []string{"g1", "g2", "g3"},
		MaxRows: 2,
		MaxCols: 1,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if bounded.Summary.CellsPlotted != 2 || bounded.Summary.GenesPlotted != 1 {
		t.Errorf("unexpected plotted counts: %+v", bounded.Summary)
	}
	if bounded.Summary.TotalCells != 3 {
		t.Errorf("total cells should be unbounded, got %d", bounded.Summary.TotalCells)
	}
	for i := range bounded.Matrix {
		if bounded.Cells[i] != full.Cells[i] {
			t.Errorf("row %d: expected prefix of full cell order", i)
		}
		for j := range bounded.Matrix[i] {
			if bounded.Matrix[i][j] != full.Matrix[i][j] {
				t.Errorf("matrix[%d][%d] differs from untruncated result", i, j)
			}
		}
	}
}

func TestLegend(t *testing.T) {
	legend := Legend()
	if len(legend) != NumPatterns {
		t.Fatalf("expected %d legend entries, got %d", NumPatterns, len(legend))
	}
	if legend[4].Bits != "100" || legend[4].Label != "L1 only" {
		t.Errorf("unexpected entry for code 4: %+v", legend[4])
	}
	for i, e := range legend {
		if e.Code != i {
			t.Errorf("legend[%d].Code = %d", i, e.Code)
		}
		if e.Color == "" {
			t.Errorf("legend[%d] has no color", i)
		}
	}
}

func indexOf(s []string, v string) int {
	for i := range s {
		if s[i] == v {
			return i
		}
	}
	return -1
}
