package generator

import "github.com/cengen-heatmap/server/pkg/colormap"

// Pattern codes are 3-bit stage presence flags read as binary with L1 as the
// most significant bit: code = 4*L1 + 2*L4 + D1.
const NumPatterns = 8

// patternLevels enumerates the 3-bit patterns in rank order. A gene's
// aggregate pattern not found in this set ranks as "000"; the input domain
// is closed so that lookup never actually misses.
var patternLevels = []string{"000", "001", "010", "011", "100", "101", "110", "111"}

var patternLabels = map[string]string{
	"000": "none (no stage)",
	"001": "D1 only",
	"010": "L4 only",
	"011": "L4 + D1",
	"100": "L1 only",
	"101": "L1 + D1",
	"110": "L1 + L4",
	"111": "L1 + L4 + D1",
}

var patternRank = func() map[string]int {
	m := make(map[string]int, len(patternLevels))
	for i, p := range patternLevels {
		m[p] = i
	}
	return m
}()

// EncodePattern packs three presence flags into a pattern code.
func EncodePattern(l1, l4, d1 uint8) uint8 {
	return 4*l1 + 2*l4 + d1
}

// DecodePattern unpacks a pattern code into its three presence flags.
func DecodePattern(code uint8) (l1, l4, d1 uint8) {
	return (code >> 2) & 1, (code >> 1) & 1, code & 1
}

// PatternBits renders a code as its 3-bit string, e.g. 5 -> "101".
func PatternBits(code uint8) string {
	l1, l4, d1 := DecodePattern(code)
	return string([]byte{'0' + l1, '0' + l4, '0' + d1})
}

// LegendEntry describes one pattern code for rendering layers.
type LegendEntry struct {
	Code  int    `json:"code"`
	Bits  string `json:"bits"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// Legend returns the fixed 8-entry pattern legend in code order.
func Legend() []LegendEntry {
	entries := make([]LegendEntry, NumPatterns)
	for i, bits := range patternLevels {
		entries[i] = LegendEntry{
			Code:  i,
			Bits:  bits,
			Label: patternLabels[bits],
			Color: colormap.PatternHex[i],
		}
	}
	return entries
}
