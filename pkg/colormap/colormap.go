// Package colormap provides color schemes for visualization.
package colormap

import (
	"image/color"
)

// Colormap maps values to colors.
type Colormap interface {
	At(t float64) color.Color
	AtIndex(i int) color.Color
}

// CategoricalColormap provides distinct colors for categories.
type CategoricalColormap struct {
	colors []color.RGBA
}

// At returns the color at position t (0-1).
func (c CategoricalColormap) At(t float64) color.Color {
	idx := int(t * float64(len(c.colors)))
	if idx >= len(c.colors) {
		idx = len(c.colors) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return c.colors[idx]
}

// AtIndex returns color at index (wraps around).
func (c CategoricalColormap) AtIndex(i int) color.Color {
	return c.colors[i%len(c.colors)]
}

// Len returns the number of categories.
func (c CategoricalColormap) Len() int {
	return len(c.colors)
}

// PatternHex lists the 8 presence-pattern colors in code order (Set2-derived).
var PatternHex = []string{
	"#66c2a5", "#fc8d62", "#8da0cb", "#e78ac3",
	"#a6d854", "#ffd92f", "#e5c494", "#b3b3b3",
}

// Pattern is the categorical colormap for the 8 presence-pattern codes.
var Pattern = CategoricalColormap{
	colors: []color.RGBA{
		{102, 194, 165, 255}, // #66c2a5 none
		{252, 141, 98, 255},  // #fc8d62 D1 only
		{141, 160, 203, 255}, // #8da0cb L4 only
		{231, 138, 195, 255}, // #e78ac3 L4 + D1
		{166, 216, 84, 255},  // #a6d854 L1 only
		{255, 217, 47, 255},  // #ffd92f L1 + D1
		{229, 196, 148, 255}, // #e5c494 L1 + L4
		{179, 179, 179, 255}, // #b3b3b3 all stages
	},
}
