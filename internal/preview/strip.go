package preview

import (
	"image/color"
	"math"
	"strings"
)

const (
	stripEmpty   = '·'
	stripBeat    = '│'
	stripSection = '┃'
)

// StripCanvas renders markers as characters, one column per cell. x equal
// to the width lands in the last column; anything further out is dropped.
type StripCanvas struct {
	cols   []rune
	height int
}

func NewStripCanvas(width, height int) *StripCanvas {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	cols := make([]rune, width)
	for i := range cols {
		cols[i] = stripEmpty
	}
	return &StripCanvas{cols: cols, height: height}
}

func (c *StripCanvas) Width() int { return len(c.cols) }

func (c *StripCanvas) Height() int { return c.height }

func (c *StripCanvas) VLine(x float64, weight int, _ color.Color) {
	col := int(math.Floor(x))
	if col == len(c.cols) {
		col--
	}
	if col < 0 || col >= len(c.cols) {
		return
	}
	if weight >= SectionWeight {
		c.cols[col] = stripSection
		return
	}
	if c.cols[col] != stripSection {
		c.cols[col] = stripBeat
	}
}

func (c *StripCanvas) Row() string {
	return string(c.cols)
}

func (c *StripCanvas) String() string {
	row := c.Row()
	lines := make([]string, c.height)
	for i := range lines {
		lines[i] = row
	}
	return strings.Join(lines, "\n")
}
