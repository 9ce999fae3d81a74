package render

import (
	"image/color"

	"gocv.io/x/gocv"
)

// Alignment of a label relative to its bounding box
type Alignment int

const (
	Left   Alignment = 1
	Center Alignment = 2
	Right  Alignment = 3
)

// Padding is the space in pixels around label text
type Padding struct {
	Left, Right, Top, Bottom int
}

// Font defines how labels are written with the gocv Hershey fonts
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	Pad       Padding
	Alignment Alignment
}

// DefaultFont returns default font settings
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		Pad:       Padding{Left: 4, Right: 4, Top: 4, Bottom: 6},
		Alignment: Left,
	}
}

// SmallFont returns a compact font for crowded frames
func SmallFont() Font {
	f := DefaultFont()
	f.Scale = 0.35
	f.Pad = Padding{Left: 2, Right: 2, Top: 2, Bottom: 4}
	return f
}
