package tracker

import (
	"math"
)

// Box is an axis aligned bounding box in pixel coordinates stored as
// (x1, y1, x2, y2), the top left and bottom right corners
type Box [4]float64

// Point is a 2D point or vector in pixel space
type Point struct {
	X, Y float64
}

// NewBox creates a new Box from its corner coordinates
func NewBox(x1, y1, x2, y2 float64) Box {
	return Box{x1, y1, x2, y2}
}

// BoxFromXYWH creates a Box from a top left corner and a width and height
func BoxFromXYWH(x, y, width, height float64) Box {
	return Box{x, y, x + width, y + height}
}

// X1 returns the top left x coordinate
func (b Box) X1() float64 {
	return b[0]
}

// Y1 returns the top left y coordinate
func (b Box) Y1() float64 {
	return b[1]
}

// X2 returns the bottom right x coordinate
func (b Box) X2() float64 {
	return b[2]
}

// Y2 returns the bottom right y coordinate
func (b Box) Y2() float64 {
	return b[3]
}

// Width returns the width of the box
func (b Box) Width() float64 {
	return b[2] - b[0]
}

// Height returns the height of the box
func (b Box) Height() float64 {
	return b[3] - b[1]
}

// Area returns the area of the box, zero for degenerate boxes
func (b Box) Area() float64 {
	return math.Max(0, b.Width()) * math.Max(0, b.Height())
}

// Center returns the center point of the box
func (b Box) Center() Point {
	return Point{
		X: (b[0] + b[2]) / 2,
		Y: (b[1] + b[3]) / 2,
	}
}

// Shift returns a copy of the box translated by the given vector with the
// same width and height
func (b Box) Shift(d Point) Box {
	return Box{b[0] + d.X, b[1] + d.Y, b[2] + d.X, b[3] + d.Y}
}

// Valid reports whether all coordinates are finite and the box has positive
// width and height
func (b Box) Valid() bool {
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return b[2] > b[0] && b[3] > b[1]
}

// IoU calculates the Intersection over Union with another box.  A zero area
// union yields 0
func (b Box) IoU(other Box) float64 {

	iw := math.Min(b[2], other[2]) - math.Max(b[0], other[0])
	ih := math.Min(b[3], other[3]) - math.Max(b[1], other[1])

	inter := math.Max(0, iw) * math.Max(0, ih)
	union := b.Area() + other.Area() - inter

	if union <= 0 {
		return 0
	}

	iou := inter / union

	// guard against float rounding pushing identical boxes above one
	return math.Min(1, math.Max(0, iou))
}

// distance returns the euclidean distance between two points
func (p Point) distance(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}
