package render

import (
	"image/color"

	"github.com/lokal-ai/vidtrack/tracker"
	"gocv.io/x/gocv"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame draws the trail line in the track color instead of LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	// CircleSame draws the current centre point in the track color instead
	// of CircleColor
	CircleSame   bool
	CircleColor  color.RGBA
	CircleRadius int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      false,
		LineColor:     Yellow,
		LineThickness: 1,
		CircleSame:    true,
		CircleColor:   Pink,
		CircleRadius:  3,
	}
}

// Trail draws the centre point history of each emitted track
func Trail(img *gocv.Mat, snaps []tracker.Snapshot, trail *tracker.Trail, style TrailStyle) {

	for _, s := range snaps {

		lineClr := style.LineColor
		circleClr := style.CircleColor

		if style.LineSame {
			lineClr = TrackColor(s.TrackID)
		}

		if style.CircleSame {
			circleClr = TrackColor(s.TrackID)
		}

		points := trail.GetPoints(s.TrackID)

		if len(points) < 2 {
			continue
		}

		for i := 1; i < len(points); i++ {
			gocv.Line(img, points[i-1], points[i], lineClr, style.LineThickness)
		}

		gocv.Circle(img, points[len(points)-1], style.CircleRadius, circleClr, -1)
	}
}
