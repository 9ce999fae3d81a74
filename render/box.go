package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/lokal-ai/vidtrack/tracker"
	"gocv.io/x/gocv"
)

// boxLabel holds a precalculated label drawn after all boxes
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// BoxStyle defines how track boxes are drawn
type BoxStyle struct {
	LineThickness int
	// TentativeColor paints tracks that are not yet confirmed, set
	// ShowTentative false to use the track color for them as well
	TentativeColor color.RGBA
	ShowTentative  bool
	// ShowQuality appends the quality score to the label
	ShowQuality bool
}

// DefaultBoxStyle returns default box style settings
func DefaultBoxStyle() BoxStyle {
	return BoxStyle{
		LineThickness:  2,
		TentativeColor: Gray,
		ShowTentative:  true,
		ShowQuality:    false,
	}
}

// TrackerBoxes renders the bounding box and a "class id" label for each
// emitted track
func TrackerBoxes(img *gocv.Mat, snaps []tracker.Snapshot, font Font, style BoxStyle) {

	labels := make([]boxLabel, 0, len(snaps))

	for _, s := range snaps {

		clr := TrackColor(s.TrackID)

		if style.ShowTentative && s.State == tracker.Tentative {
			clr = style.TentativeColor
		}

		rect := s.Box.Rect()
		gocv.Rectangle(img, rect, clr, style.LineThickness)

		name := s.ClassName
		if name == "" {
			name = fmt.Sprintf("class%d", s.ClassID)
		}

		text := fmt.Sprintf("%s %d", name, s.TrackID)

		if style.ShowQuality {
			text = fmt.Sprintf("%s q%.2f", text, s.Quality.Quality)
		}

		labels = append(labels, placeLabel(rect, text, clr, font, style.LineThickness))
	}

	drawLabels(img, labels, font)
}

// DetectionBoxes renders the raw detector output with "class confidence"
// labels, used to compare detections against tracks
func DetectionBoxes(img *gocv.Mat, dets []tracker.Detection, font Font, lineThickness int) {

	labels := make([]boxLabel, 0, len(dets))

	for i, d := range dets {

		clr := trackColors[i%len(trackColors)]
		rect := d.Box.Rect()
		gocv.Rectangle(img, rect, clr, lineThickness)

		text := fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence)
		labels = append(labels, placeLabel(rect, text, clr, font, lineThickness))
	}

	drawLabels(img, labels, font)
}

// placeLabel calculates where the label text and its background box go above
// the bounding box according to the font alignment
func placeLabel(rect image.Rectangle, text string, clr color.RGBA, font Font, lineThickness int) boxLabel {

	size := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)
	pad := font.Pad
	half := size.X / 2

	// horizontal centre of the text
	var cx int

	switch font.Alignment {
	case Center:
		cx = (rect.Min.X + rect.Max.X) / 2
	case Right:
		cx = rect.Max.X - half - pad.Right + lineThickness/2
	default:
		cx = rect.Min.X + half + pad.Left - lineThickness/2
	}

	top := rect.Min.Y

	return boxLabel{
		rect:    image.Rect(cx-half-pad.Left, top-size.Y-pad.Top-pad.Bottom, cx+half+pad.Right, top),
		clr:     clr,
		text:    text,
		textPos: image.Pt(cx-half, top-pad.Bottom),
	}
}

// drawLabels draws the labels last so they are the top most layer and are
// not overlapped by other boxes
func drawLabels(img *gocv.Mat, labels []boxLabel, font Font) {
	for _, l := range labels {
		gocv.Rectangle(img, l.rect, l.clr, -1)

		gocv.PutTextWithParams(img, l.text, l.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}
