package tracker

import "image"

// Rect converts the box into an integer image.Rectangle for drawing,
// truncating coordinates towards zero
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b[0]), int(b[1]), int(b[2]), int(b[3]))
}

// BoxFromRect converts an image.Rectangle into a Box
func BoxFromRect(r image.Rectangle) Box {
	return Box{float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)}
}

// LabelDetections fills in the ClassName of detections that only carry a
// ClassID using the given labels list, as loaded from a labels file.  Class
// ID's outside of the labels list are left untouched.  The slice is
// modified in place
func LabelDetections(dets []Detection, labels []string) {

	for i := range dets {

		if dets[i].ClassName != "" {
			continue
		}

		id := dets[i].ClassID

		if id >= 0 && id < len(labels) {
			dets[i].ClassName = labels[id]
		}
	}
}
