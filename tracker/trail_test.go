package tracker

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrail(t *testing.T) {

	trail := NewTrail(3)

	for i := 0; i < 5; i++ {
		x := float64(i * 10)
		trail.Add([]Snapshot{
			{TrackID: 1, Box: NewBox(x, 0, x+10, 10)},
			{TrackID: 2, Box: NewBox(100, 100, 120, 120)},
		})
	}

	assert.Equal(t, []image.Point{image.Pt(25, 5), image.Pt(35, 5), image.Pt(45, 5)}, trail.GetPoints(1))
	assert.Len(t, trail.GetPoints(2), 3)

	// track 2 no longer emitted
	trail.Add([]Snapshot{{TrackID: 1, Box: NewBox(50, 0, 60, 10)}})
	assert.Nil(t, trail.GetPoints(2))
	assert.Equal(t, image.Point{X: 55, Y: 5}, trail.GetPoints(1)[2])

	trail.Reset()
	assert.Nil(t, trail.GetPoints(1))
}

func TestLabelDetections(t *testing.T) {

	dets := []Detection{
		{Box: NewBox(0, 0, 1, 1), ClassID: 1},
		{Box: NewBox(0, 0, 1, 1), ClassID: 0, ClassName: "custom"},
		{Box: NewBox(0, 0, 1, 1), ClassID: 7},
	}

	LabelDetections(dets, []string{"person", "bicycle"})

	assert.Equal(t, "bicycle", dets[0].ClassName)
	assert.Equal(t, "custom", dets[1].ClassName)
	assert.Equal(t, "", dets[2].ClassName)

	assert.Equal(t, image.Rect(1, 2, 3, 4), NewBox(1.7, 2.2, 3.9, 4.0).Rect())
	assert.Equal(t, NewBox(1, 2, 3, 4), BoxFromRect(image.Rect(1, 2, 3, 4)))
}
