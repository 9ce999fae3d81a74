package tracker

import (
	"image"
	"sync"
)

// Trail keeps a bounded history of track centre points, used for drawing
// the path each track has taken
type Trail struct {
	// size is the maximum number of most recent points to keep per track
	size int
	// history of centre points keyed by track ID
	history map[uint64][]image.Point
	sync.Mutex
}

// NewTrail returns a new trail history.  Size is the number of most recent
// points kept per track and so the maximum length of a drawn trail
func NewTrail(size int) *Trail {
	return &Trail{
		size:    size,
		history: make(map[uint64][]image.Point),
	}
}

// Reset clears all history
func (t *Trail) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[uint64][]image.Point)
}

// Add appends the centre point of each snapshot to its track's history and
// forgets tracks that are no longer present
func (t *Trail) Add(snaps []Snapshot) {
	t.Lock()
	defer t.Unlock()

	seen := make(map[uint64]struct{}, len(snaps))

	for _, s := range snaps {

		seen[s.TrackID] = struct{}{}

		c := s.Box.Center()
		points := append(t.history[s.TrackID], image.Pt(int(c.X), int(c.Y)))

		// drop oldest point once the history is exceeded
		if len(points) > t.size {
			points = points[len(points)-t.size:]
		}

		t.history[s.TrackID] = points
	}

	for id := range t.history {
		if _, ok := seen[id]; !ok {
			delete(t.history, id)
		}
	}
}

// GetPoints gets a copy of the point history for a specific track ID
func (t *Trail) GetPoints(id uint64) []image.Point {
	t.Lock()
	defer t.Unlock()

	points, exists := t.history[id]

	if !exists {
		// no history yet
		return nil
	}

	return append([]image.Point(nil), points...)
}
