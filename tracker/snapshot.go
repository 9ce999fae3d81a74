package tracker

// Quality holds the scoring breakdown of a track
type Quality struct {
	Confidence  float64 `json:"confidence"`
	Stability   float64 `json:"stability"`
	Consistency float64 `json:"consistency"`
	Quality     float64 `json:"quality"`
	Hits        int     `json:"hits"`
	Age         int     `json:"age"`
}

// Snapshot is a point in time copy of a track as emitted in per frame
// results
type Snapshot struct {
	TrackID    uint64     `json:"track_id"`
	Box        Box        `json:"bbox"`
	Confidence float64    `json:"confidence"`
	ClassName  string     `json:"class_name"`
	ClassID    int        `json:"class_id"`
	Hits       int        `json:"hits"`
	Age        int        `json:"age"`
	State      TrackState `json:"state"`
	Quality    Quality    `json:"quality"`
}

// Snapshots returns the snapshots of the given tracks in the same order
func Snapshots(tracks []*Track) []Snapshot {

	out := make([]Snapshot, 0, len(tracks))

	for _, t := range tracks {
		out = append(out, t.Snapshot())
	}

	return out
}
