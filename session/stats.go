package session

import (
	"time"

	"github.com/lokal-ai/vidtrack/tracker"
)

// FrameResult holds the tracks emitted for one processed frame
type FrameResult struct {
	FrameNumber int                `json:"frame_number"`
	TimestampMS int64              `json:"timestamp_ms"`
	Tracks      []tracker.Snapshot `json:"tracks"`
}

// Timestamp returns the frame presentation time
func (f FrameResult) Timestamp() time.Duration {
	return time.Duration(f.TimestampMS) * time.Millisecond
}

// Stats aggregates the emitted tracks of a video
type Stats struct {
	// TotalTracks is the number of distinct track IDs emitted
	TotalTracks int `json:"total_tracks"`
	// TotalDetections is the number of track snapshots emitted over all
	// frames
	TotalDetections int `json:"total_detections"`
	// AvgTrackDuration is the mean number of frames each emitted track
	// appeared in
	AvgTrackDuration float64 `json:"avg_track_duration"`
	// TrackDurations maps track ID to the number of frames it was emitted in
	TrackDurations map[uint64]int `json:"track_durations"`
	// MaxTrackID is the highest emitted track ID
	MaxTrackID uint64 `json:"max_track_id"`
}

// CalculateStats aggregates the given frame results
func CalculateStats(frames []FrameResult) Stats {

	stats := Stats{
		TrackDurations: make(map[uint64]int),
	}

	for _, fr := range frames {
		stats.TotalDetections += len(fr.Tracks)

		for _, snap := range fr.Tracks {
			stats.TrackDurations[snap.TrackID]++
			stats.MaxTrackID = max(stats.MaxTrackID, snap.TrackID)
		}
	}

	stats.TotalTracks = len(stats.TrackDurations)

	if stats.TotalTracks > 0 {
		sum := 0
		for _, d := range stats.TrackDurations {
			sum += d
		}
		stats.AvgTrackDuration = float64(sum) / float64(stats.TotalTracks)
	}

	return stats
}

// Result is the outcome of tracking one video
type Result struct {
	// RunID uniquely identifies the session run
	RunID string `json:"run_id"`
	// Video is the name of the source, may be empty
	Video string `json:"video,omitempty"`
	// TotalFrames counts every frame seen, sampled or not
	TotalFrames int `json:"total_frames"`
	// TotalTracks is the number of distinct track IDs emitted
	TotalTracks int `json:"total_tracks"`
	// DetectorErrors counts frames treated as empty after a detector error
	DetectorErrors int           `json:"detector_errors,omitempty"`
	FrameResults   []FrameResult `json:"frame_results"`
	Stats          Stats         `json:"tracking_stats"`
}
