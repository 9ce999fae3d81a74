package session

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/lokal-ai/vidtrack/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func det(x1, y1, x2, y2, conf float64) tracker.Detection {
	return tracker.NewDetection(tracker.NewBox(x1, y1, x2, y2), conf, 0, "person")
}

func newTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()

	s, err := New(cfg)
	require.NoError(t, err)

	return s
}

// process passes a frame through the session at a 500ms frame interval
func process(t *testing.T, s *Session, index int, dets ...tracker.Detection) *FrameResult {
	t.Helper()

	fr, err := s.ProcessFrame(index, time.Duration(index)*500*time.Millisecond, dets)
	require.NoError(t, err)

	return fr
}

func trackIDs(fr *FrameResult) []uint64 {
	ids := make([]uint64, 0, len(fr.Tracks))
	for _, snap := range fr.Tracks {
		ids = append(ids, snap.TrackID)
	}
	return ids
}

func TestSessionSampling(t *testing.T) {

	s := newTestSession(t, DefaultConfig())

	for i := 0; i < 6; i++ {
		fr := process(t, s, i, det(10, 10, 50, 50, 0.9))

		if i%2 != 0 {
			assert.Nil(t, fr, "frame %d should not be sampled", i)
			continue
		}

		require.NotNil(t, fr)
		assert.Equal(t, i, fr.FrameNumber)
		assert.Equal(t, int64(i*500), fr.TimestampMS)

		// the track needs three hits, one per sampled frame, to be emitted
		if i < 4 {
			assert.Empty(t, fr.Tracks)
		} else {
			assert.Equal(t, []uint64{1}, trackIDs(fr))
			assert.Equal(t, 3, fr.Tracks[0].Hits)
		}
	}

	res := s.Result()

	assert.Equal(t, 6, res.TotalFrames)
	assert.Len(t, res.FrameResults, 3)
	assert.Equal(t, 1, res.TotalTracks)
	assert.Equal(t, map[uint64]int{1: 1}, res.Stats.TrackDurations)
	assert.Equal(t, 3, s.Tracker().FrameID())
}

func TestSessionConfidenceFilterAndCap(t *testing.T) {

	cfg := DefaultConfig()
	cfg.FrameSkip = 1
	cfg.MinTrackDuration = 1
	cfg.MaxTracksPerFrame = 2

	s := newTestSession(t, cfg)

	fr := process(t, s, 0,
		det(300, 0, 340, 40, 0.7),
		det(0, 0, 40, 40, 0.8),
		det(100, 0, 140, 40, 0.9),
		det(200, 0, 240, 40, 0.4),
	)

	require.Len(t, fr.Tracks, 2)

	// highest confidence detections are kept and tracked in that order
	assert.Equal(t, 0.9, fr.Tracks[0].Confidence)
	assert.Equal(t, 0.8, fr.Tracks[1].Confidence)
	assert.Equal(t, uint64(2), s.Tracker().Created())
}

func TestSessionDropsMalformed(t *testing.T) {

	cfg := DefaultConfig()
	cfg.FrameSkip = 1
	cfg.MinTrackDuration = 1

	s := newTestSession(t, cfg)

	fr := process(t, s, 0,
		det(50, 50, 10, 10, 0.9),
		det(0, 0, 40, 40, 1.5),
		det(0, 0, 40, 40, 0.8),
	)

	assert.Equal(t, []uint64{1}, trackIDs(fr))
	assert.Equal(t, 0.8, fr.Tracks[0].Confidence)
}

func TestSessionEmitPolicy(t *testing.T) {

	run := func(policy EmitPolicy) *FrameResult {

		cfg := DefaultConfig()
		cfg.FrameSkip = 1
		cfg.MinTrackDuration = 1
		cfg.MaxTracksPerFrame = 1
		cfg.EmitPolicy = policy

		s := newTestSession(t, cfg)

		process(t, s, 0, det(0, 0, 40, 40, 0.9))

		// track 1 has decayed twice to 0.81, track 2 once to 0.90
		fr := process(t, s, 1, det(200, 200, 240, 240, 0.95))
		require.Len(t, s.Tracker().Tracks(), 2)

		return fr
	}

	assert.Equal(t, []uint64{1}, trackIDs(run(EmitTruncate)))
	assert.Equal(t, []uint64{2}, trackIDs(run(EmitByQuality)))
}

func TestSessionFrameOrder(t *testing.T) {

	s := newTestSession(t, DefaultConfig())

	process(t, s, 2)

	_, err := s.ProcessFrame(2, 0, nil)
	assert.ErrorIs(t, err, ErrFrameOrder)

	_, err = s.ProcessFrame(1, 0, nil)
	assert.ErrorIs(t, err, ErrFrameOrder)

	_, err = s.ProcessFrame(-1, 0, nil)
	assert.ErrorIs(t, err, ErrFrameOrder)

	// rejected frames are not counted
	process(t, s, 3)
	assert.Equal(t, 2, s.Result().TotalFrames)
}

func TestSessionReset(t *testing.T) {

	cfg := DefaultConfig()
	cfg.FrameSkip = 1
	cfg.MinTrackDuration = 1

	s := newTestSession(t, cfg)
	s.SetVideo("aisle.mp4")

	process(t, s, 0, det(0, 0, 40, 40, 0.9))
	process(t, s, 1, det(200, 0, 240, 40, 0.9))

	runID := s.RunID()
	assert.Equal(t, "aisle.mp4", s.Result().Video)

	s.Reset()

	assert.NotEqual(t, runID, s.RunID())

	res := s.Result()
	assert.Zero(t, res.TotalFrames)
	assert.Empty(t, res.FrameResults)
	assert.Empty(t, res.Video)

	// frame numbering and track IDs restart
	fr := process(t, s, 0, det(0, 0, 40, 40, 0.9))
	assert.Equal(t, []uint64{1}, trackIDs(fr))
}

func TestSessionResultJSON(t *testing.T) {

	cfg := DefaultConfig()
	cfg.FrameSkip = 1
	cfg.MinTrackDuration = 1

	s := newTestSession(t, cfg)
	process(t, s, 0)
	process(t, s, 1, det(0, 0, 40, 40, 0.9))

	data, err := json.Marshal(s.Result())
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, s.RunID(), out["run_id"])
	assert.EqualValues(t, 2, out["total_frames"])
	assert.EqualValues(t, 1, out["total_tracks"])

	frames := out["frame_results"].([]any)
	require.Len(t, frames, 2)

	// a frame without emitted tracks encodes an empty list
	assert.Equal(t, []any{}, frames[0].(map[string]any)["tracks"])

	stats := out["tracking_stats"].(map[string]any)
	assert.Equal(t, map[string]any{"1": float64(1)}, stats["track_durations"])
	assert.EqualValues(t, 1, stats["max_track_id"])
}

func TestCalculateStats(t *testing.T) {

	snaps := func(ids ...uint64) []tracker.Snapshot {
		out := make([]tracker.Snapshot, 0, len(ids))
		for _, id := range ids {
			out = append(out, tracker.Snapshot{TrackID: id})
		}
		return out
	}

	tests := []struct {
		name   string
		frames []FrameResult
		want   Stats
	}{
		{
			name: "empty",
			want: Stats{TrackDurations: map[uint64]int{}},
		},
		{
			name: "frames without tracks",
			frames: []FrameResult{
				{FrameNumber: 0, Tracks: snaps()},
				{FrameNumber: 2, Tracks: snaps()},
			},
			want: Stats{TrackDurations: map[uint64]int{}},
		},
		{
			name: "several tracks",
			frames: []FrameResult{
				{FrameNumber: 0, Tracks: snaps(1, 2)},
				{FrameNumber: 2, Tracks: snaps(1, 2)},
				{FrameNumber: 4, Tracks: snaps(1, 7)},
			},
			want: Stats{
				TotalTracks:      3,
				TotalDetections:  6,
				AvgTrackDuration: 2,
				TrackDurations:   map[uint64]int{1: 3, 2: 2, 7: 1},
				MaxTrackID:       7,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateStats(tc.frames)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("stats mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSessionDeterministic(t *testing.T) {

	frames := [][]tracker.Detection{
		{det(0, 0, 40, 40, 0.9), det(100, 0, 140, 40, 0.8)},
		{det(2, 0, 42, 40, 0.85), det(102, 0, 142, 40, 0.3)},
		{det(4, 0, 44, 40, 0.9), det(104, 0, 144, 40, 0.75)},
		{det(6, 0, 46, 40, 0.9)},
		{det(8, 0, 48, 40, 0.88), det(108, 0, 148, 40, 0.8)},
	}

	cfg := DefaultConfig()
	cfg.FrameSkip = 1
	cfg.MinTrackDuration = 2

	run := func() *Result {
		s := newTestSession(t, cfg)
		for i, dets := range frames {
			process(t, s, i, dets...)
		}
		return s.Result()
	}

	a, b := run(), run()

	assert.NotEqual(t, a.RunID, b.RunID)

	if diff := cmp.Diff(a, b, cmpopts.IgnoreFields(Result{}, "RunID")); diff != "" {
		t.Errorf("results differ (-first +second):\n%s", diff)
	}

	for _, fr := range a.FrameResults {
		for _, snap := range fr.Tracks {
			assert.GreaterOrEqual(t, snap.Hits, cfg.MinTrackDuration)
			assert.False(t, math.IsNaN(snap.Quality.Quality))
		}
	}
}

func TestSessionMetrics(t *testing.T) {

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	cfg := DefaultConfig()
	cfg.MaxTracksPerFrame = 1
	cfg.MinTrackDuration = 1

	s := newTestSession(t, cfg)
	s.SetMetrics(m)

	process(t, s, 0,
		det(0, 0, 40, 40, 0.9),
		det(100, 0, 140, 40, 0.8),
		det(200, 0, 240, 40, 0.2),
		det(50, 50, 10, 10, 0.9),
	)
	process(t, s, 1, det(0, 0, 40, 40, 0.9))
	process(t, s, 2, det(300, 0, 340, 40, 0.9))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.FramesSeen))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FramesProcessed))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.DetectionsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetectionsFiltered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetectionsRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetectionsCapped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TracksCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveTracks))

	s.Reset()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveTracks))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 11, count)
}
