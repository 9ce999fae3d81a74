package tracker

import (
	"errors"
	"fmt"
	"log"
)

// Config holds the tracker tuning parameters
type Config struct {
	// HighThreshold splits detections into high and low confidence sets
	HighThreshold float64 `json:"high_threshold"`
	// IoUThreshold is the overlap a track/detection pair must exceed to match
	IoUThreshold float64 `json:"iou_threshold"`
	// MaxAge is the number of consecutive missed frames before a track is
	// removed
	MaxAge int `json:"max_age"`
	// MinHits is the number of hits required for a track to be confirmed
	MinHits int `json:"min_hits"`
	// ConfirmQuality is the quality score a track must exceed to be confirmed
	ConfirmQuality float64 `json:"confirm_quality"`
	// Matcher is the assignment algorithm
	Matcher Matcher `json:"matcher"`
	// AssociateOnPrediction uses the motion extrapolated box for matching
	// cost instead of the last observed box
	AssociateOnPrediction bool `json:"associate_on_prediction"`
}

// DefaultConfig returns the default tracker parameters
func DefaultConfig() Config {
	return Config{
		HighThreshold:  0.5,
		IoUThreshold:   0.3,
		MaxAge:         30,
		MinHits:        3,
		ConfirmQuality: 0.6,
		Matcher:        MatchOptimal,
	}
}

// Validate checks the parameters are usable
func (c Config) Validate() error {

	var errs []error

	if c.HighThreshold < 0 || c.HighThreshold > 1 {
		errs = append(errs, fmt.Errorf("high_threshold %v outside [0,1]", c.HighThreshold))
	}

	if c.IoUThreshold < 0 || c.IoUThreshold >= 1 {
		errs = append(errs, fmt.Errorf("iou_threshold %v outside [0,1)", c.IoUThreshold))
	}

	if c.MaxAge < 1 {
		errs = append(errs, fmt.Errorf("max_age %d must be at least 1", c.MaxAge))
	}

	if c.MinHits < 1 {
		errs = append(errs, fmt.Errorf("min_hits %d must be at least 1", c.MinHits))
	}

	if c.Matcher != MatchOptimal && c.Matcher != MatchGreedy {
		errs = append(errs, fmt.Errorf("unknown matcher %d", int(c.Matcher)))
	}

	return errors.Join(errs...)
}

// Tracker maintains persistent identities for detections across frames
type Tracker struct {
	cfg        Config
	associator *Associator
	// frameID is the number of Update calls since creation or Reset
	frameID int
	// nextID is the ID given to the next created track
	nextID uint64
	// tracks is the active set in creation order
	tracks []*Track
}

// NewTracker initializes and returns a new Tracker
func NewTracker(cfg Config) (*Tracker, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}

	return &Tracker{
		cfg:        cfg,
		associator: NewAssociator(cfg.IoUThreshold, cfg.Matcher),
		nextID:     1,
	}, nil
}

// SetLogger sets a logger for reporting solver fallbacks
func (tr *Tracker) SetLogger(l *log.Logger) {
	tr.associator.SetLogger(l)
}

// Config returns the tracker parameters
func (tr *Tracker) Config() Config {
	return tr.cfg
}

// Reset clears all tracks and restarts ID allocation
func (tr *Tracker) Reset() {
	tr.frameID = 0
	tr.nextID = 1
	tr.tracks = nil
}

// Tracks returns the active tracks in creation order
func (tr *Tracker) Tracks() []*Track {
	return append([]*Track(nil), tr.tracks...)
}

// FrameID returns the number of frames processed
func (tr *Tracker) FrameID() int {
	return tr.frameID
}

// Created returns the number of tracks created since creation or Reset
func (tr *Tracker) Created() uint64 {
	return tr.nextID - 1
}

// Fallbacks returns how many associations used the greedy fallback
func (tr *Tracker) Fallbacks() int {
	return tr.associator.Fallbacks()
}

// Update advances the tracker by one frame with the given detections and
// returns the active tracks.  Malformed detections are not tracked and are
// returned as rejections
func (tr *Tracker) Update(detections []Detection) ([]*Track, []Rejection) {

	tr.frameID++

	dets, rejected := FilterValid(detections)

	// predict motion, informational unless association uses it
	for _, t := range tr.tracks {
		t.Predict()
	}

	// split detections by confidence
	var high, low []Detection

	for _, det := range dets {
		if det.Confidence >= tr.cfg.HighThreshold {
			high = append(high, det)
		} else {
			low = append(low, det)
		}
	}

	// split tracks by state, as indexes into tr.tracks
	var confirmed, tentative []int

	for i, t := range tr.tracks {
		if t.IsConfirmed() {
			confirmed = append(confirmed, i)
		} else {
			tentative = append(tentative, i)
		}
	}

	matched := make([]bool, len(tr.tracks))

	// Stage A: high confidence detections with confirmed tracks
	assign := tr.associate(confirmed, high, matched)
	remainHigh := pick(high, assign.UnmatchedDetections)

	remainConfirmed := make([]int, 0, len(assign.UnmatchedTracks))
	for _, idx := range assign.UnmatchedTracks {
		remainConfirmed = append(remainConfirmed, confirmed[idx])
	}

	// Stage B: remaining high confidence detections with tentative tracks
	assign = tr.associate(tentative, remainHigh, matched)
	newDets := pick(remainHigh, assign.UnmatchedDetections)

	// Stage C: low confidence detections recover confirmed tracks
	tr.associate(remainConfirmed, low, matched)

	// new tracks only from high confidence detections
	for _, det := range newDets {
		tr.tracks = append(tr.tracks, newTrack(tr.nextID, det, tr.cfg.MinHits, tr.cfg.ConfirmQuality))
		matched = append(matched, false)
		tr.nextID++
	}

	// age out every track not matched in this frame, including the ones
	// just created
	for i, t := range tr.tracks {
		if !matched[i] {
			t.MarkMissed()
		}
	}

	// remove tracks lost for too long, permanently
	active := tr.tracks[:0]

	for _, t := range tr.tracks {
		if t.timeSinceUpdate < tr.cfg.MaxAge {
			active = append(active, t)
		}
	}

	// clear the tail so removed tracks can be collected
	for i := len(active); i < len(tr.tracks); i++ {
		tr.tracks[i] = nil
	}

	tr.tracks = active

	return tr.Tracks(), rejected
}

// associate matches the tracks at the given indexes against dets, updates
// every matched track and flags it in matched.  The assignment is relative to
// trackIdx and dets
func (tr *Tracker) associate(trackIdx []int, dets []Detection, matched []bool) Assignment {

	boxes := make([]Box, len(trackIdx))

	for k, idx := range trackIdx {
		boxes[k] = tr.tracks[idx].matchBox(tr.cfg.AssociateOnPrediction)
	}

	assign := tr.associator.Associate(boxes, dets)

	for _, m := range assign.Matches {
		idx := trackIdx[m.Track]
		det := dets[m.Detection]
		tr.tracks[idx].Update(det.Box, det.Confidence)
		matched[idx] = true
	}

	return assign
}

// pick returns the detections at the given indexes
func pick(dets []Detection, idx []int) []Detection {

	out := make([]Detection, 0, len(idx))

	for _, i := range idx {
		out = append(out, dets[i])
	}

	return out
}
