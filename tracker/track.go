package tracker

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// TrackState represents the confidence tier of a track
type TrackState int

const (
	// Tentative tracks are provisional, either too few hits or too low quality
	Tentative TrackState = 0
	// Confirmed tracks have sustained high quality detections
	Confirmed TrackState = 1
)

const (
	// historySize is the number of most recent boxes and confidences kept
	historySize = 15
	// velocityMomentum is the weight given to the previous velocity when
	// blending in the latest centre displacement
	velocityMomentum = 0.7
	// missDecay is applied to the quality score for every missed frame
	missDecay = 0.95
	// stabilityScale is the mean centre displacement in pixels at which the
	// stability score bottoms out at zero
	stabilityScale = 100.0
	stabilityWindow   = 3
	consistencyWindow = 5
	// minScoringHistory is the history length needed before stability and
	// consistency are recalculated
	minScoringHistory = 3
)

// String returns the lower case name of the state
func (s TrackState) String() string {
	switch s {
	case Tentative:
		return "tentative"
	case Confirmed:
		return "confirmed"
	}

	return fmt.Sprintf("TrackState(%d)", int(s))
}

// MarshalText encodes the state by name
func (s TrackState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state from its name
func (s *TrackState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "tentative":
		*s = Tentative
	case "confirmed":
		*s = Confirmed
	default:
		return fmt.Errorf("unknown track state %q", text)
	}

	return nil
}

// Track represents a single tracked object and its evolving state across
// frames
type Track struct {
	// Unique ID for the track
	trackID uint64
	// Last observed bounding box
	box Box
	// Last accepted detection confidence
	confidence float64
	// class of the detection that created the track
	classID   int
	className string
	// history of observed boxes, oldest first
	history []Box
	// confidenceHistory runs parallel to history
	confidenceHistory []float64
	// velocity is the smoothed centre displacement per frame
	velocity Point
	// prediction is the box extrapolated by the last Predict call
	prediction Box
	// number of detections matched to the track
	hits int
	// number of frames since creation
	age int
	// frames elapsed since the last matched detection
	timeSinceUpdate int
	state           TrackState
	stability       float64
	consistency     float64
	quality         float64
	// confirmHits and confirmQuality are the thresholds needed to be
	// Confirmed
	confirmHits    int
	confirmQuality float64
}

// newTrack creates a tentative track from the detection
func newTrack(trackID uint64, det Detection, confirmHits int, confirmQuality float64) *Track {

	history := make([]Box, 1, historySize+1)
	history[0] = det.Box

	confHistory := make([]float64, 1, historySize+1)
	confHistory[0] = det.Confidence

	return &Track{
		trackID:           trackID,
		box:               det.Box,
		confidence:        det.Confidence,
		classID:           det.ClassID,
		className:         det.ClassName,
		history:           history,
		confidenceHistory: confHistory,
		prediction:        det.Box,
		hits:              1,
		state:             Tentative,
		stability:         1.0,
		consistency:       1.0,
		quality:           det.Confidence,
		confirmHits:       confirmHits,
		confirmQuality:    confirmQuality,
	}
}

// GetTrackID returns the unique ID for the track
func (t *Track) GetTrackID() uint64 {
	return t.trackID
}

// GetBox returns the last observed bounding box
func (t *Track) GetBox() Box {
	return t.box
}

// GetConfidence returns the last accepted detection confidence
func (t *Track) GetConfidence() float64 {
	return t.confidence
}

// GetClassID returns the class ID the track was created with
func (t *Track) GetClassID() int {
	return t.classID
}

// GetClassName returns the class name the track was created with
func (t *Track) GetClassName() string {
	return t.className
}

// GetHistory returns a copy of the observed box history, oldest first
func (t *Track) GetHistory() []Box {
	return append([]Box(nil), t.history...)
}

// GetConfidenceHistory returns a copy of the confidence history, oldest first
func (t *Track) GetConfidenceHistory() []float64 {
	return append([]float64(nil), t.confidenceHistory...)
}

// GetVelocity returns the smoothed centre velocity in pixels per frame
func (t *Track) GetVelocity() Point {
	return t.velocity
}

// GetPrediction returns the box extrapolated by the last Predict call
func (t *Track) GetPrediction() Box {
	return t.prediction
}

// GetHits returns the number of detections matched to the track
func (t *Track) GetHits() int {
	return t.hits
}

// GetAge returns the number of frames since the track was created
func (t *Track) GetAge() int {
	return t.age
}

// GetTimeSinceUpdate returns the number of frames since the last match
func (t *Track) GetTimeSinceUpdate() int {
	return t.timeSinceUpdate
}

// GetState returns the current state of the track
func (t *Track) GetState() TrackState {
	return t.state
}

// IsConfirmed returns whether the track is in the Confirmed state
func (t *Track) IsConfirmed() bool {
	return t.state == Confirmed
}

// GetStability returns the stability score
func (t *Track) GetStability() float64 {
	return t.stability
}

// GetConsistency returns the consistency score
func (t *Track) GetConsistency() float64 {
	return t.consistency
}

// GetQuality returns the overall quality score
func (t *Track) GetQuality() float64 {
	return t.quality
}

// Predict updates the smoothed velocity from the two most recent observed
// boxes and extrapolates the next box.  The observed box is left unchanged
func (t *Track) Predict() Box {

	n := len(t.history)

	if n < 2 {
		t.prediction = t.box
		return t.prediction
	}

	curr := t.history[n-1].Center()
	prev := t.history[n-2].Center()

	t.velocity.X = velocityMomentum*t.velocity.X + (1-velocityMomentum)*(curr.X-prev.X)
	t.velocity.Y = velocityMomentum*t.velocity.Y + (1-velocityMomentum)*(curr.Y-prev.Y)

	t.prediction = t.history[n-1].Shift(t.velocity)

	return t.prediction
}

// Update updates the track with a newly matched detection box and
// confidence and recalculates its scores and state
func (t *Track) Update(box Box, confidence float64) {

	t.box = box
	t.confidence = confidence
	t.hits++
	t.age++
	t.timeSinceUpdate = 0

	t.history = append(t.history, box)
	t.confidenceHistory = append(t.confidenceHistory, confidence)

	if len(t.history) > historySize {
		t.history = t.history[len(t.history)-historySize:]
		t.confidenceHistory = t.confidenceHistory[len(t.confidenceHistory)-historySize:]
	}

	if len(t.history) >= minScoringHistory {
		t.stability = 1 - min(1, meanDisplacement(lastN(t.history, stabilityWindow))/stabilityScale)
		t.consistency = 1 - min(1, stat.PopStdDev(lastN(t.confidenceHistory, consistencyWindow), nil))
	}

	t.quality = (t.confidence + t.stability + t.consistency) / 3

	if t.hits >= t.confirmHits && t.quality > t.confirmQuality {
		t.state = Confirmed
	} else {
		t.state = Tentative
	}
}

// MarkMissed records a frame without a matching detection and decays the
// quality score
func (t *Track) MarkMissed() {
	t.timeSinceUpdate++
	t.age++
	t.quality *= missDecay
}

// matchBox returns the box used for association cost
func (t *Track) matchBox(usePrediction bool) Box {
	if usePrediction {
		return t.prediction
	}

	return t.box
}

// Snapshot returns an immutable view of the track for output
func (t *Track) Snapshot() Snapshot {
	return Snapshot{
		TrackID:    t.trackID,
		Box:        t.box,
		Confidence: t.confidence,
		ClassName:  t.className,
		ClassID:    t.classID,
		Hits:       t.hits,
		Age:        t.age,
		State:      t.state,
		Quality: Quality{
			Confidence:  t.confidence,
			Stability:   t.stability,
			Consistency: t.consistency,
			Quality:     t.quality,
			Hits:        t.hits,
			Age:         t.age,
		},
	}
}

// lastN returns the trailing n elements of s, or all of s when shorter
func lastN[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}

	return s[len(s)-n:]
}

// meanDisplacement returns the mean centre distance between consecutive
// boxes
func meanDisplacement(boxes []Box) float64 {

	if len(boxes) < 2 {
		return 0
	}

	dists := make([]float64, 0, len(boxes)-1)

	for i := 1; i < len(boxes); i++ {
		dists = append(dists, boxes[i-1].Center().distance(boxes[i].Center()))
	}

	return stat.Mean(dists, nil)
}
