package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lokal-ai/vidtrack/tracker"
)

// ErrFrameOrder is returned when a frame index does not increase
var ErrFrameOrder = errors.New("frame index not increasing")

// Session applies the cost control policy of a single video around a
// Tracker and aggregates the emitted results.  A Session is not safe for
// concurrent use
type Session struct {
	cfg     Config
	tracker *tracker.Tracker
	logger  *log.Logger
	metrics *Metrics
	runID   string
	video   string
	// lastIndex is the index of the previous frame, -1 before the first
	lastIndex      int
	totalFrames    int
	detectorErrors int
	frames         []FrameResult
	// values last reported to metrics
	created   uint64
	fallbacks int
	active    int
}

// New returns a Session for the given config
func New(cfg Config) (*Session, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	tr, err := tracker.NewTracker(cfg.Tracker)

	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:       cfg,
		tracker:   tr,
		logger:    log.New(io.Discard, "", 0),
		runID:     uuid.NewString(),
		lastIndex: -1,
	}, nil
}

// SetLogger sets the logger used for rejected detections, detector errors
// and solver fallbacks
func (s *Session) SetLogger(l *log.Logger) {

	if l == nil {
		l = log.New(io.Discard, "", 0)
	}

	s.logger = l
	s.tracker.SetLogger(l)
}

// SetMetrics sets the collectors the session reports to, nil disables
// reporting
func (s *Session) SetMetrics(m *Metrics) {
	s.metrics = m
}

// SetVideo sets the source name recorded in the Result
func (s *Session) SetVideo(name string) {
	s.video = name
}

// Config returns the session config
func (s *Session) Config() Config {
	return s.cfg
}

// RunID returns the unique ID of the current run
func (s *Session) RunID() string {
	return s.runID
}

// Tracker returns the underlying tracker
func (s *Session) Tracker() *tracker.Tracker {
	return s.tracker
}

// DetectorErrors returns the number of frames whose detection failed
func (s *Session) DetectorErrors() int {
	return s.detectorErrors
}

// Sampled reports whether the frame at index is passed to the detector and
// tracker
func (s *Session) Sampled(index int) bool {
	return index%s.cfg.FrameSkip == 0
}

// ProcessFrame runs one frame through the session.  Every frame counts
// towards the total, but only sampled frames update the tracker and produce
// a FrameResult, for other frames the detections are ignored and nil is
// returned.  Frame indexes must be strictly increasing
func (s *Session) ProcessFrame(index int, ts time.Duration, dets []tracker.Detection) (*FrameResult, error) {

	if index < 0 || index <= s.lastIndex {
		return nil, fmt.Errorf("%w: frame %d after %d", ErrFrameOrder, index, s.lastIndex)
	}

	s.lastIndex = index
	s.totalFrames++

	if s.metrics != nil {
		s.metrics.FramesSeen.Inc()
	}

	if !s.Sampled(index) {
		return nil, nil
	}

	tracks, _ := s.tracker.Update(s.prepare(index, dets))
	emitted := s.emit(tracks)

	fr := FrameResult{
		FrameNumber: index,
		TimestampMS: ts.Milliseconds(),
		Tracks:      tracker.Snapshots(emitted),
	}

	s.frames = append(s.frames, fr)
	s.report(len(tracks), len(emitted))

	return &fr, nil
}

// prepare applies the confidence filter, validation and the per frame cap
// to the detector output
func (s *Session) prepare(index int, dets []tracker.Detection) []tracker.Detection {

	kept := make([]tracker.Detection, 0, len(dets))

	for _, det := range dets {
		if det.Confidence >= s.cfg.ConfidenceThreshold {
			kept = append(kept, det)
		}
	}

	filtered := len(dets) - len(kept)

	kept, rejected := tracker.FilterValid(kept)

	for _, r := range rejected {
		s.logger.Printf("frame %d: %v", index, r)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Confidence > kept[j].Confidence
	})

	capped := 0

	if len(kept) > s.cfg.MaxTracksPerFrame {
		capped = len(kept) - s.cfg.MaxTracksPerFrame
		kept = kept[:s.cfg.MaxTracksPerFrame]
	}

	if s.metrics != nil {
		s.metrics.DetectionsReceived.Add(float64(len(dets)))
		s.metrics.DetectionsFiltered.Add(float64(filtered))
		s.metrics.DetectionsRejected.Add(float64(len(rejected)))
		s.metrics.DetectionsCapped.Add(float64(capped))
	}

	return kept
}

// emit selects the tracks that appear in the frame result
func (s *Session) emit(tracks []*tracker.Track) []*tracker.Track {

	out := make([]*tracker.Track, 0, len(tracks))

	for _, t := range tracks {
		if t.GetHits() >= s.cfg.MinTrackDuration {
			out = append(out, t)
		}
	}

	if s.cfg.EmitPolicy == EmitByQuality {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].GetQuality() > out[j].GetQuality()
		})
	}

	if len(out) > s.cfg.MaxTracksPerFrame {
		out = out[:s.cfg.MaxTracksPerFrame]
	}

	return out
}

// report updates the metrics with the changes since the previous frame
func (s *Session) report(active, emitted int) {

	created := s.tracker.Created()
	fallbacks := s.tracker.Fallbacks()

	if s.metrics != nil {
		s.metrics.FramesProcessed.Inc()
		s.metrics.TracksCreated.Add(float64(created - s.created))
		s.metrics.TracksEmitted.Add(float64(emitted))
		s.metrics.SolverFallbacks.Add(float64(fallbacks - s.fallbacks))
		s.metrics.ActiveTracks.Add(float64(active - s.active))
	}

	s.created = created
	s.fallbacks = fallbacks
	s.active = active
}

// Result returns the aggregated result of the frames processed so far
func (s *Session) Result() *Result {

	stats := CalculateStats(s.frames)

	return &Result{
		RunID:          s.runID,
		Video:          s.video,
		TotalFrames:    s.totalFrames,
		TotalTracks:    stats.TotalTracks,
		DetectorErrors: s.detectorErrors,
		FrameResults:   append(make([]FrameResult, 0, len(s.frames)), s.frames...),
		Stats:          stats,
	}
}

// Reset clears all state so the session can process a new video under a new
// run ID
func (s *Session) Reset() {

	if s.metrics != nil {
		s.metrics.ActiveTracks.Sub(float64(s.active))
	}

	s.tracker.Reset()
	s.runID = uuid.NewString()
	s.video = ""
	s.lastIndex = -1
	s.totalFrames = 0
	s.detectorErrors = 0
	s.frames = nil
	s.created = 0
	s.active = 0
}

// detectorFailed records a frame whose detection returned an error
func (s *Session) detectorFailed(index int, err error) {

	s.detectorErrors++
	s.logger.Printf("detection failed on frame %d, treating as empty: %v", index, err)

	if s.metrics != nil {
		s.metrics.DetectorErrors.Inc()
	}
}
