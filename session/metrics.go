package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by sessions.  A single
// Metrics may be shared by sessions running concurrently
type Metrics struct {
	FramesSeen         prometheus.Counter
	FramesProcessed    prometheus.Counter
	DetectionsReceived prometheus.Counter
	DetectionsFiltered prometheus.Counter
	DetectionsRejected prometheus.Counter
	DetectionsCapped   prometheus.Counter
	DetectorErrors     prometheus.Counter
	TracksCreated      prometheus.Counter
	TracksEmitted      prometheus.Counter
	SolverFallbacks    prometheus.Counter
	ActiveTracks       prometheus.Gauge
}

// NewMetrics creates the session collectors and registers them with reg.
// A nil reg leaves them unregistered
func NewMetrics(reg prometheus.Registerer) *Metrics {

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vidtrack",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		FramesSeen:         counter("frames_seen_total", "Frames delivered to sessions, sampled or not"),
		FramesProcessed:    counter("frames_processed_total", "Frames passed through the tracker"),
		DetectionsReceived: counter("detections_received_total", "Detections returned by the detector"),
		DetectionsFiltered: counter("detections_filtered_total", "Detections dropped below the confidence threshold"),
		DetectionsRejected: counter("detections_rejected_total", "Malformed detections rejected by validation"),
		DetectionsCapped:   counter("detections_capped_total", "Detections dropped by the per frame cap"),
		DetectorErrors:     counter("detector_errors_total", "Frames where the detector returned an error"),
		TracksCreated:      counter("tracks_created_total", "Tracks created by the tracker"),
		TracksEmitted:      counter("tracks_emitted_total", "Track snapshots emitted in frame results"),
		SolverFallbacks:    counter("solver_fallbacks_total", "Associations that fell back to greedy matching"),
		ActiveTracks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vidtrack",
			Name:      "active_tracks",
			Help:      "Tracks currently held by all running sessions",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesSeen,
			m.FramesProcessed,
			m.DetectionsReceived,
			m.DetectionsFiltered,
			m.DetectionsRejected,
			m.DetectionsCapped,
			m.DetectorErrors,
			m.TracksCreated,
			m.TracksEmitted,
			m.SolverFallbacks,
			m.ActiveTracks,
		)
	}

	return m
}
