package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lokal-ai/vidtrack/tracker"
)

// EmitPolicy decides which tracks are kept when more than the per frame
// maximum qualify for output
type EmitPolicy int

const (
	// EmitTruncate keeps the first tracks in tracker order, which is track
	// creation order
	EmitTruncate EmitPolicy = 0
	// EmitByQuality keeps the highest quality tracks
	EmitByQuality EmitPolicy = 1
)

// String returns the configuration name of the policy
func (p EmitPolicy) String() string {
	switch p {
	case EmitTruncate:
		return "truncate"
	case EmitByQuality:
		return "quality"
	}

	return fmt.Sprintf("EmitPolicy(%d)", int(p))
}

// MarshalText encodes the policy by name
func (p EmitPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a policy from its name
func (p *EmitPolicy) UnmarshalText(text []byte) error {
	switch string(text) {
	case "truncate":
		*p = EmitTruncate
	case "quality":
		*p = EmitByQuality
	default:
		return fmt.Errorf("unknown emit policy %q", text)
	}

	return nil
}

// Config holds the cost control policy applied around the tracker
type Config struct {
	// ConfidenceThreshold drops detections scoring below it before tracking
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	// FrameSkip processes only every Nth frame
	FrameSkip int `json:"frame_skip"`
	// MaxTracksPerFrame caps both the detections passed to the tracker and
	// the tracks emitted per frame
	MaxTracksPerFrame int `json:"max_tracks_per_frame"`
	// MinTrackDuration is the number of hits a track needs before it is
	// emitted
	MinTrackDuration int        `json:"min_track_duration"`
	EmitPolicy       EmitPolicy `json:"emit_policy"`
	// Tracker holds the tracking algorithm parameters
	Tracker tracker.Config `json:"tracker"`
}

// DefaultConfig returns the default session policy
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.5,
		FrameSkip:           2,
		MaxTracksPerFrame:   10,
		MinTrackDuration:    3,
		EmitPolicy:          EmitTruncate,
		Tracker:             tracker.DefaultConfig(),
	}
}

// Validate checks the policy values and the nested tracker config
func (c Config) Validate() error {

	var errs []error

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence_threshold %v outside [0,1]", c.ConfidenceThreshold))
	}

	if c.FrameSkip < 1 {
		errs = append(errs, fmt.Errorf("frame_skip %d must be at least 1", c.FrameSkip))
	}

	if c.MaxTracksPerFrame < 1 {
		errs = append(errs, fmt.Errorf("max_tracks_per_frame %d must be at least 1", c.MaxTracksPerFrame))
	}

	if c.MinTrackDuration < 0 {
		errs = append(errs, fmt.Errorf("min_track_duration %d must not be negative", c.MinTrackDuration))
	}

	if c.EmitPolicy != EmitTruncate && c.EmitPolicy != EmitByQuality {
		errs = append(errs, fmt.Errorf("unknown emit_policy %d", int(c.EmitPolicy)))
	}

	if err := c.Tracker.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// maxConfigSize is the largest config file LoadConfig will read
const maxConfigSize = 1 << 20

// LoadConfig loads a Config from a JSON file.  Fields omitted from the file
// keep their default values so partial configs are safe
func LoadConfig(path string) (Config, error) {

	cfg := DefaultConfig()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}

	if info.Size() > maxConfigSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", cleanPath, err)
	}

	return cfg, nil
}
