package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lokal-ai/vidtrack/tracker"
)

// Frame is a decoded video frame of image type T
type Frame[T any] struct {
	// Index is the position of the frame in the video, starting at 0
	Index int
	// Timestamp is the presentation time of the frame
	Timestamp time.Duration
	Image     T
}

// FrameSource delivers frames in increasing index order and returns io.EOF
// once the video is exhausted
type FrameSource[T any] interface {
	Next(ctx context.Context) (Frame[T], error)
}

// Detector runs object detection on a frame
type Detector[T any] interface {
	Detect(ctx context.Context, frame Frame[T]) ([]tracker.Detection, error)
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc[T any] func(ctx context.Context, frame Frame[T]) ([]tracker.Detection, error)

// Detect calls f(ctx, frame)
func (f DetectorFunc[T]) Detect(ctx context.Context, frame Frame[T]) ([]tracker.Detection, error) {
	return f(ctx, frame)
}

// SliceSource is a FrameSource over frames held in memory
type SliceSource[T any] struct {
	frames []Frame[T]
	pos    int
}

// NewSliceSource returns a FrameSource delivering the given frames in order
func NewSliceSource[T any](frames []Frame[T]) *SliceSource[T] {
	return &SliceSource[T]{frames: frames}
}

// Next returns the next frame or io.EOF
func (s *SliceSource[T]) Next(ctx context.Context) (Frame[T], error) {

	if err := ctx.Err(); err != nil {
		return Frame[T]{}, err
	}

	if s.pos >= len(s.frames) {
		return Frame[T]{}, io.EOF
	}

	frame := s.frames[s.pos]
	s.pos++

	return frame, nil
}

// FrameHook is called after every frame has passed through the session.
// The result is nil for frames that were not sampled.  Returning an error
// stops the run
type FrameHook[T any] func(frame Frame[T], result *FrameResult) error

// Run reads every frame from src, detects objects on the sampled frames and
// passes them through the session, returning the aggregated Result once the
// source is exhausted.  A detector error is logged and the frame tracked as
// having no detections.  The hook may be nil
func Run[T any](ctx context.Context, s *Session, src FrameSource[T], det Detector[T], hook FrameHook[T]) (*Result, error) {

	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := src.Next(ctx)

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("failed to read frame: %w", err)
		}

		var dets []tracker.Detection

		if s.Sampled(frame.Index) {
			dets, err = det.Detect(ctx, frame)

			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}

				s.detectorFailed(frame.Index, err)
				dets = nil
			}
		}

		result, err := s.ProcessFrame(frame.Index, frame.Timestamp, dets)

		if err != nil {
			return nil, err
		}

		if hook != nil {
			if err := hook(frame, result); err != nil {
				return nil, fmt.Errorf("frame %d hook failed: %w", frame.Index, err)
			}
		}
	}

	res := s.Result()

	s.logger.Printf("Tracking completed: %d unique tracks across %d frames in %s",
		res.TotalTracks, res.TotalFrames, time.Since(start))

	return res, nil
}
