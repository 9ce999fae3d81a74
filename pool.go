package vidtrack

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/lokal-ai/vidtrack/session"
	"golang.org/x/sync/errgroup"
)

// Pool holds sessions sharing the same config so several videos can be
// tracked concurrently without reallocating trackers
type Pool struct {
	// pool of idle sessions
	sessions chan *session.Session
	// size of pool
	size   int
	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool of size sessions.  The logger and metrics may be nil
func NewPool(size int, cfg session.Config, logger *log.Logger, metrics *session.Metrics) (*Pool, error) {

	if size < 1 {
		return nil, fmt.Errorf("pool size %d must be at least 1", size)
	}

	p := &Pool{
		sessions: make(chan *session.Session, size),
		size:     size,
	}

	for i := 0; i < size; i++ {
		s, err := session.New(cfg)

		if err != nil {
			return nil, err
		}

		s.SetLogger(logger)
		s.SetMetrics(metrics)

		p.sessions <- s
	}

	return p, nil
}

// Size returns the number of sessions in the pool
func (p *Pool) Size() int {
	return p.size
}

// Get takes a session from the pool, blocking until one is available.
// Returns nil once the pool is closed and drained
func (p *Pool) Get() *session.Session {
	return <-p.sessions
}

// Return resets the session and puts it back in the pool
func (p *Pool) Return(s *session.Session) {

	if s == nil {
		return
	}

	s.Reset()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	select {
	case p.sessions <- s:
	default:
		// pool is full
	}
}

// Close the pool, sessions returned afterwards are discarded
func (p *Pool) Close() {

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.sessions)
}

// Video is a single video to track
type Video[T any] struct {
	// Name is recorded in the Result
	Name   string
	Source session.FrameSource[T]
	// Hook is called for every frame of this video, may be nil
	Hook session.FrameHook[T]
}

// ProcessVideos tracks the videos concurrently using one pooled session per
// video, at most the pool size at a time.  The detector is shared and must
// be safe for concurrent use.  Results are returned in the order of videos,
// the first failure cancels the remaining videos
func ProcessVideos[T any](ctx context.Context, pool *Pool, videos []Video[T], det session.Detector[T]) ([]*session.Result, error) {

	results := make([]*session.Result, len(videos))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(pool.Size())

	for i, v := range videos {
		i, v := i, v
		g.Go(func() error {

			s := pool.Get()

			if s == nil {
				return fmt.Errorf("video %s: pool closed", v.Name)
			}

			defer pool.Return(s)

			s.SetVideo(v.Name)

			res, err := session.Run(ctx, s, v.Source, det, v.Hook)

			if err != nil {
				return fmt.Errorf("video %s: %w", v.Name, err)
			}

			results[i] = res

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
