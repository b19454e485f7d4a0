package recognition

import (
	"time"

	"github.com/okian/facegate/internal/domain/pacing"
	"github.com/okian/facegate/pkg/logger"
)

// Option applies a configuration option to the Worker.
type Option func(*Worker)

// WithStride sends every n-th frame to the detector.
func WithStride(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.stride = n
		}
	}
}

// WithMaxReadFailures sets how many consecutive read failures end the loop.
func WithMaxReadFailures(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxFailures = n
		}
	}
}

// WithReadTimeout bounds each frame read.
func WithReadTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.readTimeout = d
		}
	}
}

// WithRetryBackoff sets the pause after a failed read.
func WithRetryBackoff(d time.Duration) Option {
	return func(w *Worker) {
		if d >= 0 {
			w.retryBackoff = d
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the loop.
func WithStopTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.stopTimeout = d
		}
	}
}

// WithPacer replaces the default pacer.
func WithPacer(p *pacing.Pacer) Option {
	return func(w *Worker) {
		if p != nil {
			w.pacer = p
		}
	}
}

// WithClock injects the time source for timestamps and backoff.
func WithClock(c pacing.Clock) Option {
	return func(w *Worker) {
		if c != nil {
			w.clock = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}
