// Package pacing sizes the pause between processed frames from recent latencies.
package pacing

import (
	"context"
	"sync"
	"time"
)

// Defaults applied when an option is not given.
const (
	DefaultTargetPeriod = 200 * time.Millisecond
	DefaultMinSleep     = 50 * time.Millisecond
	DefaultWindow       = 30
)

// Pacer keeps a rolling window of processing latencies and derives the next
// sleep as max(minSleep, target - average).
type Pacer struct {
	mu       sync.Mutex
	clock    Clock
	target   time.Duration
	minSleep time.Duration
	samples  []time.Duration
	next     int
	full     bool
	sum      time.Duration
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithTargetPeriod sets the desired time between frame starts.
func WithTargetPeriod(d time.Duration) Option {
	return func(p *Pacer) {
		if d > 0 {
			p.target = d
		}
	}
}

// WithMinSleep sets the floor on every pause.
func WithMinSleep(d time.Duration) Option {
	return func(p *Pacer) {
		if d >= 0 {
			p.minSleep = d
		}
	}
}

// WithWindow sets how many latencies are averaged.
func WithWindow(n int) Option {
	return func(p *Pacer) {
		if n > 0 {
			p.samples = make([]time.Duration, n)
		}
	}
}

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(p *Pacer) {
		if c != nil {
			p.clock = c
		}
	}
}

// New creates a Pacer.
func New(opts ...Option) *Pacer {
	p := &Pacer{
		clock:    SystemClock{},
		target:   DefaultTargetPeriod,
		minSleep: DefaultMinSleep,
		samples:  make([]time.Duration, DefaultWindow),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Observe adds one processing latency, evicting the oldest when the window is full.
func (p *Pacer) Observe(latency time.Duration) {
	if latency < 0 {
		latency = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sum += latency - p.samples[p.next]
	p.samples[p.next] = latency
	p.next++
	if p.next == len(p.samples) {
		p.next = 0
		p.full = true
	}
}

// Average is the mean latency in the window, 0 before any sample.
func (p *Pacer) Average() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.averageLocked()
}

func (p *Pacer) averageLocked() time.Duration {
	n := p.next
	if p.full {
		n = len(p.samples)
	}
	if n == 0 {
		return 0
	}
	return p.sum / time.Duration(n)
}

// Next returns the pause before the following frame.
func (p *Pacer) Next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return max(p.minSleep, p.target-p.averageLocked())
}

// Sleep waits Next() on the pacer's clock. It returns early with false when
// ctx or stop is done.
func (p *Pacer) Sleep(ctx context.Context, stop <-chan struct{}) (time.Duration, bool) {
	d := p.Next()
	select {
	case <-p.clock.After(d):
		return d, true
	case <-stop:
		return d, false
	case <-ctx.Done():
		return d, false
	}
}

// Clock returns the pacer's time source.
func (p *Pacer) Clock() Clock { return p.clock }
