// Package recognition drives one camera channel: read, detect, match, record.
package recognition

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/okian/facegate/internal/adapters/camera"
	"github.com/okian/facegate/internal/domain/gallery"
	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/internal/domain/pacing"
	"github.com/okian/facegate/pkg/logger"
	"github.com/okian/facegate/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultStride       = 5
	defaultMaxFailures  = 3
	defaultReadTimeout  = 2 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
	defaultStopTimeout  = 5 * time.Second
)

// Match outcome labels.
const (
	outcomeKnown   = "known"
	outcomeUnknown = "unknown"
	outcomeNoFace  = "no_face"
)

// Detector finds faces and their embeddings in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]model.Face, error)
}

// Matcher classifies one embedding against a gallery snapshot.
type Matcher interface {
	Match(query []float64, g *gallery.Gallery) model.MatchResult
}

// GallerySource yields the current gallery snapshot.
type GallerySource interface {
	Load() *gallery.Gallery
}

// Recorder turns a qualifying match into an attendance event.
type Recorder interface {
	Record(ctx context.Context, identity string, ch model.Channel, confidence float64, now time.Time) (*model.AttendanceEvent, error)
}

// Deps are the collaborators a Worker calls on every processed frame.
type Deps struct {
	Detector Detector
	Matcher  Matcher
	Gallery  GallerySource
	Recorder Recorder
}

// Worker owns one channel's capture loop.
type Worker struct {
	channel model.Channel
	source  camera.Source
	deps    Deps

	stride       int
	maxFailures  int
	readTimeout  time.Duration
	retryBackoff time.Duration
	stopTimeout  time.Duration
	pacer        *pacing.Pacer
	clock        pacing.Clock

	mu         sync.Mutex
	state      State
	cancel     context.CancelFunc
	shutdown   chan struct{}
	done       chan struct{}
	framesRead uint64
	processed  uint64
	lastFrame  *model.Frame
	lastResult *Result
	lastEvent  *model.AttendanceEvent
	lastErr    error
	updatedAt  time.Time

	logger logger.Logger
}

// NewWorker creates a stopped worker for ch reading from source.
func NewWorker(ch model.Channel, source camera.Source, deps Deps, opts ...Option) *Worker {
	w := &Worker{
		channel:      ch,
		source:       source,
		deps:         deps,
		stride:       defaultStride,
		maxFailures:  defaultMaxFailures,
		readTimeout:  defaultReadTimeout,
		retryBackoff: defaultRetryBackoff,
		stopTimeout:  defaultStopTimeout,
		clock:        pacing.SystemClock{},
		logger:       logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.pacer == nil {
		w.pacer = pacing.New(pacing.WithClock(w.clock))
	}
	w.logger = w.logger.With(logger.String("channel", ch.String()), logger.String("source", source.ID()))
	return w
}

// Channel returns the worker's channel.
func (w *Worker) Channel() model.Channel { return w.channel }

// Start opens the source and launches the loop. The loop outlives ctx's
// cancellation; use Stop to end it.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != Stopped {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, w.channel)
	}
	if err := w.source.Open(ctx); err != nil {
		metrics.RecordErrorByComponent("worker", "source_open")
		w.lastErr = err
		return fmt.Errorf("%w: %s channel (%s): %w", ErrSourceUnavailable, w.channel, w.source.ID(), err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel
	w.shutdown = make(chan struct{})
	w.done = make(chan struct{})
	w.lastErr = nil
	w.setStateLocked(Running)

	go w.run(loopCtx, w.shutdown, w.done)
	w.logger.Info(ctx, "channel started")
	return nil
}

// run is the capture loop. Its exit path always closes the source and marks
// the worker stopped.
func (w *Worker) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer func() {
		if err := w.source.Close(); err != nil {
			w.logger.Warn(ctx, "source close failed", logger.Error(err))
		}
		w.mu.Lock()
		w.setStateLocked(Stopped)
		w.cancel()
		w.mu.Unlock()
		close(done)
		w.logger.Info(ctx, "channel stopped")
	}()

	failures := 0
	for {
		select {
		case <-shutdown:
			return
		default:
		}

		frame, err := w.read(ctx)
		if err != nil {
			if stopping(ctx, shutdown) {
				return
			}
			failures++
			metrics.RecordFrameReadFailure(w.channel.String())
			w.setError(err)
			w.logger.Warn(ctx, "frame read failed",
				logger.Int("failures", failures),
				logger.Int("max_failures", w.maxFailures),
				logger.Error(err),
			)
			if failures >= w.maxFailures {
				metrics.RecordErrorByComponent("worker", "read_failures")
				w.logger.Error(ctx, "too many read failures, stopping channel", logger.Int("failures", failures))
				return
			}
			if !w.wait(ctx, shutdown, w.retryBackoff) {
				return
			}
			continue
		}
		failures = 0

		n := w.onFrame(frame)
		if (n-1)%uint64(w.stride) != 0 {
			continue
		}

		w.process(ctx, frame)

		slept, ok := w.pacer.Sleep(ctx, shutdown)
		metrics.RecordPacingSleep(w.channel.String(), float64(slept.Milliseconds()))
		if !ok {
			return
		}
	}
}

func (w *Worker) read(ctx context.Context) (model.Frame, error) {
	readCtx, cancel := context.WithTimeout(ctx, w.readTimeout)
	defer cancel()
	frame, err := w.source.Read(readCtx)
	if err == nil && frame.Image == nil {
		err = camera.ErrEndOfStream
	}
	return frame, err
}

func (w *Worker) onFrame(frame model.Frame) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.framesRead++
	f := frame
	w.lastFrame = &f
	w.updatedAt = w.clock.Now()
	metrics.RecordFrameRead(w.channel.String())
	return w.framesRead
}

// process runs detection and matching on one frame and records qualifying
// matches. Failures are logged and kept for status; they never end the loop.
func (w *Worker) process(ctx context.Context, frame model.Frame) {
	ch := w.channel.String()
	start := w.clock.Now()

	faces, err := w.deps.Detector.Detect(ctx, frame.Image)
	latency := w.clock.Now().Sub(start)
	metrics.RecordDetectionLatency(ch, float64(latency.Milliseconds()))

	if err != nil {
		w.pacer.Observe(latency)
		if ctx.Err() != nil {
			return
		}
		err = fmt.Errorf("%w: %s frame %d: %w", ErrDetection, ch, frame.Seq, err)
		metrics.RecordDetectionFailure(ch)
		metrics.RecordErrorByComponent("worker", "detection")
		w.logger.Warn(ctx, "detection failed", logger.Error(err))
		w.setError(err)
		return
	}

	res := Result{Faces: len(faces), FrameSeq: frame.Seq, At: start}
	outcome := outcomeNoFace
	if idx := model.LargestFace(faces); idx >= 0 {
		face := faces[idx]
		g := w.deps.Gallery.Load()
		if g.Len() > 0 && len(face.Embedding) != g.Dim() {
			w.logger.Debug(ctx, "embedding dimension mismatch",
				logger.Int("query", len(face.Embedding)),
				logger.Int("gallery", g.Dim()),
			)
		}
		res.Match = w.deps.Matcher.Match(face.Embedding, g)
		box := face.Box
		res.Box = &box
		metrics.RecordMatchConfidence(ch, res.Match.Score)
		outcome = outcomeUnknown
		if res.Match.Known {
			outcome = outcomeKnown
		}
	} else {
		res.Match = model.Unmatched(0, 0)
	}
	metrics.RecordMatchOutcome(ch, outcome)

	var ev *model.AttendanceEvent
	if res.Match.Known {
		ev, err = w.deps.Recorder.Record(ctx, res.Match.Identity, w.channel, res.Match.Score, w.clock.Now())
		if err != nil {
			metrics.RecordErrorByComponent("worker", "ledger")
			w.logger.Error(ctx, "ledger record failed",
				logger.String("identity", res.Match.Identity),
				logger.Error(err),
			)
			w.setError(err)
		}
	}

	// Pacing covers the whole iteration, including the ledger write.
	elapsed := w.clock.Now().Sub(start)
	w.pacer.Observe(elapsed)
	res.ProcessingMs = float64(elapsed.Microseconds()) / 1000

	w.mu.Lock()
	w.processed++
	w.lastResult = &res
	if ev != nil {
		w.lastEvent = ev
	}
	w.updatedAt = w.clock.Now()
	w.mu.Unlock()
	metrics.RecordFrameProcessed(ch)
}

// wait pauses for d on the worker clock. It returns false when stopped.
func (w *Worker) wait(ctx context.Context, shutdown <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return !stopping(ctx, shutdown)
	}
	select {
	case <-w.clock.After(d):
		return true
	case <-shutdown:
		return false
	case <-ctx.Done():
		return false
	}
}

func stopping(ctx context.Context, shutdown <-chan struct{}) bool {
	select {
	case <-shutdown:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Stop signals the loop and waits up to the stop timeout for it to exit.
// Stopping a stopped worker is a no-op.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case Stopped:
		w.mu.Unlock()
		return nil
	case Running:
		w.setStateLocked(Stopping)
		close(w.shutdown)
		w.cancel()
	}
	done := w.done
	w.mu.Unlock()

	timer := time.NewTimer(w.stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		w.logger.Warn(ctx, "stop timed out", logger.Duration("timeout", w.stopTimeout))
		return fmt.Errorf("%w: %s after %s", ErrStopTimeout, w.channel, w.stopTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrStopTimeout, w.channel, ctx.Err())
	}
}

// Done is closed when the current run ends. It is nil before the first Start.
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// State returns the lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Running reports whether the loop is active and not stopping.
func (w *Worker) Running() bool { return w.State() == Running }

// Status returns a snapshot for the API.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := Status{
		Channel:         w.channel,
		Source:          w.source.ID(),
		State:           w.state.String(),
		Running:         w.state == Running,
		FramesRead:      w.framesRead,
		FramesProcessed: w.processed,
		UpdatedAt:       w.updatedAt,
	}
	if w.lastResult != nil {
		r := *w.lastResult
		st.LastResult = &r
	}
	if w.lastEvent != nil {
		e := *w.lastEvent
		st.LastEvent = &e
	}
	if w.lastErr != nil {
		st.LastError = w.lastErr.Error()
	}
	return st
}

// LatestResult returns the last processed frame's result.
func (w *Worker) LatestResult() (Result, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastResult == nil {
		return Result{}, false
	}
	return *w.lastResult, true
}

// LatestFrame returns the most recent frame read.
func (w *Worker) LatestFrame() (model.Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lastFrame == nil {
		return model.Frame{}, false
	}
	return *w.lastFrame, true
}

// LastError returns the last failure seen by the loop, if any.
func (w *Worker) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Worker) setError(err error) {
	w.mu.Lock()
	w.lastErr = err
	w.updatedAt = w.clock.Now()
	w.mu.Unlock()
}

// setStateLocked updates state and its metrics. Callers hold w.mu.
func (w *Worker) setStateLocked(s State) {
	w.state = s
	w.updatedAt = w.clock.Now()
	metrics.UpdateChannelRunning(w.channel.String(), s == Running)
	metrics.RecordChannelState(w.channel.String(), s.String())
}
