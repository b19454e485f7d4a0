package recognition_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/facegate/internal/adapters/camera"
	"github.com/okian/facegate/internal/domain/gallery"
	"github.com/okian/facegate/internal/domain/ledger"
	"github.com/okian/facegate/internal/domain/matcher"
	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/internal/domain/pacing"
	"github.com/okian/facegate/internal/recognition"
	"github.com/okian/facegate/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

var errCamera = errors.New("camera unplugged")

type failingSource struct {
	reads  atomic.Int32
	closed atomic.Bool
}

func (s *failingSource) Open(context.Context) error { return nil }
func (s *failingSource) Read(context.Context) (model.Frame, error) {
	s.reads.Add(1)
	return model.Frame{}, errCamera
}
func (s *failingSource) Close() error { s.closed.Store(true); return nil }
func (s *failingSource) ID() string   { return "fail" }

type brokenSource struct{}

func (brokenSource) Open(context.Context) error                { return errCamera }
func (brokenSource) Read(context.Context) (model.Frame, error) { return model.Frame{}, errCamera }
func (brokenSource) Close() error                              { return nil }
func (brokenSource) ID() string                                { return "broken" }

// blockingSource serves frames forever until the read context ends.
type blockingSource struct{ seq atomic.Uint64 }

func (s *blockingSource) Open(context.Context) error { return nil }
func (s *blockingSource) Read(ctx context.Context) (model.Frame, error) {
	select {
	case <-ctx.Done():
		return model.Frame{}, ctx.Err()
	case <-time.After(time.Millisecond):
		return model.Frame{Seq: s.seq.Add(1), CapturedAt: time.Now(), Image: image.NewGray(image.Rect(0, 0, 4, 4))}, nil
	}
}
func (s *blockingSource) Close() error { return nil }
func (s *blockingSource) ID() string   { return "blocking" }

type fakeDetector struct {
	mu    sync.Mutex
	faces []model.Face
	err   error
	calls int
}

func (d *fakeDetector) Detect(context.Context, image.Image) ([]model.Face, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	return d.faces, d.err
}

func (d *fakeDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func frames(n int) []image.Image {
	out := make([]image.Image, n)
	for i := range out {
		out[i] = image.NewGray(image.Rect(0, 0, 8, 8))
	}
	return out
}

func deps(det recognition.Detector, l *ledger.Ledger) recognition.Deps {
	b := gallery.NewBuilder(gallery.ModeAll)
	_ = b.Add("alice", []float64{0, 0})
	return recognition.Deps{
		Detector: det,
		Matcher:  matcher.New(),
		Gallery:  gallery.NewHolder(b.Build()),
		Recorder: l,
	}
}

func fastOpts(extra ...recognition.Option) []recognition.Option {
	opts := []recognition.Option{
		recognition.WithRetryBackoff(time.Millisecond),
		recognition.WithReadTimeout(50 * time.Millisecond),
		recognition.WithStopTimeout(time.Second),
		recognition.WithPacer(pacing.New(pacing.WithTargetPeriod(time.Millisecond), pacing.WithMinSleep(0))),
	}
	return append(opts, extra...)
}

func waitDone(w *recognition.Worker) bool {
	select {
	case <-w.Done():
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestWorkerReadFailures(t *testing.T) {
	Convey("Given a worker whose source always fails", t, func() {
		src := &failingSource{}
		l := ledger.New(nil, ledger.WithLocation(time.UTC))
		w := recognition.NewWorker(model.Entry, src, deps(&fakeDetector{}, l), fastOpts()...)

		So(w.Start(context.Background()), ShouldBeNil)

		Convey("Then the loop should stop after three consecutive failures", func() {
			So(waitDone(w), ShouldBeTrue)
			So(src.reads.Load(), ShouldEqual, 3)
			So(src.closed.Load(), ShouldBeTrue)

			st := w.Status()
			So(st.Running, ShouldBeFalse)
			So(st.State, ShouldEqual, "stopped")
			So(st.LastError, ShouldContainSubstring, "camera unplugged")
		})

		Convey("And stopping afterwards should be a no-op", func() {
			So(waitDone(w), ShouldBeTrue)
			So(w.Stop(context.Background()), ShouldBeNil)
			So(w.Stop(context.Background()), ShouldBeNil)
		})
	})
}

// captureLogger keeps every message with the fields bound through With.
type captureLogger struct {
	mu     *sync.Mutex
	lines  *[]string
	fields []logger.Field
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{mu: &sync.Mutex{}, lines: &[]string{}}
}

func (c *captureLogger) add(level, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	line := level + " " + msg
	for _, f := range c.fields {
		line += " " + f.Key + "=" + fmt.Sprint(f.Value)
	}
	*c.lines = append(*c.lines, line)
}

func (c *captureLogger) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), *c.lines...)
}

func (c *captureLogger) Info(_ context.Context, msg string, _ ...logger.Field)  { c.add("info", msg) }
func (c *captureLogger) Error(_ context.Context, msg string, _ ...logger.Field) { c.add("error", msg) }
func (c *captureLogger) Debug(_ context.Context, msg string, _ ...logger.Field) { c.add("debug", msg) }
func (c *captureLogger) Warn(_ context.Context, msg string, _ ...logger.Field)  { c.add("warn", msg) }
func (c *captureLogger) Fatal(_ context.Context, msg string, _ ...logger.Field) { c.add("fatal", msg) }
func (c *captureLogger) Named(string) logger.Logger                             { return c }
func (c *captureLogger) With(fields ...logger.Field) logger.Logger {
	return &captureLogger{mu: c.mu, lines: c.lines, fields: append(append([]logger.Field(nil), c.fields...), fields...)}
}

func TestWorkerLogger(t *testing.T) {
	Convey("Given a worker with its own logger", t, func() {
		log := newCaptureLogger()
		l := ledger.New(nil)
		w := recognition.NewWorker(model.Exit, &failingSource{}, deps(&fakeDetector{}, l),
			fastOpts(recognition.WithLogger(log))...)

		So(w.Start(context.Background()), ShouldBeNil)
		So(waitDone(w), ShouldBeTrue)

		Convey("Then the lifecycle should be logged there with the channel bound", func() {
			out := strings.Join(log.Lines(), "\n")
			So(out, ShouldContainSubstring, "info channel started channel=exit source=fail")
			So(out, ShouldContainSubstring, "warn frame read failed channel=exit")
			So(out, ShouldContainSubstring, "error too many read failures, stopping channel channel=exit")
		})
	})

	Convey("Given a nil logger option", t, func() {
		w := recognition.NewWorker(model.Entry, &failingSource{}, deps(&fakeDetector{}, ledger.New(nil)),
			fastOpts(recognition.WithLogger(nil))...)

		Convey("Then the default logger should be used", func() {
			So(w.Start(context.Background()), ShouldBeNil)
			So(waitDone(w), ShouldBeTrue)
		})
	})
}

func TestWorkerStart(t *testing.T) {
	Convey("Given a worker whose source cannot open", t, func() {
		l := ledger.New(nil)
		w := recognition.NewWorker(model.Exit, brokenSource{}, deps(&fakeDetector{}, l), fastOpts()...)

		err := w.Start(context.Background())

		Convey("Then start should fail naming the channel", func() {
			So(errors.Is(err, recognition.ErrSourceUnavailable), ShouldBeTrue)
			So(errors.Is(err, errCamera), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "exit")
			So(w.State(), ShouldEqual, recognition.Stopped)
		})
	})

	Convey("Given a running worker", t, func() {
		l := ledger.New(nil)
		w := recognition.NewWorker(model.Entry, &blockingSource{}, deps(&fakeDetector{}, l), fastOpts()...)
		So(w.Start(context.Background()), ShouldBeNil)
		defer func() { _ = w.Stop(context.Background()) }()

		Convey("When starting it again", func() {
			err := w.Start(context.Background())
			So(errors.Is(err, recognition.ErrAlreadyRunning), ShouldBeTrue)
		})

		Convey("When the start context is cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			w2 := recognition.NewWorker(model.Exit, &blockingSource{}, deps(&fakeDetector{}, l), fastOpts()...)
			So(w2.Start(ctx), ShouldBeNil)
			cancel()
			time.Sleep(20 * time.Millisecond)

			Convey("Then the loop should keep running until stopped", func() {
				So(w2.Running(), ShouldBeTrue)
				So(w2.Stop(context.Background()), ShouldBeNil)
				So(w2.Running(), ShouldBeFalse)
			})
		})
	})
}

func TestWorkerStop(t *testing.T) {
	Convey("Given a worker blocked on a slow source", t, func() {
		l := ledger.New(nil)
		w := recognition.NewWorker(model.Entry, &blockingSource{}, deps(&fakeDetector{}, l),
			fastOpts(recognition.WithReadTimeout(time.Hour))...)
		So(w.Start(context.Background()), ShouldBeNil)
		time.Sleep(10 * time.Millisecond)

		Convey("When stopping", func() {
			start := time.Now()
			err := w.Stop(context.Background())

			Convey("Then the read should be woken promptly", func() {
				So(err, ShouldBeNil)
				So(time.Since(start), ShouldBeLessThan, time.Second)
				So(w.State(), ShouldEqual, recognition.Stopped)
			})

			Convey("And the worker can be started again", func() {
				So(w.Start(context.Background()), ShouldBeNil)
				So(w.Stop(context.Background()), ShouldBeNil)
			})
		})
	})
}

func TestWorkerRecognition(t *testing.T) {
	Convey("Given a worker whose detector always sees alice", t, func() {
		det := &fakeDetector{faces: []model.Face{
			{Box: model.Box{Top: 0, Right: 2, Bottom: 2, Left: 0}, Embedding: []float64{5, 5}},
			{Box: model.Box{Top: 0, Right: 10, Bottom: 10, Left: 0}, Embedding: []float64{0.05, 0}},
		}}
		l := ledger.New(nil, ledger.WithLocation(time.UTC))
		src := camera.NewStatic("static", frames(10)...)
		w := recognition.NewWorker(model.Entry, src, deps(det, l), fastOpts(recognition.WithStride(5))...)

		So(w.Start(context.Background()), ShouldBeNil)
		So(waitDone(w), ShouldBeTrue)

		Convey("Then every fifth frame should be processed", func() {
			st := w.Status()
			So(st.FramesRead, ShouldEqual, 10)
			So(st.FramesProcessed, ShouldEqual, 2)
			So(det.Calls(), ShouldEqual, 2)
		})

		Convey("And the largest face should be matched and recorded once", func() {
			res, ok := w.LatestResult()
			So(ok, ShouldBeTrue)
			So(res.Faces, ShouldEqual, 2)
			So(res.Match.Identity, ShouldEqual, "alice")
			So(res.Box.Right, ShouldEqual, 10)

			So(l.Len(), ShouldEqual, 1)
			st := w.Status()
			So(st.LastEvent, ShouldNotBeNil)
			So(st.LastEvent.Identity, ShouldEqual, "alice")
		})

		Convey("And the latest frame should be cached", func() {
			f, ok := w.LatestFrame()
			So(ok, ShouldBeTrue)
			So(f.Seq, ShouldEqual, 10)
		})
	})

	Convey("Given a detector that fails", t, func() {
		det := &fakeDetector{err: errors.New("model crashed")}
		l := ledger.New(nil)
		src := camera.NewStatic("static", frames(3)...)
		w := recognition.NewWorker(model.Exit, src, deps(det, l), fastOpts(recognition.WithStride(1))...)

		So(w.Start(context.Background()), ShouldBeNil)
		So(waitDone(w), ShouldBeTrue)

		Convey("Then the loop should keep going through every frame", func() {
			So(det.Calls(), ShouldEqual, 3)
			So(w.Status().FramesRead, ShouldEqual, 3)
		})
	})

	Convey("Given frames with no faces", t, func() {
		l := ledger.New(nil)
		src := camera.NewStatic("static", frames(1)...)
		w := recognition.NewWorker(model.Entry, src, deps(&fakeDetector{}, l), fastOpts(recognition.WithStride(1))...)

		So(w.Start(context.Background()), ShouldBeNil)
		So(waitDone(w), ShouldBeTrue)

		res, ok := w.LatestResult()
		So(ok, ShouldBeTrue)
		So(res.Faces, ShouldEqual, 0)
		So(res.Match.Known, ShouldBeFalse)
		So(l.Len(), ShouldEqual, 0)
	})
}

// slowRecorder takes delay per record, like a synchronous store write.
type slowRecorder struct{ delay time.Duration }

func (r slowRecorder) Record(_ context.Context, identity string, ch model.Channel, confidence float64, now time.Time) (*model.AttendanceEvent, error) {
	time.Sleep(r.delay)
	ev := model.NewAttendanceEvent(identity, ch, now, confidence)
	return &ev, nil
}

func TestWorkerPacing(t *testing.T) {
	Convey("Given a fast detector and a slow ledger write", t, func() {
		det := &fakeDetector{faces: []model.Face{
			{Box: model.Box{Top: 0, Right: 4, Bottom: 4, Left: 0}, Embedding: []float64{0, 0}},
		}}
		d := deps(det, nil)
		d.Recorder = slowRecorder{delay: 30 * time.Millisecond}
		pacer := pacing.New(pacing.WithTargetPeriod(time.Millisecond), pacing.WithMinSleep(0))
		w := recognition.NewWorker(model.Entry, camera.NewStatic("static", frames(2)...), d,
			fastOpts(recognition.WithStride(1), recognition.WithPacer(pacer))...)

		So(w.Start(context.Background()), ShouldBeNil)
		So(waitDone(w), ShouldBeTrue)

		Convey("Then the pacer should see the record time too", func() {
			So(det.Calls(), ShouldEqual, 2)
			So(pacer.Average(), ShouldBeGreaterThanOrEqualTo, 30*time.Millisecond)

			res, ok := w.LatestResult()
			So(ok, ShouldBeTrue)
			So(res.ProcessingMs, ShouldBeGreaterThanOrEqualTo, 30)
		})
	})
}
