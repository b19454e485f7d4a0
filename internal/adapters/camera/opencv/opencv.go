// Package opencv captures frames from local devices, video files and network
// streams through gocv.
package opencv

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/okian/facegate/internal/adapters/camera"
	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/pkg/logger"
)

type result struct {
	img image.Image
	at  time.Time
	err error
}

// Source reads from a gocv.VideoCapture on its own goroutine and keeps only
// the newest frame, so a slow consumer never works on stale images.
type Source struct {
	id  string
	log logger.Logger

	mu      sync.Mutex
	capture *gocv.VideoCapture
	latest  chan result
	done    chan struct{}
	seq     uint64
}

// New creates a source for a device index ("0"), a file path or a stream URL.
func New(id string) *Source {
	return &Source{id: id, log: logger.Get().Named("opencv")}
}

// Factory adapts New to camera.Factory.
func Factory(spec string) (camera.Source, error) {
	return New(spec), nil
}

// Open opens the capture device and starts the reader goroutine.
func (s *Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(s.id)
	if err != nil {
		return fmt.Errorf("open capture %s: %w", s.id, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return fmt.Errorf("open capture %s: device not opened", s.id)
	}

	s.capture = vc
	s.latest = make(chan result, 1)
	s.done = make(chan struct{})
	go s.pump(vc, s.latest, s.done)
	s.log.Info(ctx, "capture opened", logger.String("source", s.id))
	return nil
}

// pump owns vc and closes it on exit, so Close never waits on a blocked read.
func (s *Source) pump(vc *gocv.VideoCapture, out chan result, done <-chan struct{}) {
	mat := gocv.NewMat()
	defer func() {
		_ = mat.Close()
		if err := vc.Close(); err != nil {
			s.log.Warn(context.Background(), "capture close failed", logger.String("source", s.id), logger.Error(err))
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}

		var r result
		if ok := vc.Read(&mat); !ok || mat.Empty() {
			r.err = camera.ErrEndOfStream
		} else if img, err := mat.ToImage(); err != nil {
			r.err = fmt.Errorf("convert frame: %w", err)
		} else {
			r.img, r.at = img, time.Now()
		}

		// replace whatever the consumer has not taken yet
		select {
		case <-out:
		default:
		}
		select {
		case out <- r:
		case <-done:
			return
		}

		if r.err != nil {
			// a failing device returns immediately; avoid spinning
			select {
			case <-time.After(100 * time.Millisecond):
			case <-done:
				return
			}
		}
	}
}

// Read waits for the newest frame or ctx.
func (s *Source) Read(ctx context.Context) (model.Frame, error) {
	s.mu.Lock()
	latest, done := s.latest, s.done
	s.mu.Unlock()
	if latest == nil {
		return model.Frame{}, camera.ErrNotOpen
	}

	select {
	case r := <-latest:
		if r.err != nil {
			return model.Frame{}, r.err
		}
		s.mu.Lock()
		s.seq++
		seq := s.seq
		s.mu.Unlock()
		return model.Frame{Seq: seq, CapturedAt: r.at, Image: r.img}, nil
	case <-done:
		return model.Frame{}, camera.ErrClosed
	case <-ctx.Done():
		return model.Frame{}, ctx.Err()
	}
}

// Close signals the reader goroutine, which releases the device once its
// current read returns.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture == nil {
		return nil
	}
	close(s.done)
	s.capture = nil
	return nil
}

// ID returns the device spec.
func (s *Source) ID() string { return s.id }
