package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/facette/natsort"

	"github.com/okian/facegate/internal/domain/model"
)

// SchemeReplay prefixes ids served by a Replay source.
const SchemeReplay = "replay"

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true, ".tif": true, ".tiff": true}

// Replay plays a directory of still images as a camera feed, in natural
// filename order. It reports ErrEndOfStream after the last image unless
// looping.
type Replay struct {
	mu     sync.Mutex
	dir    string
	loop   bool
	files  []string
	next   int
	seq    uint64
	open   bool
	closed bool
}

// ReplayOption configures a Replay source.
type ReplayOption func(*Replay)

// WithLoop restarts from the first image after the last.
func WithLoop(loop bool) ReplayOption {
	return func(r *Replay) { r.loop = loop }
}

// NewReplay creates a source over dir. A "?loop" suffix enables looping.
func NewReplay(dir string, opts ...ReplayOption) *Replay {
	r := &Replay{dir: dir}
	if d, ok := strings.CutSuffix(dir, "?loop"); ok {
		r.dir, r.loop = d, true
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open lists the directory. An empty directory is not an error; the first
// Read reports end of stream.
func (r *Replay) Open(_ context.Context) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("replay %s: %w", r.dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, e.Name())
	}
	natsort.Sort(files)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.files, r.next, r.open, r.closed = files, 0, true, false
	return nil
}

// Read decodes the next image.
func (r *Replay) Read(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.closed:
		return model.Frame{}, ErrClosed
	case !r.open:
		return model.Frame{}, ErrNotOpen
	}
	if r.next >= len(r.files) {
		if !r.loop || len(r.files) == 0 {
			return model.Frame{}, ErrEndOfStream
		}
		r.next = 0
	}
	path := filepath.Join(r.dir, r.files[r.next])
	r.next++

	img, err := imaging.Open(path)
	if err != nil {
		return model.Frame{}, fmt.Errorf("decode %s: %w", path, err)
	}
	r.seq++
	return model.Frame{Seq: r.seq, CapturedAt: time.Now(), Image: img}, nil
}

// Close stops the source.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// ID returns the replay id.
func (r *Replay) ID() string { return SchemeReplay + ":" + r.dir }

// Len is the number of images found by Open.
func (r *Replay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// Static is an in-memory source that serves a fixed list of images. It is
// used by on-demand detection and tests.
type Static struct {
	mu     sync.Mutex
	id     string
	images []image.Image
	next   int
	seq    uint64
}

// NewStatic creates a finite source over images.
func NewStatic(id string, images ...image.Image) *Static {
	return &Static{id: id, images: images}
}

// Open is a no-op.
func (s *Static) Open(context.Context) error { return nil }

// Read returns the next image or ErrEndOfStream.
func (s *Static) Read(ctx context.Context) (model.Frame, error) {
	if err := ctx.Err(); err != nil {
		return model.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.images) {
		return model.Frame{}, ErrEndOfStream
	}
	img := s.images[s.next]
	s.next++
	s.seq++
	return model.Frame{Seq: s.seq, CapturedAt: time.Now(), Image: img}, nil
}

// Close is a no-op.
func (s *Static) Close() error { return nil }

// ID returns the id given to NewStatic.
func (s *Static) ID() string { return s.id }
