// Package camera defines frame sources and resolves source ids to them.
//
// A source id is either a bare device spec handled by the default factory
// ("0", "rtsp://...", "/path/video.mp4") or "scheme:rest" for a registered
// scheme such as "replay:/path/to/frames".
package camera

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/okian/facegate/internal/domain/model"
)

// Source yields frames for one channel. Read may block until a frame is
// available and must return when ctx is done.
type Source interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (model.Frame, error)
	Close() error
	ID() string
}

// Factory builds a source from the part of the id after the scheme.
type Factory func(spec string) (Source, error)

// Resolver maps source ids to factories.
type Resolver struct {
	mu        sync.RWMutex
	factories map[string]Factory
	fallback  Factory
}

// NewResolver returns a resolver with the replay scheme registered.
func NewResolver() *Resolver {
	r := &Resolver{factories: make(map[string]Factory)}
	r.Register(SchemeReplay, func(spec string) (Source, error) {
		return NewReplay(spec), nil
	})
	return r
}

// Register binds scheme to f, replacing any earlier binding.
func (r *Resolver) Register(scheme string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(scheme)] = f
}

// SetDefault sets the factory for ids without a registered scheme.
func (r *Resolver) SetDefault(f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = f
}

// Resolve builds the source for id.
func (r *Resolver) Resolve(id string) (Source, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptySource
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if scheme, rest, ok := strings.Cut(id, ":"); ok {
		if f, found := r.factories[strings.ToLower(scheme)]; found {
			return f(rest)
		}
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoFactory, id)
	}
	return r.fallback(id)
}
