// Package gallery holds the enrolled identities and their reference embeddings.
//
// A Gallery is immutable once built. Live matching reads it through a Holder,
// and reloads swap in a new snapshot atomically.
package gallery

import (
	"fmt"
	"strings"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
)

// Mode selects how multiple samples per identity are kept.
type Mode string

const (
	// ModeAll keeps every sample; matching takes the nearest one.
	ModeAll Mode = "all"
	// ModeMean collapses each identity to the centroid of its samples.
	ModeMean Mode = "mean"
)

// ParseMode accepts "all" or "mean".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAll:
		return ModeAll, nil
	case ModeMean:
		return ModeMean, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Entry is one identity with its reference embeddings.
type Entry struct {
	Identity   string      `json:"identity" msgpack:"identity"`
	Embeddings [][]float64 `json:"embeddings" msgpack:"embeddings"`
}

// Gallery is an ordered, read-only set of identities.
type Gallery struct {
	mode    Mode
	dim     int
	entries []Entry
}

// Empty returns a gallery with no identities.
func Empty() *Gallery { return &Gallery{mode: ModeAll} }

// Mode reports how the gallery was built.
func (g *Gallery) Mode() Mode { return g.mode }

// Dim is the embedding dimension, 0 for an empty gallery.
func (g *Gallery) Dim() int {
	if g == nil {
		return 0
	}
	return g.dim
}

// Len is the number of identities.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// Size is the number of reference embeddings across all identities.
func (g *Gallery) Size() int {
	if g == nil {
		return 0
	}
	n := 0
	for _, e := range g.entries {
		n += len(e.Embeddings)
	}
	return n
}

// Identities lists identities in gallery order.
func (g *Gallery) Identities() []string {
	if g == nil {
		return nil
	}
	out := make([]string, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.Identity
	}
	return out
}

// Samples returns the number of embeddings held for identity.
func (g *Gallery) Samples(identity string) int {
	if g == nil {
		return 0
	}
	for _, e := range g.entries {
		if e.Identity == identity {
			return len(e.Embeddings)
		}
	}
	return 0
}

// Range calls fn for every (identity, embedding) pair in gallery order until fn
// returns false. The embedding must not be modified.
func (g *Gallery) Range(fn func(identity string, embedding []float64) bool) {
	if g == nil {
		return
	}
	for _, e := range g.entries {
		for _, emb := range e.Embeddings {
			if !fn(e.Identity, emb) {
				return
			}
		}
	}
}

// Entries returns a deep copy of the gallery contents, for encoding.
func (g *Gallery) Entries() []Entry {
	if g == nil {
		return nil
	}
	out := make([]Entry, len(g.entries))
	for i, e := range g.entries {
		embs := make([][]float64, len(e.Embeddings))
		for j, emb := range e.Embeddings {
			embs[j] = append([]float64(nil), emb...)
		}
		out[i] = Entry{Identity: e.Identity, Embeddings: embs}
	}
	return out
}

// Builder accumulates samples in enrollment order.
type Builder struct {
	mode    Mode
	dim     int
	order   []string
	samples map[string][][]float64
}

// NewBuilder starts an empty gallery in the given mode.
func NewBuilder(mode Mode) *Builder {
	if mode == "" {
		mode = ModeAll
	}
	return &Builder{mode: mode, samples: make(map[string][][]float64)}
}

// Add appends a sample for identity. The first sample fixes the dimension.
func (b *Builder) Add(identity string, embedding []float64) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ErrEmptyIdentity
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyEmbedding, identity)
	}
	if b.dim == 0 {
		b.dim = len(embedding)
	} else if len(embedding) != b.dim {
		return fmt.Errorf("%w: %s has %d, gallery has %d", ErrDimensionMismatch, identity, len(embedding), b.dim)
	}
	if _, ok := b.samples[identity]; !ok {
		b.order = append(b.order, identity)
	}
	b.samples[identity] = append(b.samples[identity], append([]float64(nil), embedding...))
	return nil
}

// Len is the number of identities added so far.
func (b *Builder) Len() int { return len(b.order) }

// Build freezes the builder into a Gallery. In ModeMean each identity keeps
// only its centroid.
func (b *Builder) Build() *Gallery {
	g := &Gallery{mode: b.mode, dim: b.dim, entries: make([]Entry, 0, len(b.order))}
	for _, id := range b.order {
		samples := b.samples[id]
		if b.mode == ModeMean && len(samples) > 1 {
			samples = [][]float64{centroid(samples, b.dim)}
		}
		g.entries = append(g.entries, Entry{Identity: id, Embeddings: samples})
	}
	return g
}

func centroid(samples [][]float64, dim int) []float64 {
	c := make([]float64, dim)
	for _, s := range samples {
		floats.Add(c, s)
	}
	floats.Scale(1/float64(len(samples)), c)
	return c
}

// FromEntries builds a gallery from decoded entries, keeping their order.
func FromEntries(mode Mode, entries []Entry) (*Gallery, error) {
	b := NewBuilder(mode)
	for _, e := range entries {
		for _, emb := range e.Embeddings {
			if err := b.Add(e.Identity, emb); err != nil {
				return nil, err
			}
		}
	}
	return b.Build(), nil
}

// Holder publishes the active gallery snapshot to concurrent readers.
type Holder struct {
	p atomic.Pointer[Gallery]
}

// NewHolder starts with g, or an empty gallery when g is nil.
func NewHolder(g *Gallery) *Holder {
	h := &Holder{}
	h.Swap(g)
	return h
}

// Load returns the current snapshot. It is never nil.
func (h *Holder) Load() *Gallery {
	return h.p.Load()
}

// Swap installs g and returns the previous snapshot.
func (h *Holder) Swap(g *Gallery) *Gallery {
	if g == nil {
		g = Empty()
	}
	return h.p.Swap(g)
}
