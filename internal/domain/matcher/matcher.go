// Package matcher maps a query embedding to the nearest enrolled identity.
package matcher

import (
	"math"

	"github.com/okian/facegate/internal/domain/gallery"
	"github.com/okian/facegate/internal/domain/model"
	"gonum.org/v1/gonum/floats"
)

// DefaultThreshold is the minimum confidence for a known identity.
const DefaultThreshold = 0.6

// Matcher is a nearest-neighbour classifier over a gallery snapshot.
// It holds no mutable state and is safe for concurrent use.
type Matcher struct {
	threshold float64
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThreshold sets the confidence threshold. Values outside (0,1] are ignored.
func WithThreshold(t float64) Option {
	return func(m *Matcher) {
		if t > 0 && t <= 1 {
			m.threshold = t
		}
	}
}

// New creates a Matcher.
func New(opts ...Option) *Matcher {
	m := &Matcher{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Threshold returns the configured confidence threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Match returns the closest identity in g for query. An empty gallery or a
// query of the wrong dimension yields Unknown with score 0 and distance 0.
// Below the threshold the result is Unknown but keeps the best score and
// distance. Equal distances
// resolve to the identity seen first in gallery order.
func (m *Matcher) Match(query []float64, g *gallery.Gallery) model.MatchResult {
	if g.Len() == 0 || len(query) == 0 || len(query) != g.Dim() {
		return model.Unmatched(0, 0)
	}

	best := math.Inf(1)
	bestID := model.Unknown
	g.Range(func(identity string, emb []float64) bool {
		if d := floats.Distance(query, emb, 2); d < best {
			best, bestID = d, identity
		}
		return true
	})
	if bestID == model.Unknown {
		// only NaN distances; nothing comparable
		return model.Unmatched(0, 0)
	}

	score := Confidence(best)
	if score < m.threshold {
		return model.Unmatched(score, best)
	}
	return model.Matched(bestID, score, best)
}

// Confidence maps a Euclidean distance to [0,1]: 1 - min(d, 1).
func Confidence(distance float64) float64 {
	if math.IsNaN(distance) || distance < 0 {
		return 0
	}
	return 1 - math.Min(distance, 1)
}
