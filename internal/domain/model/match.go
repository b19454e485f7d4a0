package model

import (
	"image"
	"time"
)

// Unknown is the identity of a query that matched nobody.
const Unknown = ""

// MatchResult is the matcher's verdict for one query embedding.
type MatchResult struct {
	Identity    string  `json:"identity"`
	Known       bool    `json:"known"`
	Score       float64 `json:"score"`
	RawDistance float64 `json:"raw_distance"`
}

// Matched builds a result for a known identity.
func Matched(identity string, score, distance float64) MatchResult {
	return MatchResult{Identity: identity, Known: true, Score: score, RawDistance: distance}
}

// Unmatched builds an Unknown result that still carries the best score seen.
func Unmatched(score, distance float64) MatchResult {
	return MatchResult{Identity: Unknown, Score: score, RawDistance: distance}
}

// Label is the identity, or "unknown".
func (m MatchResult) Label() string {
	if !m.Known {
		return "unknown"
	}
	return m.Identity
}

// Box is a face bounding box in pixel coordinates.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Area is the box's pixel area; degenerate boxes have zero area.
func (b Box) Area() int {
	w, h := b.Right-b.Left, b.Bottom-b.Top
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Scale multiplies every coordinate by f.
func (b Box) Scale(f float64) Box {
	return Box{
		Top:    int(float64(b.Top) * f),
		Right:  int(float64(b.Right) * f),
		Bottom: int(float64(b.Bottom) * f),
		Left:   int(float64(b.Left) * f),
	}
}

// Face is one detection: a box and its embedding.
type Face struct {
	Box       Box       `json:"box"`
	Embedding []float64 `json:"embedding"`
}

// LargestFace returns the index of the face with the largest box, or -1.
// Ties keep the earlier face.
func LargestFace(faces []Face) int {
	best, bestArea := -1, -1
	for i, f := range faces {
		if a := f.Box.Area(); a > bestArea {
			best, bestArea = i, a
		}
	}
	return best
}

// FaceMatch pairs a detected face with its match result.
type FaceMatch struct {
	Box     Box         `json:"box"`
	Match   MatchResult `json:"match"`
	Subject bool        `json:"subject"`
}

// Frame is one image pulled from a channel source.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Image      image.Image
}
