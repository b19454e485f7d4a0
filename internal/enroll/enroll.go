// Package enroll builds a gallery from a directory of labelled face images.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/okian/facegate/internal/domain/gallery"
	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/pkg/logger"
)

// Detector finds faces and their embeddings in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]model.Face, error)
}

// Progress is advanced once per processed image.
type Progress interface {
	Add(n int) error
}

// Report counts what happened to each image.
type Report struct {
	Images     int `json:"images"`
	Enrolled   int `json:"enrolled"`
	NoFace     int `json:"no_face"`
	Failed     int `json:"failed"`
	Identities int `json:"identities"`
}

// Enroller turns dataset images into gallery samples.
type Enroller struct {
	detector Detector
	mode     gallery.Mode
	progress Progress
	logger   logger.Logger
}

// Option configures an Enroller.
type Option func(*Enroller)

// WithMode sets the gallery mode of the result.
func WithMode(m gallery.Mode) Option {
	return func(e *Enroller) {
		if m != "" {
			e.mode = m
		}
	}
}

// WithProgress reports per-image progress to p.
func WithProgress(p Progress) Option {
	return func(e *Enroller) { e.progress = p }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Enroller) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Enroller that embeds faces with det.
func New(det Detector, opts ...Option) *Enroller {
	e := &Enroller{
		detector: det,
		mode:     gallery.ModeAll,
		logger:   logger.Get().Named("enroll"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run scans dir and enrolls every image's largest face. Images without a
// face or that fail to decode are counted and skipped.
func (e *Enroller) Run(ctx context.Context, dir string) (*gallery.Gallery, Report, error) {
	samples, err := Scan(dir)
	if err != nil {
		return nil, Report{}, err
	}
	if len(samples) == 0 {
		return nil, Report{}, fmt.Errorf("%w: %s", ErrNoImages, dir)
	}
	return e.Enroll(ctx, samples)
}

// Enroll embeds samples in order.
func (e *Enroller) Enroll(ctx context.Context, samples []Sample) (*gallery.Gallery, Report, error) {
	b := gallery.NewBuilder(e.mode)
	rep := Report{Images: len(samples)}

	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		log := e.logger.With(logger.String("identity", s.Identity), logger.String("path", s.Path))

		emb, err := e.embed(ctx, s.Path)
		switch {
		case errors.Is(err, errNoFace):
			rep.NoFace++
			log.Warn(ctx, "no face found, skipping")
		case err != nil:
			if ctx.Err() != nil {
				return nil, rep, ctx.Err()
			}
			rep.Failed++
			log.Warn(ctx, "image skipped", logger.Error(err))
		default:
			if err := b.Add(s.Identity, emb); err != nil {
				rep.Failed++
				log.Warn(ctx, "sample rejected", logger.Error(err))
				break
			}
			rep.Enrolled++
		}
		e.advance()
	}

	rep.Identities = b.Len()
	if rep.Enrolled == 0 {
		return nil, rep, ErrNoFaces
	}
	e.logger.Info(ctx, "enrollment finished",
		logger.Int("images", rep.Images),
		logger.Int("enrolled", rep.Enrolled),
		logger.Int("no_face", rep.NoFace),
		logger.Int("failed", rep.Failed),
		logger.Int("identities", rep.Identities),
	)
	return b.Build(), rep, nil
}

var errNoFace = errors.New("no face")

func (e *Enroller) embed(ctx context.Context, path string) ([]float64, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	faces, err := e.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	i := model.LargestFace(faces)
	if i < 0 {
		return nil, errNoFace
	}
	return faces[i].Embedding, nil
}

func (e *Enroller) advance() {
	if e.progress != nil {
		_ = e.progress.Add(1)
	}
}
