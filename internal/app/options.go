package service

import (
	"github.com/okian/facegate/internal/adapters/camera"
	publisher "github.com/okian/facegate/internal/adapters/mq/worker"
	repository "github.com/okian/facegate/internal/adapters/repository"
	"github.com/okian/facegate/internal/domain/pacing"
	"github.com/okian/facegate/internal/recognition"
	"github.com/okian/facegate/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithResolver sets how source ids become camera sources.
// The default only understands replay: ids.
func WithResolver(r *camera.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithDetector replaces the HTTP detector client.
func WithDetector(d recognition.Detector) Option {
	return func(s *Service) {
		if d != nil {
			s.detector = d
		}
	}
}

// WithStore injects a ledger store. The caller keeps ownership of it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.ownStore = false
		}
	}
}

// WithPublisher enables notifications through p instead of MQTT.
func WithPublisher(p publisher.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock sets the clock used by workers and scheduled jobs.
func WithClock(c pacing.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
