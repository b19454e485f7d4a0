package ledger

import (
	"time"

	"github.com/okian/facegate/internal/domain/debounce"
	"github.com/okian/facegate/pkg/logger"
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithLocation sets the zone that defines the calendar day.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithPolicy replaces the default cooldown policy.
func WithPolicy(p debounce.Policy) Option {
	return func(l *Ledger) {
		if p != nil {
			l.policy = p
		}
	}
}

// WithNotifier registers a sink for produced events.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) {
		l.notifier = n
	}
}

// WithBackendName labels persistence metrics and errors.
func WithBackendName(name string) Option {
	return func(l *Ledger) {
		if name != "" {
			l.backend = name
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}
