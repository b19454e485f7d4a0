// Package debounce turns a noisy per-frame match stream into discrete events.
//
// Policies are not safe for concurrent use on their own. The ledger calls them
// under its mutex.
package debounce

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/facegate/internal/domain/model"
)

// Policy names accepted by New.
const (
	PolicyCooldown = "cooldown"
	PolicySession  = "session"
)

// DefaultWindow is the cooldown window when none is configured.
const DefaultWindow = 60 * time.Second

// Key identifies one debounce slot.
type Key struct {
	Identity string
	Channel  model.Channel
}

func (k Key) String() string { return k.Identity + "/" + k.Channel.String() }

// Policy decides whether a match should reach the ledger.
type Policy interface {
	// Suppressed reports whether key must be ignored at now.
	Suppressed(key Key, now time.Time) bool
	// Observe updates state after a non-suppressed match. recorded is true
	// when the match changed the ledger.
	Observe(key Key, now time.Time, recorded bool)
	// Prune drops state that can no longer suppress anything and returns
	// how many keys were removed.
	Prune(now time.Time) int
	// Name is the policy name used in config and logs.
	Name() string
}

// New builds the named policy.
func New(name string, opts ...Option) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyCooldown:
		return NewCooldown(opts...), nil
	case PolicySession:
		return NewSession(opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// Cooldown suppresses a key for a fixed window after its last observation.
type Cooldown struct {
	window time.Duration
	last   map[Key]time.Time
}

// NewCooldown creates a cooldown policy. WithWindow overrides DefaultWindow.
func NewCooldown(opts ...Option) *Cooldown {
	o := applyOptions(opts)
	return &Cooldown{window: o.window, last: make(map[Key]time.Time)}
}

// Suppressed reports whether now falls within the window of the last observation.
func (c *Cooldown) Suppressed(key Key, now time.Time) bool {
	last, ok := c.last[key]
	return ok && now.Sub(last) < c.window
}

// Observe restarts the window for key whether or not the ledger changed.
func (c *Cooldown) Observe(key Key, now time.Time, _ bool) {
	c.last[key] = now
}

// Prune removes keys whose window has elapsed.
func (c *Cooldown) Prune(now time.Time) int {
	n := 0
	for k, last := range c.last {
		if now.Sub(last) >= c.window {
			delete(c.last, k)
			n++
		}
	}
	return n
}

// Window returns the configured window.
func (c *Cooldown) Window() time.Duration { return c.window }

// Name returns PolicyCooldown.
func (c *Cooldown) Name() string { return PolicyCooldown }

// Session allows one recorded event per key per calendar day.
type Session struct {
	marks map[Key]string
}

// NewSession creates a once-per-day policy.
func NewSession(_ ...Option) *Session {
	return &Session{marks: make(map[Key]string)}
}

// Suppressed reports whether key already recorded on now's date.
func (s *Session) Suppressed(key Key, now time.Time) bool {
	return s.marks[key] == now.Format(model.DateLayout)
}

// Observe marks key for today only when the ledger recorded something, so an
// exit seen before the entry does not block the real exit later.
func (s *Session) Observe(key Key, now time.Time, recorded bool) {
	if recorded {
		s.marks[key] = now.Format(model.DateLayout)
	}
}

// Prune removes marks from previous days.
func (s *Session) Prune(now time.Time) int {
	today := now.Format(model.DateLayout)
	n := 0
	for k, d := range s.marks {
		if d != today {
			delete(s.marks, k)
			n++
		}
	}
	return n
}

// Name returns PolicySession.
func (s *Session) Name() string { return PolicySession }
