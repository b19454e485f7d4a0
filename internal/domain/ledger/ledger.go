// Package ledger keeps the per-day attendance records and decides which
// matches become attendance events.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/facegate/internal/domain/debounce"
	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/pkg/logger"
	"github.com/okian/facegate/pkg/metrics"
)

// Store persists the full set of day records.
type Store interface {
	Load(ctx context.Context) ([]model.DayRecord, error)
	Save(ctx context.Context, records []model.DayRecord) error
}

// Notifier receives events after they are committed. It must not block.
type Notifier interface {
	Notify(ctx context.Context, ev model.AttendanceEvent)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev model.AttendanceEvent)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, ev model.AttendanceEvent) { f(ctx, ev) }

// Filter narrows a Snapshot. Zero fields match everything.
type Filter struct {
	Date     string
	Identity string
}

func (f Filter) match(r *model.DayRecord) bool {
	return (f.Date == "" || r.Date == f.Date) && (f.Identity == "" || r.Identity == f.Identity)
}

type recordKey struct {
	identity string
	date     string
}

// Ledger is the single owner of attendance state. All methods are safe for
// concurrent use and serialize on one mutex.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	policy   debounce.Policy
	loc      *time.Location
	notifier Notifier
	backend  string
	log      logger.Logger

	records map[recordKey]*model.DayRecord
	dirty   bool
}

// New creates an empty ledger over store. A nil store keeps records in memory only.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:   store,
		policy:  debounce.NewCooldown(),
		loc:     time.Local,
		backend: "memory",
		records: make(map[recordKey]*model.DayRecord),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = logger.Get().Named("ledger")
	}
	return l
}

// Load replaces the in-memory records with the store's contents.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	recs, err := l.store.Load(ctx)
	if err != nil {
		return &PersistenceError{Backend: l.backend, Err: err}
	}

	loaded := make(map[recordKey]*model.DayRecord, len(recs))
	for i := range recs {
		r := recs[i].Clone()
		if strings.TrimSpace(r.Identity) == "" {
			return fmt.Errorf("%w: empty identity on %s", ErrInvalidRecord, r.Date)
		}
		if _, err := time.Parse(model.DateLayout, r.Date); err != nil {
			return fmt.Errorf("%w: %s: bad date %q", ErrInvalidRecord, r.Identity, r.Date)
		}
		loaded[recordKey{identity: r.Identity, date: r.Date}] = &r
	}

	l.mu.Lock()
	l.records = loaded
	l.dirty = false
	n := len(loaded)
	l.mu.Unlock()

	metrics.UpdateLedgerRecords(n)
	metrics.UpdateLedgerDirty(false)
	l.log.Info(ctx, "ledger loaded", logger.String("backend", l.backend), logger.Int("records", n))
	return nil
}

// Record applies one qualifying match. It returns the produced event, or nil
// when the match was debounced, was a repeat entry, or was an exit with no
// entry that day. When the change is committed in memory but the store fails,
// both the event and an error wrapping ErrPersistence are returned.
func (l *Ledger) Record(ctx context.Context, identity string, ch model.Channel, confidence float64, now time.Time) (*model.AttendanceEvent, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, ErrInvalidIdentity
	}
	if _, err := model.ParseChannel(string(ch)); err != nil {
		return nil, err
	}

	now = now.In(l.loc)
	key := debounce.Key{Identity: identity, Channel: ch}

	l.mu.Lock()
	if l.policy.Suppressed(key, now) {
		l.mu.Unlock()
		metrics.RecordDebounceSuppressed(ch.String())
		return nil, nil
	}

	date := now.Format(model.DateLayout)
	stamp := now.Format(model.TimeLayout)
	rk := recordKey{identity: identity, date: date}
	rec := l.records[rk]

	changed := false
	switch ch {
	case model.Entry:
		if rec == nil {
			rec = &model.DayRecord{Identity: identity, Date: date}
			l.records[rk] = rec
		}
		if !rec.HasEntry() {
			rec.EntryTime = &stamp
			changed = true
		}
	case model.Exit:
		if rec != nil && rec.HasEntry() && !rec.HasExit() {
			rec.ExitTime = &stamp
			changed = true
		}
	}
	l.policy.Observe(key, now, changed)

	if !changed {
		l.mu.Unlock()
		return nil, nil
	}

	ev := model.NewAttendanceEvent(identity, ch, now, confidence)
	perr := l.persistLocked(ctx)
	n := len(l.records)
	l.mu.Unlock()

	metrics.RecordAttendanceEvent(ch.String())
	metrics.UpdateLedgerRecords(n)
	l.log.Info(ctx, "attendance recorded",
		logger.String("identity", identity),
		logger.String("channel", ch.String()),
		logger.String("date", ev.Date),
		logger.String("time", ev.Time),
		logger.Float64("confidence", confidence),
	)

	if l.notifier != nil {
		l.notifier.Notify(ctx, ev)
	}
	return &ev, perr
}

// Flush writes the ledger if a previous write failed. It is a no-op when clean.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty {
		return nil
	}
	return l.persistLocked(ctx)
}

// persistLocked saves every record. Callers hold l.mu.
func (l *Ledger) persistLocked(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	start := time.Now()
	if err := l.store.Save(ctx, l.sortedLocked(Filter{})); err != nil {
		l.dirty = true
		metrics.RecordLedgerPersistError(l.backend)
		metrics.UpdateLedgerDirty(true)
		metrics.RecordErrorByComponent("ledger", "persist")
		l.log.Error(ctx, "ledger persist failed", logger.String("backend", l.backend), logger.Error(err))
		return &PersistenceError{Backend: l.backend, Err: err}
	}
	l.dirty = false
	metrics.RecordLedgerPersist(l.backend, float64(time.Since(start).Milliseconds()))
	metrics.UpdateLedgerDirty(false)
	return nil
}

// Snapshot returns copies of the matching records ordered by date, then identity.
func (l *Ledger) Snapshot(f Filter) []model.DayRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedLocked(f)
}

func (l *Ledger) sortedLocked(f Filter) []model.DayRecord {
	out := make([]model.DayRecord, 0, len(l.records))
	for _, r := range l.records {
		if f.match(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Identity < out[j].Identity
	})
	return out
}

// Prune drops debounce state that can no longer suppress a match at now.
func (l *Ledger) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.policy.Prune(now.In(l.loc))
}

// Len is the number of day records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Dirty reports whether the last write to the store failed.
func (l *Ledger) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}

// Policy returns the debounce policy name.
func (l *Ledger) Policy() string { return l.policy.Name() }

// Location returns the zone that defines the calendar day.
func (l *Ledger) Location() *time.Location { return l.loc }

// Backend returns the store label.
func (l *Ledger) Backend() string { return l.backend }
