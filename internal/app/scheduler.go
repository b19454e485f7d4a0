package service

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/okian/facegate/pkg/logger"
	"github.com/okian/facegate/pkg/metrics"
)

// startScheduler registers the periodic flush, the daily debounce prune and
// the runtime metrics sampler. Callers hold s.mu.
func (s *Service) startScheduler(ctx context.Context, loc *time.Location) error {
	sched := gocron.NewScheduler(loc)
	sched.SingletonModeAll()
	sched.WaitForScheduleAll()

	if s.cfg.FlushInterval > 0 {
		if _, err := sched.Every(s.cfg.FlushInterval).Tag("flush").Do(s.flushJob); err != nil {
			return fmt.Errorf("schedule flush: %w", err)
		}
	}
	if _, err := sched.Every(1).Day().At(s.cfg.PruneAt).Tag("prune").Do(s.pruneJob); err != nil {
		return fmt.Errorf("schedule prune at %q: %w", s.cfg.PruneAt, err)
	}
	if metrics.Enabled() {
		if _, err := sched.Every(metrics.RefreshInterval()).Tag("runtime").Do(sampleRuntime); err != nil {
			return fmt.Errorf("schedule runtime metrics: %w", err)
		}
	}

	sched.StartAsync()
	s.scheduler = sched
	s.logger.Info(ctx, "scheduler started",
		logger.Duration("flush_interval", s.cfg.FlushInterval),
		logger.String("prune_at", s.cfg.PruneAt),
	)
	return nil
}

// flushJob retries a failed write-through. A clean ledger is left alone.
func (s *Service) flushJob() {
	ctx := context.Background()
	s.mu.RLock()
	led := s.ledger
	s.mu.RUnlock()
	if led == nil || !led.Dirty() {
		return
	}
	if err := led.Flush(ctx); err != nil {
		metrics.RecordScheduledJobError("flush")
		s.logger.Warn(ctx, "scheduled ledger flush failed", logger.Error(err))
		return
	}
	s.logger.Info(ctx, "dirty ledger flushed")
}

func (s *Service) pruneJob() {
	ctx := context.Background()
	s.mu.RLock()
	led := s.ledger
	s.mu.RUnlock()
	if led == nil {
		return
	}
	n := led.Prune(s.clock.Now())
	s.logger.Info(ctx, "debounce state pruned", logger.Int("dropped", n))
}

func sampleRuntime() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	metrics.UpdateSystemMemoryUsage(ms.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if ms.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(ms.PauseNs[(ms.NumGC+255)%256]) / 1e6)
	}
}
