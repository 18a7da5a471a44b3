// Package retention ages memories out of the store. Each tier carries a
// time-to-live measured from last_seen_at: records past their TTL are
// soft-deleted so recall stops serving them, and tombstones older than the
// grace period are purged for good.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/metrics"
	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/store"
)

const (
	// DefaultSchedule sweeps nightly, off the top of the hour so the pass
	// does not pile onto other cron-aligned work.
	DefaultSchedule = "17 3 * * *"

	// DefaultPurgeGrace is how long tombstones survive before the hard
	// purge. Until then a soft delete can still be inspected or restored
	// by hand.
	DefaultPurgeGrace = 30 * 24 * time.Hour
)

// DefaultTTLs returns the per-tier lifetimes. Session context fades first,
// identity facts last.
func DefaultTTLs() map[record.Tier]time.Duration {
	return map[record.Tier]time.Duration{
		record.Tier1: 365 * 24 * time.Hour,
		record.Tier2: 180 * 24 * time.Hour,
		record.Tier3: 90 * 24 * time.Hour,
	}
}

// Config groups the sweeper dependencies.
type Config struct {
	Store store.Store

	// Schedule is a 5-field cron expression. Empty means DefaultSchedule.
	Schedule string

	// TTLs maps each tier to its lifetime. Nil means DefaultTTLs. A zero
	// duration disables expiry for that tier.
	TTLs map[record.Tier]time.Duration

	// PurgeGrace is how long soft-deleted rows linger before the hard
	// purge. Zero means DefaultPurgeGrace.
	PurgeGrace time.Duration

	// Metrics receives sweep counters. Nil disables instrumentation.
	Metrics *metrics.Metrics

	// Bus, when set, is notified after passes that expired records so
	// caches can drop stale entries.
	Bus *event.Bus

	Logger *slog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.TTLs == nil {
		c.TTLs = DefaultTTLs()
	}
	if c.PurgeGrace <= 0 {
		c.PurgeGrace = DefaultPurgeGrace
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Result reports one sweep pass.
type Result struct {
	// Expired counts live records soft-deleted this pass.
	Expired int64

	// Purged counts tombstones hard-deleted this pass.
	Purged int64
}

// Service runs retention sweeps on a cron schedule. A TryLock guards the
// sweep so a slow pass skips the next tick instead of stacking on it.
type Service struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex // guards cron lifecycle
	sweepMu sync.Mutex // held while a pass runs
	cron    *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates a sweeper. Start begins the schedule; Sweep and
// Preview may also be called directly, which is what the CLI does.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	cfg = cfg.withDefaults()
	return &Service{cfg: cfg, logger: cfg.Logger}, nil
}

// Sweep expires overdue records and purges tombstones past the grace
// period. Safe to call while the schedule is running.
func (s *Service) Sweep(ctx context.Context) (Result, error) {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()
	return s.sweep(ctx)
}

// sweep does the work. Callers hold sweepMu.
func (s *Service) sweep(ctx context.Context) (Result, error) {
	now := s.cfg.Now().UTC()

	var res Result
	expired, err := s.cfg.Store.SweepExpired(ctx, now, s.cfg.TTLs)
	res.Expired = expired
	if err != nil {
		return res, fmt.Errorf("retention: sweep expired: %w", err)
	}

	purged, err := s.cfg.Store.PurgeDeleted(ctx, now.Add(-s.cfg.PurgeGrace))
	res.Purged = purged
	if err != nil {
		return res, fmt.Errorf("retention: purge deleted: %w", err)
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordSwept(metrics.SweepExpired, res.Expired)
		s.cfg.Metrics.RecordSwept(metrics.SweepPurged, res.Purged)
	}
	if s.cfg.Bus != nil && res.Expired > 0 {
		// Bulk event: no single user or record to name.
		s.cfg.Bus.Publish(event.Event{Type: event.RecordExpired})
	}
	if res.Expired > 0 || res.Purged > 0 {
		s.logger.Info("retention: sweep complete",
			"expired", res.Expired,
			"purged", res.Purged,
		)
	}
	return res, nil
}

// Preview reports what Sweep would remove right now, removing nothing.
func (s *Service) Preview(ctx context.Context) (Result, error) {
	now := s.cfg.Now().UTC()

	expired, err := s.cfg.Store.CountExpired(ctx, now, s.cfg.TTLs)
	if err != nil {
		return Result{}, fmt.Errorf("retention: count expired: %w", err)
	}
	purged, err := s.cfg.Store.CountPurgeable(ctx, now.Add(-s.cfg.PurgeGrace))
	if err != nil {
		return Result{}, fmt.Errorf("retention: count purgeable: %w", err)
	}
	return Result{Expired: expired, Purged: purged}, nil
}

// Start schedules the sweep and runs one immediately so a restart does not
// postpone retention by a full period. Invalid schedules fail here.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser))

	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		// TryLock is atomic: if the previous pass is still running,
		// skip this tick rather than queue behind it.
		if !s.sweepMu.TryLock() {
			s.logger.Warn("retention: sweep still running, skipping tick")
			return
		}
		defer s.sweepMu.Unlock()

		if _, err := s.sweep(ctx); err != nil {
			s.logger.Error("retention: sweep failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("retention: invalid schedule %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info("retention: sweeper started", "schedule", s.cfg.Schedule)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("retention: startup sweep failed", "error", err)
		}
	}()
	return nil
}

// Stop halts the schedule and waits for an in-flight pass to finish.
func (s *Service) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		// Wait for a running tick, then for the startup sweep.
		<-s.cron.Stop().Done()
		s.logger.Info("retention: sweeper stopped")
	}
	s.wg.Wait()
	return nil
}
