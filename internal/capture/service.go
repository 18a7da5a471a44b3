package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mnemod/mnemod/internal/metrics"
	"github.com/mnemod/mnemod/internal/retry"
)

const (
	// DefaultWorkers is the worker count when no size is specified.
	DefaultWorkers = 4

	defaultInboxSize = 256
)

// ServiceConfig holds the configuration for a Service.
type ServiceConfig struct {
	Pipeline  *Pipeline
	Workers   int
	InboxSize int

	// Retry bounds the attempts per observation. Zero values take the
	// package defaults.
	Retry retry.Config

	// Metrics receives outcome counters. Nil disables instrumentation.
	Metrics *metrics.Metrics

	Logger *slog.Logger
}

// withDefaults returns a copy of the config with zero values replaced.
func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = retry.DefaultConfig.MaxAttempts
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Service is the asynchronous front of the capture pipeline. Submit
// enqueues passive observations into a bounded inbox consumed by a fixed
// worker pool; Save runs explicit saves synchronously. Both paths retry
// transient store failures.
type Service struct {
	cfg      ServiceConfig
	inbox    chan Observation
	inboxMu  sync.RWMutex
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  atomic.Bool
	logger   *slog.Logger
}

// NewService creates a Service with the given configuration.
func NewService(cfg ServiceConfig) (*Service, error) {
	cfg = cfg.withDefaults()
	if cfg.Pipeline == nil {
		return nil, ErrNoPipeline
	}
	return &Service{
		cfg:    cfg,
		inbox:  make(chan Observation, cfg.InboxSize),
		logger: cfg.Logger,
	}, nil
}

// Start launches the worker pool.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.inboxMu.Lock()
	if s.stopped.Load() {
		s.inboxMu.Unlock()
		cancel()
		s.logger.Warn("capture: start ignored, service already stopped")
		return
	}
	s.cancel = cancel
	s.inboxMu.Unlock()

	for range s.cfg.Workers {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for obs := range s.inbox {
				s.setDepth()
				s.handle(ctx, obs)
			}
		}()
	}
	s.logger.Info("capture: started", "workers", s.cfg.Workers, "inbox_size", s.cfg.InboxSize)
}

// Submit enqueues a passive observation. It never blocks: when the inbox
// is full the observation is refused with ErrQueueFull.
func (s *Service) Submit(obs Observation) error {
	s.inboxMu.RLock()
	defer s.inboxMu.RUnlock()

	if s.stopped.Load() {
		return ErrStopped
	}
	if obs.Source == "" {
		obs.Source = SourcePassive
	}

	select {
	case s.inbox <- obs:
		s.setDepth()
		return nil
	default:
		s.logger.Warn("capture: inbox full, observation refused",
			"user_id", obs.UserID,
			"thread_id", obs.ThreadID,
		)
		return ErrQueueFull
	}
}

// Save runs an explicit save synchronously and surfaces its error. The
// quality gate does not apply; the priority defaults high.
func (s *Service) Save(ctx context.Context, obs Observation) (ProcessResult, error) {
	if s.stopped.Load() {
		return ProcessResult{}, ErrStopped
	}
	obs.Source = SourceExplicit
	res, err := s.process(ctx, obs)
	s.record(res, err)
	return res, err
}

// Stop drains the inbox and shuts the workers down. When ctx expires
// before the drain completes, in-flight work is cancelled instead.
func (s *Service) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		s.logger.Info("capture: stopping")

		s.inboxMu.Lock()
		s.stopped.Store(true)
		close(s.inbox)
		cancel := s.cancel
		s.inboxMu.Unlock()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("capture: drain deadline hit, cancelling in-flight work")
			if cancel != nil {
				cancel()
			}
			<-done
		}
		if cancel != nil {
			cancel()
		}
		s.logger.Info("capture: stopped")
	})
}

// QueueDepth reports how many observations wait in the inbox.
func (s *Service) QueueDepth() int {
	return len(s.inbox)
}

// handle processes one queued observation. Passive capture never surfaces
// errors; the log line and the outcome counter are the only traces.
func (s *Service) handle(ctx context.Context, obs Observation) {
	res, err := s.process(ctx, obs)
	s.record(res, err)
	if err == nil {
		return
	}
	if res.Outcome == OutcomeRejected {
		s.logger.Debug("capture: observation rejected",
			"user_id", obs.UserID,
			"reason", err,
		)
		return
	}
	s.logger.Warn("capture: observation failed",
		"user_id", obs.UserID,
		"thread_id", obs.ThreadID,
		"error", err,
	)
}

// process runs the pipeline with bounded retries. Outcomes other than the
// empty one are terminal decisions and never retried.
func (s *Service) process(ctx context.Context, obs Observation) (ProcessResult, error) {
	var res ProcessResult
	cfg := s.cfg.Retry
	cfg.ShouldRetry = func(error) bool { return res.Outcome == "" }
	cfg.OnRetry = func(attempt int, err error) {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordCaptureRetry()
		}
		s.logger.Debug("capture: attempt failed, retrying",
			"attempt", attempt,
			"user_id", obs.UserID,
			"error", err,
		)
	}

	err := retry.Do(ctx, cfg, func() error {
		var perr error
		res, perr = s.cfg.Pipeline.Process(ctx, obs)
		return perr
	})
	return res, err
}

func (s *Service) record(res ProcessResult, err error) {
	if s.cfg.Metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.cfg.Metrics.RecordCaptureOutcome(string(res.Outcome))
		s.cfg.Metrics.RecordRedactions(res.Redactions)
	case res.Outcome == OutcomeRejected:
		s.cfg.Metrics.RecordCaptureOutcome(metrics.OutcomeRejected)
	default:
		s.cfg.Metrics.RecordCaptureOutcome(metrics.OutcomeFailed)
	}
}

func (s *Service) setDepth() {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SetQueueDepth(len(s.inbox))
	}
}
