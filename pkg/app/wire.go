package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mnemod/mnemod/internal/capture"
	"github.com/mnemod/mnemod/internal/config"
	"github.com/mnemod/mnemod/internal/dedup"
	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/gateway"
	"github.com/mnemod/mnemod/internal/lane"
	"github.com/mnemod/mnemod/internal/metrics"
	"github.com/mnemod/mnemod/internal/profile"
	"github.com/mnemod/mnemod/internal/recall"
	"github.com/mnemod/mnemod/internal/redact"
	"github.com/mnemod/mnemod/internal/retention"
	"github.com/mnemod/mnemod/internal/retry"
	"github.com/mnemod/mnemod/internal/score"
	"github.com/mnemod/mnemod/internal/store"
	"github.com/mnemod/mnemod/internal/telemetry"
	"github.com/mnemod/mnemod/internal/tracker"
)

// Engine is the assembled memory service: every component constructed and
// cross-wired, ready to Start.
type Engine struct {
	Config *config.Config

	// ConfigPath is where Config was loaded from, when StartEngine did
	// the loading.
	ConfigPath string

	Logger   *slog.Logger
	Store    *store.DB
	Bus      *event.Bus
	Metrics  *metrics.Metrics
	Redactor *redact.Redactor
	Capture  *capture.Service
	Recall   *recall.Engine
	Profiles *profile.Service
	Sweeper  *retention.Service
	Gateway  *gateway.Gateway

	drainTimeout  time.Duration
	traceShutdown func(context.Context) error
}

// BuildEngine constructs the full service graph from a validated config.
// Nothing is started; the caller owns the lifecycle.
func BuildEngine(ctx context.Context, cfg *config.Config, version string) (*Engine, error) {
	redactor := redact.NewRedactor(redact.DefaultDetectors()...)
	if cfg.Gateway.AuthToken != "" {
		// The auth token must never survive into log output.
		redactor.AddLiteral(cfg.Gateway.AuthToken)
	}
	logger := buildLogger(cfg.Log, redactor)

	traceShutdown, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("app: setup telemetry: %w", err)
	}

	db, err := store.Open(store.Options{
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.ParsedBusyTimeout(),
		ReadConns:   cfg.Store.ReadConns,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	bus := event.NewBus()
	m := metrics.New()

	pipe := capture.NewPipeline(capture.PipelineConfig{
		Store:  db,
		Dedup:  dedup.NewEngine(db, cfg.Dedup.Window, cfg.Dedup.Threshold),
		Scorer: score.NewScorer(score.DefaultWeights()),
		Thresholds: score.Thresholds{
			Tier1: cfg.Quality.Tier1Threshold,
			Tier2: cfg.Quality.Tier2Threshold,
			Tier3: cfg.Quality.Tier3Threshold,
		},
		Redactor: redactor,
		Locks:    lane.NewLocks(),
		Tracker:  tracker.New(cfg.Tracker.MaxUsers, cfg.Tracker.MaxTopics, cfg.Tracker.PromoteThreads),
		Bus:      bus,
		Logger:   logger,
	})

	caps, err := capture.NewService(capture.ServiceConfig{
		Pipeline:  pipe,
		Workers:   cfg.Capture.Workers,
		InboxSize: cfg.Capture.QueueSize,
		Retry: retry.Config{
			MaxAttempts:  cfg.Capture.MaxAttempts,
			InitialDelay: cfg.Capture.ParsedRetryInitialDelay(),
			MaxDelay:     cfg.Capture.ParsedRetryMaxDelay(),
		},
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: build capture service: %w", err)
	}

	profiles, err := profile.New(profile.Config{
		Store:    db,
		Bus:      bus,
		MaxFacts: cfg.Profile.MaxFacts,
		TTL:      cfg.Profile.ParsedTTL(),
		Logger:   logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: build profile service: %w", err)
	}

	sweeper, err := retention.NewService(retention.Config{
		Store:      db,
		Schedule:   cfg.Retention.Schedule,
		TTLs:       cfg.Retention.ParsedTTLs(),
		PurgeGrace: cfg.Retention.ParsedPurgeGrace(),
		Metrics:    m,
		Bus:        bus,
		Logger:     logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: build retention service: %w", err)
	}

	rec := recall.NewEngine(recall.Config{
		Store:   db,
		Metrics: m,
		Logger:  logger,
	})

	gw, err := gateway.New(gateway.Config{
		Listen:         cfg.Gateway.Listen,
		AuthToken:      cfg.Gateway.AuthToken,
		ReadTimeout:    cfg.Gateway.ParsedReadTimeout(),
		WriteTimeout:   cfg.Gateway.ParsedWriteTimeout(),
		RecallDeadline: cfg.Recall.ParsedDefaultDeadline(),
		RecallMaxItems: cfg.Recall.MaxItems,
		Capture:        caps,
		Recall:         rec,
		Store:          db,
		Profiles:       profiles,
		Redactor:       redactor,
		Metrics:        m,
		Bus:            bus,
		Logger:         logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("app: build gateway: %w", err)
	}

	return &Engine{
		Config:        cfg,
		Logger:        logger,
		Store:         db,
		Bus:           bus,
		Metrics:       m,
		Redactor:      redactor,
		Capture:       caps,
		Recall:        rec,
		Profiles:      profiles,
		Sweeper:       sweeper,
		Gateway:       gw,
		drainTimeout:  cfg.Capture.ParsedDrainTimeout(),
		traceShutdown: traceShutdown,
	}, nil
}

// Start brings the engine up: capture workers, retention schedule, then
// the HTTP listener last so no request arrives before the engine can
// serve it.
func (e *Engine) Start(ctx context.Context) error {
	e.Capture.Start(ctx)
	if err := e.Sweeper.Start(); err != nil {
		return err
	}
	if err := e.Gateway.Start(ctx); err != nil {
		return err
	}
	return nil
}

// Stop tears the engine down in reverse order: stop accepting requests,
// drain queued captures, halt the sweeper, then release the store.
func (e *Engine) Stop(ctx context.Context) {
	if err := e.Gateway.Stop(ctx); err != nil {
		e.Logger.Error("app: gateway stop", "error", err)
	}

	drainCtx, cancel := context.WithTimeout(ctx, e.drainTimeout)
	e.Capture.Stop(drainCtx)
	cancel()

	if err := e.Sweeper.Stop(ctx); err != nil {
		e.Logger.Error("app: retention stop", "error", err)
	}
	e.Profiles.Close()

	if err := e.Store.Close(); err != nil {
		e.Logger.Error("app: store close", "error", err)
	}
	if err := e.traceShutdown(ctx); err != nil {
		e.Logger.Error("app: telemetry shutdown", "error", err)
	}
}
