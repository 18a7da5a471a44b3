package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mnemod/mnemod/internal/dedup"
	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/lane"
	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/redact"
	"github.com/mnemod/mnemod/internal/score"
	"github.com/mnemod/mnemod/internal/store"
	"github.com/mnemod/mnemod/internal/telemetry"
	"github.com/mnemod/mnemod/internal/tracker"
)

// PipelineConfig groups the dependencies of the capture pipeline.
type PipelineConfig struct {
	Store      store.Store
	Dedup      *dedup.Engine
	Scorer     *score.Scorer
	Thresholds score.Thresholds
	Redactor   *redact.Redactor
	Locks      *lane.Locks
	Logger     *slog.Logger

	// Tracker feeds the cross-thread promotion signal. Nil disables it.
	Tracker *tracker.Tracker

	// Bus receives record lifecycle events. Nil disables publishing.
	Bus *event.Bus

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Pipeline runs one observation from reception to its terminal state.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline creates a Pipeline with the given configuration.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{cfg: cfg}
}

// Process runs the capture stages for a single observation. Validation
// failures return OutcomeRejected alongside the sentinel; store failures
// leave the outcome empty so the caller can retry. Content never reaches
// the store or the logs unredacted.
func (p *Pipeline) Process(ctx context.Context, obs Observation) (ProcessResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "capture.process")
	defer span.End()
	span.SetAttributes(attribute.String("capture.source", string(obs.Source)))

	res, err := p.process(ctx, obs)

	span.SetAttributes(attribute.String("capture.outcome", string(res.Outcome)))
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

func (p *Pipeline) process(ctx context.Context, obs Observation) (ProcessResult, error) {
	logger := p.cfg.Logger

	// Step 1: validate the envelope.
	if obs.UserID == "" {
		return ProcessResult{Outcome: OutcomeRejected}, fmt.Errorf("capture: %w", record.ErrMissingUser)
	}
	content := strings.TrimSpace(obs.Content)
	if content == "" {
		return ProcessResult{Outcome: OutcomeRejected}, fmt.Errorf("capture: %w", record.ErrEmptyContent)
	}

	// Step 2: strip sensitive values before anything else sees the content.
	red := p.cfg.Redactor.Redact(content)
	if redact.OnlyPlaceholders(red.Text) {
		return ProcessResult{Outcome: OutcomeRejected, Redactions: red.Counts},
			fmt.Errorf("capture: %w", record.ErrAllRedacted)
	}

	// Step 3: count the thread toward the topic so facts repeated across
	// threads get promoted, even when this mention ends up dropped or
	// merged.
	now := p.cfg.Now().UTC()
	topic := dedup.TopicKey(red.Text)
	crossThread := false
	if p.cfg.Tracker != nil && topic != "" {
		p.cfg.Tracker.Observe(obs.UserID, topic, obs.ThreadID, now)
		crossThread = p.cfg.Tracker.Eligible(obs.UserID, topic)
	}

	// Step 4: score and classify on the redacted text.
	quality := p.cfg.Scorer.Score(red.Text, score.Context{
		RecentTurns: obs.RecentTurns,
		ObservedAt:  obs.ObservedAt,
		Now:         now,
	})
	tier := p.cfg.Scorer.Classify(red.Text, crossThread)
	priority := quality
	confidence := quality
	if obs.Source == SourceExplicit {
		tier = record.Upgrade(tier, record.Tier1)
		confidence = explicitConfidence
		priority = DefaultExplicitPriority
		if obs.Priority > 0 && obs.Priority <= 1 {
			priority = obs.Priority
		}
	}

	// Step 5: passive observations below the bar for their tier are
	// dropped without a trace beyond this log line.
	if obs.Source != SourceExplicit && quality < p.cfg.Thresholds.For(tier) {
		logger.Debug("capture: below quality threshold, dropped",
			"user_id", obs.UserID,
			"thread_id", obs.ThreadID,
			"tier", tier,
			"quality", quality,
		)
		return ProcessResult{Outcome: OutcomeDropped, Quality: quality, Redactions: red.Counts}, nil
	}

	// Step 6: one writer per user keeps dedup-then-write atomic.
	p.cfg.Locks.Acquire(obs.UserID)
	defer p.cfg.Locks.Release(obs.UserID)

	// Step 7: find the record this observation should fold into.
	match, err := p.cfg.Dedup.FindSimilar(ctx, obs.UserID, red.Text, 0)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("capture: %w", err)
	}

	// Step 8: persist.
	if match != nil {
		merged, err := p.cfg.Store.Supersede(ctx, store.Supersedence{
			ID:           match.Record.ID,
			UserID:       obs.UserID,
			Content:      red.Text,
			RedactionMap: red.Map,
			Tier:         tier,
			Priority:     priority,
			Confidence:   confidence,
			ThreadID:     obs.ThreadID,
			Now:          now,
		})
		if err != nil {
			return ProcessResult{}, fmt.Errorf("capture: supersede record %s: %w", match.Record.ID, err)
		}
		p.publish(event.RecordSuperseded, merged)
		logger.Info("capture: record superseded",
			"user_id", obs.UserID,
			"record_id", merged.ID,
			"tier", merged.Tier,
			"by_topic", match.ByTopic,
			"similarity", match.Score,
		)
		return ProcessResult{Outcome: OutcomeSuperseded, Record: merged, Quality: quality, Redactions: red.Counts}, nil
	}

	rec := &record.Record{
		UserID:       obs.UserID,
		ThreadID:     obs.ThreadID,
		Content:      red.Text,
		RedactionMap: red.Map,
		Tier:         tier,
		Priority:     priority,
		Confidence:   confidence,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSeenAt:   now,
	}
	if err := p.cfg.Store.Insert(ctx, rec); err != nil {
		return ProcessResult{}, fmt.Errorf("capture: insert record: %w", err)
	}
	p.publish(event.RecordInserted, rec)
	logger.Info("capture: record inserted",
		"user_id", obs.UserID,
		"record_id", rec.ID,
		"tier", rec.Tier,
		"source", obs.Source,
	)
	return ProcessResult{Outcome: OutcomeInserted, Record: rec, Quality: quality, Redactions: red.Counts}, nil
}

func (p *Pipeline) publish(t event.Type, rec *record.Record) {
	if p.cfg.Bus == nil {
		return
	}
	p.cfg.Bus.Publish(event.Event{
		Type:     t,
		UserID:   rec.UserID,
		RecordID: rec.ID,
		Tier:     rec.Tier,
	})
}
