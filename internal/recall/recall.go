// Package recall serves relevant memory records under a hard deadline. The
// query races a timer; expiry or a broken store degrade to an empty result,
// never to an error on the chat path.
package recall

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mnemod/mnemod/internal/metrics"
	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/store"
	"github.com/mnemod/mnemod/internal/telemetry"
	"github.com/mnemod/mnemod/internal/text"
)

const (
	// DefaultDeadline bounds a recall when the caller does not.
	DefaultDeadline = 200 * time.Millisecond

	// MaxDeadline is the hard ceiling: larger budgets are clamped.
	MaxDeadline = 500 * time.Millisecond

	// DefaultMaxItems is returned when the caller does not size the result.
	DefaultMaxItems = 10

	// MaxItemsCap is the largest result a caller can ask for.
	MaxItemsCap = 20

	// recencyWindow is the boost bucket: records updated this recently
	// sort before all others.
	recencyWindow = 24 * time.Hour

	// candidateLimit caps how many records one recall considers.
	candidateLimit = 200

	// minKeywordLen drops query tokens too short to mean anything.
	minKeywordLen = 2

	// touchTimeout bounds the fire-and-forget last-seen update.
	touchTimeout = 2 * time.Second
)

// Params is one recall request.
type Params struct {
	UserID string

	// Query is optional. Its keywords (stop words excluded) feed the
	// relevance ordering.
	Query string

	// ThreadID narrows recall to one thread. Empty means cross-thread,
	// which is the intended default: saved facts surface in any future
	// conversation.
	ThreadID string

	// MaxItems caps the result. Zero means DefaultMaxItems; values above
	// MaxItemsCap are clamped.
	MaxItems int

	// Deadline is the hard budget. Zero means DefaultDeadline; values
	// above MaxDeadline are clamped.
	Deadline time.Duration
}

// withDefaults returns a copy of the params with zero values replaced and
// limits enforced.
func (p Params) withDefaults() Params {
	if p.MaxItems <= 0 {
		p.MaxItems = DefaultMaxItems
	}
	if p.MaxItems > MaxItemsCap {
		p.MaxItems = MaxItemsCap
	}
	if p.Deadline <= 0 {
		p.Deadline = DefaultDeadline
	}
	if p.Deadline > MaxDeadline {
		p.Deadline = MaxDeadline
	}
	return p
}

// Result is what a recall produced. TimedOut means the deadline fired
// before the store answered; the memories are whatever was ready by then.
type Result struct {
	Memories []*record.Record
	Elapsed  time.Duration
	TimedOut bool
}

// Config groups the engine dependencies.
type Config struct {
	Store store.Store

	// Metrics receives request counters and latency. Nil disables
	// instrumentation.
	Metrics *metrics.Metrics

	Logger *slog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine answers recall queries.
type Engine struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates an Engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:   cfg.Store,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
}

// Recall returns up to MaxItems records for the user, ordered by the
// recency bucket, update time, keyword relevance, tier, and priority, in
// that order. It always returns within the deadline and never returns an
// error: timeouts and store failures both degrade to an empty result.
func (e *Engine) Recall(ctx context.Context, p Params) Result {
	start := time.Now()
	p = p.withDefaults()

	ctx, span := telemetry.Tracer().Start(ctx, "recall.recall")
	defer span.End()

	res := e.recall(ctx, p)
	res.Elapsed = time.Since(start)

	span.SetAttributes(
		attribute.Int("recall.count", len(res.Memories)),
		attribute.Bool("recall.timed_out", res.TimedOut),
	)
	if e.metrics != nil {
		e.metrics.ObserveRecall(res.Elapsed, res.TimedOut)
	}
	if res.TimedOut {
		e.logger.Warn("recall: deadline hit, serving empty",
			"user_id", p.UserID,
			"deadline", p.Deadline,
		)
	}
	return res
}

func (e *Engine) recall(ctx context.Context, p Params) Result {
	if p.UserID == "" {
		return Result{}
	}

	keywords := text.Keywords(p.Query, minKeywordLen)

	// The query races the deadline. The store call gets its own cancel so
	// a lost race does not leave it running unbounded.
	qctx, cancel := context.WithTimeout(ctx, p.Deadline)
	defer cancel()

	type answer struct {
		items []*record.Record
		err   error
	}
	ch := make(chan answer, 1)
	go func() {
		items, err := e.fetch(qctx, p)
		ch <- answer{items: items, err: err}
	}()

	timer := time.NewTimer(p.Deadline)
	defer timer.Stop()

	select {
	case ans := <-ch:
		if ans.err != nil {
			// Memory is an enhancement: a broken store must not break
			// the conversation.
			e.logger.Warn("recall: store query failed, serving empty",
				"user_id", p.UserID,
				"error", ans.err,
			)
			return Result{}
		}
		res := Result{Memories: e.rank(ans.items, keywords, p.MaxItems)}
		e.touch(res.Memories)
		return res
	case <-timer.C:
		return Result{TimedOut: true}
	case <-ctx.Done():
		return Result{TimedOut: true}
	}
}

// fetch assembles the candidate set: the user's most recently updated live
// records, widened by full-text hits when a query is present.
func (e *Engine) fetch(ctx context.Context, p Params) ([]*record.Record, error) {
	items, err := e.store.List(ctx, store.ListQuery{
		UserID:   p.UserID,
		ThreadID: p.ThreadID,
		Limit:    candidateLimit,
	})
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(p.Query) != "" {
		hits, err := e.store.Search(ctx, p.UserID, p.Query, candidateLimit)
		if err != nil {
			// The listing already carries the recent records; a failed
			// widening pass is not worth failing the recall over.
			e.logger.Debug("recall: search widening failed",
				"user_id", p.UserID,
				"error", err,
			)
		} else {
			seen := make(map[string]struct{}, len(items))
			for _, r := range items {
				seen[r.ID] = struct{}{}
			}
			for _, r := range hits {
				if p.ThreadID != "" && r.ThreadID != p.ThreadID {
					continue
				}
				if _, ok := seen[r.ID]; !ok {
					items = append(items, r)
				}
			}
		}
	}
	return items, nil
}

// rank orders candidates by the comparator chain and cuts to max.
func (e *Engine) rank(items []*record.Record, keywords []string, max int) []*record.Record {
	now := e.now().UTC()

	var hits map[string]int
	if len(keywords) > 0 {
		hits = make(map[string]int, len(items))
		for _, r := range items {
			hits[r.ID] = keywordHits(r.Content, keywords)
		}
	}

	slices.SortStableFunc(items, func(a, b *record.Record) int {
		return compare(a, b, now, hits)
	})
	if len(items) > max {
		items = items[:max]
	}
	return items
}

// compare returns negative when a sorts before b.
func compare(a, b *record.Record, now time.Time, hits map[string]int) int {
	if ab, bb := bucket(a, now), bucket(b, now); ab != bb {
		return ab - bb
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		if a.UpdatedAt.After(b.UpdatedAt) {
			return -1
		}
		return 1
	}
	if ha, hb := hits[a.ID], hits[b.ID]; ha != hb {
		return hb - ha
	}
	if ra, rb := a.Tier.Rank(), b.Tier.Rank(); ra != rb {
		return ra - rb
	}
	switch {
	case a.Priority > b.Priority:
		return -1
	case a.Priority < b.Priority:
		return 1
	}
	return 0
}

// bucket is 0 for records updated within the recency window, 1 otherwise.
func bucket(r *record.Record, now time.Time) int {
	if now.Sub(r.UpdatedAt) <= recencyWindow {
		return 0
	}
	return 1
}

// keywordHits counts how many keywords appear as substrings of content.
func keywordHits(content string, keywords []string) int {
	lower := strings.ToLower(content)
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

// touch advances last_seen_at on the served records without holding up the
// response.
func (e *Engine) touch(items []*record.Record) {
	if len(items) == 0 {
		return
	}
	ids := make([]string, len(items))
	for i, r := range items {
		ids[i] = r.ID
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := e.store.TouchLastSeen(ctx, ids, e.now().UTC()); err != nil {
			e.logger.Warn("recall: touch last_seen failed", "error", err)
		}
	}()
}
