package capture_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mnemod/mnemod/internal/capture"
	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/metrics"
	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/retry"
	"github.com/mnemod/mnemod/internal/store"
)

func newTestService(t *testing.T, parts pipelineParts, cfg capture.ServiceConfig) *capture.Service {
	t.Helper()
	cfg.Pipeline = parts.pipeline
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	svc, err := capture.NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestService_SubmitProcessesAsync(t *testing.T) {
	t.Parallel()

	parts := newTestPipeline(t)
	inserted := make(chan event.Event, 1)
	parts.bus.Subscribe(event.RecordInserted, func(ev event.Event) {
		inserted <- ev
	})

	svc := newTestService(t, parts, capture.ServiceConfig{})
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	err := svc.Submit(capture.Observation{
		UserID:      "u1",
		ThreadID:    "t1",
		Content:     "my favorite color is red",
		RecentTurns: []string{"what is your favorite color"},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case ev := <-inserted:
		if ev.UserID != "u1" {
			t.Errorf("event UserID = %q, want u1", ev.UserID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no insert event within 5s")
	}
}

func TestService_QueueFullRefuses(t *testing.T) {
	t.Parallel()

	parts := newTestPipeline(t)
	// Workers never started, so the single slot fills immediately.
	svc := newTestService(t, parts, capture.ServiceConfig{InboxSize: 1})

	obs := capture.Observation{UserID: "u1", ThreadID: "t1", Content: "my dog is named Rex"}
	if err := svc.Submit(obs); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if err := svc.Submit(obs); !errors.Is(err, capture.ErrQueueFull) {
		t.Fatalf("second Submit() error = %v, want %v", err, capture.ErrQueueFull)
	}
}

func TestService_StoppedRefuses(t *testing.T) {
	t.Parallel()

	parts := newTestPipeline(t)
	svc := newTestService(t, parts, capture.ServiceConfig{})
	svc.Start(context.Background())
	svc.Stop(context.Background())

	obs := capture.Observation{UserID: "u1", ThreadID: "t1", Content: "my dog is named Rex"}
	if err := svc.Submit(obs); !errors.Is(err, capture.ErrStopped) {
		t.Errorf("Submit() error = %v, want %v", err, capture.ErrStopped)
	}
	if _, err := svc.Save(context.Background(), obs); !errors.Is(err, capture.ErrStopped) {
		t.Errorf("Save() error = %v, want %v", err, capture.ErrStopped)
	}
}

func TestService_SaveSurfacesValidation(t *testing.T) {
	t.Parallel()

	parts := newTestPipeline(t)
	m := metrics.New()
	svc := newTestService(t, parts, capture.ServiceConfig{Metrics: m})

	res, err := svc.Save(context.Background(), capture.Observation{
		UserID:   "u1",
		ThreadID: "t1",
		Content:  "  ",
	})
	if !errors.Is(err, record.ErrEmptyContent) {
		t.Fatalf("Save() error = %v, want %v", err, record.ErrEmptyContent)
	}
	if res.Outcome != capture.OutcomeRejected {
		t.Errorf("Outcome = %q, want %q", res.Outcome, capture.OutcomeRejected)
	}
	if snap := m.Snapshot(); snap.Rejected != 1 {
		t.Errorf("Snapshot().Rejected = %d, want 1", snap.Rejected)
	}
}

// flakyLister fails a fixed number of times before delegating to the store.
type flakyLister struct {
	db       store.Store
	failures atomic.Int32
}

func (f *flakyLister) ListRecent(ctx context.Context, userID string, limit int) ([]*record.Record, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("transient store hiccup")
	}
	return f.db.ListRecent(ctx, userID, limit)
}

func TestService_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	flaky := &flakyLister{db: db}
	flaky.failures.Store(2)
	parts := newTestPipelineOn(t, db, flaky)

	m := metrics.New()
	svc := newTestService(t, parts, capture.ServiceConfig{
		Metrics: m,
		Retry:   retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond},
	})

	res, err := svc.Save(context.Background(), capture.Observation{
		UserID:   "u1",
		ThreadID: "t1",
		Content:  "my dog is named Rex",
	})
	if err != nil {
		t.Fatalf("Save() error = %v, want success after retries", err)
	}
	if res.Outcome != capture.OutcomeInserted {
		t.Fatalf("Outcome = %q, want %q", res.Outcome, capture.OutcomeInserted)
	}

	snap := m.Snapshot()
	if snap.Retries != 2 {
		t.Errorf("Snapshot().Retries = %d, want 2", snap.Retries)
	}
	if snap.Captured != 1 {
		t.Errorf("Snapshot().Captured = %d, want 1", snap.Captured)
	}
}

func TestService_StopDrainsInbox(t *testing.T) {
	t.Parallel()

	parts := newTestPipeline(t)
	svc := newTestService(t, parts, capture.ServiceConfig{Workers: 2})

	contents := []string{
		"my dog is named Rex",
		"my cat is named Felix",
		"my favorite editor is vim",
		"deploys go to staging first",
		"the retro meeting moved to thursdays",
	}
	// Queue everything before the workers exist, then let the drain on
	// Stop prove no queued observation is lost.
	for _, content := range contents {
		err := svc.Submit(capture.Observation{
			UserID:   "u1",
			ThreadID: "t1",
			Content:  content,
			Source:   capture.SourceExplicit,
		})
		if err != nil {
			t.Fatalf("Submit(%q) error = %v", content, err)
		}
	}

	svc.Start(context.Background())
	svc.Stop(context.Background())

	recent, err := parts.store.ListRecent(context.Background(), "u1", 20)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(recent) != len(contents) {
		t.Fatalf("store has %d records after drain, want %d", len(recent), len(contents))
	}
}
