package recall_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnemod/mnemod/internal/metrics"
	"github.com/mnemod/mnemod/internal/recall"
	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/store"
)

func openTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(store.Options{Path: filepath.Join(t.TempDir(), "mem.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newEngine(t *testing.T, st store.Store, now time.Time, m *metrics.Metrics) *recall.Engine {
	t.Helper()
	return recall.NewEngine(recall.Config{
		Store:   st,
		Metrics: m,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     func() time.Time { return now },
	})
}

func seed(t *testing.T, db *store.DB, id, threadID, content string, tier record.Tier, priority float64, at time.Time) *record.Record {
	t.Helper()
	rec := &record.Record{
		ID:         id,
		UserID:     "u1",
		ThreadID:   threadID,
		Content:    content,
		Tier:       tier,
		Priority:   priority,
		Confidence: 0.8,
		CreatedAt:  at,
		UpdatedAt:  at,
		LastSeenAt: at,
	}
	if err := db.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert(%s) error = %v", id, err)
	}
	return rec
}

func ids(items []*record.Record) []string {
	out := make([]string, len(items))
	for i, r := range items {
		out[i] = r.ID
	}
	return out
}

// slowStore delays reads to force the deadline race.
type slowStore struct {
	store.Store
	delay time.Duration
}

func (s slowStore) List(ctx context.Context, q store.ListQuery) ([]*record.Record, error) {
	time.Sleep(s.delay)
	return s.Store.List(ctx, q)
}

func (s slowStore) Search(ctx context.Context, userID, query string, limit int) ([]*record.Record, error) {
	time.Sleep(s.delay)
	return s.Store.Search(ctx, userID, query, limit)
}

type failingStore struct{ store.Store }

func (failingStore) List(context.Context, store.ListQuery) ([]*record.Record, error) {
	return nil, errors.New("store offline")
}

func TestRecall_DeadlineContract(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	now := time.Now().UTC()
	seed(t, db, "r1", "t1", "my dog is named Rex", record.Tier2, 0.7, now.Add(-time.Hour))

	m := metrics.New()
	eng := newEngine(t, slowStore{Store: db, delay: 300 * time.Millisecond}, now, m)

	res := eng.Recall(context.Background(), recall.Params{
		UserID:   "u1",
		Deadline: 50 * time.Millisecond,
	})
	if !res.TimedOut {
		t.Fatal("TimedOut = false, want true against a 300ms store")
	}
	if len(res.Memories) != 0 {
		t.Errorf("Memories = %d records, want 0 on timeout", len(res.Memories))
	}
	if res.Elapsed > 250*time.Millisecond {
		t.Errorf("Elapsed = %v, want well under the store delay", res.Elapsed)
	}

	snap := m.Snapshot()
	if snap.Recalls != 1 || snap.RecallTimeouts != 1 {
		t.Errorf("Snapshot() recalls = %d timeouts = %d, want 1 and 1", snap.Recalls, snap.RecallTimeouts)
	}
}

func TestRecall_DeadlineClamped(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	now := time.Now().UTC()
	eng := newEngine(t, slowStore{Store: db, delay: 700 * time.Millisecond}, now, nil)

	// A 2s budget must be clamped to the 500ms ceiling, which the 700ms
	// store cannot meet.
	res := eng.Recall(context.Background(), recall.Params{
		UserID:   "u1",
		Deadline: 2 * time.Second,
	})
	if !res.TimedOut {
		t.Fatal("TimedOut = false, want true past the clamped ceiling")
	}
	if res.Elapsed >= 700*time.Millisecond {
		t.Errorf("Elapsed = %v, want under the store delay", res.Elapsed)
	}
}

func TestRecall_StoreErrorDegrades(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	now := time.Now().UTC()
	eng := newEngine(t, failingStore{Store: db}, now, nil)

	res := eng.Recall(context.Background(), recall.Params{UserID: "u1"})
	if res.TimedOut {
		t.Error("TimedOut = true, want false for a store failure")
	}
	if len(res.Memories) != 0 {
		t.Errorf("Memories = %d records, want 0", len(res.Memories))
	}
}

func TestRecall_TierOrderingOnTimestampTie(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	now := time.Now().UTC()
	at := now.Add(-time.Hour)

	seed(t, db, "r3", "t1", "the build uses make", record.Tier3, 0.5, at)
	seed(t, db, "r2", "t1", "lunch was pasta today", record.Tier2, 0.5, at)
	seed(t, db, "r1", "t1", "standup happens at ten", record.Tier1, 0.5, at)

	eng := newEngine(t, db, now, nil)
	res := eng.Recall(context.Background(), recall.Params{UserID: "u1"})

	want := []string{"r1", "r2", "r3"}
	got := ids(res.Memories)
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("Recall order = %v, want %v", got, want)
	}
}

func TestRecall_RecencyBucketDominates(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	now := time.Now().UTC()

	seed(t, db, "old-dog", "t1", "my dog is named Rex", record.Tier1, 0.9, now.Add(-48*time.Hour))
	seed(t, db, "fresh-note", "t1", "the retro moved to thursdays", record.Tier3, 0.1, now.Add(-time.Hour))

	eng := newEngine(t, db, now, nil)
	res := eng.Recall(context.Background(), recall.Params{UserID: "u1", Query: "dog"})

	got := ids(res.Memories)
	if len(got) != 2 {
		t.Fatalf("Recall returned %v, want both records", got)
	}
	if got[0] != "fresh-note" || got[1] != "old-dog" {
		t.Errorf("order = %v, want the recent record first regardless of keyword", got)
	}
}

func TestRecall_KeywordBreaksTimestampTies(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	now := time.Now().UTC()
	at := now.Add(-time.Hour)

	seed(t, db, "dog", "t1", "my dog is named Rex", record.Tier2, 0.5, at)
	seed(t, db, "cat", "t1", "my cat is named Felix", record.Tier2, 0.5, at)

	eng := newEngine(t, db, now, nil)

	res := eng.Recall(context.Background(), recall.Params{UserID: "u1", Query: "dog"})
	if got := ids(res.Memories); len(got) != 2 || got[0] != "dog" {
		t.Errorf("Recall(dog) order = %v, want the dog record first", got)
	}

	res = eng.Recall(context.Background(), recall.Params{UserID: "u1", Query: "what is my cat"})
	if got := ids(res.Memories); len(got) != 2 || got[0] != "cat" {
		t.Errorf("Recall(cat) order = %v, want the cat record first", got)
	}
}

func TestRecall_MaxItemsClamp(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	now := time.Now().UTC()
	for i := range 25 {
		seed(t, db, fmt.Sprintf("r%02d", i), "t1",
			fmt.Sprintf("note number %02d about project alpha", i),
			record.Tier3, 0.5, now.Add(-time.Duration(i)*time.Minute))
	}

	eng := newEngine(t, db, now, nil)

	tests := []struct {
		name string
		ask  int
		want int
	}{
		{name: "default", ask: 0, want: recall.DefaultMaxItems},
		{name: "clamped", ask: 50, want: recall.MaxItemsCap},
		{name: "exact", ask: 5, want: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := eng.Recall(context.Background(), recall.Params{UserID: "u1", MaxItems: tt.ask})
			if len(res.Memories) != tt.want {
				t.Fatalf("Recall(maxItems=%d) = %d records, want %d", tt.ask, len(res.Memories), tt.want)
			}
		})
	}
}

func TestRecall_ThreadFilterOptIn(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	now := time.Now().UTC()
	seed(t, db, "a", "t1", "my dog is named Rex", record.Tier2, 0.5, now.Add(-2*time.Hour))
	seed(t, db, "b", "t2", "my cat is named Felix", record.Tier2, 0.5, now.Add(-time.Hour))

	eng := newEngine(t, db, now, nil)

	res := eng.Recall(context.Background(), recall.Params{UserID: "u1"})
	if len(res.Memories) != 2 {
		t.Fatalf("cross-thread Recall = %d records, want 2", len(res.Memories))
	}

	res = eng.Recall(context.Background(), recall.Params{UserID: "u1", ThreadID: "t2"})
	if got := ids(res.Memories); len(got) != 1 || got[0] != "b" {
		t.Fatalf("thread-scoped Recall = %v, want [b]", got)
	}
}

func TestRecall_UpdatesLastSeen(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	now := time.Now().UTC()
	initial := now.Add(-10 * 24 * time.Hour)
	rec := seed(t, db, "r1", "t1", "my dog is named Rex", record.Tier2, 0.5, initial)

	eng := newEngine(t, db, now, nil)
	res := eng.Recall(context.Background(), recall.Params{UserID: "u1"})
	if len(res.Memories) != 1 {
		t.Fatalf("Recall = %d records, want 1", len(res.Memories))
	}

	// The touch is fire-and-forget; poll for it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := db.Get(context.Background(), "u1", rec.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.LastSeenAt.After(initial) {
			if !got.UpdatedAt.Equal(initial) {
				t.Errorf("UpdatedAt = %v, want untouched %v", got.UpdatedAt, initial)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("last_seen_at never advanced")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRecall_MissingUserServesEmpty(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	eng := newEngine(t, db, time.Now().UTC(), nil)

	res := eng.Recall(context.Background(), recall.Params{})
	if len(res.Memories) != 0 || res.TimedOut {
		t.Fatalf("Recall(no user) = %d records, timedOut %v; want empty and false", len(res.Memories), res.TimedOut)
	}
}

func TestRecall_ExplicitSaveSurfacesLater(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	now := time.Now().UTC()
	seed(t, db, "dog", "t1", "my dog's name is Max", record.Tier1, 0.9, now.Add(-3*time.Hour))
	seed(t, db, "noise1", "t2", "the retro moved to thursdays", record.Tier3, 0.4, now.Add(-2*time.Hour))
	seed(t, db, "noise2", "t3", "lunch was pasta today", record.Tier3, 0.4, now.Add(-time.Hour))

	eng := newEngine(t, db, now, nil)
	res := eng.Recall(context.Background(), recall.Params{UserID: "u1", Query: "dog"})

	found := false
	for _, r := range res.Memories {
		if r.ID == "dog" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Recall(dog) = %v, want the saved dog record among results", ids(res.Memories))
	}
}
