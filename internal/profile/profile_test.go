package profile_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/profile"
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

func newTestService(t *testing.T, db *store.DB, bus *event.Bus) *profile.Service {
	t.Helper()
	svc, err := profile.New(profile.Config{
		Store:  db,
		Bus:    bus,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func seed(t *testing.T, db *store.DB, id, content string, tier record.Tier, priority float64, at time.Time) {
	t.Helper()
	rec := &record.Record{
		ID:         id,
		UserID:     "u1",
		ThreadID:   "t1",
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
}

func TestGet_BuildsTopDurableFacts(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seed(t, db, "f1", "my dog is named Rex", record.Tier1, 0.9, at)
	seed(t, db, "f2", "call me Sam", record.Tier1, 0.6, at)
	seed(t, db, "f3", "my favorite editor is vim", record.Tier2, 0.95, at)
	seed(t, db, "f4", "lunch was pasta today", record.Tier3, 0.99, at)

	svc := newTestService(t, db, nil)
	p, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := []string{"f1", "f2", "f3"}
	if len(p.Facts) != len(want) {
		t.Fatalf("Facts = %d entries, want %d (tier3 must not appear)", len(p.Facts), len(want))
	}
	for i, id := range want {
		if p.Facts[i].RecordID != id {
			t.Errorf("Facts[%d] = %s, want %s", i, p.Facts[i].RecordID, id)
		}
	}
	if p.Counts[record.Tier1] != 2 || p.Counts[record.Tier2] != 1 || p.Counts[record.Tier3] != 1 {
		t.Errorf("Counts = %v, want tier1:2 tier2:1 tier3:1", p.Counts)
	}
}

func TestGet_CachesUntilInvalidated(t *testing.T) {
	t.Parallel()

	db := openTestStore(t)
	bus := event.NewBus()
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seed(t, db, "f1", "my dog is named Rex", record.Tier1, 0.9, at)

	svc := newTestService(t, db, bus)
	ctx := context.Background()

	p1, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	svc.Wait()

	// A write that bypasses the bus must not be visible yet.
	seed(t, db, "f2", "call me Sam", record.Tier1, 0.8, at.Add(time.Minute))
	p2, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p2 != p1 {
		t.Fatal("Get() rebuilt the profile, want the cached copy")
	}

	bus.Publish(event.Event{Type: event.RecordInserted, UserID: "u1", RecordID: "f2", Tier: record.Tier1})
	svc.Wait()

	p3, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(p3.Facts) != 2 {
		t.Fatalf("Facts after invalidation = %d, want 2", len(p3.Facts))
	}
}

func TestGet_MissingUser(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, openTestStore(t), nil)
	if _, err := svc.Get(context.Background(), ""); !errors.Is(err, record.ErrMissingUser) {
		t.Fatalf("Get(\"\") error = %v, want %v", err, record.ErrMissingUser)
	}
}

func TestGet_UnknownUserEmptyProfile(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, openTestStore(t), nil)
	p, err := svc.Get(context.Background(), "stranger")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(p.Facts) != 0 || len(p.Counts) != 0 {
		t.Fatalf("profile = %+v, want empty facts and counts", p)
	}
}
