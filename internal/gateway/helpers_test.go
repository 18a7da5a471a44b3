package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mnemod/mnemod/internal/capture"
	"github.com/mnemod/mnemod/internal/dedup"
	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/lane"
	"github.com/mnemod/mnemod/internal/metrics"
	"github.com/mnemod/mnemod/internal/profile"
	"github.com/mnemod/mnemod/internal/recall"
	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/redact"
	"github.com/mnemod/mnemod/internal/score"
	"github.com/mnemod/mnemod/internal/store"
	"github.com/mnemod/mnemod/internal/tracker"
)

const testToken = "gw-test-token"

type testEnv struct {
	gw  *Gateway
	srv *httptest.Server
	db  *store.DB
}

// newTestEnv wires a gateway against a real on-disk store with the full
// capture pipeline behind it.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := store.Open(store.Options{
		Path:   filepath.Join(t.TempDir(), "mnemod.db"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	bus := event.NewBus()
	m := metrics.New()
	redactor := redact.NewRedactor(redact.DefaultDetectors()...)

	pipe := capture.NewPipeline(capture.PipelineConfig{
		Store:      db,
		Dedup:      dedup.NewEngine(db, 50, 0.75),
		Scorer:     score.NewScorer(score.DefaultWeights()),
		Thresholds: score.DefaultThresholds(),
		Redactor:   redactor,
		Locks:      lane.NewLocks(),
		Tracker:    tracker.New(64, 32, 2),
		Bus:        bus,
		Logger:     logger,
	})

	caps, err := capture.NewService(capture.ServiceConfig{
		Pipeline:  pipe,
		Workers:   2,
		InboxSize: 32,
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("capture.NewService: %v", err)
	}
	caps.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		caps.Stop(ctx)
	})

	profiles, err := profile.New(profile.Config{Store: db, Bus: bus, Logger: logger})
	if err != nil {
		t.Fatalf("profile.New: %v", err)
	}
	t.Cleanup(profiles.Close)

	gw, err := New(Config{
		AuthToken:      testToken,
		RecallDeadline: 200 * time.Millisecond,
		RecallMaxItems: 10,
		Capture:        caps,
		Recall:         recall.NewEngine(recall.Config{Store: db, Metrics: m, Logger: logger}),
		Store:          db,
		Profiles:       profiles,
		Redactor:       redactor,
		Metrics:        m,
		Bus:            bus,
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	gw.startedAt = time.Now()

	srv := httptest.NewServer(gw.buildRouter())
	t.Cleanup(srv.Close)

	return &testEnv{gw: gw, srv: srv, db: db}
}

// request sends a JSON request and returns the status code and body.
func (e *testEnv) request(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, data
}

// seed inserts a record directly, letting the store fill IDs and times.
func (e *testEnv) seed(t *testing.T, rec *record.Record) *record.Record {
	t.Helper()
	if err := e.db.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return rec
}

// waitForContent polls until the user has a live record containing substr.
// Async capture makes writes eventually visible, not immediately.
func (e *testEnv) waitForContent(t *testing.T, userID, substr string) *record.Record {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		recs, err := e.db.ListRecent(context.Background(), userID, 50)
		if err != nil {
			t.Fatalf("ListRecent: %v", err)
		}
		for _, rec := range recs {
			if strings.Contains(rec.Content, substr) {
				return rec
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no record containing %q appeared for user %s", substr, userID)
	return nil
}
