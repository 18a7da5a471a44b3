package gateway

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mnemod/mnemod/internal/record"
)

func TestHealth_OK(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	status, body := env.request(t, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("GET /health = %d, body %s", status, body)
	}

	var resp HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if resp.Status != "ok" || resp.Store != "ok" {
		t.Fatalf("health = %+v, want ok/ok", resp)
	}
}

func TestStatus_ReportsStoreCounts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.seed(t, &record.Record{
		UserID: "u1", Content: "lives in Lyon",
		Tier: record.Tier1, Priority: 0.8, Confidence: 0.9,
	})

	status, body := env.request(t, http.MethodGet, "/status", testToken, nil)
	if status != http.StatusOK {
		t.Fatalf("GET /status = %d, body %s", status, body)
	}

	var resp StatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if resp.Store.Live != 1 {
		t.Fatalf("Store.Live = %d, want 1", resp.Store.Live)
	}
	if resp.Store.ByTier[string(record.Tier1)] != 1 {
		t.Fatalf("ByTier[tier1] = %d, want 1", resp.Store.ByTier[string(record.Tier1)])
	}
	if resp.UptimeSeconds < 0 {
		t.Fatalf("UptimeSeconds = %d, want non-negative", resp.UptimeSeconds)
	}
}
