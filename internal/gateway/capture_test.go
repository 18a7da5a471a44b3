package gateway

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mnemod/mnemod/pkg/memapi"
)

func TestCapture_ExplicitThenRecall(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	status, body := env.request(t, http.MethodPost, "/v1/capture", testToken, memapi.CaptureRequest{
		UserID:   "u1",
		ThreadID: "t1",
		Content:  "I am allergic to shellfish",
		Explicit: true,
	})
	if status != http.StatusOK {
		t.Fatalf("POST /v1/capture = %d, body %s", status, body)
	}

	var cr memapi.CaptureResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		t.Fatalf("unmarshal capture response: %v", err)
	}
	if cr.Outcome != "inserted" {
		t.Fatalf("Outcome = %q, want %q", cr.Outcome, "inserted")
	}
	if cr.Record == nil || cr.Record.ID == "" {
		t.Fatalf("capture response has no record: %s", body)
	}

	status, body = env.request(t, http.MethodPost, "/v1/recall", testToken, memapi.RecallRequest{
		UserID: "u1",
		Query:  "shellfish",
	})
	if status != http.StatusOK {
		t.Fatalf("POST /v1/recall = %d, body %s", status, body)
	}

	var rr memapi.RecallResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		t.Fatalf("unmarshal recall response: %v", err)
	}
	if len(rr.Memories) != 1 || rr.Memories[0].ID != cr.Record.ID {
		t.Fatalf("recall returned %d memories, want the captured record", len(rr.Memories))
	}
	if rr.TimedOut {
		t.Fatal("recall timed out against a warm local store")
	}
}

func TestCapture_PassiveIsQueued(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	status, body := env.request(t, http.MethodPost, "/v1/capture", testToken, memapi.CaptureRequest{
		UserID:      "u2",
		ThreadID:    "t1",
		Content:     "my favorite color is red",
		RecentTurns: []string{"what is your favorite color"},
	})
	if status != http.StatusAccepted {
		t.Fatalf("POST /v1/capture = %d, want %d (body %s)", status, http.StatusAccepted, body)
	}

	var cr memapi.CaptureResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		t.Fatalf("unmarshal capture response: %v", err)
	}
	if !cr.Queued {
		t.Fatalf("Queued = false, want true: %s", body)
	}
	if cr.Record != nil {
		t.Fatalf("passive response leaked a record: %s", body)
	}

	rec := env.waitForContent(t, "u2", "favorite color")
	if rec.ThreadID != "t1" {
		t.Fatalf("ThreadID = %q, want %q", rec.ThreadID, "t1")
	}
}

func TestCapture_Validation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  memapi.CaptureRequest
	}{
		{name: "missing user", req: memapi.CaptureRequest{Content: "something"}},
		{name: "empty content", req: memapi.CaptureRequest{UserID: "u1", Content: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.request(t, http.MethodPost, "/v1/capture", testToken, tt.req)
			if status != http.StatusBadRequest {
				t.Fatalf("POST /v1/capture = %d, want %d (body %s)", status, http.StatusBadRequest, body)
			}
		})
	}
}

func TestRecall_RequiresUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	status, body := env.request(t, http.MethodPost, "/v1/recall", testToken, memapi.RecallRequest{
		Query: "anything",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("POST /v1/recall = %d, want %d (body %s)", status, http.StatusBadRequest, body)
	}
}
