package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mnemod/mnemod/internal/capture"
	"github.com/mnemod/mnemod/internal/dedup"
	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/lane"
	"github.com/mnemod/mnemod/internal/recall"
	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/redact"
	"github.com/mnemod/mnemod/internal/score"
	"github.com/mnemod/mnemod/internal/store"
	"github.com/mnemod/mnemod/pkg/memapi"
)

func newTestServer(t *testing.T) (*Server, *store.DB) {
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

	pipe := capture.NewPipeline(capture.PipelineConfig{
		Store:      db,
		Dedup:      dedup.NewEngine(db, 50, 0.75),
		Scorer:     score.NewScorer(score.DefaultWeights()),
		Thresholds: score.DefaultThresholds(),
		Redactor:   redact.NewRedactor(redact.DefaultDetectors()...),
		Locks:      lane.NewLocks(),
		Logger:     logger,
	})
	caps, err := capture.NewService(capture.ServiceConfig{Pipeline: pipe, Logger: logger})
	if err != nil {
		t.Fatalf("capture.NewService: %v", err)
	}

	srv, err := New(Config{
		Capture: caps,
		Recall:  recall.NewEngine(recall.Config{Store: db, Logger: logger}),
		Store:   db,
		Bus:     event.NewBus(),
		Version: "test",
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, db
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) *mcp.CallToolResult {
	t.Helper()

	var req mcp.CallToolRequest
	req.Params.Arguments = args

	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("tool handler: %v", err)
	}
	return res
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()

	if len(res.Content) == 0 {
		t.Fatal("tool result has no content")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] is %T, want mcp.TextContent", res.Content[0])
	}
	return tc.Text
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("New(empty config) = %v, want ErrMissingDependency", err)
	}
}

func TestMemorySave_StoresRecord(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	res := callTool(t, srv.handleSave, map[string]any{
		"user_id":   "u1",
		"thread_id": "t1",
		"content":   "I am allergic to shellfish",
	})
	if res.IsError {
		t.Fatalf("memory_save errored: %s", textOf(t, res))
	}

	var cr memapi.CaptureResponse
	if err := json.Unmarshal([]byte(textOf(t, res)), &cr); err != nil {
		t.Fatalf("unmarshal save result: %v", err)
	}
	if cr.Outcome != "inserted" {
		t.Fatalf("Outcome = %q, want %q", cr.Outcome, "inserted")
	}
	if cr.Record == nil || cr.Record.ID == "" {
		t.Fatalf("save result has no record: %+v", cr)
	}
}

func TestMemorySave_MissingArgs(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	res := callTool(t, srv.handleSave, map[string]any{"user_id": "u1"})
	if !res.IsError {
		t.Fatal("memory_save without content should error")
	}
}

func TestMemoryRecall_FindsSaved(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	res := callTool(t, srv.handleSave, map[string]any{
		"user_id": "u1",
		"content": "I am allergic to shellfish",
	})
	var cr memapi.CaptureResponse
	if err := json.Unmarshal([]byte(textOf(t, res)), &cr); err != nil {
		t.Fatalf("unmarshal save result: %v", err)
	}

	res = callTool(t, srv.handleRecall, map[string]any{
		"user_id": "u1",
		"query":   "shellfish",
	})
	if res.IsError {
		t.Fatalf("memory_recall errored: %s", textOf(t, res))
	}

	var rr memapi.RecallResponse
	if err := json.Unmarshal([]byte(textOf(t, res)), &rr); err != nil {
		t.Fatalf("unmarshal recall result: %v", err)
	}
	if len(rr.Memories) != 1 || rr.Memories[0].ID != cr.Record.ID {
		t.Fatalf("recall returned %d memories, want the saved record", len(rr.Memories))
	}
}

func TestMemoryForget_RemovesRecord(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t)

	res := callTool(t, srv.handleSave, map[string]any{
		"user_id": "u1",
		"content": "temporary note about the meeting",
	})
	var cr memapi.CaptureResponse
	if err := json.Unmarshal([]byte(textOf(t, res)), &cr); err != nil {
		t.Fatalf("unmarshal save result: %v", err)
	}

	res = callTool(t, srv.handleForget, map[string]any{
		"user_id": "u1",
		"id":      cr.Record.ID,
	})
	if res.IsError {
		t.Fatalf("memory_forget errored: %s", textOf(t, res))
	}

	res = callTool(t, srv.handleList, map[string]any{"user_id": "u1"})
	var listed []memapi.Memory
	if err := json.Unmarshal([]byte(textOf(t, res)), &listed); err != nil {
		t.Fatalf("unmarshal list result: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("list after forget returned %d memories, want 0", len(listed))
	}
}

func TestMemoryList_FiltersTier(t *testing.T) {
	t.Parallel()
	srv, db := newTestServer(t)

	seed := func(content string, tier record.Tier) {
		t.Helper()
		err := db.Insert(context.Background(), &record.Record{
			UserID:     "u1",
			Content:    content,
			Tier:       tier,
			Priority:   0.5,
			Confidence: 0.7,
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	seed("lives in Lyon", record.Tier1)
	seed("prefers window seats", record.Tier2)

	res := callTool(t, srv.handleList, map[string]any{
		"user_id": "u1",
		"tier":    "tier1",
	})
	if res.IsError {
		t.Fatalf("memory_list errored: %s", textOf(t, res))
	}

	var listed []memapi.Memory
	if err := json.Unmarshal([]byte(textOf(t, res)), &listed); err != nil {
		t.Fatalf("unmarshal list result: %v", err)
	}
	if len(listed) != 1 || listed[0].Content != "lives in Lyon" {
		t.Fatalf("tier filter returned %d memories, want only the tier1 record", len(listed))
	}

	res = callTool(t, srv.handleList, map[string]any{
		"user_id": "u1",
		"tier":    "tier9",
	})
	if !res.IsError {
		t.Fatal("memory_list with an invalid tier should error")
	}
}
