package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mnemod/mnemod/internal/capture"
	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/recall"
	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/store"
	"github.com/mnemod/mnemod/pkg/memapi"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("memory_save",
		mcp.WithDescription("Save a memory for a user. Tool saves are explicit: they are stored even when they would not clear the passive quality gate."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the memory.")),
		mcp.WithString("content", mcp.Required(), mcp.Description("The fact to remember.")),
		mcp.WithString("thread_id", mcp.Description("Conversation the fact came from.")),
		mcp.WithNumber("priority", mcp.Description("Override priority in (0, 1].")),
	), s.handleSave)

	s.mcp.AddTool(mcp.NewTool("memory_recall",
		mcp.WithDescription("Recall the most relevant memories for a user under a hard time budget."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the memories.")),
		mcp.WithString("query", mcp.Description("Keywords to rank against.")),
		mcp.WithString("thread_id", mcp.Description("Narrow recall to one conversation.")),
		mcp.WithNumber("max_items", mcp.Description("Result cap, at most 20.")),
		mcp.WithNumber("deadline_ms", mcp.Description("Time budget in milliseconds, at most 500.")),
	), s.handleRecall)

	s.mcp.AddTool(mcp.NewTool("memory_forget",
		mcp.WithDescription("Forget one memory by ID."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the memory.")),
		mcp.WithString("id", mcp.Required(), mcp.Description("ID of the memory to forget.")),
	), s.handleForget)

	s.mcp.AddTool(mcp.NewTool("memory_list",
		mcp.WithDescription("List a user's memories, newest first."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the memories.")),
		mcp.WithString("tier", mcp.Description("Filter by tier: tier1, tier2, or tier3.")),
		mcp.WithNumber("limit", mcp.Description("Cap the result.")),
	), s.handleList)
}

func (s *Server) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.cfg.Capture.Save(ctx, capture.Observation{
		UserID:   userID,
		ThreadID: req.GetString("thread_id", ""),
		Content:  content,
		Priority: req.GetFloat("priority", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(memapi.CaptureResponse{
		Outcome: string(res.Outcome),
		Quality: res.Quality,
		Record:  toMemory(res.Record),
	})
}

func (s *Server) handleRecall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := s.cfg.Recall.Recall(ctx, recall.Params{
		UserID:   userID,
		Query:    req.GetString("query", ""),
		ThreadID: req.GetString("thread_id", ""),
		MaxItems: req.GetInt("max_items", 0),
		Deadline: time.Duration(req.GetInt("deadline_ms", 0)) * time.Millisecond,
	})
	return jsonResult(memapi.RecallResponse{
		Memories:  toMemories(res.Memories),
		ElapsedMS: res.Elapsed.Milliseconds(),
		TimedOut:  res.TimedOut,
	})
}

func (s *Server) handleForget(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := s.cfg.Store.SoftDelete(ctx, userID, id, time.Now().UTC()); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(event.Event{
			Type:     event.RecordDeleted,
			UserID:   userID,
			RecordID: id,
		})
	}
	return jsonResult(struct {
		Forgotten bool `json:"forgotten"`
	}{Forgotten: true})
}

func (s *Server) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	q := store.ListQuery{UserID: userID, Limit: req.GetInt("limit", 0)}
	if raw := req.GetString("tier", ""); raw != "" {
		tier, err := record.ParseTier(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		q.Tier = tier
	}

	recs, err := s.cfg.Store.List(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(toMemories(recs))
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toMemory(rec *record.Record) *memapi.Memory {
	if rec == nil {
		return nil
	}
	return &memapi.Memory{
		ID:         rec.ID,
		UserID:     rec.UserID,
		ThreadID:   rec.ThreadID,
		Content:    rec.Content,
		Tier:       string(rec.Tier),
		Priority:   rec.Priority,
		Confidence: rec.Confidence,
		Repeats:    rec.Repeats,
		Threads:    rec.ThreadSet,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
		LastSeenAt: rec.LastSeenAt,
	}
}

func toMemories(recs []*record.Record) []memapi.Memory {
	out := make([]memapi.Memory, 0, len(recs))
	for _, rec := range recs {
		if m := toMemory(rec); m != nil {
			out = append(out, *m)
		}
	}
	return out
}
