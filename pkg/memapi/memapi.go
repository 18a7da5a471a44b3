// Package memapi defines the JSON contract of the mnemod HTTP and WebSocket
// surfaces. The server and client code share these types; they carry no
// behavior beyond small conversion helpers.
package memapi

import "time"

// Memory is the wire form of one stored record. Content is always the
// redacted text; original sensitive values never leave the engine.
type Memory struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ThreadID   string    `json:"thread_id,omitempty"`
	Content    string    `json:"content"`
	Tier       string    `json:"tier"`
	Priority   float64   `json:"priority"`
	Confidence float64   `json:"confidence"`
	Repeats    int       `json:"repeats"`
	Threads    []string  `json:"threads,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	LastSeenAt time.Time `json:"last_seen_at"`

	// DeletedAt is set only in audit listings that include tombstones.
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// CaptureRequest asks the engine to remember one observation.
type CaptureRequest struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id,omitempty"`
	Content  string `json:"content"`

	// Explicit marks a deliberate "remember this". Explicit saves are
	// processed synchronously, skip the quality gate, and land durable.
	Explicit bool `json:"explicit,omitempty"`

	// Priority pins the priority of an explicit save. Zero lets the
	// engine choose.
	Priority float64 `json:"priority,omitempty"`

	// RecentTurns is the tail of the surrounding conversation, newest
	// last. Passive capture uses it to judge relevance.
	RecentTurns []string `json:"recent_turns,omitempty"`
}

// CaptureResponse reports what happened to an observation. For passive
// captures only Queued is set: processing continues asynchronously.
type CaptureResponse struct {
	Queued  bool    `json:"queued,omitempty"`
	Outcome string  `json:"outcome,omitempty"` // inserted, superseded, rejected, dropped
	Quality float64 `json:"quality,omitempty"`
	Record  *Memory `json:"record,omitempty"`
}

// RecallRequest fetches ranked memories for a user.
type RecallRequest struct {
	UserID string `json:"user_id"`

	// Query biases the ordering toward keyword matches. Optional.
	Query string `json:"query,omitempty"`

	// ThreadID narrows recall to one thread. Empty means cross-thread.
	ThreadID string `json:"thread_id,omitempty"`

	// MaxItems caps the result; the server clamps it to its hard limit.
	MaxItems int `json:"max_items,omitempty"`

	// DeadlineMS is the time budget in milliseconds. Zero means the
	// server default; the server clamps it to its hard limit.
	DeadlineMS int `json:"deadline_ms,omitempty"`
}

// Deadline converts the millisecond budget to a duration.
func (r RecallRequest) Deadline() time.Duration {
	return time.Duration(r.DeadlineMS) * time.Millisecond
}

// RecallResponse carries the ranked memories. TimedOut reports that the
// deadline elapsed and the list is whatever was ready by then.
type RecallResponse struct {
	Memories  []Memory `json:"memories"`
	ElapsedMS int64    `json:"elapsed_ms"`
	TimedOut  bool     `json:"timed_out,omitempty"`
}

// UpdateRequest edits a stored memory. Nil fields stay unchanged.
type UpdateRequest struct {
	UserID   string   `json:"user_id"`
	Content  *string  `json:"content,omitempty"`
	Tier     *string  `json:"tier,omitempty"`
	Priority *float64 `json:"priority,omitempty"`
}

// ProfileFact is one durable memory inside a profile.
type ProfileFact struct {
	RecordID  string    `json:"record_id"`
	Content   string    `json:"content"`
	Tier      string    `json:"tier"`
	Priority  float64   `json:"priority"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is the derived per-user summary.
type Profile struct {
	UserID      string           `json:"user_id"`
	Facts       []ProfileFact    `json:"facts"`
	Counts      map[string]int64 `json:"counts"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Turn is one conversational exchange streamed over the WebSocket ingest.
type Turn struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id,omitempty"`
	Content  string `json:"content"`
}

// TurnAck confirms a streamed turn was queued, or reports why it was not.
type TurnAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
