package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mnemod/mnemod/internal/capture"
	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/pkg/memapi"
)

// writeJSON marshals v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, memapi.ErrorResponse{Error: msg})
}

// statusFor maps service errors onto HTTP status codes. Owner mismatches
// read as not-found so record IDs leak nothing across users.
func statusFor(err error) int {
	switch {
	case errors.Is(err, record.ErrNotFound),
		errors.Is(err, record.ErrOwnerMismatch):
		return http.StatusNotFound
	case errors.Is(err, record.ErrMissingUser),
		errors.Is(err, record.ErrEmptyContent),
		errors.Is(err, record.ErrAllRedacted),
		errors.Is(err, record.ErrInvalidTier),
		errors.Is(err, record.ErrPriorityRange),
		errors.Is(err, record.ErrConfidenceRange):
		return http.StatusBadRequest
	case errors.Is(err, record.ErrDeleted):
		return http.StatusConflict
	case errors.Is(err, capture.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, capture.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// toMemory converts a stored record to its wire form. The redaction map
// never crosses the wire.
func toMemory(rec *record.Record) *memapi.Memory {
	if rec == nil {
		return nil
	}
	m := &memapi.Memory{
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
	if rec.DeletedAt != nil {
		at := *rec.DeletedAt
		m.DeletedAt = &at
	}
	return m
}

// toMemories converts a record slice, returning an empty slice rather than
// nil so list responses always encode as [].
func toMemories(recs []*record.Record) []memapi.Memory {
	out := make([]memapi.Memory, 0, len(recs))
	for _, rec := range recs {
		if m := toMemory(rec); m != nil {
			out = append(out, *m)
		}
	}
	return out
}
