package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mnemod/mnemod/internal/event"
	"github.com/mnemod/mnemod/internal/record"
	"github.com/mnemod/mnemod/internal/redact"
	"github.com/mnemod/mnemod/internal/store"
	"github.com/mnemod/mnemod/pkg/memapi"
)

// handleListRecords lists a user's live records, filtered by thread or
// tier when requested. include_deleted=true switches to the audit view,
// which returns soft-deleted records alongside live ones.
func (g *Gateway) handleListRecords() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := store.ListQuery{
			UserID:   r.URL.Query().Get("user_id"),
			ThreadID: r.URL.Query().Get("thread_id"),
		}
		if q.UserID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		if raw := r.URL.Query().Get("tier"); raw != "" {
			tier, err := record.ParseTier(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			q.Tier = tier
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			q.Limit = n
		}
		if raw := r.URL.Query().Get("include_deleted"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "include_deleted must be a boolean")
				return
			}
			q.IncludeDeleted = v
		}

		recs, err := g.cfg.Store.List(r.Context(), q)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toMemories(recs))
	}
}

func (g *Gateway) handleGetRecord() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}

		rec, err := g.cfg.Store.Get(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toMemory(rec))
	}
}

// handleUpdateRecord applies an explicit owner edit. New content passes
// through the redactor again so an edit cannot reintroduce raw PII.
func (g *Gateway) handleUpdateRecord() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req memapi.UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}

		up := store.Update{
			ID:       chi.URLParam(r, "id"),
			UserID:   req.UserID,
			Priority: req.Priority,
			Now:      time.Now().UTC(),
		}
		if req.Content != nil {
			red := g.cfg.Redactor.Redact(*req.Content)
			if redact.OnlyPlaceholders(red.Text) {
				writeError(w, http.StatusBadRequest, record.ErrAllRedacted.Error())
				return
			}
			up.Content = &red.Text
			up.RedactionMap = red.Map
		}
		if req.Tier != nil {
			tier, err := record.ParseTier(*req.Tier)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			up.Tier = &tier
		}

		rec, err := g.cfg.Store.Update(r.Context(), up)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}

		g.publish(event.Event{
			Type:     event.RecordUpdated,
			UserID:   rec.UserID,
			RecordID: rec.ID,
			Tier:     rec.Tier,
		})
		writeJSON(w, http.StatusOK, toMemory(rec))
	}
}

func (g *Gateway) handleDeleteRecord() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		id := chi.URLParam(r, "id")

		if err := g.cfg.Store.SoftDelete(r.Context(), userID, id, time.Now().UTC()); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}

		g.publish(event.Event{
			Type:     event.RecordDeleted,
			UserID:   userID,
			RecordID: id,
		})
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleProfile serves the cached profile summary for one user.
func (g *Gateway) handleProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := g.cfg.Profiles.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}

		out := memapi.Profile{
			UserID:      p.UserID,
			Facts:       make([]memapi.ProfileFact, 0, len(p.Facts)),
			Counts:      make(map[string]int64, len(p.Counts)),
			GeneratedAt: p.GeneratedAt,
		}
		for _, f := range p.Facts {
			out.Facts = append(out.Facts, memapi.ProfileFact{
				RecordID:  f.RecordID,
				Content:   f.Content,
				Tier:      string(f.Tier),
				Priority:  f.Priority,
				UpdatedAt: f.UpdatedAt,
			})
		}
		for tier, n := range p.Counts {
			out.Counts[string(tier)] = n
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// publish emits a record lifecycle event when a bus is wired.
func (g *Gateway) publish(ev event.Event) {
	if g.cfg.Bus != nil {
		g.cfg.Bus.Publish(ev)
	}
}
