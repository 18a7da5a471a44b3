package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mnemod/mnemod/internal/capture"
	"github.com/mnemod/mnemod/internal/recall"
	"github.com/mnemod/mnemod/pkg/memapi"
)

// handleCapture accepts one observation. Explicit saves run synchronously
// and report their outcome; passive ones are queued and acknowledged with
// 202 regardless of whether they survive the quality gate.
func (g *Gateway) handleCapture() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req memapi.CaptureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			writeError(w, http.StatusBadRequest, "content is required")
			return
		}

		obs := capture.Observation{
			UserID:      req.UserID,
			ThreadID:    req.ThreadID,
			Content:     req.Content,
			Source:      capture.SourcePassive,
			RecentTurns: req.RecentTurns,
		}

		if req.Explicit {
			obs.Source = capture.SourceExplicit
			obs.Priority = req.Priority

			res, err := g.cfg.Capture.Save(r.Context(), obs)
			if err != nil {
				writeError(w, statusFor(err), err.Error())
				return
			}
			writeJSON(w, http.StatusOK, memapi.CaptureResponse{
				Outcome: string(res.Outcome),
				Quality: res.Quality,
				Record:  toMemory(res.Record),
			})
			return
		}

		if err := g.cfg.Capture.Submit(obs); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, memapi.CaptureResponse{Queued: true})
	}
}

// handleRecall runs a bounded recall query. Unset limits fall back to the
// gateway's configured defaults.
func (g *Gateway) handleRecall() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req memapi.RecallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}

		p := recall.Params{
			UserID:   req.UserID,
			Query:    req.Query,
			ThreadID: req.ThreadID,
			MaxItems: req.MaxItems,
			Deadline: req.Deadline(),
		}
		if p.MaxItems <= 0 {
			p.MaxItems = g.cfg.RecallMaxItems
		}
		if p.Deadline <= 0 {
			p.Deadline = g.cfg.RecallDeadline
		}

		res := g.cfg.Recall.Recall(r.Context(), p)
		writeJSON(w, http.StatusOK, memapi.RecallResponse{
			Memories:  toMemories(res.Memories),
			ElapsedMS: res.Elapsed.Milliseconds(),
			TimedOut:  res.TimedOut,
		})
	}
}
