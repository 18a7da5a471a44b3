package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// healthProbeTimeout bounds the store ping so a wedged database cannot
// hang the health check.
const healthProbeTimeout = time.Second

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status     string `json:"status"` // "ok" or "degraded"
	Store      string `json:"store"`  // "ok" or "unreachable"
	QueueDepth int    `json:"queue_depth"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when the store answers, 503 when it does not.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:     "ok",
			Store:      "ok",
			QueueDepth: g.cfg.Capture.QueueDepth(),
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()
		if _, err := g.cfg.Store.Stats(ctx); err != nil {
			resp.Status = "degraded"
			resp.Store = "unreachable"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
