package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mnemod/mnemod/internal/metrics"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	Metrics       metrics.Snapshot `json:"metrics"`
	Store         StoreStatus      `json:"store"`
}

// StoreStatus summarizes record counts for the status surface.
type StoreStatus struct {
	Live    int64            `json:"live"`
	Deleted int64            `json:"deleted"`
	ByTier  map[string]int64 `json:"by_tier"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt) / time.Second),
		}
		if g.cfg.Metrics != nil {
			resp.Metrics = g.cfg.Metrics.Snapshot()
		}

		stats, err := g.cfg.Store.Stats(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		resp.Store = StoreStatus{
			Live:    stats.Live,
			Deleted: stats.Deleted,
			ByTier:  make(map[string]int64, len(stats.ByTier)),
		}
		for tier, n := range stats.ByTier {
			resp.Store.ByTier[string(tier)] = n
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
