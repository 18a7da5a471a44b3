package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/coder/websocket"

	"github.com/mnemod/mnemod/internal/capture"
	"github.com/mnemod/mnemod/pkg/memapi"
)

const (
	// turnContext is how many preceding turns per thread feed the
	// relevance signal of each submission.
	turnContext = 3

	// maxTrackedThreads bounds the per-connection context map.
	maxTrackedThreads = 256
)

// handleTurns upgrades to a websocket and ingests conversation turns as
// passive observations. Each frame is one memapi.Turn; each gets a
// memapi.TurnAck back.
func (g *Gateway) handleTurns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("gateway: websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		g.logger.Info("gateway: turn stream opened", "remote", r.RemoteAddr)
		g.readTurns(r.Context(), conn)
		g.logger.Info("gateway: turn stream closed", "remote", r.RemoteAddr)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

// readTurns consumes frames until the peer disconnects. It keeps the last
// few turns per thread so passive submissions carry scoring context.
func (g *Gateway) readTurns(ctx context.Context, conn *websocket.Conn) {
	recent := make(map[string][]string)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var turn memapi.Turn
		if err := json.Unmarshal(data, &turn); err != nil {
			g.sendAck(ctx, conn, memapi.TurnAck{Error: "invalid turn payload"})
			continue
		}
		if turn.UserID == "" || strings.TrimSpace(turn.Content) == "" {
			g.sendAck(ctx, conn, memapi.TurnAck{Error: "user_id and content are required"})
			continue
		}

		key := turn.UserID + "\x00" + turn.ThreadID
		err = g.cfg.Capture.Submit(capture.Observation{
			UserID:      turn.UserID,
			ThreadID:    turn.ThreadID,
			Content:     turn.Content,
			Source:      capture.SourcePassive,
			RecentTurns: slices.Clone(recent[key]),
		})

		ack := memapi.TurnAck{OK: err == nil}
		if err != nil {
			ack.Error = err.Error()
		}
		g.sendAck(ctx, conn, ack)

		if len(recent) >= maxTrackedThreads {
			// A client juggling this many threads over one socket is
			// misbehaving; resetting only costs scoring context.
			clear(recent)
		}
		turns := append(recent[key], turn.Content)
		if len(turns) > turnContext {
			turns = turns[len(turns)-turnContext:]
		}
		recent[key] = turns
	}
}

func (g *Gateway) sendAck(ctx context.Context, conn *websocket.Conn, ack memapi.TurnAck) {
	data, err := json.Marshal(ack)
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		g.logger.Debug("gateway: ack write failed", "error", err)
	}
}
