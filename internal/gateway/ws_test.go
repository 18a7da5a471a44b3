package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mnemod/mnemod/pkg/memapi"
)

func dialTurns(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.srv.URL+"/ws/turns", &websocket.DialOptions{
		HTTPClient: env.srv.Client(),
		HTTPHeader: http.Header{"Authorization": {"Bearer " + testToken}},
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	})
	return conn
}

func sendTurn(t *testing.T, conn *websocket.Conn, payload []byte) memapi.TurnAck {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read ack: %v", err)
	}

	var ack memapi.TurnAck
	if err := json.Unmarshal(data, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

func marshalTurn(t *testing.T, turn memapi.Turn) []byte {
	t.Helper()
	data, err := json.Marshal(turn)
	if err != nil {
		t.Fatalf("marshal turn: %v", err)
	}
	return data
}

func TestTurnStream_IngestsWithContext(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	conn := dialTurns(t, env)

	// The first turn primes the thread context; on its own it scores
	// below the storage threshold.
	ack := sendTurn(t, conn, marshalTurn(t, memapi.Turn{
		UserID: "u1", ThreadID: "t1", Content: "what is your favorite color",
	}))
	if !ack.OK {
		t.Fatalf("priming turn ack = %+v, want ok", ack)
	}

	ack = sendTurn(t, conn, marshalTurn(t, memapi.Turn{
		UserID: "u1", ThreadID: "t1", Content: "my favorite color is red",
	}))
	if !ack.OK {
		t.Fatalf("answer turn ack = %+v, want ok", ack)
	}

	rec := env.waitForContent(t, "u1", "favorite color is red")
	if rec.ThreadID != "t1" {
		t.Fatalf("ThreadID = %q, want %q", rec.ThreadID, "t1")
	}
}

func TestTurnStream_BadFramesKeepConnectionAlive(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	conn := dialTurns(t, env)

	ack := sendTurn(t, conn, []byte("not json"))
	if ack.OK || ack.Error == "" {
		t.Fatalf("garbage frame ack = %+v, want an error", ack)
	}

	ack = sendTurn(t, conn, marshalTurn(t, memapi.Turn{ThreadID: "t1", Content: "no user"}))
	if ack.OK || ack.Error == "" {
		t.Fatalf("userless turn ack = %+v, want an error", ack)
	}

	// The connection still works after rejected frames.
	ack = sendTurn(t, conn, marshalTurn(t, memapi.Turn{
		UserID: "u1", ThreadID: "t1", Content: "still listening after bad frames",
	}))
	if !ack.OK {
		t.Fatalf("valid turn ack = %+v, want ok", ack)
	}
}
