package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/erg.report/internal/monitoring"
	"github.com/banshee-data/erg.report/internal/session"
	"github.com/banshee-data/erg.report/internal/statistics"
)

const wsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	// displays are served from the monitor itself or from the local network
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSMessage is sent to WebSocket clients. Type is "metrics", "ack" or
// "error".
type WSMessage struct {
	Type    string              `json:"type"`
	Metrics *statistics.Metrics `json:"metrics,omitempty"`
	Command session.CommandName `json:"command,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// handleWebSocket streams every session record to the client, starting with
// the latest one, and accepts commands in the body format of POST
// /api/command.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Warnf("api: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, metrics := s.source.Subscribe()
	defer s.source.Unsubscribe(id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replies := make(chan WSMessage, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readCommands(ctx, conn, replies)
	}()

	write := func(msg WSMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			monitoring.Debugf("api: websocket write failed: %v", err)
			return false
		}
		return true
	}

	last := s.source.Last()
	if !write(WSMessage{Type: "metrics", Metrics: &last}) {
		return
	}
	for {
		select {
		case <-done:
			return
		case rec, ok := <-metrics:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
					time.Now().Add(wsWriteWait))
				return
			}
			if !write(WSMessage{Type: "metrics", Metrics: &rec}) {
				return
			}
		case msg := <-replies:
			if !write(msg) {
				return
			}
		}
	}
}

// readCommands dispatches incoming commands until the connection fails.
// Replies go back through the writer loop, which owns the connection's
// write side.
func (s *Server) readCommands(ctx context.Context, conn *websocket.Conn, replies chan<- WSMessage) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				monitoring.Debugf("api: websocket read failed: %v", err)
			}
			return
		}

		var reply WSMessage
		var cmd session.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			reply = WSMessage{Type: "error", Error: "invalid command: " + err.Error()}
		} else if err := s.Dispatch(ctx, cmd); err != nil {
			reply = WSMessage{Type: "error", Command: cmd.Name, Error: err.Error()}
		} else {
			reply = WSMessage{Type: "ack", Command: cmd.Name}
		}

		select {
		case replies <- reply:
		case <-ctx.Done():
			return
		}
	}
}
