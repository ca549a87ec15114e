package api

import (
	"log/slog"
	"net/http"

	"golang.org/x/net/websocket"

	"github.com/boardsync/boardsync/internal/ws"
)

func (s *Server) websocketHandler() http.Handler {
	return websocket.Handler(s.serveWS)
}

// serveWS streams board messages to one client. The client receives a full
// task snapshot first, then every change as it happens.
func (s *Server) serveWS(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	tasks, err := s.store.ListTasks(conn.Request().Context())
	if err != nil {
		slog.Error("websocket snapshot", "error", err)
		return
	}

	id, ch := s.hub.Subscribe(ws.TasksInit(tasks))
	slog.Debug("websocket client connected", "subscriber", id)

	// The board sends nothing upstream; reading only detects disconnect.
	go func() {
		var discard string
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				s.hub.Unsubscribe(id)
				return
			}
		}
	}()

	for msg := range ch {
		if err := websocket.JSON.Send(conn, msg); err != nil {
			s.hub.Unsubscribe(id)
			break
		}
	}
	slog.Debug("websocket client disconnected", "subscriber", id)
}
