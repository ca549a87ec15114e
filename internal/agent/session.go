package agent

import (
	"context"
	"log/slog"

	"github.com/boardsync/boardsync/internal/models"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/ws"
)

// Broadcaster pushes board messages to connected clients.
type Broadcaster interface {
	Broadcast(ws.Message)
}

// sessionLog records agent events against a session and mirrors each one
// to the websocket hub so the board shows the run live.
type sessionLog struct {
	store     store.Store
	hub       Broadcaster
	taskID    string
	sessionID string
}

func startSession(ctx context.Context, s store.Store, hub Broadcaster, taskID string) (*sessionLog, error) {
	session, err := s.CreateSession(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return &sessionLog{store: s, hub: hub, taskID: taskID, sessionID: session.ID}, nil
}

// Emit appends an event to the session and broadcasts it. Event recording
// is best-effort: a logging failure never aborts the run.
func (l *sessionLog) Emit(ctx context.Context, eventType, message string, metadata map[string]any) {
	event, err := l.store.AddEvent(ctx, l.sessionID, eventType, message, metadata)
	if err != nil {
		slog.Warn("record agent event", "session", l.sessionID, "error", err)
		return
	}
	l.hub.Broadcast(ws.AgentEvent(l.taskID, event))
}

// Complete seals the session as completed.
func (l *sessionLog) Complete(ctx context.Context) {
	if err := l.store.EndSession(ctx, l.sessionID, models.SessionStatusCompleted); err != nil {
		slog.Warn("end agent session", "session", l.sessionID, "error", err)
	}
}

// Fail records the failure and seals the session as failed.
func (l *sessionLog) Fail(ctx context.Context, runErr error) {
	l.Emit(ctx, "error", runErr.Error(), nil)
	if err := l.store.EndSession(ctx, l.sessionID, models.SessionStatusFailed); err != nil {
		slog.Warn("end agent session", "session", l.sessionID, "error", err)
	}
}
