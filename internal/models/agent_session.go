package models

import "time"

// SessionStatus represents the state of an agent session.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// AgentSession records one orchestrator run against a task. It is created
// when the run starts and sealed (status + EndedAt) exactly once at the
// terminal transition.
type AgentSession struct {
	ID        string        `json:"id"`
	TaskID    string        `json:"taskId"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
}

// AgentEvent is one append-only entry in a session's progress log.
// Events are never mutated or deleted.
type AgentEvent struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	Type      string         `json:"type"` // started, thinking, tool:*, spec:refined, committed, pr:opened, done, error
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
