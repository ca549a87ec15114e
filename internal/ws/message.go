package ws

import "github.com/boardsync/boardsync/internal/models"

// Message kinds pushed to connected board clients.
const (
	KindTasksInit   = "tasks:init"
	KindTaskCreated = "task:created"
	KindTaskUpdated = "task:updated"
	KindTaskDeleted = "task:deleted"
	KindAgentEvent  = "agent:event"
)

// Message is the envelope sent over the websocket. Only the fields
// relevant to the kind are populated.
type Message struct {
	Type   string              `json:"type"`
	Task   *models.Task        `json:"task,omitempty"`
	TaskID string              `json:"taskId,omitempty"`
	Tasks  []*models.Task      `json:"tasks,omitempty"`
	Event  *models.AgentEvent  `json:"event,omitempty"`
}

// TaskCreated builds a task:created message.
func TaskCreated(task *models.Task) Message {
	return Message{Type: KindTaskCreated, Task: task}
}

// TaskUpdated builds a task:updated message.
func TaskUpdated(task *models.Task) Message {
	return Message{Type: KindTaskUpdated, Task: task}
}

// TaskDeleted builds a task:deleted message.
func TaskDeleted(taskID string) Message {
	return Message{Type: KindTaskDeleted, TaskID: taskID}
}

// TasksInit builds the snapshot message sent to a freshly connected client.
func TasksInit(tasks []*models.Task) Message {
	if tasks == nil {
		tasks = []*models.Task{}
	}
	return Message{Type: KindTasksInit, Tasks: tasks}
}

// AgentEvent builds an agent:event message.
func AgentEvent(taskID string, event *models.AgentEvent) Message {
	return Message{Type: KindAgentEvent, TaskID: taskID, Event: event}
}
