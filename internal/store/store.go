package store

import (
	"context"

	"github.com/boardsync/boardsync/internal/models"
)

// Store defines the persistence interface for boardsync.
type Store interface {
	// Tasks
	ListTasks(ctx context.Context) ([]*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	GetTaskByIssueNumber(ctx context.Context, number int) (*models.Task, error)
	CreateTask(ctx context.Context, t *models.Task) error
	UpdateTask(ctx context.Context, id string, upd models.TaskUpdate) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) (bool, error)
	// ClaimAgent atomically moves a task's agent status from idle to working
	// and the task to the active column. It fails when the task is missing or
	// a run is already in flight.
	ClaimAgent(ctx context.Context, id string) (*models.Task, error)

	// Labels
	ReplaceLabels(ctx context.Context, taskID string, labels []models.Label) error
	AddLabel(ctx context.Context, taskID, name, color string) error
	RemoveLabel(ctx context.Context, taskID, name string) error

	// Milestones
	ReplaceMilestones(ctx context.Context, taskID string, milestones []models.Milestone) error
	AddMilestone(ctx context.Context, taskID, title string) (*models.Milestone, error)
	ToggleMilestone(ctx context.Context, id string) (*models.Milestone, error)
	RemoveMilestone(ctx context.Context, id string) (bool, error)

	// Engineers
	ListEngineers(ctx context.Context) ([]*models.Engineer, error)
	GetEngineer(ctx context.Context, id string) (*models.Engineer, error)
	CreateEngineer(ctx context.Context, e *models.Engineer) error
	DeleteEngineer(ctx context.Context, id string) error

	// Agent sessions
	CreateSession(ctx context.Context, taskID string) (*models.AgentSession, error)
	ListSessionsForTask(ctx context.Context, taskID string) ([]*models.AgentSession, error)
	AddEvent(ctx context.Context, sessionID, eventType, message string, metadata map[string]any) (*models.AgentEvent, error)
	ListEventsForSession(ctx context.Context, sessionID string) ([]*models.AgentEvent, error)
	EndSession(ctx context.Context, id string, status models.SessionStatus) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
