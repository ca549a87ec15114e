package models

import "time"

// Column identifies a board workflow stage.
type Column string

const (
	ColumnBacklog       Column = "backlog"
	ColumnActive        Column = "active"
	ColumnInReview      Column = "in-review"
	ColumnReadyToDeploy Column = "ready-to-deploy"
	ColumnProduction    Column = "production"
)

// ValidColumns is the fixed ordered set of board columns.
var ValidColumns = []Column{
	ColumnBacklog,
	ColumnActive,
	ColumnInReview,
	ColumnReadyToDeploy,
	ColumnProduction,
}

// IsValidColumn reports whether c is one of the configured board columns.
func IsValidColumn(c Column) bool {
	for _, v := range ValidColumns {
		if v == c {
			return true
		}
	}
	return false
}

// AgentStatus represents what the coding agent is doing with a task.
type AgentStatus string

const (
	AgentStatusIdle           AgentStatus = "idle"
	AgentStatusWorking        AgentStatus = "working"
	AgentStatusCommitting     AgentStatus = "committing"
	AgentStatusAwaitingReview AgentStatus = "awaiting-review"
)

// Label is a (name, color) pair attached to a task. Names are unique per task.
type Label struct {
	ID     string `json:"-"`
	TaskID string `json:"-"`
	Name   string `json:"name"`
	Color  string `json:"color"`
}

// Milestone is a checklist item belonging to a task. CompletedAt is set
// exactly when Completed transitions false->true and cleared on the reverse.
type Milestone struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"-"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Task is a tracked unit of work on the board, optionally mirrored to a
// GitHub issue and/or pull request.
type Task struct {
	ID                 string      `json:"id"`
	Identifier         string      `json:"identifier"` // human-readable, e.g. BPM-12
	Name               string      `json:"name"`
	Description        string      `json:"description,omitempty"`
	Column             Column      `json:"column"`
	Labels             []Label     `json:"labels"`
	Milestones         []Milestone `json:"milestones"`
	GithubIssueNumber  int         `json:"githubIssueNumber,omitempty"` // 0 = not linked
	GithubIssueURL     string      `json:"githubIssueUrl,omitempty"`
	PRURL              string      `json:"prUrl,omitempty"`
	BranchName         string      `json:"branchName,omitempty"`
	AssignedEngineerID string      `json:"assignedEngineerId,omitempty"`
	AgentStatus        AgentStatus `json:"agentStatus"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// TaskUpdate is a partial update applied to a task. Nil fields are left
// unchanged. Issue linkage fields only backfill a task that has no linkage
// yet; an existing linkage is never overwritten.
type TaskUpdate struct {
	Name               *string      `json:"name"`
	Description        *string      `json:"description"`
	Column             *Column      `json:"column"`
	PRURL              *string      `json:"prUrl"`
	BranchName         *string      `json:"branchName"`
	AssignedEngineerID *string      `json:"assignedEngineerId"` // empty string clears the assignment
	AgentStatus        *AgentStatus `json:"agentStatus"`
	GithubIssueNumber  *int         `json:"-"`
	GithubIssueURL     *string      `json:"-"`
}
