package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/boardsync/boardsync/internal/github"
	"github.com/boardsync/boardsync/internal/models"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/ws"
)

const defaultMaxTurns = 30

// readFileNotFound is the tool result the model sees for a missing path.
const readFileNotFound = "File not found"

// ModelClient is the LLM surface the runner needs.
type ModelClient interface {
	RefineSpec(ctx context.Context, name, description string, repoTree []string) (string, error)
	NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
	Model() anthropic.Model
}

// Repo is the GitHub surface the runner needs.
type Repo interface {
	Configured() bool
	RepoTree(ctx context.Context, branch string) ([]string, error)
	FileContent(ctx context.Context, path, ref string) (string, error)
	CreateBranch(ctx context.Context, branch, base string) error
	CreateCommit(ctx context.Context, branch, message string, files map[string]string) (string, error)
	CreatePull(ctx context.Context, title, body, head, base string) (*github.PullRequest, error)
	UpdateIssue(ctx context.Context, number int, upd github.IssueUpdate) error
}

// Runner drives autonomous coding agent sessions against tasks. Only one
// session runs per task at a time; the claim on the task's agent status
// is the lock.
type Runner struct {
	store      store.Store
	hub        Broadcaster
	repo       Repo
	model      ModelClient
	baseBranch string
	maxTurns   int
}

// NewRunner creates a runner. maxTurns <= 0 selects the default cap.
func NewRunner(s store.Store, hub Broadcaster, repo Repo, model ModelClient, baseBranch string, maxTurns int) *Runner {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &Runner{
		store:      s,
		hub:        hub,
		repo:       repo,
		model:      model,
		baseBranch: baseBranch,
		maxTurns:   maxTurns,
	}
}

// Trigger claims the task for an agent run and starts the session in the
// background. It fails fast when the task is missing, already claimed, or
// the runner lacks GitHub or model access.
func (r *Runner) Trigger(ctx context.Context, taskID string) error {
	if r.model == nil {
		return errors.New("no model configured")
	}
	if r.repo == nil || !r.repo.Configured() {
		return errors.New("github not configured")
	}

	task, err := r.store.ClaimAgent(ctx, taskID)
	if err != nil {
		return err
	}
	r.hub.Broadcast(ws.TaskUpdated(task))

	// The run outlives the triggering request.
	go r.run(context.Background(), task)
	return nil
}

func (r *Runner) run(ctx context.Context, task *models.Task) {
	log, err := startSession(ctx, r.store, r.hub, task.ID)
	if err != nil {
		slog.Error("start agent session", "task", task.ID, "error", err)
		r.revertToIdle(ctx, task.ID)
		return
	}

	if err := r.execute(ctx, task, log); err != nil {
		slog.Error("agent run failed", "task", task.Identifier, "error", err)
		log.Fail(ctx, err)
		r.revertToIdle(ctx, task.ID)
	}
}

// revertToIdle releases the task's agent claim after a failed run.
func (r *Runner) revertToIdle(ctx context.Context, taskID string) {
	idle := models.AgentStatusIdle
	task, err := r.store.UpdateTask(ctx, taskID, models.TaskUpdate{AgentStatus: &idle})
	if err != nil {
		slog.Error("revert agent status", "task", taskID, "error", err)
		return
	}
	r.hub.Broadcast(ws.TaskUpdated(task))
}

func (r *Runner) execute(ctx context.Context, task *models.Task, log *sessionLog) error {
	log.Emit(ctx, "started", fmt.Sprintf("agent started on %s", task.Identifier), nil)

	tree, err := r.repo.RepoTree(ctx, r.baseBranch)
	if err != nil {
		return fmt.Errorf("list repository: %w", err)
	}

	task, err = r.refineSpec(ctx, task, tree, log)
	if err != nil {
		return err
	}

	staged, err := r.toolLoop(ctx, task, tree, log)
	if err != nil {
		return err
	}

	if len(staged) == 0 {
		log.Emit(ctx, "done", "no code changes needed", nil)
		log.Complete(ctx)
		r.revertToIdle(ctx, task.ID)
		return nil
	}

	return r.ship(ctx, task, staged, log)
}

// refineSpec rewrites the task description into an implementation spec and
// mirrors it to the linked GitHub issue when one exists.
func (r *Runner) refineSpec(ctx context.Context, task *models.Task, tree []string, log *sessionLog) (*models.Task, error) {
	refined, err := r.model.RefineSpec(ctx, task.Name, task.Description, tree)
	if err != nil {
		return nil, fmt.Errorf("refine spec: %w", err)
	}

	updated, err := r.store.UpdateTask(ctx, task.ID, models.TaskUpdate{Description: &refined})
	if err != nil {
		return nil, fmt.Errorf("save refined spec: %w", err)
	}
	r.hub.Broadcast(ws.TaskUpdated(updated))
	log.Emit(ctx, "spec:refined", "task description refined", nil)

	// Issue mirroring is best-effort; the run proceeds without it.
	if updated.GithubIssueNumber > 0 {
		err := r.repo.UpdateIssue(ctx, updated.GithubIssueNumber, github.IssueUpdate{Body: &refined})
		if err != nil {
			slog.Warn("mirror refined spec to issue", "issue", updated.GithubIssueNumber, "error", err)
		}
	}
	return updated, nil
}

func agentTools() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{OfTool: &anthropic.ToolParam{
			Name:        "list_files",
			Description: anthropic.String("List every file path in the repository."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{},
			},
		}},
		{OfTool: &anthropic.ToolParam{
			Name:        "read_file",
			Description: anthropic.String("Read one file's current content."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"path": map[string]any{"type": "string", "description": "Repository-relative file path"},
				},
				Required: []string{"path"},
			},
		}},
		{OfTool: &anthropic.ToolParam{
			Name:        "write_file",
			Description: anthropic.String("Stage a complete new version of one file."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"path":    map[string]any{"type": "string", "description": "Repository-relative file path"},
					"content": map[string]any{"type": "string", "description": "Full file content"},
				},
				Required: []string{"path", "content"},
			},
		}},
	}
}

type toolInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// toolLoop runs the bounded agent conversation and returns the staged
// files. Writes accumulate in memory; nothing touches GitHub until the
// run commits.
func (r *Runner) toolLoop(ctx context.Context, task *models.Task, tree []string, log *sessionLog) (map[string]string, error) {
	staged := make(map[string]string)
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(buildTaskPrompt(task.Name, task.Description))),
	}
	system := []anthropic.TextBlockParam{{Text: buildSystemPrompt(tree)}}
	tools := agentTools()

	for turn := 0; turn < r.maxTurns; turn++ {
		msg, err := r.model.NewMessage(ctx, anthropic.MessageNewParams{
			Model:     r.model.Model(),
			MaxTokens: 8192,
			System:    system,
			Messages:  messages,
			Tools:     tools,
		})
		if err != nil {
			return nil, fmt.Errorf("agent turn %d: %w", turn+1, err)
		}

		var results []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					log.Emit(ctx, "thinking", block.Text, nil)
				}
			case "tool_use":
				content, isError := r.runTool(ctx, block.Name, block.Input, tree, staged, log)
				results = append(results, anthropic.NewToolResultBlock(block.ID, content, isError))
			}
		}

		if string(msg.StopReason) != "tool_use" {
			return staged, nil
		}
		messages = append(messages, msg.ToParam())
		messages = append(messages, anthropic.NewUserMessage(results...))
	}

	return nil, fmt.Errorf("agent exceeded %d turns without finishing", r.maxTurns)
}

func (r *Runner) runTool(ctx context.Context, name string, rawInput json.RawMessage, tree []string, staged map[string]string, log *sessionLog) (content string, isError bool) {
	var input toolInput
	if len(rawInput) > 0 {
		if err := json.Unmarshal(rawInput, &input); err != nil {
			return fmt.Sprintf("invalid tool input: %v", err), true
		}
	}

	switch name {
	case "list_files":
		log.Emit(ctx, "tool:list_files", "listed repository files", nil)
		var listing string
		for _, path := range tree {
			listing += path + "\n"
		}
		return listing, false

	case "read_file":
		log.Emit(ctx, "tool:read_file", input.Path, map[string]any{"path": input.Path})
		if content, ok := staged[input.Path]; ok {
			return content, false
		}
		content, err := r.repo.FileContent(ctx, input.Path, r.baseBranch)
		if errors.Is(err, github.ErrNotFound) {
			return readFileNotFound, false
		}
		if err != nil {
			return err.Error(), true
		}
		return content, false

	case "write_file":
		if input.Path == "" {
			return "write_file requires a path", true
		}
		staged[input.Path] = input.Content
		log.Emit(ctx, "tool:write_file", input.Path, map[string]any{
			"path":  input.Path,
			"bytes": len(input.Content),
		})
		return fmt.Sprintf("staged %s", input.Path), false

	default:
		return fmt.Sprintf("unknown tool: %s", name), true
	}
}

// ship commits the staged files on an agent branch, opens a pull request
// and parks the task in review.
func (r *Runner) ship(ctx context.Context, task *models.Task, staged map[string]string, log *sessionLog) error {
	committing := models.AgentStatusCommitting
	updated, err := r.store.UpdateTask(ctx, task.ID, models.TaskUpdate{AgentStatus: &committing})
	if err != nil {
		return fmt.Errorf("mark committing: %w", err)
	}
	r.hub.Broadcast(ws.TaskUpdated(updated))

	branch := "agent/" + slugify(task.Name)
	if err := r.repo.CreateBranch(ctx, branch, r.baseBranch); err != nil {
		return err
	}

	commitMsg := fmt.Sprintf("%s: %s", task.Identifier, task.Name)
	sha, err := r.repo.CreateCommit(ctx, branch, commitMsg, staged)
	if err != nil {
		return err
	}
	log.Emit(ctx, "committed", fmt.Sprintf("committed %d files", len(staged)), map[string]any{
		"branch": branch,
		"sha":    sha,
	})

	body := task.Description
	if task.GithubIssueNumber > 0 {
		body = fmt.Sprintf("Closes #%d\n\n%s", task.GithubIssueNumber, task.Description)
	}
	pr, err := r.repo.CreatePull(ctx, "[Agent] "+task.Name, body, branch, r.baseBranch)
	if err != nil {
		return err
	}
	log.Emit(ctx, "pr:opened", pr.HTMLURL, map[string]any{"number": pr.Number})

	inReview := models.ColumnInReview
	awaiting := models.AgentStatusAwaitingReview
	updated, err = r.store.UpdateTask(ctx, task.ID, models.TaskUpdate{
		Column:      &inReview,
		AgentStatus: &awaiting,
		PRURL:       &pr.HTMLURL,
		BranchName:  &branch,
	})
	if err != nil {
		return fmt.Errorf("park task in review: %w", err)
	}
	r.hub.Broadcast(ws.TaskUpdated(updated))

	log.Complete(ctx)
	return nil
}
