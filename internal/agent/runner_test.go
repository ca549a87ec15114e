package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardsync/boardsync/internal/github"
	"github.com/boardsync/boardsync/internal/models"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/ws"
)

type recordingHub struct {
	messages []ws.Message
}

func (r *recordingHub) Broadcast(msg ws.Message) {
	r.messages = append(r.messages, msg)
}

// fakeModel replays a scripted sequence of assistant messages.
type fakeModel struct {
	script    []*anthropic.Message
	turn      int
	refineErr error
}

func (f *fakeModel) RefineSpec(ctx context.Context, name, description string, repoTree []string) (string, error) {
	if f.refineErr != nil {
		return "", f.refineErr
	}
	return "Refined: " + name, nil
}

func (f *fakeModel) NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	if f.turn >= len(f.script) {
		return nil, errors.New("fake model script exhausted")
	}
	msg := f.script[f.turn]
	f.turn++
	return msg, nil
}

func (f *fakeModel) Model() anthropic.Model {
	return anthropic.Model("test-model")
}

func textTurn(text string) *anthropic.Message {
	return &anthropic.Message{
		StopReason: "end_turn",
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: text},
		},
	}
}

func toolTurn(id, name string, input map[string]any) *anthropic.Message {
	raw, _ := json.Marshal(input)
	return &anthropic.Message{
		StopReason: "tool_use",
		Content: []anthropic.ContentBlockUnion{
			{Type: "tool_use", ID: id, Name: name, Input: raw},
		},
	}
}

// fakeRepo is an in-memory stand-in for the GitHub client.
type fakeRepo struct {
	files     map[string]string
	commits   []map[string]string
	branches  []string
	pulls     []string
	commitErr error
	issueBody string
}

func (f *fakeRepo) Configured() bool { return true }

func (f *fakeRepo) RepoTree(ctx context.Context, branch string) ([]string, error) {
	var paths []string
	for path := range f.files {
		paths = append(paths, path)
	}
	return paths, nil
}

func (f *fakeRepo) FileContent(ctx context.Context, path, ref string) (string, error) {
	content, ok := f.files[path]
	if !ok {
		return "", github.ErrNotFound
	}
	return content, nil
}

func (f *fakeRepo) CreateBranch(ctx context.Context, branch, base string) error {
	f.branches = append(f.branches, branch)
	return nil
}

func (f *fakeRepo) CreateCommit(ctx context.Context, branch, message string, files map[string]string) (string, error) {
	if f.commitErr != nil {
		return "", f.commitErr
	}
	f.commits = append(f.commits, files)
	return "sha123", nil
}

func (f *fakeRepo) CreatePull(ctx context.Context, title, body, head, base string) (*github.PullRequest, error) {
	f.pulls = append(f.pulls, title)
	return &github.PullRequest{
		Number:  40,
		HTMLURL: "https://github.com/acme/repo/pull/40",
		Head:    github.Ref{Ref: head},
	}, nil
}

func (f *fakeRepo) UpdateIssue(ctx context.Context, number int, upd github.IssueUpdate) error {
	if upd.Body != nil {
		f.issueBody = *upd.Body
	}
	return nil
}

func newTestRunner(t *testing.T, model ModelClient, repo Repo) (*Runner, store.Store, *recordingHub) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), "BPM")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	hub := &recordingHub{}
	return NewRunner(s, hub, repo, model, "main", 10), s, hub
}

func runToCompletion(t *testing.T, r *Runner, s store.Store, taskID string) {
	t.Helper()
	ctx := context.Background()
	task, err := s.ClaimAgent(ctx, taskID)
	require.NoError(t, err)
	r.run(ctx, task)
}

func TestRunnerShipsChanges(t *testing.T) {
	repo := &fakeRepo{files: map[string]string{"main.go": "package main\n"}}
	model := &fakeModel{script: []*anthropic.Message{
		toolTurn("t1", "read_file", map[string]any{"path": "main.go"}),
		toolTurn("t2", "write_file", map[string]any{"path": "main.go", "content": "package main\n\nfunc main() {}\n"}),
		textTurn("done"),
	}}
	r, s, hub := newTestRunner(t, model, repo)
	ctx := context.Background()

	task := &models.Task{Name: "Fix Login Bug!", GithubIssueNumber: 12}
	require.NoError(t, s.CreateTask(ctx, task))

	runToCompletion(t, r, s, task.ID)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ColumnInReview, got.Column)
	assert.Equal(t, models.AgentStatusAwaitingReview, got.AgentStatus)
	assert.Equal(t, "https://github.com/acme/repo/pull/40", got.PRURL)
	assert.Equal(t, "agent/fix-login-bug", got.BranchName)

	require.Len(t, repo.commits, 1)
	assert.Contains(t, repo.commits[0], "main.go")
	require.Len(t, repo.pulls, 1)
	assert.Equal(t, "[Agent] Fix Login Bug!", repo.pulls[0])
	assert.Equal(t, "Refined: Fix Login Bug!", repo.issueBody)

	sessions, err := s.ListSessionsForTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionStatusCompleted, sessions[0].Status)

	events, err := s.ListEventsForSession(ctx, sessions[0].ID)
	require.NoError(t, err)
	types := map[string]bool{}
	for _, e := range events {
		types[e.Type] = true
	}
	assert.True(t, types["spec:refined"])
	assert.True(t, types["tool:write_file"])
	assert.True(t, types["committed"])
	assert.True(t, types["pr:opened"])

	// An agent:event broadcast reached the hub for the live feed.
	var sawAgentEvent bool
	for _, msg := range hub.messages {
		if msg.Type == ws.KindAgentEvent {
			sawAgentEvent = true
		}
	}
	assert.True(t, sawAgentEvent)
}

func TestRunnerNoChangesCompletesIdle(t *testing.T) {
	repo := &fakeRepo{files: map[string]string{"main.go": "package main\n"}}
	model := &fakeModel{script: []*anthropic.Message{
		textTurn("nothing to do"),
	}}
	r, s, _ := newTestRunner(t, model, repo)
	ctx := context.Background()

	task := &models.Task{Name: "Already done"}
	require.NoError(t, s.CreateTask(ctx, task))

	runToCompletion(t, r, s, task.ID)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusIdle, got.AgentStatus)
	assert.Empty(t, got.PRURL)
	assert.Empty(t, repo.pulls)

	sessions, err := s.ListSessionsForTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionStatusCompleted, sessions[0].Status)
}

func TestRunnerCommitFailureRevertsToIdle(t *testing.T) {
	repo := &fakeRepo{
		files:     map[string]string{"main.go": "package main\n"},
		commitErr: errors.New("github unavailable"),
	}
	model := &fakeModel{script: []*anthropic.Message{
		toolTurn("t1", "write_file", map[string]any{"path": "main.go", "content": "changed"}),
		textTurn("done"),
	}}
	r, s, _ := newTestRunner(t, model, repo)
	ctx := context.Background()

	task := &models.Task{Name: "Doomed"}
	require.NoError(t, s.CreateTask(ctx, task))

	runToCompletion(t, r, s, task.ID)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusIdle, got.AgentStatus)
	assert.Empty(t, got.PRURL)

	sessions, err := s.ListSessionsForTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionStatusFailed, sessions[0].Status)
	assert.NotNil(t, sessions[0].EndedAt)
}

func TestRunnerRefineFailureRevertsToIdle(t *testing.T) {
	repo := &fakeRepo{files: map[string]string{}}
	model := &fakeModel{refineErr: errors.New("api quota exceeded")}
	r, s, _ := newTestRunner(t, model, repo)
	ctx := context.Background()

	task := &models.Task{Name: "Unlucky"}
	require.NoError(t, s.CreateTask(ctx, task))

	runToCompletion(t, r, s, task.ID)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusIdle, got.AgentStatus)
}

func TestRunnerTurnCapFails(t *testing.T) {
	repo := &fakeRepo{files: map[string]string{"a.go": "x"}}
	var script []*anthropic.Message
	for i := 0; i < 12; i++ {
		script = append(script, toolTurn(fmt.Sprintf("t%d", i), "read_file", map[string]any{"path": "a.go"}))
	}
	model := &fakeModel{script: script}
	r, s, _ := newTestRunner(t, model, repo)
	ctx := context.Background()

	task := &models.Task{Name: "Spinner"}
	require.NoError(t, s.CreateTask(ctx, task))

	runToCompletion(t, r, s, task.ID)

	sessions, err := s.ListSessionsForTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, models.SessionStatusFailed, sessions[0].Status)
}

func TestTriggerRejectsBusyTask(t *testing.T) {
	repo := &fakeRepo{files: map[string]string{}}
	model := &fakeModel{}
	r, s, _ := newTestRunner(t, model, repo)
	ctx := context.Background()

	task := &models.Task{Name: "Busy", AgentStatus: models.AgentStatusWorking}
	require.NoError(t, s.CreateTask(ctx, task))

	err := r.Trigger(ctx, task.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestTriggerRejectsMissingTask(t *testing.T) {
	r, _, _ := newTestRunner(t, &fakeModel{}, &fakeRepo{})
	err := r.Trigger(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Fix Login Bug!", "fix-login-bug"},
		{"  spaces  everywhere  ", "spaces-everywhere"},
		{"UPPER_case & symbols", "upper-case-symbols"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slugify(tt.in))
	}

	long := slugify("this is a very long task name that keeps going and going and going")
	assert.LessOrEqual(t, len(long), 40)
}
