package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/boardsync/boardsync/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db     *sql.DB
	prefix string // task identifier prefix, e.g. "BPM"
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
// Generated task identifiers use the given prefix ("BPM" -> "BPM-1").
func NewSQLiteStore(dbPath, identifierPrefix string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent HTTP requests.
	// It also serializes identifier generation.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys (cascades for labels/milestones/sessions)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, prefix: identifierPrefix}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Tasks ---

const taskColumns = `id, identifier, name, description, board_column, github_issue_number, github_issue_url, pr_url, branch_name, assigned_engineer_id, agent_status, created_at, updated_at`

func (s *SQLiteStore) scanTask(row interface{ Scan(...any) error }) (*models.Task, error) {
	t := &models.Task{}
	var column, agentStatus string
	var issueNumber sql.NullInt64
	var engineerID sql.NullString

	err := row.Scan(&t.ID, &t.Identifier, &t.Name, &t.Description, &column,
		&issueNumber, &t.GithubIssueURL, &t.PRURL, &t.BranchName,
		&engineerID, &agentStatus, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Column = models.Column(column)
	t.AgentStatus = models.AgentStatus(agentStatus)
	if issueNumber.Valid {
		t.GithubIssueNumber = int(issueNumber.Int64)
	}
	if engineerID.Valid {
		t.AssignedEngineerID = engineerID.String
	}
	return t, nil
}

// loadTaskRelations attaches labels and milestones to the given tasks.
func (s *SQLiteStore) loadTaskRelations(ctx context.Context, tasks []*models.Task) error {
	for _, t := range tasks {
		labels, err := s.taskLabels(ctx, t.ID)
		if err != nil {
			return err
		}
		t.Labels = labels

		milestones, err := s.taskMilestones(ctx, t.ID)
		if err != nil {
			return err
		}
		t.Milestones = milestones
	}
	return nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadTaskRelations(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := s.scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if err := s.loadTaskRelations(ctx, []*models.Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *SQLiteStore) GetTaskByIssueNumber(ctx context.Context, number int) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE github_issue_number = ?`, number)
	t, err := s.scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found for issue #%d", number)
	}
	if err != nil {
		return nil, fmt.Errorf("get task by issue number: %w", err)
	}
	if err := s.loadTaskRelations(ctx, []*models.Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// nextIdentifier scans existing identifiers for the highest numeric suffix
// and returns prefix-(max+1). Identifiers are never reused or renumbered.
func (s *SQLiteStore) nextIdentifier(ctx context.Context, tx *sql.Tx) (string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT identifier FROM tasks")
	if err != nil {
		return "", fmt.Errorf("scan identifiers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	maxNum := 0
	for rows.Next() {
		var ident string
		if err := rows.Scan(&ident); err != nil {
			return "", fmt.Errorf("scan identifier: %w", err)
		}
		suffix, ok := strings.CutPrefix(ident, s.prefix+"-")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > maxNum {
			maxNum = n
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d", s.prefix, maxNum+1), nil
}

func (s *SQLiteStore) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = newULID()
	}
	if t.Column == "" {
		t.Column = models.ColumnBacklog
	}
	if t.AgentStatus == "" {
		t.AgentStatus = models.AgentStatusIdle
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if t.Identifier == "" {
		ident, err := s.nextIdentifier(ctx, tx)
		if err != nil {
			return err
		}
		t.Identifier = ident
	}

	var issueNumber any
	if t.GithubIssueNumber > 0 {
		issueNumber = t.GithubIssueNumber
	}
	var engineerID any
	if t.AssignedEngineerID != "" {
		engineerID = t.AssignedEngineerID
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, identifier, name, description, board_column, github_issue_number, github_issue_url, pr_url, branch_name, assigned_engineer_id, agent_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Identifier, t.Name, t.Description, string(t.Column),
		issueNumber, t.GithubIssueURL, t.PRURL, t.BranchName,
		engineerID, string(t.AgentStatus), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	for i := range t.Labels {
		l := &t.Labels[i]
		l.ID = newULID()
		l.TaskID = t.ID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_labels (id, task_id, name, color) VALUES (?, ?, ?, ?)`,
			l.ID, l.TaskID, l.Name, l.Color); err != nil {
			return fmt.Errorf("create label: %w", err)
		}
	}

	for i := range t.Milestones {
		m := &t.Milestones[i]
		m.ID = newULID()
		m.TaskID = t.ID
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO milestones (id, task_id, title, completed, completed_at) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.TaskID, m.Title, boolToInt(m.Completed), m.CompletedAt); err != nil {
			return fmt.Errorf("create milestone: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, id string, upd models.TaskUpdate) (*models.Task, error) {
	var sets []string
	var args []any

	if upd.Name != nil {
		sets = append(sets, "name=?")
		args = append(args, *upd.Name)
	}
	if upd.Description != nil {
		sets = append(sets, "description=?")
		args = append(args, *upd.Description)
	}
	if upd.Column != nil {
		sets = append(sets, "board_column=?")
		args = append(args, string(*upd.Column))
	}
	if upd.PRURL != nil {
		sets = append(sets, "pr_url=?")
		args = append(args, *upd.PRURL)
	}
	if upd.BranchName != nil {
		sets = append(sets, "branch_name=?")
		args = append(args, *upd.BranchName)
	}
	if upd.AssignedEngineerID != nil {
		sets = append(sets, "assigned_engineer_id=?")
		if *upd.AssignedEngineerID == "" {
			args = append(args, nil)
		} else {
			args = append(args, *upd.AssignedEngineerID)
		}
	}
	if upd.AgentStatus != nil {
		sets = append(sets, "agent_status=?")
		args = append(args, string(*upd.AgentStatus))
	}
	// Issue linkage is set once: COALESCE keeps an existing linkage intact.
	if upd.GithubIssueNumber != nil {
		sets = append(sets, "github_issue_number=COALESCE(github_issue_number, ?)")
		args = append(args, *upd.GithubIssueNumber)
	}
	if upd.GithubIssueURL != nil {
		sets = append(sets, "github_issue_url=CASE WHEN github_issue_url='' THEN ? ELSE github_issue_url END")
		args = append(args, *upd.GithubIssueURL)
	}

	sets = append(sets, "updated_at=?")
	args = append(args, time.Now().UTC(), id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	return s.GetTask(ctx, id)
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *SQLiteStore) ClaimAgent(ctx context.Context, id string) (*models.Task, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET agent_status=?, board_column=?, updated_at=? WHERE id=? AND agent_status=?`,
		string(models.AgentStatusWorking), string(models.ColumnActive),
		time.Now().UTC(), id, string(models.AgentStatusIdle),
	)
	if err != nil {
		return nil, fmt.Errorf("claim agent: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		// Distinguish a missing task from one already claimed.
		if _, err := s.GetTask(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("agent already running for task: %s", id)
	}
	return s.GetTask(ctx, id)
}

// --- Labels ---

func (s *SQLiteStore) taskLabels(ctx context.Context, taskID string) ([]models.Label, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, name, color FROM task_labels WHERE task_id = ? ORDER BY name`, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	labels := []models.Label{}
	for rows.Next() {
		var l models.Label
		if err := rows.Scan(&l.ID, &l.TaskID, &l.Name, &l.Color); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// ReplaceLabels atomically swaps the task's label set. The delete+insert runs
// in one transaction so a concurrent reader never observes the empty set.
func (s *SQLiteStore) ReplaceLabels(ctx context.Context, taskID string, labels []models.Label) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM task_labels WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("clear labels: %w", err)
	}
	for _, l := range labels {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_labels (id, task_id, name, color) VALUES (?, ?, ?, ?)`,
			newULID(), taskID, l.Name, l.Color); err != nil {
			return fmt.Errorf("insert label: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddLabel(ctx context.Context, taskID, name, color string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_labels (id, task_id, name, color) VALUES (?, ?, ?, ?)`,
		newULID(), taskID, name, color)
	if err != nil {
		return fmt.Errorf("add label: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveLabel(ctx context.Context, taskID, name string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM task_labels WHERE task_id = ? AND name = ?", taskID, name)
	if err != nil {
		return fmt.Errorf("remove label: %w", err)
	}
	return nil
}

// --- Milestones ---

func (s *SQLiteStore) taskMilestones(ctx context.Context, taskID string) ([]models.Milestone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, title, completed, completed_at FROM milestones WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("get task milestones: %w", err)
	}
	defer func() { _ = rows.Close() }()

	milestones := []models.Milestone{}
	for rows.Next() {
		var m models.Milestone
		var completed int
		var completedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.TaskID, &m.Title, &completed, &completedAt); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		m.Completed = completed != 0
		if completedAt.Valid {
			m.CompletedAt = &completedAt.Time
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

// ReplaceMilestones atomically swaps the task's milestone list.
func (s *SQLiteStore) ReplaceMilestones(ctx context.Context, taskID string, milestones []models.Milestone) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM milestones WHERE task_id = ?", taskID); err != nil {
		return fmt.Errorf("clear milestones: %w", err)
	}
	for _, m := range milestones {
		var completedAt any
		if m.Completed {
			if m.CompletedAt != nil {
				completedAt = *m.CompletedAt
			} else {
				completedAt = time.Now().UTC()
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO milestones (id, task_id, title, completed, completed_at) VALUES (?, ?, ?, ?, ?)`,
			newULID(), taskID, m.Title, boolToInt(m.Completed), completedAt); err != nil {
			return fmt.Errorf("insert milestone: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddMilestone(ctx context.Context, taskID, title string) (*models.Milestone, error) {
	m := &models.Milestone{
		ID:     newULID(),
		TaskID: taskID,
		Title:  title,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO milestones (id, task_id, title, completed) VALUES (?, ?, ?, 0)`,
		m.ID, m.TaskID, m.Title)
	if err != nil {
		return nil, fmt.Errorf("add milestone: %w", err)
	}
	return m, nil
}

// ToggleMilestone flips the completed flag. The completion timestamp is set
// on the false->true transition and cleared on true->false.
func (s *SQLiteStore) ToggleMilestone(ctx context.Context, id string) (*models.Milestone, error) {
	m := &models.Milestone{ID: id}
	var completed int
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT task_id, title, completed, completed_at FROM milestones WHERE id = ?`, id,
	).Scan(&m.TaskID, &m.Title, &completed, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("milestone not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get milestone: %w", err)
	}

	m.Completed = completed == 0
	var newCompletedAt any
	if m.Completed {
		now := time.Now().UTC()
		m.CompletedAt = &now
		newCompletedAt = now
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE milestones SET completed=?, completed_at=? WHERE id=?`,
		boolToInt(m.Completed), newCompletedAt, id); err != nil {
		return nil, fmt.Errorf("toggle milestone: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) RemoveMilestone(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM milestones WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("remove milestone: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// --- Engineers ---

const engineerColumns = `id, name, email, avatar_url, discord_id, github_username, skills, created_at`

func scanEngineer(row interface{ Scan(...any) error }) (*models.Engineer, error) {
	e := &models.Engineer{}
	var skillsJSON string
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.AvatarURL, &e.DiscordID,
		&e.GithubUsername, &skillsJSON, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(skillsJSON), &e.Skills)
	return e, nil
}

func (s *SQLiteStore) ListEngineers(ctx context.Context) ([]*models.Engineer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+engineerColumns+` FROM engineers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list engineers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var engineers []*models.Engineer
	for rows.Next() {
		e, err := scanEngineer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan engineer: %w", err)
		}
		engineers = append(engineers, e)
	}
	return engineers, rows.Err()
}

func (s *SQLiteStore) GetEngineer(ctx context.Context, id string) (*models.Engineer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+engineerColumns+` FROM engineers WHERE id = ?`, id)
	e, err := scanEngineer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("engineer not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get engineer: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) CreateEngineer(ctx context.Context, e *models.Engineer) error {
	if e.ID == "" {
		e.ID = newULID()
	}
	e.CreatedAt = time.Now().UTC()

	skillsJSON, err := json.Marshal(e.Skills)
	if err != nil {
		skillsJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO engineers (id, name, email, avatar_url, discord_id, github_username, skills, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Email, e.AvatarURL, e.DiscordID, e.GithubUsername,
		string(skillsJSON), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create engineer: %w", err)
	}
	return nil
}

// DeleteEngineer removes the engineer. Tasks referencing it are left in
// place with their assignment cleared (ON DELETE SET NULL).
func (s *SQLiteStore) DeleteEngineer(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM engineers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete engineer: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("engineer not found: %s", id)
	}
	return nil
}

// --- Agent sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, taskID string) (*models.AgentSession, error) {
	session := &models.AgentSession{
		ID:        newULID(),
		TaskID:    taskID,
		Status:    models.SessionStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_sessions (id, task_id, status, started_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.TaskID, string(session.Status), session.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStore) ListSessionsForTask(ctx context.Context, taskID string) ([]*models.AgentSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, status, started_at, ended_at FROM agent_sessions
		WHERE task_id = ? ORDER BY started_at DESC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.AgentSession
	for rows.Next() {
		session := &models.AgentSession{}
		var status string
		var endedAt sql.NullTime
		if err := rows.Scan(&session.ID, &session.TaskID, &status, &session.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.Status = models.SessionStatus(status)
		if endedAt.Valid {
			session.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) AddEvent(ctx context.Context, sessionID, eventType, message string, metadata map[string]any) (*models.AgentEvent, error) {
	event := &models.AgentEvent{
		ID:        newULID(),
		SessionID: sessionID,
		Type:      eventType,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	var metadataJSON any
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal event metadata: %w", err)
		}
		metadataJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_events (id, session_id, type, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.SessionID, event.Type, event.Message, metadataJSON, event.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add event: %w", err)
	}
	return event, nil
}

func (s *SQLiteStore) ListEventsForSession(ctx context.Context, sessionID string) ([]*models.AgentEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, type, message, metadata, created_at FROM agent_events
		WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*models.AgentEvent
	for rows.Next() {
		event := &models.AgentEvent{}
		var metadataJSON sql.NullString
		if err := rows.Scan(&event.ID, &event.SessionID, &event.Type, &event.Message, &metadataJSON, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			_ = json.Unmarshal([]byte(metadataJSON.String), &event.Metadata)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// EndSession seals a running session. A sealed session is never mutated again.
func (s *SQLiteStore) EndSession(ctx context.Context, id string, status models.SessionStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE agent_sessions SET status=?, ended_at=? WHERE id=? AND ended_at IS NULL`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("agent session not found: %s", id)
	}
	return nil
}
