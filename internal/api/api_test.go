package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardsync/boardsync/internal/models"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/ws"
)

const testSecret = "hook-secret"

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), "BPM")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	return NewServer(s, ws.NewHub(), nil, nil, testSecret, ""), s
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestTaskCRUD(t *testing.T) {
	srv, _ := newTestServer(t)

	// Create
	w := doRequest(t, srv, "POST", "/api/tasks", map[string]string{
		"name":        "Fix login",
		"description": "sessions expire early",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var task models.Task
	require.NoError(t, json.NewDecoder(w.Body).Decode(&task))
	assert.Equal(t, "BPM-1", task.Identifier)
	assert.Equal(t, models.ColumnBacklog, task.Column)

	// Get
	w = doRequest(t, srv, "GET", "/api/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Update
	w = doRequest(t, srv, "PATCH", "/api/tasks/"+task.ID, map[string]string{
		"column": "active",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var updated models.Task
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.Equal(t, models.ColumnActive, updated.Column)

	// List
	w = doRequest(t, srv, "GET", "/api/tasks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []models.Task
	require.NoError(t, json.NewDecoder(w.Body).Decode(&tasks))
	assert.Len(t, tasks, 1)

	// Delete
	w = doRequest(t, srv, "DELETE", "/api/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, srv, "GET", "/api/tasks/"+task.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTaskValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, "POST", "/api/tasks", map[string]string{"description": "no name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, srv, "POST", "/api/tasks", map[string]string{
		"name":   "bad column",
		"column": "nonsense",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateTaskInvalidColumn(t *testing.T) {
	srv, s := newTestServer(t)
	task := &models.Task{Name: "t"}
	require.NoError(t, s.CreateTask(context.Background(), task))

	w := doRequest(t, srv, "PATCH", "/api/tasks/"+task.ID, map[string]string{"column": "limbo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateTaskUnknownEngineer(t *testing.T) {
	srv, s := newTestServer(t)
	task := &models.Task{Name: "t"}
	require.NoError(t, s.CreateTask(context.Background(), task))

	w := doRequest(t, srv, "PATCH", "/api/tasks/"+task.ID, map[string]string{
		"assignedEngineerId": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApproveWithoutAgentClaimsTask(t *testing.T) {
	srv, s := newTestServer(t)
	task := &models.Task{Name: "approve me"}
	require.NoError(t, s.CreateTask(context.Background(), task))

	w := doRequest(t, srv, "POST", "/api/tasks/"+task.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var claimed models.Task
	require.NoError(t, json.NewDecoder(w.Body).Decode(&claimed))
	assert.Equal(t, models.AgentStatusWorking, claimed.AgentStatus)
	assert.Equal(t, models.ColumnActive, claimed.Column)

	// A second approval conflicts while the first claim holds.
	w = doRequest(t, srv, "POST", "/api/tasks/"+task.ID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestApproveMissingTask(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doRequest(t, srv, "POST", "/api/tasks/nonexistent/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLabelEndpoints(t *testing.T) {
	srv, s := newTestServer(t)
	task := &models.Task{Name: "labeled"}
	require.NoError(t, s.CreateTask(context.Background(), task))

	w := doRequest(t, srv, "POST", "/api/tasks/"+task.ID+"/labels", map[string]string{
		"name":  "bug",
		"color": "#ff0000",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Task
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got.Labels, 1)

	w = doRequest(t, srv, "DELETE", "/api/tasks/"+task.ID+"/labels/bug", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Empty(t, got.Labels)
}

func TestMilestoneEndpoints(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()
	task := &models.Task{Name: "with milestones"}
	require.NoError(t, s.CreateTask(ctx, task))

	w := doRequest(t, srv, "POST", "/api/tasks/"+task.ID+"/milestones", map[string]string{
		"title": "write tests",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Task
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got.Milestones, 1)
	mid := got.Milestones[0].ID

	w = doRequest(t, srv, "PATCH", "/api/tasks/"+task.ID+"/milestones/"+mid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.True(t, got.Milestones[0].Completed)

	w = doRequest(t, srv, "DELETE", "/api/tasks/"+task.ID+"/milestones/"+mid, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, srv, "DELETE", "/api/tasks/"+task.ID+"/milestones/"+mid, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEngineerEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, "POST", "/api/engineers", map[string]any{
		"name":   "Dana",
		"email":  "dana@example.com",
		"skills": []string{"go"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var engineer models.Engineer
	require.NoError(t, json.NewDecoder(w.Body).Decode(&engineer))
	assert.NotEmpty(t, engineer.ID)

	// Duplicate email conflicts.
	w = doRequest(t, srv, "POST", "/api/engineers", map[string]any{
		"name":  "Dana Clone",
		"email": "dana@example.com",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, srv, "GET", "/api/engineers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, srv, "DELETE", "/api/engineers/"+engineer.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, srv, "GET", "/api/engineers/"+engineer.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionEndpoints(t *testing.T) {
	srv, s := newTestServer(t)
	ctx := context.Background()

	task := &models.Task{Name: "agent target"}
	require.NoError(t, s.CreateTask(ctx, task))
	session, err := s.CreateSession(ctx, task.ID)
	require.NoError(t, err)
	_, err = s.AddEvent(ctx, session.ID, "thinking", "planning", nil)
	require.NoError(t, err)

	w := doRequest(t, srv, "GET", "/api/tasks/"+task.ID+"/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []models.AgentSession
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sessions))
	require.Len(t, sessions, 1)

	w = doRequest(t, srv, "GET", "/api/sessions/"+session.ID+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []models.AgentEvent
	require.NoError(t, json.NewDecoder(w.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, "thinking", events[0].Type)
}

func TestCORSPreflights(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/tasks", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
