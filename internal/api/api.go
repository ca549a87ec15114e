package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/boardsync/boardsync/internal/agent"
	"github.com/boardsync/boardsync/internal/github"
	"github.com/boardsync/boardsync/internal/models"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/webhook"
	"github.com/boardsync/boardsync/internal/ws"
)

// Server provides the REST API, webhook and websocket handlers.
type Server struct {
	store         store.Store
	hub           *ws.Hub
	gh            *github.Client
	runner        *agent.Runner
	normalizer    *webhook.Normalizer
	webhookSecret string
	corsOrigin    string
}

// NewServer creates a new API server.
// The runner may be nil when no model or GitHub access is configured.
func NewServer(s store.Store, hub *ws.Hub, gh *github.Client, runner *agent.Runner, webhookSecret, corsOrigin string) *Server {
	return &Server{
		store:         s,
		hub:           hub,
		gh:            gh,
		runner:        runner,
		normalizer:    webhook.NewNormalizer(s, hub),
		webhookSecret: webhookSecret,
		corsOrigin:    corsOrigin,
	}
}

// Router returns an http.Handler for all routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/webhook/github", s.handleWebhook)

	mux.HandleFunc("GET /api/tasks", s.listTasks)
	mux.HandleFunc("POST /api/tasks", s.createTask)
	mux.HandleFunc("GET /api/tasks/{id}", s.getTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", s.updateTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.deleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/approve", s.approveTask)

	mux.HandleFunc("POST /api/tasks/{id}/labels", s.addLabel)
	mux.HandleFunc("DELETE /api/tasks/{id}/labels/{name}", s.removeLabel)

	mux.HandleFunc("POST /api/tasks/{id}/milestones", s.addMilestone)
	mux.HandleFunc("PATCH /api/tasks/{id}/milestones/{mid}", s.toggleMilestone)
	mux.HandleFunc("DELETE /api/tasks/{id}/milestones/{mid}", s.removeMilestone)

	mux.HandleFunc("GET /api/engineers", s.listEngineers)
	mux.HandleFunc("POST /api/engineers", s.createEngineer)
	mux.HandleFunc("GET /api/engineers/{id}", s.getEngineer)
	mux.HandleFunc("DELETE /api/engineers/{id}", s.deleteEngineer)

	mux.HandleFunc("GET /api/tasks/{id}/sessions", s.listTaskSessions)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.listSessionEvents)

	mux.Handle("GET /ws", s.websocketHandler())

	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origin := s.corsOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps store errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	if strings.Contains(err.Error(), "not found") {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// --- Tasks ---

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if task.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if task.Column != "" && !models.IsValidColumn(task.Column) {
		writeError(w, http.StatusBadRequest, "invalid column: "+string(task.Column))
		return
	}
	if err := s.store.CreateTask(r.Context(), &task); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Mirror board-born tasks to a GitHub issue. Mirroring is best-effort:
	// the task exists on the board whether or not GitHub is reachable.
	if s.gh != nil && s.gh.Configured() && task.GithubIssueNumber == 0 {
		if issue, err := s.gh.CreateIssue(r.Context(), task.Name, task.Description); err != nil {
			slog.Warn("mirror task to issue", "task", task.Identifier, "error", err)
		} else {
			updated, err := s.store.UpdateTask(r.Context(), task.ID, models.TaskUpdate{
				GithubIssueNumber: &issue.Number,
				GithubIssueURL:    &issue.HTMLURL,
			})
			if err == nil {
				task = *updated
			}
		}
	}

	s.hub.Broadcast(ws.TaskCreated(&task))
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	var upd models.TaskUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if upd.Column != nil && !models.IsValidColumn(*upd.Column) {
		writeError(w, http.StatusBadRequest, "invalid column: "+string(*upd.Column))
		return
	}
	if upd.AssignedEngineerID != nil && *upd.AssignedEngineerID != "" {
		if _, err := s.store.GetEngineer(r.Context(), *upd.AssignedEngineerID); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	task, err := s.store.UpdateTask(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.mirrorTaskUpdate(r, task, upd)
	s.hub.Broadcast(ws.TaskUpdated(task))
	writeJSON(w, http.StatusOK, task)
}

// mirrorTaskUpdate pushes board edits back to the linked GitHub issue.
func (s *Server) mirrorTaskUpdate(r *http.Request, task *models.Task, upd models.TaskUpdate) {
	if s.gh == nil || !s.gh.Configured() || task.GithubIssueNumber == 0 {
		return
	}
	issueUpd := github.IssueUpdate{Title: upd.Name, Body: upd.Description}
	if upd.Column != nil {
		state := "open"
		if *upd.Column == models.ColumnProduction {
			state = "closed"
		}
		issueUpd.State = &state
	}
	if issueUpd.Title == nil && issueUpd.Body == nil && issueUpd.State == nil {
		return
	}
	if err := s.gh.UpdateIssue(r.Context(), task.GithubIssueNumber, issueUpd); err != nil {
		slog.Warn("mirror task update to issue", "issue", task.GithubIssueNumber, "error", err)
	}
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deleted, err := s.store.DeleteTask(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "task not found: "+id)
		return
	}
	s.hub.Broadcast(ws.TaskDeleted(id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) approveTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if s.runner != nil {
		if err := s.runner.Trigger(r.Context(), id); err != nil {
			switch {
			case strings.Contains(err.Error(), "not found"):
				writeError(w, http.StatusNotFound, err.Error())
			case strings.Contains(err.Error(), "already running"):
				writeError(w, http.StatusConflict, err.Error())
			case strings.Contains(err.Error(), "not configured"):
				writeError(w, http.StatusServiceUnavailable, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, err.Error())
			}
			return
		}
		task, err := s.store.GetTask(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, task)
		return
	}

	// No agent configured: approval still claims the task so the board
	// reflects that work is underway.
	task, err := s.store.ClaimAgent(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "already running") {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeStoreError(w, err)
		return
	}
	s.hub.Broadcast(ws.TaskUpdated(task))
	writeJSON(w, http.StatusOK, task)
}

// --- Labels ---

func (s *Server) addLabel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.AddLabel(r.Context(), id, body.Name, body.Color); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcastTask(w, r, id)
}

func (s *Server) removeLabel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.RemoveLabel(r.Context(), id, r.PathValue("name")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcastTask(w, r, id)
}

// broadcastTask reloads the task, broadcasts it and writes it as response.
func (s *Server) broadcastTask(w http.ResponseWriter, r *http.Request, id string) {
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.hub.Broadcast(ws.TaskUpdated(task))
	writeJSON(w, http.StatusOK, task)
}

// --- Milestones ---

func (s *Server) addMilestone(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	if _, err := s.store.AddMilestone(r.Context(), id, body.Title); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.broadcastTask(w, r, id)
}

func (s *Server) toggleMilestone(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ToggleMilestone(r.Context(), r.PathValue("mid")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.broadcastTask(w, r, r.PathValue("id"))
}

func (s *Server) removeMilestone(w http.ResponseWriter, r *http.Request) {
	removed, err := s.store.RemoveMilestone(r.Context(), r.PathValue("mid"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "milestone not found: "+r.PathValue("mid"))
		return
	}
	s.broadcastTask(w, r, r.PathValue("id"))
}

// --- Engineers ---

func (s *Server) listEngineers(w http.ResponseWriter, r *http.Request) {
	engineers, err := s.store.ListEngineers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if engineers == nil {
		engineers = []*models.Engineer{}
	}
	writeJSON(w, http.StatusOK, engineers)
}

func (s *Server) getEngineer(w http.ResponseWriter, r *http.Request) {
	engineer, err := s.store.GetEngineer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, engineer)
}

func (s *Server) createEngineer(w http.ResponseWriter, r *http.Request) {
	var engineer models.Engineer
	if err := json.NewDecoder(r.Body).Decode(&engineer); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if engineer.Name == "" || engineer.Email == "" {
		writeError(w, http.StatusBadRequest, "name and email are required")
		return
	}
	if err := s.store.CreateEngineer(r.Context(), &engineer); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, engineer)
}

func (s *Server) deleteEngineer(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteEngineer(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Agent sessions ---

func (s *Server) listTaskSessions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	sessions, err := s.store.ListSessionsForTask(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*models.AgentSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) listSessionEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.store.ListEventsForSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*models.AgentEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}
