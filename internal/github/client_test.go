package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-token", "acme", "repo")
	c.baseURL = srv.URL
	return c
}

func TestConfigured(t *testing.T) {
	assert.True(t, NewClient("tok", "acme", "repo").Configured())
	assert.False(t, NewClient("", "acme", "repo").Configured())
	assert.False(t, NewClient("tok", "", "repo").Configured())
	assert.False(t, NewClient("tok", "acme", "").Configured())
}

func TestCreateIssue(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/repo/issues", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "New task", body["title"])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Issue{Number: 12, HTMLURL: "https://github.com/acme/repo/issues/12"})
	}))

	issue, err := c.CreateIssue(context.Background(), "New task", "details")
	require.NoError(t, err)
	assert.Equal(t, 12, issue.Number)
}

func TestCreateBranchAlreadyExists(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": map[string]string{"sha": "abc123"},
			})
		default:
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"Reference already exists"}`))
		}
	}))

	err := c.CreateBranch(context.Background(), "agent/fix-login", "main")
	require.NoError(t, err)
}

func TestCreateCommit(t *testing.T) {
	var refUpdated bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/repo/git/ref/heads/agent/fix-login":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": map[string]string{"sha": "head123"},
			})
		case "/repos/acme/repo/git/blobs":
			_ = json.NewEncoder(w).Encode(map[string]string{"sha": "blob123"})
		case "/repos/acme/repo/git/trees":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "head123", body["base_tree"])
			_ = json.NewEncoder(w).Encode(map[string]string{"sha": "tree123"})
		case "/repos/acme/repo/git/commits":
			_ = json.NewEncoder(w).Encode(map[string]string{"sha": "commit123"})
		case "/repos/acme/repo/git/refs/heads/agent/fix-login":
			assert.Equal(t, http.MethodPatch, r.Method)
			refUpdated = true
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))

	sha, err := c.CreateCommit(context.Background(), "agent/fix-login", "Fix login",
		map[string]string{"auth/session.go": "package auth\n"})
	require.NoError(t, err)
	assert.Equal(t, "commit123", sha)
	assert.True(t, refUpdated)
}

func TestFileContentNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.FileContent(context.Background(), "missing.go", "main")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileContentBase64(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "main", r.URL.Query().Get("ref"))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"content":  "cGFja2FnZSBtYWluCg==",
			"encoding": "base64",
		})
	}))

	content, err := c.FileContent(context.Background(), "main.go", "main")
	require.NoError(t, err)
	assert.Equal(t, "package main\n", content)
}
