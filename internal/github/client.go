package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// ErrNotFound is returned when GitHub reports 404 for a requested resource.
var ErrNotFound = errors.New("github: not found")

// Client is a minimal GitHub REST v3 client covering the endpoints the
// board and the coding agent need.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	owner      string
	repo       string
}

// NewClient builds a client for the given repository. An empty token,
// owner or repo leaves the client unconfigured; callers check Configured
// before attempting any remote call.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		token:      token,
		owner:      owner,
		repo:       repo,
	}
}

// Configured reports whether the client has everything needed to talk to
// GitHub.
func (c *Client) Configured() bool {
	return c.token != "" && c.owner != "" && c.repo != ""
}

func (c *Client) repoPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s%s", c.owner, c.repo, suffix)
}

// do issues a request and decodes the JSON response into out (when non-nil).
// 404 maps to ErrNotFound; other non-2xx statuses surface the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("github %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// CreateIssue opens a new issue mirroring a board task.
func (c *Client) CreateIssue(ctx context.Context, title, body string) (*Issue, error) {
	issue := &Issue{}
	err := c.do(ctx, http.MethodPost, c.repoPath("/issues"), map[string]any{
		"title": title,
		"body":  body,
	}, issue)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return issue, nil
}

// IssueUpdate holds the mutable issue fields. Nil fields are untouched.
type IssueUpdate struct {
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
	State *string `json:"state,omitempty"`
}

// UpdateIssue patches an existing issue.
func (c *Client) UpdateIssue(ctx context.Context, number int, upd IssueUpdate) error {
	path := c.repoPath(fmt.Sprintf("/issues/%d", number))
	if err := c.do(ctx, http.MethodPatch, path, upd, nil); err != nil {
		return fmt.Errorf("update issue #%d: %w", number, err)
	}
	return nil
}

type refResponse struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// branchSHA returns the commit SHA a branch currently points at.
func (c *Client) branchSHA(ctx context.Context, branch string) (string, error) {
	var ref refResponse
	if err := c.do(ctx, http.MethodGet, c.repoPath("/git/ref/heads/"+branch), nil, &ref); err != nil {
		return "", fmt.Errorf("get ref %s: %w", branch, err)
	}
	return ref.Object.SHA, nil
}

// CreateBranch creates a branch off base. An already existing branch is
// not an error; the agent reuses it on retriggers.
func (c *Client) CreateBranch(ctx context.Context, branch, base string) error {
	sha, err := c.branchSHA(ctx, base)
	if err != nil {
		return err
	}
	err = c.do(ctx, http.MethodPost, c.repoPath("/git/refs"), map[string]any{
		"ref": "refs/heads/" + branch,
		"sha": sha,
	}, nil)
	if err != nil && strings.Contains(err.Error(), "status 422") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create branch %s: %w", branch, err)
	}
	return nil
}

// CreateCommit writes the given files as a single commit on branch and
// advances the branch ref to it. Returns the new commit SHA.
func (c *Client) CreateCommit(ctx context.Context, branch, message string, files map[string]string) (string, error) {
	headSHA, err := c.branchSHA(ctx, branch)
	if err != nil {
		return "", err
	}

	type treeEntry struct {
		Path string `json:"path"`
		Mode string `json:"mode"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	}
	entries := make([]treeEntry, 0, len(files))
	for path, content := range files {
		var blob struct {
			SHA string `json:"sha"`
		}
		err := c.do(ctx, http.MethodPost, c.repoPath("/git/blobs"), map[string]any{
			"content":  content,
			"encoding": "utf-8",
		}, &blob)
		if err != nil {
			return "", fmt.Errorf("create blob for %s: %w", path, err)
		}
		entries = append(entries, treeEntry{Path: path, Mode: "100644", Type: "blob", SHA: blob.SHA})
	}

	var tree struct {
		SHA string `json:"sha"`
	}
	err = c.do(ctx, http.MethodPost, c.repoPath("/git/trees"), map[string]any{
		"base_tree": headSHA,
		"tree":      entries,
	}, &tree)
	if err != nil {
		return "", fmt.Errorf("create tree: %w", err)
	}

	var commit struct {
		SHA string `json:"sha"`
	}
	err = c.do(ctx, http.MethodPost, c.repoPath("/git/commits"), map[string]any{
		"message": message,
		"tree":    tree.SHA,
		"parents": []string{headSHA},
	}, &commit)
	if err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}

	err = c.do(ctx, http.MethodPatch, c.repoPath("/git/refs/heads/"+branch), map[string]any{
		"sha": commit.SHA,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("update ref %s: %w", branch, err)
	}
	return commit.SHA, nil
}

// CreatePull opens a pull request from head into base.
func (c *Client) CreatePull(ctx context.Context, title, body, head, base string) (*PullRequest, error) {
	pr := &PullRequest{}
	err := c.do(ctx, http.MethodPost, c.repoPath("/pulls"), map[string]any{
		"title": title,
		"body":  body,
		"head":  head,
		"base":  base,
	}, pr)
	if err != nil {
		return nil, fmt.Errorf("create pull request: %w", err)
	}
	return pr, nil
}

// RepoTree lists all file paths on the given branch.
func (c *Client) RepoTree(ctx context.Context, branch string) ([]string, error) {
	var tree struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
		Truncated bool `json:"truncated"`
	}
	path := c.repoPath("/git/trees/" + branch + "?recursive=1")
	if err := c.do(ctx, http.MethodGet, path, nil, &tree); err != nil {
		return nil, fmt.Errorf("get repo tree: %w", err)
	}

	var paths []string
	for _, entry := range tree.Tree {
		if entry.Type == "blob" {
			paths = append(paths, entry.Path)
		}
	}
	return paths, nil
}

// FileContent fetches a file's content at the given ref. Returns
// ErrNotFound when the path does not exist.
func (c *Client) FileContent(ctx context.Context, path, ref string) (string, error) {
	var file struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	reqPath := c.repoPath("/contents/" + path)
	if ref != "" {
		reqPath += "?ref=" + ref
	}
	if err := c.do(ctx, http.MethodGet, reqPath, nil, &file); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get file %s: %w", path, err)
	}
	if file.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decode file %s: %w", path, err)
		}
		return string(decoded), nil
	}
	return file.Content, nil
}
