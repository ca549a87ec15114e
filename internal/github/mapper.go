package github

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/boardsync/boardsync/internal/models"
)

// statusLabelPrefix marks labels that carry board placement rather than
// descriptive metadata, e.g. "status: in-review".
const statusLabelPrefix = "status:"

// ResolveColumn maps an issue's state and labels to a board column.
// Closed issues always land in production. Open issues follow their
// status label when it names a known column, and default to backlog.
func ResolveColumn(state string, labels []Label) models.Column {
	if state == "closed" {
		return models.ColumnProduction
	}
	for _, l := range labels {
		name := strings.ToLower(strings.TrimSpace(l.Name))
		if !strings.HasPrefix(name, statusLabelPrefix) {
			continue
		}
		candidate := models.Column(strings.TrimSpace(strings.TrimPrefix(name, statusLabelPrefix)))
		if models.IsValidColumn(candidate) {
			return candidate
		}
	}
	return models.ColumnBacklog
}

// MapLabels converts GitHub labels to board labels, dropping status labels
// (those drive column placement, not display).
func MapLabels(labels []Label) []models.Label {
	mapped := []models.Label{}
	for _, l := range labels {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(l.Name)), statusLabelPrefix) {
			continue
		}
		color := l.Color
		if color != "" && !strings.HasPrefix(color, "#") {
			color = "#" + color
		}
		mapped = append(mapped, models.Label{Name: l.Name, Color: color})
	}
	return mapped
}

// MapIssueToTask builds a new task from a GitHub issue.
func MapIssueToTask(issue *Issue) *models.Task {
	task := &models.Task{
		Name:              issue.Title,
		Description:       issue.Body,
		Column:            ResolveColumn(issue.State, issue.Labels),
		Labels:            MapLabels(issue.Labels),
		GithubIssueNumber: issue.Number,
		GithubIssueURL:    issue.HTMLURL,
	}
	if issue.Milestone != nil {
		task.Milestones = []models.Milestone{{
			Title:     issue.Milestone.Title,
			Completed: issue.Milestone.State == "closed",
		}}
	}
	return task
}

var (
	closingRefRe = regexp.MustCompile(`(?i)(?:close[sd]?|fix(?:e[sd])?|resolve[sd]?)\s+#(\d+)`)
	bareRefRe    = regexp.MustCompile(`#(\d+)`)
)

// ExtractIssueNumber finds the issue a pull request addresses. Closing
// keywords ("closes #12", "fixes #12") win over bare "#12" references.
// Returns 0 when nothing matches.
func ExtractIssueNumber(body string) int {
	if m := closingRefRe.FindStringSubmatch(body); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := bareRefRe.FindStringSubmatch(body); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}
