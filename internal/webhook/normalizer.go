package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boardsync/boardsync/internal/github"
	"github.com/boardsync/boardsync/internal/models"
	"github.com/boardsync/boardsync/internal/store"
	"github.com/boardsync/boardsync/internal/ws"
)

// Broadcaster pushes board messages to connected clients.
type Broadcaster interface {
	Broadcast(ws.Message)
}

// Normalizer translates GitHub webhook deliveries into board mutations
// and broadcasts the resulting changes.
type Normalizer struct {
	store store.Store
	hub   Broadcaster
}

// NewNormalizer creates a normalizer over the given store and hub.
func NewNormalizer(s store.Store, hub Broadcaster) *Normalizer {
	return &Normalizer{store: s, hub: hub}
}

// HandleEvent applies a webhook delivery. Unknown events and deliveries
// referencing unknown tasks are ignored; webhook processing must never
// fail a delivery for state the board does not track.
func (n *Normalizer) HandleEvent(ctx context.Context, event string, payload *github.WebhookPayload) error {
	switch event {
	case "issues":
		return n.handleIssue(ctx, payload)
	case "pull_request":
		return n.handlePullRequest(ctx, payload)
	case "pull_request_review":
		return n.handleReview(ctx, payload)
	default:
		slog.Debug("ignoring webhook event", "event", event)
		return nil
	}
}

func (n *Normalizer) handleIssue(ctx context.Context, payload *github.WebhookPayload) error {
	issue := payload.Issue
	if issue == nil {
		return fmt.Errorf("issues event without issue payload")
	}

	switch payload.Action {
	case "opened":
		if _, err := n.store.GetTaskByIssueNumber(ctx, issue.Number); err == nil {
			// Redelivery or a task that already mirrored this issue.
			slog.Debug("issue already tracked", "issue", issue.Number)
			return nil
		}
		return n.createFromIssue(ctx, issue)

	case "edited":
		task, err := n.store.GetTaskByIssueNumber(ctx, issue.Number)
		if err != nil {
			return n.createFromIssue(ctx, issue)
		}
		updated, err := n.store.UpdateTask(ctx, task.ID, models.TaskUpdate{
			Name:        &issue.Title,
			Description: &issue.Body,
		})
		if err != nil {
			return fmt.Errorf("apply issue edit: %w", err)
		}
		n.hub.Broadcast(ws.TaskUpdated(updated))
		return nil

	case "closed":
		return n.moveByIssue(ctx, issue.Number, models.ColumnProduction, true)

	case "reopened":
		return n.moveByIssue(ctx, issue.Number, models.ColumnBacklog, false)

	case "labeled", "unlabeled":
		task, err := n.store.GetTaskByIssueNumber(ctx, issue.Number)
		if err != nil {
			slog.Debug("label event for untracked issue", "issue", issue.Number)
			return nil
		}
		if err := n.store.ReplaceLabels(ctx, task.ID, github.MapLabels(issue.Labels)); err != nil {
			return fmt.Errorf("replace labels: %w", err)
		}
		column := github.ResolveColumn(issue.State, issue.Labels)
		updated, err := n.store.UpdateTask(ctx, task.ID, models.TaskUpdate{Column: &column})
		if err != nil {
			return fmt.Errorf("apply label column: %w", err)
		}
		n.hub.Broadcast(ws.TaskUpdated(updated))
		return nil

	case "milestoned", "demilestoned":
		task, err := n.store.GetTaskByIssueNumber(ctx, issue.Number)
		if err != nil {
			slog.Debug("milestone event for untracked issue", "issue", issue.Number)
			return nil
		}
		var milestones []models.Milestone
		if issue.Milestone != nil {
			milestones = append(milestones, models.Milestone{
				Title:     issue.Milestone.Title,
				Completed: issue.Milestone.State == "closed",
			})
		}
		if err := n.store.ReplaceMilestones(ctx, task.ID, milestones); err != nil {
			return fmt.Errorf("replace milestones: %w", err)
		}
		updated, err := n.store.GetTask(ctx, task.ID)
		if err != nil {
			return err
		}
		n.hub.Broadcast(ws.TaskUpdated(updated))
		return nil

	case "deleted":
		task, err := n.store.GetTaskByIssueNumber(ctx, issue.Number)
		if err != nil {
			return nil
		}
		deleted, err := n.store.DeleteTask(ctx, task.ID)
		if err != nil {
			return fmt.Errorf("delete task for issue #%d: %w", issue.Number, err)
		}
		if deleted {
			n.hub.Broadcast(ws.TaskDeleted(task.ID))
		}
		return nil

	default:
		slog.Debug("ignoring issue action", "action", payload.Action)
		return nil
	}
}

func (n *Normalizer) createFromIssue(ctx context.Context, issue *github.Issue) error {
	task := github.MapIssueToTask(issue)
	if err := n.store.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create task from issue #%d: %w", issue.Number, err)
	}
	n.hub.Broadcast(ws.TaskCreated(task))
	slog.Info("task created from issue", "issue", issue.Number, "task", task.Identifier)
	return nil
}

// moveByIssue places the linked task in the given column. resetAgent also
// returns the agent to idle, ending its claim on a shipped task.
func (n *Normalizer) moveByIssue(ctx context.Context, number int, column models.Column, resetAgent bool) error {
	task, err := n.store.GetTaskByIssueNumber(ctx, number)
	if err != nil {
		slog.Debug("event for untracked issue", "issue", number)
		return nil
	}
	upd := models.TaskUpdate{Column: &column}
	if resetAgent {
		idle := models.AgentStatusIdle
		upd.AgentStatus = &idle
	}
	updated, err := n.store.UpdateTask(ctx, task.ID, upd)
	if err != nil {
		return fmt.Errorf("move task for issue #%d: %w", number, err)
	}
	n.hub.Broadcast(ws.TaskUpdated(updated))
	return nil
}

func (n *Normalizer) handlePullRequest(ctx context.Context, payload *github.WebhookPayload) error {
	pr := payload.PullRequest
	if pr == nil {
		return fmt.Errorf("pull_request event without pull_request payload")
	}

	number := github.ExtractIssueNumber(pr.Body)
	if number == 0 {
		slog.Debug("pull request references no issue", "pr", pr.Number)
		return nil
	}

	switch payload.Action {
	case "opened", "reopened", "ready_for_review":
		task, err := n.store.GetTaskByIssueNumber(ctx, number)
		if err != nil {
			return nil
		}
		column := models.ColumnInReview
		updated, err := n.store.UpdateTask(ctx, task.ID, models.TaskUpdate{
			Column:     &column,
			PRURL:      &pr.HTMLURL,
			BranchName: &pr.Head.Ref,
		})
		if err != nil {
			return fmt.Errorf("link pull request #%d: %w", pr.Number, err)
		}
		n.hub.Broadcast(ws.TaskUpdated(updated))
		return nil

	case "closed":
		if !pr.Merged {
			return nil
		}
		return n.moveByIssue(ctx, number, models.ColumnProduction, true)

	default:
		return nil
	}
}

func (n *Normalizer) handleReview(ctx context.Context, payload *github.WebhookPayload) error {
	if payload.Action != "submitted" || payload.Review == nil || payload.PullRequest == nil {
		return nil
	}
	if !strings.EqualFold(payload.Review.State, "approved") {
		return nil
	}
	number := github.ExtractIssueNumber(payload.PullRequest.Body)
	if number == 0 {
		return nil
	}
	return n.moveByIssue(ctx, number, models.ColumnProduction, true)
}
