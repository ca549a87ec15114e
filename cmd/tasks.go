package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boardsync/boardsync/internal/models"
	"github.com/boardsync/boardsync/internal/output"
)

var (
	taskName   string
	taskDesc   string
	taskColumn string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage board tasks",
	Long:  "List and edit tasks on the board from the command line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskListRun()
	},
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new task",
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskAddRun()
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskListRun()
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskShowRun(args[0])
	},
}

var taskMoveCmd = &cobra.Command{
	Use:   "move <task-id> <column>",
	Short: "Move a task to another column",
	Long:  "Move a task. Columns: backlog, active, in-review, ready-to-deploy, production.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskMoveRun(args[0], args[1])
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return taskDeleteRun(args[0])
	},
}

func init() {
	taskAddCmd.Flags().StringVar(&taskName, "name", "", "Task name (required)")
	taskAddCmd.Flags().StringVar(&taskDesc, "desc", "", "Task description")
	taskAddCmd.Flags().StringVar(&taskColumn, "column", "", "Starting column (default backlog)")
	_ = taskAddCmd.MarkFlagRequired("name")

	tasksCmd.AddCommand(taskAddCmd)
	tasksCmd.AddCommand(taskListCmd)
	tasksCmd.AddCommand(taskShowCmd)
	tasksCmd.AddCommand(taskMoveCmd)
	tasksCmd.AddCommand(taskDeleteCmd)
	rootCmd.AddCommand(tasksCmd)
}

// shortID returns a display-friendly ID prefix.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// findTask resolves a task by full ID, ID prefix, or identifier (BPM-3).
func findTask(ctx context.Context, id string) (*models.Task, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}

	if task, err := s.GetTask(ctx, id); err == nil {
		return task, nil
	}

	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		if strings.HasPrefix(task.ID, id) || strings.EqualFold(task.Identifier, id) {
			return task, nil
		}
	}
	return nil, fmt.Errorf("task not found: %s", id)
}

func taskAddRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	task := &models.Task{
		Name:        taskName,
		Description: taskDesc,
		Column:      models.Column(taskColumn),
	}
	if taskColumn != "" && !models.IsValidColumn(task.Column) {
		return fmt.Errorf("invalid column: %s", taskColumn)
	}

	if err := s.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	ui.Success("Created task %s: %s", output.Cyan(task.Identifier), task.Name)
	return nil
}

func taskListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		ui.Info("No tasks on the board.")
		return nil
	}

	table := ui.Table([]string{"ID", "Key", "Name", "Column", "Agent", "Labels", "GH#"})
	for _, task := range tasks {
		var labels []string
		for _, l := range task.Labels {
			labels = append(labels, l.Name)
		}
		ghStr := ""
		if task.GithubIssueNumber > 0 {
			ghStr = fmt.Sprintf("#%d", task.GithubIssueNumber)
		}

		_ = table.Append([]string{
			shortID(task.ID),
			output.Cyan(task.Identifier),
			task.Name,
			output.ColumnColor(string(task.Column)),
			output.AgentStatusColor(string(task.AgentStatus)),
			strings.Join(labels, ","),
			ghStr,
		})
	}
	_ = table.Render()
	return nil
}

func taskShowRun(id string) error {
	ctx := context.Background()
	task, err := findTask(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s %s\n", output.Cyan(task.Identifier), task.Name)
	fmt.Fprintf(ui.Out, "  ID:       %s\n", task.ID)
	fmt.Fprintf(ui.Out, "  Column:   %s\n", output.ColumnColor(string(task.Column)))
	fmt.Fprintf(ui.Out, "  Agent:    %s\n", output.AgentStatusColor(string(task.AgentStatus)))
	if task.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:     %s\n", task.Description)
	}
	if task.GithubIssueURL != "" {
		fmt.Fprintf(ui.Out, "  Issue:    %s\n", task.GithubIssueURL)
	}
	if task.PRURL != "" {
		fmt.Fprintf(ui.Out, "  PR:       %s\n", task.PRURL)
	}
	if task.BranchName != "" {
		fmt.Fprintf(ui.Out, "  Branch:   %s\n", task.BranchName)
	}
	for _, m := range task.Milestones {
		mark := " "
		if m.Completed {
			mark = "x"
		}
		fmt.Fprintf(ui.Out, "  [%s] %s\n", mark, m.Title)
	}
	return nil
}

func taskMoveRun(id, column string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	target := models.Column(column)
	if !models.IsValidColumn(target) {
		return fmt.Errorf("invalid column: %s (valid: backlog, active, in-review, ready-to-deploy, production)", column)
	}

	task, err := findTask(ctx, id)
	if err != nil {
		return err
	}

	updated, err := s.UpdateTask(ctx, task.ID, models.TaskUpdate{Column: &target})
	if err != nil {
		return err
	}

	ui.Success("Moved %s to %s", output.Cyan(updated.Identifier), output.ColumnColor(string(updated.Column)))
	return nil
}

func taskDeleteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	task, err := findTask(ctx, id)
	if err != nil {
		return err
	}

	deleted, err := s.DeleteTask(ctx, task.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("task not found: %s", id)
	}

	ui.Success("Deleted %s: %s", output.Cyan(task.Identifier), task.Name)
	return nil
}
