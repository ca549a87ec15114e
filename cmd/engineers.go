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
	engineerName   string
	engineerEmail  string
	engineerGithub string
	engineerSkills []string
)

var engineersCmd = &cobra.Command{
	Use:   "engineers",
	Short: "Manage engineers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return engineerListRun()
	},
}

var engineerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an engineer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return engineerAddRun()
	},
}

var engineerRemoveCmd = &cobra.Command{
	Use:   "remove <engineer-id>",
	Short: "Remove an engineer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return engineerRemoveRun(args[0])
	},
}

func init() {
	engineerAddCmd.Flags().StringVar(&engineerName, "name", "", "Engineer name (required)")
	engineerAddCmd.Flags().StringVar(&engineerEmail, "email", "", "Engineer email (required)")
	engineerAddCmd.Flags().StringVar(&engineerGithub, "github", "", "GitHub username")
	engineerAddCmd.Flags().StringSliceVar(&engineerSkills, "skill", nil, "Skill tag (repeatable)")
	_ = engineerAddCmd.MarkFlagRequired("name")
	_ = engineerAddCmd.MarkFlagRequired("email")

	engineersCmd.AddCommand(engineerAddCmd)
	engineersCmd.AddCommand(engineerRemoveCmd)
	rootCmd.AddCommand(engineersCmd)
}

func engineerListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	engineers, err := s.ListEngineers(context.Background())
	if err != nil {
		return err
	}
	if len(engineers) == 0 {
		ui.Info("No engineers registered.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Email", "GitHub", "Skills"})
	for _, e := range engineers {
		_ = table.Append([]string{
			shortID(e.ID),
			e.Name,
			e.Email,
			e.GithubUsername,
			strings.Join(e.Skills, ","),
		})
	}
	_ = table.Render()
	return nil
}

func engineerAddRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	engineer := &models.Engineer{
		Name:           engineerName,
		Email:          engineerEmail,
		GithubUsername: engineerGithub,
		Skills:         engineerSkills,
	}
	if err := s.CreateEngineer(context.Background(), engineer); err != nil {
		return fmt.Errorf("create engineer: %w", err)
	}

	ui.Success("Added engineer %s: %s", output.Cyan(shortID(engineer.ID)), engineer.Name)
	return nil
}

func engineerRemoveRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	engineers, err := s.ListEngineers(ctx)
	if err != nil {
		return err
	}
	for _, e := range engineers {
		if e.ID == id || strings.HasPrefix(e.ID, id) {
			if err := s.DeleteEngineer(ctx, e.ID); err != nil {
				return err
			}
			ui.Success("Removed engineer %s", e.Name)
			return nil
		}
	}
	return fmt.Errorf("engineer not found: %s", id)
}
