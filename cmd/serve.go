package cmd

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/boardsync/boardsync/internal/agent"
	"github.com/boardsync/boardsync/internal/api"
	"github.com/boardsync/boardsync/internal/github"
	"github.com/boardsync/boardsync/internal/llm"
	"github.com/boardsync/boardsync/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the board server",
	Long: `Start the HTTP server: REST API, GitHub webhook receiver and
websocket feed. By default it listens on port 8080. Use --port to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		hub := ws.NewHub()

		gh := github.NewClient(
			viper.GetString("github.token"),
			viper.GetString("github.owner"),
			viper.GetString("github.repo"),
		)
		if !gh.Configured() {
			ui.Warning("GitHub not configured; issue sync and agent runs are disabled")
		}
		if viper.GetString("github.webhook_secret") == "" {
			ui.Warning("No webhook secret configured; webhook deliveries will be rejected")
		}

		var runner *agent.Runner
		if apiKey := viper.GetString("anthropic.api_key"); apiKey != "" && gh.Configured() {
			model := llm.NewClient(apiKey, viper.GetString("anthropic.model"))
			runner = agent.NewRunner(s, hub, gh, model,
				viper.GetString("github.base_branch"),
				viper.GetInt("agent.max_turns"))
			ui.Info("Coding agent enabled (model %s)", viper.GetString("anthropic.model"))
		} else {
			ui.Warning("Coding agent disabled; approvals will only mark tasks as claimed")
		}

		server := api.NewServer(s, hub, gh, runner,
			viper.GetString("github.webhook_secret"),
			viper.GetString("cors_origin"))

		port := viper.GetInt("port")
		addr := fmt.Sprintf(":%d", port)
		ui.Success("Board listening at http://localhost%s", addr)
		slog.Info("server starting", "addr", addr)
		return http.ListenAndServe(addr, server.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	viper.SetDefault("port", 8080)
	_ = viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
}
