package root

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"example.com/taskflow/internal/client"
	"example.com/taskflow/internal/config"
	"example.com/taskflow/internal/ui"
)

const Version = "0.1.0"

// globals holds the persistent flags shared by every command.
type globals struct {
	apiURL  string
	token   string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "taskflow",
		Short:         "Taskflow: activities, projects, tasks and a pomodoro timer",
		Long:          "Taskflow is a terminal client for the taskflow productivity API.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	cmd.PersistentFlags().StringVar(&g.apiURL, "api", "", "API base URL (default API_BASE_URL)")
	cmd.PersistentFlags().StringVar(&g.token, "token", "", "Bearer token (default API_TOKEN)")
	cmd.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "Per-command request timeout")

	cmd.AddCommand(
		newActivitiesCmd(g),
		newProjectsCmd(g),
		newTasksCmd(g),
		newPomodoroCmd(g),
		newAlertsCmd(g),
		newStatsCmd(g),
		newBoardCmd(g),
		newWatchCmd(g),
		newTokenCmd(),
	)
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Bad.Render(ui.IconError+" "+err.Error()))
		os.Exit(1)
	}
}

// openClient resolves the API location from flags first and configuration second.
func openClient(g *globals) (*client.Client, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	base := cfg.APIBaseURL
	if g.apiURL != "" {
		base = g.apiURL
	}
	token := cfg.APIToken
	if g.token != "" {
		token = g.token
	}
	return client.New(base, client.WithToken(token)), cfg, nil
}

// parseIndex reads a zero-based list position.
func parseIndex(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid position %q", arg)
	}
	return n, nil
}

// parentArg maps "-" to the empty parent (no activity or no project).
func parentArg(arg string) string {
	if arg == "-" {
		return ""
	}
	return arg
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.New(usage)
		}
		return nil
	}
}

func withTimeout(cmd *cobra.Command, g *globals) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), g.timeout)
}
