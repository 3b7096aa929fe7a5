package root

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"example.com/taskflow/internal/client"
	"example.com/taskflow/internal/ui"
)

// loadBoard builds a board and loads it once. The returned context carries the command timeout.
func loadBoard(cmd *cobra.Command, g *globals) (*client.Board, context.Context, context.CancelFunc, error) {
	c, _, err := openClient(g)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := withTimeout(cmd, g)
	board := client.NewBoard(c, client.WithLogger(log.New(cmd.ErrOrStderr(), "[board] ", 0)))
	if err := board.Refresh(ctx); err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return board, ctx, cancel, nil
}

func checkRange(n, from, to int) error {
	if from >= n || to >= n {
		return fmt.Errorf("positions must be below %d", n)
	}
	return nil
}

func taskLine(t client.Task) string {
	title := t.Title
	if t.Pending {
		title = ui.Pending(title)
	}
	parts := []string{title, ui.StatusText(t.Status), ui.ProgressText(t.Progress)}
	if t.Goal > 0 {
		parts = append(parts, ui.GoalBar(t.Rounds, t.Goal, 10))
	}
	if t.Running() {
		parts = append(parts, ui.Warn.Render(ui.IconTimer+" running"))
	}
	parts = append(parts, ui.Muted.Render(t.ID))
	return strings.Join(parts, "  ")
}

// renderBoard prints activities, their projects, and each project's tasks as a tree.
func renderBoard(out io.Writer, board *client.Board) {
	fmt.Fprintln(out, ui.Heading(ui.IconActivity, "Board"))
	writeProjects := func(indent string, projects []client.Project) {
		for _, p := range projects {
			title := p.Title
			if p.Pending {
				title = ui.Pending(title)
			}
			fmt.Fprintf(out, "%s%s %s\n", indent, ui.IconProject, ui.H2.Render(title))
			for _, t := range board.Tasks(p.ID) {
				fmt.Fprintf(out, "%s  - %s\n", indent, taskLine(t))
			}
		}
	}
	for _, a := range board.Activities() {
		title := a.Title
		if a.Pending {
			title = ui.Pending(title)
		}
		fmt.Fprintln(out, ui.Key.Render(title))
		writeProjects("  ", board.Projects(a.ID))
	}
	if projects := board.Projects(""); len(projects) > 0 {
		fmt.Fprintln(out, ui.Muted.Render("(no activity)"))
		writeProjects("  ", projects)
	}
	if tasks := board.Tasks(""); len(tasks) > 0 {
		fmt.Fprintln(out, ui.Muted.Render("(unassigned tasks)"))
		for _, t := range tasks {
			fmt.Fprintf(out, "  - %s\n", taskLine(t))
		}
	}
}

func newBoardCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Print activities, projects and tasks as a tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			board, _, cancel, err := loadBoard(cmd, g)
			if err != nil {
				return err
			}
			defer cancel()
			renderBoard(cmd.OutOrStdout(), board)
			return nil
		},
	}
}

func newWatchCmd(g *globals) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reprint the board whenever it is refreshed (Ctrl+C to stop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := openClient(g)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("interval") {
				interval = cfg.PollInterval
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			board := client.NewBoard(c, client.WithLogger(log.New(cmd.ErrOrStderr(), "[board] ", log.LstdFlags)))
			board.Watch(ctx, interval, func() {
				renderBoard(out, board)
				fmt.Fprintln(out, ui.Muted.Render("refreshed "+time.Now().Format("15:04:05")))
			})
			return nil
		},
	}
	cmd.Flags().DurationVarP(&interval, "interval", "i", client.DefaultPollInterval, "Refresh interval (default POLL_INTERVAL)")
	return cmd
}
