package root

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"example.com/taskflow/internal/pomodoro"
	"example.com/taskflow/internal/tui"
	"example.com/taskflow/internal/ui"
)

func newPomodoroCmd(g *globals) *cobra.Command {
	var taskID string
	var work, brk time.Duration
	cmd := &cobra.Command{
		Use:   "pomodoro",
		Short: "Run the interactive pomodoro timer",
		Long:  "Run a work/break countdown. Each finished work interval is logged as a pomodoro session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return tui.RunPomodoro(ctx, c, taskID, work, brk, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&taskID, "task", "t", "", "Log sessions against this task")
	cmd.Flags().DurationVarP(&work, "work", "w", pomodoro.DefaultWork, "Work interval")
	cmd.Flags().DurationVarP(&brk, "break", "b", pomodoro.DefaultBreak, "Break interval")

	cmd.AddCommand(newPomodoroLogCmd(g), newPomodoroCountCmd(g))
	return cmd
}

func newPomodoroLogCmd(g *globals) *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Record a finished work interval without running the timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			s, err := c.LogPomodoroSession(ctx, taskID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render(ui.IconTomato+" Session logged for "+s.Day))
			return nil
		},
	}
	cmd.Flags().StringVarP(&taskID, "task", "t", "", "Task the session belongs to")
	return cmd
}

func newPomodoroCountCmd(g *globals) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count the sessions of a day (default today)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			count, err := c.PomodoroCount(ctx, date)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.LabelValue(ui.IconTomato+" "+count.Date, count.SessionsCount))
			return nil
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "Day as YYYY-MM-DD")
	return cmd
}
