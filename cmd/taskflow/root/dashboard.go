package root

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"example.com/taskflow/internal/ui"
)

func newAlertsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Show today's counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			a, err := c.Alerts(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconBell, "Today"))
			fmt.Fprintln(out, ui.LabelValue("Completed today", fmt.Sprintf("%d of %d tasks", a.TasksCompletedToday, a.TotalTasks)))
			fmt.Fprintln(out, ui.LabelValue("Goals met", fmt.Sprintf("%d of %d", a.GoalsCompleted, a.TasksWithGoals)))
			fmt.Fprintln(out, ui.LabelValue("Pomodoro sessions", a.PomodoroSessionsToday))
			return nil
		},
	}
}

func newStatsCmd(g *globals) *cobra.Command {
	var granularity, start, end string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show productivity stats for a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			s, err := c.Stats(ctx, granularity, start, end)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconChart, fmt.Sprintf("Stats %s → %s (%s)", s.StartDate, s.EndDate, s.Granularity)))
			fmt.Fprintln(out, ui.LabelValue("Tasks", fmt.Sprintf("%d total, %d completed, %d pending", s.TotalTasks, s.CompletedTasks, s.PendingTasks)))
			fmt.Fprintln(out, ui.LabelValue("Time worked", ui.Seconds(s.TotalTimeWorked)))
			fmt.Fprintln(out, ui.LabelValue("Pomodoro sessions", s.PomodoroSessions))

			if len(s.ProductivityTrend) > 0 {
				fmt.Fprintln(out, "")
				fmt.Fprintln(out, ui.H2.Render("Completed per period"))
				for _, p := range s.ProductivityTrend {
					fmt.Fprintf(out, "%s %s %d\n", p.Period, ui.Good.Render(strings.Repeat("▇", p.Completed)), p.Completed)
				}
			}
			if len(s.RecentActivity) > 0 {
				fmt.Fprintln(out, "")
				fmt.Fprintln(out, ui.H2.Render("Recent activity"))
				for _, r := range s.RecentActivity {
					fmt.Fprintf(out, "- %s %s %s %s\n", ui.Muted.Render(r.Timestamp.Local().Format("01-02 15:04")), r.TaskTitle, ui.Key.Render(r.Action), r.Details)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&granularity, "granularity", "g", "daily", "daily, weekly or monthly")
	cmd.Flags().StringVar(&start, "start", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last day (YYYY-MM-DD)")
	return cmd
}
