package root

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"example.com/taskflow/internal/client"
	"example.com/taskflow/internal/ui"
)

func newTasksCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Manage tasks, rounds, notes, timers and media",
	}
	cmd.AddCommand(
		newTasksListCmd(g),
		newTasksAddCmd(g),
		newTasksShowCmd(g),
		newTasksEditCmd(g),
		newTasksRemoveCmd(g),
		newTasksMoveCmd(g),
		newTasksDoneCmd(g),
		newTasksRoundCmd(g),
		newTasksGoalCmd(g),
		newTasksNoteCmd(g),
		newTasksTimerCmd(g, "start"),
		newTasksTimerCmd(g, "stop"),
		newTasksRoundsCmd(g),
		newTasksAttachCmd(g),
		newTasksDetachCmd(g),
	)
	return cmd
}

// taskAction runs fn against a client and prints the resulting task.
func taskAction(g *globals, verb string, fn func(ctx context.Context, c *client.Client, args []string) (client.Task, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, _, err := openClient(g)
		if err != nil {
			return err
		}
		ctx, cancel := withTimeout(cmd, g)
		defer cancel()

		t, err := fn(ctx, c, args)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render(verb)+" "+taskLine(t))
		return nil
	}
}

func newTasksListCmd(g *globals) *cobra.Command {
	var projectID string
	var unassigned bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks in display order",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			tasks, err := c.ListTasks(ctx, client.TaskQuery{ProjectID: projectID, Unassigned: unassigned})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconTask, "Tasks"))
			if len(tasks) == 0 {
				fmt.Fprintln(out, ui.Muted.Render("No tasks."))
				return nil
			}
			for i, t := range tasks {
				fmt.Fprintf(out, "%2d. %s\n", i, taskLine(t))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Only tasks of this project")
	cmd.Flags().BoolVarP(&unassigned, "unassigned", "u", false, "Only tasks without a project")
	return cmd
}

func newTasksAddCmd(g *globals) *cobra.Command {
	var projectID, notes string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task at the end of its project",
		Args:  exactArgs(1, "title is required"),
		RunE: taskAction(g, "Created", func(ctx context.Context, c *client.Client, args []string) (client.Task, error) {
			return c.CreateTask(ctx, client.TaskInput{Title: args[0], Notes: notes, ProjectID: projectID})
		}),
	}
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project ID")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "Short notes")
	return cmd
}

func newTasksShowCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with its notes, time entries, media and history",
		Args:  exactArgs(1, "task id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			t, err := c.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconTask, t.Title))
			fmt.Fprintln(out, ui.LabelValue("Status", ui.StatusText(t.Status)))
			fmt.Fprintln(out, ui.LabelValue("Progress", ui.ProgressText(t.Progress)))
			fmt.Fprintln(out, ui.LabelValue("Rounds", ui.GoalBar(t.Rounds, t.Goal, 10)))
			if t.Goal > 0 {
				fmt.Fprintln(out, ui.LabelValue("Goal", fmt.Sprintf("%d %s", t.Goal, t.GoalType)))
			}
			if t.ProjectID != "" {
				fmt.Fprintln(out, ui.LabelValue("Project", t.ProjectID))
			}
			if t.Notes != "" {
				fmt.Fprintln(out, ui.LabelValue("Notes", t.Notes))
			}

			if len(t.DetailedNotes) > 0 {
				fmt.Fprintln(out, "")
				fmt.Fprintln(out, ui.H2.Render("Notes"))
				for _, n := range t.DetailedNotes {
					fmt.Fprintf(out, "- %s %s\n", ui.Muted.Render(n.Timestamp.Local().Format("2006-01-02 15:04")), n.Text)
				}
			}
			if len(t.TimeEntries) > 0 {
				fmt.Fprintln(out, "")
				fmt.Fprintln(out, ui.H2.Render(ui.IconTimer+" Time entries"))
				for _, e := range t.TimeEntries {
					if e.EndTime == nil {
						fmt.Fprintf(out, "- %s %s\n", e.StartTime.Local().Format("2006-01-02 15:04"), ui.Warn.Render("running"))
						continue
					}
					fmt.Fprintf(out, "- %s %s\n", e.StartTime.Local().Format("2006-01-02 15:04"), ui.Seconds(e.Duration))
				}
			}
			if len(t.Media) > 0 {
				fmt.Fprintln(out, "")
				fmt.Fprintln(out, ui.H2.Render("Media"))
				for _, m := range t.Media {
					fmt.Fprintf(out, "- %s %s %s\n", m.Filename, ui.Muted.Render(m.URL), ui.Muted.Render(m.ID))
				}
			}
			if len(t.ActivityLogs) > 0 {
				fmt.Fprintln(out, "")
				fmt.Fprintln(out, ui.H2.Render("History"))
				for _, l := range t.ActivityLogs {
					fmt.Fprintf(out, "- %s %s %s\n", ui.Muted.Render(l.Timestamp.Local().Format("2006-01-02 15:04")), ui.Key.Render(l.Action), l.Details)
				}
			}
			return nil
		},
	}
}

func newTasksEditCmd(g *globals) *cobra.Command {
	var title, notes, status, progress, goalType, projectID string
	var rounds, goal int
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Update task fields; --project - unassigns the task",
		Args:  exactArgs(1, "task id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch client.TaskPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("notes") {
				patch.Notes = &notes
			}
			if flags.Changed("status") {
				patch.Status = &status
			}
			if flags.Changed("progress") {
				patch.Progress = &progress
			}
			if flags.Changed("rounds") {
				patch.Rounds = &rounds
			}
			if flags.Changed("goal") {
				patch.Goal = &goal
			}
			if flags.Changed("goal-type") {
				patch.GoalType = &goalType
			}
			if flags.Changed("project") {
				parent := parentArg(projectID)
				patch.ProjectID = &parent
			}
			return taskAction(g, "Updated", func(ctx context.Context, c *client.Client, args []string) (client.Task, error) {
				return c.UpdateTask(ctx, args[0], patch)
			})(cmd, args)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&notes, "notes", "n", "", "New notes")
	cmd.Flags().StringVar(&status, "status", "", "active or completed")
	cmd.Flags().StringVar(&progress, "progress", "", "Not started, Started, On ice or Completed")
	cmd.Flags().IntVar(&rounds, "rounds", 0, "Round count")
	cmd.Flags().IntVar(&goal, "goal", 0, "Round goal (0 clears it)")
	cmd.Flags().StringVar(&goalType, "goal-type", "", "Daily, Weekly or Monthly")
	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project ID, or - to unassign")
	return cmd
}

func newTasksRemoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task and its round records",
		Args:    exactArgs(1, "task id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			if err := c.DeleteTask(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Warn.Render("Deleted task ")+args[0])
			return nil
		},
	}
}

func newTasksMoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "move <project-id|-> <from> <to>",
		Short: "Reorder the tasks of a project (- for unassigned tasks)",
		Args:  exactArgs(3, "project id (or -), from and to are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := parentArg(args[0])
			from, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			to, err := parseIndex(args[2])
			if err != nil {
				return err
			}
			board, ctx, cancel, err := loadBoard(cmd, g)
			if err != nil {
				return err
			}
			defer cancel()
			if err := checkRange(len(board.Tasks(projectID)), from, to); err != nil {
				return err
			}

			if err := board.MoveTask(ctx, projectID, from, to); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, t := range board.Tasks(projectID) {
				fmt.Fprintf(out, "%2d. %s\n", i, t.Title)
			}
			return nil
		},
	}
}

func newTasksDoneCmd(g *globals) *cobra.Command {
	var undo bool
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task completed (--undo reopens it)",
		Args:  exactArgs(1, "task id is required"),
		RunE: taskAction(g, "Saved", func(ctx context.Context, c *client.Client, args []string) (client.Task, error) {
			status := "completed"
			if undo {
				status = "active"
			}
			return c.UpdateTask(ctx, args[0], client.TaskPatch{Status: &status})
		}),
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Reopen the task instead")
	return cmd
}

func newTasksRoundCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "round <id>",
		Short: "Record one more round on a task",
		Args:  exactArgs(1, "task id is required"),
		RunE: taskAction(g, "Round recorded", func(ctx context.Context, c *client.Client, args []string) (client.Task, error) {
			t, err := c.GetTask(ctx, args[0])
			if err != nil {
				return client.Task{}, err
			}
			rounds := t.Rounds + 1
			return c.UpdateTask(ctx, args[0], client.TaskPatch{Rounds: &rounds})
		}),
	}
}

func newTasksGoalCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "goal <id>",
		Short: "Show rounds recorded in the task's current goal period",
		Args:  exactArgs(1, "task id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			p, err := c.GoalProgress(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if p.Goal == 0 {
				fmt.Fprintln(out, ui.Muted.Render("No goal set."), ui.LabelValue("Total rounds", p.TotalRounds))
				return nil
			}
			fmt.Fprintln(out, ui.LabelValue(p.GoalType+" goal", ui.GoalBar(p.PeriodRounds, p.Goal, 10)))
			fmt.Fprintln(out, ui.LabelValue("Since", p.PeriodStart.Local().Format("2006-01-02")))
			fmt.Fprintln(out, ui.LabelValue("Total rounds", p.TotalRounds))
			if p.Met {
				fmt.Fprintln(out, ui.Good.Render(ui.IconDone+" Goal met"))
			}
			return nil
		},
	}
}

func newTasksNoteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "note <id> <text>",
		Short: "Append a timestamped note",
		Args:  exactArgs(2, "task id and note text are required"),
		RunE: taskAction(g, "Noted", func(ctx context.Context, c *client.Client, args []string) (client.Task, error) {
			return c.AddDetailedNote(ctx, args[0], args[1])
		}),
	}
}

func newTasksTimerCmd(g *globals, verb string) *cobra.Command {
	short := "Start tracking time on a task"
	if verb == "stop" {
		short = "Stop tracking time on a task"
	}
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  exactArgs(1, "task id is required"),
		RunE: taskAction(g, "Timer "+verb, func(ctx context.Context, c *client.Client, args []string) (client.Task, error) {
			if verb == "stop" {
				return c.StopTimer(ctx, args[0])
			}
			return c.StartTimer(ctx, args[0])
		}),
	}
}

func newTasksRoundsCmd(g *globals) *cobra.Command {
	var limit int
	var cursor string
	cmd := &cobra.Command{
		Use:   "rounds <id>",
		Short: "List round records, newest first",
		Args:  exactArgs(1, "task id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			records, next, err := c.RoundRecords(ctx, args[0], cursor, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconChart, "Rounds"))
			if len(records) == 0 {
				fmt.Fprintln(out, ui.Muted.Render("No rounds recorded."))
			}
			for _, r := range records {
				fmt.Fprintf(out, "- #%d %s\n", r.Round, ui.Muted.Render(r.Timestamp.Local().Format("2006-01-02 15:04:05")))
			}
			if next != "" {
				fmt.Fprintln(out, ui.Muted.Render("more: --cursor "+next))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Page size (0 for all)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Continue from a previous page")
	return cmd
}

func newTasksAttachCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <id> <file>",
		Short: "Upload a file to a task",
		Args:  exactArgs(2, "task id and file path are required"),
		RunE: taskAction(g, "Attached", func(ctx context.Context, c *client.Client, args []string) (client.Task, error) {
			f, err := os.Open(args[1])
			if err != nil {
				return client.Task{}, err
			}
			defer f.Close()
			return c.AttachMedia(ctx, args[0], filepath.Base(args[1]), f)
		}),
	}
}

func newTasksDetachCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "detach <id> <media-id>",
		Short: "Remove an uploaded file from a task",
		Args:  exactArgs(2, "task id and media id are required"),
		RunE: taskAction(g, "Detached", func(ctx context.Context, c *client.Client, args []string) (client.Task, error) {
			return c.RemoveMedia(ctx, args[0], args[1])
		}),
	}
}
