package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/taskflow/internal/client"
	"example.com/taskflow/internal/ui"
)

func newProjectsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "Manage projects",
	}
	cmd.AddCommand(
		newProjectsListCmd(g),
		newProjectsAddCmd(g),
		newProjectsEditCmd(g),
		newProjectsRemoveCmd(g),
		newProjectsMoveCmd(g),
	)
	return cmd
}

func newProjectsListCmd(g *globals) *cobra.Command {
	var activityID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects, optionally of one activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			projects, err := c.ListProjects(ctx, activityID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconProject, "Projects"))
			if len(projects) == 0 {
				fmt.Fprintln(out, ui.Muted.Render("No projects."))
				return nil
			}
			for i, p := range projects {
				line := fmt.Sprintf("%2d. %s %s", i, p.Title, ui.Muted.Render(p.ID))
				if p.ActivityID != "" && activityID == "" {
					line += " " + ui.Muted.Render("activity="+p.ActivityID)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&activityID, "activity", "a", "", "Only projects of this activity")
	return cmd
}

func newProjectsAddCmd(g *globals) *cobra.Command {
	var activityID, description string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a project at the end of its activity",
		Args:  exactArgs(1, "title is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			p, err := c.CreateProject(ctx, client.ProjectInput{Title: args[0], Description: description, ActivityID: activityID})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render("Created project ")+p.Title+" "+ui.Muted.Render(p.ID))
			return nil
		},
	}
	cmd.Flags().StringVarP(&activityID, "activity", "a", "", "Parent activity ID")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Project description")
	return cmd
}

func newProjectsEditCmd(g *globals) *cobra.Command {
	var title, description, activityID string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Rename a project or move it to another activity (\"-\" detaches it)",
		Args:  exactArgs(1, "project id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch client.ProjectPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("activity") {
				parent := parentArg(activityID)
				patch.ActivityID = &parent
			}
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			p, err := c.UpdateProject(ctx, args[0], patch)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render("Updated project ")+p.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	cmd.Flags().StringVarP(&activityID, "activity", "a", "", "New activity ID, or - for none")
	return cmd
}

func newProjectsRemoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a project; its tasks become unassigned",
		Args:    exactArgs(1, "project id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			if err := c.DeleteProject(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Warn.Render("Deleted project ")+args[0])
			return nil
		},
	}
}

func newProjectsMoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "move <activity-id|-> <from> <to>",
		Short: "Reorder the projects of an activity",
		Args:  exactArgs(3, "activity id (or -), from and to are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			activityID := parentArg(args[0])
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
			if err := checkRange(len(board.Projects(activityID)), from, to); err != nil {
				return err
			}

			if err := board.MoveProject(ctx, activityID, from, to); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, p := range board.Projects(activityID) {
				fmt.Fprintf(out, "%2d. %s\n", i, p.Title)
			}
			return nil
		},
	}
}
