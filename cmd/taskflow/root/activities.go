package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/taskflow/internal/client"
	"example.com/taskflow/internal/ui"
)

func newActivitiesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "activities",
		Aliases: []string{"activity"},
		Short:   "Manage activities",
	}
	cmd.AddCommand(
		newActivitiesListCmd(g),
		newActivitiesAddCmd(g),
		newActivitiesEditCmd(g),
		newActivitiesRemoveCmd(g),
		newActivitiesMoveCmd(g),
	)
	return cmd
}

func newActivitiesListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List activities in display order",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			activities, err := c.ListActivities(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconActivity, "Activities"))
			if len(activities) == 0 {
				fmt.Fprintln(out, ui.Muted.Render("No activities yet."))
				return nil
			}
			for i, a := range activities {
				fmt.Fprintf(out, "%2d. %s %s\n", i, a.Title, ui.Muted.Render(a.ID))
				if a.Description != "" {
					fmt.Fprintf(out, "    %s\n", ui.Muted.Render(a.Description))
				}
			}
			return nil
		},
	}
}

func newActivitiesAddCmd(g *globals) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create an activity at the top of the list",
		Args:  exactArgs(1, "title is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			a, err := c.CreateActivity(ctx, client.ActivityInput{Title: args[0], Description: description})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render("Created activity ")+a.Title+" "+ui.Muted.Render(a.ID))
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Activity description")
	return cmd
}

func newActivitiesEditCmd(g *globals) *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Rename or describe an activity",
		Args:  exactArgs(1, "activity id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch client.ActivityPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			a, err := c.UpdateActivity(ctx, args[0], patch)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Good.Render("Updated activity ")+a.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "New title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "New description")
	return cmd
}

func newActivitiesRemoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an activity and its projects",
		Args:    exactArgs(1, "activity id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := openClient(g)
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd, g)
			defer cancel()

			if err := c.DeleteActivity(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Warn.Render("Deleted activity ")+args[0])
			return nil
		},
	}
}

func newActivitiesMoveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "move <from> <to>",
		Short: "Move the activity at position <from> to position <to>",
		Args:  exactArgs(2, "from and to positions are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			to, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			board, ctx, cancel, err := loadBoard(cmd, g)
			if err != nil {
				return err
			}
			defer cancel()
			if err := checkRange(len(board.Activities()), from, to); err != nil {
				return err
			}

			if err := board.MoveActivity(ctx, from, to); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, a := range board.Activities() {
				fmt.Fprintf(out, "%2d. %s\n", i, a.Title)
			}
			return nil
		},
	}
}
