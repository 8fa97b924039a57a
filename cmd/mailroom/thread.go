package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mailroom/internal/model"
	"github.com/nhle/mailroom/internal/theme"
)

func threadsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List conversation threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			groups, err := a.Threads.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(groups) == 0 {
				fmt.Fprintln(out, theme.HelpStyle.Render("No threads."))
				return nil
			}
			for _, grp := range groups {
				fmt.Fprintf(out, "%s  %s\n", grp.ParentUUID, grp.GroupName)
			}
			return nil
		},
	}
}

func threadCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "thread ID",
		Short: "Show a conversation in date order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			th, err := a.Threads.Assemble(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			title := th.GroupName
			if title == "" {
				title = th.ThreadID
			}
			fmt.Fprintln(out, theme.HeaderStyle.Render(title))

			for _, m := range th.Messages {
				arrow := "→"
				if m.Type != model.MessageSent {
					arrow = "←"
				}
				label := theme.DirectionStyle(m.Type).Render(fmt.Sprintf("%s %s", arrow, m.Counterpart()))
				fmt.Fprintf(out, "%s  %s  %s\n", m.Date.Local().Format(dateLayout), label, m.Subject)
				if m.S3Key != "" {
					fmt.Fprintln(out, theme.HelpStyle.Render("  key: "+m.S3Key))
				}
				body := strings.TrimRight(m.Body, "\n")
				if body != "" {
					fmt.Fprintln(out, theme.MessagePanelStyle.Render(body))
				}
			}
			return nil
		},
	}
}
