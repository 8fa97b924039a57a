package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/nhle/mailroom/internal/logging"
	"github.com/nhle/mailroom/internal/mailbox"
	"github.com/nhle/mailroom/internal/model"
	"github.com/nhle/mailroom/internal/theme"
)

const (
	dateLayout     = "2006-01-02 15:04"
	subjectWidth   = 60
	addressWidth   = 32
	previewMaxBody = 64 * 1024
)

func listCmd(g *globalFlags) *cobra.Command {
	var (
		page      int
		recipient string
		doSync    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of mail",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("recipient") {
				a.Config.Mailbox.Recipient = recipient
			}
			a.Config.Sync.OnStart = doSync

			if err := a.Start(cmd.Context(), page); err != nil {
				return err
			}

			renderPage(cmd.OutOrStdout(), a.Mailbox.Snapshot())
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "page number")
	cmd.Flags().StringVarP(&recipient, "recipient", "r", "", "only mail addressed to this recipient")
	cmd.Flags().BoolVar(&doSync, "sync", false, "sync with the server before listing")
	return cmd
}

func showCmd(g *globalFlags) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "show KEY",
		Short: "Show a message and mark it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			key := args[0]

			a.Config.Sync.OnStart = false
			if err := a.Start(ctx, page); err != nil {
				return err
			}

			rec, err := a.Mailbox.Open(ctx, key)
			if errors.Is(err, mailbox.ErrNotFound) {
				// Not on the loaded page: fetch it on its own.
				fetched, ferr := a.Gateway.GetMail(ctx, key)
				if ferr != nil {
					return ferr
				}
				rec, err = *fetched, nil
				if !rec.IsRead {
					err = a.Mailbox.SetReadFlag(ctx, key, true)
				}
			}
			if err != nil {
				return err
			}

			renderMail(cmd.OutOrStdout(), rec)
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "page to look for the message on")
	return cmd
}

func readCmd(g *globalFlags) *cobra.Command {
	var unread bool

	cmd := &cobra.Command{
		Use:   "read KEY...",
		Short: "Mark messages read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, key := range args {
				if err := a.Mailbox.SetReadFlag(cmd.Context(), key, !unread); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&unread, "unread", false, "mark unread instead")
	return cmd
}

func starCmd(g *globalFlags) *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "star KEY...",
		Short: "Star messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, key := range args {
				if err := a.Mailbox.SetStarFlag(cmd.Context(), key, !off); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "remove the star instead")
	return cmd
}

func deleteCmd(g *globalFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete KEY",
		Short: "Delete a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				confirmed := false
				err := huh.NewConfirm().
					Title("Delete this message?").
					Description(args[0]).
					Affirmative("Delete").
					Negative("Cancel").
					Value(&confirmed).
					Run()
				if err != nil {
					return err
				}
				if !confirmed {
					return nil
				}
			}

			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Mailbox.Remove(cmd.Context(), args[0])
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func recipientsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "recipients",
		Short: "List the recipient addresses mail can be filtered by",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			recipients, err := a.Gateway.ListRecipients(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range recipients {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
}

// renderPage prints the page as a table with a header line.
func renderPage(w io.Writer, st mailbox.State) {
	p := st.Page

	filter := st.Recipient
	if filter == "" {
		filter = "all recipients"
	}
	fmt.Fprintln(w, theme.HeaderStyle.Render(
		fmt.Sprintf("Page %d/%d · %d mails · %s", p.Page, p.TotalPages, p.Total, filter)))

	if len(p.Mails) == 0 {
		fmt.Fprintln(w, theme.HelpStyle.Render("No mail on this page."))
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers("", "DATE", "FROM", "SUBJECT", "KEY").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, m := range p.Mails {
		subject := logging.Bound(m.Subject, subjectWidth)
		if subject == "" {
			subject = "(no subject)"
		}
		if !m.IsRead {
			subject = theme.UnreadStyle.Render(subject)
		}
		t.Row(
			theme.Star(m.IsStarred),
			m.Date.Local().Format(dateLayout),
			logging.Bound(m.From, addressWidth),
			subject,
			m.S3Key,
		)
	}

	fmt.Fprintln(w, t.Render())
}

// renderMail prints headers and body of one message.
func renderMail(w io.Writer, m model.MailRecord) {
	fmt.Fprintln(w, theme.HeaderStyle.Render(m.Subject))
	fmt.Fprintf(w, "From:    %s\n", m.From)
	fmt.Fprintf(w, "To:      %s\n", m.To)
	fmt.Fprintf(w, "Date:    %s\n", m.Date.Local().Format(dateLayout))
	if m.ThreadID != "" {
		fmt.Fprintf(w, "Thread:  %s\n", m.ThreadID)
	}
	if m.IsStarred {
		fmt.Fprintf(w, "Starred: %s\n", theme.Star(true))
	}
	for _, att := range m.Attachments {
		fmt.Fprintf(w, "Attach:  %s (%s, %d bytes)\n", att.Filename, att.ContentType, att.Size)
	}

	body := m.Body
	if len(body) > previewMaxBody {
		body = body[:previewMaxBody] + "\n…"
	}
	fmt.Fprintln(w, theme.MessagePanelStyle.Render(strings.TrimRight(body, "\n")))
}
