package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/mailroom/internal/app"
	"github.com/nhle/mailroom/internal/compose"
	"github.com/nhle/mailroom/internal/model"
)

// composeFlags are shared by send, reply and forward.
type composeFlags struct {
	to      []string
	subject string
	body    string
	from    string
	html    string
}

func (f *composeFlags) register(cmd *cobra.Command, withSubject bool) {
	cmd.Flags().StringSliceVarP(&f.to, "to", "t", nil, "recipient address (repeatable or comma-separated)")
	if withSubject {
		cmd.Flags().StringVarP(&f.subject, "subject", "s", "", "subject line")
	}
	cmd.Flags().StringVarP(&f.body, "body", "b", "", "message body")
	cmd.Flags().StringVar(&f.html, "html", "", "optional HTML body")
	cmd.Flags().StringVarP(&f.from, "from", "f", "", "sender address (defaults to compose.from_address)")
}

func sendCmd(g *globalFlags) *cobra.Command {
	f := &composeFlags{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a new message",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			req := model.SendRequest{
				To:       f.to,
				Subject:  f.subject,
				Body:     f.body,
				HTMLBody: f.html,
				SendType: model.SendNew,
			}
			return submit(cmd, a, f, req, true)
		},
	}

	f.register(cmd, true)
	return cmd
}

func replyCmd(g *globalFlags) *cobra.Command {
	f := &composeFlags{}

	cmd := &cobra.Command{
		Use:   "reply KEY",
		Short: "Reply to a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Gateway.GetMail(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			req := compose.ReplyDraft(*rec)
			if len(f.to) > 0 {
				req.To = f.to
			}
			req.Body = f.body + req.Body
			req.HTMLBody = f.html
			return submit(cmd, a, f, req, false)
		},
	}

	f.register(cmd, false)
	return cmd
}

func forwardCmd(g *globalFlags) *cobra.Command {
	f := &composeFlags{}

	cmd := &cobra.Command{
		Use:   "forward KEY",
		Short: "Forward a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Gateway.GetMail(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			req := compose.ForwardDraft(*rec)
			req.To = f.to
			req.Body = f.body + req.Body
			req.HTMLBody = f.html
			return submit(cmd, a, f, req, false)
		},
	}

	f.register(cmd, false)
	return cmd
}

// submit fills the from-address, prompts for missing required fields and
// sends req.
func submit(cmd *cobra.Command, a *app.App, f *composeFlags, req model.SendRequest, promptBody bool) error {
	req.FromAddress = strings.TrimSpace(f.from)
	if req.FromAddress == "" {
		req.FromAddress = a.Config.Compose.FromAddress
	}

	if err := prompt(&req, promptBody); err != nil {
		return err
	}

	result, err := a.Sender.Send(cmd.Context(), req)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent. Thread %s\n", result.ThreadID)
	return nil
}

// prompt asks for the fields of req that are still empty. Nothing is
// shown when everything is already set.
func prompt(req *model.SendRequest, withBody bool) error {
	var fields []huh.Field

	var to string
	if len(req.To) == 0 {
		fields = append(fields, huh.NewInput().
			Title("To").
			Description("Comma-separated recipient addresses").
			Value(&to).
			Validate(func(s string) error {
				_, err := compose.ParseRecipients([]string{s})
				return err
			}))
	}
	if req.FromAddress == "" {
		fields = append(fields, huh.NewInput().
			Title("From").
			Value(&req.FromAddress).
			Validate(validateRequired("From")))
	}
	if req.Subject == "" {
		fields = append(fields, huh.NewInput().
			Title("Subject").
			Value(&req.Subject))
	}
	if withBody && req.Body == "" {
		fields = append(fields, huh.NewText().
			Title("Body").
			Value(&req.Body))
	}

	if len(fields) == 0 {
		return nil
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return err
	}
	if to != "" {
		req.To = []string{to}
	}
	return nil
}
