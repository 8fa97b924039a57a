package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/mailroom/internal/model"
	"github.com/nhle/mailroom/internal/theme"
)

func domainsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Manage mail storage domains",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.Account.Load(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(acct.Domains) == 0 {
				fmt.Fprintln(out, theme.HelpStyle.Render("No domains configured. Add one with: mailroom domains add"))
				return nil
			}
			for _, d := range acct.Domains {
				marker := " "
				if d.ID == acct.Settings.SelectedDomainID {
					marker = theme.StarStyle.Render(">")
				}
				fmt.Fprintf(out, "%s %s  %s  %s/%s\n", marker, d.ID, d.Name, d.Region, d.Bucket)
			}
			return nil
		},
	}

	cmd.AddCommand(domainUseCmd(g), domainAddCmd(g), domainRemoveCmd(g))
	return cmd
}

func domainUseCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "use ID",
		Short: "Select a domain, reset the recipient filter and sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.Account.SelectDomain(cmd.Context(), args[0]); err != nil {
				return err
			}

			// The default filter belongs to the previous domain.
			if a.Config.Mailbox.Recipient != "" {
				a.Config.Mailbox.Recipient = ""
				if err := model.SaveConfig(g.configPath, a.Config); err != nil {
					a.Log.Warn().Err(err).Msg("clearing saved recipient filter failed")
				}
			}

			renderPage(cmd.OutOrStdout(), a.Mailbox.Snapshot())
			return nil
		},
	}
}

func domainAddCmd(g *globalFlags) *cobra.Command {
	var d model.Domain

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a storage domain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if d.SecretKey == "" && d.AccessKeyID != "" {
				err := huh.NewInput().
					Title("Secret access key").
					EchoMode(huh.EchoModePassword).
					Value(&d.SecretKey).
					Validate(validateRequired("Secret key")).
					Run()
				if err != nil {
					return err
				}
			}

			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.Account.CreateDomain(cmd.Context(), d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added domain %s (%s)\n", created.Name, created.ID)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&d.Name, "name", "", "display name")
	fl.StringVar(&d.Bucket, "bucket", "", "storage bucket")
	fl.StringVar(&d.Region, "region", "", "storage region")
	fl.StringVar(&d.Endpoint, "endpoint", "", "custom storage endpoint")
	fl.StringVar(&d.AccessKeyID, "access-key", "", "access key ID")
	fl.StringVar(&d.SecretKey, "secret-key", "", "secret access key (prompted when omitted)")
	return cmd
}

func domainRemoveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a storage domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Account.DeleteDomain(cmd.Context(), args[0])
		},
	}
}

func settingsCmd(g *globalFlags) *cobra.Command {
	var webhook string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change account settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			acct, err := a.Account.Load(ctx)
			if err != nil {
				return err
			}
			settings := acct.Settings

			if cmd.Flags().Changed("webhook") {
				settings.DiscordWebhookURL = strings.TrimSpace(webhook)
				stored, err := a.Account.UpdateSettings(ctx, settings)
				if err != nil {
					return err
				}
				settings = *stored
			}

			out := cmd.OutOrStdout()
			selected := "(none)"
			if d, ok := acct.Selected(); ok {
				selected = fmt.Sprintf("%s (%s)", d.Name, d.ID)
			}
			fmt.Fprintf(out, "Selected domain: %s\n", selected)
			fmt.Fprintf(out, "Webhook URL:     %s\n", settings.DiscordWebhookURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&webhook, "webhook", "", "new-mail webhook URL; empty disables it")
	return cmd
}

func notificationsCmd(g *globalFlags) *cobra.Command {
	var ack bool

	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List new-mail notifications recorded by past syncs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.Cache == nil {
				return fmt.Errorf("notifications need the local cache; it is disabled")
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if at, synced, ok, err := a.Cache.LastSync(ctx); err == nil && ok {
				fmt.Fprintln(out, theme.HelpStyle.Render(
					fmt.Sprintf("Last sync %s, %d new", at.Local().Format(dateLayout), synced)))
			}

			notes, err := a.Cache.GetUnreadNotifications(ctx)
			if err != nil {
				return err
			}
			if len(notes) == 0 {
				fmt.Fprintln(out, "No unread notifications.")
				return nil
			}

			for _, n := range notes {
				fmt.Fprintf(out, "%s  %s  [%s]\n", n.CreatedAt.Local().Format(dateLayout), n.Message, n.S3Key)
				if ack {
					if err := a.Cache.MarkNotificationRead(ctx, n.ID); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ack, "ack", false, "mark the listed notifications as read")
	return cmd
}
