package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/mailroom/internal/mailerr"
	appsync "github.com/nhle/mailroom/internal/sync"
	"github.com/nhle/mailroom/internal/theme"
)

func syncCmd(g *globalFlags) *cobra.Command {
	var page int

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest new mail on the server and refresh the current page",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()

			a.Config.Sync.OnStart = false
			if err := a.Start(ctx, page); err != nil {
				return err
			}

			result, err := a.Coordinator.Sync(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.Synced == 0 {
				fmt.Fprintln(out, "No new mail.")
				return nil
			}
			fmt.Fprintf(out, "%d new mail(s).\n", result.Synced)
			renderPage(out, a.Mailbox.Snapshot())
			return nil
		},
	}

	cmd.Flags().IntVarP(&page, "page", "p", 1, "page to refresh")
	return cmd
}

func watchCmd(g *globalFlags) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync periodically until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()

			if cmd.Flags().Changed("interval") || a.Config.Sync.Interval <= 0 {
				a.Config.Sync.Interval = interval
			}
			a.Config.Sync.OnStart = false
			if err := a.Start(ctx, 1); err != nil {
				return err
			}

			poller := a.Poller()
			if poller == nil {
				return mailerr.Invalid("interval", "must be positive, got %s", a.Config.Sync.Interval)
			}
			poller.Start()
			defer poller.Stop()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, theme.HelpStyle.Render(
				fmt.Sprintf("Syncing every %s. Press Ctrl+C to stop.", a.Config.Sync.Interval)))

			for {
				select {
				case <-ctx.Done():
					return nil
				case r := <-poller.Results():
					printSyncResult(cmd, r)
					if r.AuthExpired {
						return r.Error
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "time between syncs")
	return cmd
}

func printSyncResult(cmd *cobra.Command, r appsync.Result) {
	stamp := time.Now().Format("15:04:05")
	out := cmd.OutOrStdout()

	switch {
	case r.Error != nil:
		kind := mailerr.Kind(r.Error)
		fmt.Fprintf(out, "%s %s %v\n", stamp, theme.ErrorStyle(kind).Render("sync failed:"), r.Error)
	case r.Synced > 0:
		fmt.Fprintf(out, "%s %d new mail(s)\n", stamp, r.Synced)
	default:
		fmt.Fprintf(out, "%s %s\n", stamp, theme.HelpStyle.Render("no new mail"))
	}
}
