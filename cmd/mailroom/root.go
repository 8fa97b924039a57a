package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/mailroom/internal/app"
	"github.com/nhle/mailroom/internal/model"
	"github.com/nhle/mailroom/internal/session"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	token      string
	baseURL    string
	logLevel   string
	noCache    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "mailroom",
		Short:         "Sync, read and send mail from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", model.DefaultConfigPath(), "config file path")
	pf.StringVar(&g.token, "token", "", "use this bearer token instead of the stored session")
	pf.StringVar(&g.baseURL, "api", "", "mail API base URL (overrides config)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (overrides config)")
	pf.BoolVar(&g.noCache, "no-cache", false, "do not read or write the local cache")

	cmd.AddCommand(
		loginCmd(g),
		logoutCmd(g),
		syncCmd(g),
		watchCmd(g),
		listCmd(g),
		showCmd(g),
		readCmd(g),
		starCmd(g),
		deleteCmd(g),
		recipientsCmd(g),
		threadsCmd(g),
		threadCmd(g),
		sendCmd(g),
		replyCmd(g),
		forwardCmd(g),
		domainsCmd(g),
		settingsCmd(g),
		notificationsCmd(g),
	)
	return cmd
}

// loadConfig reads the config file and applies flag overrides.
func (g *globalFlags) loadConfig() (*model.AppConfig, error) {
	cfg, err := model.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.baseURL != "" {
		cfg.API.BaseURL = g.baseURL
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.noCache {
		cfg.Cache.Enabled = false
	}
	return cfg, nil
}

// open builds the application. The caller must Close it.
func (g *globalFlags) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}

	opts := app.Options{LogWriter: cmd.ErrOrStderr()}
	if g.token != "" {
		opts.Tokens = session.Static(g.token, time.Time{})
	}

	a, err := app.New(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("starting client: %w", err)
	}
	return a, nil
}
