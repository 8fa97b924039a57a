// Package app wires the mailbox client components together from
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/nhle/mailroom/internal/account"
	"github.com/nhle/mailroom/internal/cache"
	"github.com/nhle/mailroom/internal/compose"
	"github.com/nhle/mailroom/internal/gateway"
	"github.com/nhle/mailroom/internal/logging"
	"github.com/nhle/mailroom/internal/mailbox"
	"github.com/nhle/mailroom/internal/model"
	"github.com/nhle/mailroom/internal/session"
	appsync "github.com/nhle/mailroom/internal/sync"
	"github.com/nhle/mailroom/internal/thread"
)

// Options override parts of the wiring. The zero value uses the keyring
// session, a default HTTP client and stderr for logs.
type Options struct {
	// Tokens replaces the keyring-backed session provider.
	Tokens oauth2.TokenSource

	HTTPClient *http.Client
	LogWriter  io.Writer
}

// App holds every component of one client session.
type App struct {
	Config *model.AppConfig
	Log    zerolog.Logger

	// Sessions is nil when Options.Tokens was supplied.
	Sessions *session.KeyringSource

	Gateway     *gateway.Client
	Cache       *cache.SQLiteCache
	Mailbox     *mailbox.Store
	Coordinator *appsync.Coordinator
	Threads     *thread.Assembler
	Sender      *compose.Sender
	Account     *account.Service
}

// New builds an App from cfg. The caller must Close it.
func New(cfg *model.AppConfig, opts Options) (*App, error) {
	log := logging.New(cfg.Log, opts.LogWriter)

	a := &App{Config: cfg, Log: log}

	tokens := opts.Tokens
	if tokens == nil {
		ring, err := session.OpenKeyring(cfg.Session)
		if err != nil {
			return nil, err
		}
		a.Sessions = session.NewKeyringSource(ring)
		tokens = session.Cached(a.Sessions)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.API.RequestTimeout}
	}
	a.Gateway = gateway.NewClient(cfg.API.BaseURL, tokens, httpClient, log)

	var (
		pages    mailbox.PageCache
		recorder appsync.Recorder
	)
	if cfg.Cache.Enabled {
		c, err := cache.NewSQLiteCache(cfg.Cache.Path)
		if err != nil {
			return nil, fmt.Errorf("opening cache: %w", err)
		}
		a.Cache = c
		pages, recorder = c, c
	}

	a.Mailbox = mailbox.New(a.Gateway, pages, cfg.Mailbox.PerPage, log)
	a.Coordinator = appsync.NewCoordinator(a.Gateway, a.Mailbox, recorder, log)
	a.Threads = thread.NewAssembler(a.Gateway, log)
	a.Sender = compose.NewSender(a.Gateway, log)
	a.Account = account.NewService(a.Gateway, a.Mailbox, a.Coordinator, log)

	return a, nil
}

// Start restores the last cached page, loads page of the configured
// recipient and, if configured, syncs once. A failed load after a
// successful restore is logged and the cached page kept.
func (a *App) Start(ctx context.Context, page int) error {
	recipient := a.Config.Mailbox.Recipient

	restored, err := a.Mailbox.Restore(ctx, recipient, page)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		a.Log.Debug().Err(err).Msg("cache restore failed")
	}

	if err := a.Mailbox.Load(ctx, recipient, page); err != nil {
		if !restored {
			return err
		}
		a.Log.Warn().Err(err).Msg("showing cached page")
	}

	if a.Config.Sync.OnStart {
		if _, err := a.Coordinator.Sync(ctx); err != nil {
			return fmt.Errorf("initial sync: %w", err)
		}
	}
	return nil
}

// Poller returns an interval poller for the coordinator, or nil when no
// interval is configured.
func (a *App) Poller() *appsync.Poller {
	if a.Config.Sync.Interval <= 0 {
		return nil
	}
	return appsync.NewPoller(a.Coordinator, a.Config.Sync.Interval, a.Log)
}

// Close releases the cache.
func (a *App) Close() error {
	if a.Cache == nil {
		return nil
	}
	return a.Cache.Close()
}
