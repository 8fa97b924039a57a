// Package account manages the user's settings and mail storage domains
// and keeps the selected domain consistent with the configured ones.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/mailroom/internal/mailerr"
	"github.com/nhle/mailroom/internal/model"
	mailsync "github.com/nhle/mailroom/internal/sync"
)

// Gateway is the subset of the mail API used for account data.
type Gateway interface {
	GetSettings(ctx context.Context) (*model.UserSettings, error)
	UpdateSettings(ctx context.Context, settings model.UserSettings) (*model.UserSettings, error)
	ListDomains(ctx context.Context) ([]model.Domain, error)
	CreateDomain(ctx context.Context, d model.Domain) (*model.Domain, error)
	UpdateDomain(ctx context.Context, id string, d model.Domain) (*model.Domain, error)
	DeleteDomain(ctx context.Context, id string) error
}

// Mailbox is reset to the unfiltered first page after a domain change.
type Mailbox interface {
	Load(ctx context.Context, recipient string, page int) error
}

// Syncer triggers ingestion after a domain change.
type Syncer interface {
	Sync(ctx context.Context) (*model.SyncResult, error)
}

// Account is the settings and domains of one session.
type Account struct {
	Settings model.UserSettings
	Domains  []model.Domain
}

// Selected returns the selected domain, if any.
func (a Account) Selected() (model.Domain, bool) {
	if a.Settings.SelectedDomainID == "" {
		return model.Domain{}, false
	}
	return model.FindDomain(a.Domains, a.Settings.SelectedDomainID)
}

// Service reads and updates account data.
type Service struct {
	gw      Gateway
	mailbox Mailbox
	syncer  Syncer
	log     zerolog.Logger
}

// NewService creates a service. mailbox and syncer may be nil, in which
// case SelectDomain only updates the settings.
func NewService(gw Gateway, mailbox Mailbox, syncer Syncer, logger zerolog.Logger) *Service {
	return &Service{
		gw:      gw,
		mailbox: mailbox,
		syncer:  syncer,
		log:     logger.With().Str("component", "account").Logger(),
	}
}

// Load fetches settings and domains concurrently. A missing selection
// defaults to the first domain, and a selection naming a domain that no
// longer exists is replaced the same way; either fix is saved before
// returning.
func (s *Service) Load(ctx context.Context) (*Account, error) {
	var (
		settings *model.UserSettings
		domains  []model.Domain
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		settings, err = s.gw.GetSettings(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		domains, err = s.gw.ListDomains(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	acct := &Account{Settings: *settings, Domains: domains}

	want := acct.Settings.SelectedDomainID
	if _, ok := model.FindDomain(domains, want); !ok {
		want = ""
		if len(domains) > 0 {
			want = domains[0].ID
		}
	}
	if want == acct.Settings.SelectedDomainID {
		return acct, nil
	}

	s.log.Info().
		Str("from", acct.Settings.SelectedDomainID).
		Str("to", want).
		Msg("correcting selected domain")

	next := acct.Settings
	next.SelectedDomainID = want
	stored, err := s.gw.UpdateSettings(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("saving selected domain: %w", err)
	}
	acct.Settings = *stored
	return acct, nil
}

// UpdateSettings saves settings after checking that the selected domain,
// if any, exists.
func (s *Service) UpdateSettings(
	ctx context.Context,
	settings model.UserSettings,
) (*model.UserSettings, error) {
	settings.SelectedDomainID = strings.TrimSpace(settings.SelectedDomainID)

	if settings.SelectedDomainID != "" {
		domains, err := s.gw.ListDomains(ctx)
		if err != nil {
			return nil, err
		}
		if _, ok := model.FindDomain(domains, settings.SelectedDomainID); !ok {
			return nil, mailerr.Invalid("selected_domain_id", "unknown domain %q", settings.SelectedDomainID)
		}
	}

	return s.gw.UpdateSettings(ctx, settings)
}

// SelectDomain makes id the selected domain, then resets the mailbox to
// the unfiltered first page and syncs. A sync already in progress is not
// an error.
func (s *Service) SelectDomain(ctx context.Context, id string) (*model.UserSettings, error) {
	current, err := s.gw.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	next := *current
	next.SelectedDomainID = id
	stored, err := s.UpdateSettings(ctx, next)
	if err != nil {
		return nil, err
	}

	if s.mailbox != nil {
		if err := s.mailbox.Load(ctx, "", 1); err != nil {
			return stored, fmt.Errorf("reloading mailbox: %w", err)
		}
	}
	if s.syncer != nil {
		if _, err := s.syncer.Sync(ctx); err != nil && !errors.Is(err, mailsync.ErrSyncInProgress) {
			return stored, fmt.Errorf("syncing new domain: %w", err)
		}
	}

	return stored, nil
}

// CreateDomain registers a domain. A name is required.
func (s *Service) CreateDomain(ctx context.Context, d model.Domain) (*model.Domain, error) {
	if err := validateDomain(d); err != nil {
		return nil, err
	}
	return s.gw.CreateDomain(ctx, d)
}

// UpdateDomain replaces the fields of domain id.
func (s *Service) UpdateDomain(ctx context.Context, id string, d model.Domain) (*model.Domain, error) {
	if strings.TrimSpace(id) == "" {
		return nil, mailerr.Invalid("domain_id", "must not be empty")
	}
	if err := validateDomain(d); err != nil {
		return nil, err
	}
	return s.gw.UpdateDomain(ctx, id, d)
}

// DeleteDomain removes domain id. If it was the selected domain the
// selection is cleared.
func (s *Service) DeleteDomain(ctx context.Context, id string) error {
	if err := s.gw.DeleteDomain(ctx, id); err != nil {
		return err
	}

	settings, err := s.gw.GetSettings(ctx)
	if err != nil {
		return err
	}
	if settings.SelectedDomainID != id {
		return nil
	}

	next := *settings
	next.SelectedDomainID = ""
	if _, err := s.gw.UpdateSettings(ctx, next); err != nil {
		return fmt.Errorf("clearing selected domain: %w", err)
	}
	return nil
}

func validateDomain(d model.Domain) error {
	if strings.TrimSpace(d.Name) == "" {
		return mailerr.Invalid("name", "is required")
	}
	return nil
}
