// Package mailbox holds the client's view of one page of mail and keeps it
// consistent with optimistic local mutations and server responses.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/rs/zerolog"

	"github.com/nhle/mailroom/internal/mailerr"
	"github.com/nhle/mailroom/internal/model"
)

var (
	// ErrStaleLoad is returned by Load when a later Load was issued before
	// this one settled. The result was discarded.
	ErrStaleLoad = errors.New("load superseded by a newer request")

	// ErrNotFound is returned when a record is not on the held page.
	ErrNotFound = errors.New("mail not on current page")
)

// Gateway is the subset of the mail API the store depends on.
type Gateway interface {
	ListMail(ctx context.Context, recipient string, page, perPage int) (*model.MailPage, error)
	SetReadFlag(ctx context.Context, key string, value bool) error
	SetStarFlag(ctx context.Context, key string, value bool) error
	DeleteMail(ctx context.Context, key string) error
}

// PageCache persists last-known-good pages. It is optional.
type PageCache interface {
	SavePage(ctx context.Context, recipient string, page model.MailPage) error
	LoadPage(ctx context.Context, recipient string, page, perPage int) (*model.MailPage, error)
}

// State is a point-in-time copy of the store for readers.
type State struct {
	Page      model.MailPage
	Recipient string
	Loading   bool
	Loaded    bool
	Err       error
}

// Store holds the current mail page. It is the only writer of that page;
// its lock is never held across a gateway call, so intents issued while a
// request is in flight proceed against the local copy.
type Store struct {
	gw      Gateway
	cache   PageCache
	perPage int
	log     zerolog.Logger

	mu         gosync.Mutex
	page       model.MailPage
	recipient  string
	loading    bool
	loaded     bool
	lastErr    error
	generation uint64
	// version counts wholesale replacements of page. A mutation's
	// rollback applies only to the page it was made against.
	version uint64
}

// New creates a store. perPage <= 0 selects model.DefaultPerPage; cache
// may be nil.
func New(gw Gateway, cache PageCache, perPage int, logger zerolog.Logger) *Store {
	if perPage <= 0 {
		perPage = model.DefaultPerPage
	}
	return &Store{
		gw:      gw,
		cache:   cache,
		perPage: perPage,
		log:     logger.With().Str("component", "mailbox").Logger(),
		page: model.MailPage{
			Page:       1,
			PerPage:    perPage,
			TotalPages: 1,
		},
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Page:      s.page.Clone(),
		Recipient: s.recipient,
		Loading:   s.loading,
		Loaded:    s.loaded,
		Err:       s.lastErr,
	}
}

// Load fetches page for recipient and replaces the held page wholesale.
// Each call takes a new generation; a result is applied only if no later
// Load was issued in the meantime, otherwise it is dropped and
// ErrStaleLoad returned.
//
// Pages below 1 are rejected before any request. A page beyond the total
// page count reported by the server fails with a ValidationError and
// leaves the held page unchanged; callers are expected to clamp.
func (s *Store) Load(ctx context.Context, recipient string, page int) error {
	if page < 1 {
		return mailerr.Invalid("page", "must be at least 1, got %d", page)
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.loading = true
	s.mu.Unlock()

	result, err := s.gw.ListMail(ctx, recipient, page, s.perPage)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.log.Debug().Int("page", page).Uint64("generation", gen).Msg("discarding stale page")
		return ErrStaleLoad
	}
	s.loading = false

	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	next := result.Clone()
	next.Page = page
	next.PerPage = s.perPage
	next.Recompute()

	if !next.PageInRange(page) {
		err := mailerr.Invalid("page", "%d exceeds total pages %d", page, next.TotalPages)
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.page = next
	s.version++
	s.recipient = recipient
	s.loaded = true
	s.lastErr = nil
	saved := s.page.Clone()
	s.mu.Unlock()

	s.log.Debug().
		Int("page", page).
		Int("total", saved.Total).
		Int("mails", len(saved.Mails)).
		Msg("page loaded")

	s.persist(ctx, recipient, saved)
	return nil
}

// Reload loads the active recipient and page again. Before any page has
// been loaded it loads page 1 of the configured default.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	recipient, page := s.recipient, s.page.Page
	s.mu.Unlock()

	if page < 1 {
		page = 1
	}
	return s.Load(ctx, recipient, page)
}

// Restore fills the store from the cache without contacting the server.
// It does nothing when a page has already been loaded or a Load is in
// flight, and reports whether cached state was applied.
func (s *Store) Restore(ctx context.Context, recipient string, page int) (bool, error) {
	if s.cache == nil {
		return false, nil
	}

	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	cached, err := s.cache.LoadPage(ctx, recipient, page, s.perPage)
	if err != nil {
		return false, fmt.Errorf("restoring page %d: %w", page, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded || s.loading || gen != s.generation {
		return false, nil
	}

	s.page = cached.Clone()
	s.page.Recompute()
	s.version++
	s.recipient = recipient
	return true, nil
}

// SetReadFlag flips the read flag locally, then on the server. If the
// server call fails the flag is restored to its previous value and the
// error returned.
func (s *Store) SetReadFlag(ctx context.Context, key string, value bool) error {
	return s.mutateFlag(ctx, key, value, readFlag, s.gw.SetReadFlag)
}

// SetStarFlag flips the starred flag locally, then on the server, with
// the same rollback rule as SetReadFlag.
func (s *Store) SetStarFlag(ctx context.Context, key string, value bool) error {
	return s.mutateFlag(ctx, key, value, starFlag, s.gw.SetStarFlag)
}

// flagField selects one boolean field of a record.
type flagField func(m *model.MailRecord) *bool

func readFlag(m *model.MailRecord) *bool { return &m.IsRead }
func starFlag(m *model.MailRecord) *bool { return &m.IsStarred }

// mutateFlag applies value optimistically and reconciles with the server
// outcome. Concurrent toggles of the same flag are not sequenced: whichever
// request settles last decides the local value. Keys that are not on the
// held page are sent to the server without a local change. A failure is
// not rolled back onto a page loaded after the change was made; that page
// already reflects the server.
func (s *Store) mutateFlag(
	ctx context.Context,
	key string,
	value bool,
	field flagField,
	send func(ctx context.Context, key string, value bool) error,
) error {
	s.mu.Lock()
	prev, present := s.setFlagLocked(key, field, value)
	version := s.version
	s.mu.Unlock()

	err := send(ctx, key, value)

	if !present {
		return err
	}

	s.mu.Lock()
	if err != nil {
		if version == s.version {
			s.setFlagLocked(key, field, prev)
		}
		s.lastErr = err
	} else {
		s.setFlagLocked(key, field, value)
	}
	saved, recipient := s.page.Clone(), s.recipient
	s.mu.Unlock()

	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("flag update failed, reverted")
		return err
	}

	s.persist(ctx, recipient, saved)
	return nil
}

// setFlagLocked sets the flag on key and returns its previous value.
// The caller must hold s.mu.
func (s *Store) setFlagLocked(key string, field flagField, value bool) (prev bool, ok bool) {
	idx := s.page.IndexOf(key)
	if idx < 0 {
		return false, false
	}
	p := field(&s.page.Mails[idx])
	prev = *p
	*p = value
	return prev, true
}

// Remove deletes the record locally, decrementing the total, then on the
// server. If the server call fails the record is put back at its
// original position and the total restored. The page number and page
// size never change here; a page emptied by removals is left for the
// caller to reload. A page loaded while the delete was in flight is
// server state and is left as it is.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	version := s.version
	idx := s.page.IndexOf(key)
	var removed model.MailRecord
	if idx >= 0 {
		removed = s.page.Mails[idx]
		s.page.Mails = append(s.page.Mails[:idx:idx], s.page.Mails[idx+1:]...)
		s.page.Total = max(s.page.Total-1, 0)
		s.page.Recompute()
	}
	s.mu.Unlock()

	err := s.gw.DeleteMail(ctx, key)

	if idx < 0 {
		return err
	}

	s.mu.Lock()
	if err != nil {
		if version == s.version && s.page.IndexOf(key) < 0 {
			at := min(idx, len(s.page.Mails))
			s.page.Mails = append(s.page.Mails[:at:at], append([]model.MailRecord{removed}, s.page.Mails[at:]...)...)
			s.page.Total++
			s.page.Recompute()
		}
		s.lastErr = err
	}
	saved, recipient := s.page.Clone(), s.recipient
	s.mu.Unlock()

	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("delete failed, restored")
		return err
	}

	s.persist(ctx, recipient, saved)
	return nil
}

// Open returns the record for display and marks it read if it is not.
// A failure to mark it read is returned together with the record.
func (s *Store) Open(ctx context.Context, key string) (model.MailRecord, error) {
	s.mu.Lock()
	idx := s.page.IndexOf(key)
	if idx < 0 {
		s.mu.Unlock()
		return model.MailRecord{}, fmt.Errorf("opening %s: %w", key, ErrNotFound)
	}
	rec := s.page.Clone().Mails[idx]
	s.mu.Unlock()

	if rec.IsRead {
		return rec, nil
	}

	if err := s.SetReadFlag(ctx, key, true); err != nil {
		return rec, err
	}
	rec.IsRead = true
	return rec, nil
}

// persist writes page through to the cache. Cache failures are logged
// and never fail the operation.
func (s *Store) persist(ctx context.Context, recipient string, page model.MailPage) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SavePage(ctx, recipient, page); err != nil {
		s.log.Warn().Err(err).Int("page", page.Page).Msg("caching page failed")
	}
}
