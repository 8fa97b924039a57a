// Package thread turns thread-fetch responses into chronological
// conversation views.
package thread

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/nhle/mailroom/internal/mailerr"
	"github.com/nhle/mailroom/internal/model"
)

// Gateway is the subset of the mail API the assembler reads from.
type Gateway interface {
	ListThreads(ctx context.Context) ([]model.ThreadGroup, error)
	FetchThread(ctx context.Context, threadID string) (*model.Thread, error)
}

// Assembler is read-only: it never changes mail flags. Flag changes on
// received copies go through the mailbox store by storage key.
type Assembler struct {
	gw  Gateway
	log zerolog.Logger
}

// NewAssembler creates an assembler.
func NewAssembler(gw Gateway, logger zerolog.Logger) *Assembler {
	return &Assembler{
		gw:  gw,
		log: logger.With().Str("component", "thread").Logger(),
	}
}

// Assemble fetches threadID and returns its messages ordered ascending by
// date. Messages with equal dates keep their transport order. The group
// name is returned unchanged. Every failure is a ThreadUnavailableError.
func (a *Assembler) Assemble(ctx context.Context, threadID string) (*model.Thread, error) {
	if threadID == "" {
		return nil, &mailerr.ThreadUnavailableError{
			ThreadID: threadID,
			Err:      mailerr.Invalid("thread_id", "must not be empty"),
		}
	}

	raw, err := a.gw.FetchThread(ctx, threadID)
	if err != nil {
		a.log.Debug().Err(err).Str("thread_id", threadID).Msg("thread fetch failed")
		return nil, &mailerr.ThreadUnavailableError{ThreadID: threadID, Err: err}
	}
	if raw == nil {
		return nil, &mailerr.ThreadUnavailableError{
			ThreadID: threadID,
			Err:      fmt.Errorf("empty response"),
		}
	}

	out := &model.Thread{
		ThreadID:  raw.ThreadID,
		GroupName: raw.GroupName,
		Messages:  make([]model.ThreadMessage, len(raw.Messages)),
	}
	for i, m := range raw.Messages {
		out.Messages[i] = m.Clone()
	}
	if out.ThreadID == "" {
		out.ThreadID = threadID
	}

	Order(out.Messages)
	return out, nil
}

// Order sorts msgs ascending by date in place, keeping the relative order
// of messages with equal dates.
func Order(msgs []model.ThreadMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Date.Before(msgs[j].Date)
	})
}

// List returns the thread groups visible to the user.
func (a *Assembler) List(ctx context.Context) ([]model.ThreadGroup, error) {
	groups, err := a.gw.ListThreads(ctx)
	if err != nil {
		return nil, err
	}
	return groups, nil
}
