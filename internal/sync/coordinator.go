package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailroom/internal/mailbox"
	"github.com/nhle/mailroom/internal/model"
)

// ErrSyncInProgress is returned when Sync is called while another Sync
// has not finished.
var ErrSyncInProgress = errors.New("sync already in progress")

// Gateway triggers server-side ingestion.
type Gateway interface {
	TriggerSync(ctx context.Context) (*model.SyncResult, error)
}

// Mailbox is the store refreshed after new mail arrives.
type Mailbox interface {
	Reload(ctx context.Context) error
	Snapshot() mailbox.State
}

// Recorder receives the outcome of completed syncs. It is optional.
type Recorder interface {
	NotifyNewMail(ctx context.Context, mails []model.MailRecord) error
	RecordSync(ctx context.Context, at time.Time, synced int) error
}

// Coordinator runs the "ingest on the server, then refresh the local
// page" sequence. At most one Sync runs at a time; overlapping calls are
// rejected rather than queued.
type Coordinator struct {
	gw       Gateway
	mailbox  Mailbox
	recorder Recorder
	log      zerolog.Logger

	mu      gosync.Mutex
	running bool
}

// NewCoordinator creates a coordinator. recorder may be nil.
func NewCoordinator(
	gw Gateway,
	mb Mailbox,
	recorder Recorder,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		gw:       gw,
		mailbox:  mb,
		recorder: recorder,
		log:      logger.With().Str("component", "sync").Logger(),
	}
}

// Running reports whether a Sync is in flight.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Sync triggers ingestion and, only when the server reports new records,
// reloads the mailbox's active filter and page. Failures are returned
// without retry. A reload superseded by a concurrent Load is not an error.
func (c *Coordinator) Sync(ctx context.Context) (*model.SyncResult, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	result, err := c.gw.TriggerSync(ctx)
	if err != nil {
		return nil, err
	}

	c.log.Debug().Int("synced", result.Synced).Msg("server sync finished")

	// Ingestion happened on the server even if the reload below fails.
	if c.recorder != nil {
		if err := c.recorder.RecordSync(ctx, time.Now(), result.Synced); err != nil {
			c.log.Warn().Err(err).Msg("recording sync failed")
		}
	}

	if result.Synced > 0 {
		prev := c.mailbox.Snapshot()

		err := c.mailbox.Reload(ctx)
		if err != nil && !errors.Is(err, mailbox.ErrStaleLoad) {
			return result, fmt.Errorf("reloading mailbox after sync: %w", err)
		}
		// Without a previously loaded page there is nothing to diff against.
		if err == nil && prev.Loaded {
			c.announce(ctx, prev, result.Synced)
		}
	}

	return result, nil
}

// announce reports records that appeared on the first page since before.
// New mail lands at the head of page 1; on later pages the diff only shows
// older records pushed down, so nothing is announced there. At most synced
// records are reported.
func (c *Coordinator) announce(ctx context.Context, before mailbox.State, synced int) {
	if c.recorder == nil || before.Page.Page != 1 {
		return
	}

	after := c.mailbox.Snapshot()
	if after.Page.Page != 1 || after.Recipient != before.Recipient {
		return
	}

	known := knownKeys(before)
	var fresh []model.MailRecord
	for _, m := range after.Page.Mails {
		if len(fresh) == synced {
			break
		}
		if !known[m.S3Key] {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) == 0 {
		return
	}

	if err := c.recorder.NotifyNewMail(ctx, fresh); err != nil {
		c.log.Warn().Err(err).Int("count", len(fresh)).Msg("recording notifications failed")
	}
}

func knownKeys(st mailbox.State) map[string]bool {
	keys := make(map[string]bool, len(st.Page.Mails))
	for _, m := range st.Page.Mails {
		keys[m.S3Key] = true
	}
	return keys
}
