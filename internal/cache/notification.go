package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailroom/internal/model"
)

const (
	metaLastSyncAt    = "last_sync_at"
	metaLastSyncCount = "last_sync_count"
)

// NotifyNewMail records one notification per record. Records that were
// already announced are ignored.
func (c *SQLiteCache) NotifyNewMail(ctx context.Context, mails []model.MailRecord) error {
	if len(mails) == 0 {
		return nil
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, m := range mails {
		subject := m.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO notifications (id, s3_key, message, read, created_at)
			VALUES (?, ?, ?, 0, ?)`,
			uuid.NewString(), m.S3Key,
			fmt.Sprintf("New mail from %s: %s", m.From, subject),
			now,
		)
		if err != nil {
			return fmt.Errorf("creating notification for %s: %w", m.S3Key, err)
		}
	}

	return tx.Commit()
}

// GetUnreadNotifications returns unread notifications, newest first.
func (c *SQLiteCache) GetUnreadNotifications(ctx context.Context) ([]model.Notification, error) {
	var out []model.Notification
	err := c.db.SelectContext(ctx, &out, `
		SELECT id, s3_key, message, read, created_at
		FROM notifications
		WHERE read = 0
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationRead marks a notification as seen.
func (c *SQLiteCache) MarkNotificationRead(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, "UPDATE notifications SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("notification %s not found", id)
	}
	return nil
}

// RecordSync stores the time and size of the last completed sync.
func (c *SQLiteCache) RecordSync(ctx context.Context, at time.Time, synced int) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`

	if _, err := tx.ExecContext(ctx, upsert, metaLastSyncAt, at.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("saving %s: %w", metaLastSyncAt, err)
	}
	if _, err := tx.ExecContext(ctx, upsert, metaLastSyncCount, strconv.Itoa(synced)); err != nil {
		return fmt.Errorf("saving %s: %w", metaLastSyncCount, err)
	}

	return tx.Commit()
}

// LastSync returns the values saved by RecordSync. ok is false when no
// sync has been recorded.
func (c *SQLiteCache) LastSync(ctx context.Context) (at time.Time, synced int, ok bool, err error) {
	var raw string
	err = c.db.GetContext(ctx, &raw, "SELECT value FROM metadata WHERE key = ?", metaLastSyncAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, 0, false, nil
	}
	if err != nil {
		return time.Time{}, 0, false, fmt.Errorf("reading %s: %w", metaLastSyncAt, err)
	}

	at, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, 0, false, fmt.Errorf("parsing %s: %w", metaLastSyncAt, err)
	}

	var count string
	err = c.db.GetContext(ctx, &count, "SELECT value FROM metadata WHERE key = ?", metaLastSyncCount)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, 0, false, fmt.Errorf("reading %s: %w", metaLastSyncCount, err)
	}
	synced, _ = strconv.Atoi(count)

	return at, synced, true, nil
}
