// Package cache keeps a local SQLite copy of the last pages loaded from
// the mail API, the new-mail notifications raised by syncs, and sync
// metadata. It holds last-known-good state only; the mail API stays
// authoritative.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailroom/internal/model"
)

// ErrMiss is returned when a requested page has never been cached.
var ErrMiss = errors.New("page not cached")

// SQLiteCache stores mail pages in a local SQLite database.
type SQLiteCache struct {
	db *sqlx.DB
}

// NewSQLiteCache opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations. The special
// path ":memory:" opens a private in-memory database.
func NewSQLiteCache(dbPath string) (*SQLiteCache, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Each in-memory connection is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	c := &SQLiteCache{db: db}
	if err := c.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return c, nil
}

// Close closes the underlying database connection.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (c *SQLiteCache) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := c.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = c.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := c.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// mailRow is the storage shape of a mail record.
type mailRow struct {
	model.MailRecord
	AttachmentsJSON string    `db:"attachments"`
	FetchedAt       time.Time `db:"fetched_at"`
}

// pageRow is the storage shape of a cached page window.
type pageRow struct {
	Recipient  string    `db:"recipient"`
	Page       int       `db:"page"`
	PerPage    int       `db:"per_page"`
	Total      int       `db:"total"`
	TotalPages int       `db:"total_pages"`
	MailKeys   string    `db:"mail_keys"`
	FetchedAt  time.Time `db:"fetched_at"`
}

// SavePage stores the page window for recipient together with its
// records, replacing any earlier copy of the same window.
func (c *SQLiteCache) SavePage(
	ctx context.Context,
	recipient string,
	page model.MailPage,
) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	keys := make([]string, 0, len(page.Mails))

	const upsertMail = `
		INSERT INTO mails (
			s3_key, message_id, from_addr, to_addr,
			subject, body, html_body, date,
			attachments, is_read, is_starred, thread_id,
			fetched_at
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?,
			?
		)
		ON CONFLICT(s3_key) DO UPDATE SET
			message_id  = excluded.message_id,
			from_addr   = excluded.from_addr,
			to_addr     = excluded.to_addr,
			subject     = excluded.subject,
			body        = excluded.body,
			html_body   = excluded.html_body,
			date        = excluded.date,
			attachments = excluded.attachments,
			is_read     = excluded.is_read,
			is_starred  = excluded.is_starred,
			thread_id   = excluded.thread_id,
			fetched_at  = excluded.fetched_at`

	stmt, err := tx.PreparexContext(ctx, upsertMail)
	if err != nil {
		return fmt.Errorf("preparing mail upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range page.Mails {
		attachments, err := json.Marshal(m.Attachments)
		if err != nil {
			return fmt.Errorf("marshaling attachments for %s: %w", m.S3Key, err)
		}
		if m.Attachments == nil {
			attachments = []byte("[]")
		}

		_, err = stmt.ExecContext(ctx,
			m.S3Key, m.MessageID, m.From, m.To,
			m.Subject, m.Body, m.HTMLBody, m.Date.UTC(),
			string(attachments), boolToInt(m.IsRead), boolToInt(m.IsStarred), m.ThreadID,
			now,
		)
		if err != nil {
			return fmt.Errorf("upserting mail %s: %w", m.S3Key, err)
		}
		keys = append(keys, m.S3Key)
	}

	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("marshaling page keys: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO pages (
			recipient, page, per_page, total, total_pages, mail_keys, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		recipient, page.Page, page.PerPage, page.Total, page.TotalPages,
		string(keysJSON), now,
	)
	if err != nil {
		return fmt.Errorf("saving page %d for %q: %w", page.Page, recipient, err)
	}

	return tx.Commit()
}

// LoadPage returns the cached window for (recipient, page, perPage) with
// records in their original order. Records removed since are skipped.
func (c *SQLiteCache) LoadPage(
	ctx context.Context,
	recipient string,
	page int,
	perPage int,
) (*model.MailPage, error) {
	var row pageRow
	err := c.db.GetContext(ctx, &row, `
		SELECT * FROM pages WHERE recipient = ? AND page = ? AND per_page = ?`,
		recipient, page, perPage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("loading page %d for %q: %w", page, recipient, err)
	}

	var keys []string
	if err := json.Unmarshal([]byte(row.MailKeys), &keys); err != nil {
		return nil, fmt.Errorf("decoding page keys: %w", err)
	}

	result := &model.MailPage{
		Mails:      make([]model.MailRecord, 0, len(keys)),
		Total:      row.Total,
		Page:       row.Page,
		PerPage:    row.PerPage,
		TotalPages: row.TotalPages,
	}
	if len(keys) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In("SELECT * FROM mails WHERE s3_key IN (?)", keys)
	if err != nil {
		return nil, fmt.Errorf("building mail query: %w", err)
	}

	var rows []mailRow
	if err := c.db.SelectContext(ctx, &rows, c.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying cached mails: %w", err)
	}

	byKey := make(map[string]model.MailRecord, len(rows))
	for _, r := range rows {
		rec, err := r.record()
		if err != nil {
			return nil, err
		}
		byKey[rec.S3Key] = rec
	}
	for _, k := range keys {
		if rec, ok := byKey[k]; ok {
			result.Mails = append(result.Mails, rec)
		}
	}

	return result, nil
}

// GetMail returns a single cached record.
func (c *SQLiteCache) GetMail(ctx context.Context, key string) (*model.MailRecord, error) {
	var row mailRow
	err := c.db.GetContext(ctx, &row, "SELECT * FROM mails WHERE s3_key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("getting cached mail %s: %w", key, err)
	}

	rec, err := row.record()
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// record converts the row back into a model record.
func (r mailRow) record() (model.MailRecord, error) {
	rec := r.MailRecord
	if r.AttachmentsJSON != "" && r.AttachmentsJSON != "[]" && r.AttachmentsJSON != "null" {
		if err := json.Unmarshal([]byte(r.AttachmentsJSON), &rec.Attachments); err != nil {
			return rec, fmt.Errorf("decoding attachments for %s: %w", rec.S3Key, err)
		}
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
