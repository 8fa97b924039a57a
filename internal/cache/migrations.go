package cache

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mails (
	s3_key      TEXT PRIMARY KEY,
	message_id  TEXT NOT NULL DEFAULT '',
	from_addr   TEXT NOT NULL DEFAULT '',
	to_addr     TEXT NOT NULL DEFAULT '',
	subject     TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	html_body   TEXT NOT NULL DEFAULT '',
	date        DATETIME NOT NULL,
	attachments TEXT NOT NULL DEFAULT '[]',
	is_read     INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	is_starred  INTEGER NOT NULL DEFAULT 0 CHECK(is_starred IN (0, 1)),
	thread_id   TEXT NOT NULL DEFAULT '',
	fetched_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	recipient   TEXT NOT NULL,
	page        INTEGER NOT NULL,
	per_page    INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	total_pages INTEGER NOT NULL,
	mail_keys   TEXT NOT NULL DEFAULT '[]',
	fetched_at  DATETIME NOT NULL,
	PRIMARY KEY (recipient, page, per_page)
);

CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	s3_key      TEXT NOT NULL,
	message     TEXT NOT NULL,
	read        INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_mails_thread_id ON mails(thread_id);
CREATE INDEX IF NOT EXISTS idx_mails_date ON mails(date);
CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_s3_key
	ON notifications(s3_key);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
