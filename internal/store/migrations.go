package store

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

CREATE TABLE IF NOT EXISTS asset_cache (
	method    TEXT NOT NULL,
	url       TEXT NOT NULL,
	status    INTEGER NOT NULL,
	header    TEXT NOT NULL DEFAULT '{}',
	body      BLOB NOT NULL,
	cached_at DATETIME NOT NULL,
	PRIMARY KEY (method, url)
);

CREATE TABLE IF NOT EXISTS push_subscriptions (
	scope       TEXT PRIMARY KEY,
	channel_id  TEXT NOT NULL UNIQUE,
	endpoint    TEXT NOT NULL,
	p256dh      TEXT NOT NULL,
	auth        TEXT NOT NULL,
	private_key BLOB NOT NULL,
	server_key  TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS displayed_notifications (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	options    TEXT NOT NULL DEFAULT '{}',
	closed     INTEGER NOT NULL DEFAULT 0 CHECK(closed IN (0, 1)),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_displayed_closed ON displayed_notifications(closed);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
