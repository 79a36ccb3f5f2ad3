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

CREATE TABLE IF NOT EXISTS schedule_items (
	id               TEXT PRIMARY KEY,
	subject          TEXT NOT NULL,
	recipients       TEXT NOT NULL,
	body             TEXT NOT NULL DEFAULT '',
	attachment       TEXT NOT NULL DEFAULT '',
	mode             TEXT NOT NULL CHECK(mode IN ('Time', 'Interval')),
	frequency        TEXT NOT NULL DEFAULT '',
	interval_minutes INTEGER NOT NULL DEFAULT 0,
	schedule_time    TEXT NOT NULL DEFAULT '',
	last_sent        DATETIME,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_schedule_items_created_at ON schedule_items(created_at);

CREATE TABLE IF NOT EXISTS smtp_profile (
	server     TEXT NOT NULL,
	port       INTEGER NOT NULL,
	address    TEXT NOT NULL,
	secret     TEXT NOT NULL DEFAULT '',
	encryption TEXT NOT NULL CHECK(encryption IN ('SSL', 'STARTTLS', 'NONE')),
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
