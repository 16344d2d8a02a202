package store

// postgresSchema is applied on connect.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS conversation_turns (
	id          UUID PRIMARY KEY,
	session_id  TEXT NOT NULL,
	sequence    BIGINT NOT NULL,
	role        TEXT NOT NULL,
	text        TEXT NOT NULL,
	marker      JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_id, sequence)
);
`

// sqliteSchema mirrors postgresSchema with SQLite types. Times are stored
// as RFC 3339 text.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversation_turns (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	sequence    INTEGER NOT NULL,
	role        TEXT NOT NULL,
	text        TEXT NOT NULL,
	marker      TEXT,
	created_at  TEXT NOT NULL,
	UNIQUE (session_id, sequence)
);
`
