package cache

// Schema migrations for the SQLite cache. All statements are idempotent.

const migrationUsers = `
CREATE TABLE IF NOT EXISTS users (
	user_id       TEXT PRIMARY KEY,
	user_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	broker        TEXT NOT NULL DEFAULT '',
	access_token  TEXT NOT NULL DEFAULT '',
	public_token  TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	last_login    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const migrationSessions = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id   TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	access_token TEXT NOT NULL DEFAULT '',
	public_token TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL,
	expires_at   TIMESTAMP NOT NULL
);
`

const migrationHoldings = `
CREATE TABLE IF NOT EXISTS holdings (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id               TEXT NOT NULL,
	instrument_token      INTEGER NOT NULL,
	exchange              TEXT NOT NULL,
	tradingsymbol         TEXT NOT NULL,
	isin                  TEXT NOT NULL DEFAULT '',
	product               TEXT NOT NULL DEFAULT '',
	quantity              INTEGER NOT NULL,
	t1_quantity           INTEGER NOT NULL DEFAULT 0,
	average_price         REAL NOT NULL,
	last_price            REAL NOT NULL DEFAULT 0,
	close_price           REAL NOT NULL DEFAULT 0,
	pnl                   REAL NOT NULL DEFAULT 0,
	day_change            REAL NOT NULL DEFAULT 0,
	day_change_percentage REAL NOT NULL DEFAULT 0,
	last_updated          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const migrationRequestTokens = `
CREATE TABLE IF NOT EXISTS request_tokens (
	request_token TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_holdings_user_id ON holdings(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`
