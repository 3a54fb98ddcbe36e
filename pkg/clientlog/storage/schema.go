package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema creates the client log tables. Times are stored as Unix
// nanoseconds so both drivers round-trip them identically.
const Schema = `
CREATE TABLE IF NOT EXISTS client_log (
    id TEXT PRIMARY KEY,
    logged_at INTEGER NOT NULL,
    user_name TEXT NOT NULL,
    level INTEGER NOT NULL,
    message TEXT NOT NULL,
    client_id TEXT,
    user_agent TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_client_log_logged_at ON client_log(logged_at);
CREATE INDEX IF NOT EXISTS idx_client_log_user ON client_log(user_name);
`

const insertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

const getSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
