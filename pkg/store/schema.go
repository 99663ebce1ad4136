package store

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the conversation log schema.
const Schema = `
-- Conversation turns, append-only
CREATE TABLE IF NOT EXISTS turns (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp      TIMESTAMP NOT NULL,
    client_address TEXT NOT NULL,
    token          TEXT NOT NULL,
    role           TEXT NOT NULL,
    content        TEXT NOT NULL
);

-- Pruning deletes by age; index the timestamp it filters on
CREATE INDEX IF NOT EXISTS idx_turns_timestamp ON turns(timestamp);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

// InsertSchemaVersion records the schema version, ignoring duplicates.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?);`

// GetSchemaVersion reads the recorded schema version.
const GetSchemaVersion = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;`
