package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Role identifies who produced a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one row of the conversation log: a user prompt or a streamed
// assistant fragment.
type Turn struct {
	// ID is the auto-increment row id; zero until the turn is stored.
	ID int64

	// Timestamp is when the turn was produced.
	Timestamp time.Time

	// ClientAddress is the peer address of the connection that produced it.
	ClientAddress string

	// Token is the credential the connection authenticated with.
	Token string

	// Role is RoleUser or RoleAssistant.
	Role string

	// Content is the prompt or fragment text.
	Content string
}

// SQLiteStore implements the conversation log on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Options configures the store.
type Options struct {
	// Path is the database file path. The parent directory is created if
	// missing.
	Path string

	// BusyTimeout is how long to wait on a locked database. Default: 5s.
	BusyTimeout time.Duration

	// Logger receives append failures and prune summaries.
	Logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the conversation database.
// WAL mode is enabled so appends from the write path do not block readers.
func NewSQLiteStore(opts Options) (*SQLiteStore, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	if opts.BusyTimeout == 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store.sqlite")

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.initialize(opts.BusyTimeout); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("conversation store initialized", "path", opts.Path)

	return s, nil
}

func (s *SQLiteStore) initialize(busyTimeout time.Duration) error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version != SchemaVersion {
		return fmt.Errorf("schema version mismatch: expected %d, got %d", SchemaVersion, version)
	}

	return nil
}

// Append persists one turn. Callers on the streaming path treat failures as
// best-effort: log, count, and keep the client-facing stream alive.
func (s *SQLiteStore) Append(ctx context.Context, turn *Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (timestamp, client_address, token, role, content)
		 VALUES (?, ?, ?, ?, ?)`,
		turn.Timestamp.UTC(), turn.ClientAddress, turn.Token, turn.Role, turn.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		turn.ID = id
	}

	return nil
}

// Prune deletes turns older than retentionDays. It is idempotent: a second
// pass with no new writes deletes nothing. retentionDays <= 0 disables
// pruning and deletes nothing.
func (s *SQLiteStore) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	res, err := s.db.ExecContext(ctx, "DELETE FROM turns WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune turns: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned turns: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("pruned conversation turns",
			"deleted_count", deleted,
			"retention_days", retentionDays,
		)
	} else {
		s.logger.Debug("no conversation turns to prune", "retention_days", retentionDays)
	}

	return deleted, nil
}

// Count returns the total number of stored turns.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return count, nil
}

// Recent returns up to limit most recent turns, newest first.
// Used by tests and the prune subcommand's reporting.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]*Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, client_address, token, role, content
		 FROM turns ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.Timestamp, &t.ClientAddress, &t.Token, &t.Role, &t.Content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turns: %w", err)
	}

	return turns, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
