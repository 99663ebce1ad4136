package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/moonrox420/chimera-gateway/pkg/limits/ratelimit"
)

const quotaSchema = `
CREATE TABLE IF NOT EXISTS quota_windows (
    address      TEXT PRIMARY KEY,
    count        INTEGER NOT NULL,
    window_start TIMESTAMP NOT NULL,
    updated_at   TIMESTAMP NOT NULL
);
`

// SQLiteBackend implements Backend using SQLite for persistence.
// It is suitable for single-instance deployments where quota windows should
// survive a restart.
type SQLiteBackend struct {
	db        *sql.DB
	mu        sync.Mutex
	closeOnce sync.Once
}

// NewSQLiteBackend opens (or creates) the snapshot database at dbPath.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(quotaSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Save replaces the persisted snapshot with the given window states.
// The swap is transactional: a failed save leaves the previous snapshot
// intact.
func (b *SQLiteBackend) Save(ctx context.Context, states []ratelimit.WindowState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM quota_windows"); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	now := time.Now().UTC()
	for _, s := range states {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO quota_windows (address, count, window_start, updated_at) VALUES (?, ?, ?, ?)",
			s.Address, s.Count, s.WindowStart.UTC(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to persist window for %q: %w", s.Address, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return nil
}

// Load returns the most recently persisted window states.
func (b *SQLiteBackend) Load(ctx context.Context) ([]ratelimit.WindowState, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT address, count, window_start FROM quota_windows")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var states []ratelimit.WindowState
	for rows.Next() {
		var s ratelimit.WindowState
		if err := rows.Scan(&s.Address, &s.Count, &s.WindowStart); err != nil {
			return nil, fmt.Errorf("failed to scan window row: %w", err)
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate window rows: %w", err)
	}

	return states, nil
}

// Cleanup removes persisted windows that started before the cutoff.
func (b *SQLiteBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, err := b.db.ExecContext(ctx,
		"DELETE FROM quota_windows WHERE window_start < ?", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up snapshot: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows: %w", err)
	}

	return int(deleted), nil
}

// Close closes the underlying database.
func (b *SQLiteBackend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.db.Close()
	})
	return err
}
