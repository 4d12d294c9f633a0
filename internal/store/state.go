package store

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

	"github.com/nhle/portal-notify/internal/model"
)

// StateStore keeps the client's durable local state in SQLite: the
// best-effort per-scope "has seen" flag and the last fetched snapshot, so a
// restart can render last-known-good data before the first fetch completes.
type StateStore struct {
	db *sqlx.DB
}

// NewStateStore opens (or creates) the state database at dbPath, enables
// WAL mode, and runs any pending schema migrations. Parent directories are
// created as needed.
func NewStateStore(dbPath string) (*StateStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &StateStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *StateStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("recording migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SetHasSeen persists the advisory "user has opened the list" flag for a
// scope.
func (s *StateStore) SetHasSeen(ctx context.Context, scopeKey string, hasSeen bool) error {
	const query = `
		INSERT INTO seen_state (scope_key, has_seen, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(scope_key) DO UPDATE SET
			has_seen = excluded.has_seen,
			updated_at = CURRENT_TIMESTAMP`

	if _, err := s.db.ExecContext(ctx, query, scopeKey, hasSeen); err != nil {
		return fmt.Errorf("writing seen state for %s: %w", scopeKey, err)
	}
	return nil
}

// HasSeen reads the advisory flag for a scope. An absent row is false.
func (s *StateStore) HasSeen(ctx context.Context, scopeKey string) (bool, error) {
	var hasSeen bool
	err := s.db.GetContext(ctx, &hasSeen,
		"SELECT has_seen FROM seen_state WHERE scope_key = ?", scopeKey)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading seen state for %s: %w", scopeKey, err)
	}
	return hasSeen, nil
}

// SaveSnapshot persists the scope's latest notification snapshot.
func (s *StateStore) SaveSnapshot(ctx context.Context, scopeKey string, items []model.Notification) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding snapshot for %s: %w", scopeKey, err)
	}

	const query = `
		INSERT INTO snapshot_cache (scope_key, fetched_at, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(scope_key) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			payload = excluded.payload`

	if _, err := s.db.ExecContext(ctx, query, scopeKey, time.Now().UTC(), payload); err != nil {
		return fmt.Errorf("writing snapshot for %s: %w", scopeKey, err)
	}
	return nil
}

// LoadSnapshot returns the scope's cached snapshot and when it was fetched.
// An absent row returns a nil slice and zero time, not an error.
func (s *StateStore) LoadSnapshot(ctx context.Context, scopeKey string) ([]model.Notification, time.Time, error) {
	var row struct {
		FetchedAt time.Time `db:"fetched_at"`
		Payload   []byte    `db:"payload"`
	}

	err := s.db.GetContext(ctx, &row,
		"SELECT fetched_at, payload FROM snapshot_cache WHERE scope_key = ?", scopeKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading snapshot for %s: %w", scopeKey, err)
	}

	var items []model.Notification
	if err := json.Unmarshal(row.Payload, &items); err != nil {
		return nil, time.Time{}, fmt.Errorf("decoding snapshot for %s: %w", scopeKey, err)
	}
	return items, row.FetchedAt, nil
}
