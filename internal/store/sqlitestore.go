package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStoreConfig configures the SQLite-backed store.
type SQLiteStoreConfig struct {
	Path  string
	Owner string
}

// SQLiteStore persists credential slots in a local SQLite database.
type SQLiteStore struct {
	db    *sqlx.DB
	owner string
}

type credentialRow struct {
	Value string `db:"value"`
}

// NewSQLiteStore opens (creating when needed) the database at cfg.Path and ensures
// the credential table exists.
func NewSQLiteStore(ctx context.Context, cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("sqlite store: create directory: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS credentials (
			owner TEXT NOT NULL,
			slot TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (owner, slot)
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: create credential table: %w", err)
	}
	return &SQLiteStore{db: db, owner: ownerOrDefault(cfg.Owner)}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	var row credentialRow
	err := s.db.GetContext(ctx, &row, "SELECT value FROM credentials WHERE owner = ? AND slot = ?", s.owner, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("sqlite store: read %s: %w", key, err)
	}
	return row.Value, true, nil
}

// Set upserts value under key.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (owner, slot, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (owner, slot)
		DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, s.owner, key, value)
	if err != nil {
		return fmt.Errorf("sqlite store: upsert %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE owner = ? AND slot = ?", s.owner, key); err != nil {
		return fmt.Errorf("sqlite store: delete %s: %w", key, err)
	}
	return nil
}
