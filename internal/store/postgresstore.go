package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
)

const defaultCredentialTable = "nowplaying_credentials"

// PostgresStoreConfig captures configuration required to initialize a Postgres-backed store.
type PostgresStoreConfig struct {
	DSN    string
	Schema string
	Table  string
	Owner  string
}

// PostgresStore persists credential slots in a PostgreSQL table keyed by (owner, slot).
type PostgresStore struct {
	db  *sql.DB
	cfg PostgresStoreConfig
}

// NewPostgresStore establishes a connection to PostgreSQL.
func NewPostgresStore(ctx context.Context, cfg PostgresStoreConfig) (*PostgresStore, error) {
	cfg, err := normalizePostgresConfig(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres store: ping database: %w", err)
	}
	return &PostgresStore{db: db, cfg: cfg}, nil
}

func normalizePostgresConfig(cfg PostgresStoreConfig) (PostgresStoreConfig, error) {
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	if cfg.DSN == "" {
		return cfg, fmt.Errorf("postgres store: DSN is required")
	}
	cfg.Schema = strings.TrimSpace(cfg.Schema)
	if strings.TrimSpace(cfg.Table) == "" {
		cfg.Table = defaultCredentialTable
	}
	cfg.Owner = ownerOrDefault(cfg.Owner)
	return cfg, nil
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the credential table (and schema when provided).
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store: not initialized")
	}
	if s.cfg.Schema != "" {
		query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdentifier(s.cfg.Schema))
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("postgres store: create schema: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			owner TEXT NOT NULL,
			slot TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (owner, slot)
		)
	`, s.fullTableName())); err != nil {
		return fmt.Errorf("postgres store: create credential table: %w", err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	query := fmt.Sprintf("SELECT value FROM %s WHERE owner = $1 AND slot = $2", s.fullTableName())
	var value string
	err := s.db.QueryRowContext(ctx, query, s.cfg.Owner, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("postgres store: read %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts value under key.
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (owner, slot, value, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (owner, slot)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, s.fullTableName())
	if _, err := s.db.ExecContext(ctx, query, s.cfg.Owner, key, value); err != nil {
		return fmt.Errorf("postgres store: upsert %s: %w", key, err)
	}
	log.Debugf("postgres store: saved %s", key)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE owner = $1 AND slot = $2", s.fullTableName())
	if _, err := s.db.ExecContext(ctx, query, s.cfg.Owner, key); err != nil {
		return fmt.Errorf("postgres store: delete %s: %w", key, err)
	}
	return nil
}

// TableName returns the unquoted schema-qualified credential table.
func (s *PostgresStore) TableName() string {
	if s.cfg.Schema == "" {
		return s.cfg.Table
	}
	return s.cfg.Schema + "." + s.cfg.Table
}

func (s *PostgresStore) fullTableName() string {
	if s.cfg.Schema == "" {
		return quoteIdentifier(s.cfg.Table)
	}
	return quoteIdentifier(s.cfg.Schema) + "." + quoteIdentifier(s.cfg.Table)
}

func quoteIdentifier(identifier string) string {
	replaced := strings.ReplaceAll(identifier, "\"", "\"\"")
	return "\"" + replaced + "\""
}
