// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"

	"cidadao/platform/connectors/base"
)

// PostgresStorage persists source configurations so replicas share one
// catalog. Credentials are stored alongside options; the table is expected
// to live in a database with restricted access.
type PostgresStorage struct {
	db     *sql.DB
	logger *log.Logger
}

const createSourceTableSQL = `
CREATE TABLE IF NOT EXISTS source_registry (
	name          TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	jurisdiction  TEXT NOT NULL DEFAULT 'federal',
	categories    JSONB NOT NULL DEFAULT '[]',
	base_url      TEXT NOT NULL,
	credentials   JSONB NOT NULL DEFAULT '{}',
	options       JSONB NOT NULL DEFAULT '{}',
	timeout_ms    BIGINT NOT NULL DEFAULT 30000,
	max_retries   INT NOT NULL DEFAULT 3,
	priority      INT NOT NULL DEFAULT 100,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgresStorage connects to PostgreSQL and ensures the catalog table
// exists. Connection is retried with backoff because container DNS often
// lags service start.
func NewPostgresStorage(dbURL string) (*PostgresStorage, error) {
	logger := log.New(os.Stdout, "[SOURCE_STORAGE] ", log.LstdFlags)

	var db *sql.DB
	var err error
	maxRetries := 5

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open("postgres", dbURL)
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
		}
		if attempt < maxRetries {
			backoff := time.Duration(attempt*2) * time.Second
			logger.Printf("database connection failed (attempt %d/%d): %v, retrying in %v", attempt, maxRetries, err, backoff)
			time.Sleep(backoff)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &PostgresStorage{db: db, logger: logger}
	if err := storage.migrate(); err != nil {
		return nil, fmt.Errorf("failed to create source_registry table: %w", err)
	}
	return storage, nil
}

// NewPostgresStorageWithDB wraps an existing database handle. Used in tests.
func NewPostgresStorageWithDB(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{
		db:     db,
		logger: log.New(os.Stdout, "[SOURCE_STORAGE] ", log.LstdFlags),
	}
}

func (s *PostgresStorage) migrate() error {
	_, err := s.db.Exec(createSourceTableSQL)
	return err
}

// SaveSource upserts a source configuration
func (s *PostgresStorage) SaveSource(ctx context.Context, name string, config *base.SourceConfig) error {
	categories, err := json.Marshal(config.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}
	credentials, err := json.Marshal(config.Credentials)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	options, err := json.Marshal(config.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO source_registry (name, type, jurisdiction, categories, base_url, credentials, options, timeout_ms, max_retries, priority, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type,
			jurisdiction = EXCLUDED.jurisdiction,
			categories = EXCLUDED.categories,
			base_url = EXCLUDED.base_url,
			credentials = EXCLUDED.credentials,
			options = EXCLUDED.options,
			timeout_ms = EXCLUDED.timeout_ms,
			max_retries = EXCLUDED.max_retries,
			priority = EXCLUDED.priority,
			updated_at = now()`,
		name, config.Type, config.Jurisdiction, categories, config.BaseURL,
		credentials, options, config.Timeout.Milliseconds(), config.MaxRetries, config.Priority)
	if err != nil {
		return fmt.Errorf("failed to save source %s: %w", name, err)
	}
	return nil
}

// GetSource loads one source configuration
func (s *PostgresStorage) GetSource(ctx context.Context, name string) (*base.SourceConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, type, jurisdiction, categories, base_url, credentials, options, timeout_ms, max_retries, priority
		FROM source_registry WHERE name = $1`, name)

	var config base.SourceConfig
	var categories, credentials, options []byte
	var timeoutMS int64

	err := row.Scan(&config.Name, &config.Type, &config.Jurisdiction, &categories,
		&config.BaseURL, &credentials, &options, &timeoutMS, &config.MaxRetries, &config.Priority)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("source %s not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load source %s: %w", name, err)
	}

	if err := json.Unmarshal(categories, &config.Categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories for %s: %w", name, err)
	}
	if err := json.Unmarshal(credentials, &config.Credentials); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials for %s: %w", name, err)
	}
	if err := json.Unmarshal(options, &config.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options for %s: %w", name, err)
	}
	config.Timeout = time.Duration(timeoutMS) * time.Millisecond
	return &config, nil
}

// ListSources returns all persisted source names
func (s *PostgresStorage) ListSources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM source_registry ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteSource removes one source configuration
func (s *PostgresStorage) DeleteSource(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM source_registry WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete source %s: %w", name, err)
	}
	return nil
}

// Close releases the database handle
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
