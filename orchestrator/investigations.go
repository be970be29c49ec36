// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"cidadao/platform/shared/logger"
)

// InvestigationStatus is the lifecycle state of an investigation
type InvestigationStatus string

const (
	InvestigationPending   InvestigationStatus = "pending"
	InvestigationRunning   InvestigationStatus = "running"
	InvestigationCompleted InvestigationStatus = "completed"
	InvestigationFailed    InvestigationStatus = "failed"
)

// ErrInvestigationNotFound is returned when the id does not exist
var ErrInvestigationNotFound = errors.New("investigation not found")

// Investigation is a long-running query tracked across requests. Citizens
// submit a question, poll the id, and fetch the aggregated result when the
// status reaches completed.
type Investigation struct {
	ID              string              `json:"id"`
	Query           string              `json:"query"`
	Status          InvestigationStatus `json:"status"`
	Result          *QueryResponse      `json:"result,omitempty"`
	Error           string              `json:"error,omitempty"`
	AnomaliesFound  int                 `json:"anomalies_found"`
	ConfidenceScore float64             `json:"confidence_score"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// InvestigationStore persists investigations
type InvestigationStore interface {
	Create(ctx context.Context, query string) (*Investigation, error)
	Get(ctx context.Context, id string) (*Investigation, error)
	SetRunning(ctx context.Context, id string) error
	SetCompleted(ctx context.Context, id string, result *QueryResponse, anomalies int, confidence float64) error
	SetFailed(ctx context.Context, id string, cause error) error
	List(ctx context.Context, limit int) ([]*Investigation, error)
	Close() error
}

// MemoryInvestigationStore keeps investigations in process memory. Used
// when no database is configured and in tests.
type MemoryInvestigationStore struct {
	mu             sync.RWMutex
	investigations map[string]*Investigation
}

// NewMemoryInvestigationStore creates an empty in-memory store
func NewMemoryInvestigationStore() *MemoryInvestigationStore {
	return &MemoryInvestigationStore{investigations: make(map[string]*Investigation)}
}

func (s *MemoryInvestigationStore) Create(ctx context.Context, query string) (*Investigation, error) {
	now := time.Now().UTC()
	inv := &Investigation{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    InvestigationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.investigations[inv.ID] = inv
	s.mu.Unlock()
	return inv, nil
}

func (s *MemoryInvestigationStore) Get(ctx context.Context, id string) (*Investigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.investigations[id]
	if !ok {
		return nil, ErrInvestigationNotFound
	}
	copied := *inv
	return &copied, nil
}

func (s *MemoryInvestigationStore) SetRunning(ctx context.Context, id string) error {
	return s.update(id, func(inv *Investigation) {
		inv.Status = InvestigationRunning
	})
}

func (s *MemoryInvestigationStore) SetCompleted(ctx context.Context, id string, result *QueryResponse, anomalies int, confidence float64) error {
	return s.update(id, func(inv *Investigation) {
		inv.Status = InvestigationCompleted
		inv.Result = result
		inv.AnomaliesFound = anomalies
		inv.ConfidenceScore = confidence
	})
}

func (s *MemoryInvestigationStore) SetFailed(ctx context.Context, id string, cause error) error {
	return s.update(id, func(inv *Investigation) {
		inv.Status = InvestigationFailed
		inv.Error = cause.Error()
	})
}

func (s *MemoryInvestigationStore) update(id string, apply func(*Investigation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.investigations[id]
	if !ok {
		return ErrInvestigationNotFound
	}
	apply(inv)
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryInvestigationStore) List(ctx context.Context, limit int) ([]*Investigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Investigation, 0, len(s.investigations))
	for _, inv := range s.investigations {
		copied := *inv
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryInvestigationStore) Close() error { return nil }

// PostgresInvestigationStore persists investigations in PostgreSQL
type PostgresInvestigationStore struct {
	db *sql.DB
}

const createInvestigationTableSQL = `
CREATE TABLE IF NOT EXISTS investigations (
	id UUID PRIMARY KEY,
	query TEXT NOT NULL,
	status VARCHAR(20) NOT NULL,
	result JSONB,
	error TEXT,
	anomalies_found INTEGER NOT NULL DEFAULT 0,
	confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_investigations_status ON investigations(status);
CREATE INDEX IF NOT EXISTS idx_investigations_created_at ON investigations(created_at);
`

// NewPostgresInvestigationStore connects and ensures the schema exists
func NewPostgresInvestigationStore(databaseURL string) (*PostgresInvestigationStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open investigations database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping investigations database: %w", err)
	}
	if _, err := db.Exec(createInvestigationTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create investigations table: %w", err)
	}
	return &PostgresInvestigationStore{db: db}, nil
}

// NewPostgresInvestigationStoreWithDB wraps an existing connection. Used by
// tests with sqlmock.
func NewPostgresInvestigationStoreWithDB(db *sql.DB) *PostgresInvestigationStore {
	return &PostgresInvestigationStore{db: db}
}

func (s *PostgresInvestigationStore) Create(ctx context.Context, query string) (*Investigation, error) {
	now := time.Now().UTC()
	inv := &Investigation{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    InvestigationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO investigations (id, query, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, inv.ID, inv.Query, inv.Status, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create investigation: %w", err)
	}
	return inv, nil
}

func (s *PostgresInvestigationStore) Get(ctx context.Context, id string) (*Investigation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query, status, result, error, anomalies_found, confidence_score, created_at, updated_at
		FROM investigations WHERE id = $1
	`, id)

	inv := &Investigation{}
	var resultJSON []byte
	var errMsg sql.NullString
	err := row.Scan(&inv.ID, &inv.Query, &inv.Status, &resultJSON, &errMsg, &inv.AnomaliesFound, &inv.ConfidenceScore, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvestigationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get investigation: %w", err)
	}
	if len(resultJSON) > 0 {
		var result QueryResponse
		if err := json.Unmarshal(resultJSON, &result); err == nil {
			inv.Result = &result
		}
	}
	if errMsg.Valid {
		inv.Error = errMsg.String
	}
	return inv, nil
}

func (s *PostgresInvestigationStore) SetRunning(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, InvestigationRunning, nil, "", 0, 0)
}

func (s *PostgresInvestigationStore) SetCompleted(ctx context.Context, id string, result *QueryResponse, anomalies int, confidence float64) error {
	return s.setStatus(ctx, id, InvestigationCompleted, result, "", anomalies, confidence)
}

func (s *PostgresInvestigationStore) SetFailed(ctx context.Context, id string, cause error) error {
	return s.setStatus(ctx, id, InvestigationFailed, nil, cause.Error(), 0, 0)
}

func (s *PostgresInvestigationStore) setStatus(ctx context.Context, id string, status InvestigationStatus, result *QueryResponse, errMsg string, anomalies int, confidence float64) error {
	var resultJSON interface{}
	if result != nil {
		payload, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		resultJSON = payload
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE investigations
		SET status = $2, result = $3, error = NULLIF($4, ''), anomalies_found = $5, confidence_score = $6, updated_at = $7
		WHERE id = $1
	`, id, status, resultJSON, errMsg, anomalies, confidence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update investigation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return ErrInvestigationNotFound
	}
	return nil
}

func (s *PostgresInvestigationStore) List(ctx context.Context, limit int) ([]*Investigation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, status, error, anomalies_found, confidence_score, created_at, updated_at
		FROM investigations
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list investigations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Investigation
	for rows.Next() {
		inv := &Investigation{}
		var errMsg sql.NullString
		if err := rows.Scan(&inv.ID, &inv.Query, &inv.Status, &errMsg, &inv.AnomaliesFound, &inv.ConfidenceScore, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		if errMsg.Valid {
			inv.Error = errMsg.String
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *PostgresInvestigationStore) Close() error {
	return s.db.Close()
}

// terminalWriteTimeout bounds the status write that closes an investigation
const terminalWriteTimeout = 5 * time.Second

// InvestigationRunner executes investigations in the background
type InvestigationRunner struct {
	store     InvestigationStore
	processor *Processor
	timeout   time.Duration
	log       *logger.Logger
}

// NewInvestigationRunner creates a runner with the given per-investigation
// timeout
func NewInvestigationRunner(store InvestigationStore, processor *Processor, timeout time.Duration) *InvestigationRunner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &InvestigationRunner{
		store:     store,
		processor: processor,
		timeout:   timeout,
		log:       logger.New("investigations"),
	}
}

// Start creates the investigation and launches its processing goroutine
func (r *InvestigationRunner) Start(ctx context.Context, query string) (*Investigation, error) {
	inv, err := r.store.Create(ctx, query)
	if err != nil {
		return nil, err
	}

	go r.run(inv.ID, query)
	return inv, nil
}

func (r *InvestigationRunner) run(id, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.SetRunning(ctx, id); err != nil {
		r.recordFailure(id, fmt.Errorf("failed to mark investigation running: %w", err))
		return
	}

	response, err := r.processor.Process(ctx, &QueryRequest{RequestID: id, Query: query})
	if err != nil {
		r.recordFailure(id, err)
		return
	}
	if response.Degraded {
		r.recordFailure(id, errors.New("all sources failed"))
		return
	}
	anomalies := DetectAnomalies(response.Data)

	// The pipeline context may already be expired when every candidate ran
	// out the timeout budget; the terminal write always gets a fresh one so
	// the row never sticks at running.
	writeCtx, writeCancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer writeCancel()
	if err := r.store.SetCompleted(writeCtx, id, response, len(anomalies), computeConfidence(response)); err != nil {
		r.log.Error(id, "failed to record investigation result", map[string]interface{}{"error": err.Error()})
	}
}

func (r *InvestigationRunner) recordFailure(id string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()
	if err := r.store.SetFailed(ctx, id, cause); err != nil {
		r.log.Error(id, "failed to record investigation failure", map[string]interface{}{"error": err.Error()})
	}
}
