// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"database/sql"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

const (
	auditQueueSize  = 10000
	auditBatchSize  = 100
	auditFlushEvery = 5 * time.Second
)

// AuditLogger persists a record of every processed query: what was asked,
// how it was classified and which sources answered. Writes are asynchronous
// so auditing never slows a citizen query; a full queue drops the oldest
// entry rather than blocking.
type AuditLogger struct {
	db           *sql.DB
	queue        chan *AuditEntry
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	shutdown     chan struct{}
	logger       *log.Logger

	mu      sync.Mutex
	dropped int64
}

// AuditEntry is one processed-query record
type AuditEntry struct {
	ID             string    `json:"id"`
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	Query          string    `json:"query"`
	Intent         string    `json:"intent"`
	Confidence     float64   `json:"confidence"`
	SourcesOK      []string  `json:"sources_ok"`
	SourcesFailed  []string  `json:"sources_failed"`
	RowCount       int       `json:"row_count"`
	Degraded       bool      `json:"degraded"`
	Cached         bool      `json:"cached"`
	ProcessingTime string    `json:"processing_time"`
}

const createAuditTableSQL = `
CREATE TABLE IF NOT EXISTS query_audit (
	id UUID PRIMARY KEY,
	request_id VARCHAR(64) NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	query TEXT NOT NULL,
	intent VARCHAR(40) NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	sources_ok JSONB,
	sources_failed JSONB,
	row_count INTEGER NOT NULL DEFAULT 0,
	degraded BOOLEAN NOT NULL DEFAULT FALSE,
	cached BOOLEAN NOT NULL DEFAULT FALSE,
	processing_time VARCHAR(32),
	created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_query_audit_timestamp ON query_audit(timestamp);
CREATE INDEX IF NOT EXISTS idx_query_audit_intent ON query_audit(intent);
CREATE INDEX IF NOT EXISTS idx_query_audit_request_id ON query_audit(request_id);
`

// NewAuditLogger opens the audit database and starts the background flush
// worker. A missing or unreachable database yields a no-op logger so query
// processing keeps working.
func NewAuditLogger(databaseURL string) *AuditLogger {
	l := &AuditLogger{
		queue:    make(chan *AuditEntry, auditQueueSize),
		shutdown: make(chan struct{}),
		logger:   log.New(log.Writer(), "[AUDIT] ", log.LstdFlags),
	}

	if databaseURL == "" {
		l.logger.Println("DATABASE_URL not set, audit log disabled")
		return l
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		l.logger.Printf("audit database unavailable: %v", err)
		return l
	}
	if _, err := db.Exec(createAuditTableSQL); err != nil {
		l.logger.Printf("failed to create audit table: %v", err)
	}

	l.db = db
	l.wg.Add(1)
	go l.processQueue()
	return l
}

// newAuditLoggerWithDB wires an existing connection. Used by tests.
func newAuditLoggerWithDB(db *sql.DB) *AuditLogger {
	l := &AuditLogger{
		db:       db,
		queue:    make(chan *AuditEntry, auditQueueSize),
		shutdown: make(chan struct{}),
		logger:   log.New(log.Writer(), "[AUDIT] ", log.LstdFlags),
	}
	l.wg.Add(1)
	go l.processQueue()
	return l
}

// LogQuery records one processed query
func (l *AuditLogger) LogQuery(req *QueryRequest, response *QueryResponse) {
	var sourcesOK []string
	rowCount := 0
	for source, rows := range response.Data {
		sourcesOK = append(sourcesOK, source)
		rowCount += len(rows)
	}

	entry := &AuditEntry{
		ID:             uuid.NewString(),
		RequestID:      req.RequestID,
		Timestamp:      time.Now().UTC(),
		Query:          req.Query,
		Intent:         string(response.Intent),
		Confidence:     response.Confidence,
		SourcesOK:      sourcesOK,
		SourcesFailed:  response.SourcesFailed,
		RowCount:       rowCount,
		Degraded:       response.Degraded,
		Cached:         response.Cached,
		ProcessingTime: response.ProcessingTime,
	}

	select {
	case l.queue <- entry:
	default:
		// Drop the oldest entry to make room; auditing must not block
		select {
		case <-l.queue:
			l.mu.Lock()
			l.dropped++
			l.mu.Unlock()
		default:
		}
		select {
		case l.queue <- entry:
		default:
		}
	}
}

// Dropped returns how many entries were discarded because the queue was full
func (l *AuditLogger) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// processQueue batches entries and flushes them on size or interval
func (l *AuditLogger) processQueue() {
	defer l.wg.Done()

	ticker := time.NewTicker(auditFlushEvery)
	defer ticker.Stop()

	batch := make([]*AuditEntry, 0, auditBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := l.writeBatch(batch); err != nil {
			l.logger.Printf("failed to write audit batch: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-l.queue:
			batch = append(batch, entry)
			if len(batch) >= auditBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-l.shutdown:
			// Drain whatever is still queued before exiting
			for {
				select {
				case entry := <-l.queue:
					batch = append(batch, entry)
					if len(batch) >= auditBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (l *AuditLogger) writeBatch(entries []*AuditEntry) error {
	if l.db == nil {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_audit (
			id, request_id, timestamp, query, intent, confidence,
			sources_ok, sources_failed, row_count, degraded, cached, processing_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, entry := range entries {
		sourcesOKJSON, _ := json.Marshal(entry.SourcesOK)
		sourcesFailedJSON, _ := json.Marshal(entry.SourcesFailed)
		if _, err := stmt.Exec(
			entry.ID,
			entry.RequestID,
			entry.Timestamp,
			entry.Query,
			entry.Intent,
			entry.Confidence,
			sourcesOKJSON,
			sourcesFailedJSON,
			entry.RowCount,
			entry.Degraded,
			entry.Cached,
			entry.ProcessingTime,
		); err != nil {
			l.logger.Printf("failed to insert audit entry %s: %v", entry.ID, err)
		}
	}
	return tx.Commit()
}

// IsHealthy reports whether the audit store responds. A disabled logger is
// healthy by definition.
func (l *AuditLogger) IsHealthy() bool {
	if l.db == nil {
		return true
	}
	return l.db.Ping() == nil
}

// Close flushes pending entries and stops the worker
func (l *AuditLogger) Close() {
	l.shutdownOnce.Do(func() {
		close(l.shutdown)
	})
	l.wg.Wait()
	if l.db != nil {
		_ = l.db.Close()
	}
}
