// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package base

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Connector is the interface every government data source adapter implements.
// All upstream transparency APIs are read-only, so there is no write operation.
type Connector interface {
	// Lifecycle Management
	Connect(ctx context.Context, config *SourceConfig) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Data Operations
	Query(ctx context.Context, query *Query) (*QueryResult, error)

	// Metadata
	Name() string           // Unique source instance name (e.g. "portal-federal")
	Type() string           // Source type (portal, ibge, pncp, ckan, ...)
	Version() string        // Adapter version
	Capabilities() []string // Supported categories (contracts, salaries, ...)
}

// SourceConfig holds the configuration for one registered data source
type SourceConfig struct {
	Name         string                 `json:"name" yaml:"name"`                 // Unique name for this source
	Type         string                 `json:"type" yaml:"type"`                 // Adapter type: portal, ibge, pncp, siconfi, datasus, inep, camara, ckan
	Jurisdiction string                 `json:"jurisdiction" yaml:"jurisdiction"` // federal, or a UF code for state portals
	Categories   []string               `json:"categories" yaml:"categories"`     // Data categories this source serves
	BaseURL      string                 `json:"base_url" yaml:"base_url"`         // Upstream API root
	Credentials  map[string]string      `json:"credentials" yaml:"credentials"`   // API keys (primary and fallback)
	Options      map[string]interface{} `json:"options" yaml:"options"`           // Source-specific options
	Timeout      time.Duration          `json:"timeout" yaml:"timeout"`           // Per-call timeout (default 30s)
	MaxRetries   int                    `json:"max_retries" yaml:"max_retries"`   // Retry count for transient upstream failures
	Priority     int                    `json:"priority" yaml:"priority"`         // Lower value wins when several sources serve a category
}

// HasCategory reports whether the source serves the given data category
func (c *SourceConfig) HasCategory(category string) bool {
	for _, cat := range c.Categories {
		if cat == category {
			return true
		}
	}
	return false
}

// Query represents one read against an upstream source
type Query struct {
	Endpoint   string                 `json:"endpoint"`   // Source-relative endpoint key ("contratos", "servidores", ...)
	Parameters map[string]interface{} `json:"parameters"` // Query parameters, already entity-resolved
	Timeout    time.Duration          `json:"timeout"`    // Override default timeout
	Limit      int                    `json:"limit"`      // Result limit (optional)
}

// QueryResult contains the rows returned by one source
type QueryResult struct {
	Rows     []map[string]interface{} `json:"rows"`
	RowCount int                      `json:"row_count"`
	Duration time.Duration            `json:"duration"`
	Cached   bool                     `json:"cached"`
	Source   string                   `json:"source"`             // Source name that produced the rows
	Metadata map[string]interface{}   `json:"metadata,omitempty"` // Pagination, upstream totals, etc.
}

// HealthStatus represents the reachability of one upstream source
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error,omitempty"`
}

// ConnectorError represents errors specific to source adapter operations
type ConnectorError struct {
	Source    string
	Operation string
	Message   string
	Cause     error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.Source + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.Source + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(source, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		Source:    source,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// UpstreamError carries the HTTP status of a failed upstream call so the
// orchestrator can decide between key rotation, fallback and retry.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body != "" {
		return "upstream HTTP " + strconv.Itoa(e.StatusCode) + ": " + e.Body
	}
	return "upstream HTTP " + strconv.Itoa(e.StatusCode)
}

// IsAccessDenied reports whether the upstream rejected our credentials
func (e *UpstreamError) IsAccessDenied() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsBadRequest reports whether the upstream rejected our parameters
func (e *UpstreamError) IsBadRequest() bool {
	return e.StatusCode == 400 || e.StatusCode == 422
}

// MissingParameterError is returned when a source cannot be queried because
// a mandatory upstream parameter could not be resolved from the request.
type MissingParameterError struct {
	Source    string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s: required parameter %q not resolved", e.Source, e.Parameter)
}
