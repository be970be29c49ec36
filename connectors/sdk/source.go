// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"context"
	"sync"
	"time"

	"cidadao/platform/connectors/base"
	"cidadao/platform/connectors/rest"
)

// BaseSource implements the lifecycle and metadata half of base.Connector.
// Source adapters embed it and implement Query on top of Client().
type BaseSource struct {
	sourceType string
	version    string
	config     *base.SourceConfig
	client     *rest.Client
	limiter    *RateLimiter
	metrics    *SourceMetrics
	connected  bool
	mu         sync.RWMutex
}

// NewBaseSource creates the scaffolding for an adapter of the given type
func NewBaseSource(sourceType, version string) *BaseSource {
	return &BaseSource{
		sourceType: sourceType,
		version:    version,
		metrics:    NewSourceMetrics(sourceType),
	}
}

// Init wires the REST client and stores the configuration. Adapters call it
// from Connect after building their source-specific ClientConfig.
func (s *BaseSource) Init(config *base.SourceConfig, clientCfg rest.ClientConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	clientCfg.SourceName = config.Name
	clientCfg.Timeout = config.Timeout
	clientCfg.MaxRetries = config.MaxRetries

	client, err := rest.NewClient(clientCfg)
	if err != nil {
		return err
	}

	s.config = config
	s.client = client

	// Government APIs throttle aggressively; default to a conservative pace
	rps := 5.0
	if v, ok := config.Options["requests_per_second"].(float64); ok && v > 0 {
		rps = v
	}
	s.limiter = NewRateLimiter(rps, int(rps)+1)

	s.connected = true
	return nil
}

// Disconnect releases upstream connections
func (s *BaseSource) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}
	if s.client != nil {
		s.client.Close()
	}
	s.connected = false
	return nil
}

// HealthCheck probes the upstream using the configured health path
func (s *BaseSource) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	s.mu.RLock()
	client := s.client
	config := s.config
	connected := s.connected
	s.mu.RUnlock()

	if !connected {
		return &base.HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Error:     "not connected",
		}, nil
	}

	healthPath := "/"
	if config.Options != nil {
		if hp, ok := config.Options["health_path"].(string); ok {
			healthPath = hp
		}
	}

	status, err := client.Probe(ctx, healthPath)
	s.metrics.RecordHealthCheck(status != nil && status.Healthy)
	return status, err
}

// Acquire blocks on the per-source rate limiter before an upstream call
func (s *BaseSource) Acquire(ctx context.Context) error {
	s.mu.RLock()
	limiter := s.limiter
	connected := s.connected
	name := s.SourceName()
	s.mu.RUnlock()

	if !connected {
		return base.NewConnectorError(name, "Query", "not connected", nil)
	}
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return base.NewConnectorError(name, "Query", "rate limit wait aborted", err)
	}
	return nil
}

// Client returns the underlying REST client
func (s *BaseSource) Client() *rest.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Config returns the source configuration
func (s *BaseSource) Config() *base.SourceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// Metrics returns the per-source metrics collector
func (s *BaseSource) Metrics() *SourceMetrics {
	return s.metrics
}

// RecordQuery feeds the metrics collector after an upstream call
func (s *BaseSource) RecordQuery(duration time.Duration, err error) {
	s.metrics.RecordQuery(duration, err)
}

// SourceName returns the configured instance name, or the type before Connect
func (s *BaseSource) SourceName() string {
	if s.config != nil && s.config.Name != "" {
		return s.config.Name
	}
	return s.sourceType
}

// Name returns the source instance name
func (s *BaseSource) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.SourceName()
}

// Type returns the adapter type
func (s *BaseSource) Type() string {
	return s.sourceType
}

// Version returns the adapter version
func (s *BaseSource) Version() string {
	return s.version
}

// Capabilities returns the data categories the configured source serves
func (s *BaseSource) Capabilities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil {
		return []string{}
	}
	return s.config.Categories
}

// IsConnected reports the lifecycle state
func (s *BaseSource) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// StringOption reads a string option from the source configuration
func (s *BaseSource) StringOption(key, defaultValue string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil || s.config.Options == nil {
		return defaultValue
	}
	if v, ok := s.config.Options[key].(string); ok {
		return v
	}
	return defaultValue
}

// IntOption reads an integer option from the source configuration
func (s *BaseSource) IntOption(key string, defaultValue int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil || s.config.Options == nil {
		return defaultValue
	}
	switch v := s.config.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultValue
}

// Credential reads a credential value from the source configuration
func (s *BaseSource) Credential(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.config == nil || s.config.Credentials == nil {
		return ""
	}
	return s.config.Credentials[key]
}
