// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"cidadao/platform/connectors/base"
)

// ConnectorFactory creates an adapter instance for a source type
type ConnectorFactory func(sourceType string) (base.Connector, error)

// Registry maps source names to connector adapters. It is the static
// jurisdiction/category catalog the selector routes against. Thread-safe;
// adapters are instantiated lazily through the factory so unused sources
// never open upstream connections.
type Registry struct {
	connectors map[string]base.Connector
	configs    map[string]*base.SourceConfig
	storage    *PostgresStorage // optional persistence shared across replicas
	factory    ConnectorFactory
	mu         sync.RWMutex
	logger     *log.Logger
}

// NewRegistry creates an in-memory registry
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]base.Connector),
		configs:    make(map[string]*base.SourceConfig),
		logger:     log.New(os.Stdout, "[SOURCE_REGISTRY] ", log.LstdFlags),
	}
}

// NewRegistryWithStorage creates a registry persisted in PostgreSQL
func NewRegistryWithStorage(dbURL string) (*Registry, error) {
	storage, err := NewPostgresStorage(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	r := NewRegistry()
	r.storage = storage

	if err := r.loadFromStorage(); err != nil {
		r.logger.Printf("Warning: failed to load sources from storage: %v", err)
	}
	return r, nil
}

// SetFactory enables lazy adapter instantiation
func (r *Registry) SetFactory(factory ConnectorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = factory
}

func (r *Registry) loadFromStorage() error {
	if r.storage == nil {
		return nil
	}

	ctx := context.Background()
	names, err := r.storage.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	for _, name := range names {
		config, err := r.storage.GetSource(ctx, name)
		if err != nil {
			r.logger.Printf("Failed to load source %s: %v", name, err)
			continue
		}
		// Adapters are instantiated on first use
		r.configs[name] = config
	}

	r.logger.Printf("Loaded %d source configs from storage", len(names))
	return nil
}

// ReloadFromStorage picks up sources registered by other replicas
func (r *Registry) ReloadFromStorage(ctx context.Context) error {
	if r.storage == nil {
		return nil
	}

	names, err := r.storage.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0
	for _, name := range names {
		if _, exists := r.configs[name]; exists {
			continue
		}
		config, err := r.storage.GetSource(ctx, name)
		if err != nil {
			r.logger.Printf("Failed to load source %s: %v", name, err)
			continue
		}
		r.configs[name] = config
		loaded++
	}

	if loaded > 0 {
		r.logger.Printf("Loaded %d new source(s) from storage", loaded)
	}
	return nil
}

// StartPeriodicReload keeps replicas synchronized with the shared catalog
func (r *Registry) StartPeriodicReload(ctx context.Context, interval time.Duration) {
	if r.storage == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.ReloadFromStorage(ctx); err != nil {
					r.logger.Printf("Periodic reload failed: %v", err)
				}
			}
		}
	}()
}

// Register connects an adapter and adds it under the config's name
func (r *Registry) Register(name string, connector base.Connector, config *base.SourceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[name]; exists {
		return fmt.Errorf("source '%s' already registered", name)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := connector.Connect(ctx, config); err != nil {
		return fmt.Errorf("failed to connect source '%s': %w", name, err)
	}

	r.connectors[name] = connector
	r.configs[name] = config

	if r.storage != nil {
		if err := r.storage.SaveSource(ctx, name, config); err != nil {
			// Registration still succeeds; the replica just won't share it
			r.logger.Printf("Warning: failed to persist source '%s': %v", name, err)
		}
	}

	r.logger.Printf("Registered source '%s' (type: %s, jurisdiction: %s)", name, config.Type, config.Jurisdiction)
	return nil
}

// RegisterConfig stores a config without connecting; the adapter is created
// on first Get through the factory.
func (r *Registry) RegisterConfig(config *base.SourceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[config.Name]; exists {
		return fmt.Errorf("source '%s' already registered", config.Name)
	}
	r.configs[config.Name] = config

	if r.storage != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.storage.SaveSource(ctx, config.Name, config); err != nil {
			r.logger.Printf("Warning: failed to persist source '%s': %v", config.Name, err)
		}
	}
	return nil
}

// Unregister disconnects and removes a source
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	connector, hasConnector := r.connectors[name]
	_, hasConfig := r.configs[name]
	if !hasConnector && !hasConfig {
		return fmt.Errorf("source '%s' not found", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if hasConnector {
		if err := connector.Disconnect(ctx); err != nil {
			r.logger.Printf("Error disconnecting source '%s': %v", name, err)
		}
	}

	delete(r.connectors, name)
	delete(r.configs, name)

	if r.storage != nil {
		if err := r.storage.DeleteSource(ctx, name); err != nil {
			r.logger.Printf("Warning: failed to delete source '%s' from storage: %v", name, err)
		}
	}
	return nil
}

// Get retrieves an adapter by source name, lazy-loading if necessary
func (r *Registry) Get(name string) (base.Connector, error) {
	r.mu.RLock()
	connector, exists := r.connectors[name]
	config, hasConfig := r.configs[name]
	r.mu.RUnlock()

	if exists {
		return connector, nil
	}
	if hasConfig && r.factory != nil {
		return r.lazyLoad(name, config)
	}
	return nil, fmt.Errorf("source '%s' not found", name)
}

func (r *Registry) lazyLoad(name string, config *base.SourceConfig) (base.Connector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have won the race
	if connector, exists := r.connectors[name]; exists {
		return connector, nil
	}

	connector, err := r.factory(config.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to create source '%s': %w", name, err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := connector.Connect(ctx, config); err != nil {
		return nil, fmt.Errorf("failed to connect source '%s': %w", name, err)
	}

	r.connectors[name] = connector
	r.logger.Printf("Lazy-loaded source '%s' (type: %s)", name, config.Type)
	return connector, nil
}

// GetConfig retrieves a source configuration by name
func (r *Registry) GetConfig(name string) (*base.SourceConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, exists := r.configs[name]
	if !exists {
		return nil, fmt.Errorf("config for source '%s' not found", name)
	}
	return config, nil
}

// List returns all known source names, connected or not
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListByCategory returns sources serving a data category, ordered by the
// configured priority (lower first). This is the selector's main lookup.
func (r *Registry) ListByCategory(category string) []*base.SourceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]*base.SourceConfig, 0)
	for _, config := range r.configs {
		if config.HasCategory(category) {
			matches = append(matches, config)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority < matches[j].Priority
		}
		return matches[i].Name < matches[j].Name
	})
	return matches
}

// ListByJurisdiction returns sources for a jurisdiction (federal or UF code)
func (r *Registry) ListByJurisdiction(jurisdiction string) []*base.SourceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]*base.SourceConfig, 0)
	for _, config := range r.configs {
		if config.Jurisdiction == jurisdiction {
			matches = append(matches, config)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches
}

// Count returns the number of known sources
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.configs)
}

// HealthCheck probes all connected sources
func (r *Registry) HealthCheck(ctx context.Context) map[string]*base.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[string]*base.HealthStatus)
	for name, connector := range r.connectors {
		status, err := connector.HealthCheck(ctx)
		if err != nil {
			status = &base.HealthStatus{Healthy: false, Error: err.Error(), Timestamp: time.Now()}
		}
		results[name] = status
	}
	return results
}

// HealthCheckSingle probes one source, lazy-loading it if needed
func (r *Registry) HealthCheckSingle(ctx context.Context, name string) (*base.HealthStatus, error) {
	connector, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	status, err := connector.HealthCheck(ctx)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Error: err.Error(), Timestamp: time.Now()}, nil
	}
	return status, nil
}

// DisconnectAll disconnects every connected source. Used on shutdown.
func (r *Registry) DisconnectAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, connector := range r.connectors {
		if err := connector.Disconnect(ctx); err != nil {
			r.logger.Printf("Error disconnecting source '%s': %v", name, err)
		}
	}
	r.connectors = make(map[string]base.Connector)
}
