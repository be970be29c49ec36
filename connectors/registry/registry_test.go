// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cidadao/platform/connectors/base"
)

// fakeConnector is a minimal base.Connector for registry tests
type fakeConnector struct {
	config      *base.SourceConfig
	connectErr  error
	connects    int32
	disconnects int32
}

func (f *fakeConnector) Connect(ctx context.Context, config *base.SourceConfig) error {
	atomic.AddInt32(&f.connects, 1)
	f.config = config
	return f.connectErr
}

func (f *fakeConnector) Disconnect(ctx context.Context) error {
	atomic.AddInt32(&f.disconnects, 1)
	return nil
}

func (f *fakeConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: true, Timestamp: time.Now()}, nil
}

func (f *fakeConnector) Query(ctx context.Context, q *base.Query) (*base.QueryResult, error) {
	return &base.QueryResult{Source: f.Name()}, nil
}

func (f *fakeConnector) Name() string {
	if f.config != nil {
		return f.config.Name
	}
	return "fake"
}
func (f *fakeConnector) Type() string           { return "fake" }
func (f *fakeConnector) Version() string        { return "test" }
func (f *fakeConnector) Capabilities() []string { return []string{"contracts"} }

func testConfig(name, jurisdiction string, categories []string, priority int) *base.SourceConfig {
	return &base.SourceConfig{
		Name:         name,
		Type:         "fake",
		Jurisdiction: jurisdiction,
		Categories:   categories,
		BaseURL:      "https://example.gov.br",
		Timeout:      time.Second,
		Priority:     priority,
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConnector{}
	cfg := testConfig("portal-federal", "federal", []string{"contracts"}, 10)

	if err := r.Register("portal-federal", conn, cfg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Get("portal-federal")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name() != "portal-federal" {
		t.Errorf("Name() = %q", got.Name())
	}
	if atomic.LoadInt32(&conn.connects) != 1 {
		t.Errorf("connects = %d, want 1", conn.connects)
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	cfg := testConfig("ibge", "federal", []string{"demographics"}, 10)

	if err := r.Register("ibge", &fakeConnector{}, cfg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("ibge", &fakeConnector{}, cfg); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
}

func TestRegistry_RegisterConnectFailure(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConnector{connectErr: errors.New("boom")}
	cfg := testConfig("broken", "federal", nil, 10)

	if err := r.Register("broken", conn, cfg); err == nil {
		t.Fatal("expected registration to fail when Connect fails")
	}
	if _, err := r.Get("broken"); err == nil {
		t.Fatal("expected failed source to be absent")
	}
}

func TestRegistry_LazyLoadViaFactory(t *testing.T) {
	r := NewRegistry()
	created := int32(0)
	r.SetFactory(func(sourceType string) (base.Connector, error) {
		atomic.AddInt32(&created, 1)
		return &fakeConnector{}, nil
	})

	cfg := testConfig("pncp-federal", "federal", []string{"bidding"}, 20)
	if err := r.RegisterConfig(cfg); err != nil {
		t.Fatalf("RegisterConfig: %v", err)
	}

	// Config-only registration must not instantiate the adapter
	if atomic.LoadInt32(&created) != 0 {
		t.Fatalf("factory called before Get: %d", created)
	}

	conn, err := r.Get("pncp-federal")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if conn.Name() != "pncp-federal" {
		t.Errorf("Name() = %q", conn.Name())
	}
	if atomic.LoadInt32(&created) != 1 {
		t.Errorf("factory calls = %d, want 1", created)
	}

	// Second Get reuses the instance
	if _, err := r.Get("pncp-federal"); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if atomic.LoadInt32(&created) != 1 {
		t.Errorf("factory calls after second Get = %d, want 1", created)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestRegistry_ListByCategory_OrdersByPriority(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterConfig(testConfig("ckan-sp", "SP", []string{"contracts"}, 50))
	_ = r.RegisterConfig(testConfig("portal-federal", "federal", []string{"contracts", "salaries"}, 10))
	_ = r.RegisterConfig(testConfig("pncp-federal", "federal", []string{"bidding"}, 20))

	matches := r.ListByCategory("contracts")
	if len(matches) != 2 {
		t.Fatalf("expected 2 contract sources, got %d", len(matches))
	}
	if matches[0].Name != "portal-federal" || matches[1].Name != "ckan-sp" {
		t.Errorf("unexpected order: %s, %s", matches[0].Name, matches[1].Name)
	}
}

func TestRegistry_ListByJurisdiction(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterConfig(testConfig("ckan-sp", "SP", []string{"contracts"}, 50))
	_ = r.RegisterConfig(testConfig("portal-federal", "federal", []string{"contracts"}, 10))

	matches := r.ListByJurisdiction("SP")
	if len(matches) != 1 || matches[0].Name != "ckan-sp" {
		t.Errorf("unexpected matches: %v", matches)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	conn := &fakeConnector{}
	cfg := testConfig("portal-federal", "federal", []string{"contracts"}, 10)
	if err := r.Register("portal-federal", conn, cfg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := r.Unregister("portal-federal"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if atomic.LoadInt32(&conn.disconnects) != 1 {
		t.Errorf("disconnects = %d, want 1", conn.disconnects)
	}
	if _, err := r.Get("portal-federal"); err == nil {
		t.Fatal("expected source to be gone")
	}
	if err := r.Unregister("portal-federal"); err == nil {
		t.Fatal("expected error unregistering twice")
	}
}

func TestRegistry_HealthCheck(t *testing.T) {
	r := NewRegistry()
	cfg := testConfig("ibge", "federal", []string{"demographics"}, 10)
	if err := r.Register("ibge", &fakeConnector{}, cfg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	results := r.HealthCheck(context.Background())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results["ibge"].Healthy {
		t.Error("expected healthy")
	}
}

func TestRegistry_CountAndList(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterConfig(testConfig("b-source", "federal", nil, 1))
	_ = r.RegisterConfig(testConfig("a-source", "federal", nil, 1))

	if r.Count() != 2 {
		t.Errorf("Count = %d, want 2", r.Count())
	}
	names := r.List()
	if names[0] != "a-source" || names[1] != "b-source" {
		t.Errorf("List not sorted: %v", names)
	}
}
