// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package datasus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cidadao/platform/connectors/base"
)

func connectedDataSUS(t *testing.T, serverURL string) *Connector {
	t.Helper()
	c := New()
	cfg := &base.SourceConfig{
		Name:         "datasus",
		Type:         "datasus",
		Jurisdiction: "federal",
		Categories:   []string{"health"},
		BaseURL:      serverURL,
		Options:      map[string]interface{}{"allow_private_host": true},
	}
	if err := c.Connect(context.Background(), cfg); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestQuery_Leitos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cnes/leitos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("codigo_uf") != "35" {
			t.Errorf("codigo_uf = %q", r.URL.Query().Get("codigo_uf"))
		}
		_, _ = w.Write([]byte(`[{"tipo": "UTI adulto", "quantidade": 412}]`))
	}))
	defer server.Close()

	c := connectedDataSUS(t, server.URL)
	result, err := c.Query(context.Background(), &base.Query{
		Endpoint:   "leitos",
		Parameters: map[string]interface{}{"codigo_uf": 35},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.RowCount != 1 {
		t.Errorf("RowCount = %d", result.RowCount)
	}
}

func TestQuery_VacinacaoRequiresYear(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	}))
	defer server.Close()

	c := connectedDataSUS(t, server.URL)
	_, err := c.Query(context.Background(), &base.Query{
		Endpoint:   "vacinacao",
		Parameters: map[string]interface{}{"uf": "SP"},
	})

	var missing *base.MissingParameterError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingParameterError, got %v", err)
	}
	if missing.Parameter != "ano" {
		t.Errorf("Parameter = %q", missing.Parameter)
	}
}

func TestConnect_DefaultTimeoutIsExtended(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	c := connectedDataSUS(t, server.URL)
	if got := c.Client().Timeout(); got != 60*time.Second {
		t.Errorf("Timeout = %v, want 60s default", got)
	}
}
