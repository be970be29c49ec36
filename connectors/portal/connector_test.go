// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cidadao/platform/connectors/base"
)

func portalConfig(serverURL string) *base.SourceConfig {
	return &base.SourceConfig{
		Name:         "portal-federal",
		Type:         "portal",
		Jurisdiction: "federal",
		Categories:   []string{"contracts", "salaries", "expenses"},
		BaseURL:      serverURL,
		Credentials: map[string]string{
			"api_key":          "primary-key",
			"api_key_fallback": "fallback-key",
		},
		Options: map[string]interface{}{"allow_private_host": true},
	}
}

func connectedPortal(t *testing.T, serverURL string) *Connector {
	t.Helper()
	c := New()
	if err := c.Connect(context.Background(), portalConfig(serverURL)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestConnect_RequiresAPIKey(t *testing.T) {
	c := New()
	cfg := portalConfig("https://api.portaldatransparencia.gov.br/api-de-dados")
	cfg.Credentials = nil
	if err := c.Connect(context.Background(), cfg); err == nil {
		t.Fatal("expected error when api_key is missing")
	}
}

func TestQuery_Contratos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/contratos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("chave-api-dados") != "primary-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.URL.Query().Get("codigoOrgao") != "26000" {
			t.Errorf("codigoOrgao = %q", r.URL.Query().Get("codigoOrgao"))
		}
		if r.URL.Query().Get("pagina") != "1" {
			t.Errorf("pagina = %q, want default 1", r.URL.Query().Get("pagina"))
		}
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 1, "objeto": "Aquisição de insumos", "valorInicial": 150000.0},
		})
	}))
	defer server.Close()

	c := connectedPortal(t, server.URL)
	result, err := c.Query(context.Background(), &base.Query{
		Endpoint:   "contratos",
		Parameters: map[string]interface{}{"codigoOrgao": "26000"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.RowCount != 1 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
	if result.Source != "portal-federal" {
		t.Errorf("Source = %q", result.Source)
	}
}

func TestQuery_ContratosRequiresOrgao(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called when validation fails")
	}))
	defer server.Close()

	c := connectedPortal(t, server.URL)
	_, err := c.Query(context.Background(), &base.Query{Endpoint: "contratos"})

	var missing *base.MissingParameterError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingParameterError, got %v", err)
	}
	if missing.Parameter != "codigoOrgao" {
		t.Errorf("Parameter = %q", missing.Parameter)
	}
}

func TestQuery_UnknownEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	c := connectedPortal(t, server.URL)
	if _, err := c.Query(context.Background(), &base.Query{Endpoint: "nope"}); err == nil {
		t.Fatal("expected error for unknown endpoint")
	}
}

func TestQuery_RotatesToFallbackKeyOn403(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("chave-api-dados") {
		case "fallback-key":
			_, _ = w.Write([]byte(`[{"nome": "servidor"}]`))
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer server.Close()

	c := connectedPortal(t, server.URL)
	result, err := c.Query(context.Background(), &base.Query{Endpoint: "servidores"})
	if err != nil {
		t.Fatalf("Query after rotation: %v", err)
	}
	if result.RowCount != 1 {
		t.Errorf("RowCount = %d", result.RowCount)
	}
}

func TestQuery_403WithoutFallbackPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	cfg := portalConfig(server.URL)
	cfg.Credentials["api_key_fallback"] = ""
	c := New()
	if err := c.Connect(context.Background(), cfg); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_, err := c.Query(context.Background(), &base.Query{Endpoint: "servidores"})
	var upstream *base.UpstreamError
	if !errors.As(err, &upstream) || !upstream.IsAccessDenied() {
		t.Fatalf("expected access-denied UpstreamError, got %v", err)
	}
}

func TestQuery_LimitTruncatesRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"a":1},{"a":2},{"a":3}]`))
	}))
	defer server.Close()

	c := connectedPortal(t, server.URL)
	result, err := c.Query(context.Background(), &base.Query{Endpoint: "servidores", Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", result.RowCount)
	}
}

func TestMetadata(t *testing.T) {
	c := New()
	if c.Type() != "portal" {
		t.Errorf("Type() = %q", c.Type())
	}
	if c.Name() != "portal" {
		t.Errorf("Name() before connect = %q", c.Name())
	}
	if len(Endpoints()) != len(endpoints) {
		t.Errorf("Endpoints() = %v", Endpoints())
	}
}
