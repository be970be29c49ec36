// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package inep

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cidadao/platform/connectors/base"
)

func connectedINEP(t *testing.T, serverURL string) *Connector {
	t.Helper()
	c := New()
	cfg := &base.SourceConfig{
		Name:         "inep",
		Type:         "inep",
		Jurisdiction: "federal",
		Categories:   []string{"education"},
		BaseURL:      serverURL,
		Options:      map[string]interface{}{"allow_private_host": true},
	}
	if err := c.Connect(context.Background(), cfg); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestQuery_Ideb(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ideb/resultados" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"municipio": "Campinas", "ideb": 6.1}]`))
	}))
	defer server.Close()

	c := connectedINEP(t, server.URL)
	result, err := c.Query(context.Background(), &base.Query{
		Endpoint:   "ideb",
		Parameters: map[string]interface{}{"uf": "SP"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.RowCount != 1 {
		t.Errorf("RowCount = %d", result.RowCount)
	}
}

func TestQuery_MatriculasRequiresYear(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream must not be called")
	}))
	defer server.Close()

	c := connectedINEP(t, server.URL)
	_, err := c.Query(context.Background(), &base.Query{
		Endpoint:   "matriculas",
		Parameters: map[string]interface{}{"uf": "SP"},
	})

	var missing *base.MissingParameterError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingParameterError, got %v", err)
	}
}

func TestQuery_LimitTruncates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"a":1},{"a":2},{"a":3}]`))
	}))
	defer server.Close()

	c := connectedINEP(t, server.URL)
	result, err := c.Query(context.Background(), &base.Query{Endpoint: "universidades", Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", result.RowCount)
	}
}
