// Copyright 2025 Cidadão.AI
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cidadao/platform/connectors/base"
)

func newTestClient(t *testing.T, serverURL string, mutate func(*ClientConfig)) *Client {
	t.Helper()
	cfg := ClientConfig{
		SourceName:       "test-source",
		BaseURL:          serverURL,
		AllowPrivateHost: true, // httptest binds to 127.0.0.1
		RetryDelay:       time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{SourceName: "x"})
	if err == nil {
		t.Fatal("expected error for missing base_url")
	}
}

func TestNewClient_RejectsBadScheme(t *testing.T) {
	_, err := NewClient(ClientConfig{SourceName: "x", BaseURL: "ftp://example.com"})
	if err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestNewClient_SSRFGuardBlocksLoopback(t *testing.T) {
	_, err := NewClient(ClientConfig{SourceName: "x", BaseURL: "http://127.0.0.1:8080"})
	if err == nil {
		t.Fatal("expected private host to be rejected by default")
	}
}

func TestClient_Get_ParsesArrayResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pagina"); got != "1" {
			t.Errorf("expected pagina=1, got %q", got)
		}
		_ = json.NewEncoder(w).Encode([]map[string]interface{}{
			{"id": 1, "objeto": "Aquisição de material hospitalar"},
			{"id": 2, "objeto": "Serviços de limpeza"},
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	rows, err := client.Get(context.Background(), "/contratos", map[string]string{"pagina": "1"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["objeto"] != "Aquisição de material hospitalar" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
}

func TestClient_Get_WrapsObjectResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total": 10, "items": []}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	rows, err := client.Get(context.Background(), "consulta", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["total"].(float64) != 10 {
		t.Errorf("unexpected row: %v", rows[0])
	}
}

func TestClient_Get_RetriesTransientStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"ok": true}]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	rows, err := client.Get(context.Background(), "/dados", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after retries, got %d", len(rows))
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 upstream calls, got %d", calls)
	}
}

func TestClient_Get_ForbiddenSurfacesUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("chave de API inválida"))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	_, err := client.Get(context.Background(), "/servidores", nil)
	if err == nil {
		t.Fatal("expected error for 403")
	}

	var upstream *base.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %T: %v", err, err)
	}
	if !upstream.IsAccessDenied() {
		t.Errorf("expected access denied classification for status %d", upstream.StatusCode)
	}
}

func TestClient_Get_EnforcesResponseSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(cfg *ClientConfig) {
		cfg.MaxResponseSize = 1024
	})
	_, err := client.Get(context.Background(), "/dados", nil)
	if err == nil {
		t.Fatal("expected error for oversized response")
	}
}

func TestClient_HeaderAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("chave-api-dados") != "secret-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(cfg *ClientConfig) {
		cfg.AuthMode = AuthHeader
		cfg.AuthName = "chave-api-dados"
		cfg.AuthKey = "secret-key"
	})
	if _, err := client.Get(context.Background(), "/contratos", nil); err != nil {
		t.Fatalf("Get with header auth: %v", err)
	}
}

func TestClient_SetAuthKey_RotatesCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("chave-api-dados") != "fallback" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, func(cfg *ClientConfig) {
		cfg.AuthMode = AuthHeader
		cfg.AuthName = "chave-api-dados"
		cfg.AuthKey = "primary"
	})

	if _, err := client.Get(context.Background(), "/contratos", nil); err == nil {
		t.Fatal("expected 403 with primary key")
	}
	client.SetAuthKey("fallback")
	if _, err := client.Get(context.Background(), "/contratos", nil); err != nil {
		t.Fatalf("Get after key rotation: %v", err)
	}
}

func TestClient_Probe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, nil)
	status, err := client.Probe(context.Background(), "/")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !status.Healthy {
		t.Error("expected healthy status")
	}
	if status.Details["status_code"] != "200" {
		t.Errorf("unexpected details: %v", status.Details)
	}
}

func TestConvertToRows_Scalar(t *testing.T) {
	rows := convertToRows("texto")
	if len(rows) != 1 || rows[0]["value"] != "texto" {
		t.Errorf("unexpected rows: %v", rows)
	}
}
