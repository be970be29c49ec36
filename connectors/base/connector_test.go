// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package base

import (
	"errors"
	"testing"
)

func TestConnectorError_Error(t *testing.T) {
	err := NewConnectorError("portal-federal", "Query", "request failed", nil)
	want := "portal-federal.Query: request failed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestConnectorError_ErrorWithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewConnectorError("ibge", "HealthCheck", "unreachable", cause)
	want := "ibge.HealthCheck: unreachable (cause: connection refused)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestConnectorError_Unwrap(t *testing.T) {
	cause := &UpstreamError{StatusCode: 403}
	err := NewConnectorError("portal-federal", "Query", "denied", cause)

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatal("expected errors.As to find UpstreamError through ConnectorError")
	}
	if upstream.StatusCode != 403 {
		t.Errorf("StatusCode = %d, want 403", upstream.StatusCode)
	}
}

func TestUpstreamError_Classification(t *testing.T) {
	tests := []struct {
		status       int
		accessDenied bool
		badRequest   bool
	}{
		{400, false, true},
		{401, true, false},
		{403, true, false},
		{422, false, true},
		{500, false, false},
	}

	for _, tt := range tests {
		e := &UpstreamError{StatusCode: tt.status}
		if e.IsAccessDenied() != tt.accessDenied {
			t.Errorf("status %d: IsAccessDenied() = %v, want %v", tt.status, e.IsAccessDenied(), tt.accessDenied)
		}
		if e.IsBadRequest() != tt.badRequest {
			t.Errorf("status %d: IsBadRequest() = %v, want %v", tt.status, e.IsBadRequest(), tt.badRequest)
		}
	}
}

func TestUpstreamError_Error(t *testing.T) {
	e := &UpstreamError{StatusCode: 403, Body: "API key invalid"}
	if e.Error() != "upstream HTTP 403: API key invalid" {
		t.Errorf("unexpected error string: %s", e.Error())
	}
	e = &UpstreamError{StatusCode: 500}
	if e.Error() != "upstream HTTP 500" {
		t.Errorf("unexpected error string: %s", e.Error())
	}
}

func TestSourceConfig_HasCategory(t *testing.T) {
	cfg := &SourceConfig{
		Name:       "portal-federal",
		Categories: []string{"contracts", "salaries", "expenses"},
	}

	if !cfg.HasCategory("contracts") {
		t.Error("expected HasCategory(contracts) to be true")
	}
	if cfg.HasCategory("health") {
		t.Error("expected HasCategory(health) to be false")
	}
}

func TestMissingParameterError(t *testing.T) {
	err := &MissingParameterError{Source: "portal-federal", Parameter: "codigoOrgao"}
	want := `portal-federal: required parameter "codigoOrgao" not resolved`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
