// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"testing"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	orig := log.Writer()
	origFlags := log.Flags()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer func() {
		log.SetOutput(orig)
		log.SetFlags(origFlags)
	}()
	fn()
	return buf.String()
}

func TestLog_EmitsValidJSON(t *testing.T) {
	l := New("orchestrator")
	out := captureOutput(t, func() {
		l.Info("req-123", "query processed", map[string]interface{}{"sources": 2})
	})

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if entry.Level != INFO {
		t.Errorf("Level = %q", entry.Level)
	}
	if entry.Component != "orchestrator" {
		t.Errorf("Component = %q", entry.Component)
	}
	if entry.RequestID != "req-123" {
		t.Errorf("RequestID = %q", entry.RequestID)
	}
	if entry.Fields["sources"] != float64(2) {
		t.Errorf("Fields = %v", entry.Fields)
	}
}

func TestLog_OmitsEmptyRequestID(t *testing.T) {
	l := New("registry")
	out := captureOutput(t, func() {
		l.Warn("", "source unreachable", nil)
	})
	if strings.Contains(out, "request_id") {
		t.Errorf("empty request_id must be omitted: %s", out)
	}
}

func TestErrorWithCode_AttachesStatusAndError(t *testing.T) {
	l := New("gateway")
	out := captureOutput(t, func() {
		l.ErrorWithCode("req-9", "upstream failed", 502, errTest, nil)
	})

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry.Fields["status_code"] != float64(502) {
		t.Errorf("status_code = %v", entry.Fields["status_code"])
	}
	if entry.Fields["error"] != "boom" {
		t.Errorf("error = %v", entry.Fields["error"])
	}
}

func TestInfoWithDuration_AttachesDuration(t *testing.T) {
	l := New("processor")
	out := captureOutput(t, func() {
		l.InfoWithDuration("req-1", "fan-out complete", 123.4, nil)
	})

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry.Fields["duration_ms"] != 123.4 {
		t.Errorf("duration_ms = %v", entry.Fields["duration_ms"])
	}
}

var errTest = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
