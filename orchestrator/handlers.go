// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxQueryLength = 500

// writeJSON serializes one response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends the uniform error envelope
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// queryPayload is the POST /api/v1/query body
type queryPayload struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (p *queryPayload) validate() error {
	if p.Query == "" {
		return errors.New("query is required")
	}
	if len(p.Query) > maxQueryLength {
		return errors.New("query exceeds maximum length")
	}
	return nil
}

// handleQuery runs the full pipeline synchronously
func handleQuery(w http.ResponseWriter, r *http.Request) {
	var payload queryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := payload.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := &QueryRequest{
		RequestID: requestID(r),
		Query:     payload.Query,
		Limit:     payload.Limit,
	}

	start := time.Now()
	response, err := queryProcessor.Process(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query processing failed")
		return
	}

	queriesTotal.WithLabelValues(string(response.Intent), strconv.FormatBool(response.Degraded)).Inc()
	queryDuration.Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, response)
}

// handleAgents lists the configured analysis personas
func handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": enrichmentService.Agents()})
}

// handleAgent returns one persona
func handleAgent(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	profile, err := enrichmentService.Agent(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleAgentAnalyze runs a query as one persona
func handleAgentAnalyze(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var payload queryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := payload.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := &QueryRequest{
		RequestID: requestID(r),
		Query:     payload.Query,
		Limit:     payload.Limit,
	}
	analysis, err := enrichmentService.Analyze(r.Context(), name, req)
	if err != nil {
		if errors.Is(err, ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// handleInvestigationCreate accepts a long-running query and returns 202
// with the id to poll
func handleInvestigationCreate(w http.ResponseWriter, r *http.Request) {
	var payload queryPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := payload.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := investigationRunner.Start(r.Context(), payload.Query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create investigation")
		return
	}
	investigationsTotal.Inc()
	writeJSON(w, http.StatusAccepted, inv)
}

// handleInvestigationGet returns one investigation with its result once
// completed
func handleInvestigationGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	inv, err := investigationStore.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrInvestigationNotFound) {
			writeError(w, http.StatusNotFound, "investigation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load investigation")
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// handleInvestigationList returns recent investigations, newest first
func handleInvestigationList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	investigations, err := investigationStore.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list investigations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"investigations": investigations})
}

// sourceSummary is the public view of one registered source. Credentials
// never leave the process.
type sourceSummary struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Jurisdiction string   `json:"jurisdiction"`
	Categories   []string `json:"categories"`
	BaseURL      string   `json:"base_url"`
	Priority     int      `json:"priority"`
}

// handleSources lists the registered government data sources
func handleSources(w http.ResponseWriter, r *http.Request) {
	names := sourceRegistry.List()
	summaries := make([]sourceSummary, 0, len(names))
	for _, name := range names {
		config, err := sourceRegistry.GetConfig(name)
		if err != nil {
			continue
		}
		summaries = append(summaries, sourceSummary{
			Name:         config.Name,
			Type:         config.Type,
			Jurisdiction: config.Jurisdiction,
			Categories:   config.Categories,
			BaseURL:      config.BaseURL,
			Priority:     config.Priority,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sources": summaries})
}

// handleSourceHealth probes one source
func handleSourceHealth(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	status, err := sourceRegistry.HealthCheckSingle(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, "source not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// healthHandler reports the status of every internal component
func healthHandler(w http.ResponseWriter, r *http.Request) {
	components := map[string]interface{}{
		"registry": map[string]interface{}{
			"status":  "ok",
			"sources": sourceRegistry.Count(),
		},
		"cache": map[string]interface{}{
			"healthy": resultCache.IsHealthy(),
		},
		"audit": map[string]interface{}{
			"healthy": auditLogger.IsHealthy(),
			"dropped": auditLogger.Dropped(),
		},
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"uptime":     time.Since(startTime).String(),
		"components": components,
	})
}

// readyHandler reports whether the service can answer queries
func readyHandler(w http.ResponseWriter, r *http.Request) {
	if sourceRegistry.Count() == 0 {
		writeError(w, http.StatusServiceUnavailable, "no sources registered")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// requestID honours a caller-supplied id, generating one otherwise
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}
