// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"sync"
	"time"

	"cidadao/platform/connectors/base"
	"cidadao/platform/connectors/registry"
	"cidadao/platform/shared/logger"
)

const defaultCandidateTimeout = 30 * time.Second

// QueryRequest is one citizen question submitted to the engine
type QueryRequest struct {
	RequestID string `json:"request_id"`
	Query     string `json:"query"`
	Limit     int    `json:"limit,omitempty"`
}

// SourceAttempt records one upstream call for provenance. Citizens see
// exactly which government systems answered and which refused.
type SourceAttempt struct {
	Source     string `json:"source"`
	Endpoint   string `json:"endpoint"`
	Status     string `json:"status"` // "ok", "failed"
	Error      string `json:"error,omitempty"`
	Rows       int    `json:"rows"`
	DurationMS int64  `json:"duration_ms"`
}

// QueryResponse is the aggregated answer
type QueryResponse struct {
	RequestID      string                               `json:"request_id"`
	Query          string                               `json:"query"`
	Intent         Intent                               `json:"intent"`
	Confidence     float64                              `json:"confidence"`
	Entities       *Entities                            `json:"entities,omitempty"`
	Data           map[string][]map[string]interface{} `json:"data"`
	Sources        []SourceAttempt                      `json:"sources"`
	SourcesFailed  []string                             `json:"sources_failed,omitempty"`
	Degraded       bool                                 `json:"degraded"`
	Cached         bool                                 `json:"cached"`
	ProcessingTime string                               `json:"processing_time"`
}

// Processor runs the full pipeline: cache lookup, intent classification,
// entity extraction, source selection and the upstream fan-out.
type Processor struct {
	registry *registry.Registry
	selector *Selector
	cache    *ResultCache
	audit    *AuditLogger
	log      *logger.Logger
}

// NewProcessor wires the pipeline
func NewProcessor(reg *registry.Registry, cache *ResultCache, audit *AuditLogger) *Processor {
	return &Processor{
		registry: reg,
		selector: NewSelector(reg),
		cache:    cache,
		audit:    audit,
		log:      logger.New("processor"),
	}
}

// Process answers one query. Candidates in different categories run
// concurrently; within a category, alternates are tried in priority order
// until one succeeds. Exhausting every candidate yields a degraded response
// with HTTP 200 semantics so the caller still receives the provenance.
func (p *Processor) Process(ctx context.Context, req *QueryRequest) (*QueryResponse, error) {
	start := time.Now()

	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx, req.Query); ok {
			cached.RequestID = req.RequestID
			cached.Cached = true
			cached.ProcessingTime = time.Since(start).String()
			p.log.Debug(req.RequestID, "cache hit", map[string]interface{}{"query": req.Query})
			return cached, nil
		}
	}

	intentResult := ClassifyIntent(req.Query)
	response := p.processIntent(ctx, req, intentResult, start)

	if p.cache != nil && !response.Degraded && len(response.Data) > 0 {
		p.cache.Set(ctx, req.Query, response)
	}
	return response, nil
}

// ProcessForIntent runs the pipeline with the intent pinned instead of
// classified. The enrichment service uses this to force an agent's domain.
// Results are not cached: the same query text may map to different agents.
func (p *Processor) ProcessForIntent(ctx context.Context, req *QueryRequest, intent Intent) (*QueryResponse, error) {
	intentResult := &IntentResult{Intent: intent, Confidence: 1}
	return p.processIntent(ctx, req, intentResult, time.Now()), nil
}

func (p *Processor) processIntent(ctx context.Context, req *QueryRequest, intentResult *IntentResult, start time.Time) *QueryResponse {
	entities := ExtractEntities(req.Query)

	p.log.Info(req.RequestID, "query classified", map[string]interface{}{
		"intent":     string(intentResult.Intent),
		"confidence": intentResult.Confidence,
	})

	response := &QueryResponse{
		RequestID:  req.RequestID,
		Query:      req.Query,
		Intent:     intentResult.Intent,
		Confidence: intentResult.Confidence,
		Entities:   entities,
		Data:       make(map[string][]map[string]interface{}),
	}

	// Walk the matched intents best first. When the primary intent's
	// candidates all fail, the next ranked intent's sources get a chance;
	// sources already attempted are not retried under a later intent.
	tried := make(map[string]bool)
	attempted := 0
	for i, intent := range rankedIntents(intentResult) {
		plan := p.selector.BuildPlan(intent, entities, req.Query)
		candidates := skipTried(plan.Candidates, tried)
		if len(candidates) == 0 {
			continue
		}
		if i > 0 {
			p.log.Info(req.RequestID, "falling back to secondary intent", map[string]interface{}{
				"intent":     string(intent),
				"candidates": len(candidates),
			})
		}
		attempted += len(candidates)
		p.executeCandidates(ctx, req, candidates, response)
		if len(response.Data) > 0 || ctx.Err() != nil {
			break
		}
	}

	response.Degraded = len(response.Data) == 0 && attempted > 0
	response.ProcessingTime = time.Since(start).String()

	if p.audit != nil {
		p.audit.LogQuery(req, response)
	}

	p.log.InfoWithDuration(req.RequestID, "query processed",
		float64(time.Since(start).Milliseconds()), map[string]interface{}{
			"sources_ok":     len(response.Data),
			"sources_failed": len(response.SourcesFailed),
			"degraded":       response.Degraded,
		})

	return response
}

// executeCandidates fans one candidate list out by category and merges the
// outcomes into the response. Categories run concurrently.
func (p *Processor) executeCandidates(ctx context.Context, req *QueryRequest, candidates []*SourceCandidate, response *QueryResponse) {
	groups := groupByCategory(candidates)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, group := range groups {
		wg.Add(1)
		go func(group []*SourceCandidate) {
			defer wg.Done()
			rows, attempts := p.tryCandidates(ctx, req, group)
			mu.Lock()
			defer mu.Unlock()
			response.Sources = append(response.Sources, attempts...)
			for _, attempt := range attempts {
				if attempt.Status == "failed" {
					response.SourcesFailed = append(response.SourcesFailed, attempt.Source)
				}
			}
			if rows != nil {
				response.Data[rows.Source] = rows.Rows
			}
		}(group)
	}
	wg.Wait()
}

// skipTried drops candidates whose source already ran under an earlier
// intent and marks the rest as tried
func skipTried(candidates []*SourceCandidate, tried map[string]bool) []*SourceCandidate {
	kept := candidates[:0:0]
	for _, candidate := range candidates {
		if tried[candidate.SourceName] {
			continue
		}
		tried[candidate.SourceName] = true
		kept = append(kept, candidate)
	}
	return kept
}

// tryCandidates walks one category's alternates in order. Access denials
// (after the adapter's own key rotation), parameter rejections and transient
// failures all fall through to the next candidate.
func (p *Processor) tryCandidates(ctx context.Context, req *QueryRequest, candidates []*SourceCandidate) (*base.QueryResult, []SourceAttempt) {
	var attempts []SourceAttempt

	for _, candidate := range candidates {
		connector, err := p.registry.Get(candidate.SourceName)
		if err != nil {
			attempts = append(attempts, SourceAttempt{
				Source:   candidate.SourceName,
				Endpoint: candidate.Endpoint,
				Status:   "failed",
				Error:    err.Error(),
			})
			continue
		}

		attemptStart := time.Now()
		result, err := connector.Query(ctx, &base.Query{
			Endpoint:   candidate.Endpoint,
			Parameters: candidate.Parameters,
			Timeout:    defaultCandidateTimeout,
			Limit:      req.Limit,
		})
		duration := time.Since(attemptStart)

		if err != nil {
			p.log.Warn(req.RequestID, "source attempt failed", map[string]interface{}{
				"source":   candidate.SourceName,
				"endpoint": candidate.Endpoint,
				"error":    err.Error(),
			})
			attempts = append(attempts, SourceAttempt{
				Source:     candidate.SourceName,
				Endpoint:   candidate.Endpoint,
				Status:     "failed",
				Error:      err.Error(),
				DurationMS: duration.Milliseconds(),
			})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		attempts = append(attempts, SourceAttempt{
			Source:     candidate.SourceName,
			Endpoint:   candidate.Endpoint,
			Status:     "ok",
			Rows:       result.RowCount,
			DurationMS: duration.Milliseconds(),
		})
		return result, attempts
	}
	return nil, attempts
}

// groupByCategory splits candidates into per-category alternate lists,
// preserving the plan's category order
func groupByCategory(candidates []*SourceCandidate) [][]*SourceCandidate {
	index := make(map[string]int)
	var groups [][]*SourceCandidate
	for _, candidate := range candidates {
		i, ok := index[candidate.Category]
		if !ok {
			i = len(groups)
			index[candidate.Category] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], candidate)
	}
	return groups
}
