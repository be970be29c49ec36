// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// SourceMetrics tracks lightweight per-source counters. The orchestrator
// exposes the aggregate picture through Prometheus; these stay adapter-local
// so a connector can be inspected in isolation.
type SourceMetrics struct {
	sourceType string

	queriesTotal      int64
	errorsTotal       int64
	healthChecksTotal int64
	healthCheckFails  int64

	queryDurationTotal int64 // nanoseconds
	queryCount         int64

	latencies *LatencyHistogram
}

// NewSourceMetrics creates a metrics collector for one adapter type
func NewSourceMetrics(sourceType string) *SourceMetrics {
	return &SourceMetrics{
		sourceType: sourceType,
		latencies:  NewLatencyHistogram(),
	}
}

// RecordQuery records one upstream query
func (m *SourceMetrics) RecordQuery(duration time.Duration, err error) {
	atomic.AddInt64(&m.queriesTotal, 1)
	if err != nil {
		atomic.AddInt64(&m.errorsTotal, 1)
		return
	}
	atomic.AddInt64(&m.queryDurationTotal, int64(duration))
	atomic.AddInt64(&m.queryCount, 1)
	m.latencies.Observe(duration)
}

// RecordHealthCheck records one health probe
func (m *SourceMetrics) RecordHealthCheck(healthy bool) {
	atomic.AddInt64(&m.healthChecksTotal, 1)
	if !healthy {
		atomic.AddInt64(&m.healthCheckFails, 1)
	}
}

// Snapshot is a point-in-time view of the collector
type Snapshot struct {
	SourceType        string        `json:"source_type"`
	QueriesTotal      int64         `json:"queries_total"`
	ErrorsTotal       int64         `json:"errors_total"`
	HealthChecksTotal int64         `json:"health_checks_total"`
	HealthCheckFails  int64         `json:"health_check_fails"`
	AvgQueryDuration  time.Duration `json:"avg_query_duration"`
	P95QueryDuration  time.Duration `json:"p95_query_duration"`
}

// Snapshot returns the current counter values
func (m *SourceMetrics) Snapshot() Snapshot {
	count := atomic.LoadInt64(&m.queryCount)
	var avg time.Duration
	if count > 0 {
		avg = time.Duration(atomic.LoadInt64(&m.queryDurationTotal) / count)
	}
	return Snapshot{
		SourceType:        m.sourceType,
		QueriesTotal:      atomic.LoadInt64(&m.queriesTotal),
		ErrorsTotal:       atomic.LoadInt64(&m.errorsTotal),
		HealthChecksTotal: atomic.LoadInt64(&m.healthChecksTotal),
		HealthCheckFails:  atomic.LoadInt64(&m.healthCheckFails),
		AvgQueryDuration:  avg,
		P95QueryDuration:  m.latencies.Percentile(95),
	}
}

// LatencyHistogram keeps a bounded window of recent observations for
// percentile estimates. Not a real histogram; good enough for diagnostics.
type LatencyHistogram struct {
	samples []time.Duration
	next    int
	filled  bool
	mu      sync.Mutex
}

const latencyWindowSize = 512

// NewLatencyHistogram creates an empty observation window
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		samples: make([]time.Duration, latencyWindowSize),
	}
}

// Observe adds one latency sample, overwriting the oldest when full
func (h *LatencyHistogram) Observe(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples[h.next] = d
	h.next++
	if h.next == len(h.samples) {
		h.next = 0
		h.filled = true
	}
}

// Percentile returns the requested percentile over the current window
func (h *LatencyHistogram) Percentile(p float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.next
	if h.filled {
		n = len(h.samples)
	}
	if n == 0 {
		return 0
	}

	sorted := make([]time.Duration, n)
	copy(sorted, h.samples[:n])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(n)*p/100.0) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx]
}
