// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"cidadao/platform/connectors/config"
	"cidadao/platform/shared/logger"
)

// ErrAgentNotFound is returned when the named agent profile does not exist
var ErrAgentNotFound = errors.New("agent not found")

// monetaryFields are the value columns the anomaly scan inspects across the
// federal payloads. Portal and PNCP each use their own spellings.
var monetaryFields = []string{
	"valor", "valorInicial", "valorFinal", "valorLiquido", "valorGlobal",
	"valorContrato", "valorTotalHomologado", "valorDocumento", "vlrLiquido",
}

// Anomaly is one row whose monetary value sits far above its source's
// distribution
type Anomaly struct {
	Source string                 `json:"source"`
	Field  string                 `json:"field"`
	Value  float64                `json:"value"`
	Mean   float64                `json:"mean"`
	StdDev float64                `json:"std_dev"`
	Row    map[string]interface{} `json:"row"`
}

// AgentAnalysis is the enriched answer one agent persona produces
type AgentAnalysis struct {
	Agent           string         `json:"agent"`
	DisplayName     string         `json:"display_name"`
	Domain          string         `json:"domain"`
	Query           string         `json:"query"`
	Result          *QueryResponse `json:"result"`
	Anomalies       []Anomaly      `json:"anomalies,omitempty"`
	AnomaliesFound  int            `json:"anomalies_found"`
	ConfidenceScore float64        `json:"confidence_score"`
	Summary         string         `json:"summary"`
}

// EnrichmentService runs citizen queries through a named agent persona.
// Personas come from the catalog; a profile with a fixed intent pins the
// classification so the agent always answers from its own domain.
type EnrichmentService struct {
	catalog   *config.Catalog
	processor *Processor
	cache     *config.CatalogCache
	log       *logger.Logger
}

// NewEnrichmentService wires the service
func NewEnrichmentService(catalog *config.Catalog, processor *Processor) *EnrichmentService {
	return &EnrichmentService{
		catalog:   catalog,
		processor: processor,
		cache:     config.NewCatalogCache(30 * time.Second),
		log:       logger.New("enrichment"),
	}
}

// Agents lists every configured persona
func (s *EnrichmentService) Agents() []*config.AgentProfile {
	return s.catalog.Agents
}

// Agent finds one persona by name. Repeat lookups hit a short TTL cache.
func (s *EnrichmentService) Agent(name string) (*config.AgentProfile, error) {
	if profile, ok := s.cache.GetAgent(name); ok {
		return profile, nil
	}
	profile, ok := s.catalog.AgentByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	s.cache.SetAgent(name, profile)
	return profile, nil
}

// Analyze answers a query as the named agent and scans the result for
// monetary outliers
func (s *EnrichmentService) Analyze(ctx context.Context, name string, req *QueryRequest) (*AgentAnalysis, error) {
	profile, err := s.Agent(name)
	if err != nil {
		return nil, err
	}

	var response *QueryResponse
	if profile.Intent != "" {
		response, err = s.processor.ProcessForIntent(ctx, req, Intent(profile.Intent))
	} else {
		response, err = s.processor.Process(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	anomalies := DetectAnomalies(response.Data)
	analysis := &AgentAnalysis{
		Agent:           profile.Name,
		DisplayName:     profile.DisplayName,
		Domain:          profile.Domain,
		Query:           req.Query,
		Result:          response,
		Anomalies:       anomalies,
		AnomaliesFound:  len(anomalies),
		ConfidenceScore: computeConfidence(response),
	}
	analysis.Summary = summarize(profile, response, len(anomalies))

	s.log.Info(req.RequestID, "agent analysis complete", map[string]interface{}{
		"agent":     profile.Name,
		"anomalies": len(anomalies),
		"degraded":  response.Degraded,
	})
	return analysis, nil
}

// DetectAnomalies flags rows whose monetary value exceeds the source mean by
// more than two standard deviations. Sources with fewer than five comparable
// values are skipped.
func DetectAnomalies(data map[string][]map[string]interface{}) []Anomaly {
	var anomalies []Anomaly

	sources := make([]string, 0, len(data))
	for source := range data {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		rows := data[source]
		for _, field := range monetaryFields {
			values := make([]float64, 0, len(rows))
			indexed := make([]int, 0, len(rows))
			for i, row := range rows {
				if v, ok := numericValue(row[field]); ok {
					values = append(values, v)
					indexed = append(indexed, i)
				}
			}
			if len(values) < 5 {
				continue
			}

			mean, stddev := meanStdDev(values)
			if stddev == 0 {
				continue
			}
			threshold := mean + 2*stddev
			for j, v := range values {
				if v > threshold {
					anomalies = append(anomalies, Anomaly{
						Source: source,
						Field:  field,
						Value:  v,
						Mean:   mean,
						StdDev: stddev,
						Row:    rows[indexed[j]],
					})
				}
			}
		}
	}
	return anomalies
}

// numericValue coerces a JSON cell into a float. Portal endpoints return
// values both as numbers and as "R$ 1.500,50" strings.
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(n), "R$"))
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
		f, err := strconv.ParseFloat(cleaned, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func meanStdDev(values []float64) (float64, float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

// computeConfidence is the share of upstream attempts that answered
func computeConfidence(response *QueryResponse) float64 {
	ok := len(response.Data)
	failed := len(response.SourcesFailed)
	if ok+failed == 0 {
		return 0
	}
	return float64(ok) / float64(ok+failed)
}

func summarize(profile *config.AgentProfile, response *QueryResponse, anomalies int) string {
	rows := 0
	for _, sourceRows := range response.Data {
		rows += len(sourceRows)
	}
	if response.Degraded {
		return fmt.Sprintf("%s: nenhuma fonte respondeu para esta consulta", profile.DisplayName)
	}
	if anomalies > 0 {
		return fmt.Sprintf("%s: %d registros analisados, %d valores atípicos detectados", profile.DisplayName, rows, anomalies)
	}
	return fmt.Sprintf("%s: %d registros analisados, nenhum valor atípico", profile.DisplayName, rows)
}
