// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"strconv"
	"time"

	"cidadao/platform/connectors/base"
	"cidadao/platform/connectors/config"
	"cidadao/platform/connectors/registry"
)

const pncpDateLayout = "20060102"

// SourceCandidate is one source the selector judged able to answer the
// query, already bound to a concrete endpoint and parameters.
type SourceCandidate struct {
	Config     *base.SourceConfig     `json:"-"`
	SourceName string                 `json:"source"`
	Category   string                 `json:"category"`
	Endpoint   string                 `json:"endpoint"`
	Parameters map[string]interface{} `json:"parameters"`
}

// QueryPlan is the ordered list of candidates for one query. Candidates in
// the same category are alternates: the processor tries them in order until
// one succeeds.
type QueryPlan struct {
	Intent     Intent             `json:"intent"`
	Candidates []*SourceCandidate `json:"candidates"`
}

// Selector maps a classified query onto registered sources. Per-category
// lookups are cached briefly so hot intents do not rescan the registry.
type Selector struct {
	registry *registry.Registry
	cache    *config.CatalogCache
}

// NewSelector creates a selector over the given registry
func NewSelector(reg *registry.Registry) *Selector {
	return &Selector{
		registry: reg,
		cache:    config.NewCatalogCache(30 * time.Second),
	}
}

// BuildPlan assembles the candidate list for an intent. Sources come back
// from the registry already ordered by priority within each category.
func (s *Selector) BuildPlan(intent Intent, entities *Entities, rawQuery string) *QueryPlan {
	plan := &QueryPlan{Intent: intent}
	seen := make(map[string]bool)

	for _, category := range CategoriesFor(intent) {
		for _, src := range s.sourcesFor(category) {
			if seen[src.Name] {
				continue
			}
			endpoint, params, ok := bindQuery(src.Type, intent, entities, rawQuery)
			if !ok {
				continue
			}
			seen[src.Name] = true
			plan.Candidates = append(plan.Candidates, &SourceCandidate{
				Config:     src,
				SourceName: src.Name,
				Category:   category,
				Endpoint:   endpoint,
				Parameters: params,
			})
		}
	}
	return plan
}

func (s *Selector) sourcesFor(category string) []*base.SourceConfig {
	if sources, ok := s.cache.GetSources(category); ok {
		return sources
	}
	sources := s.registry.ListByCategory(category)
	s.cache.SetSources(category, sources)
	return sources
}

// bindQuery resolves the endpoint and parameters for one source type and
// intent. Returns ok=false when the source type cannot serve the intent.
func bindQuery(sourceType string, intent Intent, entities *Entities, rawQuery string) (string, map[string]interface{}, bool) {
	switch sourceType {
	case "portal":
		return bindPortal(intent, entities)
	case "pncp":
		return bindPNCP(intent, entities)
	case "siconfi":
		return bindSiconfi(intent, entities)
	case "datasus":
		return bindDataSUS(intent, entities)
	case "inep":
		return bindINEP(intent, entities)
	case "camara":
		return bindCamara(intent, entities)
	case "ckan":
		return "package-search", map[string]interface{}{"q": rawQuery}, true
	case "ibge":
		if entities.UF != "" {
			return "municipios-por-uf", map[string]interface{}{"uf": entities.UF}, true
		}
		return "estados", map[string]interface{}{}, true
	default:
		return "", nil, false
	}
}

func bindPortal(intent Intent, entities *Entities) (string, map[string]interface{}, bool) {
	params := make(map[string]interface{})
	switch intent {
	case IntentSalaryLookup, IntentServantLookup:
		if entities.CPF != "" {
			params["cpf"] = entities.CPF
		}
		return "servidores", params, true
	case IntentContractSearch, IntentGeneralTransparency:
		if entities.OrgaoCode != "" {
			params["codigoOrgao"] = entities.OrgaoCode
		}
		if entities.CNPJ != "" {
			params["cnpjContratada"] = entities.CNPJ
		}
		return "contratos", params, true
	case IntentExpenseAnalysis:
		if entities.OrgaoCode != "" {
			params["codigoOrgao"] = entities.OrgaoCode
		}
		params["anoExercicio"] = yearOrCurrent(entities)
		return "despesas", params, true
	case IntentBiddingSearch:
		if entities.OrgaoCode != "" {
			params["codigoOrgao"] = entities.OrgaoCode
		}
		return "licitacoes", params, true
	default:
		return "", nil, false
	}
}

func bindPNCP(intent Intent, entities *Entities) (string, map[string]interface{}, bool) {
	var endpoint string
	switch intent {
	case IntentContractSearch, IntentGeneralTransparency:
		endpoint = "contratos"
	case IntentBiddingSearch:
		endpoint = "contratacao"
	default:
		return "", nil, false
	}

	start, end := resolveDateRange(entities)
	params := map[string]interface{}{
		"dataInicial": start.Format(pncpDateLayout),
		"dataFinal":   end.Format(pncpDateLayout),
	}
	if entities.CNPJ != "" {
		params["cnpjOrgao"] = entities.CNPJ
	}
	return endpoint, params, true
}

func bindSiconfi(intent Intent, entities *Entities) (string, map[string]interface{}, bool) {
	if intent != IntentFiscalReport {
		return "", nil, false
	}
	params := map[string]interface{}{
		"an_exercicio": yearOrCurrent(entities),
		"nr_periodo":   currentRREOPeriod(time.Now()),
	}
	// id_ente must come from context; without it SICONFI rejects the call
	// and the processor moves to the next candidate
	return "rreo", params, true
}

func bindDataSUS(intent Intent, entities *Entities) (string, map[string]interface{}, bool) {
	if intent != IntentHealthStats {
		return "", nil, false
	}
	params := make(map[string]interface{})
	if entities.UF != "" {
		params["uf"] = entities.UF
		params["codigo_uf"] = ufIBGECode(entities.UF)
	}
	params["ano"] = yearOrCurrent(entities)
	return "leitos", params, true
}

func bindINEP(intent Intent, entities *Entities) (string, map[string]interface{}, bool) {
	if intent != IntentEducationStats {
		return "", nil, false
	}
	params := make(map[string]interface{})
	if entities.UF != "" {
		params["uf"] = entities.UF
	}
	if entities.Year != 0 {
		params["ano"] = entities.Year
		return "matriculas", params, true
	}
	return "ideb", params, true
}

func bindCamara(intent Intent, entities *Entities) (string, map[string]interface{}, bool) {
	if intent != IntentLegislativeActivity {
		return "", nil, false
	}
	params := make(map[string]interface{})
	if entities.UF != "" {
		params["siglaUf"] = entities.UF
	}
	return "deputados", params, true
}

// resolveDateRange picks the PNCP query window: the extracted range when
// present, the whole extracted year otherwise, the last 90 days as default.
func resolveDateRange(entities *Entities) (time.Time, time.Time) {
	if entities.DateRange != nil {
		return entities.DateRange.Start, entities.DateRange.End
	}
	if entities.Year != 0 {
		return time.Date(entities.Year, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(entities.Year, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	now := time.Now()
	return now.AddDate(0, 0, -90), now
}

func yearOrCurrent(entities *Entities) int {
	if entities.Year != 0 {
		return entities.Year
	}
	return time.Now().Year()
}

// currentRREOPeriod maps a date to the bimonthly RREO reporting period
func currentRREOPeriod(now time.Time) int {
	period := (int(now.Month()) + 1) / 2
	if period < 1 {
		period = 1
	}
	return period
}

// ufIBGECode maps a UF to its two-digit IBGE code, the form DataSUS expects
func ufIBGECode(uf string) string {
	codes := map[string]int{
		"RO": 11, "AC": 12, "AM": 13, "RR": 14, "PA": 15, "AP": 16, "TO": 17,
		"MA": 21, "PI": 22, "CE": 23, "RN": 24, "PB": 25, "PE": 26, "AL": 27, "SE": 28, "BA": 29,
		"MG": 31, "ES": 32, "RJ": 33, "SP": 35,
		"PR": 41, "SC": 42, "RS": 43,
		"MS": 50, "MT": 51, "GO": 52, "DF": 53,
	}
	if code, ok := codes[uf]; ok {
		return strconv.Itoa(code)
	}
	return ""
}
