// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"sort"
	"strings"
)

// Intent is the classified purpose of a citizen query
type Intent string

const (
	IntentSalaryLookup        Intent = "salary_lookup"
	IntentContractSearch      Intent = "contract_search"
	IntentExpenseAnalysis     Intent = "expense_analysis"
	IntentBiddingSearch       Intent = "bidding_search"
	IntentServantLookup       Intent = "servant_lookup"
	IntentFiscalReport        Intent = "fiscal_report"
	IntentHealthStats         Intent = "health_stats"
	IntentEducationStats      Intent = "education_stats"
	IntentLegislativeActivity Intent = "legislative_activity"
	IntentGeneralTransparency Intent = "general_transparency"
)

// intentPriority breaks score ties deterministically: the more specific
// intents win over the broader ones.
var intentPriority = []Intent{
	IntentSalaryLookup,
	IntentServantLookup,
	IntentBiddingSearch,
	IntentContractSearch,
	IntentExpenseAnalysis,
	IntentFiscalReport,
	IntentHealthStats,
	IntentEducationStats,
	IntentLegislativeActivity,
	IntentGeneralTransparency,
}

// intentKeywords maps each intent to its weighted trigger terms. Keywords
// are matched against the diacritic-folded lowercase query, so entries here
// are stored folded too.
var intentKeywords = map[Intent]map[string]float64{
	IntentSalaryLookup: {
		"salario":      3,
		"remuneracao":  3,
		"vencimento":   2,
		"contracheque": 3,
		"quanto ganha": 3,
		"holerite":     2,
	},
	IntentContractSearch: {
		"contrato":    3,
		"contratos":   3,
		"fornecedor":  2,
		"aditivo":     2,
		"contratacao": 1,
		"objeto":      1,
	},
	IntentExpenseAnalysis: {
		"despesa":      3,
		"despesas":     3,
		"gasto":        3,
		"gastos":       3,
		"pagamento":    2,
		"empenho":      2,
		"verba":        2,
		"orcamento":    1,
		"quanto gasta": 3,
	},
	IntentBiddingSearch: {
		"licitacao":       3,
		"licitacoes":      3,
		"pregao":          3,
		"edital":          2,
		"concorrencia":    2,
		"ata de registro": 2,
		"dispensa":        2,
	},
	IntentServantLookup: {
		"servidor":     3,
		"servidores":   3,
		"funcionario":  2,
		"funcionarios": 2,
		"cargo":        1,
		"lotacao":      2,
		"nomeacao":     1,
	},
	IntentFiscalReport: {
		"rreo":                  2,
		"rgf":                   2,
		"fiscal":                2,
		"receita":               2,
		"arrecadacao":           2,
		"divida":                2,
		"relatorio fiscal":      3,
		"execucao orcamentaria": 3,
		"lrf":                   2,
	},
	IntentHealthStats: {
		"saude":          3,
		"hospital":       2,
		"hospitais":      2,
		"leito":          2,
		"leitos":         2,
		"vacina":         2,
		"vacinacao":      2,
		"sus":            2,
		"posto de saude": 3,
		"mortalidade":    2,
	},
	IntentEducationStats: {
		"educacao":     3,
		"escola":       2,
		"escolas":      2,
		"matricula":    2,
		"matriculas":   2,
		"ideb":         3,
		"enem":         3,
		"universidade": 2,
		"professor":    1,
		"professores":  1,
	},
	IntentLegislativeActivity: {
		"deputado":         3,
		"deputados":        3,
		"camara":           2,
		"cota parlamentar": 3,
		"proposicao":       2,
		"projeto de lei":   2,
		"votacao":          2,
		"parlamentar":      2,
	},
	IntentGeneralTransparency: {
		"transparencia": 1,
		"dados":         0.5,
		"publico":       0.5,
		"governo":       0.5,
	},
}

// IntentResult carries the classification outcome
type IntentResult struct {
	Intent     Intent             `json:"intent"`
	Confidence float64            `json:"confidence"`
	Scores     map[Intent]float64 `json:"scores,omitempty"`
}

// diacriticFolder strips the accents Portuguese queries carry so keyword
// matching works whether or not the citizen typed them.
var diacriticFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
)

// normalizeQuery lowercases and folds diacritics
func normalizeQuery(query string) string {
	return diacriticFolder.Replace(strings.ToLower(query))
}

// ClassifyIntent scores the query against every intent's keyword set and
// returns the winner. Ties resolve by intent priority. A query matching
// nothing classifies as general transparency with zero confidence.
func ClassifyIntent(query string) *IntentResult {
	normalized := normalizeQuery(query)

	scores := make(map[Intent]float64)
	var total float64
	for intent, keywords := range intentKeywords {
		var score float64
		for keyword, weight := range keywords {
			if strings.Contains(normalized, keyword) {
				score += weight
			}
		}
		if score > 0 {
			scores[intent] = score
			total += score
		}
	}

	if len(scores) == 0 {
		return &IntentResult{Intent: IntentGeneralTransparency, Confidence: 0}
	}

	best := IntentGeneralTransparency
	bestScore := 0.0
	for _, intent := range intentPriority {
		if s, ok := scores[intent]; ok && s > bestScore {
			best = intent
			bestScore = s
		}
	}

	return &IntentResult{
		Intent:     best,
		Confidence: bestScore / total,
		Scores:     scores,
	}
}

// rankedIntents returns every matched intent ordered by score, priority
// breaking ties. The processor walks this order when the primary intent's
// sources all fail.
func rankedIntents(result *IntentResult) []Intent {
	if len(result.Scores) == 0 {
		return []Intent{result.Intent}
	}

	priorityIndex := make(map[Intent]int, len(intentPriority))
	for i, intent := range intentPriority {
		priorityIndex[intent] = i
	}

	ranked := make([]Intent, 0, len(result.Scores))
	for intent := range result.Scores {
		ranked = append(ranked, intent)
	}
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := result.Scores[ranked[i]], result.Scores[ranked[j]]
		if si != sj {
			return si > sj
		}
		return priorityIndex[ranked[i]] < priorityIndex[ranked[j]]
	})
	return ranked
}

// intentCategories maps an intent to the source categories able to serve it,
// primary first.
var intentCategories = map[Intent][]string{
	IntentSalaryLookup:        {"salaries"},
	IntentContractSearch:      {"contracts", "bidding"},
	IntentExpenseAnalysis:     {"expenses", "fiscal"},
	IntentBiddingSearch:       {"bidding", "contracts"},
	IntentServantLookup:       {"salaries"},
	IntentFiscalReport:        {"fiscal"},
	IntentHealthStats:         {"health"},
	IntentEducationStats:      {"education"},
	IntentLegislativeActivity: {"legislative"},
	IntentGeneralTransparency: {"open-data", "contracts", "localities"},
}

// CategoriesFor returns the source categories serving an intent
func CategoriesFor(intent Intent) []string {
	if cats, ok := intentCategories[intent]; ok {
		return cats
	}
	return intentCategories[IntentGeneralTransparency]
}
