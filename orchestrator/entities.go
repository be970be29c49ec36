// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Entities holds everything extracted from one citizen query that can
// become an upstream API parameter.
type Entities struct {
	CPF        string     `json:"cpf,omitempty"`
	CPFMasked  string     `json:"cpf_masked,omitempty"`
	CNPJ       string     `json:"cnpj,omitempty"`
	UF         string     `json:"uf,omitempty"`
	OrgaoCode  string     `json:"orgao_code,omitempty"`
	OrgaoName  string     `json:"orgao_name,omitempty"`
	Year       int        `json:"year,omitempty"`
	DateRange  *DateRange `json:"date_range,omitempty"`
	MinValue   float64    `json:"min_value,omitempty"`
	PersonName string     `json:"person_name,omitempty"`
}

// DateRange is an inclusive period extracted from the query
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

var (
	reCPF      = regexp.MustCompile(`\b(\d{3})\.?(\d{3})\.?(\d{3})-?(\d{2})\b`)
	reCNPJ     = regexp.MustCompile(`\b(\d{2})\.?(\d{3})\.?(\d{3})/?(\d{4})-?(\d{2})\b`)
	reYear     = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	reMonetary = regexp.MustCompile(`(?:acima de|mais de|maior(?:es)? que|a partir de)\s*(?:r\$\s*)?([\d]+(?:[.,]\d+)*)\s*(milhoes|milhao|bilhoes|bilhao|mil)?`)
	reLastN    = regexp.MustCompile(`ultim[oa]s?\s+(\d+)\s+(dia|dias|mes|meses|ano|anos)`)
	reAbsRange = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})\s*(?:a|ate|e)\s*(\d{2})/(\d{2})/(\d{4})`)
	// rePerson matches runs of capitalized words in the raw query, with
	// Portuguese name connectors allowed between them
	rePerson = regexp.MustCompile(`\p{Lu}\p{Ll}+(?:\s+(?:d[aeo]s?\s+)?\p{Lu}\p{Ll}+)+`)
)

// institutionTerms disqualify a capitalized run from being a person name
var institutionTerms = []string{
	"ministerio", "secretaria", "camara", "senado", "portal", "governo",
	"prefeitura", "tribunal", "presidencia", "universidade", "instituto",
	"fundacao", "banco", "agencia",
}

// queryStopTerms are capitalized sentence openers that get glued onto a name
// run ("Salário de João da Silva") and must be trimmed off the front
var queryStopTerms = map[string]bool{
	"salario": true, "salarios": true, "contrato": true, "contratos": true,
	"despesa": true, "despesas": true, "gasto": true, "gastos": true,
	"pagamento": true, "pagamentos": true, "licitacao": true, "licitacoes": true,
	"quanto": true, "qual": true, "quais": true, "quem": true,
	"mostre": true, "liste": true, "busque": true, "servidor": true,
}

var nameConnectors = map[string]bool{
	"de": true, "da": true, "do": true, "das": true, "dos": true,
}

// ufNames maps folded state names to their two-letter codes. Bare UF codes
// are also recognized when they appear as standalone tokens.
var ufNames = map[string]string{
	"acre": "AC", "alagoas": "AL", "amapa": "AP", "amazonas": "AM",
	"bahia": "BA", "ceara": "CE", "distrito federal": "DF",
	"espirito santo": "ES", "goias": "GO", "maranhao": "MA",
	"mato grosso do sul": "MS", "mato grosso": "MT", "minas gerais": "MG",
	"para": "PA", "paraiba": "PB", "parana": "PR", "pernambuco": "PE",
	"piaui": "PI", "rio de janeiro": "RJ", "rio grande do norte": "RN",
	"rio grande do sul": "RS", "rondonia": "RO", "roraima": "RR",
	"santa catarina": "SC", "sao paulo": "SP", "sergipe": "SE",
	"tocantins": "TO",
}

var ufCodes = map[string]bool{
	"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true,
	"DF": true, "ES": true, "GO": true, "MA": true, "MT": true, "MS": true,
	"MG": true, "PA": true, "PB": true, "PR": true, "PE": true, "PI": true,
	"RJ": true, "RN": true, "RS": true, "RO": true, "RR": true, "SC": true,
	"SP": true, "SE": true, "TO": true,
}

// orgaoCodes maps folded ministry names to their SIAFI organ codes, the
// identifier the Portal da Transparência endpoints demand.
var orgaoCodes = map[string]struct {
	code string
	name string
}{
	"ministerio da saude":         {"36000", "Ministério da Saúde"},
	"ministerio da educacao":      {"26000", "Ministério da Educação"},
	"ministerio da fazenda":       {"25000", "Ministério da Fazenda"},
	"ministerio da justica":       {"30000", "Ministério da Justiça e Segurança Pública"},
	"ministerio da defesa":        {"52000", "Ministério da Defesa"},
	"ministerio da agricultura":   {"22000", "Ministério da Agricultura e Pecuária"},
	"ministerio do trabalho":      {"40000", "Ministério do Trabalho e Emprego"},
	"ministerio dos transportes":  {"39000", "Ministério dos Transportes"},
	"ministerio do meio ambiente": {"44000", "Ministério do Meio Ambiente"},
	"presidencia da republica":    {"20000", "Presidência da República"},
}

// ExtractEntities pulls structured parameters out of a natural-language
// query. CPF and CNPJ candidates are kept only when their check digits
// validate.
func ExtractEntities(query string) *Entities {
	normalized := normalizeQuery(query)
	entities := &Entities{}

	if m := reCNPJ.FindStringSubmatch(normalized); m != nil {
		cnpj := strings.Join(m[1:], "")
		if ValidateCNPJ(cnpj) {
			entities.CNPJ = cnpj
		}
	}

	// CNPJ digits embed CPF-shaped substrings, so only look for a CPF when
	// no CNPJ matched
	if entities.CNPJ == "" {
		if m := reCPF.FindStringSubmatch(normalized); m != nil {
			cpf := strings.Join(m[1:], "")
			if ValidateCPF(cpf) {
				entities.CPF = cpf
				entities.CPFMasked = MaskCPF(cpf)
			}
		}
	}

	extractUF(normalized, entities)
	extractOrgao(normalized, entities)

	if m := reYear.FindStringSubmatch(normalized); m != nil {
		entities.Year, _ = strconv.Atoi(m[1])
	}

	if m := reAbsRange.FindStringSubmatch(normalized); m != nil {
		entities.DateRange = absoluteRange(m)
	} else if m := reLastN.FindStringSubmatch(normalized); m != nil {
		n, _ := strconv.Atoi(m[1])
		entities.DateRange = relativeRange(n, m[2], time.Now())
	}

	if m := reMonetary.FindStringSubmatch(normalized); m != nil {
		entities.MinValue = parseMonetary(m[1], m[2])
	}

	extractPersonName(query, entities)

	return entities
}

// extractPersonName looks for capitalized word runs in the raw query and
// keeps the first one that is not an institution or place name
func extractPersonName(query string, entities *Entities) {
	for _, candidate := range rePerson.FindAllString(query, -1) {
		name := trimLeadingStopWords(candidate)
		if name == "" || len(strings.Fields(name)) < 2 {
			continue
		}
		folded := normalizeQuery(name)
		if isKnownPlace(folded) || isInstitution(folded) {
			continue
		}
		entities.PersonName = name
		return
	}
}

// trimLeadingStopWords strips query keywords and connectors off the front of
// a capitalized run so "Salário de João da Silva" yields "João da Silva"
func trimLeadingStopWords(candidate string) string {
	words := strings.Fields(candidate)
	for len(words) > 0 {
		folded := normalizeQuery(words[0])
		if queryStopTerms[folded] || nameConnectors[folded] {
			words = words[1:]
			continue
		}
		break
	}
	return strings.Join(words, " ")
}

func isKnownPlace(folded string) bool {
	for name := range ufNames {
		if strings.Contains(folded, name) {
			return true
		}
	}
	return false
}

func isInstitution(folded string) bool {
	for _, term := range institutionTerms {
		if strings.Contains(folded, term) {
			return true
		}
	}
	return false
}

// absoluteRange parses "dd/mm/yyyy a dd/mm/yyyy" submatches
func absoluteRange(m []string) *DateRange {
	day1, _ := strconv.Atoi(m[1])
	month1, _ := strconv.Atoi(m[2])
	year1, _ := strconv.Atoi(m[3])
	day2, _ := strconv.Atoi(m[4])
	month2, _ := strconv.Atoi(m[5])
	year2, _ := strconv.Atoi(m[6])

	start := time.Date(year1, time.Month(month1), day1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year2, time.Month(month2), day2, 0, 0, 0, 0, time.UTC)
	if end.Before(start) {
		start, end = end, start
	}
	return &DateRange{Start: start, End: end}
}

func extractUF(normalized string, entities *Entities) {
	// Longest state name first so "mato grosso do sul" beats "mato grosso"
	longest := ""
	for name, code := range ufNames {
		if strings.Contains(normalized, name) && len(name) > len(longest) {
			longest = name
			entities.UF = code
		}
	}
	if entities.UF != "" {
		return
	}
	for _, token := range strings.Fields(normalized) {
		upper := strings.ToUpper(token)
		if ufCodes[upper] && len(token) == 2 {
			entities.UF = upper
			return
		}
	}
}

func extractOrgao(normalized string, entities *Entities) {
	for name, org := range orgaoCodes {
		if strings.Contains(normalized, name) {
			entities.OrgaoCode = org.code
			entities.OrgaoName = org.name
			return
		}
	}
}

// relativeRange resolves "últimos N dias/meses/anos" against now
func relativeRange(n int, unit string, now time.Time) *DateRange {
	end := now
	var start time.Time
	switch {
	case strings.HasPrefix(unit, "dia"):
		start = now.AddDate(0, 0, -n)
	case strings.HasPrefix(unit, "mes"):
		start = now.AddDate(0, -n, 0)
	default:
		start = now.AddDate(-n, 0, 0)
	}
	return &DateRange{Start: start, End: end}
}

// parseMonetary converts "1.500,50" plus an optional scale word to a float
func parseMonetary(number, scale string) float64 {
	// Brazilian format: dot is thousands separator, comma is decimal
	cleaned := strings.ReplaceAll(number, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	switch scale {
	case "mil":
		value *= 1_000
	case "milhao", "milhoes":
		value *= 1_000_000
	case "bilhao", "bilhoes":
		value *= 1_000_000_000
	}
	return value
}

// ValidateCPF checks the 11-digit CPF check digits (módulo 11)
func ValidateCPF(cpf string) bool {
	if len(cpf) != 11 {
		return false
	}
	digits := make([]int, 11)
	allSame := true
	for i, r := range cpf {
		if r < '0' || r > '9' {
			return false
		}
		digits[i] = int(r - '0')
		if digits[i] != digits[0] {
			allSame = false
		}
	}
	// Sequences like 111.111.111-11 pass the arithmetic but are invalid
	if allSame {
		return false
	}

	sum := 0
	for i := 0; i < 9; i++ {
		sum += digits[i] * (10 - i)
	}
	if (sum*10%11)%10 != digits[9] {
		return false
	}

	sum = 0
	for i := 0; i < 10; i++ {
		sum += digits[i] * (11 - i)
	}
	return (sum*10%11)%10 == digits[10]
}

// ValidateCNPJ checks the 14-digit CNPJ check digits
func ValidateCNPJ(cnpj string) bool {
	if len(cnpj) != 14 {
		return false
	}
	digits := make([]int, 14)
	allSame := true
	for i, r := range cnpj {
		if r < '0' || r > '9' {
			return false
		}
		digits[i] = int(r - '0')
		if digits[i] != digits[0] {
			allSame = false
		}
	}
	if allSame {
		return false
	}

	weights1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	sum := 0
	for i, w := range weights1 {
		sum += digits[i] * w
	}
	dv := 11 - sum%11
	if dv >= 10 {
		dv = 0
	}
	if dv != digits[12] {
		return false
	}

	weights2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	sum = 0
	for i, w := range weights2 {
		sum += digits[i] * w
	}
	dv = 11 - sum%11
	if dv >= 10 {
		dv = 0
	}
	return dv == digits[13]
}

// MaskCPF hides the outer digits of a CPF for logs and responses, keeping
// the middle six for disambiguation (LGPD-safe display form).
func MaskCPF(cpf string) string {
	if len(cpf) != 11 {
		return cpf
	}
	return "***." + cpf[3:6] + "." + cpf[6:9] + "-**"
}
