// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"testing"
	"time"
)

func TestValidateCPF(t *testing.T) {
	tests := []struct {
		cpf   string
		valid bool
	}{
		{"52998224725", true},
		{"52998224724", false}, // wrong check digit
		{"11111111111", false}, // repeated digits
		{"123", false},
		{"5299822472a", false},
	}
	for _, tt := range tests {
		if got := ValidateCPF(tt.cpf); got != tt.valid {
			t.Errorf("ValidateCPF(%q) = %v, want %v", tt.cpf, got, tt.valid)
		}
	}
}

func TestValidateCNPJ(t *testing.T) {
	tests := []struct {
		cnpj  string
		valid bool
	}{
		{"11222333000181", true},
		{"11222333000182", false},
		{"00000000000000", false},
		{"112223330001", false},
	}
	for _, tt := range tests {
		if got := ValidateCNPJ(tt.cnpj); got != tt.valid {
			t.Errorf("ValidateCNPJ(%q) = %v, want %v", tt.cnpj, got, tt.valid)
		}
	}
}

func TestMaskCPF(t *testing.T) {
	if got := MaskCPF("52998224725"); got != "***.982.247-**" {
		t.Errorf("MaskCPF = %q", got)
	}
}

func TestExtractEntities_CPF(t *testing.T) {
	e := ExtractEntities("Salário do servidor com CPF 529.982.247-25")
	if e.CPF != "52998224725" {
		t.Errorf("CPF = %q", e.CPF)
	}
	if e.CPFMasked != "***.982.247-**" {
		t.Errorf("CPFMasked = %q", e.CPFMasked)
	}
}

func TestExtractEntities_InvalidCPFDiscarded(t *testing.T) {
	e := ExtractEntities("CPF 111.111.111-11 por favor")
	if e.CPF != "" {
		t.Errorf("invalid CPF must be discarded, got %q", e.CPF)
	}
}

func TestExtractEntities_CNPJ(t *testing.T) {
	e := ExtractEntities("Contratos da empresa 11.222.333/0001-81")
	if e.CNPJ != "11222333000181" {
		t.Errorf("CNPJ = %q", e.CNPJ)
	}
	if e.CPF != "" {
		t.Errorf("CNPJ digits must not also match as CPF, got %q", e.CPF)
	}
}

func TestExtractEntities_UFFromStateName(t *testing.T) {
	tests := []struct {
		query string
		uf    string
	}{
		{"licitações em São Paulo", "SP"},
		{"despesas de Minas Gerais", "MG"},
		{"contratos no Mato Grosso do Sul", "MS"},
		{"escolas do Mato Grosso", "MT"},
		{"hospitais no RJ", "RJ"},
	}
	for _, tt := range tests {
		e := ExtractEntities(tt.query)
		if e.UF != tt.uf {
			t.Errorf("ExtractEntities(%q).UF = %q, want %q", tt.query, e.UF, tt.uf)
		}
	}
}

func TestExtractEntities_Orgao(t *testing.T) {
	e := ExtractEntities("Contratos do Ministério da Saúde em 2025")
	if e.OrgaoCode != "36000" {
		t.Errorf("OrgaoCode = %q", e.OrgaoCode)
	}
	if e.Year != 2025 {
		t.Errorf("Year = %d", e.Year)
	}
}

func TestExtractEntities_MonetaryThreshold(t *testing.T) {
	tests := []struct {
		query string
		want  float64
	}{
		{"contratos acima de R$ 1 milhão", 1_000_000},
		{"despesas acima de 500 mil", 500_000},
		{"pagamentos maiores que R$ 1.500,50", 1500.50},
		{"gastos acima de 2 bilhões", 2_000_000_000},
	}
	for _, tt := range tests {
		e := ExtractEntities(tt.query)
		if e.MinValue != tt.want {
			t.Errorf("ExtractEntities(%q).MinValue = %f, want %f", tt.query, e.MinValue, tt.want)
		}
	}
}

func TestRelativeRange(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	months := relativeRange(6, "meses", now)
	if months.Start != now.AddDate(0, -6, 0) || months.End != now {
		t.Errorf("6 meses = %v", months)
	}

	days := relativeRange(30, "dias", now)
	if days.Start != now.AddDate(0, 0, -30) {
		t.Errorf("30 dias start = %v", days.Start)
	}

	years := relativeRange(2, "anos", now)
	if years.Start != now.AddDate(-2, 0, 0) {
		t.Errorf("2 anos start = %v", years.Start)
	}
}

func TestExtractEntities_LastNMonths(t *testing.T) {
	e := ExtractEntities("gastos dos últimos 6 meses")
	if e.DateRange == nil {
		t.Fatal("DateRange = nil")
	}
	gap := e.DateRange.End.Sub(e.DateRange.Start)
	if gap < 170*24*time.Hour || gap > 190*24*time.Hour {
		t.Errorf("range span = %v, want about 6 months", gap)
	}
}

func TestExtractEntities_AbsoluteDateRange(t *testing.T) {
	e := ExtractEntities("contratos de 01/01/2025 a 31/03/2025")
	if e.DateRange == nil {
		t.Fatal("DateRange = nil")
	}
	if e.DateRange.Start != time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("Start = %v", e.DateRange.Start)
	}
	if e.DateRange.End != time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC) {
		t.Errorf("End = %v", e.DateRange.End)
	}
}

func TestExtractEntities_AbsoluteDateRangeInverted(t *testing.T) {
	e := ExtractEntities("despesas de 31/03/2025 a 01/01/2025")
	if e.DateRange == nil {
		t.Fatal("DateRange = nil")
	}
	if e.DateRange.Start.After(e.DateRange.End) {
		t.Errorf("inverted range not normalized: %v .. %v", e.DateRange.Start, e.DateRange.End)
	}
}

func TestExtractEntities_PersonName(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"Salário de João da Silva", "João da Silva"},
		{"despesas de Maria Souza em 2024", "Maria Souza"},
		{"Gastos do Ministério da Educação", ""},
		{"licitações em São Paulo", ""},
	}
	for _, tt := range tests {
		e := ExtractEntities(tt.query)
		if e.PersonName != tt.want {
			t.Errorf("ExtractEntities(%q).PersonName = %q, want %q", tt.query, e.PersonName, tt.want)
		}
	}
}

func TestExtractEntities_NothingFound(t *testing.T) {
	e := ExtractEntities("transparência")
	if e.CPF != "" || e.CNPJ != "" || e.UF != "" || e.Year != 0 || e.MinValue != 0 || e.DateRange != nil {
		t.Errorf("expected empty entities, got %+v", e)
	}
}
