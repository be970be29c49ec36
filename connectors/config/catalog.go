// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cidadao/platform/connectors/base"
)

// Catalog is the YAML-backed description of every government data source
// and agent profile the service knows about.
type Catalog struct {
	Sources []*base.SourceConfig `yaml:"sources"`
	Agents  []*AgentProfile      `yaml:"agents"`
}

// AgentProfile describes one named analysis persona. Personas are pure
// configuration: a label, the data categories the persona cares about and
// an optional forced intent for ambiguous queries.
type AgentProfile struct {
	Name        string   `yaml:"name" json:"name"`
	DisplayName string   `yaml:"display_name" json:"display_name"`
	Domain      string   `yaml:"domain" json:"domain"`
	Categories  []string `yaml:"categories" json:"categories"`
	Intent      string   `yaml:"intent,omitempty" json:"intent,omitempty"`
}

// LoadCatalog reads and validates a catalog file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates catalog YAML
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]bool)
	for i, src := range catalog.Sources {
		if src.Name == "" {
			return nil, fmt.Errorf("source %d: name is required", i)
		}
		if seen[src.Name] {
			return nil, fmt.Errorf("source %q declared twice", src.Name)
		}
		seen[src.Name] = true
		if src.Type == "" {
			return nil, fmt.Errorf("source %q: type is required", src.Name)
		}
		if src.BaseURL == "" {
			return nil, fmt.Errorf("source %q: base_url is required", src.Name)
		}
		if src.Jurisdiction == "" {
			src.Jurisdiction = "federal"
		}
		if src.Timeout == 0 {
			src.Timeout = 30 * time.Second
		}
		expandCredentials(src)
	}

	seenAgents := make(map[string]bool)
	for i, agent := range catalog.Agents {
		if agent.Name == "" {
			return nil, fmt.Errorf("agent %d: name is required", i)
		}
		if seenAgents[agent.Name] {
			return nil, fmt.Errorf("agent %q declared twice", agent.Name)
		}
		seenAgents[agent.Name] = true
	}

	return &catalog, nil
}

// expandCredentials resolves ${ENV_VAR} references in credential values so
// API keys never live in the catalog file itself.
func expandCredentials(src *base.SourceConfig) {
	for key, val := range src.Credentials {
		if len(val) > 3 && val[0] == '$' && val[1] == '{' && val[len(val)-1] == '}' {
			src.Credentials[key] = os.Getenv(val[2 : len(val)-1])
		}
	}
}

// AgentByName finds an agent profile
func (c *Catalog) AgentByName(name string) (*AgentProfile, bool) {
	for _, agent := range c.Agents {
		if agent.Name == name {
			return agent, true
		}
	}
	return nil, false
}

// DefaultCatalog returns the built-in federal source set used when no
// catalog file is provided. State portals are file-only because their CKAN
// endpoints vary per deployment.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Sources: []*base.SourceConfig{
			{
				Name:         "portal-federal",
				Type:         "portal",
				Jurisdiction: "federal",
				Categories:   []string{"contracts", "salaries", "expenses", "servants"},
				BaseURL:      "https://api.portaldatransparencia.gov.br/api-de-dados",
				Credentials: map[string]string{
					"api_key":          os.Getenv("TRANSPARENCIA_API_KEY"),
					"api_key_fallback": os.Getenv("TRANSPARENCIA_API_KEY_FALLBACK"),
				},
				Timeout:    30 * time.Second,
				MaxRetries: 3,
				Priority:   10,
			},
			{
				Name:         "pncp-federal",
				Type:         "pncp",
				Jurisdiction: "federal",
				Categories:   []string{"bidding", "contracts"},
				BaseURL:      "https://pncp.gov.br/api/consulta",
				Timeout:      30 * time.Second,
				MaxRetries:   3,
				Priority:     20,
			},
			{
				Name:         "ibge",
				Type:         "ibge",
				Jurisdiction: "federal",
				Categories:   []string{"demographics", "localities"},
				BaseURL:      "https://servicodados.ibge.gov.br/api",
				Options:      map[string]interface{}{"health_path": "/v1/localidades/regioes"},
				Timeout:      15 * time.Second,
				MaxRetries:   2,
				Priority:     30,
			},
			{
				Name:         "siconfi",
				Type:         "siconfi",
				Jurisdiction: "federal",
				Categories:   []string{"fiscal"},
				BaseURL:      "https://apidatalake.tesouro.gov.br/ords/siconfi/tt",
				Timeout:      30 * time.Second,
				MaxRetries:   2,
				Priority:     20,
			},
			{
				Name:         "datasus",
				Type:         "datasus",
				Jurisdiction: "federal",
				Categories:   []string{"health"},
				BaseURL:      "https://apidadosabertos.saude.gov.br",
				Timeout:      30 * time.Second,
				MaxRetries:   2,
				Priority:     20,
			},
			{
				Name:         "inep",
				Type:         "inep",
				Jurisdiction: "federal",
				Categories:   []string{"education"},
				BaseURL:      "https://api.inep.gov.br/dados-abertos",
				Timeout:      30 * time.Second,
				MaxRetries:   2,
				Priority:     20,
			},
			{
				Name:         "camara",
				Type:         "camara",
				Jurisdiction: "federal",
				Categories:   []string{"legislative", "expenses"},
				BaseURL:      "https://dadosabertos.camara.leg.br/api/v2",
				Timeout:      30 * time.Second,
				MaxRetries:   2,
				Priority:     40,
			},
		},
		Agents: []*AgentProfile{
			{Name: "zumbi", DisplayName: "Zumbi", Domain: "anomaly investigation", Categories: []string{"contracts", "expenses"}},
			{Name: "tiradentes", DisplayName: "Tiradentes", Domain: "public procurement", Categories: []string{"bidding", "contracts"}, Intent: "bidding_search"},
			{Name: "anita", DisplayName: "Anita", Domain: "fiscal analysis", Categories: []string{"fiscal"}, Intent: "fiscal_report"},
			{Name: "oswaldo", DisplayName: "Oswaldo", Domain: "public health", Categories: []string{"health"}, Intent: "health_stats"},
			{Name: "drummond", DisplayName: "Drummond", Domain: "general transparency", Categories: []string{"contracts", "salaries", "expenses"}},
		},
	}
}
