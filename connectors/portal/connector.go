// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package portal provides the Portal da Transparência adapter, the primary
// federal data source. Access requires the chave-api-dados header; the
// adapter rotates to a fallback key when the upstream answers 403.
package portal

import (
	"context"
	"errors"
	"sync"
	"time"

	"cidadao/platform/connectors/base"
	"cidadao/platform/connectors/rest"
	"cidadao/platform/connectors/sdk"
)

// endpointSpec describes one Portal da Transparência endpoint and its
// mandatory query parameters.
type endpointSpec struct {
	path     string
	required []string
}

// The portal rejects broad queries outright: contract and expense lookups
// are only served per organ (codigoOrgao).
var endpoints = map[string]endpointSpec{
	"contratos":  {path: "/contratos", required: []string{"codigoOrgao"}},
	"despesas":   {path: "/despesas/por-orgao", required: []string{"codigoOrgao", "anoExercicio"}},
	"servidores": {path: "/servidores", required: []string{}},
	"viagens":    {path: "/viagens", required: []string{"codigoOrgao", "dataIdaDe", "dataIdaAte"}},
	"licitacoes": {path: "/licitacoes", required: []string{"codigoOrgao", "dataInicial", "dataFinal"}},
}

// Connector is the Portal da Transparência source adapter
type Connector struct {
	*sdk.BaseSource

	fallbackKey string
	rotated     bool
	mu          sync.Mutex
}

// New creates a Portal da Transparência adapter
func New() *Connector {
	return &Connector{BaseSource: sdk.NewBaseSource("portal", "1.0.0")}
}

// Connect configures the REST client with header-based API key auth
func (c *Connector) Connect(ctx context.Context, config *base.SourceConfig) error {
	apiKey := config.Credentials["api_key"]
	if apiKey == "" {
		return base.NewConnectorError(config.Name, "Connect", "credential api_key is required", nil)
	}
	c.fallbackKey = config.Credentials["api_key_fallback"]

	allowPrivate, _ := config.Options["allow_private_host"].(bool)
	return c.Init(config, rest.ClientConfig{
		BaseURL:          config.BaseURL,
		AuthMode:         rest.AuthHeader,
		AuthName:         "chave-api-dados",
		AuthKey:          apiKey,
		AllowPrivateHost: allowPrivate,
	})
}

// Query executes one read against a portal endpoint. A 403 triggers a single
// rotation to the fallback key before the error propagates to the selector.
func (c *Connector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if err := c.Acquire(ctx); err != nil {
		return nil, err
	}

	spec, ok := endpoints[query.Endpoint]
	if !ok {
		return nil, base.NewConnectorError(c.Name(), "Query", "unknown endpoint: "+query.Endpoint, nil)
	}

	params := sdk.StringifyParams(query.Parameters)
	if err := sdk.RequireParams(c.Name(), params, spec.required...); err != nil {
		return nil, err
	}
	if params["pagina"] == "" {
		params["pagina"] = "1"
	}

	start := time.Now()
	rows, err := c.Client().Get(ctx, spec.path, params)
	if err != nil && c.shouldRotateKey(err) {
		c.Client().SetAuthKey(c.fallbackKey)
		rows, err = c.Client().Get(ctx, spec.path, params)
	}
	duration := time.Since(start)
	c.RecordQuery(duration, err)
	if err != nil {
		return nil, err
	}

	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}

	return &base.QueryResult{
		Rows:     rows,
		RowCount: len(rows),
		Duration: duration,
		Source:   c.Name(),
		Metadata: map[string]interface{}{"endpoint": spec.path, "pagina": params["pagina"]},
	}, nil
}

// shouldRotateKey reports whether the error is a 403 that a fallback key
// could fix; the rotation happens at most once per adapter lifetime.
func (c *Connector) shouldRotateKey(err error) bool {
	var upstream *base.UpstreamError
	if !errors.As(err, &upstream) || !upstream.IsAccessDenied() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rotated || c.fallbackKey == "" {
		return false
	}
	c.rotated = true
	return true
}

// Endpoints lists the endpoint keys this adapter serves
func Endpoints() []string {
	keys := make([]string, 0, len(endpoints))
	for key := range endpoints {
		keys = append(keys, key)
	}
	return keys
}
