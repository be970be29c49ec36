// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package camara provides the Câmara dos Deputados adapter for legislative
// activity: deputies, their office expenses (cota parlamentar), bills and
// votes. Responses come wrapped in a {"dados": [...]} envelope.
package camara

import (
	"context"
	"net/url"
	"strings"
	"time"

	"cidadao/platform/connectors/base"
	"cidadao/platform/connectors/rest"
	"cidadao/platform/connectors/sdk"
)

type endpointSpec struct {
	path     string
	required []string
}

var endpoints = map[string]endpointSpec{
	"deputados":          {path: "/deputados", required: []string{}},
	"deputado-despesas":  {path: "/deputados/{id}/despesas", required: []string{"id"}},
	"deputado-discursos": {path: "/deputados/{id}/discursos", required: []string{"id"}},
	"proposicoes":        {path: "/proposicoes", required: []string{}},
	"votacoes":           {path: "/votacoes", required: []string{}},
}

// Connector is the Câmara dos Deputados source adapter
type Connector struct {
	*sdk.BaseSource
}

// New creates a Câmara adapter
func New() *Connector {
	return &Connector{BaseSource: sdk.NewBaseSource("camara", "1.0.0")}
}

// Connect configures the unauthenticated REST client
func (c *Connector) Connect(ctx context.Context, config *base.SourceConfig) error {
	allowPrivate, _ := config.Options["allow_private_host"].(bool)
	return c.Init(config, rest.ClientConfig{
		BaseURL:          config.BaseURL,
		AuthMode:         rest.AuthNone,
		Headers:          map[string]string{"Accept": "application/json"},
		AllowPrivateHost: allowPrivate,
	})
}

// Query executes a Câmara read. The {id} placeholder is filled from the id
// parameter and stripped from the query string.
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

	path := spec.path
	if strings.Contains(path, "{id}") {
		path = strings.ReplaceAll(path, "{id}", url.PathEscape(params["id"]))
		delete(params, "id")
	}

	start := time.Now()
	rows, err := c.Client().Get(ctx, path, params)
	duration := time.Since(start)
	c.RecordQuery(duration, err)
	if err != nil {
		return nil, err
	}

	rows = unwrapDados(rows)
	if query.Limit > 0 && len(rows) > query.Limit {
		rows = rows[:query.Limit]
	}

	return &base.QueryResult{
		Rows:     rows,
		RowCount: len(rows),
		Duration: duration,
		Source:   c.Name(),
		Metadata: map[string]interface{}{"endpoint": path},
	}, nil
}

// unwrapDados flattens the {"dados": [...]} envelope when present
func unwrapDados(rows []map[string]interface{}) []map[string]interface{} {
	if len(rows) != 1 {
		return rows
	}
	dados, ok := rows[0]["dados"].([]interface{})
	if !ok {
		return rows
	}
	out := make([]map[string]interface{}, 0, len(dados))
	for _, item := range dados {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
