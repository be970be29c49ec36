// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package ibge provides the IBGE adapter for locality and demographic data.
// The API is public and unauthenticated; it is mostly used to resolve
// municipality names to IBGE codes for other sources.
package ibge

import (
	"context"
	"net/url"
	"strings"
	"time"

	"cidadao/platform/connectors/base"
	"cidadao/platform/connectors/rest"
	"cidadao/platform/connectors/sdk"
)

var endpoints = map[string]string{
	"municipios":          "/v1/localidades/municipios",
	"municipios-por-uf":   "/v1/localidades/estados/{uf}/municipios",
	"estados":             "/v1/localidades/estados",
	"populacao":           "/v3/agregados/6579/periodos/-1/variaveis/9324",
	"censo-alfabetizacao": "/v3/agregados/9543/periodos/2022/variaveis/2513",
}

// Connector is the IBGE source adapter
type Connector struct {
	*sdk.BaseSource
}

// New creates an IBGE adapter
func New() *Connector {
	return &Connector{BaseSource: sdk.NewBaseSource("ibge", "1.0.0")}
}

// Connect configures the unauthenticated REST client
func (c *Connector) Connect(ctx context.Context, config *base.SourceConfig) error {
	allowPrivate, _ := config.Options["allow_private_host"].(bool)
	return c.Init(config, rest.ClientConfig{
		BaseURL:          config.BaseURL,
		AuthMode:         rest.AuthNone,
		AllowPrivateHost: allowPrivate,
	})
}

// Query executes an IBGE read. The {uf} placeholder is filled from the uf
// parameter; remaining parameters pass through as query string.
func (c *Connector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if err := c.Acquire(ctx); err != nil {
		return nil, err
	}

	path, ok := endpoints[query.Endpoint]
	if !ok {
		return nil, base.NewConnectorError(c.Name(), "Query", "unknown endpoint: "+query.Endpoint, nil)
	}

	params := sdk.StringifyParams(query.Parameters)
	if strings.Contains(path, "{uf}") {
		if err := sdk.RequireParams(c.Name(), params, "uf"); err != nil {
			return nil, err
		}
		path = strings.ReplaceAll(path, "{uf}", url.PathEscape(strings.ToLower(params["uf"])))
		delete(params, "uf")
	}

	start := time.Now()
	rows, err := c.Client().Get(ctx, path, params)
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
		Metadata: map[string]interface{}{"endpoint": path},
	}, nil
}
