// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package inep provides the INEP adapter for education census and IDEB
// indicator data.
package inep

import (
	"context"
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
	"escolas":       {path: "/censo-escolar/escolas", required: []string{"uf"}},
	"matriculas":    {path: "/censo-escolar/matriculas", required: []string{"uf", "ano"}},
	"ideb":          {path: "/ideb/resultados", required: []string{"uf"}},
	"enem":          {path: "/enem/medias", required: []string{"ano"}},
	"universidades": {path: "/censo-superior/ies", required: []string{}},
}

// Connector is the INEP source adapter
type Connector struct {
	*sdk.BaseSource
}

// New creates an INEP adapter
func New() *Connector {
	return &Connector{BaseSource: sdk.NewBaseSource("inep", "1.0.0")}
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

// Query executes an INEP read
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

	start := time.Now()
	rows, err := c.Client().Get(ctx, spec.path, params)
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
		Metadata: map[string]interface{}{"endpoint": spec.path},
	}, nil
}
