// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package datasus provides the DataSUS adapter for public health indicators
// served through the OpenDataSUS platform.
package datasus

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
	"estabelecimentos": {path: "/cnes/estabelecimentos", required: []string{"codigo_uf"}},
	"leitos":           {path: "/cnes/leitos", required: []string{"codigo_uf"}},
	"profissionais":    {path: "/cnes/profissionais", required: []string{"codigo_uf"}},
	"vacinacao":        {path: "/pni/coberturas", required: []string{"uf", "ano"}},
	"mortalidade":      {path: "/sim/obitos", required: []string{"uf", "ano"}},
}

// Connector is the DataSUS source adapter
type Connector struct {
	*sdk.BaseSource
}

// New creates a DataSUS adapter
func New() *Connector {
	return &Connector{BaseSource: sdk.NewBaseSource("datasus", "1.0.0")}
}

// Connect configures the unauthenticated REST client. OpenDataSUS responds
// slowly on wide queries, so the timeout default is doubled unless the
// source config overrides it.
func (c *Connector) Connect(ctx context.Context, config *base.SourceConfig) error {
	allowPrivate, _ := config.Options["allow_private_host"].(bool)
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return c.Init(config, rest.ClientConfig{
		BaseURL:          config.BaseURL,
		AuthMode:         rest.AuthNone,
		Timeout:          timeout,
		AllowPrivateHost: allowPrivate,
	})
}

// Query executes a DataSUS read
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
