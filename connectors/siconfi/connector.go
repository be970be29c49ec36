// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package siconfi provides the SICONFI adapter for fiscal reports (RREO and
// RGF) published by the National Treasury. Every endpoint demands the ente
// identifier and the reporting period.
package siconfi

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
	"rreo":    {path: "/rreo", required: []string{"id_ente", "an_exercicio", "nr_periodo"}},
	"rgf":     {path: "/rgf", required: []string{"id_ente", "an_exercicio", "nr_periodo", "co_poder"}},
	"dca":     {path: "/dca", required: []string{"id_ente", "an_exercicio"}},
	"entes":   {path: "/entes", required: []string{}},
	"extrato": {path: "/extrato_entregas", required: []string{"id_ente"}},
}

// Connector is the SICONFI source adapter
type Connector struct {
	*sdk.BaseSource
}

// New creates a SICONFI adapter
func New() *Connector {
	return &Connector{BaseSource: sdk.NewBaseSource("siconfi", "1.0.0")}
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

// Query executes a SICONFI read. Results arrive wrapped in an ORDS envelope
// ({"items": [...]}); the adapter unwraps it to plain rows.
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

	rows = unwrapItems(rows)
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

// unwrapItems flattens the ORDS envelope when present
func unwrapItems(rows []map[string]interface{}) []map[string]interface{} {
	if len(rows) != 1 {
		return rows
	}
	items, ok := rows[0]["items"].([]interface{})
	if !ok {
		return rows
	}
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
