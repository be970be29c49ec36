// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package pncp provides the PNCP (Portal Nacional de Contratações Públicas)
// adapter for procurement and contract data. The upstream caps date ranges
// at 30 days, so wider ranges are split into windows and merged client-side.
package pncp

import (
	"context"
	"time"

	"cidadao/platform/connectors/base"
	"cidadao/platform/connectors/rest"
	"cidadao/platform/connectors/sdk"
)

const (
	// dateLayout is the compact form PNCP expects (yyyyMMdd)
	dateLayout = "20060102"
	// maxWindowDays is the upstream's hard cap on one date range
	maxWindowDays = 30
	// maxWindows bounds fan-out for very wide ranges
	maxWindows = 6
)

var endpoints = map[string]string{
	"contratos":   "/v1/contratos",
	"contratacao": "/v1/contratacoes/publicacao",
	"atas":        "/v1/atas",
}

// Connector is the PNCP source adapter
type Connector struct {
	*sdk.BaseSource
}

// New creates a PNCP adapter
func New() *Connector {
	return &Connector{BaseSource: sdk.NewBaseSource("pncp", "1.0.0")}
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

// Query executes a PNCP read, splitting the requested date range into
// 30-day windows when necessary.
func (c *Connector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if err := c.Acquire(ctx); err != nil {
		return nil, err
	}

	path, ok := endpoints[query.Endpoint]
	if !ok {
		return nil, base.NewConnectorError(c.Name(), "Query", "unknown endpoint: "+query.Endpoint, nil)
	}

	params := sdk.StringifyParams(query.Parameters)
	if err := sdk.RequireParams(c.Name(), params, "dataInicial", "dataFinal"); err != nil {
		return nil, err
	}

	windows, err := splitRange(params["dataInicial"], params["dataFinal"])
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "invalid date range", err)
	}

	start := time.Now()
	var rows []map[string]interface{}
	for _, w := range windows {
		params["dataInicial"] = w.start.Format(dateLayout)
		params["dataFinal"] = w.end.Format(dateLayout)
		if params["pagina"] == "" {
			params["pagina"] = "1"
		}

		windowRows, err := c.Client().Get(ctx, path, params)
		if err != nil {
			c.RecordQuery(time.Since(start), err)
			return nil, err
		}
		rows = append(rows, windowRows...)

		if query.Limit > 0 && len(rows) >= query.Limit {
			rows = rows[:query.Limit]
			break
		}
	}
	duration := time.Since(start)
	c.RecordQuery(duration, nil)

	return &base.QueryResult{
		Rows:     rows,
		RowCount: len(rows),
		Duration: duration,
		Source:   c.Name(),
		Metadata: map[string]interface{}{"endpoint": path, "windows": len(windows)},
	}, nil
}

type window struct {
	start, end time.Time
}

// splitRange cuts [from, to] into windows no wider than the upstream cap.
// Ranges wider than maxWindows*30 days are truncated from the start, newest
// data first being the common request.
func splitRange(from, to string) ([]window, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return nil, err
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		start, end = end, start
	}

	var windows []window
	cursor := end
	for cursor.After(start) || cursor.Equal(start) {
		winStart := cursor.AddDate(0, 0, -(maxWindowDays - 1))
		if winStart.Before(start) {
			winStart = start
		}
		windows = append(windows, window{start: winStart, end: cursor})
		if len(windows) == maxWindows {
			break
		}
		cursor = winStart.AddDate(0, 0, -1)
	}
	return windows, nil
}
