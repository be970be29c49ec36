// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package ckan provides a generic adapter for CKAN-based open data portals.
// Several Brazilian states and municipalities publish transparency data
// through CKAN instances, so one adapter type covers many sources; the
// portal's base URL comes from the source config.
package ckan

import (
	"context"
	"strconv"
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
	"package-search":   {path: "/api/3/action/package_search", required: []string{"q"}},
	"package-show":     {path: "/api/3/action/package_show", required: []string{"id"}},
	"datastore-search": {path: "/api/3/action/datastore_search", required: []string{"resource_id"}},
	"organization":     {path: "/api/3/action/organization_list", required: []string{}},
}

// Connector is a CKAN portal source adapter
type Connector struct {
	*sdk.BaseSource
}

// New creates a CKAN adapter
func New() *Connector {
	return &Connector{BaseSource: sdk.NewBaseSource("ckan", "1.0.0")}
}

// Connect configures the REST client. A CKAN API token is optional; when
// credentials carry one it is sent in the Authorization header.
func (c *Connector) Connect(ctx context.Context, config *base.SourceConfig) error {
	allowPrivate, _ := config.Options["allow_private_host"].(bool)
	cfg := rest.ClientConfig{
		BaseURL:          config.BaseURL,
		AuthMode:         rest.AuthNone,
		AllowPrivateHost: allowPrivate,
	}
	if token := config.Credentials["api_token"]; token != "" {
		cfg.AuthMode = rest.AuthHeader
		cfg.AuthName = "Authorization"
		cfg.AuthKey = token
	}
	return c.Init(config, cfg)
}

// Query executes a CKAN action and unwraps the {"success": true, "result":
// ...} envelope into plain rows.
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
	if query.Limit > 0 && params["rows"] == "" && params["limit"] == "" {
		params["rows"] = strconv.Itoa(query.Limit)
	}

	start := time.Now()
	rows, err := c.Client().Get(ctx, spec.path, params)
	duration := time.Since(start)
	c.RecordQuery(duration, err)
	if err != nil {
		return nil, err
	}

	rows, err = unwrapAction(c.Name(), rows)
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

// unwrapAction peels the CKAN action envelope. package_search nests results
// under result.results, datastore_search under result.records; other actions
// return the result value directly.
func unwrapAction(source string, rows []map[string]interface{}) ([]map[string]interface{}, error) {
	if len(rows) != 1 {
		return rows, nil
	}
	envelope := rows[0]

	if success, ok := envelope["success"].(bool); ok && !success {
		return nil, base.NewConnectorError(source, "Query", "action reported failure", nil)
	}
	result, ok := envelope["result"]
	if !ok {
		return rows, nil
	}

	switch v := result.(type) {
	case map[string]interface{}:
		for _, key := range []string{"results", "records"} {
			if list, ok := v[key].([]interface{}); ok {
				return toRows(list), nil
			}
		}
		return []map[string]interface{}{v}, nil
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			} else {
				out = append(out, map[string]interface{}{"value": item})
			}
		}
		return out, nil
	default:
		return rows, nil
	}
}

func toRows(list []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
