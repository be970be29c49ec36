// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator implements the transparency query engine. It accepts
// natural-language questions in Portuguese, classifies the intent, extracts
// entities (CPF, CNPJ, órgão codes, date ranges, monetary values), selects
// the government data sources able to answer, fans the query out through the
// connector registry and aggregates the results with provenance.
//
// The package also hosts the HTTP surface: query processing, agent
// enrichment, investigation tracking, source health and Prometheus metrics.
package orchestrator
