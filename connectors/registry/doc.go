// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package registry keeps the catalog of government data sources: which
// adapter serves which jurisdiction and data category, with optional
// PostgreSQL persistence so orchestrator replicas share one catalog.
package registry
