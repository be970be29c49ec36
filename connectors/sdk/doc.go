// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package sdk provides the shared scaffolding for building source adapters:
// a BaseSource with lifecycle management, per-source rate limiting and
// lightweight metrics. Adapters embed BaseSource and implement Query with
// their source-specific endpoint and parameter rules.
package sdk
