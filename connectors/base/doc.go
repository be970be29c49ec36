// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package base defines the Connector interface and the shared types used by
// every government data source adapter: source configuration, queries,
// results, health status and the error types the orchestrator inspects when
// deciding between retry, key rotation and fallback.
package base
