// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package logger provides structured JSON logging for platform components.
// Entries carry the component name, hostname and the request ID of the
// citizen query being served, so one query can be traced across the
// orchestrator and the source adapters.
package logger
