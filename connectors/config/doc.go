// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML source catalog and agent profiles, expands
// environment-variable credential references, and provides a TTL cache over
// catalog lookups.
package config
