// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

// Package types provides shared type definitions used across platform
// components. This file defines the runtime profile that controls auth and
// rate limiting for public vs internal deployments.
package types

// RuntimeMode represents the deployment profile
type RuntimeMode string

const (
	// RuntimeModePublic is the internet-facing profile: JWT auth and per
	// caller rate limiting are enforced.
	RuntimeModePublic RuntimeMode = "public"
	// RuntimeModeInternal is for trusted-network deployments behind an API
	// gateway that already authenticates callers.
	RuntimeModeInternal RuntimeMode = "internal"
)

// String returns the string representation of the RuntimeMode
func (m RuntimeMode) String() string {
	return string(m)
}

// IsValid returns true if the RuntimeMode is a known value
func (m RuntimeMode) IsValid() bool {
	switch m {
	case RuntimeModePublic, RuntimeModeInternal:
		return true
	default:
		return false
	}
}

// RuntimeConfig carries profile-specific switches read once at startup
type RuntimeConfig struct {
	// Mode is the deployment profile (public or internal)
	Mode RuntimeMode `json:"mode"`

	// EnforceAuth requires a valid JWT on every API request
	EnforceAuth bool `json:"enforce_auth"`

	// EnforceRateLimit applies the per-caller sliding window limit
	EnforceRateLimit bool `json:"enforce_rate_limit"`

	// ExposeDebugRoutes enables registry inspection endpoints
	ExposeDebugRoutes bool `json:"expose_debug_routes"`
}

// DefaultPublicConfig returns the profile for internet-facing deployments
func DefaultPublicConfig() RuntimeConfig {
	return RuntimeConfig{
		Mode:              RuntimeModePublic,
		EnforceAuth:       true,
		EnforceRateLimit:  true,
		ExposeDebugRoutes: false,
	}
}

// DefaultInternalConfig returns the profile for trusted-network deployments
func DefaultInternalConfig() RuntimeConfig {
	return RuntimeConfig{
		Mode:              RuntimeModeInternal,
		EnforceAuth:       false,
		EnforceRateLimit:  false,
		ExposeDebugRoutes: true,
	}
}

// ForMode maps a mode string to its default profile. Unknown values fall
// back to the public profile, the safer default.
func ForMode(mode string) RuntimeConfig {
	if RuntimeMode(mode) == RuntimeModeInternal {
		return DefaultInternalConfig()
	}
	return DefaultPublicConfig()
}

// IsPublic returns true for the internet-facing profile
func (c RuntimeConfig) IsPublic() bool {
	return c.Mode == RuntimeModePublic
}

// IsInternal returns true for the trusted-network profile
func (c RuntimeConfig) IsInternal() bool {
	return c.Mode == RuntimeModeInternal
}
