// Copyright 2025 Cidadão.AI
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cidadao/platform/connectors/base"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Second
	// DefaultMaxResponseSize is the maximum response body size (10MB)
	DefaultMaxResponseSize = 10 * 1024 * 1024
	// DefaultMaxRetries is the default number of retry attempts
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the initial delay between retries
	DefaultRetryDelay = 100 * time.Millisecond
	// MaxRetryDelay is the maximum delay between retries
	MaxRetryDelay = 5 * time.Second
)

// AuthMode selects how credentials are injected into upstream requests
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthHeader AuthMode = "header" // API key in a named header (Portal da Transparência)
	AuthBearer AuthMode = "bearer" // OAuth-style bearer token
	AuthQuery  AuthMode = "query"  // API key as a query parameter
)

// ClientConfig configures the hardened REST client shared by all adapters
type ClientConfig struct {
	SourceName       string
	BaseURL          string
	AuthMode         AuthMode
	AuthKey          string            // Credential value
	AuthName         string            // Header or query parameter name for the key
	Headers          map[string]string // Extra headers applied on every request
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	MaxResponseSize  int64
	AllowPrivateHost bool // Disable SSRF guard (local/test targets only)
}

// Client is an HTTP client hardened for calling public government APIs:
// retry with exponential backoff on transient statuses, response size caps,
// TLS >= 1.2 and a private-address guard.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient validates the configuration and builds the client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, base.NewConnectorError(cfg.SourceName, "Connect", "base_url is required", nil)
	}

	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, base.NewConnectorError(cfg.SourceName, "Connect", "invalid base_url", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, base.NewConnectorError(cfg.SourceName, "Connect", "base_url must use http or https scheme", nil)
	}

	if !cfg.AllowPrivateHost {
		if err := validateHost(parsed.Hostname()); err != nil {
			return nil, base.NewConnectorError(cfg.SourceName, "Connect", "private host rejected", err)
		}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = DefaultMaxResponseSize
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: log.New(os.Stdout, fmt.Sprintf("[SOURCE_%s] ", strings.ToUpper(cfg.SourceName)), log.LstdFlags),
	}, nil
}

// SetAuthKey swaps the credential at runtime. Used by the Portal adapter to
// rotate to the fallback API key after a 403.
func (c *Client) SetAuthKey(key string) {
	c.cfg.AuthKey = key
}

// BaseURL returns the configured upstream root
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// Timeout returns the per-request deadline in effect
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// Get issues a GET against path with the given query parameters and returns
// the parsed JSON rows. Transient upstream statuses (408/429/5xx) are retried
// with exponential backoff; terminal non-2xx statuses surface as
// *base.UpstreamError wrapped in a ConnectorError.
func (c *Client) Get(ctx context.Context, path string, params map[string]string) ([]map[string]interface{}, error) {
	body, err := c.GetRaw(ctx, path, params)
	if err != nil {
		return nil, err
	}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Some state portals answer CSV or HTML error pages with HTTP 200
		return []map[string]interface{}{{"response": string(body)}}, nil
	}
	return convertToRows(parsed), nil
}

// GetRaw issues a GET and returns the raw response body
func (c *Client) GetRaw(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	reqURL, err := url.Parse(c.cfg.BaseURL + path)
	if err != nil {
		return nil, base.NewConnectorError(c.cfg.SourceName, "Query", "invalid endpoint path", err)
	}

	values := url.Values{}
	for key, val := range params {
		values.Set(key, val)
	}
	if c.cfg.AuthMode == AuthQuery && c.cfg.AuthKey != "" {
		values.Set(c.authParamName(), c.cfg.AuthKey)
	}
	if len(values) > 0 {
		reqURL.RawQuery = values.Encode()
	}

	var lastErr error
	var resp *http.Response

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Printf("retry %d/%d for %s after %v", attempt, c.cfg.MaxRetries, path, delay)

			select {
			case <-ctx.Done():
				return nil, base.NewConnectorError(c.cfg.SourceName, "Query", "context cancelled during retry", ctx.Err())
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
		if err != nil {
			return nil, base.NewConnectorError(c.cfg.SourceName, "Query", "failed to create request", err)
		}
		c.applyAuth(req)
		c.applyHeaders(req)

		resp, lastErr = c.httpClient.Do(req)
		if lastErr == nil && !isRetryableStatus(resp.StatusCode) {
			break
		}

		if resp != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
		}
		if lastErr == nil {
			lastErr = &base.UpstreamError{StatusCode: resp.StatusCode}
		}
	}

	if lastErr != nil {
		return nil, base.NewConnectorError(c.cfg.SourceName, "Query", "request failed after retries", lastErr)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxResponseSize+1))
	if err != nil {
		return nil, base.NewConnectorError(c.cfg.SourceName, "Query", "failed to read response", err)
	}
	if int64(len(body)) > c.cfg.MaxResponseSize {
		return nil, base.NewConnectorError(c.cfg.SourceName, "Query",
			fmt.Sprintf("response size exceeds limit of %d bytes", c.cfg.MaxResponseSize), nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return nil, base.NewConnectorError(c.cfg.SourceName, "Query", "upstream rejected request",
			&base.UpstreamError{StatusCode: resp.StatusCode, Body: msg})
	}

	return body, nil
}

// Probe issues an unauthenticated-tolerant GET used by health checks and
// reports reachability plus latency. 4xx still counts as reachable.
func (c *Client) Probe(ctx context.Context, path string) (*base.HealthStatus, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Timestamp: time.Now(), Error: err.Error()}, nil
	}
	c.applyAuth(req)
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Latency: latency, Timestamp: time.Now(), Error: err.Error()}, nil
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return &base.HealthStatus{
		Healthy:   resp.StatusCode < 500,
		Latency:   latency,
		Timestamp: time.Now(),
		Details: map[string]string{
			"base_url":    c.cfg.BaseURL,
			"status_code": fmt.Sprintf("%d", resp.StatusCode),
		},
	}, nil
}

// Close releases idle upstream connections
func (c *Client) Close() {
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func (c *Client) authParamName() string {
	if c.cfg.AuthName != "" {
		return c.cfg.AuthName
	}
	return "api_key"
}

func (c *Client) applyAuth(req *http.Request) {
	if c.cfg.AuthKey == "" {
		return
	}
	switch c.cfg.AuthMode {
	case AuthHeader:
		name := c.cfg.AuthName
		if name == "" {
			name = "X-API-Key"
		}
		req.Header.Set(name, c.cfg.AuthKey)
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+c.cfg.AuthKey)
	case AuthQuery, AuthNone:
		// Query-mode auth is applied during URL construction
	}
}

func (c *Client) applyHeaders(req *http.Request) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "CidadaoAI-Source-Client/1.0")
	}
	for key, val := range c.cfg.Headers {
		req.Header.Set(key, val)
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > MaxRetryDelay {
		delay = MaxRetryDelay
	}
	return delay
}

// convertToRows normalizes an upstream JSON document into row maps. Arrays
// become one row per element; objects become a single row.
func convertToRows(parsed interface{}) []map[string]interface{} {
	switch v := parsed.(type) {
	case []interface{}:
		rows := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if itemMap, ok := item.(map[string]interface{}); ok {
				rows = append(rows, itemMap)
			} else {
				rows = append(rows, map[string]interface{}{"value": item})
			}
		}
		return rows
	case map[string]interface{}:
		return []map[string]interface{}{v}
	default:
		return []map[string]interface{}{{"value": v}}
	}
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// validateHost rejects hosts that resolve to private or reserved addresses
func validateHost(host string) error {
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve host %s: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("connection to private IP %s is not allowed (host: %s)", ip, host)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 169 && ip4[1] == 254 {
			return true
		}
	}
	return false
}
