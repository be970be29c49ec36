// Copyright 2025 Cidadão.AI
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"cidadao/platform/shared/logger"
	"cidadao/platform/shared/types"
)

type contextKey string

// callerKey carries the authenticated subject through the request context
const callerKey contextKey = "caller"

// Authenticator validates bearer tokens on the API surface. An empty secret
// disables verification, which is how local development and the internal
// runtime mode run.
type Authenticator struct {
	secret  []byte
	runtime *types.RuntimeConfig
	log     *logger.Logger
}

// NewAuthenticator builds the middleware state
func NewAuthenticator(secret string, runtime *types.RuntimeConfig) *Authenticator {
	return &Authenticator{
		secret:  []byte(secret),
		runtime: runtime,
		log:     logger.New("auth"),
	}
}

// Enabled reports whether requests will actually be verified
func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0 && a.runtime.EnforceAuth
}

// Middleware verifies the Authorization header on every request. Health and
// metrics routes are mounted outside this middleware.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		subject, err := a.verify(r)
		if err != nil {
			a.log.Warn(r.Header.Get("X-Request-ID"), "authentication rejected", map[string]interface{}{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) verify(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", fmt.Errorf("Authorization header is not a bearer token")
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token invalid")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "anonymous", nil
	}
	return subject, nil
}

// CallerFromContext returns the authenticated subject, or the fallback id
// when auth is disabled
func CallerFromContext(ctx context.Context) string {
	if caller, ok := ctx.Value(callerKey).(string); ok && caller != "" {
		return caller
	}
	return "anonymous"
}
