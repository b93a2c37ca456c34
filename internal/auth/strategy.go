// Copyright 2025 mcpkit Authors
//
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

// Package auth provides the authentication strategies and the policy based
// authorizer guarding dispatch.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpkit/mcpkit/internal/session"
)

// Strategy authenticates a request from its transport metadata.
type Strategy interface {
	// Name identifies the strategy in security contexts and configuration.
	Name() string
	// Authenticate returns the security context for the request, or an
	// error when the credentials are missing or invalid.
	Authenticate(ctx context.Context, rc *session.RequestContext) (*session.SecurityContext, error)
}

// credentialFromRequest extracts the presented credential, checking the
// X-API-Key header, the Authorization header (Bearer and API-Key schemes),
// and finally the api_key, apikey, and token parameters.
func credentialFromRequest(rc *session.RequestContext) string {
	if rc == nil {
		return ""
	}
	if v := rc.Header("x-api-key"); v != "" {
		return v
	}
	if v := rc.Header("authorization"); v != "" {
		for _, scheme := range []string{"Bearer ", "API-Key "} {
			if len(v) > len(scheme) && strings.EqualFold(v[:len(scheme)], scheme) {
				return v[len(scheme):]
			}
		}
	}
	for _, p := range []string{"api_key", "apikey", "token"} {
		if v := rc.Param(p); v != "" {
			return v
		}
	}
	return ""
}

// APIKeyStrategy authenticates against a set of named shared keys.
type APIKeyStrategy struct {
	keys map[string]string
}

// NewAPIKeyStrategy returns a strategy accepting the given keys; the map is
// key name to secret value.
func NewAPIKeyStrategy(keys map[string]string) *APIKeyStrategy {
	copied := make(map[string]string, len(keys))
	for k, v := range keys {
		copied[k] = v
	}
	return &APIKeyStrategy{keys: copied}
}

// Name implements Strategy.
func (s *APIKeyStrategy) Name() string { return "apikey" }

// Authenticate implements Strategy. Key comparison is constant time per
// candidate.
func (s *APIKeyStrategy) Authenticate(ctx context.Context, rc *session.RequestContext) (*session.SecurityContext, error) {
	presented := credentialFromRequest(rc)
	if presented == "" {
		return nil, fmt.Errorf("no api key presented")
	}
	for name, secret := range s.keys {
		if len(secret) == len(presented) && subtle.ConstantTimeCompare([]byte(secret), []byte(presented)) == 1 {
			return &session.SecurityContext{
				Subject:         name,
				Strategy:        s.Name(),
				AuthenticatedAt: time.Now(),
			}, nil
		}
	}
	return nil, fmt.Errorf("unknown api key")
}

// TokenStrategy authenticates HMAC signed JWTs.
type TokenStrategy struct {
	secret   []byte
	issuer   string
	audience string
	methods  []string
}

// NewTokenStrategy returns a strategy verifying tokens signed with secret.
// Issuer and audience are enforced when non-empty. Only HMAC signing methods
// are accepted.
func NewTokenStrategy(secret []byte, issuer, audience string) *TokenStrategy {
	return &TokenStrategy{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		methods:  []string{"HS256", "HS384", "HS512"},
	}
}

// Name implements Strategy.
func (s *TokenStrategy) Name() string { return "token" }

// Authenticate implements Strategy.
func (s *TokenStrategy) Authenticate(ctx context.Context, rc *session.RequestContext) (*session.SecurityContext, error) {
	raw := credentialFromRequest(rc)
	if raw == "" {
		return nil, fmt.Errorf("no token presented")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods(s.methods), jwt.WithExpirationRequired()}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	sc := &session.SecurityContext{
		Strategy:        s.Name(),
		Identity:        map[string]any(claims),
		AuthenticatedAt: time.Now(),
	}
	if sub, ok := claims["sub"].(string); ok {
		sc.Subject = sub
	}
	if perms, ok := claims["permissions"].([]any); ok {
		for _, p := range perms {
			if str, ok := p.(string); ok {
				sc.Permissions = append(sc.Permissions, str)
			}
		}
	}
	return sc, nil
}

// CustomStrategy adapts a caller supplied predicate.
type CustomStrategy struct {
	name string
	fn   func(ctx context.Context, rc *session.RequestContext) (*session.SecurityContext, error)
}

// NewCustomStrategy returns a strategy delegating to fn.
func NewCustomStrategy(name string, fn func(ctx context.Context, rc *session.RequestContext) (*session.SecurityContext, error)) *CustomStrategy {
	return &CustomStrategy{name: name, fn: fn}
}

// Name implements Strategy.
func (s *CustomStrategy) Name() string { return s.name }

// Authenticate implements Strategy.
func (s *CustomStrategy) Authenticate(ctx context.Context, rc *session.RequestContext) (*session.SecurityContext, error) {
	sc, err := s.fn(ctx, rc)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, fmt.Errorf("strategy %q rejected the request", s.name)
	}
	if sc.Strategy == "" {
		sc.Strategy = s.name
	}
	if sc.AuthenticatedAt.IsZero() {
		sc.AuthenticatedAt = time.Now()
	}
	return sc, nil
}
