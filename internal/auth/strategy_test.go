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

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpkit/mcpkit/internal/session"
)

func httpRequest(headers, params map[string]string) *session.RequestContext {
	return session.NewRequestContext(session.TransportHTTP, "POST", "/mcp", headers, params, nil)
}

func TestAPIKeyStrategy(t *testing.T) {
	s := NewAPIKeyStrategy(map[string]string{"primary": "secret-1", "backup": "secret-2"})

	tcs := []struct {
		name        string
		headers     map[string]string
		params      map[string]string
		wantSubject string
		wantErr     bool
	}{
		{
			name:        "x-api-key header",
			headers:     map[string]string{"X-API-Key": "secret-1"},
			wantSubject: "primary",
		},
		{
			name:        "bearer scheme",
			headers:     map[string]string{"Authorization": "Bearer secret-2"},
			wantSubject: "backup",
		},
		{
			name:        "api-key scheme",
			headers:     map[string]string{"Authorization": "API-Key secret-1"},
			wantSubject: "primary",
		},
		{
			name:        "api_key param",
			params:      map[string]string{"api_key": "secret-1"},
			wantSubject: "primary",
		},
		{
			name:        "apikey param",
			params:      map[string]string{"apikey": "secret-2"},
			wantSubject: "backup",
		},
		{
			name:        "token param",
			params:      map[string]string{"token": "secret-1"},
			wantSubject: "primary",
		},
		{
			name:    "wrong key",
			headers: map[string]string{"X-API-Key": "nope"},
			wantErr: true,
		},
		{
			name:    "no credentials",
			wantErr: true,
		},
		{
			name:        "header wins over param",
			headers:     map[string]string{"X-API-Key": "secret-1"},
			params:      map[string]string{"api_key": "nope"},
			wantSubject: "primary",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			sc, err := s.Authenticate(context.Background(), httpRequest(tc.headers, tc.params))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if sc.Subject != tc.wantSubject {
				t.Fatalf("unexpected subject: got %q, want %q", sc.Subject, tc.wantSubject)
			}
			if sc.Strategy != "apikey" {
				t.Fatalf("unexpected strategy: %q", sc.Strategy)
			}
		})
	}
}

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return signed
}

func TestTokenStrategy(t *testing.T) {
	secret := []byte("0123456789abcdef")
	s := NewTokenStrategy(secret, "mcpkit", "")

	valid := signToken(t, secret, jwt.MapClaims{
		"sub":         "user-1",
		"iss":         "mcpkit",
		"exp":         time.Now().Add(time.Hour).Unix(),
		"permissions": []any{"tools:call", "resources:read"},
	})
	sc, err := s.Authenticate(context.Background(), httpRequest(map[string]string{"Authorization": "Bearer " + valid}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if sc.Subject != "user-1" {
		t.Fatalf("unexpected subject: %q", sc.Subject)
	}
	if len(sc.Permissions) != 2 || sc.Permissions[0] != "tools:call" {
		t.Fatalf("unexpected permissions: %v", sc.Permissions)
	}
	if sc.Identity["iss"] != "mcpkit" {
		t.Fatalf("unexpected identity: %v", sc.Identity)
	}
}

func TestTokenStrategyRejections(t *testing.T) {
	secret := []byte("0123456789abcdef")
	s := NewTokenStrategy(secret, "mcpkit", "")

	tcs := []struct {
		name  string
		token string
	}{
		{
			name: "expired",
			token: signToken(t, secret, jwt.MapClaims{
				"sub": "user-1", "iss": "mcpkit", "exp": time.Now().Add(-time.Hour).Unix(),
			}),
		},
		{
			name: "missing expiry",
			token: signToken(t, secret, jwt.MapClaims{
				"sub": "user-1", "iss": "mcpkit",
			}),
		},
		{
			name: "wrong issuer",
			token: signToken(t, secret, jwt.MapClaims{
				"sub": "user-1", "iss": "other", "exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			name: "wrong secret",
			token: signToken(t, []byte("another-secret!!"), jwt.MapClaims{
				"sub": "user-1", "iss": "mcpkit", "exp": time.Now().Add(time.Hour).Unix(),
			}),
		},
		{
			name:  "garbage",
			token: "not.a.jwt",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Authenticate(context.Background(), httpRequest(map[string]string{"Authorization": "Bearer " + tc.token}, nil))
			if err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestTokenStrategyRejectsUnsignedAlg(t *testing.T) {
	s := NewTokenStrategy([]byte("0123456789abcdef"), "", "")
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1", "exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := s.Authenticate(context.Background(), httpRequest(map[string]string{"Authorization": "Bearer " + signed}, nil)); err == nil {
		t.Fatal("token with alg none was accepted")
	}
}

func TestCustomStrategy(t *testing.T) {
	s := NewCustomStrategy("trusted-header", func(ctx context.Context, rc *session.RequestContext) (*session.SecurityContext, error) {
		if rc.Header("x-user") == "" {
			return nil, nil
		}
		return &session.SecurityContext{Subject: rc.Header("x-user")}, nil
	})

	sc, err := s.Authenticate(context.Background(), httpRequest(map[string]string{"X-User": "alice"}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if sc.Subject != "alice" || sc.Strategy != "trusted-header" {
		t.Fatalf("unexpected context: %+v", sc)
	}
	if sc.AuthenticatedAt.IsZero() {
		t.Fatal("authenticated time not set")
	}

	if _, err := s.Authenticate(context.Background(), httpRequest(nil, nil)); err == nil {
		t.Fatal("nil context accepted")
	}
}
