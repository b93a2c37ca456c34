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

	"github.com/mcpkit/mcpkit/internal/jsonrpc"
	"github.com/mcpkit/mcpkit/internal/session"
	"github.com/mcpkit/mcpkit/internal/util"
)

// Entity classes actions are authorized against.
const (
	KindMethod   = "method"
	KindTool     = "tool"
	KindResource = "resource"
	KindPrompt   = "prompt"
	KindRoot     = "root"
)

// Action is one attempted operation presented to the authorizer.
type Action struct {
	// Kind is the entity class, one of the Kind constants.
	Kind string
	// Verb is what is being attempted: list, call, read, get, or subscribe.
	Verb string
	// Name is the specific method, tool, resource, or prompt.
	Name string
	// Session is the protocol session attempting the action.
	Session *session.Session
	// Security is the authenticated identity of the caller.
	Security *session.SecurityContext
}

// Policy decides whether an action is allowed.
type Policy func(ctx context.Context, action Action) bool

// Authenticator runs the configured strategies in order; the first success
// wins. When disabled, every request is admitted anonymously.
type Authenticator struct {
	enabled    bool
	strategies []Strategy
}

// NewAuthenticator returns an authenticator over strategies. With enabled
// false or no strategies, authentication is a no-op.
func NewAuthenticator(enabled bool, strategies ...Strategy) *Authenticator {
	return &Authenticator{enabled: enabled, strategies: strategies}
}

// Enabled reports whether authentication is enforced.
func (a *Authenticator) Enabled() bool {
	return a.enabled && len(a.strategies) > 0
}

// Authenticate returns the security context for the request. The returned
// protocol error hides which strategy failed and why.
func (a *Authenticator) Authenticate(ctx context.Context, rc *session.RequestContext) (*session.SecurityContext, *jsonrpc.ProtocolError) {
	if !a.Enabled() {
		return session.AnonymousContext(), nil
	}
	logger, logErr := util.LoggerFromContext(ctx)
	for _, s := range a.strategies {
		sc, err := s.Authenticate(ctx, rc)
		if err == nil {
			return sc, nil
		}
		if logErr == nil {
			logger.DebugContext(ctx, "authentication strategy rejected request", "strategy", s.Name(), "error", err.Error())
		}
	}
	return nil, jsonrpc.NewProtocolError(jsonrpc.AUTH_REQUIRED, "authentication required", map[string]any{"kind": "authentication"})
}

// Authorizer evaluates per-entity-class policies. A class without a policy is
// allowed; a policy that panics denies.
type Authorizer struct {
	policies map[string]Policy
}

// NewAuthorizer returns an authorizer with no policies.
func NewAuthorizer() *Authorizer {
	return &Authorizer{policies: make(map[string]Policy)}
}

// SetPolicy installs the policy for an entity class, replacing any previous
// one.
func (a *Authorizer) SetPolicy(kind string, p Policy) {
	a.policies[kind] = p
}

// Authorize checks the action against its class policy.
func (a *Authorizer) Authorize(ctx context.Context, action Action) (perr *jsonrpc.ProtocolError) {
	policy, ok := a.policies[action.Kind]
	if !ok {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			if logger, err := util.LoggerFromContext(ctx); err == nil {
				logger.ErrorContext(ctx, "authorization policy panicked", "kind", action.Kind, "name", action.Name, "panic", r)
			}
			perr = denied()
		}
	}()
	if !policy(ctx, action) {
		return denied()
	}
	return nil
}

func denied() *jsonrpc.ProtocolError {
	return jsonrpc.NewProtocolError(jsonrpc.AUTH_FORBIDDEN, "access denied", map[string]any{"kind": "authorization"})
}

// Middleware combines authentication and authorization into the single check
// the dispatcher runs per operation.
type Middleware struct {
	authn *Authenticator
	authz *Authorizer
}

// NewMiddleware returns the combined security middleware. Either component
// may be nil.
func NewMiddleware(authn *Authenticator, authz *Authorizer) *Middleware {
	if authn == nil {
		authn = NewAuthenticator(false)
	}
	if authz == nil {
		authz = NewAuthorizer()
	}
	return &Middleware{authn: authn, authz: authz}
}

// SetPolicy installs an authorization policy for an entity class.
func (m *Middleware) SetPolicy(kind string, p Policy) {
	m.authz.SetPolicy(kind, p)
}

// Check authenticates the request, attaches the resulting context to the
// session, and authorizes the action. On success the security context is
// returned; on failure the protocol error says only which stage refused.
func (m *Middleware) Check(ctx context.Context, s *session.Session, kind, verb, name string) (*session.SecurityContext, *jsonrpc.ProtocolError) {
	sc := s.Security()
	if sc == nil || (m.authn.Enabled() && sc.Anonymous) {
		var perr *jsonrpc.ProtocolError
		sc, perr = m.authn.Authenticate(ctx, s.RequestContext())
		if perr != nil {
			return nil, perr
		}
		s.SetSecurity(sc)
	}
	action := Action{Kind: kind, Verb: verb, Name: name, Session: s, Security: sc}
	if perr := m.authz.Authorize(ctx, action); perr != nil {
		return nil, perr
	}
	return sc, nil
}
