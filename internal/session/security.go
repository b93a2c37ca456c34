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

package session

import "time"

// SecurityContext is the authenticated identity attached to a session after
// the security middleware admits a request. An anonymous context is attached
// when security is disabled.
type SecurityContext struct {
	// Subject is the primary identifier of the caller (key name, token
	// subject, or "anonymous").
	Subject string
	// Strategy names the strategy that produced this context.
	Strategy string
	// Identity carries strategy-specific claims.
	Identity map[string]any
	// Permissions lists granted permission strings, if the strategy
	// resolves any.
	Permissions []string
	// Anonymous is true when no authentication was performed.
	Anonymous bool
	// AuthenticatedAt is when the context was established.
	AuthenticatedAt time.Time
}

// AnonymousContext returns the security context used when security is
// disabled.
func AnonymousContext() *SecurityContext {
	return &SecurityContext{
		Subject:         "anonymous",
		Anonymous:       true,
		AuthenticatedAt: time.Now(),
	}
}

// HasPermission reports whether the context carries the given permission. An
// anonymous context or a context with no permission list is unrestricted.
func (sc *SecurityContext) HasPermission(perm string) bool {
	if sc == nil || sc.Anonymous || len(sc.Permissions) == 0 {
		return true
	}
	for _, p := range sc.Permissions {
		if p == perm || p == "*" {
			return true
		}
	}
	return false
}
