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

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/mcpkit/mcpkit/internal/jsonrpc"
	"github.com/mcpkit/mcpkit/internal/log"
)

// DefaultIdleTimeout is how long a session may stay inactive before the
// eviction loop removes it.
const DefaultIdleTimeout = 30 * time.Minute

// Manager owns the session table and the idle eviction loop.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	sampling        SamplingConfig
	ringCap         int
	idleTimeout     time.Duration
	logger          log.Logger
	samplingCounter metric.Int64Counter
}

// NewManager returns a manager and starts its eviction loop; the loop stops
// when ctx is done. idleTimeout of zero uses DefaultIdleTimeout.
func NewManager(ctx context.Context, sampling SamplingConfig, ringCap int, idleTimeout time.Duration, logger log.Logger) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	m := &Manager{
		sessions:    make(map[string]*Session),
		sampling:    sampling,
		ringCap:     ringCap,
		idleTimeout: idleTimeout,
		logger:      logger,
	}
	go m.evictionRoutine(ctx)
	return m
}

// SetSamplingCounter attaches a counter copied onto every created session.
func (m *Manager) SetSamplingCounter(c metric.Int64Counter) {
	m.samplingCounter = c
}

// Create registers a new session under a fresh id.
func (m *Manager) Create() *Session {
	s := NewSession(uuid.NewString(), m.sampling, m.ringCap)
	if m.samplingCounter != nil {
		s.SetSamplingCounter(m.samplingCounter)
	}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get returns the session for id and records the activity.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.Touch()
	}
	return s, ok
}

// Remove closes the session for id and drops it from the table.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Each calls fn for every live session. fn must not call back into the
// manager.
func (m *Manager) Each(fn func(*Session)) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()
	for _, s := range sessions {
		fn(s)
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// evictionRoutine periodically removes idle sessions. Pending sampling
// correlators of an evicted session resolve with a cancelled error.
func (m *Manager) evictionRoutine(ctx context.Context) {
	interval := m.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 10*time.Minute {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.evictIdle(ctx, now)
		}
	}
}

func (m *Manager) evictIdle(ctx context.Context, now time.Time) {
	m.mu.Lock()
	var evicted []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) > m.idleTimeout {
			evicted = append(evicted, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range evicted {
		s.CancelPending(jsonrpc.CANCELLED, "session evicted after idle timeout")
		s.Close()
		if m.logger != nil {
			m.logger.DebugContext(ctx, "evicted idle session", "session", s.ID())
		}
	}
}
