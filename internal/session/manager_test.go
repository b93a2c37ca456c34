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
	"testing"
	"time"
)

func TestManagerCreateGetRemove(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(ctx, SamplingConfig{}, 0, time.Minute, nil)

	s := m.Create()
	if s.ID() == "" {
		t.Fatal("session has no id")
	}
	got, ok := m.Get(s.ID())
	if !ok || got != s {
		t.Fatal("created session not retrievable")
	}
	if _, ok := m.Get("missing"); ok {
		t.Fatal("unknown id resolved to a session")
	}
	if m.Count() != 1 {
		t.Fatalf("unexpected count: %d", m.Count())
	}

	m.Remove(s.ID())
	if _, ok := m.Get(s.ID()); ok {
		t.Fatal("removed session still retrievable")
	}
	// removed sessions are closed
	if err := s.Push(ctx, "x"); err == nil {
		t.Fatal("push succeeded on a removed session")
	}
}

func TestManagerGetTouches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(ctx, SamplingConfig{}, 0, time.Minute, nil)

	s := m.Create()
	before := s.LastActive()
	time.Sleep(5 * time.Millisecond)
	m.Get(s.ID())
	if !s.LastActive().After(before) {
		t.Fatal("get did not refresh activity")
	}
}

func TestManagerEvictsIdleSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(ctx, SamplingConfig{}, 0, time.Minute, nil)

	fresh := m.Create()
	stale := m.Create()
	stale.mu.Lock()
	stale.lastActive = time.Now().Add(-2 * time.Minute)
	stale.mu.Unlock()

	m.evictIdle(ctx, time.Now())
	if _, ok := m.Get(stale.ID()); ok {
		t.Fatal("idle session survived eviction")
	}
	if _, ok := m.Get(fresh.ID()); !ok {
		t.Fatal("active session was evicted")
	}
}
