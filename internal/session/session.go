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

// Package session tracks per-client protocol state: initialization, the
// negotiated protocol version, the outbound stream, and the correlation table
// for server-initiated sampling requests.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/metric"

	"github.com/mcpkit/mcpkit/internal/jsonrpc"
	"github.com/mcpkit/mcpkit/internal/mcp"
)

// Sink is a direct outbound writer owned by a transport that holds a
// persistent connection (stdio). Sessions without a sink buffer outbound
// events in their ring for stream delivery.
type Sink interface {
	Push(ctx context.Context, data []byte) error
}

// streamBufferSize is the capacity of the channel feeding a live stream.
// Events always land in the ring first, so a slow consumer loses nothing; it
// catches up via replay after reconnecting.
const streamBufferSize = 32

// Session is the per-client protocol state.
type Session struct {
	id        string
	createdAt time.Time
	sampling  SamplingConfig

	mu              sync.RWMutex
	lastActive      time.Time
	initialized     bool
	protocolVersion string
	clientInfo      mcp.Implementation
	clientCaps      mcp.ClientCapabilities
	reqCtx          *RequestContext
	security        *SecurityContext
	closed          bool

	sink Sink
	ring *EventRing

	streamMu sync.Mutex
	stream   chan Event

	dispatchMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]*pendingSample

	samplingCounter metric.Int64Counter
}

// NewSession returns a session with a fresh event ring. ringCapacity of zero
// uses the default.
func NewSession(id string, sampling SamplingConfig, ringCapacity int) *Session {
	now := time.Now()
	return &Session{
		id:         id,
		createdAt:  now,
		lastActive: now,
		sampling:   sampling,
		ring:       NewEventRing(ringCapacity),
		pending:    make(map[string]*pendingSample),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActive returns the time of the last inbound activity.
func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Touch records inbound activity for idle eviction purposes.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Initialized reports whether the initialize handshake completed.
func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// MarkInitialized records the negotiated protocol version and the client's
// self-description.
func (s *Session) MarkInitialized(version string, info mcp.Implementation, caps mcp.ClientCapabilities) {
	s.mu.Lock()
	s.initialized = true
	s.protocolVersion = version
	s.clientInfo = info
	s.clientCaps = caps
	s.mu.Unlock()
}

// ConfirmInitialized sets the initialized flag without touching the
// negotiated state. Used when the client's initialized notification arrives.
func (s *Session) ConfirmInitialized() {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
}

// ProtocolVersion returns the negotiated protocol version, or "" before
// initialize.
func (s *Session) ProtocolVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.protocolVersion
}

// ClientInfo returns the client's self-description from initialize.
func (s *Session) ClientInfo() mcp.Implementation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

// ClientCapabilities returns the capabilities declared by the client.
func (s *Session) ClientCapabilities() mcp.ClientCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientCaps
}

// SetRequestContext records the transport metadata of the latest request.
func (s *Session) SetRequestContext(rc *RequestContext) {
	s.mu.Lock()
	s.reqCtx = rc
	s.mu.Unlock()
}

// RequestContext returns the transport metadata of the latest request.
func (s *Session) RequestContext() *RequestContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reqCtx
}

// SetSecurity attaches the authenticated identity.
func (s *Session) SetSecurity(sc *SecurityContext) {
	s.mu.Lock()
	s.security = sc
	s.mu.Unlock()
}

// Security returns the authenticated identity, or nil before any security
// check ran.
func (s *Session) Security() *SecurityContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.security
}

// SetSink attaches a direct outbound writer; Push bypasses the ring while a
// sink is attached.
func (s *Session) SetSink(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// SetSamplingCounter attaches a counter incremented per outbound sampling
// request.
func (s *Session) SetSamplingCounter(c metric.Int64Counter) {
	s.mu.Lock()
	s.samplingCounter = c
	s.mu.Unlock()
}

// LockDispatch serializes request handling within the session. Transports
// hold it for the duration of one inbound message.
func (s *Session) LockDispatch() { s.dispatchMu.Lock() }

// UnlockDispatch releases the dispatch lock.
func (s *Session) UnlockDispatch() { s.dispatchMu.Unlock() }

// Ring returns the session's event ring.
func (s *Session) Ring() *EventRing { return s.ring }

// StreamActive reports whether a live stream consumer is attached.
func (s *Session) StreamActive() bool {
	s.streamMu.Lock()
	defer s.streamMu.Unlock()
	return s.stream != nil
}

// AttachStream registers a stream consumer, displacing any previous one by
// closing its channel. It returns the live channel, the events to replay
// (those after lastEventID still retained in the ring), and a detach function
// that releases the channel if it is still the current one.
func (s *Session) AttachStream(lastEventID uint64) (<-chan Event, []Event, func()) {
	s.streamMu.Lock()
	if s.stream != nil {
		close(s.stream)
	}
	ch := make(chan Event, streamBufferSize)
	s.stream = ch
	s.streamMu.Unlock()

	replay := s.ring.ReplayAfter(lastEventID)

	detach := func() {
		s.streamMu.Lock()
		if s.stream == ch {
			s.stream = nil
		}
		s.streamMu.Unlock()
	}
	return ch, replay, detach
}

// Push delivers an outbound envelope. With a sink attached the payload goes
// straight to the transport; otherwise it is recorded in the ring and, when a
// stream is live, forwarded to it. A full stream channel is closed so the
// consumer reconnects and resumes from the ring instead of silently missing
// events.
func (s *Session) Push(ctx context.Context, msg any) error {
	s.mu.RLock()
	sink := s.sink
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return fmt.Errorf("session %q is closed", s.id)
	}

	data, err := jsoniter.Marshal(msg)
	if err != nil {
		return fmt.Errorf("unable to marshal outbound message: %w", err)
	}
	if sink != nil {
		return sink.Push(ctx, data)
	}

	e := s.ring.Append(data)
	s.streamMu.Lock()
	if s.stream != nil {
		select {
		case s.stream <- e:
		default:
			// the consumer is not draining; force a reconnect so it
			// resumes via Last-Event-ID replay
			close(s.stream)
			s.stream = nil
		}
	}
	s.streamMu.Unlock()
	return nil
}

// Close marks the session closed, cancels pending sampling requests, and
// releases any live stream.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.CancelPending(jsonrpc.CANCELLED, "session closed")

	s.streamMu.Lock()
	if s.stream != nil {
		close(s.stream)
		s.stream = nil
	}
	s.streamMu.Unlock()
}
