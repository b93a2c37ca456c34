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

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mcpkit/mcpkit/internal/jsonrpc"
	"github.com/mcpkit/mcpkit/internal/mcp"
	"github.com/mcpkit/mcpkit/internal/session"
	"github.com/mcpkit/mcpkit/internal/util"
)

// inflightEntry tracks one request currently executing.
type inflightEntry struct {
	method  string
	start   time.Time
	session string
	cancel  context.CancelFunc
}

// inflightTable is the per-server table of executing requests.
type inflightTable struct {
	mu      sync.Mutex
	entries map[string]inflightEntry
}

func newInflightTable() *inflightTable {
	return &inflightTable{entries: make(map[string]inflightEntry)}
}

func inflightKey(sessionID string, id jsonrpc.RequestId) string {
	return sessionID + "\x00" + fmt.Sprint(id)
}

func (t *inflightTable) add(key string, e inflightEntry) {
	t.mu.Lock()
	t.entries[key] = e
	t.mu.Unlock()
}

func (t *inflightTable) remove(key string) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// cancel fires the entry's cancel func, if the id is in flight.
func (t *inflightTable) cancel(key string) bool {
	t.mu.Lock()
	e, ok := t.entries[key]
	t.mu.Unlock()
	if ok && e.cancel != nil {
		e.cancel()
	}
	return ok
}

func (t *inflightTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// HandleMessage is the single dispatch entrypoint used by every transport.
// It classifies the frame and returns the response envelope to send back, or
// nil when the frame produces no response (notifications and sampling
// responses).
func (s *Server) HandleMessage(ctx context.Context, sess *session.Session, body []byte) any {
	ctx, span := s.instr.Tracer.Start(ctx, "mcpkit/server/mcp")
	defer span.End()
	ctx = util.WithLogger(ctx, s.logger)
	sess.Touch()

	var base jsonrpc.BaseMessage
	if err := util.DecodeJSON(bytes.NewBuffer(body), &base); err != nil {
		return jsonrpc.NewError(nil, jsonrpc.PARSE_ERROR, fmt.Sprintf("unable to parse request: %s", err), nil)
	}
	span.SetAttributes(
		attribute.String("method", base.Method),
		attribute.String("session", sess.ID()),
	)

	switch {
	case base.IsRequest():
		return s.handleRequest(ctx, sess, &base)
	case base.IsNotification():
		s.handleNotification(ctx, sess, &base)
		return nil
	case base.IsResponse():
		if sess.ResolveSample(base.Id, base.Result, base.Error) {
			return nil
		}
		return jsonrpc.NewError(base.Id, jsonrpc.INVALID_REQUEST, "response does not match any outstanding request", nil)
	default:
		return jsonrpc.NewError(nil, jsonrpc.INVALID_REQUEST, "message is not a valid request, notification, or response", nil)
	}
}

func (s *Server) handleRequest(ctx context.Context, sess *session.Session, base *jsonrpc.BaseMessage) any {
	method := base.Method
	if !sess.Initialized() && method != mcp.INITIALIZE && method != mcp.PING {
		return jsonrpc.NewError(base.Id, jsonrpc.NOT_INITIALIZED, "session is not initialized",
			map[string]any{"details": method})
	}
	handler, ok := s.requestHandlers[method]
	if !ok {
		return jsonrpc.NewError(base.Id, jsonrpc.METHOD_NOT_FOUND, fmt.Sprintf("invalid method %s", method),
			map[string]any{"details": method})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	key := inflightKey(sess.ID(), base.Id)
	s.inflight.add(key, inflightEntry{method: method, start: time.Now(), session: sess.ID(), cancel: cancel})
	defer s.inflight.remove(key)

	result, err := s.invoke(ctx, handler, base, sess)
	if err != nil {
		if ctx.Err() != nil {
			return jsonrpc.NewError(base.Id, jsonrpc.CANCELLED, "request cancelled", nil)
		}
		var pe *jsonrpc.ProtocolError
		if errors.As(err, &pe) {
			return pe.Envelope(base.Id)
		}
		s.logger.ErrorContext(ctx, "handler failed", "method", method, "error", err.Error())
		var data any
		if !s.conf.Strict {
			data = map[string]any{"details": err.Error()}
		}
		return jsonrpc.NewError(base.Id, jsonrpc.INTERNAL_ERROR, "internal server error", data)
	}
	return jsonrpc.NewResponse(base.Id, result)
}

// invoke runs a request handler with panic containment.
func (s *Server) invoke(ctx context.Context, handler RequestHandler, base *jsonrpc.BaseMessage, sess *session.Session) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "handler panicked", "method", base.Method, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, base.Id, base.Params, sess)
}

// handleNotification invokes a notification handler best effort; failures
// are logged and swallowed.
func (s *Server) handleNotification(ctx context.Context, sess *session.Session, base *jsonrpc.BaseMessage) {
	if !sess.Initialized() && base.Method != mcp.NOTIFICATION_INITIALIZED {
		return
	}
	handler, ok := s.notificationHandlers[base.Method]
	if !ok {
		s.logger.DebugContext(ctx, "no handler for notification", "method", base.Method)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "notification handler panicked", "method", base.Method, "panic", fmt.Sprint(r))
		}
	}()
	if err := handler(ctx, base.Params, sess); err != nil {
		s.logger.WarnContext(ctx, "notification handler failed", "method", base.Method, "error", err.Error())
	}
}
