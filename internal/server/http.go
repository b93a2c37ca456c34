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
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	jsoniter "github.com/json-iterator/go"

	"github.com/mcpkit/mcpkit/internal/auth"
	"github.com/mcpkit/mcpkit/internal/jsonrpc"
	"github.com/mcpkit/mcpkit/internal/mcp"
	"github.com/mcpkit/mcpkit/internal/session"
)

// sessionHeader keys HTTP sessions.
const sessionHeader = "Mcp-Session-Id"

// errResponse is the HTTP-level (non-JSON-RPC) error payload.
type errResponse struct {
	Err error `json:"-"` // low-level runtime error

	HTTPStatusCode int    `json:"-"`               // http response status code
	StatusText     string `json:"status"`          // user-level status message
	ErrorText      string `json:"error,omitempty"` // application-level error message
}

func (e *errResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func newErrResponse(err error, code int) *errResponse {
	return &errResponse{
		Err:            err,
		HTTPStatusCode: code,
		StatusText:     http.StatusText(code),
		ErrorText:      err.Error(),
	}
}

// mountMcpRoutes wires the single-endpoint protocol surface.
func (s *Server) mountMcpRoutes(r chi.Router) {
	r.Post("/", s.postHandler)
	r.Get("/", s.streamHandler)
	r.Delete("/", s.deleteHandler)
}

// requestContextFromHTTP snapshots the transport metadata of one request.
func requestContextFromHTTP(r *http.Request) *session.RequestContext {
	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}
	params := make(map[string]string)
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	meta := map[string]string{"remote": r.RemoteAddr}
	return session.NewRequestContext(session.TransportHTTP, r.Method, r.URL.Path, headers, params, meta)
}

func (s *Server) postHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.instr.McpPost.Add(ctx, 1)

	body, err := io.ReadAll(io.LimitReader(r.Body, int64(s.conf.MaxFrameBytes())+1))
	if err != nil {
		_ = render.Render(w, r, newErrResponse(fmt.Errorf("unable to read request body: %w", err), http.StatusBadRequest))
		return
	}
	if len(body) > s.conf.MaxFrameBytes() {
		s.writeEnvelope(w, http.StatusRequestEntityTooLarge,
			jsonrpc.NewError(nil, jsonrpc.PARSE_ERROR, fmt.Sprintf("frame exceeds maximum size of %d bytes", s.conf.MaxFrameBytes()), nil))
		return
	}

	var base jsonrpc.BaseMessage
	// classification only; HandleMessage re-parses and reports parse errors
	_ = jsoniter.Unmarshal(body, &base)

	sess, errResp := s.resolveSession(r, base.Method)
	if errResp != nil {
		_ = render.Render(w, r, errResp)
		return
	}
	sess.SetRequestContext(requestContextFromHTTP(r))
	w.Header().Set(sessionHeader, sess.ID())

	// sampling responses must not wait behind the request currently
	// executing for this session, otherwise a handler blocked in a
	// sampling call could never be resolved
	if !base.IsResponse() {
		sess.LockDispatch()
		defer sess.UnlockDispatch()
	}

	response := s.HandleMessage(ctx, sess, body)
	if response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	status := http.StatusOK
	if e, ok := response.(jsonrpc.JSONRPCError); ok {
		switch e.Error.Code {
		case jsonrpc.AUTH_REQUIRED:
			status = http.StatusUnauthorized
		case jsonrpc.AUTH_FORBIDDEN:
			status = http.StatusForbidden
		}
	}

	// while a stream is live, responses ride the stream and the POST
	// acknowledges with 202
	if status == http.StatusOK && sess.StreamActive() {
		if err := sess.Push(ctx, response); err != nil {
			s.logger.WarnContext(ctx, "unable to push response to stream", "session", sess.ID(), "error", err.Error())
			s.writeEnvelope(w, http.StatusOK, response)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	s.writeEnvelope(w, status, response)
}

// resolveSession finds the session for a POST, creating one when the message
// is initialize.
func (s *Server) resolveSession(r *http.Request, method string) (*session.Session, *errResponse) {
	id := r.Header.Get(sessionHeader)
	if id != "" {
		if sess, ok := s.sessions.Get(id); ok {
			return sess, nil
		}
	}
	if method == mcp.INITIALIZE {
		return s.sessions.Create(), nil
	}
	if id == "" {
		return nil, newErrResponse(fmt.Errorf("missing %s header", sessionHeader), http.StatusBadRequest)
	}
	return nil, newErrResponse(fmt.Errorf("unknown session %q", id), http.StatusNotFound)
}

func (s *Server) writeEnvelope(w http.ResponseWriter, status int, envelope any) {
	data, err := jsoniter.Marshal(envelope)
	if err != nil {
		http.Error(w, "unable to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (s *Server) deleteHandler(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		_ = render.Render(w, r, newErrResponse(fmt.Errorf("missing %s header", sessionHeader), http.StatusBadRequest))
		return
	}
	if _, ok := s.sessions.Get(id); !ok {
		_ = render.Render(w, r, newErrResponse(fmt.Errorf("unknown session %q", id), http.StatusNotFound))
		return
	}
	// Remove closes the session, which cancels pending sampling
	// correlators and closes any live stream
	s.sessions.Remove(id)
	s.logger.DebugContext(r.Context(), "session deleted", "session", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.Header.Get(sessionHeader)
	if id == "" {
		_ = render.Render(w, r, newErrResponse(fmt.Errorf("missing %s header", sessionHeader), http.StatusBadRequest))
		return
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		_ = render.Render(w, r, newErrResponse(fmt.Errorf("unknown session %q", id), http.StatusNotFound))
		return
	}
	sess.SetRequestContext(requestContextFromHTTP(r))

	if _, perr := s.security.Check(ctx, sess, auth.KindMethod, "stream", "stream"); perr != nil {
		status := http.StatusUnauthorized
		if perr.Code == jsonrpc.AUTH_FORBIDDEN {
			status = http.StatusForbidden
		}
		_ = render.Render(w, r, newErrResponse(fmt.Errorf("%s", perr.Message), status))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = render.Render(w, r, newErrResponse(fmt.Errorf("streaming is not supported by this connection"), http.StatusInternalServerError))
		return
	}

	var lastEventID uint64
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			lastEventID = n
		}
	}

	s.instr.McpStream.Add(ctx, 1)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(sessionHeader, sess.ID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, replay, detach := sess.AttachStream(lastEventID)
	defer detach()

	for _, e := range replay {
		writeStreamEvent(w, e)
	}
	flusher.Flush()

	keepalive := time.NewTicker(s.conf.Keepalive())
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case e, open := <-ch:
			if !open {
				// displaced by a newer stream or the session closed
				fmt.Fprint(w, "event: disconnect\ndata: {\"reason\":\"stream closed\"}\n\n")
				flusher.Flush()
				return
			}
			writeStreamEvent(w, e)
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w io.Writer, e session.Event) {
	fmt.Fprintf(w, "id: %d\ndata: %s\n\n", e.ID, e.Data)
}
