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
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/mcpkit/mcpkit/internal/jsonrpc"
	"github.com/mcpkit/mcpkit/internal/session"
)

// errFrameTooLarge is returned by the framer when a frame exceeds the
// configured limit. The partial bytes are still returned for id salvage.
var errFrameTooLarge = errors.New("frame exceeds maximum size")

// frameScanner produces one JSON frame per logical message from a byte
// stream. It tracks brace depth while respecting strings and escapes; a
// complete top-level object terminates a frame, as does a newline outside any
// object.
type frameScanner struct {
	r        *bufio.Reader
	maxBytes int
}

func newFrameScanner(r io.Reader, maxBytes int) *frameScanner {
	return &frameScanner{r: bufio.NewReader(r), maxBytes: maxBytes}
}

// next returns the next frame. On errFrameTooLarge the scanner has already
// discarded input up to the next newline so the caller can continue reading.
func (f *frameScanner) next() ([]byte, error) {
	var buf []byte
	depth := 0
	started := false
	inString := false
	escaped := false

	for {
		b, err := f.r.ReadByte()
		if err != nil {
			if err == io.EOF && len(buf) > 0 {
				return buf, nil
			}
			return nil, err
		}

		if !started {
			if b == ' ' || b == '\t' || b == '\r' {
				continue
			}
			if b == '\n' {
				if len(buf) > 0 {
					return buf, nil
				}
				continue
			}
			if b == '{' {
				started = true
				depth = 1
				buf = append(buf, b)
				continue
			}
			// non-object garbage accumulates until newline and is
			// handed to the parser to produce its error
			buf = append(buf, b)
			if len(buf) > f.maxBytes {
				f.discardLine()
				return buf, errFrameTooLarge
			}
			continue
		}

		buf = append(buf, b)
		if len(buf) > f.maxBytes {
			f.discardLine()
			return buf, errFrameTooLarge
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return buf, nil
			}
		}
	}
}

// discardLine resets the inbound buffer after an oversized frame.
func (f *frameScanner) discardLine() {
	for {
		b, err := f.r.ReadByte()
		if err != nil || b == '\n' {
			return
		}
	}
}

var idSalvagePattern = regexp.MustCompile(`"id"\s*:\s*(?:"((?:[^"\\]|\\.)*)"|(-?\d+))`)

// salvageId scans malformed bytes for a request id so an error response can
// still be correlated.
func salvageId(frame []byte) jsonrpc.RequestId {
	m := idSalvagePattern.FindSubmatch(frame)
	if m == nil {
		return nil
	}
	if len(m[1]) > 0 {
		return string(m[1])
	}
	if len(m[2]) > 0 {
		return json.Number(m[2])
	}
	return nil
}

// stdioQueueDepth bounds the inbound request queue; a full queue blocks the
// read loop, giving backpressure to clients that outpace the worker.
const stdioQueueDepth = 32

// stdioServer serves one session over a byte stream.
type stdioServer struct {
	server  *Server
	scanner *frameScanner
	writer  io.Writer
	writeMu sync.Mutex
	sess    *session.Session
}

// Push implements session.Sink for outbound sampling requests and
// notifications.
func (st *stdioServer) Push(ctx context.Context, data []byte) error {
	return st.writeRaw(data)
}

func (st *stdioServer) writeRaw(data []byte) error {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()
	if _, err := st.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("unable to write outbound frame: %w", err)
	}
	if f, ok := st.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (st *stdioServer) write(msg any) error {
	data, err := jsoniter.Marshal(msg)
	if err != nil {
		return fmt.Errorf("unable to marshal outbound frame: %w", err)
	}
	return st.writeRaw(data)
}

// ServeStdio reads frames from in and serves them until EOF or ctx
// cancellation. One session spans the whole stream.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	sess := s.sessions.Create()
	defer s.sessions.Remove(sess.ID())

	st := &stdioServer{
		server:  s,
		scanner: newFrameScanner(in, s.conf.MaxFrameBytes()),
		writer:  out,
		sess:    sess,
	}
	sess.SetSink(st)
	sess.SetRequestContext(session.NewRequestContext(session.TransportStdio, "", "", nil, nil, nil))
	s.serving.Store(true)
	s.logger.InfoContext(ctx, "serving over stdio", "session", sess.ID())

	// Requests run on a single worker so the read loop stays free to take
	// the client's response while a handler is blocked in a sample call.
	// The worker preserves per-session ordering.
	queue := make(chan []byte, stdioQueueDepth)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for frame := range queue {
			st.serveFrame(ctx, frame)
		}
	}()
	defer wg.Wait()
	defer close(queue)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frame, err := st.scanner.next()
		switch {
		case err == io.EOF:
			s.logger.DebugContext(ctx, "stdio stream closed")
			return nil
		case errors.Is(err, errFrameTooLarge):
			s.instr.McpStdio.Add(ctx, 1)
			envelope := jsonrpc.NewError(salvageId(frame), jsonrpc.PARSE_ERROR,
				fmt.Sprintf("frame exceeds maximum size of %d bytes", s.conf.MaxFrameBytes()), nil)
			if werr := st.write(envelope); werr != nil {
				return werr
			}
			continue
		case err != nil:
			return fmt.Errorf("unable to read input stream: %w", err)
		}

		s.instr.McpStdio.Add(ctx, 1)

		// classification only; serveFrame re-parses and reports errors
		var base jsonrpc.BaseMessage
		_ = jsoniter.Unmarshal(frame, &base)
		if base.IsResponse() {
			if response := s.HandleMessage(ctx, sess, frame); response != nil {
				if werr := st.write(response); werr != nil {
					return werr
				}
			}
			continue
		}
		queue <- frame
	}
}

// serveFrame dispatches one inbound frame and writes its response.
func (st *stdioServer) serveFrame(ctx context.Context, frame []byte) {
	response := st.server.HandleMessage(ctx, st.sess, frame)
	if e, ok := response.(jsonrpc.JSONRPCError); ok && e.Error.Code == jsonrpc.PARSE_ERROR && e.Id == nil {
		e.Id = salvageId(frame)
		response = e
	}
	if response == nil {
		return
	}
	if err := st.write(response); err != nil {
		st.server.logger.ErrorContext(ctx, "unable to write response frame", "error", err.Error())
	}
}
