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

// Package server implements the MCP dispatcher and its two transports.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"

	"github.com/mcpkit/mcpkit/internal/auth"
	"github.com/mcpkit/mcpkit/internal/jsonrpc"
	"github.com/mcpkit/mcpkit/internal/log"
	"github.com/mcpkit/mcpkit/internal/mcp"
	"github.com/mcpkit/mcpkit/internal/registry"
	"github.com/mcpkit/mcpkit/internal/session"
	"github.com/mcpkit/mcpkit/internal/telemetry"
)

// RequestHandler handles one JSON-RPC request and returns its result value.
type RequestHandler func(ctx context.Context, id jsonrpc.RequestId, params []byte, s *session.Session) (any, error)

// NotificationHandler handles one JSON-RPC notification. Errors are logged
// and swallowed; notifications never produce a response.
type NotificationHandler func(ctx context.Context, params []byte, s *session.Session) error

// Server contains info for running an MCP server instance. Should be
// instantiated with NewServer().
type Server struct {
	version  string
	conf     ServerConfig
	srv      *http.Server
	listener net.Listener
	root     chi.Router
	logger   log.Logger
	instr    *telemetry.Instrumentation

	registry *registry.Registry
	security *auth.Middleware
	sessions *session.Manager

	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler

	inflight *inflightTable
	serving  atomic.Bool
}

// NewServer returns a Server object based on provided Config.
func NewServer(ctx context.Context, cfg ServerConfig, l log.Logger) (*Server, error) {
	instr, err := telemetry.CreateTelemetryInstrumentation(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("unable to create telemetry instrumentation: %w", err)
	}

	// set up http serving
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	// logging
	logLevel, err := log.SeverityToLevel(cfg.LogLevel.String())
	if err != nil {
		return nil, fmt.Errorf("unable to initialize http log: %w", err)
	}
	var httpOpts httplog.Options
	switch cfg.LoggingFormat.String() {
	case "json":
		httpOpts = httplog.Options{
			JSON:             true,
			LogLevel:         logLevel,
			Concise:          true,
			RequestHeaders:   true,
			MessageFieldName: "message",
			TimeFieldName:    "timestamp",
			LevelFieldName:   "severity",
		}
	case "standard":
		httpOpts = httplog.Options{
			LogLevel:         logLevel,
			Concise:          true,
			RequestHeaders:   true,
			MessageFieldName: "message",
		}
	default:
		return nil, fmt.Errorf("invalid Logging format: %q", cfg.LoggingFormat.String())
	}
	httpLogger := httplog.NewLogger("httplog", httpOpts)
	r.Use(httplog.RequestLogger(httpLogger))

	strategies, err := cfg.Auth.Initialize()
	if err != nil {
		return nil, fmt.Errorf("unable to initialize authentication: %w", err)
	}
	authn := auth.NewAuthenticator(cfg.Auth.Enabled, strategies...)
	l.InfoContext(ctx, fmt.Sprintf("Initialized %d authentication strategies.", len(strategies)))

	addr := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
	srv := &http.Server{Addr: addr, Handler: r}

	s := &Server{
		version:              cfg.Version,
		conf:                 cfg,
		srv:                  srv,
		root:                 r,
		logger:               l,
		instr:                instr,
		registry:             registry.NewRegistry(),
		security:             auth.NewMiddleware(authn, auth.NewAuthorizer()),
		sessions:             session.NewManager(ctx, cfg.SamplingConfig(), cfg.HTTP.EventRingCapacity, cfg.IdleTimeout(), l),
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		inflight:             newInflightTable(),
	}
	s.sessions.SetSamplingCounter(instr.SamplingOutbound)
	s.installBuiltins()

	r.Route(cfg.EndpointPath(), func(r chi.Router) {
		s.mountMcpRoutes(r)
	})
	// default endpoint for validating server is running
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mcpkit " + s.version))
	})

	return s, nil
}

// Registry exposes the registered entity collections.
func (s *Server) Registry() *registry.Registry { return s.registry }

// Sessions exposes the session manager.
func (s *Server) Sessions() *session.Manager { return s.sessions }

// SetPolicy installs an authorization policy for an entity class.
func (s *Server) SetPolicy(kind string, p auth.Policy) *Server {
	s.security.SetPolicy(kind, p)
	return s
}

// Handler returns the root HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.root }

// RegisterTool adds a tool; duplicates fail. Returns the server for chaining.
func (s *Server) RegisterTool(t *registry.Tool) (*Server, error) {
	if err := s.registry.AddTool(t); err != nil {
		return s, err
	}
	s.notifyListChanged(mcp.NOTIFICATION_TOOLS_LIST_CHANGED)
	return s, nil
}

// RegisterResource adds a resource; duplicates fail.
func (s *Server) RegisterResource(r *registry.Resource) (*Server, error) {
	if err := s.registry.AddResource(r); err != nil {
		return s, err
	}
	s.notifyListChanged(mcp.NOTIFICATION_RESOURCES_LIST_CHANGED)
	return s, nil
}

// RegisterPrompt adds a prompt; duplicates fail.
func (s *Server) RegisterPrompt(p *registry.Prompt) (*Server, error) {
	if err := s.registry.AddPrompt(p); err != nil {
		return s, err
	}
	s.notifyListChanged(mcp.NOTIFICATION_PROMPTS_LIST_CHANGED)
	return s, nil
}

// RegisterRoot adds a root; duplicates fail.
func (s *Server) RegisterRoot(r registry.Root) (*Server, error) {
	if err := s.registry.AddRoot(r); err != nil {
		return s, err
	}
	s.notifyListChanged(mcp.NOTIFICATION_ROOTS_LIST_CHANGED)
	return s, nil
}

// OnRequest installs or overrides the handler for a request method.
func (s *Server) OnRequest(method string, h RequestHandler) *Server {
	s.requestHandlers[method] = h
	return s
}

// OnNotification installs or overrides the handler for a notification method.
func (s *Server) OnNotification(method string, h NotificationHandler) *Server {
	s.notificationHandlers[method] = h
	return s
}

// notifyListChanged pushes a list-changed notification to connected sessions
// once the server is serving. Prompt changes go only to subscribed sessions;
// before serving, the registry flag alone records the change.
func (s *Server) notifyListChanged(method string) {
	if !s.serving.Load() {
		return
	}
	note := jsonrpc.NewNotification(method, nil)
	ctx := context.Background()
	if method == mcp.NOTIFICATION_PROMPTS_LIST_CHANGED {
		for _, id := range s.registry.PromptSubscribers() {
			if sess, ok := s.sessions.Get(id); ok {
				if err := sess.Push(ctx, note); err != nil {
					s.logger.DebugContext(ctx, "unable to push list-changed", "session", id, "error", err.Error())
				}
			}
		}
		return
	}
	s.sessions.Each(func(sess *session.Session) {
		if !sess.Initialized() {
			return
		}
		if err := sess.Push(ctx, note); err != nil {
			s.logger.DebugContext(ctx, "unable to push list-changed", "session", sess.ID(), "error", err.Error())
		}
	})
}

// Listen starts a listener for the given Server instance.
func (s *Server) Listen(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.listener != nil {
		return fmt.Errorf("server is already listening: %s", s.listener.Addr().String())
	}
	lc := net.ListenConfig{KeepAlive: 30 * time.Second}
	var err error
	if s.listener, err = lc.Listen(ctx, "tcp", s.srv.Addr); err != nil {
		return fmt.Errorf("failed to open listener for %q: %w", s.srv.Addr, err)
	}
	s.logger.DebugContext(ctx, fmt.Sprintf("server listening on %s", s.srv.Addr))
	return nil
}

// Serve starts an HTTP server for the given Server instance.
func (s *Server) Serve() error {
	s.logger.DebugContext(context.Background(), "Starting a HTTP server.")
	s.serving.Store(true)
	return s.srv.Serve(s.listener)
}

// Shutdown gracefully shuts down the server without interrupting any active
// connections. It uses http.Server.Shutdown() and has the same functionality.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.DebugContext(context.Background(), "shutting down the server.")
	return s.srv.Shutdown(ctx)
}
