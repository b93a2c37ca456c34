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
	"fmt"

	"github.com/mcpkit/mcpkit/internal/auth"
	"github.com/mcpkit/mcpkit/internal/jsonrpc"
	"github.com/mcpkit/mcpkit/internal/mcp"
	"github.com/mcpkit/mcpkit/internal/registry"
	"github.com/mcpkit/mcpkit/internal/session"
	"github.com/mcpkit/mcpkit/internal/util"
)

// installBuiltins wires the standard method set. Handlers installed later via
// OnRequest/OnNotification override these.
func (s *Server) installBuiltins() {
	s.requestHandlers[mcp.INITIALIZE] = s.initializeHandler
	s.requestHandlers[mcp.PING] = s.pingHandler
	s.requestHandlers[mcp.TOOLS_LIST] = s.toolsListHandler
	s.requestHandlers[mcp.TOOLS_CALL] = s.toolsCallHandler
	s.requestHandlers[mcp.RESOURCES_LIST] = s.resourcesListHandler
	s.requestHandlers[mcp.RESOURCES_READ] = s.resourcesReadHandler
	s.requestHandlers[mcp.PROMPTS_LIST] = s.promptsListHandler
	s.requestHandlers[mcp.PROMPTS_GET] = s.promptsGetHandler
	s.requestHandlers[mcp.PROMPTS_SUBSCRIBE] = s.promptsSubscribeHandler
	s.requestHandlers[mcp.ROOTS_LIST] = s.rootsListHandler

	s.notificationHandlers[mcp.NOTIFICATION_INITIALIZED] = s.initializedHandler
	s.notificationHandlers[mcp.NOTIFICATION_CANCELLED] = s.cancelHandler
	s.notificationHandlers[mcp.CANCEL_REQUEST] = s.cancelHandler
	s.notificationHandlers[mcp.CANCEL] = s.cancelHandler
}

func decodeParams(params []byte, v any) error {
	if len(params) == 0 {
		return nil
	}
	return util.DecodeJSON(bytes.NewBuffer(params), v)
}

func (s *Server) initializeHandler(ctx context.Context, id jsonrpc.RequestId, params []byte, sess *session.Session) (any, error) {
	var p mcp.InitializeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, jsonrpc.NewProtocolError(jsonrpc.INVALID_PARAMS, fmt.Sprintf("invalid initialize params: %s", err), nil)
	}

	supported := s.conf.SupportedVersions()
	matched := false
	for _, v := range supported {
		if v == p.ProtocolVersion {
			matched = true
			break
		}
	}
	if !matched {
		return nil, jsonrpc.NewProtocolError(jsonrpc.INVALID_PARAMS, "unsupported protocol version",
			map[string]any{"requested": p.ProtocolVersion, "supported": supported})
	}

	sess.MarkInitialized(p.ProtocolVersion, p.ClientInfo, p.Capabilities)
	s.logger.DebugContext(ctx, "session initialized", "session", sess.ID(), "client", p.ClientInfo.Name, "version", p.ProtocolVersion)

	return mcp.InitializeResult{
		ProtocolVersion: p.ProtocolVersion,
		Capabilities:    s.capabilities(),
		ServerInfo:      mcp.Implementation{Name: s.conf.Name, Version: s.version},
		Instructions:    s.conf.Instructions,
	}, nil
}

// capabilities is computed lazily per initialize so late registrations still
// show up.
func (s *Server) capabilities() mcp.ServerCapabilities {
	caps := mcp.ServerCapabilities{}
	tools, resources, prompts, roots := s.registry.Counts()
	f, tr := false, true
	if tools > 0 {
		caps.Tools = &mcp.ListChanged{ListChanged: &f}
	}
	if resources > 0 {
		caps.Resources = &mcp.ResourcesCapability{Subscribe: &f, ListChanged: &f}
	}
	if prompts > 0 {
		pc := s.registry.PromptsChanged()
		caps.Prompts = &mcp.ListChanged{ListChanged: &pc}
	}
	if roots > 0 {
		caps.Roots = &mcp.ListChanged{ListChanged: &tr}
	}
	caps.Sampling = s.conf.SamplingConfig().Capability()
	return caps
}

func (s *Server) pingHandler(ctx context.Context, id jsonrpc.RequestId, params []byte, sess *session.Session) (any, error) {
	return map[string]any{}, nil
}

func (s *Server) toolsListHandler(ctx context.Context, id jsonrpc.RequestId, params []byte, sess *session.Session) (any, error) {
	if _, perr := s.security.Check(ctx, sess, auth.KindTool, "list", mcp.TOOLS_LIST); perr != nil {
		return nil, perr
	}
	s.registry.TakeToolsChanged()
	return mcp.ListToolsResult{Tools: s.registry.ToolManifests()}, nil
}

func (s *Server) toolsCallHandler(ctx context.Context, id jsonrpc.RequestId, params []byte, sess *session.Session) (any, error) {
	var p mcp.CallToolParams
	if err := decodeParams(params, &p); err != nil {
		return nil, jsonrpc.NewProtocolError(jsonrpc.INVALID_PARAMS, fmt.Sprintf("invalid tools/call params: %s", err), nil)
	}
	tool, ok := s.registry.Tool(p.Name)
	if !ok {
		return nil, jsonrpc.NewProtocolError(jsonrpc.NOT_FOUND, fmt.Sprintf("unknown tool %q", p.Name),
			map[string]any{"details": p.Name})
	}
	if _, perr := s.security.Check(ctx, sess, auth.KindTool, "call", p.Name); perr != nil {
		return nil, perr
	}
	if details := registry.ValidateArguments(tool.InputSchema, p.Arguments); len(details) > 0 {
		return nil, jsonrpc.NewProtocolError(jsonrpc.INVALID_PARAMS, fmt.Sprintf("invalid arguments for tool %q", p.Name),
			map[string]any{"details": details})
	}

	out, err := tool.Handler(ctx, p.Arguments, sess)
	if err != nil {
		return nil, err
	}
	switch res := out.(type) {
	case mcp.CallToolResult:
		return res, nil
	case *mcp.CallToolResult:
		return res, nil
	}
	return mcp.CallToolResult{Content: mcp.ToContent(out, ""), IsError: false}, nil
}

func (s *Server) resourcesListHandler(ctx context.Context, id jsonrpc.RequestId, params []byte, sess *session.Session) (any, error) {
	if _, perr := s.security.Check(ctx, sess, auth.KindResource, "list", mcp.RESOURCES_LIST); perr != nil {
		return nil, perr
	}
	s.registry.TakeResourcesChanged()
	return mcp.ListResourcesResult{Resources: s.registry.ResourceManifests()}, nil
}

func (s *Server) resourcesReadHandler(ctx context.Context, id jsonrpc.RequestId, params []byte, sess *session.Session) (any, error) {
	var p mcp.ReadResourceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, jsonrpc.NewProtocolError(jsonrpc.INVALID_PARAMS, fmt.Sprintf("invalid resources/read params: %s", err), nil)
	}
	res, ok := s.registry.Resource(p.URI)
	if !ok {
		return nil, jsonrpc.NewProtocolError(jsonrpc.NOT_FOUND, fmt.Sprintf("unknown resource %q", p.URI),
			map[string]any{"details": p.URI})
	}
	if _, perr := s.security.Check(ctx, sess, auth.KindResource, "read", p.URI); perr != nil {
		return nil, perr
	}

	out, err := res.Handler(ctx, sess)
	if err != nil {
		return nil, err
	}
	return mcp.ReadResourceResult{Contents: mcp.ToResourceContents(out, res.URI, res.MimeType)}, nil
}

func (s *Server) promptsListHandler(ctx context.Context, id jsonrpc.RequestId, params []byte, sess *session.Session) (any, error) {
	if _, perr := s.security.Check(ctx, sess, auth.KindPrompt, "list", mcp.PROMPTS_LIST); perr != nil {
		return nil, perr
	}
	s.registry.TakePromptsChanged()
	return mcp.ListPromptsResult{Prompts: s.registry.PromptManifests()}, nil
}

func (s *Server) promptsGetHandler(ctx context.Context, id jsonrpc.RequestId, params []byte, sess *session.Session) (any, error) {
	var p mcp.GetPromptParams
	if err := decodeParams(params, &p); err != nil {
		return nil, jsonrpc.NewProtocolError(jsonrpc.INVALID_PARAMS, fmt.Sprintf("invalid prompts/get params: %s", err), nil)
	}
	prompt, ok := s.registry.Prompt(p.Name)
	if !ok {
		return nil, jsonrpc.NewProtocolError(jsonrpc.NOT_FOUND, fmt.Sprintf("unknown prompt %q", p.Name),
			map[string]any{"details": p.Name})
	}
	if _, perr := s.security.Check(ctx, sess, auth.KindPrompt, "get", p.Name); perr != nil {
		return nil, perr
	}

	if details := validatePromptArgs(prompt, p.Arguments); len(details) > 0 {
		return nil, jsonrpc.NewProtocolError(jsonrpc.INVALID_PARAMS, fmt.Sprintf("invalid arguments for prompt %q", p.Name),
			map[string]any{"details": details})
	}

	out, err := prompt.Handler(ctx, p.Arguments, sess)
	if err != nil {
		return nil, err
	}
	if err := validatePromptResult(out); err != nil {
		s.logger.ErrorContext(ctx, "prompt handler returned malformed result", "prompt", p.Name, "error", err.Error())
		return nil, jsonrpc.NewProtocolError(jsonrpc.INTERNAL_ERROR, "internal server error", nil)
	}
	return out, nil
}

// validatePromptArgs checks that required arguments are present and no
// unknown names are passed.
func validatePromptArgs(prompt *registry.Prompt, args map[string]string) []string {
	var details []string
	known := make(map[string]bool, len(prompt.Arguments))
	for _, spec := range prompt.Arguments {
		known[spec.Name] = true
		if _, ok := args[spec.Name]; spec.Required && !ok {
			details = append(details, fmt.Sprintf("missing required argument %q", spec.Name))
		}
	}
	for name := range args {
		if !known[name] {
			details = append(details, fmt.Sprintf("unknown argument %q", name))
		}
	}
	return details
}

// validatePromptResult checks the structural contract of an expanded prompt:
// a messages sequence where every entry has a role and a typed content map.
func validatePromptResult(out any) error {
	switch res := out.(type) {
	case *mcp.GetPromptResult:
		if res == nil {
			return fmt.Errorf("result is nil")
		}
		return validatePromptMessages(res.Messages)
	case mcp.GetPromptResult:
		return validatePromptMessages(res.Messages)
	case map[string]any:
		rawMsgs, ok := res["messages"].([]any)
		if !ok || len(rawMsgs) == 0 {
			return fmt.Errorf("result has no messages")
		}
		for i, raw := range rawMsgs {
			m, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("message %d is not a mapping", i)
			}
			if role, ok := m["role"].(string); !ok || role == "" {
				return fmt.Errorf("message %d has no role", i)
			}
			content, ok := m["content"].(map[string]any)
			if !ok {
				return fmt.Errorf("message %d has no content", i)
			}
			if _, ok := content["type"]; !ok {
				return fmt.Errorf("message %d content has no type", i)
			}
		}
		return nil
	default:
		return fmt.Errorf("result has unexpected shape %T", out)
	}
}

func validatePromptMessages(msgs []mcp.PromptMessage) error {
	if len(msgs) == 0 {
		return fmt.Errorf("result has no messages")
	}
	for i, m := range msgs {
		if m.Role == "" {
			return fmt.Errorf("message %d has no role", i)
		}
		if _, ok := m.Content["type"]; !ok {
			return fmt.Errorf("message %d content has no type", i)
		}
	}
	return nil
}

func (s *Server) promptsSubscribeHandler(ctx context.Context, id jsonrpc.RequestId, params []byte, sess *session.Session) (any, error) {
	if _, perr := s.security.Check(ctx, sess, auth.KindPrompt, "subscribe", mcp.PROMPTS_SUBSCRIBE); perr != nil {
		return nil, perr
	}
	s.registry.SubscribePrompts(sess.ID())
	return map[string]any{}, nil
}

func (s *Server) rootsListHandler(ctx context.Context, id jsonrpc.RequestId, params []byte, sess *session.Session) (any, error) {
	if _, perr := s.security.Check(ctx, sess, auth.KindRoot, "list", mcp.ROOTS_LIST); perr != nil {
		return nil, perr
	}
	s.registry.TakeRootsChanged()
	return mcp.ListRootsResult{Roots: s.registry.RootManifests()}, nil
}

func (s *Server) initializedHandler(ctx context.Context, params []byte, sess *session.Session) error {
	sess.ConfirmInitialized()
	return nil
}

// cancelHandler serves all three cancellation aliases. It removes the
// in-flight entry and fires its context cancel; handler work stops
// cooperatively.
func (s *Server) cancelHandler(ctx context.Context, params []byte, sess *session.Session) error {
	var p struct {
		Id        any `json:"id"`
		RequestId any `json:"requestId"`
	}
	if err := decodeParams(params, &p); err != nil {
		return fmt.Errorf("invalid cancel params: %w", err)
	}
	target := p.Id
	if target == nil {
		target = p.RequestId
	}
	if target == nil {
		return fmt.Errorf("cancel notification carries no id")
	}
	if !s.inflight.cancel(inflightKey(sess.ID(), target)) {
		s.logger.DebugContext(ctx, "cancel for unknown request", "id", fmt.Sprint(target))
	}
	return nil
}
