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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcpkit/mcpkit/internal/jsonrpc"
	"github.com/mcpkit/mcpkit/internal/mcp"
)

// DefaultSamplingTimeout bounds a sampling round trip when neither the call
// nor the configuration names a deadline.
const DefaultSamplingTimeout = 30 * time.Second

// SamplingConfig describes the sampling features the server advertises and
// enforces.
type SamplingConfig struct {
	Enabled        bool
	Timeout        time.Duration
	MaxTokensLimit int
	Streaming      bool
	ToolCalls      bool
	Images         bool
}

// Capability converts the configuration into its initialize advertisement,
// or nil when sampling is disabled.
func (c SamplingConfig) Capability() *mcp.SamplingCapability {
	if !c.Enabled {
		return nil
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultSamplingTimeout
	}
	return &mcp.SamplingCapability{
		Supported:        true,
		Streaming:        c.Streaming,
		ToolCalls:        c.ToolCalls,
		Images:           c.Images,
		ModelPreferences: true,
		MaxTokensLimit:   c.MaxTokensLimit,
		DefaultTimeoutMs: timeout.Milliseconds(),
	}
}

// SampleMessage is one conversation turn handed to the client's model.
type SampleMessage struct {
	Role    string                     `json:"role"`
	Content mcp.SamplingMessageContent `json:"content"`
}

// SampleParams are the handler-facing sampling inputs. Field names follow the
// configuration surface; the wire request uses the protocol's camelCase shape.
type SampleParams struct {
	Messages         []SampleMessage       `json:"messages"`
	SystemPrompt     string                `json:"system_prompt,omitempty"`
	IncludeContext   string                `json:"include_context,omitempty"`
	Temperature      *float64              `json:"temperature,omitempty"`
	MaxTokens        int                   `json:"max_tokens,omitempty"`
	StopSequences    []string              `json:"stop_sequences,omitempty"`
	Metadata         map[string]any        `json:"metadata,omitempty"`
	ModelPreferences *mcp.ModelPreferences `json:"model_preferences,omitempty"`

	// Timeout overrides the configured deadline for this call only.
	Timeout time.Duration `json:"-"`
}

// toWire converts the params into the camelCase request shape.
func (p *SampleParams) toWire() mcp.CreateMessageParams {
	msgs := make([]mcp.SamplingMessage, 0, len(p.Messages))
	for _, m := range p.Messages {
		msgs = append(msgs, mcp.SamplingMessage{Role: m.Role, Content: m.Content})
	}
	return mcp.CreateMessageParams{
		Messages:         msgs,
		SystemPrompt:     p.SystemPrompt,
		IncludeContext:   p.IncludeContext,
		Temperature:      p.Temperature,
		MaxTokens:        p.MaxTokens,
		StopSequences:    p.StopSequences,
		Metadata:         p.Metadata,
		ModelPreferences: p.ModelPreferences,
	}
}

// validate checks the params structurally and returns the offending paths.
func (p *SampleParams) validate(cfg SamplingConfig) []string {
	var details []string
	if len(p.Messages) == 0 {
		details = append(details, "messages: must not be empty")
	}
	for i, m := range p.Messages {
		if m.Role != "user" && m.Role != "assistant" {
			details = append(details, fmt.Sprintf("messages[%d].role: must be %q or %q", i, "user", "assistant"))
		}
		switch m.Content.Type {
		case "text":
			if m.Content.Text == "" {
				details = append(details, fmt.Sprintf("messages[%d].content.text: must not be empty", i))
			}
		case "image":
			if !cfg.Images {
				details = append(details, fmt.Sprintf("messages[%d].content: image content is not supported", i))
			}
			if m.Content.Data == "" {
				details = append(details, fmt.Sprintf("messages[%d].content.data: must not be empty", i))
			}
			if m.Content.MimeType == "" {
				details = append(details, fmt.Sprintf("messages[%d].content.mimeType: must not be empty", i))
			}
		default:
			details = append(details, fmt.Sprintf("messages[%d].content.type: must be %q or %q", i, "text", "image"))
		}
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		details = append(details, "temperature: must be between 0 and 2")
	}
	if p.MaxTokens < 0 {
		details = append(details, "max_tokens: must not be negative")
	}
	if cfg.MaxTokensLimit > 0 && p.MaxTokens > cfg.MaxTokensLimit {
		details = append(details, fmt.Sprintf("max_tokens: exceeds limit of %d", cfg.MaxTokensLimit))
	}
	switch p.IncludeContext {
	case "", "none", "thisServer", "allServers":
	default:
		details = append(details, "include_context: must be one of none, thisServer, allServers")
	}
	return details
}

type sampleOutcome struct {
	result *mcp.CreateMessageResult
	err    error
}

// pendingSample is a one-shot correlator for an outbound request id.
type pendingSample struct {
	ch   chan sampleOutcome
	once sync.Once
}

func (p *pendingSample) resolve(out sampleOutcome) {
	p.once.Do(func() { p.ch <- out })
}

// Sample sends a sampling/createMessage request to the client over the
// session's outbound channel and blocks until the response arrives, the
// deadline passes, or ctx is cancelled. Each correlator resolves exactly
// once.
func (s *Session) Sample(ctx context.Context, params *SampleParams) (*mcp.CreateMessageResult, error) {
	if !s.sampling.Enabled {
		return nil, jsonrpc.NewProtocolError(jsonrpc.SERVER_ERROR, "sampling is not enabled on this server", nil)
	}
	if details := params.validate(s.sampling); len(details) > 0 {
		return nil, jsonrpc.NewProtocolError(jsonrpc.INVALID_PARAMS, "invalid sampling parameters", map[string]any{"details": details})
	}

	id := "sampling-" + uuid.NewString()
	p := &pendingSample{ch: make(chan sampleOutcome, 1)}
	s.pendingMu.Lock()
	s.pending[id] = p
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	s.mu.RLock()
	counter := s.samplingCounter
	s.mu.RUnlock()
	if counter != nil {
		counter.Add(ctx, 1)
	}

	req := jsonrpc.NewRequest(id, mcp.SAMPLING_CREATE_MESSAGE, params.toWire())
	if err := s.Push(ctx, req); err != nil {
		return nil, jsonrpc.NewProtocolError(jsonrpc.SERVER_ERROR, fmt.Sprintf("unable to send sampling request: %s", err), nil)
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = s.sampling.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultSamplingTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-p.ch:
		return out.result, out.err
	case <-timer.C:
		return nil, jsonrpc.NewProtocolError(jsonrpc.SAMPLING_TIMEOUT, fmt.Sprintf("sampling request timed out after %s", timeout), nil)
	case <-ctx.Done():
		return nil, jsonrpc.NewProtocolError(jsonrpc.CANCELLED, "sampling request cancelled", nil)
	}
}

// ResolveSample routes a client response frame to its waiting correlator. It
// reports whether the id matched a pending sampling request; late or repeated
// responses return false and are otherwise ignored.
func (s *Session) ResolveSample(id jsonrpc.RequestId, result json.RawMessage, rpcErr *jsonrpc.McpError) bool {
	key := fmt.Sprint(id)
	s.pendingMu.Lock()
	p, ok := s.pending[key]
	s.pendingMu.Unlock()
	if !ok {
		return false
	}

	if rpcErr != nil {
		p.resolve(sampleOutcome{err: jsonrpc.NewProtocolError(rpcErr.Code, rpcErr.Message, rpcErr.Data)})
		return true
	}
	var res mcp.CreateMessageResult
	if err := json.Unmarshal(result, &res); err != nil {
		p.resolve(sampleOutcome{err: jsonrpc.NewProtocolError(jsonrpc.INVALID_PARAMS, fmt.Sprintf("malformed sampling result: %s", err), nil)})
		return true
	}
	p.resolve(sampleOutcome{result: &res})
	return true
}

// CancelPending resolves every pending sampling correlator with the given
// error. Used when the session ends or the client explicitly disconnects.
func (s *Session) CancelPending(code int, message string) {
	s.pendingMu.Lock()
	waiters := make([]*pendingSample, 0, len(s.pending))
	for id, p := range s.pending {
		waiters = append(waiters, p)
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()
	for _, p := range waiters {
		p.resolve(sampleOutcome{err: jsonrpc.NewProtocolError(code, message, nil)})
	}
}

// PendingSamples returns the number of outstanding sampling requests.
func (s *Session) PendingSamples() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}
