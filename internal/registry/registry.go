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

// Package registry holds the tool, resource, prompt, and root collections a
// server exposes, preserving registration order and tracking list changes.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mcpkit/mcpkit/internal/mcp"
	"github.com/mcpkit/mcpkit/internal/session"
)

// ToolHandler executes a tool call with already validated arguments.
type ToolHandler func(ctx context.Context, args map[string]any, s *session.Session) (any, error)

// Tool is an invokable capability with a JSON-Schema argument contract.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Annotations *mcp.ToolAnnotations
	Handler     ToolHandler
}

// Manifest returns the self-describing list entry. A tool without a schema
// advertises an unconstrained object.
func (t *Tool) Manifest() mcp.ToolManifest {
	schema := t.InputSchema
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	return mcp.ToolManifest{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
		Annotations: t.Annotations,
	}
}

// ResourceHandler produces the contents of a resource.
type ResourceHandler func(ctx context.Context, s *session.Session) (any, error)

// Resource is a readable entity addressed by exact URI.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	Handler     ResourceHandler
}

// Manifest returns the self-describing list entry.
func (r *Resource) Manifest() mcp.ResourceManifest {
	return mcp.ResourceManifest{
		URI:         r.URI,
		Name:        r.Name,
		Description: r.Description,
		MimeType:    r.MimeType,
	}
}

// PromptHandler expands a prompt template into messages. The result may be a
// *mcp.GetPromptResult or any value with the same JSON shape.
type PromptHandler func(ctx context.Context, args map[string]string, s *session.Session) (any, error)

// Prompt is a named message template with declared arguments.
type Prompt struct {
	Name        string
	Description string
	Arguments   []mcp.PromptArgument
	Handler     PromptHandler
}

// Manifest returns the self-describing list entry.
func (p *Prompt) Manifest() mcp.PromptManifest {
	return mcp.PromptManifest{
		Name:        p.Name,
		Description: p.Description,
		Arguments:   p.Arguments,
	}
}

// Root is an entry point URI advertised to clients.
type Root struct {
	URI  string
	Name string
}

// Registry is the concurrent collection of everything the server exposes.
// Listings preserve registration order.
type Registry struct {
	mu sync.RWMutex

	tools     map[string]*Tool
	toolOrder []string

	resources     map[string]*Resource
	resourceOrder []string

	prompts     map[string]*Prompt
	promptOrder []string

	roots     map[string]Root
	rootOrder []string

	toolsChanged     atomic.Bool
	resourcesChanged atomic.Bool
	promptsChanged   atomic.Bool
	rootsChanged     atomic.Bool

	subMu      sync.Mutex
	promptSubs map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]*Tool),
		resources:  make(map[string]*Resource),
		prompts:    make(map[string]*Prompt),
		roots:      make(map[string]Root),
		promptSubs: make(map[string]struct{}),
	}
}

// AddTool registers a tool; a duplicate name is an error.
func (r *Registry) AddTool(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("tool %q is already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.toolOrder = append(r.toolOrder, t.Name)
	r.toolsChanged.Store(true)
	return nil
}

// Tool returns the tool registered under name.
func (r *Registry) Tool(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// ToolManifests lists all tools in registration order.
func (r *Registry) ToolManifests() []mcp.ToolManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.ToolManifest, 0, len(r.toolOrder))
	for _, name := range r.toolOrder {
		out = append(out, r.tools[name].Manifest())
	}
	return out
}

// AddResource registers a resource; a duplicate URI is an error.
func (r *Registry) AddResource(res *Resource) error {
	if res.URI == "" {
		return fmt.Errorf("resource uri must not be empty")
	}
	if res.Handler == nil {
		return fmt.Errorf("resource %q has no handler", res.URI)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[res.URI]; ok {
		return fmt.Errorf("resource %q is already registered", res.URI)
	}
	r.resources[res.URI] = res
	r.resourceOrder = append(r.resourceOrder, res.URI)
	r.resourcesChanged.Store(true)
	return nil
}

// Resource returns the resource registered under the exact uri.
func (r *Registry) Resource(uri string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[uri]
	return res, ok
}

// ResourceManifests lists all resources in registration order.
func (r *Registry) ResourceManifests() []mcp.ResourceManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.ResourceManifest, 0, len(r.resourceOrder))
	for _, uri := range r.resourceOrder {
		out = append(out, r.resources[uri].Manifest())
	}
	return out
}

// AddPrompt registers a prompt; a duplicate name is an error.
func (r *Registry) AddPrompt(p *Prompt) error {
	if p.Name == "" {
		return fmt.Errorf("prompt name must not be empty")
	}
	if p.Handler == nil {
		return fmt.Errorf("prompt %q has no handler", p.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.prompts[p.Name]; ok {
		return fmt.Errorf("prompt %q is already registered", p.Name)
	}
	r.prompts[p.Name] = p
	r.promptOrder = append(r.promptOrder, p.Name)
	r.promptsChanged.Store(true)
	return nil
}

// Prompt returns the prompt registered under name.
func (r *Registry) Prompt(name string) (*Prompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[name]
	return p, ok
}

// PromptManifests lists all prompts in registration order.
func (r *Registry) PromptManifests() []mcp.PromptManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.PromptManifest, 0, len(r.promptOrder))
	for _, name := range r.promptOrder {
		out = append(out, r.prompts[name].Manifest())
	}
	return out
}

// AddRoot registers a root; a duplicate URI is an error.
func (r *Registry) AddRoot(root Root) error {
	if root.URI == "" {
		return fmt.Errorf("root uri must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roots[root.URI]; ok {
		return fmt.Errorf("root %q is already registered", root.URI)
	}
	r.roots[root.URI] = root
	r.rootOrder = append(r.rootOrder, root.URI)
	r.rootsChanged.Store(true)
	return nil
}

// RootManifests lists all roots in registration order.
func (r *Registry) RootManifests() []mcp.RootManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcp.RootManifest, 0, len(r.rootOrder))
	for _, uri := range r.rootOrder {
		root := r.roots[uri]
		out = append(out, mcp.RootManifest{URI: root.URI, Name: root.Name})
	}
	return out
}

// Counts returns how many entries each collection holds.
func (r *Registry) Counts() (tools, resources, prompts, roots int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.toolOrder), len(r.resourceOrder), len(r.promptOrder), len(r.rootOrder)
}

// TakeToolsChanged clears and returns the tools change flag. Serving a list
// acknowledges the change.
func (r *Registry) TakeToolsChanged() bool { return r.toolsChanged.Swap(false) }

// TakeResourcesChanged clears and returns the resources change flag.
func (r *Registry) TakeResourcesChanged() bool { return r.resourcesChanged.Swap(false) }

// TakePromptsChanged clears and returns the prompts change flag.
func (r *Registry) TakePromptsChanged() bool { return r.promptsChanged.Swap(false) }

// TakeRootsChanged clears and returns the roots change flag.
func (r *Registry) TakeRootsChanged() bool { return r.rootsChanged.Swap(false) }

// PromptsChanged reports the prompts change flag without clearing it.
func (r *Registry) PromptsChanged() bool { return r.promptsChanged.Load() }

// SubscribePrompts adds a session to the prompt change notification set.
func (r *Registry) SubscribePrompts(sessionID string) {
	r.subMu.Lock()
	r.promptSubs[sessionID] = struct{}{}
	r.subMu.Unlock()
}

// UnsubscribePrompts removes a session from the notification set.
func (r *Registry) UnsubscribePrompts(sessionID string) {
	r.subMu.Lock()
	delete(r.promptSubs, sessionID)
	r.subMu.Unlock()
}

// PromptSubscribers returns the ids of sessions subscribed to prompt changes.
func (r *Registry) PromptSubscribers() []string {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	out := make([]string, 0, len(r.promptSubs))
	for id := range r.promptSubs {
		out = append(out, id)
	}
	return out
}
