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

package registry

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/mcpkit/mcpkit/internal/session"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name: name,
		Handler: func(ctx context.Context, args map[string]any, s *session.Session) (any, error) {
			return args, nil
		},
	}
}

func TestAddToolDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.AddTool(echoTool("echo")); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := r.AddTool(echoTool("echo")); err == nil {
		t.Fatal("duplicate tool registration succeeded")
	}
	if err := r.AddTool(echoTool("")); err == nil {
		t.Fatal("empty tool name accepted")
	}
	if err := r.AddTool(&Tool{Name: "nohandler"}); err == nil {
		t.Fatal("tool without handler accepted")
	}
}

func TestToolManifestsPreserveOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"zeta", "alpha", "mid"}
	for _, n := range names {
		if err := r.AddTool(echoTool(n)); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	}
	got := r.ToolManifests()
	if len(got) != len(names) {
		t.Fatalf("unexpected length: %d", len(got))
	}
	for i, m := range got {
		if m.Name != names[i] {
			t.Fatalf("unexpected order at %d: got %q, want %q", i, m.Name, names[i])
		}
	}
	// a tool without a schema advertises an unconstrained object
	if got[0].InputSchema["type"] != "object" {
		t.Fatalf("unexpected default schema: %+v", got[0].InputSchema)
	}
}

func TestResourceAndPromptRegistration(t *testing.T) {
	r := NewRegistry()
	res := &Resource{
		URI:  "file:///data.txt",
		Name: "data",
		Handler: func(ctx context.Context, s *session.Session) (any, error) {
			return "content", nil
		},
	}
	if err := r.AddResource(res); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := r.AddResource(res); err == nil {
		t.Fatal("duplicate resource registration succeeded")
	}
	if _, ok := r.Resource("file:///data.txt"); !ok {
		t.Fatal("resource not retrievable by exact uri")
	}
	if _, ok := r.Resource("file:///data.txt/"); ok {
		t.Fatal("resource matched a non-exact uri")
	}

	p := &Prompt{
		Name: "greet",
		Handler: func(ctx context.Context, args map[string]string, s *session.Session) (any, error) {
			return nil, nil
		},
	}
	if err := r.AddPrompt(p); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := r.AddPrompt(p); err == nil {
		t.Fatal("duplicate prompt registration succeeded")
	}
}

func TestRoots(t *testing.T) {
	r := NewRegistry()
	if err := r.AddRoot(Root{URI: "file:///workspace", Name: "workspace"}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := r.AddRoot(Root{URI: "file:///workspace"}); err == nil {
		t.Fatal("duplicate root registration succeeded")
	}
	got := r.RootManifests()
	if len(got) != 1 || got[0].URI != "file:///workspace" || got[0].Name != "workspace" {
		t.Fatalf("unexpected roots: %+v", got)
	}
}

func TestChangeFlags(t *testing.T) {
	r := NewRegistry()
	if r.TakeToolsChanged() {
		t.Fatal("fresh registry reported changed tools")
	}
	if err := r.AddTool(echoTool("echo")); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !r.TakeToolsChanged() {
		t.Fatal("registration did not set the change flag")
	}
	// taking the flag clears it
	if r.TakeToolsChanged() {
		t.Fatal("change flag not cleared")
	}
}

func TestPromptSubscribers(t *testing.T) {
	r := NewRegistry()
	r.SubscribePrompts("s1")
	r.SubscribePrompts("s2")
	r.SubscribePrompts("s1")

	subs := r.PromptSubscribers()
	sort.Strings(subs)
	if fmt.Sprint(subs) != "[s1 s2]" {
		t.Fatalf("unexpected subscribers: %v", subs)
	}

	r.UnsubscribePrompts("s1")
	subs = r.PromptSubscribers()
	if len(subs) != 1 || subs[0] != "s2" {
		t.Fatalf("unexpected subscribers after unsubscribe: %v", subs)
	}
}
