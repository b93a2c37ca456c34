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

package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBaseMessageClassification(t *testing.T) {
	tcs := []struct {
		name           string
		in             string
		isRequest      bool
		isNotification bool
		isResponse     bool
	}{
		{
			name:      "request",
			in:        `{"jsonrpc":"2.0","id":1,"method":"ping"}`,
			isRequest: true,
		},
		{
			name:           "notification",
			in:             `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			isNotification: true,
		},
		{
			name:       "response",
			in:         `{"jsonrpc":"2.0","id":"abc","result":{}}`,
			isResponse: true,
		},
		{
			name: "garbage",
			in:   `{"jsonrpc":"2.0"}`,
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var m BaseMessage
			if err := json.Unmarshal([]byte(tc.in), &m); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if got := m.IsRequest(); got != tc.isRequest {
				t.Errorf("IsRequest: got %t, want %t", got, tc.isRequest)
			}
			if got := m.IsNotification(); got != tc.isNotification {
				t.Errorf("IsNotification: got %t, want %t", got, tc.isNotification)
			}
			if got := m.IsResponse(); got != tc.isResponse {
				t.Errorf("IsResponse: got %t, want %t", got, tc.isResponse)
			}
		})
	}
}

func TestNewError(t *testing.T) {
	got := NewError("req-1", NOT_FOUND, "unknown tool", map[string]any{"details": "echo"})
	b, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want := map[string]any{
		"jsonrpc": "2.0",
		"id":      "req-1",
		"error": map[string]any{
			"code":    -32001.0,
			"message": "unknown tool",
			"data":    map[string]any{"details": "echo"},
		},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Fatalf("unexpected envelope (-want +got):\n%s", diff)
	}
}

func TestProtocolErrorEnvelope(t *testing.T) {
	pe := NewProtocolError(INVALID_PARAMS, "bad params", nil)
	env := pe.Envelope("id-5")
	if env.Id != "id-5" {
		t.Fatalf("unexpected id: %v", env.Id)
	}
	if env.Error.Code != INVALID_PARAMS {
		t.Fatalf("unexpected code: %d", env.Error.Code)
	}

	// an error that already carries an id keeps it
	pe.Id = "original"
	env = pe.Envelope("other")
	if env.Id != "original" {
		t.Fatalf("unexpected id: %v", env.Id)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	res := NewResponse(7, map[string]any{"ok": true})
	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	var m BaseMessage
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !m.IsResponse() {
		t.Fatalf("marshaled response did not classify as response: %s", b)
	}
}
