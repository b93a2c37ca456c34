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
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseConfig(t *testing.T) {
	raw := `
name: demo
address: 127.0.0.1
port: 5000
instructions: "use the echo tool"
protocol_versions: ["2025-03-26"]
strict: true
sampling:
  enabled: true
  timeout_seconds: 10
  max_tokens_limit: 2048
  supports_images: true
http:
  path: /rpc
  event_ring_capacity: 128
  keepalive_seconds: 30
session:
  idle_timeout_seconds: 600
buffer:
  max_frame_bytes: 1048576
logging_format: json
log_level: debug
`
	cfg, err := ParseConfig([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cfg.Name != "demo" || cfg.Address != "127.0.0.1" || cfg.Port != 5000 {
		t.Fatalf("unexpected basics: %+v", cfg)
	}
	if !cfg.Strict {
		t.Fatal("strict not parsed")
	}
	if diff := cmp.Diff([]string{"2025-03-26"}, cfg.SupportedVersions()); diff != "" {
		t.Fatalf("unexpected versions (-want +got):\n%s", diff)
	}
	sc := cfg.SamplingConfig()
	if !sc.Enabled || sc.Timeout != 10*time.Second || sc.MaxTokensLimit != 2048 || !sc.Images {
		t.Fatalf("unexpected sampling config: %+v", sc)
	}
	if cfg.EndpointPath() != "/rpc" {
		t.Fatalf("unexpected path: %q", cfg.EndpointPath())
	}
	if cfg.Keepalive() != 30*time.Second {
		t.Fatalf("unexpected keepalive: %s", cfg.Keepalive())
	}
	if cfg.IdleTimeout() != 10*time.Minute {
		t.Fatalf("unexpected idle timeout: %s", cfg.IdleTimeout())
	}
	if cfg.MaxFrameBytes() != 1<<20 {
		t.Fatalf("unexpected frame limit: %d", cfg.MaxFrameBytes())
	}
	if cfg.LoggingFormat.String() != "json" || cfg.LogLevel.String() != "debug" {
		t.Fatalf("unexpected logging config: %q %q", cfg.LoggingFormat.String(), cfg.LogLevel.String())
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("name: bare\n"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cfg.EndpointPath() != "/mcp" {
		t.Fatalf("unexpected path: %q", cfg.EndpointPath())
	}
	if cfg.Keepalive() != 15*time.Second {
		t.Fatalf("unexpected keepalive: %s", cfg.Keepalive())
	}
	if cfg.MaxFrameBytes() != DefaultMaxFrameBytes {
		t.Fatalf("unexpected frame limit: %d", cfg.MaxFrameBytes())
	}
	if got := cfg.SupportedVersions(); len(got) == 0 {
		t.Fatal("no default protocol versions")
	}
	if cfg.LoggingFormat.String() != "standard" || cfg.LogLevel.String() != "info" {
		t.Fatalf("unexpected logging defaults: %q %q", cfg.LoggingFormat.String(), cfg.LogLevel.String())
	}
}

func TestParseConfigStrategies(t *testing.T) {
	raw := `
auth:
  enabled: true
  strategies:
    - kind: apikey
      keys:
        ci: sekrit
    - kind: token
      secret: hmac-secret
      issuer: mcpkit
`
	cfg, err := ParseConfig([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !cfg.Auth.Enabled {
		t.Fatal("auth not enabled")
	}
	if len(cfg.Auth.Strategies) != 2 {
		t.Fatalf("unexpected strategy count: %d", len(cfg.Auth.Strategies))
	}
	if cfg.Auth.Strategies[0].StrategyConfigKind() != "apikey" {
		t.Fatalf("unexpected first strategy: %q", cfg.Auth.Strategies[0].StrategyConfigKind())
	}
	if cfg.Auth.Strategies[1].StrategyConfigKind() != "token" {
		t.Fatalf("unexpected second strategy: %q", cfg.Auth.Strategies[1].StrategyConfigKind())
	}

	strategies, err := cfg.Auth.Initialize()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(strategies) != 2 || strategies[0].Name() != "apikey" || strategies[1].Name() != "token" {
		t.Fatalf("unexpected strategies: %v", strategies)
	}
}

func TestParseConfigStrategyErrors(t *testing.T) {
	tcs := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "unknown kind",
			raw: `
auth:
  strategies:
    - kind: ldap
`,
			want: "not a valid kind",
		},
		{
			name: "unknown field",
			raw: `
auth:
  strategies:
    - kind: apikey
      keys:
        ci: sekrit
      bogus: field
`,
			want: "unable to parse strategy",
		},
		{
			name: "missing required secret",
			raw: `
auth:
  strategies:
    - kind: token
`,
			want: "unable to parse strategy",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.raw))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error: %s", err)
			}
		})
	}
}

func TestLogFormatFlag(t *testing.T) {
	var f LogFormat
	if f.String() != "standard" {
		t.Fatalf("unexpected default: %q", f.String())
	}
	if err := f.Set("JSON"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if f.String() != "json" {
		t.Fatalf("unexpected value: %q", f.String())
	}
	if err := f.Set("xml"); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestStringLevelFlag(t *testing.T) {
	var l StringLevel
	if l.String() != "info" {
		t.Fatalf("unexpected default: %q", l.String())
	}
	if err := l.Set("WARN"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if l.String() != "warn" {
		t.Fatalf("unexpected value: %q", l.String())
	}
	if err := l.Set("verbose"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestParseConfigInvalidLogging(t *testing.T) {
	if _, err := ParseConfig([]byte("logging_format: xml\n")); err == nil {
		t.Fatal("expected error for invalid logging format")
	}
	if _, err := ParseConfig([]byte("log_level: verbose\n")); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}
