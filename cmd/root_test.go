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

package cmd

import (
	"bytes"
	_ "embed"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"

	"github.com/mcpkit/mcpkit/internal/server"
)

func withDefaults(c server.ServerConfig) server.ServerConfig {
	if c.Address == "" {
		c.Address = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 5000
	}
	return c
}

func invokeCommand(args []string) (*Command, string, error) {
	c := NewCommand()

	// Keep the test output quiet
	c.SilenceUsage = true
	c.SilenceErrors = true

	// Capture output
	buf := new(bytes.Buffer)
	c.SetOut(buf)
	c.SetErr(buf)
	c.SetArgs(args)

	// Disable execute behavior
	c.RunE = func(*cobra.Command, []string) error {
		return nil
	}

	err := c.Execute()

	return c, buf.String(), err
}

func TestVersion(t *testing.T) {
	data, err := os.ReadFile("version.txt")
	if err != nil {
		t.Fatalf("failed to read version.txt: %v", err)
	}
	want := strings.TrimSpace(string(data))

	_, got, err := invokeCommand([]string{"--version"})
	if err != nil {
		t.Fatalf("error invoking command: %s", err)
	}

	if !strings.Contains(got, want) {
		t.Errorf("cli did not return correct version: want %q, got %q", want, got)
	}
}

func TestServerConfigFlags(t *testing.T) {
	tcs := []struct {
		desc string
		args []string
		want server.ServerConfig
	}{
		{
			desc: "default values",
			args: []string{},
			want: withDefaults(server.ServerConfig{}),
		},
		{
			desc: "address short",
			args: []string{"-a", "127.0.1.1"},
			want: withDefaults(server.ServerConfig{
				Address: "127.0.1.1",
			}),
		},
		{
			desc: "address long",
			args: []string{"--address", "0.0.0.0"},
			want: withDefaults(server.ServerConfig{
				Address: "0.0.0.0",
			}),
		},
		{
			desc: "port short",
			args: []string{"-p", "5052"},
			want: withDefaults(server.ServerConfig{
				Port: 5052,
			}),
		},
		{
			desc: "port long",
			args: []string{"--port", "5050"},
			want: withDefaults(server.ServerConfig{
				Port: 5050,
			}),
		},
		{
			desc: "logging format",
			args: []string{"--logging-format", "JSON"},
			want: withDefaults(server.ServerConfig{
				LoggingFormat: "JSON",
			}),
		},
		{
			desc: "log level",
			args: []string{"--log-level", "WARN"},
			want: withDefaults(server.ServerConfig{
				LogLevel: "WARN",
			}),
		},
	}
	for _, tc := range tcs {
		t.Run(tc.desc, func(t *testing.T) {
			c, _, err := invokeCommand(tc.args)
			if err != nil {
				t.Fatalf("unexpected error invoking command: %s", err)
			}
			if diff := cmp.Diff(tc.want, c.cfg); diff != "" {
				t.Fatalf("got unexpected server config (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTransportFlags(t *testing.T) {
	c, _, err := invokeCommand([]string{"--stdio", "--config", "server.yaml"})
	if err != nil {
		t.Fatalf("unexpected error invoking command: %s", err)
	}
	if !c.stdio {
		t.Fatal("stdio flag not set")
	}
	if c.configFile != "server.yaml" {
		t.Fatalf("unexpected config file: %q", c.configFile)
	}
}

func TestFlagValidation(t *testing.T) {
	tcs := []struct {
		desc string
		args []string
	}{
		{desc: "invalid logging format", args: []string{"--logging-format", "fancy"}},
		{desc: "invalid log level", args: []string{"--log-level", "shout"}},
	}
	for _, tc := range tcs {
		t.Run(tc.desc, func(t *testing.T) {
			if _, _, err := invokeCommand(tc.args); err == nil {
				t.Fatal("expected flag parsing to fail")
			}
		})
	}
}

func TestApplyFileConfig(t *testing.T) {
	c, _, err := invokeCommand([]string{"-p", "6000"})
	if err != nil {
		t.Fatalf("unexpected error invoking command: %s", err)
	}
	c.applyFileConfig(server.ServerConfig{
		Name:    "configured",
		Address: "0.0.0.0",
		Port:    7000,
		Strict:  true,
	})

	// the explicit flag wins, unset flags fall back to the file
	if c.cfg.Port != 6000 {
		t.Fatalf("flag did not take precedence: %d", c.cfg.Port)
	}
	if c.cfg.Address != "0.0.0.0" {
		t.Fatalf("file address not applied: %q", c.cfg.Address)
	}
	if c.cfg.Name != "configured" || !c.cfg.Strict {
		t.Fatalf("file-only fields not applied: %+v", c.cfg)
	}
}
