// Copyright 2025 mcpkit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package server

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcpkit/mcpkit/internal/auth"
	"github.com/mcpkit/mcpkit/internal/mcp"
	"github.com/mcpkit/mcpkit/internal/session"
	"github.com/mcpkit/mcpkit/internal/util"
)

// ServerConfig is the complete configuration of a Server.
type ServerConfig struct {
	// Version is the server version advertised in initialize.
	Version string `yaml:"-"`
	// Name is the server name advertised in initialize.
	Name string `yaml:"name"`
	// Address is the address of the interface the server will listen on.
	Address string `yaml:"address"`
	// Port is the port the server will listen on.
	Port int `yaml:"port"`
	// Instructions is optional usage guidance included in initialize.
	Instructions string `yaml:"instructions"`
	// ProtocolVersions restricts the accepted protocol versions; empty
	// accepts every supported version.
	ProtocolVersions []string `yaml:"protocol_versions"`
	// Strict suppresses internal error details in error data.
	Strict bool `yaml:"strict"`
	// Sampling configures server-initiated requests.
	Sampling SamplingOptions `yaml:"sampling"`
	// HTTP configures the streaming transport.
	HTTP HTTPOptions `yaml:"http"`
	// Session configures session lifecycle.
	Session SessionOptions `yaml:"session"`
	// Buffer configures inbound framing limits.
	Buffer BufferOptions `yaml:"buffer"`
	// Auth configures the security middleware.
	Auth AuthOptions `yaml:"auth"`
	// LoggingFormat defines whether structured loggings are used.
	LoggingFormat LogFormat `yaml:"logging_format"`
	// LogLevel defines the levels to log.
	LogLevel StringLevel `yaml:"log_level"`
}

// SamplingOptions configure the sampling capability.
type SamplingOptions struct {
	Enabled           bool `yaml:"enabled"`
	TimeoutSeconds    int  `yaml:"timeout_seconds"`
	MaxTokensLimit    int  `yaml:"max_tokens_limit"`
	SupportsStreaming bool `yaml:"supports_streaming"`
	SupportsToolCalls bool `yaml:"supports_tool_calls"`
	SupportsImages    bool `yaml:"supports_images"`
}

// HTTPOptions configure the streaming transport endpoint.
type HTTPOptions struct {
	Path              string `yaml:"path"`
	EventRingCapacity int    `yaml:"event_ring_capacity"`
	KeepaliveSeconds  int    `yaml:"keepalive_seconds"`
}

// SessionOptions configure session lifecycle.
type SessionOptions struct {
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
}

// DefaultMaxFrameBytes bounds inbound stdio frames when unconfigured.
const DefaultMaxFrameBytes = 4 << 20

// BufferOptions configure inbound framing limits.
type BufferOptions struct {
	MaxFrameBytes int `yaml:"max_frame_bytes"`
}

// AuthOptions configure the security middleware.
type AuthOptions struct {
	Enabled    bool            `yaml:"enabled"`
	Strategies StrategyConfigs `yaml:"strategies"`
}

// SamplingConfig converts the options into the session-level configuration.
func (c *ServerConfig) SamplingConfig() session.SamplingConfig {
	return session.SamplingConfig{
		Enabled:        c.Sampling.Enabled,
		Timeout:        time.Duration(c.Sampling.TimeoutSeconds) * time.Second,
		MaxTokensLimit: c.Sampling.MaxTokensLimit,
		Streaming:      c.Sampling.SupportsStreaming,
		ToolCalls:      c.Sampling.SupportsToolCalls,
		Images:         c.Sampling.SupportsImages,
	}
}

// SupportedVersions returns the protocol versions this server accepts.
func (c *ServerConfig) SupportedVersions() []string {
	if len(c.ProtocolVersions) > 0 {
		return c.ProtocolVersions
	}
	return mcp.SupportedProtocolVersions
}

// EndpointPath returns the HTTP endpoint path, default "/mcp".
func (c *ServerConfig) EndpointPath() string {
	if c.HTTP.Path != "" {
		return c.HTTP.Path
	}
	return "/mcp"
}

// Keepalive returns the stream keep-alive cadence, default 15s.
func (c *ServerConfig) Keepalive() time.Duration {
	if c.HTTP.KeepaliveSeconds > 0 {
		return time.Duration(c.HTTP.KeepaliveSeconds) * time.Second
	}
	return 15 * time.Second
}

// IdleTimeout returns the session eviction threshold.
func (c *ServerConfig) IdleTimeout() time.Duration {
	if c.Session.IdleTimeoutSeconds > 0 {
		return time.Duration(c.Session.IdleTimeoutSeconds) * time.Second
	}
	return session.DefaultIdleTimeout
}

// MaxFrameBytes returns the inbound frame size limit.
func (c *ServerConfig) MaxFrameBytes() int {
	if c.Buffer.MaxFrameBytes > 0 {
		return c.Buffer.MaxFrameBytes
	}
	return DefaultMaxFrameBytes
}

// ParseConfig decodes a YAML configuration file.
func ParseConfig(raw []byte) (ServerConfig, error) {
	var cfg ServerConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unable to parse config: %w", err)
	}
	return cfg, nil
}

// LogFormat defines whether structured loggings are used.
type LogFormat string

// String is used by both fmt.Print and by Cobra in help text
func (f *LogFormat) String() string {
	if string(*f) != "" {
		return strings.ToLower(string(*f))
	}
	return "standard"
}

// validate logging format flag
func (f *LogFormat) Set(v string) error {
	switch strings.ToLower(v) {
	case "standard", "json":
		*f = LogFormat(v)
		return nil
	default:
		return fmt.Errorf(`log format must be one of "standard", or "json"`)
	}
}

// Type is used in Cobra help text
func (f *LogFormat) Type() string {
	return "logFormat"
}

// UnmarshalYAML validates the format when read from a file.
func (f *LogFormat) UnmarshalYAML(node *yaml.Node) error {
	var v string
	if err := node.Decode(&v); err != nil {
		return err
	}
	if v == "" {
		return nil
	}
	return f.Set(v)
}

// StringLevel is the configured log level.
type StringLevel string

// String is used by both fmt.Print and by Cobra in help text
func (s *StringLevel) String() string {
	if string(*s) != "" {
		return strings.ToLower(string(*s))
	}
	return "info"
}

// validate log level flag
func (s *StringLevel) Set(v string) error {
	switch strings.ToLower(v) {
	case "debug", "info", "warn", "error":
		*s = StringLevel(v)
		return nil
	default:
		return fmt.Errorf(`log level must be one of "debug", "info", "warn", or "error"`)
	}
}

// Type is used in Cobra help text
func (s *StringLevel) Type() string {
	return "stringLevel"
}

// UnmarshalYAML validates the level when read from a file.
func (s *StringLevel) UnmarshalYAML(node *yaml.Node) error {
	var v string
	if err := node.Decode(&v); err != nil {
		return err
	}
	if v == "" {
		return nil
	}
	return s.Set(v)
}

// StrategyConfig is the interface authentication strategy configs implement.
type StrategyConfig interface {
	StrategyConfigKind() string
	Initialize() (auth.Strategy, error)
}

// APIKeyStrategyConfig configures the shared-key strategy.
type APIKeyStrategyConfig struct {
	Kind string            `yaml:"kind" validate:"required"`
	Keys map[string]string `yaml:"keys" validate:"required"`
}

// StrategyConfigKind implements StrategyConfig.
func (c APIKeyStrategyConfig) StrategyConfigKind() string { return "apikey" }

// Initialize implements StrategyConfig.
func (c APIKeyStrategyConfig) Initialize() (auth.Strategy, error) {
	if len(c.Keys) == 0 {
		return nil, fmt.Errorf("apikey strategy requires at least one key")
	}
	return auth.NewAPIKeyStrategy(c.Keys), nil
}

// TokenStrategyConfig configures the signed-token strategy.
type TokenStrategyConfig struct {
	Kind     string `yaml:"kind" validate:"required"`
	Secret   string `yaml:"secret" validate:"required"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// StrategyConfigKind implements StrategyConfig.
func (c TokenStrategyConfig) StrategyConfigKind() string { return "token" }

// Initialize implements StrategyConfig.
func (c TokenStrategyConfig) Initialize() (auth.Strategy, error) {
	return auth.NewTokenStrategy([]byte(c.Secret), c.Issuer, c.Audience), nil
}

// StrategyConfigs is a type used to allow unmarshal of the strategy config list
type StrategyConfigs []StrategyConfig

// validate interface
var _ yaml.Unmarshaler = &StrategyConfigs{}

func (c *StrategyConfigs) UnmarshalYAML(node *yaml.Node) error {
	*c = make(StrategyConfigs, 0)
	var raw []yaml.Node
	if err := node.Decode(&raw); err != nil {
		return err
	}

	for i, n := range raw {
		var k struct {
			Kind string `yaml:"kind"`
		}
		if err := n.Decode(&k); err != nil {
			return fmt.Errorf("missing 'kind' field for strategy %d", i)
		}
		var rawStrategy map[string]any
		if err := n.Decode(&rawStrategy); err != nil {
			return fmt.Errorf("unable to decode strategy %d: %w", i, err)
		}
		dec, err := util.NewStrictDecoder(rawStrategy)
		if err != nil {
			return fmt.Errorf("unable to decode strategy %d: %w", i, err)
		}
		switch k.Kind {
		case "apikey":
			actual := APIKeyStrategyConfig{}
			if err := dec.Decode(&actual); err != nil {
				return fmt.Errorf("unable to parse strategy %d as %q: %w", i, k.Kind, err)
			}
			*c = append(*c, actual)
		case "token":
			actual := TokenStrategyConfig{}
			if err := dec.Decode(&actual); err != nil {
				return fmt.Errorf("unable to parse strategy %d as %q: %w", i, k.Kind, err)
			}
			*c = append(*c, actual)
		default:
			return fmt.Errorf("%q is not a valid kind of authentication strategy", k.Kind)
		}
	}
	return nil
}

// Initialize builds the configured strategies in declaration order.
func (o AuthOptions) Initialize() ([]auth.Strategy, error) {
	out := make([]auth.Strategy, 0, len(o.Strategies))
	for i, sc := range o.Strategies {
		s, err := sc.Initialize()
		if err != nil {
			return nil, fmt.Errorf("unable to initialize strategy %d: %w", i, err)
		}
		out = append(out, s)
	}
	return out, nil
}
