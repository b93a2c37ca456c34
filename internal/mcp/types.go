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

// Package mcp holds the Model Context Protocol wire types shared by the
// dispatcher and the transports.
package mcp

// LATEST_PROTOCOL_VERSION is the most recent version of the MCP protocol.
const LATEST_PROTOCOL_VERSION = "2025-03-26"

// SupportedProtocolVersions lists the protocol versions the server accepts
// during initialize, newest first.
var SupportedProtocolVersions = []string{"2025-03-26", "2024-11-05"}

// VerifyProtocolVersion reports whether v is a supported protocol version.
func VerifyProtocolVersion(v string) bool {
	for _, s := range SupportedProtocolVersions {
		if s == v {
			return true
		}
	}
	return false
}

// Method names for the built-in request handlers.
const (
	INITIALIZE        = "initialize"
	PING              = "ping"
	TOOLS_LIST        = "tools/list"
	TOOLS_CALL        = "tools/call"
	RESOURCES_LIST    = "resources/list"
	RESOURCES_READ    = "resources/read"
	PROMPTS_LIST      = "prompts/list"
	PROMPTS_GET       = "prompts/get"
	PROMPTS_SUBSCRIBE = "prompts/subscribe"
	ROOTS_LIST        = "roots/list"

	// SAMPLING_CREATE_MESSAGE is the method of server-initiated requests
	// asking the client for an LLM generation step.
	SAMPLING_CREATE_MESSAGE = "sampling/createMessage"
)

// Notification method names. Cancellation is accepted under three aliases.
const (
	NOTIFICATION_INITIALIZED = "notifications/initialized"
	NOTIFICATION_CANCELLED   = "notifications/cancelled"
	CANCEL_REQUEST           = "$/cancelRequest"
	CANCEL                   = "$/cancel"
)

// List-changed notification methods pushed when a registry collection changes.
const (
	NOTIFICATION_TOOLS_LIST_CHANGED     = "notifications/tools/list_changed"
	NOTIFICATION_RESOURCES_LIST_CHANGED = "notifications/resources/list_changed"
	NOTIFICATION_PROMPTS_LIST_CHANGED   = "notifications/prompts/list_changed"
	NOTIFICATION_ROOTS_LIST_CHANGED     = "notifications/roots/list_changed"
)

// Implementation describes the name and version of an MCP implementation.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ListChanged represents whether the server emits change notifications for a
// collection.
type ListChanged struct {
	ListChanged *bool `json:"listChanged,omitempty"`
}

// ResourcesCapability describes the server's resource support.
type ResourcesCapability struct {
	Subscribe   *bool `json:"subscribe,omitempty"`
	ListChanged *bool `json:"listChanged,omitempty"`
}

// SamplingCapability advertises supported sampling features and limits.
type SamplingCapability struct {
	Supported        bool  `json:"supported"`
	Streaming        bool  `json:"streaming,omitempty"`
	ToolCalls        bool  `json:"toolCalls,omitempty"`
	Images           bool  `json:"images,omitempty"`
	ModelPreferences bool  `json:"modelPreferences,omitempty"`
	MaxTokensLimit   int   `json:"maxTokensLimit,omitempty"`
	DefaultTimeoutMs int64 `json:"defaultTimeoutMs,omitempty"`
}

// ServerCapabilities represents capabilities the server may support.
type ServerCapabilities struct {
	Tools     *ListChanged         `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *ListChanged         `json:"prompts,omitempty"`
	Roots     *ListChanged         `json:"roots,omitempty"`
	Sampling  *SamplingCapability  `json:"sampling,omitempty"`
}

// ClientCapabilities represents capabilities a client may support.
type ClientCapabilities struct {
	Experimental map[string]interface{} `json:"experimental,omitempty"`
	Roots        *ListChanged           `json:"roots,omitempty"`
	Sampling     map[string]interface{} `json:"sampling,omitempty"`
}

// InitializeParams carries the client's half of the handshake.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is sent after receiving an initialize request from the
// client.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

/* Tools */

// ToolAnnotations carry optional hints about tool behavior.
type ToolAnnotations struct {
	Title        string `json:"title,omitempty"`
	ReadOnlyHint bool   `json:"readOnlyHint,omitempty"`
}

// ToolManifest is the self-describing entry returned by tools/list.
type ToolManifest struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	InputSchema map[string]any   `json:"inputSchema"`
	Annotations *ToolAnnotations `json:"annotations,omitempty"`
}

// ListToolsResult is the server's response to a tools/list request.
type ListToolsResult struct {
	Tools []ToolManifest `json:"tools"`
}

// CallToolParams identify the tool and its arguments.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolResult is the server's response to a tool call.
//
// Errors that originate from the tool SHOULD be reported inside the result
// object with `isError` set to true, not as a protocol-level error response,
// so the calling LLM can see them and self-correct.
type CallToolResult struct {
	Content []any `json:"content"`
	IsError bool  `json:"isError"`
}

/* Resources */

// ResourceManifest is the entry returned by resources/list.
type ResourceManifest struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult is the server's response to a resources/list request.
type ListResourcesResult struct {
	Resources []ResourceManifest `json:"resources"`
}

// ReadResourceParams identify the resource by exact URI.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// ReadResourceResult carries the resource contents; every item carries the
// resource URI.
type ReadResourceResult struct {
	Contents []any `json:"contents"`
}

/* Prompts */

// PromptArgument describes one argument a prompt template accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptManifest is the entry returned by prompts/list.
type PromptManifest struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// ListPromptsResult is the server's response to a prompts/list request.
type ListPromptsResult struct {
	Prompts []PromptManifest `json:"prompts"`
}

// GetPromptParams identify the prompt and its arguments.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptMessage is one message of an expanded prompt template.
type PromptMessage struct {
	Role    string         `json:"role"`
	Content map[string]any `json:"content"`
}

// GetPromptResult is the server's response to a prompts/get request.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

/* Roots */

// RootManifest is the entry returned by roots/list.
type RootManifest struct {
	URI  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ListRootsResult is the server's response to a roots/list request.
type ListRootsResult struct {
	Roots []RootManifest `json:"roots"`
}

/* Content items */

// TextContent represents text provided to or from an LLM.
type TextContent struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// ImageContent represents base64 encoded image data.
type ImageContent struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// AudioContent represents base64 encoded audio data.
type AudioContent struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// BlobContent represents opaque base64 encoded bytes.
type BlobContent struct {
	Type     string `json:"type"`
	Blob     string `json:"blob"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

/* Sampling */

// SamplingMessageContent is the content of one sampling message; type is
// "text" or "image".
type SamplingMessageContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// SamplingMessage is one conversation turn handed to the client's model.
type SamplingMessage struct {
	Role    string                 `json:"role"`
	Content SamplingMessageContent `json:"content"`
}

// ModelPreferences carry optional hints about model selection.
type ModelPreferences struct {
	Hints                []map[string]any `json:"hints,omitempty"`
	CostPriority         *float64         `json:"costPriority,omitempty"`
	SpeedPriority        *float64         `json:"speedPriority,omitempty"`
	IntelligencePriority *float64         `json:"intelligencePriority,omitempty"`
}

// CreateMessageParams is the camelCase wire shape of a sampling/createMessage
// request sent to the client.
type CreateMessageParams struct {
	Messages         []SamplingMessage `json:"messages"`
	SystemPrompt     string            `json:"systemPrompt,omitempty"`
	IncludeContext   string            `json:"includeContext,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	MaxTokens        int               `json:"maxTokens,omitempty"`
	StopSequences    []string          `json:"stopSequences,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	ModelPreferences *ModelPreferences `json:"modelPreferences,omitempty"`
}

// CreateMessageResult is the client's answer to a sampling request.
type CreateMessageResult struct {
	Role       string                 `json:"role"`
	Content    SamplingMessageContent `json:"content"`
	Model      string                 `json:"model,omitempty"`
	StopReason string                 `json:"stopReason,omitempty"`
}
