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

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/mcpkit/mcpkit"

// Instrumentation holds the tracer and counters threaded through the server.
type Instrumentation struct {
	Tracer trace.Tracer

	// McpPost counts inbound JSON-RPC messages on the HTTP transport.
	McpPost metric.Int64Counter
	// McpStream counts streaming channel attachments.
	McpStream metric.Int64Counter
	// McpStdio counts frames handled on the stdio transport.
	McpStdio metric.Int64Counter
	// SamplingOutbound counts server-initiated sampling requests.
	SamplingOutbound metric.Int64Counter
}

// CreateTelemetryInstrumentation returns an Instrumentation backed by the
// global otel providers.
func CreateTelemetryInstrumentation(versionString string) (*Instrumentation, error) {
	tracer := otel.Tracer(scopeName, trace.WithInstrumentationVersion(versionString))
	meter := otel.Meter(scopeName, metric.WithInstrumentationVersion(versionString))

	mcpPost, err := meter.Int64Counter(
		"mcpkit.mcp.post",
		metric.WithDescription("The number of JSON-RPC messages received over HTTP POST."),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create mcp post counter: %w", err)
	}

	mcpStream, err := meter.Int64Counter(
		"mcpkit.mcp.stream",
		metric.WithDescription("The number of streaming channel attachments."),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create mcp stream counter: %w", err)
	}

	mcpStdio, err := meter.Int64Counter(
		"mcpkit.mcp.stdio",
		metric.WithDescription("The number of frames handled on the stdio transport."),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create mcp stdio counter: %w", err)
	}

	samplingOutbound, err := meter.Int64Counter(
		"mcpkit.sampling.outbound",
		metric.WithDescription("The number of server-initiated sampling requests."),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create sampling counter: %w", err)
	}

	instrumentation := &Instrumentation{
		Tracer:           tracer,
		McpPost:          mcpPost,
		McpStream:        mcpStream,
		McpStdio:         mcpStdio,
		SamplingOutbound: samplingOutbound,
	}
	return instrumentation, nil
}
