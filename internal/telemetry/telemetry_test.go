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
package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	instr, err := CreateTelemetryInstrumentation("test")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	ctx := context.Background()
	instr.McpPost.Add(ctx, 2)
	instr.McpStdio.Add(ctx, 1)
	instr.SamplingOutbound.Add(ctx, 3)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("unable to collect metrics: %s", err)
	}

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			sums[m.Name] = total
		}
	}

	want := map[string]int64{
		"mcpkit.mcp.post":          2,
		"mcpkit.mcp.stdio":         1,
		"mcpkit.sampling.outbound": 3,
	}
	for name, n := range want {
		if sums[name] != n {
			t.Errorf("counter %s: got %d, want %d", name, sums[name], n)
		}
	}
}

func TestTracerRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	instr, err := CreateTelemetryInstrumentation("test")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	_, span := instr.Tracer.Start(context.Background(), "mcpkit/server/mcp")
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	if got := ended[0].Name(); got != "mcpkit/server/mcp" {
		t.Fatalf("unexpected span name: %q", got)
	}
	if got := ended[0].InstrumentationScope().Name; got != scopeName {
		t.Fatalf("unexpected instrumentation scope: %q", got)
	}
}
