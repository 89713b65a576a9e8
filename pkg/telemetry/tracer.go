// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry wires W3C trace-context propagation and Prometheus
// metrics for the engine. Every inbound event handling task opens a span
// (spec §5's "span-per-task" model); the Agent Event Publisher reads the
// active span's context back out and serialises it into the
// trace_context tag (spec §4.9).
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerConfig configures the OTLP exporter backing the engine's tracer.
type TracerConfig struct {
	Enabled      bool
	EndpointURL  string
	SamplingRate float64
	ServiceName  string
}

// Tracer wraps an OpenTelemetry TracerProvider and the W3C text-map
// propagator used to move trace context across the relay wire.
type Tracer struct {
	provider    trace.TracerProvider
	tracer      trace.Tracer
	propagator  propagation.TextMapPropagator
	shutdownFn  func(context.Context) error
}

// NewTracer constructs a Tracer. When cfg.Enabled is false it returns a
// no-op tracer so callers never need to branch on whether tracing is on.
func NewTracer(ctx context.Context, cfg TracerConfig) (*Tracer, error) {
	propagator := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)

	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		return &Tracer{
			provider:   tp,
			tracer:     tp.Tracer("tenex"),
			propagator: propagator,
			shutdownFn: func(context.Context) error { return nil },
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.EndpointURL),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator)

	return &Tracer{
		provider:   tp,
		tracer:     tp.Tracer("tenex"),
		propagator: propagator,
		shutdownFn: tp.Shutdown,
	}, nil
}

// StartTask opens a span for one inbound-event handling task, per spec
// §5's cooperative-scheduler model where each event is handled by a task.
func (t *Tracer) StartTask(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

// InjectTraceContext serialises the span context carried by ctx into a
// W3C traceparent string, for the outbound trace_context tag.
func (t *Tracer) InjectTraceContext(ctx context.Context) string {
	carrier := propagation.MapCarrier{}
	t.propagator.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}

// ExtractTraceContext parses a W3C traceparent string (as carried by an
// inbound event's trace_context tag) back into a context.Context so a
// continued task can link its span to the originating one.
func (t *Tracer) ExtractTraceContext(ctx context.Context, traceparent string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceparent}
	return t.propagator.Extract(ctx, carrier)
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.shutdownFn == nil {
		return nil
	}
	return t.shutdownFn(ctx)
}
