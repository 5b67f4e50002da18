/*
Copyright 2022 The Matrix.org Foundation C.I.C.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sfu

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sfu"

var tracer = otel.Tracer(tracerName)

// TelemetryConfig configures the Jaeger exporter that the transports'
// Publish/DataPublish/Subscribe/DataSubscribe spans are exported through.
type TelemetryConfig struct {
	// JaegerURL is the collector endpoint traces are exported to.
	JaegerURL string `yaml:"jaegerUrl"`
	// ID identifies this process instance in exported spans.
	ID string `yaml:"id"`
}

// SetupTelemetry wires up a Jaeger-backed TracerProvider as the process
// global, for span() to pick up (spec's ambient stack).
func SetupTelemetry(cfg TelemetryConfig) (*tracesdk.TracerProvider, error) {
	if cfg.JaegerURL == "" {
		return nil, fmt.Errorf("jaeger url is not set")
	}

	res, err := resource.New(
		context.Background(),
		resource.WithContainer(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(tracerName),
			attribute.String("ID", cfg.ID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to build jaeger exporter: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

// span starts a child span under ctx, used to trace a transport's
// Publish/DataPublish/Subscribe/DataSubscribe calls.
func span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
