package tracing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"mercator-hq/workbench/pkg/config"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Disabled(t *testing.T) {
	tracer, err := New(&config.TracingConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tracer.Enabled() {
		t.Error("expected disabled tracer")
	}

	ctx, span := tracer.Start(context.Background(), "noop")
	span.End()
	if TraceID(ctx) != "" {
		t.Error("noop span should not carry a trace ID")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestRootSampler(t *testing.T) {
	tests := []struct {
		name    string
		ratio   float64
		want    string
		wantErr bool
	}{
		{SamplerAlways, 0, "AlwaysOnSampler", false},
		{SamplerNever, 0, "AlwaysOffSampler", false},
		{SamplerRatio, 0.25, "TraceIDRatioBased{0.25}", false},
		{SamplerRatio, 1.5, "", true},
		{"sometimes", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := rootSampler(tt.name, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("rootSampler(%q, %v) error = %v, wantErr %v", tt.name, tt.ratio, err, tt.wantErr)
			}
			if err == nil && sampler.Description() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, sampler.Description())
			}
		})
	}
}

func TestNewWithExporter_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(&config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		ServiceName: "test",
	}, exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}

	ctx, span := tracer.Start(context.Background(), "/rpc")
	if TraceID(ctx) == "" {
		t.Error("expected trace ID for sampled span")
	}
	SetStatus(span, http.StatusBadGateway)
	SetError(span, errors.New("session unavailable"))
	span.End()

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported %d spans, want 1", len(spans))
	}
	if spans[0].Name != "/rpc" {
		t.Errorf("span name = %q, want /rpc", spans[0].Name)
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status.Code)
	}
}

func TestPropagation_RoundTrip(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewWithExporter(&config.TracingConfig{
		Enabled: true,
		Sampler: SamplerAlways,
	}, exporter)
	if err != nil {
		t.Fatalf("NewWithExporter() error = %v", err)
	}
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.Start(context.Background(), "outgoing")
	defer span.End()

	headers := http.Header{}
	Inject(ctx, headers)
	if headers.Get("traceparent") == "" {
		t.Fatal("Inject() did not set traceparent")
	}

	extracted := Extract(context.Background(), headers)
	child, childSpan := tracer.Start(extracted, "incoming")
	defer childSpan.End()

	if TraceID(child) != TraceID(ctx) {
		t.Errorf("extracted trace ID %q, want %q", TraceID(child), TraceID(ctx))
	}
}
