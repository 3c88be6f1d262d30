package tracing

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer installs an in-memory tracer provider and the gateway propagator
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())
	return exporter
}

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{name: "with SERVICE_VERSION set", envValue: "v1.2.3", expected: "v1.2.3"},
		{name: "with SERVICE_VERSION not set", envValue: "", expected: "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("SERVICE_VERSION", tt.envValue)
				defer os.Unsetenv("SERVICE_VERSION")
			} else {
				os.Unsetenv("SERVICE_VERSION")
			}

			if got := getVersion(); got != tt.expected {
				t.Errorf("getVersion() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetInstanceID(t *testing.T) {
	tests := []struct {
		name        string
		hostnameEnv string
		podNameEnv  string
		expected    string
	}{
		{name: "with HOSTNAME set", hostnameEnv: "bff-01", expected: "bff-01"},
		{name: "with POD_NAME set (no HOSTNAME)", podNameEnv: "bff-abc123", expected: "bff-abc123"},
		{name: "HOSTNAME takes precedence", hostnameEnv: "bff-01", podNameEnv: "bff-abc123", expected: "bff-01"},
		{name: "with neither set", expected: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOSTNAME", tt.hostnameEnv)
			t.Setenv("POD_NAME", tt.podNameEnv)

			if got := getInstanceID(); got != tt.expected {
				t.Errorf("getInstanceID() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetOTLPEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected string
	}{
		{name: "with http:// prefix", envValue: "http://tempo:4318", expected: "tempo:4318"},
		{name: "with https:// prefix", envValue: "https://tempo:4318", expected: "tempo:4318"},
		{name: "without protocol prefix", envValue: "tempo:4318", expected: "tempo:4318"},
		{name: "default when unset", envValue: "", expected: "otel-collector:4318"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.envValue)

			if got := getOTLPEndpoint(); got != tt.expected {
				t.Errorf("getOTLPEndpoint() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestStartSpan(t *testing.T) {
	exporter := setupTestTracer(t)

	ctx, span := StartSpan(context.Background(), "downstream.jobs",
		attribute.String("downstream.service", "jobs"),
	)
	AddSpanEvent(ctx, "request.sent")
	SetSpanError(ctx, errors.New("connection refused"))
	SetSpanError(ctx, nil)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	got := spans[0]
	if got.Name != "downstream.jobs" {
		t.Errorf("span name = %q, want %q", got.Name, "downstream.jobs")
	}
	if len(got.Attributes) != 1 || got.Attributes[0].Value.AsString() != "jobs" {
		t.Errorf("span attributes = %v, want downstream.service=jobs", got.Attributes)
	}
	if len(got.Events) < 1 || got.Events[0].Name != "request.sent" {
		t.Errorf("span events = %v, want request.sent first", got.Events)
	}
	if got.Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", got.Status.Code)
	}
}

func TestGetTraceID(t *testing.T) {
	setupTestTracer(t)

	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("GetTraceID() without span = %q, want empty", id)
	}

	ctx, span := StartSpan(context.Background(), "op")
	defer span.End()
	if id := GetTraceID(ctx); len(id) != 32 {
		t.Errorf("GetTraceID() = %q, want 32 hex chars", id)
	}
}

func TestHTTPRoundTrip(t *testing.T) {
	setupTestTracer(t)

	ctx, span := StartSpan(context.Background(), "gateway.request")
	defer span.End()
	original := GetTraceID(ctx)

	h := http.Header{}
	InjectHTTP(ctx, h)
	if h.Get("traceparent") == "" {
		t.Fatal("InjectHTTP() did not set traceparent")
	}

	next, child := StartSpan(ExtractHTTP(context.Background(), h), "downstream.call")
	defer child.End()

	if got := GetTraceID(next); got != original {
		t.Errorf("trace id after HTTP round trip = %q, want %q", got, original)
	}
}

func TestNSQRoundTrip(t *testing.T) {
	setupTestTracer(t)

	ctx, span := StartSpan(context.Background(), "booking.workflow")
	defer span.End()
	original := GetTraceID(ctx)

	headers := PropagateTraceToNSQ(ctx)
	if len(headers) == 0 {
		t.Fatal("PropagateTraceToNSQ() returned empty headers")
	}

	next, child := StartSpan(ExtractTraceFromNSQ(context.Background(), headers), "consumer")
	defer child.End()

	if got := GetTraceID(next); got != original {
		t.Errorf("trace id after NSQ round trip = %q, want %q", got, original)
	}
}

func TestExtractTraceFromNSQ_InvalidHeaders(t *testing.T) {
	setupTestTracer(t)

	for _, headers := range []map[string]string{
		nil,
		{},
		{"traceparent": "invalid-trace-context"},
	} {
		ctx := ExtractTraceFromNSQ(context.Background(), headers)
		if ctx == nil {
			t.Fatal("ExtractTraceFromNSQ() returned nil context")
		}
		if id := GetTraceID(ctx); id != "" {
			t.Errorf("ExtractTraceFromNSQ(%v) trace id = %q, want empty", headers, id)
		}
	}
}
