package gateway

import (
	"context"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/austindbirch/prestus_bff/internal/tracing"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	exporter := tracetest.NewInMemoryExporter()
	otel.SetTracerProvider(trace.NewTracerProvider(trace.WithSyncer(exporter)))
	otel.SetTextMapPropagator(tracing.Propagator())
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func TestCreateBooking_Spans(t *testing.T) {
	exporter := setupTestTracer(t)
	rig := newBookingRig(t, true, http.StatusCreated, createdBooking)
	rig.payments.respond(http.StatusServiceUnavailable, `{"error":"later"}`)

	rig.orch.CreateBooking(context.Background(), []byte(`{}`))

	byName := map[string]tracetest.SpanStub{}
	for _, s := range exporter.GetSpans() {
		byName[s.Name] = s
	}

	root, ok := byName["booking.workflow"]
	if !ok {
		t.Fatalf("booking.workflow span missing; got %v", exporter.GetSpans().Snapshots())
	}
	if root.Status.Code != codes.Error {
		t.Errorf("workflow span status = %v, want Error", root.Status.Code)
	}
	for _, name := range []string{"downstream.bookings", "downstream.payment-function"} {
		child, ok := byName[name]
		if !ok {
			t.Errorf("%s span missing", name)
			continue
		}
		if child.Parent.SpanID() != root.SpanContext.SpanID() {
			t.Errorf("%s is not a child of the workflow span", name)
		}
	}
	if _, ok := byName["downstream.notification-function"]; ok {
		t.Error("notification span should not exist after a payment failure")
	}

	// traceparent travels to the downstream
	if rig.bookings.Calls()[0].Header.Get("Traceparent") == "" {
		t.Error("bookings call carried no traceparent")
	}
}
