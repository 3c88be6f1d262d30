package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("MustRegister() panicked: %v", r)
		}
	}()
	MustRegister(reg)

	// Record some values so metrics appear in Gather()
	RecordDownstream("jobs", OutcomeSuccess, 10*time.Millisecond)
	RecordHTTPRequest("GET /api/jobs", 200)
	RecordWorkflow("DONE", "")
	RecordDashboardDegraded("notifications")

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Registry.Gather() error: %v", err)
	}

	expectedMetrics := []string{
		"bff_downstream_requests_total",
		"bff_downstream_request_duration_seconds",
		"bff_http_requests_total",
		"bff_booking_workflows_total",
		"bff_dashboard_degraded_total",
	}

	registered := make(map[string]bool)
	for _, mf := range metricFamilies {
		registered[mf.GetName()] = true
	}
	for _, name := range expectedMetrics {
		if !registered[name] {
			t.Errorf("expected metric %s not found in registry", name)
		}
	}
}

func TestRecordDownstream(t *testing.T) {
	DownstreamRequestsTotal.Reset()
	DownstreamDuration.Reset()

	tests := []struct {
		name    string
		service string
		outcome string
		calls   int
	}{
		{name: "successful jobs calls", service: "jobs", outcome: OutcomeSuccess, calls: 3},
		{name: "payment http errors", service: "payments", outcome: OutcomeHTTPError, calls: 2},
		{name: "unreachable notifications", service: "notifications", outcome: OutcomeUnreachable, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < tt.calls; i++ {
				RecordDownstream(tt.service, tt.outcome, 5*time.Millisecond)
			}

			got := testutil.ToFloat64(DownstreamRequestsTotal.WithLabelValues(tt.service, tt.outcome))
			if got != float64(tt.calls) {
				t.Errorf("bff_downstream_requests_total{%s,%s} = %v, want %d", tt.service, tt.outcome, got, tt.calls)
			}
		})
	}

	if n := testutil.CollectAndCount(DownstreamDuration); n != 3 {
		t.Errorf("bff_downstream_request_duration_seconds series = %d, want 3", n)
	}
}

func TestRecordWorkflow(t *testing.T) {
	BookingWorkflowsTotal.Reset()

	RecordWorkflow("DONE", "")
	RecordWorkflow("DONE", "")
	RecordWorkflow("FAILED", "trigger_payment")

	if got := testutil.ToFloat64(BookingWorkflowsTotal.WithLabelValues("DONE", "")); got != 2 {
		t.Errorf("DONE workflows = %v, want 2", got)
	}
	if got := testutil.ToFloat64(BookingWorkflowsTotal.WithLabelValues("FAILED", "trigger_payment")); got != 1 {
		t.Errorf("FAILED/trigger_payment workflows = %v, want 1", got)
	}
}

func TestRecordHTTPRequestAndDegraded(t *testing.T) {
	HTTPRequestsTotal.Reset()
	DashboardDegradedTotal.Reset()

	RecordHTTPRequest("GET /api/dashboard", 200)
	RecordHTTPRequest("GET /api/dashboard", 500)
	RecordDashboardDegraded("notifications")

	if got := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET /api/dashboard", "500")); got != 1 {
		t.Errorf("dashboard 500s = %v, want 1", got)
	}
	if got := testutil.ToFloat64(DashboardDegradedTotal.WithLabelValues("notifications")); got != 1 {
		t.Errorf("degraded notifications = %v, want 1", got)
	}
}
