package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Downstream call outcomes
const (
	OutcomeSuccess     = "success"
	OutcomeHTTPError   = "http_error"
	OutcomeUnreachable = "unreachable"
)

var (
	DownstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bff_downstream_requests_total",
			Help: "Total number of downstream calls by service and outcome.",
		},
		[]string{"service", "outcome"},
	)

	DownstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bff_downstream_request_duration_seconds",
			Help:    "Latency of downstream calls by service.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bff_http_requests_total",
			Help: "Total number of gateway requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	BookingWorkflowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bff_booking_workflows_total",
			Help: "Booking workflows by terminal state and failed step.",
		},
		[]string{"state", "failed_step"}, // failed_step is "" unless state=FAILED
	)

	DashboardDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bff_dashboard_degraded_total",
			Help: "Dashboard responses served with a substituted branch.",
		},
		[]string{"branch"},
	)
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		DownstreamRequestsTotal,
		DownstreamDuration,
		HTTPRequestsTotal,
		BookingWorkflowsTotal,
		DashboardDegradedTotal,
	)
}

// RecordDownstream counts one downstream call and observes its latency
func RecordDownstream(service, outcome string, d time.Duration) {
	DownstreamRequestsTotal.WithLabelValues(service, outcome).Inc()
	DownstreamDuration.WithLabelValues(service).Observe(d.Seconds())
}

func RecordHTTPRequest(route string, code int) {
	HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func RecordWorkflow(state, failedStep string) {
	BookingWorkflowsTotal.WithLabelValues(state, failedStep).Inc()
}

func RecordDashboardDegraded(branch string) {
	DashboardDegradedTotal.WithLabelValues(branch).Inc()
}
