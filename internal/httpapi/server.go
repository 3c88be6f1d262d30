package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/austindbirch/prestus_bff/internal/downstream"
	"github.com/austindbirch/prestus_bff/internal/gateway"
	"github.com/austindbirch/prestus_bff/internal/health"
	"github.com/austindbirch/prestus_bff/internal/logging"
)

// MaxBodyBytes caps inbound JSON payloads
const MaxBodyBytes = 1 << 20

// WorkflowHeader carries the booking workflow id back to the caller
const WorkflowHeader = "X-Workflow-Id"

type Deps struct {
	Jobs          downstream.Caller
	Bookings      downstream.Caller
	Notifications downstream.Caller
	Payments      downstream.Caller

	TriggerPayment     bool
	NotificationsLimit int
	Events             gateway.WorkflowSink // optional
	Gatherer           prometheus.Gatherer  // nil disables /metrics
	Logger             *logging.Logger
}

// Server is the gateway's HTTP surface
type Server struct {
	deps       Deps
	forwarder  *gateway.Forwarder
	aggregator *gateway.Aggregator
	bookings   *gateway.BookingOrchestrator
	logger     *logging.Logger
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = logging.New("prestus-bff")
	}
	return &Server{
		deps:       d,
		forwarder:  gateway.NewForwarder(d.Logger),
		aggregator: gateway.NewAggregator(d.Jobs, d.Notifications, d.NotificationsLimit, d.Logger),
		bookings: gateway.NewBookingOrchestrator(gateway.BookingDeps{
			Bookings:       d.Bookings,
			Payments:       d.Payments,
			Notifications:  d.Notifications,
			TriggerPayment: d.TriggerPayment,
			Events:         d.Events,
			Logger:         d.Logger,
		}),
		logger: d.Logger,
	}
}

// Handler returns the routed and instrumented handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.instrument(pattern, h))
	}

	jobs, bookings, notes := s.deps.Jobs, s.deps.Bookings, s.deps.Notifications

	handle("GET /api/jobs", s.forwardTo(jobs, fixed("/jobs")))
	handle("GET /api/jobs/{id}", s.forwardTo(jobs, param("/jobs/", "id", "")))
	handle("POST /api/jobs", s.forwardTo(jobs, fixed("/jobs")))
	handle("PUT /api/jobs/{id}", s.forwardTo(jobs, param("/jobs/", "id", "")))
	handle("DELETE /api/jobs/{id}", s.forwardTo(jobs, param("/jobs/", "id", "")))

	handle("GET /api/bookings", s.forwardTo(bookings, fixed("/bookings")))
	handle("GET /api/bookings/{id}", s.forwardTo(bookings, param("/bookings/", "id", "")))
	handle("GET /api/bookings/job/{jobId}", s.forwardTo(bookings, param("/bookings/job/", "jobId", "")))
	handle("POST /api/bookings", s.createBooking)
	handle("PUT /api/bookings/{id}/status", s.forwardTo(bookings, param("/bookings/", "id", "/status")))
	handle("DELETE /api/bookings/{id}", s.forwardTo(bookings, param("/bookings/", "id", "")))

	// The notification sender is addressed by its full function URL
	handle("GET /api/notifications", s.forwardTo(notes, fixed("")))
	handle("POST /api/notifications", s.forwardTo(notes, fixed("")))

	handle("GET /api/dashboard", s.dashboard)
	handle("GET /health", health.HTTPHandler(downstream.Names()))

	if s.deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return withRequestContext(withCORS(withRecovery(s.logger, mux)))
}

type pathFunc func(*http.Request) string

func fixed(p string) pathFunc {
	return func(*http.Request) string { return p }
}

// param builds prefix + escaped path value + suffix
func param(prefix, name, suffix string) pathFunc {
	return func(r *http.Request) string {
		return prefix + url.PathEscape(r.PathValue(name)) + suffix
	}
}

func (s *Server) forwardTo(c downstream.Caller, path pathFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, resp, ok := readJSONBody(w, r)
		if !ok {
			resp.Write(w)
			return
		}
		s.forwarder.Forward(r.Context(), c, r.Method, path(r), payload, r.Header, r.URL.Query()).Write(w)
	}
}

func (s *Server) createBooking(w http.ResponseWriter, r *http.Request) {
	payload, resp, ok := readJSONBody(w, r)
	if !ok {
		resp.Write(w)
		return
	}
	resp, wf := s.bookings.CreateBooking(r.Context(), payload)
	w.Header().Set(WorkflowHeader, wf.ID)
	resp.Write(w)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := gateway.ParseLimit(q.Get("notificationsLimit"), s.deps.NotificationsLimit)

	d, notes, err := s.aggregator.Aggregate(r.Context(), q.Get("status"), limit)
	if err != nil {
		var aggErr *gateway.AggregationError
		if errors.As(err, &aggErr) {
			aggErr.Response().Write(w)
			return
		}
		gateway.ErrorResponse(err).Write(w)
		return
	}

	resp := gateway.JSON(http.StatusOK, d)
	if notes.Degraded() {
		resp.Header = http.Header{gateway.DegradedHeader: {"notifications"}}
	}
	resp.Write(w)
}

// readJSONBody reads a bounded request body. Empty bodies are allowed; anything
// else must be valid JSON.
func readJSONBody(w http.ResponseWriter, r *http.Request) ([]byte, gateway.Response, bool) {
	if r.Body == nil {
		return nil, gateway.Response{}, true
	}
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, gateway.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"}), false
		}
		return nil, gateway.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()}), false
	}
	if len(b) == 0 {
		return nil, gateway.Response{}, true
	}
	if !json.Valid(b) {
		return nil, gateway.JSON(http.StatusBadRequest, map[string]string{"error": "request body is not valid JSON"}), false
	}
	return b, gateway.Response{}, true
}
