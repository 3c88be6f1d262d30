package downstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/austindbirch/prestus_bff/internal/config"
	"github.com/austindbirch/prestus_bff/internal/logging"
	"github.com/austindbirch/prestus_bff/internal/metrics"
	"github.com/austindbirch/prestus_bff/internal/requestid"
)

func init() {
	logging.SetOutput(io.Discard)
}

type captured struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   string
}

func newBackend(t *testing.T, status int, body string, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if got != nil {
			*got = captured{
				method: r.Method,
				path:   r.URL.Path,
				query:  r.URL.Query(),
				header: r.Header.Clone(),
				body:   string(b),
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientDo_Success(t *testing.T) {
	var got captured
	srv := newBackend(t, http.StatusCreated, `{"id":"B1"}`, &got)
	c := New("bookings", srv.URL)

	ctx := requestid.WithID(context.Background(), "req-42")
	res, err := c.Do(ctx, Spec{
		Method: http.MethodPost,
		Path:   "/bookings",
		Body:   []byte(`{"job_id":"J1"}`),
		Query:  url.Values{"dry": {"1"}},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if res.Status != http.StatusCreated {
		t.Errorf("Do() status = %d, want %d", res.Status, http.StatusCreated)
	}
	if string(res.Body) != `{"id":"B1"}` {
		t.Errorf("Do() body = %s, want %s", res.Body, `{"id":"B1"}`)
	}
	if got.method != http.MethodPost || got.path != "/bookings" {
		t.Errorf("backend saw %s %s, want POST /bookings", got.method, got.path)
	}
	if got.body != `{"job_id":"J1"}` {
		t.Errorf("backend body = %s", got.body)
	}
	if got.query.Get("dry") != "1" {
		t.Errorf("backend query = %v, want dry=1", got.query)
	}
	if ct := got.header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("backend Content-Type = %q, want application/json", ct)
	}
	if id := got.header.Get(requestid.Header); id != "req-42" {
		t.Errorf("backend %s = %q, want req-42", requestid.Header, id)
	}
}

func TestClientDo_MergesBaseQuery(t *testing.T) {
	var got captured
	srv := newBackend(t, http.StatusOK, `[]`, &got)
	c := New("notification-function", srv.URL+"/api/send-notification?code=fnkey")

	if _, err := c.Do(context.Background(), Spec{
		Method: http.MethodGet,
		Query:  url.Values{"limit": {"20"}},
	}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got.path != "/api/send-notification" {
		t.Errorf("path = %q", got.path)
	}
	if got.query.Get("code") != "fnkey" || got.query.Get("limit") != "20" {
		t.Errorf("query = %v, want code=fnkey&limit=20", got.query)
	}
}

func TestClientDo_DropsBodyForBodilessMethods(t *testing.T) {
	var got captured
	srv := newBackend(t, http.StatusOK, `{}`, &got)
	c := New("jobs", srv.URL)

	if _, err := c.Do(context.Background(), Spec{Method: http.MethodGet, Path: "/jobs", Body: []byte(`{"x":1}`)}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got.body != "" {
		t.Errorf("GET carried body %q, want none", got.body)
	}
}

func TestClientDo_ErrorStatus(t *testing.T) {
	metrics.DownstreamRequestsTotal.Reset()
	srv := newBackend(t, http.StatusNotFound, `{"error":"job not found"}`, nil)
	c := New("jobs", srv.URL)

	_, err := c.Do(context.Background(), Spec{Method: http.MethodGet, Path: "/jobs/9"})
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("Do() error = %v, want *Failure", err)
	}
	if !f.Responded {
		t.Error("Failure.Responded = false, want true")
	}
	if f.Status != http.StatusNotFound {
		t.Errorf("Failure.Status = %d, want 404", f.Status)
	}
	if string(f.Body) != `{"error":"job not found"}` {
		t.Errorf("Failure.Body = %s", f.Body)
	}
	if n := testutil.ToFloat64(metrics.DownstreamRequestsTotal.WithLabelValues("jobs", metrics.OutcomeHTTPError)); n != 1 {
		t.Errorf("http_error count = %v, want 1", n)
	}
}

func TestClientDo_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := New("payment-function", addr)
	_, err := c.Do(context.Background(), Spec{Method: http.MethodPost, Body: []byte(`{}`)})

	f := AsFailure(err)
	if f.Responded {
		t.Error("Failure.Responded = true, want false")
	}
	if f.Status != http.StatusInternalServerError {
		t.Errorf("Failure.Status = %d, want 500", f.Status)
	}
	if f.Err == nil || f.Message() == "" {
		t.Errorf("Failure should carry the transport error, got %+v", f)
	}
}

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		f    *Failure
		want string
	}{
		{name: "transport error", f: &Failure{Service: "jobs", Status: 500, Err: errors.New("dial tcp: refused")}, want: "dial tcp: refused"},
		{name: "body present", f: &Failure{Service: "jobs", Status: 503, Responded: true, Body: []byte("down")}, want: "down"},
		{name: "empty body", f: &Failure{Service: "jobs", Status: 502, Responded: true}, want: "Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAsFailureWrapsForeignErrors(t *testing.T) {
	f := AsFailure(errors.New("boom"))
	if f.Responded || f.Status != http.StatusInternalServerError {
		t.Errorf("AsFailure(foreign) = %+v, want unreachable 500", f)
	}
	orig := &Failure{Service: "jobs", Status: 418, Responded: true}
	if AsFailure(orig) != orig {
		t.Error("AsFailure should return the same *Failure")
	}
}

func TestNewServices(t *testing.T) {
	s := NewServices(config.Services{
		JobsURL:         "http://jobs:3001",
		BookingsURL:     "http://bookings:3002",
		NotificationURL: "http://fn:7071/api/send-notification",
		PaymentURL:      "http://fn:7071/api/process-payment",
	})
	want := Names()
	got := []string{s.Jobs.Name(), s.Bookings.Name(), s.Notifications.Name(), s.Payments.Name()}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("service %d name = %q, want %q", i, got[i], want[i])
		}
	}
	u, err := s.Jobs.URL(Spec{Path: "/jobs/7"})
	if err != nil || u != "http://jobs:3001/jobs/7" {
		t.Errorf("Jobs.URL() = %q, %v", u, err)
	}
}
