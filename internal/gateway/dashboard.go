package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/austindbirch/prestus_bff/internal/downstream"
	"github.com/austindbirch/prestus_bff/internal/logging"
	"github.com/austindbirch/prestus_bff/internal/metrics"
	"github.com/austindbirch/prestus_bff/internal/tracing"
)

// DegradedHeader names the dashboard branches that were substituted with defaults
const DegradedHeader = "X-Dashboard-Degraded"

// Dashboard is the aggregated view. Bookings is always empty: no bookings query is made.
type Dashboard struct {
	Jobs          json.RawMessage   `json:"jobs"`
	Bookings      []json.RawMessage `json:"bookings"`
	Notifications []json.RawMessage `json:"notifications"`
}

// NotificationsResult is the outcome of the notifications branch: the items on success,
// or an empty list together with the cause of the substitution.
type NotificationsResult struct {
	Items []json.RawMessage
	Err   error
}

func (r NotificationsResult) Degraded() bool { return r.Err != nil }

// AggregationError is returned when the jobs branch fails
type AggregationError struct {
	Cause *downstream.Failure
}

func (e *AggregationError) Error() string { return "aggregation failed: " + e.Cause.Error() }

func (e *AggregationError) Unwrap() error { return e.Cause }

// Response renders the aggregation-failure envelope. Downstream 5xx statuses are kept,
// everything else becomes 500.
func (e *AggregationError) Response() Response {
	status := http.StatusInternalServerError
	if e.Cause.Responded && e.Cause.Status >= 500 && e.Cause.Status <= 599 {
		status = e.Cause.Status
	}
	return JSON(status, errorBody{Error: "aggregation failed", Details: failureDetails(e.Cause)})
}

var errNotificationsShape = errors.New("notifications response is neither a list nor an {items} envelope")

// Aggregator fans out to the jobs and notifications services and merges the answers
type Aggregator struct {
	jobs          downstream.Caller
	notifications downstream.Caller
	defaultLimit  int
	logger        *logging.Logger
}

func NewAggregator(jobs, notifications downstream.Caller, defaultLimit int, logger *logging.Logger) *Aggregator {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	return &Aggregator{jobs: jobs, notifications: notifications, defaultLimit: defaultLimit, logger: logger}
}

// ParseLimit reads a notificationsLimit query value; anything but a positive integer yields def
func ParseLimit(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Aggregate starts both branches before waiting on either. A jobs failure fails the
// whole aggregation; a notifications failure is absorbed into an empty list.
func (a *Aggregator) Aggregate(ctx context.Context, statusFilter string, limit int) (*Dashboard, NotificationsResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dashboard.aggregate")
	defer span.End()

	if limit <= 0 {
		limit = a.defaultLimit
	}

	var (
		jobs  *downstream.Result
		notes NotificationsResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var query url.Values
		if statusFilter != "" {
			query = url.Values{"status": {statusFilter}}
		}
		res, err := a.jobs.Do(gctx, downstream.Spec{Method: http.MethodGet, Path: "/jobs", Query: query})
		if err != nil {
			return err
		}
		jobs = res
		return nil
	})
	g.Go(func() error {
		notes = a.fetchNotifications(gctx, limit)
		return nil
	})

	if err := g.Wait(); err != nil {
		aggErr := &AggregationError{Cause: downstream.AsFailure(err)}
		tracing.SetSpanError(ctx, aggErr)
		a.logger.WithContext(ctx).WithDownstream(a.jobs.Name()).WithError(err).Error("dashboard aggregation failed")
		return nil, notes, aggErr
	}

	jobsBody := json.RawMessage(jobs.Body)
	if len(jobsBody) == 0 {
		jobsBody = json.RawMessage("[]")
	} else if !json.Valid(jobsBody) {
		aggErr := &AggregationError{Cause: &downstream.Failure{
			Service: a.jobs.Name(),
			Status:  http.StatusInternalServerError,
			Err:     errors.New("jobs response is not valid JSON"),
		}}
		tracing.SetSpanError(ctx, aggErr)
		return nil, notes, aggErr
	}

	if notes.Degraded() {
		metrics.RecordDashboardDegraded("notifications")
		tracing.AddSpanEvent(ctx, "dashboard.notifications_substituted")
		a.logger.WithContext(ctx).WithDownstream(a.notifications.Name()).WithError(notes.Err).
			Warn("notifications unavailable, serving empty list")
	}

	return &Dashboard{
		Jobs:          jobsBody,
		Bookings:      []json.RawMessage{},
		Notifications: notes.Items,
	}, notes, nil
}

func (a *Aggregator) fetchNotifications(ctx context.Context, limit int) NotificationsResult {
	res, err := a.notifications.Do(ctx, downstream.Spec{
		Method: http.MethodGet,
		Query:  url.Values{"limit": {strconv.Itoa(limit)}},
	})
	if err != nil {
		return NotificationsResult{Items: []json.RawMessage{}, Err: err}
	}
	items, err := decodeNotifications(res.Body)
	if err != nil {
		return NotificationsResult{Items: []json.RawMessage{}, Err: err}
	}
	return NotificationsResult{Items: items}
}

// decodeNotifications accepts a bare list or an {items: [...]} envelope
func decodeNotifications(body []byte) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil {
		if list == nil {
			list = []json.RawMessage{}
		}
		return list, nil
	}

	var envelope struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Items != nil {
		return envelope.Items, nil
	}
	return nil, errNotificationsShape
}
