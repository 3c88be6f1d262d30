package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/austindbirch/prestus_bff/internal/downstream"
	"github.com/austindbirch/prestus_bff/internal/events"
	"github.com/austindbirch/prestus_bff/internal/logging"
	"github.com/austindbirch/prestus_bff/internal/metrics"
	"github.com/austindbirch/prestus_bff/internal/tracing"
)

// State of a booking workflow. FAILED and DONE are terminal.
type State string

const (
	StatePending          State = "PENDING"
	StateBookingCreated   State = "BOOKING_CREATED"
	StatePaymentTriggered State = "PAYMENT_TRIGGERED"
	StateNotified         State = "NOTIFIED"
	StateDone             State = "DONE"
	StateFailed           State = "FAILED"
)

type Step string

const (
	StepCreateBooking    Step = "create_booking"
	StepTriggerPayment   Step = "trigger_payment"
	StepSendNotification Step = "send_notification"
)

// Workflow tracks one booking creation for the duration of a single request
type Workflow struct {
	ID         string
	State      State
	History    []State
	Completed  []Step
	FailedStep Step
	BookingID  any
	JobID      any
	Err        error
}

func newWorkflow() *Workflow {
	return &Workflow{
		ID:      uuid.NewString(),
		State:   StatePending,
		History: []State{StatePending},
	}
}

func (w *Workflow) advance(to State, step Step) {
	w.State = to
	w.History = append(w.History, to)
	w.Completed = append(w.Completed, step)
}

func (w *Workflow) fail(step Step, err error) {
	w.State = StateFailed
	w.History = append(w.History, StateFailed)
	w.FailedStep = step
	w.Err = err
}

func (w *Workflow) finish() {
	w.State = StateDone
	w.History = append(w.History, StateDone)
}

// WorkflowSink receives the outcome of every workflow
type WorkflowSink interface {
	PublishWorkflow(ctx context.Context, ev events.WorkflowEvent) error
}

type BookingDeps struct {
	Bookings       downstream.Caller
	Payments       downstream.Caller
	Notifications  downstream.Caller
	TriggerPayment bool
	Events         WorkflowSink // optional
	Logger         *logging.Logger
}

// BookingOrchestrator runs create booking, then payment (when enabled), then notification.
// Steps are strictly sequential and nothing is compensated: a failure after step 1
// leaves the booking (and possibly the payment) in place downstream.
type BookingOrchestrator struct {
	bookings       downstream.Caller
	payments       downstream.Caller
	notifications  downstream.Caller
	triggerPayment bool
	sink           WorkflowSink
	logger         *logging.Logger
}

func NewBookingOrchestrator(d BookingDeps) *BookingOrchestrator {
	return &BookingOrchestrator{
		bookings:       d.Bookings,
		payments:       d.Payments,
		notifications:  d.Notifications,
		triggerPayment: d.TriggerPayment,
		sink:           d.Events,
		logger:         d.Logger,
	}
}

// bookingRequest holds the fields the later steps read; the body itself is forwarded untouched
type bookingRequest struct {
	WorkerContact any `json:"worker_contact"`
	Amount        any `json:"amount"`
	Method        any `json:"method"`
}

type bookingOutcome struct {
	ID    any `json:"id"`
	JobID any `json:"job_id"`
}

type paymentRequest struct {
	BookingID any `json:"bookingId"`
	Amount    any `json:"amount"`
	Method    any `json:"method"`
}

type notificationRequest struct {
	BookingID any    `json:"bookingId"`
	Recipient any    `json:"recipient"`
	Message   string `json:"message"`
}

// CreateBooking runs the workflow. On success the answer is exactly the bookings
// service's creation response; on failure it is the failing step's error.
func (o *BookingOrchestrator) CreateBooking(ctx context.Context, body []byte) (Response, *Workflow) {
	wf := newWorkflow()
	ctx, span := tracing.StartSpan(ctx, "booking.workflow",
		attribute.String("workflow.id", wf.ID),
		attribute.Bool("workflow.payment_enabled", o.triggerPayment),
	)
	defer span.End()
	defer o.record(ctx, wf)

	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	var req bookingRequest
	_ = decodeJSON(body, &req) // validation belongs to the bookings service

	created, err := o.bookings.Do(ctx, downstream.Spec{Method: http.MethodPost, Path: "/bookings", Body: body})
	if err != nil {
		wf.fail(StepCreateBooking, err)
		return ErrorResponse(err), wf
	}
	var outcome bookingOutcome
	_ = decodeJSON(created.Body, &outcome)
	wf.BookingID, wf.JobID = outcome.ID, outcome.JobID
	wf.advance(StateBookingCreated, StepCreateBooking)
	tracing.AddSpanEvent(ctx, "booking.created", attribute.String("booking.id", display(outcome.ID)))

	if o.triggerPayment {
		payment, err := json.Marshal(paymentRequest{
			BookingID: outcome.ID,
			Amount:    amountOrZero(req.Amount),
			Method:    methodOrCash(req.Method),
		})
		if err == nil {
			_, err = o.payments.Do(ctx, downstream.Spec{Method: http.MethodPost, Body: payment})
		}
		if err != nil {
			wf.fail(StepTriggerPayment, err)
			return ErrorResponse(err), wf
		}
		wf.advance(StatePaymentTriggered, StepTriggerPayment)
	}

	notification, err := json.Marshal(notificationRequest{
		BookingID: outcome.ID,
		Recipient: req.WorkerContact,
		Message:   NotificationMessage(outcome.JobID),
	})
	if err == nil {
		_, err = o.notifications.Do(ctx, downstream.Spec{Method: http.MethodPost, Body: notification})
	}
	if err != nil {
		wf.fail(StepSendNotification, err)
		return ErrorResponse(err), wf
	}
	wf.advance(StateNotified, StepSendNotification)
	wf.finish()

	return passthrough(created), wf
}

// NotificationMessage is the text sent to the worker once a booking exists
func NotificationMessage(jobID any) string {
	return fmt.Sprintf("booking created for job %s", display(jobID))
}

func (o *BookingOrchestrator) record(ctx context.Context, wf *Workflow) {
	metrics.RecordWorkflow(string(wf.State), string(wf.FailedStep))

	completed := make([]string, 0, len(wf.Completed))
	for _, s := range wf.Completed {
		completed = append(completed, string(s))
	}

	entry := o.logger.WithContext(ctx).WithWorkflow(wf.ID).WithBooking(wf.BookingID).
		WithField("state", wf.State).
		WithField("completed_steps", completed)

	status, lastErr := 0, ""
	if wf.State == StateFailed {
		f := downstream.AsFailure(wf.Err)
		status, lastErr = f.Status, f.Error()
		tracing.SetSpanError(ctx, wf.Err)
		entry = entry.WithField("failed_step", wf.FailedStep).WithError(wf.Err)
		if len(completed) > 0 {
			entry.Error("booking workflow failed after committing earlier steps; nothing was rolled back")
		} else {
			entry.Warn("booking workflow failed")
		}
	} else {
		entry.Info("booking workflow completed")
	}

	if o.sink == nil {
		return
	}
	ev := events.NewWorkflowEvent(wf.ID, string(wf.State), completed, string(wf.FailedStep), status, lastErr)
	ev.BookingID, ev.JobID = wf.BookingID, wf.JobID
	if err := o.sink.PublishWorkflow(ctx, ev); err != nil {
		o.logger.WithContext(ctx).WithWorkflow(wf.ID).WithError(err).Warn("workflow event not published")
	}
}

func decodeJSON(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	return dec.Decode(v)
}

// truthy mirrors what callers of the original API relied on: null, false, 0 and "" count as absent
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		return err != nil || f != 0
	case float64:
		return t != 0
	}
	return true
}

func amountOrZero(v any) any {
	if truthy(v) {
		return v
	}
	return 0
}

func methodOrCash(v any) any {
	if truthy(v) {
		return v
	}
	return "cash"
}

func display(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	return fmt.Sprint(v)
}
