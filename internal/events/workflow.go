package events

import "time"

const WorkflowType = "booking.workflow"

// WorkflowEvent is the outcome record of one booking workflow. FAILED events with
// completed steps identify bookings (and payments) left behind without rollback.
type WorkflowEvent struct {
	Type           string            `json:"type"`    // "booking.workflow"
	Version        string            `json:"version"` // schema version
	At             string            `json:"at"`      // RFC3339 time the workflow ended
	WorkflowID     string            `json:"workflow_id"`
	RequestID      string            `json:"request_id,omitempty"`
	State          string            `json:"state"` // DONE or FAILED
	CompletedSteps []string          `json:"completed_steps"`
	FailedStep     string            `json:"failed_step,omitempty"`
	BookingID      any               `json:"booking_id,omitempty"`
	JobID          any               `json:"job_id,omitempty"`
	HTTPStatus     int               `json:"http_status,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
	TraceHeaders   map[string]string `json:"trace_headers,omitempty"`
}

func NewWorkflowEvent(workflowID, state string, completed []string, failedStep string, httpStatus int, lastErr string) WorkflowEvent {
	if completed == nil {
		completed = []string{}
	}
	return WorkflowEvent{
		Type:           WorkflowType,
		Version:        "v1",
		At:             time.Now().UTC().Format(time.RFC3339Nano),
		WorkflowID:     workflowID,
		State:          state,
		CompletedSteps: completed,
		FailedStep:     failedStep,
		HTTPStatus:     httpStatus,
		LastError:      lastErr,
	}
}

// Orphaned reports whether the workflow failed after committing at least one step downstream
func (e WorkflowEvent) Orphaned() bool {
	return e.FailedStep != "" && len(e.CompletedSteps) > 0
}
