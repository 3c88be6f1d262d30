package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/austindbirch/prestus_bff/internal/downstream"
)

// Response is what the gateway answers a caller with
type Response struct {
	Status int
	Header http.Header // extra headers set by the gateway
	Body   []byte
}

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// Write sends r to w as JSON
func (r Response) Write(w http.ResponseWriter) {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(r.Status)
	_, _ = w.Write(r.Body)
}

// JSON encodes v into a Response with status
func JSON(status int, v any) Response {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(errorBody{Error: err.Error()})
		status = http.StatusInternalServerError
	}
	return Response{Status: status, Body: b}
}

// passthrough mirrors a successful downstream answer
func passthrough(res *downstream.Result) Response {
	return Response{Status: res.Status, Header: contentType(res.Header), Body: res.Body}
}

// ErrorResponse maps any error to the caller-facing answer. A downstream that answered
// has its status and body relayed; an unreachable one yields 500 {error: <message>}.
func ErrorResponse(err error) Response {
	f := downstream.AsFailure(err)
	if !f.Responded {
		return JSON(http.StatusInternalServerError, errorBody{Error: f.Message()})
	}
	if json.Valid(f.Body) && len(f.Body) > 0 {
		return Response{Status: f.Status, Header: contentType(f.Header), Body: f.Body}
	}
	// Non-JSON error bodies are wrapped so callers always get an error field
	return JSON(f.Status, errorBody{Error: f.Message()})
}

// failureDetails is the downstream error as a JSON value for aggregation envelopes
func failureDetails(f *downstream.Failure) any {
	if f.Responded && len(f.Body) > 0 && json.Valid(f.Body) {
		return json.RawMessage(f.Body)
	}
	return errorBody{Error: f.Message()}
}

func contentType(h http.Header) http.Header {
	if ct := h.Get("Content-Type"); ct != "" {
		return http.Header{"Content-Type": {ct}}
	}
	return nil
}
