package downstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure is the non-success outcome of a downstream call. Responded distinguishes
// "the service answered with an error status" from "the service could not be reached".
type Failure struct {
	Service   string
	Status    int // downstream status, or 500 when it never answered
	Header    http.Header
	Body      []byte
	Responded bool
	Err       error // transport error when !Responded
}

func (f *Failure) Error() string {
	if !f.Responded {
		return fmt.Sprintf("%s unreachable: %v", f.Service, f.Err)
	}
	return fmt.Sprintf("%s responded %d", f.Service, f.Status)
}

func (f *Failure) Unwrap() error { return f.Err }

// Message is the text surfaced to callers in an {error: ...} body
func (f *Failure) Message() string {
	if !f.Responded && f.Err != nil {
		return f.Err.Error()
	}
	if len(f.Body) > 0 {
		return string(f.Body)
	}
	return http.StatusText(f.Status)
}

func unreachable(service string, err error) *Failure {
	return &Failure{Service: service, Status: http.StatusInternalServerError, Err: err}
}

// AsFailure unwraps err into a *Failure, or builds an unreachable one for foreign errors
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return unreachable("gateway", err)
}
