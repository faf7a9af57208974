package scoring

import "fmt"

// ServiceError is a response from the scoring service that cannot be used:
// a non-200 status other than the gateway family, or a malformed body.
type ServiceError struct {
	StatusCode int
	Body       string
	RequestID  string
	Err        error
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("scoring service error: status=%d", e.StatusCode)
	if e.RequestID != "" {
		msg += " request_id=" + e.RequestID
	}
	if e.Err != nil {
		msg += fmt.Sprintf(" error=%v", e.Err)
	}
	if e.Body != "" {
		msg += " body=" + e.Body
	}
	return msg
}

func (e *ServiceError) Unwrap() error { return e.Err }

// UnavailableError indicates the scoring service could not be reached: a
// transport failure, a timeout, or a gateway status that persisted through
// every retry.
type UnavailableError struct {
	URL        string
	StatusCode int
	Attempts   int
	// Body and RequestID come from the last gateway response, if any.
	Body      string
	RequestID string
	Err       error
}

func (e *UnavailableError) Error() string {
	if e == nil {
		return "scoring service unavailable"
	}
	if e.StatusCode != 0 {
		msg := fmt.Sprintf("scoring service unavailable at %s: status=%d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
		if e.RequestID != "" {
			msg += " request_id=" + e.RequestID
		}
		if e.Body != "" {
			msg += " body=" + e.Body
		}
		return msg
	}
	return fmt.Sprintf("scoring service unavailable at %s after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
