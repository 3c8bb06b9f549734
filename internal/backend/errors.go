package backend

import "fmt"

// TransportError covers network failures and 5xx responses from the canteen
// API. The portal shows these as a generic "try again" message and never
// retries automatically.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError is a 4xx rejection of malformed parameters.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NotFoundError means the requested resource does not exist upstream, e.g. a
// detail fetch for a stale or deleted order.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// BusinessRuleError is a cancel (or similar mutation) the server refused for
// domain reasons. Message is the server-provided reason, passed through to
// the user verbatim.
type BusinessRuleError struct {
	Message string
}

func (e *BusinessRuleError) Error() string {
	return e.Message
}
