package rabbitmq

import "fmt"

// TransportError indicates that the management API could not be reached or
// answered with a non-success status. Timeouts are reported as transport
// errors as well.
//
type TransportError struct {
	// URL is the full address that was requested.
	//
	URL string

	// StatusCode is the HTTP status received, or 0 if no response made it
	// back (connection refused, timeout, ...).
	//
	StatusCode int

	Err error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("get '%s': unexpected status %d", e.URL, e.StatusCode)
	}

	return fmt.Sprintf("get '%s': %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError indicates that the response body could not be turned into a
// list of queues: either it isn't a JSON array, or one of its elements is
// missing a required field.
//
type DecodeError struct {
	// Index is the position of the offending element in the response
	// array, or -1 when the body as a whole is malformed.
	//
	Index int

	// Field is the name of the missing field, if that is what went wrong.
	//
	Field string

	Err error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("decode queues: %v", e.Err)
	case e.Field != "":
		return fmt.Sprintf("decode queue #%d: missing field '%s'", e.Index, e.Field)
	default:
		return fmt.Sprintf("decode queue #%d: %v", e.Index, e.Err)
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
