package main

import "fmt"

// StartupError marks failures that happen before anything gets served:
// unusable configuration, metric registration, or binding the metrics
// port.
//
type StartupError struct {
	Op  string
	Err error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("startup: %s: %v", e.Op, e.Err)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}

func startupError(op string, err error) error {
	return &StartupError{Op: op, Err: err}
}
