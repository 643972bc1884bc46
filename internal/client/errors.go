package client

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a request gets no response in time. The
	// request may still complete in the helper; its late response is dropped.
	ErrTimeout = errors.New("request timed out")

	// ErrHelperUnavailable is returned when the helper cannot be reached or
	// the connection to it was lost.
	ErrHelperUnavailable = errors.New("menu bar item service unavailable")
)

// LaunchError reports a failure to launch or start the helper.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch menu bar item service: %v", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}
