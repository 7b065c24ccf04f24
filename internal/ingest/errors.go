package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrTransient         = errors.New("transient weather fetch failure")
	ErrMalformedResponse = errors.New("malformed weather response")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidWindow     = errors.New("invalid fetch window")
)

// TransientFetchError is a failure worth retrying: timeouts, connection
// errors, HTTP 429 and 5xx, or a body cut off mid-read.
type TransientFetchError struct {
	Attempt    int
	StatusCode int // zero when no response was received
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("attempt %d: status %d: %v", e.Attempt, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("attempt %d: %v", e.Attempt, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

func (e *TransientFetchError) Is(target error) bool { return target == ErrTransient }

// MalformedResponseError means the provider answered 200 but the body could
// not be used. It is never retried.
type MalformedResponseError struct {
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return "malformed response: " + e.Reason
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// StatusError is a non-retryable HTTP status from the provider.
type StatusError struct {
	StatusCode int
	Reason     string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("weather provider returned status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("weather provider returned status %d", e.StatusCode)
}
