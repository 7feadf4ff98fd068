package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrSubmissionFailed is matched by every error returned from a failed batch submission.
	ErrSubmissionFailed = errors.New("submission failed")
	// ErrInvalidAddress indicates an engine address that is not an absolute http(s) URL.
	ErrInvalidAddress = errors.New("invalid engine address")
)

// HTTPError represents a non-2xx engine response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// SubmissionError reports which job of a batch failed. Jobs before Index were
// accepted by the engine and are not withdrawn.
type SubmissionError struct {
	Index int
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%v: job %d: %v", ErrSubmissionFailed, e.Index, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func (e *SubmissionError) Is(target error) bool {
	return target == ErrSubmissionFailed
}

// IsSubmissionFailed checks if an error came from a failed batch submission.
func IsSubmissionFailed(err error) bool {
	return errors.Is(err, ErrSubmissionFailed)
}
