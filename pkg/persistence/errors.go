// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrImageNotFound indicates a gallery image was not found by the given identifier.
	ErrImageNotFound = errors.New("image not found")

	// ErrInvalidRecord indicates a record failed validation before storage.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnsupportedBackend indicates a database URL with an unknown scheme.
	ErrUnsupportedBackend = errors.New("unsupported persistence backend")
)

// RecordError wraps storage errors with the operation and record involved.
type RecordError struct {
	Op       string // Operation being performed (e.g., "SaveImage", "Images")
	Kind     string // Record kind: "image" or "prompt"
	RecordID string // Record ID if applicable
	Err      error  // Underlying error
}

func (e *RecordError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Kind, e.RecordID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for record errors.
func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewImageError creates an error for a gallery image operation.
func NewImageError(op, imageID string, err error) *RecordError {
	return &RecordError{Op: op, Kind: "image", RecordID: imageID, Err: err}
}

// NewPromptError creates an error for a prompt operation.
func NewPromptError(op, promptID string, err error) *RecordError {
	return &RecordError{Op: op, Kind: "prompt", RecordID: promptID, Err: err}
}

// IsImageNotFound checks if an error indicates a gallery image was not found.
func IsImageNotFound(err error) bool {
	return errors.Is(err, ErrImageNotFound)
}

// IsInvalidRecord checks if an error indicates a record failed validation.
func IsInvalidRecord(err error) bool {
	return errors.Is(err, ErrInvalidRecord)
}
