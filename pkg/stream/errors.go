package stream

import (
	"errors"
	"fmt"
)

// ErrConnection is matched by every transport failure of the event stream.
var ErrConnection = errors.New("engine connection error")

// ConnectionError describes a failure to open or keep the event stream.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrConnection, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// IsConnectionError checks if an error came from the event stream transport.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnection)
}
