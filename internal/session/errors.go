package session

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrInvalidIdentity  = errors.New("user id is required")
	ErrNoRecipient      = errors.New("recipient is required")
)

// StateError reports an operation attempted in the wrong state.
type StateError struct {
	Op    string
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v (session %s)", e.Op, e.Err, e.State)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

func notConnected(op string) error {
	return &StateError{Op: op, State: StateDisconnected, Err: ErrNotConnected}
}
