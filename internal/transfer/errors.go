package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrPeerDisconnected = errors.New("peer disconnected")
	ErrSignalingError   = errors.New("signaling server error")
	ErrSignalingLost    = errors.New("lost connection to signaling server")
	ErrRoomClosed       = errors.New("room closed")
	ErrTimeout          = errors.New("timeout")
	ErrChannelClosed    = errors.New("data channel closed")
	ErrUnexpectedData   = errors.New("unexpected data channel message")
	ErrNameMismatch     = errors.New("filename mismatch")
)

// SessionError wraps a failure with the operation that produced it.
type SessionError struct {
	Op      string
	Err     error
	Details string
}

func (e *SessionError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewError wraps err with an operation name.
func NewError(op string, err error) *SessionError {
	return &SessionError{Op: op, Err: err}
}

// WrapError wraps err with an operation name and free-form detail.
func WrapError(op string, err error, details string) *SessionError {
	return &SessionError{Op: op, Err: err, Details: details}
}
