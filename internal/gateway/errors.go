package gateway

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a request is started while another one is still
// in flight on the same client.
var ErrBusy = errors.New("another request is in progress")

// Error is a failed web service call. Message is meant for the auditor.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the auditor-facing text of err: the message of a
// gateway Error when there is one, otherwise err's own text.
func Message(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	if errors.Is(err, ErrBusy) {
		return "Another request is already in progress"
	}
	return err.Error()
}

func unexpected(descr string) *Error {
	return &Error{Message: fmt.Sprintf("Unexpected response from %s request", descr)}
}
