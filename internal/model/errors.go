package model

import "errors"

// Errors returned when a value transition is not allowed.
var (
	// ErrAlreadyCompleted is returned when completing an audit that already
	// has an end time.
	ErrAlreadyCompleted = errors.New("audit is already completed")

	// ErrNotCompleted is returned when reopening an audit that is still open.
	ErrNotCompleted = errors.New("audit is not completed")
)
