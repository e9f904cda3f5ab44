package alarms

import "errors"

var (
	// ErrNotFound indicates a missing alarm record.
	ErrNotFound = errors.New("alarm: not found")
	// ErrValidation wraps payload validation failures.
	ErrValidation = errors.New("alarm: invalid payload")
)
