package directory

import "errors"

var (
	// ErrNotFound indicates a missing directory record.
	ErrNotFound = errors.New("directory: not found")
	// ErrConflict indicates a unique-constraint collision (username, api key).
	ErrConflict = errors.New("directory: conflict")
)
