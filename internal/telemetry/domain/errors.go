package telemetry

import "errors"

// ErrNotFound indicates a missing point record.
var ErrNotFound = errors.New("telemetry: not found")
