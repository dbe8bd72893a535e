package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull    = errors.New("analysis queue full")
	ErrStopped = errors.New("analysis queue stopped")
)
