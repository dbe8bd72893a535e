package calibration

import "errors"

// Sentinel errors returned by Store.
var (
	ErrProfileNotFound = errors.New("calibration profile not found")
	ErrInvalidDevice   = errors.New("device id is required")
	ErrInvalidProfile  = errors.New("invalid calibration profile")
	ErrEmptyRecording  = errors.New("calibration recording is empty")
)
