package metricconfig

import "errors"

// Sentinel errors for override management.
var (
	ErrInvalidOverride = errors.New("invalid metric override")
	ErrNoOverrideStore = errors.New("no override store configured")
)
