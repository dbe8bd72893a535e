package audiofile

import "errors"

// Sentinel errors for decoding.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrInvalidAudio      = errors.New("invalid audio data")
)
