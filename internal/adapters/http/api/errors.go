package api

import (
	"errors"
	"net/http"

	"github.com/okian/oratio/internal/adapters/audiofile"
	"github.com/okian/oratio/internal/adapters/mq/queue"
	"github.com/okian/oratio/internal/domain/calibration"
	"github.com/okian/oratio/internal/domain/metricconfig"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest       = errors.New("bad request")
	ErrNotFound         = errors.New("not found")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrTooLarge         = errors.New("request body too large")
	ErrUnavailable      = errors.New("service busy")
	ErrInternal         = errors.New("internal error")
)

// OpError ties an error to the handler operation that produced it and the
// kind used to pick a status code.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap classifies err by the domain sentinels it wraps.
func Wrap(op string, err error) error {
	return &OpError{Op: op, Kind: kindOf(err), Err: err}
}

// WrapKind wraps err with an explicit kind.
func WrapKind(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}

func kindOf(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, ErrBadRequest):
		return ErrBadRequest
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrUnsupportedMedia):
		return ErrUnsupportedMedia
	case errors.Is(err, ErrTooLarge), errors.As(err, &tooLarge):
		return ErrTooLarge
	case errors.Is(err, ErrUnavailable), errors.Is(err, queue.ErrFull), errors.Is(err, queue.ErrStopped):
		return ErrUnavailable
	case errors.Is(err, calibration.ErrProfileNotFound):
		return ErrNotFound
	case errors.Is(err, audiofile.ErrUnsupportedFormat):
		return ErrUnsupportedMedia
	case errors.Is(err, audiofile.ErrInvalidAudio),
		errors.Is(err, calibration.ErrInvalidDevice),
		errors.Is(err, calibration.ErrInvalidProfile),
		errors.Is(err, calibration.ErrEmptyRecording),
		errors.Is(err, metricconfig.ErrInvalidOverride):
		return ErrBadRequest
	default:
		return ErrInternal
	}
}

// statusOf maps an error to its HTTP status and response code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "payload_too_large"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
