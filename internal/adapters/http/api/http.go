// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/okian/oratio/internal/adapters/audiofile"
	"github.com/okian/oratio/pkg/logger"
)

const (
	defaultMaxUploadBytes = 25 << 20
	maxJSONBytes          = 1 << 20
	audioFormField        = "audio"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	AnalyzeDependencies
	ConfigDependencies
	CalibrationDependencies
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes caps audio request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithLogger sets the logger used for 5xx responses.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAnalyzer routes POST /analyze through analyzer instead of the Dependencies
// bundle, typically a bounded worker pool.
func WithAnalyzer(analyzer AnalyzeDependencies) Option {
	return func(s *Server) {
		if analyzer != nil {
			s.analyzer = analyzer
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	maxUpload int64
	log       logger.Logger
	analyzer  AnalyzeDependencies

	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	analyzeHandler     *AnalyzeHandler
	configHandler      *ConfigHandler
	calibrationHandler *CalibrationHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{maxUpload: defaultMaxUploadBytes, log: logger.Nop(), analyzer: deps}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.analyzeHandler = &AnalyzeHandler{deps: s.analyzer, maxUpload: s.maxUpload, log: s.log}
	s.configHandler = &ConfigHandler{deps: deps, log: s.log}
	s.calibrationHandler = &CalibrationHandler{deps: deps, maxUpload: s.maxUpload, log: s.log}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /analyze", MetricsMiddleware(s.analyzeHandler.HandleAnalyze, "analyze"))

	mux.HandleFunc("GET /metric-config", MetricsMiddleware(s.configHandler.HandleGet, "metric_config"))
	mux.HandleFunc("PUT /metric-config/override", MetricsMiddleware(s.configHandler.HandleSetOverride, "metric_config_override"))
	mux.HandleFunc("DELETE /metric-config/override", MetricsMiddleware(s.configHandler.HandleClearOverride, "metric_config_override"))

	c := s.calibrationHandler
	mux.HandleFunc("POST /calibrations", MetricsMiddleware(c.HandleCreate, "calibrations"))
	mux.HandleFunc("GET /calibrations", MetricsMiddleware(c.HandleList, "calibrations"))
	mux.HandleFunc("GET /calibrations/{deviceID}", MetricsMiddleware(c.HandleGet, "calibration"))
	mux.HandleFunc("DELETE /calibrations/{deviceID}", MetricsMiddleware(c.HandleDelete, "calibration"))
	mux.HandleFunc("POST /calibrations/{deviceID}/recording", MetricsMiddleware(c.HandleRecording, "calibration_recording"))
	mux.HandleFunc("GET /calibrations/{deviceID}/recalibration", MetricsMiddleware(c.HandleRecalibration, "calibration_recalibration"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError derives status and code from err's kind.
func writeError(ctx context.Context, log logger.Logger, w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// readAudio decodes the request audio, sent either as the raw body or as the
// multipart field "audio".
func readAudio(w http.ResponseWriter, r *http.Request, maxBytes int64) (audiofile.Audio, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	var data []byte
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return audiofile.Audio{}, bodyError(err)
		}
		f, _, err := r.FormFile(audioFormField)
		if err != nil {
			return audiofile.Audio{}, fmt.Errorf("%w: missing form field %q", ErrBadRequest, audioFormField)
		}
		defer f.Close()
		if data, err = io.ReadAll(f); err != nil {
			return audiofile.Audio{}, bodyError(err)
		}
	} else {
		var err error
		if data, err = io.ReadAll(r.Body); err != nil {
			return audiofile.Audio{}, bodyError(err)
		}
	}
	if len(data) == 0 {
		return audiofile.Audio{}, fmt.Errorf("%w: empty audio body", ErrBadRequest)
	}
	return audiofile.DecodeBytes(data)
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w: %w", ErrTooLarge, err)
	}
	return fmt.Errorf("%w: %w", ErrBadRequest, err)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return bodyError(err)
	}
	return nil
}

func pathDevice(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("deviceID"))
	if id == "" {
		return "", fmt.Errorf("%w: missing device id", ErrBadRequest)
	}
	return id, nil
}
