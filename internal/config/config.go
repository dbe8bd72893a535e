// Package config defines service configuration and its loading.
package config

import (
	"fmt"
	"math"
	"time"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Scoring-config sources.
const (
	SourceNone     = "none"
	SourceHTTP     = "http"
	SourcePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the slog handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// TargetLUFS is the normalization target for calibrated analyses.
	TargetLUFS float64 `koanf:"target_lufs"`

	// ConfigCacheTTL bounds how long a remote scoring config is reused.
	ConfigCacheTTL time.Duration `koanf:"config_cache_ttl"`

	// StorageDriver picks the key-value backend for overrides and profiles.
	StorageDriver string `koanf:"storage_driver"`
	StorageDir    string `koanf:"storage_dir"`
	PostgresDSN   string `koanf:"postgres_dsn"`

	// ScoringConfigSource picks the remote scoring-config collaborator.
	ScoringConfigSource string `koanf:"scoring_config_source"`
	ScoringConfigURL    string `koanf:"scoring_config_url"`

	// TranscriptionURL enables the transcript speech-rate method when set.
	TranscriptionURL     string        `koanf:"transcription_url"`
	TranscriptionTimeout time.Duration `koanf:"transcription_timeout"`

	// MaxUploadBytes caps audio request bodies.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// RequestTimeout bounds each HTTP request.
	RequestTimeout time.Duration `koanf:"request_timeout"`

	// AnalysisWorkers is the number of concurrent HTTP analyses; 0 means one per CPU.
	AnalysisWorkers int `koanf:"analysis_workers"`
	// AnalysisQueue is how many analyses may wait for a worker before 503.
	AnalysisQueue int `koanf:"analysis_queue"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		TargetLUFS:           -23,
		ConfigCacheTTL:       60 * time.Second,
		StorageDriver:        StorageMemory,
		StorageDir:           "data",
		ScoringConfigSource:  SourceNone,
		TranscriptionTimeout: 15 * time.Second,
		MaxUploadBytes:       25 << 20,
		RequestTimeout:       30 * time.Second,
		AnalysisQueue:        64,
	}
}

// Validate reports the first inconsistent setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	case math.IsNaN(c.TargetLUFS) || math.IsInf(c.TargetLUFS, 0) || c.TargetLUFS > 0:
		return invalid("target_lufs must be a finite value <= 0")
	case c.ConfigCacheTTL <= 0:
		return invalid("config_cache_ttl must be positive")
	case c.MaxUploadBytes <= 0:
		return invalid("max_upload_bytes must be positive")
	case c.RequestTimeout <= 0:
		return invalid("request_timeout must be positive")
	case c.AnalysisWorkers < 0:
		return invalid("analysis_workers must not be negative")
	case c.AnalysisQueue <= 0:
		return invalid("analysis_queue must be positive")
	}

	switch c.StorageDriver {
	case StorageMemory:
	case StorageFile:
		if c.StorageDir == "" {
			return invalid("storage_dir is required for the file driver")
		}
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return invalid("postgres_dsn is required for the postgres driver")
		}
	default:
		return invalid("unknown storage_driver %q", c.StorageDriver)
	}

	switch c.ScoringConfigSource {
	case SourceNone, "":
	case SourceHTTP:
		if c.ScoringConfigURL == "" {
			return invalid("scoring_config_url is required for the http source")
		}
	case SourcePostgres:
		if c.PostgresDSN == "" {
			return invalid("postgres_dsn is required for the postgres scoring config source")
		}
	default:
		return invalid("unknown scoring_config_source %q", c.ScoringConfigSource)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
