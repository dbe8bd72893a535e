package analysis

import (
	"github.com/okian/oratio/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithCalibrator enables device calibration and loudness normalization.
func WithCalibrator(c Calibrator) Option {
	return func(e *Engine) { e.calibrator = c }
}

// WithConfigResolver sets the metric configuration resolver.
func WithConfigResolver(r ConfigResolver) Option {
	return func(e *Engine) {
		if r != nil {
			e.resolver = r
		}
	}
}

// WithRateEstimator sets the speech-rate estimator.
func WithRateEstimator(r RateEstimator) Option {
	return func(e *Engine) {
		if r != nil {
			e.estimator = r
		}
	}
}

// WithTargetLUFS sets the normalization target.
func WithTargetLUFS(target float64) Option {
	return func(e *Engine) { e.targetLUFS = target }
}

// WithIDGenerator replaces the result id generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
