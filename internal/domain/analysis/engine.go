// Package analysis runs one delivery analysis: calibration and
// normalization, the per-metric analyzers, the speech-rate estimator and
// the final aggregation.
package analysis

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/okian/oratio/internal/domain/calibration"
	"github.com/okian/oratio/internal/domain/dsp"
	"github.com/okian/oratio/internal/domain/metricconfig"
	"github.com/okian/oratio/internal/domain/model"
	"github.com/okian/oratio/internal/domain/scoring"
	"github.com/okian/oratio/internal/domain/segment"
	"github.com/okian/oratio/internal/domain/speechrate"
	"github.com/okian/oratio/internal/domain/types"
	"github.com/okian/oratio/pkg/logger"
)

// DefaultTargetLUFS is the loudness every calibrated recording is normalized to.
const DefaultTargetLUFS = -23.0

// Calibrator applies per-device gain and loudness normalization.
type Calibrator interface {
	CalibrateAndNormalize(ctx context.Context, samples []float64, sampleRate int, deviceID string, targetLUFS float64) (calibration.Calibrated, error)
}

// ConfigResolver resolves the effective metric configuration.
type ConfigResolver interface {
	Resolve(ctx context.Context) metricconfig.Resolution
}

// RateEstimator estimates speaking rate.
type RateEstimator interface {
	Estimate(ctx context.Context, req speechrate.Request) speechrate.Estimate
}

// Engine is the analysis pipeline. It holds no per-call state and is safe
// for concurrent use when its collaborators are.
type Engine struct {
	calibrator Calibrator
	resolver   ConfigResolver
	estimator  RateEstimator
	aggregator *scoring.Aggregator
	targetLUFS float64
	newID      func() string
	log        logger.Logger
}

// NewEngine creates an engine. Without a calibrator no normalization happens.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		resolver:   metricconfig.NewResolver(),
		estimator:  speechrate.NewEstimator(),
		aggregator: scoring.NewAggregator(),
		targetLUFS: DefaultTargetLUFS,
		newID:      uuid.NewString,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TargetLUFS returns the normalization target.
func (e *Engine) TargetLUFS() float64 { return e.targetLUFS }

// Analyze scores one recording. It never fails: degenerate input yields the
// no-speech result and collaborator failures fall back silently.
func (e *Engine) Analyze(ctx context.Context, in model.Input) model.Result {
	resolution := e.resolver.Resolve(ctx)
	cfg := resolution.Config.Enabled()
	id := e.newID()

	samples := sanitize(in.Samples)
	if scoring.NoSpeech(in.VoiceActivity) || silent(samples) || in.DurationSeconds() == 0 {
		r := scoring.NoSpeechResult(cfg)
		r.ID = id
		r.ConfigSource = string(resolution.Source)
		return r
	}

	r := model.Result{ID: id, ConfigSource: string(resolution.Source)}
	processed := samples
	var deviceOffset float64
	if in.DeviceID != "" && e.calibrator != nil {
		cal, err := e.calibrator.CalibrateAndNormalize(ctx, samples, in.SampleRate, in.DeviceID, e.targetLUFS)
		if err != nil {
			e.log.Warn(ctx, "calibration degraded",
				logger.String("device_id", in.DeviceID), logger.Error(err))
		}
		if cal.Samples != nil {
			processed = cal.Samples
		}
		deviceOffset = cal.DeviceOffset
		r.Normalization = cal.Normalization()
	}

	for _, m := range cfg {
		switch m.ID {
		case types.Volume:
			v := segment.AnalyzeVolume(processed, deviceOffset, m.Thresholds)
			r.Volume = &v
		case types.SpeechRate:
			est := e.estimator.Estimate(ctx, speechrate.Request{
				Samples:    processed,
				Raw:        samples,
				SampleRate: in.SampleRate,
				Method:     m.Method,
				WordCount:  in.WordCount,
			})
			r.SpeechRate = &model.SpeechRateResult{
				Category:       types.CategorySpeechRate,
				WordsPerMinute: est.WordsPerMinute,
				Syllables:      est.Syllables,
				Method:         est.Method,
				Transcript:     est.Transcript,
				Score:          dsp.ClampScore(speechrate.ScoreSpeechRate(est.WordsPerMinute, m.Thresholds)),
			}
		case types.Acceleration:
			a := segment.AnalyzeAcceleration(processed, in.SampleRate)
			r.Acceleration = &a
		case types.ResponseTime:
			rt := segment.AnalyzeResponseTime(processed, in.SampleRate, m.Thresholds)
			r.ResponseTime = &rt
		case types.PauseManagement:
			p := segment.AnalyzePauses(processed, in.SampleRate, in.VoiceActivity, m.Thresholds)
			r.Pauses = &p
		}
	}

	r.OverallScore, r.EmotionalFeedback = e.aggregator.Aggregate(r.Scores(), cfg)
	r.Feedback = e.aggregator.Feedback(r)
	return r
}

// sanitize returns samples with non-finite values zeroed and everything
// clipped to [-1, 1]. The input is copied only when it needs fixing.
func sanitize(samples []float64) []float64 {
	for i, s := range samples {
		if s >= -1 && s <= 1 {
			continue
		}
		out := make([]float64, len(samples))
		copy(out, samples[:i])
		for j := i; j < len(samples); j++ {
			v := samples[j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			out[j] = dsp.Clamp(v, -1, 1)
		}
		return out
	}
	return samples
}

// silent reports whether samples hold no signal at all.
func silent(samples []float64) bool {
	for _, s := range samples {
		if math.Abs(s) > dsp.MinAmplitude {
			return false
		}
	}
	return true
}
