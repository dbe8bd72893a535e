// Package scoring merges per-metric scores into the overall score, assigns
// the feedback tier and writes the textual feedback.
package scoring

import (
	"math"

	"github.com/okian/oratio/internal/domain/dsp"
	"github.com/okian/oratio/internal/domain/metricconfig"
	"github.com/okian/oratio/internal/domain/model"
	"github.com/okian/oratio/internal/domain/types"
)

// Default scoring configuration constants.
const (
	defaultFeedbackThreshold = 60
	defaultSlowSpeechWPM     = 100
	excellentTierScore       = 70
	goodTierScore            = 40
	outstandingScore         = 90
	noSpeechRatio            = 0.02
	noSpeechTimeMs           = 200
)

// Feedback messages.
const (
	MsgVolume       = "Speak louder and keep your volume steady."
	MsgFaster       = "Try speaking a little faster."
	MsgSlower       = "Try speaking a little slower."
	MsgResponseTime = "Start speaking sooner after the prompt."
	MsgPauses       = "Reduce long pauses between phrases."
	MsgAcceleration = "Build momentum: finish with more energy than you started."
	MsgOutstanding  = "Excellent delivery! Keep it up."
	MsgOnTrack      = "Good job! Your delivery is on track."
	MsgNoSpeech     = "No speech detected. Please speak clearly into the microphone."
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithFeedbackThreshold sets the metric score under which advice is given.
func WithFeedbackThreshold(threshold float64) Option {
	return func(a *Aggregator) {
		if threshold > 0 && threshold <= 100 {
			a.feedbackThreshold = threshold
		}
	}
}

// Aggregator combines per-metric results.
type Aggregator struct {
	feedbackThreshold float64
	slowSpeechWPM     float64
}

// NewAggregator creates an aggregator with configuration options.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		feedbackThreshold: defaultFeedbackThreshold,
		slowSpeechWPM:     defaultSlowSpeechWPM,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NormalizeWeights scales the weights of the enabled metrics of cfg so they
// sum to 1. Negative or non-numeric weights count as 0; when every weight is
// 0 all normalized weights are 0.
func NormalizeWeights(cfg metricconfig.Config) map[types.MetricID]float64 {
	raw := cfg.Weights()
	var sum float64
	for id, w := range raw {
		if !(w > 0) || math.IsInf(w, 0) {
			raw[id] = 0
			continue
		}
		sum += w
	}
	denom := sum
	if !(denom > 0) {
		denom = 1
	}
	out := make(map[types.MetricID]float64, len(raw))
	for id, w := range raw {
		out[id] = w / denom
	}
	return out
}

// Aggregate returns the weighted overall score of the enabled metrics of cfg
// and its tier. A metric without a score contributes 0.
func (a *Aggregator) Aggregate(scores map[types.MetricID]float64, cfg metricconfig.Config) (int, types.Tier) {
	var total float64
	for id, w := range NormalizeWeights(cfg) {
		total += w * dsp.ClampScore(scores[id])
	}
	overall := int(math.Round(dsp.ClampScore(total)))
	return overall, TierFor(overall)
}

// TierFor classifies an overall score.
func TierFor(overall int) types.Tier {
	switch {
	case overall >= excellentTierScore:
		return types.TierExcellent
	case overall >= goodTierScore:
		return types.TierGood
	default:
		return types.TierPoor
	}
}

// Feedback returns advice for every weak metric present in r, or a single
// positive message when none is weak.
func (a *Aggregator) Feedback(r model.Result) []string {
	var out []string
	weak := func(score float64) bool { return score < a.feedbackThreshold }

	if r.Volume != nil && weak(r.Volume.Score) {
		out = append(out, MsgVolume)
	}
	if r.SpeechRate != nil && weak(r.SpeechRate.Score) {
		if r.SpeechRate.WordsPerMinute < a.slowSpeechWPM {
			out = append(out, MsgFaster)
		} else {
			out = append(out, MsgSlower)
		}
	}
	if r.ResponseTime != nil && weak(r.ResponseTime.Score) {
		out = append(out, MsgResponseTime)
	}
	if r.Pauses != nil && weak(r.Pauses.Score) {
		out = append(out, MsgPauses)
	}
	if r.Acceleration != nil && weak(r.Acceleration.Score) {
		out = append(out, MsgAcceleration)
	}
	if len(out) > 0 {
		return out
	}
	if r.OverallScore >= outstandingScore {
		return []string{MsgOutstanding}
	}
	return []string{MsgOnTrack}
}

// NoSpeech reports whether supplied voice activity shows effectively no
// speech. Without voice activity it is always false.
func NoSpeech(va *model.VoiceActivity) bool {
	return va != nil && va.SpeechRatio <= noSpeechRatio && va.TotalSpeechTimeMs < noSpeechTimeMs
}

// NoSpeechResult is the all-zero result returned instead of an analysis when
// NoSpeech holds. Every enabled metric of cfg is present with a zero score.
func NoSpeechResult(cfg metricconfig.Config) model.Result {
	r := model.Result{
		OverallScore:      0,
		EmotionalFeedback: types.TierPoor,
		Feedback:          []string{MsgNoSpeech},
		NoSpeech:          true,
	}
	for _, m := range cfg.Enabled() {
		cat := types.CategoryOf(m.ID)
		switch m.ID {
		case types.Volume:
			r.Volume = &model.VolumeResult{Category: cat}
		case types.SpeechRate:
			r.SpeechRate = &model.SpeechRateResult{Category: cat, Method: m.Method}
		case types.Acceleration:
			r.Acceleration = &model.AccelerationResult{Category: cat}
		case types.ResponseTime:
			r.ResponseTime = &model.ResponseTimeResult{Category: cat}
		case types.PauseManagement:
			r.Pauses = &model.PauseResult{Category: cat}
		}
	}
	return r
}
