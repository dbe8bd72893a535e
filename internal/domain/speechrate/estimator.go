// Package speechrate estimates speaking rate from syllable onsets or from a
// transcript, and scores it against the configured thresholds.
package speechrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/oratio/internal/domain/metricconfig"
	"github.com/okian/oratio/internal/domain/types"
	"github.com/okian/oratio/pkg/logger"
)

// ErrEmptyTranscription is reported when the collaborator returns neither a
// transcript nor a word count.
var ErrEmptyTranscription = errors.New("transcription has no words")

// Transcription is the transcription collaborator's answer.
type Transcription struct {
	Transcript     string   `json:"transcript"`
	WordCount      *int     `json:"wordCount,omitempty"`
	WordsPerMinute *float64 `json:"wordsPerMinute,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// Transcriber sends raw audio to a transcription service.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float64, sampleRate int) (Transcription, error)
}

// Request is one estimation.
type Request struct {
	Samples    []float64 // processed buffer used for onset counting
	Raw        []float64 // unprocessed buffer sent for transcription; defaults to Samples
	SampleRate int
	Method     types.SpeechRateMethod
	WordCount  *int
}

// Estimate is the outcome of Estimator.Estimate.
type Estimate struct {
	WordsPerMinute float64
	Syllables      int
	Method         types.SpeechRateMethod
	Transcript     string
	// Fallback is set when the transcript path failed and spectral flux was used.
	Fallback string
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithTranscriber enables the transcript method.
func WithTranscriber(t Transcriber) Option {
	return func(e *Estimator) { e.transcriber = t }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.log = l
		}
	}
}

// Estimator picks between the onset counters and the transcription path.
type Estimator struct {
	transcriber Transcriber
	log         logger.Logger
}

// NewEstimator creates an estimator.
func NewEstimator(opts ...Option) *Estimator {
	e := &Estimator{log: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns the speaking rate of req. A precomputed word count always
// wins. The transcript method falls back to spectral flux on any failure.
func (e *Estimator) Estimate(ctx context.Context, req Request) Estimate {
	duration := 0.0
	if req.SampleRate > 0 {
		duration = float64(len(req.Samples)) / float64(req.SampleRate)
	}

	if req.WordCount != nil {
		return Estimate{
			WordsPerMinute: TranscriptWordsPerMinute(*req.WordCount, duration),
			Method:         types.MethodTranscript,
		}
	}

	switch req.Method {
	case types.MethodTranscript:
		est, err := e.transcribe(ctx, req, duration)
		if err == nil {
			return est
		}
		e.log.Warn(ctx, "transcription failed, using spectral flux", logger.Error(err))
		fallback := e.onsets(req.Samples, req.SampleRate, duration, types.MethodSpectralFlux)
		fallback.Fallback = err.Error()
		return fallback
	case types.MethodEnergyPeaks:
		return e.onsets(req.Samples, req.SampleRate, duration, types.MethodEnergyPeaks)
	default:
		return e.onsets(req.Samples, req.SampleRate, duration, types.MethodSpectralFlux)
	}
}

func (e *Estimator) onsets(samples []float64, sampleRate int, duration float64, method types.SpeechRateMethod) Estimate {
	var syllables int
	if method == types.MethodEnergyPeaks {
		syllables = CountEnergyPeaks(samples, sampleRate)
	} else {
		syllables = CountSpectralFluxPeaks(samples, sampleRate)
	}
	return Estimate{
		WordsPerMinute: WordsPerMinute(syllables, duration),
		Syllables:      syllables,
		Method:         method,
	}
}

func (e *Estimator) transcribe(ctx context.Context, req Request, duration float64) (Estimate, error) {
	if e.transcriber == nil {
		return Estimate{}, errors.New("no transcriber configured")
	}
	raw := req.Raw
	if raw == nil {
		raw = req.Samples
	}
	t, err := e.transcriber.Transcribe(ctx, raw, req.SampleRate)
	if err != nil {
		return Estimate{}, fmt.Errorf("transcribe: %w", err)
	}

	est := Estimate{Method: types.MethodTranscript, Transcript: t.Transcript}
	switch {
	case t.WordCount != nil:
		est.WordsPerMinute = TranscriptWordsPerMinute(*t.WordCount, duration)
	case t.WordsPerMinute != nil:
		est.WordsPerMinute = *t.WordsPerMinute
	case strings.TrimSpace(t.Transcript) != "":
		est.WordsPerMinute = TranscriptWordsPerMinute(len(strings.Fields(t.Transcript)), duration)
	default:
		return Estimate{}, ErrEmptyTranscription
	}
	return est, nil
}

// ScoreSpeechRate scores wpm: 0 at or below Min, a linear ramp to 100 at
// Ideal and 100 above Ideal.
func ScoreSpeechRate(wpm float64, t metricconfig.Thresholds) float64 {
	switch {
	case !(wpm > t.Min):
		return 0
	case wpm >= t.Ideal:
		return 100
	default:
		return 100 * (wpm - t.Min) / (t.Ideal - t.Min)
	}
}
