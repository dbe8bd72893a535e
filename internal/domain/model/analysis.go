// Package model contains the input and result shapes passed between the
// scoring modules and the outer layers.
package model

import (
	"encoding/json"
	"math"

	"github.com/okian/oratio/internal/domain/types"
)

// Input is one analysis request: a captured mono buffer plus optional context.
type Input struct {
	Samples       []float64      // mono PCM in [-1, 1]
	SampleRate    int            // Hz
	DeviceID      string         // optional calibration key
	VoiceActivity *VoiceActivity // optional, computed outside the engine
	WordCount     *int           // optional precomputed word count
}

// DurationSeconds returns the buffer length in seconds.
func (in Input) DurationSeconds() float64 {
	if in.SampleRate <= 0 {
		return 0
	}
	return float64(len(in.Samples)) / float64(in.SampleRate)
}

// Segment is a detected speech span in milliseconds from buffer start.
type Segment struct {
	StartMs float64 `json:"start_ms"`
	EndMs   float64 `json:"end_ms"`
}

// VoiceActivity is the externally supplied voice-activity summary.
type VoiceActivity struct {
	Segments          []Segment `json:"segments"`
	SpeechRatio       float64   `json:"speech_ratio"`
	TotalSpeechTimeMs float64   `json:"total_speech_time_ms"`
}

// LUFS is a loudness value that encodes non-finite values as JSON null.
type LUFS float64

// MarshalJSON implements json.Marshaler.
func (l LUFS) MarshalJSON() ([]byte, error) {
	f := float64(l)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON implements json.Unmarshaler; null decodes to -Inf.
func (l *LUFS) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = LUFS(math.Inf(-1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*l = LUFS(f)
	return nil
}

// Normalization carries loudness diagnostics for calibrated analyses.
type Normalization struct {
	OriginalLUFS      LUFS    `json:"original_lufs"`
	CalibratedLUFS    LUFS    `json:"calibrated_lufs"`
	FinalLUFS         LUFS    `json:"final_lufs"`
	DeviceGain        float64 `json:"device_gain"`
	NormalizationGain float64 `json:"normalization_gain"`
	// DeviceProfiled is true when a calibration profile of the device was applied.
	DeviceProfiled bool `json:"device_profiled"`
}

// VolumeResult is the volume analyzer output.
type VolumeResult struct {
	Category     types.Category `json:"category"`
	DB           float64        `json:"db"`
	DeviceOffset float64        `json:"device_offset"`
	Score        float64        `json:"score"`
}

// SpeechRateResult is the speech-rate estimator output.
type SpeechRateResult struct {
	Category       types.Category         `json:"category"`
	WordsPerMinute float64                `json:"words_per_minute"`
	Syllables      int                    `json:"syllables,omitempty"`
	Method         types.SpeechRateMethod `json:"method"`
	Transcript     string                 `json:"transcript,omitempty"`
	Score          float64                `json:"score"`
}

// AccelerationResult compares the second half of a take with the first.
type AccelerationResult struct {
	Category       types.Category `json:"category"`
	FirstHalfDB    float64        `json:"first_half_db"`
	SecondHalfDB   float64        `json:"second_half_db"`
	FirstHalfWPM   float64        `json:"first_half_wpm"`
	SecondHalfWPM  float64        `json:"second_half_wpm"`
	DeltaDB        float64        `json:"delta_db"`
	DeltaRate      float64        `json:"delta_rate"`
	IsAccelerating bool           `json:"is_accelerating"`
	Score          float64        `json:"score"`
}

// ResponseTimeResult is the latency before speech onset.
type ResponseTimeResult struct {
	Category       types.Category `json:"category"`
	ResponseTimeMs float64        `json:"response_time_ms"`
	NoiseFloor     float64        `json:"noise_floor"`
	OnsetDetected  bool           `json:"onset_detected"`
	Score          float64        `json:"score"`
}

// PauseResult summarizes silent gaps.
type PauseResult struct {
	Category       types.Category `json:"category"`
	PauseRatio     float64        `json:"pause_ratio"`
	PauseCount     int            `json:"pause_count"`
	TotalPauseMs   float64        `json:"total_pause_ms"`
	LongestPauseMs float64        `json:"longest_pause_ms"`
	AveragePauseMs float64        `json:"average_pause_ms"`
	FromVAD        bool           `json:"from_vad"`
	Score          float64        `json:"score"`
}

// Result is the outcome of one analysis. Metric fields are nil when the
// metric was not part of the resolved configuration.
type Result struct {
	ID                string              `json:"id"`
	Volume            *VolumeResult       `json:"volume,omitempty"`
	SpeechRate        *SpeechRateResult   `json:"speech_rate,omitempty"`
	Acceleration      *AccelerationResult `json:"acceleration,omitempty"`
	ResponseTime      *ResponseTimeResult `json:"response_time,omitempty"`
	Pauses            *PauseResult        `json:"pause_management,omitempty"`
	OverallScore      int                 `json:"overall_score"`
	EmotionalFeedback types.Tier          `json:"emotional_feedback"`
	Feedback          []string            `json:"feedback"`
	Normalization     *Normalization      `json:"normalization,omitempty"`
	ConfigSource      string              `json:"config_source,omitempty"`
	NoSpeech          bool                `json:"no_speech,omitempty"`
}

// Scores returns the per-metric scores present in r.
func (r Result) Scores() map[types.MetricID]float64 {
	out := make(map[types.MetricID]float64, len(types.AllMetrics))
	if r.Volume != nil {
		out[types.Volume] = r.Volume.Score
	}
	if r.SpeechRate != nil {
		out[types.SpeechRate] = r.SpeechRate.Score
	}
	if r.Acceleration != nil {
		out[types.Acceleration] = r.Acceleration.Score
	}
	if r.ResponseTime != nil {
		out[types.ResponseTime] = r.ResponseTime.Score
	}
	if r.Pauses != nil {
		out[types.PauseManagement] = r.Pauses.Score
	}
	return out
}
