// Package calibration owns per-device calibration profiles: their creation,
// the gain applied to recordings from a device, the bounded recording
// history and the heuristics that decide when a device should be
// recalibrated.
package calibration

import (
	"math"
	"sort"
	"time"

	"github.com/okian/oratio/internal/domain/dsp"
	"github.com/okian/oratio/internal/domain/loudness"
	"github.com/okian/oratio/internal/domain/model"
)

// Profile limits.
const (
	MinGain        = 0.1
	MaxGain        = 10.0
	MaxHistory     = 10
	noiseFrameSec  = 0.05
	noiseQuantile  = 0.1
	persistenceKey = "calibration_profiles"
)

// RecordingStats is one calibrated analysis. Entries are never mutated.
type RecordingStats struct {
	ID             string     `json:"id"`
	Timestamp      time.Time  `json:"timestamp"`
	OriginalLUFS   model.LUFS `json:"original_lufs"`
	CalibratedLUFS model.LUFS `json:"calibrated_lufs"`
	FinalLUFS      model.LUFS `json:"final_lufs"`
	NoiseFloor     float64    `json:"noise_floor"`
}

// Profile is the calibration state of one input device.
type Profile struct {
	DeviceID         string           `json:"device_id"`
	DeviceLabel      string           `json:"device_label"`
	NoiseFloor       float64          `json:"noise_floor"`
	ReferenceLevel   float64          `json:"reference_level"`
	GainAdjustment   float64          `json:"gain_adjustment"`
	CreatedAt        time.Time        `json:"created_at"`
	LastUsed         time.Time        `json:"last_used"`
	RecordingHistory []RecordingStats `json:"recording_history"`
}

// appendHistory adds s and evicts the oldest entries beyond MaxHistory.
func (p *Profile) appendHistory(s RecordingStats) {
	p.RecordingHistory = append(p.RecordingHistory, s)
	if over := len(p.RecordingHistory) - MaxHistory; over > 0 {
		p.RecordingHistory = append([]RecordingStats(nil), p.RecordingHistory[over:]...)
	}
}

// GainFor returns the linear gain that moves referenceLevel to targetLevel,
// clamped to [MinGain, MaxGain]. A non-numeric result is unity gain.
func GainFor(referenceLevel, targetLevel float64) float64 {
	g := dsp.DBToLinear(targetLevel - referenceLevel)
	if math.IsNaN(g) {
		return 1
	}
	return dsp.Clamp(g, MinGain, MaxGain)
}

// MeasureNoiseFloor returns the mean level in dB of the quietest tenth of
// 50 ms frames. Buffers shorter than a frame are measured whole.
func MeasureNoiseFloor(samples []float64, sampleRate int) float64 {
	frame := dsp.SamplesFor(noiseFrameSec, sampleRate)
	starts := dsp.Frames(len(samples), frame, frame)
	if len(starts) == 0 {
		return dsp.DB(samples)
	}
	levels := make([]float64, len(starts))
	for i, start := range starts {
		levels[i] = dsp.RMS(samples[start : start+frame])
	}
	sort.Float64s(levels)
	n := int(math.Ceil(float64(len(levels)) * noiseQuantile))
	var sum float64
	for _, l := range levels[:n] {
		sum += l
	}
	return dsp.AmplitudeToDB(sum / float64(n))
}

// MeasureProfile derives the noise floor and reference loudness of a
// calibration recording.
func MeasureProfile(samples []float64, sampleRate int) (noiseFloor, referenceLevel float64) {
	return MeasureNoiseFloor(samples, sampleRate), loudness.CalculateLUFS(samples, sampleRate)
}
