package calibration

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/oratio/internal/domain/dsp"
)

// Recalibration heuristics.
const (
	minHistoryForCheck = 3
	lufsVarianceLimit  = 5.0  // LUFS
	noiseVarianceLimit = 10.0 // dB
	maxProfileAge      = 30 * 24 * time.Hour
	fallbackSeverity   = 1.5
	recommendSeverity  = 2.0
	hoursPerDay        = 24
)

// Trigger identifies which heuristic asked for recalibration.
type Trigger string

// Recalibration triggers.
const (
	TriggerNone     Trigger = ""
	TriggerVariance Trigger = "variance"
	TriggerNoise    Trigger = "noise"
	TriggerAge      Trigger = "age"
)

// Recalibration is the outcome of CheckRecalibrationNeeded.
type Recalibration struct {
	Needed      bool    `json:"needed"`
	Reason      string  `json:"reason,omitempty"`
	Trigger     Trigger `json:"trigger,omitempty"`
	LUFSStdDev  float64 `json:"lufs_std_dev"`
	NoiseStdDev float64 `json:"noise_std_dev"`
	AgeDays     int     `json:"age_days"`
}

// Status levels.
const (
	StatusGood      = "good"
	StatusWarning   = "warning"
	StatusRecommend = "recommend"
)

// Status grades a Recalibration for display.
type Status struct {
	Level         string        `json:"level"`
	Severity      float64       `json:"severity"`
	Recalibration Recalibration `json:"recalibration"`
}

// CheckRecalibrationNeeded applies the heuristics to the profile of
// deviceID: high loudness variance, then a drifting noise floor, then age.
// Fewer than three history entries never need recalibration.
func (s *Store) CheckRecalibrationNeeded(ctx context.Context, deviceID string) (Recalibration, error) {
	s.mu.Lock()
	profiles, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return Recalibration{}, err
	}
	i := indexOf(profiles, deviceID)
	if i < 0 {
		return Recalibration{}, ErrProfileNotFound
	}
	return evaluate(profiles[i], s.now()), nil
}

func evaluate(p Profile, now time.Time) Recalibration {
	age := now.Sub(p.CreatedAt)
	rec := Recalibration{AgeDays: int(age.Hours() / hoursPerDay)}
	if len(p.RecordingHistory) < minHistoryForCheck {
		return rec
	}

	lufs := make([]float64, 0, len(p.RecordingHistory))
	noise := make([]float64, 0, len(p.RecordingHistory))
	for _, h := range p.RecordingHistory {
		if v := float64(h.OriginalLUFS); finite(v) {
			lufs = append(lufs, v)
		}
		if finite(h.NoiseFloor) {
			noise = append(noise, h.NoiseFloor)
		}
	}
	rec.LUFSStdDev = dsp.StdDev(lufs)
	rec.NoiseStdDev = dsp.StdDev(noise)

	switch {
	case rec.LUFSStdDev > lufsVarianceLimit:
		rec.Needed, rec.Trigger = true, TriggerVariance
		rec.Reason = fmt.Sprintf("high variance in recording loudness (%.2f LUFS)", rec.LUFSStdDev)
	case rec.NoiseStdDev > noiseVarianceLimit:
		rec.Needed, rec.Trigger = true, TriggerNoise
		rec.Reason = fmt.Sprintf("noise floor changed (%.2f dB spread)", rec.NoiseStdDev)
	case age > maxProfileAge:
		rec.Needed, rec.Trigger = true, TriggerAge
		rec.Reason = fmt.Sprintf("calibration is %d days old", rec.AgeDays)
	}
	return rec
}

// GetRecalibrationStatus grades the recalibration check of deviceID.
func (s *Store) GetRecalibrationStatus(ctx context.Context, deviceID string) (Status, error) {
	rec, err := s.CheckRecalibrationNeeded(ctx, deviceID)
	if err != nil {
		return Status{}, err
	}
	return grade(rec), nil
}

func grade(rec Recalibration) Status {
	if !rec.Needed {
		return Status{Level: StatusGood, Recalibration: rec}
	}
	severity := fallbackSeverity
	if rec.Trigger == TriggerVariance {
		severity = rec.LUFSStdDev / lufsVarianceLimit
	}
	level := StatusWarning
	if severity > recommendSeverity {
		level = StatusRecommend
	}
	return Status{Level: level, Severity: severity, Recalibration: rec}
}
