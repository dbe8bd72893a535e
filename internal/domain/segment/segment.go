// Package segment holds the per-metric analyzers that score volume,
// acceleration, response time and pause management.
package segment

import (
	"math"
	"sort"

	"github.com/okian/oratio/internal/domain/dsp"
	"github.com/okian/oratio/internal/domain/metricconfig"
	"github.com/okian/oratio/internal/domain/model"
	"github.com/okian/oratio/internal/domain/speechrate"
	"github.com/okian/oratio/internal/domain/types"
)

// Analyzer constants.
const (
	fullScore          = 100
	volumePeakScore    = 100
	volumeIdealScore   = 90
	volumeDecayPerDB   = 5
	accelBaseScore     = 50
	accelDBWeight      = 2
	accelRateWeight    = 0.5
	accelRateThreshold = 5
	leadSeconds        = 0.1
	minNoiseFloor      = 0.005
	noiseFloorFactor   = 3
	responseMidScore   = 50
	responseDecayMs    = 3000
	pauseFrameSeconds  = 0.05
	pauseSilenceRMS    = 0.01
	minPauseMs         = 150
	pauseAllowance     = 0.1
	msPerSecond        = 1000
	dbPrecision        = 1e6
)

// AnalyzeVolume scores the level of samples in dBFS after adding the device
// offset, reported to six decimals. The score climbs 0 to 90 from Min to
// Ideal, peaks at 100 halfway between Ideal and Max, returns to 90 at Max
// and then loses 5 points per dB.
func AnalyzeVolume(samples []float64, deviceOffset float64, th metricconfig.Thresholds) model.VolumeResult {
	db := math.Round((dsp.DB(samples)+deviceOffset)*dbPrecision) / dbPrecision
	return model.VolumeResult{
		Category:     types.CategoryVolume,
		DB:           db,
		DeviceOffset: deviceOffset,
		Score:        dsp.ClampScore(volumeScore(db, th)),
	}
}

func volumeScore(db float64, th metricconfig.Thresholds) float64 {
	mid := (th.Ideal + th.Max) / 2
	switch {
	case db < th.Min:
		return 0
	case db < th.Ideal:
		return dsp.Lerp(db, th.Min, th.Ideal, 0, volumeIdealScore)
	case db < mid:
		return dsp.Lerp(db, th.Ideal, mid, volumeIdealScore, volumePeakScore)
	case db <= th.Max:
		return dsp.Lerp(db, mid, th.Max, volumePeakScore, volumeIdealScore)
	default:
		return volumeIdealScore - volumeDecayPerDB*(db-th.Max)
	}
}

// AnalyzeAcceleration compares the second half of samples with the first.
// Only gains in level or pace raise the score above 50.
func AnalyzeAcceleration(samples []float64, sampleRate int) model.AccelerationResult {
	half := len(samples) / 2
	first, second := samples[:half], samples[half:]

	res := model.AccelerationResult{
		Category:      types.CategoryAcceleration,
		FirstHalfDB:   dsp.DB(first),
		SecondHalfDB:  dsp.DB(second),
		FirstHalfWPM:  halfRate(first, sampleRate),
		SecondHalfWPM: halfRate(second, sampleRate),
	}
	res.DeltaDB = res.SecondHalfDB - res.FirstHalfDB
	res.DeltaRate = res.SecondHalfWPM - res.FirstHalfWPM
	res.IsAccelerating = res.DeltaDB > 0 || res.DeltaRate > accelRateThreshold
	gain := math.Max(0, accelDBWeight*res.DeltaDB+accelRateWeight*res.DeltaRate)
	res.Score = dsp.ClampScore(accelBaseScore + gain)
	return res
}

func halfRate(samples []float64, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	duration := float64(len(samples)) / float64(sampleRate)
	return speechrate.WordsPerMinute(speechrate.CountSpectralFluxPeaks(samples, sampleRate), duration)
}

// AnalyzeResponseTime measures the delay before the first sample louder than
// the adaptive noise floor of the leading 100 ms. Ideal is the fast bound and
// Min the slow one; past Min the score decays to 0 over three seconds.
func AnalyzeResponseTime(samples []float64, sampleRate int, th metricconfig.Thresholds) model.ResponseTimeResult {
	lead := min(dsp.SamplesFor(leadSeconds, sampleRate), len(samples))
	floor := math.Max(minNoiseFloor, noiseFloorFactor*dsp.RMS(samples[:lead]))

	res := model.ResponseTimeResult{Category: types.CategoryResponseTime, NoiseFloor: floor}
	onset := len(samples)
	for i, s := range samples {
		if math.Abs(s) > floor {
			onset = i
			res.OnsetDetected = true
			break
		}
	}
	if sampleRate > 0 {
		res.ResponseTimeMs = float64(onset) / float64(sampleRate) * msPerSecond
	}
	res.Score = dsp.ClampScore(responseScore(res.ResponseTimeMs, th))
	return res
}

func responseScore(ms float64, th metricconfig.Thresholds) float64 {
	switch {
	case ms <= th.Ideal:
		return fullScore
	case ms <= th.Min:
		return dsp.Lerp(ms, th.Ideal, th.Min, fullScore, responseMidScore)
	default:
		return responseMidScore - responseMidScore*(ms-th.Min)/responseDecayMs
	}
}

// AnalyzePauses summarizes silent gaps. Supplied voice activity is trusted
// when it has segments; otherwise 50 ms frames under 0.01 RMS are silence.
// Gaps shorter than 150 ms are not pauses.
func AnalyzePauses(samples []float64, sampleRate int, va *model.VoiceActivity, th metricconfig.Thresholds) model.PauseResult {
	durationMs := 0.0
	if sampleRate > 0 {
		durationMs = float64(len(samples)) / float64(sampleRate) * msPerSecond
	}

	var res model.PauseResult
	var pauses []float64
	if va != nil && len(va.Segments) > 0 {
		res.FromVAD = true
		res.PauseRatio = 1 - dsp.Clamp(va.SpeechRatio, 0, 1)
		pauses = segmentGaps(va.Segments, durationMs)
	} else {
		pauses = silentRuns(samples, sampleRate)
		if durationMs > 0 {
			var total float64
			for _, p := range pauses {
				total += p
			}
			res.PauseRatio = dsp.Clamp(total/durationMs, 0, 1)
		}
	}

	res.Category = types.CategoryPauses
	res.PauseCount = len(pauses)
	for _, p := range pauses {
		res.TotalPauseMs += p
		res.LongestPauseMs = math.Max(res.LongestPauseMs, p)
	}
	if res.PauseCount > 0 {
		res.AveragePauseMs = res.TotalPauseMs / float64(res.PauseCount)
	}
	res.Score = dsp.ClampScore(pauseScore(res.PauseRatio, th))
	return res
}

func pauseScore(ratio float64, th metricconfig.Thresholds) float64 {
	if ratio <= pauseAllowance {
		return fullScore
	}
	if th.Max <= 0 {
		return 0
	}
	return fullScore - (ratio-pauseAllowance)/th.Max*fullScore
}

// segmentGaps returns the gaps between sorted speech segments and the
// trailing gap to the end of the buffer, keeping those of at least 150 ms.
func segmentGaps(segments []model.Segment, durationMs float64) []float64 {
	sorted := make([]model.Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartMs < sorted[j].StartMs })

	var gaps []float64
	end := sorted[0].EndMs
	for _, s := range sorted[1:] {
		if gap := s.StartMs - end; gap >= minPauseMs {
			gaps = append(gaps, gap)
		}
		end = math.Max(end, s.EndMs)
	}
	if gap := durationMs - end; gap >= minPauseMs {
		gaps = append(gaps, gap)
	}
	return gaps
}

// silentRuns returns the length of each silent run that ended in speech and
// lasted at least 150 ms. A run still open at the end is not a pause.
func silentRuns(samples []float64, sampleRate int) []float64 {
	frame := dsp.SamplesFor(pauseFrameSeconds, sampleRate)
	frameMs := pauseFrameSeconds * msPerSecond
	var runs []float64
	var silentMs float64
	for _, start := range dsp.Frames(len(samples), frame, frame) {
		if dsp.RMS(samples[start:start+frame]) < pauseSilenceRMS {
			silentMs += frameMs
			continue
		}
		if silentMs >= minPauseMs {
			runs = append(runs, silentMs)
		}
		silentMs = 0
	}
	return runs
}
