// Package loudness measures gated integrated loudness and normalizes buffers
// toward a loudness target.
package loudness

import (
	"math"

	"github.com/okian/oratio/internal/domain/dsp"
)

// Gating constants.
const (
	blockSeconds     = 0.4    // 400 ms measurement block
	hopSeconds       = 0.1    // 75% overlap
	absoluteGateDB   = -70.0  // absolute gate, mean-square domain
	relativeGateDB   = -10.0  // relative to the absolute-gated average
	loudnessOffsetDB = -0.691 // K-weighting offset applied to the final mean
)

// CalculateLUFS returns the gated integrated loudness of samples.
//
// An empty buffer is -Inf. When no block survives both gates (including
// buffers shorter than one block) the result is 0, which callers treat as the
// weakest valid signal rather than silence.
func CalculateLUFS(samples []float64, sampleRate int) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}

	block := dsp.SamplesFor(blockSeconds, sampleRate)
	hop := dsp.SamplesFor(hopSeconds, sampleRate)
	starts := dsp.Frames(len(samples), block, hop)

	absGate := math.Pow(10, absoluteGateDB/10)
	gated := make([]float64, 0, len(starts))
	for _, start := range starts {
		ms := dsp.MeanSquare(samples[start : start+block])
		if ms >= absGate {
			gated = append(gated, ms)
		}
	}
	if len(gated) == 0 {
		return 0
	}

	relGate := mean(gated) * math.Pow(10, relativeGateDB/10)
	var sum float64
	var n int
	for _, ms := range gated {
		if ms >= relGate {
			sum += ms
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return loudnessOffsetDB + 10*math.Log10(sum/float64(n))
}

func mean(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}

// Normalized is the outcome of NormalizeToLUFS.
type Normalized struct {
	Samples     []float64
	CurrentLUFS float64
	GainDB      float64
	GainLinear  float64
}

// NormalizeToLUFS scales samples toward target loudness. Non-finite current
// loudness (an empty buffer) returns the input unchanged with unit gain.
// The input slice is never modified.
func NormalizeToLUFS(samples []float64, sampleRate int, target float64) Normalized {
	current := CalculateLUFS(samples, sampleRate)
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return Normalized{Samples: samples, CurrentLUFS: current, GainDB: 0, GainLinear: 1}
	}
	gainDB := target - current
	gain := dsp.DBToLinear(gainDB)
	return Normalized{
		Samples:     ApplyGain(samples, gain),
		CurrentLUFS: current,
		GainDB:      gainDB,
		GainLinear:  gain,
	}
}

// ApplyGain returns a copy of samples scaled by gain and hard-clipped to [-1, 1].
func ApplyGain(samples []float64, gain float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = dsp.Clamp(s*gain, -1, 1)
	}
	return out
}
