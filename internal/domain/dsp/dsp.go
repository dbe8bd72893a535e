// Package dsp holds the small numeric helpers shared by the analyzers.
// Every function is pure and sequential so results are deterministic.
package dsp

import (
	"math"
	"sort"
)

// MinAmplitude floors RMS before taking a logarithm so silence maps to a
// finite decibel value instead of -Inf.
const MinAmplitude = 1e-10

// Clamp limits v to [lo, hi]. NaN maps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampScore limits a score to [0, 100].
func ClampScore(v float64) float64 { return Clamp(v, 0, 100) }

// MeanSquare returns the mean of squared samples, 0 for an empty slice.
func MeanSquare(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, s := range x {
		sum += s * s
	}
	return sum / float64(len(x))
}

// RMS returns the root mean square of x.
func RMS(x []float64) float64 {
	return math.Sqrt(MeanSquare(x))
}

// AmplitudeToDB converts a linear amplitude to dBFS, floored at MinAmplitude.
func AmplitudeToDB(a float64) float64 {
	return 20 * math.Log10(math.Max(a, MinAmplitude))
}

// DB returns the RMS level of x in dBFS.
func DB(x []float64) float64 {
	return AmplitudeToDB(RMS(x))
}

// DBToLinear converts a decibel gain to a linear multiplier.
func DBToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

// Frames returns the start offsets of every full frame of size frame
// advanced by hop. Frames that would run past the end are dropped.
func Frames(n, frame, hop int) []int {
	if frame <= 0 || hop <= 0 || n < frame {
		return nil
	}
	starts := make([]int, 0, (n-frame)/hop+1)
	for start := 0; start+frame <= n; start += hop {
		starts = append(starts, start)
	}
	return starts
}

// SamplesFor converts a duration in seconds to a sample count at rate.
func SamplesFor(seconds float64, sampleRate int) int {
	return int(math.Round(seconds * float64(sampleRate)))
}

// Median returns the median of x without modifying it.
func Median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := sortedCopy(x)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

// Percentile returns the nearest-rank value at fraction p in [0,1].
func Percentile(x []float64, p float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := sortedCopy(x)
	idx := int(math.Floor(p * float64(len(s))))
	if idx >= len(s) {
		idx = len(s) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return s[idx]
}

// StdDev returns the population standard deviation of x.
func StdDev(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	var acc float64
	for _, v := range x {
		d := v - mean
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(x)))
}

// Lerp maps v from [a0, a1] onto [b0, b1] linearly.
func Lerp(v, a0, a1, b0, b1 float64) float64 {
	if a1 == a0 {
		return b1
	}
	return b0 + (v-a0)/(a1-a0)*(b1-b0)
}

func sortedCopy(x []float64) []float64 {
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	return s
}
