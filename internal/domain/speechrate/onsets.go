package speechrate

import (
	"math"

	"github.com/okian/oratio/internal/domain/dsp"
)

// Onset detection constants.
const (
	frameSeconds      = 0.02
	hopSeconds        = 0.01
	energyThreshold   = 0.15
	energyMinGap      = 3
	fluxBins          = 128
	fluxMedianFactor  = 1.5
	fluxP75Factor     = 0.5
	fluxMinGap        = 4
	syllablesPerWord  = 1.5
	secondsPerMinute  = 60
	fluxUpperQuartile = 0.75
	fluxMinimumOnsets = 1
)

// frameEnergies returns the mean-square energy of each 20 ms frame at a 10 ms hop.
func frameEnergies(samples []float64, sampleRate int) []float64 {
	frame := dsp.SamplesFor(frameSeconds, sampleRate)
	hop := dsp.SamplesFor(hopSeconds, sampleRate)
	starts := dsp.Frames(len(samples), frame, hop)
	out := make([]float64, len(starts))
	for i, start := range starts {
		out[i] = dsp.MeanSquare(samples[start : start+frame])
	}
	return out
}

// pickPeaks counts local maxima of x above threshold separated by at least
// minGap frames from the previously accepted peak. A non-nil accept vetoes
// candidate frames.
func pickPeaks(x []float64, threshold float64, minGap int, accept func(i int) bool) int {
	count, last := 0, -minGap
	for i := 1; i+1 < len(x); i++ {
		if x[i] <= threshold || x[i] <= x[i-1] || x[i] < x[i+1] {
			continue
		}
		if i-last < minGap || (accept != nil && !accept(i)) {
			continue
		}
		count++
		last = i
	}
	return count
}

// CountEnergyPeaks counts syllable onsets as energy peaks above 15% of the
// loudest frame.
func CountEnergyPeaks(samples []float64, sampleRate int) int {
	energies := frameEnergies(samples, sampleRate)
	var peak float64
	for _, e := range energies {
		peak = math.Max(peak, e)
	}
	if peak == 0 {
		return 0
	}
	return pickPeaks(energies, energyThreshold*peak, energyMinGap, nil)
}

// dftTables holds the cosine and sine terms of the first fluxBins bins of an
// n-point transform.
type dftTables struct {
	n        int
	cos, sin [][]float64
}

func newDFTTables(n int) dftTables {
	t := dftTables{n: n, cos: make([][]float64, fluxBins), sin: make([][]float64, fluxBins)}
	for k := 0; k < fluxBins; k++ {
		t.cos[k] = make([]float64, n)
		t.sin[k] = make([]float64, n)
		for i := 0; i < n; i++ {
			angle := 2 * math.Pi * float64(k) * float64(i) / float64(n)
			t.cos[k][i] = math.Cos(angle)
			t.sin[k][i] = math.Sin(angle)
		}
	}
	return t
}

// magnitudes writes the magnitude spectrum of frame into dst.
func (t dftTables) magnitudes(frame, dst []float64) {
	for k := 0; k < fluxBins; k++ {
		var re, im float64
		ck, sk := t.cos[k], t.sin[k]
		for i, s := range frame {
			re += s * ck[i]
			im -= s * sk[i]
		}
		dst[k] = math.Sqrt(re*re + im*im)
	}
}

// SpectralFlux returns the positive spectral flux of each 20 ms frame. The
// first frame has no predecessor and its flux is 0.
func SpectralFlux(samples []float64, sampleRate int) []float64 {
	frame := dsp.SamplesFor(frameSeconds, sampleRate)
	hop := dsp.SamplesFor(hopSeconds, sampleRate)
	starts := dsp.Frames(len(samples), frame, hop)
	if len(starts) == 0 {
		return nil
	}

	tables := newDFTTables(frame)
	prev := make([]float64, fluxBins)
	cur := make([]float64, fluxBins)
	flux := make([]float64, len(starts))
	for f, start := range starts {
		tables.magnitudes(samples[start:start+frame], cur)
		if f > 0 {
			var sum float64
			for k := range cur {
				if d := cur[k] - prev[k]; d > 0 {
					sum += d
				}
			}
			flux[f] = sum
		}
		prev, cur = cur, prev
	}
	return flux
}

// CountSpectralFluxPeaks counts syllable onsets as spectral-flux peaks above
// an adaptive threshold. Only frames whose energy rises over the previous
// frame qualify: a decaying syllable spreads energy into neighbouring bins
// and would otherwise count a second time. Any buffer holding at least one
// frame counts one onset at minimum.
func CountSpectralFluxPeaks(samples []float64, sampleRate int) int {
	flux := SpectralFlux(samples, sampleRate)
	if len(flux) == 0 {
		return 0
	}
	energies := frameEnergies(samples, sampleRate)
	rising := func(i int) bool { return energies[i] > energies[i-1] }
	threshold := math.Max(fluxMedianFactor*dsp.Median(flux), fluxP75Factor*dsp.Percentile(flux, fluxUpperQuartile))
	return max(pickPeaks(flux, threshold, fluxMinGap, rising), fluxMinimumOnsets)
}

// WordsPerMinute converts a syllable count into words per minute assuming
// 1.5 syllables per word.
func WordsPerMinute(syllables int, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return math.Round(float64(syllables) / durationSeconds * secondsPerMinute / syllablesPerWord)
}

// TranscriptWordsPerMinute converts a word count into words per minute.
// The rate is not rounded.
func TranscriptWordsPerMinute(words int, durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	return float64(words) / durationSeconds * secondsPerMinute
}
