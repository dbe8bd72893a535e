package speechrate_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/oratio/internal/domain/metricconfig"
	"github.com/okian/oratio/internal/domain/speechrate"
	"github.com/okian/oratio/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

const sr = 16000

// bursts returns n Hann-shaped 1 kHz tone bursts, each followed by silence.
func bursts(n int, on, off float64) []float64 {
	onN, offN := int(on*sr), int(off*sr)
	out := make([]float64, 0, n*(onN+offN))
	for b := 0; b < n; b++ {
		for i := 0; i < onN; i++ {
			env := math.Pow(math.Sin(math.Pi*float64(i)/float64(onN)), 2)
			out = append(out, 0.6*env*math.Sin(2*math.Pi*1000*float64(i)/sr))
		}
		out = append(out, make([]float64, offN)...)
	}
	return out
}

type fakeTranscriber struct {
	calls int
	resp  speechrate.Transcription
	err   error
	got   []float64
}

func (f *fakeTranscriber) Transcribe(_ context.Context, samples []float64, _ int) (speechrate.Transcription, error) {
	f.calls++
	f.got = samples
	return f.resp, f.err
}

func intp(v int) *int { return &v }

func TestOnsetCounters(t *testing.T) {
	Convey("Given ten separated syllable-like bursts", t, func() {
		in := bursts(10, 0.12, 0.13)

		Convey("Then energy peaks count about one onset per burst", func() {
			So(speechrate.CountEnergyPeaks(in, sr), ShouldBeBetweenOrEqual, 9, 11)
		})

		Convey("Then spectral flux peaks count about one onset per burst", func() {
			So(speechrate.CountSpectralFluxPeaks(in, sr), ShouldBeBetweenOrEqual, 8, 12)
		})

		Convey("And the decay of a burst is not counted as a second onset", func() {
			five := speechrate.CountSpectralFluxPeaks(bursts(5, 0.12, 0.13), sr)
			So(five, ShouldBeBetweenOrEqual, 4, 6)
			So(speechrate.CountSpectralFluxPeaks(in, sr), ShouldBeLessThanOrEqualTo, speechrate.CountEnergyPeaks(in, sr)+1)
		})

		Convey("And both counters are deterministic", func() {
			So(speechrate.CountSpectralFluxPeaks(in, sr), ShouldEqual, speechrate.CountSpectralFluxPeaks(in, sr))
			So(speechrate.CountEnergyPeaks(in, sr), ShouldEqual, speechrate.CountEnergyPeaks(in, sr))
		})
	})

	Convey("Given silence", t, func() {
		in := make([]float64, sr)

		Convey("Then there are no energy peaks", func() {
			So(speechrate.CountEnergyPeaks(in, sr), ShouldEqual, 0)
		})

		Convey("Then spectral flux reports its floor of one onset", func() {
			So(speechrate.CountSpectralFluxPeaks(in, sr), ShouldEqual, 1)
		})
	})

	Convey("Given a buffer shorter than one frame", t, func() {
		in := make([]float64, 100)
		So(speechrate.CountSpectralFluxPeaks(in, sr), ShouldEqual, 0)
		So(speechrate.CountEnergyPeaks(in, sr), ShouldEqual, 0)
		So(speechrate.SpectralFlux(in, sr), ShouldBeNil)
	})

	Convey("The first frame has zero flux", t, func() {
		flux := speechrate.SpectralFlux(bursts(2, 0.1, 0.1), sr)
		So(len(flux), ShouldBeGreaterThan, 1)
		So(flux[0], ShouldEqual, 0)
		for _, v := range flux {
			So(v, ShouldBeGreaterThanOrEqualTo, 0)
		}
	})
}

func TestRates(t *testing.T) {
	Convey("Rates follow the syllable and word formulas", t, func() {
		So(speechrate.WordsPerMinute(10, 2.5), ShouldEqual, 160)
		So(speechrate.WordsPerMinute(7, 3), ShouldEqual, math.Round(7.0/3*60/1.5))
		So(speechrate.WordsPerMinute(10, 0), ShouldEqual, 0)
		So(speechrate.TranscriptWordsPerMinute(5, 2), ShouldEqual, 150)
		So(speechrate.TranscriptWordsPerMinute(5, 0), ShouldEqual, 0)
		So(speechrate.TranscriptWordsPerMinute(1, 0.7), ShouldAlmostEqual, 60/0.7, 1e-9)
	})
}

func TestScoreSpeechRate(t *testing.T) {
	Convey("Given the default speech rate thresholds", t, func() {
		th := metricconfig.Thresholds{Min: 80, Ideal: 150, Max: 200}

		So(speechrate.ScoreSpeechRate(70, th), ShouldEqual, 0)
		So(speechrate.ScoreSpeechRate(80, th), ShouldEqual, 0)
		So(speechrate.ScoreSpeechRate(115, th), ShouldEqual, 50)
		So(speechrate.ScoreSpeechRate(150, th), ShouldEqual, 100)
		So(speechrate.ScoreSpeechRate(260, th), ShouldEqual, 100)
		So(speechrate.ScoreSpeechRate(math.NaN(), th), ShouldEqual, 0)
	})

	Convey("A degenerate range does not divide by zero", t, func() {
		th := metricconfig.Thresholds{Min: 100, Ideal: 100}
		So(speechrate.ScoreSpeechRate(101, th), ShouldEqual, 100)
	})
}

func TestEstimator(t *testing.T) {
	ctx := context.Background()
	in := bursts(8, 0.12, 0.13) // 2 s

	Convey("Given an estimator with a transcriber", t, func() {
		tr := &fakeTranscriber{resp: speechrate.Transcription{WordCount: intp(5)}}
		e := speechrate.NewEstimator(speechrate.WithTranscriber(tr))

		Convey("When a word count is precomputed", func() {
			est := e.Estimate(ctx, speechrate.Request{Samples: in, SampleRate: sr, Method: types.MethodSpectralFlux, WordCount: intp(6)})

			Convey("Then the transcript formula is used without a round trip", func() {
				So(est.Method, ShouldEqual, types.MethodTranscript)
				So(est.WordsPerMinute, ShouldEqual, 180)
				So(tr.calls, ShouldEqual, 0)
			})
		})

		Convey("When the transcript method succeeds", func() {
			raw := make([]float64, len(in))
			est := e.Estimate(ctx, speechrate.Request{Samples: in, Raw: raw, SampleRate: sr, Method: types.MethodTranscript})

			So(tr.calls, ShouldEqual, 1)
			So(len(tr.got), ShouldEqual, len(raw))
			So(est.Method, ShouldEqual, types.MethodTranscript)
			So(est.WordsPerMinute, ShouldEqual, 150)
			So(est.Fallback, ShouldBeBlank)
		})

		Convey("When the transcriber only returns text", func() {
			tr.resp = speechrate.Transcription{Transcript: "one two three four five six"}
			est := e.Estimate(ctx, speechrate.Request{Samples: in, SampleRate: sr, Method: types.MethodTranscript})
			So(est.WordsPerMinute, ShouldEqual, 180)
			So(est.Transcript, ShouldEqual, "one two three four five six")
		})

		Convey("When the transcriber reports words per minute", func() {
			wpm := 132.0
			tr.resp = speechrate.Transcription{WordsPerMinute: &wpm}
			est := e.Estimate(ctx, speechrate.Request{Samples: in, SampleRate: sr, Method: types.MethodTranscript})
			So(est.WordsPerMinute, ShouldEqual, 132)
		})

		Convey("When the transcriber fails", func() {
			tr.err = errors.New("503 service unavailable")
			est := e.Estimate(ctx, speechrate.Request{Samples: in, SampleRate: sr, Method: types.MethodTranscript})

			Convey("Then spectral flux is used silently", func() {
				So(est.Method, ShouldEqual, types.MethodSpectralFlux)
				So(est.Fallback, ShouldContainSubstring, "503")
				So(est.Syllables, ShouldEqual, speechrate.CountSpectralFluxPeaks(in, sr))
			})
		})

		Convey("When the transcriber returns nothing", func() {
			tr.resp = speechrate.Transcription{Transcript: "  "}
			est := e.Estimate(ctx, speechrate.Request{Samples: in, SampleRate: sr, Method: types.MethodTranscript})
			So(est.Method, ShouldEqual, types.MethodSpectralFlux)
			So(est.Fallback, ShouldNotBeBlank)
		})
	})

	Convey("Given an estimator without a transcriber", t, func() {
		e := speechrate.NewEstimator()

		Convey("The transcript method falls back", func() {
			est := e.Estimate(ctx, speechrate.Request{Samples: in, SampleRate: sr, Method: types.MethodTranscript})
			So(est.Method, ShouldEqual, types.MethodSpectralFlux)
		})

		Convey("The energy method uses energy peaks", func() {
			est := e.Estimate(ctx, speechrate.Request{Samples: in, SampleRate: sr, Method: types.MethodEnergyPeaks})
			So(est.Method, ShouldEqual, types.MethodEnergyPeaks)
			So(est.Syllables, ShouldEqual, speechrate.CountEnergyPeaks(in, sr))
			So(est.WordsPerMinute, ShouldEqual, speechrate.WordsPerMinute(est.Syllables, 2))
		})

		Convey("An unset method uses spectral flux", func() {
			est := e.Estimate(ctx, speechrate.Request{Samples: in, SampleRate: sr})
			So(est.Method, ShouldEqual, types.MethodSpectralFlux)
		})

		Convey("A zero sample rate yields zero words per minute", func() {
			est := e.Estimate(ctx, speechrate.Request{Samples: in})
			So(est.WordsPerMinute, ShouldEqual, 0)
		})
	})
}
