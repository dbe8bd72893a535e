package analysis_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/oratio/internal/adapters/repository"
	"github.com/okian/oratio/internal/domain/analysis"
	"github.com/okian/oratio/internal/domain/calibration"
	"github.com/okian/oratio/internal/domain/metricconfig"
	"github.com/okian/oratio/internal/domain/model"
	"github.com/okian/oratio/internal/domain/scoring"
	"github.com/okian/oratio/internal/domain/speechrate"
	"github.com/okian/oratio/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

const sr = 16000

func level(db, seconds float64) []float64 {
	a := math.Pow(10, db/20)
	out := make([]float64, int(seconds*sr))
	for i := range out {
		if i%2 == 0 {
			out[i] = a
		} else {
			out[i] = -a
		}
	}
	return out
}

func speechLike(seconds float64) []float64 {
	out := make([]float64, int(seconds*sr))
	for i := range out {
		t := float64(i) / sr
		env := math.Pow(math.Sin(math.Pi*4*t), 2)
		out[i] = 0.3 * env * math.Sin(2*math.Pi*220*t)
	}
	return out
}

type staticResolver struct{ res metricconfig.Resolution }

func (s staticResolver) Resolve(context.Context) metricconfig.Resolution { return s.res }

type recordingEstimator struct {
	req speechrate.Request
	est speechrate.Estimate
}

func (r *recordingEstimator) Estimate(_ context.Context, req speechrate.Request) speechrate.Estimate {
	r.req = req
	return r.est
}

type failingCalibrator struct{}

func (failingCalibrator) CalibrateAndNormalize(_ context.Context, samples []float64, _ int, _ string, _ float64) (calibration.Calibrated, error) {
	return calibration.Calibrated{Samples: samples, DeviceGain: 1, NormalizationGain: 1}, errors.New("store offline")
}

func fixedID() string { return "analysis-1" }

func TestEngineNoSpeech(t *testing.T) {
	ctx := context.Background()
	engine := analysis.NewEngine(analysis.WithIDGenerator(fixedID))

	Convey("Given a silent buffer with voice activity showing no speech", t, func() {
		res := engine.Analyze(ctx, model.Input{
			Samples:       make([]float64, 2*sr),
			SampleRate:    sr,
			VoiceActivity: &model.VoiceActivity{SpeechRatio: 0},
		})

		Convey("Then the result is all zero with the no speech message", func() {
			So(res.ID, ShouldEqual, "analysis-1")
			So(res.OverallScore, ShouldEqual, 0)
			So(res.NoSpeech, ShouldBeTrue)
			So(res.Feedback[0], ShouldContainSubstring, "No speech detected")
			So(res.EmotionalFeedback, ShouldEqual, types.TierPoor)
		})
	})

	Convey("Given voice activity with no speech over a loud buffer", t, func() {
		res := engine.Analyze(ctx, model.Input{
			Samples:       level(-10, 1),
			SampleRate:    sr,
			VoiceActivity: &model.VoiceActivity{SpeechRatio: 0.01, TotalSpeechTimeMs: 50},
		})
		So(res.NoSpeech, ShouldBeTrue)
		So(res.OverallScore, ShouldEqual, 0)
	})

	Convey("Given degenerate buffers", t, func() {
		So(engine.Analyze(ctx, model.Input{SampleRate: sr}).NoSpeech, ShouldBeTrue)
		So(engine.Analyze(ctx, model.Input{Samples: make([]float64, sr), SampleRate: sr}).NoSpeech, ShouldBeTrue)
		So(engine.Analyze(ctx, model.Input{Samples: level(-10, 1)}).NoSpeech, ShouldBeTrue)
	})
}

func TestEngineScenarios(t *testing.T) {
	ctx := context.Background()

	Convey("Given a -15 dB buffer and no device", t, func() {
		engine := analysis.NewEngine()
		res := engine.Analyze(ctx, model.Input{Samples: level(-15, 2), SampleRate: sr})

		Convey("Then the volume score is at least 90", func() {
			So(res.Volume, ShouldNotBeNil)
			So(res.Volume.Score, ShouldBeBetweenOrEqual, 90, 100)
			So(res.Normalization, ShouldBeNil)
			So(res.ConfigSource, ShouldEqual, string(metricconfig.SourceDefault))
		})

		Convey("And every metric is present and bounded", func() {
			So(len(res.Scores()), ShouldEqual, len(types.AllMetrics))
			for _, s := range res.Scores() {
				So(s, ShouldBeBetweenOrEqual, 0, 100)
			}
			So(res.OverallScore, ShouldBeBetweenOrEqual, 0, 100)
			So(res.Feedback, ShouldNotBeEmpty)
		})
	})

	Convey("Given a two-metric configuration", t, func() {
		cfg := metricconfig.Defaults()
		for i := range cfg {
			switch cfg[i].ID {
			case types.Volume:
				cfg[i].Weight = 40
			case types.PauseManagement:
				cfg[i].Weight = 10
			default:
				cfg[i].Enabled = false
			}
		}
		engine := analysis.NewEngine(analysis.WithConfigResolver(staticResolver{
			res: metricconfig.Resolution{Config: cfg, Source: metricconfig.SourceOverride},
		}))
		res := engine.Analyze(ctx, model.Input{Samples: speechLike(3), SampleRate: sr})

		Convey("Then only those metrics are computed and weighted 80/20", func() {
			So(res.SpeechRate, ShouldBeNil)
			So(res.Acceleration, ShouldBeNil)
			So(res.ResponseTime, ShouldBeNil)
			So(res.Volume, ShouldNotBeNil)
			So(res.Pauses, ShouldNotBeNil)
			want := int(math.Round(0.8*res.Volume.Score + 0.2*res.Pauses.Score))
			So(res.OverallScore, ShouldEqual, want)
			So(res.ConfigSource, ShouldEqual, "override")
		})
	})

	Convey("Given a precomputed word count", t, func() {
		words := 5
		res := analysis.NewEngine().Analyze(ctx, model.Input{Samples: speechLike(2), SampleRate: sr, WordCount: &words})
		So(res.SpeechRate.Method, ShouldEqual, types.MethodTranscript)
		So(res.SpeechRate.WordsPerMinute, ShouldEqual, 150)
		So(res.SpeechRate.Score, ShouldEqual, 100)
	})

	Convey("Given the same input twice", t, func() {
		engine := analysis.NewEngine(analysis.WithIDGenerator(fixedID))
		in := model.Input{Samples: speechLike(2), SampleRate: sr}
		So(engine.Analyze(ctx, in), ShouldResemble, engine.Analyze(ctx, in))
	})

	Convey("Given samples outside the valid range", t, func() {
		in := speechLike(2)
		in[10] = math.NaN()
		in[20] = math.Inf(1)
		in[30] = 4
		res := analysis.NewEngine().Analyze(ctx, model.Input{Samples: in, SampleRate: sr})

		Convey("Then analysis still completes with bounded scores", func() {
			So(res.OverallScore, ShouldBeBetweenOrEqual, 0, 100)
			So(math.IsNaN(in[10]), ShouldBeTrue)
		})
	})
}

func TestEngineCalibration(t *testing.T) {
	ctx := context.Background()

	Convey("Given a calibrated device", t, func() {
		store := calibration.NewStore(repository.NewMemoryStore("device"))
		_, err := store.CreateProfile(ctx, "mic", "", -70, -29, -23)
		So(err, ShouldBeNil)
		est := &recordingEstimator{est: speechrate.Estimate{WordsPerMinute: 150, Method: types.MethodSpectralFlux}}
		engine := analysis.NewEngine(
			analysis.WithCalibrator(store),
			analysis.WithRateEstimator(est),
		)
		in := speechLike(2)
		for i := range in {
			in[i] *= 0.2
		}
		res := engine.Analyze(ctx, model.Input{Samples: in, SampleRate: sr, DeviceID: "mic"})

		Convey("Then normalization diagnostics are reported", func() {
			So(res.Normalization, ShouldNotBeNil)
			So(float64(res.Normalization.FinalLUFS), ShouldAlmostEqual, analysis.DefaultTargetLUFS, 0.1)
			So(res.Normalization.DeviceGain, ShouldAlmostEqual, math.Pow(10, 6.0/20), 1e-9)
			So(res.Volume.DeviceOffset, ShouldEqual, 6)
			So(res.Normalization.DeviceProfiled, ShouldBeTrue)
		})

		Convey("And a device without a profile is normalized but not profiled", func() {
			other := engine.Analyze(ctx, model.Input{Samples: in, SampleRate: sr, DeviceID: "webcam"})
			So(other.Normalization, ShouldNotBeNil)
			So(other.Normalization.DeviceGain, ShouldEqual, 1)
			So(other.Normalization.DeviceProfiled, ShouldBeFalse)
		})

		Convey("And the estimator sees the processed and the raw buffer", func() {
			So(len(est.req.Samples), ShouldEqual, len(in))
			So(est.req.Raw, ShouldResemble, in)
			So(est.req.Samples, ShouldNotResemble, in)
			So(res.SpeechRate.Score, ShouldEqual, 100)
		})

		Convey("And a history entry is recorded", func() {
			p, err := store.Get(ctx, "mic")
			So(err, ShouldBeNil)
			So(len(p.RecordingHistory), ShouldEqual, 1)
		})
	})

	Convey("Given a calibrator that fails", t, func() {
		engine := analysis.NewEngine(analysis.WithCalibrator(failingCalibrator{}))
		res := engine.Analyze(context.Background(), model.Input{Samples: speechLike(2), SampleRate: sr, DeviceID: "mic"})

		Convey("Then the analysis still completes", func() {
			So(res.NoSpeech, ShouldBeFalse)
			So(res.Normalization, ShouldNotBeNil)
			So(res.Normalization.DeviceGain, ShouldEqual, 1)
			So(res.Feedback, ShouldNotBeEmpty)
		})
	})

	Convey("Given no calibrator", t, func() {
		res := analysis.NewEngine().Analyze(ctx, model.Input{Samples: speechLike(2), SampleRate: sr, DeviceID: "mic"})
		So(res.Normalization, ShouldBeNil)
		So(res.Feedback, ShouldNotResemble, []string{scoring.MsgNoSpeech})
	})
}
