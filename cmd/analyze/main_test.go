package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/oratio/internal/adapters/audiofile"
)

const sr = 16000

func writeWAV(t *testing.T, dir, name string, samples []float64) string {
	t.Helper()
	data, err := audiofile.EncodeWAVBytes(samples, sr)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func bursts(seconds float64) []float64 {
	out := make([]float64, int(seconds*sr))
	period := sr / 4
	for i := range out {
		pos := i % period
		if pos >= period/2 {
			continue
		}
		env := 0.5 - 0.5*math.Cos(2*math.Pi*float64(pos)/float64(period/2))
		out[i] = 0.4 * env * math.Sin(2*math.Pi*200*float64(i)/sr)
	}
	return out
}

func decodeLines(out string) []fileResult {
	var results []fileResult
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var r fileResult
		So(json.Unmarshal([]byte(line), &r), ShouldBeNil)
		results = append(results, r)
	}
	return results
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	Convey("Given a directory of recordings", t, func() {
		dir := t.TempDir()
		speech := writeWAV(t, dir, "speech.wav", bursts(3))
		silence := writeWAV(t, dir, "silence.wav", make([]float64, sr))
		broken := filepath.Join(dir, "broken.wav")
		So(os.WriteFile(broken, []byte("RIFF"), 0o600), ShouldBeNil)

		Convey("When every file is analysed", func() {
			var stdout, stderr bytes.Buffer
			code := run(ctx, CLI{Words: -1, Target: -23, Parallel: 2, Files: []string{speech, silence}}, &stdout, &stderr)

			Convey("Then one JSON line per file is printed in input order", func() {
				So(code, ShouldEqual, 0)
				results := decodeLines(stdout.String())
				So(results, ShouldHaveLength, 2)
				So(results[0].File, ShouldEqual, speech)
				So(results[0].Result.NoSpeech, ShouldBeFalse)
				So(results[1].File, ShouldEqual, silence)
				So(results[1].Result.NoSpeech, ShouldBeTrue)
			})
		})

		Convey("When a word count is given", func() {
			var stdout, stderr bytes.Buffer
			code := run(ctx, CLI{Words: 6, Target: -23, Parallel: 1, Files: []string{speech}}, &stdout, &stderr)
			So(code, ShouldEqual, 0)
			results := decodeLines(stdout.String())
			So(results[0].Result.SpeechRate.WordsPerMinute, ShouldEqual, 120)
		})

		Convey("When one file cannot be decoded", func() {
			var stdout, stderr bytes.Buffer
			code := run(ctx, CLI{Words: -1, Target: -23, Parallel: 4, Files: []string{broken, speech}}, &stdout, &stderr)

			Convey("Then it is reported and the others still run", func() {
				So(code, ShouldEqual, 1)
				results := decodeLines(stdout.String())
				So(results[0].Error, ShouldNotBeEmpty)
				So(results[1].Result, ShouldNotBeNil)
			})
		})

		Convey("When the voice-activity file is malformed", func() {
			vad := filepath.Join(dir, "vad.json")
			So(os.WriteFile(vad, []byte("{"), 0o600), ShouldBeNil)
			var stdout, stderr bytes.Buffer
			code := run(ctx, CLI{Words: -1, Target: -23, VAD: vad, Files: []string{speech}}, &stdout, &stderr)
			So(code, ShouldEqual, 2)
			So(stderr.String(), ShouldContainSubstring, "parse vad")
		})

		Convey("When a voice-activity file reports no speech", func() {
			vad := filepath.Join(dir, "vad.json")
			So(os.WriteFile(vad, []byte(`{"segments":[],"speech_ratio":0,"total_speech_time_ms":0}`), 0o600), ShouldBeNil)
			var stdout, stderr bytes.Buffer
			code := run(ctx, CLI{Words: -1, Target: -23, VAD: vad, Files: []string{speech}}, &stdout, &stderr)
			So(code, ShouldEqual, 0)
			So(decodeLines(stdout.String())[0].Result.NoSpeech, ShouldBeTrue)
		})
	})
}
