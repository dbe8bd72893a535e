// Command analyze scores WAV or FLAC files offline and prints one JSON
// result per file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/okian/oratio/internal/adapters/audiofile"
	app "github.com/okian/oratio/internal/app"
	"github.com/okian/oratio/internal/config"
	"github.com/okian/oratio/internal/domain/model"
	"github.com/okian/oratio/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Device   string   `short:"d" help:"Device id whose calibration profile is applied."`
	Words    int      `default:"-1" help:"Precomputed word count applied to every file (negative: unset)."`
	VAD      string   `name:"vad" type:"existingfile" help:"Voice-activity JSON applied to every file."`
	Store    string   `type:"path" help:"Directory holding calibration profiles and the metric override."`
	Target   float64  `default:"-23" help:"Normalization target in LUFS."`
	Parallel int      `short:"p" default:"4" help:"Files analysed concurrently."`
	Verbose  bool     `short:"v" help:"Log at debug level to stderr."`
	Files    []string `arg:"" name:"files" type:"existingfile" help:"WAV or FLAC files to analyse."`
}

// fileResult is one line of output.
type fileResult struct {
	File   string        `json:"file"`
	Result *model.Result `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("analyze"),
		kong.Description("Score speech delivery of recorded audio files."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cli, os.Stdout, os.Stderr))
}

func run(ctx context.Context, cli CLI, stdout, stderr io.Writer) int {
	level := "warn"
	if cli.Verbose {
		level = "debug"
	}
	if err := logger.Init(logger.WithWriter(stderr)); err != nil {
		fmt.Fprintln(stderr, "failed to initialize logging:", err)
		return 1
	}
	_ = logger.SetLevelString(level)
	log := logger.Named("analyze")

	in, err := cli.input()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	opts := []app.Option{app.WithLogger(log), app.WithTargetLUFS(cli.Target)}
	if cli.Store != "" {
		opts = append(opts, app.WithStorage(config.StorageFile, cli.Store, ""))
	}
	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		fmt.Fprintln(stderr, "failed to start:", err)
		return 1
	}
	defer svc.Stop()

	results := analyzeAll(ctx, svc, cli.Files, in, cli.Parallel)

	enc := json.NewEncoder(stdout)
	code := 0
	for _, r := range results {
		if r.Error != "" {
			code = 1
		}
		if err := enc.Encode(r); err != nil {
			fmt.Fprintln(stderr, "write result:", err)
			return 1
		}
	}
	return code
}

// input builds the per-file template from the shared flags.
func (c CLI) input() (model.Input, error) {
	in := model.Input{DeviceID: c.Device}
	if c.Words >= 0 {
		n := c.Words
		in.WordCount = &n
	}
	if c.VAD != "" {
		raw, err := os.ReadFile(c.VAD)
		if err != nil {
			return in, fmt.Errorf("read vad: %w", err)
		}
		var va model.VoiceActivity
		if err := json.Unmarshal(raw, &va); err != nil {
			return in, fmt.Errorf("parse vad %s: %w", c.VAD, err)
		}
		in.VoiceActivity = &va
	}
	return in, nil
}

// analyzeAll decodes and scores files with at most parallel in flight.
// Results keep the order of files; a failing file does not stop the others.
func analyzeAll(ctx context.Context, svc *app.Service, files []string, tmpl model.Input, parallel int) []fileResult {
	if parallel <= 0 {
		parallel = 1
	}
	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, path := range files {
		g.Go(func() error {
			results[i] = analyzeFile(gctx, svc, path, tmpl)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func analyzeFile(ctx context.Context, svc *app.Service, path string, tmpl model.Input) fileResult {
	audio, err := audiofile.DecodeFile(path)
	if err != nil {
		return fileResult{File: path, Error: err.Error()}
	}
	in := tmpl
	in.Samples = audio.Samples
	in.SampleRate = audio.SampleRate
	res, err := svc.Analyze(ctx, in)
	if err != nil {
		return fileResult{File: path, Error: err.Error()}
	}
	return fileResult{File: path, Result: &res}
}
