// Package audiofile decodes uploaded WAV and FLAC recordings into the mono
// float64 buffers the analysis engine consumes, and encodes buffers back to
// 16-bit WAV for collaborators that want a file.
package audiofile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

// Format is a detected container format.
type Format string

// Supported formats.
const (
	FormatWAV  Format = "wav"
	FormatFLAC Format = "flac"

	wavBitDepth  = 16
	wavPCMFormat = 1
)

// Audio is a decoded mono recording.
type Audio struct {
	Samples    []float64
	SampleRate int
	Channels   int // channel count before downmixing
	BitDepth   int
	Format     Format
}

// DurationSeconds returns the recording length.
func (a Audio) DurationSeconds() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.Samples)) / float64(a.SampleRate)
}

// Detect sniffs the container format from the first bytes of data.
func Detect(data []byte) (Format, error) {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV, nil
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return FormatFLAC, nil
	}
	return "", ErrUnsupportedFormat
}

// Decode reads a whole WAV or FLAC stream and downmixes it to mono.
func Decode(r io.Reader) (Audio, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Audio{}, fmt.Errorf("read audio: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes decodes an in-memory WAV or FLAC recording.
func DecodeBytes(data []byte) (Audio, error) {
	format, err := Detect(data)
	if err != nil {
		return Audio{}, err
	}
	switch format {
	case FormatFLAC:
		return decodeFLAC(data)
	default:
		return decodeWAV(data)
	}
}

// DecodeFile decodes the file at path.
func DecodeFile(path string) (Audio, error) {
	f, err := os.Open(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return Audio{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

func decodeWAV(data []byte) (Audio, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Audio{}, fmt.Errorf("%w: not a PCM wav file", ErrInvalidAudio)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 || buf.Format.SampleRate <= 0 {
		return Audio{}, fmt.Errorf("%w: missing format", ErrInvalidAudio)
	}
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = int(dec.BitDepth)
	}
	return Audio{
		Samples:    downmix(buf.Data, buf.Format.NumChannels, depth),
		SampleRate: buf.Format.SampleRate,
		Channels:   buf.Format.NumChannels,
		BitDepth:   depth,
		Format:     FormatWAV,
	}, nil
}

func decodeFLAC(data []byte) (Audio, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return Audio{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	depth := int(info.BitsPerSample)
	if channels < 1 || info.SampleRate == 0 {
		return Audio{}, fmt.Errorf("%w: missing stream info", ErrInvalidAudio)
	}

	scale := fullScale(depth)
	var samples []float64
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Audio{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
		}
		n := int(frame.BlockSize)
		for i := 0; i < n; i++ {
			var sum float64
			for _, sub := range frame.Subframes {
				sum += float64(sub.Samples[i])
			}
			samples = append(samples, clip(sum/float64(len(frame.Subframes))/scale))
		}
	}
	return Audio{
		Samples:    samples,
		SampleRate: int(info.SampleRate),
		Channels:   channels,
		BitDepth:   depth,
		Format:     FormatFLAC,
	}, nil
}

// downmix averages interleaved integer frames into mono floats in [-1, 1].
func downmix(data []int, channels, bitDepth int) []float64 {
	scale := fullScale(bitDepth)
	out := make([]float64, len(data)/channels)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(data[i*channels+c])
		}
		out[i] = clip(sum / float64(channels) / scale)
	}
	return out
}

func fullScale(bitDepth int) float64 {
	if bitDepth <= 0 {
		bitDepth = wavBitDepth
	}
	return math.Pow(2, float64(bitDepth-1))
}

func clip(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// EncodeWAV writes samples as 16-bit mono PCM WAV to w.
func EncodeWAV(w io.WriteSeeker, samples []float64, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, 1, wavPCMFormat)
	scale := fullScale(wavBitDepth) - 1
	data := make([]int, len(samples))
	for i, s := range samples {
		if math.IsNaN(s) {
			s = 0
		}
		data[i] = int(math.Round(clip(s) * scale))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish wav: %w", err)
	}
	return nil
}

// EncodeWAVBytes encodes samples through a temporary file, since the WAV
// encoder patches its header by seeking.
func EncodeWAVBytes(samples []float64, sampleRate int) ([]byte, error) {
	f, err := os.CreateTemp("", "oratio-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()
	if err := EncodeWAV(f, samples, sampleRate); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind temp wav: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read temp wav: %w", err)
	}
	return data, nil
}
