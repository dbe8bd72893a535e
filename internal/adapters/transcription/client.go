// Package transcription is the HTTP client for the external transcription
// service used by the transcript speech-rate method.
package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/okian/oratio/internal/adapters/audiofile"
	"github.com/okian/oratio/internal/domain/speechrate"
	"github.com/okian/oratio/pkg/logger"
	"github.com/okian/oratio/pkg/metrics"
)

const (
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
	formFileField   = "file"
	formFileName    = "audio.wav"
)

// ErrBadStatus is returned when the service answers with a non-2xx status.
var ErrBadStatus = errors.New("transcription service returned an error status")

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

// WithLanguage sends a language hint with every request.
func WithLanguage(lang string) Option {
	return func(cl *Client) { cl.language = lang }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// Client uploads recordings as WAV and reads back the transcription.
type Client struct {
	endpoint string
	language string
	http     *http.Client
	log      logger.Logger
}

var _ speechrate.Transcriber = (*Client)(nil)

// New creates a client posting to endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: defaultTimeout},
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transcribe implements speechrate.Transcriber. Every failure is counted so
// the spectral-flux fallback rate is visible.
func (c *Client) Transcribe(ctx context.Context, samples []float64, sampleRate int) (speechrate.Transcription, error) {
	t, reason, err := c.transcribe(ctx, samples, sampleRate)
	if err != nil {
		metrics.RecordTranscriptionFallback(reason)
		c.log.Debug(ctx, "transcription request failed", logger.String("reason", reason), logger.Error(err))
		return speechrate.Transcription{}, err
	}
	return t, nil
}

func (c *Client) transcribe(ctx context.Context, samples []float64, sampleRate int) (speechrate.Transcription, string, error) {
	wavData, err := audiofile.EncodeWAVBytes(samples, sampleRate)
	if err != nil {
		return speechrate.Transcription{}, "encode", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(formFileField, formFileName)
	if err != nil {
		return speechrate.Transcription{}, "encode", fmt.Errorf("transcription: create form file: %w", err)
	}
	if _, err := fw.Write(wavData); err != nil {
		return speechrate.Transcription{}, "encode", fmt.Errorf("transcription: write wav data: %w", err)
	}
	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return speechrate.Transcription{}, "encode", fmt.Errorf("transcription: write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return speechrate.Transcription{}, "encode", fmt.Errorf("transcription: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return speechrate.Transcription{}, "request", fmt.Errorf("transcription: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return speechrate.Transcription{}, "transport", fmt.Errorf("transcription: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return speechrate.Transcription{}, "status", fmt.Errorf("%w: HTTP %d", ErrBadStatus, resp.StatusCode)
	}

	var t speechrate.Transcription
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&t); err != nil {
		return speechrate.Transcription{}, "decode", fmt.Errorf("transcription: parse JSON response: %w", err)
	}
	return t, "", nil
}
