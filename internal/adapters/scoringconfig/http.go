package scoringconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/oratio/internal/domain/metricconfig"
)

const (
	defaultHTTPTimeout = 5 * time.Second
	maxBodySize        = 1 << 20
)

// ErrBadStatus is returned when the endpoint answers with a non-2xx status.
var ErrBadStatus = errors.New("scoring config endpoint returned an error status")

// HTTPSource fetches a JSON array of scoring rows with a GET request.
type HTTPSource struct {
	url    string
	client *http.Client
}

var _ metricconfig.RemoteSource = (*HTTPSource)(nil)

// NewHTTPSource creates a source for url. A nil client gets a default with
// timeout applied; a non-positive timeout uses the default.
func NewHTTPSource(url string, client *http.Client, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPSource{url: url, client: client}
}

// FetchScoringConfig implements metricconfig.RemoteSource.
func (s *HTTPSource) FetchScoringConfig(ctx context.Context) ([]metricconfig.RemoteRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("scoring config: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scoring config: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrBadStatus, resp.StatusCode)
	}

	var rows []metricconfig.RemoteRow
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&rows); err != nil {
		return nil, fmt.Errorf("scoring config: decode: %w", err)
	}
	return rows, nil
}
