package metricconfig

import (
	"context"
	"math"

	"github.com/okian/oratio/internal/domain/types"
)

// RemoteRow is one row served by the scoring-config collaborator.
type RemoteRow struct {
	MetricName string   `json:"metric_name"`
	Weight     float64  `json:"weight"` // fraction in [0, 1]
	MinValue   *float64 `json:"min_value"`
	MaxValue   *float64 `json:"max_value"`
}

// RemoteSource fetches the remote scoring configuration.
type RemoteSource interface {
	FetchScoringConfig(ctx context.Context) ([]RemoteRow, error)
}

// RemoteSourceFunc adapts a function to RemoteSource.
type RemoteSourceFunc func(ctx context.Context) ([]RemoteRow, error)

// FetchScoringConfig implements RemoteSource.
func (f RemoteSourceFunc) FetchScoringConfig(ctx context.Context) ([]RemoteRow, error) {
	return f(ctx)
}

// externalNames maps the collaborator's metric names onto internal ids.
var externalNames = map[string]types.MetricID{ //nolint:gochecknoglobals // fixed mapping
	"volume":        types.Volume,
	"speech_rate":   types.SpeechRate,
	"end_intensity": types.Acceleration,
	"latency":       types.ResponseTime,
	"pauses":        types.PauseManagement,
}

// MapRemote converts remote rows into a Config. Only listed metrics are
// included; rows with unknown names are ignored. The bool is false when
// nothing could be mapped.
func MapRemote(rows []RemoteRow) (Config, bool) {
	picked := make(map[types.MetricID]MetricConfig, len(rows))
	for _, row := range rows {
		id, ok := externalNames[row.MetricName]
		if !ok {
			continue
		}
		mc, _ := DefaultFor(id)
		w := row.Weight
		if math.IsNaN(w) || w < 0 {
			w = 0
		}
		mc.Weight = math.Round(w * 100)
		mc.Enabled = true
		mc.Thresholds.Min = orDefault(row.MinValue, mc.Thresholds.Min)
		mc.Thresholds.Max = orDefault(row.MaxValue, mc.Thresholds.Max)
		picked[id] = mc
	}

	cfg := make(Config, 0, len(picked))
	for _, id := range types.AllMetrics {
		if mc, ok := picked[id]; ok {
			cfg = append(cfg, mc)
		}
	}
	return cfg, len(cfg) > 0
}
