// Package metricconfig resolves the effective per-metric weights and
// thresholds: a validated local override first, then a cached or freshly
// fetched remote configuration, then the compiled defaults.
package metricconfig

import (
	"github.com/okian/oratio/internal/domain/types"
)

// Thresholds are the scoring bounds of one metric. For response time Min is
// the slower bound and Ideal the faster one.
type Thresholds struct {
	Min   float64 `json:"min"`
	Ideal float64 `json:"ideal"`
	Max   float64 `json:"max"`
}

// MetricConfig is the resolved configuration of one metric.
type MetricConfig struct {
	ID         types.MetricID         `json:"id"`
	Weight     float64                `json:"weight"`
	Enabled    bool                   `json:"enabled"`
	Thresholds Thresholds             `json:"thresholds"`
	Method     types.SpeechRateMethod `json:"method,omitempty"`
}

// Config is an ordered set of metric configurations keyed by id.
type Config []MetricConfig

// Get returns the entry for id.
func (c Config) Get(id types.MetricID) (MetricConfig, bool) {
	for _, m := range c {
		if m.ID == id {
			return m, true
		}
	}
	return MetricConfig{}, false
}

// Enabled returns the enabled entries in order.
func (c Config) Enabled() Config {
	out := make(Config, 0, len(c))
	for _, m := range c {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// Weights returns the raw weight of every enabled metric.
func (c Config) Weights() map[types.MetricID]float64 {
	out := make(map[types.MetricID]float64, len(c))
	for _, m := range c {
		if m.Enabled {
			out[m.ID] = m.Weight
		}
	}
	return out
}

// Clone returns a copy that shares no backing array with c.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	copy(out, c)
	return out
}

// Source names where a resolved configuration came from.
type Source string

// Resolution sources.
const (
	SourceOverride Source = "override"
	SourceCache    Source = "cache"
	SourceRemote   Source = "remote"
	SourceDefault  Source = "default"
)

// Resolution is the outcome of Resolver.Resolve.
type Resolution struct {
	Config Config `json:"metrics"`
	Source Source `json:"source"`
}
