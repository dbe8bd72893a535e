package metricconfig

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/okian/oratio/internal/domain/types"
)

// OverrideKey is the key the local override is stored under.
const OverrideKey = "override"

// overrideThresholds allows partial thresholds; missing bounds are
// backfilled from the compiled default of the same metric.
type overrideThresholds struct {
	Min   *float64 `json:"min"`
	Ideal *float64 `json:"ideal"`
	Max   *float64 `json:"max"`
}

type overrideEntry struct {
	ID         types.MetricID         `json:"id"`
	Weight     *float64               `json:"weight"`
	Enabled    *bool                  `json:"enabled"`
	Thresholds *overrideThresholds    `json:"thresholds"`
	Method     types.SpeechRateMethod `json:"method"`
}

// OverrideResult is the typed outcome of ParseOverride. Valid is false when
// the document is unusable as a whole; Problems lists entries that were
// skipped.
type OverrideResult struct {
	Config   Config
	Valid    bool
	Reason   string
	Problems []string
}

// ParseOverride validates a stored override document. It never panics and
// never returns an error: malformed input is reported through the result.
func ParseOverride(raw []byte) OverrideResult {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return OverrideResult{Reason: "override must be a JSON array"}
	}

	picked := make(map[types.MetricID]MetricConfig, len(items))
	var problems []string
	for i, item := range items {
		mc, problem := parseEntry(item)
		if problem != "" {
			problems = append(problems, fmt.Sprintf("entry %d: %s", i, problem))
			continue
		}
		picked[mc.ID] = mc
	}

	cfg := make(Config, 0, len(picked))
	for _, id := range types.AllMetrics {
		if mc, ok := picked[id]; ok {
			cfg = append(cfg, mc)
		}
	}
	if len(cfg) == 0 {
		return OverrideResult{Reason: "override has no valid entries", Problems: problems}
	}
	return OverrideResult{Config: cfg, Valid: true, Problems: problems}
}

func parseEntry(raw json.RawMessage) (MetricConfig, string) {
	var e overrideEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return MetricConfig{}, "not an object"
	}
	if !e.ID.Known() {
		return MetricConfig{}, fmt.Sprintf("unknown metric id %q", e.ID)
	}
	def, _ := DefaultFor(e.ID)
	if e.Enabled == nil || !*e.Enabled {
		return MetricConfig{}, "enabled must be true"
	}
	if e.Weight == nil || !(*e.Weight > 0) || math.IsInf(*e.Weight, 0) {
		return MetricConfig{}, "weight must be a positive number"
	}

	mc := def
	mc.Weight = *e.Weight
	if t := e.Thresholds; t != nil {
		mc.Thresholds.Min = orDefault(t.Min, def.Thresholds.Min)
		mc.Thresholds.Ideal = orDefault(t.Ideal, def.Thresholds.Ideal)
		mc.Thresholds.Max = orDefault(t.Max, def.Thresholds.Max)
	}
	if e.ID == types.SpeechRate && e.Method != "" {
		if !e.Method.Valid() {
			return MetricConfig{}, fmt.Sprintf("unknown speech rate method %q", e.Method)
		}
		mc.Method = e.Method
	}
	return mc, ""
}

func orDefault(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return def
	}
	return *v
}
