package metricconfig

import "github.com/okian/oratio/internal/domain/types"

// Compiled default weights and thresholds.
const (
	defaultVolumeWeight       = 25
	defaultSpeechRateWeight   = 25
	defaultAccelerationWeight = 15
	defaultResponseTimeWeight = 15
	defaultPauseWeight        = 20
)

// Defaults returns the compiled default configuration, every metric enabled.
func Defaults() Config {
	return Config{
		{
			ID:         types.Volume,
			Weight:     defaultVolumeWeight,
			Enabled:    true,
			Thresholds: Thresholds{Min: -40, Ideal: -15, Max: -5},
		},
		{
			ID:         types.SpeechRate,
			Weight:     defaultSpeechRateWeight,
			Enabled:    true,
			Thresholds: Thresholds{Min: 80, Ideal: 150, Max: 200},
			Method:     types.MethodSpectralFlux,
		},
		{
			ID:         types.Acceleration,
			Weight:     defaultAccelerationWeight,
			Enabled:    true,
			Thresholds: Thresholds{Min: 0, Ideal: 50, Max: 100},
		},
		{
			// Min is the slow bound: anything past it decays toward zero.
			ID:         types.ResponseTime,
			Weight:     defaultResponseTimeWeight,
			Enabled:    true,
			Thresholds: Thresholds{Min: 3000, Ideal: 1000, Max: 6000},
		},
		{
			ID:         types.PauseManagement,
			Weight:     defaultPauseWeight,
			Enabled:    true,
			Thresholds: Thresholds{Min: 0, Ideal: 0.1, Max: 0.5},
		},
	}
}

// DefaultFor returns the compiled default for id.
func DefaultFor(id types.MetricID) (MetricConfig, bool) {
	return Defaults().Get(id)
}
