// Package types contains enumerations shared across the scoring domain.
package types

// MetricID names one of the five delivery metrics.
type MetricID string

// Metric identifiers.
const (
	Volume          MetricID = "volume"
	SpeechRate      MetricID = "speechRate"
	Acceleration    MetricID = "acceleration"
	ResponseTime    MetricID = "responseTime"
	PauseManagement MetricID = "pauseManagement"
)

// AllMetrics lists the metric ids in aggregation order.
var AllMetrics = []MetricID{Volume, SpeechRate, Acceleration, ResponseTime, PauseManagement} //nolint:gochecknoglobals // fixed ordering

// Known reports whether id is one of the five metrics.
func (id MetricID) Known() bool {
	switch id {
	case Volume, SpeechRate, Acceleration, ResponseTime, PauseManagement:
		return true
	}
	return false
}

// Category is the short label attached to each per-metric result.
type Category string

// Category labels.
const (
	CategoryVolume       Category = "VOL"
	CategorySpeechRate   Category = "SPD"
	CategoryAcceleration Category = "ACC"
	CategoryResponseTime Category = "RSP"
	CategoryPauses       Category = "PAU"
)

// CategoryOf returns the category label for a metric.
func CategoryOf(id MetricID) Category {
	switch id {
	case Volume:
		return CategoryVolume
	case SpeechRate:
		return CategorySpeechRate
	case Acceleration:
		return CategoryAcceleration
	case ResponseTime:
		return CategoryResponseTime
	case PauseManagement:
		return CategoryPauses
	}
	return ""
}

// Tier classifies the overall score for feedback.
type Tier string

// Feedback tiers.
const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierPoor      Tier = "poor"
)

// SpeechRateMethod selects a speech-rate estimator.
type SpeechRateMethod string

// Speech-rate methods.
const (
	MethodEnergyPeaks  SpeechRateMethod = "energy-peaks"
	MethodSpectralFlux SpeechRateMethod = "spectral-flux"
	MethodTranscript   SpeechRateMethod = "transcript"
)

// Valid reports whether m names a supported estimator.
func (m SpeechRateMethod) Valid() bool {
	switch m {
	case MethodEnergyPeaks, MethodSpectralFlux, MethodTranscript:
		return true
	}
	return false
}
