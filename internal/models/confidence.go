package models

// Confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ConfidenceReport is the multi-source agreement payload. Variance and the
// compared source list are absent when too few sources were available.
type ConfidenceReport struct {
	Confidence          string   `json:"confidence"`
	SourcesCount        int      `json:"sources_count"`
	TemperatureVariance *float64 `json:"temperature_variance,omitempty"`
	SourcesCompared     []string `json:"sources_compared,omitempty"`
	Note                string   `json:"note"`
}
