package models

// Alert severities, ordered from least to most severe.
const (
	SeverityMinor    = "minor"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
	SeverityExtreme  = "extreme"
)

// Alert is a single weather warning.
type Alert struct {
	Event       string `json:"event"`
	Severity    string `json:"severity"`
	Start       *int64 `json:"start"`
	End         *int64 `json:"end"`
	Description string `json:"description"`
	Sender      string `json:"sender"`
	Source      string `json:"source"`
}

// AlertsReport is the alerts endpoint payload.
type AlertsReport struct {
	Alerts    []Alert     `json:"alerts"`
	Count     int         `json:"count"`
	Location  Coordinates `json:"location"`
	Timestamp int64       `json:"timestamp"`
}
