package models

// AirQuality is the air quality endpoint payload. The soft variant (no key
// configured, no data) carries a nil AQI and a Note.
type AirQuality struct {
	AQI        *int               `json:"aqi"`
	Label      string             `json:"aqi_label,omitempty"`
	Components map[string]float64 `json:"components"`
	FetchedAt  int64              `json:"fetched_at,omitempty"`
	Note       string             `json:"note,omitempty"`
}

var aqiLabels = map[int]string{
	1: "Good",
	2: "Fair",
	3: "Moderate",
	4: "Poor",
	5: "Very Poor",
}

// AQILabel maps the OpenWeather 1..5 index to its label.
func AQILabel(aqi *int) string {
	if aqi == nil {
		return "Unknown"
	}
	if l, ok := aqiLabels[*aqi]; ok {
		return l
	}
	return "Unknown"
}
