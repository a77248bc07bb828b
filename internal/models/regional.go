package models

// RegionalForecast is the scraped PAGASA regional forecast.
type RegionalForecast struct {
	Source    string          `json:"source"`
	Region    string          `json:"region"`
	FetchedAt int64           `json:"fetched_at"`
	IssuedAt  string          `json:"issued_at"`
	Forecast  RegionalOutlook `json:"forecast"`
	Synopsis  string          `json:"synopsis"`
	Note      string          `json:"note"`
}

// RegionalOutlook holds the two forecast days PAGASA publishes.
type RegionalOutlook struct {
	Today    *RegionalDay `json:"today"`
	Tomorrow *RegionalDay `json:"tomorrow"`
}

// RegionalDay is one day of a regional forecast.
type RegionalDay struct {
	Condition string   `json:"condition"`
	TempMin   *float64 `json:"temp_min"`
	TempMax   *float64 `json:"temp_max"`
	Wind      string   `json:"wind"`
	Advisory  *string  `json:"advisory"`
}
