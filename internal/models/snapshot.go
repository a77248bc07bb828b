package models

import "sort"

// Maximum number of points kept in a snapshot's hourly and daily series.
const (
	MaxHourly = 24
	MaxDaily  = 7
)

// WeatherSnapshot is the common shape every provider is normalized into.
// Nullable scalars are pointers so that absent values encode as JSON null
// rather than being dropped.
type WeatherSnapshot struct {
	Source         string            `json:"source,omitempty"`
	FetchedAt      int64             `json:"fetched_at,omitempty"`
	TimezoneOffset int               `json:"timezone_offset"`
	Timezone       *string           `json:"timezone"`
	Current        CurrentConditions `json:"current"`
	Hourly         []HourPoint       `json:"hourly"`
	Daily          []DayPoint        `json:"daily"`
	Alerts         []ProviderAlert   `json:"alerts,omitempty"`
}

// CurrentConditions holds the "now" block of a snapshot, already in the
// caller's unit system.
type CurrentConditions struct {
	Dt         int64              `json:"dt"`
	Sunrise    *int64             `json:"sunrise"`
	Sunset     *int64             `json:"sunset"`
	Temp       *float64           `json:"temp"`
	FeelsLike  *float64           `json:"feels_like"`
	Humidity   *float64           `json:"humidity"`
	UVI        float64            `json:"uvi"`
	WindSpeed  *float64           `json:"wind_speed"`
	WindDeg    *float64           `json:"wind_deg"`
	Pressure   *float64           `json:"pressure"`
	Visibility *float64           `json:"visibility"`
	Clouds     *float64           `json:"clouds"`
	Precip     *float64           `json:"precip"`
	Weather    []WeatherCondition `json:"weather"`
	AirQuality *CurrentAirQuality `json:"aqi,omitempty"`
	FireIndex  *float64           `json:"fire_index,omitempty"`
	FloodIndex *float64           `json:"flood_index,omitempty"`
}

// HourPoint is one hourly forecast entry.
type HourPoint struct {
	Dt        int64              `json:"dt"`
	Temp      *float64           `json:"temp"`
	FeelsLike *float64           `json:"feels_like"`
	Humidity  *float64           `json:"humidity"`
	Pop       float64            `json:"pop"`
	Precip    *float64           `json:"precip"`
	WindSpeed *float64           `json:"wind_speed"`
	Weather   []WeatherCondition `json:"weather"`
}

// DayPoint is one daily forecast entry.
type DayPoint struct {
	Dt        int64              `json:"dt"`
	Temp      DayTemp            `json:"temp"`
	Humidity  *float64           `json:"humidity"`
	Pop       float64            `json:"pop"`
	Precip    *float64           `json:"precip"`
	WindSpeed *float64           `json:"wind_speed"`
	Weather   []WeatherCondition `json:"weather"`
}

// DayTemp is the daily temperature range.
type DayTemp struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
	Day *float64 `json:"day"`
}

// WeatherCondition describes the sky state. Icon follows the OpenWeather
// convention: two digits plus a "d" or "n" suffix.
type WeatherCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// CurrentAirQuality is the optional air quality block some providers embed
// in their current conditions.
type CurrentAirQuality struct {
	AQI   *float64 `json:"aqi,omitempty"`
	USEPA *float64 `json:"us_epa,omitempty"`
	PM25  *float64 `json:"pm2_5"`
	PM10  *float64 `json:"pm10"`
	O3    *float64 `json:"o3"`
	NO2   *float64 `json:"no2"`
	SO2   *float64 `json:"so2"`
	CO    *float64 `json:"co"`
}

// ProviderAlert is an alert embedded by providers that bundle alerts with the forecast.
type ProviderAlert struct {
	Event       string `json:"event"`
	Headline    string `json:"headline"`
	Severity    string `json:"severity,omitempty"`
	Description string `json:"description"`
	Start       *int64 `json:"start"`
	End         *int64 `json:"end"`
}

// Finalize truncates the hourly and daily series to their maximum lengths
// and orders both chronologically. Nil series become empty arrays.
func (s *WeatherSnapshot) Finalize() {
	if s.Hourly == nil {
		s.Hourly = []HourPoint{}
	}
	if s.Daily == nil {
		s.Daily = []DayPoint{}
	}
	sort.SliceStable(s.Hourly, func(i, j int) bool { return s.Hourly[i].Dt < s.Hourly[j].Dt })
	sort.SliceStable(s.Daily, func(i, j int) bool { return s.Daily[i].Dt < s.Daily[j].Dt })
	if len(s.Hourly) > MaxHourly {
		s.Hourly = s.Hourly[:MaxHourly]
	}
	if len(s.Daily) > MaxDaily {
		s.Daily = s.Daily[:MaxDaily]
	}
	if s.Current.Weather == nil {
		s.Current.Weather = []WeatherCondition{}
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v, or nil when v is empty.
func String(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
