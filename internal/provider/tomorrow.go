package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/kjstillabower/klima-weather-proxy/internal/models"
)

const tomorrowTimelinesURL = "https://api.tomorrow.io/v4/timelines"

const tomorrowFields = "temperature,temperatureApparent,temperatureMin,temperatureMax,humidity,windSpeed,windDirection," +
	"precipitationType,precipitationIntensity,precipitationProbability,weatherCode,uvIndex,visibility,cloudCover," +
	"pressureSurfaceLevel,particulateMatter25,particulateMatter10,pollutantO3,pollutantNO2,pollutantCO,epaIndex," +
	"fireIndex,floodIndex,sunriseTime,sunsetTime"

type tomorrowProvider struct {
	key  string
	base string
}

// NewTomorrow returns the Tomorrow.io timelines provider.
func NewTomorrow(key, baseURL string) Provider {
	if baseURL == "" {
		baseURL = tomorrowTimelinesURL
	}
	return &tomorrowProvider{key: key, base: baseURL}
}

func (p *tomorrowProvider) Name() string     { return Tomorrow }
func (p *tomorrowProvider) CacheTag() string { return "tomorrow" }
func (p *tomorrowProvider) Configured() bool { return p.key != "" }

func (p *tomorrowProvider) Unconfigured() Unconfigured {
	return Unconfigured{
		Message: "Tomorrow.io key not configured",
		Note:    "Sign up at https://www.tomorrow.io for a free API key (500 calls/day)",
	}
}

func (p *tomorrowProvider) Requests(q Query) ([]string, error) {
	v := url.Values{}
	v.Set("location", q.Point())
	v.Set("apikey", p.key)
	v.Set("units", q.Units.String())
	v.Set("timesteps", "1h,1d")
	v.Set("fields", tomorrowFields)
	return []string{p.base + "?" + v.Encode()}, nil
}

type tomorrowErrorBody struct {
	Code    *int   `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (b tomorrowErrorBody) detail() string {
	switch {
	case b.Message != "":
		return b.Message
	case b.Type != "":
		return b.Type
	}
	return "Unknown error"
}

func (p *tomorrowProvider) Failed(err error) error {
	var body tomorrowErrorBody
	_ = json.Unmarshal(upstreamBody(err), &body)
	return failure(Tomorrow, "Tomorrow.io request failed", body.detail(), err)
}

type tmrValues struct {
	Temperature              *float64 `json:"temperature"`
	TemperatureApparent      *float64 `json:"temperatureApparent"`
	TemperatureMin           *float64 `json:"temperatureMin"`
	TemperatureMax           *float64 `json:"temperatureMax"`
	Humidity                 *float64 `json:"humidity"`
	WindSpeed                *float64 `json:"windSpeed"`
	WindDirection            *float64 `json:"windDirection"`
	PrecipitationIntensity   *float64 `json:"precipitationIntensity"`
	PrecipitationProbability *float64 `json:"precipitationProbability"`
	WeatherCode              int      `json:"weatherCode"`
	UVIndex                  float64  `json:"uvIndex"`
	Visibility               *float64 `json:"visibility"`
	CloudCover               *float64 `json:"cloudCover"`
	PressureSurfaceLevel     *float64 `json:"pressureSurfaceLevel"`
	ParticulateMatter25      *float64 `json:"particulateMatter25"`
	ParticulateMatter10      *float64 `json:"particulateMatter10"`
	PollutantO3              *float64 `json:"pollutantO3"`
	PollutantNO2             *float64 `json:"pollutantNO2"`
	PollutantCO              *float64 `json:"pollutantCO"`
	EPAIndex                 *float64 `json:"epaIndex"`
	FireIndex                *float64 `json:"fireIndex"`
	FloodIndex               *float64 `json:"floodIndex"`
	SunriseTime              string   `json:"sunriseTime"`
	SunsetTime               string   `json:"sunsetTime"`
}

type tmrInterval struct {
	StartTime string    `json:"startTime"`
	Values    tmrValues `json:"values"`
}

type tmrTimelines struct {
	tomorrowErrorBody
	Data struct {
		Timelines []struct {
			Timestep  string        `json:"timestep"`
			Intervals []tmrInterval `json:"intervals"`
		} `json:"timelines"`
	} `json:"data"`
}

// daylight holds the sunrise/sunset windows of the daily timeline.
type daylight [][2]int64

func (d daylight) isDay(ts int64) bool {
	if len(d) == 0 {
		return true
	}
	for _, w := range d {
		if ts >= w[0] && ts < w[1] {
			return true
		}
	}
	return false
}

func (p *tomorrowProvider) Normalize(q Query, bodies [][]byte, now time.Time) (*models.WeatherSnapshot, error) {
	if len(bodies) != 1 {
		return nil, fmt.Errorf("tomorrow: expected 1 body, got %d", len(bodies))
	}
	var data tmrTimelines
	if err := json.Unmarshal(bodies[0], &data); err != nil {
		return nil, failure(Tomorrow, "Tomorrow.io request failed", "Unknown error", fmt.Errorf("%w: %v", ErrDecode, err))
	}
	if data.Code != nil {
		return nil, failure(Tomorrow, "Tomorrow.io request failed", data.detail(), ErrReported)
	}

	var hourly, daily []tmrInterval
	for _, tl := range data.Data.Timelines {
		switch tl.Timestep {
		case "1h":
			hourly = tl.Intervals
		case "1d":
			daily = tl.Intervals
		}
	}
	if len(hourly) == 0 || len(daily) == 0 {
		return nil, failure(Tomorrow, "Tomorrow.io incomplete data", "", ErrIncomplete)
	}

	var light daylight
	for _, d := range daily {
		rise, set := rfc3339Epoch(d.Values.SunriseTime), rfc3339Epoch(d.Values.SunsetTime)
		if rise != nil && set != nil {
			light = append(light, [2]int64{*rise, *set})
		}
	}

	start := func(iv tmrInterval) int64 {
		if ts := rfc3339Epoch(iv.StartTime); ts != nil {
			return *ts
		}
		return now.Unix()
	}

	c := hourly[0].Values
	dt := start(hourly[0])
	desc := tomorrowDescription(c.WeatherCode)
	cur := models.CurrentConditions{
		Dt:         dt,
		Sunrise:    rfc3339Epoch(daily[0].Values.SunriseTime),
		Sunset:     rfc3339Epoch(daily[0].Values.SunsetTime),
		Temp:       c.Temperature,
		FeelsLike:  c.TemperatureApparent,
		Humidity:   c.Humidity,
		UVI:        c.UVIndex,
		WindSpeed:  orZero(c.WindSpeed),
		WindDeg:    orZero(c.WindDirection),
		Pressure:   c.PressureSurfaceLevel,
		Visibility: c.Visibility,
		Clouds:     orZero(c.CloudCover),
		Precip:     orZero(c.PrecipitationIntensity),
		Weather:    condition(c.WeatherCode, desc, desc, tomorrowIcon(c.WeatherCode, light.isDay(dt))),
		FireIndex:  c.FireIndex,
		FloodIndex: c.FloodIndex,
	}
	if c.EPAIndex != nil || c.ParticulateMatter25 != nil {
		cur.AirQuality = &models.CurrentAirQuality{
			AQI:  c.EPAIndex,
			PM25: c.ParticulateMatter25,
			PM10: c.ParticulateMatter10,
			O3:   c.PollutantO3,
			NO2:  c.PollutantNO2,
			CO:   c.PollutantCO,
		}
	}

	snap := &models.WeatherSnapshot{
		Source:    Tomorrow,
		FetchedAt: now.Unix(),
		Current:   cur,
	}
	for _, iv := range hourly {
		v := iv.Values
		ts := start(iv)
		d := tomorrowDescription(v.WeatherCode)
		snap.Hourly = append(snap.Hourly, models.HourPoint{
			Dt:        ts,
			Temp:      v.Temperature,
			FeelsLike: v.TemperatureApparent,
			Humidity:  v.Humidity,
			Pop:       pct(v.PrecipitationProbability),
			Precip:    orZero(v.PrecipitationIntensity),
			WindSpeed: orZero(v.WindSpeed),
			Weather:   condition(v.WeatherCode, d, d, tomorrowIcon(v.WeatherCode, light.isDay(ts))),
		})
	}
	for _, iv := range daily {
		v := iv.Values
		minT, maxT := v.TemperatureMin, v.TemperatureMax
		if minT == nil {
			minT = v.Temperature
		}
		if maxT == nil {
			maxT = v.Temperature
		}
		d := tomorrowDescription(v.WeatherCode)
		snap.Daily = append(snap.Daily, models.DayPoint{
			Dt:        start(iv),
			Temp:      models.DayTemp{Min: minT, Max: maxT, Day: v.Temperature},
			Humidity:  v.Humidity,
			Pop:       pct(v.PrecipitationProbability),
			Precip:    v.PrecipitationIntensity,
			WindSpeed: orZero(v.WindSpeed),
			Weather:   condition(v.WeatherCode, d, d, tomorrowIcon(v.WeatherCode, true)),
		})
	}
	snap.Finalize()
	return snap, nil
}
