package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/kjstillabower/klima-weather-proxy/internal/models"
)

const openMeteoForecastURL = "https://api.open-meteo.com/v1/forecast"

// Open-Meteo reports timestamps as local wall-clock time without a zone.
const (
	omLocalMinute = "2006-01-02T15:04"
	omLocalDate   = "2006-01-02"
)

type openMeteoProvider struct {
	base string
}

// NewOpenMeteo returns the keyless Open-Meteo provider. Its snapshots carry
// no source or fetched_at annotation.
func NewOpenMeteo(baseURL string) Provider {
	if baseURL == "" {
		baseURL = openMeteoForecastURL
	}
	return &openMeteoProvider{base: baseURL}
}

func (p *openMeteoProvider) Name() string               { return OpenMeteo }
func (p *openMeteoProvider) CacheTag() string           { return "om" }
func (p *openMeteoProvider) Configured() bool           { return true }
func (p *openMeteoProvider) Unconfigured() Unconfigured { return Unconfigured{} }

func (p *openMeteoProvider) Requests(q Query) ([]string, error) {
	v := url.Values{}
	v.Set("latitude", Coord(q.Lat))
	v.Set("longitude", Coord(q.Lon))
	v.Set("current", "temperature_2m,relative_humidity_2m,apparent_temperature,is_day,precipitation,weathercode,wind_speed_10m,wind_direction_10m,surface_pressure,cloud_cover")
	v.Set("hourly", "temperature_2m,apparent_temperature,relative_humidity_2m,precipitation_probability,precipitation,weathercode,wind_speed_10m,is_day")
	v.Set("daily", "weathercode,temperature_2m_max,temperature_2m_min,precipitation_probability_max,precipitation_sum,wind_speed_10m_max,sunrise,sunset,uv_index_max")
	v.Set("timezone", "auto")
	return []string{p.base + "?" + v.Encode()}, nil
}

func (p *openMeteoProvider) Failed(err error) error {
	return failure(OpenMeteo, "Open-Meteo request failed", upstreamDetail(err), err)
}

type omCurrent struct {
	Time                string   `json:"time"`
	Temperature         *float64 `json:"temperature_2m"`
	RelativeHumidity    *float64 `json:"relative_humidity_2m"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	IsDay               *int     `json:"is_day"`
	Precipitation       *float64 `json:"precipitation"`
	WeatherCode         int      `json:"weathercode"`
	WindSpeed           *float64 `json:"wind_speed_10m"`
	WindDirection       *float64 `json:"wind_direction_10m"`
	SurfacePressure     *float64 `json:"surface_pressure"`
	CloudCover          *float64 `json:"cloud_cover"`
}

type omHourly struct {
	Time                     []string   `json:"time"`
	Temperature              []*float64 `json:"temperature_2m"`
	ApparentTemperature      []*float64 `json:"apparent_temperature"`
	RelativeHumidity         []*float64 `json:"relative_humidity_2m"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
	Precipitation            []*float64 `json:"precipitation"`
	WeatherCode              []*int     `json:"weathercode"`
	WindSpeed                []*float64 `json:"wind_speed_10m"`
	IsDay                    []*int     `json:"is_day"`
}

type omDaily struct {
	Time                        []string   `json:"time"`
	WeatherCode                 []*int     `json:"weathercode"`
	TemperatureMax              []*float64 `json:"temperature_2m_max"`
	TemperatureMin              []*float64 `json:"temperature_2m_min"`
	PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
	PrecipitationSum            []*float64 `json:"precipitation_sum"`
	WindSpeedMax                []*float64 `json:"wind_speed_10m_max"`
	Sunrise                     []string   `json:"sunrise"`
	Sunset                      []string   `json:"sunset"`
	UVIndexMax                  []*float64 `json:"uv_index_max"`
}

type omForecast struct {
	UTCOffsetSeconds int        `json:"utc_offset_seconds"`
	Timezone         string     `json:"timezone"`
	Current          *omCurrent `json:"current"`
	Hourly           omHourly   `json:"hourly"`
	Daily            omDaily    `json:"daily"`
	Error            bool       `json:"error"`
	Reason           string     `json:"reason"`
}

func (p *openMeteoProvider) Normalize(q Query, bodies [][]byte, now time.Time) (*models.WeatherSnapshot, error) {
	if len(bodies) != 1 {
		return nil, fmt.Errorf("openmeteo: expected 1 body, got %d", len(bodies))
	}
	var data omForecast
	if err := json.Unmarshal(bodies[0], &data); err != nil {
		return nil, failure(OpenMeteo, "Open-Meteo request failed", "", fmt.Errorf("%w: %v", ErrDecode, err))
	}
	if data.Error {
		return nil, failure(OpenMeteo, "Open-Meteo request failed", data.Reason, ErrReported)
	}
	if data.Current == nil {
		return nil, failure(OpenMeteo, "Incomplete data from upstream", "", ErrIncomplete)
	}

	offset := data.UTCOffsetSeconds
	epoch := func(layout, s string) (int64, bool) {
		t, err := time.Parse(layout, s)
		if err != nil {
			return 0, false
		}
		return t.Unix() - int64(offset), true
	}

	c := data.Current
	isDay := c.IsDay == nil || *c.IsDay != 0
	dt, ok := epoch(omLocalMinute, c.Time)
	if !ok {
		dt = now.Unix()
	}
	cur := models.CurrentConditions{
		Dt:        dt,
		Temp:      temp(q.Units, c.Temperature),
		FeelsLike: temp(q.Units, c.ApparentTemperature),
		Humidity:  c.RelativeHumidity,
		WindSpeed: kmhWind(q.Units, c.WindSpeed),
		WindDeg:   c.WindDirection,
		Pressure:  c.SurfacePressure,
		Clouds:    c.CloudCover,
		Precip:    orZero(c.Precipitation),
		Weather:   condition(c.WeatherCode, wmoDescription(c.WeatherCode), wmoDescription(c.WeatherCode), wmoIcon(c.WeatherCode, isDay)),
	}
	if len(data.Daily.Sunrise) > 0 {
		if v, ok := epoch(omLocalMinute, data.Daily.Sunrise[0]); ok {
			cur.Sunrise = models.Int64(v)
		}
	}
	if len(data.Daily.Sunset) > 0 {
		if v, ok := epoch(omLocalMinute, data.Daily.Sunset[0]); ok {
			cur.Sunset = models.Int64(v)
		}
	}
	if uv := floatAt(data.Daily.UVIndexMax, 0); uv != nil {
		cur.UVI = *uv
	}

	snap := &models.WeatherSnapshot{
		TimezoneOffset: offset,
		Timezone:       models.String(data.Timezone),
		Current:        cur,
	}

	// Hourly series start at local midnight; skip the hours already past.
	h := data.Hourly
	currentHour := dt - dt%3600
	for i, ts := range h.Time {
		if len(snap.Hourly) >= models.MaxHourly {
			break
		}
		hdt, ok := epoch(omLocalMinute, ts)
		if !ok || hdt < currentHour {
			continue
		}
		code := intAt(h.WeatherCode, i)
		day := true
		if i < len(h.IsDay) && h.IsDay[i] != nil {
			day = *h.IsDay[i] != 0
		}
		snap.Hourly = append(snap.Hourly, models.HourPoint{
			Dt:        hdt,
			Temp:      temp(q.Units, floatAt(h.Temperature, i)),
			FeelsLike: temp(q.Units, floatAt(h.ApparentTemperature, i)),
			Humidity:  floatAt(h.RelativeHumidity, i),
			Pop:       pct(floatAt(h.PrecipitationProbability, i)),
			Precip:    orZero(floatAt(h.Precipitation, i)),
			WindSpeed: kmhWind(q.Units, floatAt(h.WindSpeed, i)),
			Weather:   condition(code, wmoDescription(code), wmoDescription(code), wmoIcon(code, day)),
		})
	}

	d := data.Daily
	for i, ts := range d.Time {
		ddt, ok := epoch(omLocalDate, ts)
		if !ok {
			continue
		}
		minC := floatAt(d.TemperatureMin, i)
		maxC := floatAt(d.TemperatureMax, i)
		dayC := maxC
		if dayC == nil {
			dayC = minC
		}
		code := intAt(d.WeatherCode, i)
		icon := "04d"
		if i < len(d.WeatherCode) && d.WeatherCode[i] != nil {
			icon = wmoIcon(code, true)
		}
		snap.Daily = append(snap.Daily, models.DayPoint{
			Dt:        ddt,
			Temp:      models.DayTemp{Min: temp(q.Units, minC), Max: temp(q.Units, maxC), Day: temp(q.Units, dayC)},
			Pop:       pct(floatAt(d.PrecipitationProbabilityMax, i)),
			Precip:    floatAt(d.PrecipitationSum, i),
			WindSpeed: windOrNil(q, floatAt(d.WindSpeedMax, i)),
			Weather:   condition(code, wmoDescription(code), wmoDescription(code), icon),
		})
	}
	snap.Finalize()
	return snap, nil
}

func windOrNil(q Query, kmh *float64) *float64 {
	if kmh == nil {
		return nil
	}
	return kmhWind(q.Units, kmh)
}

func floatAt(s []*float64, i int) *float64 {
	if i < 0 || i >= len(s) {
		return nil
	}
	return s[i]
}

func intAt(s []*int, i int) int {
	if i < 0 || i >= len(s) || s[i] == nil {
		return 0
	}
	return *s[i]
}
