package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kjstillabower/klima-weather-proxy/internal/models"
	"github.com/kjstillabower/klima-weather-proxy/internal/upstream"
)

const openWeatherOneCallURL = "https://api.openweathermap.org/data/2.5/onecall"

type openWeatherProvider struct {
	key  string
	base string
}

// NewOpenWeather returns the OpenWeather One Call provider. OpenWeather is
// the primary source, so a missing key is a hard error.
func NewOpenWeather(key, baseURL string) Provider {
	if baseURL == "" {
		baseURL = openWeatherOneCallURL
	}
	return &openWeatherProvider{key: key, base: baseURL}
}

func (p *openWeatherProvider) Name() string     { return OpenWeather }
func (p *openWeatherProvider) CacheTag() string { return "onecall" }
func (p *openWeatherProvider) Configured() bool { return p.key != "" }

func (p *openWeatherProvider) Unconfigured() Unconfigured {
	return Unconfigured{Message: "API key not configured", Hard: true}
}

func (p *openWeatherProvider) Requests(q Query) ([]string, error) {
	v := url.Values{}
	v.Set("lat", Coord(q.Lat))
	v.Set("lon", Coord(q.Lon))
	v.Set("units", q.Units.String())
	v.Set("exclude", "minutely,alerts")
	v.Set("appid", p.key)
	return []string{p.base + "?" + v.Encode()}, nil
}

func (p *openWeatherProvider) Failed(err error) error {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		env := upErr.Envelope()
		return failure(OpenWeather, env["error"], env["detail"], err)
	}
	return failure(OpenWeather, "Upstream request failed", upstreamDetail(err), err)
}

type owmCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owmPrecip struct {
	OneHour *float64 `json:"1h"`
}

type owmCurrent struct {
	Dt         int64          `json:"dt"`
	Sunrise    *int64         `json:"sunrise"`
	Sunset     *int64         `json:"sunset"`
	Temp       *float64       `json:"temp"`
	FeelsLike  *float64       `json:"feels_like"`
	Humidity   *float64       `json:"humidity"`
	UVI        float64        `json:"uvi"`
	WindSpeed  *float64       `json:"wind_speed"`
	WindDeg    *float64       `json:"wind_deg"`
	Pressure   *float64       `json:"pressure"`
	Visibility *float64       `json:"visibility"`
	Clouds     *float64       `json:"clouds"`
	Rain       *owmPrecip     `json:"rain"`
	Snow       *owmPrecip     `json:"snow"`
	Weather    []owmCondition `json:"weather"`
}

type owmHour struct {
	Dt        int64          `json:"dt"`
	Temp      *float64       `json:"temp"`
	FeelsLike *float64       `json:"feels_like"`
	Humidity  *float64       `json:"humidity"`
	Pop       float64        `json:"pop"`
	WindSpeed *float64       `json:"wind_speed"`
	Rain      *owmPrecip     `json:"rain"`
	Snow      *owmPrecip     `json:"snow"`
	Weather   []owmCondition `json:"weather"`
}

type owmDay struct {
	Dt   int64 `json:"dt"`
	Temp struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
		Day *float64 `json:"day"`
	} `json:"temp"`
	Humidity  *float64       `json:"humidity"`
	Pop       float64        `json:"pop"`
	WindSpeed *float64       `json:"wind_speed"`
	Rain      *float64       `json:"rain"`
	Snow      *float64       `json:"snow"`
	Weather   []owmCondition `json:"weather"`
}

type owmOneCall struct {
	Timezone       string          `json:"timezone"`
	TimezoneOffset int             `json:"timezone_offset"`
	Current        json.RawMessage `json:"current"`
	Hourly         json.RawMessage `json:"hourly"`
	Daily          json.RawMessage `json:"daily"`
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func (p *openWeatherProvider) Normalize(q Query, bodies [][]byte, now time.Time) (*models.WeatherSnapshot, error) {
	if len(bodies) != 1 {
		return nil, fmt.Errorf("openweather: expected 1 body, got %d", len(bodies))
	}
	var payload owmOneCall
	if err := json.Unmarshal(bodies[0], &payload); err != nil {
		return nil, failure(OpenWeather, "Incomplete data from upstream", "", fmt.Errorf("%w: %v", ErrDecode, err))
	}
	if !present(payload.Current) || !present(payload.Hourly) || !present(payload.Daily) {
		return nil, failure(OpenWeather, "Incomplete data from upstream", "", ErrIncomplete)
	}

	var cur owmCurrent
	var hours []owmHour
	var days []owmDay
	if err := json.Unmarshal(payload.Current, &cur); err != nil {
		return nil, failure(OpenWeather, "Incomplete data from upstream", "", fmt.Errorf("%w: current: %v", ErrDecode, err))
	}
	if err := json.Unmarshal(payload.Hourly, &hours); err != nil {
		return nil, failure(OpenWeather, "Incomplete data from upstream", "", fmt.Errorf("%w: hourly: %v", ErrDecode, err))
	}
	if err := json.Unmarshal(payload.Daily, &days); err != nil {
		return nil, failure(OpenWeather, "Incomplete data from upstream", "", fmt.Errorf("%w: daily: %v", ErrDecode, err))
	}

	snap := &models.WeatherSnapshot{
		Source:         OpenWeather,
		FetchedAt:      now.Unix(),
		TimezoneOffset: payload.TimezoneOffset,
		Timezone:       models.String(payload.Timezone),
		Current: models.CurrentConditions{
			Dt:         cur.Dt,
			Sunrise:    cur.Sunrise,
			Sunset:     cur.Sunset,
			Temp:       cur.Temp,
			FeelsLike:  cur.FeelsLike,
			Humidity:   cur.Humidity,
			UVI:        cur.UVI,
			WindSpeed:  cur.WindSpeed,
			WindDeg:    cur.WindDeg,
			Pressure:   cur.Pressure,
			Visibility: cur.Visibility,
			Clouds:     cur.Clouds,
			Precip:     owmPrecipRate(cur.Rain, cur.Snow),
			Weather:    owmConditions(cur.Weather),
		},
	}
	for _, h := range hours {
		snap.Hourly = append(snap.Hourly, models.HourPoint{
			Dt:        h.Dt,
			Temp:      h.Temp,
			FeelsLike: h.FeelsLike,
			Humidity:  h.Humidity,
			Pop:       h.Pop,
			Precip:    owmPrecipRate(h.Rain, h.Snow),
			WindSpeed: h.WindSpeed,
			Weather:   owmConditions(h.Weather),
		})
	}
	for _, d := range days {
		precip := models.Float(0)
		if d.Rain != nil {
			*precip += *d.Rain
		}
		if d.Snow != nil {
			*precip += *d.Snow
		}
		snap.Daily = append(snap.Daily, models.DayPoint{
			Dt:        d.Dt,
			Temp:      models.DayTemp{Min: d.Temp.Min, Max: d.Temp.Max, Day: d.Temp.Day},
			Humidity:  d.Humidity,
			Pop:       d.Pop,
			Precip:    precip,
			WindSpeed: d.WindSpeed,
			Weather:   owmConditions(d.Weather),
		})
	}
	snap.Finalize()
	return snap, nil
}

func owmPrecipRate(rain, snow *owmPrecip) *float64 {
	total := 0.0
	if rain != nil && rain.OneHour != nil {
		total += *rain.OneHour
	}
	if snow != nil && snow.OneHour != nil {
		total += *snow.OneHour
	}
	return models.Float(total)
}

// owmConditions keeps the first reported condition, falling back to a
// neutral cloudy entry so the icon is always present.
func owmConditions(in []owmCondition) []models.WeatherCondition {
	if len(in) == 0 {
		return condition(0, "", "", "04d")
	}
	c := in[0]
	icon := c.Icon
	if len(icon) != 3 {
		icon = "04d"
	}
	return condition(c.ID, c.Main, c.Description, icon)
}
