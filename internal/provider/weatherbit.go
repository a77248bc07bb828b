package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/klima-weather-proxy/internal/models"
)

const weatherbitBaseURL = "https://api.weatherbit.io/v2.0"

type weatherbitProvider struct {
	key  string
	base string
}

// NewWeatherbit returns the Weatherbit.io provider, which needs three calls:
// current, hourly forecast and daily forecast.
func NewWeatherbit(key, baseURL string) Provider {
	if baseURL == "" {
		baseURL = weatherbitBaseURL
	}
	return &weatherbitProvider{key: key, base: strings.TrimRight(baseURL, "/")}
}

func (p *weatherbitProvider) Name() string     { return Weatherbit }
func (p *weatherbitProvider) CacheTag() string { return "weatherbit" }
func (p *weatherbitProvider) Configured() bool { return p.key != "" }

func (p *weatherbitProvider) Unconfigured() Unconfigured {
	return Unconfigured{
		Message: "Weatherbit key not configured",
		Note:    "Sign up at https://www.weatherbit.io for a free API key",
	}
}

func (p *weatherbitProvider) Requests(q Query) ([]string, error) {
	unit := "M"
	if !q.Units.IsMetric() {
		unit = "I"
	}
	params := func(extra map[string]string) string {
		v := url.Values{}
		v.Set("lat", Coord(q.Lat))
		v.Set("lon", Coord(q.Lon))
		v.Set("key", p.key)
		v.Set("units", unit)
		for k, val := range extra {
			v.Set(k, val)
		}
		return v.Encode()
	}
	return []string{
		p.base + "/current?" + params(nil),
		p.base + "/forecast/hourly?" + params(map[string]string{"days": "7", "hours": "24"}),
		p.base + "/forecast/daily?" + params(map[string]string{"days": "7"}),
	}, nil
}

func (p *weatherbitProvider) Failed(err error) error {
	detail := upstreamDetail(err)
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(upstreamBody(err), &e) == nil && e.Error != "" {
		detail = e.Error
	}
	return failure(Weatherbit, "Weatherbit request failed", detail, err)
}

type wbWeather struct {
	Code        int    `json:"code"`
	Description string `json:"description"`
}

type wbObservation struct {
	Ts       int64     `json:"ts"`
	Timezone string    `json:"timezone"`
	Sunrise  string    `json:"sunrise"`
	Sunset   string    `json:"sunset"`
	Temp     *float64  `json:"temp"`
	AppTemp  *float64  `json:"app_temp"`
	RH       *float64  `json:"rh"`
	UV       float64   `json:"uv"`
	WindSpd  *float64  `json:"wind_spd"`
	WindDir  *float64  `json:"wind_dir"`
	Pres     *float64  `json:"pres"`
	Vis      *float64  `json:"vis"`
	Clouds   *float64  `json:"clouds"`
	Precip   *float64  `json:"precip"`
	Pod      string    `json:"pod"`
	AQI      *float64  `json:"aqi"`
	Weather  wbWeather `json:"weather"`
}

type wbHour struct {
	Ts      int64     `json:"ts"`
	Temp    *float64  `json:"temp"`
	AppTemp *float64  `json:"app_temp"`
	RH      *float64  `json:"rh"`
	Pop     *float64  `json:"pop"`
	Precip  *float64  `json:"precip"`
	WindSpd *float64  `json:"wind_spd"`
	Pod     string    `json:"pod"`
	Weather wbWeather `json:"weather"`
}

type wbDay struct {
	Ts      int64     `json:"ts"`
	MinTemp *float64  `json:"min_temp"`
	MaxTemp *float64  `json:"max_temp"`
	Temp    *float64  `json:"temp"`
	RH      *float64  `json:"rh"`
	Pop     *float64  `json:"pop"`
	Precip  *float64  `json:"precip"`
	WindSpd *float64  `json:"wind_spd"`
	Weather wbWeather `json:"weather"`
}

type wbEnvelope[T any] struct {
	Data  []T    `json:"data"`
	Error string `json:"error"`
}

func decodeWeatherbit[T any](body []byte, part string) ([]T, error) {
	var env wbEnvelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, failure(Weatherbit, "Weatherbit request failed", "", fmt.Errorf("%w: %s: %v", ErrDecode, part, err))
	}
	if env.Error != "" {
		return nil, failure(Weatherbit, "Weatherbit request failed", env.Error, ErrReported)
	}
	return env.Data, nil
}

func (p *weatherbitProvider) Normalize(q Query, bodies [][]byte, now time.Time) (*models.WeatherSnapshot, error) {
	if len(bodies) != 3 {
		return nil, fmt.Errorf("weatherbit: expected 3 bodies, got %d", len(bodies))
	}
	current, err := decodeWeatherbit[wbObservation](bodies[0], "current")
	if err != nil {
		return nil, err
	}
	hours, err := decodeWeatherbit[wbHour](bodies[1], "hourly")
	if err != nil {
		return nil, err
	}
	days, err := decodeWeatherbit[wbDay](bodies[2], "daily")
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, failure(Weatherbit, "Incomplete data from upstream", "", ErrIncomplete)
	}

	c := current[0]
	dt := c.Ts
	if dt == 0 {
		dt = now.Unix()
	}
	cur := models.CurrentConditions{
		Dt:         dt,
		Sunrise:    utcClockEpoch(dt, c.Sunrise),
		Sunset:     utcClockEpoch(dt, c.Sunset),
		Temp:       c.Temp,
		FeelsLike:  c.AppTemp,
		Humidity:   c.RH,
		UVI:        c.UV,
		WindSpeed:  orZero(c.WindSpd),
		WindDeg:    c.WindDir,
		Pressure:   c.Pres,
		Visibility: visibilityIn(q.Units, c.Vis),
		Clouds:     c.Clouds,
		Precip:     orZero(c.Precip),
		Weather:    condition(c.Weather.Code, c.Weather.Description, c.Weather.Description, weatherbitIcon(c.Weather.Code, c.Pod)),
	}
	if c.AQI != nil {
		cur.AirQuality = &models.CurrentAirQuality{AQI: c.AQI}
	}

	snap := &models.WeatherSnapshot{
		Source:         Weatherbit,
		FetchedAt:      now.Unix(),
		TimezoneOffset: zoneOffset(c.Timezone, now),
		Timezone:       models.String(c.Timezone),
		Current:        cur,
	}
	for _, h := range hours {
		snap.Hourly = append(snap.Hourly, models.HourPoint{
			Dt:        h.Ts,
			Temp:      h.Temp,
			FeelsLike: h.AppTemp,
			Humidity:  h.RH,
			Pop:       pct(h.Pop),
			Precip:    orZero(h.Precip),
			WindSpeed: h.WindSpd,
			Weather:   condition(h.Weather.Code, h.Weather.Description, h.Weather.Description, weatherbitIcon(h.Weather.Code, h.Pod)),
		})
	}
	for _, d := range days {
		snap.Daily = append(snap.Daily, models.DayPoint{
			Dt:        d.Ts,
			Temp:      models.DayTemp{Min: d.MinTemp, Max: d.MaxTemp, Day: d.Temp},
			Humidity:  d.RH,
			Pop:       pct(d.Pop),
			Precip:    d.Precip,
			WindSpeed: d.WindSpd,
			Weather:   condition(d.Weather.Code, d.Weather.Description, d.Weather.Description, weatherbitIcon(d.Weather.Code, "d")),
		})
	}
	snap.Finalize()
	return snap, nil
}

// utcClockEpoch resolves a Weatherbit "HH:MM" UTC clock time on the UTC date of ts.
func utcClockEpoch(ts int64, clock string) *int64 {
	if clock == "" {
		return nil
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return nil
	}
	day := time.Unix(ts, 0).UTC()
	at := time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	return models.Int64(at.Unix())
}
