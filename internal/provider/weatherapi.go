package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/kjstillabower/klima-weather-proxy/internal/models"
	"github.com/kjstillabower/klima-weather-proxy/internal/units"
)

const weatherAPIForecastURL = "https://api.weatherapi.com/v1/forecast.json"

type weatherAPIProvider struct {
	key  string
	base string
}

// NewWeatherAPI returns the WeatherAPI.com provider. One call returns
// current, hourly, daily, air quality and alerts.
func NewWeatherAPI(key, baseURL string) Provider {
	if baseURL == "" {
		baseURL = weatherAPIForecastURL
	}
	return &weatherAPIProvider{key: key, base: baseURL}
}

func (p *weatherAPIProvider) Name() string     { return WeatherAPI }
func (p *weatherAPIProvider) CacheTag() string { return "weatherapi" }
func (p *weatherAPIProvider) Configured() bool { return p.key != "" }

func (p *weatherAPIProvider) Unconfigured() Unconfigured {
	return Unconfigured{
		Message: "WeatherAPI key not configured",
		Note:    "Sign up at https://www.weatherapi.com for a free API key",
	}
}

func (p *weatherAPIProvider) Requests(q Query) ([]string, error) {
	v := url.Values{}
	v.Set("key", p.key)
	v.Set("q", q.Point())
	v.Set("days", "7")
	v.Set("aqi", "yes")
	v.Set("alerts", "yes")
	return []string{p.base + "?" + v.Encode()}, nil
}

type weatherAPIErrorBody struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func weatherAPIMessage(body []byte) string {
	var e weatherAPIErrorBody
	if json.Unmarshal(body, &e) == nil && e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return "Unknown error"
}

func (p *weatherAPIProvider) Failed(err error) error {
	return failure(WeatherAPI, "WeatherAPI request failed", weatherAPIMessage(upstreamBody(err)), err)
}

type waCondition struct {
	Text string `json:"text"`
	Code int    `json:"code"`
}

type waAirQuality struct {
	CO       *float64 `json:"co"`
	NO2      *float64 `json:"no2"`
	O3       *float64 `json:"o3"`
	SO2      *float64 `json:"so2"`
	PM25     *float64 `json:"pm2_5"`
	PM10     *float64 `json:"pm10"`
	USEPAIdx *float64 `json:"us-epa-index"`
}

type waCurrent struct {
	LastUpdatedEpoch int64         `json:"last_updated_epoch"`
	TempC            *float64      `json:"temp_c"`
	TempF            *float64      `json:"temp_f"`
	IsDay            *int          `json:"is_day"`
	Condition        waCondition   `json:"condition"`
	WindMph          *float64      `json:"wind_mph"`
	WindKph          *float64      `json:"wind_kph"`
	WindDegree       *float64      `json:"wind_degree"`
	PressureMb       *float64      `json:"pressure_mb"`
	PrecipMm         *float64      `json:"precip_mm"`
	PrecipIn         *float64      `json:"precip_in"`
	Humidity         *float64      `json:"humidity"`
	Cloud            *float64      `json:"cloud"`
	FeelsLikeC       *float64      `json:"feelslike_c"`
	FeelsLikeF       *float64      `json:"feelslike_f"`
	VisKm            *float64      `json:"vis_km"`
	VisMiles         *float64      `json:"vis_miles"`
	UV               float64       `json:"uv"`
	AirQuality       *waAirQuality `json:"air_quality"`
}

type waHour struct {
	TimeEpoch    int64       `json:"time_epoch"`
	TempC        *float64    `json:"temp_c"`
	TempF        *float64    `json:"temp_f"`
	IsDay        *int        `json:"is_day"`
	Condition    waCondition `json:"condition"`
	WindKph      *float64    `json:"wind_kph"`
	WindMph      *float64    `json:"wind_mph"`
	PrecipMm     *float64    `json:"precip_mm"`
	PrecipIn     *float64    `json:"precip_in"`
	Humidity     *float64    `json:"humidity"`
	ChanceOfRain *float64    `json:"chance_of_rain"`
	FeelsLikeC   *float64    `json:"feelslike_c"`
	FeelsLikeF   *float64    `json:"feelslike_f"`
}

type waForecastDay struct {
	Date      string `json:"date"`
	DateEpoch int64  `json:"date_epoch"`
	Day       struct {
		MaxTempC          *float64    `json:"maxtemp_c"`
		MaxTempF          *float64    `json:"maxtemp_f"`
		MinTempC          *float64    `json:"mintemp_c"`
		MinTempF          *float64    `json:"mintemp_f"`
		AvgTempC          *float64    `json:"avgtemp_c"`
		AvgTempF          *float64    `json:"avgtemp_f"`
		MaxWindMph        *float64    `json:"maxwind_mph"`
		MaxWindKph        *float64    `json:"maxwind_kph"`
		TotalPrecipMm     *float64    `json:"totalprecip_mm"`
		TotalPrecipIn     *float64    `json:"totalprecip_in"`
		AvgHumidity       *float64    `json:"avghumidity"`
		DailyChanceOfRain *float64    `json:"daily_chance_of_rain"`
		Condition         waCondition `json:"condition"`
	} `json:"day"`
	Astro struct {
		Sunrise string `json:"sunrise"`
		Sunset  string `json:"sunset"`
	} `json:"astro"`
	Hour []waHour `json:"hour"`
}

type waAlert struct {
	Headline  string `json:"headline"`
	Severity  string `json:"severity"`
	Event     string `json:"event"`
	Effective string `json:"effective"`
	Expires   string `json:"expires"`
	Desc      string `json:"desc"`
}

type waForecast struct {
	Location struct {
		Name string `json:"name"`
		TzID string `json:"tz_id"`
	} `json:"location"`
	Current  *waCurrent `json:"current"`
	Forecast struct {
		ForecastDay []waForecastDay `json:"forecastday"`
	} `json:"forecast"`
	Alerts struct {
		Alert []waAlert `json:"alert"`
	} `json:"alerts"`
	Error *json.RawMessage `json:"error"`
}

func (p *weatherAPIProvider) Normalize(q Query, bodies [][]byte, now time.Time) (*models.WeatherSnapshot, error) {
	if len(bodies) != 1 {
		return nil, fmt.Errorf("weatherapi: expected 1 body, got %d", len(bodies))
	}
	var data waForecast
	if err := json.Unmarshal(bodies[0], &data); err != nil {
		return nil, failure(WeatherAPI, "WeatherAPI request failed", "Unknown error", fmt.Errorf("%w: %v", ErrDecode, err))
	}
	if data.Error != nil {
		return nil, failure(WeatherAPI, "WeatherAPI request failed", weatherAPIMessage(bodies[0]), ErrReported)
	}
	if data.Current == nil {
		return nil, failure(WeatherAPI, "Incomplete data from upstream", "", ErrIncomplete)
	}

	metric := q.Units.IsMetric()
	pick := func(c, f *float64) *float64 {
		if metric {
			return c
		}
		return f
	}
	wind := func(kph, mph *float64) *float64 {
		if metric {
			if kph == nil {
				return models.Float(0)
			}
			return models.Float(units.Round1(units.KmhToMs(*kph)))
		}
		return orZero(mph)
	}

	loc := time.UTC
	if data.Location.TzID != "" {
		if l, err := time.LoadLocation(data.Location.TzID); err == nil {
			loc = l
		}
	}

	c := data.Current
	dt := c.LastUpdatedEpoch
	if dt == 0 {
		dt = now.Unix()
	}
	cur := models.CurrentConditions{
		Dt:         dt,
		Temp:       pick(c.TempC, c.TempF),
		FeelsLike:  pick(c.FeelsLikeC, c.FeelsLikeF),
		Humidity:   c.Humidity,
		UVI:        c.UV,
		WindSpeed:  wind(c.WindKph, c.WindMph),
		WindDeg:    c.WindDegree,
		Pressure:   c.PressureMb,
		Visibility: visibilityMeters(c.VisKm),
		Clouds:     c.Cloud,
		Precip:     orZero(pick(c.PrecipMm, c.PrecipIn)),
		Weather:    condition(c.Condition.Code, c.Condition.Text, c.Condition.Text, weatherAPIIcon(c.Condition.Code, isDayFlag(c.IsDay))),
	}
	if c.AirQuality != nil {
		a := c.AirQuality
		cur.AirQuality = &models.CurrentAirQuality{
			USEPA: a.USEPAIdx,
			PM25:  a.PM25,
			PM10:  a.PM10,
			O3:    a.O3,
			NO2:   a.NO2,
			SO2:   a.SO2,
			CO:    a.CO,
		}
	}

	days := data.Forecast.ForecastDay
	if len(days) > 0 {
		cur.Sunrise = astroEpoch(days[0].Date, days[0].Astro.Sunrise, loc)
		cur.Sunset = astroEpoch(days[0].Date, days[0].Astro.Sunset, loc)
	}

	snap := &models.WeatherSnapshot{
		Source:         WeatherAPI,
		FetchedAt:      now.Unix(),
		TimezoneOffset: zoneOffset(data.Location.TzID, now),
		Timezone:       models.String(data.Location.TzID),
		Current:        cur,
		Alerts:         []models.ProviderAlert{},
	}

	currentHour := dt - dt%3600
hours:
	for _, d := range days {
		for _, h := range d.Hour {
			if len(snap.Hourly) >= models.MaxHourly {
				break hours
			}
			if h.TimeEpoch < currentHour {
				continue
			}
			snap.Hourly = append(snap.Hourly, models.HourPoint{
				Dt:        h.TimeEpoch,
				Temp:      pick(h.TempC, h.TempF),
				FeelsLike: pick(h.FeelsLikeC, h.FeelsLikeF),
				Humidity:  h.Humidity,
				Pop:       pct(h.ChanceOfRain),
				Precip:    orZero(pick(h.PrecipMm, h.PrecipIn)),
				WindSpeed: wind(h.WindKph, h.WindMph),
				Weather:   condition(h.Condition.Code, h.Condition.Text, h.Condition.Text, weatherAPIIcon(h.Condition.Code, isDayFlag(h.IsDay))),
			})
		}
	}

	for _, d := range days {
		day := d.Day
		snap.Daily = append(snap.Daily, models.DayPoint{
			Dt: d.DateEpoch,
			Temp: models.DayTemp{
				Min: pick(day.MinTempC, day.MinTempF),
				Max: pick(day.MaxTempC, day.MaxTempF),
				Day: pick(day.AvgTempC, day.AvgTempF),
			},
			Humidity:  day.AvgHumidity,
			Pop:       pct(day.DailyChanceOfRain),
			Precip:    pick(day.TotalPrecipMm, day.TotalPrecipIn),
			WindSpeed: wind(day.MaxWindKph, day.MaxWindMph),
			Weather:   condition(day.Condition.Code, day.Condition.Text, day.Condition.Text, weatherAPIIcon(day.Condition.Code, true)),
		})
	}

	for _, a := range data.Alerts.Alert {
		event := a.Event
		if event == "" {
			event = "Weather Alert"
		}
		snap.Alerts = append(snap.Alerts, models.ProviderAlert{
			Event:       event,
			Headline:    a.Headline,
			Severity:    a.Severity,
			Description: a.Desc,
			Start:       rfc3339Epoch(a.Effective),
			End:         rfc3339Epoch(a.Expires),
		})
	}

	snap.Finalize()
	return snap, nil
}

func isDayFlag(v *int) bool {
	return v == nil || *v != 0
}

// astroEpoch parses a WeatherAPI astro time such as "06:12 AM" on date in loc.
func astroEpoch(date, clock string, loc *time.Location) *int64 {
	if date == "" || clock == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02 03:04 PM", date+" "+clock, loc)
	if err != nil {
		return nil
	}
	return models.Int64(t.Unix())
}

func rfc3339Epoch(s string) *int64 {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return models.Int64(t.Unix())
}

const metersPerMile = 1609.344

func visibilityMeters(km *float64) *float64 {
	if km == nil {
		return nil
	}
	return models.Float(*km * 1000)
}

// visibilityIn converts a visibility reported in km (metric) or miles into meters.
func visibilityIn(u units.System, v *float64) *float64 {
	if v == nil || u.IsMetric() {
		return visibilityMeters(v)
	}
	return models.Float(units.Round1(*v * metersPerMile))
}
