package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/klima-weather-proxy/internal/models"
	"github.com/kjstillabower/klima-weather-proxy/internal/units"
)

const visualCrossingTimelineURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

const visualCrossingElements = "datetime,datetimeEpoch,temp,tempmin,tempmax,feelslike,humidity,precip,precipprob,snow," +
	"windspeed,winddir,pressure,cloudcover,visibility,solarradiation,uvindex,conditions,description,icon," +
	"sunriseEpoch,sunsetEpoch"

type visualCrossingProvider struct {
	key  string
	base string
}

// NewVisualCrossing returns the Visual Crossing timeline provider.
func NewVisualCrossing(key, baseURL string) Provider {
	if baseURL == "" {
		baseURL = visualCrossingTimelineURL
	}
	return &visualCrossingProvider{key: key, base: strings.TrimRight(baseURL, "/")}
}

func (p *visualCrossingProvider) Name() string     { return VisualCrossing }
func (p *visualCrossingProvider) CacheTag() string { return "visualcrossing" }
func (p *visualCrossingProvider) Configured() bool { return p.key != "" }

func (p *visualCrossingProvider) Unconfigured() Unconfigured {
	return Unconfigured{
		Message: "Visual Crossing key not configured",
		Note:    "Sign up at https://www.visualcrossing.com for a free API key (1000 records/day)",
	}
}

func (p *visualCrossingProvider) Requests(q Query) ([]string, error) {
	unitGroup := "metric"
	if !q.Units.IsMetric() {
		unitGroup = "us"
	}
	v := url.Values{}
	v.Set("key", p.key)
	v.Set("unitGroup", unitGroup)
	v.Set("include", "current,hours,days,alerts")
	v.Set("elements", visualCrossingElements)
	v.Set("contentType", "json")
	return []string{p.base + "/" + url.QueryEscape(q.Point()) + "?" + v.Encode()}, nil
}

type vcErrorBody struct {
	ErrorCode *int   `json:"errorCode"`
	Message   string `json:"message"`
}

func (p *visualCrossingProvider) Failed(err error) error {
	detail := "Unknown error"
	body := upstreamBody(err)
	var e vcErrorBody
	switch {
	case json.Unmarshal(body, &e) == nil && e.Message != "":
		detail = e.Message
	case len(body) > 0:
		// Visual Crossing answers most request errors in plain text.
		detail = strings.TrimSpace(upstreamDetail(err))
	}
	return failure(VisualCrossing, "Visual Crossing request failed", detail, err)
}

type vcPoint struct {
	DatetimeEpoch int64     `json:"datetimeEpoch"`
	Temp          *float64  `json:"temp"`
	TempMin       *float64  `json:"tempmin"`
	TempMax       *float64  `json:"tempmax"`
	FeelsLike     *float64  `json:"feelslike"`
	Humidity      *float64  `json:"humidity"`
	Precip        *float64  `json:"precip"`
	PrecipProb    *float64  `json:"precipprob"`
	WindSpeed     *float64  `json:"windspeed"`
	WindDir       *float64  `json:"winddir"`
	Pressure      *float64  `json:"pressure"`
	CloudCover    *float64  `json:"cloudcover"`
	Visibility    *float64  `json:"visibility"`
	UVIndex       float64   `json:"uvindex"`
	Conditions    string    `json:"conditions"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
	SunriseEpoch  *int64    `json:"sunriseEpoch"`
	SunsetEpoch   *int64    `json:"sunsetEpoch"`
	Hours         []vcPoint `json:"hours"`
}

type vcAlert struct {
	Event       string `json:"event"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
	OnsetEpoch  *int64 `json:"onsetEpoch"`
	EndsEpoch   *int64 `json:"endsEpoch"`
}

type vcTimeline struct {
	vcErrorBody
	TzOffset          float64   `json:"tzoffset"`
	Timezone          string    `json:"timezone"`
	CurrentConditions *vcPoint  `json:"currentConditions"`
	Days              []vcPoint `json:"days"`
	Alerts            []vcAlert `json:"alerts"`
}

func (p *visualCrossingProvider) Normalize(q Query, bodies [][]byte, now time.Time) (*models.WeatherSnapshot, error) {
	if len(bodies) != 1 {
		return nil, fmt.Errorf("visualcrossing: expected 1 body, got %d", len(bodies))
	}
	var data vcTimeline
	if err := json.Unmarshal(bodies[0], &data); err != nil {
		return nil, failure(VisualCrossing, "Visual Crossing request failed", "Unknown error", fmt.Errorf("%w: %v", ErrDecode, err))
	}
	if data.ErrorCode != nil {
		detail := data.Message
		if detail == "" {
			detail = "Unknown error"
		}
		return nil, failure(VisualCrossing, "Visual Crossing request failed", detail, ErrReported)
	}
	if len(data.Days) == 0 {
		return nil, failure(VisualCrossing, "Visual Crossing no data returned", "", ErrIncomplete)
	}

	// Metric wind arrives in km/h; the common schema wants m/s.
	wind := func(v *float64) *float64 {
		if v == nil {
			return models.Float(0)
		}
		if q.Units.IsMetric() {
			return models.Float(units.Round1(units.KmhToMs(*v)))
		}
		return v
	}
	text := func(s, fallback string) string {
		if s == "" {
			return fallback
		}
		return s
	}
	iconName := func(s string) string { return text(s, "clear-day") }

	c := vcPoint{}
	if data.CurrentConditions != nil {
		c = *data.CurrentConditions
	}
	dt := c.DatetimeEpoch
	if dt == 0 {
		dt = now.Unix()
	}
	cond := text(c.Conditions, "Clear")
	cur := models.CurrentConditions{
		Dt:         dt,
		Sunrise:    data.Days[0].SunriseEpoch,
		Sunset:     data.Days[0].SunsetEpoch,
		Temp:       c.Temp,
		FeelsLike:  c.FeelsLike,
		Humidity:   c.Humidity,
		UVI:        c.UVIndex,
		WindSpeed:  wind(c.WindSpeed),
		WindDeg:    orZero(c.WindDir),
		Pressure:   c.Pressure,
		Visibility: visibilityIn(q.Units, c.Visibility),
		Clouds:     orZero(c.CloudCover),
		Precip:     orZero(c.Precip),
		Weather:    condition(0, cond, cond, visualCrossingIcon(iconName(c.Icon))),
	}

	snap := &models.WeatherSnapshot{
		Source:         VisualCrossing,
		FetchedAt:      now.Unix(),
		TimezoneOffset: int(data.TzOffset * 3600),
		Timezone:       models.String(data.Timezone),
		Current:        cur,
		Alerts:         []models.ProviderAlert{},
	}

	// Hours come from today and tomorrow, starting at the current hour.
	currentHour := dt - dt%3600
	for i := 0; i < len(data.Days) && i < 2; i++ {
		for _, h := range data.Days[i].Hours {
			if len(snap.Hourly) >= models.MaxHourly {
				break
			}
			if h.DatetimeEpoch < currentHour {
				continue
			}
			snap.Hourly = append(snap.Hourly, models.HourPoint{
				Dt:        h.DatetimeEpoch,
				Temp:      h.Temp,
				FeelsLike: h.FeelsLike,
				Humidity:  h.Humidity,
				Pop:       pct(h.PrecipProb),
				Precip:    orZero(h.Precip),
				WindSpeed: wind(h.WindSpeed),
				Weather:   condition(0, h.Conditions, h.Conditions, visualCrossingIcon(iconName(h.Icon))),
			})
		}
	}

	for _, d := range data.Days {
		ddt := d.DatetimeEpoch
		if ddt == 0 {
			ddt = now.Unix()
		}
		snap.Daily = append(snap.Daily, models.DayPoint{
			Dt:        ddt,
			Temp:      models.DayTemp{Min: d.TempMin, Max: d.TempMax, Day: d.Temp},
			Humidity:  d.Humidity,
			Pop:       pct(d.PrecipProb),
			Precip:    orZero(d.Precip),
			WindSpeed: wind(d.WindSpeed),
			Weather:   condition(0, text(d.Conditions, "Clear"), d.Description, visualCrossingIcon(iconName(d.Icon))),
		})
	}

	for _, a := range data.Alerts {
		snap.Alerts = append(snap.Alerts, models.ProviderAlert{
			Event:       text(a.Event, "Weather Alert"),
			Headline:    a.Headline,
			Description: a.Description,
			Start:       a.OnsetEpoch,
			End:         a.EndsEpoch,
		})
	}

	snap.Finalize()
	return snap, nil
}
