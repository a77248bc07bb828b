package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/klima-weather-proxy/internal/cache"
	"github.com/kjstillabower/klima-weather-proxy/internal/models"
	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
	"github.com/kjstillabower/klima-weather-proxy/internal/provider"
)

const (
	alertsTag = "alerts"

	analysisSender = "KLIMA Weather Analysis"
	analysisSource = "Open-Meteo Analysis"

	// Heuristic thresholds over the next 24 hours, in metric units.
	highWindKmh     = 50
	heavyRainMm     = 50
	excessiveHeatC  = 38
	extremeColdC    = -10
	heuristicWindow = 24
)

var (
	extremeEventRe  = regexp.MustCompile(`(?i)(hurricane|tornado|tsunami|extreme)`)
	severeEventRe   = regexp.MustCompile(`(?i)(storm|severe|warning|cyclone|typhoon)`)
	moderateEventRe = regexp.MustCompile(`(?i)(watch|advisory|wind|rain|flood)`)
)

// AlertsService reports active weather alerts. OpenWeather alerts are used
// when available; otherwise Open-Meteo's hourly forecast is screened for
// extreme conditions.
type AlertsService struct {
	fetcher   Fetcher
	cache     *cacheAside
	ttl       time.Duration
	apiKey    string
	endpoints Endpoints
	logger    *zap.Logger
	now       func() time.Time
}

// NewAlertsService creates an AlertsService from cfg.
func NewAlertsService(cfg Config) *AlertsService {
	cfg = cfg.withDefaults()
	return &AlertsService{
		fetcher:   cfg.Fetcher,
		cache:     newCacheAside(cfg),
		ttl:       cfg.TTL,
		apiKey:    cfg.OpenWeatherKey,
		endpoints: cfg.Endpoints,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// AlertsKey is the cache key of the alerts at lat, lon.
func AlertsKey(lat, lon float64) string {
	return cache.Key(alertsTag, provider.Query{Lat: lat, Lon: lon}.Point())
}

// ClassifySeverity maps an alert event name to a severity.
func ClassifySeverity(event string) string {
	switch {
	case extremeEventRe.MatchString(event):
		return models.SeverityExtreme
	case severeEventRe.MatchString(event):
		return models.SeveritySevere
	case moderateEventRe.MatchString(event):
		return models.SeverityModerate
	default:
		return models.SeverityMinor
	}
}

// Active returns the JSON AlertsReport for lat, lon. Upstream failures
// yield an empty report rather than an error, and the report is cached
// either way.
func (s *AlertsService) Active(ctx context.Context, lat, lon float64) ([]byte, error) {
	return s.cache.load(ctx, alertsTag, AlertsKey(lat, lon), s.ttl, func(ctx context.Context) ([]byte, error) {
		var alerts []models.Alert
		if s.apiKey != "" {
			alerts = s.openWeather(ctx, lat, lon)
		}
		if len(alerts) == 0 {
			alerts = s.heuristics(ctx, lat, lon)
		}
		if alerts == nil {
			alerts = []models.Alert{}
		}
		return json.Marshal(models.AlertsReport{
			Alerts:    alerts,
			Count:     len(alerts),
			Location:  models.Coordinates{Lat: lat, Lon: lon},
			Timestamp: s.now().Unix(),
		})
	})
}

type owmAlert struct {
	Event       *string `json:"event"`
	Start       *int64  `json:"start"`
	End         *int64  `json:"end"`
	Description string  `json:"description"`
	SenderName  *string `json:"sender_name"`
}

func (s *AlertsService) openWeather(ctx context.Context, lat, lon float64) []models.Alert {
	v := url.Values{}
	v.Set("lat", provider.Coord(lat))
	v.Set("lon", provider.Coord(lon))
	v.Set("exclude", "current,minutely,hourly,daily")
	v.Set("appid", s.apiKey)
	body, err := s.fetcher.Get(ctx, "openweather", s.endpoints.OpenWeatherOneCall+"?"+v.Encode())
	if err != nil {
		observability.LoggerFromContext(ctx, s.logger).Debug("openweather alerts fetch failed", zap.Error(err))
		return nil
	}
	var resp struct {
		Alerts []owmAlert `json:"alerts"`
	}
	if json.Unmarshal(body, &resp) != nil {
		return nil
	}
	alerts := make([]models.Alert, 0, len(resp.Alerts))
	for _, a := range resp.Alerts {
		event := "Weather Alert"
		if a.Event != nil {
			event = *a.Event
		}
		sender := "Weather Service"
		if a.SenderName != nil {
			sender = *a.SenderName
		}
		alerts = append(alerts, models.Alert{
			Event:       event,
			Severity:    ClassifySeverity(event),
			Start:       a.Start,
			End:         a.End,
			Description: a.Description,
			Sender:      sender,
			Source:      "OpenWeather",
		})
	}
	return alerts
}

type omScreen struct {
	Current *json.RawMessage `json:"current"`
	Hourly  struct {
		Temperature   []*float64 `json:"temperature_2m"`
		WindSpeed     []*float64 `json:"wind_speed_10m"`
		Precipitation []*float64 `json:"precipitation"`
	} `json:"hourly"`
}

// heuristics derives alerts from the next 24 hours of the Open-Meteo forecast.
func (s *AlertsService) heuristics(ctx context.Context, lat, lon float64) []models.Alert {
	v := url.Values{}
	v.Set("latitude", provider.Coord(lat))
	v.Set("longitude", provider.Coord(lon))
	v.Set("current", "temperature_2m,wind_speed_10m,precipitation")
	v.Set("hourly", "temperature_2m,wind_speed_10m,precipitation")
	v.Set("timezone", "auto")
	body, err := s.fetcher.Get(ctx, "openmeteo", s.endpoints.OpenMeteoForecast+"?"+v.Encode())
	if err != nil {
		observability.LoggerFromContext(ctx, s.logger).Debug("open-meteo screening fetch failed", zap.Error(err))
		return nil
	}
	var resp omScreen
	if json.Unmarshal(body, &resp) != nil || resp.Current == nil {
		return nil
	}
	return screen(resp, s.now())
}

func screen(resp omScreen, now time.Time) []models.Alert {
	start := now.Unix()
	end := start + 86400
	warn := func(event, severity, description string) models.Alert {
		return models.Alert{
			Event:       event,
			Severity:    severity,
			Start:       models.Int64(start),
			End:         models.Int64(end),
			Description: description,
			Sender:      analysisSender,
			Source:      analysisSource,
		}
	}

	alerts := []models.Alert{}
	if wind := window(resp.Hourly.WindSpeed); len(wind) > 0 {
		if maxWind := maxOf(wind); maxWind > highWindKmh {
			alerts = append(alerts, warn("High Wind Warning", models.SeverityModerate,
				fmt.Sprintf("Strong winds expected with gusts up to %d km/h. Secure loose objects and avoid outdoor activities.", roundInt(maxWind))))
		}
	}
	if precip := window(resp.Hourly.Precipitation); len(precip) > 0 {
		var total float64
		for _, p := range precip {
			total += p
		}
		if total > heavyRainMm {
			alerts = append(alerts, warn("Heavy Rain Advisory", models.SeverityModerate,
				fmt.Sprintf("Heavy rainfall expected with accumulation up to %d mm in the next 24 hours. Potential for flooding in low-lying areas.", roundInt(total))))
		}
	}
	if temps := window(resp.Hourly.Temperature); len(temps) > 0 {
		maxTemp, minTemp := maxOf(temps), minOf(temps)
		switch {
		case maxTemp > excessiveHeatC:
			alerts = append(alerts, warn("Excessive Heat Warning", models.SeveritySevere,
				fmt.Sprintf("Dangerously high temperatures up to %d°C expected. Stay hydrated, avoid prolonged outdoor exposure, and check on vulnerable individuals.", roundInt(maxTemp))))
		case minTemp < extremeColdC:
			alerts = append(alerts, warn("Extreme Cold Warning", models.SeveritySevere,
				fmt.Sprintf("Dangerously low temperatures down to %d°C expected. Risk of frostbite and hypothermia. Limit outdoor exposure.", roundInt(minTemp))))
		}
	}
	return alerts
}

// window returns the non-null values among the first 24 hourly entries.
func window(series []*float64) []float64 {
	if len(series) > heuristicWindow {
		series = series[:heuristicWindow]
	}
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}

func maxOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		m = math.Max(m, v)
	}
	return m
}

func minOf(vs []float64) float64 {
	m := vs[0]
	for _, v := range vs[1:] {
		m = math.Min(m, v)
	}
	return m
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
