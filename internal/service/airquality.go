package service

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/klima-weather-proxy/internal/cache"
	"github.com/kjstillabower/klima-weather-proxy/internal/models"
	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
	"github.com/kjstillabower/klima-weather-proxy/internal/provider"
)

const (
	aqiTag = "aqi"

	noteNoAirQualityKey  = "Air quality data unavailable (no API key)"
	noteNoAirQualityData = "No air quality data available"
)

// AirQualityService serves the OpenWeather air pollution index.
type AirQualityService struct {
	fetcher  Fetcher
	cache    *cacheAside
	ttl      time.Duration
	apiKey   string
	endpoint string
	logger   *zap.Logger
	now      func() time.Time
}

// NewAirQualityService creates an AirQualityService from cfg.
func NewAirQualityService(cfg Config) *AirQualityService {
	cfg = cfg.withDefaults()
	return &AirQualityService{
		fetcher:  cfg.Fetcher,
		cache:    newCacheAside(cfg),
		ttl:      cfg.TTL,
		apiKey:   cfg.OpenWeatherKey,
		endpoint: cfg.Endpoints.OpenWeatherAir,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// AirQualityKey is the cache key of the reading at lat, lon.
func AirQualityKey(lat, lon float64) string {
	return cache.Key(aqiTag, provider.Query{Lat: lat, Lon: lon}.Point())
}

// Current returns the JSON air quality reading. Without a key, or when the
// upstream has no reading, a soft payload with a nil index is returned and
// nothing is cached.
func (s *AirQualityService) Current(ctx context.Context, lat, lon float64) ([]byte, error) {
	if s.apiKey == "" {
		return softAirQuality(noteNoAirQualityKey)
	}
	return s.cache.load(ctx, aqiTag, AirQualityKey(lat, lon), s.ttl, func(ctx context.Context) ([]byte, error) {
		v := url.Values{}
		v.Set("lat", provider.Coord(lat))
		v.Set("lon", provider.Coord(lon))
		v.Set("appid", s.apiKey)
		body, err := s.fetcher.Get(ctx, "openweather", s.endpoint+"?"+v.Encode())
		if err != nil {
			observability.LoggerFromContext(ctx, s.logger).Debug("air quality fetch failed", zap.Error(err))
			return noAirQualityData()
		}
		var resp struct {
			List []struct {
				Main struct {
					AQI *int `json:"aqi"`
				} `json:"main"`
				Components map[string]float64 `json:"components"`
			} `json:"list"`
		}
		if err := json.Unmarshal(body, &resp); err != nil || len(resp.List) == 0 {
			return noAirQualityData()
		}
		first := resp.List[0]
		components := first.Components
		if components == nil {
			components = map[string]float64{}
		}
		return json.Marshal(models.AirQuality{
			AQI:        first.Main.AQI,
			Label:      models.AQILabel(first.Main.AQI),
			Components: components,
			FetchedAt:  s.now().Unix(),
		})
	})
}

func softAirQuality(note string) ([]byte, error) {
	return json.Marshal(models.AirQuality{Components: map[string]float64{}, Note: note})
}

func noAirQualityData() ([]byte, error) {
	body, err := softAirQuality(noteNoAirQualityData)
	if err != nil {
		return nil, err
	}
	return nil, &uncached{body: body}
}
