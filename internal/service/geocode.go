package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/klima-weather-proxy/internal/cache"
	"github.com/kjstillabower/klima-weather-proxy/internal/models"
	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
)

// ErrLocationNotFound means the geocoder returned no match.
var ErrLocationNotFound = errors.New("location not found")

const (
	geocodeLimit    = 1
	geocodeTag      = "geocode"
	sourceOWMGeo    = "openweather"
	sourceOpenMeteo = "open-meteo"
)

// GeocodeService resolves a free-text place name to its first match.
type GeocodeService struct {
	fetcher   Fetcher
	cache     *cacheAside
	ttl       time.Duration
	apiKey    string
	endpoints Endpoints
	logger    *zap.Logger
}

// NewGeocodeService creates a GeocodeService from cfg.
func NewGeocodeService(cfg Config) *GeocodeService {
	cfg = cfg.withDefaults()
	return &GeocodeService{
		fetcher:   cfg.Fetcher,
		cache:     newCacheAside(cfg),
		ttl:       cfg.TTL,
		apiKey:    cfg.OpenWeatherKey,
		endpoints: cfg.Endpoints,
		logger:    cfg.Logger,
	}
}

// GeocodeKey is the cache key of a place-name lookup.
func GeocodeKey(q string) string {
	return cache.Key(geocodeTag, lower(q), strconv.Itoa(geocodeLimit))
}

// Lookup returns the JSON Location of the first match for q. OpenWeather is
// used when its key is configured, Open-Meteo otherwise. Misses are not
// cached.
func (s *GeocodeService) Lookup(ctx context.Context, q string) ([]byte, error) {
	return s.cache.load(ctx, geocodeTag, GeocodeKey(q), s.ttl, func(ctx context.Context) ([]byte, error) {
		var (
			loc *models.Location
			err error
		)
		if s.apiKey != "" {
			loc, err = s.openWeather(ctx, q)
		} else {
			loc, err = s.openMeteo(ctx, q)
		}
		if err != nil {
			observability.LoggerFromContext(ctx, s.logger).Debug("geocode lookup failed", zap.String("q", q), zap.Error(err))
			return nil, &Error{Status: http.StatusNotFound, Message: "Location not found", Err: err}
		}
		return json.Marshal(loc)
	})
}

type owmPlace struct {
	Name    string   `json:"name"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Country *string  `json:"country"`
	State   *string  `json:"state"`
}

func (s *GeocodeService) openWeather(ctx context.Context, q string) (*models.Location, error) {
	v := url.Values{}
	v.Set("q", q)
	v.Set("limit", strconv.Itoa(geocodeLimit))
	v.Set("appid", s.apiKey)
	body, err := s.fetcher.Get(ctx, "openweather", s.endpoints.OpenWeatherGeocode+"?"+v.Encode())
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return nil, ErrLocationNotFound
	}
	var p owmPlace
	if err := json.Unmarshal(raw[0], &p); err != nil {
		return nil, fmt.Errorf("decode openweather place: %w", err)
	}
	return &models.Location{
		Name:    nameOr(p.Name, q),
		Lat:     p.Lat,
		Lon:     p.Lon,
		Country: p.Country,
		State:   p.State,
		Raw:     raw[0],
		Source:  sourceOWMGeo,
	}, nil
}

type omPlace struct {
	Name        string   `json:"name"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	CountryCode *string  `json:"country_code"`
	Country     *string  `json:"country"`
	Admin1      *string  `json:"admin1"`
}

func (s *GeocodeService) openMeteo(ctx context.Context, q string) (*models.Location, error) {
	v := url.Values{}
	v.Set("name", q)
	v.Set("count", strconv.Itoa(geocodeLimit))
	v.Set("language", "en")
	v.Set("format", "json")
	body, err := s.fetcher.Get(ctx, "openmeteo", s.endpoints.OpenMeteoGeocode+"?"+v.Encode())
	if err != nil {
		return nil, err
	}
	var resp struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Results) == 0 {
		return nil, ErrLocationNotFound
	}
	var p omPlace
	if err := json.Unmarshal(resp.Results[0], &p); err != nil {
		return nil, fmt.Errorf("decode open-meteo place: %w", err)
	}
	country := p.CountryCode
	if country == nil {
		country = p.Country
	}
	return &models.Location{
		Name:    nameOr(p.Name, q),
		Lat:     p.Latitude,
		Lon:     p.Longitude,
		Country: country,
		State:   p.Admin1,
		Raw:     resp.Results[0],
		Source:  sourceOpenMeteo,
	}, nil
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
