// Package service implements the endpoint orchestration: validate, consult
// the cache, call the upstream on a miss, normalize, and write back.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/klima-weather-proxy/internal/cache"
	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
	"github.com/kjstillabower/klima-weather-proxy/internal/provider"
	"github.com/kjstillabower/klima-weather-proxy/internal/upstream"
)

const (
	// DefaultTTL is the validity window of every cached response.
	DefaultTTL = 60 * time.Second
	// DefaultRegionalTTL is the validity window of a successful PAGASA scrape.
	DefaultRegionalTTL = 1800 * time.Second
)

// Fetcher performs a single outbound GET. *upstream.Fetcher implements it.
type Fetcher interface {
	Get(ctx context.Context, provider, url string) ([]byte, error)
}

// Error is an endpoint failure carrying the HTTP status and the envelope
// sent to the client. Status 200 marks a soft failure, such as an optional
// provider without a key, that clients are expected to skip quietly.
type Error struct {
	Status  int
	Message string
	Detail  string
	Note    string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%d %s", e.Status, e.Message)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Envelope returns the {error, detail?, note?} body for the client.
func (e *Error) Envelope() map[string]string {
	env := map[string]string{"error": e.Message}
	if e.Detail != "" {
		env["detail"] = e.Detail
	}
	if e.Note != "" {
		env["note"] = e.Note
	}
	return env
}

// JSON renders the envelope.
func (e *Error) JSON() []byte {
	b, _ := json.Marshal(e.Envelope())
	return b
}

// Endpoints are the upstream URLs of the non-snapshot services. Empty
// fields use the public endpoints.
type Endpoints struct {
	OpenWeatherGeocode string
	OpenMeteoGeocode   string
	OpenWeatherAir     string
	OpenWeatherOneCall string
	OpenMeteoForecast  string
	PagasaForecast     string
}

const (
	defaultOpenWeatherGeocode = "https://api.openweathermap.org/geo/1.0/direct"
	defaultOpenMeteoGeocode   = "https://geocoding-api.open-meteo.com/v1/search"
	defaultOpenWeatherAir     = "https://api.openweathermap.org/data/2.5/air_pollution"
	defaultOpenWeatherOneCall = "https://api.openweathermap.org/data/2.5/onecall"
	defaultOpenMeteoForecast  = "https://api.open-meteo.com/v1/forecast"
	defaultPagasaForecast     = "https://www.pagasa.dost.gov.ph/weather"
)

func (e Endpoints) withDefaults() Endpoints {
	def := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	def(&e.OpenWeatherGeocode, defaultOpenWeatherGeocode)
	def(&e.OpenMeteoGeocode, defaultOpenMeteoGeocode)
	def(&e.OpenWeatherAir, defaultOpenWeatherAir)
	def(&e.OpenWeatherOneCall, defaultOpenWeatherOneCall)
	def(&e.OpenMeteoForecast, defaultOpenMeteoForecast)
	def(&e.PagasaForecast, defaultPagasaForecast)
	return e
}

// Config carries the dependencies shared by every service.
type Config struct {
	Store    cache.Store
	Fetcher  Fetcher
	Registry *provider.Registry

	// TTL is the regular cache validity window (DefaultTTL when zero).
	TTL time.Duration

	// RegionalTTL is the validity window of a successful PAGASA scrape.
	RegionalTTL time.Duration

	// Coalesce shares one in-flight upstream fetch among concurrent misses
	// of the same key. CoalesceTimeout bounds the shared fetch.
	Coalesce        bool
	CoalesceTimeout time.Duration

	// OpenWeatherKey enables the OpenWeather geocoding, air quality and
	// alerts sources.
	OpenWeatherKey string

	Endpoints Endpoints
	Logger    *zap.Logger

	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.RegionalTTL <= 0 {
		c.RegionalTTL = DefaultRegionalTTL
	}
	if c.CoalesceTimeout <= 0 {
		c.CoalesceTimeout = upstream.DefaultTimeout * 3
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	c.Endpoints = c.Endpoints.withDefaults()
	return c
}

// cacheAside is the read-through cache every endpoint shares: serve a hit
// verbatim, otherwise fill once and write back. Cache failures are logged
// and never fail the request.
type cacheAside struct {
	store     cache.Store
	stampede  *stampedeTracker
	coalescer *requestCoalescer // nil when coalescing is disabled
	logger    *zap.Logger
}

func newCacheAside(cfg Config) *cacheAside {
	var coalescer *requestCoalescer
	if cfg.Coalesce {
		coalescer = newRequestCoalescer(cfg.CoalesceTimeout)
	}
	return &cacheAside{
		store:     cfg.Store,
		stampede:  newStampedeTracker(),
		coalescer: coalescer,
		logger:    cfg.Logger,
	}
}

// get reads key, treating backend errors as a miss.
func (c *cacheAside) get(ctx context.Context, tag, key string, ttl time.Duration) ([]byte, bool) {
	start := time.Now()
	value, ok, err := c.store.Get(ctx, key, ttl)
	observability.CacheOperationDurationSeconds.WithLabelValues("get").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		observability.LoggerFromContext(ctx, c.logger).Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if tag != "" {
		observability.CacheHitsTotal.WithLabelValues(tag).Inc()
	}
	return value, true
}

// set writes key, logging failures.
func (c *cacheAside) set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	start := time.Now()
	err := c.store.Set(ctx, key, value, ttl)
	observability.CacheOperationDurationSeconds.WithLabelValues("set").Observe(time.Since(start).Seconds())
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		observability.LoggerFromContext(ctx, c.logger).Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// load serves key from the cache, or calls fill and caches its result.
// Errors from fill are returned as-is and never cached.
func (c *cacheAside) load(ctx context.Context, tag, key string, ttl time.Duration, fill func(context.Context) ([]byte, error)) ([]byte, error) {
	if value, ok := c.get(ctx, tag, key, ttl); ok {
		observability.LoggerFromContext(ctx, c.logger).Debug("cache hit", zap.String("key", key))
		return value, nil
	}
	return c.miss(ctx, tag, key, ttl, fill)
}

// miss runs fill for a key that was not found, at most once per key at a
// time when coalescing is enabled, and stores a successful result.
func (c *cacheAside) miss(ctx context.Context, tag, key string, ttl time.Duration, fill func(context.Context) ([]byte, error)) ([]byte, error) {
	observability.CacheMissesTotal.WithLabelValues(tag).Inc()

	concurrent := c.stampede.RecordMiss(key)
	defer c.stampede.RecordHit(key)
	if concurrent > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(tag).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(tag).Observe(float64(concurrent))
	}
	observability.LoggerFromContext(ctx, c.logger).Debug("cache miss, fetching upstream", zap.String("key", key))

	fillAndStore := func(ctx context.Context) ([]byte, error) {
		value, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, value, ttl)
		return value, nil
	}
	var (
		value []byte
		err   error
	)
	if c.coalescer != nil {
		value, err = c.coalescer.Do(ctx, tag, key, fillAndStore)
	} else {
		value, err = fillAndStore(ctx)
	}
	var u *uncached
	if errors.As(err, &u) {
		return u.body, nil
	}
	return value, err
}

// uncached lets a fill return a successful body that must not be stored,
// such as a soft "no data" payload.
type uncached struct {
	body []byte
}

func (u *uncached) Error() string { return "uncached response" }

// upstreamFailure converts a provider or upstream error into the 502 envelope.
func upstreamFailure(err error) *Error {
	var sErr *Error
	if errors.As(err, &sErr) {
		return sErr
	}
	var pErr *provider.Error
	if errors.As(err, &pErr) {
		return &Error{Status: http.StatusBadGateway, Message: pErr.Message, Detail: pErr.Detail, Err: err}
	}
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		env := upErr.Envelope()
		return &Error{Status: http.StatusBadGateway, Message: env["error"], Detail: env["detail"], Err: err}
	}
	return &Error{Status: http.StatusBadGateway, Message: "Upstream request failed", Detail: err.Error(), Err: err}
}

// hasErrorKey reports whether a cached JSON object is an error envelope.
func hasErrorKey(body []byte) bool {
	var probe map[string]json.RawMessage
	if json.Unmarshal(body, &probe) != nil {
		return false
	}
	_, ok := probe["error"]
	return ok
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
