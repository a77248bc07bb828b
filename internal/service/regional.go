package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
	"github.com/kjstillabower/klima-weather-proxy/internal/pagasa"
)

const pagasaTag = "pagasa"

// RegionalService serves the scraped PAGASA regional forecast. Successful
// scrapes are cached for the regional TTL; failures are cached for the
// regular TTL so a broken page is not requested on every call.
type RegionalService struct {
	fetcher     Fetcher
	cache       *cacheAside
	ttl         time.Duration
	regionalTTL time.Duration
	endpoint    string
	logger      *zap.Logger
	now         func() time.Time
}

// NewRegionalService creates a RegionalService from cfg.
func NewRegionalService(cfg Config) *RegionalService {
	cfg = cfg.withDefaults()
	return &RegionalService{
		fetcher:     cfg.Fetcher,
		cache:       newCacheAside(cfg),
		ttl:         cfg.TTL,
		regionalTTL: cfg.RegionalTTL,
		endpoint:    cfg.Endpoints.PagasaForecast,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
}

// Forecast returns the JSON RegionalForecast for a region alias. A cached
// failure is returned as a 502 *Error until it expires.
func (s *RegionalService) Forecast(ctx context.Context, alias string) ([]byte, error) {
	region := pagasa.ResolveRegion(alias)
	key := pagasa.CacheKey(region)

	if body, ok := s.cache.get(ctx, pagasaTag, key, s.ttl); ok {
		if hasErrorKey(body) {
			return nil, cachedFailure(body)
		}
		return body, nil
	}
	if body, ok := s.cache.get(ctx, pagasaTag, key, s.regionalTTL); ok && !hasErrorKey(body) {
		return body, nil
	}

	return s.cache.miss(ctx, pagasaTag, key, s.regionalTTL, func(ctx context.Context) ([]byte, error) {
		return s.scrape(ctx, key, region)
	})
}

func (s *RegionalService) scrape(ctx context.Context, key, region string) ([]byte, error) {
	logger := observability.LoggerFromContext(ctx, s.logger).With(zap.String("region", region))

	page, err := s.fetcher.Get(ctx, pagasaTag, s.endpoint)
	if err != nil {
		observability.RegionalScrapesTotal.WithLabelValues("fetch_failed").Inc()
		logger.Warn("PAGASA fetch failed", zap.Error(err))
		return nil, s.fail(ctx, key, "Failed to fetch PAGASA forecast", err)
	}
	forecast, err := pagasa.Parse(page, region, s.now())
	if err != nil {
		observability.RegionalScrapesTotal.WithLabelValues("parse_failed").Inc()
		logger.Warn("PAGASA page yielded no forecast", zap.Error(err))
		return nil, s.fail(ctx, key, "Failed to parse PAGASA forecast", err)
	}
	observability.RegionalScrapesTotal.WithLabelValues("ok").Inc()
	return json.Marshal(forecast)
}

// fail caches the failure envelope for the regular TTL and returns it.
func (s *RegionalService) fail(ctx context.Context, key, message string, cause error) *Error {
	e := &Error{Status: http.StatusBadGateway, Message: message, Detail: failureDetail(cause), Err: cause}
	s.cache.set(ctx, key, e.JSON(), s.ttl)
	return e
}

func failureDetail(err error) string {
	if d := upstreamFailure(err).Detail; d != "" {
		return d
	}
	return err.Error()
}

// cachedFailure rebuilds the *Error from a stored envelope.
func cachedFailure(body []byte) *Error {
	var env struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(body, &env)
	return &Error{Status: http.StatusBadGateway, Message: env.Error, Detail: env.Detail}
}
