package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/klima-weather-proxy/internal/cache"
	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
	"github.com/kjstillabower/klima-weather-proxy/internal/provider"
	"github.com/kjstillabower/klima-weather-proxy/internal/units"
	"github.com/kjstillabower/klima-weather-proxy/internal/upstream"
)

// SnapshotService serves normalized provider snapshots using the
// cache-aside pattern.
type SnapshotService struct {
	registry *provider.Registry
	fetcher  Fetcher
	cache    *cacheAside
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSnapshotService creates a SnapshotService from cfg.
func NewSnapshotService(cfg Config) *SnapshotService {
	cfg = cfg.withDefaults()
	return &SnapshotService{
		registry: cfg.Registry,
		fetcher:  cfg.Fetcher,
		cache:    newCacheAside(cfg),
		ttl:      cfg.TTL,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// SnapshotKey is the cache key of p's snapshot for q.
func SnapshotKey(p provider.Provider, q provider.Query) string {
	return cache.Key(p.CacheTag(), q.Point(), q.Units.String())
}

// Snapshot returns the JSON snapshot of the named provider for q. A cache
// hit returns the stored bytes unchanged without any outbound call.
func (s *SnapshotService) Snapshot(ctx context.Context, name string, q provider.Query) ([]byte, error) {
	p, err := s.registry.Get(name)
	if err != nil {
		return nil, &Error{Status: http.StatusNotFound, Message: "Unknown provider", Err: err}
	}
	if !p.Configured() {
		u := p.Unconfigured()
		if u.Hard {
			return nil, &Error{Status: http.StatusInternalServerError, Message: u.Message}
		}
		return nil, &Error{Status: http.StatusOK, Message: u.Message, Note: u.Note}
	}
	key := SnapshotKey(p, q)
	return s.cache.load(ctx, p.CacheTag(), key, s.ttl, func(ctx context.Context) ([]byte, error) {
		return s.fetch(ctx, p, q)
	})
}

// fetch calls every request of p in order and normalizes the bodies.
func (s *SnapshotService) fetch(ctx context.Context, p provider.Provider, q provider.Query) ([]byte, error) {
	logger := observability.LoggerFromContext(ctx, s.logger).With(zap.String("provider", p.Name()))
	urls, err := p.Requests(q)
	if err != nil {
		return nil, fmt.Errorf("build %s requests: %w", p.Name(), err)
	}
	bodies := make([][]byte, 0, len(urls))
	for _, u := range urls {
		body, err := s.fetcher.Get(ctx, p.Name(), u)
		if err != nil {
			logger.Warn("upstream request failed", zap.String("category", string(upstream.CategorizeError(err))), zap.Error(err))
			return nil, upstreamFailure(p.Failed(err))
		}
		bodies = append(bodies, body)
	}

	snap, err := p.Normalize(q, bodies, s.now())
	if err != nil {
		observability.NormalizeErrorsTotal.WithLabelValues(p.Name(), normalizeReason(err)).Inc()
		logger.Warn("normalize failed", zap.Error(err))
		return nil, upstreamFailure(err)
	}
	out, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode %s snapshot: %w", p.Name(), err)
	}
	return out, nil
}

func normalizeReason(err error) string {
	switch {
	case errors.Is(err, provider.ErrIncomplete):
		return "incomplete"
	case errors.Is(err, provider.ErrReported):
		return "provider_error"
	case errors.Is(err, provider.ErrDecode):
		return "decode"
	}
	return "unknown"
}

// WarmSnapshot fetches and caches one snapshot. It implements cache.SnapshotWarmer.
func (s *SnapshotService) WarmSnapshot(ctx context.Context, name string, lat, lon float64, unitSystem string) error {
	_, err := s.Snapshot(ctx, name, provider.Query{Lat: lat, Lon: lon, Units: units.Parse(unitSystem)})
	return err
}
