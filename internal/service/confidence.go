package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/kjstillabower/klima-weather-proxy/internal/models"
	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
	"github.com/kjstillabower/klima-weather-proxy/internal/pagasa"
	"github.com/kjstillabower/klima-weather-proxy/internal/provider"
	"github.com/kjstillabower/klima-weather-proxy/internal/units"
)

const (
	pagasaSourceName = "pagasa"

	noteInsufficient = "Insufficient data for confidence scoring"
	noteAgreement    = "Confidence based on agreement between sources"
)

// confidenceOrder is the order sources are read and reported in. PAGASA
// sits between the key-based providers as it always has.
var confidenceOrder = []string{
	"openweather",
	"openmeteo",
	"weatherapi",
	"weatherbit",
	pagasaSourceName,
	"tomorrow",
	"visualcrossing",
}

// ConfidenceService scores agreement between whatever provider snapshots
// are already cached for a point. It never calls an upstream.
type ConfidenceService struct {
	registry *provider.Registry
	cache    *cacheAside
	logger   *zap.Logger
}

// NewConfidenceService creates a ConfidenceService from cfg.
func NewConfidenceService(cfg Config) *ConfidenceService {
	cfg = cfg.withDefaults()
	return &ConfidenceService{
		registry: cfg.Registry,
		cache:    newCacheAside(cfg),
		logger:   cfg.Logger,
	}
}

type cachedTemps struct {
	Current *struct {
		Temp *float64 `json:"temp"`
	} `json:"current"`
	Forecast *struct {
		Today *struct {
			TempMax *float64 `json:"temp_max"`
		} `json:"today"`
	} `json:"forecast"`
}

// Score returns the JSON ConfidenceReport for q. Cached entries of any age
// are used; entries holding an error envelope are skipped.
func (s *ConfidenceService) Score(ctx context.Context, q provider.Query) ([]byte, error) {
	var (
		names []string
		temps []float64
	)
	for _, name := range confidenceOrder {
		body, ok := s.cached(ctx, name, q)
		if !ok || hasErrorKey(body) {
			continue
		}
		var c cachedTemps
		if err := json.Unmarshal(body, &c); err != nil {
			observability.LoggerFromContext(ctx, s.logger).Debug("skipping undecodable cache entry", zap.String("source", name), zap.Error(err))
			continue
		}
		names = append(names, name)
		if t, ok := c.temperature(name, q.Units); ok {
			temps = append(temps, t)
		}
	}

	report := Confidence(names, temps)
	observability.ConfidenceScoresTotal.WithLabelValues(report.Confidence).Inc()
	return json.Marshal(report)
}

func (s *ConfidenceService) cached(ctx context.Context, name string, q provider.Query) ([]byte, bool) {
	if name == pagasaSourceName {
		return s.cache.get(ctx, "", pagasa.CacheKey(pagasa.DefaultRegion), 0)
	}
	p, err := s.registry.Get(name)
	if err != nil {
		return nil, false
	}
	return s.cache.get(ctx, "", SnapshotKey(p, q), 0)
}

// temperature is the reading a source contributes: the current temperature
// of a snapshot, or today's PAGASA maximum converted to the requested units.
func (c cachedTemps) temperature(name string, u units.System) (float64, bool) {
	if name == pagasaSourceName {
		if c.Forecast == nil || c.Forecast.Today == nil || c.Forecast.Today.TempMax == nil {
			return 0, false
		}
		return u.Temperature(*c.Forecast.Today.TempMax), true
	}
	if c.Current == nil || c.Current.Temp == nil {
		return 0, false
	}
	return *c.Current.Temp, true
}

// Confidence classifies the population variance of temps: high at or
// below 2, medium at or below 5, low above. Fewer than two sources or
// readings yield a low report without a variance.
func Confidence(sources []string, temps []float64) models.ConfidenceReport {
	if len(sources) < 2 || len(temps) < 2 {
		return models.ConfidenceReport{
			Confidence:   models.ConfidenceLow,
			SourcesCount: len(sources),
			Note:         noteInsufficient,
		}
	}
	var mean float64
	for _, t := range temps {
		mean += t
	}
	mean /= float64(len(temps))
	var sumSq float64
	for _, t := range temps {
		sumSq += (t - mean) * (t - mean)
	}
	variance := sumSq / float64(len(temps))

	level := models.ConfidenceHigh
	switch {
	case variance > 5:
		level = models.ConfidenceLow
	case variance > 2:
		level = models.ConfidenceMedium
	}
	return models.ConfidenceReport{
		Confidence:          level,
		SourcesCount:        len(sources),
		TemperatureVariance: models.Float(units.Round2(variance)),
		SourcesCompared:     sources,
		Note:                noteAgreement,
	}
}
