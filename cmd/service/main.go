package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/klima-weather-proxy/internal/cache"
	"github.com/kjstillabower/klima-weather-proxy/internal/config"
	httphandler "github.com/kjstillabower/klima-weather-proxy/internal/http"
	"github.com/kjstillabower/klima-weather-proxy/internal/lifecycle"
	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
	"github.com/kjstillabower/klima-weather-proxy/internal/provider"
	"github.com/kjstillabower/klima-weather-proxy/internal/service"
	"github.com/kjstillabower/klima-weather-proxy/internal/upstream"
)

type closer interface {
	Close() error
}

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if !cfg.KeyFileLoaded {
		logger.Warn("config/.env not found; provider keys come from the environment only")
	}

	var store cache.Store
	var storeCloser closer
	switch cfg.CacheBackend {
	case config.BackendMemcached:
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		store, storeCloser = mc, mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case config.BackendRedis:
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTimeout)
		store, storeCloser = rc, rc
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	default:
		fs, err := cache.NewFileStore(cfg.CacheDir)
		if err != nil {
			logger.Fatal("file cache", zap.Error(err))
		}
		store = fs
		logger.Info("cache backend: file", zap.String("dir", cfg.CacheDir))
	}

	fetcher := upstream.New(upstream.Options{
		Timeout:   cfg.UpstreamTimeout,
		UserAgent: cfg.UserAgent,
		Breaker: upstream.BreakerConfig{
			Enabled:          cfg.BreakerEnabled,
			FailureThreshold: cfg.BreakerFailureThreshold,
			OpenTimeout:      cfg.BreakerOpenTimeout,
		},
		Logger: logger,
	})
	if cfg.BreakerEnabled {
		logger.Info("circuit breaker enabled",
			zap.Uint32("failure_threshold", cfg.BreakerFailureThreshold),
			zap.Duration("open_timeout", cfg.BreakerOpenTimeout),
		)
	}

	registry := provider.NewRegistry(provider.Config{
		Keys:     cfg.ProviderKeys(),
		BaseURLs: cfg.ProviderBaseURLs,
	})
	for _, name := range registry.Names() {
		p, _ := registry.Get(name)
		logger.Info("provider", zap.String("name", name), zap.Bool("configured", p.Configured()))
	}

	svcCfg := service.Config{
		Store:           store,
		Fetcher:         fetcher,
		Registry:        registry,
		TTL:             cfg.CacheTTL,
		RegionalTTL:     cfg.RegionalTTL,
		Coalesce:        cfg.CacheCoalesce,
		CoalesceTimeout: cfg.CoalesceTimeout,
		OpenWeatherKey:  cfg.OpenWeatherKey,
		Logger:          logger,
	}
	snapshots := service.NewSnapshotService(svcCfg)
	services := httphandler.Services{
		Snapshots:  snapshots,
		Geocoder:   service.NewGeocodeService(svcCfg),
		AirQuality: service.NewAirQualityService(svcCfg),
		Alerts:     service.NewAlertsService(svcCfg),
		Confidence: service.NewConfidenceService(svcCfg),
		Regional:   service.NewRegionalService(svcCfg),
	}

	healthConfig := &httphandler.HealthConfig{
		Registry:         registry,
		CacheBackend:     cfg.CacheBackend,
		CachePing:        store.Ping,
		BreakerState:     fetcher.BreakerState,
		KeyFileLoaded:    cfg.KeyFileLoaded,
		Window:           cfg.HealthWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(services, healthConfig, logger)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		StaticDir:      cfg.StaticDir,
	})

	var warmer *cache.CacheWarmer
	if cfg.WarmEnabled && len(cfg.WarmTargets) > 0 {
		targets := make([]cache.WarmTarget, 0, len(cfg.WarmTargets))
		for _, t := range cfg.WarmTargets {
			targets = append(targets, cache.WarmTarget{Provider: t.Provider, Lat: t.Lat, Lon: t.Lon, Units: t.Units})
		}
		warmer = cache.NewCacheWarmer(snapshots, logger, 30*time.Second)
		if err := warmer.Warm(context.Background(), targets); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		if cfg.WarmInterval > 0 {
			if err := warmer.Start(targets, cfg.WarmInterval); err != nil {
				logger.Error("periodic cache warming", zap.Error(err))
			}
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	lifecycle.MarkStarted(time.Now())
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if warmer != nil {
		warmer.Stop()
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if storeCloser != nil {
		if err := storeCloser.Close(); err != nil {
			logger.Error("cache close", zap.String("backend", cfg.CacheBackend), zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
