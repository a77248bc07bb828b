package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
)

// WarmTarget is one provider/coordinate/unit combination to prefetch.
type WarmTarget struct {
	Provider string
	Lat      float64
	Lon      float64
	Units    string
}

func (t WarmTarget) String() string {
	return fmt.Sprintf("%s@%g,%g:%s", t.Provider, t.Lat, t.Lon, t.Units)
}

// SnapshotWarmer is implemented by the service layer to fetch and cache a snapshot.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type SnapshotWarmer interface {
	WarmSnapshot(ctx context.Context, provider string, lat, lon float64, units string) error
}

// CacheWarmer prefetches snapshots for a fixed list of targets.
type CacheWarmer struct {
	fetcher   SnapshotWarmer
	logger    *zap.Logger
	timeout   time.Duration
	scheduler *gocron.Scheduler
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
// timeout bounds each warming pass.
func NewCacheWarmer(fetcher SnapshotWarmer, logger *zap.Logger, timeout time.Duration) *CacheWarmer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, timeout: timeout}
}

// Warm fetches every target concurrently. Returns an error if any target failed (aggregated).
func (w *CacheWarmer) Warm(ctx context.Context, targets []WarmTarget) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("targets", len(targets)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(targets))
	for _, target := range targets {
		target := target
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.fetcher.WarmSnapshot(ctx, target.Provider, target.Lat, target.Lon, target.Units); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", target, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("targets", len(targets)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Start runs a warming pass every interval on a gocron scheduler, the first
// one immediately. Call Stop to end it.
func (w *CacheWarmer) Start(targets []WarmTarget, interval time.Duration) error {
	if len(targets) == 0 || interval <= 0 {
		return nil
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	_, err := s.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		if err := w.Warm(ctx, targets); err != nil && w.logger != nil {
			w.logger.Warn("periodic cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule cache warming: %w", err)
	}
	s.StartAsync()
	w.scheduler = s
	return nil
}

// Stop halts periodic warming started by Start.
func (w *CacheWarmer) Stop() {
	if w.scheduler != nil {
		w.scheduler.Stop()
	}
}
