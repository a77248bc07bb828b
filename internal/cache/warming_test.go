package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockSnapshotWarmer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockSnapshotWarmer) WarmSnapshot(ctx context.Context, provider string, lat, lon float64, units string) error {
	m.mu.Lock()
	m.calls = append(m.calls, provider)
	m.mu.Unlock()
	return m.err
}

func (m *mockSnapshotWarmer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestCacheWarmer_Warm_Success(t *testing.T) {
	fetcher := &mockSnapshotWarmer{}
	warmer := NewCacheWarmer(fetcher, nil, time.Second)
	targets := []WarmTarget{
		{Provider: "openmeteo", Lat: 14.5995, Lon: 120.9842, Units: "metric"},
		{Provider: "openweather", Lat: 14.5995, Lon: 120.9842, Units: "imperial"},
	}

	if err := warmer.Warm(context.Background(), targets); err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if got := fetcher.count(); got != 2 {
		t.Errorf("fetch calls = %d, want 2", got)
	}
}

func TestCacheWarmer_Warm_EmptyTargets(t *testing.T) {
	warmer := NewCacheWarmer(&mockSnapshotWarmer{}, nil, time.Second)
	if err := warmer.Warm(context.Background(), nil); err != nil {
		t.Fatalf("Warm() with nil targets error = %v, want nil", err)
	}
}

func TestCacheWarmer_Warm_FetcherError(t *testing.T) {
	fetcher := &mockSnapshotWarmer{err: errors.New("api down")}
	warmer := NewCacheWarmer(fetcher, nil, time.Second)

	err := warmer.Warm(context.Background(), []WarmTarget{{Provider: "openmeteo", Lat: 1, Lon: 2, Units: "metric"}})
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "openmeteo@1,2:metric") || !strings.Contains(err.Error(), "api down") {
		t.Errorf("Warm() error = %q, want target and cause", err)
	}
}

func TestCacheWarmer_Start_NoTargets(t *testing.T) {
	warmer := NewCacheWarmer(&mockSnapshotWarmer{}, nil, time.Second)
	if err := warmer.Start(nil, time.Minute); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	warmer.Stop()
}

func TestCacheWarmer_Start_RunsImmediately(t *testing.T) {
	fetcher := &mockSnapshotWarmer{}
	warmer := NewCacheWarmer(fetcher, nil, time.Second)
	if err := warmer.Start([]WarmTarget{{Provider: "openmeteo", Lat: 1, Lon: 2, Units: "metric"}}, time.Hour); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer warmer.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for fetcher.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fetcher.count() == 0 {
		t.Error("Start() did not run an initial warming pass")
	}
}
