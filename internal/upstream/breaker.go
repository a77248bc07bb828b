package upstream

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
)

// BreakerConfig configures the optional per-provider circuit breaker.
// Disabled by default: every call is a single independent attempt.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
	Interval         time.Duration
}

// breakers lazily creates one gobreaker per provider name.
type breakers struct {
	cfg BreakerConfig
	mu  sync.Mutex
	m   map[string]*gobreaker.CircuitBreaker
}

func newBreakers(cfg BreakerConfig) *breakers {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	return &breakers{cfg: cfg, m: make(map[string]*gobreaker.CircuitBreaker)}
}

func (b *breakers) get(provider string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.m[provider]; ok {
		return cb
	}
	threshold := b.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: b.cfg.HalfOpenRequests,
		Interval:    b.cfg.Interval,
		Timeout:     b.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			observability.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	observability.CircuitBreakerState.WithLabelValues(provider).Set(0)
	b.m[provider] = cb
	return cb
}

// State returns the breaker state name for provider ("closed" when none exists yet).
func (b *breakers) State(provider string) string {
	b.mu.Lock()
	cb, ok := b.m[provider]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
