package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	BackendFile      = "file"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// Config holds service configuration loaded from YAML, the key file and env.
type Config struct {
	ServerPort string
	StaticDir  string

	// Provider API keys. An empty key degrades that provider to its
	// not-configured response.
	OpenWeatherKey    string
	WeatherAPIKey     string
	WeatherbitKey     string
	TomorrowKey       string
	VisualCrossingKey string

	// ProviderBaseURLs overrides provider endpoints by provider name.
	ProviderBaseURLs map[string]string

	UpstreamTimeout time.Duration
	UserAgent       string
	RequestTimeout  time.Duration

	CacheBackend    string
	CacheDir        string
	CacheTTL        time.Duration
	RegionalTTL     time.Duration
	CacheCoalesce   bool
	CoalesceTimeout time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTimeout  time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	BreakerEnabled          bool
	BreakerFailureThreshold uint32
	BreakerOpenTimeout      time.Duration

	ShutdownTimeout time.Duration

	// HealthWindow is the traffic window /health evaluates. The service
	// reports degraded once the share of 5xx responses in the window
	// reaches DegradedErrorPct.
	HealthWindow     time.Duration
	DegradedErrorPct int

	// KeyFileLoaded reports whether config/.env was found and read.
	KeyFileLoaded bool

	WarmEnabled  bool
	WarmInterval time.Duration
	WarmTargets  []WarmTarget
}

// WarmTarget is a snapshot kept warm in the cache.
type WarmTarget struct {
	Provider string  `yaml:"provider"`
	Lat      float64 `yaml:"lat"`
	Lon      float64 `yaml:"lon"`
	Units    string  `yaml:"units"`
}

type fileConfig struct {
	Server struct {
		Port      string `yaml:"port"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"server"`

	Upstream struct {
		Timeout   string `yaml:"timeout"`
		UserAgent string `yaml:"user_agent"`
	} `yaml:"upstream"`

	Providers struct {
		BaseURLs map[string]string `yaml:"base_urls"`
	} `yaml:"providers"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend         string `yaml:"backend"`
		Dir             string `yaml:"dir"`
		TTL             string `yaml:"ttl"`
		RegionalTTL     string `yaml:"regional_ttl"`
		Coalesce        bool   `yaml:"coalesce"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr    string `yaml:"addr"`
			DB      int    `yaml:"db"`
			Timeout string `yaml:"timeout"`
		} `yaml:"redis"`
		Warming struct {
			Enabled  bool         `yaml:"enabled"`
			Interval string       `yaml:"interval"`
			Targets  []WarmTarget `yaml:"targets"`
		} `yaml:"warming"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold uint32 `yaml:"failure_threshold"`
			OpenTimeout      string `yaml:"open_timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		Window           string `yaml:"window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`
}

// Load reads configuration relative to the working directory. Call from
// project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir reads root/config/{ENV_NAME}.yaml (default dev). Provider keys
// come from the environment, optionally seeded from root/config/.env;
// variables already set in the environment always win over the file.
func LoadDir(root string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(root, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	dotenvPath := filepath.Join(root, "config", ".env")
	keyFileLoaded := true
	if err := godotenv.Load(dotenvPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read key file %s: %w", dotenvPath, err)
		}
		keyFileLoaded = false
	}

	cfg := &Config{KeyFileLoaded: keyFileLoaded}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.StaticDir = strings.TrimSpace(fc.Server.StaticDir)

	cfg.OpenWeatherKey = apiKey("OWM_API_KEY")
	cfg.WeatherAPIKey = apiKey("WEATHERAPI_KEY")
	cfg.WeatherbitKey = apiKey("WEATHERBIT_KEY")
	cfg.TomorrowKey = apiKey("TOMORROW_KEY")
	cfg.VisualCrossingKey = apiKey("VISUALCROSSING_KEY")
	cfg.ProviderBaseURLs = fc.Providers.BaseURLs

	cfg.UpstreamTimeout = parseDurationOrZero(fc.Upstream.Timeout, 10*time.Second)
	cfg.UserAgent = strings.TrimSpace(fc.Upstream.UserAgent)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.CacheBackend = envOr("CACHE_BACKEND", fc.Cache.Backend, BackendFile)
	cfg.CacheBackend = strings.ToLower(cfg.CacheBackend)
	cfg.CacheDir = envOr("CACHE_DIR", fc.Cache.Dir, ".cache")
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 60*time.Second)
	cfg.RegionalTTL = parseDuration(fc.Cache.RegionalTTL, 1800*time.Second)
	cfg.CacheCoalesce = fc.Cache.Coalesce
	cfg.CoalesceTimeout = parseDuration(fc.Cache.CoalesceTimeout, 30*time.Second)

	cfg.MemcachedAddrs = envOr("MEMCACHED_ADDRS", fc.Cache.Memcached.Addrs, "localhost:11211")
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RedisAddr = envOr("REDIS_ADDR", fc.Cache.Redis.Addr, "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = fc.Cache.Redis.DB
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB must be an integer, got %q", v)
		}
		cfg.RedisDB = db
	}
	cfg.RedisTimeout = parseDuration(fc.Cache.Redis.Timeout, 500*time.Millisecond)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.BreakerEnabled = cb.Enabled
	cfg.BreakerFailureThreshold = cb.FailureThreshold
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerOpenTimeout = parseDuration(cb.OpenTimeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.WarmEnabled = fc.Cache.Warming.Enabled
	cfg.WarmInterval = parseDuration(fc.Cache.Warming.Interval, 5*time.Minute)
	cfg.WarmTargets = fc.Cache.Warming.Targets

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProviderKeys returns the configured keys by provider name.
func (c *Config) ProviderKeys() map[string]string {
	return map[string]string{
		"openweather":    c.OpenWeatherKey,
		"weatherapi":     c.WeatherAPIKey,
		"weatherbit":     c.WeatherbitKey,
		"tomorrow":       c.TomorrowKey,
		"visualcrossing": c.VisualCrossingKey,
	}
}

// apiKey reads a provider key from env. The REPLACE_WITH_... placeholders
// shipped in sample key files count as unset.
func apiKey(name string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if strings.HasPrefix(v, "REPLACE_WITH_") {
		return ""
	}
	return v
}

// envOr returns the env variable if set, else the file value, else def.
func envOr(name, fileVal, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	if v := strings.TrimSpace(fileVal); v != "" {
		return v
	}
	return def
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// RequestTimeout is raised above UpstreamTimeout when needed so a handler
// never gives up before its upstream call does.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + 5*time.Second
	}
	if cfg.RegionalTTL < cfg.CacheTTL {
		return fmt.Errorf("cache.regional_ttl (%s) must not be shorter than cache.ttl (%s)", cfg.RegionalTTL, cfg.CacheTTL)
	}
	switch cfg.CacheBackend {
	case BackendFile, BackendMemcached, BackendRedis:
		// valid
	default:
		return fmt.Errorf("cache.backend must be file, memcached or redis, got %q", cfg.CacheBackend)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be within 1..100, got %d", cfg.DegradedErrorPct)
	}
	for i, t := range cfg.WarmTargets {
		if t.Provider == "" {
			return fmt.Errorf("cache.warming.targets[%d]: provider is required", i)
		}
		if t.Lat < -90 || t.Lat > 90 || t.Lon < -180 || t.Lon > 180 {
			return fmt.Errorf("cache.warming.targets[%d]: lat/lon out of range", i)
		}
	}
	return nil
}
