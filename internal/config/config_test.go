package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalEnvYAML = `
server:
  port: "9090"
upstream:
  timeout: "10s"
cache:
  ttl: "60s"
  regional_ttl: "30m"
`

var keyVars = []string{"OWM_API_KEY", "WEATHERAPI_KEY", "WEATHERBIT_KEY", "TOMORROW_KEY", "VISUALCROSSING_KEY"}

// clearEnv unsets the variables Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	vars := append([]string{"ENV_NAME", "CACHE_BACKEND", "CACHE_DIR", "MEMCACHED_ADDRS", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB"}, keyVars...)
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func writeEnvFile(t *testing.T, dir, content string) {
	t.Helper()
	writeConfigFile(t, dir, "dev.yaml", content)
}

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, "server:\n  port: \"\"\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"ServerPort", cfg.ServerPort, "8080"},
		{"UpstreamTimeout", cfg.UpstreamTimeout, 10 * time.Second},
		{"RequestTimeout", cfg.RequestTimeout, 15 * time.Second},
		{"CacheBackend", cfg.CacheBackend, BackendFile},
		{"CacheDir", cfg.CacheDir, ".cache"},
		{"CacheTTL", cfg.CacheTTL, 60 * time.Second},
		{"RegionalTTL", cfg.RegionalTTL, 1800 * time.Second},
		{"CacheCoalesce", cfg.CacheCoalesce, false},
		{"BreakerEnabled", cfg.BreakerEnabled, false},
		{"RateLimitRPS", cfg.RateLimitRPS, 20},
		{"MemcachedAddrs", cfg.MemcachedAddrs, "localhost:11211"},
		{"RedisAddr", cfg.RedisAddr, "localhost:6379"},
		{"ShutdownTimeout", cfg.ShutdownTimeout, 30 * time.Second},
		{"HealthWindow", cfg.HealthWindow, 60 * time.Second},
		{"DegradedErrorPct", cfg.DegradedErrorPct, 50},
		{"KeyFileLoaded", cfg.KeyFileLoaded, false},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	for name, key := range cfg.ProviderKeys() {
		if key != "" {
			t.Errorf("key %s = %q, want empty", name, key)
		}
	}
}

func TestLoad_EnvFileNotFound(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "nonexistent")

	cfg, err := LoadDir(t.TempDir())
	if err == nil {
		t.Fatal("LoadDir() expected error for missing env file, got nil")
	}
	if cfg != nil {
		t.Fatalf("LoadDir() expected nil config on error, got %+v", cfg)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("LoadDir() error = %v, want message about config file not found", err)
	}
}

func TestLoad_SelectsEnvName(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_NAME", "prod")
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeConfigFile(t, dir, "prod.yaml", "server:\n  port: \"80\"\n")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.ServerPort != "80" {
		t.Errorf("ServerPort = %q, want 80 from prod.yaml", cfg.ServerPort)
	}
}

func TestLoad_KeysFromDotenv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	writeConfigFile(t, dir, ".env", strings.Join([]string{
		"OWM_API_KEY=owm-from-file",
		"WEATHERAPI_KEY=REPLACE_WITH_YOUR_WEATHERAPI_KEY",
		"TOMORROW_KEY=tomorrow-from-file",
		"",
	}, "\n"))
	t.Setenv("TOMORROW_KEY", "tomorrow-from-env")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if !cfg.KeyFileLoaded {
		t.Error("KeyFileLoaded = false, want true")
	}
	if cfg.OpenWeatherKey != "owm-from-file" {
		t.Errorf("OpenWeatherKey = %q, want key from .env", cfg.OpenWeatherKey)
	}
	if cfg.WeatherAPIKey != "" {
		t.Errorf("WeatherAPIKey = %q, want placeholder treated as unset", cfg.WeatherAPIKey)
	}
	if cfg.TomorrowKey != "tomorrow-from-env" {
		t.Errorf("TomorrowKey = %q, real env must win over .env", cfg.TomorrowKey)
	}
}

func TestLoad_EnvOverridesCache(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML+"  backend: file\n  dir: /var/cache/klima\n")
	t.Setenv("CACHE_BACKEND", "Redis")
	t.Setenv("CACHE_DIR", "/tmp/klima")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.CacheBackend != BackendRedis || cfg.CacheDir != "/tmp/klima" || cfg.RedisAddr != "redis:6379" || cfg.RedisDB != 3 {
		t.Errorf("cache config = %q %q %q %d", cfg.CacheBackend, cfg.CacheDir, cfg.RedisAddr, cfg.RedisDB)
	}
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, minimalEnvYAML)
	t.Setenv("REDIS_DB", "zero")

	if _, err := LoadDir(dir); err == nil || !strings.Contains(err.Error(), "REDIS_DB") {
		t.Errorf("LoadDir() error = %v, want REDIS_DB error", err)
	}
}

func TestLoad_EmptyDurationFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
upstream:
  timeout: ""
request:
  timeout: "not-a-duration"
cache:
  ttl: "-5s"
`)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.UpstreamTimeout != 10*time.Second {
		t.Errorf("UpstreamTimeout = %v, want default 10s", cfg.UpstreamTimeout)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want default 15s", cfg.RequestTimeout)
	}
	if cfg.CacheTTL != 60*time.Second {
		t.Errorf("CacheTTL = %v, want default 60s", cfg.CacheTTL)
	}
}

func TestLoad_FullFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeEnvFile(t, dir, `
server:
  port: "8000"
  static_dir: "public"
upstream:
  timeout: "4s"
  user_agent: "klima-test/1.0"
providers:
  base_urls:
    openmeteo: "http://localhost:9999/v1/forecast"
request:
  timeout: "6s"
cache:
  backend: memcached
  coalesce: true
  coalesce_timeout: "12s"
  memcached:
    addrs: "mc1:11211,mc2:11211"
    max_idle_conns: 8
  warming:
    enabled: true
    interval: "2m"
    targets:
      - provider: openmeteo
        lat: 14.5995
        lon: 120.9842
        units: metric
reliability:
  rate_limit_rps: 5
  rate_limit_burst: 10
  circuit_breaker:
    enabled: true
    failure_threshold: 3
    open_timeout: "45s"
`)

	cfg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if cfg.ServerPort != "8000" || cfg.StaticDir != "public" || cfg.UserAgent != "klima-test/1.0" {
		t.Errorf("server = %q %q %q", cfg.ServerPort, cfg.StaticDir, cfg.UserAgent)
	}
	if cfg.UpstreamTimeout != 4*time.Second || cfg.RequestTimeout != 6*time.Second {
		t.Errorf("timeouts = %v %v", cfg.UpstreamTimeout, cfg.RequestTimeout)
	}
	if cfg.ProviderBaseURLs["openmeteo"] != "http://localhost:9999/v1/forecast" {
		t.Errorf("ProviderBaseURLs = %v", cfg.ProviderBaseURLs)
	}
	if cfg.CacheBackend != BackendMemcached || !cfg.CacheCoalesce || cfg.CoalesceTimeout != 12*time.Second {
		t.Errorf("cache = %q %v %v", cfg.CacheBackend, cfg.CacheCoalesce, cfg.CoalesceTimeout)
	}
	if cfg.MemcachedAddrs != "mc1:11211,mc2:11211" || cfg.MemcachedMaxIdleConns != 8 {
		t.Errorf("memcached = %q %d", cfg.MemcachedAddrs, cfg.MemcachedMaxIdleConns)
	}
	if !cfg.WarmEnabled || cfg.WarmInterval != 2*time.Minute || len(cfg.WarmTargets) != 1 {
		t.Fatalf("warming = %v %v %+v", cfg.WarmEnabled, cfg.WarmInterval, cfg.WarmTargets)
	}
	if wt := cfg.WarmTargets[0]; wt.Provider != "openmeteo" || wt.Lat != 14.5995 || wt.Units != "metric" {
		t.Errorf("WarmTargets[0] = %+v", wt)
	}
	if cfg.RateLimitRPS != 5 || cfg.RateLimitBurst != 10 {
		t.Errorf("rate limit = %d/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if !cfg.BreakerEnabled || cfg.BreakerFailureThreshold != 3 || cfg.BreakerOpenTimeout != 45*time.Second {
		t.Errorf("breaker = %v %d %v", cfg.BreakerEnabled, cfg.BreakerFailureThreshold, cfg.BreakerOpenTimeout)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			UpstreamTimeout: 10 * time.Second,
			RequestTimeout:  15 * time.Second,
			CacheBackend:    BackendFile,
			CacheTTL:        time.Minute,
			RegionalTTL:     30 * time.Minute,
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero upstream timeout", func(c *Config) { c.UpstreamTimeout = 0 }, "upstream.timeout"},
		{"unknown backend", func(c *Config) { c.CacheBackend = "in_memory" }, "cache.backend"},
		{"regional shorter than ttl", func(c *Config) { c.RegionalTTL = time.Second }, "regional_ttl"},
		{"warm target without provider", func(c *Config) { c.WarmTargets = []WarmTarget{{Lat: 1}} }, "provider is required"},
		{"warm target out of range", func(c *Config) { c.WarmTargets = []WarmTarget{{Provider: "om", Lat: 91}} }, "out of range"},
		{"error pct above 100", func(c *Config) { c.DegradedErrorPct = 101 }, "degraded_error_pct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_RaisesRequestTimeout(t *testing.T) {
	cfg := &Config{
		UpstreamTimeout: 10 * time.Second,
		RequestTimeout:  5 * time.Second,
		CacheBackend:    BackendFile,
		CacheTTL:        time.Minute,
		RegionalTTL:     time.Hour,
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.RequestTimeout)
	}
}
