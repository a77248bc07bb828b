// Package http exposes the endpoints over gorilla/mux. Handlers validate
// query parameters, delegate to the service layer and write its JSON
// bodies verbatim.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/klima-weather-proxy/internal/lifecycle"
	"github.com/kjstillabower/klima-weather-proxy/internal/models"
	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
	"github.com/kjstillabower/klima-weather-proxy/internal/provider"
	"github.com/kjstillabower/klima-weather-proxy/internal/service"
	"github.com/kjstillabower/klima-weather-proxy/internal/traffic"
	"github.com/kjstillabower/klima-weather-proxy/internal/units"
	"github.com/kjstillabower/klima-weather-proxy/internal/validation"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Snapshots serves normalized provider snapshots.
type Snapshots interface {
	Snapshot(ctx context.Context, name string, q provider.Query) ([]byte, error)
}

// Geocoder resolves a place name.
type Geocoder interface {
	Lookup(ctx context.Context, q string) ([]byte, error)
}

// AirQuality serves current air quality.
type AirQuality interface {
	Current(ctx context.Context, lat, lon float64) ([]byte, error)
}

// Alerts serves active weather alerts.
type Alerts interface {
	Active(ctx context.Context, lat, lon float64) ([]byte, error)
}

// Confidence scores agreement between cached sources.
type Confidence interface {
	Score(ctx context.Context, q provider.Query) ([]byte, error)
}

// Regional serves the PAGASA regional forecast.
type Regional interface {
	Forecast(ctx context.Context, region string) ([]byte, error)
}

// Services are the endpoint backends.
type Services struct {
	Snapshots  Snapshots
	Geocoder   Geocoder
	AirQuality AirQuality
	Alerts     Alerts
	Confidence Confidence
	Regional   Regional
}

// HealthConfig holds what /health and /api/diagnostics report on.
type HealthConfig struct {
	// Registry lists the providers and whether each has a key.
	Registry *provider.Registry
	// CacheBackend names the configured store (file, memcached, redis).
	CacheBackend string
	// CachePing, when set, is called to check cache reachability.
	CachePing func() error
	// BreakerState, when set, reports the circuit breaker state of a provider.
	BreakerState func(provider string) string
	// KeyFileLoaded reports whether the provider key file was found.
	KeyFileLoaded bool

	// Window is the traffic window evaluated for the degraded state;
	// DegradedErrorPct is the 5xx share that trips it (0 disables).
	Window           time.Duration
	DegradedErrorPct int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	services         Services
	healthConfig     *HealthConfig
	logger           *zap.Logger
	now              func() time.Time
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. A nil healthConfig reports only the
// shutdown state.
func NewHandler(services Services, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		services:     services,
		healthConfig: healthConfig,
		logger:       logger,
		now:          time.Now,
	}
}

// Snapshot returns the handler for GET /api/<route> serving the named
// provider's snapshot for lat, lon and units.
func (h *Handler) Snapshot(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, ok := h.query(w, r)
		if !ok {
			return
		}
		body, err := h.services.Snapshots.Snapshot(r.Context(), name, q)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeBody(w, http.StatusOK, body)
	}
}

// GetGeocode handles GET /api/geocode?q=.
func (h *Handler) GetGeocode(w http.ResponseWriter, r *http.Request) {
	q, err := validation.Query(r.URL.Query().Get("q"), validation.MaxQueryLen)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	body, err := h.services.Geocoder.Lookup(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeBody(w, http.StatusOK, body)
}

// GetAirQuality handles GET /api/airquality?lat=&lon=.
func (h *Handler) GetAirQuality(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := h.coordinates(w, r)
	if !ok {
		return
	}
	body, err := h.services.AirQuality.Current(r.Context(), lat, lon)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeBody(w, http.StatusOK, body)
}

// GetAlerts handles GET /api/alerts?lat=&lon=.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := h.coordinates(w, r)
	if !ok {
		return
	}
	body, err := h.services.Alerts.Active(r.Context(), lat, lon)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeBody(w, http.StatusOK, body)
}

// GetConfidence handles GET /api/confidence?lat=&lon=&units=.
func (h *Handler) GetConfidence(w http.ResponseWriter, r *http.Request) {
	q, ok := h.query(w, r)
	if !ok {
		return
	}
	body, err := h.services.Confidence.Score(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeBody(w, http.StatusOK, body)
}

// GetRegional handles GET /api/pagasa?region=.
func (h *Handler) GetRegional(w http.ResponseWriter, r *http.Request) {
	region, err := validation.Region(r.URL.Query().Get("region"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	body, err := h.services.Regional.Forecast(r.Context(), region)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeBody(w, http.StatusOK, body)
}

func (h *Handler) coordinates(w http.ResponseWriter, r *http.Request) (float64, float64, bool) {
	v := r.URL.Query()
	lat, lon, err := validation.Coordinates(v.Get("lat"), v.Get("lon"))
	if err != nil {
		writeBadRequest(w, r, err)
		return 0, 0, false
	}
	return lat, lon, true
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) (provider.Query, bool) {
	lat, lon, ok := h.coordinates(w, r)
	if !ok {
		return provider.Query{}, false
	}
	return provider.Query{Lat: lat, Lon: lon, Units: units.Parse(r.URL.Query().Get("units"))}, true
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	cacheErr := h.pingCache()
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		checks["cache"] = healthy(cacheErr == nil)
	}
	result := h.computeHealthStatus(cacheErr)

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":         result.status,
		"service":        "klima-weather-proxy",
		"version":        "dev",
		"checks":         checks,
		"providers":      h.configuredProviders(),
		"shutting_down":  lifecycle.IsShuttingDown(),
		"uptime_seconds": int64(lifecycle.Uptime(h.now()).Seconds()),
		"timestamp":      h.now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates the conditions in priority order:
// shutting-down > cache unreachable > error rate breach > healthy.
func (h *Handler) computeHealthStatus(cacheErr error) healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if cacheErr != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable"}
	}
	if h.healthConfig.Window > 0 && h.healthConfig.DegradedErrorPct > 0 {
		counts := traffic.Window(h.healthConfig.Window)
		if counts.Success+counts.Errors > 0 && counts.ErrorPct() >= float64(h.healthConfig.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func (h *Handler) pingCache() error {
	if h.healthConfig == nil || h.healthConfig.CachePing == nil {
		return nil
	}
	return h.healthConfig.CachePing()
}

func (h *Handler) configuredProviders() map[string]bool {
	out := make(map[string]bool)
	if h.healthConfig == nil || h.healthConfig.Registry == nil {
		return out
	}
	for _, name := range h.healthConfig.Registry.Names() {
		p, err := h.healthConfig.Registry.Get(name)
		if err != nil {
			continue
		}
		out[name] = p.Configured()
	}
	return out
}

func healthy(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

// Coordinates of the diagnostics probe (Manila).
const (
	probeLat = 14.5995
	probeLon = 120.9842
)

type providerDiagnostics struct {
	Configured bool   `json:"configured"`
	Breaker    string `json:"breaker,omitempty"`
}

// GetDiagnostics handles GET /api/diagnostics. With probe=1 and an
// OpenWeather key it also fetches the Manila snapshot as a live check.
func (h *Handler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	cfg := h.healthConfig
	if cfg == nil {
		cfg = &HealthConfig{}
	}
	providers := make(map[string]providerDiagnostics)
	for name, configured := range h.configuredProviders() {
		d := providerDiagnostics{Configured: configured}
		if cfg.BreakerState != nil {
			d.Breaker = cfg.BreakerState(name)
		}
		providers[name] = d
	}

	owmConfigured := providers[provider.OpenWeather].Configured
	var messages []string
	if !owmConfigured {
		messages = append(messages, "API key NOT configured. Edit config/.env and set OWM_API_KEY=YOUR_KEY")
	} else {
		messages = append(messages, "API key appears configured.")
		if r.URL.Query().Get("probe") == "1" {
			messages = append(messages, h.probe(r.Context()))
		}
	}

	keyFile := "MISSING"
	if cfg.KeyFileLoaded {
		keyFile = "FOUND"
	}
	cacheStatus := "unknown"
	if cfg.CachePing != nil {
		cacheStatus = healthy(cfg.CachePing() == nil)
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	counts := traffic.Window(window)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key_file":           keyFile,
		"owm_key_present":    owmConfigured,
		"fallback_available": true,
		"providers":          providers,
		"cache": map[string]string{
			"backend": cfg.CacheBackend,
			"status":  cacheStatus,
		},
		"traffic": map[string]interface{}{
			"window":    window.String(),
			"counts":    counts,
			"error_pct": units.Round1(counts.ErrorPct()),
		},
		"messages": messages,
	})
}

func (h *Handler) probe(ctx context.Context) string {
	q := provider.Query{Lat: probeLat, Lon: probeLon, Units: units.Metric}
	body, err := h.services.Snapshots.Snapshot(ctx, provider.OpenWeather, q)
	if err != nil {
		return "Test request failed or unexpected response: " + err.Error()
	}
	var snap models.WeatherSnapshot
	if err := json.Unmarshal(body, &snap); err != nil || snap.Current.Temp == nil {
		return "Test request failed or unexpected response: " + string(body)
	}
	return fmt.Sprintf("Test request succeeded: Current temp (metric) Manila = %v°", *snap.Current.Temp)
}

// writeBody writes a pre-rendered JSON body unchanged.
func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		writeBody(w, http.StatusInternalServerError, []byte(`{"error":"Internal server error"}`))
		return
	}
	writeBody(w, status, body)
}

// writeBadRequest writes the 400 {error} envelope for a validation failure.
func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	observability.LoggerFromContext(r.Context(), nil).Debug("invalid request", zap.Error(err))
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Message(err)})
}

// writeServiceError writes the envelope and status carried by a
// *service.Error, or a 500 for anything else.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context(), nil)
	var sErr *service.Error
	if errors.As(err, &sErr) {
		logger.Debug("endpoint failure", zap.Int("status", sErr.Status), zap.Error(err))
		writeBody(w, sErr.Status, sErr.JSON())
		return
	}
	logger.Error("unexpected endpoint error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}
