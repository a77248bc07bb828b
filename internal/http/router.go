package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/klima-weather-proxy/internal/observability"
	"github.com/kjstillabower/klima-weather-proxy/internal/provider"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger *zap.Logger
	// Limiter rate-limits /api; nil disables limiting.
	Limiter *rate.Limiter
	// RequestTimeout bounds every /api request; zero disables the deadline.
	RequestTimeout time.Duration
	// StaticDir, when set, is served at / for the browser client.
	StaticDir string
}

// snapshotRoutes maps each snapshot endpoint to the provider serving it.
var snapshotRoutes = map[string]string{
	"weather":        provider.OpenWeather,
	"weather_free":   provider.OpenMeteo,
	"weatherapi":     provider.WeatherAPI,
	"weatherbit":     provider.Weatherbit,
	"tomorrow":       provider.Tomorrow,
	"visualcrossing": provider.VisualCrossing,
}

// NewRouter builds the full route table. Every /api endpoint is also
// reachable under its legacy .php name.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(globalInFlightTracker.Middleware)
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(OutcomeMiddleware)
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	for route, name := range snapshotRoutes {
		handle(api, route, h.Snapshot(name))
	}
	handle(api, "geocode", h.GetGeocode)
	handle(api, "airquality", h.GetAirQuality)
	handle(api, "alerts", h.GetAlerts)
	handle(api, "confidence", h.GetConfidence)
	handle(api, "pagasa", h.GetRegional)
	handle(api, "diagnostics", h.GetDiagnostics)

	if cfg.StaticDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir))).Methods(http.MethodGet)
	}
	return router
}

func handle(r *mux.Router, route string, fn http.HandlerFunc) {
	r.HandleFunc("/"+route, fn).Methods(http.MethodGet)
	r.HandleFunc("/"+route+".php", fn).Methods(http.MethodGet)
}
