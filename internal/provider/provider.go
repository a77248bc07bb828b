// Package provider maps each weather provider's payload onto the common
// WeatherSnapshot shape. Normalizers are pure: they build request URLs and
// decode bodies, and never perform I/O themselves.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/kjstillabower/klima-weather-proxy/internal/models"
	"github.com/kjstillabower/klima-weather-proxy/internal/units"
	"github.com/kjstillabower/klima-weather-proxy/internal/upstream"
)

// Provider names. They double as the route names of the per-provider endpoints.
const (
	OpenWeather    = "openweather"
	OpenMeteo      = "openmeteo"
	WeatherAPI     = "weatherapi"
	Weatherbit     = "weatherbit"
	Tomorrow       = "tomorrow"
	VisualCrossing = "visualcrossing"
)

var (
	// ErrIncomplete means the payload lacked a block every snapshot needs.
	ErrIncomplete = errors.New("incomplete data from upstream")
	// ErrReported means the provider answered 2xx with an error payload.
	ErrReported = errors.New("provider reported an error")
	// ErrDecode means the payload was not the JSON the provider documents.
	ErrDecode = errors.New("decode provider payload")
	// ErrUnknownProvider is returned by Registry.Get for unregistered names.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Query is a single forecast lookup.
type Query struct {
	Lat   float64
	Lon   float64
	Units units.System
}

// Coord renders a coordinate the way it appears in cache keys and provider URLs.
func Coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Point returns the "lat,lon" pair for q.
func (q Query) Point() string {
	return Coord(q.Lat) + "," + Coord(q.Lon)
}

// Error is a failure attributed to a provider. Message and Detail are the
// {error, detail} envelope sent to the client with HTTP 502.
type Error struct {
	Provider string
	Message  string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Unconfigured describes the response for a provider whose key is missing.
// Hard unconfigured providers answer 500 with only an error; soft ones
// answer 200 with {error, note} so clients can skip the source silently.
type Unconfigured struct {
	Message string
	Note    string
	Hard    bool
}

// Provider is one weather source.
type Provider interface {
	// Name is the stable provider identifier.
	Name() string
	// CacheTag prefixes the cache key of this provider's snapshots.
	CacheTag() string
	// Configured reports whether the provider can be called.
	Configured() bool
	// Unconfigured is the response served when Configured is false.
	Unconfigured() Unconfigured
	// Requests returns the URLs to fetch, in order, for q.
	Requests(q Query) ([]string, error)
	// Normalize maps the fetched bodies (one per request) to a snapshot.
	Normalize(q Query, bodies [][]byte, now time.Time) (*models.WeatherSnapshot, error)
	// Failed converts a failed upstream call into the provider's error.
	Failed(err error) error
}

// Config carries the keys and base URLs the registry builds providers from.
// Empty base URLs use each provider's public endpoint.
type Config struct {
	Keys     map[string]string
	BaseURLs map[string]string
}

// Registry holds the providers keyed by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds all six providers.
func NewRegistry(cfg Config) *Registry {
	key := func(name string) string { return cfg.Keys[name] }
	base := func(name string) string { return cfg.BaseURLs[name] }
	return NewRegistryOf(
		NewOpenWeather(key(OpenWeather), base(OpenWeather)),
		NewOpenMeteo(base(OpenMeteo)),
		NewWeatherAPI(key(WeatherAPI), base(WeatherAPI)),
		NewWeatherbit(key(Weatherbit), base(Weatherbit)),
		NewTomorrow(key(Tomorrow), base(Tomorrow)),
		NewVisualCrossing(key(VisualCrossing), base(VisualCrossing)),
	)
}

// NewRegistryOf builds a registry from explicit providers.
func NewRegistryOf(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// failure builds a provider error for a failed upstream call, keeping the
// upstream error in the chain for categorization.
func failure(provider, message, detail string, err error) *Error {
	return &Error{Provider: provider, Message: message, Detail: detail, Err: err}
}

// upstreamBody returns the provider's reply body carried by an upstream error.
func upstreamBody(err error) []byte {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		return upErr.Body
	}
	return nil
}

// upstreamDetail returns the client-facing detail of an upstream error.
func upstreamDetail(err error) string {
	var upErr *upstream.Error
	if errors.As(err, &upErr) {
		return upErr.Detail
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// zoneOffset returns the current UTC offset in seconds of the IANA zone tz, or 0.
func zoneOffset(tz string, now time.Time) int {
	if tz == "" {
		return 0
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return 0
	}
	_, offset := now.In(loc).Zone()
	return offset
}

func temp(u units.System, c *float64) *float64 {
	if c == nil {
		return nil
	}
	return models.Float(u.Temperature(*c))
}

func kmhWind(u units.System, kmh *float64) *float64 {
	if kmh == nil {
		return models.Float(0)
	}
	return models.Float(u.WindFromKmh(*kmh))
}

func pct(v *float64) float64 {
	if v == nil {
		return 0
	}
	return units.Fraction(*v)
}

func orZero(v *float64) *float64 {
	if v == nil {
		return models.Float(0)
	}
	return v
}

func condition(id int, main, description, icon string) []models.WeatherCondition {
	return []models.WeatherCondition{{ID: id, Main: main, Description: description, Icon: icon}}
}
