package provider

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/kjstillabower/klima-weather-proxy/internal/models"
	"github.com/kjstillabower/klima-weather-proxy/internal/units"
	"github.com/kjstillabower/klima-weather-proxy/internal/upstream"
)

// fixtureNow is 2023-11-14 06:00 in Asia/Manila, the "current" time all fixtures share.
var fixtureNow = time.Unix(1699912800, 0)

// fixtureSunrise is 05:58 local on the fixture day.
const fixtureSunrise int64 = 1699912680

var (
	manila   = Query{Lat: 14.5995, Lon: 120.9842, Units: units.Metric}
	manilaUS = Query{Lat: 14.5995, Lon: 120.9842, Units: units.Imperial}
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return b
}

func approx(t *testing.T, field string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s = nil, want %v", field, want)
	}
	if math.Abs(*got-want) > 1e-6 {
		t.Errorf("%s = %v, want %v", field, *got, want)
	}
}

// assertSeries checks the shared shape guarantees of every normalized snapshot.
func assertSeries(t *testing.T, snap *models.WeatherSnapshot, wantHourly, wantDaily int) {
	t.Helper()
	if len(snap.Hourly) != wantHourly {
		t.Errorf("len(Hourly) = %d, want %d", len(snap.Hourly), wantHourly)
	}
	if len(snap.Daily) != wantDaily {
		t.Errorf("len(Daily) = %d, want %d", len(snap.Daily), wantDaily)
	}
	for i := 1; i < len(snap.Hourly); i++ {
		if snap.Hourly[i].Dt < snap.Hourly[i-1].Dt {
			t.Fatalf("Hourly not chronological at %d", i)
		}
	}
	for i := 1; i < len(snap.Daily); i++ {
		if snap.Daily[i].Dt < snap.Daily[i-1].Dt {
			t.Fatalf("Daily not chronological at %d", i)
		}
	}
	for _, h := range snap.Hourly {
		if h.Pop < 0 || h.Pop > 1 {
			t.Fatalf("hourly pop %v outside [0,1]", h.Pop)
		}
		if len(h.Weather) == 0 || !iconPattern.MatchString(h.Weather[0].Icon) {
			t.Fatalf("hourly weather icon malformed: %+v", h.Weather)
		}
	}
	if len(snap.Current.Weather) == 0 || !iconPattern.MatchString(snap.Current.Weather[0].Icon) {
		t.Errorf("current weather icon malformed: %+v", snap.Current.Weather)
	}
}

// assertProviderError checks a normalization failure carries the client
// message and the expected cause.
func assertProviderError(t *testing.T, err error, message string, cause error) *Error {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var pErr *Error
	if !errors.As(err, &pErr) {
		t.Fatalf("error %v is not *provider.Error", err)
	}
	if pErr.Message != message {
		t.Errorf("Message = %q, want %q", pErr.Message, message)
	}
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(%v, %v) = false", err, cause)
	}
	return pErr
}

func TestCoord(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{14.5995, "14.5995"},
		{-33.8688, "-33.8688"},
		{121, "121"},
		{0, "0"},
		{0.1, "0.1"},
	}
	for _, tt := range tests {
		if got := Coord(tt.in); got != tt.want {
			t.Errorf("Coord(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := manila.Point(); got != "14.5995,120.9842" {
		t.Errorf("Point() = %q", got)
	}
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry(Config{Keys: map[string]string{OpenWeather: "k"}})

	want := []string{OpenMeteo, OpenWeather, Tomorrow, VisualCrossing, WeatherAPI, Weatherbit}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	configured := map[string]bool{
		OpenWeather:    true,
		OpenMeteo:      true,
		WeatherAPI:     false,
		Weatherbit:     false,
		Tomorrow:       false,
		VisualCrossing: false,
	}
	for name, want := range configured {
		p, err := r.Get(name)
		if err != nil {
			t.Fatalf("Get(%q): %v", name, err)
		}
		if p.Configured() != want {
			t.Errorf("%s Configured() = %v, want %v", name, p.Configured(), want)
		}
	}

	if _, err := r.Get("darksky"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Get(darksky) error = %v, want ErrUnknownProvider", err)
	}
}

func TestRegistry_BaseURLOverride(t *testing.T) {
	r := NewRegistry(Config{
		Keys:     map[string]string{Weatherbit: "k"},
		BaseURLs: map[string]string{Weatherbit: "http://127.0.0.1:9999/v2.0/", OpenMeteo: "http://127.0.0.1:9999/om"},
	})
	wb, _ := r.Get(Weatherbit)
	urls, err := wb.Requests(manila)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if !strings.HasPrefix(urls[0], "http://127.0.0.1:9999/v2.0/current?") {
		t.Errorf("weatherbit url = %q", urls[0])
	}
	om, _ := r.Get(OpenMeteo)
	urls, _ = om.Requests(manila)
	if !strings.HasPrefix(urls[0], "http://127.0.0.1:9999/om?") {
		t.Errorf("openmeteo url = %q", urls[0])
	}
}

func TestUnconfigured(t *testing.T) {
	tests := []struct {
		p        Provider
		tag      string
		message  string
		noteHint string
		hard     bool
	}{
		{NewOpenWeather("", ""), "onecall", "API key not configured", "", true},
		{NewWeatherAPI("", ""), "weatherapi", "WeatherAPI key not configured", "weatherapi.com", false},
		{NewWeatherbit("", ""), "weatherbit", "Weatherbit key not configured", "weatherbit.io", false},
		{NewTomorrow("", ""), "tomorrow", "Tomorrow.io key not configured", "500 calls/day", false},
		{NewVisualCrossing("", ""), "visualcrossing", "Visual Crossing key not configured", "1000 records/day", false},
	}
	for _, tt := range tests {
		t.Run(tt.p.Name(), func(t *testing.T) {
			if tt.p.Configured() {
				t.Fatal("provider without key reports Configured")
			}
			if tt.p.CacheTag() != tt.tag {
				t.Errorf("CacheTag() = %q, want %q", tt.p.CacheTag(), tt.tag)
			}
			u := tt.p.Unconfigured()
			if u.Message != tt.message {
				t.Errorf("Message = %q, want %q", u.Message, tt.message)
			}
			if u.Hard != tt.hard {
				t.Errorf("Hard = %v, want %v", u.Hard, tt.hard)
			}
			if tt.hard && u.Note != "" {
				t.Errorf("hard unconfigured should carry no note, got %q", u.Note)
			}
			if !strings.Contains(u.Note, tt.noteHint) {
				t.Errorf("Note = %q, want it to mention %q", u.Note, tt.noteHint)
			}
		})
	}
	if !NewOpenMeteo("").Configured() {
		t.Error("Open-Meteo needs no key and must always be configured")
	}
}

func TestFailed_ExtractsProviderDetail(t *testing.T) {
	upErr := func(status int, body string) error {
		return &upstream.Error{Provider: "p", Status: status, Detail: body, Body: []byte(body)}
	}
	tests := []struct {
		name    string
		p       Provider
		err     error
		message string
		detail  string
	}{
		{
			name:    "openweather envelope",
			p:       NewOpenWeather("k", ""),
			err:     upErr(401, `{"cod":401,"message":"Invalid API key"}`),
			message: "Upstream returned HTTP 401",
			detail:  `{"cod":401,"message":"Invalid API key"}`,
		},
		{
			name:    "openmeteo",
			p:       NewOpenMeteo(""),
			err:     upErr(400, `{"error":true,"reason":"bad lat"}`),
			message: "Open-Meteo request failed",
			detail:  `{"error":true,"reason":"bad lat"}`,
		},
		{
			name:    "weatherapi message",
			p:       NewWeatherAPI("k", ""),
			err:     upErr(400, `{"error":{"code":1006,"message":"No matching location found."}}`),
			message: "WeatherAPI request failed",
			detail:  "No matching location found.",
		},
		{
			name:    "weatherapi no body",
			p:       NewWeatherAPI("k", ""),
			err:     upstream.ErrTransport,
			message: "WeatherAPI request failed",
			detail:  "Unknown error",
		},
		{
			name:    "weatherbit",
			p:       NewWeatherbit("k", ""),
			err:     upErr(403, `{"error":"API key not valid, or not yet activated."}`),
			message: "Weatherbit request failed",
			detail:  "API key not valid, or not yet activated.",
		},
		{
			name:    "tomorrow type only",
			p:       NewTomorrow("k", ""),
			err:     upErr(429, `{"code":429001,"type":"Too Many Calls"}`),
			message: "Tomorrow.io request failed",
			detail:  "Too Many Calls",
		},
		{
			name:    "visualcrossing plain text",
			p:       NewVisualCrossing("k", ""),
			err:     upErr(400, "Bad API Request:Invalid location parameter value.\n"),
			message: "Visual Crossing request failed",
			detail:  "Bad API Request:Invalid location parameter value.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Failed(tt.err)
			var pErr *Error
			if !errors.As(err, &pErr) {
				t.Fatalf("Failed() = %v, want *provider.Error", err)
			}
			if pErr.Message != tt.message {
				t.Errorf("Message = %q, want %q", pErr.Message, tt.message)
			}
			if pErr.Detail != tt.detail {
				t.Errorf("Detail = %q, want %q", pErr.Detail, tt.detail)
			}
			if !errors.Is(err, tt.err) {
				t.Error("Failed() must keep the upstream error in the chain")
			}
		})
	}
}

func TestNormalize_WrongBodyCount(t *testing.T) {
	for _, p := range []Provider{
		NewOpenWeather("k", ""), NewOpenMeteo(""), NewWeatherAPI("k", ""),
		NewWeatherbit("k", ""), NewTomorrow("k", ""), NewVisualCrossing("k", ""),
	} {
		if _, err := p.Normalize(manila, nil, fixtureNow); err == nil {
			t.Errorf("%s: Normalize with no bodies should fail", p.Name())
		}
	}
}
