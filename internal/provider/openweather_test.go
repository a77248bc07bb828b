package provider

import (
	"net/url"
	"strings"
	"testing"
)

func TestOpenWeather_Requests(t *testing.T) {
	p := NewOpenWeather("secret", "")
	urls, err := p.Requests(manilaUS)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if len(urls) != 1 {
		t.Fatalf("len(urls) = %d, want 1", len(urls))
	}
	u, err := url.Parse(urls[0])
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if !strings.HasSuffix(u.Path, "/data/2.5/onecall") {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	want := map[string]string{
		"lat":     "14.5995",
		"lon":     "120.9842",
		"units":   "imperial",
		"exclude": "minutely,alerts",
		"appid":   "secret",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestOpenWeather_Normalize(t *testing.T) {
	p := NewOpenWeather("k", "")
	snap, err := p.Normalize(manila, [][]byte{loadFixture(t, "openweather_onecall.json")}, fixtureNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if snap.Source != OpenWeather {
		t.Errorf("Source = %q", snap.Source)
	}
	if snap.FetchedAt != fixtureNow.Unix() {
		t.Errorf("FetchedAt = %d, want %d", snap.FetchedAt, fixtureNow.Unix())
	}
	if snap.TimezoneOffset != 28800 || snap.Timezone == nil || *snap.Timezone != "Asia/Manila" {
		t.Errorf("timezone = %v/%d", snap.Timezone, snap.TimezoneOffset)
	}
	assertSeries(t, snap, 24, 7)

	c := snap.Current
	if c.Dt != fixtureNow.Unix() {
		t.Errorf("Current.Dt = %d", c.Dt)
	}
	approx(t, "Current.Temp", c.Temp, 30.5)
	approx(t, "Current.Precip", c.Precip, 0.5)
	approx(t, "Current.Visibility", c.Visibility, 10000)
	if c.Weather[0].Icon != "03d" || c.Weather[0].ID != 802 {
		t.Errorf("Current.Weather = %+v", c.Weather)
	}

	// The fixture swaps the first two hours; the snapshot must be re-ordered.
	if snap.Hourly[0].Dt != fixtureNow.Unix() {
		t.Errorf("Hourly[0].Dt = %d, want %d", snap.Hourly[0].Dt, fixtureNow.Unix())
	}
	if snap.Hourly[0].Pop != 0.2 {
		t.Errorf("Hourly[0].Pop = %v", snap.Hourly[0].Pop)
	}
	approx(t, "Hourly[0].Precip", snap.Hourly[0].Precip, 0)
	approx(t, "Daily[0].Temp.Max", snap.Daily[0].Temp.Max, 32.5)
	approx(t, "Daily[0].Precip", snap.Daily[0].Precip, 3.2)
}

func TestOpenWeather_NormalizeIncomplete(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing daily", `{"current":{"dt":1},"hourly":[]}`},
		{"missing current", `{"hourly":[],"daily":[]}`},
		{"null hourly", `{"current":{"dt":1},"hourly":null,"daily":[]}`},
	}
	p := NewOpenWeather("k", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Normalize(manila, [][]byte{[]byte(tt.body)}, fixtureNow)
			assertProviderError(t, err, "Incomplete data from upstream", ErrIncomplete)
		})
	}

	_, err := p.Normalize(manila, [][]byte{[]byte("<html>")}, fixtureNow)
	assertProviderError(t, err, "Incomplete data from upstream", ErrDecode)
}

func TestOpenWeather_MissingConditionFallsBack(t *testing.T) {
	body := `{"current":{"dt":10,"weather":[]},"hourly":[{"dt":10}],"daily":[{"dt":10,"temp":{}}]}`
	snap, err := NewOpenWeather("k", "").Normalize(manila, [][]byte{[]byte(body)}, fixtureNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if snap.Current.Weather[0].Icon != "04d" {
		t.Errorf("fallback icon = %q, want 04d", snap.Current.Weather[0].Icon)
	}
	if snap.Current.Temp != nil {
		t.Errorf("absent temp should stay nil, got %v", *snap.Current.Temp)
	}
	if snap.Timezone != nil {
		t.Errorf("absent timezone should be nil")
	}
}
