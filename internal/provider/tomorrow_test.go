package provider

import (
	"net/url"
	"strings"
	"testing"
)

func TestTomorrow_Requests(t *testing.T) {
	urls, err := NewTomorrow("tm-key", "").Requests(manilaUS)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	u, _ := url.Parse(urls[0])
	q := u.Query()
	if q.Get("location") != "14.5995,120.9842" || q.Get("apikey") != "tm-key" {
		t.Errorf("query = %v", q)
	}
	if q.Get("units") != "imperial" || q.Get("timesteps") != "1h,1d" {
		t.Errorf("units/timesteps = %q/%q", q.Get("units"), q.Get("timesteps"))
	}
	for _, f := range []string{"temperatureMax", "sunriseTime", "epaIndex", "fireIndex"} {
		if !strings.Contains(q.Get("fields"), f) {
			t.Errorf("fields missing %s", f)
		}
	}
}

func TestTomorrow_Normalize(t *testing.T) {
	snap, err := NewTomorrow("k", "").Normalize(manila, [][]byte{loadFixture(t, "tomorrow_timelines.json")}, fixtureNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	assertSeries(t, snap, 24, 7)

	if snap.Source != Tomorrow || snap.Timezone != nil || snap.TimezoneOffset != 0 {
		t.Errorf("annotation = %q tz %v offset %d", snap.Source, snap.Timezone, snap.TimezoneOffset)
	}
	c := snap.Current
	if c.Dt != fixtureNow.Unix() {
		t.Errorf("Current.Dt = %d", c.Dt)
	}
	approx(t, "Current.Temp", c.Temp, 20)
	if c.Sunrise == nil || *c.Sunrise != fixtureSunrise {
		t.Errorf("Current.Sunrise = %v", c.Sunrise)
	}
	if c.Weather[0].Icon != "01d" || c.Weather[0].Main != "Clear" {
		t.Errorf("Current.Weather = %+v", c.Weather)
	}
	approx(t, "Current.FireIndex", c.FireIndex, 12.5)
	if c.AirQuality == nil {
		t.Fatal("Current.AirQuality = nil")
	}
	approx(t, "AirQuality.AQI", c.AirQuality.AQI, 35)
	approx(t, "AirQuality.PM25", c.AirQuality.PM25, 9.1)

	// 18:00 local is after the 17:26 sunset.
	if icon := snap.Hourly[12].Weather[0].Icon; icon != "01n" {
		t.Errorf("Hourly[12] icon = %q, want 01n", icon)
	}
	d := snap.Daily[0]
	approx(t, "Daily[0].Temp.Min", d.Temp.Min, 23)
	approx(t, "Daily[0].Temp.Max", d.Temp.Max, 31)
	if d.Weather[0].Icon != "10d" || d.Pop != 0.4 {
		t.Errorf("Daily[0] = %+v pop %v", d.Weather, d.Pop)
	}
}

func TestTomorrow_ImperialIsNotConvertedAgain(t *testing.T) {
	body := `{"data":{"timelines":[
		{"timestep":"1h","intervals":[{"startTime":"2023-11-13T22:00:00Z","values":{"temperature":68.5,"windSpeed":11.2,"weatherCode":1001}}]},
		{"timestep":"1d","intervals":[{"startTime":"2023-11-13T16:00:00Z","values":{"temperature":70}}]}]}}`
	snap, err := NewTomorrow("k", "").Normalize(manilaUS, [][]byte{[]byte(body)}, fixtureNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	approx(t, "Current.Temp", snap.Current.Temp, 68.5)
	approx(t, "Current.WindSpeed", snap.Current.WindSpeed, 11.2)
	approx(t, "Daily[0].Temp.Max", snap.Daily[0].Temp.Max, 70)
	if snap.Current.AirQuality != nil {
		t.Error("AirQuality should be omitted without pollutant fields")
	}
}

func TestTomorrow_NormalizeErrors(t *testing.T) {
	p := NewTomorrow("k", "")

	_, err := p.Normalize(manila, [][]byte{[]byte(`{"code":401001,"type":"Invalid Auth","message":"The method requires authentication."}`)}, fixtureNow)
	pErr := assertProviderError(t, err, "Tomorrow.io request failed", ErrReported)
	if pErr.Detail != "The method requires authentication." {
		t.Errorf("Detail = %q", pErr.Detail)
	}

	_, err = p.Normalize(manila, [][]byte{[]byte(`{"code":500000}`)}, fixtureNow)
	pErr = assertProviderError(t, err, "Tomorrow.io request failed", ErrReported)
	if pErr.Detail != "Unknown error" {
		t.Errorf("Detail = %q, want Unknown error", pErr.Detail)
	}

	onlyHourly := `{"data":{"timelines":[{"timestep":"1h","intervals":[{"startTime":"2023-11-13T22:00:00Z","values":{}}]}]}}`
	_, err = p.Normalize(manila, [][]byte{[]byte(onlyHourly)}, fixtureNow)
	assertProviderError(t, err, "Tomorrow.io incomplete data", ErrIncomplete)
}

func TestDaylight(t *testing.T) {
	d := daylight{{100, 200}, {1100, 1200}}
	tests := []struct {
		ts   int64
		want bool
	}{
		{99, false},
		{100, true},
		{199, true},
		{200, false},
		{1150, true},
	}
	for _, tt := range tests {
		if got := d.isDay(tt.ts); got != tt.want {
			t.Errorf("isDay(%d) = %v, want %v", tt.ts, got, tt.want)
		}
	}
	if !(daylight{}).isDay(5) {
		t.Error("no sun data should default to day")
	}
}
