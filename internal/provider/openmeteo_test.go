package provider

import (
	"net/url"
	"strings"
	"testing"
)

func TestOpenMeteo_Requests(t *testing.T) {
	urls, err := NewOpenMeteo("").Requests(manila)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	u, err := url.Parse(urls[0])
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	if q.Get("latitude") != "14.5995" || q.Get("longitude") != "120.9842" {
		t.Errorf("coordinates = %s,%s", q.Get("latitude"), q.Get("longitude"))
	}
	if q.Get("timezone") != "auto" {
		t.Errorf("timezone = %q, want auto", q.Get("timezone"))
	}
	for _, field := range []string{"current", "hourly", "daily"} {
		if q.Get(field) == "" {
			t.Errorf("missing %s field list", field)
		}
	}
	if !strings.Contains(q.Get("daily"), "weathercode") {
		t.Errorf("daily fields = %q, want weathercode", q.Get("daily"))
	}
	if q.Has("units") || q.Has("temperature_unit") {
		t.Error("Open-Meteo is always fetched in metric")
	}
}

func TestOpenMeteo_Normalize(t *testing.T) {
	body := loadFixture(t, "openmeteo_forecast.json")

	tests := []struct {
		name     string
		q        Query
		curTemp  float64
		curWind  float64
		hourTemp float64
		dayMax   float64
		dayWind  float64
	}{
		{"metric", manila, 0, 10, 6, 100, 15},
		{"imperial", manilaUS, 32, 22.4, 42.8, 212, 33.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := NewOpenMeteo("").Normalize(tt.q, [][]byte{body}, fixtureNow)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			assertSeries(t, snap, 24, 7)

			if snap.Source != "" || snap.FetchedAt != 0 {
				t.Errorf("Open-Meteo snapshots carry no source annotation, got %q/%d", snap.Source, snap.FetchedAt)
			}
			if snap.TimezoneOffset != 28800 {
				t.Errorf("TimezoneOffset = %d", snap.TimezoneOffset)
			}

			c := snap.Current
			if c.Dt != fixtureNow.Unix() {
				t.Errorf("Current.Dt = %d, want %d", c.Dt, fixtureNow.Unix())
			}
			approx(t, "Current.Temp", c.Temp, tt.curTemp)
			approx(t, "Current.WindSpeed", c.WindSpeed, tt.curWind)
			if c.Sunrise == nil || *c.Sunrise != fixtureSunrise {
				t.Errorf("Current.Sunrise = %v, want %d", c.Sunrise, fixtureSunrise)
			}
			if c.UVI != 9.5 {
				t.Errorf("Current.UVI = %v", c.UVI)
			}
			if c.Weather[0].Icon != "04n" || c.Weather[0].Main != "Overcast" {
				t.Errorf("Current.Weather = %+v", c.Weather)
			}

			// Hours before the current local hour are skipped.
			h := snap.Hourly[0]
			if h.Dt != fixtureNow.Unix() {
				t.Errorf("Hourly[0].Dt = %d, want %d", h.Dt, fixtureNow.Unix())
			}
			approx(t, "Hourly[0].Temp", h.Temp, tt.hourTemp)
			if h.Pop != 0.45 {
				t.Errorf("Hourly[0].Pop = %v, want 0.45", h.Pop)
			}
			if h.Weather[0].Icon != "10d" {
				t.Errorf("Hourly[0] icon = %q, want 10d", h.Weather[0].Icon)
			}

			d := snap.Daily[0]
			approx(t, "Daily[0].Temp.Max", d.Temp.Max, tt.dayMax)
			approx(t, "Daily[0].WindSpeed", d.WindSpeed, tt.dayWind)
			if d.Weather[0].Icon != "11d" {
				t.Errorf("Daily[0] icon = %q, want 11d", d.Weather[0].Icon)
			}
			if d.Pop != 0.9 {
				t.Errorf("Daily[0].Pop = %v, want 0.9", d.Pop)
			}
		})
	}
}

func TestOpenMeteo_NormalizeErrors(t *testing.T) {
	p := NewOpenMeteo("")

	_, err := p.Normalize(manila, [][]byte{[]byte(`{"error":true,"reason":"Latitude must be in range of -90 to 90°."}`)}, fixtureNow)
	pErr := assertProviderError(t, err, "Open-Meteo request failed", ErrReported)
	if !strings.HasPrefix(pErr.Detail, "Latitude must be") {
		t.Errorf("Detail = %q", pErr.Detail)
	}

	_, err = p.Normalize(manila, [][]byte{[]byte(`{"hourly":{},"daily":{}}`)}, fixtureNow)
	assertProviderError(t, err, "Incomplete data from upstream", ErrIncomplete)
}

func TestOpenMeteo_DailyWithoutCodeUsesCloudyIcon(t *testing.T) {
	body := `{"utc_offset_seconds":0,"current":{"time":"2023-11-14T06:00","weathercode":0},
		"daily":{"time":["2023-11-14"],"temperature_2m_max":[10],"temperature_2m_min":[5]}}`
	snap, err := NewOpenMeteo("").Normalize(manila, [][]byte{[]byte(body)}, fixtureNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(snap.Daily) != 1 || snap.Daily[0].Weather[0].Icon != "04d" {
		t.Fatalf("Daily = %+v", snap.Daily)
	}
	if snap.Daily[0].WindSpeed != nil {
		t.Error("absent daily wind should stay nil")
	}
	if snap.Current.Weather[0].Icon != "01d" {
		t.Errorf("current icon = %q, want 01d when is_day is absent", snap.Current.Weather[0].Icon)
	}
	if snap.Hourly == nil || len(snap.Hourly) != 0 {
		t.Errorf("Hourly = %v, want empty array", snap.Hourly)
	}
}
