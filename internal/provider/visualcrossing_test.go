package provider

import (
	"net/url"
	"strings"
	"testing"
)

func TestVisualCrossing_Requests(t *testing.T) {
	urls, err := NewVisualCrossing("vc-key", "").Requests(manilaUS)
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	if !strings.Contains(urls[0], "/timeline/14.5995%2C120.9842?") {
		t.Errorf("url = %q, want escaped location segment", urls[0])
	}
	u, _ := url.Parse(urls[0])
	q := u.Query()
	if q.Get("unitGroup") != "us" || q.Get("key") != "vc-key" || q.Get("contentType") != "json" {
		t.Errorf("query = %v", q)
	}
	if q.Get("include") != "current,hours,days,alerts" {
		t.Errorf("include = %q", q.Get("include"))
	}

	metric, _ := NewVisualCrossing("vc-key", "").Requests(manila)
	if !strings.Contains(metric[0], "unitGroup=metric") {
		t.Errorf("metric url = %q", metric[0])
	}
}

func TestVisualCrossing_Normalize(t *testing.T) {
	body := loadFixture(t, "visualcrossing_timeline.json")

	snap, err := NewVisualCrossing("k", "").Normalize(manila, [][]byte{body}, fixtureNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	assertSeries(t, snap, 24, 7)

	if snap.Source != VisualCrossing || snap.TimezoneOffset != 28800 {
		t.Errorf("annotation = %q offset %d", snap.Source, snap.TimezoneOffset)
	}
	c := snap.Current
	if c.Dt != fixtureNow.Unix()+1800 {
		t.Errorf("Current.Dt = %d", c.Dt)
	}
	approx(t, "Current.WindSpeed", c.WindSpeed, 10)
	approx(t, "Current.Visibility", c.Visibility, 10000)
	if c.Sunrise == nil || *c.Sunrise != fixtureSunrise {
		t.Errorf("Current.Sunrise = %v", c.Sunrise)
	}
	if c.Weather[0].Icon != "02d" || c.Weather[0].Main != "Partially cloudy" {
		t.Errorf("Current.Weather = %+v", c.Weather)
	}

	// Hours run from the current hour today into tomorrow.
	if snap.Hourly[0].Dt != fixtureNow.Unix() {
		t.Errorf("Hourly[0].Dt = %d, want %d", snap.Hourly[0].Dt, fixtureNow.Unix())
	}
	if got, want := snap.Hourly[23].Dt, fixtureNow.Unix()+23*3600; got != want {
		t.Errorf("Hourly[23].Dt = %d, want %d", got, want)
	}
	approx(t, "Hourly[0].WindSpeed", snap.Hourly[0].WindSpeed, 5)

	d := snap.Daily[0]
	approx(t, "Daily[0].WindSpeed", d.WindSpeed, 7)
	if d.Weather[0].Icon != "10d" || d.Weather[0].Description != "Partly cloudy with afternoon rain." {
		t.Errorf("Daily[0].Weather = %+v", d.Weather)
	}

	if len(snap.Alerts) != 1 || snap.Alerts[0].Event != "Flood Advisory" {
		t.Fatalf("Alerts = %+v", snap.Alerts)
	}
	if s := snap.Alerts[0].Start; s == nil || *s != fixtureNow.Unix() {
		t.Errorf("alert start = %v", s)
	}
}

func TestVisualCrossing_ImperialWindUnchanged(t *testing.T) {
	snap, err := NewVisualCrossing("k", "").Normalize(manilaUS, [][]byte{loadFixture(t, "visualcrossing_timeline.json")}, fixtureNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	approx(t, "Current.WindSpeed", snap.Current.WindSpeed, 36)
	approx(t, "Current.Visibility", snap.Current.Visibility, 16093.4)
}

func TestVisualCrossing_NormalizeErrors(t *testing.T) {
	p := NewVisualCrossing("k", "")

	_, err := p.Normalize(manila, [][]byte{[]byte(`{"errorCode":999,"message":"No account found"}`)}, fixtureNow)
	pErr := assertProviderError(t, err, "Visual Crossing request failed", ErrReported)
	if pErr.Detail != "No account found" {
		t.Errorf("Detail = %q", pErr.Detail)
	}

	_, err = p.Normalize(manila, [][]byte{[]byte(`{"days":[]}`)}, fixtureNow)
	assertProviderError(t, err, "Visual Crossing no data returned", ErrIncomplete)
}

func TestVisualCrossing_MissingCurrentUsesDefaults(t *testing.T) {
	body := `{"tzoffset":-5.5,"days":[{"datetimeEpoch":1699920000,"tempmax":30,"tempmin":20}]}`
	snap, err := NewVisualCrossing("k", "").Normalize(manila, [][]byte{[]byte(body)}, fixtureNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if snap.Current.Dt != fixtureNow.Unix() {
		t.Errorf("Current.Dt = %d, want now", snap.Current.Dt)
	}
	if snap.Current.Weather[0].Main != "Clear" || snap.Current.Weather[0].Icon != "01d" {
		t.Errorf("Current.Weather = %+v", snap.Current.Weather)
	}
	if snap.TimezoneOffset != -19800 {
		t.Errorf("TimezoneOffset = %d, want -19800", snap.TimezoneOffset)
	}
}
