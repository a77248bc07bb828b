// Package units holds the unit-system conversions shared by the provider
// normalizers.
package units

import (
	"math"
	"strings"
)

// System is a caller-requested unit system.
type System string

const (
	// Metric is °C with wind in m/s.
	Metric System = "metric"
	// Imperial is °F with wind in mph.
	Imperial System = "imperial"
)

// Parse returns the unit system named by s, defaulting to Metric for
// anything unrecognised.
func Parse(s string) System {
	switch System(strings.ToLower(strings.TrimSpace(s))) {
	case Imperial:
		return Imperial
	default:
		return Metric
	}
}

// IsMetric reports whether s is the metric system.
func (s System) IsMetric() bool { return s != Imperial }

func (s System) String() string { return string(s) }

const (
	kmhPerMs  = 3.6
	mphPerMs  = 2.23694
	mphPerKmh = 0.621371
)

// CelsiusToFahrenheit converts a temperature.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// KmhToMs converts km/h to m/s.
func KmhToMs(v float64) float64 { return v / kmhPerMs }

// MsToMph converts m/s to mph.
func MsToMph(v float64) float64 { return v * mphPerMs }

// KmhToMph converts km/h to mph.
func KmhToMph(v float64) float64 { return v * mphPerKmh }

// Round1 rounds to one decimal place.
func Round1(v float64) float64 { return math.Round(v*10) / 10 }

// Round2 rounds to two decimal places.
func Round2(v float64) float64 { return math.Round(v*100) / 100 }

// Fraction converts a probability reported as a percentage (0..100) into
// the 0..1 range OpenWeather uses for pop.
func Fraction(pct float64) float64 {
	return pct / 100
}

// Temperature converts a Celsius reading into the requested system.
func (s System) Temperature(c float64) float64 {
	if s.IsMetric() {
		return c
	}
	return CelsiusToFahrenheit(c)
}

// WindFromKmh converts a km/h wind speed into the requested system,
// rounded to one decimal.
func (s System) WindFromKmh(v float64) float64 {
	ms := KmhToMs(v)
	if s.IsMetric() {
		return Round1(ms)
	}
	return Round1(MsToMph(ms))
}
