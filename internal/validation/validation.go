// Package validation checks and normalizes endpoint query parameters. Every
// error returned here maps to a 400 response.
package validation

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ErrMissingCoordinates is returned when lat or lon is absent.
var ErrMissingCoordinates = errors.New("missing lat/lon parameters")

// ErrInvalidCoordinates is returned when lat or lon is not a finite number.
var ErrInvalidCoordinates = errors.New("invalid lat/lon parameters")

// ErrCoordinatesOutOfRange is returned when lat is outside [-90, 90] or lon outside [-180, 180].
var ErrCoordinatesOutOfRange = errors.New("lat/lon out of range")

// ErrQueryEmpty is returned when the place query is empty or whitespace-only after trim.
var ErrQueryEmpty = errors.New("missing q parameter")

// ErrQueryTooLong is returned when the place query exceeds the maximum length.
var ErrQueryTooLong = errors.New("q parameter too long")

// ErrQueryInvalidChars is returned when the place query contains disallowed characters.
var ErrQueryInvalidChars = errors.New("q parameter contains invalid characters")

// ErrRegionInvalid is returned when a region alias contains disallowed characters.
var ErrRegionInvalid = errors.New("invalid region parameter")

var messages = map[error]string{
	ErrMissingCoordinates:    "Missing lat/lon parameters",
	ErrInvalidCoordinates:    "Invalid lat/lon parameters",
	ErrCoordinatesOutOfRange: "Latitude must be within [-90, 90] and longitude within [-180, 180]",
	ErrQueryEmpty:            "Missing q parameter",
	ErrQueryTooLong:          "Query parameter q is too long",
	ErrQueryInvalidChars:     "Query parameter q contains invalid characters",
	ErrRegionInvalid:         "Invalid region parameter",
}

// Message returns the client-facing {error} text for a validation error.
func Message(err error) string {
	for sentinel, msg := range messages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return "Invalid request"
}

// MaxQueryLen bounds a geocoding query, in runes.
const MaxQueryLen = 100

// Coordinates parses the lat and lon query values.
func Coordinates(lat, lon string) (float64, float64, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" || lon == "" {
		return 0, 0, ErrMissingCoordinates
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil || math.IsNaN(la) || math.IsInf(la, 0) {
		return 0, 0, ErrInvalidCoordinates
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil || math.IsNaN(lo) || math.IsInf(lo, 0) {
		return 0, 0, ErrInvalidCoordinates
	}
	if la < -90 || la > 90 || lo < -180 || lo > 180 {
		return 0, 0, ErrCoordinatesOutOfRange
	}
	return la, lo, nil
}

// Query trims a free-text place name, enforces maxLen (in runes, 0 for no
// bound) and restricts it to letters, digits, space and the punctuation
// found in place names: comma, hyphen, period and apostrophe.
// Lowercasing for cache keys is left to the service layer.
func Query(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	r := []rune(s)
	if len(r) == 0 {
		return "", ErrQueryEmpty
	}
	if maxLen > 0 && len(r) > maxLen {
		return "", ErrQueryTooLong
	}
	for _, c := range r {
		if !isPlaceRune(c) {
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

func isPlaceRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.Is(unicode.Mn, r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// Region trims a region alias. Empty is allowed and selects the default
// region; otherwise only letters, digits, hyphen and space are accepted.
func Region(input string) (string, error) {
	s := strings.TrimSpace(input)
	if len(s) > MaxQueryLen {
		return "", ErrRegionInvalid
	}
	for _, c := range s {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '-' && c != ' ' {
			return "", ErrRegionInvalid
		}
	}
	return s, nil
}
