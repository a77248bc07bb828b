package models

import "encoding/json"

// Location is a geocoding result. Raw carries the upstream match verbatim.
type Location struct {
	Name    string          `json:"name"`
	Lat     *float64        `json:"lat"`
	Lon     *float64        `json:"lon"`
	Country *string         `json:"country"`
	State   *string         `json:"state"`
	Raw     json.RawMessage `json:"raw"`
	Source  string          `json:"source"`
}

// Coordinates is a bare lat/lon pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
