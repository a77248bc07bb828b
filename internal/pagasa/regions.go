// Package pagasa extracts the regional forecast from PAGASA's public
// forecast page. PAGASA publishes no API, so extraction is best effort over
// the page's visible text and breaks when the markup changes.
package pagasa

import "strings"

// DefaultRegion is used for unknown or empty region aliases.
const DefaultRegion = "Metro Manila"

var regionAliases = map[string]string{
	"metro-manila": "Metro Manila",
	"ncr":          "Metro Manila",
	"manila":       "Metro Manila",
	"quezon-city":  "Metro Manila",
	"cebu":         "Central Visayas",
	"davao":        "Davao Region",
	"baguio":       "Cordillera Administrative Region",
}

// ResolveRegion maps a caller-supplied alias to a PAGASA region name.
func ResolveRegion(alias string) string {
	if name, ok := regionAliases[strings.ToLower(strings.TrimSpace(alias))]; ok {
		return name
	}
	return DefaultRegion
}

// CacheKey returns the cache key of a region's forecast.
func CacheKey(region string) string {
	return "pagasa:" + strings.ToLower(region)
}

// regionNames are the distinct region headings, used to find where one
// region's block ends and the next begins.
func regionNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, name := range regionAliases {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}
