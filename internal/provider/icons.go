package provider

func dayNight(isDay bool) string {
	if isDay {
		return "d"
	}
	return "n"
}

// wmoIcon maps a WMO weather interpretation code (Open-Meteo) onto the
// OpenWeather icon set. The mapping is many-to-one and approximate.
func wmoIcon(code int, isDay bool) string {
	d := dayNight(isDay)
	switch code {
	case 0:
		return "01" + d
	case 1:
		return "02" + d
	case 2:
		return "03" + d
	case 3:
		return "04" + d
	case 45, 48:
		return "50" + d
	case 51, 53, 55, 56, 57, 61, 63, 65, 66, 67, 80, 81, 82:
		return "10" + d
	case 71, 73, 75, 77, 85, 86:
		return "13" + d
	case 95, 96, 99:
		return "11" + d
	}
	return "04" + d
}

// wmoDescription is the short WMO label used for Open-Meteo conditions.
func wmoDescription(code int) string {
	switch code {
	case 0:
		return "Clear sky"
	case 1:
		return "Mainly clear"
	case 2:
		return "Partly cloudy"
	case 3:
		return "Overcast"
	case 45, 48:
		return "Fog"
	case 51, 53, 55:
		return "Drizzle"
	case 56, 57:
		return "Freezing drizzle"
	case 61, 63, 65:
		return "Rain"
	case 66, 67:
		return "Freezing rain"
	case 71, 73, 75, 77:
		return "Snow"
	case 80, 81, 82:
		return "Rain showers"
	case 85, 86:
		return "Snow showers"
	case 95, 96, 99:
		return "Thunderstorm"
	}
	return ""
}

var weatherAPIIcons = map[int]string{
	1000: "01",
	1003: "02",
	1006: "03", 1009: "03",
	1030: "50", 1135: "50", 1147: "50",
	1063: "10", 1150: "10", 1153: "10", 1168: "10", 1171: "10", 1180: "10", 1183: "10", 1186: "10",
	1189: "10", 1192: "10", 1195: "10", 1198: "10", 1201: "10", 1240: "10", 1243: "10", 1246: "10",
	1066: "13", 1069: "13", 1072: "13", 1114: "13", 1117: "13", 1204: "13", 1207: "13", 1210: "13",
	1213: "13", 1216: "13", 1219: "13", 1222: "13", 1225: "13", 1237: "13", 1249: "13", 1252: "13",
	1255: "13", 1258: "13", 1261: "13", 1264: "13",
	1087: "11", 1273: "11", 1276: "11", 1279: "11", 1282: "11",
}

// weatherAPIIcon maps a WeatherAPI.com condition code. Unknown codes are overcast.
func weatherAPIIcon(code int, isDay bool) string {
	base, ok := weatherAPIIcons[code]
	if !ok {
		base = "04"
	}
	return base + dayNight(isDay)
}

// weatherbitIcon maps a Weatherbit code. The snow band (600-699) is checked
// before the wider rain band it sits inside. pod is Weatherbit's part of
// day: "d" or "n".
func weatherbitIcon(code int, pod string) string {
	d := "d"
	if pod == "n" {
		d = "n"
	}
	switch {
	case code >= 200 && code < 300:
		return "11" + d
	case code >= 600 && code < 700:
		return "13" + d
	case code >= 300 && code < 600:
		return "10" + d
	case code >= 700 && code < 800:
		return "50" + d
	case code == 800 || code == 801:
		return "01" + d
	case code == 802 || code == 803:
		return "02" + d
	case code >= 804 && code < 900:
		return "04" + d
	}
	return "04" + d
}

var tomorrowDescriptions = map[int]string{
	0:    "Unknown",
	1000: "Clear",
	1001: "Cloudy",
	1100: "Mostly Clear",
	1101: "Partly Cloudy",
	1102: "Mostly Cloudy",
	2000: "Fog",
	2100: "Light Fog",
	3000: "Light Wind",
	3001: "Wind",
	3002: "Strong Wind",
	4000: "Drizzle",
	4001: "Rain",
	4200: "Light Rain",
	4201: "Heavy Rain",
	5000: "Snow",
	5001: "Flurries",
	5100: "Light Snow",
	5101: "Heavy Snow",
	6000: "Freezing Drizzle",
	6001: "Freezing Rain",
	6200: "Light Freezing Rain",
	6201: "Heavy Freezing Rain",
	7000: "Ice Pellets",
	7101: "Heavy Ice Pellets",
	7102: "Light Ice Pellets",
	8000: "Thunderstorm",
}

func tomorrowDescription(code int) string {
	if s, ok := tomorrowDescriptions[code]; ok {
		return s
	}
	return "Unknown"
}

// tomorrowIcon maps a Tomorrow.io weather code. Unknown codes are clear.
func tomorrowIcon(code int, isDay bool) string {
	d := dayNight(isDay)
	switch {
	case code == 1000:
		return "01" + d
	case code == 1100 || code == 1101:
		return "02" + d
	case code == 1102:
		return "03" + d
	case code == 1001:
		return "04" + d
	case code >= 2000 && code <= 2100:
		return "50" + d
	case code == 4000 || code == 4200:
		return "09" + d
	case code == 4001 || code == 4201:
		return "10" + d
	case code >= 5000 && code <= 7102:
		return "13" + d
	case code == 8000:
		return "11" + d
	}
	return "01" + d
}

var visualCrossingIcons = map[string]string{
	"clear-day":             "01d",
	"clear-night":           "01n",
	"partly-cloudy-day":     "02d",
	"partly-cloudy-night":   "02n",
	"cloudy":                "04d",
	"fog":                   "50d",
	"wind":                  "50d",
	"rain":                  "10d",
	"snow":                  "13d",
	"snow-showers-day":      "13d",
	"snow-showers-night":    "13n",
	"thunder-rain":          "11d",
	"thunder-showers-day":   "11d",
	"thunder-showers-night": "11n",
	"showers-day":           "09d",
	"showers-night":         "09n",
}

// visualCrossingIcon maps a Visual Crossing icon name. Unknown names are clear day.
func visualCrossingIcon(name string) string {
	if icon, ok := visualCrossingIcons[name]; ok {
		return icon
	}
	return "01d"
}
