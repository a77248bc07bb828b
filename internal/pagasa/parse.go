package pagasa

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kjstillabower/klima-weather-proxy/internal/models"
)

// Source and Note are attached to every scraped forecast.
const (
	Source = "PAGASA"
	Note   = "PAGASA data scraped from public forecast. For official advisories, visit pagasa.dost.gov.ph"
)

// ErrNothingExtracted means the page was fetched but none of the expected
// fields could be found, usually because the markup changed.
var ErrNothingExtracted = errors.New("no forecast fields could be extracted from PAGASA page")

var (
	issuedRe   = regexp.MustCompile(`(?i)^issued\s*(?:at|on)?\s*:?\s*(.*)$`)
	synopsisRe = regexp.MustCompile(`(?i)^synopsis\s*:?\s*(.*)$`)
	dayRe      = regexp.MustCompile(`(?i)^(today|tomorrow)\b\s*:?\s*(.*)$`)
	fieldRe    = regexp.MustCompile(`(?i)^(weather|conditions?|sky|winds?|advisory|warning)\s*:\s*(.+)$`)
	tempRe     = regexp.MustCompile(`(?i)temp[a-z]*\s*(?:range)?\s*:?\s*(-?\d{1,2}(?:\.\d+)?)\s*(?:°\s*c?)?\s*(?:-|–|to)\s*(-?\d{1,2}(?:\.\d+)?)`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// Parse extracts region's forecast from the PAGASA forecast page. Fields
// that cannot be found are left empty; ErrNothingExtracted is returned only
// when nothing at all was found.
func Parse(page []byte, region string, now time.Time) (*models.RegionalForecast, error) {
	lines := visibleLines(page)

	out := &models.RegionalForecast{
		Source:    Source,
		Region:    region,
		FetchedAt: now.Unix(),
		Note:      Note,
	}
	out.IssuedAt = labelled(lines, issuedRe)
	out.Synopsis = labelled(lines, synopsisRe)

	block := regionBlock(lines, region)
	if block != nil {
		out.Forecast.Today, out.Forecast.Tomorrow = days(block)
	}

	if out.IssuedAt == "" && out.Synopsis == "" && out.Forecast.Today == nil && out.Forecast.Tomorrow == nil {
		return nil, ErrNothingExtracted
	}
	return out, nil
}

// visibleLines flattens the page into trimmed, non-empty text lines. Block
// level elements end a line; script and style content is dropped.
func visibleLines(page []byte) []string {
	z := html.NewTokenizer(bytes.NewReader(page))
	var lines []string
	var cur strings.Builder
	flush := func() {
		line := strings.TrimSpace(spaceRe.ReplaceAllString(cur.String(), " "))
		if line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}
	hidden := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			flush()
			return lines
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch a {
			case atom.Script, atom.Style, atom.Noscript:
				if tt == html.StartTagToken {
					hidden++
				} else if tt == html.EndTagToken && hidden > 0 {
					hidden--
				}
			}
			if breaksLine(a) {
				flush()
			}
		case html.TextToken:
			if hidden == 0 {
				cur.Write(z.Text())
				cur.WriteByte(' ')
			}
		}
	}
}

func breaksLine(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Tr, atom.Td, atom.Th, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Section, atom.Article, atom.Header, atom.Footer, atom.Dt, atom.Dd:
		return true
	}
	return false
}

// labelled returns the value after the first line matching re. A heading
// with no inline value takes the following line.
func labelled(lines []string, re *regexp.Regexp) string {
	for i, line := range lines {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			return v
		}
		if i+1 < len(lines) {
			return lines[i+1]
		}
	}
	return ""
}

// regionBlock returns the lines between region's heading and the next
// region heading.
func regionBlock(lines []string, region string) []string {
	start := -1
	for i, line := range lines {
		if strings.EqualFold(line, region) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}
	end := len(lines)
	others := regionNames()
	for i := start; i < len(lines) && end == len(lines); i++ {
		for _, name := range others {
			if !strings.EqualFold(name, region) && strings.EqualFold(lines[i], name) {
				end = i
				break
			}
		}
	}
	return lines[start:end]
}

// days splits a region block on its Today/Tomorrow markers. A block
// without markers is treated as today's forecast.
func days(block []string) (today, tomorrow *models.RegionalDay) {
	sections := map[string][]string{}
	current := "today"
	for _, line := range block {
		if m := dayRe.FindStringSubmatch(line); m != nil {
			current = strings.ToLower(m[1])
			if rest := strings.TrimSpace(m[2]); rest != "" {
				sections[current] = append(sections[current], rest)
			}
			continue
		}
		sections[current] = append(sections[current], line)
	}
	return day(sections["today"]), day(sections["tomorrow"])
}

func day(lines []string) *models.RegionalDay {
	if len(lines) == 0 {
		return nil
	}
	d := &models.RegionalDay{}
	found := false
	for _, line := range lines {
		if m := tempRe.FindStringSubmatch(line); m != nil && d.TempMin == nil {
			lo, errLo := strconv.ParseFloat(m[1], 64)
			hi, errHi := strconv.ParseFloat(m[2], 64)
			if errLo == nil && errHi == nil {
				if lo > hi {
					lo, hi = hi, lo
				}
				d.TempMin, d.TempMax = models.Float(lo), models.Float(hi)
				found = true
			}
			continue
		}
		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		switch label := strings.ToLower(m[1]); {
		case strings.HasPrefix(label, "wind"):
			if d.Wind == "" {
				d.Wind = value
				found = true
			}
		case label == "advisory" || label == "warning":
			if d.Advisory == nil && !noAdvisory(value) {
				d.Advisory = models.String(value)
				found = true
			}
		default:
			if d.Condition == "" {
				d.Condition = value
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return d
}

func noAdvisory(v string) bool {
	switch strings.ToLower(strings.Trim(v, " .")) {
	case "", "none", "n/a", "-", "no advisory":
		return true
	}
	return false
}
