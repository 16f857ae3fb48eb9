package temporal

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

// Age is an explicitly stated publish age.
type Age struct {
	Minutes     float64   `json:"minutes"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
}

// maxAgeMinutes is the largest age a time.Duration can represent.
var maxAgeMinutes = float64(math.MaxInt64/int64(time.Minute))

// AgeOverrideKey is the token an age lookup injects into recognized text.
const AgeOverrideKey = "AGE_SECONDS"

type ageUnit int

const (
	unitMinutes ageUnit = iota
	unitHours
	unitDays
	unitWeeks
)

var unitMinutesPer = map[ageUnit]float64{
	unitMinutes: 1,
	unitHours:   60,
	unitDays:    1440,
	unitWeeks:   10080,
}

var unitNames = map[ageUnit]string{
	unitMinutes: "minutes",
	unitHours:   "hours",
	unitDays:    "days",
	unitWeeks:   "weeks",
}

var (
	ageOverrideRe = regexp.MustCompile(`\b` + AgeOverrideKey + `\s*=\s*(\d{1,10})\b`)

	relativeAgePatterns = []struct {
		re   *regexp.Regexp
		unit ageUnit
	}{
		{regexp.MustCompile(`(?i)\bil y a\s+(\d+)\s*(?:min|minute|minutes)\b`), unitMinutes},
		{regexp.MustCompile(`(?i)\bil y a\s+(\d+)\s*(?:h|heure|heures)\b`), unitHours},
		{regexp.MustCompile(`(?i)\bil y a\s+(\d+)\s*(?:j|jour|jours)\b`), unitDays},
		{regexp.MustCompile(`(?i)\bil y a\s+(\d+)\s*(?:sem|semaine|semaines)\b`), unitWeeks},

		{regexp.MustCompile(`(?i)(?:^|[^0-9A-Za-z])(?:·|•)?\s*(\d+)\s*(?:min|mins)\b`), unitMinutes},
		{regexp.MustCompile(`(?i)(?:^|[^0-9A-Za-z])(?:·|•)?\s*(\d+)\s*(?:h|heures?)\b`), unitHours},
		{regexp.MustCompile(`(?i)(?:^|[^0-9A-Za-z])(?:·|•)?\s*(\d+)\s*(?:j|jours?)\b`), unitDays},
		{regexp.MustCompile(`(?i)(?:^|[^0-9A-Za-z])(?:·|•)?\s*(\d+)\s*(?:sem|semaines?)\b`), unitWeeks},

		{regexp.MustCompile(`(?i)\b(\d+)\s*(?:minute|minutes)\s+ago\b`), unitMinutes},
		{regexp.MustCompile(`(?i)\b(\d+)\s*(?:hour|hours)\s+ago\b`), unitHours},
		{regexp.MustCompile(`(?i)\b(\d+)\s*(?:day|days)\s+ago\b`), unitDays},
		{regexp.MustCompile(`(?i)\b(\d+)\s*(?:week|weeks)\s+ago\b`), unitWeeks},
	}
)

// ParsePublishAge accepts only explicit number+unit phrases ("il y a 12 min",
// "3 hours ago") or an injected AGE_SECONDS=<n> token, which takes
// precedence. The second return value is false when nothing matched; no age
// is ever approximated.
func ParsePublishAge(raw string, capturedAt time.Time) (Age, bool) {
	if raw == "" {
		return Age{Source: "no_text"}, false
	}

	if m := ageOverrideRe.FindStringSubmatch(raw); m != nil {
		if secs, err := strconv.ParseInt(m[1], 10, 64); err == nil && secs >= 0 && secs <= math.MaxInt64/int64(time.Second) {
			return Age{
				Minutes:     float64(secs) / 60,
				PublishedAt: capturedAt.Add(-time.Duration(secs) * time.Second),
				Source:      "matched:age_seconds",
			}, true
		}
	}

	for _, p := range relativeAgePatterns {
		m := p.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		minutes := float64(n) * unitMinutesPer[p.unit]
		if minutes > maxAgeMinutes {
			continue
		}
		return Age{
			Minutes:     minutes,
			PublishedAt: capturedAt.Add(-time.Duration(minutes * float64(time.Minute))),
			Source:      "matched:" + unitNames[p.unit],
		}, true
	}
	return Age{Source: "no_match"}, false
}
