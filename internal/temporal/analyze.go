package temporal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Item metadata keys read by AnalyzeMeta.
const (
	MetaOCRSamples = "ocr_samples"
	MetaOCRMetrics = "ocr_metrics"
	MetaOCRText    = "ocr_text"
	MetaAgeText    = "ocr_age_text"
	MetaAgeSeconds = "age_seconds"
)

// Input is what Analyze works from.
type Input struct {
	CapturedAt time.Time
	Text       string
	Counters   Counters
	Source     string
}

// Analysis is derived on demand and never persisted as new state.
type Analysis struct {
	CapturedAt  time.Time  `json:"captured_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	AgeMinutes  *float64   `json:"age_minutes,omitempty"`
	Counters    Counters   `json:"counters"`
	Velocities  Velocities `json:"velocities"`
	STV         *float64   `json:"stv,omitempty"`
	Category    Category   `json:"category"`
	Source      string     `json:"source"`
	AgeText     string     `json:"age_text,omitempty"`
	Notes       []string   `json:"notes,omitempty"`
}

// Analyze computes age, velocities, STV and category. STV is only produced
// when the age is explicit and likes, comments and shares (or sends) are
// all known.
func Analyze(in Input, cfg Config) Analysis {
	a := Analysis{
		CapturedAt: in.CapturedAt,
		Counters:   in.Counters,
		Source:     in.Source,
		AgeText:    in.Text,
	}
	if a.Source == "" {
		a.Source = "none"
	}

	age, ok := ParsePublishAge(in.Text, in.CapturedAt)
	switch {
	case !ok:
		a.Notes = append(a.Notes, fmt.Sprintf("age unavailable (%s)", age.Source))
	case age.Minutes <= 0:
		a.AgeMinutes = &age.Minutes
		a.PublishedAt = &age.PublishedAt
		a.Notes = append(a.Notes, "STV not computable (age is zero)")
	default:
		a.AgeMinutes = &age.Minutes
		a.PublishedAt = &age.PublishedAt
		c := in.Counters
		if c.Likes != nil && c.Comments != nil && (c.Shares != nil || c.Sends != nil) {
			a.Velocities = ComputeVelocities(c, age.Minutes)
			if stv, ok := ComputeSTV(a.Velocities); ok {
				a.STV = &stv
			}
		} else {
			a.Notes = append(a.Notes, "incomplete counters")
		}
	}

	a.Category = Classify(a.AgeMinutes, a.STV, a.Counters.Likes, a.Counters.Comments, cfg.Thresholds)
	return a
}

// AnalyzeMeta analyzes an item from the artifacts stored in its metadata.
// Repeated text samples are voted first, then explicit counters, then the
// single recognized text. An age_seconds entry overrides any text age.
func AnalyzeMeta(meta map[string]any, capturedAt time.Time, cfg Config) Analysis {
	text := firstString(meta, MetaAgeText, MetaOCRText)
	var samples []string
	if raw, ok := meta[MetaOCRSamples].([]any); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok && strings.TrimSpace(str) != "" {
				samples = append(samples, str)
			}
		}
	} else if raw, ok := meta[MetaOCRSamples].([]string); ok {
		samples = raw
	}

	in := Input{CapturedAt: capturedAt, Text: text, Source: "none"}
	var notes []string

	switch {
	case len(samples) > 0:
		extracted := make([]Counters, 0, len(samples))
		for _, s := range samples {
			extracted = append(extracted, ExtractCounters(s))
			if in.Text == "" {
				if _, ok := ParsePublishAge(s, capturedAt); ok {
					in.Text = s
				}
			}
		}
		if in.Text == "" {
			in.Text = samples[0]
		}
		in.Counters, notes = Vote(extracted, cfg.Limits)
		in.Source = MetaOCRSamples
	case meta[MetaOCRMetrics] != nil:
		if m, ok := meta[MetaOCRMetrics].(map[string]any); ok {
			for _, f := range Fields {
				if v, ok := asCount(m[string(f)]); ok {
					in.Counters.Set(f, Int(v))
				}
			}
			if in.Counters.Known() > 0 {
				in.Source = MetaOCRMetrics
			}
		}
	}
	if in.Source == "none" && text != "" {
		in.Counters = ExtractCounters(text)
		if in.Counters.Known() > 0 {
			in.Source = MetaOCRText
		}
	}

	if secs, ok := asCount(meta[MetaAgeSeconds]); ok && secs >= 0 {
		in.Text = fmt.Sprintf("%s=%d\n%s", AgeOverrideKey, secs, in.Text)
	}

	a := Analyze(in, cfg)
	a.Notes = append(a.Notes, notes...)
	return a
}

func firstString(meta map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := meta[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func asCount(v any) (int64, bool) {
	switch n := v.(type) {
	case nil, bool:
		return 0, false
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || math.Abs(n) > MaxCount {
			return 0, false
		}
		return int64(n), true
	case string:
		if c, ok := ParseCompactCount(n); ok {
			return c, true
		}
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, n)
		if digits == "" {
			return 0, false
		}
		c, err := strconv.ParseInt(digits, 10, 64)
		return c, err == nil && c <= MaxCount
	}
	return 0, false
}

// FormatBlock renders the analysis as a compact caption block. Unknown
// values print as N/A.
func FormatBlock(a Analysis) string {
	age := "unavailable"
	if a.AgeMinutes != nil {
		if *a.AgeMinutes < 120 {
			age = fmt.Sprintf("%d min ago", int(math.Round(*a.AgeMinutes)))
		} else {
			age = fmt.Sprintf("%.1f h ago", *a.AgeMinutes/60)
		}
	}

	c := a.Counters
	parts := []string{"❤️ " + fmtCount(c.Likes), "💬 " + fmtCount(c.Comments)}
	if c.Sends != nil {
		parts = append(parts, "✈️ "+fmtCount(c.Sends))
	}
	if c.Saves != nil {
		parts = append(parts, "🔖 "+fmtCount(c.Saves))
	}
	if c.Remixes != nil {
		parts = append(parts, "🔁 "+fmtCount(c.Remixes))
	}
	if c.Shares != nil && (c.Sends == nil || *c.Shares != *c.Sends) {
		parts = append(parts, "📤 "+fmtCount(c.Shares))
	}
	if c.Views != nil {
		parts = append(parts, "👁️ "+fmtCount(c.Views))
	}

	v := a.Velocities
	lines := []string{
		"📅 Published: " + age,
		strings.Join(parts, " | "),
		"",
		"⚡ Velocity",
		fmt.Sprintf("❤️ %s likes/min", fmtRate(v.Likes, 1)),
		fmt.Sprintf("💬 %s comments/min", fmtRate(v.Comments, 2)),
		fmt.Sprintf("✈️ %s sends/min", fmtRate(v.Sends, 2)),
		fmt.Sprintf("🔖 %s saves/min", fmtRate(v.Saves, 2)),
		fmt.Sprintf("🔁 %s remixes/min", fmtRate(v.Remixes, 2)),
		fmt.Sprintf("📤 %s shares/min", fmtRate(v.Shares, 2)),
		"",
		"🧮 STV: " + fmtRate(a.STV, 2),
		"📌 Status: " + a.Category.Display(),
	}
	if len(a.Notes) > 0 {
		lines = append(lines, fmt.Sprintf("ℹ️ Notes: %s (source: %s)", strings.Join(a.Notes, "; "), a.Source))
	}
	return strings.Join(lines, "\n")
}

func fmtCount(v *int64) string {
	if v == nil {
		return "N/A"
	}
	s := strconv.FormatInt(*v, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func fmtRate(v *float64, decimals int) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', decimals, 64)
}
