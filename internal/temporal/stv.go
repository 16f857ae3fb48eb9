package temporal

import (
	"fmt"
	"math"
	"sort"
)

// Category is the fixed virality classification.
type Category string

const (
	CategoryAlreadyExploded Category = "already_exploded"
	CategoryPreViral        Category = "pre_viral"
	CategoryPromising       Category = "promising"
	CategoryUnderperforming Category = "underperforming"
	CategoryNormal          Category = "normal"
)

// Display returns the operator-facing label.
func (c Category) Display() string {
	switch c {
	case CategoryAlreadyExploded:
		return "🔥 Already exploded"
	case CategoryPreViral:
		return "🚀 Pre-viral (test phase)"
	case CategoryPromising:
		return "🟠 Promising"
	case CategoryUnderperforming:
		return "🟢 Underperforming"
	default:
		return "🟡 Normal"
	}
}

// SanitizeLimits bound what a plausible view count looks like.
type SanitizeLimits struct {
	MaxViewsLikeRatio float64 `yaml:"max_views_like_ratio"`
	AbsMaxViews       int64   `yaml:"abs_max_views"`
}

// Thresholds drive Classify.
type Thresholds struct {
	PreViralMin      float64 `yaml:"pre_viral_min"`
	PreViralAgeMax   float64 `yaml:"pre_viral_age_max"`
	PromisingMin     float64 `yaml:"promising_min"`
	UnderperfMax     float64 `yaml:"underperf_max"`
	ExplodedAgeMin   float64 `yaml:"exploded_age_min"`
	ExplodedLikes    int64   `yaml:"exploded_likes"`
	ExplodedComments int64   `yaml:"exploded_comments"`
}

// Config groups the analyzer tunables.
type Config struct {
	Limits     SanitizeLimits `yaml:"limits"`
	Thresholds Thresholds     `yaml:"thresholds"`
}

// DefaultConfig returns the stock limits and thresholds.
func DefaultConfig() Config {
	return Config{
		Limits: SanitizeLimits{MaxViewsLikeRatio: 500, AbsMaxViews: 200_000_000},
		Thresholds: Thresholds{
			PreViralMin:      3.0,
			PreViralAgeMax:   120,
			PromisingMin:     1.2,
			UnderperfMax:     0.25,
			ExplodedAgeMin:   360,
			ExplodedLikes:    100_000,
			ExplodedComments: 5_000,
		},
	}
}

// Settings is the read side of the tunables registry.
type Settings interface {
	Float(key string) float64
}

// ConfigFromSettings reads limits and thresholds from s.
func ConfigFromSettings(s Settings) Config {
	return Config{
		Limits: SanitizeLimits{
			MaxViewsLikeRatio: s.Float("stv_max_views_like_ratio"),
			AbsMaxViews:       int64(s.Float("stv_abs_max_views")),
		},
		Thresholds: Thresholds{
			PreViralMin:      s.Float("stv_previral_min"),
			PreViralAgeMax:   s.Float("stv_previral_age_max"),
			PromisingMin:     s.Float("stv_promising_min"),
			UnderperfMax:     s.Float("stv_underperf_max"),
			ExplodedAgeMin:   s.Float("stv_exploded_age_min"),
			ExplodedLikes:    int64(s.Float("stv_exploded_likes")),
			ExplodedComments: int64(s.Float("stv_exploded_comments")),
		},
	}
}

// Aggregate votes each counter across samples by median. A counter stays
// unknown when no sample produced it.
func Aggregate(samples []Counters) Counters {
	var out Counters
	for _, f := range Fields {
		var vals []int64
		for _, s := range samples {
			if v := s.Get(f); v != nil {
				vals = append(vals, *v)
			}
		}
		if m, ok := median(vals); ok {
			out.Set(f, Int(m))
		}
	}
	return out
}

func median(vals []int64) (int64, bool) {
	if len(vals) == 0 {
		return 0, false
	}
	sorted := append([]int64(nil), vals...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	a, b := sorted[mid-1], sorted[mid]
	return a + int64(math.Round(float64(b-a)/2)), true
}

// Sanitize drops a views value that is non-positive, above the absolute
// cap, too large relative to likes, or smaller than likes. It returns the
// reasons for anything dropped.
func Sanitize(c Counters, limits SanitizeLimits) (Counters, []string) {
	if c.Views == nil {
		return c, nil
	}
	ratio := limits.MaxViewsLikeRatio
	if ratio <= 0 {
		ratio = 500
	}
	absMax := limits.AbsMaxViews
	if absMax <= 0 {
		absMax = 200_000_000
	}

	views := *c.Views
	var reason string
	switch {
	case views <= 0:
		reason = "drop_views<=0"
	case views > absMax:
		reason = fmt.Sprintf("drop_views>abs_max(%d)", absMax)
	case c.Likes != nil && *c.Likes > 0 && float64(views)/float64(*c.Likes) > ratio:
		reason = fmt.Sprintf("drop_views_ratio>%d", int64(ratio))
	case c.Likes != nil && *c.Likes > 0 && views < *c.Likes:
		reason = "drop_views<likes"
	default:
		return c, nil
	}
	c.Views = nil
	return c, []string{reason}
}

// Vote aggregates samples, sanitizes the result and aliases shares to sends
// when only sends is known.
func Vote(samples []Counters, limits SanitizeLimits) (Counters, []string) {
	c, reasons := Sanitize(Aggregate(samples), limits)
	if c.Shares == nil && c.Sends != nil {
		c.Shares = Int(*c.Sends)
	}
	return c, reasons
}

// ComputeVelocity returns counter per minute. It is undefined for a
// non-positive age.
func ComputeVelocity(counter int64, ageMinutes float64) (float64, bool) {
	if ageMinutes <= 0 || math.IsNaN(ageMinutes) {
		return 0, false
	}
	return float64(counter) / ageMinutes, true
}

// Velocities are per-minute rates; nil means unknown.
type Velocities struct {
	Likes    *float64 `json:"likes,omitempty"`
	Comments *float64 `json:"comments,omitempty"`
	Shares   *float64 `json:"shares,omitempty"`
	Sends    *float64 `json:"sends,omitempty"`
	Saves    *float64 `json:"saves,omitempty"`
	Remixes  *float64 `json:"remixes,omitempty"`
}

// ComputeVelocities derives a rate for each known counter. The share rate
// falls back to sends when shares is unknown.
func ComputeVelocities(c Counters, ageMinutes float64) Velocities {
	rate := func(v *int64) *float64 {
		if v == nil {
			return nil
		}
		r, ok := ComputeVelocity(*v, ageMinutes)
		if !ok {
			return nil
		}
		return &r
	}
	shares := c.Shares
	if shares == nil {
		shares = c.Sends
	}
	return Velocities{
		Likes:    rate(c.Likes),
		Comments: rate(c.Comments),
		Shares:   rate(shares),
		Sends:    rate(c.Sends),
		Saves:    rate(c.Saves),
		Remixes:  rate(c.Remixes),
	}
}

// ComputeSTV blends per-minute rates into one score. The legacy formula
// needs likes, comments and shares; when any of sends, saves or remixes is
// known it is averaged 50/50 with the enriched formula, whose missing terms
// are omitted rather than zero-filled.
func ComputeSTV(v Velocities) (float64, bool) {
	if v.Likes == nil || v.Comments == nil || v.Shares == nil {
		return 0, false
	}
	likes, comments, shares := *v.Likes, *v.Comments, *v.Shares
	stv := 0.45*likes + 0.40*shares + 0.15*comments

	if v.Sends == nil && v.Saves == nil && v.Remixes == nil {
		return stv, true
	}
	enriched := 0.30*likes + 0.10*comments
	if v.Sends != nil {
		enriched += 0.30 * *v.Sends
	} else {
		enriched += 0.30 * shares
	}
	if v.Saves != nil {
		enriched += 0.20 * *v.Saves
	}
	if v.Remixes != nil {
		enriched += 0.10 * *v.Remixes
	}
	// Legacy and enriched scores are weighted equally.
	return 0.5*stv + 0.5*enriched, true
}

// Classify applies the ordered category rules. Unknown age or STV always
// yields CategoryNormal.
func Classify(ageMinutes, stv *float64, likes, comments *int64, th Thresholds) Category {
	if ageMinutes == nil || stv == nil {
		return CategoryNormal
	}
	age, score := *ageMinutes, *stv
	var l, c int64
	if likes != nil {
		l = *likes
	}
	if comments != nil {
		c = *comments
	}

	switch {
	case age > th.ExplodedAgeMin && (l >= th.ExplodedLikes || c >= th.ExplodedComments):
		return CategoryAlreadyExploded
	case age < th.PreViralAgeMax && score >= th.PreViralMin:
		return CategoryPreViral
	case score >= th.PromisingMin:
		return CategoryPromising
	case score <= th.UnderperfMax:
		return CategoryUnderperforming
	}
	return CategoryNormal
}
