// Package temporal turns noisy on-screen text into engagement counters and a
// publish age, then derives per-minute velocities and a composite virality
// score (STV) with a fixed category.
package temporal

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Field names one engagement counter.
type Field string

const (
	FieldLikes    Field = "likes"
	FieldComments Field = "comments"
	FieldSends    Field = "sends"
	FieldSaves    Field = "saves"
	FieldRemixes  Field = "remixes"
	FieldShares   Field = "shares"
	FieldViews    Field = "views"
)

// Fields lists every counter in a stable order.
var Fields = []Field{FieldLikes, FieldComments, FieldSends, FieldSaves, FieldRemixes, FieldShares, FieldViews}

// Counters holds the seven engagement counters. A nil field is unknown,
// which is distinct from zero.
type Counters struct {
	Likes    *int64 `json:"likes,omitempty" yaml:"likes,omitempty"`
	Comments *int64 `json:"comments,omitempty" yaml:"comments,omitempty"`
	Sends    *int64 `json:"sends,omitempty" yaml:"sends,omitempty"`
	Saves    *int64 `json:"saves,omitempty" yaml:"saves,omitempty"`
	Remixes  *int64 `json:"remixes,omitempty" yaml:"remixes,omitempty"`
	Shares   *int64 `json:"shares,omitempty" yaml:"shares,omitempty"`
	Views    *int64 `json:"views,omitempty" yaml:"views,omitempty"`
}

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }

// Get returns the value of f, nil when unknown.
func (c Counters) Get(f Field) *int64 {
	switch f {
	case FieldLikes:
		return c.Likes
	case FieldComments:
		return c.Comments
	case FieldSends:
		return c.Sends
	case FieldSaves:
		return c.Saves
	case FieldRemixes:
		return c.Remixes
	case FieldShares:
		return c.Shares
	case FieldViews:
		return c.Views
	}
	return nil
}

// Set assigns f. A nil v marks the counter unknown.
func (c *Counters) Set(f Field, v *int64) {
	switch f {
	case FieldLikes:
		c.Likes = v
	case FieldComments:
		c.Comments = v
	case FieldSends:
		c.Sends = v
	case FieldSaves:
		c.Saves = v
	case FieldRemixes:
		c.Remixes = v
	case FieldShares:
		c.Shares = v
	case FieldViews:
		c.Views = v
	}
}

// Known reports how many counters have a value.
func (c Counters) Known() int {
	n := 0
	for _, f := range Fields {
		if c.Get(f) != nil {
			n++
		}
	}
	return n
}

var (
	thousandsRe  = regexp.MustCompile(`^\d{1,3}(?:[.,]\d{3})+$`)
	compactRe    = regexp.MustCompile(`^(\d+(?:[.,]\d+)?)([kKmM])?$`)
	looseCountRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)(\s*[kKmM])?`)
)

// MaxCount bounds any parsed counter. Larger values come from merged OCR
// tokens, not real engagement.
const MaxCount = 1_000_000_000_000

// ParseCompactCount parses counts such as "1 240", "12,500", "1.2K" or
// "1,2M". Without a suffix a separator followed by exactly three digits is
// a thousands separator; otherwise it is a decimal mark.
func ParseCompactCount(s string) (int64, bool) {
	s = strings.NewReplacer("\u202f", " ", "\u00a0", " ").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	compact := strings.Join(strings.Fields(s), "")

	if thousandsRe.MatchString(compact) {
		n, err := strconv.ParseInt(strings.NewReplacer(".", "", ",", "").Replace(compact), 10, 64)
		if err != nil || n > MaxCount {
			return 0, false
		}
		return n, true
	}

	var num, suffix string
	if m := compactRe.FindStringSubmatch(compact); m != nil {
		num, suffix = m[1], m[2]
	} else if m := looseCountRe.FindStringSubmatch(s); m != nil {
		num, suffix = m[1], strings.TrimSpace(m[2])
	} else {
		return 0, false
	}

	f, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(suffix) {
	case "k":
		f *= 1_000
	case "m":
		f *= 1_000_000
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f > MaxCount {
		return 0, false
	}
	return int64(math.Round(f)), true
}
