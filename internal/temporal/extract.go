package temporal

import (
	"regexp"
	"sort"
	"strings"
)

// RightColumnTag marks the text recognized from the fixed-order icon column
// on the right of the player. Sections end at a blank line followed by the
// next "[" tag.
const RightColumnTag = "[OCR_RIGHT_COLUMN]\n"

var (
	countTokenRe = regexp.MustCompile(`\b\d[\d .,\x{00A0}\x{202F}]*[kKmM]?\b`)
	clockRe      = regexp.MustCompile(`\b\d{1,2}:\d{2}\b`)
	resolutionRe = regexp.MustCompile(`(?i)\b\d+\s*[x×]\s*\d+\b`)
	suffixRe     = regexp.MustCompile(`[kKmM]`)

	labelPatterns = []struct {
		field Field
		re    *regexp.Regexp
	}{
		{FieldLikes, regexp.MustCompile(`(?i)(\d[\d .,]*[kKmM]?)\s*(?:j['’ ]?aime|likes?)\b`)},
		{FieldShares, regexp.MustCompile(`(?i)(\d[\d .,]*[kKmM]?)\s*(?:partages?|shares?)\b`)},
		{FieldSends, regexp.MustCompile(`(?i)(\d[\d .,]*[kKmM]?)\s*(?:envois?|envoy[ée]s?|sent|sends?)\b`)},
		{FieldSaves, regexp.MustCompile(`(?i)(\d[\d .,]*[kKmM]?)\s*(?:enregistr(?:ements?)?|sauvegard(?:es?)?|saved|saves?)\b`)},
		{FieldRemixes, regexp.MustCompile(`(?i)(\d[\d .,]*[kKmM]?)\s*(?:remix(?:ages?)?|remixes?)\b`)},
		{FieldComments, regexp.MustCompile(`(?i)(\d[\d .,]*[kKmM]?)\s*(?:commentaires?|comments?)\b`)},
		{FieldViews, regexp.MustCompile(`(?i)(\d[\d .,]*[kKmM]?)\s*(?:vues?|views?)\b`)},
	}

	// Icon column order, top to bottom.
	columnOrder = []Field{FieldLikes, FieldComments, FieldRemixes, FieldSends, FieldSaves}

	columnGlyphs = []struct {
		field  Field
		glyphs []string
	}{
		{FieldLikes, []string{"❤", "♥", "🤍"}},
		{FieldComments, []string{"💬"}},
		{FieldRemixes, []string{"🔁", "🔄", "♻"}},
		{FieldSends, []string{"✈", "📤", "➤"}},
		{FieldSaves, []string{"🔖"}},
	}

	layoutOrder = []Field{FieldLikes, FieldComments, FieldSends, FieldSaves, FieldRemixes}
)

// ExtractCounters reads engagement counters from recognized text. It tries,
// in order, the icon column section, label-adjacent numbers, and a layout
// heuristic over bare numbers. Nothing is guessed when the text has no
// usable number.
func ExtractCounters(raw string) Counters {
	if strings.TrimSpace(raw) == "" {
		return Counters{}
	}
	if section := extractSection(raw, RightColumnTag); strings.TrimSpace(section) != "" {
		return fromRightColumn(section)
	}

	var c Counters
	for _, lp := range labelPatterns {
		if m := lp.re.FindStringSubmatch(raw); m != nil {
			if v, ok := ParseCompactCount(m[1]); ok {
				c.Set(lp.field, Int(v))
			}
		}
	}
	if c.Known() > 0 {
		return c
	}
	return fromLayout(raw)
}

func extractSection(text, tag string) string {
	i := strings.Index(text, tag)
	if i < 0 {
		return ""
	}
	rest := text[i+len(tag):]
	if j := strings.Index(rest, "\n\n["); j >= 0 {
		return rest[:j]
	}
	return rest
}

type columnRow struct {
	field  Field
	values []int64
}

// fromRightColumn maps icon rows to counters. Rows with a recognized glyph
// go to that glyph's counter; the rest fill the remaining slots in column
// order. shares aliases sends; views are never read from the column.
func fromRightColumn(section string) Counters {
	var rows []columnRow
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		vals := countTokens(line)
		if len(vals) == 0 {
			continue
		}
		rows = append(rows, columnRow{field: glyphField(line), values: vals})
	}
	if len(rows) == 0 {
		if vals := countTokens(section); len(vals) > 0 {
			rows = append(rows, columnRow{values: vals})
		}
	}

	var c Counters
	var loose []int64
	for _, r := range rows {
		if r.field != "" && c.Get(r.field) == nil {
			c.Set(r.field, Int(r.values[0]))
			loose = append(loose, r.values[1:]...)
			continue
		}
		loose = append(loose, r.values...)
	}

	loose = dedupeSequential(loose)
	for _, f := range columnOrder {
		if len(loose) == 0 {
			break
		}
		if c.Get(f) == nil {
			c.Set(f, Int(loose[0]))
			loose = loose[1:]
		}
	}
	c.Shares = c.Sends
	return c
}

func glyphField(line string) Field {
	prefix := line
	if i := strings.IndexAny(line, "0123456789"); i >= 0 {
		prefix = line[:i]
	}
	for _, g := range columnGlyphs {
		for _, glyph := range g.glyphs {
			if strings.Contains(prefix, glyph) {
				return g.field
			}
		}
	}
	return ""
}

// countTokens returns the counts in s in reading order, skipping clock
// times and percentages.
func countTokens(s string) []int64 {
	var out []int64
	for _, loc := range countTokenRe.FindAllStringIndex(s, -1) {
		tok := strings.TrimSpace(s[loc[0]:loc[1]])
		if tok == "" || isPercentOrClock(s, loc) {
			continue
		}
		if v, ok := ParseCompactCount(tok); ok {
			out = append(out, v)
		}
	}
	return dedupeSequential(out)
}

func isPercentOrClock(s string, loc []int) bool {
	if loc[1] < len(s) && (s[loc[1]] == '%' || s[loc[1]] == ':') {
		return true
	}
	return loc[0] > 0 && s[loc[0]-1] == ':'
}

func dedupeSequential(vals []int64) []int64 {
	out := vals[:0:0]
	for _, v := range vals {
		if len(out) == 0 || out[len(out)-1] != v {
			out = append(out, v)
		}
	}
	return out
}

// fromLayout assigns unlabeled numbers largest first. With four or more
// candidates a clear outlier is taken as views.
func fromLayout(raw string) Counters {
	scrubbed := clockRe.ReplaceAllString(raw, " ")
	scrubbed = resolutionRe.ReplaceAllString(scrubbed, " ")

	seen := make(map[int64]bool)
	var values []int64
	for _, loc := range countTokenRe.FindAllStringIndex(scrubbed, -1) {
		tok := strings.TrimSpace(scrubbed[loc[0]:loc[1]])
		if tok == "" || isPercentOrClock(scrubbed, loc) {
			continue
		}
		v, ok := ParseCompactCount(tok)
		if !ok {
			continue
		}
		if v < 10 && !suffixRe.MatchString(tok) {
			continue
		}
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}

	var c Counters
	if len(values) == 0 {
		return c
	}
	sort.Slice(values, func(i, j int) bool { return values[i] > values[j] })

	if len(values) >= 4 {
		v0, v1 := values[0], values[1]
		if v1 > 0 && (v0 >= 3*v1 || (v0 >= 1_000_000 && v1 < 1_000_000)) {
			c.Views = Int(v0)
			values = values[1:]
		}
	}
	for i, f := range layoutOrder {
		if i >= len(values) {
			break
		}
		c.Set(f, Int(values[i]))
	}
	c.Shares = c.Sends
	return c
}
