package selector

import (
	"fmt"
	"strings"
)

const maxTitleReason = 70

var baseTags = []string{"#reels", "#analysis", "#scout"}

// Title builds the caption headline for a kept item.
func Title(score float64, reason string) string {
	base := strings.TrimSpace(reason)
	if base == "" {
		base = "Selection detected"
	}
	if r := []rune(base); len(r) > maxTitleReason {
		base = string(r[:maxTitleReason-1]) + "…"
	}
	return fmt.Sprintf("%s (score %.2f)", base, score)
}

// Hashtags maps score details to a short, stable tag list (at most 8).
func Hashtags(d Features) []string {
	tags := append([]string(nil), baseTags...)
	add := func(tag string) {
		for _, t := range tags {
			if t == tag {
				return
			}
		}
		tags = append(tags, tag)
	}

	switch {
	case d.Rhythm < 0.4:
		add("#slowpace")
	case d.Rhythm > 0.7:
		add("#fastpace")
	}
	if d.Banality > 0.65 {
		add("#everyday")
	}
	if d.ViralPotential > 0.65 {
		add("#viral")
	}
	if len(tags) > 8 {
		tags = tags[:8]
	}
	return tags
}
