package notify

import (
	"fmt"
	"strings"

	"github.com/p-blackswan/reel-scout/internal/selector"
	"github.com/p-blackswan/reel-scout/internal/state"
	"github.com/p-blackswan/reel-scout/internal/temporal"
)

// Caption renders the preview text for an item. The temporal block is
// appended only for retained items and only when analysis is given.
func Caption(it *state.Item, analysis *temporal.Analysis) string {
	var header string
	switch {
	case it.Label == selector.LabelLatent:
		header = "💎 LATENT ITEM"
	case it.Label == selector.LabelViral || it.Score >= it.Threshold:
		header = "🔥 ALREADY VIRAL"
	default:
		header = "🎬 ITEM"
	}

	d := it.ScoreDetails
	lines := []string{
		header,
		fmt.Sprintf("Latent score: %.2f", it.ScoreLatent),
		fmt.Sprintf("Viral score: %.2f", it.ScoreViral),
		rhythmLabel(d.Rhythm),
		banalityLabel(d.Banality),
		potentialLabel(d.ViralPotential),
	}
	if it.ExternalRef != "" {
		lines = append(lines, "🔗 "+it.ExternalRef)
	}
	lines = append(lines, fmt.Sprintf("📈 Score: %.2f (threshold %.2f)", it.Score, it.Threshold))
	if it.Reason != "" {
		lines = append(lines, "🧠 Reason: "+it.Reason)
	}
	lines = append(lines, fmt.Sprintf("🧾 Details: rhythm=%.2f banality=%.2f viral_potential=%.2f", d.Rhythm, d.Banality, d.ViralPotential))
	if it.Title != "" {
		lines = append(lines, "📝 Title: "+it.Title)
	}
	if len(it.Hashtags) > 0 {
		lines = append(lines, strings.Join(it.Hashtags, " "))
	}
	if acts := metaStrings(it.Meta["device_actions"]); len(acts) > 0 {
		lines = append(lines, "📱 Device: "+strings.Join(acts, ", "))
	}
	lines = append(lines, fmt.Sprintf("✅ Status: %s", it.Status), "🆔 "+it.ID)

	out := strings.Join(lines, "\n")
	retained := it.Status == state.StatusPending || it.Status == state.StatusApproved
	if analysis != nil && retained {
		if block := temporal.FormatBlock(*analysis); block != "" {
			out += "\n\n" + block
		}
	}
	return out
}

func rhythmLabel(v float64) string {
	if v >= 0.50 {
		return "Dynamic rhythm"
	}
	return "Slow rhythm"
}

func banalityLabel(v float64) string {
	if v >= 0.55 {
		return "High banality"
	}
	return "Low banality"
}

func potentialLabel(v float64) string {
	if v >= 0.75 {
		return "High viral potential"
	}
	return "Low viral potential"
}

// metaStrings reads a string list that may have round-tripped through JSON.
func metaStrings(v any) []string {
	switch xs := v.(type) {
	case []string:
		return xs
	case []any:
		out := make([]string, 0, len(xs))
		for _, x := range xs {
			if s, ok := x.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
