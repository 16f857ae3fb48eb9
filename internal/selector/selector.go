// Package selector scores an observed item from three normalized signals
// and decides whether it is worth keeping.
package selector

import (
	"math"
	"strings"
)

// Label is the parallel category assigned next to the keep decision.
type Label string

const (
	LabelViral  Label = "viral"
	LabelLatent Label = "latent"
	LabelIgnore Label = "ignore"
)

// Features are the selection inputs, each in [0,1].
type Features struct {
	Rhythm         float64 `json:"rhythm"`
	Banality       float64 `json:"banality"`
	ViralPotential float64 `json:"viral_potential"`
}

// ScoreSet parameterizes one evaluation of the scoring formula.
type ScoreSet struct {
	WeightBanality float64
	WeightViral    float64
	WeightRhythm   float64
	RhythmTarget   float64
	Threshold      float64
}

// Config holds the authoritative score set and the two category sets.
type Config struct {
	Keep   ScoreSet
	Viral  ScoreSet
	Latent ScoreSet
}

// DefaultConfig returns the stock weights.
func DefaultConfig() Config {
	return Config{
		Keep:   ScoreSet{WeightBanality: 0.35, WeightViral: 0.35, WeightRhythm: 0.30, RhythmTarget: 0.45, Threshold: 0.65},
		Viral:  ScoreSet{WeightBanality: 0.30, WeightViral: 0.45, WeightRhythm: 0.25, RhythmTarget: 0.50, Threshold: 0.72},
		Latent: ScoreSet{WeightBanality: 0.45, WeightViral: 0.20, WeightRhythm: 0.35, RhythmTarget: 0.38, Threshold: 0.60},
	}
}

// Settings is the read side of the tunables registry.
type Settings interface {
	Float(key string) float64
}

// ConfigFromSettings reads every weight, target and threshold from s.
func ConfigFromSettings(s Settings) Config {
	return Config{
		Keep: ScoreSet{
			WeightBanality: s.Float("weight_banality"),
			WeightViral:    s.Float("weight_viral"),
			WeightRhythm:   s.Float("weight_rhythm"),
			RhythmTarget:   s.Float("rhythm_target"),
			Threshold:      s.Float("score_threshold"),
		},
		Viral: ScoreSet{
			WeightBanality: s.Float("viral_w_banality"),
			WeightViral:    s.Float("viral_w_viral"),
			WeightRhythm:   s.Float("viral_w_rhythm"),
			RhythmTarget:   s.Float("viral_rhythm_target"),
			Threshold:      s.Float("threshold_viral"),
		},
		Latent: ScoreSet{
			WeightBanality: s.Float("latent_w_banality"),
			WeightViral:    s.Float("latent_w_viral"),
			WeightRhythm:   s.Float("latent_w_rhythm"),
			RhythmTarget:   s.Float("latent_rhythm_target"),
			Threshold:      s.Float("threshold_latent"),
		},
	}
}

// Decision is the explainable output of Decide.
type Decision struct {
	Score       float64  `json:"score"`
	Keep        bool     `json:"keep"`
	Reason      string   `json:"reason"`
	Threshold   float64  `json:"threshold"`
	Details     Features `json:"details"`
	ScoreViral  float64  `json:"score_viral"`
	ScoreLatent float64  `json:"score_latent"`
	Label       Label    `json:"label"`
}

// Decide scores f under cfg. The category label never influences Keep.
func Decide(f Features, cfg Config) Decision {
	f = Features{Rhythm: clamp01(f.Rhythm), Banality: clamp01(f.Banality), ViralPotential: clamp01(f.ViralPotential)}

	score := evaluate(f, cfg.Keep)
	threshold := clamp01(cfg.Keep.Threshold)
	keep := score >= threshold

	viral := evaluate(f, cfg.Viral)
	latent := evaluate(f, cfg.Latent)
	label := LabelIgnore
	switch {
	case viral >= clamp01(cfg.Viral.Threshold):
		label = LabelViral
	case latent >= clamp01(cfg.Latent.Threshold):
		label = LabelLatent
	}

	return Decision{
		Score:       score,
		Keep:        keep,
		Reason:      reason(f),
		Threshold:   threshold,
		Details:     Features{Rhythm: round3(f.Rhythm), Banality: round3(f.Banality), ViralPotential: round3(f.ViralPotential)},
		ScoreViral:  viral,
		ScoreLatent: latent,
		Label:       label,
	}
}

func evaluate(f Features, s ScoreSet) float64 {
	target := clamp01(s.RhythmTarget)
	v := clamp01(s.WeightBanality)*(1-f.Banality) +
		clamp01(s.WeightViral)*f.ViralPotential +
		clamp01(s.WeightRhythm)*(1-math.Abs(f.Rhythm-target))
	return clamp01(v)
}

func reason(f Features) string {
	parts := make([]string, 0, 3)
	if f.Banality >= 0.6 {
		parts = append(parts, "everyday anomaly")
	}
	if f.Rhythm < 0.45 {
		parts = append(parts, "slow rhythm")
	} else {
		parts = append(parts, "dynamic rhythm")
	}
	if f.ViralPotential >= 0.6 {
		parts = append(parts, "viral potential")
	}
	return strings.Join(parts, " + ")
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
