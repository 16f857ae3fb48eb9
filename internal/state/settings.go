package state

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	serrors "github.com/p-blackswan/reel-scout/internal/errors"
)

type settingKind int

const (
	kindFloat settingKind = iota
	kindInt
	kindBool
)

type settingDef struct {
	kind     settingKind
	def      float64
	min, max float64
}

func unit(def float64) settingDef { return settingDef{kind: kindFloat, def: def, min: 0, max: 1} }

var registry = map[string]settingDef{
	"score_threshold":      unit(0.65),
	"weight_banality":      unit(0.35),
	"weight_viral":         unit(0.35),
	"weight_rhythm":        unit(0.30),
	"rhythm_target":        unit(0.45),
	"threshold_viral":      unit(0.72),
	"viral_w_banality":     unit(0.30),
	"viral_w_viral":        unit(0.45),
	"viral_w_rhythm":       unit(0.25),
	"viral_rhythm_target":  unit(0.50),
	"threshold_latent":     unit(0.60),
	"latent_w_banality":    unit(0.45),
	"latent_w_viral":       unit(0.20),
	"latent_w_rhythm":      unit(0.35),
	"latent_rhythm_target": unit(0.38),

	"scroll_pause_seconds":      {kind: kindFloat, def: 0.8, min: 0.05, max: 15},
	"scroll_pause_min_seconds":  {kind: kindFloat, def: 0, min: 0, max: 15},
	"scroll_pause_max_seconds":  {kind: kindFloat, def: 0, min: 0, max: 15},
	"scroll_pause_jitter_ratio": {kind: kindFloat, def: 0.35, min: 0, max: 0.9},
	"open_watch_min_seconds":    {kind: kindFloat, def: 1.5, min: 0.1, max: 60},
	"open_watch_max_seconds":    {kind: kindFloat, def: 4.0, min: 0.1, max: 60},
	"loop_sleep_seconds":        {kind: kindFloat, def: 2.0, min: 0.2, max: 30},

	"risk_safety_enabled":     {kind: kindBool, def: 1, min: 0, max: 1},
	"target_sent_per_session": {kind: kindInt, def: 10, min: 0, max: 500},

	"stv_max_views_like_ratio": {kind: kindFloat, def: 500, min: 10, max: 1e6},
	"stv_abs_max_views":        {kind: kindFloat, def: 200_000_000, min: 1e4, max: 2e9},
	"stv_previral_min":         {kind: kindFloat, def: 3.0, min: 0, max: 1e6},
	"stv_promising_min":        {kind: kindFloat, def: 1.2, min: 0, max: 1e6},
	"stv_underperf_max":        {kind: kindFloat, def: 0.25, min: 0, max: 1e6},
	"stv_exploded_age_min":     {kind: kindFloat, def: 360, min: 0, max: 1e6},
	"stv_exploded_likes":       {kind: kindFloat, def: 100_000, min: 0, max: 1e12},
	"stv_exploded_comments":    {kind: kindFloat, def: 5_000, min: 0, max: 1e12},
	"stv_previral_age_max":     {kind: kindFloat, def: 120, min: 0, max: 1e6},
}

// Settings is the persisted map of runtime tunables. Values may be stored
// as numbers, bools or strings; reads are typed and clamped.
type Settings map[string]any

// Keys lists every known setting in lexical order.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Known reports whether key is a registered setting.
func Known(key string) bool {
	_, ok := registry[key]
	return ok
}

// Defaults returns a fresh settings map with every default.
func Defaults() Settings {
	s := make(Settings, len(registry))
	for k, d := range registry {
		s[k] = d.value(d.def)
	}
	return s
}

// EnsureDefaults fills missing keys in s and reports whether it changed.
func EnsureDefaults(s Settings) bool {
	changed := false
	for k, d := range registry {
		if _, ok := s[k]; !ok {
			s[k] = d.value(d.def)
			changed = true
		}
	}
	return changed
}

func (d settingDef) value(v float64) any {
	switch d.kind {
	case kindBool:
		return v != 0
	case kindInt:
		return int(v)
	}
	return v
}

func (d settingDef) clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return d.def
	}
	return math.Min(d.max, math.Max(d.min, v))
}

// Float returns key as a clamped float. Unknown keys read as 0.
func (s Settings) Float(key string) float64 {
	d, ok := registry[key]
	if !ok {
		return 0
	}
	v, ok := toFloat(s[key])
	if !ok {
		return d.def
	}
	return d.clamp(v)
}

// Int returns key rounded to an int.
func (s Settings) Int(key string) int {
	return int(math.Round(s.Float(key)))
}

// Bool returns key as a bool.
func (s Settings) Bool(key string) bool {
	return s.Float(key) != 0
}

// Set parses raw for key, clamps it and stores the typed value.
func (s Settings) Set(key, raw string) (any, error) {
	d, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key %q", serrors.ErrInvalidSetting, key)
	}
	v, ok := toFloat(strings.TrimSpace(raw))
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a valid value for %s", serrors.ErrInvalidSetting, raw, key)
	}
	out := d.value(d.clamp(v))
	s[key] = out
	return out, nil
}

// ApplyDelta adds delta to key and stores the clamped result.
func (s Settings) ApplyDelta(key string, delta float64) (float64, error) {
	d, ok := registry[key]
	if !ok {
		return 0, fmt.Errorf("%w: unknown key %q", serrors.ErrInvalidSetting, key)
	}
	if d.kind == kindBool {
		return 0, fmt.Errorf("%w: %s is a toggle", serrors.ErrInvalidSetting, key)
	}
	v := d.clamp(s.Float(key) + delta)
	if d.kind == kindInt {
		v = math.Round(v)
	} else {
		v = math.Round(v*1e6) / 1e6
	}
	s[key] = d.value(v)
	return v, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "true", "on", "yes":
			return 1, true
		case "false", "off", "no":
			return 0, true
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(n), ",", "."), 64)
		return f, err == nil
	}
	return 0, false
}
