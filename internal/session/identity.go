package session

import (
	"crypto/sha256"
	"encoding/binary"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/p-blackswan/reel-scout/internal/mobile"
	"github.com/p-blackswan/reel-scout/internal/selector"
)

const shortcodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var reelShortcodeRe = regexp.MustCompile(`/reel/([A-Za-z0-9_-]{5,})`)

// StableShortcode derives an 11 character base62 code from key.
func StableShortcode(key string) string {
	sum := sha256.Sum256([]byte(key))
	n := binary.BigEndian.Uint64(sum[:8])
	base := uint64(len(shortcodeAlphabet))

	var b strings.Builder
	for i := 0; i < 11; i++ {
		b.WriteByte(shortcodeAlphabet[n%base])
		n /= base
	}
	return b.String()
}

// ShortcodeFromRef extracts the shortcode of a reel URL.
func ShortcodeFromRef(ref string) string {
	if m := reelShortcodeRe.FindStringSubmatch(ref); m != nil {
		return m[1]
	}
	return ""
}

// ItemID resolves the identity of an observation. The content fingerprint
// wins so the same content maps to the same id whether or not its
// reference was captured; without one the captured shortcode is used, and
// as a last resort a random key.
func ItemID(contentKey, ref string) string {
	if contentKey != "" {
		return "vid_" + StableShortcode(contentKey)
	}
	if code := ShortcodeFromRef(ref); code != "" {
		return "vid_" + code
	}
	return "vid_" + StableShortcode(uuid.NewString())
}

// contentKeyOf returns the latest fingerprint carried by events.
func contentKeyOf(events []mobile.Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if k := events[i].ContentKey(); k != "" {
			return k
		}
	}
	return ""
}

// Features derives the selection inputs from one step's events. Short
// pauses read as a dynamic rhythm; an open lifts viral potential.
func Features(events []mobile.Event) selector.Features {
	var (
		total  float64
		pauses int
		opened bool
	)
	for _, ev := range events {
		switch ev.Kind {
		case mobile.KindPause:
			total += ev.Seconds
			pauses++
		case mobile.KindOpen:
			opened = true
		}
	}
	avg := total / float64(max(1, pauses))
	rhythm := 0.9 - clamp(0, 1, (avg-0.5)/3.5)*0.7

	viral := 0.55
	if opened {
		viral += 0.25
	}
	return selector.Features{
		Rhythm:         clamp(0, 1, rhythm),
		Banality:       0.55,
		ViralPotential: clamp(0, 1, viral),
	}
}

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
