package dialogue

import (
	"strings"
)

// Tone is the emotional register of an NPC line.
type Tone int

const (
	ToneNeutral Tone = iota
	ToneFriendly
	ToneHostile
	ToneRespectful
	ToneDismissive
	TonePhilosophical
	ToneUrgent
	ToneSecretive
)

var toneNames = [...]string{"neutral", "friendly", "hostile", "respectful", "dismissive", "philosophical", "urgent", "secretive"}

func (t Tone) String() string {
	if t < 0 || int(t) >= len(toneNames) {
		return "neutral"
	}
	return toneNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t Tone) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tone) UnmarshalText(b []byte) error {
	*t = ParseTone(string(b))
	return nil
}

// toneKeywords is checked in order; the first match wins.
var toneKeywords = []struct {
	tone  Tone
	words []string
}{
	{ToneHostile, []string{"hostile", "angry", "aggressive", "threatening", "furious"}},
	{ToneDismissive, []string{"dismissive", "cold", "bored", "curt", "annoyed"}},
	{ToneUrgent, []string{"urgent", "alarmed", "worried", "panicked", "excited", "afraid"}},
	{ToneSecretive, []string{"secretive", "mysterious", "whisper", "cautious", "guarded"}},
	{TonePhilosophical, []string{"philosophical", "thoughtful", "contemplative", "wise", "mystical", "serene"}},
	{ToneRespectful, []string{"respectful", "formal", "polite", "reverent", "courteous"}},
	{ToneFriendly, []string{"friendly", "warm", "happy", "cheerful", "kind", "welcoming"}},
}

// ParseTone maps a free-text tone tag to a Tone. Unrecognised text is neutral.
func ParseTone(s string) Tone {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "" {
		return ToneNeutral
	}
	for _, tk := range toneKeywords {
		for _, w := range tk.words {
			if strings.Contains(lower, w) {
				return tk.tone
			}
		}
	}
	return ToneNeutral
}
