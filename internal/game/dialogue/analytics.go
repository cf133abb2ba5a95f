package dialogue

import (
	"fmt"
	"sort"
	"strings"
)

// topicKeywords maps a conversation topic to words that signal it.
var topicKeywords = map[string][]string{
	"trade":    {"trade", "buy", "sell", "price", "coin", "goods"},
	"danger":   {"danger", "threat", "attack", "beast", "raid"},
	"history":  {"history", "ancient", "past", "ruins", "ancestors"},
	"lore":     {"legend", "myth", "lore", "sacred", "prophecy"},
	"family":   {"family", "mother", "father", "child", "home"},
	"security": {"guard", "patrol", "watch", "gate", "security"},
	"faith":    {"tree", "temple", "faith", "spirit", "prayer"},
	"progress": {"efficient", "machine", "progress", "order", "system"},
	"freedom":  {"freedom", "rebel", "chains", "liberty", "fight"},
	"rumors":   {"rumor", "heard", "whisper", "gossip"},
}

// ExtractTopics returns the topics text touches on, sorted.
func ExtractTopics(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for topic, words := range topicKeywords {
		for _, w := range words {
			if strings.Contains(lower, w) {
				out = append(out, topic)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// FrequentTopics returns up to n topics ordered by how many exchanges
// mention them, ties broken by name.
func FrequentTopics(exchanges []Exchange, n int) []string {
	counts := make(map[string]int)
	for _, e := range exchanges {
		for _, t := range e.Topics {
			counts[t]++
		}
	}
	topics := make([]string, 0, len(counts))
	for t := range counts {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		if counts[topics[i]] != counts[topics[j]] {
			return counts[topics[i]] > counts[topics[j]]
		}
		return topics[i] < topics[j]
	})
	if n >= 0 && len(topics) > n {
		topics = topics[:n]
	}
	return topics
}

// Tension scores how strained a conversation is, in [0,1]: the share of NPC
// turns in a hostile or dismissive tone, raised by negative impacts.
func Tension(exchanges []Exchange) float64 {
	var npcTurns, tense int
	negative := 0.0
	for _, e := range exchanges {
		if e.Impact < 0 {
			negative -= e.Impact
		}
		if e.IsPlayer() {
			continue
		}
		npcTurns++
		if e.Tone == ToneHostile || e.Tone == ToneDismissive {
			tense++
		}
	}
	score := negative
	if npcTurns > 0 {
		score += float64(tense) / float64(npcTurns)
	}
	if score > 1 {
		score = 1
	}
	return score
}

// EmotionalProgression lists the tones of the NPC's turns in order.
func EmotionalProgression(exchanges []Exchange) []Tone {
	var out []Tone
	for _, e := range exchanges {
		if !e.IsPlayer() {
			out = append(out, e.Tone)
		}
	}
	return out
}

// Complexity scores the average message length in words against a
// twenty-word line, capped at 1.
func Complexity(exchanges []Exchange) float64 {
	if len(exchanges) == 0 {
		return 0
	}
	words := 0
	for _, e := range exchanges {
		words += len(strings.Fields(e.Message))
	}
	v := float64(words) / float64(len(exchanges)) / 20
	if v > 1 {
		v = 1
	}
	return v
}

// QualityScore rates a conversation in [0,1]. Length, topic variety, and
// positive impact raise it; tension lowers it.
func QualityScore(exchanges []Exchange) float64 {
	if len(exchanges) == 0 {
		return 0
	}
	length := float64(len(exchanges)) / 10
	if length > 1 {
		length = 1
	}
	variety := float64(len(FrequentTopics(exchanges, -1))) / 5
	if variety > 1 {
		variety = 1
	}
	positive := 0.0
	for _, e := range exchanges {
		if e.Impact > 0 {
			positive += e.Impact
		}
	}
	if positive > 1 {
		positive = 1
	}
	score := 0.3*length + 0.2*variety + 0.2*positive + 0.3*(1-Tension(exchanges))
	return clampUnit(score)
}

// Summarize renders a one-line account of a conversation.
func Summarize(exchanges []Exchange) string {
	if len(exchanges) == 0 {
		return "no exchanges"
	}
	npcTurns := len(EmotionalProgression(exchanges))
	parts := []string{fmt.Sprintf("%d exchanges (%d from npc)", len(exchanges), npcTurns)}
	if topics := FrequentTopics(exchanges, 3); len(topics) > 0 {
		parts = append(parts, "topics: "+strings.Join(topics, ", "))
	}
	if tones := EmotionalProgression(exchanges); len(tones) > 0 {
		parts = append(parts, fmt.Sprintf("tone %s -> %s", tones[0], tones[len(tones)-1]))
	}
	parts = append(parts, fmt.Sprintf("tension %.2f", Tension(exchanges)))
	return strings.Join(parts, "; ")
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
