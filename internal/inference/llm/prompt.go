package llm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cory-johannsen/npcfleet/internal/inference"
)

var personas = map[string]string{
	"ashvattha":    "You belong to the Ashvattha, keepers of the sacred tree. You are contemplative, reverent of tradition, and speak in measured, thoughtful sentences.",
	"vaikuntha":    "You belong to the Vaikuntha, an orderly faction devoted to efficiency. You are precise and logical and dislike wasted words.",
	"yugastriders": "You belong to the Yuga Striders, restless wanderers who distrust authority. You are passionate and blunt.",
	"neutral":      "You are an ordinary inhabitant with no faction loyalty. You are practical and friendly toward strangers.",
}

func persona(faction string) string {
	if p, ok := personas[strings.ToLower(strings.TrimSpace(faction))]; ok {
		return p
	}
	return personas["neutral"]
}

// DialogueSystemPrompt is the system prompt for a faction's dialogue.
func DialogueSystemPrompt(faction string) string {
	return persona(faction) + `
You are a non-player character in a game. Reply to the player in one to three sentences, in character.
Respond with a single JSON object and nothing else, using exactly these keys:
{"response": string, "emotional_tone": one of "neutral","friendly","hostile","respectful","dismissive","philosophical","urgent","secretive", "suggested_player_responses": array of up to 3 short strings, "confidence": number between 0 and 1}`
}

// BehaviorSystemPrompt is the system prompt for a faction's behavior choice.
func BehaviorSystemPrompt(faction string) string {
	return persona(faction) + `
You decide what a non-player character does next. Pick exactly one of the offered actions.
Respond with a single JSON object and nothing else, using exactly these keys:
{"selected_action": string, "confidence": number between 0 and 1, "reasoning": short string, "action_confidences": array of {"action": string, "confidence": number}}`
}

// DialoguePrompt renders the user turn for a dialogue request.
func DialoguePrompt(req inference.DialogueRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Situation: %s\n", orNone(req.Context))
	fmt.Fprintf(&b, "Your feelings toward the player: %s\n", formatScalars(req.EmotionalState))
	if len(req.RecentEvents) > 0 {
		fmt.Fprintf(&b, "Recent events: %s\n", strings.Join(req.RecentEvents, "; "))
	}
	if req.Urgency >= 0.5 {
		fmt.Fprintf(&b, "Urgency: %.2f. Keep it short.\n", req.Urgency)
	}
	if req.PlayerMessage == "" {
		b.WriteString("The player has just approached you. Greet them.")
	} else {
		fmt.Fprintf(&b, "The player says: %q", req.PlayerMessage)
	}
	return b.String()
}

// BehaviorPrompt renders the user turn for a behavior request.
func BehaviorPrompt(req inference.BehaviorRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s.\n", orNone(req.NPCType))
	fmt.Fprintf(&b, "Situation: %s\n", orNone(req.Situation))
	fmt.Fprintf(&b, "World state: %s\n", formatScalars(req.WorldState))
	fmt.Fprintf(&b, "Offered actions: %s", strings.Join(req.AvailableActions, ", "))
	if req.TimeConstraint > 0 {
		fmt.Fprintf(&b, "\nDecide within %d ms.", req.TimeConstraint.Milliseconds())
	}
	return b.String()
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

// formatScalars renders m as sorted key=value pairs.
func formatScalars(m map[string]float64) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.2f", k, m[k])
	}
	return strings.Join(parts, ", ")
}
