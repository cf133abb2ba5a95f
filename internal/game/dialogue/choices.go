package dialogue

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/npcfleet/internal/game/npc"
)

// Texts of the stock choices.
const (
	ContinueText = "Continue the conversation"
	QuestionText = "Could you tell me more?"
	ExitText     = "I should go. Farewell."
)

// DefaultChoices returns the stock choices: continue, ask a question, and
// the polite exit, in that order.
func DefaultChoices() []Choice {
	return []Choice{
		{Text: ContinueText, Type: ChoiceNeutral, Impact: 0},
		{Text: QuestionText, Type: ChoiceQuestioning, Impact: 0.05},
		exitChoice(),
	}
}

func exitChoice() Choice {
	return Choice{Text: ExitText, Type: ChoicePoliteExit, Impact: 0}
}

// FactionChoices returns the choices an NPC's faction adds.
func FactionChoices(f npc.Faction) []Choice {
	switch f {
	case npc.FactionAshvattha:
		return []Choice{
			{Text: "What does the sacred tree teach?", Type: ChoicePhilosophical, Impact: 0.10},
			{Text: "I honor your traditions.", Type: ChoiceRespectful, Impact: 0.15},
		}
	case npc.FactionVaikuntha:
		return []Choice{
			{Text: "What is the most efficient path forward?", Type: ChoiceLogical, Impact: 0.10},
			{Text: "Let's be efficient about this.", Type: ChoiceEfficiencyFocused, Impact: 0.12},
		}
	case npc.FactionYugaStriders:
		return []Choice{
			{Text: "I stand with you.", Type: ChoiceSupportive, Impact: 0.15},
			{Text: "The old order must fall.", Type: ChoiceRebellious, Impact: 0.10},
		}
	default:
		return nil
	}
}

// ResponseChoices returns choices prompted by keywords in the NPC's line.
func ResponseChoices(response string) []Choice {
	lower := strings.ToLower(response)
	var out []Choice
	if strings.Contains(lower, "question") || strings.Contains(lower, "ask") {
		out = append(out, Choice{Text: "How can I help you?", Type: ChoiceHelpful, Impact: 0.15})
	}
	if strings.Contains(lower, "disagree") || strings.Contains(lower, "wrong") {
		out = append(out,
			Choice{Text: "Perhaps we can find common ground.", Type: ChoiceDiplomatic, Impact: 0.08},
			Choice{Text: "I think you're mistaken.", Type: ChoiceChallenging, Impact: -0.05},
		)
	}
	return out
}

// ClassifyText guesses the choice type of a free-text player line.
func ClassifyText(text string) ChoiceType {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "farewell") || strings.Contains(lower, "goodbye"):
		return ChoicePoliteExit
	case strings.Contains(lower, "idiot") || strings.Contains(lower, "fool"):
		return ChoiceInsulting
	case strings.Contains(lower, "threat") || strings.Contains(lower, "or else"):
		return ChoiceIntimidation
	case strings.Contains(lower, "help"):
		return ChoiceHelpful
	case strings.Contains(lower, "please") || strings.Contains(lower, "thank"):
		return ChoiceRespectful
	case strings.Contains(lower, "?"):
		return ChoiceQuestioning
	default:
		return ChoiceNeutral
	}
}

// SuggestedChoices turns model-suggested player lines into choices.
func SuggestedChoices(suggested []string) []Choice {
	out := make([]Choice, 0, len(suggested))
	for _, s := range suggested {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		t := ClassifyText(s)
		if t == ChoicePoliteExit {
			continue
		}
		out = append(out, Choice{Text: s, Type: t})
	}
	return out
}

var expectedResponses = map[ChoiceType]string{
	ChoiceNeutral:           "The conversation continues.",
	ChoiceQuestioning:       "They will explain further.",
	ChoiceRespectful:        "They appreciate the courtesy.",
	ChoiceHelpful:           "They welcome the offer.",
	ChoiceSupportive:        "They feel encouraged.",
	ChoiceDiplomatic:        "They consider a compromise.",
	ChoiceChallenging:       "They may grow defensive.",
	ChoicePhilosophical:     "They reflect on deeper meaning.",
	ChoiceLogical:           "They weigh the reasoning.",
	ChoiceEfficiencyFocused: "They get to the point.",
	ChoiceRebellious:        "They sense a kindred spirit.",
	ChoiceAggressive:        "They become wary.",
	ChoicePoliteExit:        "The conversation ends.",
}

// checkDifficulty lists the choice types gated by a skill check.
var checkDifficulty = map[ChoiceType]float64{
	ChoicePersuasion:    0.6,
	ChoiceIntimidation:  0.7,
	ChoicePhilosophical: 0.5,
}

// PopulateChoiceMetadata fills the expected response, the check gate, and the
// predicted impact of ch for an NPC of faction f and personality p.
func PopulateChoiceMetadata(ch Choice, f npc.Faction, p npc.Personality) Choice {
	if ch.ExpectedResponse == "" {
		ch.ExpectedResponse = expectedResponses[ch.Type]
	}
	if d, ok := checkDifficulty[ch.Type]; ok {
		ch.RequiresCheck = true
		ch.CheckType = string(ch.Type)
		ch.CheckDifficulty = d
	}
	ch.Impact = PredictChoiceOutcome(ch, f, p)
	return ch
}

// ValidateChoiceAvailability marks ch available when it needs no check or
// when skill plus a tenth of the NPC's trust and respect meets the difficulty.
func ValidateChoiceAvailability(ch Choice, skill float64, rel npc.Relationship) Choice {
	ch.Available = true
	ch.UnavailableReason = ""
	if !ch.RequiresCheck {
		return ch
	}
	score := skill + 0.1*(rel.Trust+rel.Respect)
	if score < ch.CheckDifficulty {
		ch.Available = false
		ch.UnavailableReason = fmt.Sprintf("requires %s check (%.2f < %.2f)", ch.CheckType, score, ch.CheckDifficulty)
	}
	return ch
}

// TruncateChoices caps chs at limit entries. A polite exit, when present, is
// always kept and moved to the end.
func TruncateChoices(chs []Choice, limit int) []Choice {
	var exit *Choice
	rest := make([]Choice, 0, len(chs))
	for i := range chs {
		if chs[i].Type == ChoicePoliteExit {
			if exit == nil {
				e := chs[i]
				exit = &e
			}
			continue
		}
		rest = append(rest, chs[i])
	}
	keep := limit
	if exit != nil {
		keep--
	}
	if keep < 0 {
		keep = 0
	}
	if len(rest) > keep {
		rest = rest[:keep]
	}
	if exit != nil {
		rest = append(rest, *exit)
	}
	return rest
}

func dedupeChoices(chs []Choice) []Choice {
	seen := make(map[string]bool, len(chs))
	out := chs[:0]
	for _, ch := range chs {
		key := strings.ToLower(ch.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ch)
	}
	return out
}

// ChoiceInput describes the turn choices are generated for.
type ChoiceInput struct {
	NPCID        string
	Context      string
	Faction      npc.Faction
	Personality  npc.Personality
	Relationship npc.Relationship
	Response     string
	Suggested    []string
	PlayerSkill  float64
	MaxChoices   int
}

// GenerateChoices runs the choice pipeline: stock choices, faction choices,
// response choices, and model suggestions, then metadata, availability, and
// truncation.
//
// Postcondition: The polite exit is present and last; len <= MaxChoices when
// MaxChoices >= 1.
func GenerateChoices(in ChoiceInput) []Choice {
	return finishChoices(candidateChoices(in), in)
}

// candidateChoices gathers and annotates every choice for the turn. Its
// result depends only on the NPC's identity and the turn's text.
func candidateChoices(in ChoiceInput) []Choice {
	stock := DefaultChoices()
	chs := make([]Choice, 0, 8)
	chs = append(chs, stock[:2]...)
	chs = append(chs, FactionChoices(in.Faction)...)
	chs = append(chs, ResponseChoices(in.Response)...)
	chs = append(chs, SuggestedChoices(in.Suggested)...)
	chs = append(chs, stock[2])
	chs = dedupeChoices(chs)
	for i := range chs {
		chs[i] = PopulateChoiceMetadata(chs[i], in.Faction, in.Personality)
	}
	return chs
}

func finishChoices(chs []Choice, in ChoiceInput) []Choice {
	for i := range chs {
		chs[i] = ValidateChoiceAvailability(chs[i], in.PlayerSkill, in.Relationship)
	}
	limit := in.MaxChoices
	if limit < 1 {
		limit = len(chs)
	}
	return TruncateChoices(chs, limit)
}

const choiceCacheCap = 100

type choiceKey struct {
	npcID     string
	context   string
	signature string
}

// responseSignature condenses the parts of a turn that shape its contextual
// choices: which response keyword groups matched, and the model suggestions.
func responseSignature(in ChoiceInput) string {
	var b strings.Builder
	for _, ch := range ResponseChoices(in.Response) {
		b.WriteString(string(ch.Type))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	b.WriteString(strings.Join(in.Suggested, "\x1f"))
	return b.String()
}

// choiceCache memoises candidate choices; availability is re-checked on every
// read. When full the oldest half is evicted.
type choiceCache struct {
	entries map[choiceKey][]Choice
	order   []choiceKey
}

func newChoiceCache() *choiceCache {
	return &choiceCache{entries: make(map[choiceKey][]Choice)}
}

func (c *choiceCache) get(in ChoiceInput) []Choice {
	k := choiceKey{npcID: in.NPCID, context: in.Context, signature: responseSignature(in)}
	if v, ok := c.entries[k]; ok {
		return finishChoices(append([]Choice(nil), v...), in)
	}
	if len(c.entries) >= choiceCacheCap {
		half := len(c.order) / 2
		for _, old := range c.order[:half] {
			delete(c.entries, old)
		}
		c.order = append([]choiceKey(nil), c.order[half:]...)
	}
	v := candidateChoices(in)
	c.entries[k] = v
	c.order = append(c.order, k)
	return finishChoices(append([]Choice(nil), v...), in)
}

func (c *choiceCache) forget(npcID string) {
	kept := c.order[:0]
	for _, k := range c.order {
		if k.npcID == npcID {
			delete(c.entries, k)
			continue
		}
		kept = append(kept, k)
	}
	c.order = kept
}
