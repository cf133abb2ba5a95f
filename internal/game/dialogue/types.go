// Package dialogue runs multi-turn conversations between the player and one
// NPC at a time: it drives the inference service, offers player choices,
// applies relationship effects, and keeps per-NPC conversation history.
package dialogue

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoActiveDialogue is returned by turn operations when no conversation is open.
	ErrNoActiveDialogue = errors.New("dialogue: no active conversation")
	// ErrWrongState is returned when an operation does not fit the current turn state.
	ErrWrongState = errors.New("dialogue: operation not valid in current state")
	// ErrInvalidChoice is returned for an out-of-range or unknown choice.
	ErrInvalidChoice = errors.New("dialogue: invalid choice")
	// ErrChoiceUnavailable is returned when the chosen entry fails its availability check.
	ErrChoiceUnavailable = errors.New("dialogue: choice unavailable")
	// ErrNPCMismatch is returned when a response names another NPC than the active one.
	ErrNPCMismatch = errors.New("dialogue: npc mismatch")
	// ErrNPCUnavailable is returned when the NPC is unknown or cannot talk.
	ErrNPCUnavailable = errors.New("dialogue: npc unavailable")
	// ErrMissingCollaborator is returned by NewSystem when a dependency is nil.
	ErrMissingCollaborator = errors.New("dialogue: missing collaborator")
)

// State is a node of the conversation turn machine.
type State int

const (
	StateInactive State = iota
	StateStarting
	StateWaitingForNPC
	StateWaitingForPlayer
	StateDisplayingMessage
	StateWaitingForChoice
	StateProcessing
	StateEnding
)

var stateNames = [...]string{
	"Inactive", "Starting", "WaitingForNPC", "WaitingForPlayer",
	"DisplayingMessage", "WaitingForChoice", "Processing", "Ending",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// EndReason says why a conversation closed.
type EndReason int

const (
	EndPlayerChoice EndReason = iota
	EndNPCDecision
	EndTimeout
	EndInterrupted
	EndError
)

var endReasonNames = [...]string{"player_choice", "npc_decision", "timeout", "interrupted", "error"}

// String returns the wire name, e.g. "npc_decision".
func (r EndReason) String() string {
	if r < 0 || int(r) >= len(endReasonNames) {
		return fmt.Sprintf("EndReason(%d)", int(r))
	}
	return endReasonNames[r]
}

// ParseEndReason maps a wire name back to its EndReason.
func ParseEndReason(s string) (EndReason, error) {
	for i, name := range endReasonNames {
		if name == s {
			return EndReason(i), nil
		}
	}
	return EndPlayerChoice, fmt.Errorf("unknown end reason %q", s)
}

// ChoiceType tags a player choice.
type ChoiceType string

const (
	ChoiceNeutral           ChoiceType = "neutral"
	ChoiceDiplomatic        ChoiceType = "diplomatic"
	ChoiceAggressive        ChoiceType = "aggressive"
	ChoicePhilosophical     ChoiceType = "philosophical"
	ChoiceLogical           ChoiceType = "logical"
	ChoiceSupportive        ChoiceType = "supportive"
	ChoiceQuestioning       ChoiceType = "questioning"
	ChoiceRespectful        ChoiceType = "respectful"
	ChoiceDismissive        ChoiceType = "dismissive"
	ChoiceEmphatic          ChoiceType = "emphatic"
	ChoiceHesitant          ChoiceType = "hesitant"
	ChoiceChallenging       ChoiceType = "challenging"
	ChoiceRebellious        ChoiceType = "rebellious"
	ChoiceEfficiencyFocused ChoiceType = "efficiency_focused"
	ChoicePoliteExit        ChoiceType = "polite_exit"
	ChoicePersuasion        ChoiceType = "persuasion"
	ChoiceIntimidation      ChoiceType = "intimidation"
	ChoiceKnowledge         ChoiceType = "knowledge"
	ChoiceHelpful           ChoiceType = "helpful"
	ChoiceRude              ChoiceType = "rude"
	ChoiceInsulting         ChoiceType = "insulting"
)

// Choice is one option offered to the player.
type Choice struct {
	Text string     `json:"text"`
	Type ChoiceType `json:"type"`
	// Impact is the predicted relationship impact, applied when chosen.
	Impact           float64 `json:"impact"`
	ExpectedResponse string  `json:"expected_response"`

	RequiresCheck   bool    `json:"requires_check"`
	CheckType       string  `json:"check_type,omitempty"`
	CheckDifficulty float64 `json:"check_difficulty,omitempty"`

	Available         bool   `json:"available"`
	UnavailableReason string `json:"unavailable_reason,omitempty"`
}

// PlayerSpeaker is the Exchange.Speaker of player turns.
const PlayerSpeaker = "player"

// Exchange is one recorded turn.
type Exchange struct {
	At      time.Time `json:"at"`
	Speaker string    `json:"speaker"`
	Message string    `json:"message"`
	Tone    Tone      `json:"tone"`
	// Impact is the relationship impact this turn applied.
	Impact float64  `json:"impact"`
	Topics []string `json:"topics,omitempty"`
	// ChoiceType is the player choice that produced the turn, if any.
	ChoiceType ChoiceType `json:"choice_type,omitempty"`
}

// IsPlayer reports whether the player spoke the turn.
func (e Exchange) IsPlayer() bool { return e.Speaker == PlayerSpeaker }

// Dialogue is the open conversation.
type Dialogue struct {
	NPCID      string
	NPCName    string
	NPCFaction string

	State     State
	Exchanges []Exchange
	Choices   []Choice
	Topic     string
	Context   string

	StartedAt      time.Time
	LastExchangeAt time.Time
	Timeout        time.Duration
	Paused         bool

	PendingChoice        string
	PendingChoiceContext string

	InitialTrust   float64
	InitialRespect float64
	// RelationshipChange is the sum of the impacts applied by this conversation's exchanges.
	RelationshipChange float64

	AIRequests            int
	TotalAIResponseTime   time.Duration
	AverageAIResponseTime time.Duration
}

// NPCTurns counts the exchanges spoken by the NPC.
func (d *Dialogue) NPCTurns() int {
	n := 0
	for _, e := range d.Exchanges {
		if !e.IsPlayer() {
			n++
		}
	}
	return n
}

func (d *Dialogue) clone() Dialogue {
	c := *d
	c.Exchanges = append([]Exchange(nil), d.Exchanges...)
	c.Choices = append([]Choice(nil), d.Choices...)
	return c
}

// Conversation is a completed conversation kept in history.
type Conversation struct {
	ID        uuid.UUID  `json:"id"`
	NPCID     string     `json:"npc_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at"`
	Reason    string     `json:"reason"`
	Exchanges []Exchange `json:"exchanges"`
}
