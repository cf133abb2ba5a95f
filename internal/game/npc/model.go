package npc

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cory-johannsen/npcfleet/internal/game/geom"
)

// RecentEventCapacity bounds Knowledge.RecentEvents.
const RecentEventCapacity = 10

// Clamp01 limits v to [0,1]. Every write to a trait or relationship scalar
// goes through it. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Personality holds six traits in [0,1]. It is fixed at spawn.
type Personality struct {
	Aggressiveness float64 `yaml:"aggressiveness" json:"aggressiveness"`
	Curiosity      float64 `yaml:"curiosity" json:"curiosity"`
	Trustfulness   float64 `yaml:"trustfulness" json:"trustfulness"`
	Helpfulness    float64 `yaml:"helpfulness" json:"helpfulness"`
	Intelligence   float64 `yaml:"intelligence" json:"intelligence"`
	Loyalty        float64 `yaml:"loyalty" json:"loyalty"`
}

// PersonalityKeys lists the override keys Personality.Set accepts.
var PersonalityKeys = []string{"aggressiveness", "curiosity", "trustfulness", "helpfulness", "intelligence", "loyalty"}

// Set assigns the trait named key, clamped to [0,1].
//
// Postcondition: Returns an error wrapping ErrInvalidParams for unknown keys.
func (p *Personality) Set(key string, v float64) error {
	v = Clamp01(v)
	switch key {
	case "aggressiveness":
		p.Aggressiveness = v
	case "curiosity":
		p.Curiosity = v
	case "trustfulness":
		p.Trustfulness = v
	case "helpfulness":
		p.Helpfulness = v
	case "intelligence":
		p.Intelligence = v
	case "loyalty":
		p.Loyalty = v
	default:
		return fmt.Errorf("personality key %q: %w", key, ErrInvalidParams)
	}
	return nil
}

// Clamped returns p with every trait limited to [0,1].
func (p Personality) Clamped() Personality {
	return Personality{
		Aggressiveness: Clamp01(p.Aggressiveness),
		Curiosity:      Clamp01(p.Curiosity),
		Trustfulness:   Clamp01(p.Trustfulness),
		Helpfulness:    Clamp01(p.Helpfulness),
		Intelligence:   Clamp01(p.Intelligence),
		Loyalty:        Clamp01(p.Loyalty),
	}
}

// Relationship is the NPC's standing with the player.
//
// Invariant: Trust, Respect, Fear, and Affection are in [0,1].
type Relationship struct {
	Trust             float64   `json:"trust"`
	Respect           float64   `json:"respect"`
	Fear              float64   `json:"fear"`
	Affection         float64   `json:"affection"`
	ConversationCount int       `json:"conversation_count"`
	LastInteraction   time.Time `json:"last_interaction"`
}

// RelationshipKeys lists the override keys Relationship.Set accepts.
var RelationshipKeys = []string{"trust", "respect", "fear", "affection"}

// DefaultRelationship is the standing of an NPC that has never met the player.
func DefaultRelationship() Relationship {
	return Relationship{Trust: 0.5, Respect: 0.5, Fear: 0, Affection: 0.5}
}

// Adjust adds the deltas to each scalar, clamping each result to [0,1]. A NaN
// delta leaves its scalar unchanged.
func (r *Relationship) Adjust(trust, respect, fear, affection float64) {
	r.Trust = shift(r.Trust, trust)
	r.Respect = shift(r.Respect, respect)
	r.Fear = shift(r.Fear, fear)
	r.Affection = shift(r.Affection, affection)
}

func shift(v, delta float64) float64 {
	if math.IsNaN(delta) {
		return v
	}
	return Clamp01(v + delta)
}

// Set assigns the scalar named key, clamped to [0,1].
//
// Postcondition: Returns an error wrapping ErrInvalidParams for unknown keys.
func (r *Relationship) Set(key string, v float64) error {
	v = Clamp01(v)
	switch key {
	case "trust":
		r.Trust = v
	case "respect":
		r.Respect = v
	case "fear":
		r.Fear = v
	case "affection":
		r.Affection = v
	default:
		return fmt.Errorf("relationship key %q: %w", key, ErrInvalidParams)
	}
	return nil
}

// EmotionalState renders the relationship as the scalar map inference requests carry.
func (r Relationship) EmotionalState() map[string]float64 {
	return map[string]float64{
		"trust":     r.Trust,
		"respect":   r.Respect,
		"fear":      r.Fear,
		"affection": r.Affection,
	}
}

// Knowledge is what the NPC knows and remembers.
//
// Invariant: len(RecentEvents) <= RecentEventCapacity.
type Knowledge struct {
	Topics           []string           `json:"topics"`
	Expertise        map[string]float64 `json:"expertise"`
	RecentEvents     []string           `json:"recent_events"`
	Secrets          []string           `json:"secrets"`
	LastPlayerAction string             `json:"last_player_action"`
}

// RecordEvent appends evt, evicting the oldest events beyond capacity.
func (k *Knowledge) RecordEvent(evt string) {
	k.RecentEvents = append(k.RecentEvents, evt)
	if over := len(k.RecentEvents) - RecentEventCapacity; over > 0 {
		k.RecentEvents = append(k.RecentEvents[:0:0], k.RecentEvents[over:]...)
	}
}

// Knows reports whether topic is among the known topics.
func (k Knowledge) Knows(topic string) bool {
	for _, t := range k.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// AddTopic appends topic if unknown and records its expertise, clamped.
func (k *Knowledge) AddTopic(topic string, expertise float64) {
	if !k.Knows(topic) {
		k.Topics = append(k.Topics, topic)
	}
	if k.Expertise == nil {
		k.Expertise = make(map[string]float64)
	}
	k.Expertise[topic] = Clamp01(expertise)
}

// Clone returns a deep copy of k.
func (k Knowledge) Clone() Knowledge {
	out := Knowledge{
		Topics:           append([]string(nil), k.Topics...),
		RecentEvents:     append([]string(nil), k.RecentEvents...),
		Secrets:          append([]string(nil), k.Secrets...),
		LastPlayerAction: k.LastPlayerAction,
	}
	if k.Expertise != nil {
		out.Expertise = make(map[string]float64, len(k.Expertise))
		for t, v := range k.Expertise {
			out.Expertise[t] = v
		}
	}
	return out
}

// TopExpertise returns up to n topics ordered by descending expertise.
func (k Knowledge) TopExpertise(n int) []string {
	topics := append([]string(nil), k.Topics...)
	sort.SliceStable(topics, func(i, j int) bool {
		return k.Expertise[topics[i]] > k.Expertise[topics[j]]
	})
	if len(topics) > n {
		topics = topics[:n]
	}
	return topics
}

// Record is the complete state of one NPC.
type Record struct {
	// ID uniquely identifies the NPC. Immutable.
	ID          string
	TemplateID  string
	Name        string
	Description string
	Faction     Faction
	Role        Role

	Transform geom.Transform
	MeshID    string
	TextureID string

	BehaviorModelID string
	DialogueModelID string

	InteractionRange   float64
	DefaultInteraction InteractionType

	Personality  Personality
	Relationship Relationship
	Knowledge    Knowledge

	State         State
	PreviousState State
	// AIUpdateInterval is how often the behavior model is consulted.
	AIUpdateInterval time.Duration
	LastAIUpdate     time.Time

	DistanceToPlayer  float64
	InPlayerView      bool
	Active            bool
	Visible           bool
	CanInteract       bool
	AIDecisionPending bool
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	r.Knowledge = r.Knowledge.Clone()
	return r
}
