package dialogue

import (
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
)

// TrustShare and RespectShare split a choice impact across the NPC's trust
// and respect.
const (
	TrustShare   = 0.6
	RespectShare = 0.4
)

// baseImpacts is the relationship impact of a choice type before modifiers.
var baseImpacts = map[ChoiceType]float64{
	ChoiceRespectful:  0.10,
	ChoiceHelpful:     0.15,
	ChoiceSupportive:  0.15,
	ChoiceAggressive:  -0.20,
	ChoiceRude:        -0.20,
	ChoiceDismissive:  -0.25,
	ChoiceInsulting:   -0.25,
	ChoiceDiplomatic:  0.08,
	ChoiceQuestioning: 0.02,
}

// BaseImpact returns the table impact of t and whether t is in the table.
func BaseImpact(t ChoiceType) (float64, bool) {
	v, ok := baseImpacts[t]
	return v, ok
}

// AggressiveNPCThreshold is the aggressiveness above which aggressive
// choices land softer.
const AggressiveNPCThreshold = 0.6

// ImpactModifier returns the multiplier the NPC's faction and personality
// apply to a choice of type t.
func ImpactModifier(t ChoiceType, f npc.Faction, p npc.Personality) float64 {
	switch {
	case t == ChoiceAggressive && p.Aggressiveness > AggressiveNPCThreshold:
		return 0.5
	case t == ChoicePhilosophical && f == npc.FactionAshvattha:
		return 1.5
	case t == ChoiceLogical && f == npc.FactionVaikuntha:
		return 1.3
	case t == ChoiceRebellious && f == npc.FactionYugaStriders:
		return 1.2
	default:
		return 1
	}
}

// ChoiceImpact is the relationship impact of a choice of type t on an NPC
// of faction f and personality p. Types outside the base table score 0.
//
// Postcondition: The result is in [-1, 1].
func ChoiceImpact(t ChoiceType, f npc.Faction, p npc.Personality) float64 {
	base := baseImpacts[t]
	return clampImpact(base * ImpactModifier(t, f, p))
}

// PredictChoiceOutcome is the impact shown for a choice: the base table for
// known types, otherwise the declared impact, with modifiers applied.
//
// Postcondition: The result is in [-1, 1].
func PredictChoiceOutcome(ch Choice, f npc.Faction, p npc.Personality) float64 {
	base, ok := baseImpacts[ch.Type]
	if !ok {
		base = ch.Impact
	}
	return clampImpact(base * ImpactModifier(ch.Type, f, p))
}

func clampImpact(v float64) float64 {
	switch {
	case v < -1:
		return -1
	case v > 1:
		return 1
	default:
		return v
	}
}

// applyImpact moves the NPC's trust and respect by impact.
func applyImpact(c *npc.Controller, impact float64) {
	if impact == 0 {
		return
	}
	c.UpdateRelationship(TrustShare*impact, RespectShare*impact, 0)
}

const relationshipCacheCap = 50

type impactKey struct {
	npcID string
	t     ChoiceType
}

// impactCache memoises ChoiceImpact per NPC and choice type. It is cleared
// wholesale once it holds relationshipCacheCap entries.
type impactCache struct {
	entries map[impactKey]float64
}

func newImpactCache() *impactCache {
	return &impactCache{entries: make(map[impactKey]float64)}
}

func (c *impactCache) get(npcID string, t ChoiceType, compute func() float64) float64 {
	k := impactKey{npcID: npcID, t: t}
	if v, ok := c.entries[k]; ok {
		return v
	}
	if len(c.entries) >= relationshipCacheCap {
		clear(c.entries)
	}
	v := compute()
	c.entries[k] = v
	return v
}

func (c *impactCache) forget(npcID string) {
	for k := range c.entries {
		if k.npcID == npcID {
			delete(c.entries, k)
		}
	}
}
