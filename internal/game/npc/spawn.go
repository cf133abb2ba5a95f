package npc

import (
	"fmt"
	"math"
	"strings"

	"github.com/cory-johannsen/npcfleet/internal/game/geom"
)

// SpawnParams describes one NPC to create from a registered template.
//
// The zero value of Inactive and Hidden spawns an active, visible NPC.
type SpawnParams struct {
	NPCID      string
	TemplateID string
	Transform  geom.Transform
	Inactive   bool
	Hidden     bool

	// Optional overrides. A nil pointer or empty map leaves the template value.
	Name         string
	Faction      *Faction
	Personality  map[string]float64
	Relationship map[string]float64
}

// Validate checks the parameters independently of any template.
//
// Postcondition: Returns an error wrapping ErrInvalidParams for an empty id
// or template id, or for an unknown override key.
func (p SpawnParams) Validate() error {
	if strings.TrimSpace(p.NPCID) == "" {
		return fmt.Errorf("spawn: npc id must not be empty: %w", ErrInvalidParams)
	}
	if strings.TrimSpace(p.TemplateID) == "" {
		return fmt.Errorf("spawn %q: template id must not be empty: %w", p.NPCID, ErrInvalidParams)
	}
	var scratch Personality
	for k, v := range p.Personality {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("spawn %q: personality %q is not finite: %w", p.NPCID, k, ErrInvalidParams)
		}
		if err := scratch.Set(k, v); err != nil {
			return fmt.Errorf("spawn %q: %w", p.NPCID, err)
		}
	}
	var rel Relationship
	for k, v := range p.Relationship {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("spawn %q: relationship %q is not finite: %w", p.NPCID, k, ErrInvalidParams)
		}
		if err := rel.Set(k, v); err != nil {
			return fmt.Errorf("spawn %q: %w", p.NPCID, err)
		}
	}
	return nil
}

// BuildRecord creates the initial record of an NPC from tmpl and p.
//
// Precondition: p.Validate() returned nil.
// Postcondition: The record is a deep copy; mutating it never affects tmpl.
func BuildRecord(tmpl *Template, p SpawnParams) Record {
	rec := Record{
		ID:                 p.NPCID,
		TemplateID:         tmpl.ID,
		Name:               tmpl.Name,
		Description:        tmpl.Description,
		Faction:            tmpl.Faction,
		Role:               tmpl.Role,
		Transform:          p.Transform,
		MeshID:             tmpl.MeshID,
		TextureID:          tmpl.TextureID,
		BehaviorModelID:    tmpl.BehaviorModelID,
		DialogueModelID:    tmpl.DialogueModelID,
		InteractionRange:   tmpl.InteractionRange,
		DefaultInteraction: tmpl.DefaultInteraction,
		Personality:        tmpl.Personality.Clamped(),
		Relationship:       DefaultRelationship(),
		State:              StateIdle,
		PreviousState:      StateIdle,
		AIUpdateInterval:   tmpl.UpdateInterval(),
		Active:             !p.Inactive,
		Visible:            !p.Hidden,
		CanInteract:        true,
	}
	rec.Knowledge = Knowledge{
		Topics:  append([]string(nil), tmpl.Topics...),
		Secrets: append([]string(nil), tmpl.Secrets...),
	}
	rec.Knowledge.Expertise = make(map[string]float64, len(tmpl.Expertise))
	for k, v := range tmpl.Expertise {
		rec.Knowledge.Expertise[k] = Clamp01(v)
	}

	if p.Name != "" {
		rec.Name = p.Name
	}
	if p.Faction != nil {
		rec.Faction = *p.Faction
	}
	for k, v := range p.Personality {
		_ = rec.Personality.Set(k, v)
	}
	for k, v := range p.Relationship {
		_ = rec.Relationship.Set(k, v)
	}
	return rec
}
