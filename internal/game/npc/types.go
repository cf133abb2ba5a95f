package npc

import (
	"fmt"
	"strings"
)

// Faction is an NPC affiliation. It selects personality defaults, the
// dialogue model, and choice impact modifiers.
type Faction int

const (
	FactionNeutral Faction = iota
	FactionAshvattha
	FactionVaikuntha
	FactionYugaStriders
)

var factionNames = [...]string{"Neutral", "Ashvattha", "Vaikuntha", "YugaStriders"}

// AllFactions returns every faction in declaration order.
func AllFactions() []Faction {
	return []Faction{FactionNeutral, FactionAshvattha, FactionVaikuntha, FactionYugaStriders}
}

// String returns the display name, e.g. "YugaStriders".
func (f Faction) String() string {
	if f < 0 || int(f) >= len(factionNames) {
		return fmt.Sprintf("Faction(%d)", int(f))
	}
	return factionNames[f]
}

// Key returns the lower-case identifier used in template ids, e.g. "yugastriders".
func (f Faction) Key() string { return strings.ToLower(f.String()) }

// ParseFaction parses a faction name case-insensitively. Underscores and
// spaces are ignored so "yuga_striders" parses.
func ParseFaction(s string) (Faction, error) {
	norm := strings.NewReplacer("_", "", " ", "", "-", "").Replace(strings.ToLower(s))
	for i, n := range factionNames {
		if strings.ToLower(n) == norm {
			return Faction(i), nil
		}
	}
	return FactionNeutral, fmt.Errorf("unknown faction %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Faction) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Faction) UnmarshalText(b []byte) error {
	v, err := ParseFaction(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Role is the NPC's occupation.
type Role int

const (
	RoleCivilian Role = iota
	RoleGuard
	RoleMerchant
	RoleScholar
	RoleLeader
	RoleWorker
)

var roleNames = [...]string{"Civilian", "Guard", "Merchant", "Scholar", "Leader", "Worker"}

// String returns the display name.
func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

// Key returns the lower-case identifier used in template ids.
func (r Role) Key() string { return strings.ToLower(r.String()) }

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	for i, n := range roleNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return Role(i), nil
		}
	}
	return RoleCivilian, fmt.Errorf("unknown npc type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// State is a node of the single-NPC state machine.
type State int

const (
	StateIdle State = iota
	StatePatrol
	StateConversation
	StateAlert
	StateWorking
	StateSleeping
	StateFollowing
	StateHostile
)

var stateNames = [...]string{"Idle", "Patrol", "Conversation", "Alert", "Working", "Sleeping", "Following", "Hostile"}

// AllStates returns every state in declaration order.
func AllStates() []State {
	return []State{StateIdle, StatePatrol, StateConversation, StateAlert, StateWorking, StateSleeping, StateFollowing, StateHostile}
}

// String returns the display name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState parses a state name case-insensitively.
func ParseState(s string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return State(i), nil
		}
	}
	return StateIdle, fmt.Errorf("unknown npc state %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// InteractionType is the kind of player interaction.
type InteractionType int

const (
	InteractionDialogue InteractionType = iota
	InteractionTrade
	InteractionQuest
	InteractionInformation
	InteractionHostile
)

var interactionNames = [...]string{"Dialogue", "Trade", "Quest", "Information", "Hostile"}

// String returns the display name.
func (t InteractionType) String() string {
	if t < 0 || int(t) >= len(interactionNames) {
		return fmt.Sprintf("InteractionType(%d)", int(t))
	}
	return interactionNames[t]
}

// ParseInteractionType parses an interaction type name case-insensitively.
func ParseInteractionType(s string) (InteractionType, error) {
	for i, n := range interactionNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return InteractionType(i), nil
		}
	}
	return InteractionDialogue, fmt.Errorf("unknown interaction type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t InteractionType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *InteractionType) UnmarshalText(b []byte) error {
	v, err := ParseInteractionType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
