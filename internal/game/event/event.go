// Package event defines the events the NPC subsystem publishes to the host
// event bus, the Bus capability the host provides, and an in-process
// Dispatcher implementation of it.
//
// Payloads carry enums as their display strings so this package has no
// dependency on the domain packages that publish them.
package event

import (
	"time"

	"github.com/cory-johannsen/npcfleet/internal/game/geom"
)

// Category groups event types the way the host routes them.
type Category int

const (
	CategoryNPCInteraction Category = iota
	CategoryDialogue
	CategorySpawning
	CategorySystem
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryNPCInteraction:
		return "npc_interaction"
	case CategoryDialogue:
		return "dialogue"
	case CategorySpawning:
		return "spawning"
	case CategorySystem:
		return "system"
	default:
		return "unknown"
	}
}

// Type names a single kind of event.
type Type string

const (
	TypeNPCSpawn               Type = "npc_spawn"
	TypeNPCDestroy             Type = "npc_destroy"
	TypeNPCStateChange         Type = "npc_state_change"
	TypeNPCInteraction         Type = "npc_interaction"
	TypeNPCDialogueResponse    Type = "npc_dialogue_response"
	TypePlayerLocationUpdate   Type = "player_location_update"
	TypeNPCSystemUpdate        Type = "npc_system_update"
	TypeDialogueStarted        Type = "dialogue_started"
	TypeDialogueMessage        Type = "dialogue_message"
	TypeDialogueChoiceSelected Type = "dialogue_choice_selected"
	TypeDialogueEnded          Type = "dialogue_ended"
)

// Category returns the category t belongs to.
func (t Type) Category() Category {
	switch t {
	case TypeNPCSpawn, TypeNPCDestroy:
		return CategorySpawning
	case TypeNPCStateChange, TypeNPCInteraction, TypeNPCDialogueResponse, TypePlayerLocationUpdate:
		return CategoryNPCInteraction
	case TypeDialogueStarted, TypeDialogueMessage, TypeDialogueChoiceSelected, TypeDialogueEnded:
		return CategoryDialogue
	default:
		return CategorySystem
	}
}

// Event is one published occurrence. Payload holds one of the payload structs
// of this package, matching Type.
type Event struct {
	Type    Type
	Time    time.Time
	Payload any
}

// Category returns the category of e's type.
func (e Event) Category() Category { return e.Type.Category() }

// New builds an Event for payload stamped with at.
//
// Postcondition: Type matches the payload struct; unknown payloads yield an empty Type.
func New(payload any, at time.Time) Event {
	return Event{Type: TypeOf(payload), Time: at, Payload: payload}
}

// TypeOf returns the event type corresponding to payload.
func TypeOf(payload any) Type {
	switch payload.(type) {
	case NPCSpawn:
		return TypeNPCSpawn
	case NPCDestroy:
		return TypeNPCDestroy
	case NPCStateChange:
		return TypeNPCStateChange
	case NPCInteraction:
		return TypeNPCInteraction
	case NPCDialogueResponse:
		return TypeNPCDialogueResponse
	case PlayerLocationUpdate:
		return TypePlayerLocationUpdate
	case NPCSystemUpdate:
		return TypeNPCSystemUpdate
	case DialogueStarted:
		return TypeDialogueStarted
	case DialogueMessage:
		return TypeDialogueMessage
	case DialogueChoiceSelected:
		return TypeDialogueChoiceSelected
	case DialogueEnded:
		return TypeDialogueEnded
	default:
		return ""
	}
}

// NPCSpawn is published after an NPC joins the fleet.
type NPCSpawn struct {
	NPCID      string    `json:"npc_id"`
	Position   geom.Vec3 `json:"position"`
	Faction    string    `json:"faction"`
	TemplateID string    `json:"template_id"`
}

// NPCDestroy is published after an NPC leaves the fleet.
type NPCDestroy struct {
	NPCID  string `json:"npc_id"`
	Reason string `json:"reason"`
}

// NPCStateChange is published for every accepted state transition.
type NPCStateChange struct {
	NPCID    string `json:"npc_id"`
	OldState string `json:"old_state"`
	NewState string `json:"new_state"`
	Reason   string `json:"reason"`
}

// NPCInteraction is published when the player interacts with an NPC.
type NPCInteraction struct {
	NPCID               string    `json:"npc_id"`
	PlayerAction        string    `json:"player_action"`
	PlayerPosition      geom.Vec3 `json:"player_position"`
	InteractionDistance float64   `json:"interaction_distance"`
	InteractionType     string    `json:"interaction_type"`
}

// NPCDialogueResponse carries a line produced outside a managed conversation.
type NPCDialogueResponse struct {
	NPCID           string   `json:"npc_id"`
	NPCResponse     string   `json:"npc_response"`
	EmotionalTone   string   `json:"emotional_tone"`
	PlayerOptions   []string `json:"player_options"`
	EndConversation bool     `json:"end_conversation"`
}

// PlayerLocationUpdate mirrors the player transform the fleet is using.
type PlayerLocationUpdate struct {
	Position     geom.Vec3 `json:"position"`
	Direction    geom.Vec3 `json:"direction"`
	ViewDistance float64   `json:"view_distance"`
}

// NPCSystemUpdate is the periodic fleet heartbeat.
type NPCSystemUpdate struct {
	ActiveNPCCount    int           `json:"active_npc_count"`
	VisibleNPCCount   int           `json:"visible_npc_count"`
	TotalUpdateTime   time.Duration `json:"total_update_time"`
	AverageUpdateTime time.Duration `json:"average_update_time"`
}

// DialogueStarted opens a conversation.
type DialogueStarted struct {
	NPCID          string    `json:"npc_id"`
	NPCName        string    `json:"npc_name"`
	NPCFaction     string    `json:"npc_faction"`
	NPCPosition    geom.Vec3 `json:"npc_position"`
	InitialMessage string    `json:"initial_message"`
	PlayerOptions  []string  `json:"player_options"`
}

// DialogueMessage is one display-ready line of a conversation.
type DialogueMessage struct {
	NPCID              string   `json:"npc_id"`
	Message            string   `json:"message"`
	EmotionalTone      string   `json:"emotional_tone"`
	DeliverySpeed      float64  `json:"delivery_speed"`
	IsPlayerMessage    bool     `json:"is_player_message"`
	PlayerOptions      []string `json:"player_options"`
	ShowContinuePrompt bool     `json:"show_continue_prompt"`
}

// DialogueChoiceSelected records the player's pick.
type DialogueChoiceSelected struct {
	NPCID         string `json:"npc_id"`
	PlayerChoice  string `json:"player_choice"`
	ChoiceIndex   int    `json:"choice_index"`
	ChoiceContext string `json:"choice_context"`
}

// DialogueEnded closes a conversation. Reason is one of player_choice,
// npc_decision, timeout, interrupted, error.
type DialogueEnded struct {
	NPCID                string        `json:"npc_id"`
	Reason               string        `json:"reason"`
	ConversationDuration time.Duration `json:"conversation_duration"`
	ExchangeCount        int           `json:"exchange_count"`
	MessageCount         int           `json:"message_count"`
	RelationshipChange   float64       `json:"relationship_change"`
}
