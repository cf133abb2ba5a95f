// Package inference defines the model-inference capability the NPC subsystem
// consumes, together with composition helpers: a per-faction Router, a
// circuit Breaker, and an Instrumented decorator.
//
// Implementations live in the script (offline Lua model) and llm (hosted
// language model) subpackages.
package inference

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoModel is returned when no model serves the requested faction.
	ErrNoModel = errors.New("inference: no model for request")
	// ErrMalformedReply is returned when a model reply cannot be interpreted.
	ErrMalformedReply = errors.New("inference: malformed model reply")
	// ErrCircuitOpen is returned while a Breaker rejects calls.
	ErrCircuitOpen = errors.New("inference: circuit breaker is open")
)

// DialogueRequest asks a model for an NPC line.
type DialogueRequest struct {
	Faction        string             `json:"faction"`
	NPCID          string             `json:"npc_id"`
	PlayerMessage  string             `json:"player_message"`
	Context        string             `json:"context"`
	EmotionalState map[string]float64 `json:"emotional_state"`
	RecentEvents   []string           `json:"recent_events"`
	// Urgency is in [0,1].
	Urgency float64 `json:"urgency"`
}

// DialogueResponse is a model's NPC line.
type DialogueResponse struct {
	Response                 string             `json:"response"`
	EmotionalTone            string             `json:"emotional_tone"`
	SuggestedPlayerResponses []string           `json:"suggested_player_responses"`
	UpdatedEmotionalState    map[string]float64 `json:"updated_emotional_state"`
	Confidence               float64            `json:"confidence"`
	InferenceTime            time.Duration      `json:"inference_time"`
	Success                  bool               `json:"success"`
}

// BehaviorRequest asks a model to pick one of AvailableActions.
type BehaviorRequest struct {
	Faction          string             `json:"faction"`
	NPCType          string             `json:"npc_type"`
	Situation        string             `json:"situation"`
	AvailableActions []string           `json:"available_actions"`
	WorldState       map[string]float64 `json:"world_state"`
	TimeConstraint   time.Duration      `json:"time_constraint"`
}

// ActionConfidence scores one candidate action.
type ActionConfidence struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
}

// BehaviorResponse is a model's behavior decision.
type BehaviorResponse struct {
	SelectedAction    string             `json:"selected_action"`
	ActionConfidences []ActionConfidence `json:"action_confidences"`
	Reasoning         string             `json:"reasoning"`
	InferenceTime     time.Duration      `json:"inference_time"`
	Success           bool               `json:"success"`
}

// Service turns requests into responses.
//
// Implementations MUST be safe for concurrent use and MUST honour ctx
// cancellation; callers bound every call with a deadline.
type Service interface {
	GenerateDialogue(ctx context.Context, req DialogueRequest) (DialogueResponse, error)
	DecideBehavior(ctx context.Context, req BehaviorRequest) (BehaviorResponse, error)
}

// Funcs adapts a pair of functions into a Service. A nil function yields ErrNoModel.
type Funcs struct {
	Dialogue func(ctx context.Context, req DialogueRequest) (DialogueResponse, error)
	Behavior func(ctx context.Context, req BehaviorRequest) (BehaviorResponse, error)
}

// GenerateDialogue implements Service.
func (f Funcs) GenerateDialogue(ctx context.Context, req DialogueRequest) (DialogueResponse, error) {
	if f.Dialogue == nil {
		return DialogueResponse{}, ErrNoModel
	}
	return f.Dialogue(ctx, req)
}

// DecideBehavior implements Service.
func (f Funcs) DecideBehavior(ctx context.Context, req BehaviorRequest) (BehaviorResponse, error) {
	if f.Behavior == nil {
		return BehaviorResponse{}, ErrNoModel
	}
	return f.Behavior(ctx, req)
}

// ContainsAction reports whether action is one of actions.
func ContainsAction(actions []string, action string) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
