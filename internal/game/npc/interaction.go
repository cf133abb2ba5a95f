package npc

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/inference"
)

// Interaction is one player interaction with an NPC.
type Interaction struct {
	Type           InteractionType
	PlayerAction   string
	PlayerPosition geom.Vec3
	Distance       float64
	// Message is the player's words for Dialogue interactions; PlayerAction
	// is used when empty.
	Message string
}

// actionEffect is a relationship delta triggered by a keyword in a player action.
type actionEffect struct {
	keywords  []string
	trust     float64
	respect   float64
	fear      float64
	affection float64
}

var actionEffects = []actionEffect{
	{keywords: []string{"help", "gift", "compliment"}, trust: 0.05, affection: 0.05},
	{keywords: []string{"attack", "threaten"}, trust: -0.1, fear: 0.1},
	{keywords: []string{"insult"}, respect: -0.05, affection: -0.1},
	{keywords: []string{"trade"}, respect: 0.02},
	{keywords: []string{"greet", "talk"}, trust: 0.01},
}

// ProcessPlayerAction applies the relationship effects of action and records
// it as the last player action. Each matching keyword group applies once.
func (c *Controller) ProcessPlayerAction(action string) {
	lower := strings.ToLower(action)
	for _, eff := range actionEffects {
		for _, kw := range eff.keywords {
			if strings.Contains(lower, kw) {
				c.rec.Relationship.Adjust(eff.trust, eff.respect, eff.fear, eff.affection)
				break
			}
		}
	}
	c.rec.Knowledge.LastPlayerAction = action
}

// TriggerInteraction handles a player interaction.
//
// Precondition: The controller is initialized.
// Postcondition: Returns ErrNotInteractable when the NPC cannot interact, is
// inactive, is Sleeping, or is Hostile and in is not a hostile interaction.
// Otherwise publishes NPCInteraction, dispatches by type, applies the action's
// relationship effects, increments the conversation count, and stamps the
// interaction time. A Dialogue interaction requests a reply unless
// Deps.DeferDialogueGreeting is set.
func (c *Controller) TriggerInteraction(ctx context.Context, in Interaction) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	switch {
	case !c.rec.CanInteract || !c.rec.Active:
		return fmt.Errorf("npc %q: %w", c.rec.ID, ErrNotInteractable)
	case c.rec.State == StateSleeping:
		return fmt.Errorf("npc %q is sleeping: %w", c.rec.ID, ErrNotInteractable)
	case c.rec.State == StateHostile && in.Type != InteractionHostile:
		return fmt.Errorf("npc %q is hostile: %w", c.rec.ID, ErrNotInteractable)
	}

	c.deps.Bus.Publish(event.New(event.NPCInteraction{
		NPCID:               c.rec.ID,
		PlayerAction:        in.PlayerAction,
		PlayerPosition:      in.PlayerPosition,
		InteractionDistance: in.Distance,
		InteractionType:     in.Type.String(),
	}, c.deps.Clock()))

	switch in.Type {
	case InteractionDialogue:
		err := c.RouteTo(StateConversation, "player dialogue")
		if err == nil && !c.deps.DeferDialogueGreeting {
			msg := in.Message
			if msg == "" {
				msg = in.PlayerAction
			}
			// Failures are logged inside; the conversation stays open.
			_, _ = c.ProcessDialogueRequest(ctx, msg, "interaction")
		}
	case InteractionTrade:
		_ = c.RouteTo(StateConversation, "player trade")
	case InteractionHostile:
		_ = c.RouteTo(StateHostile, "player hostility")
	case InteractionInformation, InteractionQuest:
		if h, ok := c.handlers[in.Type]; ok {
			if err := h(ctx, c, in); err != nil {
				c.logger.Warn("interaction handler failed",
					zap.Stringer("type", in.Type),
					zap.Error(err),
				)
			}
		} else {
			c.logger.Debug("no interaction handler", zap.Stringer("type", in.Type))
		}
	}

	c.ProcessPlayerAction(in.PlayerAction)
	c.rec.Relationship.ConversationCount++
	c.rec.Relationship.LastInteraction = c.deps.Clock()
	return nil
}

// DialogueRequest builds the inference request for a player line.
func (c *Controller) DialogueRequest(playerMessage, convContext string) inference.DialogueRequest {
	urgency := 0.0
	switch c.rec.State {
	case StateAlert:
		urgency = 0.6
	case StateHostile:
		urgency = 1
	}
	return inference.DialogueRequest{
		Faction:        c.rec.Faction.String(),
		NPCID:          c.rec.ID,
		PlayerMessage:  playerMessage,
		Context:        convContext,
		EmotionalState: c.rec.Relationship.EmotionalState(),
		RecentEvents:   append([]string(nil), c.rec.Knowledge.RecentEvents...),
		Urgency:        urgency,
	}
}

// ProcessDialogueRequest asks the dialogue model for a reply to playerMessage
// and publishes it as NPCDialogueResponse.
//
// Precondition: The controller is initialized.
// Postcondition: On failure returns an error wrapping ErrInference and
// publishes nothing.
func (c *Controller) ProcessDialogueRequest(ctx context.Context, playerMessage, convContext string) (inference.DialogueResponse, error) {
	if !c.initialized {
		return inference.DialogueResponse{}, ErrNotInitialized
	}
	callCtx, cancel := context.WithTimeout(ctx, c.deps.DialogueTimeout)
	defer cancel()

	resp, err := c.deps.Inference.GenerateDialogue(callCtx, c.DialogueRequest(playerMessage, convContext))
	if err == nil && !resp.Success {
		err = errModelDeclined
	}
	if err != nil {
		c.logger.Error("dialogue inference failed", zap.Error(err))
		return inference.DialogueResponse{}, fmt.Errorf("npc %q dialogue: %w: %w", c.rec.ID, ErrInference, err)
	}

	c.deps.Bus.Publish(event.New(event.NPCDialogueResponse{
		NPCID:           c.rec.ID,
		NPCResponse:     resp.Response,
		EmotionalTone:   resp.EmotionalTone,
		PlayerOptions:   append([]string(nil), resp.SuggestedPlayerResponses...),
		EndConversation: IsFarewell(resp.Response),
	}, c.deps.Clock()))
	return resp, nil
}

var farewells = []string{"goodbye", "farewell", "must go"}

// IsFarewell reports whether text contains a conversation-ending phrase.
func IsFarewell(text string) bool {
	lower := strings.ToLower(text)
	for _, f := range farewells {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}
