package npc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/game/dice"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/inference"
)

// Behavior tuning.
const (
	IdleCheckInterval    = 5 * time.Second
	IdleWanderChance     = 0.1
	PatrolRetarget       = 3 * time.Second
	PatrolStopChance     = 0.3
	PatrolRadius         = 2.0
	PatrolSpeed          = 1.5
	FollowSpeed          = 2.5
	ConversationHold     = 30 * time.Second
	AlertHold            = 10 * time.Second
	HostileCooldown      = 20 * time.Second
	FearfulThreshold     = 0.7
	TrustingThreshold    = 0.8
	AlertHostileFear     = 0.5
	AlertConverseTrust   = 0.6
	ConversationLeaveMul = 1.5
	FollowLeaveMul       = 3.0
	IdleWanderMul        = 2.0
)

// Situations offered to the behavior model.
const (
	SituationPlayerNearby = "player_nearby"
	SituationFearful      = "fearful"
	SituationTrusting     = "trusting"
	SituationNormal       = "normal"
)

// Actions a behavior model may select.
const (
	ActionApproach          = "approach"
	ActionStartConversation = "start_conversation"
	ActionBecomeAlert       = "become_alert"
	ActionContinueIdle      = "continue_idle"
	ActionFlee              = "flee"
	ActionCower             = "cower"
	ActionOfferHelp         = "offer_help"
	ActionPatrol            = "patrol"
	ActionWork              = "work"
	ActionFollow            = "follow"
	ActionAttack            = "attack"
)

// actionStates maps a selected action to the state it leads to.
var actionStates = map[string]State{
	ActionStartConversation: StateConversation,
	ActionOfferHelp:         StateConversation,
	ActionBecomeAlert:       StateAlert,
	ActionFlee:              StateAlert,
	ActionCower:             StateAlert,
	ActionApproach:          StatePatrol,
	ActionContinueIdle:      StateIdle,
	ActionPatrol:            StatePatrol,
	ActionWork:              StateWorking,
	ActionFollow:            StateFollowing,
	ActionAttack:            StateHostile,
}

// SelectSituation picks the situation and the actions offered in it.
func (c *Controller) SelectSituation() (string, []string) {
	switch {
	case c.rec.DistanceToPlayer <= c.rec.InteractionRange:
		return SituationPlayerNearby, []string{ActionApproach, ActionStartConversation, ActionBecomeAlert, ActionContinueIdle}
	case c.rec.Relationship.Fear > FearfulThreshold:
		return SituationFearful, []string{ActionBecomeAlert, ActionFlee, ActionCower}
	case c.rec.Relationship.Trust > TrustingThreshold:
		return SituationTrusting, []string{ActionApproach, ActionStartConversation, ActionOfferHelp}
	default:
		return SituationNormal, []string{ActionContinueIdle, ActionPatrol, ActionWork}
	}
}

// ShouldSkipUpdate reports whether the controller may skip this tick: the
// player is far away, or the NPC is idle and out of view. Conversation, Alert,
// and Hostile NPCs never skip.
func (c *Controller) ShouldSkipUpdate() bool {
	switch c.rec.State {
	case StateConversation, StateAlert, StateHostile:
		return false
	}
	if c.rec.DistanceToPlayer > SkipDistance {
		return true
	}
	return !c.rec.InPlayerView && c.rec.State == StateIdle
}

// Update advances the NPC by dt.
//
// Postcondition: No-op when uninitialized or inactive. Otherwise runs the
// behavior model when its interval elapsed, then the state behavior, then the
// update callback.
func (c *Controller) Update(ctx context.Context, dt time.Duration) {
	if !c.initialized || !c.rec.Active {
		return
	}
	if c.ShouldSkipUpdate() {
		c.stats.SkippedTicks++
		return
	}
	start := time.Now()

	c.aiTime += dt
	interval := time.Duration(float64(c.rec.AIUpdateInterval) * c.deps.IntervalMultiplier)
	if c.aiTime >= interval {
		c.aiTime = 0
		if c.rec.State != StateConversation {
			situation, actions := c.SelectSituation()
			// Failures are logged inside and leave the state unchanged.
			_ = c.RequestAIDecision(ctx, situation, actions)
		}
	}

	c.stateTime += dt
	switch c.rec.State {
	case StateIdle:
		c.updateIdle(dt)
	case StatePatrol:
		c.updatePatrol(dt)
	case StateConversation:
		c.updateConversation()
	case StateAlert:
		c.updateAlert()
	case StateFollowing:
		c.updateFollowing(dt)
	case StateHostile:
		c.updateHostile()
	}

	if c.onUpdate != nil {
		c.onUpdate(c, dt)
	}

	elapsed := time.Since(start)
	c.stats.Ticks++
	c.stats.LastUpdateTime = elapsed
	c.stats.TotalUpdateTime += elapsed
}

func (c *Controller) updateIdle(dt time.Duration) {
	c.idleTime += dt
	if c.idleTime < IdleCheckInterval {
		return
	}
	c.idleTime = 0
	if c.rec.DistanceToPlayer > IdleWanderMul*c.rec.InteractionRange && dice.Chance(c.deps.Random, IdleWanderChance) {
		_ = c.ChangeState(StatePatrol, "wandering")
	}
}

func (c *Controller) updatePatrol(dt time.Duration) {
	c.patrolTime += dt
	if c.patrolTime >= PatrolRetarget || !c.hasTarget {
		retarget := c.patrolTime >= PatrolRetarget
		c.patrolTime = 0
		if retarget && dice.Chance(c.deps.Random, PatrolStopChance) {
			_ = c.ChangeState(StateIdle, "patrol finished")
			return
		}
		pos := c.rec.Transform.Position
		c.patrolTarget = geom.V(
			pos.X+dice.Uniform(c.deps.Random, -PatrolRadius, PatrolRadius),
			pos.Y,
			pos.Z+dice.Uniform(c.deps.Random, -PatrolRadius, PatrolRadius),
		)
		c.hasTarget = true
	}
	c.walkToward(c.patrolTarget, PatrolSpeed*dt.Seconds())
}

func (c *Controller) updateConversation() {
	switch {
	case c.stateTime >= ConversationHold:
		_ = c.ChangeState(StateIdle, "conversation timeout")
	case c.rec.DistanceToPlayer > ConversationLeaveMul*c.rec.InteractionRange:
		_ = c.ChangeState(StateIdle, "player left conversation")
	}
}

func (c *Controller) updateAlert() {
	if c.rec.DistanceToPlayer <= 0.5*c.rec.InteractionRange {
		switch {
		case c.rec.Relationship.Fear > AlertHostileFear:
			_ = c.ChangeState(StateHostile, "player too close")
			return
		case c.rec.Relationship.Trust > AlertConverseTrust:
			_ = c.RouteTo(StateConversation, "trusted player approached")
			return
		}
	}
	if c.stateTime >= AlertHold {
		_ = c.ChangeState(StateIdle, "alert timeout")
	}
}

func (c *Controller) updateFollowing(dt time.Duration) {
	if c.rec.DistanceToPlayer > FollowLeaveMul*c.rec.InteractionRange {
		_ = c.ChangeState(StateIdle, "lost the player")
		return
	}
	if c.rec.DistanceToPlayer > 0.5*c.rec.InteractionRange {
		c.walkToward(c.playerPos, FollowSpeed*dt.Seconds())
	}
}

func (c *Controller) updateHostile() {
	if c.stateTime >= HostileCooldown && c.rec.DistanceToPlayer > c.rec.InteractionRange {
		_ = c.ChangeState(StateAlert, "hostility subsided")
	}
}

func (c *Controller) walkToward(target geom.Vec3, step float64) {
	if step <= 0 {
		return
	}
	c.rec.Transform.Position = c.rec.Transform.Position.MoveToward(target, step)
	c.refreshDistance()
}

// BehaviorRequest builds the inference request for situation and actions.
func (c *Controller) BehaviorRequest(situation string, actions []string) inference.BehaviorRequest {
	inRange := 0.0
	if c.rec.DistanceToPlayer <= c.rec.InteractionRange {
		inRange = 1
	}
	return inference.BehaviorRequest{
		Faction:          c.rec.Faction.String(),
		NPCType:          c.rec.Role.String(),
		Situation:        situation,
		AvailableActions: append([]string(nil), actions...),
		WorldState: map[string]float64{
			"distance":           c.rec.DistanceToPlayer,
			"trust":              c.rec.Relationship.Trust,
			"respect":            c.rec.Relationship.Respect,
			"fear":               c.rec.Relationship.Fear,
			"conversation_count": float64(c.rec.Relationship.ConversationCount),
			"in_range":           inRange,
			"loyalty":            c.rec.Personality.Loyalty,
			"aggressiveness":     c.rec.Personality.Aggressiveness,
		},
		TimeConstraint: c.deps.BehaviorTimeout,
	}
}

// RequestAIDecision asks the behavior model to choose among actions and
// routes the selection to a state.
//
// Precondition: The controller is initialized.
// Postcondition: Returns nil without effect when a decision is already
// pending. On inference failure returns an error wrapping ErrInference and the
// state is unchanged. The pending flag is always cleared on return.
func (c *Controller) RequestAIDecision(ctx context.Context, situation string, actions []string) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	if c.rec.AIDecisionPending {
		return nil
	}
	c.rec.AIDecisionPending = true
	defer func() { c.rec.AIDecisionPending = false }()

	callCtx, cancel := context.WithTimeout(ctx, c.deps.BehaviorTimeout)
	defer cancel()
	resp, err := c.deps.Inference.DecideBehavior(callCtx, c.BehaviorRequest(situation, actions))
	if err == nil && !resp.Success {
		err = errModelDeclined
	}
	if err == nil && !inference.ContainsAction(actions, resp.SelectedAction) {
		err = fmt.Errorf("selected action %q was not offered", resp.SelectedAction)
	}
	if err != nil {
		c.stats.AIFailures++
		c.logger.Error("behavior inference failed",
			zap.String("situation", situation),
			zap.Error(err),
		)
		return fmt.Errorf("npc %q behavior: %w: %w", c.rec.ID, ErrInference, err)
	}

	c.stats.AIDecisions++
	c.rec.LastAIUpdate = c.deps.Clock()
	if resp.Reasoning != "" {
		c.rec.Knowledge.RecordEvent(fmt.Sprintf("Decided to %s: %s", resp.SelectedAction, resp.Reasoning))
	} else {
		c.rec.Knowledge.RecordEvent("Decided to " + resp.SelectedAction)
	}
	c.applyAction(resp.SelectedAction)
	return nil
}

func (c *Controller) applyAction(action string) {
	target, ok := actionStates[action]
	if !ok {
		c.logger.Debug("action has no state mapping", zap.String("action", action))
		return
	}
	if action == ActionApproach {
		c.patrolTarget = c.playerPos
		c.hasTarget = true
	}
	if err := c.RouteTo(target, "ai decision: "+action); err != nil {
		return
	}
	if action == ActionApproach {
		// RouteTo resets timers on entry; keep the player as the destination.
		c.patrolTarget = c.playerPos
		c.hasTarget = true
	}
}
