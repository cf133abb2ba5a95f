package npc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/game/dice"
	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/game/resource"
	"github.com/cory-johannsen/npcfleet/internal/inference"
)

const (
	// DefaultBehaviorTimeout bounds a single behavior inference call.
	DefaultBehaviorTimeout = 2 * time.Second
	// DefaultDialogueTimeout bounds a single dialogue inference call issued by
	// the controller itself.
	DefaultDialogueTimeout = 10 * time.Second
	// ViewDistance is the pre-frustum in-view heuristic.
	ViewDistance = 100.0
	// SkipDistance is the distance beyond which a controller skips its own tick.
	SkipDistance = 150.0
)

// Deps are the collaborators of a Controller.
//
// Resources, Inference, and Bus are required. The rest default when zero.
type Deps struct {
	Resources resource.Cache
	Inference inference.Service
	Bus       event.Bus
	// Events, when set, lets the controller observe the dialogue outcome of
	// its own conversations.
	Events event.Subscriber
	Random dice.Source
	Clock  func() time.Time
	Logger *zap.Logger

	StateLogging       bool
	BehaviorTimeout    time.Duration
	DialogueTimeout    time.Duration
	IntervalMultiplier float64
	// DeferDialogueGreeting leaves the opening line of a Dialogue
	// interaction to the dialogue system that auto-starts on it.
	DeferDialogueGreeting bool
}

func (d Deps) withDefaults() Deps {
	if d.Random == nil {
		d.Random = dice.NewCryptoSource()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.BehaviorTimeout <= 0 {
		d.BehaviorTimeout = DefaultBehaviorTimeout
	}
	if d.DialogueTimeout <= 0 {
		d.DialogueTimeout = DefaultDialogueTimeout
	}
	if d.IntervalMultiplier <= 0 {
		d.IntervalMultiplier = 1
	}
	return d
}

// UpdateFunc is invoked at the end of every controller tick.
type UpdateFunc func(c *Controller, dt time.Duration)

// InteractionHandler serves the Information and Quest interaction types.
type InteractionHandler func(ctx context.Context, c *Controller, in Interaction) error

// ControllerStats are the per-NPC performance counters.
type ControllerStats struct {
	Ticks           int
	SkippedTicks    int
	AIDecisions     int
	AIFailures      int
	LastUpdateTime  time.Duration
	TotalUpdateTime time.Duration
}

// Controller simulates a single NPC.
//
// A Controller is confined to the frame goroutine: every method must be
// called from it. The Manager owns controllers; pointers returned by
// Manager.GetNPC stay valid until the matching DestroyNPC returns.
type Controller struct {
	deps   Deps
	logger *zap.Logger

	rec         Record
	initialized bool
	playerPos   geom.Vec3

	stateTime    time.Duration
	idleTime     time.Duration
	patrolTime   time.Duration
	aiTime       time.Duration
	patrolTarget geom.Vec3
	hasTarget    bool

	sub      event.Subscription
	onUpdate UpdateFunc
	handlers map[InteractionType]InteractionHandler
	stats    ControllerStats

	// owed accumulates dt for ticks the Manager's batch window skipped.
	owed time.Duration
	// culled marks an NPC the Manager deactivated for distance.
	culled bool
}

// NewController returns an uninitialized controller.
func NewController(deps Deps) *Controller {
	deps = deps.withDefaults()
	return &Controller{
		deps:     deps,
		logger:   deps.Logger.Named("npc"),
		handlers: make(map[InteractionType]InteractionHandler),
	}
}

// Initialize copies rec, preloads its resources, subscribes to dialogue
// events, and enters Idle.
//
// Precondition: Resources, Inference, and Bus are set in Deps; rec.ID is non-empty.
// Postcondition: On success the controller is initialized in StateIdle. On
// error the controller is unchanged.
func (c *Controller) Initialize(ctx context.Context, rec Record) error {
	if c.deps.Resources == nil || c.deps.Inference == nil || c.deps.Bus == nil {
		return fmt.Errorf("initializing npc %q: %w", rec.ID, ErrMissingCollaborator)
	}
	if rec.ID == "" {
		return fmt.Errorf("initializing npc: empty id: %w", ErrInvalidParams)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("initializing npc %q: %w", rec.ID, err)
	}

	c.rec = rec.Clone()
	c.logger = c.deps.Logger.Named("npc").With(zap.String("npc_id", rec.ID))
	if c.rec.AIUpdateInterval <= 0 {
		c.rec.AIUpdateInterval = DefaultAIUpdateInterval
	}
	c.rec.Personality = c.rec.Personality.Clamped()
	c.rec.Relationship.Adjust(0, 0, 0, 0)

	c.preload(resource.KindMesh, c.rec.MeshID)
	c.preload(resource.KindTexture, c.rec.TextureID)
	c.preload(resource.KindModel, c.rec.BehaviorModelID)
	c.preload(resource.KindModel, c.rec.DialogueModelID)

	if c.deps.Events != nil {
		c.sub = c.deps.Events.Subscribe(event.TypeDialogueEnded, c.onDialogueEnded)
	}

	c.rec.State = StateIdle
	c.rec.PreviousState = StateIdle
	c.resetTimers()
	c.rec.DistanceToPlayer = c.rec.Transform.Position.Distance(c.playerPos)
	c.rec.InPlayerView = c.rec.DistanceToPlayer <= ViewDistance
	c.initialized = true
	c.logger.Debug("npc initialized",
		zap.String("template", c.rec.TemplateID),
		zap.Stringer("faction", c.rec.Faction),
	)
	return nil
}

func (c *Controller) preload(kind resource.Kind, id string) {
	if id == "" {
		return
	}
	if err := c.deps.Resources.Preload(kind, id); err != nil {
		c.logger.Warn("resource preload failed",
			zap.String("kind", string(kind)),
			zap.String("resource_id", id),
			zap.Error(err),
		)
	}
}

func (c *Controller) onDialogueEnded(e event.Event) {
	p, ok := e.Payload.(event.DialogueEnded)
	if !ok || p.NPCID != c.rec.ID || !c.initialized {
		return
	}
	c.rec.Knowledge.RecordEvent(fmt.Sprintf("Conversation ended: %s after %d exchanges", p.Reason, p.ExchangeCount))
}

// Shutdown releases subscriptions. The controller is unusable afterwards.
func (c *Controller) Shutdown() {
	if c.sub != nil {
		c.sub.Unsubscribe()
		c.sub = nil
	}
	c.initialized = false
	c.rec.Active = false
}

// ID returns the NPC id.
func (c *Controller) ID() string { return c.rec.ID }

// Name returns the display name.
func (c *Controller) Name() string { return c.rec.Name }

// Faction returns the NPC faction.
func (c *Controller) Faction() Faction { return c.rec.Faction }

// Role returns the NPC type.
func (c *Controller) Role() Role { return c.rec.Role }

// State returns the current state.
func (c *Controller) State() State { return c.rec.State }

// PreviousState returns the state before the last transition.
func (c *Controller) PreviousState() State { return c.rec.PreviousState }

// Position returns the world position.
func (c *Controller) Position() geom.Vec3 { return c.rec.Transform.Position }

// Transform returns the world transform.
func (c *Controller) Transform() geom.Transform { return c.rec.Transform }

// DistanceToPlayer returns the cached distance.
func (c *Controller) DistanceToPlayer() float64 { return c.rec.DistanceToPlayer }

// InPlayerView returns the cached in-view flag.
func (c *Controller) InPlayerView() bool { return c.rec.InPlayerView }

// InteractionRange returns the interaction radius.
func (c *Controller) InteractionRange() float64 { return c.rec.InteractionRange }

// Personality returns the personality traits.
func (c *Controller) Personality() Personality { return c.rec.Personality }

// Relationship returns the current standing with the player.
func (c *Controller) Relationship() Relationship { return c.rec.Relationship }

// Knowledge returns a copy of the knowledge base.
func (c *Controller) Knowledge() Knowledge { return c.rec.Knowledge.Clone() }

// Snapshot returns a deep copy of the full record.
func (c *Controller) Snapshot() Record { return c.rec.Clone() }

// IsInitialized reports whether Initialize succeeded and Shutdown has not run.
func (c *Controller) IsInitialized() bool { return c.initialized }

// IsActive reports whether the NPC is simulated.
func (c *Controller) IsActive() bool { return c.rec.Active }

// IsVisible reports whether the NPC may be rendered.
func (c *Controller) IsVisible() bool { return c.rec.Visible }

// CanInteract reports whether the NPC accepts interactions.
func (c *Controller) CanInteract() bool { return c.rec.CanInteract }

// AIDecisionPending reports whether a behavior decision is in flight.
func (c *Controller) AIDecisionPending() bool { return c.rec.AIDecisionPending }

// Stats returns the performance counters.
func (c *Controller) Stats() ControllerStats { return c.stats }

// SetActive enables or disables simulation.
func (c *Controller) SetActive(active bool) { c.rec.Active = active }

// SetVisible enables or disables rendering.
func (c *Controller) SetVisible(visible bool) { c.rec.Visible = visible }

// SetCanInteract enables or disables interactions.
func (c *Controller) SetCanInteract(can bool) { c.rec.CanInteract = can }

// SetPosition moves the NPC and refreshes its cached distance.
func (c *Controller) SetPosition(p geom.Vec3) {
	c.rec.Transform.Position = p
	c.refreshDistance()
}

// SetUpdateCallback installs fn to run at the end of every tick.
func (c *Controller) SetUpdateCallback(fn UpdateFunc) { c.onUpdate = fn }

// SetInteractionHandler installs the handler for Information or Quest
// interactions. A nil fn removes it.
func (c *Controller) SetInteractionHandler(t InteractionType, fn InteractionHandler) {
	if fn == nil {
		delete(c.handlers, t)
		return
	}
	c.handlers[t] = fn
}

// UpdateRelationship clamp-adds each delta to the relationship scalars.
//
// Postcondition: Trust, Respect, and Fear remain in [0,1].
func (c *Controller) UpdateRelationship(trust, respect, fear float64) {
	c.rec.Relationship.Adjust(trust, respect, fear, 0)
}

// AdjustAffection clamp-adds delta to affection.
func (c *Controller) AdjustAffection(delta float64) {
	c.rec.Relationship.Adjust(0, 0, 0, delta)
}

// RecordEvent appends evt to the recent-events FIFO.
//
// Postcondition: At most RecentEventCapacity events are retained; the oldest are evicted.
func (c *Controller) RecordEvent(evt string) {
	c.rec.Knowledge.RecordEvent(evt)
}

// UpdateDistanceToPlayer recomputes the cached distance from pos.
//
// Postcondition: InPlayerView is true iff the distance is at most ViewDistance.
func (c *Controller) UpdateDistanceToPlayer(pos geom.Vec3) {
	c.playerPos = pos
	c.refreshDistance()
}

func (c *Controller) refreshDistance() {
	c.rec.DistanceToPlayer = c.rec.Transform.Position.Distance(c.playerPos)
	c.rec.InPlayerView = c.rec.DistanceToPlayer <= ViewDistance
}

// setInPlayerView lets the Manager refine the distance heuristic.
func (c *Controller) setInPlayerView(v bool) { c.rec.InPlayerView = v }

func (c *Controller) resetTimers() {
	c.stateTime = 0
	c.idleTime = 0
	c.patrolTime = 0
	c.hasTarget = false
}

// ChangeState moves the NPC to s if the transition table permits it.
//
// Postcondition: A same-state request returns nil without effect. A permitted
// transition updates State and PreviousState, applies entry effects, and
// publishes NPCStateChange. A forbidden one returns ErrInvalidTransition and
// leaves the state unchanged.
func (c *Controller) ChangeState(s State, reason string) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	from := c.rec.State
	if from == s {
		return nil
	}
	if !CanTransition(from, s) {
		c.logger.Warn("invalid state transition",
			zap.Stringer("from", from),
			zap.Stringer("to", s),
			zap.String("reason", reason),
		)
		return fmt.Errorf("%s -> %s: %w", from, s, ErrInvalidTransition)
	}

	c.rec.PreviousState = from
	c.rec.State = s
	c.resetTimers()
	c.enter(s)

	lvl := c.logger.Debug
	if c.deps.StateLogging {
		lvl = c.logger.Info
	}
	lvl("npc state changed",
		zap.Stringer("from", from),
		zap.Stringer("to", s),
		zap.String("reason", reason),
	)
	c.deps.Bus.Publish(event.New(event.NPCStateChange{
		NPCID:    c.rec.ID,
		OldState: from.String(),
		NewState: s.String(),
		Reason:   reason,
	}, c.deps.Clock()))
	return nil
}

func (c *Controller) enter(s State) {
	switch s {
	case StateHostile:
		c.rec.Relationship.Adjust(-0.2, -0.1, 0.3, 0)
	case StateAlert:
		c.rec.Knowledge.RecordEvent("Became alert")
	}
}

// RouteTo reaches s directly when permitted, otherwise through one legal
// intermediate state (Idle, then Alert). Each hop publishes its own NPCStateChange.
func (c *Controller) RouteTo(s State, reason string) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	if c.rec.State == s || CanTransition(c.rec.State, s) {
		return c.ChangeState(s, reason)
	}
	mid, ok := routeVia(c.rec.State, s)
	if !ok {
		return c.ChangeState(s, reason)
	}
	if err := c.ChangeState(mid, reason); err != nil {
		return err
	}
	return c.ChangeState(s, reason)
}

// NoteConversationActivity restarts the conversation hold timer.
func (c *Controller) NoteConversationActivity() {
	if c.rec.State == StateConversation {
		c.stateTime = 0
	}
}
