package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
	"github.com/cory-johannsen/npcfleet/internal/inference"
)

// FallbackLine is the NPC line synthesized when a response does not arrive in time.
const (
	FallbackLine = "I need to think about that."
	FallbackTone = "thoughtful"
)

var errDeclined = errors.New("model declined")

// Roster looks NPCs up by id. *npc.Manager satisfies it.
type Roster interface {
	GetNPC(id string) (*npc.Controller, bool)
}

// Metrics receives conversation measurements.
type Metrics interface {
	RecordDialogueStarted(ctx context.Context, faction string)
	RecordDialogueEnded(ctx context.Context, reason string, duration time.Duration, exchanges int)
}

type nopMetrics struct{}

func (nopMetrics) RecordDialogueStarted(context.Context, string) {}

func (nopMetrics) RecordDialogueEnded(context.Context, string, time.Duration, int) {}

// Deps are the System's collaborators. Roster, Inference and Bus are required.
type Deps struct {
	Roster    Roster
	Inference inference.Service
	Bus       event.Bus
	// Events, when set, feeds auto-start and NPC state consistency.
	Events event.Subscriber
	// History, when set, persists conversations on SaveHistory.
	History HistoryStore
	Clock   func() time.Time
	Metrics Metrics
}

type result struct {
	seq     uint64
	npcID   string
	resp    inference.DialogueResponse
	err     error
	elapsed time.Duration
}

type signalKind int

const (
	signalStart signalKind = iota
	signalEntered
	signalLeft
)

type signal struct {
	kind  signalKind
	npcID string
	topic string
}

// System runs at most one conversation at a time.
//
// Every method except the event handlers is confined to the frame goroutine.
// Inference runs on worker goroutines whose results are applied by Update.
type System struct {
	settings Settings
	deps     Deps
	logger   *zap.Logger

	active         *Dialogue
	enteredAt      time.Time
	requestedAt    time.Time
	displayUntil   time.Time
	pausedAt       time.Time
	pendingMessage string
	pendingType    ChoiceType
	failures       int
	responses      int
	seq            uint64
	playerSkill    float64

	results chan result
	baseCtx context.Context
	cancel  context.CancelFunc

	qmu   sync.Mutex
	queue []signal
	subs  []event.Subscription

	history map[string][]Conversation
	choices *choiceCache
	impacts *impactCache

	onMessage func(Exchange)
	onEnd     func(Conversation)
}

// NewSystem wires a Dialogue System.
//
// Precondition: deps.Roster, deps.Inference and deps.Bus are non-nil.
// Postcondition: Returns ErrMissingCollaborator when one is missing.
func NewSystem(settings Settings, deps Deps, logger *zap.Logger) (*System, error) {
	switch {
	case deps.Roster == nil:
		return nil, fmt.Errorf("%w: roster", ErrMissingCollaborator)
	case deps.Inference == nil:
		return nil, fmt.Errorf("%w: inference", ErrMissingCollaborator)
	case deps.Bus == nil:
		return nil, fmt.Errorf("%w: event bus", ErrMissingCollaborator)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	settings = settings.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &System{
		settings:    settings,
		deps:        deps,
		logger:      logger.Named("dialogue"),
		playerSkill: settings.PlayerSkill,
		results:     make(chan result, 16),
		baseCtx:     ctx,
		cancel:      cancel,
		history:     make(map[string][]Conversation),
		choices:     newChoiceCache(),
		impacts:     newImpactCache(),
	}
	if deps.Events != nil {
		s.subs = append(s.subs,
			deps.Events.Subscribe(event.TypeNPCInteraction, s.onEvent),
			deps.Events.Subscribe(event.TypeNPCStateChange, s.onEvent),
		)
	}
	return s, nil
}

// Settings returns the effective settings.
func (s *System) Settings() Settings { return s.settings }

// SetPlayerSkill sets the skill used by choice checks, clamped to [0,1].
func (s *System) SetPlayerSkill(v float64) { s.playerSkill = clampUnit(v) }

// SetMessageCallback registers fn to receive every recorded NPC turn.
func (s *System) SetMessageCallback(fn func(Exchange)) { s.onMessage = fn }

// SetEndCallback registers fn to receive every conversation as it ends.
func (s *System) SetEndCallback(fn func(Conversation)) { s.onEnd = fn }

// IsActive reports whether a conversation is open.
func (s *System) IsActive() bool { return s.active != nil }

// State returns the turn state, or StateInactive.
func (s *System) State() State {
	if s.active == nil {
		return StateInactive
	}
	return s.active.State
}

// Active returns a copy of the open conversation.
func (s *System) Active() (Dialogue, bool) {
	if s.active == nil {
		return Dialogue{}, false
	}
	return s.active.clone(), true
}

// Choices returns the choices currently offered.
func (s *System) Choices() []Choice {
	if s.active == nil {
		return nil
	}
	return append([]Choice(nil), s.active.Choices...)
}

func (s *System) now() time.Time { return s.deps.Clock() }

func (s *System) enter(st State) {
	if s.active == nil {
		return
	}
	s.logger.Debug("dialogue state",
		zap.String("npc_id", s.active.NPCID),
		zap.Stringer("from", s.active.State),
		zap.Stringer("to", st),
	)
	s.active.State = st
	s.enteredAt = s.now()
}

func (s *System) publish(payload any) {
	s.deps.Bus.Publish(event.New(payload, s.now()))
}

func (s *System) activeNPC() (*npc.Controller, bool) {
	if s.active == nil {
		return nil, false
	}
	return s.deps.Roster.GetNPC(s.active.NPCID)
}

// StartConversation opens a conversation with npcID about topic, ending any
// open conversation as interrupted.
//
// Precondition: The NPC exists, is active, can interact and is not hostile.
// Postcondition: On success the NPC is in Conversation, DialogueStarted was
// published, and the greeting request is in flight (StateWaitingForNPC).
func (s *System) StartConversation(ctx context.Context, npcID, topic string) error {
	c, ok := s.deps.Roster.GetNPC(npcID)
	if !ok {
		return fmt.Errorf("%w: %q not found", ErrNPCUnavailable, npcID)
	}
	if !c.IsInitialized() || !c.IsActive() || !c.CanInteract() || c.State() == npc.StateHostile {
		return fmt.Errorf("%w: %q cannot talk", ErrNPCUnavailable, npcID)
	}
	if s.active != nil {
		if err := s.EndConversation(ctx, EndInterrupted); err != nil {
			return err
		}
	}
	if topic == "" {
		topic = "general"
	}
	if err := c.RouteTo(npc.StateConversation, "dialogue started"); err != nil {
		return fmt.Errorf("%w: %w", ErrNPCUnavailable, err)
	}

	now := s.now()
	rel := c.Relationship()
	s.active = &Dialogue{
		NPCID:          npcID,
		NPCName:        c.Name(),
		NPCFaction:     c.Faction().String(),
		State:          StateStarting,
		Topic:          topic,
		Context:        "greeting " + topic,
		StartedAt:      now,
		LastExchangeAt: now,
		Timeout:        s.settings.ConversationTimeout,
		InitialTrust:   rel.Trust,
		InitialRespect: rel.Respect,
	}
	s.enteredAt = now
	s.failures = 0
	s.responses = 0
	s.pendingMessage = ""
	s.pendingType = ""
	c.NoteConversationActivity()

	s.publish(event.DialogueStarted{
		NPCID:       npcID,
		NPCName:     c.Name(),
		NPCFaction:  c.Faction().String(),
		NPCPosition: c.Position(),
	})
	s.deps.Metrics.RecordDialogueStarted(ctx, c.Faction().String())
	s.logger.Info("conversation started",
		zap.String("npc_id", npcID),
		zap.String("topic", topic),
	)
	s.request(c, "", s.active.Context)
	return nil
}

// request issues a dialogue inference call on a worker goroutine and moves
// to StateWaitingForNPC.
func (s *System) request(c *npc.Controller, playerMessage, convContext string) {
	req := c.DialogueRequest(playerMessage, convContext)
	s.seq++
	seq := s.seq
	s.active.AIRequests++
	s.requestedAt = s.now()
	s.enter(StateWaitingForNPC)

	svc := s.deps.Inference
	base := s.baseCtx
	out := s.results
	timeout := s.settings.AIResponseTimeout
	go func() {
		callCtx, cancel := context.WithTimeout(base, timeout)
		defer cancel()
		start := time.Now()
		resp, err := svc.GenerateDialogue(callCtx, req)
		r := result{seq: seq, npcID: req.NPCID, resp: resp, err: err, elapsed: time.Since(start)}
		select {
		case out <- r:
		case <-base.Done():
		}
	}()
}

// Update applies queued NPC signals and inference results, then runs the
// conversation watchdogs.
func (s *System) Update(ctx context.Context) {
	s.drainSignals(ctx)
	if s.active != nil {
		c, ok := s.activeNPC()
		if !ok {
			s.logger.Warn("conversation npc vanished", zap.String("npc_id", s.active.NPCID))
			_ = s.EndConversation(ctx, EndInterrupted)
		} else {
			c.NoteConversationActivity()
		}
	}
	if s.active != nil && s.active.Paused {
		return
	}
	s.drainResults(ctx)
	if s.active != nil {
		s.ProcessConversationState(ctx, s.now())
	}
}

func (s *System) drainResults(ctx context.Context) {
	for {
		select {
		case r := <-s.results:
			s.handleResult(ctx, r)
		default:
			return
		}
	}
}

func (s *System) handleResult(ctx context.Context, r result) {
	d := s.active
	if d == nil || r.seq != s.seq || r.npcID != d.NPCID || d.State != StateWaitingForNPC {
		s.logger.Debug("stale dialogue response dropped", zap.String("npc_id", r.npcID), zap.Uint64("seq", r.seq))
		return
	}
	d.TotalAIResponseTime += r.elapsed
	s.responses++
	d.AverageAIResponseTime = d.TotalAIResponseTime / time.Duration(s.responses)

	resp := r.resp
	if r.err == nil && !resp.Success {
		r.err = errDeclined
	}
	if r.err != nil {
		s.failures++
		s.logger.Warn("dialogue inference failed",
			zap.String("npc_id", d.NPCID),
			zap.Int("consecutive_failures", s.failures),
			zap.Error(r.err),
		)
		if s.failures >= s.settings.MaxConsecutiveFailures {
			_ = s.EndConversation(ctx, EndError)
			return
		}
		resp = fallbackResponse()
	} else {
		s.failures = 0
	}
	if err := s.HandleAIResponse(ctx, d.NPCID, resp); err != nil {
		s.logger.Warn("dialogue response rejected", zap.Error(err))
	}
}

func fallbackResponse() inference.DialogueResponse {
	return inference.DialogueResponse{Response: FallbackLine, EmotionalTone: FallbackTone, Success: true}
}

// HandleAIResponse records an NPC line for the open conversation and either
// ends it or offers the next choices.
//
// Precondition: The conversation with npcID is open and waiting for the NPC.
// Postcondition: The conversation ends with EndNPCDecision when the line is a
// farewell or the exchange limit is reached.
func (s *System) HandleAIResponse(ctx context.Context, npcID string, resp inference.DialogueResponse) error {
	d := s.active
	if d == nil {
		return ErrNoActiveDialogue
	}
	if npcID != d.NPCID {
		return fmt.Errorf("%w: got %q, talking to %q", ErrNPCMismatch, npcID, d.NPCID)
	}
	if d.State != StateWaitingForNPC && d.State != StateStarting {
		return fmt.Errorf("%w: %s", ErrWrongState, d.State)
	}
	c, ok := s.activeNPC()
	if !ok {
		_ = s.EndConversation(ctx, EndInterrupted)
		return fmt.Errorf("%w: %q", ErrNPCUnavailable, npcID)
	}

	now := s.now()
	tone := ParseTone(resp.EmotionalTone)
	ex := Exchange{
		At:         now,
		Speaker:    npcID,
		Message:    resp.Response,
		Tone:       tone,
		Topics:     ExtractTopics(resp.Response),
		ChoiceType: s.pendingType,
	}
	d.Exchanges = append(d.Exchanges, ex)
	d.LastExchangeAt = now
	d.PendingChoice = ""
	d.PendingChoiceContext = ""
	s.pendingType = ""
	c.NoteConversationActivity()
	if s.onMessage != nil {
		s.onMessage(ex)
	}

	msg := event.DialogueMessage{
		NPCID:         npcID,
		Message:       resp.Response,
		EmotionalTone: tone.String(),
		DeliverySpeed: s.settings.TypingSpeed,
	}
	if len(d.Exchanges) >= s.settings.MaxExchanges || npc.IsFarewell(resp.Response) {
		d.Choices = nil
		s.publish(msg)
		return s.EndConversation(ctx, EndNPCDecision)
	}

	d.Choices = s.choices.get(ChoiceInput{
		NPCID:        npcID,
		Context:      d.Topic,
		Faction:      c.Faction(),
		Personality:  c.Personality(),
		Relationship: c.Relationship(),
		Response:     resp.Response,
		Suggested:    resp.SuggestedPlayerResponses,
		PlayerSkill:  s.playerSkill,
		MaxChoices:   s.settings.MaxPlayerChoices,
	})
	msg.PlayerOptions = choiceTexts(d.Choices)
	msg.ShowContinuePrompt = s.settings.EnableTypingEffect
	s.publish(msg)

	if s.settings.EnableTypingEffect {
		s.displayUntil = now.Add(s.typingDuration(resp.Response))
		s.enter(StateDisplayingMessage)
		return nil
	}
	s.enter(s.afterDisplay())
	return nil
}

func choiceTexts(chs []Choice) []string {
	out := make([]string, len(chs))
	for i, ch := range chs {
		out[i] = ch.Text
	}
	return out
}

func (s *System) typingDuration(text string) time.Duration {
	chars := float64(len([]rune(text)))
	return time.Duration(chars/s.settings.TypingSpeed*float64(time.Second)) + time.Second
}

func (s *System) afterDisplay() State {
	for _, ch := range s.active.Choices {
		if ch.Available {
			return StateWaitingForChoice
		}
	}
	return StateWaitingForPlayer
}

// SelectChoice picks the choice at index, applies its relationship impact and
// asks the NPC to answer. The polite exit ends the conversation instead.
//
// Precondition: The conversation is waiting for a choice.
func (s *System) SelectChoice(ctx context.Context, index int) error {
	d := s.active
	if d == nil {
		return ErrNoActiveDialogue
	}
	if d.State != StateWaitingForChoice {
		return fmt.Errorf("%w: %s", ErrWrongState, d.State)
	}
	if index < 0 || index >= len(d.Choices) {
		return fmt.Errorf("%w: index %d of %d", ErrInvalidChoice, index, len(d.Choices))
	}
	ch := d.Choices[index]
	if !ch.Available {
		return fmt.Errorf("%w: %s", ErrChoiceUnavailable, ch.UnavailableReason)
	}
	c, ok := s.activeNPC()
	if !ok {
		_ = s.EndConversation(ctx, EndInterrupted)
		return fmt.Errorf("%w: %q", ErrNPCUnavailable, d.NPCID)
	}

	impact := 0.0
	if ch.Type != ChoicePoliteExit {
		impact = ch.Impact
	}
	applyImpact(c, impact)
	d.RelationshipChange += impact

	now := s.now()
	d.Exchanges = append(d.Exchanges, Exchange{
		At:         now,
		Speaker:    PlayerSpeaker,
		Message:    ch.Text,
		Tone:       ToneNeutral,
		Impact:     impact,
		Topics:     ExtractTopics(ch.Text),
		ChoiceType: ch.Type,
	})
	d.LastExchangeAt = now
	d.PendingChoice = ch.Text
	d.PendingChoiceContext = fmt.Sprintf("player chose %s: %s", ch.Type, ch.Text)
	s.pendingType = ch.Type

	s.publish(event.DialogueChoiceSelected{
		NPCID:         d.NPCID,
		PlayerChoice:  ch.Text,
		ChoiceIndex:   index,
		ChoiceContext: string(ch.Type),
	})
	s.logger.Debug("choice selected",
		zap.String("npc_id", d.NPCID),
		zap.String("type", string(ch.Type)),
		zap.Float64("impact", impact),
	)

	if ch.Type == ChoicePoliteExit {
		return s.EndConversation(ctx, EndPlayerChoice)
	}
	s.request(c, ch.Text, d.PendingChoiceContext)
	return nil
}

// SelectChoiceByText picks the offered choice whose text matches, ignoring case.
func (s *System) SelectChoiceByText(ctx context.Context, text string) error {
	if s.active == nil {
		return ErrNoActiveDialogue
	}
	for i, ch := range s.active.Choices {
		if strings.EqualFold(ch.Text, text) {
			return s.SelectChoice(ctx, i)
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidChoice, text)
}

// SubmitPlayerMessage records a free-text player line. The NPC is asked to
// answer once the line has spent ProcessingDelay in StateProcessing.
//
// Precondition: The conversation is waiting for a choice or for the player.
func (s *System) SubmitPlayerMessage(ctx context.Context, message string) error {
	d := s.active
	if d == nil {
		return ErrNoActiveDialogue
	}
	if d.State != StateWaitingForChoice && d.State != StateWaitingForPlayer {
		return fmt.Errorf("%w: %s", ErrWrongState, d.State)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("%w: empty message", ErrInvalidChoice)
	}
	c, ok := s.activeNPC()
	if !ok {
		_ = s.EndConversation(ctx, EndInterrupted)
		return fmt.Errorf("%w: %q", ErrNPCUnavailable, d.NPCID)
	}

	t := ClassifyText(message)
	impact := s.CalculateRelationshipImpact(t, d.NPCID)
	applyImpact(c, impact)
	d.RelationshipChange += impact

	now := s.now()
	d.Exchanges = append(d.Exchanges, Exchange{
		At:         now,
		Speaker:    PlayerSpeaker,
		Message:    message,
		Tone:       ToneNeutral,
		Impact:     impact,
		Topics:     ExtractTopics(message),
		ChoiceType: t,
	})
	d.LastExchangeAt = now
	d.Choices = nil
	s.publish(event.DialogueMessage{NPCID: d.NPCID, Message: message, IsPlayerMessage: true})

	if t == ChoicePoliteExit {
		return s.EndConversation(ctx, EndPlayerChoice)
	}
	d.PendingChoice = message
	d.PendingChoiceContext = "player said: " + message
	s.pendingMessage = message
	s.pendingType = t
	s.enter(StateProcessing)
	return nil
}

// ProcessConversationState runs the watchdogs of the open conversation at now.
func (s *System) ProcessConversationState(ctx context.Context, now time.Time) {
	d := s.active
	if d == nil || d.Paused || d.State == StateEnding {
		return
	}
	if now.Sub(d.LastExchangeAt) >= s.settings.ConversationTimeout {
		s.logger.Info("conversation timed out", zap.String("npc_id", d.NPCID))
		_ = s.EndConversation(ctx, EndTimeout)
		return
	}
	switch d.State {
	case StateStarting:
		if now.Sub(s.enteredAt) >= s.settings.AIResponseTimeout {
			_ = s.EndConversation(ctx, EndError)
		}
	case StateWaitingForNPC:
		if now.Sub(s.requestedAt) >= s.settings.AIResponseTimeout {
			_ = s.HandleStateTimeout(ctx)
		}
	case StateDisplayingMessage:
		if !now.Before(s.displayUntil) {
			s.enter(s.afterDisplay())
		}
	case StateProcessing:
		if now.Sub(s.enteredAt) >= s.settings.ProcessingDelay {
			if c, ok := s.activeNPC(); ok {
				s.request(c, s.pendingMessage, d.PendingChoiceContext)
				s.pendingMessage = ""
			}
		}
	}
}

// HandleStateTimeout resolves a stalled turn: the NPC gets the fallback line,
// a pending choice defaults to the first available one, and anything else
// ends the conversation.
func (s *System) HandleStateTimeout(ctx context.Context) error {
	d := s.active
	if d == nil {
		return ErrNoActiveDialogue
	}
	switch d.State {
	case StateWaitingForNPC:
		s.seq++
		s.failures++
		s.logger.Warn("dialogue response timed out",
			zap.String("npc_id", d.NPCID),
			zap.Int("consecutive_failures", s.failures),
		)
		if s.failures >= s.settings.MaxConsecutiveFailures {
			return s.EndConversation(ctx, EndError)
		}
		return s.HandleAIResponse(ctx, d.NPCID, fallbackResponse())
	case StateWaitingForChoice:
		for i, ch := range d.Choices {
			if ch.Available {
				return s.SelectChoice(ctx, i)
			}
		}
		return s.EndConversation(ctx, EndTimeout)
	case StateStarting:
		return s.EndConversation(ctx, EndError)
	default:
		return s.EndConversation(ctx, EndTimeout)
	}
}

// EndConversation closes the open conversation. It is a no-op when none is open.
//
// Postcondition: DialogueEnded was published, the exchanges are in history,
// the NPC is back in Idle and no conversation is active.
func (s *System) EndConversation(ctx context.Context, reason EndReason) error {
	d := s.active
	if d == nil || d.State == StateEnding {
		return nil
	}
	s.enter(StateEnding)
	s.seq++
	now := s.now()
	duration := now.Sub(d.StartedAt)
	npcTurns := d.NPCTurns()

	conv := Conversation{
		ID:        uuid.New(),
		NPCID:     d.NPCID,
		StartedAt: d.StartedAt,
		EndedAt:   now,
		Reason:    reason.String(),
		Exchanges: append([]Exchange(nil), d.Exchanges...),
	}
	if len(conv.Exchanges) > 0 {
		s.history[d.NPCID] = appendCapped(s.history[d.NPCID], conv, s.settings.MaxHistoryPerNPC)
	}

	s.publish(event.DialogueEnded{
		NPCID:                d.NPCID,
		Reason:               reason.String(),
		ConversationDuration: duration,
		ExchangeCount:        npcTurns,
		MessageCount:         len(d.Exchanges),
		RelationshipChange:   d.RelationshipChange,
	})
	if c, ok := s.deps.Roster.GetNPC(d.NPCID); ok && c.State() == npc.StateConversation {
		if err := c.ChangeState(npc.StateIdle, "dialogue ended: "+reason.String()); err != nil {
			s.logger.Warn("restoring npc state", zap.String("npc_id", d.NPCID), zap.Error(err))
		}
	}
	s.active = nil
	s.pendingMessage = ""
	s.pendingType = ""

	s.deps.Metrics.RecordDialogueEnded(ctx, reason.String(), duration, npcTurns)
	s.logger.Info("conversation ended",
		zap.String("npc_id", d.NPCID),
		zap.Stringer("reason", reason),
		zap.Duration("duration", duration),
		zap.Int("exchanges", npcTurns),
		zap.Float64("relationship_change", d.RelationshipChange),
	)
	if s.onEnd != nil {
		s.onEnd(conv)
	}
	return nil
}

// Pause suspends the watchdogs of the open conversation.
func (s *System) Pause() {
	if s.active == nil || s.active.Paused {
		return
	}
	s.active.Paused = true
	s.pausedAt = s.now()
}

// Resume restarts the watchdogs, crediting the paused time to every deadline.
func (s *System) Resume() {
	d := s.active
	if d == nil || !d.Paused {
		return
	}
	shift := s.now().Sub(s.pausedAt)
	d.LastExchangeAt = d.LastExchangeAt.Add(shift)
	s.enteredAt = s.enteredAt.Add(shift)
	s.requestedAt = s.requestedAt.Add(shift)
	s.displayUntil = s.displayUntil.Add(shift)
	d.Paused = false
}

// CalculateRelationshipImpact returns the impact a choice of type t has on
// npcID, or 0 when the NPC is unknown.
func (s *System) CalculateRelationshipImpact(t ChoiceType, npcID string) float64 {
	c, ok := s.deps.Roster.GetNPC(npcID)
	if !ok {
		return 0
	}
	return s.impacts.get(npcID, t, func() float64 {
		return ChoiceImpact(t, c.Faction(), c.Personality())
	})
}

// ProcessPlayerChoice applies the impact of a choice of type t to npcID's
// trust and respect outside any conversation, returning the impact.
func (s *System) ProcessPlayerChoice(npcID string, t ChoiceType) (float64, error) {
	c, ok := s.deps.Roster.GetNPC(npcID)
	if !ok {
		return 0, fmt.Errorf("%w: %q not found", ErrNPCUnavailable, npcID)
	}
	impact := s.CalculateRelationshipImpact(t, npcID)
	applyImpact(c, impact)
	return impact, nil
}

// HandleNPCDestroyed ends the open conversation as interrupted when npcID is
// its NPC. It is installed as the fleet's destroy hook.
func (s *System) HandleNPCDestroyed(npcID string) {
	if s.active != nil && s.active.NPCID == npcID {
		_ = s.EndConversation(context.Background(), EndInterrupted)
	}
	s.choices.forget(npcID)
	s.impacts.forget(npcID)
}

// History returns the completed conversations with npcID, oldest first.
func (s *System) History(npcID string) []Conversation {
	return cloneConversations(s.history[npcID])
}

// ClearHistory drops the in-memory history of npcID.
func (s *System) ClearHistory(npcID string) {
	delete(s.history, npcID)
}

// SaveHistory writes every NPC's history to the HistoryStore concurrently.
// It is a no-op without a store.
func (s *System) SaveHistory(ctx context.Context) error {
	if s.deps.History == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	for npcID, convs := range s.history {
		convs := cloneConversations(convs)
		g.Go(func() error {
			if err := s.deps.History.Save(gctx, npcID, convs); err != nil {
				return fmt.Errorf("saving history of %q: %w", npcID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// LoadHistory replaces the in-memory history of each npcID with the stored one.
func (s *System) LoadHistory(ctx context.Context, npcIDs ...string) error {
	if s.deps.History == nil {
		return nil
	}
	loaded := make([][]Conversation, len(npcIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, npcID := range npcIDs {
		g.Go(func() error {
			convs, err := s.deps.History.Load(gctx, npcID)
			if err != nil {
				return fmt.Errorf("loading history of %q: %w", npcID, err)
			}
			loaded[i] = convs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, npcID := range npcIDs {
		convs := loaded[i]
		if limit := s.settings.MaxHistoryPerNPC; len(convs) > limit {
			convs = convs[len(convs)-limit:]
		}
		s.history[npcID] = convs
	}
	return nil
}

// Shutdown ends the open conversation as interrupted, persists history and
// abandons in-flight inference.
func (s *System) Shutdown(ctx context.Context) error {
	_ = s.EndConversation(ctx, EndInterrupted)
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	err := s.SaveHistory(ctx)
	s.cancel()
	return err
}

func (s *System) onEvent(e event.Event) {
	var sig signal
	switch p := e.Payload.(type) {
	case event.NPCInteraction:
		if !s.settings.AutoStart || p.InteractionType != npc.InteractionDialogue.String() {
			return
		}
		sig = signal{kind: signalStart, npcID: p.NPCID, topic: p.PlayerAction}
	case event.NPCStateChange:
		conv := npc.StateConversation.String()
		switch {
		case p.NewState == conv:
			sig = signal{kind: signalEntered, npcID: p.NPCID}
		case p.OldState == conv:
			sig = signal{kind: signalLeft, npcID: p.NPCID}
		default:
			return
		}
	default:
		return
	}
	s.qmu.Lock()
	s.queue = append(s.queue, sig)
	s.qmu.Unlock()
}

func (s *System) drainSignals(ctx context.Context) {
	s.qmu.Lock()
	q := s.queue
	s.queue = nil
	s.qmu.Unlock()

	for _, sig := range q {
		switch sig.kind {
		case signalStart:
			if s.active != nil && s.active.NPCID == sig.npcID {
				continue
			}
			if err := s.StartConversation(ctx, sig.npcID, sig.topic); err != nil {
				s.logger.Warn("auto-start failed", zap.String("npc_id", sig.npcID), zap.Error(err))
			}
		case signalEntered:
			if s.active != nil && s.active.NPCID != sig.npcID {
				s.release(sig.npcID)
			}
		case signalLeft:
			if s.active == nil || s.active.NPCID != sig.npcID {
				continue
			}
			if c, ok := s.activeNPC(); ok && c.State() == npc.StateConversation {
				continue
			}
			s.logger.Info("npc left conversation", zap.String("npc_id", sig.npcID))
			_ = s.EndConversation(ctx, EndInterrupted)
		}
	}
}

// release returns an NPC that entered Conversation outside the open dialogue to Idle.
func (s *System) release(npcID string) {
	c, ok := s.deps.Roster.GetNPC(npcID)
	if !ok || c.State() != npc.StateConversation {
		return
	}
	if err := c.ChangeState(npc.StateIdle, "another conversation is active"); err != nil {
		s.logger.Warn("releasing npc", zap.String("npc_id", npcID), zap.Error(err))
	}
}
