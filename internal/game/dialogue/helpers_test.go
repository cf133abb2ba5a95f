package dialogue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
	"github.com/cory-johannsen/npcfleet/internal/game/dice"
	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
	"github.com/cory-johannsen/npcfleet/internal/game/resource"
	"github.com/cory-johannsen/npcfleet/internal/inference"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func line(text, tone string) inference.DialogueResponse {
	return inference.DialogueResponse{Response: text, EmotionalTone: tone, Success: true}
}

// scripted serves queued dialogue lines in order, then a neutral filler.
type scripted struct {
	mu    sync.Mutex
	lines []inference.DialogueResponse
	reqs  []inference.DialogueRequest
	err   error
	delay time.Duration
}

func script(lines ...inference.DialogueResponse) *scripted {
	return &scripted{lines: lines}
}

func (s *scripted) GenerateDialogue(_ context.Context, req inference.DialogueRequest) (inference.DialogueResponse, error) {
	s.mu.Lock()
	s.reqs = append(s.reqs, req)
	resp := line("Tell me more.", "neutral")
	if len(s.lines) > 0 {
		resp = s.lines[0]
		s.lines = s.lines[1:]
	}
	err, delay := s.err, s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return inference.DialogueResponse{}, err
	}
	return resp, nil
}

func (s *scripted) DecideBehavior(_ context.Context, req inference.BehaviorRequest) (inference.BehaviorResponse, error) {
	return inference.BehaviorResponse{SelectedAction: req.AvailableActions[0], Success: true}, nil
}

func (s *scripted) requests() []inference.DialogueRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inference.DialogueRequest(nil), s.reqs...)
}

type harness struct {
	fleet  *npc.Manager
	sys    *dialogue.System
	events *event.Recorder
	clock  *fakeClock
	model  *scripted
	store  *dialogue.MemoryHistory
}

func newHarness(t *testing.T, settings dialogue.Settings, model *scripted) *harness {
	t.Helper()
	if model == nil {
		model = script()
	}
	clock := &fakeClock{now: epoch}
	rec := &event.Recorder{}
	disp := event.NewDispatcher(zap.NewNop())
	bus := event.Fanout{rec, disp}
	fleetSettings := npc.DefaultSettings()
	fleetSettings.DeferDialogueGreeting = settings.AutoStart
	fleet, err := npc.NewManager(fleetSettings, npc.ManagerDeps{
		Resources: resource.Permissive{},
		Inference: model,
		Graphics:  npc.GraphicsFunc(func(npc.DrawCommand) {}),
		Bus:       bus,
		Events:    disp,
		Random:    dice.FixedSource{Value: 1 << 30},
		Clock:     clock.Now,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, fleet.RegisterDefaultTemplates())

	store := dialogue.NewMemoryHistory()
	sys, err := dialogue.NewSystem(settings, dialogue.Deps{
		Roster:    fleet,
		Inference: model,
		Bus:       bus,
		Events:    disp,
		History:   store,
		Clock:     clock.Now,
	}, zap.NewNop())
	require.NoError(t, err)
	fleet.SetDestroyHook(sys.HandleNPCDestroyed)
	return &harness{fleet: fleet, sys: sys, events: rec, clock: clock, model: model, store: store}
}

func (h *harness) spawn(t *testing.T, id, template string, rel map[string]float64) *npc.Controller {
	t.Helper()
	c, err := h.fleet.SpawnNPC(context.Background(), npc.SpawnParams{
		NPCID:        id,
		TemplateID:   template,
		Transform:    geom.At(geom.V(1, 0, 0)),
		Relationship: rel,
	})
	require.NoError(t, err)
	return c
}

type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// pump runs Update until cond holds or two seconds pass.
func (h *harness) pump(t fataler, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.sys.Update(context.Background())
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached; dialogue state %s", h.sys.State())
}

func (h *harness) awaitState(t fataler, st dialogue.State) {
	t.Helper()
	h.pump(t, func() bool { return h.sys.State() == st })
}

func (h *harness) ended() []event.DialogueEnded {
	var out []event.DialogueEnded
	for _, e := range h.events.OfType(event.TypeDialogueEnded) {
		out = append(out, e.Payload.(event.DialogueEnded))
	}
	return out
}
