package npc_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/game/dice"
	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
	"github.com/cory-johannsen/npcfleet/internal/game/resource"
	"github.com/cory-johannsen/npcfleet/internal/inference"
)

// never makes every dice.Chance roll fail.
var never = dice.FixedSource{Value: 1 << 30}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return epoch }

// idleModel always keeps the NPC idle.
func idleModel() inference.Funcs {
	return inference.Funcs{
		Behavior: func(_ context.Context, req inference.BehaviorRequest) (inference.BehaviorResponse, error) {
			action := req.AvailableActions[len(req.AvailableActions)-1]
			if inference.ContainsAction(req.AvailableActions, npc.ActionContinueIdle) {
				action = npc.ActionContinueIdle
			}
			return inference.BehaviorResponse{SelectedAction: action, Success: true}, nil
		},
		Dialogue: func(_ context.Context, req inference.DialogueRequest) (inference.DialogueResponse, error) {
			return inference.DialogueResponse{Response: "Hello.", EmotionalTone: "friendly", Success: true}, nil
		},
	}
}

type drawRecorder struct {
	mu   sync.Mutex
	cmds []npc.DrawCommand
}

func (d *drawRecorder) Draw(cmd npc.DrawCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = append(d.cmds, cmd)
}

type fleet struct {
	m      *npc.Manager
	events *event.Recorder
	disp   *event.Dispatcher
	draws  *drawRecorder
}

func newFleet(t *testing.T, settings npc.Settings, model inference.Service) *fleet {
	t.Helper()
	if model == nil {
		model = idleModel()
	}
	rec := &event.Recorder{}
	disp := event.NewDispatcher(zap.NewNop())
	draws := &drawRecorder{}
	m, err := npc.NewManager(settings, npc.ManagerDeps{
		Resources: resource.Permissive{},
		Inference: model,
		Graphics:  draws,
		Bus:       event.Fanout{rec, disp},
		Events:    disp,
		Random:    never,
		Clock:     fixedClock,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.RegisterDefaultTemplates())
	return &fleet{m: m, events: rec, disp: disp, draws: draws}
}

func (f *fleet) spawn(t *testing.T, id, template string, pos geom.Vec3) *npc.Controller {
	t.Helper()
	c, err := f.m.SpawnNPC(context.Background(), npc.SpawnParams{
		NPCID:      id,
		TemplateID: template,
		Transform:  geom.At(pos),
	})
	require.NoError(t, err)
	return c
}

// newController returns an initialized civilian at pos with the player at the origin.
func newController(t *testing.T, model inference.Service, pos geom.Vec3) (*npc.Controller, *event.Recorder) {
	t.Helper()
	if model == nil {
		model = idleModel()
	}
	rec := &event.Recorder{}
	c := npc.NewController(npc.Deps{
		Resources: resource.Permissive{},
		Inference: model,
		Bus:       rec,
		Random:    never,
		Clock:     fixedClock,
	})
	var tmpl *npc.Template
	for _, tt := range npc.DefaultTemplates() {
		if tt.ID == "civilian_neutral" {
			tmpl = tt
		}
	}
	require.NotNil(t, tmpl)
	require.NoError(t, c.Initialize(context.Background(), npc.BuildRecord(tmpl, npc.SpawnParams{
		NPCID:      "n1",
		TemplateID: tmpl.ID,
		Transform:  geom.At(pos),
	})))
	return c, rec
}
