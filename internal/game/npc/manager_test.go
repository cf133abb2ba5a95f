package npc_test

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
	"github.com/cory-johannsen/npcfleet/internal/game/resource"
	"github.com/cory-johannsen/npcfleet/internal/inference"
)

func TestNewManager_RequiresCollaborators(t *testing.T) {
	_, err := npc.NewManager(npc.DefaultSettings(), npc.ManagerDeps{
		Resources: resource.Permissive{},
		Inference: idleModel(),
		Bus:       &event.Recorder{},
	}, zap.NewNop())
	assert.ErrorIs(t, err, npc.ErrMissingCollaborator)
}

func TestSpawnAndDestroy(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	ctx := context.Background()

	f.spawn(t, "n1", "civilian_neutral", geom.V(0, 0, 0))
	assert.Equal(t, 1, f.m.Count())
	spawns := f.events.OfType(event.TypeNPCSpawn)
	require.Len(t, spawns, 1)
	sp := spawns[0].Payload.(event.NPCSpawn)
	assert.Equal(t, "n1", sp.NPCID)
	assert.Equal(t, "Neutral", sp.Faction)
	assert.Equal(t, "civilian_neutral", sp.TemplateID)

	require.NoError(t, f.m.DestroyNPC(ctx, "n1", "test"))
	assert.Equal(t, 0, f.m.Count())
	destroys := f.events.OfType(event.TypeNPCDestroy)
	require.Len(t, destroys, 1)
	assert.Equal(t, "test", destroys[0].Payload.(event.NPCDestroy).Reason)

	err := f.m.DestroyNPC(ctx, "n1", "test")
	assert.ErrorIs(t, err, npc.ErrUnknownNPC)
	assert.Len(t, f.events.OfType(event.TypeNPCDestroy), 1)
}

func TestSpawn_PopulationCap(t *testing.T) {
	settings := npc.DefaultSettings()
	settings.MaxActiveNPCs = 2
	f := newFleet(t, settings, nil)

	f.spawn(t, "a", "civilian_neutral", geom.V(1, 0, 0))
	f.spawn(t, "b", "civilian_neutral", geom.V(2, 0, 0))
	_, err := f.m.SpawnNPC(context.Background(), npc.SpawnParams{NPCID: "c", TemplateID: "civilian_neutral"})
	assert.ErrorIs(t, err, npc.ErrPopulationCap)
	assert.Equal(t, 2, f.m.Count())
}

func TestSpawn_Rejections(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	ctx := context.Background()
	f.spawn(t, "a", "civilian_neutral", geom.V(1, 0, 0))

	_, err := f.m.SpawnNPC(ctx, npc.SpawnParams{NPCID: "a", TemplateID: "civilian_neutral"})
	assert.ErrorIs(t, err, npc.ErrDuplicateNPC)
	_, err = f.m.SpawnNPC(ctx, npc.SpawnParams{NPCID: "", TemplateID: "civilian_neutral"})
	assert.ErrorIs(t, err, npc.ErrInvalidParams)
	_, err = f.m.SpawnNPC(ctx, npc.SpawnParams{NPCID: "b", TemplateID: "dragon"})
	assert.ErrorIs(t, err, npc.ErrUnknownTemplate)
	_, err = f.m.SpawnNPC(ctx, npc.SpawnParams{NPCID: "b", TemplateID: "civilian_neutral", Personality: map[string]float64{"charisma": 1}})
	assert.ErrorIs(t, err, npc.ErrInvalidParams)

	assert.Equal(t, 1, f.m.Count())
	assert.Len(t, f.events.OfType(event.TypeNPCSpawn), 1)
}

func TestSpawn_RejectsNonFiniteOverrides(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	ctx := context.Background()

	for i, p := range []npc.SpawnParams{
		{Relationship: map[string]float64{"fear": math.NaN()}},
		{Relationship: map[string]float64{"trust": math.Inf(1)}},
		{Personality: map[string]float64{"curiosity": math.NaN()}},
		{Personality: map[string]float64{"loyalty": math.Inf(-1)}},
	} {
		p.NPCID = fmt.Sprintf("n%d", i)
		p.TemplateID = "civilian_neutral"
		_, err := f.m.SpawnNPC(ctx, p)
		assert.ErrorIs(t, err, npc.ErrInvalidParams, "overrides %v", p)
	}
	assert.Equal(t, 0, f.m.Count())
}

func TestSpawn_AppliesOverrides(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	faction := npc.FactionVaikuntha
	c, err := f.m.SpawnNPC(context.Background(), npc.SpawnParams{
		NPCID:        "x",
		TemplateID:   "merchant_neutral",
		Name:         "Old Kem",
		Faction:      &faction,
		Personality:  map[string]float64{"curiosity": 2, "loyalty": 0.25},
		Relationship: map[string]float64{"trust": 0.9, "fear": -1},
		Hidden:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Old Kem", c.Name())
	assert.Equal(t, npc.FactionVaikuntha, c.Faction())
	assert.Equal(t, npc.RoleMerchant, c.Role())
	assert.InDelta(t, 1, c.Personality().Curiosity, 1e-9)
	assert.InDelta(t, 0.25, c.Personality().Loyalty, 1e-9)
	assert.InDelta(t, 0.9, c.Relationship().Trust, 1e-9)
	assert.InDelta(t, 0, c.Relationship().Fear, 1e-9)
	assert.True(t, c.IsActive())
	assert.False(t, c.IsVisible())

	tmpl, ok := f.m.GetTemplate("merchant_neutral")
	require.True(t, ok)
	assert.Equal(t, npc.FactionNeutral, tmpl.Faction, "template is not mutated by overrides")
}

func TestSpawn_Property_PopulationNeverExceedsCap(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		settings := npc.DefaultSettings()
		settings.MaxActiveNPCs = rapid.IntRange(1, 6).Draw(rt, "cap")
		f := newFleet(t, settings, nil)
		ops := rapid.SliceOfN(rapid.IntRange(0, 9), 1, 40).Draw(rt, "ops")
		for i, op := range ops {
			if op < 7 {
				_, _ = f.m.SpawnNPC(context.Background(), npc.SpawnParams{
					NPCID:      fmt.Sprintf("n%d", i),
					TemplateID: "civilian_neutral",
				})
			} else if all := f.m.NPCs(); len(all) > 0 {
				require.NoError(rt, f.m.DestroyNPC(context.Background(), all[0].ID(), "churn"))
			}
			assert.LessOrEqual(rt, f.m.Count(), settings.MaxActiveNPCs)
		}
	})
}

func TestGetNPCsByFaction_Property_PartitionsFleet(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFleet(t, npc.DefaultSettings(), nil)
		factions := rapid.SliceOfN(rapid.IntRange(0, 3), 0, 20).Draw(rt, "factions")
		for i, fi := range factions {
			faction := npc.Faction(fi)
			_, err := f.m.SpawnNPC(context.Background(), npc.SpawnParams{
				NPCID:      fmt.Sprintf("n%d", i),
				TemplateID: "scholar_neutral",
				Faction:    &faction,
			})
			require.NoError(rt, err)
		}
		total := 0
		for _, faction := range npc.AllFactions() {
			got := f.m.GetNPCsByFaction(faction)
			for _, c := range got {
				assert.Equal(rt, faction, c.Faction())
			}
			total += len(got)
		}
		assert.Equal(rt, f.m.Count(), total)
	})
}

func TestUpdate_Property_BatchFairness(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		settings := npc.DefaultSettings()
		settings.MaxUpdatesPerFrame = rapid.IntRange(1, 20).Draw(rt, "max_per_frame")
		n := rapid.IntRange(1, settings.MaxUpdatesPerFrame).Draw(rt, "n")
		warmup := rapid.IntRange(0, 7).Draw(rt, "warmup")
		f := newFleet(t, settings, nil)

		ticks := make(map[string]int)
		for i := 0; i < n; i++ {
			c := f.spawn(t, fmt.Sprintf("n%02d", i), "civilian_neutral", geom.V(float64(i+1), 0, 0))
			c.SetUpdateCallback(func(c *npc.Controller, _ time.Duration) { ticks[c.ID()]++ })
		}
		for i := 0; i < warmup; i++ {
			f.m.Update(context.Background(), 16*time.Millisecond)
		}
		clear(ticks)
		for i := 0; i < 4; i++ {
			f.m.Update(context.Background(), 16*time.Millisecond)
		}
		for i := 0; i < n; i++ {
			assert.GreaterOrEqual(rt, ticks[fmt.Sprintf("n%02d", i)], 1)
		}
	})
}

func TestUpdate_BatchedTicksReceiveAccruedTime(t *testing.T) {
	settings := npc.DefaultSettings()
	settings.MaxUpdatesPerFrame = 4
	f := newFleet(t, settings, nil)
	got := make(map[string][]time.Duration)
	for i := 0; i < 4; i++ {
		c := f.spawn(t, fmt.Sprintf("n%d", i), "civilian_neutral", geom.V(float64(i+1), 0, 0))
		c.SetUpdateCallback(func(c *npc.Controller, dt time.Duration) { got[c.ID()] = append(got[c.ID()], dt) })
	}
	for i := 0; i < 8; i++ {
		f.m.Update(context.Background(), 10*time.Millisecond)
	}
	for id, dts := range got {
		require.Len(t, dts, 2, id)
		assert.Equal(t, 40*time.Millisecond, dts[1], id)
	}
}

func TestUpdate_DistanceCullingHysteresis(t *testing.T) {
	settings := npc.DefaultSettings()
	f := newFleet(t, settings, nil)
	far := f.spawn(t, "far", "civilian_neutral", geom.V(250, 0, 0))
	near := f.spawn(t, "near", "civilian_neutral", geom.V(10, 0, 0))
	f.m.SetNPCsActiveInRange(geom.V(10, 0, 0), 1, false)

	f.m.Update(context.Background(), 16*time.Millisecond)
	assert.False(t, far.IsActive())

	f.m.UpdatePlayerLocation(geom.V(60, 0, 0), geom.V(1, 0, 0))
	f.m.Update(context.Background(), 16*time.Millisecond)
	assert.False(t, far.IsActive(), "190 is inside the hysteresis band")

	f.m.UpdatePlayerLocation(geom.V(100, 0, 0), geom.V(1, 0, 0))
	f.m.Update(context.Background(), 16*time.Millisecond)
	assert.True(t, far.IsActive())
	assert.False(t, near.IsActive(), "administrative deactivation sticks")
}

func TestUpdate_PublishesSystemUpdate(t *testing.T) {
	settings := npc.DefaultSettings()
	settings.SystemUpdateEveryFrames = 2
	f := newFleet(t, settings, nil)
	f.spawn(t, "a", "civilian_neutral", geom.V(1, 0, 0))
	for i := 0; i < 4; i++ {
		f.m.Update(context.Background(), 16*time.Millisecond)
	}
	updates := f.events.OfType(event.TypeNPCSystemUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, 1, updates[1].Payload.(event.NPCSystemUpdate).ActiveNPCCount)
	assert.Equal(t, uint64(4), f.m.Stats().Frames)
}

func TestShouldUpdateNPC(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	c := f.spawn(t, "a", "civilian_neutral", geom.V(300, 0, 0))
	assert.False(t, f.m.ShouldUpdateNPC(c))
	require.NoError(t, c.RouteTo(npc.StateAlert, "test"))
	assert.True(t, f.m.ShouldUpdateNPC(c))
	c.SetActive(false)
	assert.False(t, f.m.ShouldUpdateNPC(c))
}

func TestQueries(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	f.spawn(t, "a", "guard_vaikuntha", geom.V(5, 0, 0))
	f.spawn(t, "b", "civilian_neutral", geom.V(40, 0, 0))
	f.spawn(t, "c", "civilian_neutral", geom.V(80, 0, 0))

	ids := func(cs []*npc.Controller) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.ID())
		}
		return out
	}
	assert.Equal(t, []string{"a", "b"}, ids(f.m.GetNPCsInRange(geom.V(0, 0, 0), 40)))
	assert.Equal(t, []string{"a"}, ids(f.m.GetNPCsByFaction(npc.FactionVaikuntha)))
	assert.Equal(t, []string{"a", "b"}, ids(f.m.GetInteractableNPCs()))

	n := f.m.ChangeStateForFaction(npc.FactionNeutral, npc.StatePatrol, "sweep")
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"b", "c"}, ids(f.m.GetNPCsByState(npc.StatePatrol)))
}

func TestUpdatePlayerLocation(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	c := f.spawn(t, "a", "civilian_neutral", geom.V(10, 0, 0))
	f.m.UpdatePlayerLocation(geom.V(10, 0, 3), geom.V(0, 0, 1))
	assert.InDelta(t, 3, c.DistanceToPlayer(), 1e-9)
	updates := f.events.OfType(event.TypePlayerLocationUpdate)
	require.Len(t, updates, 1)
	assert.InDelta(t, 150, updates[0].Payload.(event.PlayerLocationUpdate).ViewDistance, 1e-9)
}

func TestTriggerPlayerInteraction(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	c := f.spawn(t, "a", "merchant_neutral", geom.V(3, 0, 4))
	require.NoError(t, f.m.TriggerPlayerInteraction(context.Background(), "a", "trade", npc.InteractionTrade))
	assert.Equal(t, npc.StateConversation, c.State())
	ev := f.events.OfType(event.TypeNPCInteraction)
	require.Len(t, ev, 1)
	assert.InDelta(t, 5, ev[0].Payload.(event.NPCInteraction).InteractionDistance, 1e-9)

	err := f.m.TriggerPlayerInteraction(context.Background(), "ghost", "trade", npc.InteractionTrade)
	assert.ErrorIs(t, err, npc.ErrUnknownNPC)
}

func TestTriggerPlayerInteraction_DialogueGreeting(t *testing.T) {
	for _, deferred := range []bool{false, true} {
		t.Run(fmt.Sprintf("deferred=%v", deferred), func(t *testing.T) {
			var calls atomic.Int32
			model := idleModel()
			model.Dialogue = func(_ context.Context, _ inference.DialogueRequest) (inference.DialogueResponse, error) {
				calls.Add(1)
				return inference.DialogueResponse{Response: "Hello.", Success: true}, nil
			}
			settings := npc.DefaultSettings()
			settings.DeferDialogueGreeting = deferred
			f := newFleet(t, settings, model)
			c := f.spawn(t, "a", "civilian_neutral", geom.V(1, 0, 0))

			require.NoError(t, f.m.TriggerPlayerInteraction(context.Background(), "a", "greet", npc.InteractionDialogue))
			assert.Equal(t, npc.StateConversation, c.State())
			assert.Len(t, f.events.OfType(event.TypeNPCInteraction), 1)
			assert.Equal(t, 1, c.Relationship().ConversationCount)

			want := 1
			if deferred {
				want = 0
			}
			assert.Equal(t, int32(want), calls.Load())
			assert.Len(t, f.events.OfType(event.TypeNPCDialogueResponse), want)
		})
	}
}

func TestDestroy_HookRunsBeforeTeardown(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	f.spawn(t, "a", "civilian_neutral", geom.V(1, 0, 0))
	var order []string
	f.m.SetDestroyHook(func(id string) {
		_, still := f.m.GetNPC(id)
		assert.True(t, still)
		order = append(order, "hook")
	})
	f.m.SetDestroyCallback(func(id, reason string) { order = append(order, "callback:"+reason) })
	require.NoError(t, f.m.DestroyNPC(context.Background(), "a", "despawn"))
	assert.Equal(t, []string{"hook", "callback:despawn"}, order)
}

func TestTemplates_RegisterUnregisterRoundTrip(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	orig, ok := f.m.GetTemplate("guard_ashvattha")
	require.True(t, ok)

	assert.True(t, f.m.UnregisterTemplate("guard_ashvattha"))
	assert.False(t, f.m.UnregisterTemplate("guard_ashvattha"))
	_, ok = f.m.GetTemplate("guard_ashvattha")
	assert.False(t, ok)

	require.NoError(t, f.m.RegisterTemplate(orig))
	again, ok := f.m.GetTemplate("guard_ashvattha")
	require.True(t, ok)
	assert.Equal(t, orig, again)
	assert.Len(t, f.m.ListTemplates(), 16)
}

func TestRender_DrawsVisibleInRange(t *testing.T) {
	settings := npc.DefaultSettings()
	settings.EnableFrustumCulling = false
	f := newFleet(t, settings, nil)
	a := f.spawn(t, "a", "civilian_neutral", geom.V(5, 0, 0))
	f.spawn(t, "b", "civilian_neutral", geom.V(120, 0, 0))
	hidden := f.spawn(t, "c", "civilian_neutral", geom.V(6, 0, 0))
	hidden.SetVisible(false)

	assert.Equal(t, 1, f.m.Render(nil))
	require.Len(t, f.draws.cmds, 1)
	cmd := f.draws.cmds[0]
	assert.Equal(t, "a", cmd.NPCID)
	assert.Equal(t, "npc_civilian", cmd.MeshID)
	assert.Equal(t, "npc_civilian_neutral", cmd.TextureID)
	assert.Equal(t, a.Transform().WorldMatrix(), cmd.World)
}

func TestRender_FrustumCulling(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	f.spawn(t, "ahead", "civilian_neutral", geom.V(10, 0, 1))
	behind := f.spawn(t, "behind", "civilian_neutral", geom.V(-10, 0, 0))

	cam := &npc.Camera{Forward: geom.V(1, 0, 0), FOV: math.Pi / 2}
	assert.Equal(t, 1, f.m.Render(cam))
	assert.Equal(t, "ahead", f.draws.cmds[0].NPCID)
	assert.False(t, behind.InPlayerView())
}

func TestShutdown_DestroysFleet(t *testing.T) {
	f := newFleet(t, npc.DefaultSettings(), nil)
	f.spawn(t, "a", "civilian_neutral", geom.V(1, 0, 0))
	f.spawn(t, "b", "civilian_neutral", geom.V(2, 0, 0))
	f.m.Shutdown(context.Background())
	assert.Zero(t, f.m.Count())
	assert.Len(t, f.events.OfType(event.TypeNPCDestroy), 2)
}
