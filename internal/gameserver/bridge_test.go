package gameserver_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/gameserver"
)

func requireCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, status.Code(err), "error: %v", err)
}

// awaitDialogue polls DialogueState until its state is want.
func awaitDialogue(t *testing.T, c *gameserver.Client, want string) map[string]any {
	t.Helper()
	var view map[string]any
	require.Eventually(t, func() bool {
		var err error
		view, err = c.DialogueState(context.Background())
		return err == nil && view["state"] == want
	}, 3*time.Second, 5*time.Millisecond, "last view %v", view)
	return view
}

func TestBridge_SpawnListDestroy(t *testing.T) {
	w := newWorld(t, nil)
	c := dialBridge(t, w)
	ctx := context.Background()

	view, err := c.SpawnNPC(ctx, "n1", "guard_neutral", geom.V(4, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, "n1", view["id"])
	assert.Equal(t, "Guard", view["type"])
	assert.Equal(t, map[string]any{"x": 4.0, "y": 0.0, "z": 0.0}, view["position"])

	_, err = c.SpawnNPC(ctx, "n2", "merchant_neutral", geom.V(8, 0, 0))
	require.NoError(t, err)

	npcs, err := c.ListNPCs(ctx)
	require.NoError(t, err)
	assert.Len(t, npcs, 2)

	out, err := c.Call(ctx, gameserver.MethodDestroyNPC, map[string]any{"npc_id": "n1"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out["npcs"])
}

func TestBridge_SpawnErrors(t *testing.T) {
	w := newWorld(t, nil)
	c := dialBridge(t, w)
	ctx := context.Background()

	_, err := c.SpawnNPC(ctx, "n1", "no_such_template", geom.V(0, 0, 0))
	requireCode(t, err, codes.NotFound)

	_, err = c.SpawnNPC(ctx, "n1", "civilian_neutral", geom.V(0, 0, 0))
	require.NoError(t, err)
	_, err = c.SpawnNPC(ctx, "n1", "civilian_neutral", geom.V(0, 0, 0))
	requireCode(t, err, codes.AlreadyExists)

	_, err = c.Call(ctx, gameserver.MethodSpawnNPC, map[string]any{
		"npc_id":      "n2",
		"template_id": "civilian_neutral",
		"faction":     "Pirates",
	})
	requireCode(t, err, codes.InvalidArgument)

	_, err = c.SpawnNPC(ctx, "", "civilian_neutral", geom.V(0, 0, 0))
	requireCode(t, err, codes.InvalidArgument)
}

func TestBridge_SpawnRejectsNonNumericValues(t *testing.T) {
	w := newWorld(t, nil)
	c := dialBridge(t, w)
	ctx := context.Background()

	for name, extra := range map[string]map[string]any{
		"string trait":      {"personality": map[string]any{"curiosity": "high"}},
		"string standing":   {"relationship": map[string]any{"trust": "high"}},
		"NaN standing":      {"relationship": map[string]any{"fear": math.NaN()}},
		"infinite standing": {"relationship": map[string]any{"trust": math.Inf(1)}},
		"scalar overrides":  {"relationship": 0.5},
		"string axis":       {"position": map[string]any{"x": "a", "y": 0, "z": 0}},
		"scalar position":   {"position": "here"},
	} {
		in := map[string]any{"npc_id": "n1", "template_id": "civilian_neutral"}
		for k, v := range extra {
			in[k] = v
		}
		_, err := c.Call(ctx, gameserver.MethodSpawnNPC, in)
		requireCode(t, err, codes.InvalidArgument)
		assert.Contains(t, status.Convert(err).Message(), "must be", name)
	}

	npcs, err := c.ListNPCs(ctx)
	require.NoError(t, err)
	assert.Empty(t, npcs)

	view, err := c.Call(ctx, gameserver.MethodSpawnNPC, map[string]any{
		"npc_id":       "n1",
		"template_id":  "civilian_neutral",
		"position":     map[string]any{"x": 2},
		"relationship": map[string]any{"trust": 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 2.0, "y": 0.0, "z": 0.0}, view["position"])
	rel, ok := view["relationship"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.9, rel["trust"], 1e-9)
}

func TestBridge_DestroyUnknown(t *testing.T) {
	w := newWorld(t, nil)
	c := dialBridge(t, w)
	_, err := c.Call(context.Background(), gameserver.MethodDestroyNPC, map[string]any{"npc_id": "ghost"})
	requireCode(t, err, codes.NotFound)
}

func TestBridge_UpdatePlayerLocation(t *testing.T) {
	w := newWorld(t, nil)
	c := dialBridge(t, w)
	ctx := context.Background()
	_, err := c.SpawnNPC(ctx, "n1", "civilian_neutral", geom.V(1, 0, 0))
	require.NoError(t, err)

	out, err := c.UpdatePlayerLocation(ctx, geom.V(0, 0, 0), geom.V(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1.0, out["interactable"])

	_, err = c.Call(ctx, gameserver.MethodUpdatePlayerLocation, map[string]any{
		"position":   map[string]any{"x": 0, "y": 0, "z": 0},
		"direction":  map[string]any{"x": 1, "y": 0, "z": 0},
		"camera_fov": 1.5,
	})
	require.NoError(t, err)
	cam := w.sim.Camera()
	require.NotNil(t, cam)
	assert.Equal(t, 1.5, cam.FOV)
	assert.Equal(t, geom.V(1, 0, 0), cam.Forward)

	_, err = c.Call(ctx, gameserver.MethodUpdatePlayerLocation, map[string]any{})
	requireCode(t, err, codes.InvalidArgument)
	_, err = c.Call(ctx, gameserver.MethodUpdatePlayerLocation, map[string]any{
		"position": map[string]any{"x": "far", "y": 0, "z": 0},
	})
	requireCode(t, err, codes.InvalidArgument)
	_, err = c.Call(ctx, gameserver.MethodUpdatePlayerLocation, map[string]any{
		"position":   map[string]any{"x": 0, "y": 0, "z": 0},
		"camera_fov": "wide",
	})
	requireCode(t, err, codes.InvalidArgument)
	assert.Equal(t, 1.5, w.sim.Camera().FOV, "rejected update leaves the camera alone")
}

func TestBridge_ConversationRoundTrip(t *testing.T) {
	w := newWorld(t, nil)
	c := dialBridge(t, w)
	ctx := context.Background()

	_, err := c.SpawnNPC(ctx, "n1", "civilian_neutral", geom.V(1, 0, 0))
	require.NoError(t, err)
	_, err = c.UpdatePlayerLocation(ctx, geom.V(0, 0, 0), geom.V(1, 0, 0))
	require.NoError(t, err)

	view, err := c.StartConversation(ctx, "n1", "harvest")
	require.NoError(t, err)
	assert.Equal(t, true, view["active"])
	assert.Equal(t, "n1", view["npc_id"])
	assert.Equal(t, "harvest", view["topic"])

	view = awaitDialogue(t, c, "WaitingForChoice")
	choices, ok := view["choices"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, choices)
	last, ok := view["last_exchange"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hello.", last["message"])
	assert.Equal(t, "friendly", last["tone"])

	_, err = c.SelectChoice(ctx, 99)
	requireCode(t, err, codes.InvalidArgument)

	_, err = c.SelectChoice(ctx, 0)
	require.NoError(t, err)
	awaitDialogue(t, c, "WaitingForChoice")

	view, err = c.EndConversation(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, false, view["active"])
	assert.Equal(t, "Inactive", view["state"])

	events, err := c.DrainEvents(ctx, 0)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e["type"].(string))
	}
	assert.Contains(t, types, "npc_spawn")
	assert.Contains(t, types, "dialogue_started")
	assert.Contains(t, types, "dialogue_choice_selected")
	assert.Contains(t, types, "dialogue_ended")
}

func TestBridge_ConversationErrors(t *testing.T) {
	w := newWorld(t, nil)
	c := dialBridge(t, w)
	ctx := context.Background()

	_, err := c.StartConversation(ctx, "", "")
	requireCode(t, err, codes.InvalidArgument)

	_, err = c.StartConversation(ctx, "ghost", "")
	requireCode(t, err, codes.FailedPrecondition)

	_, err = c.SelectChoice(ctx, 0)
	requireCode(t, err, codes.FailedPrecondition)

	_, err = c.Call(ctx, gameserver.MethodSelectChoice, map[string]any{})
	requireCode(t, err, codes.InvalidArgument)

	_, err = c.Call(ctx, gameserver.MethodSubmitPlayerMessage, map[string]any{"message": "hi"})
	requireCode(t, err, codes.FailedPrecondition)

	_, err = c.EndConversation(ctx, "because")
	requireCode(t, err, codes.InvalidArgument)

	view, err := c.EndConversation(ctx, "timeout")
	require.NoError(t, err, "ending without a conversation is a no-op")
	assert.Equal(t, false, view["active"])
}

func TestBridge_TriggerInteraction(t *testing.T) {
	w := newWorld(t, nil)
	c := dialBridge(t, w)
	ctx := context.Background()

	_, err := c.TriggerInteraction(ctx, "ghost", "wave", "")
	requireCode(t, err, codes.NotFound)

	_, err = c.TriggerInteraction(ctx, "", "wave", "")
	requireCode(t, err, codes.InvalidArgument)

	_, err = c.TriggerInteraction(ctx, "ghost", "wave", "juggling")
	requireCode(t, err, codes.InvalidArgument)

	_, err = c.SpawnNPC(ctx, "n1", "civilian_neutral", geom.V(1, 0, 0))
	require.NoError(t, err)
	_, err = c.UpdatePlayerLocation(ctx, geom.V(0, 0, 0), geom.V(1, 0, 0))
	require.NoError(t, err)

	_, err = c.TriggerInteraction(ctx, "n1", "greet", "")
	require.NoError(t, err)

	events, err := c.DrainEvents(ctx, 0)
	require.NoError(t, err)
	var interactions int
	for _, e := range events {
		if e["type"] == "npc_interaction" {
			interactions++
			payload := e["payload"].(map[string]any)
			assert.Equal(t, "n1", payload["npc_id"])
			assert.Equal(t, "greet", payload["player_action"])
		}
	}
	assert.Equal(t, 1, interactions)
}

func TestBridge_ListNPCsFilters(t *testing.T) {
	w := newWorld(t, nil)
	c := dialBridge(t, w)
	ctx := context.Background()

	_, err := c.SpawnNPC(ctx, "n1", "civilian_neutral", geom.V(1, 0, 0))
	require.NoError(t, err)
	_, err = c.SpawnNPC(ctx, "n2", "civilian_ashvattha", geom.V(2, 0, 0))
	require.NoError(t, err)

	out, err := c.Call(ctx, gameserver.MethodListNPCs, map[string]any{"faction": "Ashvattha"})
	require.NoError(t, err)
	npcs := out["npcs"].([]any)
	require.Len(t, npcs, 1)
	assert.Equal(t, "n2", npcs[0].(map[string]any)["id"])

	out, err = c.Call(ctx, gameserver.MethodListNPCs, map[string]any{"state": "Idle"})
	require.NoError(t, err)
	assert.Len(t, out["npcs"].([]any), 2)

	_, err = c.Call(ctx, gameserver.MethodListNPCs, map[string]any{"state": "Dancing"})
	requireCode(t, err, codes.InvalidArgument)
}

func TestBridge_DrainEventsLimit(t *testing.T) {
	w := newWorld(t, nil)
	c := dialBridge(t, w)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := c.SpawnNPC(ctx, id, "civilian_neutral", geom.V(50, 0, 0))
		require.NoError(t, err)
	}
	w.events.Drain(0)
	for _, id := range []string{"a", "b", "c"} {
		_, err := c.Call(ctx, gameserver.MethodDestroyNPC, map[string]any{"npc_id": id})
		require.NoError(t, err)
	}

	out, err := c.Call(ctx, gameserver.MethodDrainEvents, map[string]any{"limit": 2})
	require.NoError(t, err)
	assert.Len(t, out["events"].([]any), 2)
	assert.GreaterOrEqual(t, out["remaining"].(float64), 1.0)
}

func TestBridge_StoppedLoopIsUnavailable(t *testing.T) {
	w := newWorld(t, nil)
	loop := gameserver.NewFrameLoop(time.Millisecond, func(ctx context.Context, dt time.Duration) {
		w.sim.Tick(ctx, dt)
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()
	cancel()
	<-done

	bridge := gameserver.NewHostBridge(w.sim, loop, w.events, nil)
	_, err := bridge.DialogueState(context.Background(), nil)
	requireCode(t, err, codes.Unavailable)
}
