package gameserver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
)

func TestSimulation_TickRendersVisibleNPCs(t *testing.T) {
	w := newWorld(t, nil)
	w.spawn(t, "a", "civilian_neutral", geom.V(1, 0, 0))
	w.spawn(t, "b", "civilian_neutral", geom.V(2, 0, 0))
	w.fleet.UpdatePlayerLocation(geom.V(0, 0, 0), geom.V(1, 0, 0))

	drawn := w.sim.Tick(context.Background(), 0)
	assert.Equal(t, 2, drawn)
	assert.Equal(t, 2, w.sim.LastDrawn())
	assert.Equal(t, uint64(1), w.sim.Frames())
	assert.Equal(t, int64(2), w.draws.n.Load())
}

func TestSimulation_CameraIsCopied(t *testing.T) {
	w := newWorld(t, nil)
	assert.Nil(t, w.sim.Camera())

	cam := &npc.Camera{Position: geom.V(0, 0, 0), Forward: geom.V(1, 0, 0), FOV: 90}
	w.sim.SetCamera(cam)
	cam.FOV = 10
	got := w.sim.Camera()
	require.NotNil(t, got)
	assert.Equal(t, 90.0, got.FOV)

	got.FOV = 20
	assert.Equal(t, 90.0, w.sim.Camera().FOV)

	w.sim.SetCamera(nil)
	assert.Nil(t, w.sim.Camera())
}

func TestSimulation_ConversationAdvancesWithFrames(t *testing.T) {
	w := newWorld(t, nil)
	w.spawn(t, "n1", "civilian_neutral", geom.V(1, 0, 0))
	w.fleet.UpdatePlayerLocation(geom.V(0, 0, 0), geom.V(1, 0, 0))
	w.sim.Tick(context.Background(), 0)

	require.NoError(t, w.dlg.StartConversation(context.Background(), "n1", ""))
	w.tickUntil(t, func() bool { return w.dlg.State() == dialogue.StateWaitingForChoice })

	d, ok := w.dlg.Active()
	require.True(t, ok)
	assert.Equal(t, "n1", d.NPCID)
	assert.NotEmpty(t, d.Choices)

	c, ok := w.fleet.GetNPC("n1")
	require.True(t, ok)
	assert.Equal(t, npc.StateConversation, c.State())
}

func TestSimulation_DestroyInterruptsConversation(t *testing.T) {
	w := newWorld(t, nil)
	w.spawn(t, "n1", "civilian_neutral", geom.V(1, 0, 0))
	w.fleet.UpdatePlayerLocation(geom.V(0, 0, 0), geom.V(1, 0, 0))
	require.NoError(t, w.dlg.StartConversation(context.Background(), "n1", "weather"))
	w.tickUntil(t, func() bool { return w.dlg.State() == dialogue.StateWaitingForChoice })

	require.NoError(t, w.fleet.DestroyNPC(context.Background(), "n1", "despawn"))
	assert.Equal(t, dialogue.StateInactive, w.dlg.State())

	var reasons []string
	for _, e := range w.events.Drain(0) {
		if e.Type == event.TypeDialogueEnded {
			reasons = append(reasons, e.Payload.(event.DialogueEnded).Reason)
		}
	}
	assert.Equal(t, []string{dialogue.EndInterrupted.String()}, reasons)
}

func TestSimulation_ShutdownPersistsAndEmptiesFleet(t *testing.T) {
	w := newWorld(t, nil)
	w.spawn(t, "n1", "civilian_neutral", geom.V(1, 0, 0))
	w.spawn(t, "n2", "merchant_neutral", geom.V(3, 0, 0))
	w.fleet.UpdatePlayerLocation(geom.V(0, 0, 0), geom.V(1, 0, 0))
	require.NoError(t, w.dlg.StartConversation(context.Background(), "n1", ""))
	w.tickUntil(t, func() bool { return w.dlg.State() == dialogue.StateWaitingForChoice })

	require.NoError(t, w.sim.Shutdown(context.Background()))
	assert.Zero(t, w.fleet.Count())
	assert.Equal(t, dialogue.StateInactive, w.dlg.State())

	saved, err := w.history.Load(context.Background(), "n1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, dialogue.EndInterrupted.String(), saved[0].Reason)
}

func TestSimulation_SaveHistoryDelegates(t *testing.T) {
	w := newWorld(t, nil)
	assert.NoError(t, w.sim.SaveHistory(context.Background()))
	assert.Same(t, w.fleet, w.sim.Fleet())
	assert.Same(t, w.dlg, w.sim.Dialogue())
}
