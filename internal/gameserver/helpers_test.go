package gameserver_test

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
	"github.com/cory-johannsen/npcfleet/internal/game/dice"
	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
	"github.com/cory-johannsen/npcfleet/internal/game/resource"
	"github.com/cory-johannsen/npcfleet/internal/gameserver"
	"github.com/cory-johannsen/npcfleet/internal/inference"
)

// friendlyModel greets, says goodbye when asked to leave, and keeps NPCs idle.
func friendlyModel() inference.Funcs {
	return inference.Funcs{
		Behavior: func(_ context.Context, req inference.BehaviorRequest) (inference.BehaviorResponse, error) {
			action := req.AvailableActions[0]
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

type drawCounter struct{ n atomic.Int64 }

func (d *drawCounter) Draw(npc.DrawCommand) { d.n.Add(1) }

type world struct {
	sim     *gameserver.Simulation
	fleet   *npc.Manager
	dlg     *dialogue.System
	events  *gameserver.HostEventBuffer
	history *dialogue.MemoryHistory
	draws   *drawCounter
}

func newWorld(t *testing.T, model inference.Service) *world {
	t.Helper()
	if model == nil {
		model = friendlyModel()
	}
	disp := event.NewDispatcher(zap.NewNop())
	buf := gameserver.NewHostEventBuffer(0)
	disp.SubscribeAll(buf.Publish)
	draws := &drawCounter{}

	settings := npc.DefaultSettings()
	settings.DeferDialogueGreeting = dialogue.DefaultSettings().AutoStart
	fleet, err := npc.NewManager(settings, npc.ManagerDeps{
		Resources: resource.Permissive{},
		Inference: model,
		Graphics:  draws,
		Bus:       disp,
		Events:    disp,
		Random:    dice.FixedSource{Value: 1 << 30},
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, fleet.RegisterDefaultTemplates())

	history := dialogue.NewMemoryHistory()
	dlg, err := dialogue.NewSystem(dialogue.DefaultSettings(), dialogue.Deps{
		Roster:    fleet,
		Inference: model,
		Bus:       disp,
		Events:    disp,
		History:   history,
	}, zap.NewNop())
	require.NoError(t, err)

	return &world{
		sim:     gameserver.NewSimulation(fleet, dlg, zap.NewNop()),
		fleet:   fleet,
		dlg:     dlg,
		events:  buf,
		history: history,
		draws:   draws,
	}
}

func (w *world) spawn(t *testing.T, id, template string, pos geom.Vec3) *npc.Controller {
	t.Helper()
	c, err := w.fleet.SpawnNPC(context.Background(), npc.SpawnParams{
		NPCID:      id,
		TemplateID: template,
		Transform:  geom.At(pos),
	})
	require.NoError(t, err)
	return c
}

// tickUntil runs frames on the test goroutine until cond holds.
func (w *world) tickUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w.sim.Tick(context.Background(), 10*time.Millisecond)
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached; dialogue state %s", w.dlg.State())
}

// startLoop runs the frame loop for w until the test ends.
func startLoop(t *testing.T, w *world) *gameserver.FrameLoop {
	t.Helper()
	loop := gameserver.NewFrameLoop(5*time.Millisecond, func(ctx context.Context, dt time.Duration) {
		w.sim.Tick(ctx, dt)
	}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return loop
}

// dialBridge serves a HostBridge for w over an in-memory listener.
func dialBridge(t *testing.T, w *world) *gameserver.Client {
	t.Helper()
	loop := startLoop(t, w)
	bridge := gameserver.NewHostBridge(w.sim, loop, w.events, zap.NewNop())

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	gameserver.RegisterHostBridgeServer(srv, bridge)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return gameserver.NewClient(conn)
}
