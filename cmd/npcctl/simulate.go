package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/cory-johannsen/npcfleet/internal/config"
	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
	"github.com/cory-johannsen/npcfleet/internal/game/dice"
	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
	"github.com/cory-johannsen/npcfleet/internal/game/resource"
	"github.com/cory-johannsen/npcfleet/internal/gameserver"
	"github.com/cory-johannsen/npcfleet/internal/inference/script"
	"github.com/cory-johannsen/npcfleet/internal/observability"
)

type simulateOptions struct {
	configPath   string
	scripts      string
	templatesDir string
	npcs         int
	frames       int
	dt           time.Duration
	seed         uint64
	talk         bool
	turns        int
	verbose      bool
}

func simulateCmd() *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a headless fleet against the script model and report what happened",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "configuration file for fleet and dialogue settings")
	f.StringVar(&opts.scripts, "scripts", "content/scripts/ai", "directory of Lua NPC model scripts")
	f.StringVar(&opts.templatesDir, "templates", "", "additional NPC template directory")
	f.IntVar(&opts.npcs, "npcs", 8, "number of NPCs to spawn")
	f.IntVar(&opts.frames, "frames", 300, "frames to simulate")
	f.DurationVar(&opts.dt, "dt", time.Second/30, "simulated time per frame")
	f.Uint64Var(&opts.seed, "seed", 1, "random seed for the fleet and the scripts")
	f.BoolVar(&opts.talk, "talk", false, "converse with the nearest NPC, always taking the first available choice")
	f.IntVar(&opts.turns, "turns", 3, "player choices before ending the conversation")
	f.BoolVar(&opts.verbose, "verbose", false, "log at debug level")
	return cmd
}

func runSimulate(ctx context.Context, out io.Writer, opts simulateOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.npcs < 1 || opts.frames < 1 || opts.dt <= 0 {
		return fmt.Errorf("npcs, frames and dt must be positive")
	}

	cfg := config.Defaults()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg.Logging.Format = "console"
	cfg.Logging.Level = "warn"
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	random := dice.NewSeededSource(opts.seed)
	model, err := script.LoadDir(opts.scripts, script.Options{
		InstructionLimit: cfg.Inference.InstructionLimit,
		Random:           random,
	}, logger)
	if err != nil {
		return err
	}
	defer model.Close()

	disp := event.NewDispatcher(logger)
	var mu sync.Mutex
	counts := make(map[event.Type]int)
	disp.SubscribeAll(func(e event.Event) {
		mu.Lock()
		counts[e.Type]++
		mu.Unlock()
	})

	fleet, err := npc.NewManager(cfg.Fleet.Settings(), npc.ManagerDeps{
		Resources: resource.Permissive{},
		Inference: model,
		Graphics:  npc.GraphicsFunc(func(npc.DrawCommand) {}),
		Bus:       disp,
		Events:    disp,
		Random:    random,
	}, logger)
	if err != nil {
		return err
	}
	if err := fleet.RegisterDefaultTemplates(); err != nil {
		return err
	}
	if opts.templatesDir != "" {
		templates, err := npc.LoadTemplates(opts.templatesDir)
		if err != nil {
			return err
		}
		for _, t := range templates {
			if err := fleet.RegisterTemplate(t); err != nil {
				return err
			}
		}
	}

	settings := cfg.Dialogue.Settings()
	settings.AutoStart = false
	dlg, err := dialogue.NewSystem(settings, dialogue.Deps{
		Roster:    fleet,
		Inference: model,
		Bus:       disp,
		Events:    disp,
		History:   dialogue.NewMemoryHistory(),
	}, logger)
	if err != nil {
		return err
	}
	dlg.SetMessageCallback(func(ex dialogue.Exchange) {
		fmt.Fprintf(out, "  %s [%s]: %s\n", ex.Speaker, ex.Tone, ex.Message)
	})
	sim := gameserver.NewSimulation(fleet, dlg, logger)

	templates := fleet.ListTemplates()
	for i := 0; i < opts.npcs; i++ {
		angle := 2 * math.Pi * float64(i) / float64(opts.npcs)
		radius := 2 + float64(i)
		if _, err := fleet.SpawnNPC(ctx, npc.SpawnParams{
			NPCID:      fmt.Sprintf("npc-%02d", i),
			TemplateID: templates[i%len(templates)],
			Transform:  geom.At(geom.V(radius*math.Cos(angle), 0, radius*math.Sin(angle))),
		}); err != nil {
			return err
		}
	}
	fleet.UpdatePlayerLocation(geom.V(0, 0, 0), geom.V(1, 0, 0))

	turns := 0
	talking := false
	for frame := 0; frame < opts.frames; frame++ {
		sim.Tick(ctx, opts.dt)

		if !opts.talk {
			continue
		}
		if !talking && turns == 0 && !dlg.IsActive() {
			if target := nearestTalker(fleet); target != nil {
				fmt.Fprintf(out, "Conversation with %s (%s, %s):\n", target.Name(), target.Faction(), target.ID())
				if err := dlg.StartConversation(ctx, target.ID(), ""); err == nil {
					talking = true
				}
			}
			continue
		}
		if !talking {
			continue
		}
		switch {
		case !dlg.IsActive():
			talking = false
		case dlg.State() == dialogue.StateWaitingForChoice && turns >= opts.turns:
			_ = dlg.EndConversation(ctx, dialogue.EndPlayerChoice)
			talking = false
		case dlg.State() == dialogue.StateWaitingForChoice:
			if pickFirstAvailable(ctx, dlg) {
				turns++
			}
		}
		// Script replies arrive asynchronously; give them a moment.
		time.Sleep(time.Millisecond)
	}

	if err := sim.Shutdown(ctx); err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	printReport(out, fleet, counts, opts)
	return nil
}

func nearestTalker(fleet *npc.Manager) *npc.Controller {
	var best *npc.Controller
	for _, c := range fleet.GetInteractableNPCs() {
		if c.State() == npc.StateHostile {
			continue
		}
		if best == nil || c.DistanceToPlayer() < best.DistanceToPlayer() {
			best = c
		}
	}
	return best
}

func pickFirstAvailable(ctx context.Context, dlg *dialogue.System) bool {
	for i, ch := range dlg.Choices() {
		if ch.Available && ch.Type != dialogue.ChoicePoliteExit {
			return dlg.SelectChoice(ctx, i) == nil
		}
	}
	return false
}

func printReport(out io.Writer, fleet *npc.Manager, counts map[event.Type]int, opts simulateOptions) {
	stats := fleet.Stats()
	fmt.Fprintf(out, "Simulated %d frames (%s of game time)\n", opts.frames, time.Duration(opts.frames)*opts.dt)
	fmt.Fprintf(out, "Average fleet update: %s\n", stats.AverageUpdateTime)
	fmt.Fprintln(out, "Events:")
	for _, t := range []event.Type{
		event.TypeNPCSpawn,
		event.TypeNPCStateChange,
		event.TypeNPCInteraction,
		event.TypeNPCDialogueResponse,
		event.TypeDialogueStarted,
		event.TypeDialogueMessage,
		event.TypeDialogueChoiceSelected,
		event.TypeDialogueEnded,
		event.TypeNPCDestroy,
	} {
		if n := counts[t]; n > 0 {
			fmt.Fprintf(out, "  %-26s %d\n", t, n)
		}
	}
}
