package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/npcfleet/internal/config"
	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
	"github.com/cory-johannsen/npcfleet/internal/game/dice"
	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
	"github.com/cory-johannsen/npcfleet/internal/game/resource"
	"github.com/cory-johannsen/npcfleet/internal/gameserver"
	"github.com/cory-johannsen/npcfleet/internal/inference"
	"github.com/cory-johannsen/npcfleet/internal/inference/llm"
	"github.com/cory-johannsen/npcfleet/internal/inference/llm/anthropic"
	"github.com/cory-johannsen/npcfleet/internal/inference/llm/openai"
	"github.com/cory-johannsen/npcfleet/internal/inference/script"
	"github.com/cory-johannsen/npcfleet/internal/observability"
	"github.com/cory-johannsen/npcfleet/internal/server"
	"github.com/cory-johannsen/npcfleet/internal/storage/postgres"
	"github.com/cory-johannsen/npcfleet/internal/storage/redis"
)

// version is stamped by the linker.
var version = "dev"

// App is everything main needs once the graph is built.
type App struct {
	Lifecycle  *server.Lifecycle
	Simulation *gameserver.Simulation
	Logger     *zap.Logger
}

func provideTelemetry() (*observability.Provider, func(), error) {
	p, err := observability.InitMeterProvider("npcserver", version)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing metrics: %w", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	}
	return p, cleanup, nil
}

func provideMetrics(p *observability.Provider) (*observability.Metrics, error) {
	return observability.NewMetrics(p.MeterProvider)
}

func provideResources(cfg config.Config, logger *zap.Logger) (resource.Cache, error) {
	if cfg.Content.ManifestFile == "" {
		return resource.Permissive{}, nil
	}
	cache, err := resource.LoadManifest(cfg.Content.ManifestFile)
	if err != nil {
		return nil, err
	}
	logger.Info("resource manifest loaded", zap.String("path", cfg.Content.ManifestFile))
	return cache, nil
}

// provideInference builds the model stack: one model per faction behind a
// Router, each wrapped as Instrument(Breaker(model)) so circuit-open
// rejections are counted.
func provideInference(cfg config.Config, metrics *observability.Metrics, logger *zap.Logger) (inference.Service, func(), error) {
	ic := cfg.Inference
	wrap := func(name string, svc inference.Service) inference.Service {
		return inference.Instrument(inference.NewBreaker(svc, ic.BreakerSettings(name), logger), name, metrics)
	}

	switch ic.Provider {
	case config.ProviderScript:
		opts := script.Options{InstructionLimit: ic.InstructionLimit, Random: dice.NewCryptoSource()}
		base, err := script.LoadDir(ic.ScriptDir, opts, logger)
		if err != nil {
			return nil, nil, err
		}
		factions, err := script.LoadFactions(ic.ScriptDir, opts, logger)
		if err != nil {
			base.Close()
			return nil, nil, err
		}
		router := inference.NewRouter(wrap("script", base), logger)
		for faction, m := range factions {
			router.Register(faction, wrap("script/"+faction, m))
		}
		logger.Info("script inference ready",
			zap.String("dir", ic.ScriptDir),
			zap.Strings("factions", router.Factions()),
		)
		cleanup := func() {
			base.Close()
			for _, m := range factions {
				m.Close()
			}
		}
		return router, cleanup, nil

	case config.ProviderAnthropic, config.ProviderOpenAI:
		completer, err := newCompleter(ic)
		if err != nil {
			return nil, nil, err
		}
		model := func(name string) inference.Service {
			return llm.New(completer, llm.Options{
				Model:       name,
				MaxTokens:   ic.MaxTokens,
				Temperature: ic.Temperature,
			}, logger)
		}
		router := inference.NewRouter(wrap(ic.DefaultModel, model(ic.DefaultModel)), logger)
		factions := make([]string, 0, len(ic.FactionModels))
		for faction := range ic.FactionModels {
			factions = append(factions, faction)
		}
		sort.Strings(factions)
		for _, faction := range factions {
			name := ic.FactionModels[faction]
			router.Register(faction, wrap(name, model(name)))
		}
		logger.Info("llm inference ready",
			zap.String("provider", ic.Provider),
			zap.String("default_model", ic.DefaultModel),
			zap.Strings("factions", factions),
		)
		return router, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown inference provider %q", ic.Provider)
}

func newCompleter(ic config.InferenceConfig) (llm.Completer, error) {
	if ic.Provider == config.ProviderAnthropic {
		opts := []anthropic.Option{anthropic.WithTimeout(ic.RequestTimeout)}
		if ic.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(ic.BaseURL))
		}
		return anthropic.New(ic.APIKey, ic.DefaultModel, opts...)
	}
	opts := []openai.Option{openai.WithTimeout(ic.RequestTimeout)}
	if ic.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(ic.BaseURL))
	}
	return openai.New(ic.APIKey, ic.DefaultModel, opts...)
}

func provideHistory(ctx context.Context, cfg config.Config, logger *zap.Logger) (dialogue.HistoryStore, func(), error) {
	switch cfg.History.Backend {
	case config.HistoryMemory:
		return dialogue.NewMemoryHistory(), func() {}, nil
	case config.HistoryRedis:
		client, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("history backed by redis", zap.String("addr", cfg.Redis.Addr))
		store := redis.NewHistoryStore(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL, logger)
		return store, func() { _ = client.Close() }, nil
	case config.HistoryPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database, logger.Named("postgres"))
		if err != nil {
			return nil, nil, err
		}
		if err := pool.CheckSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("history backed by postgres", zap.String("host", cfg.Database.Host))
		return pool.History(), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
}

func provideDispatcher(logger *zap.Logger) *event.Dispatcher {
	return event.NewDispatcher(logger.Named("events"))
}

// provideHostEvents buffers every published event for DrainEvents.
func provideHostEvents(d *event.Dispatcher) *gameserver.HostEventBuffer {
	buf := gameserver.NewHostEventBuffer(gameserver.DefaultEventBufferSize)
	d.SubscribeAll(buf.Publish)
	return buf
}

func provideFleet(cfg config.Config, res resource.Cache, svc inference.Service, d *event.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) (*npc.Manager, error) {
	settings := cfg.Fleet.Settings()
	settings.DeferDialogueGreeting = cfg.Dialogue.AutoStart
	fleet, err := npc.NewManager(settings, npc.ManagerDeps{
		Resources: res,
		Inference: svc,
		// Rendering belongs to the host; the server only counts draw calls.
		Graphics: npc.GraphicsFunc(func(npc.DrawCommand) {}),
		Bus:      d,
		Events:   d,
		Random:   dice.NewCryptoSource(),
		Metrics:  metrics,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := fleet.RegisterDefaultTemplates(); err != nil {
		return nil, fmt.Errorf("registering default templates: %w", err)
	}
	if dir := cfg.Content.TemplatesDir; dir != "" {
		templates, err := npc.LoadTemplates(dir)
		if err != nil {
			return nil, err
		}
		for _, t := range templates {
			if err := fleet.RegisterTemplate(t); err != nil {
				return nil, fmt.Errorf("registering template %q: %w", t.ID, err)
			}
		}
		logger.Info("npc templates loaded", zap.String("dir", dir), zap.Int("count", len(templates)))
	}
	return fleet, nil
}

// historyLister is implemented by the persistent history stores.
type historyLister interface {
	NPCIDs(ctx context.Context) ([]string, error)
}

func provideDialogue(ctx context.Context, cfg config.Config, fleet *npc.Manager, svc inference.Service, d *event.Dispatcher, store dialogue.HistoryStore, metrics *observability.Metrics, logger *zap.Logger) (*dialogue.System, error) {
	sys, err := dialogue.NewSystem(cfg.Dialogue.Settings(), dialogue.Deps{
		Roster:    fleet,
		Inference: svc,
		Bus:       d,
		Events:    d,
		History:   store,
		Metrics:   metrics,
	}, logger)
	if err != nil {
		return nil, err
	}
	if lister, ok := store.(historyLister); ok {
		ids, err := lister.NPCIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing stored history: %w", err)
		}
		if err := sys.LoadHistory(ctx, ids...); err != nil {
			return nil, fmt.Errorf("loading stored history: %w", err)
		}
		logger.Info("conversation history restored", zap.Int("npcs", len(ids)))
	}
	return sys, nil
}

func provideFrameLoop(cfg config.Config, sim *gameserver.Simulation, logger *zap.Logger) *gameserver.FrameLoop {
	return gameserver.NewFrameLoop(cfg.Frame.Interval(), func(ctx context.Context, dt time.Duration) {
		sim.Tick(ctx, dt)
	}, logger)
}

func provideGRPCServer(bridge *gameserver.HostBridge) *grpc.Server {
	srv := grpc.NewServer()
	gameserver.RegisterHostBridgeServer(srv, bridge)
	hs := health.NewServer()
	hs.SetServingStatus(gameserver.HostBridgeServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// historySaver flushes conversation history on the frame goroutine every
// interval until ctx ends.
func historySaver(interval time.Duration, loop *gameserver.FrameLoop, sim *gameserver.Simulation, logger *zap.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				err := loop.Submit(ctx, sim.SaveHistory)
				switch {
				case err == nil:
					logger.Debug("history saved")
				case errors.Is(err, gameserver.ErrLoopStopped), errors.Is(err, context.Canceled):
					return ctx.Err()
				default:
					logger.Warn("saving history", zap.Error(err))
				}
			}
		}
	}
}

func provideLifecycle(cfg config.Config, logger *zap.Logger, telemetry *observability.Provider, sim *gameserver.Simulation, loop *gameserver.FrameLoop, grpcServer *grpc.Server) *server.Lifecycle {
	lc := server.NewLifecycle(logger)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		lc.Add("metrics", &server.HTTPService{
			Server: &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
			Logger: logger,
		})
	}

	lc.Add("frameloop", server.NewRunService(loop.Run))

	if cfg.History.SaveInterval > 0 {
		lc.Add("history", server.NewRunService(historySaver(cfg.History.SaveInterval, loop, sim, logger)))
	}

	addr := cfg.Bridge.Addr()
	lc.Add("bridge", &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", addr, err)
			}
			logger.Info("host bridge listening", zap.String("addr", lis.Addr().String()))
			return grpcServer.Serve(lis)
		},
		StopFn: grpcServer.GracefulStop,
	})
	return lc
}

func exitOnError(logger *zap.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logger.Error(msg, zap.Error(err))
	_ = logger.Sync()
	os.Exit(1)
}
