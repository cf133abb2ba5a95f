// Package main provides the NPC server binary: the fleet, the Dialogue System
// and the frame loop behind a gRPC host bridge.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/config"
	"github.com/cory-johannsen/npcfleet/internal/observability"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	shutdownTimeout := flag.Duration("shutdown-timeout", 10*time.Second, "time allowed to end conversations and persist history")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, zap.String("service", "npcserver"))
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting npc server",
		zap.String("version", version),
		zap.String("bridge_addr", cfg.Bridge.Addr()),
		zap.String("inference", cfg.Inference.Provider),
		zap.String("history", cfg.History.Backend),
	)

	ctx := context.Background()
	app, cleanup, err := initializeApp(ctx, cfg, logger)
	exitOnError(logger, "building server", err)
	defer cleanup()

	logger.Info("npc server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("templates", app.Simulation.Fleet().Stats().Templates),
	)

	runErr := app.Lifecycle.Run(ctx)

	// The frame loop has stopped, so the simulation may be torn down here.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	if err := app.Simulation.Shutdown(shutdownCtx); err != nil {
		logger.Error("simulation shutdown", zap.Error(err))
	}
	if runErr != nil {
		cleanup()
		exitOnError(logger, "server stopped", runErr)
	}
}
