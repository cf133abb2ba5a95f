//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/config"
	"github.com/cory-johannsen/npcfleet/internal/gameserver"
)

var serverSet = wire.NewSet(
	provideTelemetry,
	provideMetrics,
	provideResources,
	provideInference,
	provideHistory,
	provideDispatcher,
	provideHostEvents,
	provideFleet,
	provideDialogue,
	gameserver.NewSimulation,
	provideFrameLoop,
	gameserver.NewHostBridge,
	provideGRPCServer,
	provideLifecycle,
	wire.Struct(new(App), "*"),
)

func initializeApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(serverSet)
	return nil, nil, nil
}
