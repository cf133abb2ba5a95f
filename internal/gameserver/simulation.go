// Package gameserver hosts the NPC subsystem: the Simulation that composes
// one frame, the FrameLoop that owns the frame goroutine, and the gRPC
// HostBridge through which a game host drives both.
package gameserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
)

// Simulation composes the fleet and the Dialogue System into one frame.
//
// Tick, Shutdown and every accessor that reaches a controller must be called
// from the frame goroutine.
type Simulation struct {
	fleet    *npc.Manager
	dialogue *dialogue.System
	logger   *zap.Logger

	mu     sync.Mutex
	camera *npc.Camera

	frames uint64
	drawn  int
}

// NewSimulation wires fleet and dlg together. Destroying an NPC ends its
// conversation as interrupted before the controller is torn down.
//
// Precondition: fleet and dlg must be non-nil.
func NewSimulation(fleet *npc.Manager, dlg *dialogue.System, logger *zap.Logger) *Simulation {
	if logger == nil {
		logger = zap.NewNop()
	}
	fleet.SetDestroyHook(dlg.HandleNPCDestroyed)
	return &Simulation{
		fleet:    fleet,
		dialogue: dlg,
		logger:   logger.Named("simulation"),
	}
}

// Fleet returns the NPC Manager.
func (s *Simulation) Fleet() *npc.Manager { return s.fleet }

// Dialogue returns the Dialogue System.
func (s *Simulation) Dialogue() *dialogue.System { return s.dialogue }

// SetCamera replaces the camera used by the render pass. nil disables
// frustum culling.
func (s *Simulation) SetCamera(cam *npc.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cam == nil {
		s.camera = nil
		return
	}
	c := *cam
	s.camera = &c
}

// Camera returns a copy of the current camera, or nil.
func (s *Simulation) Camera() *npc.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.camera == nil {
		return nil
	}
	c := *s.camera
	return &c
}

// Tick runs one frame: fleet update, dialogue update, render pass.
//
// Postcondition: Returns the number of draw calls issued.
func (s *Simulation) Tick(ctx context.Context, dt time.Duration) int {
	s.fleet.Update(ctx, dt)
	s.dialogue.Update(ctx)
	drawn := s.fleet.Render(s.Camera())
	s.frames++
	s.drawn = drawn
	return drawn
}

// Frames returns how many frames have run.
func (s *Simulation) Frames() uint64 { return s.frames }

// LastDrawn returns the draw calls of the last frame.
func (s *Simulation) LastDrawn() int { return s.drawn }

// SaveHistory persists conversation history through the dialogue's store.
func (s *Simulation) SaveHistory(ctx context.Context) error {
	return s.dialogue.SaveHistory(ctx)
}

// Shutdown ends any open conversation as interrupted, persists history, then
// destroys every NPC.
//
// Postcondition: The fleet is empty. A persistence error is returned after the
// fleet has been destroyed.
func (s *Simulation) Shutdown(ctx context.Context) error {
	start := time.Now()
	var errs []error
	if err := s.dialogue.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("dialogue shutdown: %w", err))
	}
	s.fleet.Shutdown(ctx)
	s.logger.Info("simulation shut down",
		zap.Uint64("frames", s.frames),
		zap.Duration("elapsed", time.Since(start)),
	)
	return errors.Join(errs...)
}
