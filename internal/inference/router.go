package inference

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Router dispatches each request to the model registered for its faction,
// falling back to a default model. It models the inference service's set of
// loaded faction-specific models; registering replaces a model in place.
type Router struct {
	mu       sync.RWMutex
	models   map[string]Service
	fallback Service
	logger   *zap.Logger
}

// NewRouter creates a Router. fallback may be nil, in which case requests for
// unregistered factions fail with ErrNoModel.
//
// Precondition: logger must be non-nil.
func NewRouter(fallback Service, logger *zap.Logger) *Router {
	return &Router{
		models:   make(map[string]Service),
		fallback: fallback,
		logger:   logger,
	}
}

func factionKey(f string) string { return strings.ToLower(strings.TrimSpace(f)) }

// Register installs svc for faction, replacing any previous model.
//
// Precondition: faction must be non-empty; svc must be non-nil.
func (r *Router) Register(faction string, svc Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[factionKey(faction)]; ok {
		r.logger.Info("replacing faction model", zap.String("faction", faction))
	}
	r.models[factionKey(faction)] = svc
}

// Unregister removes the model for faction.
func (r *Router) Unregister(faction string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.models, factionKey(faction))
}

// Factions returns the sorted faction keys with a dedicated model.
func (r *Router) Factions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.models))
	for f := range r.models {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (r *Router) route(faction string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if svc, ok := r.models[factionKey(faction)]; ok {
		return svc, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("faction %q: %w", faction, ErrNoModel)
}

// GenerateDialogue implements Service.
func (r *Router) GenerateDialogue(ctx context.Context, req DialogueRequest) (DialogueResponse, error) {
	svc, err := r.route(req.Faction)
	if err != nil {
		return DialogueResponse{}, err
	}
	return svc.GenerateDialogue(ctx, req)
}

// DecideBehavior implements Service.
func (r *Router) DecideBehavior(ctx context.Context, req BehaviorRequest) (BehaviorResponse, error) {
	svc, err := r.route(req.Faction)
	if err != nil {
		return BehaviorResponse{}, err
	}
	return svc.DecideBehavior(ctx, req)
}
