package npc

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/game/dice"
	"github.com/cory-johannsen/npcfleet/internal/game/event"
	"github.com/cory-johannsen/npcfleet/internal/game/geom"
	"github.com/cory-johannsen/npcfleet/internal/game/resource"
	"github.com/cory-johannsen/npcfleet/internal/inference"
)

// Settings tune the fleet.
type Settings struct {
	MaxUpdateDistance        float64
	MaxRenderDistance        float64
	MaxInteractionDistance   float64
	MaxActiveNPCs            int
	MaxUpdatesPerFrame       int
	UpdateIntervalMultiplier float64

	EnableDistanceCulling bool
	EnableFrustumCulling  bool
	EnableBatchUpdates    bool

	DebugLogging       bool
	PerformanceLogging bool
	StateLogging       bool

	// SystemUpdateEveryFrames is the NPCSystemUpdate cadence in frames.
	SystemUpdateEveryFrames int
	// PerformanceReportInterval is the report cadence when PerformanceLogging is on.
	PerformanceReportInterval time.Duration
	BehaviorTimeout           time.Duration
	DialogueTimeout           time.Duration
	// DeferDialogueGreeting is set when a dialogue system auto-starts
	// conversations; controllers then skip their own dialogue request on a
	// Dialogue interaction.
	DeferDialogueGreeting bool
}

// DefaultSettings returns the stock fleet settings.
func DefaultSettings() Settings {
	return Settings{
		MaxUpdateDistance:         200,
		MaxRenderDistance:         150,
		MaxInteractionDistance:    50,
		MaxActiveNPCs:             100,
		MaxUpdatesPerFrame:        20,
		UpdateIntervalMultiplier:  1,
		EnableDistanceCulling:     true,
		EnableFrustumCulling:      true,
		EnableBatchUpdates:        true,
		SystemUpdateEveryFrames:   60,
		PerformanceReportInterval: 10 * time.Second,
		BehaviorTimeout:           DefaultBehaviorTimeout,
		DialogueTimeout:           DefaultDialogueTimeout,
	}
}

// CullReactivateFraction is the share of MaxUpdateDistance within which a
// distance-culled NPC is reactivated.
const CullReactivateFraction = 0.8

// FleetMetrics receives fleet measurements.
type FleetMetrics interface {
	RecordFrame(ctx context.Context, active, visible, ticked int, elapsed time.Duration)
	RecordSpawn(ctx context.Context, faction string)
	RecordDestroy(ctx context.Context, reason string)
}

// ManagerDeps are the collaborators of a Manager. Resources, Inference,
// Graphics, and Bus are required.
type ManagerDeps struct {
	Resources resource.Cache
	Inference inference.Service
	Graphics  Graphics
	Bus       event.Bus
	Events    event.Subscriber
	Random    dice.Source
	Clock     func() time.Time
	Metrics   FleetMetrics
}

// FleetStats is a snapshot of fleet counters.
type FleetStats struct {
	NPCs              int
	Active            int
	Visible           int
	Interactable      int
	Templates         int
	Frames            uint64
	LastFrameTime     time.Duration
	TotalUpdateTime   time.Duration
	AverageUpdateTime time.Duration
}

// Manager owns the NPC fleet.
//
// The fleet map is guarded by one mutex. Controllers themselves are confined
// to the frame goroutine, so Update, Render, and every method that reaches a
// controller must be called from it. Callbacks run without the lock held and
// may call back into the Manager.
type Manager struct {
	settings Settings
	deps     ManagerDeps
	logger   *zap.Logger

	tmu       sync.RWMutex
	templates map[string]*Template

	mu           sync.Mutex
	npcs         map[string]*Controller
	active       []*Controller
	visible      []*Controller
	interactable []*Controller
	cursor       int

	playerPos geom.Vec3
	playerDir geom.Vec3

	frames      uint64
	lastFrame   time.Duration
	totalUpdate time.Duration
	sinceReport time.Duration

	onSpawn     func(c *Controller)
	onDestroy   func(id, reason string)
	onUpdate    func(dt time.Duration)
	destroyHook func(id string)
}

// NewManager creates an empty fleet.
//
// Precondition: deps.Resources, deps.Inference, deps.Graphics, and deps.Bus are non-nil.
// Postcondition: Returns an error wrapping ErrMissingCollaborator otherwise.
func NewManager(settings Settings, deps ManagerDeps, logger *zap.Logger) (*Manager, error) {
	if deps.Resources == nil || deps.Inference == nil || deps.Graphics == nil || deps.Bus == nil {
		return nil, fmt.Errorf("npc manager: resources, inference, graphics and bus are required: %w", ErrMissingCollaborator)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Random == nil {
		deps.Random = dice.NewCryptoSource()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if settings.MaxUpdatesPerFrame <= 0 {
		settings.MaxUpdatesPerFrame = 1
	}
	if settings.SystemUpdateEveryFrames <= 0 {
		settings.SystemUpdateEveryFrames = 60
	}
	if settings.PerformanceReportInterval <= 0 {
		settings.PerformanceReportInterval = 10 * time.Second
	}
	return &Manager{
		settings:  settings,
		deps:      deps,
		logger:    logger.Named("fleet"),
		templates: make(map[string]*Template),
		npcs:      make(map[string]*Controller),
	}, nil
}

// Settings returns the fleet settings.
func (m *Manager) Settings() Settings { return m.settings }

// RegisterTemplate validates t, preloads its resources, and stores a copy.
// An existing template with the same id is overwritten with a warning.
func (m *Manager) RegisterTemplate(t *Template) error {
	if t == nil {
		return fmt.Errorf("register template: nil template: %w", ErrInvalidParams)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	for _, r := range []struct {
		kind resource.Kind
		id   string
	}{
		{resource.KindMesh, t.MeshID},
		{resource.KindTexture, t.TextureID},
		{resource.KindModel, t.BehaviorModelID},
		{resource.KindModel, t.DialogueModelID},
	} {
		if r.id == "" {
			continue
		}
		if err := m.deps.Resources.Preload(r.kind, r.id); err != nil {
			m.logger.Warn("template resource missing",
				zap.String("template", t.ID),
				zap.String("kind", string(r.kind)),
				zap.String("resource_id", r.id),
				zap.Error(err),
			)
		}
	}

	m.tmu.Lock()
	_, existed := m.templates[t.ID]
	m.templates[t.ID] = t.Clone()
	m.tmu.Unlock()
	if existed {
		m.logger.Warn("template overwritten", zap.String("template", t.ID))
	}
	return nil
}

// RegisterDefaultTemplates registers the built-in seed set.
func (m *Manager) RegisterDefaultTemplates() error {
	for _, t := range DefaultTemplates() {
		if err := m.RegisterTemplate(t); err != nil {
			return err
		}
	}
	return nil
}

// UnregisterTemplate removes the template id. Spawned NPCs are unaffected.
//
// Postcondition: Returns false when id was not registered.
func (m *Manager) UnregisterTemplate(id string) bool {
	m.tmu.Lock()
	defer m.tmu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return false
	}
	delete(m.templates, id)
	return true
}

// GetTemplate returns a copy of the template id.
func (m *Manager) GetTemplate(id string) (*Template, bool) {
	m.tmu.RLock()
	defer m.tmu.RUnlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// ListTemplates returns the registered template ids in sorted order.
func (m *Manager) ListTemplates() []string {
	m.tmu.RLock()
	defer m.tmu.RUnlock()
	ids := make([]string, 0, len(m.templates))
	for id := range m.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) controllerDeps() Deps {
	return Deps{
		Resources:          m.deps.Resources,
		Inference:          m.deps.Inference,
		Bus:                m.deps.Bus,
		Events:             m.deps.Events,
		Random:             m.deps.Random,
		Clock:              m.deps.Clock,
		Logger:             m.logger,
		StateLogging:       m.settings.StateLogging,
		BehaviorTimeout:    m.settings.BehaviorTimeout,
		DialogueTimeout:    m.settings.DialogueTimeout,
		IntervalMultiplier: m.settings.UpdateIntervalMultiplier,

		DeferDialogueGreeting: m.settings.DeferDialogueGreeting,
	}
}

// admit checks duplicate id and population cap. Caller holds m.mu.
func (m *Manager) admit(id string) error {
	if _, exists := m.npcs[id]; exists {
		return fmt.Errorf("spawn %q: %w", id, ErrDuplicateNPC)
	}
	if len(m.npcs) >= m.settings.MaxActiveNPCs {
		return fmt.Errorf("spawn %q: %d npcs: %w", id, len(m.npcs), ErrPopulationCap)
	}
	return nil
}

// SpawnNPC creates an NPC from a registered template.
//
// Precondition: p passes Validate and names a registered template.
// Postcondition: On success the controller is in the fleet, the spawn callback
// has run, and NPCSpawn was published. The fleet never exceeds MaxActiveNPCs.
// On any error nothing is added.
func (m *Manager) SpawnNPC(ctx context.Context, p SpawnParams) (*Controller, error) {
	if err := p.Validate(); err != nil {
		m.logger.Warn("invalid spawn parameters", zap.Error(err))
		return nil, err
	}
	tmpl, ok := m.GetTemplate(p.TemplateID)
	if !ok {
		m.logger.Error("unknown template", zap.String("npc_id", p.NPCID), zap.String("template", p.TemplateID))
		return nil, fmt.Errorf("spawn %q: template %q: %w", p.NPCID, p.TemplateID, ErrUnknownTemplate)
	}

	m.mu.Lock()
	err := m.admit(p.NPCID)
	player := m.playerPos
	m.mu.Unlock()
	if err != nil {
		m.logger.Warn("spawn rejected", zap.Error(err))
		return nil, err
	}

	c := NewController(m.controllerDeps())
	c.UpdateDistanceToPlayer(player)
	if err := c.Initialize(ctx, BuildRecord(tmpl, p)); err != nil {
		m.logger.Error("npc initialization failed", zap.String("npc_id", p.NPCID), zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	if err := m.admit(p.NPCID); err != nil {
		m.mu.Unlock()
		c.Shutdown()
		m.logger.Warn("spawn rejected", zap.Error(err))
		return nil, err
	}
	m.npcs[p.NPCID] = c
	onSpawn := m.onSpawn
	m.mu.Unlock()

	if onSpawn != nil {
		onSpawn(c)
	}
	m.deps.Bus.Publish(event.New(event.NPCSpawn{
		NPCID:      c.ID(),
		Position:   c.Position(),
		Faction:    c.Faction().String(),
		TemplateID: tmpl.ID,
	}, m.deps.Clock()))
	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordSpawn(ctx, c.Faction().String())
	}
	m.logger.Info("npc spawned",
		zap.String("npc_id", c.ID()),
		zap.String("template", tmpl.ID),
		zap.Stringer("faction", c.Faction()),
	)
	return c, nil
}

// DestroyNPC removes id from the fleet.
//
// Postcondition: The destroy hook runs first, so a conversation with the NPC
// ends before it is torn down. Then the controller is shut down, the destroy
// callback runs, and NPCDestroy is published. Returns an error wrapping
// ErrUnknownNPC without effect when id is not in the fleet.
func (m *Manager) DestroyNPC(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	_, ok := m.npcs[id]
	hook := m.destroyHook
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("destroy %q: %w", id, ErrUnknownNPC)
	}
	if hook != nil {
		hook(id)
	}

	m.mu.Lock()
	c, ok := m.npcs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("destroy %q: %w", id, ErrUnknownNPC)
	}
	delete(m.npcs, id)
	onDestroy := m.onDestroy
	m.mu.Unlock()

	c.Shutdown()
	if onDestroy != nil {
		onDestroy(id, reason)
	}
	m.deps.Bus.Publish(event.New(event.NPCDestroy{NPCID: id, Reason: reason}, m.deps.Clock()))
	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordDestroy(ctx, reason)
	}
	m.categorize()
	m.logger.Info("npc destroyed", zap.String("npc_id", id), zap.String("reason", reason))
	return nil
}

// DestroyAllNPCs destroys every NPC in id order and returns how many were removed.
func (m *Manager) DestroyAllNPCs(ctx context.Context, reason string) int {
	n := 0
	for _, c := range m.NPCs() {
		if err := m.DestroyNPC(ctx, c.ID(), reason); err == nil {
			n++
		}
	}
	return n
}

// Shutdown destroys the whole fleet.
func (m *Manager) Shutdown(ctx context.Context) {
	n := m.DestroyAllNPCs(ctx, "shutdown")
	m.logger.Info("fleet shut down", zap.Int("destroyed", n))
}

// SetSpawnCallback installs fn to run after each successful spawn.
func (m *Manager) SetSpawnCallback(fn func(c *Controller)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSpawn = fn
}

// SetDestroyCallback installs fn to run after each destroy.
func (m *Manager) SetDestroyCallback(fn func(id, reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDestroy = fn
}

// SetUpdateCallback installs fn to run once per frame after the tick.
func (m *Manager) SetUpdateCallback(fn func(dt time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// SetDestroyHook installs fn to run before an NPC is torn down.
func (m *Manager) SetDestroyHook(fn func(id string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyHook = fn
}

// GetNPC returns the controller for id.
func (m *Manager) GetNPC(id string) (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.npcs[id]
	return c, ok
}

// Count returns the fleet size.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.npcs)
}

// NPCs returns every controller ordered by id.
func (m *Manager) NPCs() []*Controller {
	return m.filter(func(*Controller) bool { return true })
}

func (m *Manager) filter(keep func(c *Controller) bool) []*Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Controller, 0, len(m.npcs))
	for _, c := range m.npcs {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rec.ID < out[j].rec.ID })
	return out
}

// GetNPCsInRange returns the NPCs within radius of center.
func (m *Manager) GetNPCsInRange(center geom.Vec3, radius float64) []*Controller {
	return m.filter(func(c *Controller) bool {
		return c.rec.Transform.Position.Distance(center) <= radius
	})
}

// GetNPCsByFaction returns exactly the NPCs of faction f.
func (m *Manager) GetNPCsByFaction(f Faction) []*Controller {
	return m.filter(func(c *Controller) bool { return c.rec.Faction == f })
}

// GetNPCsByState returns the NPCs currently in s.
func (m *Manager) GetNPCsByState(s State) []*Controller {
	return m.filter(func(c *Controller) bool { return c.rec.State == s })
}

// GetInteractableNPCs returns the active NPCs that accept interactions and are
// within MaxInteractionDistance of the player.
func (m *Manager) GetInteractableNPCs() []*Controller {
	return m.filter(m.isInteractable)
}

func (m *Manager) isInteractable(c *Controller) bool {
	return c.initialized && c.rec.Active && c.rec.CanInteract &&
		c.rec.DistanceToPlayer <= m.settings.MaxInteractionDistance
}

// ActiveNPCs returns the active list of the last categorization, nearest first.
func (m *Manager) ActiveNPCs() []*Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Controller(nil), m.active...)
}

// VisibleNPCs returns the visible list of the last categorization.
func (m *Manager) VisibleNPCs() []*Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Controller(nil), m.visible...)
}

// SetAllNPCsActive activates or deactivates the whole fleet. Distance culling
// forgets the NPCs it had deactivated.
func (m *Manager) SetAllNPCsActive(active bool) {
	for _, c := range m.NPCs() {
		c.culled = false
		c.SetActive(active)
	}
	m.categorize()
}

// SetNPCsActiveInRange activates or deactivates the NPCs within radius of
// center and returns how many were affected.
func (m *Manager) SetNPCsActiveInRange(center geom.Vec3, radius float64, active bool) int {
	in := m.GetNPCsInRange(center, radius)
	for _, c := range in {
		c.culled = false
		c.SetActive(active)
	}
	m.categorize()
	return len(in)
}

// ChangeStateForFaction routes every NPC of f to s and returns how many now
// are in s.
func (m *Manager) ChangeStateForFaction(f Faction, s State, reason string) int {
	n := 0
	for _, c := range m.GetNPCsByFaction(f) {
		if err := c.RouteTo(s, reason); err == nil {
			n++
		}
	}
	return n
}

// UpdateAllNPCDistances recomputes every cached distance from pos.
func (m *Manager) UpdateAllNPCDistances(pos geom.Vec3) {
	for _, c := range m.NPCs() {
		c.UpdateDistanceToPlayer(pos)
	}
}

// PlayerPosition returns the last player position.
func (m *Manager) PlayerPosition() geom.Vec3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playerPos
}

// UpdatePlayerLocation stores the player transform, refreshes distances, and
// publishes PlayerLocationUpdate.
func (m *Manager) UpdatePlayerLocation(pos, dir geom.Vec3) {
	m.mu.Lock()
	m.playerPos = pos
	m.playerDir = dir
	m.mu.Unlock()

	m.UpdateAllNPCDistances(pos)
	m.deps.Bus.Publish(event.New(event.PlayerLocationUpdate{
		Position:     pos,
		Direction:    dir,
		ViewDistance: m.settings.MaxRenderDistance,
	}, m.deps.Clock()))
}

// TriggerPlayerInteraction forwards an interaction to npcID with the measured
// player distance.
func (m *Manager) TriggerPlayerInteraction(ctx context.Context, npcID, action string, t InteractionType) error {
	c, ok := m.GetNPC(npcID)
	if !ok {
		return fmt.Errorf("interaction with %q: %w", npcID, ErrUnknownNPC)
	}
	player := m.PlayerPosition()
	return c.TriggerInteraction(ctx, Interaction{
		Type:           t,
		PlayerAction:   action,
		PlayerPosition: player,
		Distance:       c.Position().Distance(player),
	})
}

// ShouldUpdateNPC reports whether c ticks this frame. Conversation, Alert,
// and Hostile NPCs tick at any distance.
func (m *Manager) ShouldUpdateNPC(c *Controller) bool {
	if !c.initialized || !c.rec.Active {
		return false
	}
	switch c.rec.State {
	case StateConversation, StateAlert, StateHostile:
		return true
	}
	return c.rec.DistanceToPlayer <= m.settings.MaxUpdateDistance
}

func sortByDistance(cs []*Controller) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].rec.DistanceToPlayer != cs[j].rec.DistanceToPlayer {
			return cs[i].rec.DistanceToPlayer < cs[j].rec.DistanceToPlayer
		}
		return cs[i].rec.ID < cs[j].rec.ID
	})
}

// categorize rebuilds the active, visible, and interactable lists.
func (m *Manager) categorize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = m.active[:0]
	m.visible = m.visible[:0]
	m.interactable = m.interactable[:0]
	for _, c := range m.npcs {
		if c.initialized && c.rec.Active {
			m.active = append(m.active, c)
		}
		if c.rec.InPlayerView && c.rec.Visible {
			m.visible = append(m.visible, c)
		}
		if m.isInteractable(c) {
			m.interactable = append(m.interactable, c)
		}
	}
	sortByDistance(m.active)
	sortByDistance(m.visible)
	sortByDistance(m.interactable)
}

// batch returns the controllers to tick this frame and advances the cursor.
func (m *Manager) batch() []*Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.active)
	if n == 0 {
		return nil
	}
	if !m.settings.EnableBatchUpdates {
		return append([]*Controller(nil), m.active...)
	}
	size := int(math.Ceil(float64(min(m.settings.MaxUpdatesPerFrame, n)) / 4))
	start := m.cursor % n
	out := make([]*Controller, 0, size)
	for i := 0; i < size; i++ {
		out = append(out, m.active[(start+i)%n])
	}
	m.cursor = (start + size) % n
	return out
}

// Update runs one fleet frame.
//
// Postcondition: Every active NPC accrues dt; the NPCs in this frame's batch
// tick with their accrued time. Over four consecutive frames with a stable
// active set of size N <= MaxUpdatesPerFrame every active NPC ticks.
func (m *Manager) Update(ctx context.Context, dt time.Duration) {
	start := time.Now()
	m.categorize()

	for _, c := range m.ActiveNPCs() {
		c.owed += dt
	}
	ticked := 0
	for _, c := range m.batch() {
		if !m.ShouldUpdateNPC(c) {
			c.owed = 0
			continue
		}
		c.Update(ctx, c.owed)
		c.owed = 0
		ticked++
	}

	m.mu.Lock()
	onUpdate := m.onUpdate
	m.mu.Unlock()
	if onUpdate != nil {
		onUpdate(dt)
	}

	if m.settings.EnableDistanceCulling {
		m.cull()
	}

	elapsed := time.Since(start)
	m.mu.Lock()
	m.frames++
	m.lastFrame = elapsed
	m.totalUpdate += elapsed
	frames, total := m.frames, m.totalUpdate
	active, visible := len(m.active), len(m.visible)
	m.sinceReport += dt
	report := m.settings.PerformanceLogging && m.sinceReport >= m.settings.PerformanceReportInterval
	if report {
		m.sinceReport = 0
	}
	m.mu.Unlock()

	if frames%uint64(m.settings.SystemUpdateEveryFrames) == 0 {
		m.deps.Bus.Publish(event.New(event.NPCSystemUpdate{
			ActiveNPCCount:    active,
			VisibleNPCCount:   visible,
			TotalUpdateTime:   total,
			AverageUpdateTime: total / time.Duration(frames),
		}, m.deps.Clock()))
	}
	if report {
		m.logger.Info("fleet performance",
			zap.Uint64("frames", frames),
			zap.Int("active", active),
			zap.Int("visible", visible),
			zap.Duration("last_frame", elapsed),
			zap.Duration("average_frame", total/time.Duration(frames)),
		)
	}
	if m.settings.DebugLogging {
		m.logger.Debug("fleet frame", zap.Int("ticked", ticked), zap.Duration("elapsed", elapsed))
	}
	if m.deps.Metrics != nil {
		m.deps.Metrics.RecordFrame(ctx, active, visible, ticked, elapsed)
	}
}

// cull deactivates NPCs beyond MaxUpdateDistance and reactivates the ones it
// deactivated once they are back within CullReactivateFraction of it.
// Conversation NPCs are never culled.
func (m *Manager) cull() {
	limit := m.settings.MaxUpdateDistance
	for _, c := range m.NPCs() {
		switch {
		case c.rec.Active && c.rec.DistanceToPlayer > limit && c.rec.State != StateConversation:
			c.SetActive(false)
			c.culled = true
		case c.culled && c.rec.DistanceToPlayer <= CullReactivateFraction*limit:
			c.SetActive(true)
			c.culled = false
		}
	}
}

// Stats returns a snapshot of fleet counters.
func (m *Manager) Stats() FleetStats {
	m.tmu.RLock()
	templates := len(m.templates)
	m.tmu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	s := FleetStats{
		NPCs:            len(m.npcs),
		Active:          len(m.active),
		Visible:         len(m.visible),
		Interactable:    len(m.interactable),
		Templates:       templates,
		Frames:          m.frames,
		LastFrameTime:   m.lastFrame,
		TotalUpdateTime: m.totalUpdate,
	}
	if m.frames > 0 {
		s.AverageUpdateTime = m.totalUpdate / time.Duration(m.frames)
	}
	return s
}
