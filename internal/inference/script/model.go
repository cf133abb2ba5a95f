package script

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/game/dice"
	"github.com/cory-johannsen/npcfleet/internal/inference"
)

// Script entry points.
const (
	BehaviorHook = "decide_behavior"
	DialogueHook = "generate_dialogue"
)

// Options configures a Model.
type Options struct {
	// InstructionLimit bounds each call; <= 0 uses DefaultInstructionLimit.
	InstructionLimit int
	// Random backs engine.chance and engine.roll. nil uses a crypto source.
	Random dice.Source
}

// Model is an inference.Service backed by one sandboxed Lua VM.
//
// The VM is single-threaded; calls are serialised by mu.
type Model struct {
	mu     sync.Mutex
	L      *lua.LState
	name   string
	limit  int
	random dice.Source
	logger *zap.Logger
	now    func() time.Time
}

// LoadDir creates a Model from every *.lua file directly under dir, executed
// in lexicographic order.
//
// Precondition: dir must be a readable directory; logger must be non-nil.
// Postcondition: Returns an error if no script is found or any fails to load.
func LoadDir(dir string, opts Options, logger *zap.Logger) (*Model, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("script: reading %q: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("script: no *.lua files in %q", dir)
	}
	sort.Strings(files)

	m := newModel(filepath.Base(dir), opts, logger)
	for _, path := range files {
		if err := m.exec(func() error { return m.L.DoFile(path) }); err != nil {
			m.Close()
			return nil, fmt.Errorf("script: loading %q: %w", path, err)
		}
	}
	m.logger.Info("script model loaded", zap.Int("files", len(files)))
	return m, nil
}

// LoadString creates a Model from a single chunk of Lua source.
//
// Precondition: logger must be non-nil.
func LoadString(name, src string, opts Options, logger *zap.Logger) (*Model, error) {
	m := newModel(name, opts, logger)
	if err := m.exec(func() error { return m.L.DoString(src) }); err != nil {
		m.Close()
		return nil, fmt.Errorf("script: loading %q: %w", name, err)
	}
	return m, nil
}

// LoadFactions loads one Model per subdirectory of root, keyed by the
// subdirectory name. Subdirectories without scripts are skipped.
//
// Postcondition: On error every Model loaded so far is closed.
func LoadFactions(root string, opts Options, logger *zap.Logger) (map[string]*Model, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("script: reading %q: %w", root, err)
	}
	out := make(map[string]*Model)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		matches, _ := filepath.Glob(filepath.Join(dir, "*.lua"))
		if len(matches) == 0 {
			continue
		}
		m, err := LoadDir(dir, opts, logger)
		if err != nil {
			for _, loaded := range out {
				loaded.Close()
			}
			return nil, err
		}
		out[e.Name()] = m
	}
	return out, nil
}

func newModel(name string, opts Options, logger *zap.Logger) *Model {
	random := opts.Random
	if random == nil {
		random = dice.NewCryptoSource()
	}
	m := &Model{
		L:      NewSandboxedState(),
		name:   name,
		limit:  opts.InstructionLimit,
		random: random,
		logger: logger.With(zap.String("model", name)),
		now:    time.Now,
	}
	m.registerEngine()
	return m
}

// Name is the model's label: the directory or chunk name it was loaded from.
func (m *Model) Name() string { return m.name }

// Close releases the VM.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L != nil {
		m.L.Close()
		m.L = nil
	}
}

func (m *Model) exec(fn func() error) error {
	return runBudgeted(context.Background(), m.L, m.limit, fn)
}

// call invokes hook with arg and returns nret results.
func (m *Model) call(ctx context.Context, hook string, arg lua.LValue, nret int) ([]lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return nil, fmt.Errorf("script %s: %w", m.name, inference.ErrNoModel)
	}
	fn := m.L.GetGlobal(hook)
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("script %s: %s undefined: %w", m.name, hook, inference.ErrNoModel)
	}
	err := runBudgeted(ctx, m.L, m.limit, func() error {
		return m.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, arg)
	})
	if err != nil {
		m.logger.Warn("script call failed", zap.String("hook", hook), zap.Error(err))
		return nil, fmt.Errorf("script %s: %s: %w", m.name, hook, err)
	}
	out := make([]lua.LValue, nret)
	for i := range nret {
		out[i] = m.L.Get(-nret + i)
	}
	m.L.Pop(nret)
	return out, nil
}

// DecideBehavior implements inference.Service. The script returns
// (action, confidence, reasoning).
//
// Postcondition: On success SelectedAction is one of req.AvailableActions.
func (m *Model) DecideBehavior(ctx context.Context, req inference.BehaviorRequest) (inference.BehaviorResponse, error) {
	start := m.now()
	ret, err := m.call(ctx, BehaviorHook, m.behaviorTable(req), 3)
	if err != nil {
		return inference.BehaviorResponse{}, err
	}
	action, ok := ret[0].(lua.LString)
	if !ok || !inference.ContainsAction(req.AvailableActions, string(action)) {
		return inference.BehaviorResponse{}, fmt.Errorf("script %s: action %v not offered: %w",
			m.name, ret[0], inference.ErrMalformedReply)
	}
	conf := numberOr(ret[1], 0.5)
	return inference.BehaviorResponse{
		SelectedAction:    string(action),
		ActionConfidences: spreadConfidence(req.AvailableActions, string(action), conf),
		Reasoning:         lua.LVAsString(ret[2]),
		InferenceTime:     m.now().Sub(start),
		Success:           true,
	}, nil
}

// GenerateDialogue implements inference.Service. The script returns
// (text, tone, confidence, suggestions); suggestions is an optional array of
// strings.
//
// Postcondition: On success Response is non-empty.
func (m *Model) GenerateDialogue(ctx context.Context, req inference.DialogueRequest) (inference.DialogueResponse, error) {
	start := m.now()
	ret, err := m.call(ctx, DialogueHook, m.dialogueTable(req), 4)
	if err != nil {
		return inference.DialogueResponse{}, err
	}
	text, ok := ret[0].(lua.LString)
	if !ok || strings.TrimSpace(string(text)) == "" {
		return inference.DialogueResponse{}, fmt.Errorf("script %s: empty line: %w", m.name, inference.ErrMalformedReply)
	}
	tone := lua.LVAsString(ret[1])
	if tone == "" {
		tone = "neutral"
	}
	return inference.DialogueResponse{
		Response:                 string(text),
		EmotionalTone:            tone,
		SuggestedPlayerResponses: stringList(ret[3]),
		UpdatedEmotionalState:    cloneFloats(req.EmotionalState),
		Confidence:               clampUnit(numberOr(ret[2], 0.5)),
		InferenceTime:            m.now().Sub(start),
		Success:                  true,
	}, nil
}

func (m *Model) behaviorTable(req inference.BehaviorRequest) *lua.LTable {
	t := m.L.NewTable()
	t.RawSetString("faction", lua.LString(req.Faction))
	t.RawSetString("npc_type", lua.LString(req.NPCType))
	t.RawSetString("situation", lua.LString(req.Situation))
	t.RawSetString("available_actions", m.stringArray(req.AvailableActions))
	t.RawSetString("world_state", m.floatTable(req.WorldState))
	t.RawSetString("time_constraint_ms", lua.LNumber(req.TimeConstraint.Milliseconds()))
	return t
}

func (m *Model) dialogueTable(req inference.DialogueRequest) *lua.LTable {
	t := m.L.NewTable()
	t.RawSetString("faction", lua.LString(req.Faction))
	t.RawSetString("npc_id", lua.LString(req.NPCID))
	t.RawSetString("player_message", lua.LString(req.PlayerMessage))
	t.RawSetString("context", lua.LString(req.Context))
	t.RawSetString("emotional_state", m.floatTable(req.EmotionalState))
	t.RawSetString("recent_events", m.stringArray(req.RecentEvents))
	t.RawSetString("urgency", lua.LNumber(req.Urgency))
	return t
}

func (m *Model) stringArray(ss []string) *lua.LTable {
	t := m.L.CreateTable(len(ss), 0)
	for _, s := range ss {
		t.Append(lua.LString(s))
	}
	return t
}

func (m *Model) floatTable(vals map[string]float64) *lua.LTable {
	t := m.L.CreateTable(0, len(vals))
	for k, v := range vals {
		t.RawSetString(k, lua.LNumber(v))
	}
	return t
}

func numberOr(v lua.LValue, def float64) float64 {
	if n, ok := v.(lua.LNumber); ok && !math.IsNaN(float64(n)) {
		return float64(n)
	}
	return def
}

func stringList(v lua.LValue) []string {
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	t.ForEach(func(_, item lua.LValue) {
		if s, ok := item.(lua.LString); ok && s != "" {
			out = append(out, string(s))
		}
	})
	return out
}

// spreadConfidence gives the selected action conf and shares the remainder
// evenly across the other actions.
func spreadConfidence(actions []string, selected string, conf float64) []inference.ActionConfidence {
	conf = clampUnit(conf)
	rest := 0.0
	if len(actions) > 1 {
		rest = (1 - conf) / float64(len(actions)-1)
	}
	out := make([]inference.ActionConfidence, 0, len(actions))
	for _, a := range actions {
		c := rest
		if a == selected {
			c = conf
		}
		out = append(out, inference.ActionConfidence{Action: a, Confidence: c})
	}
	return out
}

func cloneFloats(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
