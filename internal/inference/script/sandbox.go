// Package script implements the inference capability on a sandboxed
// GopherLua VM. Scripts define decide_behavior and generate_dialogue; the
// Model marshals requests into Lua tables and validates what comes back.
package script

import (
	"context"
	"errors"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the opcode budget for one script call when no
// limit is configured.
const DefaultInstructionLimit = 100_000

// ErrInstructionLimit is returned when a script call exhausts its budget.
var ErrInstructionLimit = errors.New("script: instruction limit exceeded")

// budgetContext cancels itself after Done has been called limit times.
// GopherLua's mainLoopWithContext calls Done once per opcode, which makes this
// an exact instruction count. The parent's cancellation still propagates.
type budgetContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
	exhausted atomic.Bool
}

// Done decrements the budget and cancels once it reaches zero.
func (c *budgetContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.exhausted.Store(true)
		c.cancel()
	}
	return c.Context.Done()
}

// newBudgetContext derives a context from parent that cancels after limit
// opcodes.
//
// Precondition: limit > 0.
func newBudgetContext(parent context.Context, limit int) *budgetContext {
	base, cancel := context.WithCancel(parent)
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &budgetContext{Context: base, cancel: cancel, remaining: rem}
}

// NewSandboxedState creates a GopherLua LState with only the base, table,
// string and math libraries, and with dofile, loadfile, load,
// collectgarbage and require removed.
//
// The state carries no instruction budget; callers bound each execution with
// runBudgeted.
//
// Postcondition: Returns a non-nil LState. The caller must Close it.
func NewSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, name := range []string{"dofile", "loadfile", "load", "collectgarbage", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// runBudgeted runs fn with L bound to a context that expires after limit
// opcodes or when ctx ends, whichever comes first.
//
// Postcondition: L has no context attached on return. A budget overrun is
// reported as ErrInstructionLimit; a parent cancellation as ctx.Err().
func runBudgeted(ctx context.Context, L *lua.LState, limit int, fn func() error) error {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	bctx := newBudgetContext(ctx, limit)
	defer bctx.cancel()
	L.SetContext(bctx)
	defer L.RemoveContext()

	err := fn()
	if err == nil {
		return nil
	}
	if perr := ctx.Err(); perr != nil {
		return perr
	}
	if bctx.exhausted.Load() {
		return ErrInstructionLimit
	}
	return err
}
