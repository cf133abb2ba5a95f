package script

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/game/dice"
)

// registerEngine installs the engine table scripts call into:
//
//	engine.chance(p)  true with probability p
//	engine.roll(n)    uniform integer in [1, n]
//	engine.log(msg)   debug log line tagged with the model name
func (m *Model) registerEngine() {
	engine := m.L.NewTable()
	m.L.SetFuncs(engine, map[string]lua.LGFunction{
		"chance": func(L *lua.LState) int {
			L.Push(lua.LBool(dice.Chance(m.random, float64(L.CheckNumber(1)))))
			return 1
		},
		"roll": func(L *lua.LState) int {
			n := L.CheckInt(1)
			if n < 1 {
				L.ArgError(1, "roll needs n >= 1")
				return 0
			}
			L.Push(lua.LNumber(m.random.Intn(n) + 1))
			return 1
		},
		"log": func(L *lua.LState) int {
			m.logger.Debug("script", zap.String("msg", L.CheckString(1)))
			return 0
		},
	})
	m.L.SetGlobal("engine", engine)
}
