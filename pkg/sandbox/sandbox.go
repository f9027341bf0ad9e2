// Package sandbox evaluates untrusted user expressions inside restricted Lua
// states: no os, io, debug or package libraries, no load/require escape
// hatches, and a context deadline on every run. CheckExpr offers a cheap AST
// pre-filter for validation time; the restricted state is the enforcement
// boundary.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// removed from the base library after opening it
var strippedGlobals = []string{
	"dofile", "loadfile", "load", "loadstring", "require",
	"collectgarbage", "print", "getfenv", "setfenv",
	"getmetatable", "setmetatable", "rawget", "rawset", "rawequal",
}

type Evaluator struct {
	pool *sync.Pool
}

func New() *Evaluator {
	return &Evaluator{
		pool: &sync.Pool{
			New: func() any {
				return newRestrictedState()
			},
		},
	}
}

func newRestrictedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, pair := range []struct {
		n string
		f lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(pair.f),
			NRet:    0,
			Protect: true,
		}, lua.LString(pair.n)); err != nil {
			panic(err)
		}
	}
	for _, name := range strippedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// EvalBool evaluates expr as a boolean expression with the payload bound to
// the data global. Lua truthiness applies: nil and false are false,
// everything else is true.
func (e *Evaluator) EvalBool(ctx context.Context, expr string, payload map[string]interface{}) (bool, error) {
	ret, err := e.eval(ctx, expr, payload)
	if err != nil {
		return false, err
	}
	return lua.LVAsBool(ret), nil
}

// EvalTransform evaluates code as an expression over data and converts the
// result back: tables become maps, scalars are wrapped under "result".
func (e *Evaluator) EvalTransform(ctx context.Context, code string, payload map[string]interface{}) (map[string]interface{}, error) {
	ret, err := e.eval(ctx, code, payload)
	if err != nil {
		return nil, err
	}
	v := fromLValue(ret)
	if m, ok := v.(map[string]interface{}); ok {
		return m, nil
	}
	return map[string]interface{}{"result": v}, nil
}

func (e *Evaluator) eval(ctx context.Context, expr string, payload map[string]interface{}) (lua.LValue, error) {
	if expr == "" {
		return lua.LNil, fmt.Errorf("empty expression")
	}

	L := e.pool.Get().(*lua.LState)
	defer func() {
		L.SetGlobal("data", lua.LNil)
		e.pool.Put(L)
	}()

	L.SetContext(ctx)
	L.SetGlobal("data", toLValue(L, payload))

	fn, err := L.LoadString("return (" + expr + ")")
	if err != nil {
		return lua.LNil, fmt.Errorf("compile: %w", err)
	}
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return lua.LNil, fmt.Errorf("eval: %w", err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

func toLValue(L *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case string:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case bool:
		return lua.LBool(val)
	case map[string]interface{}:
		tbl := L.NewTable()
		for k, v2 := range val {
			tbl.RawSetString(k, toLValue(L, v2))
		}
		return tbl
	case []interface{}:
		tbl := L.NewTable()
		for i, v2 := range val {
			tbl.RawSetInt(i+1, toLValue(L, v2))
		}
		return tbl
	default:
		return lua.LNil
	}
}

func fromLValue(v lua.LValue) interface{} {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		isArr := true
		maxIdx := 0
		val.ForEach(func(k, _ lua.LValue) {
			if idx, ok := k.(lua.LNumber); ok && float64(idx) == float64(int(idx)) && idx > 0 {
				if int(idx) > maxIdx {
					maxIdx = int(idx)
				}
			} else {
				isArr = false
			}
		})

		if isArr && maxIdx > 0 {
			arr := make([]interface{}, maxIdx)
			val.ForEach(func(k, v lua.LValue) {
				arr[int(k.(lua.LNumber))-1] = fromLValue(v)
			})
			return arr
		}

		m := make(map[string]interface{})
		val.ForEach(func(k, v lua.LValue) {
			m[k.String()] = fromLValue(v)
		})
		return m
	default:
		return nil
	}
}
