package rules

import (
	"fmt"
	"os"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Game-specific predicates can be shipped as a Lua script instead of Go
// code. The script populates a global `predicates` table; each entry is a
// function taking the declared rule arguments and returning a boolean:
//
//	predicates = {
//	    can_cross_gap = function(length)
//	        return has("Hookshot") or count("Bomb", 3)
//	    end,
//	}
//
// The helper globals available inside predicate bodies are:
//
//	has(item [, n])    inventory count of item >= n (default 1)
//	count(item)        raw inventory count of item
//	checked(location)  whether a location was already checked
//
// Unlike a content loader, the VM cannot be discarded after loading: the
// predicate bodies run on every rule evaluation. A single LState backs all
// predicates of one script, serialized by a mutex; the engine's
// single-writer loop means the lock is effectively uncontended.

// luaHost owns one Lua VM and the state slot its helper globals read from.
type luaHost struct {
	mu sync.Mutex
	vm *lua.LState
	st State
}

// LoadLuaPredicates runs a Lua script and registers every function in its
// global `predicates` table as a game-specific predicate.
// Returns the registered predicate names.
func LoadLuaPredicates(reg *Registry, game, path string) ([]string, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read predicate script: %w", err)
	}
	return LoadLuaPredicateSource(reg, game, string(script))
}

// LoadLuaPredicateSource is LoadLuaPredicates for an in-memory script.
func LoadLuaPredicateSource(reg *Registry, game, script string) ([]string, error) {
	host := &luaHost{vm: lua.NewState()}
	host.registerHelpers()

	if err := host.vm.DoString(script); err != nil {
		host.vm.Close()
		return nil, fmt.Errorf("load predicate script for game %q: %w", game, err)
	}

	table, ok := host.vm.GetGlobal("predicates").(*lua.LTable)
	if !ok {
		host.vm.Close()
		return nil, fmt.Errorf("predicate script for game %q: global `predicates` table not defined", game)
	}

	var names []string
	var badEntry error
	table.ForEach(func(key, value lua.LValue) {
		name, ok := key.(lua.LString)
		if !ok {
			badEntry = fmt.Errorf("predicates table key %v is not a string", key)
			return
		}
		fn, ok := value.(*lua.LFunction)
		if !ok {
			badEntry = fmt.Errorf("predicates.%s is not a function", name)
			return
		}
		reg.RegisterGame(game, string(name), host.predicate(string(name), fn))
		names = append(names, string(name))
	})
	if badEntry != nil {
		host.vm.Close()
		return nil, fmt.Errorf("predicate script for game %q: %w", game, badEntry)
	}

	return names, nil
}

// predicate wraps a Lua function as a PredicateFunc.
func (h *luaHost) predicate(name string, fn *lua.LFunction) PredicateFunc {
	return func(st State, args []Arg) (bool, error) {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.st = st
		defer func() { h.st = nil }()

		lvArgs := make([]lua.LValue, len(args))
		for i, arg := range args {
			switch a := arg.(type) {
			case String:
				lvArgs[i] = lua.LString(a)
			case Int:
				lvArgs[i] = lua.LNumber(a)
			default:
				return false, fmt.Errorf("lua predicate %s: unsupported argument type %T", name, arg)
			}
		}

		if err := h.vm.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lvArgs...); err != nil {
			return false, fmt.Errorf("lua predicate %s: %w", name, err)
		}
		ret := h.vm.Get(-1)
		h.vm.Pop(1)

		result, ok := ret.(lua.LBool)
		if !ok {
			return false, fmt.Errorf("lua predicate %s: returned %s, want boolean", name, ret.Type())
		}
		return bool(result), nil
	}
}

// registerHelpers installs the has/count/checked globals.
// They read the state slot set by predicate() for the duration of a call.
func (h *luaHost) registerHelpers() {
	h.vm.SetGlobal("has", h.vm.NewFunction(func(L *lua.LState) int {
		item := L.CheckString(1)
		threshold := 1
		if L.GetTop() >= 2 {
			threshold = L.CheckInt(2)
		}
		if h.st == nil {
			L.RaiseError("has() called outside predicate evaluation")
			return 0
		}
		L.Push(lua.LBool(h.st.ItemCount(item) >= threshold))
		return 1
	}))

	h.vm.SetGlobal("count", h.vm.NewFunction(func(L *lua.LState) int {
		item := L.CheckString(1)
		if h.st == nil {
			L.RaiseError("count() called outside predicate evaluation")
			return 0
		}
		L.Push(lua.LNumber(h.st.ItemCount(item)))
		return 1
	}))

	h.vm.SetGlobal("checked", h.vm.NewFunction(func(L *lua.LState) int {
		loc := L.CheckString(1)
		if h.st == nil {
			L.RaiseError("checked() called outside predicate evaluation")
			return 0
		}
		L.Push(lua.LBool(h.st.Checked(loc)))
		return 1
	}))
}
