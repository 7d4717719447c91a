package main

import (
	"context"
	"encoding/json"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// newScriptState returns a Lua state with the engine bindings installed:
//
//	create_rack(name, voices, {kinds...})
//	key_on(rack, voice)      key_off(rack, voice)
//	set_param(rack, voice, kind, {Field = value, ...})
//	connect(from, to) -> patch id
//	sleep(ms)
func newScriptState(ctx context.Context, sess *session) *lua.LState {
	L := lua.NewState()
	L.SetContext(ctx)

	b := &bindings{ctx: ctx, sess: sess}

	for name, fn := range map[string]lua.LGFunction{
		"create_rack": b.createRack,
		"key_on":      b.keyOn,
		"key_off":     b.keyOff,
		"set_param":   b.setParam,
		"connect":     b.connect,
		"sleep":       b.sleep,
	} {
		L.SetGlobal(name, L.NewFunction(fn))
	}

	return L
}

// runScript executes the script at path. Cancellation is not an error.
func runScript(ctx context.Context, path string, sess *session) error {
	L := newScriptState(ctx, sess)
	defer L.Close()

	err := L.DoFile(path)
	if ctx.Err() != nil {
		return nil
	}

	return err
}

type bindings struct {
	ctx  context.Context
	sess *session
}

func (b *bindings) check(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%v", err)
	}
}

func (b *bindings) createRack(L *lua.LState) int {
	name := L.CheckString(1)
	voices := L.CheckInt(2)
	tbl := L.CheckTable(3)

	modules := make([]string, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		modules = append(modules, lua.LVAsString(tbl.RawGetInt(i)))
	}

	b.check(L, b.sess.createRack(name, voices, modules))

	return 0
}

func (b *bindings) keyOn(L *lua.LState) int {
	b.check(L, b.sess.keyOn(L.CheckString(1), L.CheckInt(2)))
	return 0
}

func (b *bindings) keyOff(L *lua.LState) int {
	b.check(L, b.sess.keyOff(L.CheckString(1), L.CheckInt(2)))
	return 0
}

func (b *bindings) setParam(L *lua.LState) int {
	rack := L.CheckString(1)
	voice := L.CheckInt(2)
	kind := L.CheckString(3)

	raw, err := json.Marshal(luaValue(L.CheckTable(4)))
	b.check(L, err)
	b.check(L, b.sess.setParams(rack, voice, kind, raw))

	return 0
}

func (b *bindings) connect(L *lua.LState) int {
	h, err := b.sess.connect(L.CheckString(1), L.CheckString(2), nil)
	b.check(L, err)
	L.Push(lua.LNumber(h.ID()))

	return 1
}

func (b *bindings) sleep(L *lua.LState) int {
	d := time.Duration(float64(L.CheckNumber(1)) * float64(time.Millisecond))

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-b.ctx.Done():
	}

	return 0
}

// luaValue converts a Lua value to its JSON-encodable Go form. Tables with
// a sequence part become slices.
func luaValue(v lua.LValue) any {
	switch v := v.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if n := v.Len(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaValue(v.RawGetInt(i)))
			}

			return out
		}

		out := make(map[string]any)
		v.ForEach(func(k, val lua.LValue) {
			out[lua.LVAsString(k)] = luaValue(val)
		})

		return out
	default:
		return nil
	}
}
