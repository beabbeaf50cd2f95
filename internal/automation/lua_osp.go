//go:build !no_automation

package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"osp-go-host/internal/chain"
	"osp-go-host/internal/telegram"

	lua "github.com/yuin/gopher-lua"
)

// registerOSPModule registers the `osp` global table in a Lua state.
//
// Chain calls return (result, nil) on success and (nil, message) on failure;
// calls without a result return true.
func registerOSPModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()
	fn := func(name string, f func(L *lua.LState) int) {
		mod.RawSetString(name, L.NewFunction(f))
	}

	fn("on", func(L *lua.LState) int { return ospOn(L, vm) })
	fn("after", func(L *lua.LState) int { return ospAfter(L, vm, e) })
	fn("log", func(L *lua.LState) int { return ospLog(L, vm, e) })
	fn("addr", ospAddr)

	fn("exec", func(L *lua.LState) int { return ospExec(L, vm, e) })
	fn("resetinit", func(L *lua.LState) int {
		return ospCall(L, vm, e, chain.Request{Op: "resetinit"})
	})
	fn("topology", func(L *lua.LState) int {
		L.Push(toLua(L, e.ctrl.Topology()))
		return 1
	})
	fn("scan", func(L *lua.LState) int {
		return ospCall(L, vm, e, chain.Request{Op: "scan"})
	})
	for _, op := range []string{"identify", "status", "clrerror", "gosleep", "goactive", "godeepsleep", "otpdump", "i2cpower", "i2cscan"} {
		fn(op, func(L *lua.LState) int {
			return ospCall(L, vm, e, chain.Request{Op: op, Addr: addrArg(L, 1)})
		})
	}

	// osp.setpwm(addr, red, green, blue [, daytimes])
	fn("setpwm", func(L *lua.LState) int {
		return ospCall(L, vm, e, chain.Request{
			Op:       "setpwm",
			Addr:     addrArg(L, 1),
			Red:      checkUint16(L, 2),
			Green:    checkUint16(L, 3),
			Blue:     checkUint16(L, 4),
			Daytimes: optByte(L, 5, 0),
		})
	})
	// osp.setpwmchn(addr, chn, red, green, blue)
	fn("setpwmchn", func(L *lua.LState) int {
		return ospCall(L, vm, e, chain.Request{
			Op:    "setpwmchn",
			Addr:  addrArg(L, 1),
			Chn:   checkByte(L, 2),
			Red:   checkUint16(L, 3),
			Green: checkUint16(L, 4),
			Blue:  checkUint16(L, 5),
		})
	})
	// osp.setotp(addr, row, or [, and])
	fn("setotp", func(L *lua.LState) int {
		and := optByte(L, 4, 0xFF)
		return ospCall(L, vm, e, chain.Request{
			Op:   "setotp",
			Addr: addrArg(L, 1),
			Row:  checkByte(L, 2),
			Or:   checkByte(L, 3),
			And:  &and,
		})
	})
	// osp.i2c_read(addr, device, register, count)
	fn("i2c_read", func(L *lua.LState) int {
		return ospCall(L, vm, e, chain.Request{
			Op:       "i2cread",
			Addr:     addrArg(L, 1),
			Device:   checkByte(L, 2),
			Register: checkByte(L, 3),
			Count:    L.CheckInt(4),
		})
	})
	// osp.i2c_write(addr, device, register, {bytes})
	fn("i2c_write", func(L *lua.LState) int {
		tbl := L.CheckTable(4)
		data := make([]int, 0, tbl.Len())
		for i := 1; i <= tbl.Len(); i++ {
			n, ok := tbl.RawGetInt(i).(lua.LNumber)
			if !ok {
				L.ArgError(4, "byte list expected")
				return 0
			}
			if n < 0 || n > 0xFF || n != lua.LNumber(int(n)) {
				L.ArgError(4, fmt.Sprintf("byte %d out of range: %v", i, n))
				return 0
			}
			data = append(data, int(n))
		}
		return ospCall(L, vm, e, chain.Request{
			Op:       "i2cwrite",
			Addr:     addrArg(L, 1),
			Device:   checkByte(L, 2),
			Register: checkByte(L, 3),
			Data:     data,
		})
	})

	L.SetGlobal("osp", mod)
}

const maxHandlersPerScript = 100

// osp.on(type, filter, callback). filter may hold addr and op.
func ospOn(L *lua.LState, vm *scriptVM) int {
	eventType := L.CheckString(1)
	filterTable := L.CheckTable(2)
	fn := L.CheckFunction(3)

	h := luaEventHandler{eventType: eventType, fn: fn}

	if v := filterTable.RawGetString("addr"); v != lua.LNil {
		a, err := telegram.ParseAddress(v.String())
		if err != nil {
			L.ArgError(2, err.Error())
			return 0
		}
		h.addr, h.hasAddr = a, true
	}
	if v := filterTable.RawGetString("op"); v != lua.LNil {
		h.op = v.String()
	}

	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerScript {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()

	return 0
}

// osp.exec{op=..., addr=..., ...} runs any operation the controller accepts.
func ospExec(L *lua.LState, vm *scriptVM, e *Engine) int {
	req, err := requestFromTable(L.CheckTable(1))
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	return ospCall(L, vm, e, req)
}

func requestFromTable(tbl *lua.LTable) (chain.Request, error) {
	var req chain.Request
	m, ok := luaToGo(tbl).(map[string]any)
	if !ok {
		return req, fmt.Errorf("request must be a table with named fields")
	}
	switch a := m["addr"].(type) {
	case int64:
		m["addr"] = fmt.Sprint(a)
	case float64:
		return req, fmt.Errorf("addr %v: %w", a, telegram.ErrAddress)
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("invalid request: %w", err)
	}
	return req, nil
}

// ospCall executes req against the controller. Events raised by the call are
// not delivered back to this VM.
func ospCall(L *lua.LState, vm *scriptVM, e *Engine, req chain.Request) int {
	ctx, cancel := context.WithTimeout(luaContext(L), e.cfg.CallTimeout)
	defer cancel()

	vm.calling.Store(true)
	resp := e.ctrl.Execute(ctx, req)
	vm.calling.Store(false)

	if !resp.OK {
		e.logger.Debug("script call failed", "op", req.Op, "addr", req.Addr, "err", resp.Error)
		L.Push(lua.LNil)
		L.Push(lua.LString(resp.Error))
		return 2
	}
	if resp.Result == nil {
		L.Push(lua.LTrue)
	} else {
		L.Push(toLua(L, resp.Result))
	}
	L.Push(lua.LNil)
	return 2
}

func luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// toLua converts a result through its JSON form so struct tags name the
// Lua fields.
func toLua(L *lua.LState, v any) lua.LValue {
	raw, err := json.Marshal(v)
	if err != nil {
		return lua.LString(fmt.Sprintf("%v", v))
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return lua.LNil
	}
	return goToLua(L, plain)
}

// checkUint reads argument n as an integer in [0, limit]. Out-of-range or
// fractional values raise an argument error instead of wrapping.
func checkUint(L *lua.LState, n int, limit uint64) uint64 {
	v := float64(L.CheckNumber(n))
	if v < 0 || v > float64(limit) || v != float64(uint64(v)) {
		L.ArgError(n, fmt.Sprintf("%v out of range 0..%d", v, limit))
	}
	return uint64(v)
}

func checkByte(L *lua.LState, n int) uint8 { return uint8(checkUint(L, n, 0xFF)) }
func checkUint16(L *lua.LState, n int) uint16 { return uint16(checkUint(L, n, 0xFFFF)) }

func optByte(L *lua.LState, n int, def uint8) uint8 {
	if L.Get(n) == lua.LNil {
		return def
	}
	return checkByte(L, n)
}

func addrArg(L *lua.LState, n int) string {
	return L.CheckAny(n).String()
}

// osp.addr(text) parses an address ("0x001", "17", "broadcast", "g3").
func ospAddr(L *lua.LState) int {
	a, err := telegram.ParseAddress(L.CheckAny(1).String())
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LNumber(a))
	return 1
}

// osp.after(seconds, callback) runs callback later on the script's VM.
func ospAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	vm.pending.Add(1)
	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			vm.pending.Add(-1)
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			defer vm.pending.Add(-1)
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "err", err)
				vm.log("error: " + err.Error())
			}
		}:
		default:
			vm.pending.Add(-1)
			e.logger.Warn("after: command channel full")
		}
	}()

	return 0
}

// osp.log(msg)
func ospLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	msg := L.CheckString(1)
	e.logger.Info("script log", "msg", msg)
	vm.log(msg)
	return 0
}
