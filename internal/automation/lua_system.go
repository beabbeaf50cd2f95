//go:build !no_automation

package automation

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

const (
	maxExecOutput = 64 << 10
	maxSleep      = 10 * time.Second
)

// registerSystemModule registers the `system` and `bit` global tables in a
// Lua state.
func registerSystemModule(L *lua.LState, vm *scriptVM, e *Engine) {
	start := time.Now()
	mod := L.NewTable()
	mod.RawSetString("millis", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(time.Since(start).Milliseconds()))
		return 1
	}))
	mod.RawSetString("hex", L.NewFunction(systemHex))
	mod.RawSetString("sleep", L.NewFunction(systemSleep))
	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		return systemLog(L, vm, e)
	}))
	mod.RawSetString("exec", L.NewFunction(func(L *lua.LState) int {
		return systemExec(L, e)
	}))
	L.SetGlobal("system", mod)

	L.SetGlobal("bit", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"band":   bitOp(func(a, b uint32) uint32 { return a & b }),
		"bor":    bitOp(func(a, b uint32) uint32 { return a | b }),
		"bxor":   bitOp(func(a, b uint32) uint32 { return a ^ b }),
		"lshift": bitOp(func(a, n uint32) uint32 { return a << (n & 31) }),
		"rshift": bitOp(func(a, n uint32) uint32 { return a >> (n & 31) }),
		"bnot": func(L *lua.LState) int {
			L.Push(lua.LNumber(^uint32(L.CheckInt64(1))))
			return 1
		},
		"btest": func(L *lua.LState) int {
			L.Push(lua.LBool(uint32(L.CheckInt64(1))&uint32(L.CheckInt64(2)) != 0))
			return 1
		},
	}))
}

// bitOp folds its integer arguments left to right with op, on 32 bits.
func bitOp(op func(a, b uint32) uint32) lua.LGFunction {
	return func(L *lua.LState) int {
		acc := uint32(L.CheckInt64(1))
		for i := 2; i <= L.GetTop(); i++ {
			acc = op(acc, uint32(L.CheckInt64(i)))
		}
		L.Push(lua.LNumber(acc))
		return 1
	}
}

// system.hex(v [, width]) formats a number as 0x-prefixed upper-case hex, or
// a table of bytes as space-separated pairs.
func systemHex(L *lua.LState) int {
	switch v := L.CheckAny(1).(type) {
	case lua.LNumber:
		width := L.OptInt(2, 2)
		L.Push(lua.LString(fmt.Sprintf("0x%0*X", width, int64(v))))
	case *lua.LTable:
		parts := make([]string, 0, v.Len())
		for i := 1; i <= v.Len(); i++ {
			n, ok := v.RawGetInt(i).(lua.LNumber)
			if !ok {
				L.ArgError(1, "byte table holds a non-number")
				return 0
			}
			parts = append(parts, fmt.Sprintf("%02X", uint8(n)))
		}
		L.Push(lua.LString(strings.Join(parts, " ")))
	default:
		L.TypeError(1, lua.LTNumber)
		return 0
	}
	return 1
}

// system.sleep(ms) blocks the script, at most maxSleep per call. It returns
// false when the script was stopped while sleeping.
func systemSleep(L *lua.LState) int {
	d := time.Duration(L.CheckInt(1)) * time.Millisecond
	if d > maxSleep {
		d = maxSleep
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		L.Push(lua.LTrue)
	case <-luaContext(L).Done():
		L.Push(lua.LFalse)
	}
	return 1
}

// system.log(level, msg)
func systemLog(L *lua.LState, vm *scriptVM, e *Engine) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)

	switch level {
	case "debug":
		e.logger.Debug("script log", "msg", msg)
	case "warn":
		e.logger.Warn("script log", "msg", msg)
	case "error":
		e.logger.Error("script log", "msg", msg)
	default:
		e.logger.Info("script log", "msg", msg)
	}
	vm.log("[" + level + "] " + msg)
	return 0
}

// system.exec(cmd) runs an allowlisted command and returns its stdout, or
// "" when the command is refused or fails.
func systemExec(L *lua.LState, e *Engine) int {
	parts := strings.Fields(L.CheckString(1))
	if len(parts) == 0 {
		L.ArgError(1, "empty command")
		return 0
	}
	binary := parts[0]

	if !filepath.IsAbs(binary) {
		e.logger.Warn("exec blocked: not an absolute path", "cmd", binary)
		L.Push(lua.LString(""))
		return 1
	}
	if !slices.Contains(e.cfg.ExecAllowlist, binary) {
		e.logger.Warn("exec blocked: not in allowlist", "cmd", binary)
		L.Push(lua.LString(""))
		return 1
	}

	timeout := e.cfg.ExecTimeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	ctx, cancel := context.WithTimeout(luaContext(L), timeout)
	defer cancel()

	stdout, err := exec.CommandContext(ctx, binary, parts[1:]...).Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.logger.Warn("exec timeout", "cmd", binary, "timeout", timeout)
		} else {
			e.logger.Warn("exec failed", "cmd", binary, "err", err)
		}
		L.Push(lua.LString(""))
		return 1
	}

	if len(stdout) > maxExecOutput {
		stdout = stdout[:maxExecOutput]
	}
	L.Push(lua.LString(string(stdout)))
	return 1
}
