//go:build !no_automation

package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"osp-go-host/internal/chain"
	"osp-go-host/internal/telegram"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// Config holds engine limits and the system module settings.
type Config struct {
	ExecAllowlist []string      // absolute command paths system.exec may run
	ExecTimeout   time.Duration // per system.exec call
	CallTimeout   time.Duration // per osp.* chain call
	RunTimeout    time.Duration // whole one-shot run
}

const (
	defaultExecTimeout = 10 * time.Second
	defaultCallTimeout = 10 * time.Second
	defaultRunTimeout  = 30 * time.Second
)

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// luaEventHandler is a registered Lua callback for a specific event pattern.
type luaEventHandler struct {
	eventType string
	addr      telegram.Address // filter, valid only when hasAddr
	hasAddr   bool
	op        string // filter: only match this op (empty = any)
	fn        *lua.LFunction
}

// scriptVM is a running Lua VM for a single script.
type scriptVM struct {
	state    *lua.LState
	commands chan func(*lua.LState) // serializes Lua access
	handlers []luaEventHandler
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers

	// set while the VM is inside a chain call; events raised by that call
	// are not fed back to the same VM
	calling atomic.Bool
	pending atomic.Int32 // osp.after callbacks not yet run
	capture func(string) // one-shot runs only
}

func (vm *scriptVM) log(line string) {
	if vm.capture != nil {
		vm.capture(line)
	}
}

// Engine manages Lua VMs and dispatches controller events to scripts.
type Engine struct {
	ctrl    *chain.Controller
	manager *Manager
	logger  *slog.Logger
	cfg     Config

	mu    sync.Mutex
	vms   map[string]*scriptVM // script ID -> running VM
	unsub func()
}

// NewEngine creates a new automation engine. Zero Config durations take
// their defaults.
func NewEngine(ctrl *chain.Controller, mgr *Manager, logger *slog.Logger, cfg Config) *Engine {
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = defaultExecTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	return &Engine{
		ctrl:    ctrl,
		manager: mgr,
		logger:  logger.With("component", "automation"),
		cfg:     cfg,
		vms:     make(map[string]*scriptVM),
	}
}

// Start subscribes to the controller events and loads all enabled scripts.
func (e *Engine) Start() {
	e.unsub = e.ctrl.Events().OnAll(e.dispatchEvent)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}

	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}

	e.mu.Lock()
	n := len(e.vms)
	e.mu.Unlock()
	e.logger.Info("automation engine started", "scripts", n)
}

// Stop cancels all VMs and unsubscribes from the event bus.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}

	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}

	e.logger.Info("automation engine stopped")
}

// Running returns the IDs of the scripts with a live VM.
func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.vms))
	for id := range e.vms {
		ids = append(ids, id)
	}
	return ids
}

// CheckSyntax compiles code without running it.
func CheckSyntax(code string) error {
	chunk, err := parse.Parse(strings.NewReader(code), "<script>")
	if err != nil {
		return err
	}
	_, err = lua.Compile(chunk, "<script>")
	return err
}

// ReloadScript stops the old VM (if any) and starts a new one.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}

	if !s.Meta.Enabled {
		return nil
	}

	return e.startScript(s)
}

// StopScript stops a running script VM.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// RunScript executes a stored script (by ID or .lua path) once.
func (e *Engine) RunScript(ctx context.Context, ref string) *RunResult {
	start := time.Now()

	s, err := e.manager.Resolve(ref)
	if err != nil {
		return &RunResult{OK: false, Error: "script not found: " + err.Error(), Duration: time.Since(start).String()}
	}

	return e.RunLuaCode(ctx, s.LuaCode)
}

// RunLuaCode executes Lua code in a temporary sandboxed VM. Top-level code
// runs first; handlers it registers with osp.on are then each called once
// with a synthetic event built from their filter, and pending osp.after
// callbacks are waited for. osp.log and system.log output is captured in the
// result.
func (e *Engine) RunLuaCode(ctx context.Context, code string) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()

	L := newSandbox()
	defer L.Close()
	L.SetContext(ctx)

	var logs []string
	var logMu sync.Mutex
	vm := &scriptVM{
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
		capture: func(line string) {
			logMu.Lock()
			logs = append(logs, line)
			logMu.Unlock()
		},
	}
	e.registerModules(L, vm)

	result := func(err error) *RunResult {
		logMu.Lock()
		defer logMu.Unlock()
		r := &RunResult{OK: err == nil, Logs: logs, Duration: time.Since(start).String()}
		if err != nil {
			r.Error = e.luaError(err)
			e.logger.Warn("script run failed", "err", r.Error)
		}
		return r
	}

	e.logger.Debug("script run", "code_len", len(code))
	if err := L.DoString(code); err != nil {
		return result(err)
	}

	vm.mu.Lock()
	handlers := append([]luaEventHandler(nil), vm.handlers...)
	vm.mu.Unlock()

	for _, h := range handlers {
		ev := L.NewTable()
		ev.RawSetString("type", lua.LString(h.eventType))
		ev.RawSetString("synthetic", lua.LTrue)
		if h.hasAddr {
			ev.RawSetString("addr", lua.LNumber(h.addr))
		}
		if h.op != "" {
			ev.RawSetString("op", lua.LString(h.op))
		}
		if err := L.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, ev); err != nil {
			return result(err)
		}
	}

	for vm.pending.Load() > 0 {
		select {
		case fn := <-vm.commands:
			fn(L)
		case <-ctx.Done():
			return result(ctx.Err())
		}
	}
	return result(nil)
}

func (e *Engine) luaError(err error) string {
	msg := err.Error()
	if strings.Contains(msg, context.DeadlineExceeded.Error()) {
		return fmt.Sprintf("timeout (%s)", e.cfg.RunTimeout)
	}
	if strings.Contains(msg, context.Canceled.Error()) {
		return "canceled"
	}
	return msg
}

// newSandbox returns a Lua state without file, process and loader access.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func (e *Engine) registerModules(L *lua.LState, vm *scriptVM) {
	registerOSPModule(L, vm, e)
	registerSystemModule(L, vm, e)
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())

	L := newSandbox()
	L.SetContext(ctx)

	vm := &scriptVM{
		state:    L,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.registerModules(L, vm)

	if err := L.DoString(s.LuaCode); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	if old, ok := e.vms[s.ID]; ok {
		old.cancel()
	}
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

// dispatchEvent routes a controller event to all matching Lua handlers.
// It never blocks the emitter: a full VM queue drops the event.
func (e *Engine) dispatchEvent(event chain.Event) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	var fields map[string]any
	for _, vm := range vms {
		if vm.calling.Load() || vm.ctx.Err() != nil {
			continue
		}
		vm.mu.Lock()
		handlers := append([]luaEventHandler(nil), vm.handlers...)
		vm.mu.Unlock()

		for _, h := range handlers {
			if fields == nil {
				fields = eventFields(event)
			}
			if !matchesHandler(h, event.Type, fields) {
				continue
			}
			fn := h.fn
			select {
			case vm.commands <- func(L *lua.LState) { e.callHandler(L, fn, fields) }:
			default:
				e.logger.Warn("script command channel full, dropping event", "type", event.Type)
			}
		}
	}
}

func matchesHandler(h luaEventHandler, eventType string, fields map[string]any) bool {
	if h.eventType != eventType {
		return false
	}
	if h.hasAddr {
		a, ok := fields["addr"].(int)
		if !ok || telegram.Address(a) != h.addr {
			return false
		}
	}
	if h.op != "" {
		if op, _ := fields["op"].(string); op != h.op {
			return false
		}
	}
	return true
}

// eventFields flattens an event into the table handed to Lua handlers.
func eventFields(event chain.Event) map[string]any {
	f := map[string]any{"type": event.Type, "time": event.Time.Unix()}
	switch d := event.Data.(type) {
	case chain.DiscoveryEvent:
		f["last"] = int(d.Last)
		f["direction"] = d.Direction
		setError(f, d.Error)
	case chain.OTPWriteEvent:
		f["addr"] = int(d.Addr)
		f["row"] = int(d.Row)
		f["or"] = int(d.Or)
		f["and"] = int(d.And)
		setError(f, d.Error)
	case chain.I2CEvent:
		f["addr"] = int(d.Addr)
		f["op"] = d.Op
		f["device"] = int(d.Device)
		f["register"] = int(d.Register)
		f["data"] = byteList(d.Data)
		setError(f, d.Error)
	case chain.ExchangeEvent:
		f["addr"] = int(d.Addr)
		f["op"] = d.Op
		f["tx"] = fmt.Sprintf("% X", d.Request)
		f["rx"] = fmt.Sprintf("% X", d.Response)
		f["stage"] = d.Stage()
		f["duration_us"] = d.Duration.Microseconds()
		setError(f, d.Error)
	case map[string]any:
		for k, v := range d {
			f[k] = v
		}
	}
	return f
}

func setError(f map[string]any, msg string) {
	if msg != "" {
		f["error"] = msg
	}
}

func byteList(b []byte) []any {
	out := make([]any, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

func (e *Engine) callHandler(L *lua.LState, fn *lua.LFunction, fields map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "err", r)
		}
	}()

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, goToLua(L, fields)); err != nil {
		if errors.Is(L.Context().Err(), context.Canceled) {
			return
		}
		e.logger.Error("lua handler error", "err", err)
	}
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case int8:
		return lua.LNumber(val)
	case int16:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// luaToGo converts a Lua value to plain Go values. Tables with a non-empty
// array part become []any, other tables map[string]any.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LString:
		return string(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case *lua.LTable:
		if n := val.Len(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaToGo(val.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, vv lua.LValue) {
			out[k.String()] = luaToGo(vv)
		})
		return out
	default:
		return val.String()
	}
}
