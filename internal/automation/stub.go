//go:build no_automation

package automation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"osp-go-host/internal/chain"
)

// ErrDisabled is returned by the stub manager.
var ErrDisabled = errors.New("automation: disabled in this build")

var (
	ErrInvalidID = errors.New("automation: invalid script id")
	ErrSyntax    = errors.New("automation: lua syntax error")
)

// ScriptMeta holds user-editable metadata for a script.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Script represents a single automation script stored on disk.
type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// Config holds engine settings (stub).
type Config struct {
	ExecAllowlist []string
	ExecTimeout   time.Duration
	CallTimeout   time.Duration
	RunTimeout    time.Duration
}

// Manager is a no-op stub when automation is disabled.
type Manager struct{}

// NewManager returns nil manager when automation is disabled.
func NewManager(_ string) (*Manager, error) { return nil, nil }

func (m *Manager) Dir() string                       { return "" }
func (m *Manager) List() ([]*Script, error)          { return nil, nil }
func (m *Manager) Get(_ string) (*Script, error)     { return nil, ErrDisabled }
func (m *Manager) Resolve(_ string) (*Script, error) { return nil, ErrDisabled }
func (m *Manager) Save(_ *Script) (*Script, error)   { return nil, ErrDisabled }
func (m *Manager) Delete(_ string) error             { return ErrDisabled }

// CheckSyntax accepts everything when automation is disabled.
func CheckSyntax(_ string) error { return nil }

// Engine is a no-op stub when automation is disabled.
type Engine struct{}

// NewEngine returns a no-op engine when automation is disabled.
func NewEngine(_ *chain.Controller, _ *Manager, _ *slog.Logger, _ Config) *Engine {
	return &Engine{}
}

func (e *Engine) Start()                      {}
func (e *Engine) Stop()                       {}
func (e *Engine) Running() []string           { return nil }
func (e *Engine) ReloadScript(_ string) error { return nil }
func (e *Engine) StopScript(_ string)         {}

// RunScript returns a stub result.
func (e *Engine) RunScript(_ context.Context, _ string) *RunResult {
	return &RunResult{OK: false, Error: "automation disabled"}
}

// RunLuaCode returns a stub result.
func (e *Engine) RunLuaCode(_ context.Context, _ string) *RunResult {
	return &RunResult{OK: false, Error: "automation disabled"}
}
