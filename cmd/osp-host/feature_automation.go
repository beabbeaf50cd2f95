//go:build !no_automation

package main

import (
	"context"
	"log/slog"
	"time"

	"osp-go-host/internal/automation"
	"osp-go-host/internal/chain"
	"osp-go-host/internal/web"
)

type automationFeature struct {
	engine *automation.Engine
	mgr    *automation.Manager
}

func newAutomation(ctrl *chain.Controller, cfg *Config, logger *slog.Logger) (*automationFeature, error) {
	scriptMgr, err := automation.NewManager(cfg.ScriptsDir)
	if err != nil {
		return nil, err
	}

	execTimeout := 10 * time.Second
	if cfg.Exec.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Exec.Timeout); err == nil {
			execTimeout = d
		} else {
			logger.Warn("invalid exec.timeout, using default", "value", cfg.Exec.Timeout, "default", execTimeout)
		}
	}

	engine := automation.NewEngine(ctrl, scriptMgr, logger, automation.Config{
		ExecAllowlist: cfg.Exec.Allowlist,
		ExecTimeout:   execTimeout,
	})
	return &automationFeature{engine: engine, mgr: scriptMgr}, nil
}

// Start loads every enabled script and subscribes it to controller events.
func (a *automationFeature) Start() { a.engine.Start() }

func (a *automationFeature) Stop() {
	if a != nil && a.engine != nil {
		a.engine.Stop()
	}
}

func (a *automationFeature) Run(ctx context.Context, ref string) *automation.RunResult {
	return a.engine.RunScript(ctx, ref)
}

func (a *automationFeature) webOptions() []web.ServerOption {
	return []web.ServerOption{web.WithAutomation(a.engine, a.mgr)}
}

func listScripts(cfg *Config) ([]*automation.Script, error) {
	mgr, err := automation.NewManager(cfg.ScriptsDir)
	if err != nil {
		return nil, err
	}
	return mgr.List()
}
