//go:build no_automation

package main

import (
	"context"
	"log/slog"

	"osp-go-host/internal/automation"
	"osp-go-host/internal/chain"
	"osp-go-host/internal/web"
)

type automationFeature struct{}

func newAutomation(_ *chain.Controller, _ *Config, _ *slog.Logger) (*automationFeature, error) {
	return nil, automation.ErrDisabled
}

func (a *automationFeature) Start() {}
func (a *automationFeature) Stop()  {}

func (a *automationFeature) Run(_ context.Context, _ string) *automation.RunResult {
	return &automation.RunResult{Error: automation.ErrDisabled.Error()}
}

func (a *automationFeature) webOptions() []web.ServerOption { return nil }

func listScripts(_ *Config) ([]*automation.Script, error) {
	return nil, automation.ErrDisabled
}
