//go:build no_mqtt

package main

import (
	"log/slog"

	"osp-go-host/internal/chain"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *chain.Controller, _ *Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
