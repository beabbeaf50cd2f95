package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"osp-go-host/internal/chain"
	"osp-go-host/internal/osp"
	"osp-go-host/internal/simulator"
	"osp-go-host/internal/telegram"
	"osp-go-host/internal/transport"
)

// session is an open chain: transport, exchange driver and controller.
type session struct {
	cfg    *Config
	logger *slog.Logger
	ctrl   *chain.Controller
	close  func() error
}

func openSession(flags *globalFlags) (*session, error) {
	cfg, err := resolveConfig(flags)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	timeout, _ := time.ParseDuration(cfg.Transport.Timeout)
	var (
		tr      osp.Transport
		closeFn = func() error { return nil }
	)
	switch cfg.Transport.Type {
	case "sim":
		tr, err = newSimulator(cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using simulated chain", "said", cfg.Sim.SAID, "rgbi", cfg.Sim.RGBI, "wiring", cfg.Sim.Wiring)
	default:
		port, err := transport.OpenSerial(cfg.Transport.Port, cfg.Transport.Baud, timeout, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("serial port open", "port", port.Name(), "baud", cfg.Transport.Baud)
		tr, closeFn = port, port.Close
	}

	client := osp.NewClient(tr, logger)
	level, _ := osp.ParseLogLevel(cfg.Chain.LogLevel)
	client.SetLogLevel(level)

	return &session{
		cfg:    cfg,
		logger: logger,
		ctrl:   chain.NewController(client, logger, chain.WithPassword(cfg.password())),
		close:  closeFn,
	}, nil
}

func newSimulator(cfg *Config, logger *slog.Logger) (*simulator.Chain, error) {
	wiring, err := simulator.ParseWiring(cfg.Sim.Wiring)
	if err != nil {
		return nil, err
	}
	opts := []simulator.Option{
		simulator.WithLogger(logger),
		simulator.WithSAID(cfg.Sim.SAID),
		simulator.WithRGBI(cfg.Sim.RGBI),
		simulator.WithWiring(wiring),
	}
	if pw, err := parsePassword(cfg.Chain.Password); err == nil {
		opts = append(opts, simulator.WithPassword(pw))
	}
	for _, d := range cfg.Sim.I2C {
		regs := make([]byte, len(d.Regs))
		for i, v := range d.Regs {
			if v < 0 || v > 0xFF {
				return nil, fmt.Errorf("sim.i2c: register value %d out of range", v)
			}
			regs[i] = byte(v)
		}
		opts = append(opts, simulator.WithI2CDevice(d.Node, d.Device, regs))
	}
	return simulator.New(opts...), nil
}

// withChain opens a session, discovers the chain and runs fn against it.
func withChain(ctx context.Context, flags *globalFlags, fn func(*session) error) error {
	s, err := openSession(flags)
	if err != nil {
		return err
	}
	defer s.close()

	topo, err := s.ctrl.ResetInit(ctx)
	if err != nil {
		return fmt.Errorf("reset/init: %w", err)
	}
	s.logger.Debug("chain discovered", "last", topo.Last, "direction", topo.Dir)
	return fn(s)
}

func parseAddrArg(s string) (telegram.Address, error) {
	addr, err := telegram.ParseAddress(s)
	if err != nil {
		return 0, err
	}
	if !addr.IsUnicast() {
		return 0, fmt.Errorf("%s is not a node address: %w", addr, telegram.ErrAddress)
	}
	return addr, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
