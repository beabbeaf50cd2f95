package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"osp-go-host/internal/osp"
	"osp-go-host/internal/simulator"
	"osp-go-host/internal/telegram"
)

type Config struct {
	Transport struct {
		Type    string `yaml:"type"` // "serial" or "sim"
		Port    string `yaml:"port"`
		Baud    int    `yaml:"baud"`
		Timeout string `yaml:"timeout"`
	} `yaml:"transport"`
	Sim struct {
		SAID   int    `yaml:"said"`
		RGBI   int    `yaml:"rgbi"`
		Wiring string `yaml:"wiring"`
		I2C    []struct {
			Node   int   `yaml:"node"`
			Device uint8 `yaml:"device"`
			Regs   []int `yaml:"regs"`
		} `yaml:"i2c"`
	} `yaml:"sim"`
	Chain struct {
		Password string `yaml:"password"`
		LogLevel string `yaml:"log_level"` // none, args, tele
	} `yaml:"chain"`
	Store struct {
		Path      string `yaml:"path"`
		MaxTraces int    `yaml:"max_traces"`
	} `yaml:"store"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
		Exchanges   bool   `yaml:"exchanges"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Exec struct {
		Allowlist []string `yaml:"allowlist"`
		Timeout   string   `yaml:"timeout"`
	} `yaml:"exec"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	switch c.Transport.Type {
	case "serial":
		if c.Transport.Port == "" {
			return fmt.Errorf("transport.port is required for serial transport")
		}
		if c.Transport.Baud <= 0 {
			return fmt.Errorf("transport.baud must be positive, got %d", c.Transport.Baud)
		}
	case "sim":
		if c.Sim.SAID < 0 || c.Sim.RGBI < 0 || c.Sim.SAID+c.Sim.RGBI == 0 {
			return fmt.Errorf("sim needs at least one node")
		}
		if c.Sim.SAID+c.Sim.RGBI > int(telegram.UnicastMax) {
			return fmt.Errorf("sim chain longer than %d nodes", telegram.UnicastMax)
		}
		if _, err := simulator.ParseWiring(c.Sim.Wiring); err != nil {
			return fmt.Errorf("sim.wiring: %w", err)
		}
		for _, d := range c.Sim.I2C {
			if d.Node < 0 || d.Node >= c.Sim.SAID {
				return fmt.Errorf("sim.i2c: node %d is not a SAID", d.Node)
			}
			if d.Device > 0x7F {
				return fmt.Errorf("sim.i2c: device 0x%02X is not a 7-bit address", d.Device)
			}
		}
	default:
		return fmt.Errorf("transport.type must be serial or sim, got %q", c.Transport.Type)
	}
	if _, err := time.ParseDuration(c.Transport.Timeout); err != nil {
		return fmt.Errorf("transport.timeout: %w", err)
	}
	if c.Chain.Password != "" {
		if _, err := parsePassword(c.Chain.Password); err != nil {
			return fmt.Errorf("chain.password: %w", err)
		}
	}
	if _, err := osp.ParseLogLevel(c.Chain.LogLevel); err != nil {
		return fmt.Errorf("chain.log_level: %w", err)
	}
	if c.Store.MaxTraces < 0 {
		return fmt.Errorf("store.max_traces must not be negative")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// parsePassword reads a 48-bit test password; Go integer syntax is accepted,
// so "0x5A5A_C3C3" works.
func parsePassword(s string) (uint64, error) {
	pw, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid password %q", s)
	}
	if pw > telegram.TestPWUnknown {
		return 0, fmt.Errorf("password %q is wider than 48 bits", s)
	}
	return pw, nil
}

// password returns the configured test password, or the unknown placeholder.
func (c *Config) password() uint64 {
	pw, err := parsePassword(c.Chain.Password)
	if err != nil {
		return telegram.TestPWUnknown
	}
	return pw
}

func loadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// Flags alone are enough for the simulator and one-off commands.
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}
	applyDefaults(&cfg)
	if pw := os.Getenv("OSP_PASSWORD"); pw != "" {
		cfg.Chain.Password = pw
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Transport.Type == "" {
		cfg.Transport.Type = "serial"
	}
	if cfg.Transport.Baud == 0 {
		cfg.Transport.Baud = 115200
	}
	if cfg.Transport.Timeout == "" {
		cfg.Transport.Timeout = "50ms"
	}
	if cfg.Sim.SAID == 0 && cfg.Sim.RGBI == 0 {
		cfg.Sim.SAID, cfg.Sim.RGBI = 2, 1
	}
	if cfg.Sim.Wiring == "" {
		cfg.Sim.Wiring = "loop"
	}
	if cfg.Chain.LogLevel == "" {
		cfg.Chain.LogLevel = "none"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "osp-host.db"
	}
	if cfg.Store.MaxTraces == 0 {
		cfg.Store.MaxTraces = 10000
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "osp"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
