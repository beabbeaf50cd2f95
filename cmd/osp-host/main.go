package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// globalFlags override values from the config file.
type globalFlags struct {
	config   string
	sim      bool
	port     string
	password string
	logLevel string
	json     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "osp-host",
		Short: "Host controller for OSP LED chains",
		Long: `osp-host drives a chain of OSP nodes (RGBI, SAID) over a serial link.

Every command first runs reset and init so node addresses are assigned, then
performs its operation. "serve" keeps the chain open and exposes it over HTTP,
websocket, MQTT and Lua scripts.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "config.yaml", "Path to the YAML config file")
	pf.BoolVar(&flags.sim, "sim", false, "Use the built-in chain simulator instead of a serial port")
	pf.StringVar(&flags.port, "port", "", "Serial port (overrides transport.port)")
	pf.StringVar(&flags.password, "password", "", "48-bit test password (overrides chain.password and OSP_PASSWORD)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.BoolVar(&flags.json, "json", false, "Print results as JSON")

	rootCmd.AddCommand(newScanCmd(flags))
	rootCmd.AddCommand(newIdentifyCmd(flags))
	rootCmd.AddCommand(newStatusCmd(flags))
	rootCmd.AddCommand(newOTPCmd(flags))
	rootCmd.AddCommand(newI2CCmd(flags))
	rootCmd.AddCommand(newScriptCmd(flags))
	rootCmd.AddCommand(newServeCmd(flags))
	return rootCmd
}

// resolveConfig loads the config file and applies flag overrides.
func resolveConfig(flags *globalFlags) (*Config, error) {
	cfg, err := loadConfig(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.sim {
		cfg.Transport.Type = "sim"
	}
	if flags.port != "" {
		cfg.Transport.Port = flags.port
	}
	if flags.password != "" {
		cfg.Chain.Password = flags.password
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
