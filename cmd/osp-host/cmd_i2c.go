package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"osp-go-host/internal/pretty"
	"osp-go-host/internal/telegram"
)

func newI2CCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "i2c",
		Short: "Use the I2C bridge of a SAID node",
	}
	cmd.AddCommand(
		newI2CEnableCmd(flags),
		newI2CPowerCmd(flags),
		newI2CReadCmd(flags),
		newI2CWriteCmd(flags),
		newI2CScanCmd(flags),
	)
	return cmd
}

func newI2CEnableCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <addr> [on|off]",
		Short: "Show or change the I2C_BRIDGE_EN bit in the OTP mirror",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrArg(args[0])
			if err != nil {
				return err
			}
			var set, on bool
			if len(args) == 2 {
				set = true
				switch args[1] {
				case "on", "1", "true":
					on = true
				case "off", "0", "false":
				default:
					return fmt.Errorf("want on or off, got %q", args[1])
				}
			}
			return withChain(cmd.Context(), flags, func(s *session) error {
				if set {
					if err := s.ctrl.SetI2CEnable(cmd.Context(), addr, on); err != nil {
						return err
					}
				}
				en, err := s.ctrl.I2CEnable(cmd.Context(), addr)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s i2c bridge %s\n", addr, onOff(en))
				return nil
			})
		},
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func newI2CPowerCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "power <addr>",
		Short: "Power the I2C pins of a SAID and configure the bridge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrArg(args[0])
			if err != nil {
				return err
			}
			return withChain(cmd.Context(), flags, func(s *session) error {
				return s.ctrl.I2CPower(cmd.Context(), addr)
			})
		},
	}
}

func newI2CReadCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "read <addr> <dev> <reg> <n>",
		Short:   "Read n bytes from register reg of I2C device dev",
		Example: `  osp-host i2c read 1 0x50 0x00 8`,
		Args:    cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrArg(args[0])
			if err != nil {
				return err
			}
			b, err := parseBytes(args[1:3])
			if err != nil {
				return err
			}
			n, err := strconv.Atoi(args[3])
			if err != nil || n < 1 || n > 8 {
				return fmt.Errorf("count must be 1..8: %w", telegram.ErrArgument)
			}
			return withChain(cmd.Context(), flags, func(s *session) error {
				if err := s.ctrl.I2CPower(cmd.Context(), addr); err != nil {
					return err
				}
				data, err := s.ctrl.I2CRead(cmd.Context(), addr, b[0], b[1], n)
				if err != nil {
					return err
				}
				if flags.json {
					return printJSON(cmd.OutOrStdout(), map[string]any{"addr": addr, "device": b[0], "register": b[1], "data": pretty.Bytes(data)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), pretty.Bytes(data))
				return nil
			})
		},
	}
}

func newI2CWriteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "write <addr> <dev> <reg> <bytes..>",
		Short:   "Write bytes to register reg of I2C device dev",
		Example: `  osp-host i2c write 1 0x50 0x10 0xAB 0xCD`,
		Args:    cobra.RangeArgs(4, 9),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrArg(args[0])
			if err != nil {
				return err
			}
			b, err := parseBytes(args[1:])
			if err != nil {
				return err
			}
			return withChain(cmd.Context(), flags, func(s *session) error {
				if err := s.ctrl.I2CPower(cmd.Context(), addr); err != nil {
					return err
				}
				return s.ctrl.I2CWrite(cmd.Context(), addr, b[0], b[1], b[2:])
			})
		},
	}
}

func newI2CScanCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <addr>",
		Short: "Probe every 7-bit device address behind a SAID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrArg(args[0])
			if err != nil {
				return err
			}
			return withChain(cmd.Context(), flags, func(s *session) error {
				if err := s.ctrl.I2CPower(cmd.Context(), addr); err != nil {
					return err
				}
				found, err := s.ctrl.I2CScan(cmd.Context(), addr)
				if err != nil {
					return err
				}
				if flags.json {
					return printJSON(cmd.OutOrStdout(), map[string]any{"addr": addr, "devices": pretty.Bytes(found)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d device(s): %s\n", len(found), pretty.Bytes(found))
				return nil
			})
		},
	}
}
