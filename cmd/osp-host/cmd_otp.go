package main

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"osp-go-host/internal/pretty"
	"osp-go-host/internal/telegram"
)

func newOTPCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "otp",
		Short: "Read and patch SAID one-time-programmable memory",
	}
	cmd.AddCommand(newOTPDumpCmd(flags), newOTPSetCmd(flags), newOTPBurnCmd(flags))
	return cmd
}

func newOTPDumpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <addr>",
		Short: "Print the OTP mirror and its customer fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrArg(args[0])
			if err != nil {
				return err
			}
			return withChain(cmd.Context(), flags, func(s *session) error {
				img, err := s.ctrl.OTPDump(cmd.Context(), addr)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if flags.json {
					return printJSON(out, map[string]any{"addr": addr, "otp": pretty.Bytes(img[:]), "fields": img.Fields()})
				}
				for row := 0; row < telegram.OTPSize; row += telegram.OTPRowSize {
					fmt.Fprintf(out, "%02X: %s\n", row, pretty.Bytes(img[row:row+telegram.OTPRowSize]))
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, f := range img.Fields() {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", f.Name, f.Pos, f.Value)
				}
				return tw.Flush()
			})
		},
	}
}

func newOTPSetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <addr> <row> <or> [and]",
		Short: "Read-modify-write one OTP mirror byte: new = old & and | or",
		Long: `Writes one byte of the OTP mirror under the test password. The byte becomes
(old & and) | or; and defaults to 0xFF. The change lasts until power-off
unless the node is burned.`,
		Example: `  # enable the I2C bridge of node 1
  osp-host otp set 1 0x0D 0x01`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrArg(args[0])
			if err != nil {
				return err
			}
			vals, err := parseBytes(args[1:])
			if err != nil {
				return err
			}
			row, or, and := vals[0], vals[1], uint8(0xFF)
			if len(vals) == 3 {
				and = vals[2]
			}
			return withChain(cmd.Context(), flags, func(s *session) error {
				if !s.ctrl.HasPassword() {
					return errors.New("no test password configured (use --password or OSP_PASSWORD)")
				}
				return s.ctrl.SetOTP(cmd.Context(), addr, row, or, and)
			})
		},
	}
}

func newOTPBurnCmd(flags *globalFlags) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "burn <addr>",
		Short: "Permanently burn the OTP mirror into fuses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrArg(args[0])
			if err != nil {
				return err
			}
			if !confirm {
				return errors.New("burning is irreversible; pass --yes to proceed")
			}
			return withChain(cmd.Context(), flags, func(s *session) error {
				return s.ctrl.Burn(cmd.Context(), addr)
			})
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm the irreversible burn")
	return cmd
}

// parseBytes reads byte arguments in Go integer syntax (0x1F, 31, 0b11111).
func parseBytes(args []string) ([]uint8, error) {
	out := make([]uint8, len(args))
	for i, a := range args {
		v, err := strconv.ParseUint(a, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("%q is not a byte: %w", a, telegram.ErrArgument)
		}
		out[i] = uint8(v)
	}
	return out, nil
}
