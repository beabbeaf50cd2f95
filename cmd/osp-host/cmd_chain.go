package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"osp-go-host/internal/chain"
	"osp-go-host/internal/osp"
	"osp-go-host/internal/telegram"
)

func newScanCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Discover the chain and list every node",
		Example: `  osp-host scan --port /dev/ttyUSB0
  osp-host scan --sim --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChain(cmd.Context(), flags, func(s *session) error {
				nodes, err := s.ctrl.Scan(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if flags.json {
					return printJSON(out, map[string]any{"topology": s.ctrl.Topology(), "nodes": nodes})
				}
				topo := s.ctrl.Topology()
				fmt.Fprintf(out, "%d node(s), %s\n", topo.Last, topo.Dir)
				printNodes(out, nodes)
				return nil
			})
		},
	}
}

func printNodes(w io.Writer, nodes []chain.NodeInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDR\tID\tFAMILY\tTEMP\tSTATE\tSETUP\tCOM")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d C\t%s\t%s\t%s\n",
			n.Addr, n.ID, n.Family, n.TempC, n.StatText, n.SetupText, n.ComText)
	}
	tw.Flush()
}

func newIdentifyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "identify <addr>",
		Short: "Read the identity word of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrArg(args[0])
			if err != nil {
				return err
			}
			return withChain(cmd.Context(), flags, func(s *session) error {
				var id telegram.Identity
				err := s.ctrl.Do(func(c *osp.Client) (err error) {
					id, err = c.Identify(cmd.Context(), addr)
					return err
				})
				if err != nil {
					return err
				}
				if flags.json {
					return printJSON(cmd.OutOrStdout(), map[string]any{"addr": addr, "id": id, "family": id.Family().String()})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", addr, id, id.Family())
				return nil
			})
		},
	}
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <addr>",
		Short: "Show identity, temperature, status, setup and link state of a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddrArg(args[0])
			if err != nil {
				return err
			}
			return withChain(cmd.Context(), flags, func(s *session) error {
				info, err := s.ctrl.NodeStatus(cmd.Context(), addr)
				if err != nil {
					return err
				}
				if flags.json {
					return printJSON(cmd.OutOrStdout(), info)
				}
				printNodes(cmd.OutOrStdout(), []chain.NodeInfo{info})
				return nil
			})
		},
	}
}
