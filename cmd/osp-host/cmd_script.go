package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newScriptCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Run and list Lua scripts",
	}
	cmd.AddCommand(newScriptRunCmd(flags), newScriptListCmd(flags))
	return cmd
}

func newScriptRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file|id>",
		Short: "Run a Lua script once against the chain",
		Long: `Runs a script file, or a script from scripts_dir by id. The chain is not
discovered first; scripts call osp.resetinit() themselves. Handlers registered
with osp.on receive one synthetic event so they can be tried out.`,
		Example: `  osp-host script run --sim examples/blink.lua`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(flags)
			if err != nil {
				return err
			}
			defer s.close()

			auto, err := newAutomation(s.ctrl, s.cfg, s.logger)
			if err != nil {
				return err
			}
			defer auto.Stop()

			res := auto.Run(cmd.Context(), args[0])
			if flags.json {
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				for _, line := range res.Logs {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
			}
			if !res.OK {
				return errors.New(res.Error)
			}
			return nil
		},
	}
}

func newScriptListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the scripts in scripts_dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(flags)
			if err != nil {
				return err
			}
			scripts, err := listScripts(cfg)
			if err != nil {
				return err
			}
			if flags.json {
				return printJSON(cmd.OutOrStdout(), scripts)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tENABLED\tNAME\tDESCRIPTION")
			for _, sc := range scripts {
				fmt.Fprintf(tw, "%s\t%v\t%s\t%s\n", sc.ID, sc.Meta.Enabled, sc.Meta.Name, sc.Meta.Description)
			}
			return tw.Flush()
		},
	}
}
