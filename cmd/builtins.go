package cmd

import (
	"fmt"

	"github.com/josephlewis42/pipesh/commands"
	"github.com/spf13/cobra"
)

var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the built-in commands and whether they're enabled.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}

		for _, name := range commands.BuiltinNames() {
			state := "disabled"
			if cfg.BuiltinEnabled(name) {
				state = "enabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, state)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
