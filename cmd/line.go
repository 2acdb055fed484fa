package cmd

import (
	"fmt"
	"os"

	"github.com/josephlewis42/pipesh/core/pipeline"
	"github.com/spf13/cobra"
)

// lineCmd is the process the shell starts for every line. The last stage of
// the line replaces it, so it never returns on success.
var lineCmd = &cobra.Command{
	Use:    "__line -- WORD...",
	Short:  "Run one parsed line as a pipeline.",
	Hidden: true,
	Args:   cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p, err := pipeline.Parse(args)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "pipesh: %v\n", err)
			os.Exit(2)
		}

		pipeline.NewExecutor().Run(p)
	},
}

func init() {
	rootCmd.AddCommand(lineCmd)
}
