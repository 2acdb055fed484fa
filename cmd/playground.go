package cmd

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/josephlewis42/pipesh/core/config"
	"github.com/spf13/cobra"
)

// playgroundCmd runs the shell against a throwaway configuration
var playgroundCmd = &cobra.Command{
	Use:   "playground",
	Short: "Run the shell with a temporary configuration and event log.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		dir, err := os.MkdirTemp("", "playground")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		playgroundLogger := log.New(cmd.ErrOrStderr(), "[playground] ", 0)
		cfg, err := config.Initialize(dir, playgroundLogger)
		if err != nil {
			return err
		}
		// Make the playground prompt distinguishable from a configured shell.
		cfg.Prompt = `[playground] ` + cfg.Prompt

		playgroundLogger.Printf("Logging to: file://%s\n", dir)
		playgroundLogger.Printf("See events with: tail -f %s\n", filepath.Join(dir, cfg.EventLog))
		playgroundLogger.Println(strings.Repeat("=", 80))

		session, err := openSession(cmd, cfg)
		if err != nil {
			return err
		}
		defer session.Close()

		err = session.Run()
		playgroundLogger.Printf("Exit code: %d\n", session.shell.LastStatus())
		return err
	},
}

func init() {
	rootCmd.AddCommand(playgroundCmd)
}
