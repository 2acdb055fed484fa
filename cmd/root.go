package cmd

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/josephlewis42/pipesh/core/config"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	verbose  bool
	command  string
	exitCode int
)

// loadConfig loads the configuration, falling back to the defaults if
// allowDefault is set and none exists.
func loadConfig(allowDefault bool) (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		if allowDefault {
			return config.Default(cfgPath), nil
		}
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pipesh",
	Short: "A small interactive UNIX shell",
	Long: `A small interactive UNIX shell.

Lines are split into words and run as a pipeline of programs named by their
full path. The operators |, <, >, >>, 2> and &> connect and redirect them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}

		session, err := openSession(cmd, cfg)
		if err != nil {
			return err
		}
		defer session.Close()

		if cmd.Flags().Changed("command") {
			exitCode = session.RunLine(command)
			return nil
		}

		err = session.Run()
		exitCode = session.shell.LastStatus()
		return err
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitCode)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultDir(), "config path")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "write the application log to stderr")
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run a single line and exit with its status")
}
