package cmd

import (
	"fmt"

	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Explore the shell event log.",
}

// eventReportCommand prints a YAML report built from the event log.
func eventReportCommand(use, short string, newReport func() (interface{}, func(*logger.Event))) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			config, err := loadConfig(false)
			if err != nil {
				return err
			}

			fd, err := config.ReadEventLog()
			if err != nil {
				return err
			}
			defer fd.Close()

			report, update := newReport()
			if err := logger.ReadJSONLinesLog(fd, update); err != nil {
				return err
			}

			out, err := yaml.Marshal(report)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			return nil
		},
	}
}

var reportCommand = eventReportCommand("report", "Show a report of events.", func() (interface{}, func(*logger.Event)) {
	report := &logger.Report{}
	return report, report.Update
})

var bugsCommand = eventReportCommand("bugs", "Show syntax errors, failed starts and orphaned stages.", func() (interface{}, func(*logger.Event)) {
	report := logger.NewBugReport()
	return report, report.Update
})

var sessionsCommand = eventReportCommand("sessions", "Show the lines run by each shell session.", func() (interface{}, func(*logger.Event)) {
	report := &logger.SessionReport{}
	return report, report.Update
})

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(reportCommand)
	eventsCmd.AddCommand(bugsCommand)
	eventsCmd.AddCommand(sessionsCommand)
}
