package main

import (
	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	c := &cobra.Command{
		Use:          "jobcoord",
		Short:        "Run a demonstration job coordination manager with a debug HTTP endpoint",
		Example:      "jobcoord --jobs 8 --debug",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	c.Flags().String("host", "localhost", "Debug HTTP server host to bind")
	c.Flags().Uint16("port", 8090, "Debug HTTP server port")
	c.Flags().Bool("debug", false, "Enable debug logs")

	c.Flags().Int("job-limit", 100, "Dispatch queue capacity")
	c.Flags().Int("notifications-limit", 10, "Notifications queue capacity")
	c.Flags().Int("events-limit", 10, "Events ring size")
	c.Flags().Int("job-concurrency", 100, "Maximum parallel jobs")

	c.Flags().Int("jobs", 4, "Number of demonstration jobs to submit")
	c.Flags().Int("ticks", 20, "Notifications each demonstration job produces")
	c.Flags().Float64("tick-rate", 2, "Notifications per second per job")

	return c
}
