package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonFlag bool
	var runOpts runOptions

	ctx := newCommandContext(&configFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:   "vidworker",
		Short: "Download worker driven by a controller over stdin/stdout",
		Long: `vidworker downloads one URL on behalf of a controller process.

Without a subcommand it reads the request from the controller, which speaks
newline-delimited JSON on stdin and stdout. Logs are written to stderr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, ctx, runOpts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print machine-readable output")
	rootCmd.Flags().StringVar(&runOpts.LogLevel, "log-level", "", "Override the configured log level")
	rootCmd.Flags().StringVar(&runOpts.LogFormat, "log-format", "", "Override the configured log format (auto, console, json)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newDepsCommand(ctx))
	rootCmd.AddCommand(newStagingCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
