package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"vidworker/internal/deps"
	"vidworker/internal/logging"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check the external programs the worker runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			missing := deps.Missing(statuses)

			if ctx.JSONMode() {
				if err := writeJSON(cmd, map[string]any{
					"dependencies": statuses,
					"ready":        len(missing) == 0,
				}); err != nil {
					return err
				}
			} else {
				printDependencies(cmd, statuses)
			}
			if len(missing) > 0 {
				return fmt.Errorf("%d required dependencies missing", len(missing))
			}
			return nil
		},
	}
}

func printDependencies(cmd *cobra.Command, statuses []deps.Status) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	for _, status := range statuses {
		fmt.Fprintln(out, renderDependencyLine(status, colorize))
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		rows = append(rows, []string{status.Name, status.Command, yesNo(!status.Optional), status.Description})
	}
	fmt.Fprintln(out, renderTable([]tableColumn{
		{Header: "Name"},
		{Header: "Command", MaxWidth: 48},
		{Header: "Required"},
		{Header: "Purpose"},
	}, rows))
}

// logDependencySnapshot records which external programs resolve at startup.
func logDependencySnapshot(logger *slog.Logger, statuses []deps.Status) {
	if logger == nil {
		return
	}
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range statuses {
		attrs = append(attrs,
			logging.Bool(status.Name+"_available", status.Available),
			logging.String(status.Name+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
