package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"vidworker/internal/config"
	"vidworker/internal/logging"
	"vidworker/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect staging directories in a download folder",
	}

	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))

	return stagingCmd
}

func resolveDownloadDir(args []string) (string, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("download folder is required")
	}
	dir, err := config.ExpandPath(args[0])
	if err != nil {
		return "", err
	}
	return filepath.Clean(dir), nil
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <download-folder>",
		Short: "List staging directories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDownloadDir(args)
			if err != nil {
				return err
			}

			dirs, err := staging.ListDirectories(dir)
			if err != nil {
				return fmt.Errorf("list staging directories: %w", err)
			}

			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []staging.DirInfo{}
				}
				return writeJSON(cmd, map[string]any{
					"download_dir":     dir,
					"directories":      dirs,
					"total_size_bytes": totalSize(dirs),
				})
			}

			if len(dirs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No staging directories found")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Download folder: %s\n\n", dir)

			rows := make([][]string, 0, len(dirs))
			for _, d := range dirs {
				rows = append(rows, []string{
					d.Title,
					humanize.Time(d.ModTime),
					humanize.IBytes(uint64(d.Size)),
					yesNo(d.Locked),
					yesNo(d.Owned),
				})
			}

			fmt.Fprint(out, renderTable([]tableColumn{
				{Header: "Title", MaxWidth: 60},
				{Header: "Modified", Align: alignRight},
				{Header: "Size", Align: alignRight},
				{Header: "In use"},
				{Header: "Worker"},
			}, rows))
			fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(dirs), humanize.IBytes(uint64(totalSize(dirs))))
			return nil
		},
	}
}

func totalSize(dirs []staging.DirInfo) int64 {
	return lo.SumBy(dirs, func(d staging.DirInfo) int64 { return d.Size })
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean <download-folder>",
		Short: "Remove abandoned staging directories",
		Long: `Remove staging directories that no running worker holds.

Only directories carrying the worker marker and older than --older-than are
removed, and never while a worker holds their lock. The default age comes from
staging.stale_after_hours.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := resolveDownloadDir(args)
			if err != nil {
				return err
			}
			maxAge := cfg.StaleAfter()
			if cmd.Flags().Changed("older-than") {
				maxAge = olderThan
			}

			result := staging.CleanStale(cmd.Context(), dir, maxAge, logging.NewNop())
			if ctx.JSONMode() {
				return writeStagingCleanJSON(cmd, result)
			}
			return printStagingCleanResult(cmd, result)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age of directories to remove (e.g. 2h)")

	return cmd
}

func printStagingCleanResult(cmd *cobra.Command, result staging.CleanStaleResult) error {
	out := cmd.OutOrStdout()
	if len(result.Busy) > 0 {
		fmt.Fprintf(out, "Skipped %d directories in use\n", len(result.Busy))
	}
	if len(result.Foreign) > 0 {
		fmt.Fprintf(out, "Skipped %d directories not created by a worker\n", len(result.Foreign))
	}
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		fmt.Fprintln(out, "No stale directories to clean")
		return nil
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "Removed %d stale directories, %d errors\n", len(result.Removed), len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
		}
		return nil
	}
	fmt.Fprintf(out, "Removed %d stale directories\n", len(result.Removed))
	return nil
}

func writeStagingCleanJSON(cmd *cobra.Command, result staging.CleanStaleResult) error {
	errs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
	}
	return writeJSON(cmd, map[string]any{
		"removed": len(result.Removed),
		"busy":    len(result.Busy),
		"foreign": len(result.Foreign),
		"errors":  errs,
	})
}
