package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"vidworker/internal/controller"
	"vidworker/internal/deps"
	"vidworker/internal/engine"
	"vidworker/internal/logging"
	"vidworker/internal/services"
	"vidworker/internal/transcode"
	"vidworker/internal/worker"
)

type runOptions struct {
	LogLevel  string
	LogFormat string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one download request (the default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, ctx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "", "Override the configured log format (auto, console, json)")
	return cmd
}

func runWorker(cmd *cobra.Command, ctx *commandContext, opts runOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	format := cfg.Logging.Format
	if strings.TrimSpace(opts.LogFormat) != "" {
		format = opts.LogFormat
	}
	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: format,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	runCtx := services.WithRunID(signalCtx, uuid.NewString())
	logger = logging.WithContext(runCtx, logger)

	logDependencySnapshot(logger, deps.CheckBinaries(deps.Requirements(cfg)))

	eng, err := engine.New(cfg.Engine.Binary, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	thumbs := transcode.New(cfg.Transcoder.Binary, cfg.Transcoder.MaxThumbnailResolution, logger)
	client := controller.NewClient(cmd.InOrStdin(), cmd.OutOrStdout())

	summary, err := worker.New(cfg, client, eng, thumbs, logger).Run(runCtx)
	if err != nil {
		logging.ErrorWithContext(logger, "worker stopped", "worker_failed", logging.Error(err))
		if ctxErr := context.Cause(runCtx); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	logger.Debug("worker finished",
		logging.Int("items", summary.Items),
		logging.Int("downloaded", summary.Downloaded),
	)
	return nil
}
