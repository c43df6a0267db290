// Package transcode converts item thumbnails to bounded-size JPEG files with
// ffmpeg.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"vidworker/internal/logging"
	"vidworker/internal/services"
)

// DefaultMaxResolution bounds both thumbnail dimensions.
const DefaultMaxResolution = 1024

// ErrConversionFailed reports a non-zero transcoder exit. The thumbnail is
// dropped and the item continues without one.
var ErrConversionFailed = errors.New("thumbnail conversion failed")

// Converter runs the thumbnail transcoder.
type Converter struct {
	binary        string
	maxResolution int
	logger        *slog.Logger
}

// New builds a converter. Empty or non-positive arguments select defaults.
func New(binary string, maxResolution int, logger *slog.Logger) *Converter {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if maxResolution <= 0 {
		maxResolution = DefaultMaxResolution
	}
	return &Converter{
		binary:        binary,
		maxResolution: maxResolution,
		logger:        logging.NewComponentLogger(logger, "transcode"),
	}
}

// Binary returns the configured transcoder command.
func (c *Converter) Binary() string { return c.binary }

// Convert writes "<src>-converted.jpg" scaled to fit the maximum resolution
// and removes src. A missing transcoder is an ErrExternalTool error and
// leaves src in place; a failed conversion returns ErrConversionFailed.
func (c *Converter) Convert(ctx context.Context, src string) (string, error) {
	src, err := filepath.Abs(src)
	if err != nil {
		return "", fmt.Errorf("resolve thumbnail path: %w", err)
	}
	dst := src + "-converted.jpg"
	scale := fmt.Sprintf("scale='min(%[1]d,iw):min(%[1]d,ih):force_original_aspect_ratio=decrease'", c.maxResolution)
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", src, "-vf", scale, dst}

	cmd := exec.CommandContext(ctx, c.binary, args...) //nolint:gosec
	output, runErr := cmd.CombinedOutput()
	if runErr != nil && (errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist)) {
		return "", services.Wrap(services.ErrExternalTool, "transcode", "convert", fmt.Sprintf("%q not found", c.binary), runErr)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("remove original thumbnail", logging.String("path", src), logging.Error(err))
	}

	if runErr != nil {
		_ = os.Remove(dst)
		logging.WarnWithContext(c.logger, "thumbnail conversion failed", "thumbnail_conversion_failed",
			logging.String("path", src),
			logging.Error(runErr),
			logging.String("output", strings.TrimSpace(string(output))),
			logging.String(logging.FieldErrorHint, "check the ffmpeg output above"),
			logging.String(logging.FieldImpact, "item continues without a thumbnail"),
		)
		return "", fmt.Errorf("%w: %w", ErrConversionFailed, runErr)
	}
	return dst, nil
}
