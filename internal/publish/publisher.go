package publish

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"vidworker/internal/controller"
	"vidworker/internal/dirlock"
	"vidworker/internal/fileutil"
	"vidworker/internal/logging"
	"vidworker/internal/services"
	"vidworker/internal/staging"
)

// MoveError reports a failure to move a finished download out of its
// staging directory. It is fatal to the worker.
type MoveError struct {
	Err error
}

func (e *MoveError) Error() string {
	return "move finished download: " + e.Err.Error()
}

func (e *MoveError) Unwrap() []error {
	return []error{services.ErrWorkerFatal, e.Err}
}

// DownloadFunc downloads one item into stagingDir and returns the base name
// of the produced file.
type DownloadFunc func(ctx context.Context, stagingDir string) (string, error)

// Item describes one publish request.
type Item struct {
	OutputTitle string
	Mode        controller.Mode
	Download    DownloadFunc
}

// Result reports the published file name.
type Result struct {
	Filename string
	// Existing is set when a finished file was already present.
	Existing bool
}

// Publisher moves finished downloads into a destination directory.
type Publisher struct {
	dest   string
	locker *dirlock.Locker
	logger *slog.Logger
	move   func(src, dst string) error
}

// NewPublisher builds a publisher for dest.
func NewPublisher(dest string, locker *dirlock.Locker, logger *slog.Logger) *Publisher {
	return &Publisher{
		dest:   dest,
		locker: locker,
		logger: logging.NewComponentLogger(logger, "publish"),
		move:   fileutil.MoveFile,
	}
}

// StagingDir returns the staging directory used for outputTitle.
func (p *Publisher) StagingDir(outputTitle string) string {
	return filepath.Join(p.dest, outputTitle+staging.Suffix)
}

// Publish downloads item unless a finished file already exists. The
// download runs inside an exclusive lock on the item's staging directory,
// and the existence check is repeated once the lock is held because a peer
// may have finished the same item while this worker waited.
func (p *Publisher) Publish(ctx context.Context, item Item) (Result, error) {
	if name, ok := FindExisting(p.dest, item.OutputTitle, item.Mode); ok {
		p.logger.Info("finished download already present", logging.String("filename", name))
		return Result{Filename: name, Existing: true}, nil
	}

	stagingDir := p.StagingDir(item.OutputTitle)
	var result Result
	err := p.locker.With(ctx, stagingDir, func(*dirlock.Lock) error {
		if name, ok := FindExisting(p.dest, item.OutputTitle, item.Mode); ok {
			p.logger.Info("download finished by another worker", logging.String("filename", name))
			result = Result{Filename: name, Existing: true}
			p.removeStaging(stagingDir)
			return nil
		}

		if err := staging.Mark(stagingDir); err != nil {
			return services.Wrap(services.ErrItemFailed, "publish", "mark staging directory", stagingDir, err)
		}
		produced, err := item.Download(ctx, stagingDir)
		if err != nil {
			return err
		}
		name := finalName(item.OutputTitle, produced, item.Mode)
		src := filepath.Join(stagingDir, stagedName(produced, item.Mode))
		if err := p.move(src, filepath.Join(p.dest, name)); err != nil {
			return &MoveError{Err: err}
		}
		p.logger.Info("download published",
			logging.String(logging.FieldEventType, "item_published"),
			logging.String("filename", name),
		)
		result = Result{Filename: name}
		p.removeStaging(stagingDir)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// stagedName is the produced file name inside the staging directory. Audio
// extraction replaces the extension with .mp3.
func stagedName(produced string, mode controller.Mode) string {
	produced = filepath.Base(produced)
	if mode.IsAudio() {
		return strings.TrimSuffix(produced, filepath.Ext(produced)) + audioExt
	}
	return produced
}

func finalName(outputTitle, produced string, mode controller.Mode) string {
	return outputTitle + filepath.Ext(stagedName(produced, mode))
}

func (p *Publisher) removeStaging(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logging.WarnWithContext(p.logger, "staging directory cleanup failed", "staging_cleanup_failed",
			logging.String("path", dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the directory manually"),
			logging.String(logging.FieldImpact, "abandoned staging directory left behind"),
		)
	}
}
