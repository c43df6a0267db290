package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"vidworker/internal/config"
	"vidworker/internal/controller"
	"vidworker/internal/dirlock"
	"vidworker/internal/discovery"
	"vidworker/internal/engine"
	"vidworker/internal/formats"
	"vidworker/internal/logging"
	"vidworker/internal/publish"
	"vidworker/internal/services"
	"vidworker/internal/staging"
	"vidworker/internal/transcode"
)

// Thumbnailer converts a downloaded thumbnail into its published form.
type Thumbnailer interface {
	Convert(ctx context.Context, src string) (string, error)
	Binary() string
}

// Summary reports what one run did.
type Summary struct {
	Items      int
	Downloaded int
	Existing   int
	Skipped    int
	Failed     int
	Playlist   bool
}

// Worker processes one download request.
type Worker struct {
	cfg    *config.Config
	ctrl   controller.Controller
	engine engine.Engine
	thumbs Thumbnailer
	logger *slog.Logger
}

// New builds a worker. The controller is the only source of per-request
// decisions; cfg only tunes the engine and the local environment.
func New(cfg *config.Config, ctrl controller.Controller, eng engine.Engine, thumbs Thumbnailer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		cfg:    cfg,
		ctrl:   ctrl,
		engine: eng,
		thumbs: thumbs,
		logger: logging.NewComponentLogger(logger, "worker"),
	}
}

// Run executes the request end to end. Item-level failures are logged and
// counted; the returned error is always worker-fatal.
func (w *Worker) Run(ctx context.Context) (Summary, error) {
	req, err := controller.Gather(w.ctrl)
	if err != nil {
		return Summary{}, err
	}
	dest, err := filepath.Abs(req.DownloadDir)
	if err != nil {
		return Summary{}, services.Wrap(services.ErrValidation, "worker", "resolve download folder", req.DownloadDir, err)
	}
	logger := logging.WithContext(ctx, w.logger)
	logger.Info("request received",
		logging.String(logging.FieldEventType, "request_received"),
		logging.String("url", req.URL),
		logging.String("download_dir", dest),
		logging.String("mode", string(req.Mode)),
		logging.Int("resolution", req.Resolution),
		logging.Bool("prefer_mpeg", req.PreferMPEG),
	)

	tempDir, err := os.MkdirTemp(w.cfg.Paths.TempDir, "vidworker-")
	if err != nil {
		return Summary{}, services.Wrap(services.ErrWorkerFatal, "worker", "create temp area", "", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			logging.WarnWithContext(logger, "temp area cleanup failed", "temp_cleanup_failed",
				logging.String("path", tempDir),
				logging.Error(err),
				logging.String(logging.FieldImpact, "probe records remain on disk"),
			)
		}
	}()

	session := newSession(w.ctrl, w.engine, req.URL, w.baseOptions(tempDir), w.logger)

	if w.cfg.Staging.CleanOnStart {
		res := staging.CleanStale(ctx, dest, w.cfg.StaleAfter(), w.logger)
		if len(res.Removed) > 0 {
			logger.Info("removed abandoned staging directories", logging.Int("count", len(res.Removed)))
		}
	}

	decision, err := discovery.Discover(ctx, session, w.ctrl, tempDir, w.logger)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Items: len(decision.Items), Playlist: decision.Playlist}
	logger.Info("discovery finished",
		logging.String(logging.FieldEventType, "discovery_finished"),
		logging.Int("items", summary.Items),
		logging.Bool("playlist", decision.Playlist),
		logging.String("source", decision.Source.String()),
	)

	format, sortKeys := formats.Selector(req.Mode, req.Resolution, req.PreferMPEG)
	session.enterDownloadPhase(format, sortKeys, req.Mode.IsAudio(), w.cfg.Engine.AudioCodec, w.cfg.Engine.AudioQuality)

	if err := os.MkdirAll(dest, 0o755); err != nil {
		_ = w.ctrl.Error(fmt.Sprintf("ERROR: Failed to create download folder: %s", err))
		return summary, services.Wrap(services.ErrWorkerFatal, "worker", "create download folder", dest, err)
	}
	publisher := publish.NewPublisher(dest, dirlock.New(w.cfg.LockRetryDelay(), w.logger), w.logger)

	for index, infoPath := range decision.Items {
		itemCtx := services.WithItemIndex(ctx, index)
		res, err := w.processItem(itemCtx, session, publisher, req, infoPath, index, len(decision.Items))
		switch services.Classify(err) {
		case services.TierNone:
			if res.Existing {
				summary.Existing++
			} else {
				summary.Downloaded++
			}
		case services.TierSkipped:
			summary.Skipped++
			logging.WithContext(itemCtx, w.logger).Info("item skipped", logging.Error(err))
		case services.TierItem:
			summary.Failed++
			logging.WarnWithContext(logging.WithContext(itemCtx, w.logger), "item failed", "item_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "item was not downloaded"),
			)
		default:
			return summary, err
		}
	}

	logger.Info("request finished",
		logging.String(logging.FieldEventType, "request_finished"),
		logging.Int("downloaded", summary.Downloaded),
		logging.Int("existing", summary.Existing),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (w *Worker) baseOptions(tempDir string) engine.Options {
	return engine.Options{
		Retries:         w.cfg.Engine.Retries,
		FragmentRetries: w.cfg.Engine.FragmentRetries,
		CookieFile:      filepath.Join(tempDir, "cookies"),
		IgnoreErrors:    true,
		Fixup:           w.cfg.Engine.Fixup,
		XAttrs:          w.cfg.Engine.XAttrs,
	}
}

func (w *Worker) processItem(ctx context.Context, session *Session, publisher *publish.Publisher, req controller.Request, infoPath string, index, total int) (publish.Result, error) {
	logger := logging.WithContext(ctx, w.logger)

	item, err := publish.LoadItem(infoPath)
	if err != nil {
		return publish.Result{}, services.Wrap(services.ErrItemFailed, "worker", "load metadata record", infoPath, err)
	}
	title := item.DisplayTitle()
	outputTitle := publish.OutputTitle(title)

	thumbnail, err := w.thumbnail(ctx, infoPath)
	if err != nil {
		return publish.Result{}, err
	}

	if err := w.ctrl.ProgressStart(index, total, title, thumbnail); err != nil {
		return publish.Result{}, err
	}
	logger.Info("item started",
		logging.String(logging.FieldEventType, "item_started"),
		logging.String("title", title),
		logging.String("output_title", outputTitle),
	)

	item.SetThumbnail(thumbnail)
	list := item.Formats()
	formats.Sort(list, req.Resolution, req.PreferMPEG)
	item.SetFormats(list)
	if err := item.Save(infoPath); err != nil {
		return publish.Result{}, services.Wrap(services.ErrItemFailed, "worker", "save metadata record", infoPath, err)
	}

	res, err := publisher.Publish(ctx, publish.Item{
		OutputTitle: outputTitle,
		Mode:        req.Mode,
		Download: func(ctx context.Context, stagingDir string) (string, error) {
			return session.download(ctx, stagingDir, infoPath)
		},
	})
	if err != nil {
		w.reportPublishError(err)
		return publish.Result{}, err
	}
	if err := w.ctrl.ProgressEnd(res.Filename); err != nil {
		return res, err
	}
	return res, nil
}

// thumbnail converts the item's thumbnail, if any. A failed conversion drops
// the thumbnail; a missing transcoder ends the run.
func (w *Worker) thumbnail(ctx context.Context, infoPath string) (string, error) {
	src := publish.FindThumbnail(infoPath)
	if src == "" || w.thumbs == nil {
		return "", nil
	}
	converted, err := w.thumbs.Convert(ctx, src)
	switch {
	case err == nil:
		return converted, nil
	case errors.Is(err, transcode.ErrConversionFailed):
		return "", nil
	case errors.Is(err, services.ErrExternalTool):
		_ = w.ctrl.Error(fmt.Sprintf("ERROR: '%s' not found", w.thumbs.Binary()))
		return "", services.Wrap(services.ErrWorkerFatal, "worker", "convert thumbnail", "", err)
	default:
		return "", err
	}
}

func (w *Worker) reportPublishError(err error) {
	var lockErr *dirlock.AcquireError
	var moveErr *publish.MoveError
	switch {
	case errors.As(err, &lockErr):
		_ = w.ctrl.Error(fmt.Sprintf("ERROR: Failed to lock download folder: %s", lockErr.Err))
	case errors.As(err, &moveErr):
		_ = w.ctrl.Error(fmt.Sprintf("ERROR: Failed to move finished download to download folder: %s", moveErr.Err))
	}
}
