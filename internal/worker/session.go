package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"vidworker/internal/auth"
	"vidworker/internal/controller"
	"vidworker/internal/discovery"
	"vidworker/internal/engine"
	"vidworker/internal/logging"
	"vidworker/internal/progress"
	"vidworker/internal/publish"
	"vidworker/internal/services"
)

const (
	probeTemplate    = "%(autonumber)s.%(ext)s"
	downloadTemplate = "%(id)s.%(format_id)s.%(ext)s"
)

// Session holds the mutable state of one worker run.
type Session struct {
	ctrl     controller.Controller
	engine   engine.Engine
	auth     *auth.Machine
	reporter *progress.Reporter
	base     *slog.Logger
	logger   *slog.Logger

	url  string
	opts engine.Options

	expectRecord bool
	record       *publish.ItemInfo

	// per invocation
	retry  bool
	failed string
	fatal  error
}

func newSession(ctrl controller.Controller, eng engine.Engine, url string, opts engine.Options, logger *slog.Logger) *Session {
	s := &Session{
		ctrl:     ctrl,
		engine:   eng,
		url:      url,
		reporter: progress.NewReporter(ctrl, logger),
		base:     logging.NewComponentLogger(logger, "session"),
		opts:     opts,
	}
	s.logger = s.base
	s.auth = auth.NewMachine(ctrl, &s.opts, logger)
	return s
}

// Options returns a copy of the current engine options.
func (s *Session) Options() engine.Options { return s.opts }

// Line implements engine.Sink.
func (s *Session) Line(line engine.Line) engine.Action {
	switch line.Level {
	case engine.LevelRecord:
		if !s.expectRecord {
			s.logger.Debug("unexpected metadata record ignored")
			return engine.Continue
		}
		item, err := publish.ParseItem([]byte(line.Text))
		if err != nil {
			s.logger.Warn("metadata record unreadable", logging.Error(err))
			return engine.Continue
		}
		s.expectRecord = false
		s.record = item
	case engine.LevelWarning:
		s.logger.Warn(line.Text, logging.String(logging.FieldEventType, "engine_warning"))
	case engine.LevelError:
		s.logger.Warn(line.Text, logging.String(logging.FieldEventType, "engine_error"))
		verdict, err := s.auth.HandleError(line.Text)
		if err != nil {
			s.fatal = err
			return engine.Abort
		}
		switch verdict.Action {
		case auth.Retry:
			s.retry = true
			return engine.Abort
		case auth.Fail:
			if s.failed == "" {
				s.failed = line.Text
			}
		}
	default:
		s.logger.Debug(line.Text)
	}
	return engine.Continue
}

// Progress implements engine.Sink.
func (s *Session) Progress(raw engine.RawProgress) engine.Action {
	if err := s.reporter.Report(raw); err != nil {
		s.fatal = err
		return engine.Abort
	}
	return engine.Continue
}

// invoke runs the engine once with the current options. A returned error is
// fatal to the worker.
func (s *Session) invoke(ctx context.Context, dir, url, infoFile string) (Outcome, error) {
	s.retry, s.failed, s.fatal = false, "", nil
	s.logger = logging.WithContext(ctx, s.base)

	inv := engine.Invocation{Dir: dir, URL: url, InfoFile: infoFile, Options: s.opts}
	runErr := s.engine.Run(ctx, inv, s)

	switch {
	case s.fatal != nil:
		return Outcome{}, s.fatal
	case s.retry:
		return Outcome{Kind: Retry}, nil
	case runErr != nil && !errors.Is(runErr, engine.ErrAborted):
		var missing *engine.MissingBinaryError
		if errors.As(runErr, &missing) {
			_ = s.ctrl.Error(fmt.Sprintf("ERROR: '%s' not found", missing.Binary))
		}
		return Outcome{}, runErr
	case s.failed != "":
		return Outcome{Kind: Fail, Reason: s.failed}, nil
	}
	return Outcome{Kind: Continue}, nil
}

// load invokes the engine until it no longer asks for a retry and returns
// the metadata records left in dir plus the items skipped by the final
// attempt.
func (s *Session) load(ctx context.Context, dir, url, infoFile string) (discovery.ProbeResult, Outcome, error) {
	for {
		snapshot := s.auth.BeginAttempt()
		outcome, err := s.invoke(ctx, dir, url, infoFile)
		if err != nil {
			return discovery.ProbeResult{}, outcome, err
		}
		if outcome.Kind == Retry {
			s.logger.Info("retrying engine with new credentials", logging.String("dir", dir))
			continue
		}
		paths, err := infoRecords(dir)
		if err != nil {
			return discovery.ProbeResult{}, outcome, err
		}
		return discovery.ProbeResult{Paths: paths, Skipped: s.auth.SkippedSince(snapshot)}, outcome, nil
	}
}

// infoRecords lists the item records in dir. Playlist-level records are
// dropped; unreadable ones are kept so the item fails on its own.
func infoRecords(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.info.json"))
	if err != nil {
		return nil, services.Wrap(services.ErrWorkerFatal, "session", "list records", "", err)
	}
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, err := publish.LoadItem(m); errors.Is(err, publish.ErrPlaylistRecord) {
			continue
		}
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, services.Wrap(services.ErrWorkerFatal, "session", "list records", "", err)
		}
		paths = append(paths, abs)
	}
	sort.Strings(paths)
	return paths, nil
}

// Probe implements discovery.Prober.
func (s *Session) Probe(ctx context.Context, probe discovery.Probe, dir string) (discovery.ProbeResult, error) {
	s.opts.WriteInfoJSON = true
	s.opts.WriteThumbnail = true
	s.opts.SkipDownload = true
	s.opts.OutputTemplate = probeTemplate
	switch probe {
	case discovery.ProbeTest:
		s.opts.PlaylistEnd = discovery.TestPlaylistEnd
		s.opts.NoPlaylist = false
	case discovery.ProbeSingle:
		s.opts.PlaylistEnd = 0
		s.opts.NoPlaylist = true
	case discovery.ProbeFull:
		s.opts.PlaylistEnd = 0
		s.opts.NoPlaylist = false
	}

	ctx = services.WithPhase(ctx, "probe_"+probe.String())
	result, outcome, err := s.load(ctx, dir, s.url, "")
	if err != nil {
		return discovery.ProbeResult{}, err
	}
	if outcome.Kind == Fail {
		s.logger.Warn("probe finished with errors",
			logging.String("probe", probe.String()),
			logging.String("reason", outcome.Reason),
		)
	}
	return result, nil
}

// enterDownloadPhase disables prompts and switches the options from probing
// to downloading.
func (s *Session) enterDownloadPhase(format string, sortKeys []string, audio bool, codec, quality string) {
	s.auth.DisablePrompts()
	s.opts.WriteInfoJSON = false
	s.opts.WriteThumbnail = false
	s.opts.SkipDownload = false
	s.opts.PlaylistEnd = 0
	s.opts.OutputTemplate = downloadTemplate
	s.opts.EmitRecord = true
	s.opts.Format = format
	s.opts.FormatSort = sortKeys
	if audio {
		s.opts.ExtractAudio = true
		s.opts.AudioCodec = codec
		s.opts.AudioQuality = quality
		s.opts.EmbedThumbnail = true
	}
}

// download fetches the item described by infoFile into staging and returns
// the produced file name.
func (s *Session) download(ctx context.Context, staging, infoFile string) (string, error) {
	s.expectRecord = true
	s.record = nil
	defer func() { s.expectRecord = false }()

	result, outcome, err := s.load(services.WithPhase(ctx, "download"), staging, "", infoFile)
	if err != nil {
		return "", err
	}
	if s.record == nil {
		if result.Skipped > 0 {
			return "", services.Wrap(services.ErrSkipped, "session", "download", "authentication required", nil)
		}
		reason := "metadata record not received"
		if outcome.Kind == Fail {
			reason = fmt.Sprintf("%s: %s", reason, outcome.Reason)
		}
		return "", services.Wrap(services.ErrItemFailed, "session", "download", reason, nil)
	}
	name := s.record.Filename()
	if name == "" {
		return "", services.Wrap(services.ErrItemFailed, "session", "download", "metadata record has no file name", nil)
	}
	return name, nil
}
