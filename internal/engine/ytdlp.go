package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"vidworker/internal/logging"
	"vidworker/internal/services"
)

// ErrAborted is returned when the sink stopped the invocation.
var ErrAborted = errors.New("engine invocation aborted")

// MissingBinaryError reports that the engine executable could not be started.
type MissingBinaryError struct {
	Binary string
	Err    error
}

func (e *MissingBinaryError) Error() string {
	return fmt.Sprintf("%q not found: %v", e.Binary, e.Err)
}

func (e *MissingBinaryError) Unwrap() error { return e.Err }

const maxLineBytes = 64 << 20

// Executor abstracts process execution for testability. onLine is invoked
// on the caller's goroutine; returning false stops the process.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string, onLine func(string) bool) error
}

// Option configures the adapter.
type Option func(*YTDLP)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(y *YTDLP) {
		if exec != nil {
			y.exec = exec
		}
	}
}

// WithLogger attaches a logger for process lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(y *YTDLP) {
		if logger != nil {
			y.logger = logger
		}
	}
}

// YTDLP runs the yt-dlp command line program.
type YTDLP struct {
	binary string
	exec   Executor
	logger *slog.Logger
}

// New constructs a yt-dlp adapter.
func New(binary string, opts ...Option) (*YTDLP, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "new", "yt-dlp binary required", nil)
	}
	y := &YTDLP{
		binary: binary,
		exec:   commandExecutor{},
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y, nil
}

// Run executes one invocation and streams its output into sink.
func (y *YTDLP) Run(ctx context.Context, inv Invocation, sink Sink) error {
	args, err := inv.Args()
	if err != nil {
		return services.Wrap(services.ErrValidation, "engine", "run", "invalid invocation", err)
	}
	y.logger.Debug("engine invocation",
		logging.String("dir", inv.Dir),
		logging.String("url", inv.URL),
		logging.String("info_file", inv.InfoFile),
	)

	aborted := false
	runErr := y.exec.Run(ctx, inv.Dir, y.binary, args, func(raw string) bool {
		if dispatch(raw, sink) == Abort {
			aborted = true
			return false
		}
		return true
	})

	switch {
	case aborted:
		return ErrAborted
	case ctx.Err() != nil:
		return ctx.Err()
	case runErr == nil:
		return nil
	case errors.Is(runErr, exec.ErrNotFound), errors.Is(runErr, fs.ErrNotExist):
		return services.Wrap(services.ErrExternalTool, "engine", "run", "", &MissingBinaryError{Binary: y.binary, Err: runErr})
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) && inv.Options.IgnoreErrors {
		// Error lines were already delivered to the sink.
		y.logger.Debug("engine exited with errors", logging.Int("exit_code", exitErr.ExitCode()))
		return nil
	}
	return services.Wrap(services.ErrExternalTool, "engine", "run", "yt-dlp failed", runErr)
}

func dispatch(raw string, sink Sink) Action {
	text := strings.TrimRight(raw, " \t")
	if text == "" {
		return Continue
	}
	if payload, ok := strings.CutPrefix(text, ProgressPrefix); ok {
		var progress RawProgress
		if err := json.Unmarshal([]byte(payload), &progress); err != nil {
			return sink.Line(Line{Level: LevelDebug, Text: text})
		}
		return sink.Progress(progress)
	}
	if payload, ok := strings.CutPrefix(text, RecordPrefix); ok {
		return sink.Line(Line{Level: LevelRecord, Text: payload})
	}
	return sink.Line(Line{Level: classify(text), Text: text})
}

func classify(text string) Level {
	switch {
	case strings.HasPrefix(text, "ERROR:"):
		return LevelError
	case strings.HasPrefix(text, "WARNING:"):
		return LevelWarning
	default:
		return LevelDebug
	}
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string, onLine func(string) bool) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	lines := make(chan string, 64)
	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		scanner.Split(scanLines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
			// Keep the pipe drained so the process can exit.
			_, _ = io.Copy(io.Discard, r)
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	go func() {
		wg.Wait()
		close(lines)
	}()

	stopped := false
	for line := range lines {
		if stopped {
			continue
		}
		if !onLine(line) {
			stopped = true
			cancel()
		}
	}

	waitErr := cmd.Wait()
	if stopped {
		return nil
	}
	if scanErr != nil {
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if waitErr != nil {
		return fmt.Errorf("wait command: %w", waitErr)
	}
	return nil
}

// scanLines splits on \n, \r\n or a bare \r so carriage-return progress
// redraws arrive as separate lines.
func scanLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					advance++
				}
			} else if !atEOF {
				// Need one more byte to tell \r from \r\n.
				return 0, nil, nil
			}
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
