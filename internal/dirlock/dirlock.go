// Package dirlock provides an exclusive, crash-safe lock scoped to a
// directory shared between worker processes.
//
// The lock is an flock(2) on an open handle of the directory itself, so the
// kernel releases it when the holder dies. Because peers may delete and
// recreate the directory at any time, the identity of the locked handle is
// re-validated against the path after the lock is granted; a mismatch means
// the waiter locked a directory that no longer exists, and it starts over.
package dirlock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"

	"vidworker/internal/logging"
	"vidworker/internal/services"
)

// DefaultRetryDelay is the back-off after a replacement was detected.
const DefaultRetryDelay = 500 * time.Millisecond

// Lock is a held directory lock.
type Lock struct {
	path     string
	flock    *flock.Flock
	info     os.FileInfo
	released bool
}

// Path returns the locked directory path.
func (l *Lock) Path() string { return l.path }

// Info describes the locked directory as seen through the held handle.
func (l *Lock) Info() os.FileInfo { return l.info }

// Release drops the lock and closes the handle. It is idempotent.
func (l *Lock) Release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return nil
}

// Locker acquires directory locks.
type Locker struct {
	retryDelay time.Duration
	logger     *slog.Logger

	// test hooks
	beforeLock func(path string)
	onRetry    func(path string)
}

// New returns a Locker that waits retryDelay between attempts. A
// non-positive delay selects DefaultRetryDelay.
func New(retryDelay time.Duration, logger *slog.Logger) *Locker {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Locker{
		retryDelay: retryDelay,
		logger:     logging.NewComponentLogger(logger, "dirlock"),
	}
}

// With runs fn while holding the lock on path. The lock is released on every
// exit path, including a panic in fn.
func (l *Locker) With(ctx context.Context, path string, fn func(*Lock) error) (err error) {
	lock, err := l.Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil && err == nil {
			err = services.Wrap(services.ErrWorkerFatal, "dirlock", "release", "release staging lock", releaseErr)
		}
	}()
	return fn(lock)
}

// Acquire creates path if needed and blocks until this process holds an
// exclusive lock on the directory currently at path.
func (l *Locker) Acquire(ctx context.Context, path string) (*Lock, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lock, err := l.tryAcquire(path)
		if err == nil {
			if attempt > 1 {
				l.logger.Debug("staging lock acquired after retry",
					logging.String("path", path),
					logging.Int("attempts", attempt),
				)
			}
			return lock, nil
		}
		if !errors.Is(err, errReplaced) {
			return nil, err
		}
		l.logger.Debug("staging directory replaced while waiting, retrying",
			logging.String("path", path),
			logging.Int("attempt", attempt),
		)
		if l.onRetry != nil {
			l.onRetry(path)
		}
		if err := sleep(ctx, l.retryDelay); err != nil {
			return nil, err
		}
	}
}

var errReplaced = errors.New("directory replaced")

// AcquireError reports a filesystem failure while taking a lock. It is
// fatal to the worker.
type AcquireError struct {
	Path string
	Err  error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("lock %s: %v", e.Path, e.Err)
}

func (e *AcquireError) Unwrap() []error {
	return []error{services.ErrWorkerFatal, e.Err}
}

func acquireError(path, op string, err error) error {
	return &AcquireError{Path: path, Err: fmt.Errorf("%s: %w", op, err)}
}

func (l *Locker) tryAcquire(path string) (*Lock, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, acquireError(path, "create staging directory", err)
	}
	if l.beforeLock != nil {
		l.beforeLock(path)
	}
	fl := flock.New(path, flock.SetFlag(os.O_RDONLY))
	if err := fl.Lock(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errReplaced
		}
		return nil, acquireError(path, "lock staging directory", err)
	}

	held, err := fl.Fh().Stat()
	if err != nil {
		_ = fl.Unlock()
		return nil, acquireError(path, "stat locked directory", err)
	}
	current, err := os.Stat(path)
	if err != nil || !os.SameFile(held, current) {
		_ = fl.Unlock()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, acquireError(path, "stat staging directory", err)
		}
		return nil, errReplaced
	}
	return &Lock{path: path, flock: fl, info: held}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
