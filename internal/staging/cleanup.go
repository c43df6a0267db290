// Package staging inspects and cleans the "<title>.part" staging
// directories that workers leave in a destination directory.
//
// A staging directory whose worker crashed is never reused unless the same
// title is requested again. CleanStale removes such directories once they are
// old enough and no live worker holds their lock. Only directories carrying
// the worker's marker file are touched.
package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"vidworker/internal/logging"
)

// Suffix marks a staging directory.
const Suffix = ".part"

// MarkerName is the file a worker creates in each staging directory it owns.
const MarkerName = ".vidworker-staging"

// Mark records that dir is a worker staging directory.
func Mark(dir string) error {
	f, err := os.OpenFile(filepath.Join(dir, MarkerName), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// Owned reports whether dir carries the staging marker.
func Owned(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, MarkerName))
	return err == nil && info.Mode().IsRegular()
}

// CleanStaleResult contains the outcome of a stale directory cleanup operation.
type CleanStaleResult struct {
	Removed []string
	Busy    []string
	// Foreign lists old ".part" directories without the marker.
	Foreign []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes staging directories in dir older than maxAge that are
// not locked by a running worker. The lock is held while removing, so a
// worker that starts waiting on the directory sees it replaced and retries.
func CleanStale(ctx context.Context, dir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}
	logger = logging.NewComponentLogger(logger, "staging")

	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), Suffix) {
			continue
		}

		dirPath := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if !Owned(dirPath) {
			result.Foreign = append(result.Foreign, dirPath)
			logger.Debug("directory not created by a worker, skipped", logging.String("path", dirPath))
			continue
		}

		lock := flock.New(dirPath, flock.SetFlag(os.O_RDONLY))
		locked, err := lock.TryLock()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !locked {
			result.Busy = append(result.Busy, dirPath)
			logger.Debug("staging directory in use, skipped", logging.String("path", dirPath))
			continue
		}

		removeErr := os.RemoveAll(dirPath)
		_ = lock.Unlock()
		if removeErr != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: removeErr})
			logger.Warn("failed to remove stale staging directory",
				logging.String("path", dirPath),
				logging.Error(removeErr),
				logging.String(logging.FieldEventType, "staging_cleanup_failed"),
				logging.String(logging.FieldErrorHint, "check download directory permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed stale staging directory",
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}

	return result
}

// ListDirectories returns the staging directories in dir with their metadata.
func ListDirectories(dir string) ([]DirInfo, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), Suffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		dirPath := filepath.Join(dir, entry.Name())
		size, _ := dirSize(dirPath)

		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Title:   strings.TrimSuffix(entry.Name(), Suffix),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
			Locked:  isLocked(dirPath),
			Owned:   Owned(dirPath),
		})
	}

	return dirs, nil
}

// DirInfo contains metadata about a staging directory.
type DirInfo struct {
	Name    string
	Title   string
	Path    string
	ModTime time.Time
	Size    int64
	// Locked reports whether a worker currently holds the directory.
	Locked bool
	// Owned reports whether a worker created the directory.
	Owned bool
}

func isLocked(path string) bool {
	lock := flock.New(path, flock.SetFlag(os.O_RDONLY))
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
	}
	return !ok
}

// dirSize calculates the total size of a directory recursively.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Ignore errors, best effort
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
