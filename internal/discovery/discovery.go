// Package discovery decides whether a URL names a single item or a playlist
// by running bounded metadata-only probes.
//
// The test probe expands at most two playlist entries. When it finds more
// than one item the URL is probed again with playlist expansion disabled; if
// that yields fewer items the URL points into a playlist and the controller
// decides whether to expand it.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"vidworker/internal/logging"
	"vidworker/internal/services"
)

// Probe identifies one bounded probe run.
type Probe int

const (
	// ProbeTest expands at most TestPlaylistEnd entries.
	ProbeTest Probe = iota
	// ProbeSingle disables playlist expansion.
	ProbeSingle
	// ProbeFull expands the whole playlist.
	ProbeFull
)

// TestPlaylistEnd caps the test probe.
const TestPlaylistEnd = 2

// Dir returns the probe's subdirectory name in the private temp area.
func (p Probe) Dir() string {
	switch p {
	case ProbeSingle:
		return "noplaylist"
	case ProbeFull:
		return "fullplaylist"
	default:
		return "testplaylist"
	}
}

func (p Probe) String() string { return p.Dir() }

// ProbeResult lists the metadata records one probe produced.
type ProbeResult struct {
	// Paths are absolute, sorted metadata record paths.
	Paths []string
	// Skipped counts items skipped because authentication was declined.
	Skipped int
}

// Count is the number of items the probe saw, skipped ones included.
func (r ProbeResult) Count() int { return len(r.Paths) + r.Skipped }

// Prober runs one probe writing metadata records into dir.
type Prober interface {
	Probe(ctx context.Context, probe Probe, dir string) (ProbeResult, error)
}

// PlaylistAsker asks whether a playlist should be expanded.
type PlaylistAsker interface {
	PlaylistRequest() (bool, error)
}

// Decision is the authoritative item list.
type Decision struct {
	Items    []string
	Playlist bool
	Prompted bool
	// Source is the probe whose records are used.
	Source Probe
}

// Discover runs the probes below root and returns the item list to process.
func Discover(ctx context.Context, prober Prober, asker PlaylistAsker, root string, logger *slog.Logger) (Decision, error) {
	logger = logging.NewComponentLogger(logger, "discovery")

	test, err := run(ctx, prober, ProbeTest, root)
	if err != nil {
		return Decision{}, err
	}
	logger.Debug("test probe finished", logging.Int("items", len(test.Paths)), logging.Int("skipped", test.Skipped))
	if test.Count() <= 1 {
		return Decision{Items: test.Paths, Source: ProbeTest}, nil
	}

	single, err := run(ctx, prober, ProbeSingle, root)
	if err != nil {
		return Decision{}, err
	}
	logger.Debug("single item probe finished", logging.Int("items", len(single.Paths)), logging.Int("skipped", single.Skipped))

	if test.Count() > single.Count() {
		expand, err := asker.PlaylistRequest()
		if err != nil {
			return Decision{}, err
		}
		logger.Info("playlist expansion answered", logging.Bool("expand", expand))
		if !expand {
			return Decision{Items: single.Paths, Prompted: true, Source: ProbeSingle}, nil
		}
		full, err := run(ctx, prober, ProbeFull, root)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Items: full.Paths, Playlist: true, Prompted: true, Source: ProbeFull}, nil
	}

	// More than one item and the single item probe saw just as many: the
	// URL is a playlist with nothing to disambiguate.
	full, err := run(ctx, prober, ProbeFull, root)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Items: full.Paths, Playlist: true, Source: ProbeFull}, nil
}

func run(ctx context.Context, prober Prober, probe Probe, root string) (ProbeResult, error) {
	dir := filepath.Join(root, probe.Dir())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ProbeResult{}, services.Wrap(services.ErrWorkerFatal, "discovery", probe.String(), "create probe directory", err)
	}
	result, err := prober.Probe(ctx, probe, dir)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%s probe: %w", probe, err)
	}
	return result, nil
}
