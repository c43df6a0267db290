package deps

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/samber/lo"

	"vidworker/internal/config"
)

const versionTimeout = 5 * time.Second

// Requirements lists the programs a configured worker depends on.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.Engine.Binary,
			Description: "Extracts metadata and downloads media",
			VersionArgs: []string{"--version"},
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Transcoder.Binary,
			Description: "Converts thumbnails and extracts audio",
			VersionArgs: []string{"-version"},
		},
	}
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	return lo.Filter(statuses, func(s Status, _ int) bool {
		return !s.Available && !s.Optional
	})
}

// probeVersion returns the first line the binary prints for args, or "" when
// it cannot be run.
func probeVersion(binary string, args []string) string {
	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, binary, args...).Output() //nolint:gosec
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}
