package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Engine configures the external extraction engine.
type Engine struct {
	Binary          string `toml:"binary"`
	Retries         int    `toml:"retries"`
	FragmentRetries int    `toml:"fragment_retries"`
	AudioCodec      string `toml:"audio_codec"`
	AudioQuality    string `toml:"audio_quality"`
	XAttrs          bool   `toml:"xattrs"`
	Fixup           string `toml:"fixup"`
}

// Transcoder configures the thumbnail transcoder.
type Transcoder struct {
	Binary                 string `toml:"binary"`
	MaxThumbnailResolution int    `toml:"max_thumbnail_resolution"`
}

// Locking contains staging directory lock settings.
type Locking struct {
	RetryDelayMillis int `toml:"retry_delay_ms"`
}

// Staging contains stale staging directory cleanup settings.
type Staging struct {
	CleanOnStart    bool `toml:"clean_on_start"`
	StaleAfterHours int  `toml:"stale_after_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Paths contains directories used by the worker itself. The destination
// directory is never configured here; it always comes from the controller.
type Paths struct {
	TempDir string `toml:"temp_dir"`
}

// Config encapsulates all configuration values for the worker.
//
// Configuration sections by subsystem:
//   - Paths: private temporary area for metadata records and cookies
//   - Engine: yt-dlp binary and download tuning
//   - Transcoder: ffmpeg binary and thumbnail bounds
//   - Locking: staging directory lock back-off
//   - Staging: abandoned staging directory cleanup
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Engine     Engine     `toml:"engine"`
	Transcoder Transcoder `toml:"transcoder"`
	Locking    Locking    `toml:"locking"`
	Staging    Staging    `toml:"staging"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidworker/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error: the worker runs on defaults because the controller supplies
// every per-download decision.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// LockRetryDelay returns the back-off between staging lock attempts.
func (c *Config) LockRetryDelay() time.Duration {
	return time.Duration(c.Locking.RetryDelayMillis) * time.Millisecond
}

// StaleAfter returns the age after which an unlocked staging directory is abandoned.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Staging.StaleAfterHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
