package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"vidworker/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VIDWORKER_LOG_LEVEL", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".config", "vidworker", "config.toml"); resolved != want {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, want)
	}
	if cfg.Engine.Binary != "yt-dlp" {
		t.Fatalf("unexpected engine binary: %q", cfg.Engine.Binary)
	}
	if cfg.Transcoder.Binary != "ffmpeg" {
		t.Fatalf("unexpected transcoder binary: %q", cfg.Transcoder.Binary)
	}
	if cfg.LockRetryDelay() != 500*time.Millisecond {
		t.Fatalf("unexpected lock retry delay: %s", cfg.LockRetryDelay())
	}
	if cfg.StaleAfter() != 7*24*time.Hour {
		t.Fatalf("unexpected stale after: %s", cfg.StaleAfter())
	}
	if cfg.Paths.TempDir != "" {
		t.Fatalf("expected empty temp dir default, got %q", cfg.Paths.TempDir)
	}
}

func TestLoadReadsTOMLAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VIDWORKER_LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "worker.toml")
	body := `
[paths]
temp_dir = "~/scratch"

[engine]
binary = "/opt/yt-dlp"
retries = 3

[logging]
format = "JSON"
level = "Debug"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected existing config at %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Paths.TempDir != filepath.Join(tempHome, "scratch") {
		t.Fatalf("unexpected temp dir: %q", cfg.Paths.TempDir)
	}
	if cfg.Engine.Binary != "/opt/yt-dlp" || cfg.Engine.Retries != 3 {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Engine.FragmentRetries != 10 {
		t.Fatalf("expected fragment retries default to survive, got %d", cfg.Engine.FragmentRetries)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.toml")
	if err := os.WriteFile(path, []byte("[engine]\nbinry = \"x\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLoadRejectsTitleLengthOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.toml")
	if err := os.WriteFile(path, []byte("[output]\nmax_title_bytes = 250\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("published title length must not be configurable")
	}
}

func TestEnvOverridesLogLevel(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VIDWORKER_LOG_LEVEL", "WARN")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected env log level, got %q", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"retries":       func(c *config.Config) { c.Engine.Retries = -1 },
		"audio_codec":   func(c *config.Config) { c.Engine.AudioCodec = "opus" },
		"lock_delay":    func(c *config.Config) { c.Locking.RetryDelayMillis = 0 },
		"stale_after":   func(c *config.Config) { c.Staging.StaleAfterHours = 0 },
		"log_format":    func(c *config.Config) { c.Logging.Format = "xml" },
		"log_level":     func(c *config.Config) { c.Logging.Level = "trace" },
		"thumbnail_res": func(c *config.Config) { c.Transcoder.MaxThumbnailResolution = 1 },
	}
	for name, mutate := range cases {
		cfg := config.Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config is not valid TOML: %v", err)
	}
	if parsed.Engine.Binary != "yt-dlp" {
		t.Fatalf("unexpected sample engine binary: %q", parsed.Engine.Binary)
	}
	if !strings.Contains(string(data), "[staging]") {
		t.Fatal("expected staging section in sample")
	}

	t.Setenv("VIDWORKER_LOG_LEVEL", "")
	if _, _, exists, err := config.Load(path); err != nil || !exists {
		t.Fatalf("expected sample to load cleanly, exists=%v err=%v", exists, err)
	}
}
