package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeTranscoder()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	c.Paths.TempDir = strings.TrimSpace(c.Paths.TempDir)
	if c.Paths.TempDir == "" {
		return nil
	}
	var err error
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeEngine() {
	c.Engine.Binary = strings.TrimSpace(c.Engine.Binary)
	if c.Engine.Binary == "" {
		c.Engine.Binary = defaultEngineBinary
	}
	c.Engine.AudioCodec = strings.ToLower(strings.TrimSpace(c.Engine.AudioCodec))
	if c.Engine.AudioCodec == "" {
		c.Engine.AudioCodec = defaultAudioCodec
	}
	c.Engine.AudioQuality = strings.TrimSpace(c.Engine.AudioQuality)
	if c.Engine.AudioQuality == "" {
		c.Engine.AudioQuality = defaultAudioQuality
	}
	c.Engine.Fixup = strings.TrimSpace(c.Engine.Fixup)
	if c.Engine.Fixup == "" {
		c.Engine.Fixup = defaultFixup
	}
}

func (c *Config) normalizeTranscoder() {
	c.Transcoder.Binary = strings.TrimSpace(c.Transcoder.Binary)
	if c.Transcoder.Binary == "" {
		c.Transcoder.Binary = defaultTranscoderBinary
	}
	if c.Transcoder.MaxThumbnailResolution == 0 {
		c.Transcoder.MaxThumbnailResolution = defaultMaxThumbnailResolution
	}
}

func (c *Config) normalizeLogging() {
	if value, ok := os.LookupEnv("VIDWORKER_LOG_LEVEL"); ok && strings.TrimSpace(value) != "" {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
