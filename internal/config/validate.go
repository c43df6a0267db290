package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateTranscoder(); err != nil {
		return err
	}
	if err := c.validateLocking(); err != nil {
		return err
	}
	if err := c.validateStaging(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateEngine() error {
	if c.Engine.Retries < 0 {
		return errors.New("engine.retries must be non-negative")
	}
	if c.Engine.FragmentRetries < 0 {
		return errors.New("engine.fragment_retries must be non-negative")
	}
	switch c.Engine.AudioCodec {
	case "mp3":
	default:
		// Published audio files are detected by their .mp3 extension.
		return fmt.Errorf("engine.audio_codec: unsupported value %q (only mp3)", c.Engine.AudioCodec)
	}
	return nil
}

func (c *Config) validateTranscoder() error {
	if c.Transcoder.MaxThumbnailResolution < 16 {
		return errors.New("transcoder.max_thumbnail_resolution must be at least 16")
	}
	return nil
}

func (c *Config) validateLocking() error {
	if c.Locking.RetryDelayMillis <= 0 {
		return errors.New("locking.retry_delay_ms must be positive")
	}
	return nil
}

func (c *Config) validateStaging() error {
	if c.Staging.StaleAfterHours <= 0 {
		return errors.New("staging.stale_after_hours must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
