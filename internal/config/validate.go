package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

// RequireOutputDir rejects a configuration with no output directory.
// Validate does not enforce this so that a freshly initialized config still
// loads; commands that touch the library call this before doing any work.
func (c *Config) RequireOutputDir() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir is not set: edit the config file or pass an output directory")
	}
	return nil
}

func (c *Config) validateFFmpeg() error {
	if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
		return errors.New("ffmpeg.crf must be between 0 and 51")
	}
	if c.FFmpeg.TimeoutSeconds <= 0 {
		return errors.New("ffmpeg.timeout_seconds must be positive")
	}
	if c.FFmpeg.MinOutputBytes <= 0 {
		return errors.New("ffmpeg.min_output_bytes must be positive")
	}
	switch c.FFmpeg.Preset {
	case "ultrafast", "superfast", "veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow":
	default:
		return fmt.Errorf("ffmpeg.preset %q is not a known libx264 preset", c.FFmpeg.Preset)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.Workers <= 0 {
		return errors.New("ingest.workers must be positive")
	}
	if c.Ingest.Workers > 64 {
		return errors.New("ingest.workers must be 64 or fewer")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (console, json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported (debug, info, warn, error)", c.Logging.Level)
	}
	return nil
}
