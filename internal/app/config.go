// Package app holds runtime configuration for the webarc service.
package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/webarctools/webarc/internal/convert"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Config holds the process-wide settings. It is assembled once at startup
// and read-only afterwards; request handling never mutates it.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// MaxUploadBytes caps accepted upload sizes.
	MaxUploadBytes int64

	// ConvertTimeout bounds a single conversion's wall clock.
	ConvertTimeout time.Duration

	// Verbose enables debug-level logging.
	Verbose bool
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:           ":8080",
		MaxUploadBytes: convert.DefaultMaxBytes,
		ConvertTimeout: convert.DefaultTimeout,
	}
}

// ApplyEnv overrides the size and timeout limits from the environment.
// These are the only environment-driven settings.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("WEBARC_MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: WEBARC_MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	if v := os.Getenv("WEBARC_CONVERT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: WEBARC_CONVERT_TIMEOUT: %w", err)
		}
		c.ConvertTimeout = d
	}
	return nil
}

// Validate rejects settings that would disable the pipeline guards.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("config: listen address is required")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("config: max upload bytes must be positive")
	}
	if c.ConvertTimeout <= 0 {
		return errors.New("config: convert timeout must be positive")
	}
	return nil
}
