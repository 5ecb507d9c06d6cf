package app

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration schema.
type FileConfig struct {
	Addr string `yaml:"addr"`

	Limits struct {
		MaxUploadBytes int64 `yaml:"maxUploadBytes"`
		// ConvertTimeout is a duration string such as "30s".
		ConvertTimeout string `yaml:"convertTimeout"`
	} `yaml:"limits"`

	Verbose bool `yaml:"verbose"`
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("parse yaml: %w", err)
	}
	if fc.Limits.ConvertTimeout != "" {
		if _, err := time.ParseDuration(fc.Limits.ConvertTimeout); err != nil {
			return fc, fmt.Errorf("parse yaml: limits.convertTimeout: %w", err)
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays file values onto cfg wherever cfg still holds the
// built-in default, so explicit flags and env overrides win over the file.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	def := Defaults()
	if cfg.Addr == def.Addr && fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if cfg.MaxUploadBytes == def.MaxUploadBytes && fc.Limits.MaxUploadBytes > 0 {
		cfg.MaxUploadBytes = fc.Limits.MaxUploadBytes
	}
	if cfg.ConvertTimeout == def.ConvertTimeout && fc.Limits.ConvertTimeout != "" {
		if d, err := time.ParseDuration(fc.Limits.ConvertTimeout); err == nil && d > 0 {
			cfg.ConvertTimeout = d
		}
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
}
