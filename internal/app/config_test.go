package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.MaxUploadBytes != 50<<20 {
		t.Fatalf("MaxUploadBytes = %d, want 50 MiB", cfg.MaxUploadBytes)
	}
	if cfg.ConvertTimeout != 30*time.Second {
		t.Fatalf("ConvertTimeout = %v, want 30s", cfg.ConvertTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestApplyEnv_OverridesLimits(t *testing.T) {
	t.Setenv("WEBARC_MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("WEBARC_CONVERT_TIMEOUT", "5s")

	cfg := Defaults()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.MaxUploadBytes != 1<<20 {
		t.Fatalf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.ConvertTimeout != 5*time.Second {
		t.Fatalf("ConvertTimeout = %v", cfg.ConvertTimeout)
	}
}

func TestApplyEnv_RejectsGarbage(t *testing.T) {
	t.Setenv("WEBARC_MAX_UPLOAD_BYTES", "lots")
	cfg := Defaults()
	if err := cfg.ApplyEnv(); err == nil {
		t.Fatal("ApplyEnv accepted a non-numeric size")
	}
}

func TestValidate_RejectsDisabledGuards(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.Addr = "" },
		func(c *Config) { c.MaxUploadBytes = 0 },
		func(c *Config) { c.ConvertTimeout = -time.Second },
	} {
		cfg := Defaults()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("Validate accepted %+v", cfg)
		}
	}
}

func TestLoadConfigFile_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webarc.yaml")
	body := "addr: \":9090\"\nlimits:\n  maxUploadBytes: 1024\n  convertTimeout: 2s\nverbose: true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	fc, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	cfg := Defaults()
	ApplyFileConfig(&cfg, fc)
	if cfg.Addr != ":9090" || cfg.MaxUploadBytes != 1024 || cfg.ConvertTimeout != 2*time.Second || !cfg.Verbose {
		t.Fatalf("overlay result %+v", cfg)
	}
}

func TestApplyFileConfig_ExplicitSettingsWin(t *testing.T) {
	var fc FileConfig
	fc.Addr = ":7000"
	fc.Limits.MaxUploadBytes = 99

	cfg := Defaults()
	cfg.Addr = ":6000"           // explicit flag value
	cfg.MaxUploadBytes = 2 << 20 // explicit env override
	ApplyFileConfig(&cfg, fc)

	if cfg.Addr != ":6000" {
		t.Fatalf("Addr = %q, file config overrode an explicit flag", cfg.Addr)
	}
	if cfg.MaxUploadBytes != 2<<20 {
		t.Fatalf("MaxUploadBytes = %d, file config overrode an explicit override", cfg.MaxUploadBytes)
	}
}

func TestLoadConfigFile_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webarc.yaml")
	if err := os.WriteFile(path, []byte("limits:\n  convertTimeout: soonish\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("LoadConfigFile accepted a malformed duration")
	}
}
