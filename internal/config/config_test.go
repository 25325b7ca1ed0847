package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
log_level: debug
job_slots: 2
execution_timeout: 250ms
semaphore_timeout: 1s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.JobSlots != 2 {
		t.Errorf("JobSlots = %d", cfg.JobSlots)
	}
	if cfg.ExecutionTimeout.Std() != 250*time.Millisecond {
		t.Errorf("ExecutionTimeout = %v", cfg.ExecutionTimeout.Std())
	}
	if cfg.SemaphoreTimeout.Std() != time.Second {
		t.Errorf("SemaphoreTimeout = %v", cfg.SemaphoreTimeout.Std())
	}
	// Untouched fields keep their defaults.
	if cfg.HangGracePeriod != Default().HangGracePeriod {
		t.Errorf("HangGracePeriod = %v", cfg.HangGracePeriod.Std())
	}
	if cfg.DBPath != Default().DBPath {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadBadDuration(t *testing.T) {
	path := writeConfig(t, "execution_timeout: not-a-duration\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero job slots", func(c *Config) { c.JobSlots = 0 }},
		{"too many job slots", func(c *Config) { c.JobSlots = 64 }},
		{"zero execution timeout", func(c *Config) { c.ExecutionTimeout = 0 }},
		{"negative semaphore timeout", func(c *Config) { c.SemaphoreTimeout = Duration(-time.Second) }},
		{"zero hang grace period", func(c *Config) { c.HangGracePeriod = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
