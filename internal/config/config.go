package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "2s" or
// "100ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds configuration for the gpusched daemon.
type Config struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // Trace database path (":memory:" for testing)

	JobSlots uint32 `yaml:"job_slots"` // Number of hardware job slots

	// Timeout policy for the scheduler core.
	ExecutionTimeout Duration `yaml:"execution_timeout"`
	SemaphoreTimeout Duration `yaml:"semaphore_timeout"`
	HangGracePeriod  Duration `yaml:"hang_grace_period"`

	// Simulated device knobs (the daemon runs against internal/sim).
	SimJobDuration Duration `yaml:"sim_job_duration"`
}

// Default returns sensible defaults. The semaphore timeout is longer than the
// execution timeout because one semaphore may gate many atoms.
func Default() Config {
	return Config{
		Addr:             ":8080",
		LogLevel:         "info",
		LogFormat:        "text",
		DBPath:           ":memory:",
		JobSlots:         3,
		ExecutionTimeout: Duration(2 * time.Second),
		SemaphoreTimeout: Duration(5 * time.Second),
		HangGracePeriod:  Duration(100 * time.Millisecond),
		SimJobDuration:   Duration(50 * time.Millisecond),
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the scheduler cannot run with.
func (c Config) Validate() error {
	if c.JobSlots == 0 || c.JobSlots > 32 {
		return fmt.Errorf("job_slots must be in [1, 32], got %d", c.JobSlots)
	}
	if c.ExecutionTimeout <= 0 {
		return fmt.Errorf("execution_timeout must be positive")
	}
	if c.SemaphoreTimeout <= 0 {
		return fmt.Errorf("semaphore_timeout must be positive")
	}
	if c.HangGracePeriod <= 0 {
		return fmt.Errorf("hang_grace_period must be positive")
	}
	return nil
}
