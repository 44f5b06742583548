package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. TASKENGINE_WORKERS or
// TASKENGINE_RETRY_DELAY.
const EnvPrefix = "TASKENGINE"

// envKeys lists every key that can be overridden from the environment.
var envKeys = []string{
	"workers",
	"max_concurrent_tasks",
	"queue_max_size",
	"default_max_retries",
	"default_timeout",
	"tick_interval",
	"stop_timeout",
	"cascade_failures",
	"retry.delay",
	"retry.multiplier",
	"retry.max_delay",
	"retry.jitter",
	"breaker.enabled",
	"breaker.failure_threshold",
	"breaker.open_timeout",
	"breaker.half_open_requests",
	"log.level",
	"log.format",
	"archive.enabled",
	"archive.path",
}

// Loader layers configuration sources over the defaults.
// Order of precedence (highest to lowest): bound flags, environment,
// project config, global config, defaults.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with environment overrides enabled.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
	return &Loader{v: v}
}

// BindFlag makes a parsed command-line flag override key. Flags left at their
// default are ignored so they never mask file or environment values.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("binding %s: flag not defined", key)
	}
	if !flag.Changed {
		return nil
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads and merges configuration from global and project paths.
// Missing files are not errors; malformed files return an error.
func (l *Loader) Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := l.mergeConfigFile(globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := l.mergeConfigFile(projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is shorthand for NewLoader().Load.
func Load(globalPath, projectPath string) (*Config, error) {
	return NewLoader().Load(globalPath, projectPath)
}

// DefaultPaths returns the conventional config locations.
// Global: ~/.taskengine/config.json
// Project: .taskengine/config.json (relative to cwd)
func DefaultPaths() (globalPath, projectPath string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".taskengine", "config.json"), filepath.Join(".taskengine", "config.json"), nil
}

// LoadDefault loads configuration from the conventional paths.
func LoadDefault() (*Config, error) {
	globalPath, projectPath, err := DefaultPaths()
	if err != nil {
		return nil, err
	}
	return Load(globalPath, projectPath)
}

// mergeConfigFile merges one file into the viper state. The format follows the
// file extension (json, yaml, toml).
func (l *Loader) mergeConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	l.v.SetConfigFile(path)
	if err := l.v.MergeInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
