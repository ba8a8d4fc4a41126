package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "AFFINITY_"

// Backend names.
const (
	BackendLoop        = "loop"
	BackendTerminal    = "terminal"
	BackendPassThrough = "passthrough"
)

// Config holds runtime settings.
type Config struct {
	// Backend selects the affinity goroutine implementation.
	Backend string `toml:"backend" env:"BACKEND"`

	// LockOSThread pins the loop goroutine to its OS thread.
	LockOSThread bool `toml:"lock_os_thread" env:"LOCK_OS_THREAD"`

	// DesignMode forces the pass-through dispatcher.
	DesignMode bool `toml:"design_mode" env:"DESIGN_MODE"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `toml:"log_level" env:"LOG_LEVEL"`

	// LogFormat is text or json.
	LogFormat string `toml:"log_format" env:"LOG_FORMAT"`

	// Script is a Lua file run on the affinity goroutine at startup.
	Script string `toml:"script" env:"SCRIPT"`

	// Watch re-runs Script whenever it changes.
	Watch bool `toml:"watch" env:"WATCH"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Backend:   BackendLoop,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads path (if it exists) over the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("reading environment: %w", err)
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, c); err != nil {
		perr := &ParseError{Path: path, Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			perr.Line, perr.Column = derr.Position()
		}
		return perr
	}
	return nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendLoop, BackendTerminal, BackendPassThrough:
	default:
		return fmt.Errorf("%w: backend %q", ErrInvalidValue, c.Backend)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidValue, c.LogFormat)
	}
	return nil
}
