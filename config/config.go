// Package config loads a plugin host configuration from TOML and turns it
// into runtime options and a loaded Universe.
//
// Example file:
//
//	[runtime]
//	memory_limit_pages = 256
//	call_timeout = "2s"
//
//	[logging]
//	level = "debug"
//
//	[[plugins]]
//	path = "plugins/math.wasm"
//	id = "math"
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wasmplug/wasmplug/host"
)

// Config is the root of the configuration file.
type Config struct {
	Runtime RuntimeConfig  `toml:"runtime"`
	Logging LoggingConfig  `toml:"logging"`
	Plugins []PluginConfig `toml:"plugins" validate:"dive"`

	// dir resolves relative plugin paths.
	dir string
}

// RuntimeConfig maps to host runtime options. Zero values keep the defaults.
type RuntimeConfig struct {
	CompilationCacheDir string   `toml:"compilation_cache_dir"`
	CallTimeout         Duration `toml:"call_timeout" validate:"gte=0"`
	MemoryLimitPages    uint32   `toml:"memory_limit_pages" validate:"lte=65536"`
	MaxRequestSize      uint32   `toml:"max_request_size"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `toml:"development"`
}

// PluginConfig locates one plugin module.
type PluginConfig struct {
	Path string `toml:"path" validate:"required"`
	ID   string `toml:"id" validate:"omitempty,max=128,printascii"`
}

// Duration is a time.Duration written as a string such as "1.5s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Load reads and validates a configuration file. Relative plugin paths are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if err := checkUndecoded(meta); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Parse decodes and validates TOML text. Relative plugin paths are resolved
// against dir.
func Parse(text, dir string) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(text, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	if err := checkUndecoded(meta); err != nil {
		return nil, err
	}
	cfg.dir = dir
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func checkUndecoded(meta toml.MetaData) error {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	sort.Strings(keys)
	return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
}

// Validate checks field constraints and that plugin IDs are unique.
func (c *Config) Validate() error {
	if err := configValidator().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]bool, len(c.Plugins))
	for _, p := range c.Plugins {
		if p.ID == "" {
			continue
		}
		if seen[p.ID] {
			return fmt.Errorf("invalid config: plugin id %q is used twice", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// NewLogger builds the zap logger described by [logging].
func (c *Config) NewLogger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Logging.Level != "" {
		level, err := zapcore.ParseLevel(c.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("logging level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// RuntimeOptions returns the host options described by [runtime].
func (c *Config) RuntimeOptions() []host.Option {
	var opts []host.Option
	r := c.Runtime
	if r.MemoryLimitPages > 0 {
		opts = append(opts, host.WithMemoryLimitPages(r.MemoryLimitPages))
	}
	if r.CallTimeout > 0 {
		opts = append(opts, host.WithCallTimeout(time.Duration(r.CallTimeout)))
	}
	if r.CompilationCacheDir != "" {
		opts = append(opts, host.WithCompilationCacheDir(c.resolve(r.CompilationCacheDir)))
	}
	if r.MaxRequestSize > 0 {
		opts = append(opts, host.WithMaxRequestSize(r.MaxRequestSize))
	}
	return opts
}

// Sources returns the [[plugins]] entries with resolved paths.
func (c *Config) Sources() []host.Source {
	sources := make([]host.Source, len(c.Plugins))
	for i, p := range c.Plugins {
		sources[i] = host.Source{ID: p.ID, Path: c.resolve(p.Path)}
	}
	return sources
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}

// Open creates a Universe with every configured plugin loaded. opts are
// applied after the configured options and may override them.
func (c *Config) Open(ctx context.Context, opts ...host.Option) (*host.Universe, error) {
	logger, err := c.NewLogger()
	if err != nil {
		return nil, err
	}

	all := append(c.RuntimeOptions(), host.WithLogger(logger))
	u, err := host.NewUniverse(ctx, append(all, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := u.LoadAll(ctx, c.Sources()); err != nil {
		_ = u.Close(ctx)
		return nil, err
	}
	return u, nil
}
