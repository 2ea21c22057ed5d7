package wazero

import (
	"go.uber.org/zap"
)

// DefaultMaxRequestSize limits the size of host function requests read from
// guest memory.
const DefaultMaxRequestSize = 1 << 20 // 1 MiB

// Config holds configuration for the engine.
type Config struct {
	Logger *zap.Logger

	// CompilationCacheDir persists compiled modules across processes when set.
	CompilationCacheDir string

	// MaxRequestSize limits the size of incoming host function requests.
	MaxRequestSize uint32

	// MemoryLimitPages caps each instance's linear memory, in 64 KiB pages.
	// Zero keeps wazero's default of 65536 pages.
	MemoryLimitPages uint32
}

// Option configures the engine.
type Option func(*Config)

// WithMemoryLimitPages caps each instance's memory at pages × 64 KiB.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *Config) {
		c.MemoryLimitPages = pages
	}
}

// WithCompilationCacheDir stores compiled modules in dir.
func WithCompilationCacheDir(dir string) Option {
	return func(c *Config) {
		c.CompilationCacheDir = dir
	}
}

// WithMaxRequestSize sets the maximum host function request size.
func WithMaxRequestSize(size uint32) Option {
	return func(c *Config) {
		c.MaxRequestSize = size
	}
}

// WithLogger sets the logger for host-side failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

func defaultConfig() Config {
	return Config{
		MaxRequestSize: DefaultMaxRequestSize,
		Logger:         zap.NewNop(),
	}
}
