package host

import (
	"time"

	"go.uber.org/zap"

	"github.com/wasmplug/wasmplug/domain/entities"
	"github.com/wasmplug/wasmplug/domain/ports"
	"github.com/wasmplug/wasmplug/hostfuncs"
	"github.com/wasmplug/wasmplug/infrastructure/wazero"
)

type runtimeConfig struct {
	engineFactory ports.EngineFactory
	engineOpts    []wazero.Option
	logger        *zap.Logger
	schemas       *entities.SchemaSet
	hostOpts      []hostfuncs.RegistryOption
	callTimeout   time.Duration
}

// Option configures a Runtime.
type Option func(*runtimeConfig)

// WithEngineFactory replaces the wazero engine.
func WithEngineFactory(f ports.EngineFactory) Option {
	return func(c *runtimeConfig) {
		c.engineFactory = f
	}
}

// WithLogger sets the runtime's logger. Defaults to Logger().
func WithLogger(l *zap.Logger) Option {
	return func(c *runtimeConfig) {
		c.logger = l
	}
}

// WithSchemas sets the struct schemas shared by every loaded plugin.
func WithSchemas(s *entities.SchemaSet) Option {
	return func(c *runtimeConfig) {
		c.schemas = s
	}
}

// WithCallTimeout bounds every call. An expired call ends in a trap and
// invalidates the plugin. Zero means no bound.
func WithCallTimeout(d time.Duration) Option {
	return func(c *runtimeConfig) {
		c.callTimeout = d
	}
}

// WithHostFunctions adds host functions guests can import, next to the
// built-in log_message.
func WithHostFunctions(opts ...hostfuncs.RegistryOption) Option {
	return func(c *runtimeConfig) {
		c.hostOpts = append(c.hostOpts, opts...)
	}
}

// WithMemoryLimitPages caps each plugin's memory at pages × 64 KiB.
// Ignored with WithEngineFactory.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *runtimeConfig) {
		c.engineOpts = append(c.engineOpts, wazero.WithMemoryLimitPages(pages))
	}
}

// WithCompilationCacheDir persists compiled modules in dir.
// Ignored with WithEngineFactory.
func WithCompilationCacheDir(dir string) Option {
	return func(c *runtimeConfig) {
		c.engineOpts = append(c.engineOpts, wazero.WithCompilationCacheDir(dir))
	}
}

// WithMaxRequestSize limits host function requests read from guest memory.
// Ignored with WithEngineFactory.
func WithMaxRequestSize(size uint32) Option {
	return func(c *runtimeConfig) {
		c.engineOpts = append(c.engineOpts, wazero.WithMaxRequestSize(size))
	}
}

type loadConfig struct {
	schemas *entities.SchemaSet
	id      string
}

// LoadOption configures a single load.
type LoadOption func(*loadConfig)

// WithPluginID sets the plugin's ID, overriding its manifest.
func WithPluginID(id string) LoadOption {
	return func(c *loadConfig) {
		c.id = id
	}
}

// WithLoadSchemas adds struct schemas for this plugin only. They are merged
// with the runtime's schemas; conflicting definitions fail the load.
func WithLoadSchemas(s *entities.SchemaSet) LoadOption {
	return func(c *loadConfig) {
		c.schemas = s
	}
}
