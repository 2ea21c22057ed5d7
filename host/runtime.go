package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wasmplug/wasmplug/domain/entities"
	"github.com/wasmplug/wasmplug/domain/ports"
	"github.com/wasmplug/wasmplug/hostfuncs"
	"github.com/wasmplug/wasmplug/infrastructure/wazero"
)

// Runtime loads plugins and owns the engine they run on. Plugins loaded by
// one Runtime share no memory or state with each other.
type Runtime struct {
	engine      ports.Engine
	host        *hostfuncs.HandlerRegistry
	logger      *zap.Logger
	schemas     *entities.SchemaSet
	callTimeout time.Duration

	mu      sync.Mutex
	plugins map[*Plugin]struct{}
	closed  bool
}

// NewRuntime creates a runtime with the given options.
func NewRuntime(ctx context.Context, opts ...Option) (*Runtime, error) {
	cfg := runtimeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = Logger()
	}

	hostOpts := []hostfuncs.RegistryOption{
		hostfuncs.WithMiddleware(
			hostfuncs.PanicRecoveryMiddleware(),
			hostfuncs.LoggingMiddleware(cfg.logger),
		),
		hostfuncs.WithBundle(hostfuncs.LogBundle(cfg.logger.Named("guest"))),
	}
	registry, err := hostfuncs.NewRegistry(append(hostOpts, cfg.hostOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("create host function registry: %w", err)
	}

	factory := cfg.engineFactory
	if factory == nil {
		factory = wazero.Factory(append(cfg.engineOpts, wazero.WithLogger(cfg.logger))...)
	}
	engine, err := factory(ctx, registry)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	return &Runtime{
		engine:      engine,
		host:        registry,
		logger:      cfg.logger,
		schemas:     cfg.schemas,
		callTimeout: cfg.callTimeout,
		plugins:     make(map[*Plugin]struct{}),
	}, nil
}

// HostFunctions returns the names of the host functions guests may import.
func (r *Runtime) HostFunctions() []string {
	return r.host.Names()
}

// Unload closes a plugin. It is the same as p.Close.
func (r *Runtime) Unload(ctx context.Context, p *Plugin) error {
	return p.Close(ctx)
}

// Close unloads every plugin and releases the engine.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	plugins := make([]*Plugin, 0, len(r.plugins))
	for p := range r.plugins {
		plugins = append(plugins, p)
	}
	r.mu.Unlock()

	var errs []error
	for _, p := range plugins {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.engine.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return stdErrors.Join(errs...)
}

func (r *Runtime) track(p *Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("runtime is closed")
	}
	r.plugins[p] = struct{}{}
	return nil
}

func (r *Runtime) forget(p *Plugin) {
	r.mu.Lock()
	delete(r.plugins, p)
	r.mu.Unlock()
}
