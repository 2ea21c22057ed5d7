package wazero

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wasmplug/wasmplug/domain/ports"
)

// Engine implements ports.Engine on a single wazero runtime. Every
// Instantiate creates an anonymous module, so one binary can be instantiated
// any number of times without the instances sharing state.
type Engine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	logger  *zap.Logger

	group    singleflight.Group
	mu       sync.Mutex
	compiled map[string]wazero.CompiledModule
}

var _ ports.Engine = (*Engine)(nil)

// NewEngine creates a wazero runtime with WASI and the host functions
// instantiated. host may be nil.
func NewEngine(ctx context.Context, host ports.HostFunctions, opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	e := &Engine{
		logger:   cfg.Logger,
		compiled: make(map[string]wazero.CompiledModule),
	}
	if cfg.CompilationCacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(cfg.CompilationCacheDir)
		if err != nil {
			return nil, fmt.Errorf("open compilation cache: %w", err)
		}
		e.cache = cache
		rc = rc.WithCompilationCache(cache)
	}

	e.runtime = wazero.NewRuntimeWithConfig(ctx, rc)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.runtime); err != nil {
		_ = e.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}
	if host != nil {
		if err := registerHostModule(ctx, e.runtime, host, cfg); err != nil {
			_ = e.Close(ctx)
			return nil, fmt.Errorf("register host functions: %w", err)
		}
	}
	return e, nil
}

// Factory returns a ports.EngineFactory creating engines with opts.
func Factory(opts ...Option) ports.EngineFactory {
	return func(ctx context.Context, host ports.HostFunctions) (ports.Engine, error) {
		return NewEngine(ctx, host, opts...)
	}
}

// Instantiate implements ports.Engine. The start function is not run;
// reactor modules are initialized by the caller through _initialize.
func (e *Engine) Instantiate(ctx context.Context, binary []byte) (ports.GuestModule, error) {
	compiled, err := e.compile(ctx, binary)
	if err != nil {
		return nil, err
	}

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions().
		WithSysWalltime().
		WithSysNanotime()
	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate module: %w", err)
	}
	return &guestModule{mod: mod}, nil
}

// Compiled returns the number of distinct binaries compiled so far.
func (e *Engine) Compiled() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.compiled)
}

// compile returns the compiled form of binary, compiling it at most once
// even under concurrent loads.
func (e *Engine) compile(ctx context.Context, binary []byte) (wazero.CompiledModule, error) {
	sum := sha256.Sum256(binary)
	key := hex.EncodeToString(sum[:])

	e.mu.Lock()
	if c, ok := e.compiled[key]; ok {
		e.mu.Unlock()
		return c, nil
	}
	e.mu.Unlock()

	v, err, _ := e.group.Do(key, func() (any, error) {
		e.mu.Lock()
		if c, ok := e.compiled[key]; ok {
			e.mu.Unlock()
			return c, nil
		}
		e.mu.Unlock()

		c, err := e.runtime.CompileModule(ctx, binary)
		if err != nil {
			return nil, fmt.Errorf("compile module: %w", err)
		}
		e.logger.Debug("compiled module", zap.String("sha256", key))

		e.mu.Lock()
		e.compiled[key] = c
		e.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(wazero.CompiledModule), nil
}

// Close implements ports.Engine.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
