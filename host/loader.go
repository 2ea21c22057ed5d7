package host

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
	"github.com/wasmplug/wasmplug/domain/ports"
	"github.com/wasmplug/wasmplug/infrastructure/native"
	"github.com/wasmplug/wasmplug/pdk"
	"github.com/wasmplug/wasmplug/wireformat"
)

// requiredExports must be present in every plugin module.
var requiredExports = []string{
	wireformat.ExportMemory,
	wireformat.ExportAllocate,
	wireformat.ExportFree,
	wireformat.ExportDescribe,
}

// Load instantiates binary as a new plugin. Every failure is a
// *errors.LoadError and leaves nothing behind.
func (r *Runtime) Load(ctx context.Context, binary []byte, opts ...LoadOption) (*Plugin, error) {
	cfg, schemas, err := r.loadOptions(opts)
	if err != nil {
		return nil, err
	}
	module, err := r.engine.Instantiate(ctx, binary)
	if err != nil {
		return nil, &abierrors.LoadError{Reason: "instantiate", Err: err}
	}
	return r.attach(ctx, module, schemas, cfg)
}

// LoadHost loads a plugin implemented in Go. It runs in the host process
// over its own simulated memory and is called exactly like a WASM plugin:
// arguments are checked and encoded, calls are serialized, and its host
// calls reach this runtime's host functions.
func (r *Runtime) LoadHost(ctx context.Context, plugin *pdk.Plugin, opts ...LoadOption) (*Plugin, error) {
	cfg, schemas, err := r.loadOptions(opts)
	if err != nil {
		return nil, err
	}
	module, err := native.NewModule(plugin, r.host)
	if err != nil {
		return nil, &abierrors.LoadError{Reason: "instantiate", Err: err}
	}
	return r.attach(ctx, module, schemas, cfg)
}

func (r *Runtime) loadOptions(opts []LoadOption) (loadConfig, *entities.SchemaSet, error) {
	cfg := loadConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	schemas, err := r.schemas.Merge(cfg.schemas)
	if err != nil {
		return cfg, nil, &abierrors.LoadError{Reason: "merge schemas", Err: err}
	}
	return cfg, schemas, nil
}

// attach binds an instantiated module and registers the plugin. The module
// is closed on failure.
func (r *Runtime) attach(ctx context.Context, module ports.GuestModule, schemas *entities.SchemaSet, cfg loadConfig) (*Plugin, error) {
	p, err := r.bind(ctx, module, schemas, cfg)
	if err != nil {
		_ = module.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	if err := r.track(p); err != nil {
		_ = module.Close(context.WithoutCancel(ctx))
		return nil, &abierrors.LoadError{Reason: "register", Err: err}
	}

	p.logger.Info("plugin loaded", zap.Int("functions", p.table.Len()))
	return p, nil
}

// LoadFile reads a module from disk and loads it.
func (r *Runtime) LoadFile(ctx context.Context, path string, opts ...LoadOption) (*Plugin, error) {
	binary, err := os.ReadFile(path) //nolint:gosec // G304: loading operator-chosen plugin files is the point
	if err != nil {
		return nil, &abierrors.LoadError{Reason: "read " + path, Err: err}
	}
	return r.Load(ctx, binary, opts...)
}

// bind validates an instantiated module against the ABI and reads its
// descriptor table and manifest.
func (r *Runtime) bind(ctx context.Context, module ports.GuestModule, schemas *entities.SchemaSet, cfg loadConfig) (*Plugin, error) {
	if module.HasExport(wireformat.ExportInitialize) {
		if _, err := module.Call(ctx, wireformat.ExportInitialize); err != nil {
			return nil, &abierrors.LoadError{Reason: "initialize", Err: err}
		}
	}
	for _, name := range requiredExports {
		if !module.HasExport(name) {
			return nil, &abierrors.LoadError{Reason: fmt.Sprintf("missing export %q", name)}
		}
	}

	raw, err := r.fetch(ctx, module, wireformat.ExportDescribe)
	if err != nil {
		return nil, &abierrors.LoadError{Reason: "describe", Err: err}
	}
	table, err := wireformat.DecodeTable(schemas, raw)
	if err != nil {
		return nil, &abierrors.LoadError{Reason: "decode descriptor table", Err: err}
	}
	if dups := table.Duplicates(); len(dups) > 0 {
		return nil, &abierrors.LoadError{Reason: "duplicate export", Err: &abierrors.DuplicateExportError{Name: dups[0]}}
	}
	for _, name := range table.Names() {
		if export := wireformat.CallExport(name); !module.HasExport(export) {
			return nil, &abierrors.LoadError{Reason: fmt.Sprintf("missing export %q", export)}
		}
	}

	p := &Plugin{
		runtime:     r,
		module:      module,
		table:       table,
		schemas:     schemas,
		callTimeout: r.callTimeout,
		sem:         semaphore.NewWeighted(1),
	}

	if module.HasExport(wireformat.ExportManifest) {
		raw, err := r.fetch(ctx, module, wireformat.ExportManifest)
		if err != nil {
			return nil, &abierrors.LoadError{Reason: "manifest", Err: err}
		}
		if len(raw) > 0 {
			m, err := wireformat.DecodeManifest(raw)
			if err != nil {
				return nil, &abierrors.LoadError{Reason: "manifest", Err: err}
			}
			p.manifest, p.hasManifest = m, true
		}
	}

	p.id = cfg.id
	if p.id == "" {
		p.id = p.manifest.ID
	}
	p.logger = r.logger.With(zap.String("plugin", p.Name()))
	return p, nil
}

// fetch calls a no-argument export that returns a packed buffer, copies the
// buffer out and frees it. A packed 0 yields nil.
func (r *Runtime) fetch(ctx context.Context, module ports.GuestModule, export string) ([]byte, error) {
	f := newFrame(module, r.logger)
	defer f.release(ctx)

	results, err := module.Call(ctx, export)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, &abierrors.ProtocolError{Detail: fmt.Sprintf("%s returned %d values", export, len(results))}
	}
	if results[0] == 0 {
		return nil, nil
	}

	ptr, size := wireformat.UnpackPtrLen(results[0])
	f.adopt(ptr, size)
	raw, err := f.read(ptr, size)
	if err != nil {
		return nil, err
	}
	if err := f.free(ctx, ptr); err != nil {
		return nil, err
	}
	return raw, nil
}
