package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
	"github.com/wasmplug/wasmplug/hostfuncs"
	"github.com/wasmplug/wasmplug/pdk"
	"github.com/wasmplug/wasmplug/wireformat"
)

// Universe is a set of plugins addressed by ID that can call each other
// through the call_plugin host function.
type Universe struct {
	rt     *Runtime
	logger *zap.Logger

	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// Source locates one plugin for LoadAll. Host wins over Binary, which wins
// over Path. ID overrides the manifest ID.
type Source struct {
	ID     string
	Path   string
	Binary []byte
	Host   *pdk.Plugin
}

// NewUniverse creates a universe and the runtime its plugins are loaded into.
func NewUniverse(ctx context.Context, opts ...Option) (*Universe, error) {
	u := &Universe{plugins: make(map[string]*Plugin)}
	opts = append(opts, WithHostFunctions(
		hostfuncs.WithByteHandler(wireformat.ImportCallPlugin, u.handleCallPlugin),
	))
	rt, err := NewRuntime(ctx, opts...)
	if err != nil {
		return nil, err
	}
	u.rt = rt
	u.logger = rt.logger.Named("universe")
	return u, nil
}

// Runtime returns the runtime plugins of this universe are loaded into.
func (u *Universe) Runtime() *Runtime { return u.rt }

// Add registers a plugin loaded by u.Runtime(). The plugin leaves the
// universe when it is closed.
func (u *Universe) Add(p *Plugin) error {
	if p.runtime != u.rt {
		return fmt.Errorf("add plugin %s: loaded by another runtime", p.Name())
	}
	if p.ID() == "" {
		return fmt.Errorf("add plugin: no id; export a manifest or load with WithPluginID")
	}

	u.mu.Lock()
	if _, ok := u.plugins[p.ID()]; ok {
		u.mu.Unlock()
		return &abierrors.PluginExistsError{ID: p.ID()}
	}
	u.plugins[p.ID()] = p
	u.mu.Unlock()

	p.addCloseHook(func() { u.detach(p) })
	return nil
}

func (u *Universe) detach(p *Plugin) {
	u.mu.Lock()
	if u.plugins[p.ID()] == p {
		delete(u.plugins, p.ID())
	}
	u.mu.Unlock()
}

// Load loads binary and adds it. The plugin is closed again if it cannot
// be added.
func (u *Universe) Load(ctx context.Context, binary []byte, opts ...LoadOption) (*Plugin, error) {
	p, err := u.rt.Load(ctx, binary, opts...)
	if err != nil {
		return nil, err
	}
	return u.adopt(ctx, p)
}

// LoadFile loads a module from disk and adds it.
func (u *Universe) LoadFile(ctx context.Context, path string, opts ...LoadOption) (*Plugin, error) {
	p, err := u.rt.LoadFile(ctx, path, opts...)
	if err != nil {
		return nil, err
	}
	return u.adopt(ctx, p)
}

// AddHost loads a plugin implemented in Go and adds it. Other plugins call
// it through call_plugin like any WASM plugin.
func (u *Universe) AddHost(ctx context.Context, plugin *pdk.Plugin, opts ...LoadOption) (*Plugin, error) {
	p, err := u.rt.LoadHost(ctx, plugin, opts...)
	if err != nil {
		return nil, err
	}
	return u.adopt(ctx, p)
}

func (u *Universe) adopt(ctx context.Context, p *Plugin) (*Plugin, error) {
	if err := u.Add(p); err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	return p, nil
}

// LoadAll loads every source concurrently. If any load fails, the plugins
// loaded by this call are closed and the first error is returned.
func (u *Universe) LoadAll(ctx context.Context, sources []Source) error {
	var (
		mu     sync.Mutex
		loaded []*Plugin
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			var opts []LoadOption
			if src.ID != "" {
				opts = append(opts, WithPluginID(src.ID))
			}
			var (
				p   *Plugin
				err error
			)
			switch {
			case src.Host != nil:
				p, err = u.AddHost(gctx, src.Host, opts...)
			case src.Binary != nil:
				p, err = u.Load(gctx, src.Binary, opts...)
			default:
				p, err = u.LoadFile(gctx, src.Path, opts...)
			}
			if err != nil {
				return err
			}
			mu.Lock()
			loaded = append(loaded, p)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, p := range loaded {
			_ = p.Close(context.WithoutCancel(ctx))
		}
		return err
	}
	return nil
}

// Get returns the plugin with the given ID.
func (u *Universe) Get(id string) (*Plugin, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	p, ok := u.plugins[id]
	return p, ok
}

// IDs returns the sorted IDs of all plugins.
func (u *Universe) IDs() []string {
	u.mu.RLock()
	ids := make([]string, 0, len(u.plugins))
	for id := range u.plugins {
		ids = append(ids, id)
	}
	u.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Call calls function on the plugin with the given ID. An override attached
// to ctx for (id, function) answers the call instead.
func (u *Universe) Call(ctx context.Context, id, function string, args ...entities.Value) (entities.Value, error) {
	if override, ok := overridesFrom(ctx).lookup(id, function); ok {
		v, err := override(ctx, args)
		if err == nil && v == nil {
			v = entities.Void{}
		}
		return v, err
	}
	p, ok := u.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", abierrors.ErrUnknownPlugin, id)
	}
	return p.Call(ctx, function, args...)
}

// Remove closes the plugin with the given ID and removes it.
func (u *Universe) Remove(ctx context.Context, id string) error {
	p, ok := u.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", abierrors.ErrUnknownPlugin, id)
	}
	return p.Close(ctx)
}

// Close closes every plugin and the runtime.
func (u *Universe) Close(ctx context.Context) error {
	return u.rt.Close(ctx)
}

// handleCallPlugin serves call_plugin. Failures are answered with an error
// envelope for the calling guest, never with a trap.
func (u *Universe) handleCallPlugin(ctx context.Context, payload []byte) ([]byte, error) {
	var req wireformat.PluginCallRequest
	if err := wireformat.UnmarshalPayload(payload, &req); err != nil {
		return wireformat.EncodeError(wireformat.ErrorKindEncoding, err.Error()), nil
	}

	if override, ok := overridesFrom(ctx).lookup(req.ID, req.Function); ok {
		return u.callOverride(ctx, override, req), nil
	}

	target, ok := u.Get(req.ID)
	if !ok {
		return hostfuncs.FailureResponse(fmt.Errorf("%w: %q", abierrors.ErrUnknownPlugin, req.ID)), nil
	}
	if chain := chainFrom(ctx); chain.contains(target) {
		path := append(chain.path(), target.Name())
		return hostfuncs.FailureResponse(fmt.Errorf("%w: %s", abierrors.ErrCyclicCall, strings.Join(path, " -> "))), nil
	}

	fn, ok := target.Table().Lookup(req.Function)
	if !ok {
		return hostfuncs.FailureResponse(&abierrors.NotFoundError{Function: req.Function}), nil
	}
	args, err := wireformat.DecodeArgs(target.Schemas(), fn, req.Args)
	if err != nil {
		return hostfuncs.FailureResponse(err), nil
	}

	v, err := target.Call(ctx, req.Function, args...)
	if err != nil {
		var trap *abierrors.TrapError
		if stdErrors.As(err, &trap) {
			u.logger.Warn("nested call trapped",
				zap.String("target", target.Name()), zap.String("function", req.Function))
		}
		return hostfuncs.FailureResponse(err), nil
	}
	return wireformat.EncodeResult(target.Schemas(), v)
}

// callOverride answers a call_plugin request with an override. Arguments
// and result use the schemas of the calling plugin, which encoded them.
func (u *Universe) callOverride(ctx context.Context, override OverrideFunc, req wireformat.PluginCallRequest) []byte {
	schemas := u.rt.schemas
	if chain := chainFrom(ctx); chain != nil {
		schemas = chain.plugin.Schemas()
	}

	parts, err := wireformat.SplitArgs(req.Args)
	if err != nil {
		return hostfuncs.FailureResponse(err)
	}
	args := make([]entities.Value, len(parts))
	for i, raw := range parts {
		if args[i], err = wireformat.DecodeValue(schemas, raw); err != nil {
			return hostfuncs.FailureResponse(err)
		}
	}

	v, err := override(ctx, args)
	if err != nil {
		return hostfuncs.FailureResponse(err)
	}
	if v == nil {
		v = entities.Void{}
	}
	resp, err := wireformat.EncodeResult(schemas, v)
	if err != nil {
		return hostfuncs.FailureResponse(err)
	}
	return resp
}
