package plugintest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/wasmplug/wasmplug/domain/ports"
	"github.com/wasmplug/wasmplug/infrastructure/native"
	"github.com/wasmplug/wasmplug/pdk"
)

const tokenPrefix = "plugintest:"

// Engine is a ports.Engine whose "binaries" are tokens naming registered
// pdk plugins. Each instantiation gets a fresh guest over its own arena.
// A panic inside the guest is reported as a trap, as a WASM engine would.
type Engine struct {
	mu        sync.Mutex
	plugins   map[string]*pdk.Plugin
	instances []*Instance
	host      ports.HostFunctions
	closed    bool
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{plugins: make(map[string]*pdk.Plugin)}
}

// Register makes p loadable and returns the binary to load it with.
func (e *Engine) Register(name string, p *pdk.Plugin) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plugins[name] = p
	return []byte(tokenPrefix + name)
}

// Factory returns an EngineFactory that hands out e, bound to the host
// functions of the runtime that calls it.
func (e *Engine) Factory() ports.EngineFactory {
	return func(_ context.Context, host ports.HostFunctions) (ports.Engine, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.host = host
		return e, nil
	}
}

// Instantiate implements ports.Engine.
func (e *Engine) Instantiate(_ context.Context, binary []byte) (ports.GuestModule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, fmt.Errorf("plugintest: engine closed")
	}

	name, ok := strings.CutPrefix(string(binary), tokenPrefix)
	if !ok {
		return nil, fmt.Errorf("plugintest: not a registered plugin token")
	}
	p, ok := e.plugins[name]
	if !ok {
		return nil, fmt.Errorf("plugintest: no plugin registered as %q", name)
	}

	mod, err := native.NewModule(p, e.host)
	if err != nil {
		return nil, err
	}
	inst := &Instance{Module: mod, Name: name, calls: make(map[string]int)}
	e.instances = append(e.instances, inst)
	return inst, nil
}

// Instances returns every instance created so far, in creation order.
func (e *Engine) Instances() []*Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Instance(nil), e.instances...)
}

// Close implements ports.Engine.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	instances := e.instances
	e.mu.Unlock()

	for _, inst := range instances {
		_ = inst.Close(ctx)
	}
	return nil
}

// Instance is one in-process guest that counts the exports called on it.
type Instance struct {
	*native.Module
	Name string

	mu    sync.Mutex
	calls map[string]int
}

// Calls returns how many times an export was called.
func (i *Instance) Calls(export string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls[export]
}

// Call implements ports.GuestModule.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	i.mu.Lock()
	i.calls[name]++
	i.mu.Unlock()
	return i.Module.Call(ctx, name, params...)
}
