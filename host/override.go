package host

import (
	"context"
	"sync"

	"github.com/wasmplug/wasmplug/domain/entities"
)

// OverrideFunc answers a call in place of a plugin function.
type OverrideFunc func(ctx context.Context, args []entities.Value) (entities.Value, error)

// Overrides maps (plugin ID, function) pairs to host functions. A table
// attached to a context with WithOverrides is consulted by Universe.Call and
// by every call_plugin request made while serving that context, before the
// target plugin is looked up. The target does not need to exist.
//
// Overrides is safe for concurrent use.
type Overrides struct {
	mu    sync.RWMutex
	funcs map[overrideKey]OverrideFunc
}

type overrideKey struct {
	id       string
	function string
}

// NewOverrides creates an empty table.
func NewOverrides() *Overrides {
	return &Overrides{funcs: make(map[overrideKey]OverrideFunc)}
}

// Set routes calls to function on plugin id to fn, replacing any earlier entry.
func (o *Overrides) Set(id, function string, fn OverrideFunc) {
	o.mu.Lock()
	o.funcs[overrideKey{id, function}] = fn
	o.mu.Unlock()
}

// Delete removes the entry for function on plugin id.
func (o *Overrides) Delete(id, function string) {
	o.mu.Lock()
	delete(o.funcs, overrideKey{id, function})
	o.mu.Unlock()
}

func (o *Overrides) lookup(id, function string) (OverrideFunc, bool) {
	if o == nil {
		return nil, false
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	fn, ok := o.funcs[overrideKey{id, function}]
	return fn, ok
}

type overridesKey struct{}

// WithOverrides attaches o to ctx.
func WithOverrides(ctx context.Context, o *Overrides) context.Context {
	return context.WithValue(ctx, overridesKey{}, o)
}

func overridesFrom(ctx context.Context) *Overrides {
	o, _ := ctx.Value(overridesKey{}).(*Overrides)
	return o
}
