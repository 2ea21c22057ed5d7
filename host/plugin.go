package host

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
	"github.com/wasmplug/wasmplug/domain/ports"
)

const (
	stateReady int32 = iota
	stateInvalidated
	stateClosed
)

// Plugin is one loaded, isolated plugin instance. Calls on a Plugin are
// serialized; load the same binary again for parallelism.
type Plugin struct {
	runtime     *Runtime
	module      ports.GuestModule
	table       *entities.DescriptorTable
	schemas     *entities.SchemaSet
	manifest    entities.Manifest
	hasManifest bool
	id          string
	logger      *zap.Logger
	callTimeout time.Duration

	sem     *semaphore.Weighted
	state   atomic.Int32
	closing atomic.Bool

	hookMu  sync.Mutex
	onClose []func()
}

// ID returns the plugin's ID: the WithPluginID option, else the manifest ID,
// else "".
func (p *Plugin) ID() string { return p.id }

// Name returns the ID, or a placeholder for anonymous plugins.
func (p *Plugin) Name() string {
	if p.id == "" {
		return "<anonymous>"
	}
	return p.id
}

// Table returns the plugin's descriptor table.
func (p *Plugin) Table() *entities.DescriptorTable { return p.table }

// Schemas returns the struct schemas the plugin's values are checked against.
func (p *Plugin) Schemas() *entities.SchemaSet { return p.schemas }

// Manifest returns the plugin's manifest, if it exports one.
func (p *Plugin) Manifest() (entities.Manifest, bool) { return p.manifest, p.hasManifest }

// Err returns nil while the plugin accepts calls, else ErrPluginInvalidated
// or ErrPluginClosed.
func (p *Plugin) Err() error {
	switch p.state.Load() {
	case stateInvalidated:
		return abierrors.ErrPluginInvalidated
	case stateClosed:
		return abierrors.ErrPluginClosed
	default:
		return nil
	}
}

// Call invokes the exported function name with args and returns its result.
//
// The arguments are checked against the descriptor before the guest runs.
// A trap invalidates the plugin: the call returns *errors.TrapError and every
// later call ErrPluginInvalidated. Calls from inside a host function (nested
// calls) fail with ErrPluginBusy instead of waiting for a busy plugin.
func (p *Plugin) Call(ctx context.Context, name string, args ...entities.Value) (entities.Value, error) {
	if err := p.Err(); err != nil {
		return nil, err
	}
	fn, ok := p.table.Lookup(name)
	if !ok {
		return nil, &abierrors.NotFoundError{Function: name}
	}
	if err := checkArgs(fn, args); err != nil {
		return nil, err
	}

	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	if err := p.Err(); err != nil {
		return nil, err
	}

	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}
	return p.invoke(withCall(ctx, p), fn, args)
}

func (p *Plugin) acquire(ctx context.Context) error {
	if chainFrom(ctx) != nil {
		if !p.sem.TryAcquire(1) {
			return fmt.Errorf("%w: %s", abierrors.ErrPluginBusy, p.Name())
		}
		return nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for plugin %s: %w", p.Name(), err)
	}
	return nil
}

// checkArgs reports the first position where args disagree with fn.
func checkArgs(fn entities.FunctionDescriptor, args []entities.Value) error {
	n := min(len(fn.Args), len(args))
	pos := -1
	for i := range n {
		if !entities.TagOf(args[i]).Equal(fn.Args[i]) {
			pos = i
			break
		}
	}
	if pos < 0 {
		if len(fn.Args) == len(args) {
			return nil
		}
		pos = n
	}

	mismatch := &abierrors.TypeMismatchError{
		Function:  fn.Name,
		Position:  pos,
		WantCount: len(fn.Args),
		GotCount:  len(args),
	}
	if pos < len(fn.Args) {
		mismatch.Want = fn.Args[pos]
	}
	if pos < len(args) {
		mismatch.Got = entities.TagOf(args[pos])
	}
	return mismatch
}

// Close unloads the plugin after any in-flight call returns. Later calls
// fail with ErrPluginClosed. Closing twice is a no-op.
//
// If ctx ends before the in-flight call returns, Close returns ctx's error
// and leaves the plugin loaded.
func (p *Plugin) Close(ctx context.Context) error {
	if !p.closing.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.closing.Store(false)
		return fmt.Errorf("close plugin %s: %w", p.Name(), err)
	}
	defer p.sem.Release(1)
	p.state.Store(stateClosed)

	p.hookMu.Lock()
	hooks := p.onClose
	p.onClose = nil
	p.hookMu.Unlock()
	for _, hook := range hooks {
		hook()
	}

	p.runtime.forget(p)
	if err := p.module.Close(ctx); err != nil {
		return fmt.Errorf("close plugin %s: %w", p.Name(), err)
	}
	p.logger.Debug("plugin closed")
	return nil
}

func (p *Plugin) addCloseHook(hook func()) {
	p.hookMu.Lock()
	p.onClose = append(p.onClose, hook)
	p.hookMu.Unlock()
}
