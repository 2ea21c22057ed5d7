package native

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"sync"

	abierrors "github.com/wasmplug/wasmplug/domain/errors"
	"github.com/wasmplug/wasmplug/domain/ports"
	"github.com/wasmplug/wasmplug/pdk"
	"github.com/wasmplug/wasmplug/wireformat"
)

// Module is one in-process guest. It implements ports.GuestModule.
type Module struct {
	guest *pdk.Guest
	arena *pdk.HeapArena

	mu     sync.Mutex
	closed bool
}

// NewModule publishes p and instantiates it over a new arena. Host calls
// made by the guest are served by host, which may be nil.
func NewModule(p *pdk.Plugin, host ports.HostFunctions) (*Module, error) {
	arena := pdk.NewHeapArena()
	guest, err := pdk.NewGuest(p, arena, hostCaller{host: host})
	if err != nil {
		return nil, err
	}
	return &Module{guest: guest, arena: arena}, nil
}

// Guest returns the guest behind the module.
func (m *Module) Guest() *pdk.Guest { return m.guest }

// Stats returns the guest's allocation statistics.
func (m *Module) Stats() pdk.MemoryStats { return m.guest.Memory().Stats() }

// Closed reports whether the module was closed.
func (m *Module) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// HasExport implements ports.GuestModule.
func (m *Module) HasExport(name string) bool {
	switch name {
	case wireformat.ExportMemory, wireformat.ExportAllocate, wireformat.ExportFree, wireformat.ExportDescribe:
		return true
	case wireformat.ExportManifest:
		return m.guest.HasManifest()
	}
	if fn, ok := strings.CutPrefix(name, wireformat.CallExport("")); ok {
		_, found := m.guest.Table().Lookup(fn)
		return found
	}
	return false
}

// Call implements ports.GuestModule. A panic in the guest is reported as a
// fault trap, and a context that ends during the call as a deadline or
// cancellation trap, the way a WASM engine reports them.
func (m *Module) Call(ctx context.Context, name string, params ...uint64) (results []uint64, err error) {
	if m.Closed() {
		return nil, &abierrors.TrapError{Err: fmt.Errorf("module closed"), Reason: abierrors.TrapReasonExit}
	}
	if err := ctx.Err(); err != nil {
		return nil, trapFor(err)
	}

	defer func() {
		if r := recover(); r != nil {
			results, err = nil, &abierrors.TrapError{Err: fmt.Errorf("panic: %v", r), Reason: abierrors.TrapReasonFault}
		}
	}()

	switch name {
	case wireformat.ExportAllocate:
		return []uint64{uint64(m.guest.Allocate(param(params, 0)))}, nil
	case wireformat.ExportFree:
		m.guest.Free(param(params, 0), param(params, 1))
		return nil, nil
	case wireformat.ExportDescribe:
		return []uint64{m.guest.Describe()}, nil
	case wireformat.ExportManifest:
		return []uint64{m.guest.Manifest()}, nil
	}
	if fn, ok := strings.CutPrefix(name, wireformat.CallExport("")); ok {
		packed := m.guest.Dispatch(ctx, fn, param(params, 0), param(params, 1))
		if err := ctx.Err(); err != nil {
			m.guest.Free(wireformat.UnpackPtrLen(packed))
			return nil, trapFor(err)
		}
		return []uint64{packed}, nil
	}
	return nil, fmt.Errorf("export %q not found", name)
}

// Memory implements ports.GuestModule.
func (m *Module) Memory() ports.GuestMemory { return m.arena }

// Close implements ports.GuestModule.
func (m *Module) Close(context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

type hostCaller struct {
	host ports.HostFunctions
}

func (h hostCaller) CallHost(ctx context.Context, name string, payload []byte) ([]byte, error) {
	if h.host == nil {
		return nil, pdk.ErrNoHost
	}
	return h.host.Invoke(ctx, name, payload)
}

func param(params []uint64, n int) uint32 {
	if n >= len(params) {
		return 0
	}
	return uint32(params[n]) //nolint:gosec // G115: WASM32 parameters
}

func trapFor(err error) *abierrors.TrapError {
	reason := abierrors.TrapReasonCanceled
	if stdErrors.Is(err, context.DeadlineExceeded) {
		reason = abierrors.TrapReasonDeadline
	}
	return &abierrors.TrapError{Err: err, Reason: reason}
}
