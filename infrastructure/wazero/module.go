package wazero

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	abierrors "github.com/wasmplug/wasmplug/domain/errors"
	"github.com/wasmplug/wasmplug/domain/ports"
	"github.com/wasmplug/wasmplug/wireformat"
)

type guestModule struct {
	mod api.Module
}

func (m *guestModule) HasExport(name string) bool {
	if name == wireformat.ExportMemory {
		return m.mod.ExportedMemory(name) != nil
	}
	return m.mod.ExportedFunction(name) != nil
}

// Call implements ports.GuestModule. Every failure of the guest is reported
// as a *errors.TrapError; the caller fills in the function name.
func (m *guestModule) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := m.mod.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("export %q not found", name)
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return results, nil
}

func (m *guestModule) Memory() ports.GuestMemory {
	mem := m.mod.Memory()
	if mem == nil {
		return nil
	}
	return mem
}

func (m *guestModule) Close(ctx context.Context) error {
	return m.mod.Close(ctx)
}

// classify maps a wazero call error to a trap.
func classify(ctx context.Context, err error) *abierrors.TrapError {
	trap := &abierrors.TrapError{Err: err, Reason: abierrors.TrapReasonFault}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case sys.ExitCodeDeadlineExceeded:
			trap.Reason = abierrors.TrapReasonDeadline
		case sys.ExitCodeContextCanceled:
			trap.Reason = abierrors.TrapReasonCanceled
		default:
			trap.Reason = abierrors.TrapReasonExit
		}
		return trap
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		trap.Reason = abierrors.TrapReasonDeadline
	case errors.Is(ctx.Err(), context.Canceled):
		trap.Reason = abierrors.TrapReasonCanceled
	}
	return trap
}
