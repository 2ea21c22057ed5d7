package host

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	abierrors "github.com/wasmplug/wasmplug/domain/errors"
	"github.com/wasmplug/wasmplug/domain/ports"
	"github.com/wasmplug/wasmplug/wireformat"
)

type allocation struct {
	ptr, size uint32
}

// frame records the guest allocations of one host operation, whether the
// host allocated them or adopted them from a guest return, and releases each
// exactly once.
type frame struct {
	module ports.GuestModule
	logger *zap.Logger
	live   []allocation
}

func newFrame(module ports.GuestModule, logger *zap.Logger) *frame {
	return &frame{module: module, logger: logger}
}

// write copies data into a fresh guest allocation. Empty data allocates
// nothing and yields pointer 0.
func (f *frame) write(ctx context.Context, data []byte) (uint32, error) {
	if len(data) == 0 {
		return 0, nil
	}
	size := uint32(len(data)) //nolint:gosec // G115: guest buffers are 32-bit sized

	results, err := f.module.Call(ctx, wireformat.ExportAllocate, uint64(size))
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, &abierrors.ProtocolError{Detail: fmt.Sprintf("allocate returned %d values", len(results))}
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit
	if ptr == 0 {
		return 0, &abierrors.ProtocolError{Detail: fmt.Sprintf("allocate(%d) returned a null pointer", size)}
	}
	f.live = append(f.live, allocation{ptr: ptr, size: size})

	if !f.module.Memory().Write(ptr, data) {
		return 0, &abierrors.ProtocolError{Detail: fmt.Sprintf("allocation 0x%x+%d is outside guest memory", ptr, size)}
	}
	return ptr, nil
}

// adopt takes ownership of a buffer the guest allocated and handed over.
func (f *frame) adopt(ptr, size uint32) {
	if ptr == 0 {
		return
	}
	f.live = append(f.live, allocation{ptr: ptr, size: size})
}

// read copies a guest buffer out of linear memory.
func (f *frame) read(ptr, size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	b, ok := f.module.Memory().Read(ptr, size)
	if !ok {
		return nil, &abierrors.ProtocolError{Detail: fmt.Sprintf("buffer 0x%x+%d is outside guest memory", ptr, size)}
	}
	return append([]byte(nil), b...), nil
}

// free releases one recorded allocation now.
func (f *frame) free(ctx context.Context, ptr uint32) error {
	for i, a := range f.live {
		if a.ptr != ptr {
			continue
		}
		f.live = append(f.live[:i], f.live[i+1:]...)
		_, err := f.module.Call(ctx, wireformat.ExportFree, uint64(a.ptr), uint64(a.size))
		return err
	}
	return nil
}

// release frees every allocation still recorded. It runs on every exit path,
// after traps too, so failures are logged rather than returned.
func (f *frame) release(ctx context.Context) {
	if len(f.live) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, a := range f.live {
		if _, err := f.module.Call(ctx, wireformat.ExportFree, uint64(a.ptr), uint64(a.size)); err != nil {
			f.logger.Debug("guest free failed",
				zap.Uint32("ptr", a.ptr), zap.Uint32("size", a.size), zap.Error(err))
		}
	}
	f.live = nil
}
