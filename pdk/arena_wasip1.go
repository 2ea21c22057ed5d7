//go:build wasip1

package pdk

import (
	"sync"
	"unsafe"
)

// pinArena hands out Go heap slices, which live in the module's linear
// memory. Keeping a reference to each slice stops the GC from collecting it
// until it is released.
type pinArena struct {
	pinned map[uint32][]byte
	mu     sync.Mutex
}

func newPinArena() *pinArena {
	return &pinArena{pinned: make(map[uint32][]byte)}
}

func (a *pinArena) Alloc(size uint32) (uint32, error) {
	buf := make([]byte, size)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0]))) //nolint:gosec // G103,G115: wasm32 addresses fit in 32 bits

	a.mu.Lock()
	a.pinned[ptr] = buf
	a.mu.Unlock()
	return ptr, nil
}

func (a *pinArena) Release(ptr uint32) {
	a.mu.Lock()
	delete(a.pinned, ptr)
	a.mu.Unlock()
}

func (a *pinArena) Read(offset, byteCount uint32) ([]byte, bool) {
	if byteCount == 0 {
		return nil, true
	}
	//nolint:gosec // G103: Valid unsafe.Pointer use for WASM linear memory access
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(offset))), byteCount)
	out := make([]byte, byteCount)
	copy(out, src)
	return out, true
}

func (a *pinArena) Write(offset uint32, v []byte) bool {
	if len(v) == 0 {
		return true
	}
	//nolint:gosec // G103: Valid unsafe.Pointer use for WASM linear memory access
	dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(offset))), len(v))
	copy(dst, v)
	return true
}
