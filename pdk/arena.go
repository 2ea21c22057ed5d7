package pdk

import (
	"fmt"
	"sync"
)

// Arena is raw storage addressed by 32-bit guest pointers.
// Pointer 0 is never returned by Alloc.
type Arena interface {
	// Alloc reserves size bytes and returns their address.
	Alloc(size uint32) (uint32, error)

	// Release returns the block starting at ptr to the arena.
	Release(ptr uint32)

	// Read returns byteCount bytes starting at offset.
	Read(offset, byteCount uint32) ([]byte, bool)

	// Write copies v to offset.
	Write(offset uint32, v []byte) bool
}

// heapBase is the first address handed out by a HeapArena. Keeping low
// addresses unused makes a zero pointer always invalid.
const heapBase = 8

// HeapArena simulates a guest linear memory on the Go heap.
// Blocks are 8-byte aligned and released blocks are reused by size.
type HeapArena struct {
	blocks map[uint32][]byte   // ptr -> block
	free   map[uint32][]uint32 // size -> released ptrs
	next   uint32
	mu     sync.Mutex
}

// NewHeapArena creates an empty arena.
func NewHeapArena() *HeapArena {
	return &HeapArena{
		blocks: make(map[uint32][]byte),
		free:   make(map[uint32][]uint32),
		next:   heapBase,
	}
}

// Alloc implements Arena.
func (a *HeapArena) Alloc(size uint32) (uint32, error) {
	if size == 0 {
		return 0, fmt.Errorf("zero-size allocation")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if ptrs := a.free[size]; len(ptrs) > 0 {
		ptr := ptrs[len(ptrs)-1]
		a.free[size] = ptrs[:len(ptrs)-1]
		a.blocks[ptr] = make([]byte, size)
		return ptr, nil
	}

	aligned := (uint64(size) + 7) &^ 7
	if uint64(a.next)+aligned > 1<<32-1 {
		return 0, fmt.Errorf("address space exhausted")
	}
	ptr := a.next
	a.next += uint32(aligned) //nolint:gosec // G115: bounded by the check above
	a.blocks[ptr] = make([]byte, size)
	return ptr, nil
}

// Release implements Arena. Unknown pointers are ignored.
func (a *HeapArena) Release(ptr uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	block, ok := a.blocks[ptr]
	if !ok {
		return
	}
	delete(a.blocks, ptr)
	size := uint32(len(block)) //nolint:gosec // G115: blocks are created from uint32 sizes
	a.free[size] = append(a.free[size], ptr)
}

// Read implements Arena and ports.GuestMemory. The range must lie inside a
// single live block. The returned slice is a copy.
func (a *HeapArena) Read(offset, byteCount uint32) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	block, start, ok := a.locate(offset, byteCount)
	if !ok {
		return nil, false
	}
	out := make([]byte, byteCount)
	copy(out, block[start:])
	return out, true
}

// Write implements Arena and ports.GuestMemory.
func (a *HeapArena) Write(offset uint32, v []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := uint32(len(v)) //nolint:gosec // G115: callers write guest-sized buffers
	block, start, ok := a.locate(offset, n)
	if !ok {
		return false
	}
	copy(block[start:], v)
	return true
}

// Size returns the high-water mark of the arena in bytes.
func (a *HeapArena) Size() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// Live returns the number of blocks currently allocated.
func (a *HeapArena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blocks)
}

// locate finds the live block holding [offset, offset+n).
func (a *HeapArena) locate(offset, n uint32) ([]byte, uint32, bool) {
	if n == 0 {
		return nil, 0, true
	}
	for ptr, block := range a.blocks {
		end := uint64(ptr) + uint64(len(block))
		if offset >= ptr && uint64(offset)+uint64(n) <= end {
			return block, offset - ptr, true
		}
	}
	return nil, 0, false
}
