package pdk

import (
	"fmt"
	"sync"

	"github.com/wasmplug/wasmplug/wireformat"
)

// DefaultMemoryLimit is the maximum total memory a Memory hands out.
// It prevents unbounded growth of the guest's linear memory.
const DefaultMemoryLimit = 100 * 1024 * 1024 // 100 MiB

// MemoryStats describes the live allocations of a Memory.
type MemoryStats struct {
	Live  int // number of live allocations
	Bytes int // total bytes of live allocations
	Limit int
}

// Memory tracks every allocation made through the ABI. Allocations stay
// reserved until freed explicitly, whichever side of the boundary frees them.
type Memory struct {
	arena Arena
	ptrs  map[uint32]uint32 // ptr -> size
	total int
	limit int
	mu    sync.Mutex
}

// NewMemory creates a Memory over arena. A limit <= 0 selects DefaultMemoryLimit.
func NewMemory(arena Arena, limit int) *Memory {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Memory{
		arena: arena,
		ptrs:  make(map[uint32]uint32),
		limit: limit,
	}
}

// Allocate reserves size bytes and returns their address.
// A zero size returns pointer 0 without reserving anything.
func (m *Memory) Allocate(size uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.total+int(size) > m.limit {
		return 0, fmt.Errorf("memory allocation limit exceeded (requested: %d bytes, current: %d bytes, limit: %d bytes)",
			size, m.total, m.limit)
	}

	ptr, err := m.arena.Alloc(size)
	if err != nil {
		return 0, fmt.Errorf("allocate %d bytes: %w", size, err)
	}
	m.ptrs[ptr] = size
	m.total += int(size)
	return ptr, nil
}

// Free releases an allocation. The recorded size is used for accounting, not
// the caller's, and untracked pointers are ignored, which makes Free idempotent.
func (m *Memory) Free(ptr, _ uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size, ok := m.ptrs[ptr]
	if !ok {
		return
	}
	delete(m.ptrs, ptr)
	m.total -= int(size)
	m.arena.Release(ptr)
}

// FreeAll releases every tracked allocation.
func (m *Memory) FreeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ptr := range m.ptrs {
		m.arena.Release(ptr)
		delete(m.ptrs, ptr)
	}
	m.total = 0
}

// Stats returns a snapshot of the live allocations.
func (m *Memory) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MemoryStats{Live: len(m.ptrs), Bytes: m.total, Limit: m.limit}
}

// WriteBytes copies data into a fresh allocation and returns its packed
// location. The receiver of the packed value owns the allocation.
func (m *Memory) WriteBytes(data []byte) (uint64, error) {
	if len(data) == 0 {
		return 0, nil
	}
	size := uint32(len(data)) //nolint:gosec // G115: bounded by the memory limit below
	if len(data) > m.limit {
		return 0, fmt.Errorf("buffer of %d bytes exceeds the memory limit", len(data))
	}
	ptr, err := m.Allocate(size)
	if err != nil {
		return 0, err
	}
	if !m.arena.Write(ptr, data) {
		m.Free(ptr, size)
		return 0, fmt.Errorf("write %d bytes at 0x%x: out of range", size, ptr)
	}
	return wireformat.PackPtrLen(ptr, size), nil
}

// ReadBytes returns a copy of size bytes at ptr.
func (m *Memory) ReadBytes(ptr, size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	b, ok := m.arena.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("read %d bytes at 0x%x: out of range", size, ptr)
	}
	return append([]byte(nil), b...), nil
}

// ReadPacked reads the buffer at a packed location.
func (m *Memory) ReadPacked(packed uint64) ([]byte, error) {
	ptr, size := wireformat.UnpackPtrLen(packed)
	return m.ReadBytes(ptr, size)
}
