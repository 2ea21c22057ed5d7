package pdk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmplug/wasmplug/wireformat"
)

func TestMemory_AllocateFree(t *testing.T) {
	mem := NewMemory(NewHeapArena(), 0)

	ptr, err := mem.Allocate(1024)
	require.NoError(t, err)
	assert.NotZero(t, ptr)

	stats := mem.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, 1024, stats.Bytes)
	assert.Equal(t, DefaultMemoryLimit, stats.Limit)

	mem.Free(ptr, 1024)
	assert.Equal(t, MemoryStats{Limit: DefaultMemoryLimit}, mem.Stats())
}

func TestMemory_ZeroSize(t *testing.T) {
	mem := NewMemory(NewHeapArena(), 0)

	ptr, err := mem.Allocate(0)
	require.NoError(t, err)
	assert.Zero(t, ptr)
	assert.Zero(t, mem.Stats().Live)
}

func TestMemory_FreeIsIdempotent(t *testing.T) {
	mem := NewMemory(NewHeapArena(), 0)

	ptr, err := mem.Allocate(64)
	require.NoError(t, err)

	mem.Free(ptr, 64)
	mem.Free(ptr, 64)
	mem.Free(0xdead, 1)

	assert.Zero(t, mem.Stats().Bytes)
}

func TestMemory_FreeUsesRecordedSize(t *testing.T) {
	mem := NewMemory(NewHeapArena(), 0)

	ptr, err := mem.Allocate(100)
	require.NoError(t, err)

	// A wrong size from the caller must not corrupt accounting.
	mem.Free(ptr, 1)
	assert.Zero(t, mem.Stats().Bytes)
}

func TestMemory_Limit(t *testing.T) {
	mem := NewMemory(NewHeapArena(), 128)

	_, err := mem.Allocate(100)
	require.NoError(t, err)

	_, err = mem.Allocate(29)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit exceeded")

	_, err = mem.Allocate(28)
	assert.NoError(t, err)
}

func TestMemory_FreeAll(t *testing.T) {
	arena := NewHeapArena()
	mem := NewMemory(arena, 0)

	for i := 0; i < 5; i++ {
		_, err := mem.Allocate(32)
		require.NoError(t, err)
	}
	mem.FreeAll()

	assert.Zero(t, mem.Stats().Live)
	assert.Zero(t, arena.Live())
}

func TestMemory_WriteReadBytes(t *testing.T) {
	mem := NewMemory(NewHeapArena(), 0)

	packed, err := mem.WriteBytes([]byte("hello"))
	require.NoError(t, err)

	ptr, size := wireformat.UnpackPtrLen(packed)
	assert.Equal(t, uint32(5), size)

	got, err := mem.ReadBytes(ptr, size)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got, err = mem.ReadPacked(packed)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	_, err = mem.ReadBytes(ptr+3, 10)
	assert.Error(t, err)

	empty, err := mem.WriteBytes(nil)
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestMemory_Concurrent(t *testing.T) {
	mem := NewMemory(NewHeapArena(), 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ptr, err := mem.Allocate(256)
			if !assert.NoError(t, err) {
				return
			}
			mem.Free(ptr, 256)
		}()
	}
	wg.Wait()

	assert.Zero(t, mem.Stats().Live)
}

func TestHeapArena_ReusesReleasedBlocks(t *testing.T) {
	arena := NewHeapArena()

	a, err := arena.Alloc(16)
	require.NoError(t, err)
	b, err := arena.Alloc(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, a, uint32(heapBase))

	arena.Release(a)
	c, err := arena.Alloc(16)
	require.NoError(t, err)
	assert.Equal(t, a, c)

	_, err = arena.Alloc(0)
	assert.Error(t, err)
}

func TestHeapArena_ReadWriteBounds(t *testing.T) {
	arena := NewHeapArena()

	ptr, err := arena.Alloc(4)
	require.NoError(t, err)

	assert.True(t, arena.Write(ptr, []byte{1, 2, 3, 4}))
	assert.False(t, arena.Write(ptr+2, []byte{1, 2, 3}))

	got, ok := arena.Read(ptr+1, 2)
	require.True(t, ok)
	assert.Equal(t, []byte{2, 3}, got)

	_, ok = arena.Read(ptr, 5)
	assert.False(t, ok)
}
