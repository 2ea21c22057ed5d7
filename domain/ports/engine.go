package ports

import (
	"context"
)

// Engine instantiates binary modules in isolated sandboxes.
type Engine interface {
	// Instantiate compiles (or reuses a compiled copy of) binary and creates a new,
	// isolated instance of it. Instances never share memory.
	Instantiate(ctx context.Context, binary []byte) (GuestModule, error)

	// Close releases the engine and every instance it created.
	Close(ctx context.Context) error
}

// EngineFactory creates an Engine whose guests can import the given host functions.
type EngineFactory func(ctx context.Context, host HostFunctions) (Engine, error)

// GuestModule is one instantiated module.
type GuestModule interface {
	// HasExport reports whether the module exports a function with the given name.
	HasExport(name string) bool

	// Call invokes an exported function. Any returned error means the guest did
	// not complete normally (trap, exit, resource limit).
	Call(ctx context.Context, name string, params ...uint64) ([]uint64, error)

	// Memory returns the module's linear memory, or nil if it exports none.
	Memory() GuestMemory

	// Close releases the instance.
	Close(ctx context.Context) error
}

// GuestMemory is a view of a guest's linear memory.
type GuestMemory interface {
	// Read returns byteCount bytes at offset. The slice may alias guest memory;
	// callers copy before the next guest call.
	Read(offset, byteCount uint32) ([]byte, bool)

	// Write copies v into guest memory at offset.
	Write(offset uint32, v []byte) bool

	// Size returns the memory size in bytes.
	Size() uint32
}

// HostFunctions is the set of host functions guests may import.
type HostFunctions interface {
	// Names returns the sorted function names.
	Names() []string

	// Invoke dispatches one call. ctx carries the values of the guest call that
	// triggered it.
	Invoke(ctx context.Context, name string, payload []byte) ([]byte, error)
}
