//go:build wasip1

package pdk

import (
	"context"
	"fmt"
)

var current *Guest

// Serve publishes p and installs it as the module's guest. Call it from an
// init function of a reactor module (-buildmode=c-shared). A publish failure
// panics, which fails the host's load.
func Serve(p *Plugin) {
	host := &wasmHost{}
	g, err := NewGuest(p, newPinArena(), host)
	if err != nil {
		panic(fmt.Sprintf("pdk: serve: %v", err))
	}
	host.guest = g
	current = g
}

// Dispatch forwards a call export to the installed guest. It is meant for
// one-line trampolines:
//
//	//go:wasmexport wasmplug_v0_call_add
//	func callAdd(ptr, size uint32) uint64 { return pdk.Dispatch("add", ptr, size) }
func Dispatch(name string, ptr, size uint32) uint64 {
	return active().Dispatch(context.Background(), name, ptr, size)
}

func active() *Guest {
	if current == nil {
		panic("pdk: Serve was not called")
	}
	return current
}

//go:wasmexport wasmplug_v0_describe
func describe() uint64 {
	return active().Describe()
}

//go:wasmexport wasmplug_v0_manifest
func manifest() uint64 {
	return active().Manifest()
}

//go:wasmexport wasmplug_v0_allocate
func allocate(size uint32) uint32 {
	return active().Allocate(size)
}

//go:wasmexport wasmplug_v0_free
func free(ptr, size uint32) {
	active().Free(ptr, size)
}
