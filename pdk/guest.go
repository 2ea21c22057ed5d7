package pdk

import (
	"context"
	"fmt"

	"github.com/wasmplug/wasmplug/domain/entities"
	"github.com/wasmplug/wasmplug/wireformat"
)

// HostCaller sends a request to a host import and returns its response.
type HostCaller interface {
	CallHost(ctx context.Context, name string, payload []byte) ([]byte, error)
}

// Guest is a published plugin bound to a memory. It implements the ABI
// exports; the wasip1 build forwards the real exports to a Guest.
type Guest struct {
	plugin       *Plugin
	table        *entities.DescriptorTable
	mem          *Memory
	host         HostCaller
	encodedTable []byte
	manifest     []byte
}

// NewGuest publishes p and binds it to arena. host may be nil when the
// plugin never calls the host.
func NewGuest(p *Plugin, arena Arena, host HostCaller) (*Guest, error) {
	table, encoded, err := p.Publish()
	if err != nil {
		return nil, err
	}
	g := &Guest{
		plugin:       p,
		table:        table,
		encodedTable: encoded,
		mem:          NewMemory(arena, p.memLimit),
		host:         host,
	}
	if m, ok := p.Manifest(); ok {
		if g.manifest, err = wireformat.EncodeManifest(m); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Table returns the published descriptor table.
func (g *Guest) Table() *entities.DescriptorTable { return g.table }

// Memory returns the guest's allocation tracker.
func (g *Guest) Memory() *Memory { return g.mem }

// HasManifest reports whether the plugin publishes a manifest.
func (g *Guest) HasManifest() bool { return g.manifest != nil }

// Describe copies the serialized descriptor table into a fresh allocation
// owned by the caller and returns its packed location.
func (g *Guest) Describe() uint64 {
	return g.mustWrite(g.encodedTable)
}

// Manifest copies the msgpack manifest into a fresh allocation, or returns 0
// when the plugin has none.
func (g *Guest) Manifest() uint64 {
	if g.manifest == nil {
		return 0
	}
	return g.mustWrite(g.manifest)
}

// Allocate implements the allocate export. Exceeding the memory limit panics,
// which the host observes as a trap.
func (g *Guest) Allocate(size uint32) uint32 {
	ptr, err := g.mem.Allocate(size)
	if err != nil {
		panic(fmt.Sprintf("pdk: %v", err))
	}
	return ptr
}

// Free implements the free export.
func (g *Guest) Free(ptr, size uint32) {
	g.mem.Free(ptr, size)
}

// Dispatch runs the function registered as name on the argument tuple at
// (ptr, size) and returns the packed location of the result envelope.
// Argument problems become error envelopes. Panics from the function are not
// recovered.
func (g *Guest) Dispatch(ctx context.Context, name string, ptr, size uint32) uint64 {
	return g.mustWrite(g.dispatch(ctx, name, ptr, size))
}

func (g *Guest) dispatch(ctx context.Context, name string, ptr, size uint32) []byte {
	desc, fn, ok := g.plugin.lookup(name)
	if !ok {
		return wireformat.EncodeError(wireformat.ErrorKindProtocol, fmt.Sprintf("function %q is not registered", name))
	}

	raw, err := g.mem.ReadBytes(ptr, size)
	if err != nil {
		return wireformat.EncodeError(wireformat.ErrorKindEncoding, err.Error())
	}
	args, err := wireformat.DecodeArgs(g.plugin.schemas, desc, raw)
	if err != nil {
		return wireformat.EncodeErrorFor(err, wireformat.ErrorKindEncoding)
	}

	result, err := fn(withGuest(ctx, g), args)
	if err != nil {
		return wireformat.EncodeError(wireformat.ErrorKindPlugin, err.Error())
	}
	if result == nil {
		result = entities.Void{}
	}
	if got := result.Tag(); !got.Equal(desc.Return) {
		return wireformat.EncodeError(wireformat.ErrorKindProtocol,
			fmt.Sprintf("%s returned %s, descriptor declares %s", name, got, desc.Return))
	}

	envelope, err := wireformat.EncodeResult(g.plugin.schemas, result)
	if err != nil {
		return wireformat.EncodeErrorFor(err, wireformat.ErrorKindEncoding)
	}
	return envelope
}

func (g *Guest) mustWrite(b []byte) uint64 {
	packed, err := g.mem.WriteBytes(b)
	if err != nil {
		panic(fmt.Sprintf("pdk: %v", err))
	}
	return packed
}

type guestKey struct{}

func withGuest(ctx context.Context, g *Guest) context.Context {
	return context.WithValue(ctx, guestKey{}, g)
}

func guestFrom(ctx context.Context) (*Guest, bool) {
	g, ok := ctx.Value(guestKey{}).(*Guest)
	return g, ok
}
