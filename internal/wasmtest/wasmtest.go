// Package wasmtest assembles small WebAssembly modules for tests. The modules
// speak the plugin ABI with hand-written function bodies, so the host can be
// exercised on a real engine without a guest toolchain.
package wasmtest

import (
	"encoding/binary"
	"fmt"

	"github.com/wasmplug/wasmplug/wireformat"
)

// ValType is a WebAssembly value type.
type ValType byte

// Value types.
const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

// Layout of the linear memory of ABI modules.
const (
	StaticBase = 1024 // static data placed with Static
	HeapBase   = 8192 // first address handed out by allocate
	Pages      = 2
)

type funcType struct {
	params, results []ValType
}

type function struct {
	body   []byte
	locals []ValType
	typ    int
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	data   []byte
	offset uint32
}

type importFunc struct {
	module, name string
	typ          int
}

// Module builds a WebAssembly binary.
type Module struct {
	types   []funcType
	imports []importFunc
	funcs   []function
	globals []int32
	exports []export
	data    []segment
	pages   uint32
	static  uint32
}

// New returns an empty module.
func New() *Module {
	return &Module{static: StaticBase}
}

// Memory declares a memory of the given pages, exported as "memory".
func (m *Module) Memory(pages uint32) *Module {
	m.pages = pages
	m.exports = append(m.exports, export{name: wireformat.ExportMemory, kind: 0x02})
	return m
}

// Import declares an imported function and returns its index. Imports must be
// declared before any function.
func (m *Module) Import(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: imports must precede functions")
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typ: m.typeIndex(params, results)})
	return uint32(len(m.imports) - 1) //nolint:gosec // G115: test modules are tiny
}

// Func adds a function and returns its index. It is exported when name is not
// empty. body must not include the final end opcode.
func (m *Module) Func(name string, params, results, locals []ValType, body ...[]byte) uint32 {
	idx := uint32(len(m.imports) + len(m.funcs)) //nolint:gosec // G115: test modules are tiny
	m.funcs = append(m.funcs, function{typ: m.typeIndex(params, results), locals: locals, body: concat(body...)})
	if name != "" {
		m.exports = append(m.exports, export{name: name, kind: 0x00, idx: idx})
	}
	return idx
}

// Global adds a mutable i32 global and returns its index.
func (m *Module) Global(init int32) uint32 {
	m.globals = append(m.globals, init)
	return uint32(len(m.globals) - 1) //nolint:gosec // G115: test modules are tiny
}

// Data places b at offset in memory.
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, segment{offset: offset, data: b})
}

// Static places b in the static region and returns its packed location.
func (m *Module) Static(b []byte) uint64 {
	ptr := m.static
	if ptr+uint32(len(b)) > HeapBase { //nolint:gosec // G115: test modules are tiny
		panic("wasmtest: static region exhausted")
	}
	m.Data(ptr, b)
	m.static += (uint32(len(b)) + 7) &^ 7             //nolint:gosec // G115: test modules are tiny
	return wireformat.PackPtrLen(ptr, uint32(len(b))) //nolint:gosec // G115: test modules are tiny
}

func (m *Module) typeIndex(params, results []ValType) int {
	for i, t := range m.types {
		if string(valBytes(t.params)) == string(valBytes(params)) && string(valBytes(t.results)) == string(valBytes(results)) {
			return i
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return len(m.types) - 1
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

	out = section(out, 1, vec(len(m.types), func(b []byte, i int) []byte {
		t := m.types[i]
		b = append(b, 0x60)
		b = appendVals(b, t.params)
		return appendVals(b, t.results)
	}))

	if len(m.imports) > 0 {
		out = section(out, 2, vec(len(m.imports), func(b []byte, i int) []byte {
			imp := m.imports[i]
			b = appendName(b, imp.module)
			b = appendName(b, imp.name)
			b = append(b, 0x00)
			return appendU32(b, uint32(imp.typ)) //nolint:gosec // G115: test modules are tiny
		}))
	}

	out = section(out, 3, vec(len(m.funcs), func(b []byte, i int) []byte {
		return appendU32(b, uint32(m.funcs[i].typ)) //nolint:gosec // G115: test modules are tiny
	}))

	if m.pages > 0 {
		out = section(out, 5, vec(1, func(b []byte, _ int) []byte {
			return appendU32(append(b, 0x00), m.pages)
		}))
	}

	if len(m.globals) > 0 {
		out = section(out, 6, vec(len(m.globals), func(b []byte, i int) []byte {
			b = append(b, byte(I32), 0x01)
			b = append(b, I32Const(m.globals[i])...)
			return append(b, 0x0b)
		}))
	}

	out = section(out, 7, vec(len(m.exports), func(b []byte, i int) []byte {
		e := m.exports[i]
		b = appendName(b, e.name)
		b = append(b, e.kind)
		return appendU32(b, e.idx)
	}))

	out = section(out, 10, vec(len(m.funcs), func(b []byte, i int) []byte {
		f := m.funcs[i]
		body := vec(len(f.locals), func(lb []byte, j int) []byte {
			return append(appendU32(lb, 1), byte(f.locals[j]))
		})
		body = append(body, f.body...)
		body = append(body, 0x0b)
		b = appendU32(b, uint32(len(body))) //nolint:gosec // G115: test modules are tiny
		return append(b, body...)
	}))

	if len(m.data) > 0 {
		out = section(out, 11, vec(len(m.data), func(b []byte, i int) []byte {
			d := m.data[i]
			b = append(b, 0x00)
			b = append(b, I32Const(int32(d.offset))...) //nolint:gosec // G115: offsets are below the memory size
			b = append(b, 0x0b)
			b = appendU32(b, uint32(len(d.data))) //nolint:gosec // G115: test modules are tiny
			return append(b, d.data...)
		}))
	}
	return out
}

func section(out []byte, id byte, contents []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(contents))) //nolint:gosec // G115: test modules are tiny
	return append(out, contents...)
}

func vec(n int, item func([]byte, int) []byte) []byte {
	b := appendU32(nil, uint32(n)) //nolint:gosec // G115: test modules are tiny
	for i := 0; i < n; i++ {
		b = item(b, i)
	}
	return b
}

func appendVals(b []byte, vals []ValType) []byte {
	b = appendU32(b, uint32(len(vals))) //nolint:gosec // G115: test modules are tiny
	return append(b, valBytes(vals)...)
}

func valBytes(vals []ValType) []byte {
	out := make([]byte, len(vals))
	for i, v := range vals {
		out[i] = byte(v)
	}
	return out
}

func appendName(b []byte, s string) []byte {
	b = appendU32(b, uint32(len(s))) //nolint:gosec // G115: test modules are tiny
	return append(b, s...)
}

func appendU32(b []byte, v uint32) []byte {
	return binary.AppendUvarint(b, uint64(v))
}

func appendS64(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Instructions.

func I32Const(v int32) []byte   { return appendS64([]byte{0x41}, int64(v)) }
func I64Const(v int64) []byte   { return appendS64([]byte{0x42}, v) }
func LocalGet(i uint32) []byte  { return appendU32([]byte{0x20}, i) }
func GlobalGet(i uint32) []byte { return appendU32([]byte{0x23}, i) }
func GlobalSet(i uint32) []byte { return appendU32([]byte{0x24}, i) }
func Call(i uint32) []byte      { return appendU32([]byte{0x10}, i) }

// I32Load loads an i32 at the address on the stack plus offset.
func I32Load(offset uint32) []byte { return appendU32([]byte{0x28, 0x02}, offset) }

// I32Store stores an i32 at the address on the stack plus offset.
func I32Store(offset uint32) []byte { return appendU32([]byte{0x36, 0x02}, offset) }

var (
	I32Add      = []byte{0x6a}
	Drop        = []byte{0x1a}
	Unreachable = []byte{0x00}
	// Spin loops forever.
	Spin = []byte{0x03, 0x40, 0x0c, 0x00, 0x0b}
)

// Packed pushes a packed pointer/length constant.
func Packed(packed uint64) []byte { return I64Const(int64(packed)) } //nolint:gosec // G115: reinterpretation

// ABI returns a module with memory and an allocator.
func ABI() *Module {
	return New().Memory(Pages).Allocator()
}

// Allocator adds a bump allocate export and a no-op free export. Freed
// memory is never reused.
func (m *Module) Allocator() *Module {
	heap := m.Global(HeapBase)
	m.Func(wireformat.ExportAllocate, []ValType{I32}, []ValType{I32}, nil,
		GlobalGet(heap),
		GlobalGet(heap), LocalGet(0), I32Add, GlobalSet(heap),
	)
	m.Func(wireformat.ExportFree, []ValType{I32, I32}, nil, nil)
	return m
}

// Describe adds the describe export returning table.
func (m *Module) Describe(table []byte) *Module {
	loc := m.Static(table)
	m.Func(wireformat.ExportDescribe, nil, []ValType{I64}, nil, Packed(loc))
	return m
}

// Manifest adds the manifest export returning b.
func (m *Module) Manifest(b []byte) *Module {
	loc := m.Static(b)
	m.Func(wireformat.ExportManifest, nil, []ValType{I64}, nil, Packed(loc))
	return m
}

// Returning adds the call export of function, which ignores its arguments and
// returns envelope.
func (m *Module) Returning(function string, envelope []byte) *Module {
	loc := m.Static(envelope)
	m.Func(wireformat.CallExport(function), []ValType{I32, I32}, []ValType{I64}, nil, Packed(loc))
	return m
}

// Trapping adds the call export of function, which executes unreachable.
func (m *Module) Trapping(function string) *Module {
	m.Func(wireformat.CallExport(function), []ValType{I32, I32}, []ValType{I64}, nil, Unreachable)
	return m
}

// Spinning adds the call export of function, which never returns.
func (m *Module) Spinning(function string) *Module {
	m.Func(wireformat.CallExport(function), []ValType{I32, I32}, []ValType{I64}, nil, Spin, I64Const(0))
	return m
}

// Adder adds the call export of function, which takes two Int32 arguments and
// returns their sum as an Int32 result envelope.
func (m *Module) Adder(function string) *Module {
	// Result envelope: status, Int32 tag, 4 payload bytes written per call.
	loc := m.Static([]byte{wireformat.StatusOK, 0x01, 0, 0, 0, 0})
	ptr, _ := wireformat.UnpackPtrLen(loc)

	// Argument tuple: [u32 5][0x01][a] [u32 5][0x01][b]
	m.Func(wireformat.CallExport(function), []ValType{I32, I32}, []ValType{I64}, nil,
		I32Const(0),
		LocalGet(0), I32Load(5),
		LocalGet(0), I32Load(14),
		I32Add,
		I32Store(ptr+2),
		Packed(loc),
	)
	return m
}

// Relay adds the call export of function, which sends request to the host
// import at index imp and returns the host's response as its own result.
func (m *Module) Relay(function string, imp uint32, request []byte) *Module {
	loc := m.Static(request)
	m.Func(wireformat.CallExport(function), []ValType{I32, I32}, []ValType{I64}, nil,
		Packed(loc), Call(imp),
	)
	return m
}

// String renders the module size for test failure messages.
func (m *Module) String() string {
	return fmt.Sprintf("wasmtest module (%d functions, %d exports)", len(m.imports)+len(m.funcs), len(m.exports))
}
