// Package pdk is the plugin development kit linked into guest modules.
//
// A plugin registers its functions with a Plugin during module initialization
// and hands it to Serve, which publishes the descriptor table and installs the
// plugin as the module's guest:
//
//	func init() {
//	    p := pdk.New(pdk.WithManifest(entities.Manifest{ID: "math"}))
//	    p.MustRegister("add", []entities.TypeTag{entities.I32, entities.I32}, entities.I32, add)
//	    pdk.Serve(p)
//	}
//
//	//go:wasmexport wasmplug_v0_call_add
//	func callAdd(ptr, size uint32) uint64 { return pdk.Dispatch("add", ptr, size) }
//
// Go cannot export functions under names computed at runtime, so each
// registered function needs a one-line trampoline like callAdd above.
//
// Everything except Serve and Dispatch also builds natively, which is how the
// plugintest harness runs guests in-process.
package pdk
