// Package native runs pdk plugins inside the host process behind the same
// ports.GuestModule interface WASM instances implement.
//
// A native module owns a fresh guest over its own simulated linear memory,
// so arguments and results still cross the boundary through the allocate
// and free exports and the codec. Host plugins use it to live in a
// Universe next to WASM plugins; the plugintest harness uses it to run
// guests without compiling them.
package native
