// Package wazero implements the engine port on the wazero WebAssembly runtime.
//
// It handles:
//
//   - Compiling modules once per binary digest and instantiating isolated copies
//   - Exposing host functions under the wasmplug_v0 import module, using the
//     packed i64 pointer+length format for requests and responses
//   - Turning guest faults, exits and expired deadlines into trap errors
//
// # Basic Usage
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithBundle(hostfuncs.LogBundle(logger)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	engine, err := wazero.NewEngine(ctx, registry,
//	    wazero.WithMemoryLimitPages(256),
//	)
package wazero
