// Package host provides the runtime environment for executing wasmplug plugins.
//
// A Runtime loads plugin modules through an engine (wazero by default),
// reads their descriptor tables and hands out Plugins whose functions can be
// called with typed values:
//
//	rt, err := host.NewRuntime(ctx, host.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer rt.Close(ctx)
//
//	p, err := rt.LoadFile(ctx, "math.wasm")
//	if err != nil {
//	    return err
//	}
//	sum, err := p.Call(ctx, "add", entities.Int32(40), entities.Int32(2))
//
// A Universe additionally indexes plugins by ID and lets plugins call each
// other through the call_plugin host function.
package host
