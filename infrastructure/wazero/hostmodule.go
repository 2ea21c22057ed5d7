package wazero

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmplug/wasmplug/domain/ports"
	"github.com/wasmplug/wasmplug/wireformat"
)

// registerHostModule exports every host function under the wasmplug_v0 import
// module as (i64 packed request) -> i64 packed response.
//
// Each call:
//   - reads the request from guest memory
//   - invokes the host function
//   - allocates the response in the guest through its allocate export
//   - writes the response and returns its packed location
//
// The guest owns the response and frees it.
func registerHostModule(ctx context.Context, runtime wazero.Runtime, host ports.HostFunctions, cfg Config) error {
	builder := runtime.NewHostModuleBuilder(wireformat.HostModule)
	for _, name := range host.Names() {
		funcName := name
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = handleHostCall(ctx, mod, stack[0], host, funcName, cfg)
			}), []api.ValueType{api.ValueTypeI64}, []api.ValueType{api.ValueTypeI64}).
			Export(funcName)
	}
	_, err := builder.Instantiate(ctx)
	return err
}

func handleHostCall(ctx context.Context, mod api.Module, packed uint64, host ports.HostFunctions, name string, cfg Config) uint64 {
	ptr, length := wireformat.UnpackPtrLen(packed)
	log := cfg.Logger.With(zap.String("function", name))

	if length > cfg.MaxRequestSize {
		msg := fmt.Sprintf("request size %d exceeds maximum %d bytes", length, cfg.MaxRequestSize)
		log.Warn("rejected host call", zap.String("reason", msg))
		return writeResponse(ctx, mod, log, wireformat.EncodeError(wireformat.ErrorKindHost, msg))
	}

	request, ok := mod.Memory().Read(ptr, length)
	if !ok {
		log.Warn("host call request out of range", zap.Uint32("ptr", ptr), zap.Uint32("len", length))
		return writeResponse(ctx, mod, log, wireformat.EncodeError(wireformat.ErrorKindHost, "request out of guest memory range"))
	}
	// The handler may re-enter the guest, which can move its memory.
	request = append([]byte(nil), request...)

	response, err := host.Invoke(ctx, name, request)
	if err != nil {
		log.Warn("host function failed", zap.Error(err))
		response = wireformat.EncodeErrorFor(err, wireformat.ErrorKindHost)
	}
	return writeResponse(ctx, mod, log, response)
}

// writeResponse allocates memory in the guest and writes data to it.
// Returns packed ptr+len, or 0 when the guest cannot take the response.
func writeResponse(ctx context.Context, mod api.Module, log *zap.Logger, data []byte) uint64 {
	allocate := mod.ExportedFunction(wireformat.ExportAllocate)
	if allocate == nil {
		log.Error("guest module missing allocate export")
		return 0
	}
	size := uint32(len(data)) //nolint:gosec // G115: responses are bounded by guest memory

	results, err := allocate.Call(ctx, uint64(size))
	if err != nil {
		log.Error("guest allocate failed", zap.Error(err))
		return 0
	}
	ptr := uint32(results[0]) //nolint:gosec // G115: WASM32 pointers are always 32-bit

	if !mod.Memory().Write(ptr, data) {
		log.Error("response write out of range", zap.Uint32("ptr", ptr), zap.Uint32("len", size))
		return 0
	}
	return wireformat.PackPtrLen(ptr, size)
}
