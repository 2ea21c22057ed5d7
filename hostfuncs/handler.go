package hostfuncs

import (
	"context"

	"github.com/wasmplug/wasmplug/domain/entities"
	"github.com/wasmplug/wasmplug/wireformat"
)

// ByteHandler takes a raw request read from guest memory and returns the raw
// response written back to it. Responses are result envelopes; a returned Go
// error is turned into a host error envelope by the engine.
type ByteHandler func(context.Context, []byte) ([]byte, error)

// HostFunc is a typed host function. A nil result is answered as Void.
type HostFunc[Req any] func(context.Context, Req) (entities.Value, error)

// NewMsgpackHandler wraps a typed HostFunc into a ByteHandler. The request is
// decoded from msgpack and the result encoded as a result envelope. Results
// must not be structs, which need the guest's schemas.
func NewMsgpackHandler[Req any](fn HostFunc[Req]) ByteHandler {
	return func(ctx context.Context, payload []byte) ([]byte, error) {
		var req Req
		if err := wireformat.UnmarshalPayload(payload, &req); err != nil {
			return wireformat.EncodeError(wireformat.ErrorKindEncoding, err.Error()), nil
		}

		result, err := fn(ctx, req)
		if err != nil {
			return FailureResponse(err), nil
		}
		if result == nil {
			result = entities.Void{}
		}
		return wireformat.EncodeResult(nil, result)
	}
}
