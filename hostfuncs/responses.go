package hostfuncs

import (
	"fmt"

	"github.com/wasmplug/wasmplug/wireformat"
)

// FailureResponse answers a failed host function with an error envelope
// classified by the error's type.
func FailureResponse(err error) []byte {
	return wireformat.EncodeErrorFor(err, wireformat.ErrorKindHost)
}

// NotFoundResponse answers a call to an unknown host function.
func NotFoundResponse(name string) []byte {
	return wireformat.EncodeError(wireformat.ErrorKindHost, "unknown host function: "+name)
}

// PanicResponse answers a host function that panicked.
func PanicResponse(panicValue any) []byte {
	var msg string
	switch v := panicValue.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprint(v)
	}
	return wireformat.EncodeError(wireformat.ErrorKindHost, "panic: "+msg)
}
