package wireformat

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Every host import takes a msgpack request and answers with a ResultEnvelope.

// LogRecord is the payload of the log_message host import.
type LogRecord struct {
	Attrs   map[string]string `msgpack:"attrs,omitempty"`
	Level   string            `msgpack:"level"`
	Message string            `msgpack:"message"`
}

// PluginCallRequest is the payload of the call_plugin host import.
// Args is an ArgumentTuple. The response is the callee's ResultEnvelope.
type PluginCallRequest struct {
	ID       string `msgpack:"id"`
	Function string `msgpack:"function"`
	Args     []byte `msgpack:"args"`
}

// MarshalPayload encodes a host-call payload as msgpack.
func MarshalPayload(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return b, nil
}

// UnmarshalPayload decodes a msgpack host-call payload into v.
func UnmarshalPayload(b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}
