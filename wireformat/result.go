package wireformat

import (
	"encoding/binary"
	"errors"
	"fmt"

	"fortio.org/safecast"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
)

// Result envelope status bytes.
const (
	StatusOK    byte = 0x00
	StatusError byte = 0xFF
)

// ErrorKind classifies a failure reported inside a result envelope.
type ErrorKind uint8

const (
	// ErrorKindProtocol reports a descriptor disagreement.
	ErrorKindProtocol ErrorKind = 1
	// ErrorKindEncoding reports malformed bytes.
	ErrorKindEncoding ErrorKind = 2
	// ErrorKindPlugin reports an error returned by the plugin function.
	ErrorKindPlugin ErrorKind = 3
	// ErrorKindHost reports a failure on the host side of a host call.
	ErrorKindHost ErrorKind = 4
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindProtocol:
		return "protocol"
	case ErrorKindEncoding:
		return "encoding"
	case ErrorKindPlugin:
		return "plugin"
	case ErrorKindHost:
		return "host"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// RemoteError is an error decoded from a result envelope.
type RemoteError struct {
	Message string
	Kind    ErrorKind
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// Resolve converts the remote error into the domain error of its kind.
func (e *RemoteError) Resolve(function string) error {
	switch e.Kind {
	case ErrorKindProtocol:
		return &abierrors.ProtocolError{Function: function, Detail: e.Message}
	case ErrorKindEncoding:
		return &abierrors.EncodingError{Op: "decode", Path: []string{function}, Detail: e.Message}
	case ErrorKindPlugin:
		return &abierrors.PluginError{Function: function, Message: e.Message}
	default:
		return &abierrors.HostCallError{Function: function, Message: e.Message}
	}
}

// EncodeResult builds a success envelope: StatusOK followed by the EncodedValue of v.
func EncodeResult(schemas *entities.SchemaSet, v entities.Value) ([]byte, error) {
	return AppendValue([]byte{StatusOK}, schemas, v)
}

// EncodeError builds an error envelope:
//
//	u8 0xFF, u8 kind, u32 len, message
func EncodeError(kind ErrorKind, message string) []byte {
	// Messages are produced locally and bounded; clamp rather than fail.
	n, err := safecast.Conv[uint32](len(message))
	if err != nil {
		message = message[:1<<16]
		n = 1 << 16
	}
	buf := make([]byte, 0, 6+len(message))
	buf = append(buf, StatusError, byte(kind))
	buf = binary.LittleEndian.AppendUint32(buf, n)
	return append(buf, message...)
}

// EncodeErrorFor builds an error envelope for err, classified by its type.
// Errors without a known classification are reported as kind.
func EncodeErrorFor(err error, fallback ErrorKind) []byte {
	return EncodeError(KindOf(err, fallback), err.Error())
}

// KindOf classifies err for an error envelope.
func KindOf(err error, fallback ErrorKind) ErrorKind {
	var (
		pe *abierrors.ProtocolError
		ee *abierrors.EncodingError
		ue *abierrors.PluginError
		re *RemoteError
	)
	switch {
	case errors.As(err, &re):
		return re.Kind
	case errors.As(err, &pe):
		return ErrorKindProtocol
	case errors.As(err, &ee):
		return ErrorKindEncoding
	case errors.As(err, &ue):
		return ErrorKindPlugin
	default:
		return fallback
	}
}

// DecodeResult decodes a result envelope. An error envelope is returned as a
// *RemoteError; a malformed envelope as an *EncodingError.
func DecodeResult(schemas *entities.SchemaSet, b []byte) (entities.Value, error) {
	d := decoder{schemas: schemas, buf: b}
	status, err := d.u8()
	if err != nil {
		return nil, d.fail("empty result envelope")
	}

	switch status {
	case StatusOK:
		tag, err := d.tag()
		if err != nil {
			return nil, err
		}
		v, err := d.payload(tag)
		if err != nil {
			return nil, err
		}
		if err := d.finish(); err != nil {
			return nil, err
		}
		return v, nil
	case StatusError:
		kind, err := d.u8()
		if err != nil {
			return nil, err
		}
		msg, err := d.lengthPrefixed()
		if err != nil {
			return nil, err
		}
		if err := d.finish(); err != nil {
			return nil, err
		}
		return nil, &RemoteError{Kind: ErrorKind(kind), Message: string(msg)}
	default:
		return nil, d.fail("unknown result status 0x%02x", status)
	}
}
