package wireformat

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
)

// EncodeArgs encodes an argument tuple: each argument is an EncodedValue
// prefixed by its u32 length so the dispatcher can split them.
func EncodeArgs(schemas *entities.SchemaSet, args []entities.Value) ([]byte, error) {
	var buf []byte
	for i, a := range args {
		ev, err := EncodeValue(schemas, a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		n, err := safecast.Conv[uint32](len(ev))
		if err != nil {
			return nil, &abierrors.EncodingError{Op: "encode", Detail: fmt.Sprintf("argument %d too large", i), Err: err}
		}
		buf = binary.LittleEndian.AppendUint32(buf, n)
		buf = append(buf, ev...)
	}
	return buf, nil
}

// SplitArgs splits an argument tuple into its EncodedValues without decoding them.
func SplitArgs(b []byte) ([][]byte, error) {
	d := decoder{buf: b}
	var parts [][]byte
	for d.remaining() > 0 {
		part, err := d.lengthPrefixed()
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// DecodeArgs decodes an argument tuple against a function descriptor.
// A count or tag disagreement is a *ProtocolError: the sender used a stale or
// foreign descriptor and no coercion is attempted. Malformed bytes are an
// *EncodingError.
func DecodeArgs(schemas *entities.SchemaSet, fn entities.FunctionDescriptor, b []byte) ([]entities.Value, error) {
	parts, err := SplitArgs(b)
	if err != nil {
		return nil, err
	}
	if len(parts) != len(fn.Args) {
		return nil, &abierrors.ProtocolError{
			Function: fn.Name,
			Detail:   fmt.Sprintf("descriptor declares %d arguments, received %d", len(fn.Args), len(parts)),
		}
	}

	values := make([]entities.Value, len(parts))
	for i, part := range parts {
		d := decoder{schemas: schemas, buf: part, path: []string{fmt.Sprintf("arg%d", i)}}
		tag, err := d.tag()
		if err != nil {
			return nil, err
		}
		if !tag.Equal(fn.Args[i]) {
			return nil, &abierrors.ProtocolError{
				Function: fn.Name,
				Detail:   fmt.Sprintf("argument %d: descriptor declares %s, received %s", i, fn.Args[i], tag),
			}
		}
		v, err := d.payload(tag)
		if err != nil {
			return nil, err
		}
		if err := d.finish(); err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
