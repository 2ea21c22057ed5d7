package wireformat

import (
	"encoding/binary"
	"unicode/utf8"

	"fortio.org/safecast"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
)

// EncodeTable serializes a descriptor table:
//
//	DescriptorTable    := u32 count, count × FunctionDescriptor
//	FunctionDescriptor := u32 name_len, name bytes, u8 arg_count, arg_count × TypeTag, TypeTag
func EncodeTable(table *entities.DescriptorTable) ([]byte, error) {
	functions := table.Functions()
	count, err := safecast.Conv[uint32](len(functions))
	if err != nil {
		return nil, &abierrors.EncodingError{Op: "encode", Detail: "descriptor count overflows u32", Err: err}
	}

	buf := binary.LittleEndian.AppendUint32(nil, count)
	for _, fn := range functions {
		nameLen, err := safecast.Conv[uint32](len(fn.Name))
		if err != nil {
			return nil, &abierrors.EncodingError{Op: "encode", Path: []string{fn.Name}, Detail: "name length overflows u32", Err: err}
		}
		argCount, err := safecast.Conv[uint8](len(fn.Args))
		if err != nil {
			return nil, &abierrors.EncodingError{Op: "encode", Path: []string{fn.Name}, Detail: "more than 255 arguments", Err: err}
		}
		buf = binary.LittleEndian.AppendUint32(buf, nameLen)
		buf = append(buf, fn.Name...)
		buf = append(buf, argCount)
		for _, a := range fn.Args {
			buf = AppendTag(buf, a)
		}
		buf = AppendTag(buf, fn.Return)
	}
	return buf, nil
}

// DecodeTable parses a serialized descriptor table. Struct tags must reference
// schemas known to the receiving side. Duplicate names are preserved so the
// caller can reject them.
func DecodeTable(schemas *entities.SchemaSet, b []byte) (*entities.DescriptorTable, error) {
	d := decoder{schemas: schemas, buf: b}
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	// Each descriptor takes at least 6 bytes; reject impossible counts before allocating.
	if uint64(count)*6 > uint64(d.remaining()) {
		return nil, d.fail("descriptor count %d exceeds input size", count)
	}

	functions := make([]entities.FunctionDescriptor, 0, count)
	for i := uint32(0); i < count; i++ {
		fn, err := d.descriptor()
		if err != nil {
			return nil, err
		}
		functions = append(functions, fn)
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	return entities.NewDescriptorTable(functions...), nil
}

func (d *decoder) descriptor() (entities.FunctionDescriptor, error) {
	raw, err := d.lengthPrefixed()
	if err != nil {
		return entities.FunctionDescriptor{}, err
	}
	if len(raw) == 0 || !utf8.Valid(raw) {
		return entities.FunctionDescriptor{}, d.fail("invalid function name %q", raw)
	}
	fn := entities.FunctionDescriptor{Name: string(raw)}

	d.path = append(d.path, fn.Name)
	defer func() { d.path = d.path[:len(d.path)-1] }()

	argCount, err := d.u8()
	if err != nil {
		return entities.FunctionDescriptor{}, err
	}
	if argCount > 0 {
		fn.Args = make([]entities.TypeTag, argCount)
	}
	for i := range fn.Args {
		tag, err := d.tag()
		if err != nil {
			return entities.FunctionDescriptor{}, err
		}
		if tag.Kind == entities.KindVoid {
			return entities.FunctionDescriptor{}, d.fail("argument %d is Void", i)
		}
		fn.Args[i] = tag
	}
	if fn.Return, err = d.tag(); err != nil {
		return entities.FunctionDescriptor{}, err
	}
	return fn, nil
}
