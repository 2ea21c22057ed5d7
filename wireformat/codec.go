package wireformat

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"unicode/utf8"

	"fortio.org/safecast"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
)

// MaxDepth is the deepest struct nesting the codec accepts.
const MaxDepth = 64

// EncodeValue encodes v as an EncodedValue: its type tag followed by its payload.
func EncodeValue(schemas *entities.SchemaSet, v entities.Value) ([]byte, error) {
	return AppendValue(nil, schemas, v)
}

// AppendValue appends the EncodedValue of v to dst.
func AppendValue(dst []byte, schemas *entities.SchemaSet, v entities.Value) ([]byte, error) {
	if v == nil {
		return nil, &abierrors.EncodingError{Op: "encode", Detail: "nil value"}
	}
	e := encoder{schemas: schemas, buf: dst}
	tag := v.Tag()
	if err := e.tag(tag); err != nil {
		return nil, err
	}
	if err := e.payload(tag, v); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// EncodePayload encodes v without its tag. v must have the given tag.
func EncodePayload(schemas *entities.SchemaSet, tag entities.TypeTag, v entities.Value) ([]byte, error) {
	e := encoder{schemas: schemas}
	if err := e.payload(tag, v); err != nil {
		return nil, err
	}
	return e.buf, nil
}

// DecodeValue decodes a complete EncodedValue. Trailing bytes are an error.
func DecodeValue(schemas *entities.SchemaSet, b []byte) (entities.Value, error) {
	d := decoder{schemas: schemas, buf: b}
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
}

// DecodePayload decodes a complete payload of the given tag.
func DecodePayload(schemas *entities.SchemaSet, tag entities.TypeTag, b []byte) (entities.Value, error) {
	d := decoder{schemas: schemas, buf: b}
	if err := d.checkTag(tag); err != nil {
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
}

// AppendTag appends the wire form of a type tag.
func AppendTag(dst []byte, tag entities.TypeTag) []byte {
	dst = append(dst, byte(tag.Kind))
	if tag.Kind == entities.KindStruct {
		dst = binary.LittleEndian.AppendUint32(dst, tag.SchemaID)
	}
	return dst
}

type encoder struct {
	schemas *entities.SchemaSet
	buf     []byte
	path    []string
	depth   int
}

func (e *encoder) fail(format string, args ...any) error {
	return &abierrors.EncodingError{
		Op:     "encode",
		Path:   slices.Clone(e.path),
		Detail: fmt.Sprintf(format, args...),
	}
}

func (e *encoder) tag(tag entities.TypeTag) error {
	if !tag.Kind.Valid() {
		return e.fail("unknown kind %s", tag.Kind)
	}
	if tag.Kind == entities.KindStruct {
		if _, ok := e.schemas.Lookup(tag.SchemaID); !ok {
			return e.fail("unknown schema id %d", tag.SchemaID)
		}
	}
	e.buf = AppendTag(e.buf, tag)
	return nil
}

func (e *encoder) length(n int) error {
	l, err := safecast.Conv[uint32](n)
	if err != nil {
		return &abierrors.EncodingError{Op: "encode", Path: slices.Clone(e.path), Detail: "length overflows u32", Err: err}
	}
	e.buf = binary.LittleEndian.AppendUint32(e.buf, l)
	return nil
}

func (e *encoder) payload(tag entities.TypeTag, v entities.Value) error {
	if v == nil {
		return e.fail("nil value for %s", tag)
	}
	if got := v.Tag(); !got.Equal(tag) {
		return e.fail("expected %s, got %s", tag, got)
	}

	switch x := v.(type) {
	case entities.Void:
	case entities.Int32:
		e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(x)) //nolint:gosec // G115: two's complement reinterpretation
	case entities.Int64:
		e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(x)) //nolint:gosec // G115: two's complement reinterpretation
	case entities.Float32:
		e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(float32(x)))
	case entities.Float64:
		e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(float64(x)))
	case entities.Bool:
		if x {
			e.buf = append(e.buf, 1)
		} else {
			e.buf = append(e.buf, 0)
		}
	case entities.String:
		if !utf8.ValidString(string(x)) {
			return e.fail("string is not valid UTF-8")
		}
		if err := e.length(len(x)); err != nil {
			return err
		}
		e.buf = append(e.buf, x...)
	case entities.Bytes:
		if err := e.length(len(x)); err != nil {
			return err
		}
		e.buf = append(e.buf, x...)
	case entities.Struct:
		return e.structPayload(x)
	default:
		return e.fail("unsupported value %T", v)
	}
	return nil
}

func (e *encoder) structPayload(s entities.Struct) error {
	schema, ok := e.schemas.Lookup(s.Schema)
	if !ok {
		return e.fail("unknown schema id %d", s.Schema)
	}
	if e.depth >= MaxDepth {
		return e.fail("struct nesting exceeds %d", MaxDepth)
	}
	if len(s.Fields) != len(schema.Fields) {
		return e.fail("schema %d declares %d fields, got %d", s.Schema, len(schema.Fields), len(s.Fields))
	}

	e.depth++
	for i, f := range schema.Fields {
		e.path = append(e.path, f.Name)
		if err := e.tag(f.Tag); err != nil {
			return err
		}
		if err := e.payload(f.Tag, s.Fields[i]); err != nil {
			return err
		}
		e.path = e.path[:len(e.path)-1]
	}
	e.depth--
	return nil
}

type decoder struct {
	schemas *entities.SchemaSet
	buf     []byte
	path    []string
	off     int
	depth   int
}

func (d *decoder) fail(format string, args ...any) error {
	return &abierrors.EncodingError{
		Op:     "decode",
		Path:   slices.Clone(d.path),
		Detail: fmt.Sprintf(format, args...),
	}
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.remaining() < n {
		return nil, d.fail("truncated input: need %d bytes at offset %d, have %d", n, d.off, d.remaining())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) u8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// lengthPrefixed reads a u32 length followed by that many bytes.
func (d *decoder) lengthPrefixed() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	size, err := safecast.Conv[int](n)
	if err != nil {
		return nil, d.fail("length %d overflows int", n)
	}
	return d.take(size)
}

func (d *decoder) tag() (entities.TypeTag, error) {
	k, err := d.u8()
	if err != nil {
		return entities.TypeTag{}, err
	}
	tag := entities.TypeTag{Kind: entities.Kind(k)}
	if !tag.Kind.Valid() {
		return entities.TypeTag{}, d.fail("unrecognized type tag 0x%02x", k)
	}
	if tag.Kind == entities.KindStruct {
		if tag.SchemaID, err = d.u32(); err != nil {
			return entities.TypeTag{}, err
		}
	}
	if err := d.checkTag(tag); err != nil {
		return entities.TypeTag{}, err
	}
	return tag, nil
}

func (d *decoder) checkTag(tag entities.TypeTag) error {
	if !tag.Kind.Valid() {
		return d.fail("unrecognized type tag 0x%02x", uint8(tag.Kind))
	}
	if tag.Kind == entities.KindStruct {
		if _, ok := d.schemas.Lookup(tag.SchemaID); !ok {
			return d.fail("unknown schema id %d", tag.SchemaID)
		}
	}
	return nil
}

func (d *decoder) payload(tag entities.TypeTag) (entities.Value, error) {
	switch tag.Kind {
	case entities.KindVoid:
		return entities.Void{}, nil
	case entities.KindInt32:
		v, err := d.u32()
		return entities.Int32(int32(v)), err //nolint:gosec // G115: two's complement reinterpretation
	case entities.KindInt64:
		v, err := d.u64()
		return entities.Int64(int64(v)), err //nolint:gosec // G115: two's complement reinterpretation
	case entities.KindFloat32:
		v, err := d.u32()
		return entities.Float32(math.Float32frombits(v)), err
	case entities.KindFloat64:
		v, err := d.u64()
		return entities.Float64(math.Float64frombits(v)), err
	case entities.KindBool:
		b, err := d.u8()
		if err != nil {
			return nil, err
		}
		if b > 1 {
			return nil, d.fail("invalid bool byte 0x%02x", b)
		}
		return entities.Bool(b == 1), nil
	case entities.KindString:
		raw, err := d.lengthPrefixed()
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(raw) {
			return nil, d.fail("string is not valid UTF-8")
		}
		return entities.String(raw), nil
	case entities.KindBytes:
		raw, err := d.lengthPrefixed()
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(raw))
		copy(out, raw)
		return entities.Bytes(out), nil
	case entities.KindStruct:
		return d.structPayload(tag.SchemaID)
	default:
		return nil, d.fail("unrecognized type tag 0x%02x", uint8(tag.Kind))
	}
}

func (d *decoder) structPayload(id uint32) (entities.Value, error) {
	schema, ok := d.schemas.Lookup(id)
	if !ok {
		return nil, d.fail("unknown schema id %d", id)
	}
	if d.depth >= MaxDepth {
		return nil, d.fail("struct nesting exceeds %d", MaxDepth)
	}

	d.depth++
	fields := make([]entities.Value, len(schema.Fields))
	for i, f := range schema.Fields {
		d.path = append(d.path, f.Name)
		tag, err := d.tag()
		if err != nil {
			return nil, err
		}
		if !tag.Equal(f.Tag) {
			return nil, d.fail("field tag %s does not match schema type %s", tag, f.Tag)
		}
		v, err := d.payload(tag)
		if err != nil {
			return nil, err
		}
		fields[i] = v
		d.path = d.path[:len(d.path)-1]
	}
	d.depth--
	return entities.Struct{Schema: id, Fields: fields}, nil
}

func (d *decoder) finish() error {
	if n := d.remaining(); n != 0 {
		return d.fail("%d trailing bytes", n)
	}
	return nil
}
