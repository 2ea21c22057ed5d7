package entities

import "fmt"

// Kind identifies the shape of a value crossing the host/guest boundary.
// The byte values are part of the wire format and must never change.
type Kind uint8

const (
	// KindVoid marks a function that returns nothing. Valid only as a return tag.
	KindVoid Kind = 0x00
	// KindInt32 is a signed 32-bit integer.
	KindInt32 Kind = 0x01
	// KindInt64 is a signed 64-bit integer.
	KindInt64 Kind = 0x02
	// KindFloat32 is an IEEE-754 single precision float.
	KindFloat32 Kind = 0x03
	// KindFloat64 is an IEEE-754 double precision float.
	KindFloat64 Kind = 0x04
	// KindBool is a boolean encoded as a single byte.
	KindBool Kind = 0x05
	// KindString is a UTF-8 string.
	KindString Kind = 0x06
	// KindBytes is an opaque byte buffer.
	KindBytes Kind = 0x07
	// KindStruct is a structured value described by a registered schema.
	KindStruct Kind = 0x08
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "Void"
	case KindInt32:
		return "Int32"
	case KindInt64:
		return "Int64"
	case KindFloat32:
		return "Float32"
	case KindFloat64:
		return "Float64"
	case KindBool:
		return "Bool"
	case KindString:
		return "UTF8String"
	case KindBytes:
		return "ByteBuffer"
	case KindStruct:
		return "Struct"
	default:
		return fmt.Sprintf("Kind(0x%02x)", uint8(k))
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k <= KindStruct
}

// TypeTag describes the type of a value. SchemaID is only meaningful for KindStruct.
type TypeTag struct {
	Kind     Kind
	SchemaID uint32
}

// Predeclared tags for the non-struct kinds.
var (
	VoidTag = TypeTag{Kind: KindVoid}
	I32     = TypeTag{Kind: KindInt32}
	I64     = TypeTag{Kind: KindInt64}
	F32     = TypeTag{Kind: KindFloat32}
	F64     = TypeTag{Kind: KindFloat64}
	BoolTag = TypeTag{Kind: KindBool}
	Str     = TypeTag{Kind: KindString}
	Buf     = TypeTag{Kind: KindBytes}
)

// StructTag returns the tag of a struct with the given schema.
func StructTag(schemaID uint32) TypeTag {
	return TypeTag{Kind: KindStruct, SchemaID: schemaID}
}

// IsStruct reports whether the tag references a schema.
func (t TypeTag) IsStruct() bool {
	return t.Kind == KindStruct
}

// Equal reports whether two tags describe the same type.
// Schema IDs of non-struct tags are ignored.
func (t TypeTag) Equal(o TypeTag) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind == KindStruct {
		return t.SchemaID == o.SchemaID
	}
	return true
}

func (t TypeTag) String() string {
	if t.Kind == KindStruct {
		return fmt.Sprintf("Struct(%d)", t.SchemaID)
	}
	return t.Kind.String()
}
