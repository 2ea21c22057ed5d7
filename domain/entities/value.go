package entities

// Value is a typed value that can cross the host/guest boundary.
// The set of implementations is closed: Int32, Int64, Float32, Float64, Bool,
// String, Bytes, Struct and Void.
type Value interface {
	// Tag returns the runtime type tag of the value.
	Tag() TypeTag
	sealed()
}

type (
	// Int32 is a KindInt32 value.
	Int32 int32
	// Int64 is a KindInt64 value.
	Int64 int64
	// Float32 is a KindFloat32 value.
	Float32 float32
	// Float64 is a KindFloat64 value.
	Float64 float64
	// Bool is a KindBool value.
	Bool bool
	// String is a KindString value. It must hold valid UTF-8 to be encoded.
	String string
	// Bytes is a KindBytes value.
	Bytes []byte
	// Void is the only value of KindVoid.
	Void struct{}
)

// Struct is a KindStruct value. Fields are in the declared order of the schema.
type Struct struct {
	Fields []Value
	Schema uint32
}

func (Int32) Tag() TypeTag   { return I32 }
func (Int64) Tag() TypeTag   { return I64 }
func (Float32) Tag() TypeTag { return F32 }
func (Float64) Tag() TypeTag { return F64 }
func (Bool) Tag() TypeTag    { return BoolTag }
func (String) Tag() TypeTag  { return Str }
func (Bytes) Tag() TypeTag   { return Buf }
func (Void) Tag() TypeTag    { return TypeTag{Kind: KindVoid} }

// Tag returns the struct tag of the value's schema.
func (s Struct) Tag() TypeTag { return StructTag(s.Schema) }

func (Int32) sealed()   {}
func (Int64) sealed()   {}
func (Float32) sealed() {}
func (Float64) sealed() {}
func (Bool) sealed()    {}
func (String) sealed()  {}
func (Bytes) sealed()   {}
func (Void) sealed()    {}
func (Struct) sealed()  {}

// NewStruct builds a struct value of the given schema.
func NewStruct(schemaID uint32, fields ...Value) Struct {
	return Struct{Schema: schemaID, Fields: fields}
}

// TagOf returns the tag of v, or VoidTag when v is nil.
func TagOf(v Value) TypeTag {
	if v == nil {
		return VoidTag
	}
	return v.Tag()
}
