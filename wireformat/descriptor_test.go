package wireformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
)

func TestEncodeTable_Layout(t *testing.T) {
	table := entities.NewDescriptorTable(entities.FunctionDescriptor{
		Name:   "add",
		Args:   []entities.TypeTag{entities.I32, entities.StructTag(recordSchema)},
		Return: entities.I64,
	})

	got, err := EncodeTable(table)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		1, 0, 0, 0, // count
		3, 0, 0, 0, 'a', 'd', 'd',
		2,                // arg count
		0x01,             // Int32
		0x08, 1, 0, 0, 0, // Struct(1)
		0x02, // return Int64
	}, got)
}

func TestTable_RoundTrip(t *testing.T) {
	want := []entities.FunctionDescriptor{
		{Name: "func", Return: entities.I32},
		{Name: "nothing", Return: entities.VoidTag},
		{Name: "mix", Args: []entities.TypeTag{entities.F32, entities.F64, entities.BoolTag, entities.Str, entities.Buf}, Return: entities.StructTag(wrapperSchema)},
	}

	encoded, err := EncodeTable(entities.NewDescriptorTable(want...))
	require.NoError(t, err)

	table, err := DecodeTable(testSchemas, encoded)
	require.NoError(t, err)
	assert.Equal(t, want, table.Functions())

	again, err := EncodeTable(table)
	require.NoError(t, err)
	assert.Equal(t, encoded, again)
}

func TestTable_ZeroArgsMatchPublished(t *testing.T) {
	published := entities.NewDescriptorTable(
		entities.FunctionDescriptor{Name: "a", Return: entities.I32},
		entities.FunctionDescriptor{Name: "b", Args: []entities.TypeTag{}, Return: entities.VoidTag},
	)
	encoded, err := EncodeTable(published)
	require.NoError(t, err)

	decoded, err := DecodeTable(nil, encoded)
	require.NoError(t, err)
	assert.Equal(t, published.Functions(), decoded.Functions())
	for _, fn := range decoded.Functions() {
		assert.Nil(t, fn.Args, fn.Name)
	}
}

func TestDecodeTable_Empty(t *testing.T) {
	table, err := DecodeTable(nil, []byte{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}

func TestDecodeTable_KeepsDuplicates(t *testing.T) {
	fn := entities.FunctionDescriptor{Name: "dup", Args: []entities.TypeTag{}, Return: entities.I32}
	encoded, err := EncodeTable(entities.NewDescriptorTable(fn, fn))
	require.NoError(t, err)

	table, err := DecodeTable(nil, encoded)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []string{"dup"}, table.Duplicates())
}

func TestDecodeTable_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		detail string
	}{
		{"empty", nil, "truncated"},
		{"count exceeds input", []byte{0xff, 0xff, 0xff, 0xff}, "exceeds input size"},
		{"truncated name", []byte{1, 0, 0, 0, 5, 0, 0, 0, 'a', 'b'}, "truncated"},
		{"empty name", []byte{1, 0, 0, 0, 0, 0, 0, 0, 0, 0x01}, "invalid function name"},
		{"missing return", []byte{1, 0, 0, 0, 1, 0, 0, 0, 'f', 0}, "truncated"},
		{"unknown arg tag", []byte{1, 0, 0, 0, 1, 0, 0, 0, 'f', 1, 0x0a, 0x01}, "unrecognized type tag 0x0a"},
		{"void arg", []byte{1, 0, 0, 0, 1, 0, 0, 0, 'f', 1, 0x00, 0x01}, "argument 0 is Void"},
		{"unknown schema", []byte{1, 0, 0, 0, 1, 0, 0, 0, 'f', 0, 0x08, 7, 0, 0, 0}, "unknown schema id 7"},
		{"trailing", []byte{0, 0, 0, 0, 1}, "trailing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTable(testSchemas, tt.input)
			var encErr *abierrors.EncodingError
			require.ErrorAs(t, err, &encErr)
			assert.Contains(t, encErr.Error(), tt.detail)
		})
	}
}
