package wireformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
)

func TestArgs_RoundTrip(t *testing.T) {
	fn := entities.FunctionDescriptor{
		Name:   "store",
		Args:   []entities.TypeTag{entities.I32, entities.StructTag(recordSchema), entities.Buf},
		Return: entities.VoidTag,
	}
	args := []entities.Value{
		entities.Int32(5),
		entities.NewStruct(recordSchema, entities.Int32(1), entities.String("x")),
		entities.Bytes{9},
	}

	tuple, err := EncodeArgs(testSchemas, args)
	require.NoError(t, err)

	parts, err := SplitArgs(tuple)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, []byte{0x01, 5, 0, 0, 0}, parts[0])

	got, err := DecodeArgs(testSchemas, fn, tuple)
	require.NoError(t, err)
	assert.Equal(t, args, got)
}

func TestArgs_Empty(t *testing.T) {
	tuple, err := EncodeArgs(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, tuple)

	got, err := DecodeArgs(nil, entities.FunctionDescriptor{Name: "func", Return: entities.I32}, tuple)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeArgs_ProtocolErrors(t *testing.T) {
	fn := entities.FunctionDescriptor{Name: "add", Args: []entities.TypeTag{entities.I32, entities.I32}, Return: entities.I32}

	one, err := EncodeArgs(nil, []entities.Value{entities.Int32(1)})
	require.NoError(t, err)
	wrong, err := EncodeArgs(nil, []entities.Value{entities.Int32(1), entities.String("2")})
	require.NoError(t, err)

	for name, tuple := range map[string][]byte{"count": one, "tag": wrong} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeArgs(nil, fn, tuple)
			var protoErr *abierrors.ProtocolError
			require.ErrorAs(t, err, &protoErr)
			assert.Equal(t, "add", protoErr.Function)
		})
	}
}

func TestDecodeArgs_EncodingErrors(t *testing.T) {
	fn := entities.FunctionDescriptor{Name: "f", Args: []entities.TypeTag{entities.BoolTag}, Return: entities.VoidTag}

	tests := map[string][]byte{
		"truncated length": {1, 0},
		"truncated value":  {2, 0, 0, 0, 0x05},
		"invalid bool":     {2, 0, 0, 0, 0x05, 7},
		"trailing in part": {3, 0, 0, 0, 0x05, 1, 0},
	}
	for name, tuple := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeArgs(nil, fn, tuple)
			var encErr *abierrors.EncodingError
			assert.ErrorAs(t, err, &encErr)
		})
	}
}

func TestEncodeArgs_Errors(t *testing.T) {
	_, err := EncodeArgs(nil, []entities.Value{entities.Int32(1), entities.String("\xff")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 1")
}
