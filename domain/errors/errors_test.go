package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wasmplug/wasmplug/domain/entities"
)

func TestCode(t *testing.T) {
	cause := stdErrors.New("cause")
	tests := []struct {
		err  error
		code string
	}{
		{&LoadError{Reason: "x", Err: cause}, "load"},
		{&DuplicateExportError{Name: "f"}, "duplicate_export"},
		{&NotFoundError{Function: "f"}, "not_found"},
		{&TypeMismatchError{Function: "f"}, "type_mismatch"},
		{&EncodingError{Op: "decode"}, "encoding"},
		{&ProtocolError{Detail: "d"}, "protocol"},
		{&TrapError{Function: "f"}, "trap"},
		{&PluginError{Function: "f"}, "plugin"},
		{&HostCallError{Function: "f"}, "host_call"},
		{&PluginExistsError{ID: "p"}, "plugin_exists"},
		{fmt.Errorf("wrapped: %w", &NotFoundError{}), "not_found"},
		{cause, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, Code(tt.err), tt.err.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := stdErrors.New("root cause")

	assert.ErrorIs(t, &LoadError{Reason: "instantiate", Err: cause}, cause)
	assert.ErrorIs(t, &TrapError{Function: "f", Err: cause}, cause)
	assert.ErrorIs(t, &EncodingError{Op: "encode", Err: cause}, cause)
}

func TestTypeMismatchError(t *testing.T) {
	arity := &TypeMismatchError{Function: "add", Position: 1, WantCount: 2, GotCount: 1}
	assert.True(t, arity.IsArity())
	assert.Equal(t, `call "add": argument 1: expected 2 arguments, got 1`, arity.Error())

	tag := &TypeMismatchError{Function: "add", Position: 0, Want: entities.I32, Got: entities.Str, WantCount: 2, GotCount: 2}
	assert.False(t, tag.IsArity())
	assert.Equal(t, `call "add": argument 0: expected Int32, got UTF8String`, tag.Error())
}

func TestEncodingError_Message(t *testing.T) {
	err := &EncodingError{Op: "decode", Path: []string{"inner", "label"}, Detail: "string is not valid UTF-8"}
	assert.Equal(t, "decode at inner.label: string is not valid UTF-8", err.Error())
}

func TestTrapError(t *testing.T) {
	err := &TrapError{Function: "spin", Reason: TrapReasonDeadline}
	assert.True(t, err.Timeout())
	assert.Equal(t, `plugin trapped in "spin" (deadline exceeded)`, err.Error())
}
