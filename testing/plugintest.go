// Package plugintest runs pdk plugins in-process behind the host's engine
// port, so host behavior can be tested without compiling to WASM.
package plugintest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmplug/wasmplug/domain/entities"
)

// Caller is satisfied by *host.Plugin.
type Caller interface {
	Call(ctx context.Context, name string, args ...entities.Value) (entities.Value, error)
}

// Case is one call and its expected outcome.
type Case struct {
	Name     string
	Function string
	Args     []entities.Value
	Want     entities.Value
	// WantErr, if set, is checked with errors.Is.
	WantErr error
	// Check, if set, inspects the raw outcome instead of Want and WantErr.
	Check func(t *testing.T, v entities.Value, err error)
}

// RunCases runs each case as a subtest against c.
func RunCases(t *testing.T, c Caller, cases []Case) {
	t.Helper()

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			v, err := c.Call(context.Background(), tc.Function, tc.Args...)
			switch {
			case tc.Check != nil:
				tc.Check(t, v, err)
			case tc.WantErr != nil:
				require.ErrorIs(t, err, tc.WantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tc.Want, v)
			}
		})
	}
}

// AssertStructField asserts that field i of a struct result equals want.
func AssertStructField(t *testing.T, v entities.Value, i int, want entities.Value) {
	t.Helper()
	s, ok := v.(entities.Struct)
	if !ok {
		t.Errorf("expected struct, got %T", v)
		return
	}
	if i >= len(s.Fields) {
		t.Errorf("struct has %d fields, want index %d", len(s.Fields), i)
		return
	}
	assert.Equal(t, want, s.Fields[i], "field %d", i)
}
