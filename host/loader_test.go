package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
	"github.com/wasmplug/wasmplug/pdk"
)

func TestRuntime_LoadWithPluginID(t *testing.T) {
	rt, engine := newTestRuntime(t)
	p, _ := loadMath(t, rt, engine, WithPluginID("calculator"))

	assert.Equal(t, "calculator", p.ID())
	m, ok := p.Manifest()
	require.True(t, ok)
	assert.Equal(t, "math", m.ID)
}

func TestRuntime_LoadWithoutManifest(t *testing.T) {
	rt, engine := newTestRuntime(t)
	plain := pdk.New()
	plain.MustRegister("one", nil, entities.I32,
		func(context.Context, []entities.Value) (entities.Value, error) { return entities.Int32(1), nil })

	p, err := rt.Load(context.Background(), engine.Register("plain", plain))
	require.NoError(t, err)

	_, ok := p.Manifest()
	assert.False(t, ok)
	assert.Empty(t, p.ID())
	assert.Equal(t, "<anonymous>", p.Name())
	v, err := p.Call(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, entities.Int32(1), v)
}

func TestRuntime_LoadEmptyTable(t *testing.T) {
	rt, engine := newTestRuntime(t)

	p, err := rt.Load(context.Background(), engine.Register("empty", pdk.New()))
	require.NoError(t, err)
	assert.Zero(t, p.Table().Len())
}

func TestRuntime_LoadErrors(t *testing.T) {
	conflicting := entities.MustSchemaSet(entities.Schema{
		ID:     1,
		Name:   "record",
		Fields: []entities.Field{{Name: "id", Tag: entities.I64}},
	})

	tests := []struct {
		name   string
		binary func(*testing.T, *Runtime) []byte
		opts   []LoadOption
		reason string
	}{
		{
			name:   "not a module",
			binary: func(*testing.T, *Runtime) []byte { return []byte("garbage") },
			reason: "instantiate",
		},
		{
			name:   "conflicting schemas",
			binary: func(*testing.T, *Runtime) []byte { return []byte("unused") },
			opts:   []LoadOption{WithLoadSchemas(conflicting)},
			reason: "merge schemas",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, _ := newTestRuntime(t)
			_, err := rt.Load(context.Background(), tt.binary(t, rt), tt.opts...)

			var loadErr *abierrors.LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, tt.reason, loadErr.Reason)
			assert.Equal(t, "load", abierrors.Code(err))
		})
	}
}

func TestRuntime_LoadFileMissing(t *testing.T) {
	rt, _ := newTestRuntime(t)

	_, err := rt.LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.wasm"))

	var loadErr *abierrors.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRuntime_LoadFile(t *testing.T) {
	rt, engine := newTestRuntime(t)
	path := filepath.Join(t.TempDir(), "math.wasm")
	require.NoError(t, os.WriteFile(path, engine.Register("math", mathPlugin()), 0o600))

	p, err := rt.LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "math", p.ID())
}

func TestRuntime_CloseUnloadsPlugins(t *testing.T) {
	rt, engine := newTestRuntime(t)
	p, inst := loadMath(t, rt, engine)

	require.NoError(t, rt.Close(context.Background()))
	assert.True(t, inst.Closed())
	assert.ErrorIs(t, p.Err(), abierrors.ErrPluginClosed)

	_, err := rt.Load(context.Background(), engine.Register("math", mathPlugin()))
	require.Error(t, err)
}

func TestRuntime_HostFunctions(t *testing.T) {
	rt, _ := newTestRuntime(t)
	assert.Contains(t, rt.HostFunctions(), "log_message")
}
