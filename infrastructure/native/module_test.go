package native

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
	"github.com/wasmplug/wasmplug/pdk"
	"github.com/wasmplug/wasmplug/wireformat"
)

type recordingHost struct {
	calls []string
}

func (h *recordingHost) Names() []string { return []string{wireformat.ImportLogMessage} }

func (h *recordingHost) Invoke(_ context.Context, name string, _ []byte) ([]byte, error) {
	h.calls = append(h.calls, name)
	return wireformat.EncodeResult(nil, entities.Void{})
}

func testPlugin() *pdk.Plugin {
	p := pdk.New(pdk.WithManifest(entities.Manifest{ID: "native"}))
	p.MustRegister("double", []entities.TypeTag{entities.I32}, entities.I32,
		func(_ context.Context, args []entities.Value) (entities.Value, error) {
			return args[0].(entities.Int32) * 2, nil
		})
	p.MustRegister("log", nil, entities.VoidTag,
		func(ctx context.Context, _ []entities.Value) (entities.Value, error) {
			return nil, pdk.Log(ctx, "info", "hello")
		})
	p.MustRegister("crash", nil, entities.VoidTag,
		func(context.Context, []entities.Value) (entities.Value, error) { panic("boom") })
	p.MustRegister("wait", nil, entities.VoidTag,
		func(ctx context.Context, _ []entities.Value) (entities.Value, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	return p
}

// call writes args into the module, dispatches fn and decodes the envelope.
func call(t *testing.T, ctx context.Context, m *Module, fn string, args ...entities.Value) (entities.Value, error) {
	t.Helper()
	tuple, err := wireformat.EncodeArgs(nil, args)
	require.NoError(t, err)

	var ptr uint32
	if len(tuple) > 0 {
		res, err := m.Call(ctx, wireformat.ExportAllocate, uint64(len(tuple)))
		require.NoError(t, err)
		ptr = uint32(res[0])
		require.True(t, m.Memory().Write(ptr, tuple))
	}
	res, err := m.Call(ctx, wireformat.CallExport(fn), uint64(ptr), uint64(len(tuple)))
	if err != nil {
		return nil, err
	}
	_, err = m.Call(ctx, wireformat.ExportFree, uint64(ptr), uint64(len(tuple)))
	require.NoError(t, err)

	rptr, rlen := wireformat.UnpackPtrLen(res[0])
	raw, ok := m.Memory().Read(rptr, rlen)
	require.True(t, ok)
	envelope := append([]byte(nil), raw...)
	_, err = m.Call(ctx, wireformat.ExportFree, uint64(rptr), uint64(rlen))
	require.NoError(t, err)
	v, err := wireformat.DecodeResult(nil, envelope)
	var remote *wireformat.RemoteError
	if errors.As(err, &remote) {
		return nil, remote.Resolve(fn)
	}
	return v, err
}

func TestModule_Exports(t *testing.T) {
	m, err := NewModule(testPlugin(), nil)
	require.NoError(t, err)

	for _, name := range []string{
		wireformat.ExportMemory, wireformat.ExportAllocate, wireformat.ExportFree,
		wireformat.ExportDescribe, wireformat.ExportManifest, wireformat.CallExport("double"),
	} {
		assert.True(t, m.HasExport(name), name)
	}
	assert.False(t, m.HasExport(wireformat.CallExport("triple")))
	assert.False(t, m.HasExport(wireformat.ExportInitialize))

	_, err = m.Call(context.Background(), "unknown")
	require.Error(t, err)
}

func TestModule_Call(t *testing.T) {
	m, err := NewModule(testPlugin(), nil)
	require.NoError(t, err)

	v, err := call(t, context.Background(), m, "double", entities.Int32(21))
	require.NoError(t, err)
	assert.Equal(t, entities.Int32(42), v)
	assert.Zero(t, m.Stats().Live)
}

func TestModule_HostCalls(t *testing.T) {
	host := &recordingHost{}
	m, err := NewModule(testPlugin(), host)
	require.NoError(t, err)

	_, err = call(t, context.Background(), m, "log")
	require.NoError(t, err)
	assert.Equal(t, []string{wireformat.ImportLogMessage}, host.calls)

	detached, err := NewModule(testPlugin(), nil)
	require.NoError(t, err)
	_, err = call(t, context.Background(), detached, "log")
	var pluginErr *abierrors.PluginError
	require.ErrorAs(t, err, &pluginErr)
	assert.Contains(t, pluginErr.Message, "no host available")
}

func TestModule_Traps(t *testing.T) {
	m, err := NewModule(testPlugin(), nil)
	require.NoError(t, err)

	_, err = call(t, context.Background(), m, "crash")
	var trap *abierrors.TrapError
	require.ErrorAs(t, err, &trap)
	assert.Equal(t, abierrors.TrapReasonFault, trap.Reason)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = call(t, ctx, m, "wait")
	require.ErrorAs(t, err, &trap)
	assert.Equal(t, abierrors.TrapReasonDeadline, trap.Reason)
	assert.Zero(t, m.Stats().Live, "the result envelope of an expired call is freed")
}

func TestModule_Close(t *testing.T) {
	m, err := NewModule(testPlugin(), nil)
	require.NoError(t, err)
	require.NoError(t, m.Close(context.Background()))
	assert.True(t, m.Closed())

	_, err = m.Call(context.Background(), wireformat.ExportDescribe)
	var trap *abierrors.TrapError
	require.ErrorAs(t, err, &trap)
	assert.Equal(t, abierrors.TrapReasonExit, trap.Reason)
}

func TestNewModule_PublishFailure(t *testing.T) {
	p := pdk.New()
	p.MustRegister("dup", nil, entities.VoidTag, func(context.Context, []entities.Value) (entities.Value, error) { return nil, nil })
	p.MustRegister("dup", nil, entities.VoidTag, func(context.Context, []entities.Value) (entities.Value, error) { return nil, nil })

	_, err := NewModule(p, nil)
	var dup *abierrors.DuplicateExportError
	require.ErrorAs(t, err, &dup)
}
