package pdk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
	"github.com/wasmplug/wasmplug/wireformat"
)

type fakeHost struct {
	respond func(name string, payload []byte) []byte
	calls   []string
}

func (h *fakeHost) CallHost(_ context.Context, name string, payload []byte) ([]byte, error) {
	h.calls = append(h.calls, name)
	return h.respond(name, payload), nil
}

func TestLog_WithoutGuest(t *testing.T) {
	err := Log(context.Background(), LevelInfo, "hello")
	assert.ErrorIs(t, err, ErrNoHost)

	_, err = CallPlugin(context.Background(), "other", "fn")
	assert.ErrorIs(t, err, ErrNoHost)
}

func TestLog_SendsRecord(t *testing.T) {
	var got wireformat.LogRecord
	host := &fakeHost{respond: func(_ string, payload []byte) []byte {
		require.NoError(t, wireformat.UnmarshalPayload(payload, &got))
		envelope, err := wireformat.EncodeResult(nil, entities.Void{})
		require.NoError(t, err)
		return envelope
	}}

	p := New()
	p.MustRegister("greet", nil, entities.VoidTag, func(ctx context.Context, _ []entities.Value) (entities.Value, error) {
		return nil, Log(ctx, LevelWarn, "hi", "user", "ada", "dangling")
	})
	g := newTestGuest(t, p, host)

	_, err := call(t, g, "greet", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{wireformat.ImportLogMessage}, host.calls)
	assert.Equal(t, wireformat.LogRecord{
		Level:   LevelWarn,
		Message: "hi",
		Attrs:   map[string]string{"user": "ada", "dangling": ""},
	}, got)
}

func TestCallPlugin(t *testing.T) {
	var req wireformat.PluginCallRequest
	host := &fakeHost{respond: func(_ string, payload []byte) []byte {
		require.NoError(t, wireformat.UnmarshalPayload(payload, &req))
		envelope, err := wireformat.EncodeResult(nil, entities.Int32(7))
		require.NoError(t, err)
		return envelope
	}}

	p := New()
	p.MustRegister("relay", []entities.TypeTag{entities.Str}, entities.I32, func(ctx context.Context, args []entities.Value) (entities.Value, error) {
		return CallPlugin(ctx, "other", "count", args[0])
	})
	g := newTestGuest(t, p, host)

	args, err := wireformat.EncodeArgs(nil, []entities.Value{entities.String("abc")})
	require.NoError(t, err)

	v, err := call(t, g, "relay", args)
	require.NoError(t, err)
	assert.Equal(t, entities.Int32(7), v)

	assert.Equal(t, "other", req.ID)
	assert.Equal(t, "count", req.Function)
	assert.Equal(t, args, req.Args)
}

func TestCallPlugin_RemoteErrors(t *testing.T) {
	tests := []struct {
		name   string
		kind   wireformat.ErrorKind
		target any
	}{
		{name: "plugin", kind: wireformat.ErrorKindPlugin, target: new(*abierrors.PluginError)},
		{name: "host", kind: wireformat.ErrorKindHost, target: new(*abierrors.HostCallError)},
		{name: "protocol", kind: wireformat.ErrorKindProtocol, target: new(*abierrors.ProtocolError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &fakeHost{respond: func(string, []byte) []byte {
				return wireformat.EncodeError(tt.kind, "nope")
			}}
			var callErr error
			p := New()
			p.MustRegister("relay", nil, entities.VoidTag, func(ctx context.Context, _ []entities.Value) (entities.Value, error) {
				_, callErr = CallPlugin(ctx, "other", "fn")
				return nil, nil
			})
			g := newTestGuest(t, p, host)

			_, err := call(t, g, "relay", nil)
			require.NoError(t, err)
			require.Error(t, callErr)
			assert.ErrorAs(t, callErr, tt.target)
		})
	}
}
