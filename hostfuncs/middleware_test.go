package hostfuncs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wasmplug/wasmplug/wireformat"
)

func TestPanicRecoveryMiddleware(t *testing.T) {
	panicHandler := func(context.Context, []byte) ([]byte, error) {
		panic("test panic")
	}

	resp, err := PanicRecoveryMiddleware()(panicHandler)(context.Background(), nil)
	require.NoError(t, err)

	_, err = wireformat.DecodeResult(nil, resp)
	var remote *wireformat.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, wireformat.ErrorKindHost, remote.Kind)
	assert.Equal(t, "panic: test panic", remote.Message)
}

func TestPanicRecoveryMiddleware_NoPanic(t *testing.T) {
	resp, err := PanicRecoveryMiddleware()(echoHandler)(context.Background(), []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "echo:x", string(resp))
}

func TestPanicResponse_Values(t *testing.T) {
	for _, v := range []any{errors.New("e"), "s", 42} {
		_, err := wireformat.DecodeResult(nil, PanicResponse(v))
		var remote *wireformat.RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Contains(t, remote.Message, "panic: ")
	}
}

func TestMiddlewareOrder_FIFO(t *testing.T) {
	var callOrder []string
	tracing := func(name string) Middleware {
		return func(next ByteHandler) ByteHandler {
			return func(ctx context.Context, payload []byte) ([]byte, error) {
				callOrder = append(callOrder, name+"-before")
				resp, err := next(ctx, payload)
				callOrder = append(callOrder, name+"-after")
				return resp, err
			}
		}
	}

	reg, err := NewRegistry(
		WithMiddleware(tracing("mw1"), tracing("mw2")),
		WithByteHandler("h", func(context.Context, []byte) ([]byte, error) {
			callOrder = append(callOrder, "handler")
			return nil, nil
		}),
	)
	require.NoError(t, err)

	_, err = reg.Invoke(context.Background(), "h", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}, callOrder)
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	failing := func(context.Context, []byte) ([]byte, error) { return nil, errors.New("broken") }
	reg, err := NewRegistry(
		WithMiddleware(LoggingMiddleware(logger)),
		WithByteHandler("ok", echoHandler),
		WithByteHandler("bad", failing),
	)
	require.NoError(t, err)

	ctx := WithCaller(context.Background(), "plugin-a")
	_, err = reg.Invoke(ctx, "ok", []byte("abc"))
	require.NoError(t, err)
	_, err = reg.Invoke(ctx, "bad", nil)
	require.Error(t, err)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "ok", entries[0].ContextMap()["function"])
	assert.Equal(t, "plugin-a", entries[0].ContextMap()["caller"])
	assert.EqualValues(t, 3, entries[0].ContextMap()["request_bytes"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "broken", entries[1].ContextMap()["error"])
}
