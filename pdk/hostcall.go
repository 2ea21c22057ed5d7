package pdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/wasmplug/wasmplug/domain/entities"
	"github.com/wasmplug/wasmplug/wireformat"
)

// ErrNoHost is returned by host calls made outside a dispatched function or
// from a guest without a host.
var ErrNoHost = errors.New("pdk: no host available")

// Log levels understood by the host.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Log sends a log record to the host logger. attrs are key/value pairs.
func Log(ctx context.Context, level, msg string, attrs ...string) error {
	rec := wireformat.LogRecord{Level: level, Message: msg}
	if len(attrs) > 0 {
		rec.Attrs = make(map[string]string, (len(attrs)+1)/2)
		for i := 0; i < len(attrs); i += 2 {
			if i+1 < len(attrs) {
				rec.Attrs[attrs[i]] = attrs[i+1]
			} else {
				rec.Attrs[attrs[i]] = ""
			}
		}
	}
	_, err := callHost(ctx, wireformat.ImportLogMessage, rec)
	return err
}

// CallPlugin calls function in the plugin registered under id in the host's
// universe. Struct arguments and results use this plugin's schemas.
func CallPlugin(ctx context.Context, id, function string, args ...entities.Value) (entities.Value, error) {
	g, ok := guestFrom(ctx)
	if !ok {
		return nil, ErrNoHost
	}
	tuple, err := wireformat.EncodeArgs(g.plugin.schemas, args)
	if err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", id, function, err)
	}
	return callHost(ctx, wireformat.ImportCallPlugin, wireformat.PluginCallRequest{
		ID:       id,
		Function: function,
		Args:     tuple,
	})
}

func callHost(ctx context.Context, name string, req any) (entities.Value, error) {
	g, ok := guestFrom(ctx)
	if !ok || g.host == nil {
		return nil, ErrNoHost
	}
	payload, err := wireformat.MarshalPayload(req)
	if err != nil {
		return nil, err
	}
	resp, err := g.host.CallHost(ctx, name, payload)
	if err != nil {
		return nil, fmt.Errorf("host call %s: %w", name, err)
	}
	v, err := wireformat.DecodeResult(g.plugin.schemas, resp)
	if err != nil {
		var remote *wireformat.RemoteError
		if errors.As(err, &remote) {
			return nil, remote.Resolve(name)
		}
		return nil, fmt.Errorf("host call %s: %w", name, err)
	}
	return v, nil
}
