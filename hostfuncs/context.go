package hostfuncs

import (
	"context"
)

// HostContext wraps a context.Context with host function-specific helpers.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the host function being invoked.
	FunctionName() string

	// Caller returns the ID of the plugin that made the call, if known.
	Caller() string
}

type hostContext struct {
	context.Context
	funcName string
}

// NewHostContext creates a new HostContext wrapping the given context.
func NewHostContext(ctx context.Context, funcName string) HostContext {
	return &hostContext{
		Context:  ctx,
		funcName: funcName,
	}
}

func (c *hostContext) FunctionName() string { return c.funcName }

func (c *hostContext) Caller() string {
	id, _ := CallerFrom(c.Context)
	return id
}

// HostContextFrom returns ctx if it already is a HostContext, or wraps it.
func HostContextFrom(ctx context.Context, funcName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, funcName)
}

type callerKey struct{}

// WithCaller records the ID of the plugin whose call reaches the host.
func WithCaller(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

// CallerFrom returns the ID recorded by WithCaller.
func CallerFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callerKey{}).(string)
	return id, ok
}
