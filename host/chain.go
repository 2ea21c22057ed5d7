package host

import (
	"context"
	"slices"

	"github.com/wasmplug/wasmplug/hostfuncs"
)

// callChain is the stack of plugins executing on behalf of one top-level
// call. It travels in the context handed to host functions.
type callChain struct {
	parent *callChain
	plugin *Plugin
}

type chainKey struct{}

func withCall(ctx context.Context, p *Plugin) context.Context {
	parent := chainFrom(ctx)
	ctx = context.WithValue(ctx, chainKey{}, &callChain{parent: parent, plugin: p})
	if p.id != "" {
		ctx = hostfuncs.WithCaller(ctx, p.id)
	}
	return ctx
}

func chainFrom(ctx context.Context) *callChain {
	c, _ := ctx.Value(chainKey{}).(*callChain)
	return c
}

func (c *callChain) contains(p *Plugin) bool {
	for ; c != nil; c = c.parent {
		if c.plugin == p {
			return true
		}
	}
	return false
}

// path lists plugin IDs from the outermost call inwards.
func (c *callChain) path() []string {
	var ids []string
	for ; c != nil; c = c.parent {
		ids = append(ids, c.plugin.Name())
	}
	slices.Reverse(ids)
	return ids
}
