package host

import (
	"context"
	stdErrors "errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wasmplug/wasmplug/domain/entities"
	abierrors "github.com/wasmplug/wasmplug/domain/errors"
	"github.com/wasmplug/wasmplug/wireformat"
)

// invoke runs one checked call: encode the tuple into guest memory, call the
// dispatcher export, copy the result envelope out and decode it. Every guest
// buffer is freed on every path.
func (p *Plugin) invoke(ctx context.Context, fn entities.FunctionDescriptor, args []entities.Value) (entities.Value, error) {
	tuple, err := wireformat.EncodeArgs(p.schemas, args)
	if err != nil {
		return nil, err
	}

	f := newFrame(p.module, p.logger)
	defer f.release(ctx)

	argPtr, err := f.write(ctx, tuple)
	if err != nil {
		return nil, p.fail(ctx, fn.Name, err)
	}

	results, err := p.module.Call(ctx, wireformat.CallExport(fn.Name), uint64(argPtr), uint64(len(tuple)))
	if err != nil {
		return nil, p.fail(ctx, fn.Name, err)
	}
	if err := f.free(ctx, argPtr); err != nil {
		return nil, p.fail(ctx, fn.Name, err)
	}
	if len(results) != 1 {
		return nil, &abierrors.ProtocolError{Function: fn.Name, Detail: fmt.Sprintf("dispatcher returned %d values", len(results))}
	}

	resPtr, resLen := wireformat.UnpackPtrLen(results[0])
	f.adopt(resPtr, resLen)
	raw, err := f.read(resPtr, resLen)
	if err != nil {
		var proto *abierrors.ProtocolError
		if stdErrors.As(err, &proto) {
			proto.Function = fn.Name
		}
		return nil, err
	}
	if err := f.free(ctx, resPtr); err != nil {
		return nil, p.fail(ctx, fn.Name, err)
	}

	v, err := wireformat.DecodeResult(p.schemas, raw)
	if err != nil {
		var remote *wireformat.RemoteError
		if stdErrors.As(err, &remote) {
			return nil, remote.Resolve(fn.Name)
		}
		return nil, err
	}
	if got := v.Tag(); !got.Equal(fn.Return) {
		return nil, &abierrors.ProtocolError{
			Function: fn.Name,
			Detail:   fmt.Sprintf("result is %s, descriptor declares %s", got, fn.Return),
		}
	}
	return v, nil
}

// fail converts a failed guest call into a trap and invalidates the plugin.
// Errors raised by the host side of the boundary pass through unchanged.
func (p *Plugin) fail(ctx context.Context, function string, err error) error {
	var proto *abierrors.ProtocolError
	if stdErrors.As(err, &proto) {
		proto.Function = function
		return err
	}

	trap := &abierrors.TrapError{Err: err, Function: function, Reason: abierrors.TrapReasonFault}
	var te *abierrors.TrapError
	if stdErrors.As(err, &te) {
		trap.Err, trap.Reason = te.Err, te.Reason
	}
	if trap.Reason == abierrors.TrapReasonFault && stdErrors.Is(ctx.Err(), context.DeadlineExceeded) {
		trap.Reason = abierrors.TrapReasonDeadline
	}

	if p.state.CompareAndSwap(stateReady, stateInvalidated) {
		p.logger.Warn("plugin trapped and was invalidated",
			zap.String("function", function),
			zap.String("reason", trap.Reason),
			zap.Error(trap.Err))
	}
	return trap
}
