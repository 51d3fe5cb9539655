package runtime

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/gas"
	"github.com/wippyai/wasm-bridge/hostfn"
)

// Result is the outcome of one invocation. Value is meaningful only when
// Err is hostfn.None. Cause carries the underlying error for diagnostics.
type Result struct {
	Value       uint64
	Err         hostfn.InvokeError
	GasConsumed uint64
	Cause       error
}

// OK reports whether the call returned normally.
func (r Result) OK() bool { return r.Err == hostfn.None }

// Invoke calls export, which must take no arguments and return one i64.
// With limit set the call runs on that budget and the prior budget is
// restored afterwards; otherwise it draws from the current budget.
// Every failure is classified; Invoke itself never returns an error.
func (r *Runtime) Invoke(ctx context.Context, export string, limit *uint64) Result {
	if err := r.LazyLink(ctx); err != nil {
		res := Result{Err: hostfn.DeterministicError, Cause: err}
		r.ctx.invoked(res.Err, 0)
		return res
	}

	var (
		value uint64
		err   error
	)
	run := func() { value, err = r.instance.Call(ctx, export) }

	var res Result
	if limit != nil {
		res.GasConsumed = gas.Limit(r.instance, *limit, run)
	} else {
		res.GasConsumed = gas.Track(r.instance, run)
	}

	if err == nil {
		res.Value = value
	} else {
		res.Err = r.classify(err)
		res.Cause = err
		Logger().Debug("invoke failed",
			zap.String("export", export),
			zap.Stringer("outcome", res.Err),
			zap.Uint64("gas", res.GasConsumed),
			zap.Error(err))
	}
	r.ctx.invoked(res.Err, res.GasConsumed)
	return res
}

// classify maps bridge errors (missing export, bad signature) to a
// deterministic failure and defers everything else to the engine.
func (r *Runtime) classify(err error) hostfn.InvokeError {
	if _, ok := err.(*errors.Error); ok {
		return hostfn.DeterministicError
	}
	return r.ctx.engine.Classify(err)
}
