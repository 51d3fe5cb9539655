package runtime

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/gas"
	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/linker"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// State is the link state of a Runtime.
type State uint8

const (
	Unlinked State = iota
	Linked
	// Failed is terminal: instantiation was attempted and failed.
	Failed
)

func (s State) String() string {
	switch s {
	case Unlinked:
		return "unlinked"
	case Linked:
		return "linked"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type runtimeOptions struct {
	eager bool
	gas   uint64
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*runtimeOptions)

// WithEagerLink instantiates during NewRuntime. An instantiation failure
// then yields no runtime.
func WithEagerLink() RuntimeOption {
	return func(o *runtimeOptions) { o.eager = true }
}

// WithGas sets the initial gas budget. The default is zero.
func WithGas(n uint64) RuntimeOption {
	return func(o *runtimeOptions) { o.gas = n }
}

// Runtime is one module bound to a user context. It instantiates lazily on
// first use. Not safe for concurrent use.
type Runtime struct {
	ctx      *Context
	code     []byte
	key      *linker.CacheKey
	module   engine.Module
	template engine.Template
	// ownsModule is false once the module backs a cached template.
	ownsModule bool

	bindings *linker.Linker
	user     trampoline.UserContext
	counter  *gas.Counter
	meter    gas.Meter
	instance engine.Instance

	state   State
	linkErr error
	closed  bool
}

// NewRuntime compiles code, or takes its pre-instance from the cache when
// key is set and cached. Malformed bytecode yields no runtime.
func (c *Context) NewRuntime(ctx context.Context, code []byte, user trampoline.UserContext, key *linker.CacheKey, opts ...RuntimeOption) (*Runtime, error) {
	var o runtimeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := c.acquire(); err != nil {
		return nil, err
	}

	r := &Runtime{
		ctx:      c,
		code:     code,
		key:      key,
		bindings: c.linker.Overlay(),
		user:     user,
		counter:  gas.NewCounter(o.gas),
	}
	r.meter = r.counter

	if key != nil && c.cache != nil && c.cache.Contains(*key) {
		r.template, _ = c.cache.Get(*key)
	}
	if r.template == nil {
		if err := r.compile(ctx); err != nil {
			c.release()
			return nil, err
		}
	}

	if o.eager {
		if err := r.LazyLink(ctx); err != nil {
			r.Close(ctx)
			return nil, err
		}
	}
	return r, nil
}

func (r *Runtime) compile(ctx context.Context) error {
	if r.module != nil {
		return nil
	}
	mod, err := r.ctx.engine.Compile(ctx, r.code)
	if err != nil {
		Logger().Debug("compile failed", zap.Error(err))
		return err
	}
	r.module = mod
	r.ownsModule = true
	return nil
}

// State returns the link state.
func (r *Runtime) State() State { return r.state }

// User returns the user context passed to every host call.
func (r *Runtime) User() trampoline.UserContext { return r.user }

// Link binds module#name for this runtime only. Allowed only while
// Unlinked; names bound in the context cannot be bound again.
func (r *Runtime) Link(module, name string, arity uint8, ret hostfn.ReturnKind, entry trampoline.EntryPoint) error {
	if r.closed || r.state != Unlinked {
		return errors.InvalidState(errors.PhaseLink, "runtime is "+r.stateName())
	}
	return r.bindings.Link(module, name, arity, ret, entry)
}

func (r *Runtime) stateName() string {
	if r.closed {
		return "closed"
	}
	return r.state.String()
}

// LazyLink instantiates the module if it is not already. It is idempotent;
// after a failure it keeps returning that failure.
func (r *Runtime) LazyLink(ctx context.Context) error {
	if r.closed {
		return errors.InvalidState(errors.PhaseInstantiate, "runtime is closed")
	}
	switch r.state {
	case Linked:
		return nil
	case Failed:
		return r.linkErr
	}

	err := r.link(ctx)
	if err != nil {
		r.state = Failed
		r.linkErr = err
		r.ctx.linkFailed()
		Logger().Debug("link failed", zap.Error(err))
		return err
	}
	r.state = Linked
	return nil
}

func (r *Runtime) link(ctx context.Context) error {
	tpl, err := r.prepare(ctx)
	if err != nil {
		return err
	}

	st := &engine.Store{Caller: r.ctx.caller, Bindings: r.bindings, User: r.user}
	inst, err := tpl.Instantiate(ctx, st, r.counter.Available())
	if err != nil {
		var se *engine.StartError
		if stderrors.As(err, &se) && inst != nil {
			r.counter.SetAvailable(inst.Available())
			_ = inst.Close(ctx)
			return errors.Wrap(errors.PhaseInstantiate, errors.KindInstantiation, err, "start function failed")
		}
		return err
	}

	r.instance = inst
	r.meter = inst
	return nil
}

// prepare picks the pre-instance: the one fetched at creation, the shared
// cached one, or a private one when this runtime has its own bindings.
func (r *Runtime) prepare(ctx context.Context) (engine.Template, error) {
	private := !r.bindings.Empty()
	if r.template != nil && !private {
		return r.template, nil
	}
	if err := r.compile(ctx); err != nil {
		return nil, err
	}
	cache := r.ctx.cache
	if r.key == nil || cache == nil || private {
		return r.module.Prepare(ctx, r.bindings)
	}

	mod := r.module
	tpl, hit, err := cache.GetOrPrepare(*r.key, func() (engine.Template, error) {
		return mod.Prepare(ctx, r.ctx.linker)
	})
	if err != nil {
		return nil, err
	}
	if !hit {
		r.ownsModule = false
	}
	return tpl, nil
}

// AvailableGas returns the gas left for the next call.
func (r *Runtime) AvailableGas() uint64 { return r.meter.Available() }

// SetAvailableGas replaces the gas budget.
func (r *Runtime) SetAvailableGas(n uint64) { r.meter.SetAvailable(n) }

// ConsumeGas draws n from the budget. With too little gas left the budget
// drops to zero and ConsumeGas reports false.
func (r *Runtime) ConsumeGas(n uint64) bool { return gas.Consume(r.meter, n) }

// ChargeGas is ConsumeGas for syscalls: it returns an out-of-gas host error
// the syscall can report as its status.
func (r *Runtime) ChargeGas(n uint64) error {
	if gas.Consume(r.meter, n) {
		return nil
	}
	return hostfn.NewHostError(hostfn.OutOfGas)
}

// Close releases the instance and, unless it backs a cached pre-instance,
// the compiled module. Closing twice is a no-op.
func (r *Runtime) Close(ctx context.Context) {
	if r.closed {
		return
	}
	r.closed = true
	if r.instance != nil {
		r.counter.SetAvailable(r.instance.Available())
		if err := r.instance.Close(ctx); err != nil {
			Logger().Warn("close instance", zap.Error(err))
		}
		r.instance = nil
	}
	r.meter = r.counter
	if r.module != nil && r.ownsModule {
		if err := r.module.Close(ctx); err != nil {
			Logger().Warn("close module", zap.Error(err))
		}
	}
	r.module = nil
	r.template = nil
	r.ctx.release()
}
