package runtime

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/linker"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// Observer receives invocation outcomes. Implementations must be thread-safe.
type Observer interface {
	Invoked(kind engine.Kind, outcome hostfn.InvokeError, consumed uint64)
	LinkFailed(kind engine.Kind)
}

type contextOptions struct {
	engine        engine.Config
	cacheSize     int
	observer      Observer
	cacheObserver linker.CacheObserver
}

// ContextOption configures a Context.
type ContextOption func(*contextOptions)

// WithCache enables a pre-instance cache holding at most size templates.
func WithCache(size int) ContextOption {
	return func(o *contextOptions) { o.cacheSize = size }
}

// WithObserver reports invocations to obs. If obs also implements
// linker.CacheObserver it receives cache events too.
func WithObserver(obs Observer) ContextOption {
	return func(o *contextOptions) {
		o.observer = obs
		if co, ok := obs.(linker.CacheObserver); ok {
			o.cacheObserver = co
		}
	}
}

// WithEngineConfig sets engine-wide limits.
func WithEngineConfig(cfg engine.Config) ContextOption {
	return func(o *contextOptions) { o.engine = cfg }
}

// Context owns an engine, the shared binding table and the pre-instance
// cache. Safe for concurrent use; runtimes created from it are not.
type Context struct {
	engine   engine.Engine
	linker   *linker.Linker
	cache    *linker.Cache
	caller   trampoline.NativeCaller
	observer Observer

	live   atomic.Int64
	mu     sync.Mutex
	closed bool
}

// NewContext creates a context running kind. Host calls go through caller.
func NewContext(ctx context.Context, kind engine.Kind, caller trampoline.NativeCaller, opts ...ContextOption) (*Context, error) {
	if caller == nil {
		return nil, errors.InvalidInput(errors.PhaseEngine, "native caller is required")
	}
	var o contextOptions
	for _, opt := range opts {
		opt(&o)
	}

	eng, err := engine.New(ctx, kind, o.engine)
	if err != nil {
		return nil, err
	}

	c := &Context{
		engine:   eng,
		linker:   linker.New(),
		caller:   caller,
		observer: o.observer,
	}
	if o.cacheSize > 0 {
		c.cache, err = linker.NewCache(o.cacheSize, o.cacheObserver)
		if err != nil {
			_ = eng.Close(ctx)
			return nil, err
		}
	}
	Logger().Debug("context created", zap.Stringer("engine", kind), zap.Int("cache_size", o.cacheSize))
	return c, nil
}

// Link binds module#name for every runtime of this context.
func (c *Context) Link(module, name string, arity uint8, ret hostfn.ReturnKind, entry trampoline.EntryPoint) error {
	return c.linker.Link(module, name, arity, ret, entry)
}

// Linker returns the context binding table.
func (c *Context) Linker() *linker.Linker { return c.linker }

// Engine returns the context engine.
func (c *Context) Engine() engine.Engine { return c.engine }

// Cache returns the pre-instance cache, or nil when caching is off.
func (c *Context) Cache() *linker.Cache { return c.cache }

// Live returns the number of runtimes not yet closed.
func (c *Context) Live() int64 { return c.live.Load() }

// Close releases the engine. It fails while runtimes are live.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if n := c.live.Load(); n > 0 {
		return errors.New(errors.PhaseABI, errors.KindInvalidState).
			Value(n).
			Detail("%d runtimes still live", n).
			Build()
	}
	c.closed = true
	if c.cache != nil {
		c.cache.Purge()
	}
	return c.engine.Close(ctx)
}

// acquire registers a new runtime unless the context is closed.
func (c *Context) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.InvalidState(errors.PhaseInstantiate, "context is closed")
	}
	c.live.Add(1)
	return nil
}

func (c *Context) release() {
	c.live.Add(-1)
}

func (c *Context) invoked(outcome hostfn.InvokeError, consumed uint64) {
	if c.observer != nil {
		c.observer.Invoked(c.engine.Kind(), outcome, consumed)
	}
}

func (c *Context) linkFailed() {
	if c.observer != nil {
		c.observer.LinkFailed(c.engine.Kind())
	}
}
