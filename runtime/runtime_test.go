package runtime

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/linker"
	"github.com/wippyai/wasm-bridge/trampoline"
	"github.com/wippyai/wasm-bridge/wasm"
)

var _ wasmbridge.Host = (*Runtime)(nil)

var i64s = []wasm.ValType{wasm.ValI64}

type recorder struct {
	invoked    atomic.Int32
	linkFailed atomic.Int32
	hits       atomic.Int32
	misses     atomic.Int32
	last       atomic.Uint32
}

func (r *recorder) Invoked(_ engine.Kind, outcome hostfn.InvokeError, _ uint64) {
	r.invoked.Add(1)
	r.last.Store(uint32(outcome))
}
func (r *recorder) LinkFailed(engine.Kind) { r.linkFailed.Add(1) }
func (r *recorder) CacheHit()              { r.hits.Add(1) }
func (r *recorder) CacheMiss()             { r.misses.Add(1) }
func (r *recorder) CacheEvict()            {}

func forEachEngine(t *testing.T, fn func(t *testing.T, kind engine.Kind)) {
	for _, kind := range engine.Available() {
		t.Run(kind.String(), func(t *testing.T) { fn(t, kind) })
	}
}

func newContext(t *testing.T, kind engine.Kind, opts ...ContextOption) (*Context, *trampoline.FuncTable) {
	t.Helper()
	table := trampoline.NewFuncTable()
	c, err := NewContext(context.Background(), kind, table, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, table
}

func newRuntime(t *testing.T, c *Context, code []byte, opts ...RuntimeOption) *Runtime {
	t.Helper()
	rt, err := c.NewRuntime(context.Background(), code, 7, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close(context.Background()) })
	return rt
}

func limit(n uint64) *uint64 { return &n }

// callsImport exports "main" calling test#fn with no arguments.
func callsImport(name string) []byte {
	b := wasm.NewBuilder()
	fn := b.ImportFunc("test", name, nil, i64s)
	b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.Call(fn)))
	return b.Bytes()
}

func constModule(v int64) []byte {
	b := wasm.NewBuilder()
	b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.I64Const(v)))
	return b.Bytes()
}

func TestInvoke_ReturnsValue(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, _ := newContext(t, kind)
		rt := newRuntime(t, c, constModule(42), WithGas(1000))
		assert.Equal(t, Unlinked, rt.State())

		res := rt.Invoke(context.Background(), "main", nil)
		require.True(t, res.OK(), "%v", res.Cause)
		assert.Equal(t, uint64(42), res.Value)
		assert.Positive(t, res.GasConsumed)
		assert.Equal(t, Linked, rt.State())
		assert.Equal(t, 1000-res.GasConsumed, rt.AvailableGas())
	})
}

func TestGas_WithoutInvoke(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, _ := newContext(t, kind)
		rt := newRuntime(t, c, constModule(0))

		assert.Zero(t, rt.AvailableGas())
		rt.SetAvailableGas(100)
		assert.True(t, rt.ConsumeGas(60))
		assert.Equal(t, uint64(40), rt.AvailableGas())
		assert.False(t, rt.ConsumeGas(50))
		assert.Zero(t, rt.AvailableGas())
	})
}

func TestGas_CarriedIntoInstance(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, _ := newContext(t, kind)
		rt := newRuntime(t, c, constModule(0))
		rt.SetAvailableGas(1234)
		require.NoError(t, rt.LazyLink(context.Background()))
		assert.Equal(t, uint64(1234), rt.AvailableGas())

		rt.SetAvailableGas(99)
		assert.Equal(t, uint64(99), rt.AvailableGas())
	})
}

func TestInvoke_LimitRestoresGas(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, table := newContext(t, kind)
		var rt *Runtime
		entry := table.Register(0, func(trampoline.UserContext, []uint64) hostfn.TrampolineResult {
			if err := rt.ChargeGas(100); err != nil {
				return hostfn.Fail(hostfn.OutOfGas)
			}
			return hostfn.Ok(0)
		})
		require.NoError(t, c.Link("test", "charge", 0, hostfn.U64, entry))
		rt = newRuntime(t, c, callsImport("charge"))
		rt.SetAvailableGas(5000)

		res := rt.Invoke(context.Background(), "main", limit(300))
		require.True(t, res.OK(), "%v", res.Cause)
		assert.GreaterOrEqual(t, res.GasConsumed, uint64(100))
		assert.Equal(t, uint64(5000), rt.AvailableGas())
		assert.True(t, rt.ConsumeGas(res.GasConsumed))

		res = rt.Invoke(context.Background(), "main", limit(80))
		assert.Equal(t, hostfn.OutOfGasError, res.Err)
		assert.Equal(t, uint64(80), res.GasConsumed)
	})
}

func TestInvoke_BytecodeOutOfGas(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, _ := newContext(t, kind)
		b := wasm.NewBuilder()
		b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.Loop(), wasm.Br(0), wasm.Op(wasm.OpEnd), wasm.I64Const(0)))
		rt := newRuntime(t, c, b.Bytes(), WithGas(10_000))

		res := rt.Invoke(context.Background(), "main", nil)
		assert.Equal(t, hostfn.OutOfGasError, res.Err)
		assert.Equal(t, uint64(10_000), res.GasConsumed)
		assert.Zero(t, rt.AvailableGas())
	})
}

func TestInvoke_HostStatuses(t *testing.T) {
	cases := []struct {
		status hostfn.HostFnError
		want   hostfn.InvokeError
	}{
		{hostfn.ReturnSuccess, hostfn.Return},
		{hostfn.OutOfGas, hostfn.OutOfGasError},
		{hostfn.Unrecoverable, hostfn.UnrecoverableError},
		{hostfn.HostFnError(42), hostfn.UnrecoverableError},
	}
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		for _, tc := range cases {
			c, table := newContext(t, kind)
			status := tc.status
			entry := table.Register(0, func(trampoline.UserContext, []uint64) hostfn.TrampolineResult {
				return hostfn.Fail(status)
			})
			require.NoError(t, c.Link("test", "raise", 0, hostfn.U64, entry))
			rt := newRuntime(t, c, callsImport("raise"), WithGas(1000))

			res := rt.Invoke(context.Background(), "main", nil)
			assert.Equal(t, tc.want, res.Err, "status %d", tc.status)
			assert.Zero(t, res.Value)

			var he *hostfn.HostError
			require.True(t, stderrors.As(res.Cause, &he), "status %d: %v", tc.status, res.Cause)
		}
	})
}

func TestInvoke_UserContextPassed(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, table := newContext(t, kind)
		entry := table.Register(0, func(user trampoline.UserContext, _ []uint64) hostfn.TrampolineResult {
			return hostfn.Ok(uint64(user))
		})
		require.NoError(t, c.Link("test", "user", 0, hostfn.U64, entry))

		rt, err := c.NewRuntime(context.Background(), callsImport("user"), 0xBEEF, nil, WithGas(1000))
		require.NoError(t, err)
		defer rt.Close(context.Background())

		res := rt.Invoke(context.Background(), "main", nil)
		require.True(t, res.OK(), "%v", res.Cause)
		assert.Equal(t, uint64(0xBEEF), res.Value)
	})
}

func TestInvoke_DeterministicFailures(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, _ := newContext(t, kind)
		b := wasm.NewBuilder()
		b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.I64Const(1)))
		b.ExportFunc("takes_arg", b.Func(i64s, i64s, nil, wasm.LocalGet(0)))
		b.ExportFunc("trap", b.Func(nil, i64s, nil, wasm.Op(wasm.OpUnreachable), wasm.I64Const(0)))
		rt := newRuntime(t, c, b.Bytes(), WithGas(1000))

		for _, export := range []string{"missing", "takes_arg", "trap"} {
			res := rt.Invoke(context.Background(), export, nil)
			assert.Equal(t, hostfn.DeterministicError, res.Err, export)
		}
		assert.True(t, rt.Invoke(context.Background(), "main", nil).OK())
	})
}

func TestLazyLink_FailureIsTerminal(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		obs := &recorder{}
		c, _ := newContext(t, kind, WithObserver(obs))
		rt := newRuntime(t, c, callsImport("absent"), WithGas(1000))

		res := rt.Invoke(context.Background(), "main", nil)
		assert.Equal(t, hostfn.DeterministicError, res.Err)
		assert.Zero(t, res.GasConsumed)
		assert.Equal(t, Failed, rt.State())
		assert.True(t, stderrors.Is(res.Cause, &errors.MissingImportsError{}), "%v", res.Cause)

		again := rt.Invoke(context.Background(), "main", nil)
		assert.Same(t, res.Cause, again.Cause)
		assert.Equal(t, uint64(1000), rt.AvailableGas())
		assert.Equal(t, int32(1), obs.linkFailed.Load())
		assert.Equal(t, int32(2), obs.invoked.Load())
	})
}

func TestLazyLink_Idempotent(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, _ := newContext(t, kind)
		rt := newRuntime(t, c, constModule(3), WithGas(100))
		require.NoError(t, rt.LazyLink(context.Background()))
		require.NoError(t, rt.LazyLink(context.Background()))
		assert.Equal(t, Linked, rt.State())
	})
}

func TestRuntimeLink(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, table := newContext(t, kind)
		shared := table.Register(0, func(trampoline.UserContext, []uint64) hostfn.TrampolineResult { return hostfn.Ok(1) })
		private := table.Register(0, func(trampoline.UserContext, []uint64) hostfn.TrampolineResult { return hostfn.Ok(2) })
		require.NoError(t, c.Link("test", "shared", 0, hostfn.U64, shared))

		rt := newRuntime(t, c, callsImport("private"), WithGas(1000))
		err := rt.Link("test", "shared", 0, hostfn.U64, private)
		var be *errors.Error
		require.True(t, stderrors.As(err, &be))
		assert.Equal(t, errors.KindRegistration, be.Kind)

		require.NoError(t, rt.Link("test", "private", 0, hostfn.U64, private))
		_, ok := c.Linker().Resolve("test", "private")
		assert.False(t, ok, "runtime bindings stay private")

		res := rt.Invoke(context.Background(), "main", nil)
		require.True(t, res.OK(), "%v", res.Cause)
		assert.Equal(t, uint64(2), res.Value)

		err = rt.Link("test", "late", 0, hostfn.U64, private)
		require.True(t, stderrors.As(err, &be))
		assert.Equal(t, errors.KindInvalidState, be.Kind)
	})
}

func TestNewRuntime_EagerLink(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, _ := newContext(t, kind)
		rt, err := c.NewRuntime(context.Background(), callsImport("absent"), 0, nil, WithEagerLink())
		assert.Error(t, err)
		assert.Nil(t, rt)
		assert.Zero(t, c.Live())

		rt, err = c.NewRuntime(context.Background(), constModule(1), 0, nil, WithEagerLink(), WithGas(10))
		require.NoError(t, err)
		assert.Equal(t, Linked, rt.State())
		rt.Close(context.Background())
	})
}

func TestNewRuntime_MalformedBytecode(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, _ := newContext(t, kind)
		rt, err := c.NewRuntime(context.Background(), []byte{0x00, 0x61, 0x73}, 0, nil)
		assert.Error(t, err)
		assert.Nil(t, rt)
		assert.Zero(t, c.Live())
	})
}

func TestStartFunction_RunsMeteredAtLink(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, _ := newContext(t, kind)
		b := wasm.NewBuilder()
		b.Memory(1, nil).ExportMemory("memory")
		b.Start(b.Func(nil, nil, nil, wasm.I32Const(0), wasm.I64Const(9), wasm.I64Store(0)))
		b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.I32Const(0), wasm.I64Load(0)))
		rt := newRuntime(t, c, b.Bytes(), WithGas(1000))

		assert.Nil(t, rt.Memory(), "no memory before link")
		require.NoError(t, rt.LazyLink(context.Background()))
		assert.Less(t, rt.AvailableGas(), uint64(1000))

		v, err := rt.ReadUint64(0)
		require.NoError(t, err)
		assert.Equal(t, uint64(9), v)
	})
}

func TestStartFunction_TrapFailsLink(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, _ := newContext(t, kind)
		b := wasm.NewBuilder()
		b.Start(b.Func(nil, nil, nil, wasm.Loop(), wasm.Br(0), wasm.Op(wasm.OpEnd)))
		b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.I64Const(0)))
		rt := newRuntime(t, c, b.Bytes(), WithGas(500))

		res := rt.Invoke(context.Background(), "main", nil)
		assert.Equal(t, hostfn.DeterministicError, res.Err)
		assert.Equal(t, Failed, rt.State())
		assert.Zero(t, rt.AvailableGas(), "start burned the budget")
	})
}

func TestCache_SharedAcrossRuntimes(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		obs := &recorder{}
		c, table := newContext(t, kind, WithCache(4), WithObserver(obs))
		entry := table.Register(0, func(user trampoline.UserContext, _ []uint64) hostfn.TrampolineResult {
			return hostfn.Ok(uint64(user) * 10)
		})
		require.NoError(t, c.Link("test", "f", 0, hostfn.U64, entry))

		code := callsImport("f")
		key := linker.KeyOf(code)
		ctx := context.Background()

		a, err := c.NewRuntime(ctx, code, 1, &key, WithGas(1000))
		require.NoError(t, err)
		defer a.Close(ctx)
		ra := a.Invoke(ctx, "main", nil)
		require.True(t, ra.OK(), "%v", ra.Cause)
		assert.True(t, c.Cache().Contains(key))

		b, err := c.NewRuntime(ctx, code, 2, &key, WithGas(1000))
		require.NoError(t, err)
		defer b.Close(ctx)
		assert.Nil(t, b.module, "cached key skips compilation")
		rb := b.Invoke(ctx, "main", nil)
		require.True(t, rb.OK(), "%v", rb.Cause)

		assert.Equal(t, uint64(10), ra.Value)
		assert.Equal(t, uint64(20), rb.Value)
		assert.Equal(t, ra.GasConsumed, rb.GasConsumed)
		assert.Equal(t, int32(1), obs.hits.Load())
		assert.Equal(t, int32(1), obs.misses.Load())
	})
}

func TestCache_PrivateBindingsBypassCache(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, table := newContext(t, kind, WithCache(4))
		entry := table.Register(0, func(trampoline.UserContext, []uint64) hostfn.TrampolineResult { return hostfn.Ok(5) })

		code := callsImport("private")
		key := linker.KeyOf(code)
		ctx := context.Background()

		rt, err := c.NewRuntime(ctx, code, 0, &key, WithGas(1000))
		require.NoError(t, err)
		defer rt.Close(ctx)
		require.NoError(t, rt.Link("test", "private", 0, hostfn.U64, entry))

		res := rt.Invoke(ctx, "main", nil)
		require.True(t, res.OK(), "%v", res.Cause)
		assert.Equal(t, uint64(5), res.Value)
		assert.False(t, c.Cache().Contains(key))
	})
}

func TestCache_HitThenPrivateBindingRecompiles(t *testing.T) {
	c, table := newContext(t, engine.InterpreterEngine, WithCache(4))
	entry := table.Register(0, func(trampoline.UserContext, []uint64) hostfn.TrampolineResult { return hostfn.Ok(8) })
	ctx := context.Background()

	b := wasm.NewBuilder()
	b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.I64Const(4)))
	code := b.Bytes()
	key := linker.KeyOf(code)

	first, err := c.NewRuntime(ctx, code, 0, &key, WithEagerLink(), WithGas(100))
	require.NoError(t, err)
	defer first.Close(ctx)

	second, err := c.NewRuntime(ctx, code, 0, &key, WithGas(100))
	require.NoError(t, err)
	defer second.Close(ctx)
	require.NoError(t, second.Link("test", "unused", 0, hostfn.U64, entry))

	res := second.Invoke(ctx, "main", nil)
	require.True(t, res.OK(), "%v", res.Cause)
	assert.Equal(t, uint64(4), res.Value)
	assert.NotNil(t, second.module)
}

func TestMemoryHelpers(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind engine.Kind) {
		c, _ := newContext(t, kind)
		b := wasm.NewBuilder()
		b.Memory(1, nil).ExportMemory("memory")
		b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.I32Const(16), wasm.I64Load(0)))
		rt := newRuntime(t, c, b.Bytes(), WithGas(1000), WithEagerLink())

		require.Len(t, rt.Memory(), 65536)

		buf := []byte{1, 2, 3, 4}
		require.NoError(t, rt.WriteMemory(10, buf, 4))
		got, err := rt.ReadMemory(10, 4)
		require.NoError(t, err)
		assert.Equal(t, buf, got)

		require.NoError(t, rt.Copy(0, 10, 4))
		cmp, err := rt.Memcmp(0, 10, 4)
		require.NoError(t, err)
		assert.Zero(t, cmp)

		for name, call := range map[string]func() error{
			"identical":     func() error { return rt.Copy(10, 10, 4) },
			"overlap below": func() error { return rt.Copy(9, 10, 4) },
			"overlap above": func() error { return rt.Copy(11, 10, 4) },
		} {
			assert.Error(t, call(), name)
		}

		require.NoError(t, rt.WriteUint64(16, 77))
		res := rt.Invoke(context.Background(), "main", nil)
		require.True(t, res.OK(), "%v", res.Cause)
		assert.Equal(t, uint64(77), res.Value)

		require.NoError(t, rt.Memset(16, 0, 8))
		v, err := rt.ReadUint64(16)
		require.NoError(t, err)
		assert.Zero(t, v)
	})
}

func TestMemoryHelpers_Bounds(t *testing.T) {
	c, _ := newContext(t, engine.InterpreterEngine)
	b := wasm.NewBuilder()
	b.Memory(1, nil).ExportMemory("memory")
	b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.I64Const(0)))
	rt := newRuntime(t, c, b.Bytes(), WithEagerLink())

	cases := map[string]func() error{
		"read past end":   func() error { _, err := rt.ReadMemory(65530, 7); return err },
		"read overflow":   func() error { _, err := rt.ReadMemory(^uint32(0), 2); return err },
		"window too big":  func() error { return rt.WriteMemory(65530, []byte{1}, 7) },
		"data over max":   func() error { return rt.WriteMemory(0, []byte{1, 2, 3}, 2) },
		"u64 at end":      func() error { _, err := rt.ReadUint64(65532); return err },
		"memset past end": func() error { return rt.Memset(65535, 0, 2) },
		"copy past end":   func() error { return rt.Copy(65534, 0, 4) },
	}
	for name, call := range cases {
		err := call()
		var be *errors.Error
		require.True(t, stderrors.As(err, &be), name)
		assert.Equal(t, errors.PhaseMemory, be.Phase, name)
	}

	_, err := rt.ReadMemory(65535, 1)
	assert.NoError(t, err)
	_, err = rt.ReadMemory(65536, 0)
	assert.NoError(t, err)
}

func TestContext_CloseRefusedWhileLive(t *testing.T) {
	ctx := context.Background()
	c, err := NewContext(ctx, engine.InterpreterEngine, trampoline.NewFuncTable())
	require.NoError(t, err)

	rt, err := c.NewRuntime(ctx, constModule(1), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Live())

	err = c.Close(ctx)
	var be *errors.Error
	require.True(t, stderrors.As(err, &be))
	assert.Equal(t, errors.KindInvalidState, be.Kind)

	rt.Close(ctx)
	rt.Close(ctx)
	assert.Zero(t, c.Live())
	assert.Equal(t, hostfn.DeterministicError, rt.Invoke(ctx, "main", nil).Err)

	require.NoError(t, c.Close(ctx))
	_, err = c.NewRuntime(ctx, constModule(1), 0, nil)
	assert.Error(t, err)
}

func TestNewContext_RequiresCaller(t *testing.T) {
	_, err := NewContext(context.Background(), engine.InterpreterEngine, nil)
	assert.Error(t, err)
}

func TestScriptDB(t *testing.T) {
	c, _ := newContext(t, engine.InterpreterEngine, WithCache(2))
	db := NewMemoryScriptDB()
	hash := db.Add(constModule(11))
	ctx := context.Background()

	rt, err := c.NewRuntimeFromDB(ctx, db, hash, 0, WithGas(100))
	require.NoError(t, err)
	defer rt.Close(ctx)
	res := rt.Invoke(ctx, "main", nil)
	require.True(t, res.OK(), "%v", res.Cause)
	assert.Equal(t, uint64(11), res.Value)
	assert.True(t, c.Cache().Contains(hash))

	_, err = c.NewRuntimeFromDB(ctx, db, linker.KeyOf([]byte("nope")), 0)
	var be *errors.Error
	require.True(t, stderrors.As(err, &be))
	assert.Equal(t, errors.KindNotFound, be.Kind)
}

func TestObserver_Outcomes(t *testing.T) {
	obs := &recorder{}
	c, _ := newContext(t, engine.InterpreterEngine, WithObserver(obs))
	rt := newRuntime(t, c, constModule(1), WithGas(100))

	rt.Invoke(context.Background(), "main", nil)
	assert.Equal(t, uint32(hostfn.None), obs.last.Load())
	rt.Invoke(context.Background(), "missing", nil)
	assert.Equal(t, uint32(hostfn.DeterministicError), obs.last.Load())
	assert.Equal(t, int32(2), obs.invoked.Load())
}
