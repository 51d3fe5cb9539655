package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/trampoline"
	"github.com/wippyai/wasm-bridge/wasm"
)

var i64s = []wasm.ValType{wasm.ValI64}

type bindings map[string]Binding

func (b bindings) Resolve(module, name string) (Binding, bool) {
	v, ok := b[module+"#"+name]
	return v, ok
}

type harness struct {
	table *trampoline.FuncTable
	binds bindings
}

func newHarness() *harness {
	return &harness{table: trampoline.NewFuncTable(), binds: bindings{}}
}

func (h *harness) bind(module, name string, arity uint8, ret hostfn.ReturnKind, fn trampoline.Func) {
	sig := hostfn.Signature{Module: module, Name: name, Arity: arity, Return: ret}
	h.binds[sig.Key()] = Binding{Sig: sig, Entry: h.table.Register(arity, fn)}
}

func (h *harness) store(user trampoline.UserContext) *Store {
	return &Store{Caller: h.table, Bindings: h.binds, User: user}
}

func (h *harness) instantiate(t *testing.T, e Engine, code []byte, fuel uint64) Instance {
	t.Helper()
	ctx := context.Background()
	mod, err := e.Compile(ctx, code)
	require.NoError(t, err)
	tpl, err := mod.Prepare(ctx, h.binds)
	require.NoError(t, err)
	inst, err := tpl.Instantiate(ctx, h.store(7), fuel)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Close(ctx) })
	return inst
}

func forEachEngine(t *testing.T, fn func(t *testing.T, e Engine)) {
	for _, kind := range Available() {
		t.Run(kind.String(), func(t *testing.T) {
			e, err := New(context.Background(), kind, Config{})
			require.NoError(t, err)
			defer e.Close(context.Background())
			assert.Equal(t, kind, e.Kind())
			fn(t, e)
		})
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{InterpreterEngine, CompilerEngineA, CompilerEngineB} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("jit")
	assert.Error(t, err)
}

func TestHostCall_AllArities(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		h := newHarness()
		b := wasm.NewBuilder()
		var imports []uint32
		for n := 0; n <= hostfn.MaxArity; n++ {
			arity := n
			params := make([]wasm.ValType, n)
			for i := range params {
				params[i] = wasm.ValI64
			}
			name := fmt.Sprintf("f%d", n)
			imports = append(imports, b.ImportFunc("env", name, params, i64s))
			h.bind("env", name, uint8(n), hostfn.U64, func(ctx trampoline.UserContext, args []uint64) hostfn.TrampolineResult {
				if ctx != 7 || len(args) != arity {
					return hostfn.Fail(hostfn.Unrecoverable)
				}
				sum := uint64(100 * arity)
				for _, a := range args {
					sum += a
				}
				return hostfn.Ok(sum)
			})
		}
		for n, imp := range imports {
			var code [][]byte
			for i := 1; i <= n; i++ {
				code = append(code, wasm.I64Const(int64(i)))
			}
			code = append(code, wasm.Call(imp))
			b.ExportFunc(fmt.Sprintf("call%d", n), b.Func(nil, i64s, nil, code...))
		}

		inst := h.instantiate(t, e, b.Bytes(), 1_000_000)
		for n := 0; n <= hostfn.MaxArity; n++ {
			v, err := inst.Call(context.Background(), fmt.Sprintf("call%d", n))
			require.NoError(t, err)
			assert.Equal(t, uint64(100*n+n*(n+1)/2), v, "arity %d", n)
		}
	})
}

func TestHostCall_VoidDiscardsResult(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		h := newHarness()
		var got []uint64
		h.bind("env", "log", 2, hostfn.Void, func(_ trampoline.UserContext, args []uint64) hostfn.TrampolineResult {
			got = append(got, args...)
			return hostfn.Ok(999)
		})
		b := wasm.NewBuilder()
		log := b.ImportFunc("env", "log", []wasm.ValType{wasm.ValI64, wasm.ValI64}, nil)
		b.ExportFunc("main", b.Func(nil, i64s, nil,
			wasm.I64Const(3), wasm.I64Const(4), wasm.Call(log), wasm.I64Const(5)))

		inst := h.instantiate(t, e, b.Bytes(), 1_000_000)
		v, err := inst.Call(context.Background(), "main")
		require.NoError(t, err)
		assert.Equal(t, uint64(5), v)
		assert.Equal(t, []uint64{3, 4}, got)
	})
}

func TestHostCall_RaisedStatus(t *testing.T) {
	cases := []struct {
		status uint8
		want   hostfn.InvokeError
	}{
		{uint8(hostfn.ReturnSuccess), hostfn.Return},
		{uint8(hostfn.OutOfGas), hostfn.OutOfGasError},
		{uint8(hostfn.Unrecoverable), hostfn.UnrecoverableError},
		{42, hostfn.UnrecoverableError},
	}
	forEachEngine(t, func(t *testing.T, e Engine) {
		for _, tc := range cases {
			h := newHarness()
			status := tc.status
			h.bind("env", "raise", 0, hostfn.U64, func(trampoline.UserContext, []uint64) hostfn.TrampolineResult {
				return hostfn.TrampolineResult{Result: 1, Status: status}
			})
			b := wasm.NewBuilder()
			raise := b.ImportFunc("env", "raise", nil, i64s)
			b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.Call(raise)))

			inst := h.instantiate(t, e, b.Bytes(), 1_000_000)
			_, err := inst.Call(context.Background(), "main")
			require.Error(t, err)
			assert.Equal(t, tc.want, e.Classify(err), "status %d", tc.status)

			var he *hostfn.HostError
			require.True(t, stderrors.As(err, &he))
			assert.Equal(t, tc.status, he.Raw)
		}
	})
}

func TestClassify_Traps(t *testing.T) {
	cases := map[string][][]byte{
		"unreachable": {wasm.Op(wasm.OpUnreachable), wasm.I64Const(0)},
		"div by zero": {wasm.I64Const(1), wasm.I64Const(0), wasm.Op(wasm.OpI64DivU)},
		"oob load":    {wasm.I32Const(70000), wasm.I64Load(0)},
	}
	forEachEngine(t, func(t *testing.T, e Engine) {
		for name, code := range cases {
			b := wasm.NewBuilder()
			b.Memory(1, nil)
			b.ExportFunc("main", b.Func(nil, i64s, nil, code...))

			inst := newHarness().instantiate(t, e, b.Bytes(), 1_000_000)
			_, err := inst.Call(context.Background(), "main")
			require.Error(t, err, name)
			assert.Equal(t, hostfn.DeterministicError, e.Classify(err), name)
		}
	})
}

func TestClassify_StackOverflow(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		if e.Kind() == CompilerEngineA {
			t.Skip("compiler grows its stack far past any practical fuel budget")
		}
		b := wasm.NewBuilder()
		// func 0 calls itself forever
		self := b.Func(nil, i64s, nil, wasm.Call(0))
		b.ExportFunc("main", self)

		inst := newHarness().instantiate(t, e, b.Bytes(), 1<<40)
		_, err := inst.Call(context.Background(), "main")
		require.Error(t, err)
		assert.Equal(t, hostfn.UnrecoverableError, e.Classify(err))
	})
}

func TestFuel_ExhaustionIsOutOfGas(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		b := wasm.NewBuilder()
		b.ExportFunc("spin", b.Func(nil, i64s, nil,
			wasm.Loop(), wasm.Br(0), wasm.Op(wasm.OpEnd), wasm.I64Const(0)))

		inst := newHarness().instantiate(t, e, b.Bytes(), 10_000)
		_, err := inst.Call(context.Background(), "spin")
		require.Error(t, err)
		assert.Equal(t, hostfn.OutOfGasError, e.Classify(err))
		assert.Zero(t, inst.Available())
	})
}

func TestFuel_ChargedAndSettable(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		b := wasm.NewBuilder()
		b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.I64Const(1), wasm.I64Const(2), wasm.Op(wasm.OpI64Add)))

		inst := newHarness().instantiate(t, e, b.Bytes(), 1000)
		_, err := inst.Call(context.Background(), "main")
		require.NoError(t, err)
		assert.Less(t, inst.Available(), uint64(1000))

		inst.SetAvailable(0)
		assert.Zero(t, inst.Available())
		_, err = inst.Call(context.Background(), "main")
		assert.Equal(t, hostfn.OutOfGasError, e.Classify(err))

		inst.SetAvailable(500)
		assert.Equal(t, uint64(500), inst.Available())
		v, err := inst.Call(context.Background(), "main")
		require.NoError(t, err)
		assert.Equal(t, uint64(3), v)
	})
}

func TestFuel_InterpreterAndCompilerAgree(t *testing.T) {
	ctx := context.Background()
	b := wasm.NewBuilder()
	// sum 1..100 with a loop
	b.ExportFunc("main", b.Func(nil, i64s, []wasm.ValType{wasm.ValI64, wasm.ValI64},
		wasm.I64Const(100), wasm.LocalSet(0),
		wasm.Loop(),
		wasm.LocalGet(1), wasm.LocalGet(0), wasm.Op(wasm.OpI64Add), wasm.LocalSet(1),
		wasm.LocalGet(0), wasm.I64Const(1), wasm.Op(wasm.OpI64Sub), wasm.LocalSet(0),
		wasm.LocalGet(0), wasm.Op(0x50), // i64.eqz
		wasm.Op(wasm.OpI32Eqz), wasm.BrIf(0),
		wasm.Op(wasm.OpEnd),
		wasm.LocalGet(1)))
	code := b.Bytes()

	var remaining []uint64
	for _, kind := range []Kind{InterpreterEngine, CompilerEngineA} {
		e, err := New(ctx, kind, Config{})
		require.NoError(t, err)
		inst := newHarness().instantiate(t, e, code, 1_000_000)
		v, err := inst.Call(ctx, "main")
		require.NoError(t, err)
		assert.Equal(t, uint64(5050), v)
		remaining = append(remaining, inst.Available())
		_ = e.Close(ctx)
	}
	assert.Equal(t, remaining[0], remaining[1])
}

func TestMemory_View(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		b := wasm.NewBuilder()
		b.Memory(1, nil).ExportMemory("memory")
		b.ExportFunc("main", b.Func(nil, i64s, nil,
			wasm.I32Const(8), wasm.I64Const(0x0102), wasm.I64Store(0), wasm.I64Const(0)))

		inst := newHarness().instantiate(t, e, b.Bytes(), 1_000_000)
		_, err := inst.Call(context.Background(), "main")
		require.NoError(t, err)

		mem := inst.Memory()
		require.Len(t, mem, 65536)
		assert.Equal(t, byte(0x02), mem[8])
		assert.Equal(t, byte(0x01), mem[9])
	})
}

func TestMemory_NoneDeclared(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		b := wasm.NewBuilder()
		b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.I64Const(0)))
		inst := newHarness().instantiate(t, e, b.Bytes(), 1000)
		_, err := inst.Call(context.Background(), "main")
		require.NoError(t, err)
		assert.NotPanics(t, func() { assert.Nil(t, inst.Memory()) })
	})
}

func TestConfig_MemoryLimitPages(t *testing.T) {
	cases := map[uint32]uint32{
		0:      MaxMemoryPages,
		1:      1,
		65535:  65535,
		65536:  MaxMemoryPages,
		100000: MaxMemoryPages,
	}
	for in, want := range cases {
		assert.Equal(t, want, Config{MemoryLimitPages: in}.memoryLimitPages(), "pages %d", in)
	}
}

func TestStartFunction(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		b := wasm.NewBuilder()
		b.Memory(1, nil).ExportMemory("memory")
		start := b.Func(nil, nil, nil, wasm.I32Const(0), wasm.I64Const(5), wasm.I64Store(0))
		b.Start(start)
		b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.I32Const(0), wasm.I64Load(0)))

		inst := newHarness().instantiate(t, e, b.Bytes(), 1_000_000)
		v, err := inst.Call(context.Background(), "main")
		require.NoError(t, err)
		assert.Equal(t, uint64(5), v)
	})
}

func TestStartFunction_OutOfFuel(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		b := wasm.NewBuilder()
		start := b.Func(nil, nil, nil, wasm.Loop(), wasm.Br(0), wasm.Op(wasm.OpEnd))
		b.Start(start)

		mod, err := e.Compile(ctx, b.Bytes())
		require.NoError(t, err)
		tpl, err := mod.Prepare(ctx, bindings{})
		require.NoError(t, err)
		inst, err := tpl.Instantiate(ctx, newHarness().store(0), 1000)

		var se *StartError
		require.True(t, stderrors.As(err, &se), "got %v", err)
		require.NotNil(t, inst)
		assert.Equal(t, hostfn.OutOfGasError, e.Classify(err))
		assert.Zero(t, inst.Available())
	})
}

func TestPrepare_MissingImports(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		h := newHarness()
		h.bind("env", "present", 0, hostfn.U64, func(trampoline.UserContext, []uint64) hostfn.TrampolineResult {
			return hostfn.Ok(0)
		})
		b := wasm.NewBuilder()
		b.ImportFunc("env", "present", nil, i64s)
		b.ImportFunc("env", "absent", nil, i64s)
		b.ImportFunc("other", "gone", []wasm.ValType{wasm.ValI64}, nil)

		mod, err := e.Compile(ctx, b.Bytes())
		require.NoError(t, err)
		assert.Len(t, mod.Imports(), 3)

		_, err = mod.Prepare(ctx, h.binds)
		var missing *errors.MissingImportsError
		require.True(t, stderrors.As(err, &missing), "got %v", err)
		assert.Len(t, missing.Imports, 2)
	})
}

func TestPrepare_SignatureMismatch(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		h := newHarness()
		h.bind("env", "f", 2, hostfn.U64, func(trampoline.UserContext, []uint64) hostfn.TrampolineResult {
			return hostfn.Ok(0)
		})
		b := wasm.NewBuilder()
		b.ImportFunc("env", "f", []wasm.ValType{wasm.ValI64}, i64s)

		mod, err := e.Compile(ctx, b.Bytes())
		require.NoError(t, err)
		_, err = mod.Prepare(ctx, h.binds)
		var be *errors.Error
		require.True(t, stderrors.As(err, &be))
		assert.Equal(t, errors.KindTypeMismatch, be.Kind)
	})
}

func TestCall_ExportErrors(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		b := wasm.NewBuilder()
		b.ExportFunc("takes_arg", b.Func(i64s, i64s, nil, wasm.LocalGet(0)))
		inst := newHarness().instantiate(t, e, b.Bytes(), 1000)

		_, err := inst.Call(context.Background(), "nope")
		var be *errors.Error
		require.True(t, stderrors.As(err, &be))
		assert.Equal(t, errors.KindNotFound, be.Kind)

		_, err = inst.Call(context.Background(), "takes_arg")
		require.True(t, stderrors.As(err, &be))
		assert.Equal(t, errors.KindTypeMismatch, be.Kind)

		_, err = inst.Call(context.Background(), wasm.FuelExport)
		require.True(t, stderrors.As(err, &be))
		assert.Equal(t, errors.KindNotFound, be.Kind)
	})
}

func TestCompile_RejectsInvalid(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		_, err := e.Compile(context.Background(), []byte("garbage"))
		assert.Error(t, err)

		b := wasm.NewBuilder()
		b.ExportFunc("simd", b.Func(nil, nil, nil, []byte{wasm.OpPrefixSIMD, 0x0C}))
		_, err = e.Compile(context.Background(), b.Bytes())
		assert.Error(t, err)
	})
}

func TestTemplate_SharedAcrossStores(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e Engine) {
		ctx := context.Background()
		h := newHarness()
		h.bind("env", "who", 0, hostfn.U64, func(c trampoline.UserContext, _ []uint64) hostfn.TrampolineResult {
			return hostfn.Ok(uint64(c))
		})
		b := wasm.NewBuilder()
		who := b.ImportFunc("env", "who", nil, i64s)
		b.ExportFunc("main", b.Func(nil, i64s, nil, wasm.Call(who)))

		mod, err := e.Compile(ctx, b.Bytes())
		require.NoError(t, err)
		tpl, err := mod.Prepare(ctx, h.binds)
		require.NoError(t, err)

		for _, user := range []trampoline.UserContext{11, 22} {
			inst, err := tpl.Instantiate(ctx, h.store(user), 1000)
			require.NoError(t, err)
			v, err := inst.Call(ctx, "main")
			require.NoError(t, err)
			assert.Equal(t, uint64(user), v)
			_ = inst.Close(ctx)
		}
	})
}
