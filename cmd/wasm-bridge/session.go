package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/linker"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/telemetry"
	"github.com/wippyai/wasm-bridge/trampoline"
	"github.com/wippyai/wasm-bridge/wasm"
)

// stub describes the canned answer of one host import.
type stub struct {
	status hostfn.HostFnError
	value  uint64
}

// parseStubs reads "module.name=value" or "module.name=!STATUS" entries.
func parseStubs(specs []string) (map[string]stub, error) {
	out := make(map[string]stub, len(specs))
	for _, s := range specs {
		target, answer, ok := strings.Cut(s, "=")
		if !ok || !strings.Contains(target, ".") {
			return nil, fmt.Errorf("stub %q: want module.name=value", s)
		}
		if status, isStatus := strings.CutPrefix(answer, "!"); isStatus {
			st, err := parseStatus(status)
			if err != nil {
				return nil, fmt.Errorf("stub %q: %w", s, err)
			}
			out[target] = stub{status: st}
			continue
		}
		v, err := strconv.ParseUint(answer, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("stub %q: %w", s, err)
		}
		out[target] = stub{value: v}
	}
	return out, nil
}

func parseStatus(name string) (hostfn.HostFnError, error) {
	for b := 0; b <= int(hostfn.Unrecoverable); b++ {
		st, ok := hostfn.ParseStatus(uint8(b))
		if ok && strings.EqualFold(st.String(), name) {
			return st, nil
		}
	}
	if n, err := strconv.ParseUint(name, 0, 8); err == nil {
		return hostfn.HostFnError(n), nil
	}
	return 0, fmt.Errorf("unknown host status %q", name)
}

// importSignature maps a function import onto the bridge ABI. Only i64
// parameters and at most one i64 result can be bridged.
func importSignature(ft wasm.FuncType) (uint8, hostfn.ReturnKind, bool) {
	if len(ft.Params) > hostfn.MaxArity || len(ft.Results) > 1 {
		return 0, 0, false
	}
	for _, p := range ft.Params {
		if p != wasm.ValI64 {
			return 0, 0, false
		}
	}
	ret := hostfn.Void
	if len(ft.Results) == 1 {
		if ft.Results[0] != wasm.ValI64 {
			return 0, 0, false
		}
		ret = hostfn.U64
	}
	return uint8(len(ft.Params)), ret, true
}

// callable reports whether an export can be invoked through the bridge:
// a function taking nothing and returning one i64.
func callable(info *wasm.Info, e wasm.Export) (wasm.FuncType, bool) {
	if e.Kind != wasm.KindFunc {
		return wasm.FuncType{}, false
	}
	ft, ok := info.FuncType(e.Index)
	if !ok || len(ft.Params) != 0 || len(ft.Results) != 1 {
		return ft, false
	}
	return ft, ft.Results[0] == wasm.ValI64
}

// session owns a context, its runtime and the stubs linked for it.
type session struct {
	file    string
	info    *wasm.Info
	table   *trampoline.FuncTable
	ctx     *runtime.Context
	rt      *runtime.Runtime
	metrics *telemetry.Metrics
	log     *zap.Logger
}

func (a *app) openSession(ctx context.Context, file string, stubs map[string]stub) (*session, error) {
	code, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	info, err := wasm.Inspect(code)
	if err != nil {
		return nil, fmt.Errorf("inspect module: %w", err)
	}

	kind, err := a.cfg.EngineKind()
	if err != nil {
		return nil, err
	}

	s := &session{
		file:  file,
		info:  info,
		table: trampoline.NewFuncTable(),
		log:   a.log.Named("cli"),
	}
	opts := []runtime.ContextOption{
		runtime.WithCache(a.cfg.CacheSize),
		runtime.WithEngineConfig(a.cfg.EngineConfig()),
	}
	if a.cfg.Metrics.Enabled {
		s.metrics = telemetry.NewMetrics(a.cfg.Metrics.Namespace)
		opts = append(opts, runtime.WithObserver(s.metrics))
	}

	s.ctx, err = runtime.NewContext(ctx, kind, s.table, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.linkStubs(stubs); err != nil {
		_ = s.ctx.Close(ctx)
		return nil, err
	}

	key := linker.KeyOf(code)
	s.rt, err = s.ctx.NewRuntime(ctx, code, 0, &key, runtime.WithGas(a.cfg.DefaultGasLimit))
	if err != nil {
		_ = s.ctx.Close(ctx)
		return nil, err
	}
	return s, nil
}

// linkStubs binds every bridgeable function import. Imports with other
// signatures stay unlinked and surface as a link failure on first invoke.
func (s *session) linkStubs(stubs map[string]stub) error {
	for _, imp := range s.info.FuncImports() {
		if int(imp.TypeIdx) >= len(s.info.Types) {
			continue
		}
		arity, ret, ok := importSignature(s.info.Types[imp.TypeIdx])
		if !ok {
			s.log.Warn("import not bridgeable",
				zap.String("module", imp.Module),
				zap.String("name", imp.Name),
				zap.Stringer("type", s.info.Types[imp.TypeIdx]))
			continue
		}

		target := imp.Module + "." + imp.Name
		answer := stubs[target]
		log := s.log.With(zap.String("import", target))
		entry := s.table.Register(arity, func(_ trampoline.UserContext, args []uint64) hostfn.TrampolineResult {
			log.Debug("host call", zap.Uint64s("args", args), zap.Stringer("status", answer.status))
			if answer.status != hostfn.NoneOrRecoverable {
				return hostfn.Fail(answer.status)
			}
			return hostfn.Ok(answer.value)
		})
		if err := s.ctx.Link(imp.Module, imp.Name, arity, ret, entry); err != nil {
			return err
		}
	}
	return nil
}

// exports lists the invocable exports in name order.
func (s *session) exports() []wasm.Export {
	var out []wasm.Export
	for _, e := range s.info.Exports {
		if _, ok := callable(s.info, e); ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *session) close(ctx context.Context) {
	if s.rt != nil {
		s.rt.Close(ctx)
	}
	if s.ctx != nil {
		if err := s.ctx.Close(ctx); err != nil {
			s.log.Warn("close context", zap.Error(err))
		}
	}
}
