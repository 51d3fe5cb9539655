package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/runtime"
)

type runFlags struct {
	stubs       []string
	limit       uint64
	repeat      int
	dumpMetrics bool
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run <file.wasm> [export]",
		Short: "Invoke an export (default \"main\")",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			export := "main"
			if len(args) == 2 {
				export = args[1]
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), args[0], export, f)
		},
	}

	cmd.Flags().StringArrayVar(&f.stubs, "stub", nil, "host import answer: module.name=value or module.name=!status")
	cmd.Flags().Uint64Var(&f.limit, "limit", 0, "per-call gas limit (0 draws from the runtime budget)")
	cmd.Flags().IntVar(&f.repeat, "repeat", 1, "number of invocations")
	cmd.Flags().BoolVar(&f.dumpMetrics, "metrics", false, "print metrics after the run (enables metrics)")

	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, file, export string, f runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stubs, err := parseStubs(f.stubs)
	if err != nil {
		return err
	}
	if f.dumpMetrics {
		a.cfg.Metrics.Enabled = true
	}

	s, err := a.openSession(ctx, file, stubs)
	if err != nil {
		return err
	}
	defer s.close(ctx)

	var limit *uint64
	if f.limit > 0 {
		limit = &f.limit
	}

	failed := 0
	for i := 0; i < max(f.repeat, 1); i++ {
		res := s.rt.Invoke(ctx, export, limit)
		printResult(out, export, res, s.rt.AvailableGas())
		if res.Err != hostfn.None && res.Err != hostfn.Return {
			failed++
		}
	}

	if f.dumpMetrics && s.metrics != nil {
		text, err := s.metrics.Dump()
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		_, _ = out.Write(text)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d invocations failed", failed, max(f.repeat, 1))
	}
	return nil
}

func printResult(out io.Writer, export string, res runtime.Result, available uint64) {
	fmt.Fprintf(out, "%s: %s", export, res.Err)
	if res.OK() {
		fmt.Fprintf(out, " value=%d", res.Value)
	}
	fmt.Fprintf(out, " gas_consumed=%d gas_left=%d\n", res.GasConsumed, available)
	if res.Cause != nil {
		fmt.Fprintf(out, "  cause: %v\n", res.Cause)
	}
}
