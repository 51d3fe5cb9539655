package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/wasm"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.wasm>",
		Short: "List imports and exports and whether the bridge can serve them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read module: %w", err)
			}
			info, err := wasm.Inspect(code)
			if err != nil {
				return fmt.Errorf("inspect module: %w", err)
			}
			printInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
}

func printInfo(out io.Writer, info *wasm.Info) {
	fmt.Fprintln(out, "imports:")
	for _, imp := range info.FuncImports() {
		ft := wasm.FuncType{}
		if int(imp.TypeIdx) < len(info.Types) {
			ft = info.Types[imp.TypeIdx]
		}
		mark := "ok"
		if _, _, ok := importSignature(ft); !ok {
			mark = "unsupported"
		}
		fmt.Fprintf(out, "  %s.%s %s [%s]\n", imp.Module, imp.Name, ft, mark)
	}

	fmt.Fprintln(out, "exports:")
	for _, e := range info.Exports {
		if e.Kind != wasm.KindFunc {
			if e.Kind == wasm.KindMemory {
				fmt.Fprintf(out, "  %s memory\n", e.Name)
			}
			continue
		}
		ft, ok := callable(info, e)
		mark := "ok"
		if !ok {
			mark = "not invocable"
		}
		fmt.Fprintf(out, "  %s %s [%s]\n", e.Name, ft, mark)
	}

	if info.Start != nil {
		fmt.Fprintf(out, "start: func %d\n", *info.Start)
	}
	fmt.Fprintf(out, "memories: %d\n", info.Memories)
}
