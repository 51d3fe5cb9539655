// Command wasm-bridge loads a WebAssembly module into the bridge, links host
// stubs for its imports and invokes exports under a gas budget.
//
// Usage:
//
//	wasm-bridge run [flags] <file.wasm> [export]
//	wasm-bridge inspect <file.wasm>
//	wasm-bridge interactive [flags] <file.wasm>
//
// Flags common to all commands:
//
//	--config   TOML configuration file
//	--engine   interpreter, compiler or wasmtime (overrides the config)
//	--gas      initial gas (overrides default_gas_limit)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/telemetry"
)

var version = "0.1.0"

type globalFlags struct {
	configPath string
	engine     string
	gas        uint64
	verbose    bool
}

// app is the state shared by every subcommand once PersistentPreRunE ran.
type app struct {
	flags globalFlags
	cfg   *config.Config
	log   *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "wasm-bridge",
		Short:         "Deterministic WASM host-call bridge",
		Long:          "Runs WebAssembly modules with u64 host imports under deterministic gas metering",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "TOML configuration file")
	pf.StringVar(&a.flags.engine, "engine", "", "engine: interpreter, compiler or wasmtime")
	pf.Uint64Var(&a.flags.gas, "gas", 0, "initial gas (0 uses default_gas_limit)")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newInteractiveCmd(a))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("engine") {
		cfg.Engine = a.flags.engine
	}
	if a.flags.gas > 0 {
		cfg.DefaultGasLimit = a.flags.gas
	}
	if a.flags.verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := telemetry.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	telemetry.Install(log)

	a.cfg = cfg
	a.log = log
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wasm-bridge v%s\n", version)
		},
	}
}
