package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pgavlin/warpvm/cmd/warpvm/abi"
	"github.com/pgavlin/warpvm/cmd/warpvm/dump"
	"github.com/pgavlin/warpvm/cmd/warpvm/run"
	"github.com/pgavlin/warpvm/exec"
)

var version = "<unknown>"

func configureCLI() *cobra.Command {
	var cpuProfile string
	var memProfile string
	var verbose bool

	rootCommand := &cobra.Command{
		Use:           "warpvm",
		Short:         "warpvm table runtime",
		Long:          "warpvm - drive WebAssembly tables from table scripts",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				exec.SetLogger(logger)
			}

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return err
				}
				pprof.StartCPUProfile(f)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			exec.Logger().Sync()

			if cpuProfile != "" {
				pprof.StopCPUProfile()
			}

			if memProfile != "" {
				f, err := os.Create(memProfile)
				if err != nil {
					return err
				}
				runtime.GC()
				pprof.WriteHeapProfile(f)
			}

			return nil
		},
	}

	rootCommand.AddCommand(abi.Command())
	rootCommand.AddCommand(dump.Command())
	rootCommand.AddCommand(run.Command())

	rootCommand.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log table events to stderr")
	rootCommand.PersistentFlags().StringVar(&cpuProfile, "cpu", "", "emit Go CPU profile data to this path")
	rootCommand.PersistentFlags().StringVar(&memProfile, "mem", "", "emit Go memory profile data to this path")

	rootCommand.PersistentFlags().MarkHidden("cpu")
	rootCommand.PersistentFlags().MarkHidden("mem")

	return rootCommand
}

func main() {
	rootCommand := configureCLI()

	if err := rootCommand.Execute(); err != nil {
		var trap *exec.Trap
		if errors.As(err, &trap) {
			fmt.Fprintf(os.Stderr, "trap: %v\n", trap)
			os.Exit(2)
		}

		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
