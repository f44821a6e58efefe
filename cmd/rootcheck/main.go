// Package main implements the CLI driver for the rootcheck hazard analysis.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/715d/rootcheck/internal/config"
)

// Options holds the command-line options shared by every subcommand.
type Options struct {
	Verbose    bool   // enables debug logging on stderr
	JSON       bool   // JSON records and JSON logs
	ConfigPath string // explicit config file
	Profile    bool   // enables CPU and memory profiling
	NoColor    bool   // disables colored text output
}

const (
	exitHazardsFound = 1
	exitError        = 2
)

var (
	// Set via ldflags during build.
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var opts Options

func main() {
	if err := newRootCommand().Execute(); err != nil {
		_ = teardown(nil, nil)
		if err.Error() != "" {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		var cErr codedError
		if errors.As(err, &cErr) {
			os.Exit(cErr.code)
		}
		os.Exit(exitError)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rootcheck",
		Short: "Find GC rooting hazards in compiled function bodies",
		Long: `rootcheck checks every function of a body store for values that hold a
raw GC pointer across a call that can trigger a collection.

It reports:
- Unrooted values live across a GC call, with the path that proves it
- Rooted values that are never live across a GC call
- Addresses of unrooted values that escape
- Functions annotated as having hazards in which none were found`,
		Example: `  rootcheck import bodies.jsonl          # Load function bodies into the store
  rootcheck run                           # Analyze every function
  rootcheck run --batches 8 --batch 3     # Analyze one of 8 batches
  rootcheck run --json > hazards.jsonl    # JSON records`,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
		SilenceUsage:       true,
		SilenceErrors:      true,
		Version:            version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("rootcheck version %s\n  commit: %s\n  built:  %s\n", version, gitCommit, buildTime))

	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "Config file (default: rootcheck.toml in the working directory)")
	rootCmd.PersistentFlags().BoolVar(&opts.Profile, "profile", false, "Enable CPU and memory profiling (writes cpu.prof and mem.prof to current directory)")
	rootCmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newRunCommand(), newImportCommand())
	return rootCmd
}

// loadConfig reads the config named by --config, or the standard config
// file of the working directory when there is none.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.Load(opts.ConfigPath)
	} else {
		cfg, err = config.LoadOrDefault(".")
	}
	if err != nil {
		return nil, err
	}
	if opts.JSON {
		cfg.Output.Format = "json"
	}
	if opts.NoColor {
		cfg.Output.Color = false
	}
	return cfg, nil
}

var cpuProfile *os.File

func setup(_ *cobra.Command, _ []string) error {
	// Disable logger unless verbose flag is set.
	slog.SetDefault(slog.New(slog.DiscardHandler))
	if opts.Verbose {
		hopts := &slog.HandlerOptions{Level: slog.LevelDebug}
		var handler slog.Handler = slog.NewTextHandler(os.Stderr, hopts)
		if opts.JSON {
			handler = slog.NewJSONHandler(os.Stderr, hopts)
		}
		slog.SetDefault(slog.New(handler))
	}

	if !opts.Profile {
		return nil
	}

	var err error
	cpuProfile, err = os.Create("cpu.prof")
	if err != nil {
		return fmt.Errorf("creating cpu.prof: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuProfile); err != nil {
		_ = cpuProfile.Close()
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	slog.Info("cpu profiling started", "file", "cpu.prof")
	return nil
}

func teardown(_ *cobra.Command, _ []string) error {
	if !opts.Profile || cpuProfile == nil {
		return nil
	}

	pprof.StopCPUProfile()
	defer cpuProfile.Close()
	cpuProfile = nil
	slog.Info("cpu profiling stopped", "file", "cpu.prof")

	memFile, err := os.Create("mem.prof")
	if err != nil {
		return fmt.Errorf("creating mem.prof: %w", err)
	}
	defer memFile.Close()
	runtime.GC() // Get up-to-date statistics
	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("writing memory profile: %w", err)
	}
	slog.Info("memory profiling completed", "file", "mem.prof")
	return nil
}

func errWithCode(err error, code int) error {
	return codedError{err: err, code: code}
}

type codedError struct {
	err  error
	code int
}

func (e codedError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return ""
}

func (e codedError) Unwrap() error { return e.err }
