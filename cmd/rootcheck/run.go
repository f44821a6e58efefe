package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/715d/rootcheck/internal/config"
	"github.com/715d/rootcheck/internal/progress"
	"github.com/715d/rootcheck/internal/report"
	"github.com/715d/rootcheck/internal/store"
	"github.com/715d/rootcheck/pkg/hazards"
)

type runFlags struct {
	store            string
	gcFunctions      string
	limitedFunctions string
	types            string
	batches          int
	batch            []int
	jobs             int
	summary          bool
	progress         bool
}

func newRunCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze the functions of the body store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return errWithCode(err, exitError)
			}
			f.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return errWithCode(err, exitError)
			}
			return runAnalysis(cmd, cfg, f.batch)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.store, "store", "", "Body store directory")
	flags.StringVar(&f.gcFunctions, "gc-functions", "", "GC function set (JSON)")
	flags.StringVar(&f.limitedFunctions, "limited-functions", "", "Limited function attributes (JSON)")
	flags.StringVar(&f.types, "types", "", "Type tables (JSON)")
	flags.IntVar(&f.batches, "batches", 0, "Split the store into this many batches")
	flags.IntSliceVar(&f.batch, "batch", nil, "Batches to analyze, 1-based (default all)")
	flags.IntVarP(&f.jobs, "jobs", "j", 0, "Batches analyzed concurrently (default one per CPU)")
	flags.BoolVar(&f.summary, "summary", true, "Print a summary table on stderr")
	flags.BoolVar(&f.progress, "progress", false, "Show a progress bar on stderr")
	return cmd
}

// apply overrides config values with the flags set on the command line.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("store") {
		cfg.Inputs.Store = f.store
	}
	if changed("gc-functions") {
		cfg.Inputs.GCFunctions = f.gcFunctions
	}
	if changed("limited-functions") {
		cfg.Inputs.LimitedFunctions = f.limitedFunctions
	}
	if changed("types") {
		cfg.Inputs.Types = f.types
	}
	if changed("batches") {
		cfg.Batch.Count = f.batches
	}
	if changed("jobs") {
		cfg.Batch.Jobs = f.jobs
	}
	if changed("summary") {
		cfg.Output.Summary = f.summary
	}
	if changed("progress") {
		cfg.Output.Progress = f.progress
	}
}

func runAnalysis(cmd *cobra.Command, cfg *config.Config, batches []int) error {
	analyzer, err := cfg.NewAnalyzer()
	if err != nil {
		return errWithCode(fmt.Errorf("load inputs: %w", err), exitError)
	}

	db, err := store.Open(store.Options{Dir: cfg.Inputs.Store, ReadOnly: true})
	if err != nil {
		return errWithCode(err, exitError)
	}
	defer db.Close()

	slog.Info("starting hazard analysis", "functions", db.Len(), "batches", cfg.Batch.Count, "selected", batches)

	runOpts := hazards.RunOptions{
		Count:   cfg.Batch.Count,
		Batches: batches,
		Jobs:    cfg.Batch.Jobs,
	}
	var tracker *progress.Tracker
	if cfg.Output.Progress {
		total, err := selectedFunctions(cfg.Batch.Count, batches, db.Len())
		if err != nil {
			return errWithCode(err, exitError)
		}
		tracker = progress.NewTracker("analyzing", total)
		runOpts.Progress = tracker
	}

	records, stats, err := analyzer.Run(cmd.Context(), db, runOpts)
	tracker.Finish()
	if err != nil {
		return errWithCode(fmt.Errorf("analyze: %w", err), exitError)
	}
	slog.Info("analysis completed", "functions", stats.Functions, "records", len(records), "dur", stats.Duration)

	format, err := report.ParseFormat(cfg.Output.Format)
	if err != nil {
		return errWithCode(err, exitError)
	}
	if err := report.NewWriter(cmd.OutOrStdout(), format, cfg.Output.Color).Write(records); err != nil {
		return errWithCode(fmt.Errorf("write records: %w", err), exitError)
	}

	failing := hazards.Failing(records)
	if cfg.Output.Summary && format == report.FormatText {
		if err := report.WriteSummary(cmd.ErrOrStderr(), stats, failing, cfg.Output.Color); err != nil {
			return errWithCode(err, exitError)
		}
	}
	if failing > 0 {
		return errWithCode(nil, exitHazardsFound)
	}
	return nil
}

// selectedFunctions counts the keys covered by the selected batches.
func selectedFunctions(count int, batches []int, n int) (int, error) {
	if len(batches) == 0 {
		return n, nil
	}
	total := 0
	for _, b := range batches {
		start, end, err := hazards.Partition(b, count, 1, n)
		if err != nil {
			return 0, err
		}
		total += max(end-start+1, 0)
	}
	return total, nil
}
