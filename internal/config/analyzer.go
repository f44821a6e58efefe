package config

import (
	"fmt"
	"log/slog"

	"github.com/715d/rootcheck/pkg/hazards"
	"github.com/715d/rootcheck/pkg/oracle"
	"github.com/715d/rootcheck/pkg/suppress"
	"github.com/715d/rootcheck/pkg/typeinfo"
)

// NewAnalyzer loads the input tables named by c and builds an Analyzer.
// The GC function set and the type tables are required. An empty
// limited functions path means no function is limited.
func (c *Config) NewAnalyzer() (*hazards.Analyzer, error) {
	opts := c.OracleOptions()

	gcFunctions, err := oracle.LoadGCFunctions(c.Inputs.GCFunctions)
	if err != nil {
		return nil, err
	}
	opts.GCFunctions = gcFunctions

	if c.Inputs.LimitedFunctions != "" {
		limited, err := oracle.LoadLimitedFunctions(c.Inputs.LimitedFunctions)
		if err != nil {
			return nil, err
		}
		opts.LimitedFunctions = limited
	}

	tables, err := typeinfo.LoadFile(c.Inputs.Types)
	if err != nil {
		return nil, err
	}

	policy, err := suppress.NewPolicy(c.IgnoreOptions())
	if err != nil {
		return nil, fmt.Errorf("ignore policy: %w", err)
	}
	guards, err := c.AttrGuards()
	if err != nil {
		return nil, err
	}

	slog.Debug("analysis inputs loaded",
		"gc_functions", len(opts.GCFunctions),
		"limited_functions", len(opts.LimitedFunctions),
		"guards", len(guards))

	return hazards.NewAnalyzer(hazards.Options{
		Oracle:     oracle.New(opts),
		Classifier: typeinfo.NewClassifier(tables),
		Ignore:     policy,
		Guards:     guards,
	}), nil
}
