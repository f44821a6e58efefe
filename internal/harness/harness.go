package harness

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/rootcheck/pkg/hazards"
)

// TestHarness manages test execution.
type TestHarness struct {
	// root is the root directory for test data
	root string
}

// NewHarness creates a new test harness.
func NewHarness(root string) *TestHarness {
	return &TestHarness{root: root}
}

// Run executes a test case with all its configurations.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	require.NotEmpty(t, tc.Configurations, "test case has no configurations")

	dir := filepath.Join(h.root, tc.Dir)
	db := OpenStore(t, dir)

	var results []ConfigurationResult
	allSuccess := true
	for _, cfg := range tc.Configurations {
		cfgResult := h.runConfiguration(t, dir, db, cfg)
		results = append(results, *cfgResult)
		if !cfgResult.Success {
			allSuccess = false
		}
	}

	var resultMsg string
	if allSuccess {
		resultMsg = fmt.Sprintf("All %d configurations passed", len(tc.Configurations))
	} else {
		failedCount := 0
		var msgs []string
		for _, cr := range results {
			if !cr.Success {
				failedCount++
				msgs = append(msgs, fmt.Sprintf("[%s] %s:\n  %s",
					cr.Configuration.Name, cr.Message, strings.Join(cr.Details, "\n  ")))
			}
		}
		resultMsg = fmt.Sprintf("%d/%d configurations failed:\n%s",
			failedCount, len(tc.Configurations), strings.Join(msgs, "\n"))
	}

	return &TestResult{
		TestCase:             tc,
		ConfigurationResults: results,
		Success:              allSuccess,
		Message:              resultMsg,
	}
}

// runConfiguration analyzes the whole store under one configuration.
func (h *TestHarness) runConfiguration(t *testing.T, dir string, db hazards.Store, cfg Configuration) *ConfigurationResult {
	t.Helper()

	conf := LoadConfig(t, dir)
	conf.Ignore.Names = append(conf.Ignore.Names, cfg.IgnoreNames...)
	conf.Ignore.Types = append(conf.Ignore.Types, cfg.IgnoreTypes...)
	if cfg.Batches > 0 {
		conf.Batch.Count = cfg.Batches
	}

	records, err := h.analyze(t, conf.NewAnalyzer, db, conf.Batch.Count)
	if err != nil {
		for _, expectedErr := range cfg.ExpectedErrors {
			if strings.Contains(err.Error(), expectedErr) {
				return &ConfigurationResult{
					Configuration: cfg,
					Success:       true,
					Message:       fmt.Sprintf("Got expected error: %v", err),
				}
			}
		}
		require.NoError(t, err)
	}
	if len(cfg.ExpectedErrors) > 0 {
		return &ConfigurationResult{
			Configuration: cfg,
			Records:       records,
			Message:       "Expected an error, got none",
			Details:       cfg.ExpectedErrors,
		}
	}

	cfgResult := &ConfigurationResult{Configuration: cfg, Records: records}
	if err := validateExpectedRecords(cfg.Expected); err != nil {
		cfgResult.Message = fmt.Sprintf("Invalid expected.yaml: %v", err)
		cfgResult.Details = []string{err.Error()}
		return cfgResult
	}
	validateResults(cfgResult, cfg.Expected, records)
	return cfgResult
}

func (h *TestHarness) analyze(t *testing.T, build func() (*hazards.Analyzer, error), db hazards.Store, count int) ([]hazards.Record, error) {
	t.Helper()
	analyzer, err := build()
	if err != nil {
		return nil, err
	}
	records, _, err := analyzer.Run(t.Context(), db, hazards.RunOptions{Count: count})
	return records, err
}

// ConfigurationResult represents the result of running a single configuration.
type ConfigurationResult struct {
	// Configuration is the configuration that was run.
	Configuration Configuration

	// Records is the raw result from the analyzer.
	Records []hazards.Record

	// Success indicates if this configuration passed.
	Success bool

	// Message provides a summary of the result for this configuration.
	Message string

	// Details provides detailed information about failures for this configuration.
	Details []string
}

// TestResult represents the result of running a test case.
type TestResult struct {
	// TestCase is the test case that was run.
	TestCase *TestCase

	// ConfigurationResults contains results for each configuration.
	ConfigurationResults []ConfigurationResult

	// Success indicates if the test passed (all configurations passed)
	Success bool

	// Message provides a summary of the result.
	Message string
}

func recordKey(kind, function, variable string) string {
	return kind + " " + function + " " + variable
}

// validateExpectedRecords checks that expected records name a known kind
// and a function.
func validateExpectedRecords(expected []ExpectedRecord) error {
	for i, exp := range expected {
		if strings.TrimSpace(exp.Function) == "" {
			return fmt.Errorf("expected record at index %d has empty or missing 'function' field", i)
		}
		known := false
		for _, kind := range hazards.Kinds {
			if exp.Kind == string(kind) {
				known = true
			}
		}
		if !known {
			return fmt.Errorf("expected record at index %d has unknown kind %q", i, exp.Kind)
		}
	}
	return nil
}

func validateResults(cfgResult *ConfigurationResult, expected []ExpectedRecord, actual []hazards.Record) {
	expectedMap := make(map[string]ExpectedRecord)
	for _, e := range expected {
		expectedMap[recordKey(e.Kind, e.Function, e.Variable)] = e
	}

	actualMap := make(map[string]*hazards.Record)
	for i := range actual {
		r := &actual[i]
		actualMap[recordKey(string(r.Kind), r.Function, r.Variable())] = r
	}

	var details []string
	success := true

	var missing []string
	for key := range expectedMap {
		if _, found := actualMap[key]; !found {
			missing = append(missing, key)
			success = false
		}
	}

	var unexpected []string
	for key := range actualMap {
		if _, found := expectedMap[key]; !found {
			unexpected = append(unexpected, key)
			success = false
		}
	}

	sort.Strings(missing)
	sort.Strings(unexpected)
	for _, m := range missing {
		details = append(details, "Should have been reported: "+m)
	}
	for _, u := range unexpected {
		details = append(details, "Should not have been reported: "+u)
	}

	for key, exp := range expectedMap {
		act, found := actualMap[key]
		if !found {
			continue
		}
		if exp.Line != 0 && act.Location().Line != exp.Line {
			details = append(details, fmt.Sprintf("Line mismatch for %s: expected %d, got %d",
				key, exp.Line, act.Location().Line))
			success = false
		}
		if exp.GC != "" && gcCallee(act) != exp.GC {
			details = append(details, fmt.Sprintf("GC mismatch for %s: expected %q, got %q",
				key, exp.GC, gcCallee(act)))
			success = false
		}
	}
	sort.Strings(details)

	var message string
	if success {
		message = fmt.Sprintf("All %d expected records found", len(expected))
	} else {
		message = fmt.Sprintf("Test failed: %d missing, %d unexpected", len(missing), len(unexpected))
	}

	cfgResult.Success = success
	cfgResult.Message = message
	cfgResult.Details = details
}

func gcCallee(r *hazards.Record) string {
	switch {
	case r.Hazard != nil:
		return r.Hazard.GC.Callee
	case r.AddressTaken != nil && r.AddressTaken.GC != nil:
		return r.AddressTaken.GC.Callee
	}
	return ""
}
