// Package harness runs the hazard analysis over golden test cases.
//
// A case is a directory holding the analysis inputs and an expected.yaml:
//
//	bodies.json              stream of functions, imported into a store
//	gc_functions.json        GC function set
//	types.json               type tables
//	limited_functions.json   optional function attributes
//	rootcheck.toml           optional config (guards, whitelists)
package harness

// Input file names within a case directory.
const (
	bodiesFile           = "bodies.json"
	gcFunctionsFile      = "gc_functions.json"
	typesFile            = "types.json"
	limitedFunctionsFile = "limited_functions.json"
	expectedFile         = "expected.yaml"
)

// TestCase is a single golden scenario.
type TestCase struct {
	// Dir is the case directory relative to the testdata root.
	Dir string `yaml:"-"`

	// Description says what the case covers.
	Description string `yaml:"description"`

	// Configurations are run independently over the same inputs.
	Configurations []Configuration `yaml:"configurations"`
}

// Configuration is one analysis run over a case.
type Configuration struct {
	// Name is a descriptive name for this configuration.
	Name string `yaml:"name"`

	// Batches splits the store into this many batches. Zero means one.
	Batches int `yaml:"batches,omitempty"`

	// IgnoreNames are extra variable name patterns to ignore.
	IgnoreNames []string `yaml:"ignore_names,omitempty"`

	// IgnoreTypes are extra type patterns to ignore.
	IgnoreTypes []string `yaml:"ignore_types,omitempty"`

	// Expected lists every record the run must produce.
	Expected []ExpectedRecord `yaml:"expected"`

	// ExpectedErrors lists substrings of an error the run may fail with.
	ExpectedErrors []string `yaml:"expected_errors,omitempty"`
}

// ExpectedRecord matches a hazards.Record by kind, function and variable.
type ExpectedRecord struct {
	Kind     string `yaml:"kind"`
	Function string `yaml:"function"`
	Variable string `yaml:"variable,omitempty"`

	// GC is the optional expected GC callee of unrooted and address records.
	GC string `yaml:"gc,omitempty"`

	// Line is the optional expected line of the record location.
	Line int `yaml:"line,omitempty"`
}
