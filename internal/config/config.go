// Package config loads rootcheck settings from TOML, YAML or JSON files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/715d/rootcheck/pkg/attrs"
	"github.com/715d/rootcheck/pkg/oracle"
	"github.com/715d/rootcheck/pkg/suppress"
)

// Config holds all configuration options for rootcheck.
type Config struct {
	// Input tables and the body store
	Inputs InputConfig `koanf:"inputs"`

	// Batch splitting and parallelism
	Batch BatchConfig `koanf:"batch"`

	// Whitelists for calls the GC function set cannot resolve
	Oracle OracleConfig `koanf:"oracle"`

	// RAII guards that suppress collection in their scope
	Guards []GuardConfig `koanf:"guards"`

	// Variables exempt from checking
	Ignore IgnoreConfig `koanf:"ignore"`

	// Output settings
	Output OutputConfig `koanf:"output"`
}

// InputConfig locates the analysis inputs.
type InputConfig struct {
	GCFunctions      string `koanf:"gc_functions"`
	LimitedFunctions string `koanf:"limited_functions"`
	Types            string `koanf:"types"`
	Store            string `koanf:"store"`
}

// BatchConfig splits the function key range.
type BatchConfig struct {
	Count int `koanf:"count"`
	Jobs  int `koanf:"jobs"` // 0 means one per CPU
}

// IndirectConfig whitelists function pointer variables within a function.
// Function may be "*" to match every function.
type IndirectConfig struct {
	Function  string   `koanf:"function"`
	Variables []string `koanf:"variables"`
}

// OracleConfig whitelists unresolved calls.
type OracleConfig struct {
	IndirectCannotGC []IndirectConfig `koanf:"indirect_cannot_gc"`
	FieldCannotGC    []string         `koanf:"field_cannot_gc"` // class.field
}

// GuardConfig is an RAII guard type and the attributes it sets.
type GuardConfig struct {
	Type  string   `koanf:"type"`
	Attrs []string `koanf:"attrs"`
}

// IgnoreConfig controls the variable ignore policy.
type IgnoreConfig struct {
	HolderSuffix string   `koanf:"holder_suffix"`
	Names        []string `koanf:"names"`
	Types        []string `koanf:"types"`
}

// OutputConfig controls reporting.
type OutputConfig struct {
	Format   string `koanf:"format"` // text, json
	Color    bool   `koanf:"color"`
	Summary  bool   `koanf:"summary"`
	Progress bool   `koanf:"progress"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Inputs: InputConfig{
			GCFunctions:      "gcFunctions.json",
			LimitedFunctions: "limitedFunctions.json",
			Types:            "typeInfo.json",
			Store:            ".rootcheck/bodies",
		},
		Batch: BatchConfig{
			Count: 1,
		},
		Guards: []GuardConfig{
			{Type: "js::AutoSuppressGC", Attrs: []string{"gc-suppressed"}},
			{Type: "JS::AutoSuppressGCAnalysis", Attrs: []string{"gc-suppressed"}},
			{Type: "JS::AutoAssertNoGC", Attrs: []string{"gc-suppressed"}},
		},
		Ignore: IgnoreConfig{
			HolderSuffix: suppress.DefaultHolderSuffix,
		},
		Output: OutputConfig{
			Format:   "text",
			Color:    true,
			Summary:  true,
			Progress: false,
		},
	}
}

// Load loads configuration from a file over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// configNames are searched in the working directory, in order.
var configNames = []string{
	"rootcheck.toml",
	"rootcheck.yaml",
	"rootcheck.yml",
	"rootcheck.json",
	".rootcheck.toml",
	".rootcheck.yaml",
	".rootcheck.yml",
	".rootcheck.json",
}

// LoadOrDefault loads the first standard config file found in dir, or
// returns the defaults when there is none.
func LoadOrDefault(dir string) (*Config, error) {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// Validate checks values that cannot be decoded into an invalid state by
// the file format alone.
func (c *Config) Validate() error {
	var errs []error
	if c.Batch.Count < 1 {
		errs = append(errs, fmt.Errorf("batch.count must be at least 1, got %d", c.Batch.Count))
	}
	if c.Batch.Jobs < 0 {
		errs = append(errs, fmt.Errorf("batch.jobs must not be negative, got %d", c.Batch.Jobs))
	}
	switch c.Output.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown output.format %q", c.Output.Format))
	}
	if _, err := c.AttrGuards(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AttrGuards converts the configured guards.
func (c *Config) AttrGuards() ([]attrs.Guard, error) {
	guards := make([]attrs.Guard, 0, len(c.Guards))
	for _, g := range c.Guards {
		set, err := attrs.ParseNames(g.Attrs)
		if err != nil {
			return nil, fmt.Errorf("guard %s: %w", g.Type, err)
		}
		guards = append(guards, attrs.Guard{Type: g.Type, Attrs: set})
	}
	return guards, nil
}

// OracleOptions returns the whitelist part of the oracle options.
func (c *Config) OracleOptions() oracle.Options {
	indirect := make(map[string][]string, len(c.Oracle.IndirectCannotGC))
	for _, entry := range c.Oracle.IndirectCannotGC {
		indirect[entry.Function] = append(indirect[entry.Function], entry.Variables...)
	}
	return oracle.Options{
		IndirectCannotGC: indirect,
		FieldCannotGC:    c.Oracle.FieldCannotGC,
	}
}

// IgnoreOptions returns the ignore policy options.
func (c *Config) IgnoreOptions() suppress.Options {
	return suppress.Options{
		HolderSuffix: c.Ignore.HolderSuffix,
		Names:        c.Ignore.Names,
		Types:        c.Ignore.Types,
	}
}
