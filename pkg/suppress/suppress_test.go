package suppress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/rootcheck/internal/cfgtest"
	"github.com/715d/rootcheck/pkg/cfg"
)

func TestNewPolicy_InvalidPattern(t *testing.T) {
	_, err := NewPolicy(Options{Names: []string{"("}})
	require.Error(t, err)

	_, err = NewPolicy(Options{Types: []string{"[a-"}})
	require.Error(t, err)
}

func TestChecker_IsSuppressed(t *testing.T) {
	obj := cfg.PointerTo(cfg.CSU("JSObject"))
	fn := cfgtest.Function(t, "f",
		cfgtest.NewBody(2).
			Declare(cfg.Local("obj"), obj).
			Declare(cfg.Local("obj_holder"), cfg.CSU("Holder")).
			Declare(cfg.Local("other"), obj).
			Declare(cfg.Local("tmpValue"), cfg.CSU("JS::Value")).
			Declare(cfg.Local("iter"), cfg.CSU("js::gc::ZoneCellIter<JSScript>")))

	policy, err := NewPolicy(Options{
		HolderSuffix: DefaultHolderSuffix,
		Names:        []string{`^tmp`},
		Types:        []string{`ZoneCellIter`},
	})
	require.NoError(t, err)
	checker := policy.Checker(fn)

	tests := []struct {
		name           string
		decl           cfg.Declaration
		wantSuppressed bool
		wantReason     string
	}{
		{"held variable", cfg.Declaration{Variable: cfg.Local("obj"), Type: obj}, true, "held by obj_holder"},
		{"holder itself", cfg.Declaration{Variable: cfg.Local("obj_holder")}, true, "held by obj_holder"},
		{"unrelated", cfg.Declaration{Variable: cfg.Local("other"), Type: obj}, false, ""},
		{"name pattern", cfg.Declaration{Variable: cfg.Local("tmpValue"), Type: cfg.CSU("JS::Value")}, true, "name matches ^tmp"},
		{"type pattern", cfg.Declaration{Variable: cfg.Local("iter"), Type: cfg.CSU("js::gc::ZoneCellIter<JSScript>")}, true, "type matches ZoneCellIter"},
		{"nil type", cfg.Declaration{Variable: cfg.Local("x")}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suppressed, reason := checker.IsSuppressed(tt.decl)
			assert.Equal(t, tt.wantSuppressed, suppressed)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestChecker_HolderDisabled(t *testing.T) {
	fn := cfgtest.Function(t, "f",
		cfgtest.NewBody(2).
			Declare(cfg.Local("obj"), cfg.PointerTo(cfg.CSU("JSObject"))).
			Declare(cfg.Local("obj_holder"), cfg.CSU("Holder")))

	policy, err := NewPolicy(Options{})
	require.NoError(t, err)

	suppressed, _ := policy.Checker(fn).IsSuppressed(cfg.Declaration{Variable: cfg.Local("obj")})
	assert.False(t, suppressed)
}

func TestChecker_HolderInLoopBody(t *testing.T) {
	fn := cfgtest.Function(t, "f",
		cfgtest.NewBody(3).Loop(1, 2, "1"),
		cfgtest.NewLoopBody("1", 2, cfg.FunctionBlock, 1).
			Declare(cfg.Local("str_holder"), cfg.CSU("Holder")))

	policy, err := NewPolicy(Options{HolderSuffix: DefaultHolderSuffix})
	require.NoError(t, err)

	suppressed, reason := policy.Checker(fn).IsSuppressed(cfg.Declaration{Variable: cfg.Local("str")})
	assert.True(t, suppressed)
	assert.Equal(t, "held by str_holder", reason)
}

func TestNilPolicy(t *testing.T) {
	var policy *Policy
	suppressed, _ := policy.Checker(nil).IsSuppressed(cfg.Declaration{Variable: cfg.Local("x")})
	assert.False(t, suppressed)
}

func TestHolderSuffixOnly(t *testing.T) {
	fn := cfgtest.Function(t, "f",
		cfgtest.NewBody(2).Declare(cfg.Local("_holder"), cfg.CSU("Holder")))

	policy, err := NewPolicy(Options{HolderSuffix: DefaultHolderSuffix})
	require.NoError(t, err)

	suppressed, _ := policy.Checker(fn).IsSuppressed(cfg.Declaration{Variable: cfg.Local("_holder")})
	assert.False(t, suppressed)
}
