package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/rootcheck/internal/cfgtest"
	"github.com/715d/rootcheck/pkg/cfg"
)

func TestParseNames(t *testing.T) {
	s, err := ParseNames([]string{"gc-suppressed", "Replaced"})
	require.NoError(t, err)
	assert.Equal(t, GCSuppressed|Replaced, s)
	assert.True(t, s.Has(GCSuppressed))
	assert.False(t, s.Has(GCSuppressed|NonReleasing))
	assert.True(t, s.Any(Suppressing))
	assert.Equal(t, "gc-suppressed|replaced", s.String())
	assert.Equal(t, "none", Set(0).String())

	_, err = ParseNames([]string{"bogus"})
	require.Error(t, err)
}

func TestGuardScopes(t *testing.T) {
	guard := cfg.Local("nogc")
	const (
		ctor = "js::AutoSuppressGC::AutoSuppressGC(JSContext*)"
		dtor = "js::AutoSuppressGC::~AutoSuppressGC()"
	)

	main := cfgtest.NewBody(7).
		Declare(guard, cfg.CSU("js::AutoSuppressGC")).
		Call(1, 2, "prepare()").
		Method(2, 3, ctor, cfg.Var(guard)).
		Call(3, 4, "js::gc::GC()").
		Loop(4, 5, "1").
		Method(5, 6, dtor, cfg.Var(guard)).
		Call(6, 7, "js::gc::GC()")
	loop := cfgtest.NewLoopBody("1", 2, cfg.FunctionBlock, 4).
		Call(1, 2, "js::gc::GC()")
	fn := cfgtest.Function(t, "f", main, loop)

	table := GuardScopes(fn, []Guard{{Type: "js::AutoSuppressGC", Attrs: GCSuppressed}})
	require.False(t, table.Empty())

	for point, want := range map[int]Set{1: 0, 2: 0, 3: GCSuppressed, 4: GCSuppressed, 5: GCSuppressed, 6: 0, 7: 0} {
		assert.Equal(t, want, table.At(cfg.FunctionBlock, point), "point %d", point)
	}
	assert.Equal(t, GCSuppressed, table.At(cfg.LoopBlock("1"), 1))
	assert.Equal(t, GCSuppressed, table.At(cfg.LoopBlock("1"), 2))
}

func TestGuardScopes_NoGuards(t *testing.T) {
	fn := cfgtest.Function(t, "f", cfgtest.NewBody(2).Call(1, 2, "js::gc::GC()"))

	table := GuardScopes(fn, nil)
	assert.True(t, table.Empty())
	assert.Equal(t, Set(0), table.At(cfg.FunctionBlock, 1))

	var nilTable *Table
	assert.Equal(t, Set(0), nilTable.At(cfg.FunctionBlock, 1))
}
