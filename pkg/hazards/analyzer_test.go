package hazards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/rootcheck/internal/cfgtest"
	"github.com/715d/rootcheck/pkg/attrs"
	"github.com/715d/rootcheck/pkg/cfg"
	"github.com/715d/rootcheck/pkg/oracle"
	"github.com/715d/rootcheck/pkg/search"
	"github.com/715d/rootcheck/pkg/suppress"
	"github.com/715d/rootcheck/pkg/typeinfo"
)

const (
	gcCall     = "js::gc::GC()"
	newObject  = "js::NewObject()"
	rootedType = "JS::Rooted<JSObject*>"
	rootedCtor = "JS::Rooted<JSObject*>::Rooted(JSContext*)"
	rootedDtor = "JS::Rooted<JSObject*>::~Rooted()"
	guardType  = "js::AutoSuppressGC"
	guardCtor  = "js::AutoSuppressGC::AutoSuppressGC(JSContext*)"
	guardDtor  = "js::AutoSuppressGC::~AutoSuppressGC()"
)

var (
	x      = cfg.Local("x")
	y      = cfg.Local("y")
	objPtr = cfg.PointerTo(cfg.CSU("JSObject"))
)

func testAnalyzer(t *testing.T, limited map[string]attrs.Set) *Analyzer {
	t.Helper()
	ignore, err := suppress.NewPolicy(suppress.Options{HolderSuffix: suppress.DefaultHolderSuffix})
	require.NoError(t, err)
	return NewAnalyzer(Options{
		Oracle: oracle.New(oracle.Options{
			GCFunctions: map[string]string{
				gcCall:          gcCall,
				"g(JSObject**)": "calls " + gcCall,
			},
			LimitedFunctions: limited,
		}),
		Classifier: typeinfo.NewClassifier(&typeinfo.Tables{
			GCThings:       []string{"JSObject"},
			RootedWrappers: []string{"JS::Rooted"},
		}),
		Ignore: ignore,
		Guards: []attrs.Guard{{Type: guardType, Attrs: attrs.GCSuppressed}},
	})
}

func basicHazard(t *testing.T, name string) *cfg.Function {
	return cfgtest.Function(t, name,
		cfgtest.NewBody(4).
			Declare(x, objPtr).
			CallInto(1, 2, cfg.Var(x), newObject).
			Call(2, 3, gcCall).
			Assign(3, 4, cfg.Var(y), cfg.Load(x)))
}

func tracePoints(steps []search.Step) []int {
	out := make([]int, len(steps))
	for i, s := range steps {
		out[i] = s.Point
	}
	return out
}

func kinds(records []Record) []Kind {
	out := make([]Kind, len(records))
	for i, r := range records {
		out[i] = r.Kind
	}
	return out
}

func TestAnalyzeFunction_BasicHazard(t *testing.T) {
	records, err := testAnalyzer(t, nil).AnalyzeFunction(basicHazard(t, "f()"))
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, KindUnrooted, r.Kind)
	assert.Equal(t, "f()", r.Function)
	require.NotNil(t, r.Hazard)
	assert.Equal(t, "x", r.Hazard.Variable)
	assert.Equal(t, "JSObject*", r.Hazard.Type)
	assert.Equal(t, gcCall, r.Hazard.GC.Callee)
	assert.Equal(t, 2, r.Hazard.GCAt.Line)
	assert.Equal(t, 4, r.Hazard.Use.Line)
	assert.Equal(t, []int{1, 2, 3, 4}, tracePoints(r.Hazard.Trace))
	assert.False(t, r.Hazard.Expected)
	assert.True(t, r.Failing())
	assert.Equal(t, r.Hazard.Use, r.Location())
	assert.Equal(t, "x", r.Variable())
}

func TestAnalyzeFunction_NoHazard(t *testing.T) {
	nogc := cfg.Local("nogc")

	tests := []struct {
		name    string
		fn      func(t *testing.T) *cfg.Function
		limited map[string]attrs.Set
	}{
		{
			name: "guarded gc call",
			fn: func(t *testing.T) *cfg.Function {
				return cfgtest.Function(t, "f()",
					cfgtest.NewBody(6).
						Declare(x, objPtr).
						Declare(nogc, cfg.CSU(guardType)).
						CallInto(1, 2, cfg.Var(x), newObject).
						Method(2, 3, guardCtor, cfg.Var(nogc)).
						Call(3, 4, gcCall).
						Method(4, 5, guardDtor, cfg.Var(nogc)).
						Assign(5, 6, cfg.Var(y), cfg.Load(x)))
			},
		},
		{
			name:    "suppressed function",
			fn:      func(t *testing.T) *cfg.Function { return basicHazard(t, "f()") },
			limited: map[string]attrs.Set{"f()": attrs.GCSuppressed},
		},
		{
			name: "live range restarts after gc",
			fn: func(t *testing.T) *cfg.Function {
				return cfgtest.Function(t, "f()",
					cfgtest.NewBody(5).
						Declare(x, objPtr).
						CallInto(1, 2, cfg.Var(x), newObject).
						Call(2, 3, gcCall).
						CallInto(3, 4, cfg.Var(x), "js::NewString()").
						Assign(4, 5, cfg.Var(y), cfg.Load(x)))
			},
		},
		{
			name: "held variable",
			fn: func(t *testing.T) *cfg.Function {
				return cfgtest.Function(t, "f()",
					cfgtest.NewBody(4).
						Declare(x, objPtr).
						Declare(cfg.Local("x_holder"), cfg.CSU("Holder")).
						CallInto(1, 2, cfg.Var(x), newObject).
						Call(2, 3, gcCall).
						Assign(3, 4, cfg.Var(y), cfg.Load(x)))
			},
		},
		{
			name: "no declarations",
			fn: func(t *testing.T) *cfg.Function {
				return cfgtest.Function(t, "f()", cfgtest.NewBody(2).Call(1, 2, gcCall))
			},
		},
		{
			name: "scalar variable",
			fn: func(t *testing.T) *cfg.Function {
				n := cfg.Local("n")
				return cfgtest.Function(t, "f()",
					cfgtest.NewBody(4).
						Declare(n, cfg.Scalar("int")).
						Assign(1, 2, cfg.Var(n), cfg.Int("1")).
						Call(2, 3, gcCall).
						Assign(3, 4, cfg.Var(y), cfg.Load(n)))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := testAnalyzer(t, tt.limited).AnalyzeFunction(tt.fn(t))
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestAnalyzeFunction_RootedVariable(t *testing.T) {
	r := cfg.Local("r")
	build := func(t *testing.T, call string) *cfg.Function {
		return cfgtest.Function(t, "f()",
			cfgtest.NewBody(5).
				Declare(r, cfg.CSU(rootedType)).
				Method(1, 2, rootedCtor, cfg.Var(r)).
				Call(2, 3, call).
				Call(3, 4, "use(JS::Handle<JSObject*>)", cfg.Var(r)).
				Method(4, 5, rootedDtor, cfg.Var(r)))
	}

	records, err := testAnalyzer(t, nil).AnalyzeFunction(build(t, gcCall))
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = testAnalyzer(t, nil).AnalyzeFunction(build(t, "strlen()"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, KindUnnecessary, records[0].Kind)
	assert.Equal(t, "r", records[0].Unnecessary.Variable)
	assert.Equal(t, rootedType, records[0].Unnecessary.Type)
	assert.Equal(t, 1, records[0].Unnecessary.FirstUse.Line)
	assert.False(t, records[0].Failing())
}

func TestAnalyzeFunction_UnusedRoot(t *testing.T) {
	fn := cfgtest.Function(t, "f()",
		cfgtest.NewBody(2).
			Declare(cfg.Local("r"), cfg.CSU(rootedType)).
			Call(1, 2, "strlen()"))

	records, err := testAnalyzer(t, nil).AnalyzeFunction(fn)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAnalyzeFunction_AddressTaken(t *testing.T) {
	fn := cfgtest.Function(t, "f()",
		cfgtest.NewBody(3).
			Declare(x, objPtr).
			CallInto(1, 2, cfg.Var(x), newObject).
			Call(2, 3, "g(JSObject**)", cfg.Var(x)))

	records, err := testAnalyzer(t, nil).AnalyzeFunction(fn)
	require.NoError(t, err)
	require.Equal(t, []Kind{KindAddress}, kinds(records))

	taken := records[0].AddressTaken
	assert.Equal(t, "x", taken.Variable)
	assert.Equal(t, 2, taken.At.Line)
	require.NotNil(t, taken.GC)
	assert.Equal(t, "g(JSObject**)", taken.GC.Callee)
	assert.Equal(t, []int{1, 2}, tracePoints(taken.Trace))

	// Under function level suppression the address may escape.
	records, err = testAnalyzer(t, map[string]attrs.Set{"f()": attrs.GCSuppressed}).AnalyzeFunction(fn)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAnalyzeFunction_AddressStored(t *testing.T) {
	p := cfg.Local("p")
	fn := cfgtest.Function(t, "f()",
		cfgtest.NewBody(3).
			Declare(x, objPtr).
			CallInto(1, 2, cfg.Var(x), newObject).
			Assign(2, 3, cfg.Var(p), cfg.Var(x)))

	records, err := testAnalyzer(t, nil).AnalyzeFunction(fn)
	require.NoError(t, err)
	require.Equal(t, []Kind{KindAddress}, kinds(records))
	assert.Nil(t, records[0].AddressTaken.GC)
}

func TestAnalyzeFunction_LoopBridging(t *testing.T) {
	fn := cfgtest.Function(t, "f()",
		cfgtest.NewBody(4).
			Declare(x, objPtr).
			CallInto(1, 2, cfg.Var(x), newObject).
			Loop(2, 3, "1").
			Assign(3, 4, cfg.Var(y), cfg.Load(x)),
		cfgtest.NewLoopBody("1", 2, cfg.FunctionBlock, 2).
			Declare(x, objPtr).
			Call(1, 2, gcCall))

	records, err := testAnalyzer(t, nil).AnalyzeFunction(fn)
	require.NoError(t, err)
	require.Equal(t, []Kind{KindUnrooted}, kinds(records))

	h := records[0].Hazard
	assert.Equal(t, []int{1, 2, 1, 2, 3, 4}, tracePoints(h.Trace))
	var loopSteps int
	for _, s := range h.Trace {
		if s.Block.Kind == cfg.BlockLoop {
			loopSteps++
		}
	}
	assert.Equal(t, 2, loopSteps)
}

func TestAnalyzeFunction_Argument(t *testing.T) {
	arg := cfg.Arg(0, "obj")
	fn := cfgtest.Function(t, "f(JSObject*)",
		cfgtest.NewBody(3).
			Declare(arg, objPtr).
			Call(1, 2, gcCall).
			Assign(2, 3, cfg.Var(y), cfg.Load(arg)))

	records, err := testAnalyzer(t, nil).AnalyzeFunction(fn)
	require.NoError(t, err)
	require.Equal(t, []Kind{KindUnrooted}, kinds(records))
	assert.Equal(t, "obj", records[0].Hazard.Variable)
	assert.Equal(t, []int{1, 2, 3}, tracePoints(records[0].Hazard.Trace))
}

func TestAnalyzeFunction_ExpectHazards(t *testing.T) {
	fn := basicHazard(t, "f()")
	fn.Annotations = []string{cfg.AnnotationExpectHazards}

	records, err := testAnalyzer(t, nil).AnalyzeFunction(fn)
	require.NoError(t, err)
	require.Equal(t, []Kind{KindUnrooted}, kinds(records))
	assert.True(t, records[0].Hazard.Expected)
	assert.False(t, records[0].Failing())
	assert.Equal(t, 0, Failing(records))

	clean := cfgtest.Function(t, "g()",
		cfgtest.NewBody(3).
			Declare(x, objPtr).
			CallInto(1, 2, cfg.Var(x), newObject).
			Assign(2, 3, cfg.Var(y), cfg.Load(x)))
	clean.Annotations = []string{cfg.AnnotationExpectHazards}

	records, err = testAnalyzer(t, nil).AnalyzeFunction(clean)
	require.NoError(t, err)
	require.Equal(t, []Kind{KindMissing}, kinds(records))
	assert.Equal(t, cfg.Location{File: cfgtest.File, Line: 1}, records[0].Missing.At)
	assert.True(t, records[0].Failing())
}

func TestAnalyzeFunction_DeduplicatesVariables(t *testing.T) {
	fn := cfgtest.Function(t, "f()",
		cfgtest.NewBody(5).
			Declare(x, objPtr).
			CallInto(1, 2, cfg.Var(x), newObject).
			Loop(2, 3, "1").
			Call(3, 4, gcCall).
			Assign(4, 5, cfg.Var(y), cfg.Load(x)),
		cfgtest.NewLoopBody("1", 2, cfg.FunctionBlock, 2).
			Declare(x, objPtr).
			Call(1, 2, "strlen()"))

	records, err := testAnalyzer(t, nil).AnalyzeFunction(fn)
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindUnrooted}, kinds(records))
}

func TestAnalyzeFunction_InvalidGraph(t *testing.T) {
	fn := &cfg.Function{Name: "f()", Bodies: []*cfg.Body{{
		BlockID: cfg.FunctionBlock,
		Index:   [2]int{1, 5},
		Points:  make([]cfg.Location, 2),
	}}}
	_, err := testAnalyzer(t, nil).AnalyzeFunction(fn)
	require.ErrorIs(t, err, cfg.ErrInvalidGraph)
}

func TestLiveAcrossGC(t *testing.T) {
	fn := basicHazard(t, "f()")
	a := testAnalyzer(t, nil)

	w, err := a.LiveAcrossGC(fn, x)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 4, w.Point)
	assert.Equal(t, [2]int{3, 4}, w.Use.Index)
	assert.Equal(t, gcCall, w.Path.GC.Evidence.Callee)

	w, err = a.LiveAcrossGC(fn, y)
	require.NoError(t, err)
	assert.Nil(t, w)
}
