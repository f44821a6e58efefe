package attrs

import (
	"log/slog"

	"golang.org/x/tools/container/intsets"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/715d/rootcheck/pkg/cfg"
)

// Guard is an RAII type whose lifetime applies attributes to the code it
// encloses, such as an AutoSuppressGC.
type Guard struct {
	Type  string
	Attrs Set
}

// Table holds the attributes in effect at each point of each body of one
// function. A nil Table has no attributes anywhere.
type Table struct {
	points map[cfg.BlockID][]Set
}

// At returns the attributes in effect at a point.
func (t *Table) At(block cfg.BlockID, point int) Set {
	if t == nil {
		return 0
	}
	pts := t.points[block]
	if point < 0 || point >= len(pts) {
		return 0
	}
	return pts[point]
}

// Empty reports whether no point carries attributes.
func (t *Table) Empty() bool {
	return t == nil || len(t.points) == 0
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{points: make(map[cfg.BlockID][]Set)}
}

// Add sets attributes at a point of body.
func (t *Table) Add(body *cfg.Body, point int, s Set) {
	pts, ok := t.points[body.BlockID]
	if !ok {
		pts = make([]Set, body.NumPoints()+1)
		t.points[body.BlockID] = pts
	}
	pts[point] |= s
}

// GuardScopes matches constructor and destructor calls of guard variables
// and returns the attributes they establish. A guard's scope is every point
// reachable from its constructor call without crossing its destructor call;
// loop bodies entered inside the scope are covered entirely.
func GuardScopes(fn *cfg.Function, guards []Guard) *Table {
	t := NewTable()
	if len(guards) == 0 {
		return t
	}

	byType := make(map[string]Set, len(guards))
	for _, g := range guards {
		byType[cfg.StripTemplateArgs(g.Type)] |= g.Attrs
	}

	guardVars := make(map[cfg.Variable]string)
	for _, body := range fn.Bodies {
		for _, decl := range body.DefineVariable {
			if decl.Type == nil || decl.Type.Kind != cfg.TypeCSU {
				continue
			}
			name := cfg.StripTemplateArgs(decl.Type.Name)
			if _, ok := byType[name]; ok {
				guardVars[decl.Variable] = name
			}
		}
	}
	if len(guardVars) == 0 {
		return t
	}

	for _, body := range fn.Bodies {
		var g *simple.DirectedGraph
		for i := range body.Edges {
			edge := &body.Edges[i]
			v, class, ok := guardConstruction(edge, guardVars)
			if !ok {
				continue
			}
			if g == nil {
				g = bodyGraph(body)
			}
			scope := walkScope(g, body, edge.Dest(), v)
			set := byType[class]
			slog.Debug("guard scope", "function", fn.Name, "guard", v.String(), "block", body.BlockID.String(), "points", scope.Len())

			for _, p := range scope.AppendTo(nil) {
				t.Add(body, p, set)
			}
			for j := range body.Edges {
				e := &body.Edges[j]
				if e.Kind == cfg.EdgeLoop && scope.Has(e.Source()) && scope.Has(e.Dest()) {
					t.addLoop(fn, fn.Block(*e.BlockID), set)
				}
			}
		}
	}
	return t
}

// addLoop covers a loop body and the loops nested in it.
func (t *Table) addLoop(fn *cfg.Function, body *cfg.Body, s Set) {
	if body == nil {
		return
	}
	for p := 1; p <= body.NumPoints(); p++ {
		t.Add(body, p, s)
	}
	for i := range body.Edges {
		if e := &body.Edges[i]; e.Kind == cfg.EdgeLoop {
			t.addLoop(fn, fn.Block(*e.BlockID), s)
		}
	}
}

func guardConstruction(edge *cfg.Edge, guardVars map[cfg.Variable]string) (cfg.Variable, string, bool) {
	if edge.Kind != cfg.EdgeCall || edge.Instance == nil {
		return cfg.Variable{}, "", false
	}
	callee := edge.StaticCallee()
	if !cfg.IsConstructor(callee) {
		return cfg.Variable{}, "", false
	}
	class, _, _ := cfg.ParseMethod(callee)
	for v, guardType := range guardVars {
		if guardType == class && edge.Instance.IsReceiver(v) {
			return v, guardType, true
		}
	}
	return cfg.Variable{}, "", false
}

func isGuardDestruction(edge *cfg.Edge, v cfg.Variable) bool {
	return edge.Kind == cfg.EdgeCall && edge.Instance != nil &&
		cfg.IsDestructor(edge.StaticCallee()) && edge.Instance.IsReceiver(v)
}

func bodyGraph(body *cfg.Body) *simple.DirectedGraph {
	g := simple.NewDirectedGraph()
	for p := 1; p <= body.NumPoints(); p++ {
		g.AddNode(simple.Node(p))
	}
	for i := range body.Edges {
		e := &body.Edges[i]
		if e.Source() == e.Dest() {
			continue
		}
		g.SetEdge(simple.Edge{F: simple.Node(e.Source()), T: simple.Node(e.Dest())})
	}
	return g
}

func walkScope(g *simple.DirectedGraph, body *cfg.Body, from int, v cfg.Variable) *intsets.Sparse {
	blocked := make(map[[2]int64]bool)
	for i := range body.Edges {
		if e := &body.Edges[i]; isGuardDestruction(e, v) {
			blocked[[2]int64{int64(e.Source()), int64(e.Dest())}] = true
		}
	}

	var scope intsets.Sparse
	bf := traverse.BreadthFirst{
		Traverse: func(e graph.Edge) bool {
			return !blocked[[2]int64{e.From().ID(), e.To().ID()}]
		},
		Visit: func(n graph.Node) {
			scope.Insert(int(n.ID()))
		},
	}
	bf.Walk(g, simple.Node(from), nil)
	return &scope
}
