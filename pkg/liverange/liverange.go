// Package liverange decides how individual CFG edges affect the live range
// of a variable. The predicates are pure and never consult the GC oracle.
package liverange

import (
	"github.com/715d/rootcheck/pkg/cfg"
)

// UsesVariable reports whether edge reads the current value of v, and the
// point at which the use is observable.
//
// The use point is the edge's destination, except for call shapes that
// pass v to the callee and edges that also overwrite v (x = x->next),
// whose use happens before the edge runs and is reported at its source.
// The return value is used by the last edge of the function body.
func UsesVariable(edge *cfg.Edge, v cfg.Variable, body *cfg.Body) (int, bool) {
	if v.Kind == cfg.VarReturn && returnsFromFunction(edge, body) {
		if edge.Kind == cfg.EdgeAssign && edge.LHS().IsVariable(v) && edge.RHS().IsNull() {
			return 0, false
		}
		return edge.Dest(), true
	}
	switch edge.Kind {
	case cfg.EdgeAssign:
		return assignUse(edge, v)
	case cfg.EdgeCall:
		return callUse(edge, v)
	case cfg.EdgeAssume:
		if edge.Condition().ReadsContents(v) {
			return edge.Dest(), true
		}
	}
	return 0, false
}

func assignUse(edge *cfg.Edge, v cfg.Variable) (int, bool) {
	lhs, rhs := edge.LHS(), edge.RHS()
	if rhs.Mentions(v) {
		if lhs.IsVariable(v) {
			return edge.Source(), true
		}
		return edge.Dest(), true
	}
	if lhs.Mentions(v) && !lhs.IsVariable(v) {
		return edge.Dest(), true
	}
	return 0, false
}

func callUse(edge *cfg.Edge, v cfg.Variable) (int, bool) {
	if edge.Callee().Mentions(v) {
		return edge.Source(), true
	}
	if edge.Instance.Mentions(v) && !constructs(edge, v) {
		return edge.Source(), true
	}
	for i := range edge.Args {
		if edge.Args[i].Mentions(v) {
			return edge.Source(), true
		}
	}
	if lhs := edge.LHS(); lhs.Mentions(v) && !lhs.IsVariable(v) {
		return edge.Dest(), true
	}
	return 0, false
}

func returnsFromFunction(edge *cfg.Edge, body *cfg.Body) bool {
	return body != nil && !body.IsLoop() && edge.Dest() == body.Exit()
}

// StartsLiveRange reports whether edge gives v a fresh value independent of
// its prior one: a plain assignment of a non-null value, a call storing its
// result in v, or a constructor call on v or one of its base subobjects.
func StartsLiveRange(edge *cfg.Edge, v cfg.Variable) bool {
	switch edge.Kind {
	case cfg.EdgeAssign:
		return edge.LHS().IsVariable(v) && !edge.RHS().IsNull()
	case cfg.EdgeCall:
		return edge.LHS().IsVariable(v) || constructs(edge, v)
	}
	return false
}

// EndsLiveRange reports whether edge proves the prior value of v dead: a
// destructor call on v, or an assignment of null to v.
func EndsLiveRange(edge *cfg.Edge, v cfg.Variable) bool {
	switch edge.Kind {
	case cfg.EdgeAssign:
		return edge.LHS().IsVariable(v) && edge.RHS().IsNull()
	case cfg.EdgeCall:
		return edge.Instance.IsReceiver(v) && cfg.IsDestructor(edge.StaticCallee())
	}
	return false
}

// TakesAddress reports whether edge stores or passes the address of v or of
// a field within it.
func TakesAddress(edge *cfg.Edge, v cfg.Variable) bool {
	switch edge.Kind {
	case cfg.EdgeAssign:
		return edge.RHS().IsAddressOf(v)
	case cfg.EdgeCall:
		for i := range edge.Args {
			if edge.Args[i].IsAddressOf(v) {
				return true
			}
		}
	}
	return false
}

func constructs(edge *cfg.Edge, v cfg.Variable) bool {
	return edge.Instance.IsReceiver(v) && cfg.IsConstructor(edge.StaticCallee())
}
