// Package search finds witness paths proving that a variable is live across
// an edge that may trigger garbage collection.
//
// The search walks backward from a use of the variable, one predecessor
// edge at a time, and crosses between a function's bodies through
// artificial bridges: from the point after a loop into the loop body's
// exit, from a loop body's entry to its own exit (the previous iteration),
// and from a loop body's entry to the positions it occupies in its parents.
package search

import (
	"errors"
	"fmt"

	"github.com/715d/rootcheck/pkg/attrs"
	"github.com/715d/rootcheck/pkg/cfg"
	"github.com/715d/rootcheck/pkg/liverange"
	"github.com/715d/rootcheck/pkg/oracle"
)

// ErrCorruptGraph is returned when the predecessor index of a body does not
// match its edges.
var ErrCorruptGraph = errors.New("corrupt graph")

// Oracle decides whether an edge may GC.
type Oracle interface {
	CanGC(function string, edge *cfg.Edge, set attrs.Set) (oracle.Evidence, bool)
}

type location struct {
	block cfg.BlockID
	point int
}

type searcher struct {
	fn        *cfg.Function
	funcAttrs attrs.Set
	scopes    *attrs.Table
	oracle    Oracle
	v         cfg.Variable

	best     map[location]*Path
	queue    []*Path
	firstAny *Path
}

// FindWitness searches backward from point start of body for a path on
// which v is live across a GC edge. It returns the first path that reaches
// an informative use, or else the first discovered path that reached any
// use after a GC, or nil when v is not live across any GC.
//
// funcAttrs apply to every edge of fn; scopes add the attributes of RAII
// guards at each point.
func FindWitness(fn *cfg.Function, body *cfg.Body, start int, funcAttrs attrs.Set,
	scopes *attrs.Table, o Oracle, v cfg.Variable) (*Path, error) {
	if !fn.Prepared() {
		return nil, fmt.Errorf("%w: function %q is not prepared", ErrCorruptGraph, fn.Name)
	}
	s := &searcher{
		fn:        fn,
		funcAttrs: funcAttrs,
		scopes:    scopes,
		oracle:    o,
		v:         v,
		best:      make(map[location]*Path),
	}
	s.offer(&Path{Body: body, Point: start})

	for len(s.queue) > 0 {
		p := s.queue[0]
		s.queue = s.queue[1:]
		if s.best[location{p.Body.BlockID, p.Point}] != p {
			continue
		}

		for _, edge := range p.Body.Predecessors(p.Point) {
			next, err := s.extend(p, edge)
			if err != nil {
				return nil, err
			}
			if next == nil {
				continue
			}
			if next.InformativeUse != nil {
				return next, nil
			}
			s.offer(next)
		}
		for _, b := range bridges(fn, p.Body, p.Point) {
			next := *p
			next.Pred, next.Body, next.Point, next.Edge = p, b.body, b.point, nil
			s.offer(&next)
		}
	}
	return s.firstAny, nil
}

// offer records p when it is the first path to reach its point or strictly
// more complete than the best one so far.
func (s *searcher) offer(p *Path) {
	key := location{p.Body.BlockID, p.Point}
	if old, ok := s.best[key]; ok && p.completeness() <= old.completeness() {
		return
	}
	s.best[key] = p
	s.queue = append(s.queue, p)
	if s.firstAny == nil && p.AnyUse != nil {
		s.firstAny = p
	}
}

// extend crosses edge backward from p. A nil path prunes the branch.
func (s *searcher) extend(p *Path, edge *cfg.Edge) (*Path, error) {
	if edge.Dest() != p.Point {
		return nil, fmt.Errorf("%w: function %q %s: edge %d->%d listed as predecessor of point %d",
			ErrCorruptGraph, s.fn.Name, p.Body.BlockID, edge.Source(), edge.Dest(), p.Point)
	}

	if liverange.EndsLiveRange(edge, s.v) {
		return nil, nil
	}
	if liverange.StartsLiveRange(edge, s.v) {
		if p.GC == nil {
			return nil, nil
		}
		use := &Use{Edge: edge}
		return &Path{
			Pred:           p,
			Body:           p.Body,
			Point:          edge.Source(),
			Edge:           edge,
			InformativeUse: use,
			AnyUse:         use,
			GC:             p.GC,
		}, nil
	}

	next := &Path{
		Pred:   p,
		Body:   p.Body,
		Point:  edge.Source(),
		Edge:   edge,
		AnyUse: p.AnyUse,
		GC:     p.GC,
	}
	gcHere := false
	if next.GC == nil {
		set := s.funcAttrs | s.scopes.At(p.Body.BlockID, edge.Source())
		if ev, ok := s.oracle.CanGC(s.fn.Name, edge, set); ok {
			next.GC = &GCInfo{Evidence: ev, Body: p.Body, Point: edge.Source(), Edge: edge}
			gcHere = true
		}
	}
	if next.GC == nil {
		return next, nil
	}

	if s.reachesEntry(p.Body, edge) {
		use := &Use{Edge: edge, Entry: true}
		next.InformativeUse, next.AnyUse = use, use
		return next, nil
	}

	point, ok := liverange.UsesVariable(edge, s.v, p.Body)
	if !ok {
		return next, nil
	}
	next.AnyUse = &Use{Edge: edge}
	// The use follows the GC on the same edge, so it does not close the
	// live range.
	if gcHere && point == edge.Dest() {
		return next, nil
	}
	if edge.Kind == cfg.EdgeAssign {
		next.InformativeUse = next.AnyUse
	}
	return next, nil
}

// reachesEntry reports whether edge leaves the function entry while the
// variable is an argument or this, whose value is live from the caller.
func (s *searcher) reachesEntry(body *cfg.Body, edge *cfg.Edge) bool {
	if s.v.Kind != cfg.VarArg && s.v.Kind != cfg.VarThis {
		return false
	}
	return !body.IsLoop() && edge.Source() == body.Entry()
}

type bridge struct {
	body  *cfg.Body
	point int
}

// bridges returns the artificial predecessors of point in body.
func bridges(fn *cfg.Function, body *cfg.Body, point int) []bridge {
	var out []bridge
	for _, edge := range body.Predecessors(point) {
		if edge.Kind != cfg.EdgeLoop || edge.BlockID == nil {
			continue
		}
		if loop := fn.Block(*edge.BlockID); loop != nil {
			out = append(out, bridge{loop, loop.Exit()})
		}
	}
	if body.IsLoop() && point == body.Entry() {
		out = append(out, bridge{body, body.Exit()})
		for _, pp := range body.BlockPPoint {
			if parent := fn.Block(pp.BlockID); parent != nil {
				out = append(out, bridge{parent, pp.Point})
			}
		}
	}
	return out
}
