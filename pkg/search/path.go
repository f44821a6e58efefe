package search

import (
	"github.com/715d/rootcheck/pkg/cfg"
	"github.com/715d/rootcheck/pkg/oracle"
)

// Use is an edge that reads the variable, or the function entry for
// arguments and this.
type Use struct {
	Edge  *cfg.Edge
	Entry bool
}

// GCInfo records the edge that may collect between the variable's live
// range start and its use.
type GCInfo struct {
	Evidence oracle.Evidence
	Body     *cfg.Body
	Point    int
	Edge     *cfg.Edge
}

// Location returns the source position of the GC edge.
func (g *GCInfo) Location() cfg.Location {
	return g.Body.PointLocation(g.Point)
}

// Path is one backward walk from a use of the variable. Pred points one
// step closer to the use the search started from.
type Path struct {
	Pred  *Path
	Body  *cfg.Body
	Point int

	// Edge is the edge from Point to Pred's point, or nil when Path was
	// reached through a bridge between bodies.
	Edge *cfg.Edge

	InformativeUse *Use
	AnyUse         *Use
	GC             *GCInfo
}

// completeness orders paths by (informative use, any use, gc) presence.
func (p *Path) completeness() int {
	c := 0
	if p.InformativeUse != nil {
		c |= 4
	}
	if p.AnyUse != nil {
		c |= 2
	}
	if p.GC != nil {
		c |= 1
	}
	return c
}

// Step is one point of a trace.
type Step struct {
	Block    cfg.BlockID  `json:"block"`
	Point    int          `json:"point"`
	Location cfg.Location `json:"location"`

	// Edge leaves this step towards the next one; nil for bridges and the
	// last step.
	Edge *cfg.Edge `json:"-"`
}

// Trace lists the steps of the path from its earliest point to the use
// the search started from.
func (p *Path) Trace() []Step {
	var steps []Step
	for q := p; q != nil; q = q.Pred {
		steps = append(steps, Step{
			Block:    q.Body.BlockID,
			Point:    q.Point,
			Location: q.Body.PointLocation(q.Point),
			Edge:     q.Edge,
		})
	}
	return steps
}
