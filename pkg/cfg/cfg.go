// Package cfg defines the per-function control-flow graph representation
// consumed by the hazard analysis.
//
// A Function owns one main Body and zero or more loop Bodies. Each Body is
// acyclic: a loop appears in its parent body as a single Loop edge, and the
// loop's own statements live in a separate Body that is joined to the parent
// by artificial bridges (see Function.Prepare).
package cfg

import (
	"fmt"
	"slices"
)

// BlockKind tags a Body as the function body or a loop body.
type BlockKind string

const (
	BlockFunction BlockKind = "Function"
	BlockLoop     BlockKind = "Loop"
)

// BlockID identifies a Body within its Function.
type BlockID struct {
	Kind BlockKind `json:"kind"`
	Loop string    `json:"loop,omitempty"`
}

// FunctionBlock is the BlockID of every main body.
var FunctionBlock = BlockID{Kind: BlockFunction}

// LoopBlock returns the BlockID of the loop body with the given id.
func LoopBlock(id string) BlockID {
	return BlockID{Kind: BlockLoop, Loop: id}
}

func (b BlockID) String() string {
	if b.Kind == BlockLoop {
		return "loop#" + b.Loop
	}
	return "function"
}

// Location is a source position.
type Location struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line"`
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("line %d", l.Line)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// BlockPPoint is a position inside a parent body where a loop body sits.
type BlockPPoint struct {
	BlockID BlockID `json:"block"`
	Point   int     `json:"point"`
}

// Declaration is a variable declared or visible in a Body.
type Declaration struct {
	Variable Variable `json:"variable"`
	Type     *Type    `json:"type"`
}

// Body is one acyclic CFG. Points are numbered 1..len(Points).
type Body struct {
	BlockID        BlockID       `json:"block"`
	Location       [2]Location   `json:"location"`
	Index          [2]int        `json:"index"`
	Points         []Location    `json:"points"`
	DefineVariable []Declaration `json:"variables,omitempty"`
	Edges          []Edge        `json:"edges,omitempty"`
	BlockPPoint    []BlockPPoint `json:"parents,omitempty"`

	// preds maps a point to the indexes of the edges ending at it.
	preds [][]int
}

// Entry returns the entry point of the body.
func (b *Body) Entry() int { return b.Index[0] }

// Exit returns the exit point of the body.
func (b *Body) Exit() int { return b.Index[1] }

// IsLoop reports whether b is a loop body.
func (b *Body) IsLoop() bool { return b.BlockID.Kind == BlockLoop }

// NumPoints returns the number of points in the body.
func (b *Body) NumPoints() int { return len(b.Points) }

// PointLocation returns the source location of a point, or the zero
// Location when the point is out of range.
func (b *Body) PointLocation(point int) Location {
	if point < 1 || point > len(b.Points) {
		return Location{}
	}
	return b.Points[point-1]
}

// Predecessors returns the edges whose destination is point, in the order
// they appear in the body. Prepare must have been called.
func (b *Body) Predecessors(point int) []*Edge {
	if point < 1 || point >= len(b.preds) {
		return nil
	}
	idx := b.preds[point]
	edges := make([]*Edge, 0, len(idx))
	for _, i := range idx {
		edges = append(edges, &b.Edges[i])
	}
	return edges
}

// Function is the unit of analysis: a mangled name and its bodies.
type Function struct {
	Name        string   `json:"name"`
	Annotations []string `json:"annotations,omitempty"`
	Bodies      []*Body  `json:"bodies"`

	loops    map[string]*Body
	prepared bool
}

// AnnotationExpectHazards marks a function whose hazards are known and
// tolerated.
const AnnotationExpectHazards = "Expect Hazards"

// Main returns the function body.
func (f *Function) Main() *Body {
	if len(f.Bodies) == 0 {
		return nil
	}
	return f.Bodies[0]
}

// Block returns the body with the given id, or nil.
func (f *Function) Block(id BlockID) *Body {
	if id.Kind == BlockFunction {
		return f.Main()
	}
	if f.loops != nil {
		return f.loops[id.Loop]
	}
	for _, b := range f.Bodies {
		if b.BlockID == id {
			return b
		}
	}
	return nil
}

// HasAnnotation reports whether the function carries the annotation.
func (f *Function) HasAnnotation(annotation string) bool {
	return slices.Contains(f.Annotations, annotation)
}

// Prepared reports whether Prepare completed successfully.
func (f *Function) Prepared() bool { return f.prepared }
