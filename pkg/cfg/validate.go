package cfg

import (
	"errors"
	"fmt"
)

// ErrInvalidGraph reports a body whose structure cannot be analyzed, such as
// an edge referencing a point that does not exist.
var ErrInvalidGraph = errors.New("invalid graph")

// Prepare validates the function's bodies and builds predecessor indexes.
// It must succeed before the function is analyzed.
func (f *Function) Prepare() error {
	if len(f.Bodies) == 0 {
		return fmt.Errorf("%w: function %q has no bodies", ErrInvalidGraph, f.Name)
	}
	if f.Bodies[0] == nil || f.Bodies[0].BlockID.Kind != BlockFunction {
		return fmt.Errorf("%w: function %q: first body is not the function body", ErrInvalidGraph, f.Name)
	}

	f.loops = make(map[string]*Body, len(f.Bodies)-1)
	for _, b := range f.Bodies[1:] {
		if b == nil || b.BlockID.Kind != BlockLoop {
			return fmt.Errorf("%w: function %q: extra body is not a loop body", ErrInvalidGraph, f.Name)
		}
		if _, dup := f.loops[b.BlockID.Loop]; dup {
			return fmt.Errorf("%w: function %q: duplicate loop %q", ErrInvalidGraph, f.Name, b.BlockID.Loop)
		}
		f.loops[b.BlockID.Loop] = b
	}

	for _, b := range f.Bodies {
		if err := b.prepare(f); err != nil {
			return fmt.Errorf("function %q %s: %w", f.Name, b.BlockID, err)
		}
	}
	f.prepared = true
	return nil
}

func (b *Body) prepare(f *Function) error {
	n := len(b.Points)
	for _, p := range b.Index {
		if p < 1 || p > n {
			return fmt.Errorf("%w: entry/exit point %d out of range 1..%d", ErrInvalidGraph, p, n)
		}
	}

	b.preds = make([][]int, n+1)
	for i := range b.Edges {
		e := &b.Edges[i]
		for _, p := range e.Index {
			if p < 1 || p > n {
				return fmt.Errorf("%w: edge %d references point %d out of range 1..%d", ErrInvalidGraph, i, p, n)
			}
		}
		if e.Kind == EdgeLoop {
			if e.BlockID == nil || e.BlockID.Kind != BlockLoop || f.loops[e.BlockID.Loop] == nil {
				return fmt.Errorf("%w: loop edge %d names no loop body", ErrInvalidGraph, i)
			}
		}
		b.preds[e.Dest()] = append(b.preds[e.Dest()], i)
	}

	for _, pp := range b.BlockPPoint {
		parent := f.Block(pp.BlockID)
		if parent == nil {
			return fmt.Errorf("%w: unknown parent block %s", ErrInvalidGraph, pp.BlockID)
		}
		if pp.Point < 1 || pp.Point > len(parent.Points) {
			return fmt.Errorf("%w: parent point %d out of range in %s", ErrInvalidGraph, pp.Point, pp.BlockID)
		}
	}
	if b.IsLoop() && len(b.BlockPPoint) == 0 {
		return fmt.Errorf("%w: loop body has no parent position", ErrInvalidGraph)
	}
	return nil
}
