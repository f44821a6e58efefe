package search

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/715d/rootcheck/pkg/cfg"
)

// EntryTrace returns the shortest backward walk from point of body to the
// function entry, ordered from the entry to point. It returns nil when the
// entry cannot be reached.
func EntryTrace(fn *cfg.Function, body *cfg.Body, point int) []Step {
	main := fn.Main()
	if main == nil {
		return nil
	}
	// seen holds the visited points of each body.
	seen := make(map[cfg.BlockID]*roaring.Bitmap, len(fn.Bodies))
	mark := func(b *cfg.Body, pt int) bool {
		bm, ok := seen[b.BlockID]
		if !ok {
			bm = roaring.New()
			seen[b.BlockID] = bm
		}
		return bm.CheckedAdd(uint32(pt))
	}
	mark(body, point)
	queue := []*Path{{Body: body, Point: point}}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if p.Body == main && p.Point == main.Entry() {
			return p.Trace()
		}

		visit := func(b *cfg.Body, pt int, edge *cfg.Edge) {
			if !mark(b, pt) {
				return
			}
			queue = append(queue, &Path{Pred: p, Body: b, Point: pt, Edge: edge})
		}
		for _, edge := range p.Body.Predecessors(p.Point) {
			visit(p.Body, edge.Source(), edge)
		}
		for _, b := range bridges(fn, p.Body, p.Point) {
			visit(b.body, b.point, nil)
		}
	}
	return nil
}
