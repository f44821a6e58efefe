// Package cfgtest provides builders for hand-written CFG bodies in tests.
package cfgtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/rootcheck/pkg/cfg"
)

// File is the file name used for every built body.
const File = "test.cpp"

// BodyBuilder assembles a cfg.Body whose point i sits at line i.
type BodyBuilder struct {
	body *cfg.Body
}

// NewBody starts the function body with n points, entry 1 and exit n.
func NewBody(n int) *BodyBuilder {
	return newBody(cfg.FunctionBlock, n)
}

// NewLoopBody starts a loop body with n points placed at parentPoint of the
// parent block.
func NewLoopBody(id string, n int, parent cfg.BlockID, parentPoint int) *BodyBuilder {
	bb := newBody(cfg.LoopBlock(id), n)
	bb.body.BlockPPoint = []cfg.BlockPPoint{{BlockID: parent, Point: parentPoint}}
	return bb
}

func newBody(id cfg.BlockID, n int) *BodyBuilder {
	points := make([]cfg.Location, n)
	for i := range points {
		points[i] = cfg.Location{File: File, Line: i + 1}
	}
	return &BodyBuilder{body: &cfg.Body{
		BlockID:  id,
		Location: [2]cfg.Location{points[0], points[n-1]},
		Index:    [2]int{1, n},
		Points:   points,
	}}
}

// Declare adds a variable declaration.
func (bb *BodyBuilder) Declare(v cfg.Variable, t *cfg.Type) *BodyBuilder {
	bb.body.DefineVariable = append(bb.body.DefineVariable, cfg.Declaration{Variable: v, Type: t})
	return bb
}

// Edge appends an arbitrary edge.
func (bb *BodyBuilder) Edge(e cfg.Edge) *BodyBuilder {
	bb.body.Edges = append(bb.body.Edges, e)
	return bb
}

// Assign appends lhs := rhs.
func (bb *BodyBuilder) Assign(from, to int, lhs, rhs cfg.Expr) *BodyBuilder {
	return bb.Edge(cfg.Edge{Kind: cfg.EdgeAssign, Index: [2]int{from, to}, Exp: []cfg.Expr{lhs, rhs}})
}

// Call appends a direct call whose result is discarded.
func (bb *BodyBuilder) Call(from, to int, callee string, args ...cfg.Expr) *BodyBuilder {
	return bb.Edge(cfg.Edge{
		Kind:  cfg.EdgeCall,
		Index: [2]int{from, to},
		Exp:   []cfg.Expr{cfg.FuncRef(callee)},
		Args:  args,
	})
}

// CallInto appends lhs := callee(args...).
func (bb *BodyBuilder) CallInto(from, to int, lhs cfg.Expr, callee string, args ...cfg.Expr) *BodyBuilder {
	return bb.Edge(cfg.Edge{
		Kind:  cfg.EdgeCall,
		Index: [2]int{from, to},
		Exp:   []cfg.Expr{cfg.FuncRef(callee), lhs},
		Args:  args,
	})
}

// Method appends a method call on receiver.
func (bb *BodyBuilder) Method(from, to int, callee string, receiver cfg.Expr, args ...cfg.Expr) *BodyBuilder {
	return bb.Edge(cfg.Edge{
		Kind:     cfg.EdgeCall,
		Index:    [2]int{from, to},
		Exp:      []cfg.Expr{cfg.FuncRef(callee)},
		Instance: &receiver,
		Args:     args,
	})
}

// Assume appends a branch condition.
func (bb *BodyBuilder) Assume(from, to int, cond cfg.Expr) *BodyBuilder {
	return bb.Edge(cfg.Edge{Kind: cfg.EdgeAssume, Index: [2]int{from, to}, Exp: []cfg.Expr{cond}})
}

// Loop appends the edge standing for loop body id.
func (bb *BodyBuilder) Loop(from, to int, id string) *BodyBuilder {
	block := cfg.LoopBlock(id)
	return bb.Edge(cfg.Edge{Kind: cfg.EdgeLoop, Index: [2]int{from, to}, BlockID: &block})
}

// Body returns the built body.
func (bb *BodyBuilder) Body() *cfg.Body {
	return bb.body
}

// Function assembles and prepares a function from bodies, main body first.
func Function(t testing.TB, name string, bodies ...*BodyBuilder) *cfg.Function {
	t.Helper()
	fn := &cfg.Function{Name: name}
	for _, bb := range bodies {
		fn.Bodies = append(fn.Bodies, bb.body)
	}
	require.NoError(t, fn.Prepare())
	return fn
}
