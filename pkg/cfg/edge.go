package cfg

// EdgeKind is the statement shape carried by an Edge.
type EdgeKind string

const (
	EdgeAssign   EdgeKind = "Assign"
	EdgeCall     EdgeKind = "Call"
	EdgeAssume   EdgeKind = "Assume"
	EdgeLoop     EdgeKind = "Loop"
	EdgeAssembly EdgeKind = "Assembly"
)

// Edge is a directed statement between two points of a Body.
//
// Assign edges carry Exp = [lhs, rhs]. Call edges carry Exp = [callee] or
// [callee, lhs] when the result is stored, plus an optional receiver
// (Instance), arguments, and extra resolved callee Candidates. Assume edges
// carry Exp = [condition]. Loop edges name the loop body in BlockID.
type Edge struct {
	Kind       EdgeKind `json:"kind"`
	Index      [2]int   `json:"index"`
	Exp        []Expr   `json:"exp,omitempty"`
	Instance   *Expr    `json:"instance,omitempty"`
	Args       []Expr   `json:"args,omitempty"`
	Candidates []Expr   `json:"candidates,omitempty"`
	BlockID    *BlockID `json:"block,omitempty"`
}

// Source returns the point the edge leaves.
func (e *Edge) Source() int { return e.Index[0] }

// Dest returns the point the edge reaches.
func (e *Edge) Dest() int { return e.Index[1] }

// LHS returns the expression written by an Assign or Call edge, or nil.
func (e *Edge) LHS() *Expr {
	switch e.Kind {
	case EdgeAssign:
		if len(e.Exp) > 0 {
			return &e.Exp[0]
		}
	case EdgeCall:
		if len(e.Exp) > 1 {
			return &e.Exp[1]
		}
	}
	return nil
}

// RHS returns the value expression of an Assign edge, or nil.
func (e *Edge) RHS() *Expr {
	if e.Kind == EdgeAssign && len(e.Exp) > 1 {
		return &e.Exp[1]
	}
	return nil
}

// Callee returns the callee expression of a Call edge, or nil.
func (e *Edge) Callee() *Expr {
	if e.Kind == EdgeCall && len(e.Exp) > 0 {
		return &e.Exp[0]
	}
	return nil
}

// Condition returns the tested expression of an Assume edge, or nil.
func (e *Edge) Condition() *Expr {
	if e.Kind == EdgeAssume && len(e.Exp) > 0 {
		return &e.Exp[0]
	}
	return nil
}

// StaticCallee returns the function name of a direct call, or "".
func (e *Edge) StaticCallee() string {
	callee := e.Callee()
	if callee == nil || callee.Kind != ExprVar || callee.Variable == nil {
		return ""
	}
	if callee.Variable.Kind != VarFunc {
		return ""
	}
	return callee.Variable.Name
}
