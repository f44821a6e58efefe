package oracle

import (
	"github.com/715d/rootcheck/pkg/cfg"
)

// Callee is a resolved call target. It is one of Direct, Indirect, Field or
// Unknown.
type Callee interface {
	callee()
	String() string
}

// Direct is a call to a named function.
type Direct struct {
	Name string
}

// Indirect is a call through a function pointer held in a variable.
type Indirect struct {
	Variable cfg.Variable
}

// Field is a call through a function pointer stored in a class field, such
// as a virtual method slot.
type Field struct {
	Class string
	Field string
}

// Unknown is a call target that could not be resolved.
type Unknown struct{}

func (Direct) callee()   {}
func (Indirect) callee() {}
func (Field) callee()    {}
func (Unknown) callee()  {}

func (d Direct) String() string   { return d.Name }
func (i Indirect) String() string { return "*" + i.Variable.String() }
func (f Field) String() string    { return FieldKey(f.Class, f.Field) }
func (Unknown) String() string    { return "<unknown>" }

// FieldKey returns the GC function set key of a field call.
func FieldKey(class, field string) string {
	return class + "." + field
}

// Callees resolves the callee expression of a call edge followed by its
// extra candidates, in order. Non-call edges have no callees.
func Callees(edge *cfg.Edge) []Callee {
	callee := edge.Callee()
	if callee == nil {
		return nil
	}
	out := make([]Callee, 0, 1+len(edge.Candidates))
	out = append(out, resolve(callee))
	for i := range edge.Candidates {
		out = append(out, resolve(&edge.Candidates[i]))
	}
	return out
}

func resolve(e *cfg.Expr) Callee {
	switch e.Kind {
	case cfg.ExprVar:
		if e.Variable == nil {
			return Unknown{}
		}
		if e.Variable.Kind == cfg.VarFunc {
			return Direct{Name: e.Variable.Name}
		}
		return Indirect{Variable: *e.Variable}
	case cfg.ExprDrf:
		if len(e.Exp) == 0 {
			return Unknown{}
		}
		inner := &e.Exp[0]
		switch {
		case inner.Kind == cfg.ExprVar && inner.Variable != nil:
			if inner.Variable.Kind == cfg.VarFunc {
				return Direct{Name: inner.Variable.Name}
			}
			return Indirect{Variable: *inner.Variable}
		case inner.Kind == cfg.ExprFld && inner.Field != nil:
			return Field{Class: inner.Field.CSU, Field: inner.Field.Name}
		}
	case cfg.ExprFld:
		if e.Field != nil {
			return Field{Class: e.Field.CSU, Field: e.Field.Name}
		}
	}
	return Unknown{}
}
