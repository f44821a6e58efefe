package cfg

import "strings"

// ExprKind is the shape of an Expr.
type ExprKind string

const (
	// ExprVar denotes the storage of a variable, not its value.
	ExprVar ExprKind = "Var"
	// ExprDrf reads the value stored at its operand.
	ExprDrf    ExprKind = "Drf"
	ExprFld    ExprKind = "Fld"
	ExprInt    ExprKind = "Int"
	ExprString ExprKind = "String"
	ExprIndex  ExprKind = "Index"
	ExprBinop  ExprKind = "Binop"
	ExprUnop   ExprKind = "Unop"
	ExprOther  ExprKind = "Other"
)

// baseFieldPrefix marks the unnamed field through which a base class
// subobject is reached.
const baseFieldPrefix = "field:"

// Field is a member access target.
type Field struct {
	Name string `json:"name"`
	CSU  string `json:"csu,omitempty"`
}

// Expr is an lvalue-based expression tree: Var x is the location of x and
// Drf(Var x) loads its value.
type Expr struct {
	Kind     ExprKind  `json:"kind"`
	Variable *Variable `json:"variable,omitempty"`
	Field    *Field    `json:"field,omitempty"`
	Exp      []Expr    `json:"exp,omitempty"`
	Value    string    `json:"value,omitempty"`
}

// Var returns the location expression of v.
func Var(v Variable) Expr {
	return Expr{Kind: ExprVar, Variable: &v}
}

// Deref returns an expression loading the value at e.
func Deref(e Expr) Expr {
	return Expr{Kind: ExprDrf, Exp: []Expr{e}}
}

// Load returns an expression reading the value of v.
func Load(v Variable) Expr {
	return Deref(Var(v))
}

// FieldOf returns the location of field name of class csu within base.
func FieldOf(base Expr, csu, name string) Expr {
	return Expr{Kind: ExprFld, Field: &Field{Name: name, CSU: csu}, Exp: []Expr{base}}
}

// Int returns an integer literal.
func Int(value string) Expr {
	return Expr{Kind: ExprInt, Value: value}
}

// FuncRef returns the callee expression of a direct call to name.
func FuncRef(name string) Expr {
	return Var(Func(name))
}

// IsVariable reports whether e is exactly the location of v.
func (e *Expr) IsVariable(v Variable) bool {
	return e != nil && e.Kind == ExprVar && e.Variable != nil && *e.Variable == v
}

// Mentions reports whether v appears anywhere in e.
func (e *Expr) Mentions(v Variable) bool {
	if e == nil {
		return false
	}
	if e.IsVariable(v) {
		return true
	}
	for i := range e.Exp {
		if e.Exp[i].Mentions(v) {
			return true
		}
	}
	return false
}

// ReadsContents reports whether e loads through a subexpression mentioning
// v, as opposed to only testing or copying v's address.
func (e *Expr) ReadsContents(v Variable) bool {
	if e == nil {
		return false
	}
	for i := range e.Exp {
		child := &e.Exp[i]
		if child.Kind == ExprDrf {
			if child.Mentions(v) {
				return true
			}
		} else if child.ReadsContents(v) {
			return true
		}
	}
	return false
}

// IsAddressOf reports whether e is v's storage or a field within it.
func (e *Expr) IsAddressOf(v Variable) bool {
	for e != nil && e.Kind == ExprFld && len(e.Exp) > 0 {
		e = &e.Exp[0]
	}
	return e.IsVariable(v)
}

// IsReceiver reports whether e is v itself or one of v's base class
// subobjects, as seen on the receiver of a method call.
func (e *Expr) IsReceiver(v Variable) bool {
	for e != nil && e.Kind == ExprFld && len(e.Exp) > 0 && e.Field != nil &&
		strings.HasPrefix(e.Field.Name, baseFieldPrefix) {
		e = &e.Exp[0]
	}
	return e.IsVariable(v)
}

// IsNull reports whether e is the immobile null constant.
func (e *Expr) IsNull() bool {
	return e != nil && e.Kind == ExprInt && e.Value == "0"
}
