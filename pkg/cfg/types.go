package cfg

import "strings"

// VarKind classifies a Variable.
type VarKind string

const (
	VarFunc   VarKind = "Func"
	VarArg    VarKind = "Arg"
	VarLocal  VarKind = "Local"
	VarThis   VarKind = "This"
	VarReturn VarKind = "Return"
	VarGlobal VarKind = "Global"
)

// Variable is comparable; two variables are the same iff they are equal.
// Index is only meaningful for arguments.
type Variable struct {
	Kind  VarKind `json:"kind"`
	Name  string  `json:"name,omitempty"`
	Index int     `json:"index,omitempty"`
}

// Local returns a local variable.
func Local(name string) Variable { return Variable{Kind: VarLocal, Name: name} }

// Arg returns the index'th function argument.
func Arg(index int, name string) Variable { return Variable{Kind: VarArg, Name: name, Index: index} }

// This returns the receiver of a method.
func This() Variable { return Variable{Kind: VarThis} }

// Return returns the return value slot.
func Return() Variable { return Variable{Kind: VarReturn} }

// Func returns a function reference.
func Func(name string) Variable { return Variable{Kind: VarFunc, Name: name} }

// FunctionScoped reports whether v is shared across all bodies of its
// function rather than owned by one body.
func (v Variable) FunctionScoped() bool {
	switch v.Kind {
	case VarArg, VarThis, VarReturn:
		return true
	}
	return false
}

func (v Variable) String() string {
	switch v.Kind {
	case VarThis:
		return "this"
	case VarReturn:
		return "<returnvalue>"
	}
	return v.Name
}

// TypeKind classifies a Type.
type TypeKind string

const (
	TypeScalar   TypeKind = "Scalar"
	TypePointer  TypeKind = "Pointer"
	TypeArray    TypeKind = "Array"
	TypeCSU      TypeKind = "CSU"
	TypeFunction TypeKind = "Function"
)

// Type is a declared type. A Pointer with Reference > 0 is a C++ reference
// (1 for lvalue, 2 for rvalue).
type Type struct {
	Kind      TypeKind `json:"kind"`
	Name      string   `json:"name,omitempty"`
	Elem      *Type    `json:"elem,omitempty"`
	Reference int      `json:"reference,omitempty"`
}

// Scalar returns a named scalar type.
func Scalar(name string) *Type { return &Type{Kind: TypeScalar, Name: name} }

// CSU returns a named class, struct or union type.
func CSU(name string) *Type { return &Type{Kind: TypeCSU, Name: name} }

// PointerTo returns a pointer to t.
func PointerTo(t *Type) *Type { return &Type{Kind: TypePointer, Elem: t} }

// ReferenceTo returns an lvalue reference to t.
func ReferenceTo(t *Type) *Type { return &Type{Kind: TypePointer, Elem: t, Reference: 1} }

// ArrayOf returns an array of t.
func ArrayOf(t *Type) *Type { return &Type{Kind: TypeArray, Elem: t} }

// IsReference reports whether t is a C++ reference.
func (t *Type) IsReference() bool {
	return t != nil && t.Kind == TypePointer && t.Reference > 0
}

func (t *Type) String() string {
	if t == nil {
		return "<unknown>"
	}
	switch t.Kind {
	case TypePointer:
		switch t.Reference {
		case 0:
			return t.Elem.String() + "*"
		case 1:
			return t.Elem.String() + "&"
		default:
			return t.Elem.String() + "&&"
		}
	case TypeArray:
		return t.Elem.String() + "[]"
	case TypeFunction:
		return "<function>"
	}
	return t.Name
}

// StripTemplateArgs removes every template argument list from a qualified
// name: "JS::Rooted<JSObject*>" becomes "JS::Rooted".
func StripTemplateArgs(name string) string {
	if !strings.Contains(name, "<") {
		return name
	}
	var b strings.Builder
	depth := 0
	for _, r := range name {
		switch {
		case r == '<':
			depth++
		case r == '>' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseMethod splits a qualified function name such as
// "js::AutoLock<T>::~AutoLock()" into its template-free class
// ("js::AutoLock") and method ("~AutoLock"). ok is false for free functions.
func ParseMethod(name string) (class, method string, ok bool) {
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	name = StripTemplateArgs(name)
	i := strings.LastIndex(name, "::")
	if i < 0 {
		return "", "", false
	}
	return name[:i], name[i+2:], true
}

// IsConstructor reports whether name is a constructor of its class.
func IsConstructor(name string) bool {
	class, method, ok := ParseMethod(name)
	return ok && method == unqualified(class)
}

// IsDestructor reports whether name is a destructor of its class.
func IsDestructor(name string) bool {
	class, method, ok := ParseMethod(name)
	return ok && method == "~"+unqualified(class)
}

func unqualified(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		return name[i+2:]
	}
	return name
}
