// Package oracle answers whether a call edge may trigger garbage
// collection, using the precomputed GC function set.
package oracle

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/715d/rootcheck/pkg/attrs"
	"github.com/715d/rootcheck/pkg/cfg"
)

// InternalSuffix is appended to the name of a function's internal variant
// in the GC function set.
const InternalSuffix = " *INTERNAL* "

// UnresolvedIndirectCanGC is the policy for calls through function pointers
// that are not whitelisted: they are assumed to GC.
const UnresolvedIndirectCanGC = true

// AnyFunction matches every function in an indirect-call whitelist.
const AnyFunction = "*"

// Evidence explains why an edge can GC.
type Evidence struct {
	Callee string `json:"callee"`
	Reason string `json:"reason,omitempty"`
}

func (e Evidence) String() string {
	if e.Reason == "" || e.Reason == e.Callee {
		return e.Callee
	}
	return e.Callee + " (" + e.Reason + ")"
}

// Options configures an Oracle.
type Options struct {
	// GCFunctions maps mangled names (and field keys) of functions that
	// can GC to evidence text.
	GCFunctions map[string]string

	// LimitedFunctions maps mangled names to their whole-function
	// attributes.
	LimitedFunctions map[string]attrs.Set

	// IndirectCannotGC maps a function name, or AnyFunction, to the
	// function pointer variables that are known not to GC within it.
	IndirectCannotGC map[string][]string

	// FieldCannotGC lists field keys (class.field) whose function pointers
	// are known not to GC.
	FieldCannotGC []string
}

// Oracle is immutable after construction and safe for concurrent use.
type Oracle struct {
	gcFunctions map[string]string
	limited     map[string]attrs.Set
	indirect    map[string]map[string]bool
	fields      map[string]bool
}

// New builds an Oracle from opts.
func New(opts Options) *Oracle {
	o := &Oracle{
		gcFunctions: opts.GCFunctions,
		limited:     opts.LimitedFunctions,
		indirect:    make(map[string]map[string]bool, len(opts.IndirectCannotGC)),
		fields:      make(map[string]bool, len(opts.FieldCannotGC)),
	}
	for fn, vars := range opts.IndirectCannotGC {
		set := make(map[string]bool, len(vars))
		for _, v := range vars {
			set[v] = true
		}
		o.indirect[fn] = set
	}
	for _, key := range opts.FieldCannotGC {
		o.fields[key] = true
	}
	return o
}

// FunctionAttrs returns the whole-function attributes of name.
func (o *Oracle) FunctionAttrs(name string) attrs.Set {
	return o.limited[name]
}

// IndirectCannotGC reports whether calls through v within function are
// whitelisted.
func (o *Oracle) IndirectCannotGC(function string, v cfg.Variable) bool {
	name := v.String()
	return o.indirect[function][name] || o.indirect[AnyFunction][name]
}

// FieldCannotGC reports whether calls through a field are whitelisted.
func (o *Oracle) FieldCannotGC(class, field string) bool {
	return o.fields[FieldKey(class, field)]
}

// CanGC reports whether edge, executed within function under the given
// attributes, may trigger a collection. The first candidate callee that
// may GC provides the evidence.
func (o *Oracle) CanGC(function string, edge *cfg.Edge, set attrs.Set) (Evidence, bool) {
	if set.Any(attrs.Suppressing) || edge.Kind != cfg.EdgeCall {
		return Evidence{}, false
	}
	for _, callee := range Callees(edge) {
		if ev, ok := o.calleeCanGC(function, callee); ok {
			return ev, true
		}
	}
	return Evidence{}, false
}

func (o *Oracle) calleeCanGC(function string, callee Callee) (Evidence, bool) {
	switch c := callee.(type) {
	case Direct:
		if reason, ok := o.gcFunctions[c.Name]; ok {
			return Evidence{Callee: c.Name, Reason: reason}, true
		}
		if reason, ok := o.gcFunctions[c.Name+InternalSuffix]; ok {
			return Evidence{Callee: c.Name, Reason: reason}, true
		}
		return Evidence{}, false
	case Indirect:
		if o.IndirectCannotGC(function, c.Variable) {
			return Evidence{}, false
		}
		return Evidence{Callee: "'" + c.String() + "'"}, UnresolvedIndirectCanGC
	case Field:
		if o.FieldCannotGC(c.Class, c.Field) {
			return Evidence{}, false
		}
		key := c.String()
		if reason, ok := o.gcFunctions[key]; ok {
			return Evidence{Callee: key, Reason: reason}, true
		}
		return Evidence{}, false
	default:
		return Evidence{Callee: Unknown{}.String()}, true
	}
}

// LoadGCFunctions reads the GC function set from a JSON object mapping
// names to evidence text.
func LoadGCFunctions(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gc functions: %w", err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse gc functions %s: %w", path, err)
	}
	if m == nil {
		m = make(map[string]string)
	}
	return m, nil
}

// LoadLimitedFunctions reads whole-function attributes from a JSON object
// mapping names to attribute bitsets.
func LoadLimitedFunctions(path string) (map[string]attrs.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read limited functions: %w", err)
	}
	var m map[string]attrs.Set
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse limited functions %s: %w", path, err)
	}
	if m == nil {
		m = make(map[string]attrs.Set)
	}
	return m, nil
}
