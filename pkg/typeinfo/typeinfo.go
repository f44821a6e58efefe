// Package typeinfo classifies declared types as rooted, unrooted GC
// pointers, or irrelevant to the hazard analysis.
package typeinfo

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/rootcheck/pkg/cfg"
)

// ErrNoTables is returned when the classification tables are empty.
var ErrNoTables = errors.New("type tables are empty")

// Tables lists the class, struct and union names of each category.
type Tables struct {
	GCThings       []string `json:"GCThings"`
	GCPointers     []string `json:"GCPointers"`
	GCRefs         []string `json:"GCRefs"`
	RootedWrappers []string `json:"RootedWrappers"`
}

// LoadFile reads Tables from a JSON file.
func LoadFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read type tables: %w", err)
	}
	var t Tables
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse type tables %s: %w", path, err)
	}
	if len(t.GCThings)+len(t.GCPointers)+len(t.GCRefs)+len(t.RootedWrappers) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoTables)
	}
	return &t, nil
}

// Kind is the category of a class name.
type Kind int

const (
	KindNone Kind = iota
	KindGCThing
	KindGCPointer
	KindGCRef
	KindRootedWrapper
)

// Class is the category of a declared variable type.
type Class int

const (
	// None types cannot hold an unrooted GC pointer.
	None Class = iota
	// Rooted types register their referent with the collector.
	Rooted
	// Unrooted types hold a raw GC pointer.
	Unrooted
)

func (c Class) String() string {
	switch c {
	case Rooted:
		return "rooted"
	case Unrooted:
		return "unrooted"
	}
	return "none"
}

// Classifier answers type queries against a fixed set of Tables. It is safe
// for concurrent use.
type Classifier struct {
	kinds map[string]Kind

	// cache maps raw class names, template arguments included, to their kind.
	cache *xsync.Map[string, Kind]
}

// NewClassifier builds a Classifier. Later categories win when a name is
// listed twice, so a rooted wrapper listed as a GC pointer stays rooted.
func NewClassifier(t *Tables) *Classifier {
	c := &Classifier{
		kinds: make(map[string]Kind),
		cache: xsync.NewMap[string, Kind](),
	}
	for _, group := range []struct {
		names []string
		kind  Kind
	}{
		{t.GCThings, KindGCThing},
		{t.GCPointers, KindGCPointer},
		{t.GCRefs, KindGCRef},
		{t.RootedWrappers, KindRootedWrapper},
	} {
		for _, name := range group.names {
			c.kinds[cfg.StripTemplateArgs(name)] = group.kind
		}
	}
	return c
}

// KindOf returns the category of a class name. Template arguments are
// ignored, so "JS::Rooted<JSObject*>" is looked up as "JS::Rooted".
func (c *Classifier) KindOf(name string) Kind {
	if k, ok := c.cache.Load(name); ok {
		return k
	}
	k := c.kinds[cfg.StripTemplateArgs(name)]
	c.cache.Store(name, k)
	return k
}

// Classify returns the class of a declared type.
//
// Arrays are classified by their element. A pointer is unrooted when it
// points to a GC thing. A reference to a GC-ref annotated class is an
// unrooted GC reference; any other reference is classified like its
// referent, except that a reference to a rooted wrapper roots nothing
// itself.
func (c *Classifier) Classify(t *cfg.Type) Class {
	if t == nil {
		return None
	}
	switch t.Kind {
	case cfg.TypeArray:
		return c.Classify(t.Elem)
	case cfg.TypePointer:
		if t.IsReference() {
			if c.csuKind(t.Elem) == KindGCRef {
				return Unrooted
			}
			if class := c.Classify(t.Elem); class != Rooted {
				return class
			}
			return None
		}
		if c.csuKind(t.Elem) == KindGCThing {
			return Unrooted
		}
	case cfg.TypeCSU:
		switch c.KindOf(t.Name) {
		case KindRootedWrapper:
			return Rooted
		case KindGCPointer, KindGCRef:
			return Unrooted
		}
	}
	return None
}

func (c *Classifier) csuKind(t *cfg.Type) Kind {
	if t == nil || t.Kind != cfg.TypeCSU {
		return KindNone
	}
	return c.KindOf(t.Name)
}
