// Package attrs defines the suppression attributes consulted by the GC
// oracle and computes the scopes of RAII guards that set them.
package attrs

import (
	"fmt"
	"strings"
)

// Set is a bitset of suppression attributes.
type Set uint32

const (
	// GCSuppressed means no collection can happen.
	GCSuppressed Set = 1 << iota
	// CanScriptBounded limits the set of scripts that can run.
	CanScriptBounded
	// DOMIterating marks DOM iteration scopes.
	DOMIterating
	// NonReleasing means no reference is released.
	NonReleasing
	// Replaced means calls are replaced by a different implementation.
	Replaced
)

// Suppressing is the set of attributes under which a call cannot GC.
const Suppressing = GCSuppressed | Replaced

var names = []struct {
	name string
	attr Set
}{
	{"gc-suppressed", GCSuppressed},
	{"can-script-bounded", CanScriptBounded},
	{"dom-iterating", DOMIterating},
	{"nonreleasing", NonReleasing},
	{"replaced", Replaced},
}

// Has reports whether every attribute of other is set in s.
func (s Set) Has(other Set) bool {
	return s&other == other
}

// Any reports whether any attribute of other is set in s.
func (s Set) Any(other Set) bool {
	return s&other != 0
}

func (s Set) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	for _, n := range names {
		if s.Has(n.attr) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseNames converts attribute names such as "gc-suppressed" to a Set.
func ParseNames(list []string) (Set, error) {
	var s Set
	for _, name := range list {
		found := false
		for _, n := range names {
			if strings.EqualFold(n.name, strings.TrimSpace(name)) {
				s |= n.attr
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown attribute %q", name)
		}
	}
	return s, nil
}
