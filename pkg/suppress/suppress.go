// Package suppress implements the variable ignore policy of the hazard
// checker.
package suppress

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/715d/rootcheck/pkg/cfg"
)

// DefaultHolderSuffix marks a variable that keeps another one alive: a
// foo_holder variable exempts both itself and foo.
const DefaultHolderSuffix = "_holder"

// Options configures a Policy.
type Options struct {
	// HolderSuffix enables the holder idiom. Empty disables it.
	HolderSuffix string

	// Names are regular expressions matched against variable names.
	Names []string

	// Types are regular expressions matched against rendered type names.
	Types []string
}

// Policy is the immutable, compiled ignore policy. It is safe for
// concurrent use.
type Policy struct {
	holderSuffix string
	names        []*regexp.Regexp
	types        []*regexp.Regexp
}

// NewPolicy compiles opts.
func NewPolicy(opts Options) (*Policy, error) {
	p := &Policy{holderSuffix: opts.HolderSuffix}
	for _, expr := range opts.Names {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile name pattern %q: %w", expr, err)
		}
		p.names = append(p.names, re)
	}
	for _, expr := range opts.Types {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile type pattern %q: %w", expr, err)
		}
		p.types = append(p.types, re)
	}
	return p, nil
}

// Checker holds the suppressions of a single function.
type Checker struct {
	policy *Policy

	// suppressions maps variable names to the suppression reason.
	suppressions map[string]string
}

// Checker scans the declarations of fn for holder variables and returns
// the suppressions that apply within it. A nil Policy suppresses nothing.
func (p *Policy) Checker(fn *cfg.Function) *Checker {
	c := &Checker{policy: p, suppressions: make(map[string]string)}
	if p == nil || p.holderSuffix == "" || fn == nil {
		return c
	}
	for _, body := range fn.Bodies {
		for _, decl := range body.DefineVariable {
			name := decl.Variable.Name
			held, ok := strings.CutSuffix(name, p.holderSuffix)
			if !ok || held == "" {
				continue
			}
			reason := "held by " + name
			c.suppressions[name] = reason
			c.suppressions[held] = reason
		}
	}
	return c
}

// IsSuppressed reports whether decl is exempt from checking, and why.
func (c *Checker) IsSuppressed(decl cfg.Declaration) (bool, string) {
	name := decl.Variable.Name
	if reason, exists := c.suppressions[name]; exists {
		return true, reason
	}
	if c.policy == nil {
		return false, ""
	}
	for _, re := range c.policy.names {
		if re.MatchString(name) {
			return true, "name matches " + re.String()
		}
	}
	if decl.Type != nil {
		typeName := decl.Type.String()
		for _, re := range c.policy.types {
			if re.MatchString(typeName) {
				return true, "type matches " + re.String()
			}
		}
	}
	return false, ""
}
