// Package hazards runs the rooting hazard analysis over functions and
// reports unrooted values live across GC, unnecessary roots, and unsafe
// address-taking.
package hazards

import (
	"github.com/715d/rootcheck/pkg/cfg"
	"github.com/715d/rootcheck/pkg/oracle"
	"github.com/715d/rootcheck/pkg/search"
)

// Kind tags a Record.
type Kind string

const (
	KindUnrooted    Kind = "unrooted"
	KindUnnecessary Kind = "unnecessary"
	KindAddress     Kind = "address"
	KindMissing     Kind = "missing"
)

// Kinds lists every record kind in report order.
var Kinds = []Kind{KindUnrooted, KindUnnecessary, KindAddress, KindMissing}

// Hazard is an unrooted GC pointer that is live across a call that can GC.
type Hazard struct {
	Variable string          `json:"variable"`
	Type     string          `json:"type"`
	Use      cfg.Location    `json:"use"`
	GC       oracle.Evidence `json:"gc"`
	GCAt     cfg.Location    `json:"gc_location"`
	Trace    []search.Step   `json:"trace"`
	Expected bool            `json:"expected,omitempty"`
}

// UnnecessaryRoot is a rooted variable that is never live across a GC.
type UnnecessaryRoot struct {
	Variable string       `json:"variable"`
	Type     string       `json:"type"`
	FirstUse cfg.Location `json:"first_use"`
}

// AddressTaken is an unrooted GC pointer whose address escapes, either by
// assignment or into a call that can GC.
type AddressTaken struct {
	Variable string           `json:"variable"`
	Type     string           `json:"type"`
	At       cfg.Location     `json:"location"`
	GC       *oracle.Evidence `json:"gc,omitempty"`
	Trace    []search.Step    `json:"trace,omitempty"`
}

// MissingExpectedHazard reports a function annotated as having hazards in
// which none were found.
type MissingExpectedHazard struct {
	At cfg.Location `json:"location"`
}

// Record is one finding. Exactly one of the payload fields is set,
// matching Kind.
type Record struct {
	Kind     Kind   `json:"kind"`
	Function string `json:"function"`

	Hazard       *Hazard                `json:"hazard,omitempty"`
	Unnecessary  *UnnecessaryRoot       `json:"unnecessary,omitempty"`
	AddressTaken *AddressTaken          `json:"address,omitempty"`
	Missing      *MissingExpectedHazard `json:"missing,omitempty"`
}

// Location returns the primary source position of the record.
func (r *Record) Location() cfg.Location {
	switch r.Kind {
	case KindUnrooted:
		return r.Hazard.Use
	case KindUnnecessary:
		return r.Unnecessary.FirstUse
	case KindAddress:
		return r.AddressTaken.At
	case KindMissing:
		return r.Missing.At
	}
	return cfg.Location{}
}

// Variable returns the variable the record is about, or "".
func (r *Record) Variable() string {
	switch r.Kind {
	case KindUnrooted:
		return r.Hazard.Variable
	case KindUnnecessary:
		return r.Unnecessary.Variable
	case KindAddress:
		return r.AddressTaken.Variable
	}
	return ""
}

// Failing reports whether the record should fail a run. Unnecessary roots
// and expected hazards do not.
func (r *Record) Failing() bool {
	switch r.Kind {
	case KindUnrooted:
		return !r.Hazard.Expected
	case KindUnnecessary:
		return false
	}
	return true
}
