package hazards

import (
	"fmt"
	"log/slog"

	"github.com/715d/rootcheck/pkg/attrs"
	"github.com/715d/rootcheck/pkg/cfg"
	"github.com/715d/rootcheck/pkg/liverange"
	"github.com/715d/rootcheck/pkg/oracle"
	"github.com/715d/rootcheck/pkg/search"
	"github.com/715d/rootcheck/pkg/suppress"
	"github.com/715d/rootcheck/pkg/typeinfo"
)

// Oracle decides whether edges can GC and which attributes apply to whole
// functions.
type Oracle interface {
	search.Oracle
	FunctionAttrs(name string) attrs.Set
}

// Options holds the read-only tables shared by every analyzed function.
type Options struct {
	Oracle     Oracle
	Classifier *typeinfo.Classifier
	Ignore     *suppress.Policy
	Guards     []attrs.Guard
}

// Analyzer checks functions one at a time. It holds no per-function state
// and is safe for concurrent use.
type Analyzer struct {
	opts Options
}

// NewAnalyzer creates a new analyzer with the given options.
func NewAnalyzer(opts Options) *Analyzer {
	return &Analyzer{opts: opts}
}

// Witness is a use of a variable together with the path proving it live
// across a GC.
type Witness struct {
	Path  *search.Path
	Use   *cfg.Edge
	Body  *cfg.Body
	Point int
}

// functionAnalysis is the per-function state of one AnalyzeFunction call.
type functionAnalysis struct {
	*Analyzer
	fn        *cfg.Function
	funcAttrs attrs.Set
	scopes    *attrs.Table
}

func (a *Analyzer) newFunctionAnalysis(fn *cfg.Function) (*functionAnalysis, error) {
	if !fn.Prepared() {
		if err := fn.Prepare(); err != nil {
			return nil, fmt.Errorf("prepare: %w", err)
		}
	}
	return &functionAnalysis{
		Analyzer:  a,
		fn:        fn,
		funcAttrs: a.opts.Oracle.FunctionAttrs(fn.Name),
		scopes:    attrs.GuardScopes(fn, a.opts.Guards),
	}, nil
}

// AnalyzeFunction checks every declared variable of fn and returns the
// records found, in declaration order.
func (a *Analyzer) AnalyzeFunction(fn *cfg.Function) ([]Record, error) {
	fa, err := a.newFunctionAnalysis(fn)
	if err != nil {
		return nil, err
	}
	decls := variables(fn)
	if len(decls) == 0 {
		return nil, nil
	}

	ignore := a.opts.Ignore.Checker(fn)
	var records []Record
	for _, decl := range decls {
		if suppressed, reason := ignore.IsSuppressed(decl); suppressed {
			slog.Debug("variable ignored", "function", fn.Name, "variable", decl.Variable.String(), "reason", reason)
			continue
		}

		var rec []Record
		switch a.opts.Classifier.Classify(decl.Type) {
		case typeinfo.Rooted:
			rec, err = fa.checkRoot(decl)
		case typeinfo.Unrooted:
			rec, err = fa.checkUnrooted(decl)
		}
		if err != nil {
			return nil, fmt.Errorf("function %q variable %s: %w", fn.Name, decl.Variable, err)
		}
		records = append(records, rec...)
	}

	if fn.HasAnnotation(cfg.AnnotationExpectHazards) {
		records = markExpected(fn, records)
	}
	return records, nil
}

// LiveAcrossGC returns the first use of v, over all bodies in order, that
// is reached from a live range start across an edge that can GC, or nil.
func (a *Analyzer) LiveAcrossGC(fn *cfg.Function, v cfg.Variable) (*Witness, error) {
	fa, err := a.newFunctionAnalysis(fn)
	if err != nil {
		return nil, err
	}
	return fa.liveAcrossGC(v)
}

func (fa *functionAnalysis) liveAcrossGC(v cfg.Variable) (*Witness, error) {
	for _, body := range fa.fn.Bodies {
		for i := range body.Edges {
			edge := &body.Edges[i]
			if liverange.EndsLiveRange(edge, v) {
				continue
			}
			point, ok := liverange.UsesVariable(edge, v, body)
			if !ok {
				continue
			}
			path, err := search.FindWitness(fa.fn, body, point, fa.funcAttrs, fa.scopes, fa.opts.Oracle, v)
			if err != nil {
				return nil, err
			}
			if path != nil {
				return &Witness{Path: path, Use: edge, Body: body, Point: point}, nil
			}
		}
	}
	return nil, nil
}

func (fa *functionAnalysis) checkRoot(decl cfg.Declaration) ([]Record, error) {
	w, err := fa.liveAcrossGC(decl.Variable)
	if err != nil || w != nil {
		return nil, err
	}
	first, ok := fa.firstUse(decl.Variable)
	if !ok {
		return nil, nil
	}
	return []Record{{
		Kind:     KindUnnecessary,
		Function: fa.fn.Name,
		Unnecessary: &UnnecessaryRoot{
			Variable: decl.Variable.String(),
			Type:     decl.Type.String(),
			FirstUse: first,
		},
	}}, nil
}

// firstUse returns the location of the earliest line on which v is used or
// its live range starts.
func (fa *functionAnalysis) firstUse(v cfg.Variable) (cfg.Location, bool) {
	var (
		first cfg.Location
		found bool
	)
	for _, body := range fa.fn.Bodies {
		for i := range body.Edges {
			edge := &body.Edges[i]
			_, uses := liverange.UsesVariable(edge, v, body)
			if !uses && !liverange.StartsLiveRange(edge, v) {
				continue
			}
			loc := body.PointLocation(edge.Source())
			if !found || loc.Line < first.Line {
				first, found = loc, true
			}
		}
	}
	return first, found
}

func (fa *functionAnalysis) checkUnrooted(decl cfg.Declaration) ([]Record, error) {
	var records []Record

	w, err := fa.liveAcrossGC(decl.Variable)
	if err != nil {
		return nil, err
	}
	if w != nil {
		gc := w.Path.GC
		records = append(records, Record{
			Kind:     KindUnrooted,
			Function: fa.fn.Name,
			Hazard: &Hazard{
				Variable: decl.Variable.String(),
				Type:     decl.Type.String(),
				Use:      w.Body.PointLocation(w.Point),
				GC:       gc.Evidence,
				GCAt:     gc.Location(),
				Trace:    w.Path.Trace(),
			},
		})
	}

	if taken := fa.addressTaken(decl); taken != nil {
		records = append(records, Record{Kind: KindAddress, Function: fa.fn.Name, AddressTaken: taken})
	}
	return records, nil
}

// addressTaken returns the first edge that stores the address of the
// variable or passes it to a call that can GC.
func (fa *functionAnalysis) addressTaken(decl cfg.Declaration) *AddressTaken {
	if fa.funcAttrs.Has(attrs.GCSuppressed) {
		return nil
	}
	v := decl.Variable
	for _, body := range fa.fn.Bodies {
		for i := range body.Edges {
			edge := &body.Edges[i]
			if !liverange.TakesAddress(edge, v) {
				continue
			}
			var evidence *oracle.Evidence
			if edge.Kind == cfg.EdgeCall {
				set := fa.funcAttrs | fa.scopes.At(body.BlockID, edge.Source())
				ev, ok := fa.opts.Oracle.CanGC(fa.fn.Name, edge, set)
				if !ok {
					continue
				}
				evidence = &ev
			}
			return &AddressTaken{
				Variable: v.String(),
				Type:     decl.Type.String(),
				At:       body.PointLocation(edge.Source()),
				GC:       evidence,
				Trace:    search.EntryTrace(fa.fn, body, edge.Source()),
			}
		}
	}
	return nil
}

// markExpected flags hazards of a function annotated as having them, or
// reports that the annotation is stale.
func markExpected(fn *cfg.Function, records []Record) []Record {
	found := false
	for i := range records {
		if records[i].Kind == KindUnrooted {
			records[i].Hazard.Expected = true
			found = true
		}
	}
	if found {
		return records
	}
	return append(records, Record{
		Kind:     KindMissing,
		Function: fn.Name,
		Missing:  &MissingExpectedHazard{At: fn.Main().Location[0]},
	})
}

// variables returns the declarations of every body, main body first,
// keeping the first declaration of each variable.
func variables(fn *cfg.Function) []cfg.Declaration {
	seen := make(map[cfg.Variable]bool)
	var decls []cfg.Declaration
	for _, body := range fn.Bodies {
		for _, decl := range body.DefineVariable {
			if seen[decl.Variable] {
				continue
			}
			seen[decl.Variable] = true
			decls = append(decls, decl)
		}
	}
	return decls
}
