// Package report renders hazard records and run statistics.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/715d/rootcheck/pkg/hazards"
	"github.com/715d/rootcheck/pkg/search"
)

// Format selects the record rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Writer renders records to an io.Writer.
type Writer struct {
	w       io.Writer
	format  Format
	colored bool
}

// NewWriter returns a Writer. Colors are only used for FormatText.
func NewWriter(w io.Writer, format Format, colored bool) *Writer {
	return &Writer{w: w, format: format, colored: colored}
}

// Write renders records in order.
func (w *Writer) Write(records []hazards.Record) error {
	if w.format == FormatJSON {
		return WriteJSON(w.w, records)
	}
	return WriteText(w.w, records, w.colored)
}

// WriteJSON writes one JSON object per record.
func WriteJSON(w io.Writer, records []hazards.Record) error {
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	return nil
}

type palette struct {
	tag, name, loc, faint *color.Color
}

func newPalette(colored bool, tag color.Attribute) palette {
	p := palette{
		tag:   color.New(tag, color.Bold),
		name:  color.New(color.Bold),
		loc:   color.New(color.FgCyan),
		faint: color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.tag, p.name, p.loc, p.faint} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

var kindColors = map[hazards.Kind]color.Attribute{
	hazards.KindUnrooted:    color.FgRed,
	hazards.KindUnnecessary: color.FgYellow,
	hazards.KindAddress:     color.FgMagenta,
	hazards.KindMissing:     color.FgRed,
}

// WriteText writes a human readable description of each record, with the
// witness trace indented below hazards.
func WriteText(w io.Writer, records []hazards.Record, colored bool) error {
	palettes := make(map[hazards.Kind]palette, len(kindColors))
	for kind, attr := range kindColors {
		palettes[kind] = newPalette(colored, attr)
	}
	for i := range records {
		r := &records[i]
		p := palettes[r.Kind]
		if err := writeRecord(w, r, p); err != nil {
			return err
		}
	}
	return nil
}

func writeRecord(w io.Writer, r *hazards.Record, p palette) error {
	tag := p.tag.Sprintf("[%s]", r.Kind)
	fn := p.name.Sprint(r.Function)
	var err error
	switch r.Kind {
	case hazards.KindUnrooted:
		h := r.Hazard
		expected := ""
		if h.Expected {
			expected = p.faint.Sprint(" (expected)")
		}
		_, err = fmt.Fprintf(w, "%s %s: unrooted '%s' of type '%s' live across GC call %s at %s, used at %s%s\n",
			tag, fn, h.Variable, h.Type, h.GC, p.loc.Sprint(h.GCAt), p.loc.Sprint(h.Use), expected)
		if err == nil {
			err = writeTrace(w, h.Trace, p)
		}
	case hazards.KindUnnecessary:
		u := r.Unnecessary
		_, err = fmt.Fprintf(w, "%s %s: unnecessary root '%s' of type '%s' at %s\n",
			tag, fn, u.Variable, u.Type, p.loc.Sprint(u.FirstUse))
	case hazards.KindAddress:
		a := r.AddressTaken
		how := "stored"
		if a.GC != nil {
			how = "passed to GC call " + a.GC.String()
		}
		_, err = fmt.Fprintf(w, "%s %s: address of unrooted '%s' of type '%s' %s at %s\n",
			tag, fn, a.Variable, a.Type, how, p.loc.Sprint(a.At))
		if err == nil {
			err = writeTrace(w, a.Trace, p)
		}
	case hazards.KindMissing:
		_, err = fmt.Fprintf(w, "%s %s: expected hazards but none were found at %s\n",
			tag, fn, p.loc.Sprint(r.Missing.At))
	default:
		_, err = fmt.Fprintf(w, "%s %s\n", tag, fn)
	}
	if err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func writeTrace(w io.Writer, steps []search.Step, p palette) error {
	for _, s := range steps {
		edge := ""
		if s.Edge != nil {
			edge = " " + p.faint.Sprint(string(s.Edge.Kind))
		}
		if _, err := fmt.Fprintf(w, "    %s:%d %s%s\n", s.Block, s.Point, p.loc.Sprint(s.Location), edge); err != nil {
			return fmt.Errorf("write trace: %w", err)
		}
	}
	return nil
}
