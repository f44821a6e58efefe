package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/715d/rootcheck/pkg/hazards"
)

// WriteSummary renders run statistics as a borderless table followed by a
// pass or fail line.
func WriteSummary(w io.Writer, stats *hazards.Stats, failing int, colored bool) error {
	title := color.New(color.Bold)
	status := color.New(color.FgGreen, color.Bold)
	if failing > 0 {
		status = color.New(color.FgRed, color.Bold)
	}
	for _, c := range []*color.Color{title, status} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	title.Fprintln(w, "Summary")
	fmt.Fprintln(w)

	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{
					AutoFormat: tw.On,
				},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.Border{
				Left:   tw.Off,
				Right:  tw.Off,
				Top:    tw.Off,
				Bottom: tw.Off,
			},
			Settings: tw.Settings{
				Separators: tw.Separators{
					BetweenColumns: tw.Off,
				},
			},
		}),
	)
	table.Header([]string{"Metric", "Count"})
	rows := [][]string{
		{"functions", strconv.Itoa(stats.Functions)},
		{"variables", strconv.Itoa(stats.Variables)},
	}
	for _, kind := range hazards.Kinds {
		rows = append(rows, []string{string(kind), strconv.Itoa(stats.Records[kind])})
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("append summary row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render summary: %w", err)
	}
	fmt.Fprintln(w)

	if failing > 0 {
		status.Fprintf(w, "FAIL: %d failing record(s) in %s\n", failing, stats.Duration.Round(time.Millisecond))
	} else {
		status.Fprintf(w, "PASS in %s\n", stats.Duration.Round(time.Millisecond))
	}
	return nil
}
