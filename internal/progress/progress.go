// Package progress reports analysis progress on stderr.
package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Tracker counts analyzed functions. It is safe for concurrent use.
type Tracker struct {
	bar *progressbar.ProgressBar
}

// NewTracker creates a progress bar with the given label and total count.
func NewTracker(label string, total int) *Tracker {
	return newTracker(os.Stderr, label, total)
}

func newTracker(w io.Writer, label string, total int) *Tracker {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Tracker{bar: bar}
}

// Add advances the bar by n. A nil Tracker does nothing.
func (t *Tracker) Add(n int) error {
	if t == nil {
		return nil
	}
	return t.bar.Add(n)
}

// Finish clears the bar.
func (t *Tracker) Finish() {
	if t == nil {
		return
	}
	_ = t.bar.Finish()
	_ = t.bar.Clear()
}
