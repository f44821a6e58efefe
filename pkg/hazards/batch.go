package hazards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/715d/rootcheck/pkg/cfg"
)

// ErrInvalidBatch is returned for batch numbers outside 1..count.
var ErrInvalidBatch = errors.New("invalid batch")

// Store provides function bodies by key. Keys run from 1 to Len().
type Store interface {
	Len() int
	NameAt(key int) (string, error)
	Load(name string) (*cfg.Function, error)
}

// Progress is notified after each analyzed function.
type Progress interface {
	Add(n int) error
}

// Partition returns the inclusive key range [start, end] of the 1-based
// batch out of count over [minKey, maxKey]. The ranges of all batches are
// disjoint and cover the whole key range; a range may be empty (end <
// start) when there are more batches than keys.
func Partition(batch, count, minKey, maxKey int) (start, end int, err error) {
	if count < 1 || batch < 1 || batch > count {
		return 0, 0, fmt.Errorf("%w: %d of %d", ErrInvalidBatch, batch, count)
	}
	n := max(maxKey-minKey+1, 0)
	start = minKey + (batch-1)*n/count
	end = minKey + batch*n/count - 1
	return start, end, nil
}

// RunOptions selects the batches a Run processes.
type RunOptions struct {
	// Count is the total number of batches the key range is split into.
	Count int

	// Batches lists the 1-based batches to process. Empty means all.
	Batches []int

	// Jobs bounds the number of batches processed concurrently. Zero
	// means one per CPU.
	Jobs int

	Progress Progress
}

// Stats summarizes a Run.
type Stats struct {
	Functions int
	Variables int
	Records   map[Kind]int
	Duration  time.Duration
}

// Failing counts the records that should fail a run.
func Failing(records []Record) int {
	n := 0
	for i := range records {
		if records[i].Failing() {
			n++
		}
	}
	return n
}

// Run analyzes the selected batches of store. Records are returned in batch
// order and, within a batch, in key order. Any error aborts the run.
func (a *Analyzer) Run(ctx context.Context, store Store, opts RunOptions) ([]Record, *Stats, error) {
	began := time.Now()
	count := max(opts.Count, 1)
	batches := opts.Batches
	if len(batches) == 0 {
		for b := 1; b <= count; b++ {
			batches = append(batches, b)
		}
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = goruntime.NumCPU()
	}

	// Each batch writes only its own slot.
	results := make([][]Record, len(batches))
	analyzed := make([]int, len(batches))
	vars := make([]int, len(batches))

	type keyRange struct{ start, end int }
	ranges := make([]keyRange, len(batches))
	for idx, batch := range batches {
		start, end, err := Partition(batch, count, 1, store.Len())
		if err != nil {
			return nil, nil, err
		}
		ranges[idx] = keyRange{start, end}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for idx, batch := range batches {
		start, end := ranges[idx].start, ranges[idx].end
		g.Go(func() error {
			slog.Debug("batch started", "batch", batch, "start", start, "end", end)
			for key := start; key <= end; key++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				records, n, err := a.analyzeKey(store, key)
				if err != nil {
					return fmt.Errorf("batch %d: %w", batch, err)
				}
				results[idx] = append(results[idx], records...)
				analyzed[idx]++
				vars[idx] += n
				if opts.Progress != nil {
					_ = opts.Progress.Add(1)
				}
			}
			slog.Debug("batch finished", "batch", batch, "functions", analyzed[idx], "records", len(results[idx]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	stats := &Stats{Records: make(map[Kind]int)}
	var all []Record
	for idx := range results {
		all = append(all, results[idx]...)
		stats.Functions += analyzed[idx]
		stats.Variables += vars[idx]
	}
	for i := range all {
		stats.Records[all[i].Kind]++
	}
	stats.Duration = time.Since(began)
	return all, stats, nil
}

func (a *Analyzer) analyzeKey(store Store, key int) ([]Record, int, error) {
	name, err := store.NameAt(key)
	if err != nil {
		return nil, 0, fmt.Errorf("key %d: %w", key, err)
	}
	fn, err := store.Load(name)
	if err != nil {
		return nil, 0, fmt.Errorf("load %q: %w", name, err)
	}
	records, err := a.AnalyzeFunction(fn)
	if err != nil {
		return nil, 0, fmt.Errorf("analyze %q: %w", name, err)
	}
	return records, len(variables(fn)), nil
}
