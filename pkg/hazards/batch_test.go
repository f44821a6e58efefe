package hazards

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/rootcheck/internal/cfgtest"
	"github.com/715d/rootcheck/internal/store"
	"github.com/715d/rootcheck/pkg/cfg"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name                   string
		batch, count, min, max int
		wantStart, wantEnd     int
	}{
		{"single batch", 1, 1, 1, 10, 1, 10},
		{"first of three", 1, 3, 1, 10, 1, 3},
		{"second of three", 2, 3, 1, 10, 4, 6},
		{"last of three", 3, 3, 1, 10, 7, 10},
		{"offset keys", 2, 2, 5, 8, 7, 8},
		{"more batches than keys", 1, 4, 1, 2, 1, 0},
		{"empty key range", 1, 2, 1, 0, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := Partition(tt.batch, tt.count, tt.min, tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}

	for _, bad := range [][2]int{{0, 3}, {4, 3}, {1, 0}} {
		_, _, err := Partition(bad[0], bad[1], 1, 10)
		require.ErrorIs(t, err, ErrInvalidBatch)
	}
}

func TestPartition_Covers(t *testing.T) {
	for _, keys := range []int{0, 1, 7, 100, 101} {
		for count := 1; count <= 12; count++ {
			next := 1
			for batch := 1; batch <= count; batch++ {
				start, end, err := Partition(batch, count, 1, keys)
				require.NoError(t, err)
				assert.Equal(t, next, start, "keys %d count %d batch %d", keys, count, batch)
				assert.GreaterOrEqual(t, end, start-1)
				next = end + 1
			}
			assert.Equal(t, keys+1, next, "keys %d count %d", keys, count)
		}
	}
}

type counter struct{ n atomic.Int64 }

func (c *counter) Add(n int) error {
	c.n.Add(int64(n))
	return nil
}

func testStore(t *testing.T) *store.Memory {
	var fns []*cfg.Function
	for i := range 7 {
		name := fmt.Sprintf("f%d()", i)
		if i%2 == 0 {
			fns = append(fns, basicHazard(t, name))
			continue
		}
		fns = append(fns, cfgtest.Function(t, name, cfgtest.NewBody(2).Call(1, 2, gcCall)))
	}
	m, err := store.NewMemory(fns...)
	require.NoError(t, err)
	return m
}

func functions(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Function
	}
	return out
}

func TestRun(t *testing.T) {
	s := testStore(t)
	a := testAnalyzer(t, nil)

	var progress counter
	records, stats, err := a.Run(context.Background(), s, RunOptions{Count: 1, Progress: &progress})
	require.NoError(t, err)
	assert.Equal(t, []string{"f0()", "f2()", "f4()", "f6()"}, functions(records))
	assert.Equal(t, 7, stats.Functions)
	assert.Equal(t, 4, stats.Variables)
	assert.Equal(t, 4, stats.Records[KindUnrooted])
	assert.Equal(t, int64(7), progress.n.Load())
	assert.Equal(t, 4, Failing(records))

	for _, count := range []int{2, 3, 7, 10} {
		t.Run(fmt.Sprintf("%d batches", count), func(t *testing.T) {
			got, stats, err := a.Run(context.Background(), s, RunOptions{Count: count, Jobs: 3})
			require.NoError(t, err)
			assert.Equal(t, records, got)
			assert.Equal(t, 7, stats.Functions)
		})
	}
}

func TestRun_SelectedBatches(t *testing.T) {
	s := testStore(t)
	a := testAnalyzer(t, nil)

	first, _, err := a.Run(context.Background(), s, RunOptions{Count: 2, Batches: []int{1}})
	require.NoError(t, err)
	second, _, err := a.Run(context.Background(), s, RunOptions{Count: 2, Batches: []int{2}})
	require.NoError(t, err)
	all, _, err := a.Run(context.Background(), s, RunOptions{Count: 2})
	require.NoError(t, err)

	assert.Equal(t, all, append(first, second...))

	_, _, err = a.Run(context.Background(), s, RunOptions{Count: 2, Batches: []int{3}})
	require.ErrorIs(t, err, ErrInvalidBatch)
}

type brokenStore struct{ *store.Memory }

func (brokenStore) Load(name string) (*cfg.Function, error) {
	return nil, fmt.Errorf("function %q: %w", name, store.ErrNotFound)
}

func TestRun_AbortsOnError(t *testing.T) {
	_, _, err := testAnalyzer(t, nil).Run(context.Background(), brokenStore{testStore(t)}, RunOptions{Count: 2})
	require.ErrorIs(t, err, store.ErrNotFound)
}
