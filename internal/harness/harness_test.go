package harness

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAll runs every golden case under testdata.
func TestAll(t *testing.T) {
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "get current file path")

	harnessDir := filepath.Dir(filename)
	testdataDir := filepath.Join(harnessDir, "..", "..", "testdata")

	testCases := discoverTestCases(t, testdataDir)
	require.NotEmpty(t, testCases, "no test cases found")

	if testing.Verbose() {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	for _, tc := range testCases {
		t.Run(tc.Dir, func(t *testing.T) {
			t.Parallel()
			if tc.Description != "" {
				t.Log(tc.Description)
			}

			result := NewHarness(testdataDir).Run(t, tc)
			if !result.Success {
				t.Errorf("Test failed: %s", result.Message)
			}
		})
	}
}

func discoverTestCases(t *testing.T, root string) []*TestCase {
	t.Helper()

	entries, err := os.ReadDir(root)
	require.NoError(t, err)

	var testCases []*TestCase
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, expectedFile)); err == nil {
			testCases = append(testCases, LoadTestCase(t, dir, root))
		}
	}
	return testCases
}
