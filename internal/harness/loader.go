package harness

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	yaml "gopkg.in/yaml.v3"

	"github.com/stretchr/testify/require"

	"github.com/715d/rootcheck/internal/config"
	"github.com/715d/rootcheck/internal/store"
)

// LoadTestCase loads the case in dir; its name is relative to root when set.
func LoadTestCase(t *testing.T, dir, root string) *TestCase {
	t.Helper()

	tc := &TestCase{}
	data, err := os.ReadFile(filepath.Join(dir, expectedFile))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, tc))

	tc.Dir = filepath.Base(dir)
	if root != "" {
		if relPath, err := filepath.Rel(root, dir); err == nil {
			tc.Dir = relPath
		}
	}
	return tc
}

// LoadConfig returns the config of the case in dir with its input paths
// pointing into dir.
func LoadConfig(t *testing.T, dir string) *config.Config {
	t.Helper()

	cfg, err := config.LoadOrDefault(dir)
	require.NoError(t, err)

	cfg.Inputs.GCFunctions = filepath.Join(dir, gcFunctionsFile)
	cfg.Inputs.Types = filepath.Join(dir, typesFile)
	cfg.Inputs.LimitedFunctions = ""
	limited := filepath.Join(dir, limitedFunctionsFile)
	if _, err := os.Stat(limited); err == nil {
		cfg.Inputs.LimitedFunctions = limited
	} else {
		require.True(t, errors.Is(err, os.ErrNotExist), "stat %s: %v", limited, err)
	}
	return cfg
}

// OpenStore imports the bodies of the case in dir into an in-memory store.
func OpenStore(t *testing.T, dir string) *store.DB {
	t.Helper()

	db, err := store.Open(store.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f, err := os.Open(filepath.Join(dir, bodiesFile))
	require.NoError(t, err)
	defer f.Close()

	res, err := db.Import(f)
	require.NoError(t, err)
	require.Positive(t, res.Read, "no functions in %s", bodiesFile)
	return db
}
