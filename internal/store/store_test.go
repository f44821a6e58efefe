package store

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/715d/rootcheck/internal/cfgtest"
	"github.com/715d/rootcheck/pkg/cfg"
)

func jsonLines(t *testing.T, fns ...*cfg.Function) string {
	t.Helper()
	var b strings.Builder
	for _, fn := range fns {
		data, err := json.Marshal(fn)
		require.NoError(t, err)
		b.Write(data)
		b.WriteByte('\n')
	}
	return b.String()
}

func testFunction(t *testing.T, name string) *cfg.Function {
	return cfgtest.Function(t, name,
		cfgtest.NewBody(3).
			Declare(cfg.Local("x"), cfg.PointerTo(cfg.CSU("JSObject"))).
			CallInto(1, 2, cfg.Var(cfg.Local("x")), "js::NewObject()").
			Call(2, 3, "use(JSObject*)", cfg.Load(cfg.Local("x"))))
}

func TestDB_ImportAndLoad(t *testing.T) {
	db, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	res, err := db.Import(strings.NewReader(jsonLines(t, testFunction(t, "f()"), testFunction(t, "g()"))))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Read: 2, Added: 2}, res)
	assert.Equal(t, 2, db.Len())

	name, err := db.NameAt(2)
	require.NoError(t, err)
	assert.Equal(t, "g()", name)

	fn, err := db.Load("f()")
	require.NoError(t, err)
	assert.True(t, fn.Prepared())
	assert.Equal(t, "f()", fn.Name)
	require.Len(t, fn.Main().Edges, 2)
	assert.Equal(t, "js::NewObject()", fn.Main().Edges[0].StaticCallee())

	// Re-importing a known name keeps its key.
	res, err = db.Import(strings.NewReader(jsonLines(t, testFunction(t, "g()"), testFunction(t, "h()"))))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Read: 2, Added: 1, Unchanged: 1}, res)
	assert.Equal(t, 3, db.Len())
	name, err = db.NameAt(3)
	require.NoError(t, err)
	assert.Equal(t, "h()", name)

	_, err = db.NameAt(4)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = db.Load("missing()")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDB_ImportReplacesChangedBody(t *testing.T) {
	db, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Import(strings.NewReader(jsonLines(t, testFunction(t, "f()"))))
	require.NoError(t, err)

	changed := cfgtest.Function(t, "f()", cfgtest.NewBody(2).Call(1, 2, "js::gc::GC()"))
	res, err := db.Import(strings.NewReader(jsonLines(t, changed)))
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Read: 1}, res)
	assert.Equal(t, 1, db.Len())

	fn, err := db.Load("f()")
	require.NoError(t, err)
	require.Len(t, fn.Main().Edges, 1)
	assert.Equal(t, "js::gc::GC()", fn.Main().Edges[0].StaticCallee())
}

func TestDB_ImportRejectsInvalid(t *testing.T) {
	db, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bad := `{"name": "bad()", "bodies": [{"block": {"kind": "Function"}, "index": [1, 3], "points": [{"line": 1}, {"line": 2}]}]}`
	input := jsonLines(t, testFunction(t, "f()")) + bad + "\n"

	_, err = db.Import(strings.NewReader(input))
	require.ErrorIs(t, err, cfg.ErrInvalidGraph)
	assert.Equal(t, 0, db.Len())

	_, err = db.Import(strings.NewReader("{"))
	require.Error(t, err)
}

func TestDB_Persistent(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	_, err = db.Import(strings.NewReader(jsonLines(t, testFunction(t, "f()"))))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	assert.Equal(t, 1, db.Len())
	_, err = db.Load("f()")
	require.NoError(t, err)
}

func TestMemory(t *testing.T) {
	m, err := NewMemory(testFunction(t, "f()"), testFunction(t, "g()"))
	require.NoError(t, err)
	require.NoError(t, m.Add(testFunction(t, "f()")))
	assert.Equal(t, 2, m.Len())

	name, err := m.NameAt(1)
	require.NoError(t, err)
	assert.Equal(t, "f()", name)

	_, err = m.NameAt(0)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = m.Load("h()")
	require.ErrorIs(t, err, ErrNotFound)

	err = m.Add(&cfg.Function{Name: "empty()"})
	require.ErrorIs(t, err, cfg.ErrInvalidGraph)
}
