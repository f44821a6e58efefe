package store

import (
	"fmt"

	"github.com/715d/rootcheck/pkg/cfg"
)

// Memory is an in-process store. Functions are prepared when added and
// must not be modified afterwards.
type Memory struct {
	names  []string
	byName map[string]*cfg.Function
}

// NewMemory returns a Memory holding fns, keyed in order from 1.
func NewMemory(fns ...*cfg.Function) (*Memory, error) {
	m := &Memory{byName: make(map[string]*cfg.Function, len(fns))}
	for _, fn := range fns {
		if err := m.Add(fn); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Add prepares fn and stores it. A function with a known name replaces the
// stored one and keeps its key.
func (m *Memory) Add(fn *cfg.Function) error {
	if !fn.Prepared() {
		if err := fn.Prepare(); err != nil {
			return err
		}
	}
	if _, ok := m.byName[fn.Name]; !ok {
		m.names = append(m.names, fn.Name)
	}
	m.byName[fn.Name] = fn
	return nil
}

// Len returns the number of functions.
func (m *Memory) Len() int { return len(m.names) }

// NameAt returns the name of the function with the given key.
func (m *Memory) NameAt(key int) (string, error) {
	if key < 1 || key > len(m.names) {
		return "", fmt.Errorf("key %d: %w", key, ErrNotFound)
	}
	return m.names[key-1], nil
}

// Load returns the function with the given name.
func (m *Memory) Load(name string) (*cfg.Function, error) {
	fn, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("function %q: %w", name, ErrNotFound)
	}
	return fn, nil
}
