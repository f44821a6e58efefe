// Package store holds function bodies keyed by name and by a dense integer
// key, so that the key range can be split into batches.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/zeebo/blake3"

	"github.com/715d/rootcheck/pkg/cfg"
)

// ErrNotFound is returned for unknown function names and keys.
var ErrNotFound = errors.New("not found")

const (
	functionPrefix = "fn/"
	digestPrefix   = "sum/"
	indexPrefix    = "ix/"
	lenKey         = "meta/len"
)

func functionKey(name string) []byte { return []byte(functionPrefix + name) }

func digestKey(name string) []byte { return []byte(digestPrefix + name) }

func indexKey(key int) []byte { return fmt.Appendf(nil, "%s%010d", indexPrefix, key) }

// DB is a badger-backed body store. It is safe for concurrent use.
type DB struct {
	db  *badger.DB
	len int
}

// Options configures Open.
type Options struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	ReadOnly bool
}

// Open opens or creates a store.
func Open(opts Options) (*DB, error) {
	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else if opts.ReadOnly {
		bopts = bopts.WithReadOnly(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &DB{db: db}
	if err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lenKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("invalid length value of %d bytes", len(val))
			}
			s.len = int(binary.BigEndian.Uint64(val))
			return nil
		})
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read store length: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *DB) Close() error {
	return s.db.Close()
}

// Len returns the number of functions. Keys run from 1 to Len.
func (s *DB) Len() int {
	return s.len
}

// NameAt returns the name of the function with the given key.
func (s *DB) NameAt(key int) (string, error) {
	var name string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(key))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		name = string(val)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("key %d: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read key %d: %w", key, err)
	}
	return name, nil
}

// Load returns the prepared function with the given name.
func (s *DB) Load(name string) (*cfg.Function, error) {
	var fn cfg.Function
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(functionKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &fn)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("function %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read function %q: %w", name, err)
	}
	if err := fn.Prepare(); err != nil {
		return nil, err
	}
	return &fn, nil
}

// ImportResult counts the functions of one Import.
type ImportResult struct {
	Read      int // functions decoded
	Added     int // names new to the store
	Unchanged int // bodies identical to the stored ones, not rewritten
}

// Import reads functions from a stream of JSON values, one per function,
// validates them, and stores them. A function whose name is already stored
// replaces the stored body and keeps its key. Nothing is written when any
// function is invalid.
func (s *DB) Import(r io.Reader) (ImportResult, error) {
	dec := json.NewDecoder(r)
	type entry struct {
		name string
		body []byte
	}
	var entries []entry
	for {
		var fn cfg.Function
		err := dec.Decode(&fn)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ImportResult{}, fmt.Errorf("decode function %d: %w", len(entries)+1, err)
		}
		if err := fn.Prepare(); err != nil {
			return ImportResult{}, fmt.Errorf("function %d: %w", len(entries)+1, err)
		}
		body, err := json.Marshal(&fn)
		if err != nil {
			return ImportResult{}, fmt.Errorf("encode function %q: %w", fn.Name, err)
		}
		entries = append(entries, entry{fn.Name, body})
	}

	res := ImportResult{Read: len(entries)}
	next := s.len
	seen := make(map[string]bool, len(entries))
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range entries {
		sum := blake3.Sum256(e.body)
		if !seen[e.name] {
			stored, err := s.digest(e.name)
			if err != nil {
				return ImportResult{}, err
			}
			seen[e.name] = true
			switch {
			case stored == nil:
				next++
				res.Added++
				if err := wb.Set(indexKey(next), []byte(e.name)); err != nil {
					return ImportResult{}, fmt.Errorf("write index: %w", err)
				}
			case bytes.Equal(stored, sum[:]):
				res.Unchanged++
				continue
			}
		}
		if err := wb.Set(functionKey(e.name), e.body); err != nil {
			return ImportResult{}, fmt.Errorf("write function %q: %w", e.name, err)
		}
		if err := wb.Set(digestKey(e.name), sum[:]); err != nil {
			return ImportResult{}, fmt.Errorf("write digest %q: %w", e.name, err)
		}
	}
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(next))
	if err := wb.Set([]byte(lenKey), val); err != nil {
		return ImportResult{}, fmt.Errorf("write length: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return ImportResult{}, fmt.Errorf("flush functions: %w", err)
	}
	slog.Debug("functions imported", "read", res.Read, "added", res.Added, "unchanged", res.Unchanged)
	s.len = next
	return res, nil
}

// digest returns the stored body digest of name, or nil when name is not
// stored.
func (s *DB) digest(name string) ([]byte, error) {
	var sum []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(digestKey(name))
		if err != nil {
			return err
		}
		sum, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read digest %q: %w", name, err)
	}
	return sum, nil
}
