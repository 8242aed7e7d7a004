package storage

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// Pebble represents the persistent implementation backed by a pebble
// database. This implements the Storage interface.
type Pebble struct {
	db *pebble.DB
}

// NewPebble opens or creates the pebble database at the path.
func NewPebble(dbPath string) (*Pebble, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, err
	}

	return &Pebble{db: db}, nil
}

// Close cleanly releases the database.
func (p *Pebble) Close() error {
	return p.db.Close()
}

// Get returns a copy of the value stored under the key.
func (p *Pebble) Get(key []byte) ([]byte, error) {
	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return append([]byte(nil), value...), nil
}

// BatchWrite applies all sets and deletes as one synced atomic batch.
func (p *Pebble) BatchWrite(sets []Pair, deletes [][]byte) error {
	batch := p.db.NewBatch()
	defer batch.Close()

	for _, pair := range sets {
		if err := batch.Set(pair.Key, pair.Value, nil); err != nil {
			return err
		}
	}
	for _, key := range deletes {
		if err := batch.Delete(key, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}

// Iter returns an iterator over all keys with the prefix.
func (p *Pebble) Iter(prefix []byte) (Iterator, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}

	return &pebbleIterator{it: it}, nil
}

// pebbleIterator adapts a pebble iterator to the Iterator interface.
type pebbleIterator struct {
	it      *pebble.Iterator
	started bool
}

// Next advances to the next key and reports whether one exists.
func (pi *pebbleIterator) Next() bool {
	if !pi.started {
		pi.started = true
		return pi.it.First()
	}
	return pi.it.Next()
}

// Key returns the current key.
func (pi *pebbleIterator) Key() []byte {
	return pi.it.Key()
}

// Value returns the current value.
func (pi *pebbleIterator) Value() []byte {
	return pi.it.Value()
}

// Error returns any iteration error.
func (pi *pebbleIterator) Error() error {
	return pi.it.Error()
}

// Close releases the iterator.
func (pi *pebbleIterator) Close() error {
	return pi.it.Close()
}
