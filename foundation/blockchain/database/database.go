// Package database handles the data model of the chain: accounts,
// transactions, entries and slots, their exact binary form, and the ledger
// of finalized slots kept through a pluggable serializer.
package database

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when a slot or account does not exist.
var ErrNotFound = errors.New("not found")

// Serializer interface represents the behavior required to be implemented by any
// package providing support for storing and reading finalized slots.
type Serializer interface {
	Write(slot Slot) error
	GetSlot(index uint64) (Slot, error)
	ForEach() Iterator
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the slots in index order.
type Iterator interface {
	Next() (Slot, error)
	Done() bool
}

// =============================================================================

// Database manages the ledger of finalized slots.
type Database struct {
	mu         sync.RWMutex
	latestSlot Slot
	serializer Serializer
}

// New constructs a ledger over the serializer and reads any slots already
// stored to recover the latest finalized slot.
func New(serializer Serializer, evHandler func(v string, args ...any)) (*Database, error) {
	db := Database{
		serializer: serializer,
	}

	var count int
	iter := serializer.ForEach()
	for slot, err := iter.Next(); !iter.Done(); slot, err = iter.Next() {
		if err != nil {
			return nil, fmt.Errorf("reading ledger: %w", err)
		}

		if count > 0 && slot.Index <= db.latestSlot.Index {
			return nil, fmt.Errorf("ledger out of order, slot %d after %d", slot.Index, db.latestSlot.Index)
		}

		db.latestSlot = slot
		count++
	}

	if evHandler != nil {
		evHandler("database: New: ledger loaded: slots[%d] latest[%d]", count, db.latestSlot.Index)
	}

	return &db, nil
}

// Close closes the underlying storage.
func (db *Database) Close() error {
	return db.serializer.Close()
}

// Reset clears the ledger.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.latestSlot = Slot{}
	return db.serializer.Reset()
}

// Write appends a finalized slot to the ledger. Slots must be written in
// increasing index order.
func (db *Database) Write(slot Slot) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.latestSlot.Index != 0 && slot.Index <= db.latestSlot.Index {
		return fmt.Errorf("slot %d is not after latest slot %d", slot.Index, db.latestSlot.Index)
	}

	if err := db.serializer.Write(slot); err != nil {
		return err
	}

	db.latestSlot = slot
	return nil
}

// LatestSlot returns the most recent finalized slot written.
func (db *Database) LatestSlot() Slot {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestSlot
}

// GetSlot reads the specified finalized slot.
func (db *Database) GetSlot(index uint64) (Slot, error) {
	return db.serializer.GetSlot(index)
}

// ForEach returns an iterator to walk through all the finalized slots.
func (db *Database) ForEach() Iterator {
	return db.serializer.ForEach()
}
