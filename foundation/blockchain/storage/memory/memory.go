// Package memory implements the ability to read and write finalized slots to
// memory using a slice.
package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
)

// Memory represents the serialization implementation for reading and storing
// slots in memory using a slice. This implements the database.Serializer
// interface.
type Memory struct {
	mu    sync.RWMutex
	slots []database.Slot
}

// New constructs an Memory value for use.
func New() *Memory {
	return &Memory{}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Write takes the specified slot and stores it in memory. Finalized slots are
// sparse, only the ordering is enforced.
func (m *Memory) Write(slot database.Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l := len(m.slots); l > 0 && slot.Index <= m.slots[l-1].Index {
		return errors.New("slot is out of order")
	}

	m.slots = append(m.slots, slot)

	return nil
}

// GetSlot searches the ledger to locate and return the contents of
// the specified slot.
func (m *Memory) GetSlot(index uint64) (database.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := sort.Search(len(m.slots), func(i int) bool {
		return m.slots[i].Index >= index
	})

	if i == len(m.slots) || m.slots[i].Index != index {
		return database.Slot{}, fmt.Errorf("slot %d: %w", index, database.ErrNotFound)
	}

	return m.slots[i], nil
}

// ForEach returns an iterator to walk through all the slots in index order.
func (m *Memory) ForEach() database.Iterator {
	return &memoryIterator{storage: m}
}

// Reset will clear out the ledger.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots = nil
	return nil
}

// =============================================================================

// memoryIterator represents the iteration implementation for walking
// through and reading slots in memory. This implements the database
// Iterator interface.
type memoryIterator struct {
	storage *Memory // Access to the memory storage API.
	current int     // Current position in the slice.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next slot from memory.
func (mi *memoryIterator) Next() (database.Slot, error) {
	if mi.eoc {
		return database.Slot{}, errors.New("end of chain")
	}

	mi.storage.mu.RLock()
	defer mi.storage.mu.RUnlock()

	if mi.current >= len(mi.storage.slots) {
		mi.eoc = true
		return database.Slot{}, errors.New("end of chain")
	}

	slot := mi.storage.slots[mi.current]
	mi.current++

	return slot, nil
}

// Done returns the end of chain value.
func (mi *memoryIterator) Done() bool {
	return mi.eoc
}
