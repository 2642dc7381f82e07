// Package disk implements the ability to read and write finalized slots to
// disk, one JSON file per slot.
package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
)

// Disk represents the serialization implementation for reading and storing
// slots in their own separate files on disk. This implements the
// database.Serializer interface.
type Disk struct {
	dbPath string
}

// New constructs a Disk value for use.
func New(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, err
	}

	return &Disk{dbPath: dbPath}, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new slot and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// Write takes the specified slot and stores it on disk in a file labeled
// with the slot index.
func (d *Disk) Write(slot database.Slot) error {

	// Marshal the slot for writing to disk in a more human readable format.
	data, err := json.MarshalIndent(slot, "", "  ")
	if err != nil {
		return err
	}

	// Create a new file for this slot and name it based on the slot index.
	f, err := os.OpenFile(d.getPath(slot.Index), os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return err
	}

	return nil
}

// GetSlot reads the contents of the specified slot from disk.
func (d *Disk) GetSlot(index uint64) (database.Slot, error) {
	f, err := os.OpenFile(d.getPath(index), os.O_RDONLY, 0600)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.Slot{}, fmt.Errorf("slot %d: %w", index, database.ErrNotFound)
		}
		return database.Slot{}, err
	}
	defer f.Close()

	var slot database.Slot
	if err := json.NewDecoder(f).Decode(&slot); err != nil {
		return database.Slot{}, err
	}

	return slot, nil
}

// ForEach returns an iterator to walk through all the slots on disk in
// index order. Missed slots leave gaps, so the folder is listed up front.
func (d *Disk) ForEach() database.Iterator {
	indexes, err := d.indexes()
	return &diskIterator{disk: d, indexes: indexes, err: err}
}

// Reset will clear out the ledger on disk.
func (d *Disk) Reset() error {
	indexes, err := d.indexes()
	if err != nil {
		return err
	}

	for _, index := range indexes {
		if err := os.Remove(d.getPath(index)); err != nil {
			return err
		}
	}

	return nil
}

// getPath forms the path to the specified slot.
func (d *Disk) getPath(index uint64) string {
	name := strconv.FormatUint(index, 10)
	return path.Join(d.dbPath, fmt.Sprintf("%s.json", name))
}

// indexes returns the sorted indexes of every slot file.
func (d *Disk) indexes() ([]uint64, error) {
	entries, err := os.ReadDir(d.dbPath)
	if err != nil {
		return nil, err
	}

	var indexes []uint64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".json" {
			continue
		}

		index, err := strconv.ParseUint(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		indexes = append(indexes, index)
	}

	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	return indexes, nil
}

// =============================================================================

// diskIterator represents the iteration implementation for walking
// through and reading slots on disk. This implements the database
// Iterator interface.
type diskIterator struct {
	disk    *Disk    // Access to the disk storage API.
	indexes []uint64 // Slot indexes found when the iterator was created.
	current int      // Position in indexes of the next slot to read.
	err     error    // Error found listing the folder.
	eoc     bool     // Represents the iterator is at the end of the chain.
}

// Next retrieves the next slot from disk.
func (di *diskIterator) Next() (database.Slot, error) {
	if di.eoc {
		return database.Slot{}, errors.New("end of chain")
	}

	if di.err != nil {
		err := di.err
		di.err = nil
		return database.Slot{}, err
	}

	if di.current >= len(di.indexes) {
		di.eoc = true
		return database.Slot{}, errors.New("end of chain")
	}

	index := di.indexes[di.current]
	di.current++

	return di.disk.GetSlot(index)
}

// Done returns the end of chain value.
func (di *diskIterator) Done() bool {
	return di.eoc
}
