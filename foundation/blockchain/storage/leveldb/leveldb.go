// Package leveldb implements the ability to read and write finalized slots to
// a leveldb database using the exact binary slot encoding.
package leveldb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"
)

// slotPrefix keeps slot records apart from anything else stored in the
// same database.
var slotPrefix = []byte("slot/")

// LevelDB represents the serialization implementation for reading and
// storing slots in leveldb. Keys are big endian so the natural key order is
// the slot order. This implements the database.Serializer interface.
type LevelDB struct {
	db *leveldb.DB
}

// New opens or creates the database at the specified path.
func New(dbPath string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}

	return &LevelDB{db: db}, nil
}

// Close releases the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// Write stores the binary encoding of the slot.
func (l *LevelDB) Write(slot database.Slot) error {
	return l.db.Put(key(slot.Index), slot.Encode(), nil)
}

// GetSlot reads and decodes the specified slot.
func (l *LevelDB) GetSlot(index uint64) (database.Slot, error) {
	data, err := l.db.Get(key(index), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return database.Slot{}, fmt.Errorf("slot %d: %w", index, database.ErrNotFound)
		}
		return database.Slot{}, err
	}

	return database.DecodeSlot(data)
}

// ForEach returns an iterator to walk through all the slots in index order.
func (l *LevelDB) ForEach() database.Iterator {
	return &levelIterator{iter: l.db.NewIterator(ldb_util.BytesPrefix(slotPrefix), nil)}
}

// Reset deletes every stored slot in a single batch.
func (l *LevelDB) Reset() error {
	iter := l.db.NewIterator(ldb_util.BytesPrefix(slotPrefix), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}

	return l.db.Write(batch, nil)
}

// key forms the database key for a slot index.
func key(index uint64) []byte {
	k := make([]byte, len(slotPrefix)+8)
	copy(k, slotPrefix)
	binary.BigEndian.PutUint64(k[len(slotPrefix):], index)
	return k
}

// =============================================================================

// levelIterator represents the iteration implementation for walking
// through the slots in leveldb. This implements the database Iterator
// interface.
type levelIterator struct {
	iter iterator.Iterator
	eoc  bool
}

// Next retrieves and decodes the next slot. The underlying iterator is
// released once the end is reached.
func (li *levelIterator) Next() (database.Slot, error) {
	if li.eoc {
		return database.Slot{}, errors.New("end of chain")
	}

	if !li.iter.Next() {
		li.eoc = true
		err := li.iter.Error()
		li.iter.Release()
		if err != nil {
			return database.Slot{}, err
		}
		return database.Slot{}, errors.New("end of chain")
	}

	return database.DecodeSlot(li.iter.Value())
}

// Done returns the end of chain value.
func (li *levelIterator) Done() bool {
	return li.eoc
}
