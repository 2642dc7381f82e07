// Package poh implements the Proof of History hash chain. A Hasher advances a
// sha256 chain one step per tick and mixes batch digests into the chain to
// produce entries that any node can verify by re-hashing.
package poh

import (
	"crypto/sha256"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/merkle"
)

// Hasher is the sequential hash chain. It is not safe for concurrent use,
// see Recorder for that.
type Hasher struct {
	hash      database.Hash
	numHashes uint64
}

// NewHasher constructs a hasher that continues the chain from the specified
// hash.
func NewHasher(start database.Hash) *Hasher {
	return &Hasher{hash: start}
}

// Hash returns the current head of the chain.
func (h *Hasher) Hash() database.Hash {
	return h.hash
}

// NumHashes returns the number of hashes performed since the last entry.
func (h *Hasher) NumHashes() uint64 {
	return h.numHashes
}

// Tick advances the chain by one hash with no input.
func (h *Hasher) Tick() {
	h.hash = sha256.Sum256(h.hash[:])
	h.numHashes++
}

// Record performs one hash over the current hash and the mixin and returns
// the number of hashes since the last entry, this one included.
func (h *Hasher) Record(mixin database.Hash) (uint64, database.Hash) {
	h.hash = database.HashData(h.hash[:], mixin[:])
	return h.close()
}

// TickEntry performs one plain hash and closes the current entry.
func (h *Hasher) TickEntry() (uint64, database.Hash) {
	h.hash = sha256.Sum256(h.hash[:])
	return h.close()
}

func (h *Hasher) close() (uint64, database.Hash) {
	n := h.numHashes + 1
	h.numHashes = 0
	return n, h.hash
}

// =============================================================================

// BatchDigest returns the merkle root over the hashes of the transactions.
// This is the value mixed into the chain for a batch.
func BatchDigest(txs []database.SignedTx) (database.Hash, error) {
	tree, err := merkle.NewTree(txs)
	if err != nil {
		return database.Hash{}, err
	}

	var digest database.Hash
	copy(digest[:], tree.MerkleRoot)

	return digest, nil
}
