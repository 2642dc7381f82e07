package database

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ardanlabs/pohchain/foundation/blockchain/signature"
)

// Entry is a timestamped batch of transactions bound into the PoH chain.
// Replaying NumHashes hashes from the prior entry's hash, mixing in the
// batch digest at the final step, must reproduce Hash.
type Entry struct {
	NumHashes    uint64     `json:"num_hashes"`
	Hash         Hash       `json:"hash"`
	Transactions []SignedTx `json:"transactions"`
}

// IsTick reports whether the entry carries no transactions.
func (e Entry) IsTick() bool {
	return len(e.Transactions) == 0
}

// Encode returns the exact binary form of the entry.
func (e Entry) Encode() []byte {
	var enc encoder
	enc.entry(e)
	return enc.buf
}

// DecodeEntry parses the binary form of an entry.
func DecodeEntry(data []byte) (Entry, error) {
	d := decoder{buf: data}
	e := d.entry()
	if err := d.finish(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// =============================================================================

// Slot is the unit of leader rotation, one leader produces one contiguous
// entry stream per slot. Slot 0 is genesis and has no entries. The leader
// signs the header together with the last entry hash, which commits to every
// entry before it.
type Slot struct {
	Index   uint64    `json:"index"`
	Parent  uint64    `json:"parent"`
	Leader  AccountID `json:"leader"`
	Entries []Entry   `json:"entries"`
	V       *big.Int  `json:"v,omitempty"`
	R       *big.Int  `json:"r,omitempty"`
	S       *big.Int  `json:"s,omitempty"`
}

// SigningBytes returns the exact bytes covered by the leader's signature.
func (s Slot) SigningBytes() []byte {
	var enc encoder
	enc.slotHeader(s)
	return enc.buf
}

// Sign uses the specified private key to sign the slot as its leader.
func (s Slot) Sign(privateKey *ecdsa.PrivateKey) (Slot, error) {
	v, r, ss, err := signature.Sign(s.SigningBytes(), privateKey)
	if err != nil {
		return Slot{}, err
	}

	s.Leader = s.Leader.normalize()
	s.V, s.R, s.S = v, r, ss

	return s, nil
}

// FromAccount extracts the account id that signed the slot.
func (s Slot) FromAccount() (AccountID, error) {
	if s.V == nil || s.R == nil || s.S == nil {
		return "", errors.New("slot is not signed")
	}

	address, err := signature.FromAddress(s.SigningBytes(), s.V, s.R, s.S)
	return AccountID(address), err
}

// LastHash returns the hash of the final entry, or the zero hash when the
// slot has no entries.
func (s Slot) LastHash() Hash {
	if len(s.Entries) == 0 {
		return ZeroHash
	}
	return s.Entries[len(s.Entries)-1].Hash
}

// TransactionCount returns the number of transactions across all entries.
func (s Slot) TransactionCount() int {
	var n int
	for _, e := range s.Entries {
		n += len(e.Transactions)
	}
	return n
}

// Transactions returns every transaction of the slot in entry order.
func (s Slot) Transactions() []SignedTx {
	txs := make([]SignedTx, 0, s.TransactionCount())
	for _, e := range s.Entries {
		txs = append(txs, e.Transactions...)
	}
	return txs
}

// Encode returns the exact binary form of the slot.
func (s Slot) Encode() []byte {
	var enc encoder
	enc.slot(s)
	return enc.buf
}

// DecodeSlot parses the binary form of a slot.
func DecodeSlot(data []byte) (Slot, error) {
	d := decoder{buf: data}
	s := d.slot()
	if err := d.finish(); err != nil {
		return Slot{}, err
	}
	return s, nil
}
