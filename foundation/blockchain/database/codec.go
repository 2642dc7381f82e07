package database

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/pohchain/foundation/blockchain/signature"
	"github.com/google/uuid"
)

// ErrMalformed is returned when binary data can't be decoded.
var ErrMalformed = errors.New("malformed data")

// Upper bounds used while decoding so a bad length can't force a huge
// allocation.
const (
	maxEntriesPerSlot = 1 << 16
	maxTxsPerEntry    = 1 << 16
)

// All integers are little endian.
//
//	Slot        = index u64 | parent u64 | leader [20] | entry_count u32 | entries | signature [65]
//	SlotHeader  = index u64 | parent u64 | leader [20] | entry_count u32 | last_hash [32]
//	Entry       = num_hashes u64 | hash [32] | transaction_count u32 | transactions
//	SignedTx    = Tx | signature [65]
//	Tx          = id [16] | recent_hash [32] | reads | writes | instructions
//	reads       = count u32 | account [20] ...
//	Instruction = op u8 | from [20] | to [20] | amount u64 | data_len u32 | data
//	Account     = id [20] | balance u64 | owner [20] | data_len u32 | data | version u64
//	Vote        = voter [20] | slot u64 | hash [32] | timestamp u64 | signature [65]

type encoder struct {
	buf []byte
}

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }
func (e *encoder) raw(b []byte) { e.buf = append(e.buf, b...) }

func (e *encoder) account(a AccountID) {
	if a == "" {
		e.buf = append(e.buf, make([]byte, addressLength)...)
		return
	}
	b := a.bytes()
	e.raw(b[:])
}

func (e *encoder) accounts(ids []AccountID) {
	e.u32(uint32(len(ids)))
	for _, id := range ids {
		e.account(id)
	}
}

func (e *encoder) tx(tx Tx) {
	e.raw(tx.ID[:])
	e.raw(tx.RecentHash[:])
	e.accounts(tx.Reads)
	e.accounts(tx.Writes)

	e.u32(uint32(len(tx.Instructions)))
	for _, ins := range tx.Instructions {
		e.u8(uint8(ins.Op))
		e.account(ins.From)
		e.account(ins.To)
		e.u64(ins.Amount)
		e.u32(uint32(len(ins.Data)))
		e.raw(ins.Data)
	}
}

func (e *encoder) accountState(a Account) {
	e.account(a.ID)
	e.u64(a.Balance)
	e.account(a.Owner)
	e.u32(uint32(len(a.Data)))
	e.raw(a.Data)
	e.u64(a.Version)
}

func (e *encoder) signature(v, r, s *big.Int) {
	if v == nil || r == nil || s == nil {
		e.raw(make([]byte, signature.Length))
		return
	}
	e.raw(signature.ToSignatureBytesWithPohID(v, r, s))
}

func (e *encoder) signedTx(tx SignedTx) {
	e.tx(tx.Tx)
	e.signature(tx.V, tx.R, tx.S)
}

func (e *encoder) vote(v Vote) {
	e.account(v.Voter)
	e.u64(v.Slot)
	e.raw(v.Hash[:])
	e.u64(v.Timestamp)
}

func (e *encoder) entry(en Entry) {
	e.u64(en.NumHashes)
	e.raw(en.Hash[:])
	e.u32(uint32(len(en.Transactions)))
	for _, tx := range en.Transactions {
		e.signedTx(tx)
	}
}

func (e *encoder) slot(s Slot) {
	e.u64(s.Index)
	e.u64(s.Parent)
	e.account(s.Leader)
	e.u32(uint32(len(s.Entries)))
	for _, en := range s.Entries {
		e.entry(en)
	}
	e.signature(s.V, s.R, s.S)
}

func (e *encoder) slotHeader(s Slot) {
	e.u64(s.Index)
	e.u64(s.Parent)
	e.account(s.Leader)
	e.u32(uint32(len(s.Entries)))
	last := s.LastHash()
	e.raw(last[:])
}

// =============================================================================

// decoder reads values in order and remembers the first failure so callers
// only check once at the end.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
	}
}

func (d *decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.buf) < n {
		d.fail("need %d bytes, have %d", n, len(d.buf))
		return nil
	}
	b := d.buf[:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) u8() uint8 {
	b := d.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u32() uint32 {
	b := d.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) u64() uint64 {
	b := d.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) hash() Hash {
	var h Hash
	copy(h[:], d.next(HashLength))
	return h
}

func (d *decoder) account() AccountID {
	b := d.next(addressLength)
	if b == nil {
		return ""
	}

	var zero [addressLength]byte
	if [addressLength]byte(b) == zero {
		return ""
	}
	return accountIDFromBytes(b)
}

func (d *decoder) accounts() []AccountID {
	n := d.u32()
	if n > MaxAccounts {
		d.fail("account count %d exceeds %d", n, MaxAccounts)
		return nil
	}

	ids := make([]AccountID, n)
	for i := range ids {
		ids[i] = d.account()
	}
	return ids
}

func (d *decoder) tx() Tx {
	var tx Tx
	copy(tx.ID[:], d.next(len(uuid.UUID{})))
	tx.RecentHash = d.hash()
	tx.Reads = d.accounts()
	tx.Writes = d.accounts()

	n := d.u32()
	if n > MaxInstructions {
		d.fail("instruction count %d exceeds %d", n, MaxInstructions)
		return Tx{}
	}

	tx.Instructions = make([]Instruction, n)
	for i := range tx.Instructions {
		ins := Instruction{
			Op:     Op(d.u8()),
			From:   d.account(),
			To:     d.account(),
			Amount: d.u64(),
		}

		size := d.u32()
		if size > MaxDataSize {
			d.fail("data size %d exceeds %d", size, MaxDataSize)
			return Tx{}
		}
		if size > 0 {
			ins.Data = append([]byte(nil), d.next(int(size))...)
		}

		tx.Instructions[i] = ins
	}

	return tx
}

func (d *decoder) signature() (v, r, s *big.Int) {
	sig := d.next(signature.Length)
	if d.err != nil {
		return nil, nil, nil
	}

	v, r, s, err := signature.ToVRSFromBytes(sig)
	if err != nil {
		d.fail("signature: %s", err)
		return nil, nil, nil
	}

	return v, r, s
}

func (d *decoder) signedTx() SignedTx {
	tx := d.tx()
	v, r, s := d.signature()
	if d.err != nil {
		return SignedTx{}
	}

	return SignedTx{Tx: tx, V: v, R: r, S: s}
}

func (d *decoder) vote() Vote {
	return Vote{
		Voter:     d.account(),
		Slot:      d.u64(),
		Hash:      d.hash(),
		Timestamp: d.u64(),
	}
}

func (d *decoder) entry() Entry {
	e := Entry{
		NumHashes: d.u64(),
		Hash:      d.hash(),
	}

	n := d.u32()
	if n > maxTxsPerEntry {
		d.fail("transaction count %d exceeds %d", n, maxTxsPerEntry)
		return Entry{}
	}

	e.Transactions = make([]SignedTx, 0, n)
	for i := uint32(0); i < n && d.err == nil; i++ {
		e.Transactions = append(e.Transactions, d.signedTx())
	}

	return e
}

func (d *decoder) slot() Slot {
	s := Slot{
		Index:  d.u64(),
		Parent: d.u64(),
		Leader: d.account(),
	}

	n := d.u32()
	if n > maxEntriesPerSlot {
		d.fail("entry count %d exceeds %d", n, maxEntriesPerSlot)
		return Slot{}
	}

	s.Entries = make([]Entry, 0, n)
	for i := uint32(0); i < n && d.err == nil; i++ {
		s.Entries = append(s.Entries, d.entry())
	}

	// An all zero signature is an unsigned slot.
	if sig := d.next(signature.Length); sig != nil && !isZero(sig) {
		v, r, ss, err := signature.ToVRSFromBytes(sig)
		if err != nil {
			d.fail("signature: %s", err)
			return Slot{}
		}
		s.V, s.R, s.S = v, r, ss
	}

	return s
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// finish reports any decode failure, including unread trailing bytes.
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if len(d.buf) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(d.buf))
	}
	return nil
}
