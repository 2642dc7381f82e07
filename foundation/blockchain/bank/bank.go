// Package bank provides the copy-on-write account state for a slot. Every
// slot gets a child bank of its parent slot's bank, so competing forks never
// see each other's writes.
package bank

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/google/uuid"
)

// Set of errors returned by the bank.
var (
	ErrNotFound  = errors.New("account not found")
	ErrFrozen    = errors.New("bank is frozen")
	ErrNotFrozen = errors.New("bank is not frozen")
	ErrProcessed = errors.New("transaction already processed")
)

// view holds the accounts written by a bank, the transactions it executed
// and the bank it inherits the rest from. It is replaced as a whole when the
// bank is squashed.
type view struct {
	accounts  map[database.AccountID]database.Account
	processed map[uuid.UUID]uint64
	parent    *Bank
}

// Bank is the account state of one slot. Only an unfrozen bank accepts writes.
// Once frozen, reads take no locks.
type Bank struct {
	slot   uint64
	mu     sync.RWMutex
	view   atomic.Pointer[view]
	frozen atomic.Bool
	hash   database.Hash
}

// Genesis constructs the frozen root bank for slot 0 from the starting
// balances.
func Genesis(balances map[database.AccountID]uint64) *Bank {
	accounts := make(map[database.AccountID]database.Account, len(balances))
	for id, balance := range balances {
		accounts[id] = database.NewAccount(id, balance)
	}

	var b Bank
	b.view.Store(&view{accounts: accounts, processed: make(map[uuid.UUID]uint64)})
	b.Freeze()

	return &b
}

// NewFromParent constructs a child bank for the specified slot. The parent
// must be frozen and belong to an earlier slot.
func NewFromParent(parent *Bank, slot uint64) (*Bank, error) {
	if parent == nil {
		return nil, errors.New("nil parent bank")
	}

	if !parent.Frozen() {
		return nil, fmt.Errorf("parent slot %d: %w", parent.slot, ErrNotFrozen)
	}

	if slot <= parent.slot {
		return nil, fmt.Errorf("slot %d is not after parent slot %d", slot, parent.slot)
	}

	b := Bank{
		slot: slot,
	}
	b.view.Store(&view{
		accounts:  make(map[database.AccountID]database.Account),
		processed: make(map[uuid.UUID]uint64),
		parent:    parent,
	})

	return &b, nil
}

// Slot returns the slot the bank belongs to.
func (b *Bank) Slot() uint64 {
	return b.slot
}

// Parent returns the parent bank, nil for a root bank.
func (b *Bank) Parent() *Bank {
	return b.view.Load().parent
}

// Frozen reports whether the bank still accepts writes.
func (b *Bank) Frozen() bool {
	return b.frozen.Load()
}

// Account returns the latest version of the account visible from this bank.
func (b *Bank) Account(id database.AccountID) (database.Account, error) {
	if !b.Frozen() {
		b.mu.RLock()
		defer b.mu.RUnlock()
	}

	for bank := b; bank != nil; {
		v := bank.view.Load()
		if account, exists := v.accounts[id]; exists {
			return account.Clone(), nil
		}
		bank = v.parent
	}

	return database.Account{}, fmt.Errorf("%s: %w", id, ErrNotFound)
}

// Store replaces the specified accounts. The accounts become visible to
// readers of this bank together.
func (b *Bank) Store(accounts ...database.Account) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Frozen() {
		return fmt.Errorf("slot %d: %w", b.slot, ErrFrozen)
	}

	v := b.view.Load()
	for _, account := range accounts {
		v.accounts[account.ID] = account.Clone()
	}

	return nil
}

// Processed reports whether the transaction was executed by this bank or one
// of its ancestors.
func (b *Bank) Processed(id uuid.UUID) bool {
	if !b.Frozen() {
		b.mu.RLock()
		defer b.mu.RUnlock()
	}

	for bank := b; bank != nil; {
		v := bank.view.Load()
		if _, exists := v.processed[id]; exists {
			return true
		}
		bank = v.parent
	}

	return false
}

// MarkProcessed records the transactions as executed by this bank. A
// transaction already executed by this bank or an ancestor is rejected and
// nothing is recorded.
func (b *Bank) MarkProcessed(ids ...uuid.UUID) error {
	for _, id := range ids {
		if b.Processed(id) {
			return fmt.Errorf("tx %s: %w", id, ErrProcessed)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Frozen() {
		return fmt.Errorf("slot %d: %w", b.slot, ErrFrozen)
	}

	v := b.view.Load()
	batch := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, exists := v.processed[id]; exists {
			return fmt.Errorf("tx %s: %w", id, ErrProcessed)
		}
		if _, exists := batch[id]; exists {
			return fmt.Errorf("tx %s: %w", id, ErrProcessed)
		}
		batch[id] = struct{}{}
	}
	for id := range batch {
		v.processed[id] = b.slot
	}

	return nil
}

// Freeze makes the bank immutable and fixes its hash. Calling Freeze on a
// frozen bank returns the same hash.
func (b *Bank) Freeze() database.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Frozen() {
		return b.hash
	}

	b.hash = b.computeHash()
	b.frozen.Store(true)

	return b.hash
}

// Hash returns a digest over the accounts this bank wrote and its parent's
// hash. For an unfrozen bank the value reflects the writes so far.
func (b *Bank) Hash() database.Hash {
	if b.Frozen() {
		return b.hash
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.computeHash()
}

// Writes returns the accounts held by this bank itself, sorted by id. Before
// Squash these are the bank's own writes, after it every account.
func (b *Bank) Writes() []database.Account {
	if !b.Frozen() {
		b.mu.RLock()
		defer b.mu.RUnlock()
	}

	return sorted(b.view.Load().accounts)
}

// Accounts returns a copy of every account visible from this bank.
func (b *Bank) Accounts() map[database.AccountID]database.Account {
	if !b.Frozen() {
		b.mu.RLock()
		defer b.mu.RUnlock()
	}

	out := make(map[database.AccountID]database.Account)
	for bank := b; bank != nil; {
		v := bank.view.Load()
		for id, account := range v.accounts {
			if _, exists := out[id]; !exists {
				out[id] = account.Clone()
			}
		}
		bank = v.parent
	}

	return out
}

// Squash folds every ancestor into this bank so it no longer references its
// parent and the ancestors can be reclaimed. The bank must be frozen. Its
// hash and the accounts it exposes do not change. Processed transaction ids
// from slots before keepFrom are forgotten.
func (b *Bank) Squash(keepFrom uint64) error {
	if !b.Frozen() {
		return fmt.Errorf("slot %d: %w", b.slot, ErrNotFrozen)
	}

	processed := make(map[uuid.UUID]uint64)
	for bank := b; bank != nil; {
		v := bank.view.Load()
		for id, slot := range v.processed {
			if slot >= keepFrom {
				processed[id] = slot
			}
		}
		bank = v.parent
	}

	accounts := b.view.Load().accounts
	if b.Parent() != nil {
		accounts = b.Accounts()
	}

	b.view.Store(&view{accounts: accounts, processed: processed})

	return nil
}

// computeHash hashes the parent's hash, the slot and the writes in id order.
func (b *Bank) computeHash() database.Hash {
	v := b.view.Load()

	var parent database.Hash
	if v.parent != nil {
		parent = v.parent.Hash()
	}

	data := [][]byte{parent[:], binary.LittleEndian.AppendUint64(nil, b.slot)}
	for _, account := range sorted(v.accounts) {
		data = append(data, account.Encode())
	}

	return database.HashData(data...)
}

func sorted(accounts map[database.AccountID]database.Account) []database.Account {
	out := make([]database.Account, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, account.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})

	return out
}
