package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ardanlabs/pohchain/foundation/blockchain/bank"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/executor"
	"github.com/ardanlabs/pohchain/foundation/blockchain/forktree"
	"github.com/google/uuid"
)

// QueryLatestFinalized represents to query the state of the latest
// finalized slot.
const QueryLatestFinalized = ^uint64(0) >> 1

// =============================================================================

// QueryAccount returns the account as seen by the bank of the specified slot.
// Only frozen banks are visible, the bank of a slot still being produced
// never is.
func (s *State) QueryAccount(accountID database.AccountID, at uint64) (database.Account, error) {
	b, err := s.frozenBank(at)
	if err != nil {
		return database.Account{}, err
	}

	id, err := database.ToAccountID(string(accountID))
	if err != nil {
		return database.Account{}, err
	}

	account, err := b.Account(id)
	if err != nil {
		if errors.Is(err, bank.ErrNotFound) {
			return database.Account{}, fmt.Errorf("account %s: %w", id, database.ErrNotFound)
		}
		return database.Account{}, err
	}

	return account, nil
}

// QueryBankHash returns the digest of the bank of a frozen slot.
func (s *State) QueryBankHash(at uint64) (database.Hash, error) {
	b, err := s.frozenBank(at)
	if err != nil {
		return database.Hash{}, err
	}
	return b.Hash(), nil
}

// QuerySlot returns a closed slot still held in memory or a finalized slot
// from the ledger.
func (s *State) QuerySlot(index uint64) (database.Slot, error) {
	s.mu.RLock()
	slot, exists := s.slots[index]
	s.mu.RUnlock()

	if exists {
		return slot, nil
	}

	return s.db.GetSlot(index)
}

// QuerySlotStatus returns the status of a slot. Slots below the finalized
// root are either finalized in the ledger or dead.
func (s *State) QuerySlotStatus(index uint64) (forktree.Status, error) {
	status, err := s.tree.Status(index)
	if err == nil {
		return status, nil
	}

	root, _ := s.tree.Root()
	if index > root {
		return 0, err
	}

	if index == 0 {
		return forktree.Finalized, nil
	}

	if _, err := s.db.GetSlot(index); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return forktree.Dead, nil
		}
		return 0, err
	}

	return forktree.Finalized, nil
}

// QueryResults returns the execution result of a transaction.
func (s *State) QueryResults(txID uuid.UUID) (executor.Result, error) {
	v, found := s.results.Get(txID.String())
	if !found {
		return executor.Result{}, fmt.Errorf("tx %s: %w", txID, database.ErrNotFound)
	}
	return v.(executor.Result), nil
}

// QueryMempool returns a copy of the pending transactions in arrival order.
func (s *State) QueryMempool() []database.SignedTx {
	return s.scheduler.Queue().Copy()
}

// QueryMempoolLength returns the current number of pending transactions.
func (s *State) QueryMempoolLength() int {
	return s.scheduler.Queue().Count()
}

// QueryFinalized returns the finalized slots from the ledger in the
// specified index range.
func (s *State) QueryFinalized(from uint64, to uint64) ([]database.Slot, error) {
	var out []database.Slot

	iter := s.db.ForEach()
	for slot, err := iter.Next(); !iter.Done(); slot, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		if slot.Index >= from && slot.Index <= to {
			out = append(out, slot)
		}
	}

	return out, nil
}

// QueryClosedSlots returns the closed slots held in memory from the
// specified index in index order.
func (s *State) QueryClosedSlots(from uint64) []database.Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]database.Slot, 0, len(s.slots))
	for index, slot := range s.slots {
		if index >= from {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })

	return out
}

// =============================================================================

// frozenBank returns the bank a query reads from.
func (s *State) frozenBank(at uint64) (*bank.Bank, error) {
	if at == QueryLatestFinalized {
		at, _ = s.tree.Root()
	}

	s.mu.RLock()
	b, exists := s.banks[at]
	s.mu.RUnlock()

	if !exists {
		if root, _ := s.tree.Root(); at < root {
			return nil, fmt.Errorf("slot %d: %w", at, ErrUnavailable)
		}
		return nil, fmt.Errorf("slot %d: %w", at, ErrNotFrozen)
	}

	if !b.Frozen() {
		return nil, fmt.Errorf("slot %d: %w", at, ErrNotFrozen)
	}

	return b, nil
}
