package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/pohchain/foundation/blockchain/bank"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/executor"
	"github.com/ardanlabs/pohchain/foundation/blockchain/forktree"
	"github.com/ardanlabs/pohchain/foundation/blockchain/locks"
	"github.com/ardanlabs/pohchain/foundation/blockchain/poh"
	"github.com/google/uuid"
)

// ReplaySlot verifies and re-executes a slot produced by another leader. The
// entry stream is re-hashed from the parent's last hash and every entry's
// transactions are executed against a child of the parent's bank. A slot that
// fails verification is marked dead.
func (s *State) ReplaySlot(ctx context.Context, slot database.Slot) error {
	start := time.Now()
	defer func() {
		s.metrics.ReplayDuration.Observe(time.Since(start).Seconds())
	}()

	if status, err := s.tree.Status(slot.Index); err == nil {
		if status == forktree.Dead {
			return fmt.Errorf("slot %d: %w", slot.Index, ErrSlotMissed)
		}
		return fmt.Errorf("slot %d: %w", slot.Index, forktree.ErrDuplicateSlot)
	}

	if root, _ := s.tree.Root(); slot.Index <= root {
		return fmt.Errorf("slot %d at or below finalized slot %d: %w", slot.Index, root, forktree.ErrFinalized)
	}

	if expected := s.Leader(slot.Index); slot.Leader != expected {
		return fmt.Errorf("slot %d leader %s, expected %s: %w", slot.Index, slot.Leader, expected, ErrWrongLeader)
	}

	signer, err := slot.FromAccount()
	if err != nil {
		return fmt.Errorf("slot %d: %w: %s", slot.Index, ErrInvalidSignature, err)
	}
	if signer != slot.Leader {
		return fmt.Errorf("slot %d signed by %s, leader %s: %w", slot.Index, signer, slot.Leader, ErrInvalidSignature)
	}

	status, err := s.tree.Status(slot.Parent)
	if err != nil {
		return fmt.Errorf("parent: %w", err)
	}
	if status == forktree.Building {
		return fmt.Errorf("parent %d: %w", slot.Parent, forktree.ErrSlotNotClosed)
	}

	parentHash, err := s.tree.Hash(slot.Parent)
	if err != nil {
		return err
	}

	s.mu.RLock()
	parentBank := s.banks[slot.Parent]
	s.mu.RUnlock()

	if parentBank == nil {
		return fmt.Errorf("parent slot %d: %w", slot.Parent, ErrUnavailable)
	}

	updates, err := s.tree.Insert(slot.Index, slot.Parent)
	if err != nil {
		return err
	}
	s.applyUpdates(updates)

	var results []executor.Result
	b, err := bank.NewFromParent(parentBank, slot.Index)
	if err == nil {
		err = s.verifySlot(ctx, parentHash, slot)
	}
	if err == nil {
		results, err = s.replayEntries(ctx, b, slot)
	}
	if err != nil {
		s.evHandler("state: ReplaySlot: slot[%d] leader[%s]: ERROR: %s", slot.Index, slot.Leader, err)
		if dead, derr := s.tree.MarkDead(slot.Index); derr == nil {
			s.applyUpdates(dead)
		}
		return err
	}

	bankHash := b.Freeze()

	updates, err = s.tree.Close(slot.Index, slot.LastHash())
	if err != nil {
		return err
	}

	s.storeSlot(slot, b)
	s.storeResults(results)

	txs := slot.Transactions()
	ids := make([]uuid.UUID, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	s.scheduler.Queue().Remove(ids...)
	s.metrics.MempoolSize.Set(float64(s.scheduler.Queue().Count()))

	for _, id := range ids {
		s.seen.SetDefault(id.String(), struct{}{})
	}

	s.evHandler("state: ReplaySlot: slot[%d] leader[%s] entries[%d] txs[%d] bank[%s]", slot.Index, slot.Leader, len(slot.Entries), len(txs), bankHash)
	s.applyUpdates(updates)

	s.mu.Lock()
	pending := s.pending[slot.Index]
	delete(s.pending, slot.Index)
	s.mu.Unlock()

	for _, v := range pending {
		if err := s.AddVote(v); err != nil {
			s.evHandler("state: ReplaySlot: slot[%d] pending vote[%s]: %s", slot.Index, v.Voter, err)
		}
	}

	s.vote(slot.Index, slot.LastHash())

	return nil
}

// MarkSlotMissed records that the slot's leader produced nothing valid within
// the slot's budget. The slot dies without affecting later slots. When this
// node was producing the slot itself, the production is abandoned and its
// transactions are carried forward.
func (s *State) MarkSlotMissed(slot uint64) error {
	s.prodMu.Lock()
	defer s.prodMu.Unlock()

	if root, _ := s.tree.Root(); slot <= root {
		return nil
	}

	if _, err := s.tree.Status(slot); errors.Is(err, forktree.ErrUnknownSlot) {
		parent, err := s.missedParent(slot)
		if err != nil {
			return err
		}

		updates, err := s.tree.Insert(slot, parent)
		if err != nil {
			return err
		}
		s.applyUpdates(updates)
	}

	updates, err := s.tree.MarkDead(slot)
	if err != nil {
		return err
	}

	if p := s.current; p != nil && p.slot == slot {
		s.current = nil
		s.carryForward(slot, p.transactions())
	}

	s.evHandler("state: MarkSlotMissed: slot[%d] leader[%s]: %s", slot, s.Leader(slot), ErrSlotMissed)
	s.applyUpdates(updates)

	return nil
}

// =============================================================================

// missedParent returns the slot a missed slot is recorded under, the highest
// slot before it on the heaviest fork.
func (s *State) missedParent(slot uint64) (uint64, error) {
	chain, err := s.tree.Chain(s.tree.BestTip())
	if err != nil {
		return 0, err
	}

	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i] < slot {
			return chain[i], nil
		}
	}

	return 0, fmt.Errorf("slot %d: %w", slot, forktree.ErrUnknownSlot)
}

// verifySlot checks the shape of the entry stream and re-hashes it from the
// parent's last hash.
func (s *State) verifySlot(ctx context.Context, parentHash database.Hash, slot database.Slot) error {
	if len(slot.Entries) == 0 {
		return fmt.Errorf("slot %d has no entries: %w", slot.Index, poh.ErrInvalidEntry)
	}

	if !slot.Entries[len(slot.Entries)-1].IsTick() {
		return fmt.Errorf("slot %d does not end with a tick: %w", slot.Index, poh.ErrInvalidEntry)
	}

	for i, e := range slot.Entries {
		if len(e.Transactions) > int(s.genesis.MaxTxPerEntry) {
			return &poh.VerifyError{Index: i, Err: fmt.Errorf("%d transactions: %w", len(e.Transactions), poh.ErrInvalidEntry)}
		}
	}

	return poh.VerifyParallel(ctx, parentHash, slot.Entries, s.executor.Workers())
}

// replayEntries executes every entry's transactions against the bank. The
// transactions of one entry must not conflict, which is checked by locking
// them all in a fresh lock table before they run in parallel. A transaction
// already executed in this slot or an ancestor invalidates the entry. The
// results are returned in entry order.
func (s *State) replayEntries(ctx context.Context, b *bank.Bank, slot database.Slot) ([]executor.Result, error) {
	var out []executor.Result

	for i, e := range slot.Entries {
		if e.IsTick() {
			continue
		}

		txs := make([]database.SignedTx, len(e.Transactions))
		ids := make([]uuid.UUID, len(e.Transactions))
		for j, tx := range e.Transactions {
			tx.Tx = tx.Tx.Normalize()
			txs[j] = tx
			ids[j] = tx.ID
		}

		if err := b.MarkProcessed(ids...); err != nil {
			if errors.Is(err, bank.ErrProcessed) {
				return nil, &poh.VerifyError{Index: i, Err: fmt.Errorf("%w: %w: %s", poh.ErrInvalidEntry, ErrDuplicateID, err)}
			}
			return nil, err
		}

		table := locks.New()
		guards := make([]*locks.Guard, 0, len(txs))
		release := func() {
			for _, g := range guards {
				g.Release()
			}
		}

		for _, tx := range txs {
			g, err := table.TryLock(tx.Tx)
			if err != nil {
				release()
				return nil, &poh.VerifyError{Index: i, Err: fmt.Errorf("conflicting transactions: %w", poh.ErrInvalidEntry)}
			}
			guards = append(guards, g)
		}

		results, err := s.executor.Execute(context.WithoutCancel(ctx), b, txs)
		release()
		if err != nil {
			return nil, err
		}

		out = append(out, results...)
	}

	return out, nil
}
