package state

import (
	"context"
	"fmt"
	"time"

	"github.com/ardanlabs/pohchain/foundation/blockchain/bank"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/executor"
	"github.com/ardanlabs/pohchain/foundation/blockchain/scheduler"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// StartSlot begins producing the specified slot on top of the fork choice
// tip. Only the slot's leader can produce it.
func (s *State) StartSlot(slot uint64) error {
	if s.Leader(slot) != s.account {
		return fmt.Errorf("slot %d: %w", slot, ErrNotLeader)
	}

	s.prodMu.Lock()
	defer s.prodMu.Unlock()

	if s.current != nil {
		return fmt.Errorf("slot %d still in production", s.current.slot)
	}

	parent := s.tree.BestTip()
	if parent >= slot {
		return fmt.Errorf("slot %d is not after tip %d", slot, parent)
	}

	hash, err := s.tree.Hash(parent)
	if err != nil {
		return err
	}

	s.mu.RLock()
	parentBank := s.banks[parent]
	s.mu.RUnlock()

	if parentBank == nil {
		return fmt.Errorf("parent slot %d: %w", parent, ErrUnavailable)
	}

	b, err := bank.NewFromParent(parentBank, slot)
	if err != nil {
		return err
	}

	updates, err := s.tree.Insert(slot, parent)
	if err != nil {
		return err
	}

	s.recorder.Reset(hash)
	s.current = &production{
		slot:   slot,
		parent: parent,
		bank:   b,
	}

	s.evHandler("state: StartSlot: slot[%d] parent[%d] hash[%s]", slot, parent, hash)
	s.applyUpdates(updates)

	return nil
}

// Producing returns the slot being produced, if any.
func (s *State) Producing() (uint64, bool) {
	s.prodMu.Lock()
	defer s.prodMu.Unlock()

	if s.current == nil {
		return 0, false
	}
	return s.current.slot, true
}

// ProcessTransactions drains the pending queue into the slot being produced.
// Transactions referencing a stale hash or already executed on this fork are
// dropped, the rest are partitioned
// into conflict free groups. Each group is locked, executed in parallel,
// recorded as one entry and released before the next group begins. It
// returns the number of transactions recorded.
func (s *State) ProcessTransactions(ctx context.Context) (int, error) {
	s.prodMu.Lock()
	defer s.prodMu.Unlock()

	p := s.current
	if p == nil {
		return 0, ErrNotProducing
	}

	queue := s.scheduler.Queue()

	expired := queue.Expire(func(tx database.SignedTx) bool {
		return s.isRecent(tx.RecentHash)
	})
	for _, tx := range expired {
		s.seen.Delete(tx.ID.String())
		s.evHandler("state: ProcessTransactions: slot[%d] tx[%s]: dropped: %s", p.slot, tx.ID, ErrStaleReference)
	}

	duplicates := queue.Expire(func(tx database.SignedTx) bool {
		return !p.bank.Processed(tx.ID)
	})
	for _, tx := range duplicates {
		s.evHandler("state: ProcessTransactions: slot[%d] tx[%s]: dropped: %s", p.slot, tx.ID, ErrDuplicateID)
	}

	groups := s.scheduler.ScheduleBatch(int(s.genesis.MaxTxPerEntry))

	var processed int
	for i, group := range groups {
		if ctx.Err() != nil {
			var rest []database.SignedTx
			for _, g := range groups[i:] {
				rest = append(rest, g...)
			}
			s.scheduler.Requeue(rest...)
			break
		}

		n, err := s.processGroup(ctx, p, group)
		processed += n
		if err != nil {
			return processed, err
		}
	}

	s.metrics.MempoolSize.Set(float64(queue.Count()))

	return processed, nil
}

// EndSlot closes the slot being produced with a final tick entry, freezes its
// bank, signs it and votes for it. The closed slot is returned for sharing.
func (s *State) EndSlot(slot uint64) (database.Slot, error) {
	s.prodMu.Lock()
	defer s.prodMu.Unlock()

	p := s.current
	if p == nil || p.slot != slot {
		return database.Slot{}, fmt.Errorf("slot %d: %w", slot, ErrNotProducing)
	}
	s.current = nil

	tick := s.recorder.TickEntry()
	p.entries = append(p.entries, tick)
	s.metrics.Entries.WithLabelValues("tick").Inc()

	bankHash := p.bank.Freeze()

	closed, err := database.Slot{
		Index:   slot,
		Parent:  p.parent,
		Leader:  s.account,
		Entries: p.entries,
	}.Sign(s.privateKey)
	if err != nil {
		if dead, derr := s.tree.MarkDead(slot); derr == nil {
			s.applyUpdates(dead)
		}
		s.carryForward(slot, p.transactions())
		return database.Slot{}, err
	}

	updates, err := s.tree.Close(slot, closed.LastHash())
	if err != nil {
		s.carryForward(slot, p.transactions())
		return database.Slot{}, err
	}

	s.storeSlot(closed, p.bank)

	s.evHandler("state: EndSlot: slot[%d] entries[%d] txs[%d] hash[%s] bank[%s]", slot, len(closed.Entries), closed.TransactionCount(), closed.LastHash(), bankHash)
	s.applyUpdates(updates)

	s.Worker.SignalShareSlot(closed)
	s.vote(slot, closed.LastHash())

	return closed, nil
}

// =============================================================================

// processGroup executes one group and records it as an entry. The group's
// locks are held until the entry is recorded.
func (s *State) processGroup(ctx context.Context, p *production, group scheduler.Group) (int, error) {
	locked, deferred := s.scheduler.Acquire(group)
	defer locked.Release()

	s.metrics.TxDeferred.Add(float64(len(deferred)))
	if len(locked.Txs) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, len(locked.Txs))
	for i, tx := range locked.Txs {
		ids[i] = tx.ID
	}
	if err := p.bank.MarkProcessed(ids...); err != nil {
		return 0, err
	}

	// A group runs to completion once started so the bank never holds a
	// partial group.
	start := time.Now()
	results, err := s.executor.Execute(context.WithoutCancel(ctx), p.bank, locked.Txs)
	if err != nil {
		return 0, err
	}
	s.metrics.ExecDuration.Observe(time.Since(start).Seconds())
	s.metrics.BatchGroups.Observe(float64(len(locked.Txs)))

	entry, err := s.recorder.Record(locked.Txs)
	if err != nil {
		return 0, err
	}
	p.entries = append(p.entries, entry)
	s.metrics.Entries.WithLabelValues("transactions").Inc()

	s.storeResults(results)

	s.evHandler("state: processGroup: slot[%d] entry[%d] txs[%d] deferred[%d]", p.slot, len(p.entries)-1, len(locked.Txs), len(deferred))

	return len(locked.Txs), nil
}

// storeResults keeps the results for queries and counts the outcomes.
func (s *State) storeResults(results []executor.Result) {
	for _, r := range results {
		s.results.Set(r.TxID.String(), r, cache.DefaultExpiration)

		switch r.Status {
		case executor.Applied:
			s.metrics.TxApplied.Inc()
		default:
			s.metrics.TxFailed.Inc()
			s.evHandler("state: result: slot[%d] tx[%s]: failed: %s", r.Slot, r.TxID, r.Reason)
		}
	}
}

// storeSlot keeps a closed slot and its frozen bank until the slot is
// finalized or dies.
func (s *State) storeSlot(slot database.Slot, b *bank.Bank) {
	s.mu.Lock()
	s.banks[slot.Index] = b
	s.slots[slot.Index] = slot
	if slot.Index > s.highest {
		s.highest = slot.Index
	}
	s.mu.Unlock()

	s.recent.SetDefault(slot.LastHash().String(), slot.Index)
}

// carryForward returns the transactions of a slot that won't survive to the
// front of the queue. Transactions already executed on the heaviest fork stay
// out.
func (s *State) carryForward(slot uint64, txs []database.SignedTx) {
	tip := s.tipBank()

	var keep []database.SignedTx
	for _, tx := range txs {
		if tip != nil && tip.Processed(tx.ID) {
			continue
		}

		if v, found := s.results.Get(tx.ID.String()); found {
			if r := v.(executor.Result); r.Slot == slot {
				s.results.Delete(tx.ID.String())
			}
		}
		keep = append(keep, tx)
	}

	if len(keep) == 0 {
		return
	}

	s.scheduler.Requeue(keep...)
	s.evHandler("state: carryForward: slot[%d] requeued[%d]", slot, len(keep))
	s.Worker.SignalBanking()
}
