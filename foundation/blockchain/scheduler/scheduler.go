// Package scheduler partitions pending transactions into groups whose
// account footprints don't conflict, so every transaction in a group can be
// executed at the same time.
package scheduler

import (
	"errors"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/locks"
)

// Group is a set of transactions with no conflicting footprints.
type Group []database.SignedTx

// Locked is a group holding its locks in the account lock table.
type Locked struct {
	Txs    []database.SignedTx
	guards []*locks.Guard
}

// Release frees every lock held by the group. Calling it more than once is
// safe.
func (l *Locked) Release() {
	for _, g := range l.guards {
		g.Release()
	}
}

// =============================================================================

// Scheduler owns the pending queue and is the only user of the account lock
// table.
type Scheduler struct {
	queue *Queue
	table *locks.Table
}

// New constructs a scheduler over the queue and lock table.
func New(queue *Queue, table *locks.Table) *Scheduler {
	return &Scheduler{
		queue: queue,
		table: table,
	}
}

// Queue returns the pending queue.
func (s *Scheduler) Queue() *Queue {
	return s.queue
}

// ScheduleBatch drains the queue and partitions the transactions into groups
// of at most maxParallelism. Transactions are taken in arrival order and the
// earliest transaction wins any conflict. A transaction that conflicts with
// an earlier one, included or not, waits for a later group, so conflicting
// transactions keep their arrival order across groups.
func (s *Scheduler) ScheduleBatch(maxParallelism int) []Group {
	if maxParallelism < 1 {
		maxParallelism = 1
	}

	return partition(s.queue.Drain(-1), maxParallelism)
}

// Acquire takes the locks for every transaction in the group. Transactions
// that can't be locked are returned and put back at the front of the queue.
func (s *Scheduler) Acquire(group Group) (*Locked, []database.SignedTx) {
	var locked Locked
	var deferred []database.SignedTx

	for _, tx := range group {
		guard, err := s.table.TryLock(tx.Tx)
		if err != nil {
			if errors.Is(err, locks.ErrDeferred) {
				deferred = append(deferred, tx)
			}
			continue
		}

		locked.Txs = append(locked.Txs, tx)
		locked.guards = append(locked.guards, guard)
	}

	if len(deferred) > 0 {
		s.queue.Requeue(deferred...)
	}

	return &locked, deferred
}

// Requeue returns transactions to the front of the queue.
func (s *Scheduler) Requeue(txs ...database.SignedTx) {
	s.queue.Requeue(txs...)
}

// =============================================================================

// footprint accumulates the accounts touched by transactions already seen in
// a pass.
type footprint struct {
	reads  map[database.AccountID]struct{}
	writes map[database.AccountID]struct{}
}

func newFootprint() footprint {
	return footprint{
		reads:  make(map[database.AccountID]struct{}),
		writes: make(map[database.AccountID]struct{}),
	}
}

func (f footprint) conflicts(tx database.Tx) bool {
	for _, id := range tx.Writes {
		if _, exists := f.writes[id]; exists {
			return true
		}
		if _, exists := f.reads[id]; exists {
			return true
		}
	}

	for _, id := range tx.Reads {
		if _, exists := f.writes[id]; exists {
			return true
		}
	}

	return false
}

func (f footprint) add(tx database.Tx) {
	for _, id := range tx.Writes {
		f.writes[id] = struct{}{}
	}
	for _, id := range tx.Reads {
		f.reads[id] = struct{}{}
	}
}

// partition splits the transactions into conflict free groups, one pass over
// the remaining transactions per group.
func partition(pending []database.SignedTx, maxParallelism int) []Group {
	var groups []Group

	for len(pending) > 0 {
		seen := newFootprint()

		var group Group
		var next []database.SignedTx

		for i, tx := range pending {
			if len(group) == maxParallelism {
				next = append(next, pending[i:]...)
				break
			}

			if !seen.conflicts(tx.Tx) {
				group = append(group, tx)
			} else {
				next = append(next, tx)
			}

			seen.add(tx.Tx)
		}

		groups = append(groups, group)
		pending = next
	}

	return groups
}
