package scheduler

import (
	"errors"
	"sync"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/google/uuid"
)

// ErrDuplicate is returned when a transaction with the same id is queued.
var ErrDuplicate = errors.New("transaction already queued")

// Queue represents the pending transactions in arrival order, keyed by
// transaction id.
type Queue struct {
	mu   sync.RWMutex
	txs  []database.SignedTx
	pool map[uuid.UUID]struct{}
}

// NewQueue constructs an empty queue.
func NewQueue() *Queue {
	return &Queue{
		pool: make(map[uuid.UUID]struct{}),
	}
}

// Count returns the current number of transactions in the queue.
func (q *Queue) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.txs)
}

// Contains reports whether a transaction with the id is queued.
func (q *Queue) Contains(id uuid.UUID) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	_, exists := q.pool[id]
	return exists
}

// Upsert adds a transaction at the back of the queue.
func (q *Queue) Upsert(tx database.SignedTx) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.pool[tx.ID]; exists {
		return len(q.txs), ErrDuplicate
	}

	q.pool[tx.ID] = struct{}{}
	q.txs = append(q.txs, tx)

	return len(q.txs), nil
}

// Requeue puts transactions back at the front of the queue keeping their
// relative order. Transactions already queued are skipped.
func (q *Queue) Requeue(txs ...database.SignedTx) {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := make([]database.SignedTx, 0, len(txs)+len(q.txs))
	for _, tx := range txs {
		if _, exists := q.pool[tx.ID]; exists {
			continue
		}
		q.pool[tx.ID] = struct{}{}
		front = append(front, tx)
	}

	q.txs = append(front, q.txs...)
}

// Remove deletes the transactions with the specified ids.
func (q *Queue) Remove(ids ...uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()

	remove := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}

	q.filter(func(tx database.SignedTx) bool {
		_, exists := remove[tx.ID]
		return !exists
	})
}

// Expire drops every transaction keep rejects and returns them.
func (q *Queue) Expire(keep func(tx database.SignedTx) bool) []database.SignedTx {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.filter(keep)
}

// Drain removes and returns up to howMany transactions from the front of the
// queue, or all of them when howMany is -1.
func (q *Queue) Drain(howMany int) []database.SignedTx {
	q.mu.Lock()
	defer q.mu.Unlock()

	if howMany < 0 || howMany > len(q.txs) {
		howMany = len(q.txs)
	}

	out := make([]database.SignedTx, howMany)
	copy(out, q.txs[:howMany])
	q.txs = q.txs[howMany:]

	for _, tx := range out {
		delete(q.pool, tx.ID)
	}

	return out
}

// Truncate clears all the transactions from the queue.
func (q *Queue) Truncate() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.txs = nil
	q.pool = make(map[uuid.UUID]struct{})
}

// Copy returns a list of the current transactions in arrival order.
func (q *Queue) Copy() []database.SignedTx {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]database.SignedTx, len(q.txs))
	copy(out, q.txs)

	return out
}

// filter keeps the transactions keep accepts and returns the others. The
// caller must hold the write lock.
func (q *Queue) filter(keep func(tx database.SignedTx) bool) []database.SignedTx {
	var dropped []database.SignedTx

	kept := q.txs[:0]
	for _, tx := range q.txs {
		if keep(tx) {
			kept = append(kept, tx)
			continue
		}
		dropped = append(dropped, tx)
		delete(q.pool, tx.ID)
	}

	clear(q.txs[len(kept):])
	q.txs = kept

	return dropped
}
