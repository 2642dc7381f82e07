// Package locks maintains the account lock table. A transaction holds shared
// locks on the accounts it reads and exclusive locks on the accounts it
// writes for as long as it executes.
package locks

import (
	"errors"
	"sync"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
)

// ErrDeferred is returned when a transaction's footprint conflicts with locks
// currently held. The transaction should be retried in a later batch.
var ErrDeferred = errors.New("account locked, deferred")

// lock is the state of one account. A positive readers count and writer are
// mutually exclusive.
type lock struct {
	readers int
	writer  bool
}

// Table tracks the accounts locked by in flight transactions.
type Table struct {
	mu    sync.Mutex
	locks map[database.AccountID]*lock
}

// New constructs an empty lock table.
func New() *Table {
	return &Table{
		locks: make(map[database.AccountID]*lock),
	}
}

// TryLock acquires every lock the transaction declares or none of them. It
// never blocks. Accounts declared as both read and written are write locked.
func (t *Table) TryLock(tx database.Tx) (*Guard, error) {
	writes := make(map[database.AccountID]struct{}, len(tx.Writes))
	for _, id := range tx.Writes {
		writes[id] = struct{}{}
	}

	var reads []database.AccountID
	for _, id := range tx.Reads {
		if _, exists := writes[id]; !exists {
			reads = append(reads, id)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range writes {
		if l, exists := t.locks[id]; exists && (l.writer || l.readers > 0) {
			return nil, ErrDeferred
		}
	}

	for _, id := range reads {
		if l, exists := t.locks[id]; exists && l.writer {
			return nil, ErrDeferred
		}
	}

	g := Guard{
		table: t,
		reads: reads,
	}

	for id := range writes {
		t.locks[id] = &lock{writer: true}
		g.writes = append(g.writes, id)
	}

	for _, id := range reads {
		l, exists := t.locks[id]
		if !exists {
			l = &lock{}
			t.locks[id] = l
		}
		l.readers++
	}

	return &g, nil
}

// Locked reports the number of accounts currently holding a lock.
func (t *Table) Locked() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.locks)
}

// IsWriteLocked reports whether the account is exclusively locked.
func (t *Table) IsWriteLocked(id database.AccountID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, exists := t.locks[id]
	return exists && l.writer
}

func (t *Table) release(g *Guard) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range g.writes {
		delete(t.locks, id)
	}

	for _, id := range g.reads {
		l, exists := t.locks[id]
		if !exists {
			continue
		}

		l.readers--
		if l.readers <= 0 {
			delete(t.locks, id)
		}
	}
}

// =============================================================================

// Guard represents the locks held for one transaction. Call Release on every
// exit path, typically with defer.
type Guard struct {
	table  *Table
	reads  []database.AccountID
	writes []database.AccountID
	once   sync.Once
}

// Release frees the locks. Calling it more than once is safe.
func (g *Guard) Release() {
	if g == nil {
		return
	}

	g.once.Do(func() {
		g.table.release(g)
	})
}
