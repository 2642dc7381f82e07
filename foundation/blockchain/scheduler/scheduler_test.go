package scheduler_test

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/locks"
	"github.com/ardanlabs/pohchain/foundation/blockchain/scheduler"
	"github.com/google/uuid"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func account(n int) database.AccountID {
	id, _ := database.ToAccountID(fmt.Sprintf("0x%040x", n+1))
	return id
}

func tx(reads []int, writes []int) database.SignedTx {
	var tx database.SignedTx
	tx.ID = uuid.New()
	for _, r := range reads {
		tx.Reads = append(tx.Reads, account(r))
	}
	for _, w := range writes {
		tx.Writes = append(tx.Writes, account(w))
	}
	return tx
}

func conflict(a, b database.Tx) bool {
	in := func(id database.AccountID, ids []database.AccountID) bool {
		for _, x := range ids {
			if x == id {
				return true
			}
		}
		return false
	}

	for _, w := range a.Writes {
		if in(w, b.Writes) || in(w, b.Reads) {
			return true
		}
	}
	for _, r := range a.Reads {
		if in(r, b.Writes) {
			return true
		}
	}
	return false
}

// =============================================================================

func Test_Queue(t *testing.T) {
	q := scheduler.NewQueue()

	a, b, c := tx(nil, []int{1}), tx(nil, []int{2}), tx(nil, []int{3})

	t.Log("Given the need to keep pending transactions in arrival order.")
	{
		for _, x := range []database.SignedTx{a, b, c} {
			if _, err := q.Upsert(x); err != nil {
				t.Fatalf("\t%s\tShould be able to add a transaction: %s", failed, err)
			}
		}

		if _, err := q.Upsert(b); !errors.Is(err, scheduler.ErrDuplicate) {
			t.Fatalf("\t%s\tShould reject a duplicate id: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a duplicate id.", success)

		drained := q.Drain(2)
		if len(drained) != 2 || drained[0].ID != a.ID || drained[1].ID != b.ID || q.Count() != 1 {
			t.Fatalf("\t%s\tShould drain from the front.", failed)
		}

		q.Requeue(drained...)
		got := q.Copy()
		if len(got) != 3 || got[0].ID != a.ID || got[1].ID != b.ID || got[2].ID != c.ID {
			t.Fatalf("\t%s\tShould requeue at the front in order.", failed)
		}
		t.Logf("\t%s\tShould drain and requeue in order.", success)

		expired := q.Expire(func(x database.SignedTx) bool { return x.ID != b.ID })
		if len(expired) != 1 || expired[0].ID != b.ID || q.Contains(b.ID) || q.Count() != 2 {
			t.Fatalf("\t%s\tShould expire the rejected transaction.", failed)
		}

		q.Remove(a.ID)
		if q.Count() != 1 || !q.Contains(c.ID) {
			t.Fatalf("\t%s\tShould remove by id.", failed)
		}
		t.Logf("\t%s\tShould expire and remove transactions.", success)
	}
}

func Test_ScheduleBatch(t *testing.T) {
	type table struct {
		name   string
		txs    []database.SignedTx
		max    int
		groups [][]int
	}

	tt := []table{
		{
			name:   "disjoint",
			txs:    []database.SignedTx{tx(nil, []int{1, 2}), tx(nil, []int{3, 4}), tx(nil, []int{5, 6})},
			max:    8,
			groups: [][]int{{0, 1, 2}},
		},
		{
			name:   "samewriter",
			txs:    []database.SignedTx{tx(nil, []int{1, 2}), tx(nil, []int{1, 3})},
			max:    8,
			groups: [][]int{{0}, {1}},
		},
		{
			name:   "sharedread",
			txs:    []database.SignedTx{tx([]int{9}, []int{1}), tx([]int{9}, []int{2}), tx(nil, []int{9})},
			max:    8,
			groups: [][]int{{0, 1}, {2}},
		},
		{
			name:   "order",
			txs:    []database.SignedTx{tx(nil, []int{1}), tx(nil, []int{1, 2}), tx(nil, []int{2}), tx(nil, []int{3})},
			max:    8,
			groups: [][]int{{0, 3}, {1}, {2}},
		},
		{
			name:   "parallelism",
			txs:    []database.SignedTx{tx(nil, []int{1}), tx(nil, []int{2}), tx(nil, []int{3})},
			max:    2,
			groups: [][]int{{0, 1}, {2}},
		},
	}

	t.Log("Given the need to partition transactions into conflict free groups.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				q := scheduler.NewQueue()
				for _, x := range tst.txs {
					q.Upsert(x)
				}

				groups := scheduler.New(q, locks.New()).ScheduleBatch(tst.max)

				if len(groups) != len(tst.groups) {
					t.Fatalf("\t%s\tTest %d:\tShould get %d groups, got %d.", failed, testID, len(tst.groups), len(groups))
				}

				for i, exp := range tst.groups {
					if len(groups[i]) != len(exp) {
						t.Fatalf("\t%s\tTest %d:\tShould get %d txs in group %d, got %d.", failed, testID, len(exp), i, len(groups[i]))
					}
					for j, idx := range exp {
						if groups[i][j].ID != tst.txs[idx].ID {
							t.Fatalf("\t%s\tTest %d:\tShould get tx %d at group %d position %d.", failed, testID, idx, i, j)
						}
					}
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected groups.", success, testID)

				if q.Count() != 0 {
					t.Fatalf("\t%s\tTest %d:\tShould drain the queue.", failed, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Acquire(t *testing.T) {
	q := scheduler.NewQueue()
	table := locks.New()
	s := scheduler.New(q, table)

	outside, _ := table.TryLock(tx(nil, []int{2}).Tx)

	a, b := tx(nil, []int{1}), tx(nil, []int{2})
	locked, deferred := s.Acquire(scheduler.Group{a, b})

	if len(locked.Txs) != 1 || locked.Txs[0].ID != a.ID {
		t.Fatalf("\t%s\tShould lock the free transaction.", failed)
	}
	if len(deferred) != 1 || deferred[0].ID != b.ID || !q.Contains(b.ID) {
		t.Fatalf("\t%s\tShould defer and requeue the blocked transaction.", failed)
	}
	t.Logf("\t%s\tShould defer transactions that can't be locked.", success)

	locked.Release()
	locked.Release()
	outside.Release()

	if table.Locked() != 0 {
		t.Fatalf("\t%s\tShould release the group locks.", failed)
	}
	t.Logf("\t%s\tShould release the group locks.", success)
}

func Test_RandomFootprints(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	pick := func(n int) []int {
		seen := map[int]bool{}
		var out []int
		for range n {
			a := r.Intn(16)
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
		return out
	}

	for round := range 100 {
		q := scheduler.NewQueue()
		s := scheduler.New(q, locks.New())

		var txs []database.SignedTx
		for range 5 + r.Intn(40) {
			x := tx(pick(r.Intn(4)), pick(1+r.Intn(3)))
			txs = append(txs, x)
			q.Upsert(x)
		}

		groups := s.ScheduleBatch(1 + r.Intn(8))

		position := map[uuid.UUID]int{}
		for gi, g := range groups {
			for i := range g {
				position[g[i].ID] = gi
				for j := i + 1; j < len(g); j++ {
					if conflict(g[i].Tx, g[j].Tx) {
						t.Fatalf("\t%s\tRound %d:\tShould never co-schedule a conflicting pair.", failed, round)
					}
				}
			}

			locked, deferred := s.Acquire(g)
			if len(deferred) != 0 {
				t.Fatalf("\t%s\tRound %d:\tShould lock every transaction of a group.", failed, round)
			}
			locked.Release()
		}

		if len(position) != len(txs) {
			t.Fatalf("\t%s\tRound %d:\tShould schedule every transaction exactly once.", failed, round)
		}

		for i := range txs {
			for j := i + 1; j < len(txs); j++ {
				if conflict(txs[i].Tx, txs[j].Tx) && position[txs[i].ID] >= position[txs[j].ID] {
					t.Fatalf("\t%s\tRound %d:\tShould keep arrival order between conflicting transactions.", failed, round)
				}
			}
		}
	}
	t.Logf("\t%s\tShould never co-schedule a conflicting pair.", success)
}
