package bank_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/ardanlabs/pohchain/foundation/blockchain/bank"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/google/uuid"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var (
	kennedy = database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
	pavel   = database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	ceasar  = database.AccountID("0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76")
)

func balance(t *testing.T, b *bank.Bank, id database.AccountID) uint64 {
	t.Helper()

	account, err := b.Account(id)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to read account %s: %s", failed, id, err)
	}
	return account.Balance
}

// =============================================================================

func Test_ForkIsolation(t *testing.T) {
	root := bank.Genesis(map[database.AccountID]uint64{kennedy: 100, pavel: 50})

	t.Log("Given the need to keep sibling banks isolated.")
	{
		left, err := bank.NewFromParent(root, 1)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to fork a bank: %s", failed, err)
		}

		right, err := bank.NewFromParent(root, 2)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to fork a bank: %s", failed, err)
		}

		a := database.NewAccount(kennedy, 70)
		a.Version = 1
		if err := left.Store(a, database.NewAccount(ceasar, 30)); err != nil {
			t.Fatalf("\t%s\tShould be able to store into an open bank: %s", failed, err)
		}

		if balance(t, left, kennedy) != 70 || balance(t, right, kennedy) != 100 || balance(t, root, kennedy) != 100 {
			t.Fatalf("\t%s\tShould only see writes on the bank that made them.", failed)
		}

		if _, err := right.Account(ceasar); !errors.Is(err, bank.ErrNotFound) {
			t.Fatalf("\t%s\tShould not see an account created on a sibling: %v", failed, err)
		}
		t.Logf("\t%s\tShould only see writes on the bank that made them.", success)

		if balance(t, left, pavel) != 50 {
			t.Fatalf("\t%s\tShould inherit unmodified accounts from the parent.", failed)
		}
		t.Logf("\t%s\tShould inherit unmodified accounts from the parent.", success)

		if _, err := bank.NewFromParent(left, 3); !errors.Is(err, bank.ErrNotFrozen) {
			t.Fatalf("\t%s\tShould not fork from an open bank: %v", failed, err)
		}

		hash := left.Freeze()
		if err := left.Store(database.NewAccount(pavel, 1)); !errors.Is(err, bank.ErrFrozen) {
			t.Fatalf("\t%s\tShould not store into a frozen bank: %v", failed, err)
		}
		if left.Freeze() != hash || left.Hash() != hash {
			t.Fatalf("\t%s\tShould keep the hash fixed once frozen.", failed)
		}
		t.Logf("\t%s\tShould reject writes once frozen.", success)

		right.Freeze()
		if left.Hash() == right.Hash() {
			t.Fatalf("\t%s\tShould produce different hashes for different writes.", failed)
		}
		t.Logf("\t%s\tShould produce different hashes for different writes.", success)
	}
}

func Test_DataNotAliased(t *testing.T) {
	root := bank.Genesis(nil)
	child, _ := bank.NewFromParent(root, 1)

	a := database.NewAccount(kennedy, 0)
	a.Data = []byte("abc")
	child.Store(a)

	a.Data[0] = 'x'
	got, _ := child.Account(kennedy)
	if string(got.Data) != "abc" {
		t.Fatalf("\t%s\tShould copy the data blob on store.", failed)
	}

	got.Data[1] = 'y'
	again, _ := child.Account(kennedy)
	if string(again.Data) != "abc" {
		t.Fatalf("\t%s\tShould copy the data blob on read.", failed)
	}
	t.Logf("\t%s\tShould never alias the data blob.", success)
}

func Test_Squash(t *testing.T) {
	root := bank.Genesis(map[database.AccountID]uint64{kennedy: 100, pavel: 50})

	one, _ := bank.NewFromParent(root, 1)
	one.Store(database.NewAccount(kennedy, 90))
	one.Freeze()

	two, _ := bank.NewFromParent(one, 2)
	two.Store(database.NewAccount(ceasar, 10))
	hash := two.Freeze()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				two.Account(kennedy)
			}
		}()
	}

	if err := two.Squash(0); err != nil {
		t.Fatalf("\t%s\tShould be able to squash a frozen bank: %s", failed, err)
	}
	wg.Wait()

	if two.Parent() != nil {
		t.Fatalf("\t%s\tShould drop the parent reference.", failed)
	}

	if balance(t, two, kennedy) != 90 || balance(t, two, pavel) != 50 || balance(t, two, ceasar) != 10 {
		t.Fatalf("\t%s\tShould expose the same accounts after squashing.", failed)
	}

	if two.Hash() != hash {
		t.Fatalf("\t%s\tShould keep the same hash after squashing.", failed)
	}
	t.Logf("\t%s\tShould squash ancestors without changing the view.", success)
}

func Test_Processed(t *testing.T) {
	t.Log("Given the need to execute a transaction once per fork.")
	{
		root := bank.Genesis(map[database.AccountID]uint64{kennedy: 100})
		txA, txB := uuid.New(), uuid.New()

		one, _ := bank.NewFromParent(root, 1)
		if err := one.MarkProcessed(txA); err != nil {
			t.Fatalf("\t%s\tShould be able to mark a transaction: %s", failed, err)
		}
		if err := one.MarkProcessed(txA); !errors.Is(err, bank.ErrProcessed) {
			t.Fatalf("\t%s\tShould reject marking the same transaction twice: %v", failed, err)
		}
		if err := one.MarkProcessed(txB, txB); !errors.Is(err, bank.ErrProcessed) {
			t.Fatalf("\t%s\tShould reject a repeated id in one call: %v", failed, err)
		}
		if one.Processed(txB) {
			t.Fatalf("\t%s\tShould record nothing from a rejected call.", failed)
		}
		t.Logf("\t%s\tShould mark a transaction once per bank.", success)

		one.Freeze()
		if err := one.MarkProcessed(txB); !errors.Is(err, bank.ErrFrozen) {
			t.Fatalf("\t%s\tShould refuse to mark on a frozen bank: %v", failed, err)
		}

		child, _ := bank.NewFromParent(one, 2)
		sibling, _ := bank.NewFromParent(root, 3)

		if !child.Processed(txA) {
			t.Fatalf("\t%s\tShould see the transaction from the parent.", failed)
		}
		if err := child.MarkProcessed(txA); !errors.Is(err, bank.ErrProcessed) {
			t.Fatalf("\t%s\tShould reject a transaction an ancestor executed: %v", failed, err)
		}
		t.Logf("\t%s\tShould inherit processed transactions from ancestors.", success)

		if sibling.Processed(txA) {
			t.Fatalf("\t%s\tShould not see the transaction on a competing fork.", failed)
		}
		if err := sibling.MarkProcessed(txA); err != nil {
			t.Fatalf("\t%s\tShould accept the transaction on a competing fork: %s", failed, err)
		}
		t.Logf("\t%s\tShould keep competing forks apart.", success)

		child.MarkProcessed(txB)
		child.Freeze()

		if err := child.Squash(2); err != nil {
			t.Fatalf("\t%s\tShould be able to squash: %s", failed, err)
		}
		if child.Processed(txA) || !child.Processed(txB) {
			t.Fatalf("\t%s\tShould forget only the transactions before the cutoff.", failed)
		}
		t.Logf("\t%s\tShould forget old transactions when squashing.", success)
	}
}
