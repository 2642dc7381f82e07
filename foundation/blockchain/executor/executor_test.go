package executor_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"reflect"
	"testing"

	"github.com/ardanlabs/pohchain/foundation/blockchain/bank"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/executor"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type user struct {
	pk *ecdsa.PrivateKey
	id database.AccountID
}

func newUser(t *testing.T) user {
	t.Helper()

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	return user{pk: pk, id: database.PublicKeyToAccountID(pk.PublicKey)}
}

func sign(t *testing.T, signer user, writes []database.AccountID, ins ...database.Instruction) database.SignedTx {
	t.Helper()

	tx, err := database.NewTx(database.ZeroHash, nil, writes, ins...)
	if err != nil {
		t.Fatalf("Should be able to construct the transaction: %s", err)
	}

	signed, err := tx.Sign(signer.pk)
	if err != nil {
		t.Fatalf("Should be able to sign the transaction: %s", err)
	}

	return signed
}

func child(t *testing.T, balances map[database.AccountID]uint64) *bank.Bank {
	t.Helper()

	b, err := bank.NewFromParent(bank.Genesis(balances), 1)
	if err != nil {
		t.Fatalf("Should be able to create a child bank: %s", err)
	}
	return b
}

// =============================================================================

func Test_Apply(t *testing.T) {
	alice := newUser(t)
	bob := newUser(t)
	carol := newUser(t)

	type table struct {
		name    string
		tx      func() database.SignedTx
		err     error
		balance map[database.AccountID]uint64
	}

	tt := []table{
		{
			name: "transfer",
			tx: func() database.SignedTx {
				return sign(t, alice, []database.AccountID{alice.id, bob.id}, database.Transfer(alice.id, bob.id, 40))
			},
			balance: map[database.AccountID]uint64{alice.id: 60, bob.id: 40},
		},
		{
			name: "insufficient",
			tx: func() database.SignedTx {
				return sign(t, alice, []database.AccountID{alice.id, bob.id}, database.Transfer(alice.id, bob.id, 101))
			},
			err:     executor.ErrInsufficientFunds,
			balance: map[database.AccountID]uint64{alice.id: 100, bob.id: 0},
		},
		{
			name: "partial",
			tx: func() database.SignedTx {
				return sign(t, alice, []database.AccountID{alice.id, bob.id},
					database.Transfer(alice.id, bob.id, 60),
					database.Transfer(alice.id, bob.id, 60),
				)
			},
			err:     executor.ErrInsufficientFunds,
			balance: map[database.AccountID]uint64{alice.id: 100, bob.id: 0},
		},
		{
			name: "undeclared",
			tx: func() database.SignedTx {
				return sign(t, alice, []database.AccountID{alice.id}, database.Transfer(alice.id, bob.id, 10))
			},
			err:     executor.ErrUndeclaredAccount,
			balance: map[database.AccountID]uint64{alice.id: 100},
		},
		{
			name: "unauthorized",
			tx: func() database.SignedTx {
				return sign(t, carol, []database.AccountID{alice.id, bob.id, carol.id}, database.Transfer(alice.id, bob.id, 10))
			},
			err:     executor.ErrUnauthorized,
			balance: map[database.AccountID]uint64{alice.id: 100},
		},
		{
			name: "notwriter",
			tx: func() database.SignedTx {
				return sign(t, carol, []database.AccountID{alice.id, bob.id}, database.Transfer(alice.id, bob.id, 10))
			},
			err:     executor.ErrUnauthorized,
			balance: map[database.AccountID]uint64{alice.id: 100},
		},
		{
			name: "self",
			tx: func() database.SignedTx {
				return sign(t, alice, []database.AccountID{alice.id, bob.id}, database.Transfer(alice.id, alice.id, 10))
			},
			err:     executor.ErrInvalidInstruction,
			balance: map[database.AccountID]uint64{alice.id: 100},
		},
		{
			name: "tampered",
			tx: func() database.SignedTx {
				tx := sign(t, alice, []database.AccountID{alice.id, bob.id}, database.Transfer(alice.id, bob.id, 10))
				tx.Instructions[0].Amount = 99
				return tx
			},
			err:     executor.ErrUnauthorized,
			balance: map[database.AccountID]uint64{alice.id: 100},
		},
	}

	t.Log("Given the need to apply transactions to a bank.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				b := child(t, map[database.AccountID]uint64{alice.id: 100})

				result := executor.Apply(b, tst.tx())

				switch tst.err {
				case nil:
					if result.Status != executor.Applied {
						t.Fatalf("\t%s\tTest %d:\tShould apply the transaction: %v", failed, testID, result.Err)
					}
				default:
					if result.Status != executor.Failed || !errors.Is(result.Err, tst.err) {
						t.Fatalf("\t%s\tTest %d:\tShould fail with %v, got %v", failed, testID, tst.err, result.Err)
					}
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected outcome.", success, testID)

				for id, exp := range tst.balance {
					var got uint64
					if account, err := b.Account(id); err == nil {
						got = account.Balance
					}
					if got != exp {
						t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, got)
						t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, exp)
						t.Fatalf("\t%s\tTest %d:\tShould get the right balance for %s.", failed, testID, id)
					}
				}
				t.Logf("\t%s\tTest %d:\tShould leave the right balances.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Ownership(t *testing.T) {
	alice := newUser(t)
	bob := newUser(t)

	b := child(t, map[database.AccountID]uint64{alice.id: 10})

	assign := sign(t, alice, []database.AccountID{alice.id}, database.Assign(alice.id, bob.id))
	if r := executor.Apply(b, assign); r.Status != executor.Applied {
		t.Fatalf("\t%s\tShould be able to assign an owned account: %v", failed, r.Err)
	}

	set := sign(t, alice, []database.AccountID{alice.id}, database.SetData(alice.id, []byte("mine")))
	if r := executor.Apply(b, set); !errors.Is(r.Err, executor.ErrUnauthorized) {
		t.Fatalf("\t%s\tShould not modify an account after giving it away: %v", failed, r.Err)
	}

	set = sign(t, bob, []database.AccountID{alice.id, bob.id}, database.SetData(alice.id, []byte("bob")))
	if r := executor.Apply(b, set); r.Status != executor.Applied {
		t.Fatalf("\t%s\tShould let the new owner modify the account: %v", failed, r.Err)
	}

	account, _ := b.Account(alice.id)
	if string(account.Data) != "bob" || account.Owner != bob.id || account.Version != 2 {
		t.Fatalf("\t%s\tShould carry the data, owner and version: %+v", failed, account)
	}
	t.Logf("\t%s\tShould enforce account ownership.", success)
}

func Test_Determinism(t *testing.T) {
	alice := newUser(t)
	bob := newUser(t)

	tx := sign(t, alice, []database.AccountID{alice.id, bob.id},
		database.Transfer(alice.id, bob.id, 7),
		database.SetData(alice.id, []byte{1, 2, 3}),
	)

	balances := map[database.AccountID]uint64{alice.id: 50, bob.id: 5}
	b1 := child(t, balances)
	b2 := child(t, balances)

	r1 := executor.Apply(b1, tx)
	r2 := executor.Apply(b2, tx)

	if !reflect.DeepEqual(r1, r2) {
		t.Fatalf("\t%s\tShould produce identical results: %+v %+v", failed, r1, r2)
	}

	if b1.Hash() != b2.Hash() || !reflect.DeepEqual(b1.Accounts(), b2.Accounts()) {
		t.Fatalf("\t%s\tShould produce identical account state.", failed)
	}
	t.Logf("\t%s\tShould execute deterministically.", success)
}

func Test_GroupIsolation(t *testing.T) {
	users := make([]user, 6)
	balances := make(map[database.AccountID]uint64)
	for i := range users {
		users[i] = newUser(t)
		balances[users[i].id] = 10
	}

	// Three disjoint transfers, the middle one overdraws.
	txs := []database.SignedTx{
		sign(t, users[0], []database.AccountID{users[0].id, users[1].id}, database.Transfer(users[0].id, users[1].id, 5)),
		sign(t, users[2], []database.AccountID{users[2].id, users[3].id}, database.Transfer(users[2].id, users[3].id, 50)),
		sign(t, users[4], []database.AccountID{users[4].id, users[5].id}, database.Transfer(users[4].id, users[5].id, 10)),
	}

	b := child(t, balances)
	results, err := executor.New(3).Execute(context.Background(), b, txs)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to execute the group: %s", failed, err)
	}

	exp := []executor.Status{executor.Applied, executor.Failed, executor.Applied}
	for i, r := range results {
		if r.Status != exp[i] || r.TxID != txs[i].ID {
			t.Fatalf("\t%s\tShould return results in order with outcome %s for tx %d, got %s.", failed, exp[i], i, r.Status)
		}
	}

	for i, exp := range []uint64{5, 15, 10, 10, 0, 20} {
		account, _ := b.Account(users[i].id)
		if account.Balance != exp {
			t.Fatalf("\t%s\tShould get balance %d for user %d, got %d.", failed, exp, i, account.Balance)
		}
	}
	t.Logf("\t%s\tShould isolate a failing transaction from its group.", success)
}
