package leveldb_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/storage/leveldb"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

func Test_ReadWrite(t *testing.T) {
	t.Log("Given the need to store finalized slots in leveldb.")
	{
		d, err := leveldb.New(t.TempDir())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to open the database: %s", failed, err)
		}
		defer d.Close()

		slots := []database.Slot{newSlot(t, 3, 0), newSlot(t, 12, 3), newSlot(t, 7, 3)}
		for _, slot := range slots {
			if err := d.Write(slot); err != nil {
				t.Fatalf("\t%s\tShould be able to write slot %d: %s", failed, slot.Index, err)
			}
		}
		t.Logf("\t%s\tShould be able to write slots.", success)

		got, err := d.GetSlot(12)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to read slot 12: %s", failed, err)
		}
		if string(got.Encode()) != string(slots[1].Encode()) {
			t.Fatalf("\t%s\tShould read back the same slot.", failed)
		}
		t.Logf("\t%s\tShould read back the same slot.", success)

		if _, err := d.GetSlot(4); !errors.Is(err, database.ErrNotFound) {
			t.Fatalf("\t%s\tShould get ErrNotFound for a missing slot: %v", failed, err)
		}

		var order []uint64
		iter := d.ForEach()
		for slot, err := iter.Next(); !iter.Done(); slot, err = iter.Next() {
			if err != nil {
				t.Fatalf("\t%s\tShould iterate without error: %s", failed, err)
			}
			order = append(order, slot.Index)
		}
		if len(order) != 3 || order[0] != 3 || order[1] != 7 || order[2] != 12 {
			t.Fatalf("\t%s\tShould iterate in index order, got %v.", failed, order)
		}
		t.Logf("\t%s\tShould iterate in index order across gaps.", success)

		if err := d.Reset(); err != nil {
			t.Fatalf("\t%s\tShould be able to reset: %s", failed, err)
		}
		iter = d.ForEach()
		if _, err := iter.Next(); err == nil || !iter.Done() {
			t.Fatalf("\t%s\tShould have no slots after reset.", failed)
		}
		t.Logf("\t%s\tShould have no slots after reset.", success)
	}
}

func newSlot(t *testing.T, index uint64, parent uint64) database.Slot {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to load the private key: %s", err)
	}
	from := database.PublicKeyToAccountID(pk.PublicKey)
	to := database.AccountID("0x9f53D085604B42D6B513E98b916EB0749f40932f")

	tx, err := database.NewTx(database.HashData([]byte("recent")), nil, []database.AccountID{from, to}, database.Transfer(from, to, index))
	if err != nil {
		t.Fatalf("Should be able to build a transaction: %s", err)
	}
	signed, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("Should be able to sign the transaction: %s", err)
	}

	return database.Slot{
		Index:  index,
		Parent: parent,
		Leader: from,
		Entries: []database.Entry{
			{NumHashes: 5, Hash: database.HashData([]byte{byte(index)}), Transactions: []database.SignedTx{signed}},
			{NumHashes: 40, Hash: database.HashData([]byte{byte(index), 1})},
		},
	}
}

func Test_Reopen(t *testing.T) {
	dir := t.TempDir()

	db, err := leveldb.New(dir)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open the database: %s", failed, err)
	}
	if err := db.Write(newSlot(t, 9, 2)); err != nil {
		t.Fatalf("\t%s\tShould be able to write a slot: %s", failed, err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("\t%s\tShould be able to close the database: %s", failed, err)
	}

	db, err = leveldb.New(dir)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to reopen the database: %s", failed, err)
	}
	defer db.Close()

	ledger, err := database.New(db, nil)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the ledger: %s", failed, err)
	}
	if ledger.LatestSlot().Index != 9 || ledger.LatestSlot().TransactionCount() != 1 {
		t.Fatalf("\t%s\tShould recover the latest slot, got %d.", failed, ledger.LatestSlot().Index)
	}
	t.Logf("\t%s\tShould recover the ledger after a restart.", success)
}
