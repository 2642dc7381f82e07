package commands

import (
	"fmt"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
)

// Transactions prints the finalized transactions, only those writing or
// reading the account when one is specified.
func Transactions(account string, storage database.Serializer) error {
	var filter database.AccountID
	if account != "" {
		id, err := database.ToAccountID(account)
		if err != nil {
			return err
		}
		filter = id
	}

	iter := storage.ForEach()
	for slot, err := iter.Next(); !iter.Done(); slot, err = iter.Next() {
		if err != nil {
			return err
		}

		for _, tx := range slot.Transactions() {
			if filter != "" && !touches(tx.Tx, filter) {
				continue
			}

			from, _ := tx.FromAccount()
			fmt.Printf("Slot: %d  ID: %s  From: %s  Instructions: %d\n", slot.Index, tx.ID, from, len(tx.Instructions))
			for _, ins := range tx.Instructions {
				fmt.Printf("    %s  From: %s  To: %s  Amount: %d  Data: %x\n", ins.Op, ins.From, ins.To, ins.Amount, ins.Data)
			}
		}
	}

	return nil
}

func touches(tx database.Tx, id database.AccountID) bool {
	for _, w := range tx.Writes {
		if w == id {
			return true
		}
	}
	for _, r := range tx.Reads {
		if r == id {
			return true
		}
	}
	return false
}
