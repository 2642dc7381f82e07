package commands

import (
	"fmt"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
)

// Slots prints every finalized slot in the ledger.
func Slots(storage database.Serializer) error {
	iter := storage.ForEach()
	for slot, err := iter.Next(); !iter.Done(); slot, err = iter.Next() {
		if err != nil {
			return err
		}

		fmt.Printf("Slot: %d  Parent: %d  Leader: %s  Entries: %d  Txs: %d  Hash: %s\n",
			slot.Index, slot.Parent, slot.Leader, len(slot.Entries), slot.TransactionCount(), slot.LastHash())
	}

	return nil
}
