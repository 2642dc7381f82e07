package commands

import (
	"fmt"
	"sort"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/pohchain/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Balances verifies and replays the ledger from genesis and prints the
// balances of the finalized state.
func Balances(account string, log *zap.SugaredLogger, gen genesis.Genesis, storage database.Serializer) error {

	// The state needs a signing key even though nothing is produced.
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return err
	}

	st, err := state.New(state.Config{
		PrivateKey: privateKey,
		Genesis:    gen,
		Storage:    storage,
		Registry:   prometheus.NewRegistry(),
		EvHandler: func(v string, args ...any) {
			log.Debugf(v, args...)
		},
	})
	if err != nil {
		return err
	}

	root, hash := st.RetrieveRoot()
	fmt.Printf("Finalized Slot: %d  Hash: %s\n\n", root, hash)

	var ids []database.AccountID
	switch account {
	case "":
		for id := range gen.AccountBalances() {
			ids = append(ids, id)
		}
		ids = append(ids, ledgerWrites(storage)...)
	default:
		id, err := database.ToAccountID(account)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	seen := make(map[database.AccountID]bool)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		acct, err := st.QueryAccount(id, state.QueryLatestFinalized)
		if err != nil {
			continue
		}
		fmt.Printf("Account: %s  Balance: %d  Version: %d\n", id, acct.Balance, acct.Version)
	}

	return nil
}

// ledgerWrites returns every account written by a finalized transaction.
func ledgerWrites(storage database.Serializer) []database.AccountID {
	var ids []database.AccountID

	iter := storage.ForEach()
	for slot, err := iter.Next(); !iter.Done(); slot, err = iter.Next() {
		if err != nil {
			break
		}
		for _, tx := range slot.Transactions() {
			ids = append(ids, tx.Writes...)
		}
	}

	return ids
}
