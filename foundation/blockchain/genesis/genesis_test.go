package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const doc = `{
	"chain_id": 7,
	"finality_depth": 4,
	"balances": {"0xdd6b972ffcc631a62cae1bb9d80b7ff429c8eba4": 50},
	"validators": [{"account": "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", "stake": 10}]
}`

func Test_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatalf("Should be able to write the genesis file: %s", err)
	}

	t.Log("Given the need to load the genesis file.")
	{
		g, err := genesis.Load(path)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the file: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to load the file.", success)

		if g.FinalityDepth != 4 || g.SupermajorityNum != 2 || g.SupermajorityDen != 3 || g.TicksPerSlot != genesis.DefaultTicksPerSlot {
			t.Fatalf("\t%s\tShould keep set values and default the rest: %+v", failed, g)
		}
		t.Logf("\t%s\tShould keep set values and default the rest.", success)

		balances := g.AccountBalances()
		if balances[database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")] != 50 {
			t.Fatalf("\t%s\tShould normalize balance accounts: %v", failed, balances)
		}

		set, err := g.ValidatorSet()
		if err != nil || set.Total() != 10 {
			t.Fatalf("\t%s\tShould build the validator set: %v", failed, err)
		}
		t.Logf("\t%s\tShould build balances and validators.", success)

		again, _ := genesis.Load(path)
		if g.Hash() != again.Hash() {
			t.Fatalf("\t%s\tShould hash the same file the same way.", failed)
		}
		t.Logf("\t%s\tShould hash the same file the same way.", success)
	}
}
