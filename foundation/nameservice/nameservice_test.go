package nameservice_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/nameservice"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Lookup(t *testing.T) {
	dir := t.TempDir()
	key := "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	if err := os.WriteFile(filepath.Join(dir, "pavel.ecdsa"), []byte(key), 0600); err != nil {
		t.Fatalf("Should be able to write the key file: %s", err)
	}

	ns, err := nameservice.New(dir)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the accounts: %s", failed, err)
	}

	pavel := database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	if ns.Lookup(pavel) != "pavel" {
		t.Fatalf("\t%s\tShould find the name for the account.", failed)
	}

	id, err := ns.Resolve("pavel")
	if err != nil || id != pavel {
		t.Fatalf("\t%s\tShould resolve the name to the account: %v", failed, err)
	}

	id, err = ns.Resolve("0xdd6b972ffcc631a62cae1bb9d80b7ff429c8eba4")
	if err != nil || id != pavel {
		t.Fatalf("\t%s\tShould resolve a raw account id: %v", failed, err)
	}
	t.Logf("\t%s\tShould map names and accounts both ways.", success)
}
