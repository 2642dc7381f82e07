package validator_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/validator"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Quorum(t *testing.T) {
	type table struct {
		name   string
		stakes []uint64
		quorum uint64
	}

	tt := []table{
		{"three", []uint64{1, 1, 1}, 3},
		{"four", []uint64{1, 1, 1, 1}, 3},
		{"hundred", []uint64{40, 30, 30}, 67},
		{"ninety", []uint64{30, 30, 30}, 61},
	}

	accounts := []string{
		"0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4",
		"0xF01813E4B85e178A83e29B8E7bF26BD830a25f32",
		"0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76",
		"0x6Fe6CF3c8fF57c58d24BfC869668F48BCbDb3BD9",
	}

	t.Log("Given the need to compute a strict two thirds quorum.")
	{
		for testID, tst := range tt {
			var vs []validator.Validator
			for i, stake := range tst.stakes {
				vs = append(vs, validator.Validator{Account: database.AccountID(accounts[i]), Stake: stake})
			}

			set, err := validator.NewSet(vs)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the set: %s", failed, testID, err)
			}

			if q := set.Quorum(2, 3); q != tst.quorum {
				t.Fatalf("\t%s\tTest %d:\tShould get quorum %d, got %d.", failed, testID, tst.quorum, q)
			}
			t.Logf("\t%s\tTest %d:\tShould get quorum %d for %s.", success, testID, tst.quorum, tst.name)
		}
	}
}

func Test_NewSet(t *testing.T) {
	a := database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	b := database.AccountID("0xdd6b972ffcc631a62cae1bb9d80b7ff429c8eba4")

	if _, err := validator.NewSet(nil); !errors.Is(err, validator.ErrEmptySet) {
		t.Fatalf("\t%s\tShould reject an empty set: %v", failed, err)
	}

	if _, err := validator.NewSet([]validator.Validator{{Account: a, Stake: 0}}); !errors.Is(err, validator.ErrInvalidStake) {
		t.Fatalf("\t%s\tShould reject a zero stake: %v", failed, err)
	}

	if _, err := validator.NewSet([]validator.Validator{{Account: a, Stake: 1}, {Account: b, Stake: 1}}); !errors.Is(err, validator.ErrDuplicateValidator) {
		t.Fatalf("\t%s\tShould reject the same account in another case: %v", failed, err)
	}

	set, _ := validator.NewSet([]validator.Validator{{Account: b, Stake: 5}})
	if !set.Contains(a) || set.Stake(a) != 5 || set.Total() != 5 {
		t.Fatalf("\t%s\tShould normalize validator accounts.", failed)
	}
	t.Logf("\t%s\tShould validate the set.", success)
}
