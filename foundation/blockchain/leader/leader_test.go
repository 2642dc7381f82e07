package leader_test

import (
	"testing"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/leader"
	"github.com/ardanlabs/pohchain/foundation/blockchain/validator"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var (
	heavy = database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	light = database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
)

func Test_Schedule(t *testing.T) {
	set, err := validator.NewSet([]validator.Validator{
		{Account: heavy, Stake: 90},
		{Account: light, Stake: 10},
	})
	if err != nil {
		t.Fatalf("Should be able to build the validator set: %s", err)
	}

	seed := database.HashData([]byte("genesis"))
	const slotsPerEpoch = 1000

	t.Log("Given the need to assign leaders to slots.")
	{
		a := leader.NewSchedule(set, seed, 0, slotsPerEpoch)
		b := leader.NewSchedule(set, seed, 0, slotsPerEpoch)

		counts := map[database.AccountID]int{}
		for slot := range uint64(slotsPerEpoch) {
			la := a.Leader(slot)
			if la != b.Leader(slot) {
				t.Fatalf("\t%s\tShould compute the same leader on every node for slot %d.", failed, slot)
			}
			counts[la]++
		}
		t.Logf("\t%s\tShould compute the same leader on every node.", success)

		if counts[heavy] < 800 || counts[light] < 50 {
			t.Fatalf("\t%s\tShould weight the assignment by stake: %v", failed, counts)
		}
		t.Logf("\t%s\tShould weight the assignment by stake: %v", success, counts)

		other := leader.NewSchedule(set, database.HashData([]byte("other")), 0, slotsPerEpoch)
		var diff int
		for slot := range uint64(slotsPerEpoch) {
			if a.Leader(slot) != other.Leader(slot) {
				diff++
			}
		}
		if diff == 0 {
			t.Fatalf("\t%s\tShould change the assignment with the seed.", failed)
		}
		t.Logf("\t%s\tShould change the assignment with the seed.", success)

		if !a.Covers(999) || a.Covers(1000) || leader.EpochOf(1000, slotsPerEpoch) != 1 {
			t.Fatalf("\t%s\tShould map slots to epochs.", failed)
		}
		if len(a.Leaders()) != slotsPerEpoch {
			t.Fatalf("\t%s\tShould list a leader for every slot.", failed)
		}
		t.Logf("\t%s\tShould map slots to epochs.", success)
	}
}
