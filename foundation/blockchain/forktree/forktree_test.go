package forktree_test

import (
	"crypto/ecdsa"
	"errors"
	"math/rand"
	"testing"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/forktree"
	"github.com/ardanlabs/pohchain/foundation/blockchain/validator"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

type voter struct {
	pk *ecdsa.PrivateKey
	id database.AccountID
}

func voters(t *testing.T, n int) ([]voter, *validator.Set) {
	t.Helper()

	var out []voter
	var vs []validator.Validator
	for range n {
		pk, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("Should be able to generate a key: %s", err)
		}
		id := database.PublicKeyToAccountID(pk.PublicKey)
		out = append(out, voter{pk: pk, id: id})
		vs = append(vs, validator.Validator{Account: id, Stake: 1})
	}

	set, err := validator.NewSet(vs)
	if err != nil {
		t.Fatalf("Should be able to build the validator set: %s", err)
	}

	return out, set
}

func newTree(t *testing.T, set *validator.Set, depth uint64) *forktree.Tree {
	t.Helper()

	tree, err := forktree.New(forktree.Config{
		Validators:       set,
		FinalityDepth:    depth,
		SupermajorityNum: 2,
		SupermajorityDen: 3,
	}, 0, hashOf(0))
	if err != nil {
		t.Fatalf("Should be able to construct the tree: %s", err)
	}

	return tree
}

func hashOf(slot uint64) database.Hash {
	return database.HashData([]byte{byte(slot), byte(slot >> 8)})
}

func vote(t *testing.T, v voter, slot uint64) database.SignedVote {
	t.Helper()

	sv, err := database.NewVote(v.id, slot, hashOf(slot), 0).Sign(v.pk)
	if err != nil {
		t.Fatalf("Should be able to sign a vote: %s", err)
	}
	return sv
}

func add(t *testing.T, tree *forktree.Tree, slot uint64, parent uint64) {
	t.Helper()

	if _, err := tree.Insert(slot, parent); err != nil {
		t.Fatalf("Should be able to insert slot %d: %s", slot, err)
	}
	if _, err := tree.Close(slot, hashOf(slot)); err != nil {
		t.Fatalf("Should be able to close slot %d: %s", slot, err)
	}
}

func has(updates []forktree.Update, slot uint64, status forktree.Status) bool {
	for _, u := range updates {
		if u.Slot == slot && u.Status == status {
			return true
		}
	}
	return false
}

// =============================================================================

func Test_Progression(t *testing.T) {
	vs, set := voters(t, 4)
	tree := newTree(t, set, 2)

	t.Log("Given the need to confirm and finalize a chain of slots.")
	{
		add(t, tree, 1, 0)
		add(t, tree, 2, 1)
		add(t, tree, 3, 2)

		for _, v := range vs[:2] {
			updates, err := tree.AddVote(vote(t, v, 3))
			if err != nil || len(updates) != 0 {
				t.Fatalf("\t%s\tShould not confirm below quorum: %v %v", failed, updates, err)
			}
		}
		t.Logf("\t%s\tShould not confirm below quorum.", success)

		updates, err := tree.AddVote(vote(t, vs[2], 3))
		if err != nil {
			t.Fatalf("\t%s\tShould accept the vote: %s", failed, err)
		}

		for _, slot := range []uint64{1, 2, 3} {
			if !has(updates, slot, forktree.Confirmed) {
				t.Fatalf("\t%s\tShould confirm slot %d and its ancestors: %v", failed, slot, updates)
			}
		}
		t.Logf("\t%s\tShould confirm the slot and its ancestors.", success)

		if !has(updates, 1, forktree.Finalized) || has(updates, 2, forktree.Finalized) {
			t.Fatalf("\t%s\tShould finalize the slot with two confirmed descendants: %v", failed, updates)
		}

		if root, _ := tree.Root(); root != 1 {
			t.Fatalf("\t%s\tShould move the root to slot 1, got %d.", failed, root)
		}
		t.Logf("\t%s\tShould finalize the slot with two confirmed descendants.", success)

		if _, err := tree.AddVote(vote(t, vs[3], 0)); !errors.Is(err, forktree.ErrStaleVote) {
			t.Fatalf("\t%s\tShould reject votes below the root: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject votes below the root.", success)
	}
}

func Test_ForkChoice(t *testing.T) {
	vs, set := voters(t, 4)
	tree := newTree(t, set, 32)

	add(t, tree, 1, 0)
	add(t, tree, 2, 0)
	tree.Insert(3, 0)

	t.Log("Given the need to choose between competing forks.")
	{
		if tip := tree.BestTip(); tip != 1 {
			t.Fatalf("\t%s\tShould break ties by earliest creation, got %d.", failed, tip)
		}
		t.Logf("\t%s\tShould break ties by earliest creation.", success)

		tree.AddVote(vote(t, vs[0], 2))
		if tip := tree.BestTip(); tip != 2 {
			t.Fatalf("\t%s\tShould follow the heavier fork, got %d.", failed, tip)
		}

		add(t, tree, 4, 1)
		tree.AddVote(vote(t, vs[1], 4))
		tree.AddVote(vote(t, vs[2], 1))
		if tip := tree.BestTip(); tip != 4 || tree.Weight(1) != 2 {
			t.Fatalf("\t%s\tShould count votes for descendants, got tip %d weight %d.", failed, tip, tree.Weight(1))
		}
		t.Logf("\t%s\tShould follow the heaviest subtree.", success)

		tree.AddVote(vote(t, vs[0], 4))
		if tree.Weight(2) != 0 || tree.Weight(4) != 2 {
			t.Fatalf("\t%s\tShould only count the latest vote of a validator.", failed)
		}
		t.Logf("\t%s\tShould only count the latest vote of a validator.", success)
	}
}

func Test_VoteRules(t *testing.T) {
	vs, set := voters(t, 4)
	outsiders, _ := voters(t, 1)
	tree := newTree(t, set, 32)

	add(t, tree, 1, 0)
	add(t, tree, 2, 1)
	add(t, tree, 5, 0)
	tree.Insert(3, 2)
	tree.MarkDead(5)

	forged := vote(t, vs[1], 1)
	forged.Voter = vs[0].id

	wrongHash, _ := database.NewVote(vs[0].id, 1, hashOf(9), 0).Sign(vs[0].pk)

	type table struct {
		name string
		vote database.SignedVote
		err  error
	}

	tt := []table{
		{"unknownvoter", vote(t, outsiders[0], 1), forktree.ErrUnknownVoter},
		{"forged", forged, forktree.ErrInvalidVoteSignature},
		{"building", vote(t, vs[0], 3), forktree.ErrSlotNotClosed},
		{"dead", vote(t, vs[0], 5), forktree.ErrSlotDead},
		{"unknownslot", vote(t, vs[0], 7), forktree.ErrUnknownSlot},
		{"wronghash", wrongHash, forktree.ErrVoteHashMismatch},
	}

	t.Log("Given the need to reject invalid votes.")
	{
		for testID, tst := range tt {
			if _, err := tree.AddVote(tst.vote); !errors.Is(err, tst.err) {
				t.Fatalf("\t%s\tTest %d:\tShould reject %s with %v, got %v", failed, testID, tst.name, tst.err, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject %s.", success, testID, tst.name)
		}

		if _, err := tree.AddVote(vote(t, vs[0], 2)); err != nil {
			t.Fatalf("\t%s\tShould accept a valid vote: %s", failed, err)
		}
		if updates, err := tree.AddVote(vote(t, vs[0], 2)); err != nil || updates != nil {
			t.Fatalf("\t%s\tShould ignore a duplicate vote: %v", failed, err)
		}
		if _, err := tree.AddVote(vote(t, vs[0], 1)); !errors.Is(err, forktree.ErrStaleVote) {
			t.Fatalf("\t%s\tShould reject a vote older than the current one: %v", failed, err)
		}
		t.Logf("\t%s\tShould keep only the latest vote of a validator.", success)
	}
}

func Test_Pruning(t *testing.T) {
	vs, set := voters(t, 3)
	tree := newTree(t, set, 1)

	add(t, tree, 1, 0)
	add(t, tree, 2, 0)
	add(t, tree, 3, 2)
	add(t, tree, 4, 1)

	var updates []forktree.Update
	for _, v := range vs {
		u, err := tree.AddVote(vote(t, v, 4))
		if err != nil {
			t.Fatalf("\t%s\tShould accept the vote: %s", failed, err)
		}
		updates = append(updates, u...)
	}

	t.Log("Given the need to prune forks that lost finality.")
	{
		if !has(updates, 1, forktree.Finalized) || !has(updates, 2, forktree.Dead) || !has(updates, 3, forktree.Dead) {
			t.Fatalf("\t%s\tShould finalize slot 1 and kill the other fork: %v", failed, updates)
		}
		t.Logf("\t%s\tShould finalize slot 1 and kill the other fork.", success)

		if _, err := tree.Status(2); !errors.Is(err, forktree.ErrUnknownSlot) {
			t.Fatalf("\t%s\tShould drop the pruned slots: %v", failed, err)
		}
		if _, err := tree.Insert(6, 3); !errors.Is(err, forktree.ErrUnknownSlot) {
			t.Fatalf("\t%s\tShould not build on a pruned slot: %v", failed, err)
		}
		if slots := tree.Slots(); len(slots) != 2 || slots[0] != 1 || slots[1] != 4 {
			t.Fatalf("\t%s\tShould keep only the root and its descendants: %v", failed, slots)
		}
		t.Logf("\t%s\tShould drop the pruned slots.", success)

		if _, err := tree.MarkDead(1); !errors.Is(err, forktree.ErrFinalized) {
			t.Fatalf("\t%s\tShould never kill a finalized slot: %v", failed, err)
		}
		t.Logf("\t%s\tShould never kill a finalized slot.", success)
	}
}

func Test_FinalityMonotonic(t *testing.T) {
	vs, set := voters(t, 4)

	for seed := range int64(20) {
		r := rand.New(rand.NewSource(seed))
		tree := newTree(t, set, 2)

		parents := map[uint64]uint64{}
		descends := func(slot, of uint64) bool {
			for s := slot; ; {
				if s == of {
					return true
				}
				p, ok := parents[s]
				if !ok {
					return false
				}
				s = p
			}
		}

		var finalized uint64
		next := uint64(1)

		check := func(updates []forktree.Update) {
			for _, u := range updates {
				switch u.Status {
				case forktree.Finalized:
					if !descends(u.Slot, finalized) {
						t.Fatalf("\t%s\tSeed %d:\tShould only finalize descendants of slot %d, got %d.", failed, seed, finalized, u.Slot)
					}
				case forktree.Confirmed:
					if !descends(u.Slot, finalized) {
						t.Fatalf("\t%s\tSeed %d:\tShould never confirm slot %d conflicting with finalized %d.", failed, seed, u.Slot, finalized)
					}
				}
			}

			for _, u := range updates {
				if u.Status == forktree.Finalized && u.Slot > finalized {
					finalized = u.Slot
				}
			}

			if !descends(tree.BestTip(), finalized) {
				t.Fatalf("\t%s\tSeed %d:\tShould always build on the finalized chain.", failed, seed)
			}
		}

		for range 300 {
			switch op := r.Intn(10); {
			case op < 4:
				slots := tree.Slots()
				parent := slots[r.Intn(len(slots))]
				if _, err := tree.Insert(next, parent); err != nil {
					continue
				}
				parents[next] = parent
				if r.Intn(5) > 0 {
					tree.Close(next, hashOf(next))
				}
				next++

			case op < 9:
				slots := tree.Slots()
				slot := slots[r.Intn(len(slots))]
				updates, _ := tree.AddVote(vote(t, vs[r.Intn(len(vs))], slot))
				check(updates)

			default:
				slots := tree.Slots()
				updates, _ := tree.MarkDead(slots[r.Intn(len(slots))])
				check(updates)
			}
		}
	}
	t.Logf("\t%s\tShould never revert or contradict finality.", success)
}
