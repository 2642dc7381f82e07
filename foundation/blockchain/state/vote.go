package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/forktree"
	"github.com/ardanlabs/pohchain/foundation/blockchain/leader"
)

// AddVote records a validator's vote. A vote for a slot this node hasn't
// replayed yet is held until the slot arrives.
func (s *State) AddVote(vote database.SignedVote) error {
	updates, err := s.tree.AddVote(vote)
	if err != nil {
		if !errors.Is(err, forktree.ErrUnknownSlot) {
			return err
		}

		if root, _ := s.tree.Root(); vote.Slot <= root {
			return fmt.Errorf("slot %d: %w", vote.Slot, forktree.ErrStaleVote)
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		var held int
		for _, votes := range s.pending {
			held += len(votes)
		}
		if held >= maxPendingVotes {
			return fmt.Errorf("too many pending votes: %w", err)
		}

		s.pending[vote.Slot] = append(s.pending[vote.Slot], vote)
		return nil
	}

	if len(updates) > 0 {
		s.evHandler("state: AddVote: voter[%s] slot[%d] weight[%d] quorum[%d]", vote.Voter, vote.Slot, s.tree.Weight(vote.Slot), s.tree.Quorum())
	}
	s.applyUpdates(updates)

	return nil
}

// =============================================================================

// vote signs and records this node's vote for a slot it produced or replayed
// and shares it. A node only votes for the tip of the heaviest fork and never
// for a slot older than its last vote.
func (s *State) vote(slot uint64, hash database.Hash) {
	if !s.validators.Contains(s.account) || s.tree.BestTip() != slot {
		return
	}

	s.mu.Lock()
	if slot <= s.lastVote {
		s.mu.Unlock()
		return
	}
	s.lastVote = slot
	s.mu.Unlock()

	v, err := database.NewVote(s.account, slot, hash, uint64(time.Now().UTC().UnixMilli())).Sign(s.privateKey)
	if err != nil {
		s.evHandler("state: vote: slot[%d]: ERROR: %s", slot, err)
		return
	}

	updates, err := s.tree.AddVote(v)
	if err != nil {
		s.evHandler("state: vote: slot[%d]: ERROR: %s", slot, err)
		return
	}
	s.applyUpdates(updates)

	s.Worker.SignalShareVote(v)
}

// applyUpdates reacts to slot status changes. Dead slots release their state
// and finalized slots are written to the ledger.
func (s *State) applyUpdates(updates []forktree.Update) {
	var finalized []uint64

	for _, u := range updates {
		s.metrics.SlotStatus.WithLabelValues(u.Status.String()).Inc()
		s.evHandler("state: slot: %d: %s", u.Slot, u.Status)
		if s.onUpdate != nil {
			s.onUpdate(u)
		}

		switch u.Status {
		case forktree.Finalized:
			finalized = append(finalized, u.Slot)
		case forktree.Dead:
			s.dropSlot(u.Slot)
		}
	}

	if len(finalized) > 0 {
		s.finalize(finalized)
	}
}

// dropSlot releases a dead slot. Its transactions go back to the queue unless
// they executed on another fork.
func (s *State) dropSlot(index uint64) {
	s.mu.Lock()
	slot, exists := s.slots[index]
	delete(s.slots, index)
	delete(s.banks, index)
	s.mu.Unlock()

	if !exists {
		return
	}

	s.recent.Delete(slot.LastHash().String())
	s.carryForward(index, slot.Transactions())
}

// finalize writes the finalized slots to the ledger in order, squashes the
// new root's bank so its ancestors can be reclaimed and drops the state of
// every slot the tree no longer holds.
func (s *State) finalize(indexes []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, index := range indexes {
		slot, exists := s.slots[index]
		if !exists {
			s.evHandler("state: finalize: slot[%d]: ERROR: slot not held", index)
			continue
		}

		if err := s.db.Write(slot); err != nil {
			s.evHandler("state: finalize: slot[%d]: ERROR: %s", index, err)
		}

		s.recordFinalized(index, slot.LastHash())
		delete(s.slots, index)

		s.metrics.FinalizedSlot.Set(float64(index))
	}

	root, _ := s.tree.Root()
	if b := s.banks[root]; b != nil {
		if err := b.Squash(s.processedFloor(root)); err != nil {
			s.evHandler("state: finalize: slot[%d]: ERROR: %s", root, err)
		}
	}

	live := make(map[uint64]bool)
	for _, slot := range s.tree.Slots() {
		live[slot] = true
	}

	for index := range s.banks {
		if !live[index] {
			delete(s.banks, index)
		}
	}

	for index := range s.slots {
		if !live[index] {
			delete(s.slots, index)
		}
	}

	for index := range s.pending {
		if index <= root {
			delete(s.pending, index)
		}
	}

	epoch := leader.EpochOf(root, s.genesis.SlotsPerEpoch)
	for e := range s.schedules {
		if e+1 < epoch {
			delete(s.schedules, e)
		}
	}

	s.evHandler("state: finalize: root[%d] banks[%d] slots[%d]", root, len(s.banks), len(s.slots))
}
