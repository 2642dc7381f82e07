package state

import (
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/pohchain/foundation/blockchain/leader"
	"github.com/ardanlabs/pohchain/foundation/blockchain/peer"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveAccount returns the account this node produces and votes with.
func (s *State) RetrieveAccount() database.AccountID {
	return s.account
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveGenesisHash returns the hash the chain starts from.
func (s *State) RetrieveGenesisHash() database.Hash {
	return s.genesisHash
}

// RetrieveRoot returns the latest finalized slot and its last hash.
func (s *State) RetrieveRoot() (uint64, database.Hash) {
	return s.tree.Root()
}

// RetrieveBestTip returns the slot at the tip of the heaviest fork.
func (s *State) RetrieveBestTip() uint64 {
	return s.tree.BestTip()
}

// RetrieveVotes returns the latest vote of every validator.
func (s *State) RetrieveVotes() []database.SignedVote {
	return s.tree.Votes()
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// AddKnownPeer provides the ability to add a new peer to
// the known peer list.
func (s *State) AddKnownPeer(pr peer.Peer) bool {
	if pr.Match(s.host) {
		return false
	}
	return s.knownPeers.Add(pr)
}

// RemoveKnownPeer provides the ability to remove a peer from
// the known peer list.
func (s *State) RemoveKnownPeer(pr peer.Peer) {
	s.knownPeers.Remove(pr)
}

// RetrieveStatus returns this node's view of the chain for peers.
func (s *State) RetrieveStatus(currentSlot uint64) peer.Status {
	root, hash := s.tree.Root()

	return peer.Status{
		Account:       string(s.account),
		RootSlot:      root,
		RootHash:      hash.String(),
		BestTip:       s.tree.BestTip(),
		CurrentSlot:   currentSlot,
		CurrentLeader: string(s.Leader(currentSlot)),
		Pending:       s.scheduler.Queue().Count(),
		KnownPeers:    s.RetrieveKnownPeers(),
	}
}

// =============================================================================

// Leader returns the validator assigned to produce the slot.
func (s *State) Leader(slot uint64) database.AccountID {
	return s.schedule(leader.EpochOf(slot, s.genesis.SlotsPerEpoch)).Leader(slot)
}

// LeaderSchedule returns the leader schedule of the epoch.
func (s *State) LeaderSchedule(epoch uint64) *leader.Schedule {
	return s.schedule(epoch)
}

// schedule returns the leader schedule of an epoch. The seed of epoch e is
// the last hash of the highest finalized slot before the start of epoch e-1,
// the genesis hash for the first two epochs. A schedule is kept once every
// slot before that boundary is decided, until then it is recomputed from the
// best known seed.
func (s *State) schedule(epoch uint64) *leader.Schedule {
	s.mu.RLock()
	sch, exists := s.schedules[epoch]
	s.mu.RUnlock()

	if exists {
		return sch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seed, final := s.seed(epoch)
	sch = leader.NewSchedule(s.validators, seed, epoch, s.genesis.SlotsPerEpoch)

	if final {
		s.schedules[epoch] = sch
	}

	return sch
}

// seed returns the schedule seed of an epoch and whether it can still
// change. The caller must hold a lock.
func (s *State) seed(epoch uint64) (database.Hash, bool) {
	if epoch < 2 {
		return s.genesisHash, true
	}

	boundary := leader.EpochStart(epoch-1, s.genesis.SlotsPerEpoch)

	best := finalizedSlot{hash: s.genesisHash}
	for _, fs := range s.epochLast {
		if fs.index < boundary && fs.index >= best.index {
			best = fs
		}
	}

	root, _ := s.tree.Root()
	return best.hash, root+1 >= boundary
}
