package state

import (
	"fmt"

	"github.com/ardanlabs/pohchain/foundation/blockchain/bank"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/signature"
	"github.com/patrickmn/go-cache"
)

// SubmitTransaction accepts a transaction from a wallet for inclusion. An
// accepted transaction is shared with the known peers.
func (s *State) SubmitTransaction(signedTx database.SignedTx) error {
	signedTx, err := s.acceptTransaction(signedTx)
	if err != nil {
		return err
	}

	s.Worker.SignalShareTx(signedTx)
	s.Worker.SignalBanking()

	return nil
}

// SubmitNodeTransaction accepts a transaction shared by a peer for inclusion.
func (s *State) SubmitNodeTransaction(signedTx database.SignedTx) error {
	if _, err := s.acceptTransaction(signedTx); err != nil {
		return err
	}

	s.Worker.SignalBanking()

	return nil
}

// RecentHash returns the hash new transactions should reference, the last
// hash of the slot at the tip of the heaviest fork.
func (s *State) RecentHash() database.Hash {
	hash, err := s.tree.Hash(s.tree.BestTip())
	if err != nil {
		_, hash = s.tree.Root()
	}
	return hash
}

// =============================================================================

// acceptTransaction validates the transaction and adds it to the queue.
func (s *State) acceptTransaction(signedTx database.SignedTx) (database.SignedTx, error) {
	if err := s.validateTransaction(signedTx); err != nil {
		s.metrics.TxSubmitted.WithLabelValues("rejected").Inc()
		return database.SignedTx{}, err
	}

	signedTx.Tx = signedTx.Tx.Normalize()

	if b := s.tipBank(); b != nil && b.Processed(signedTx.ID) {
		s.metrics.TxSubmitted.WithLabelValues("duplicate").Inc()
		return database.SignedTx{}, fmt.Errorf("%s: %w", signedTx.ID, ErrDuplicateID)
	}

	if err := s.seen.Add(signedTx.ID.String(), struct{}{}, cache.DefaultExpiration); err != nil {
		s.metrics.TxSubmitted.WithLabelValues("duplicate").Inc()
		return database.SignedTx{}, fmt.Errorf("%s: %w", signedTx.ID, ErrDuplicateID)
	}

	n, err := s.scheduler.Queue().Upsert(signedTx)
	if err != nil {
		s.metrics.TxSubmitted.WithLabelValues("duplicate").Inc()
		return database.SignedTx{}, fmt.Errorf("%s: %w", signedTx.ID, ErrDuplicateID)
	}

	s.metrics.TxSubmitted.WithLabelValues("accepted").Inc()
	s.metrics.MempoolSize.Set(float64(n))
	s.evHandler("state: acceptTransaction: tx[%s] pending[%d]", signedTx.ID, n)

	return signedTx, nil
}

// validateTransaction takes the signed transaction and validates it has
// a proper signature, a well formed footprint and a recent hash reference.
func (s *State) validateTransaction(signedTx database.SignedTx) error {
	if err := signedTx.Tx.Validate(); err != nil {
		return err
	}

	if err := signature.VerifySignature(signedTx.V, signedTx.R, signedTx.S); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	if _, err := signedTx.FromAccount(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	if !s.isRecent(signedTx.RecentHash) {
		return fmt.Errorf("%s: %w", signedTx.RecentHash, ErrStaleReference)
	}

	return nil
}

// isRecent reports whether the hash belongs to a slot within the recent
// window of the highest slot this node has seen.
func (s *State) isRecent(hash database.Hash) bool {
	v, found := s.recent.Get(hash.String())
	if !found {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.highest <= v.(uint64)+s.genesis.MaxRecentAge
}

// processedFloor returns the first slot whose executed transaction ids are
// kept when the bank of the specified slot is squashed. Anything older
// references a hash outside the recent window.
func (s *State) processedFloor(slot uint64) uint64 {
	if slot <= s.genesis.MaxRecentAge {
		return 0
	}
	return slot - s.genesis.MaxRecentAge
}

// tipBank returns the bank of the highest closed slot on the heaviest fork.
func (s *State) tipBank() *bank.Bank {
	chain, err := s.tree.Chain(s.tree.BestTip())
	if err != nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(chain) - 1; i >= 0; i-- {
		if b := s.banks[chain[i]]; b != nil {
			return b
		}
	}

	return nil
}
