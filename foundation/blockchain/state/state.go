// Package state is the core API for the blockchain and implements all the
// business rules and processing. A node produces the slots its account leads
// and replays and votes on the slots led by everyone else.
package state

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ardanlabs/pohchain/foundation/blockchain/bank"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/executor"
	"github.com/ardanlabs/pohchain/foundation/blockchain/forktree"
	"github.com/ardanlabs/pohchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/pohchain/foundation/blockchain/leader"
	"github.com/ardanlabs/pohchain/foundation/blockchain/locks"
	"github.com/ardanlabs/pohchain/foundation/blockchain/metrics"
	"github.com/ardanlabs/pohchain/foundation/blockchain/peer"
	"github.com/ardanlabs/pohchain/foundation/blockchain/poh"
	"github.com/ardanlabs/pohchain/foundation/blockchain/scheduler"
	"github.com/ardanlabs/pohchain/foundation/blockchain/validator"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Set of errors returned by the state.
var (
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrStaleReference     = errors.New("stale recent hash reference")
	ErrDuplicateID        = errors.New("duplicate transaction id")
	ErrInvalidTransaction = database.ErrInvalidTransaction
	ErrNotLeader          = errors.New("account is not the slot leader")
	ErrWrongLeader        = errors.New("slot produced by the wrong leader")
	ErrNotProducing       = errors.New("slot is not in production")
	ErrSlotMissed         = errors.New("slot missed")
	ErrNotFrozen          = errors.New("slot state is not frozen")
	ErrUnavailable        = errors.New("slot state no longer available")
)

// maxPendingVotes caps the votes held for slots that haven't arrived yet.
const maxPendingVotes = 1024

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of slots.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for running the slot pipeline and sharing slots,
// votes and transactions with peers.
type Worker interface {
	Shutdown()
	SignalBanking()
	SignalShareTx(tx database.SignedTx)
	SignalShareSlot(slot database.Slot)
	SignalShareVote(vote database.SignedVote)
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	PrivateKey *ecdsa.PrivateKey
	Host       string
	Genesis    genesis.Genesis
	Storage    database.Serializer
	KnownPeers *peer.PeerSet
	Workers    int
	Registry   prometheus.Registerer
	EvHandler  EventHandler

	// UpdateHandler receives every slot status change.
	UpdateHandler func(forktree.Update)
}

// production is the slot this node is currently building.
type production struct {
	slot    uint64
	parent  uint64
	bank    *bank.Bank
	entries []database.Entry
}

// transactions returns every transaction recorded so far.
func (p *production) transactions() []database.SignedTx {
	var txs []database.SignedTx
	for _, e := range p.entries {
		txs = append(txs, e.Transactions...)
	}
	return txs
}

// finalizedSlot is the last finalized slot seen in an epoch.
type finalizedSlot struct {
	index uint64
	hash  database.Hash
}

// State manages the blockchain database.
type State struct {
	account    database.AccountID
	privateKey *ecdsa.PrivateKey
	host       string
	evHandler  EventHandler
	onUpdate   func(forktree.Update)

	genesis     genesis.Genesis
	genesisHash database.Hash
	validators  *validator.Set
	knownPeers  *peer.PeerSet
	metrics     *metrics.Metrics

	db        *database.Database
	tree      *forktree.Tree
	recorder  *poh.Recorder
	scheduler *scheduler.Scheduler
	executor  *executor.Executor

	seen    *cache.Cache // Transaction ids accepted recently.
	recent  *cache.Cache // Slot hashes transactions may reference.
	results *cache.Cache // Execution results by transaction id.

	prodMu  sync.Mutex
	current *production

	mu        sync.RWMutex
	banks     map[uint64]*bank.Bank
	slots     map[uint64]database.Slot
	pending   map[uint64][]database.SignedVote
	highest   uint64
	lastVote  uint64
	epochLast map[uint64]finalizedSlot
	schedules map[uint64]*leader.Schedule

	Worker Worker
}

// New constructs a new blockchain for data management. Slots already in the
// ledger are verified and replayed to rebuild the finalized state.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.PrivateKey == nil {
		return nil, errors.New("private key required")
	}

	gen := cfg.Genesis.WithDefaults()
	if err := gen.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	validators, err := gen.ValidatorSet()
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	db, err := database.New(cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet(0)
	}

	// The caches expire entries on the horizon of the recent hash window.
	window := gen.SlotDuration() * time.Duration(gen.MaxRecentAge)

	genesisHash := gen.Hash()

	s := State{
		account:    database.PublicKeyToAccountID(cfg.PrivateKey.PublicKey),
		privateKey: cfg.PrivateKey,
		host:       cfg.Host,
		evHandler:  ev,
		onUpdate:   cfg.UpdateHandler,

		genesis:     gen,
		genesisHash: genesisHash,
		validators:  validators,
		knownPeers:  knownPeers,
		metrics:     metrics.New(cfg.Registry),

		db:        db,
		recorder:  poh.NewRecorder(genesisHash),
		scheduler: scheduler.New(scheduler.NewQueue(), locks.New()),
		executor:  executor.New(workers),

		seen:    cache.New(window, window),
		recent:  cache.New(window, window),
		results: cache.New(window, window),

		banks:     map[uint64]*bank.Bank{0: bank.Genesis(gen.AccountBalances())},
		slots:     make(map[uint64]database.Slot),
		pending:   make(map[uint64][]database.SignedVote),
		epochLast: map[uint64]finalizedSlot{0: {index: 0, hash: genesisHash}},
		schedules: make(map[uint64]*leader.Schedule),

		Worker: idle{},
	}

	s.recent.SetDefault(genesisHash.String(), uint64(0))

	if err := s.loadLedger(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	// The Worker is set to a no-op here. The call to worker.Run will assign
	// itself and start everything up and running for the node.

	return &s, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all slot processing activity.
	s.Worker.Shutdown()

	// Make sure the ledger is properly closed.
	return s.db.Close()
}

// =============================================================================

// loadLedger replays the finalized slots from the ledger on top of the genesis
// bank and roots the fork tree at the last one.
func (s *State) loadLedger(ctx context.Context) error {
	parent := s.banks[0]
	hash := s.genesisHash
	var last uint64

	iter := s.db.ForEach()
	for slot, err := iter.Next(); !iter.Done(); slot, err = iter.Next() {
		if err != nil {
			return fmt.Errorf("reading ledger: %w", err)
		}

		if slot.Parent != last {
			return fmt.Errorf("ledger slot %d has parent %d, expected %d", slot.Index, slot.Parent, last)
		}

		if err := s.verifySlot(ctx, hash, slot); err != nil {
			return fmt.Errorf("ledger slot %d: %w", slot.Index, err)
		}

		b, err := bank.NewFromParent(parent, slot.Index)
		if err != nil {
			return err
		}

		results, err := s.replayEntries(ctx, b, slot)
		if err != nil {
			return fmt.Errorf("ledger slot %d: %w", slot.Index, err)
		}
		s.storeResults(results)

		b.Freeze()
		if err := b.Squash(s.processedFloor(slot.Index)); err != nil {
			return err
		}

		parent = b
		hash = slot.LastHash()
		last = slot.Index

		s.recordFinalized(slot.Index, hash)
		s.recent.SetDefault(hash.String(), slot.Index)
	}

	tree, err := forktree.New(forktree.Config{
		Validators:       s.validators,
		FinalityDepth:    s.genesis.FinalityDepth,
		SupermajorityNum: s.genesis.SupermajorityNum,
		SupermajorityDen: s.genesis.SupermajorityDen,
	}, last, hash)
	if err != nil {
		return err
	}

	s.tree = tree
	s.banks = map[uint64]*bank.Bank{last: parent}
	s.highest = last
	s.recorder.Reset(hash)

	s.evHandler("state: loadLedger: root[%d] hash[%s] quorum[%d]", last, hash, tree.Quorum())

	return nil
}

// recordFinalized remembers the slot as the latest finalized slot of its
// epoch for seeding later leader schedules. The caller must hold the write
// lock or own the state exclusively.
func (s *State) recordFinalized(index uint64, hash database.Hash) {
	epoch := leader.EpochOf(index, s.genesis.SlotsPerEpoch)
	if cur, exists := s.epochLast[epoch]; !exists || index >= cur.index {
		s.epochLast[epoch] = finalizedSlot{index: index, hash: hash}
	}
}

// =============================================================================

// idle is the worker in place until worker.Run registers a real one.
type idle struct{}

func (idle) Shutdown() {}
func (idle) SignalBanking() {}
func (idle) SignalShareTx(database.SignedTx) {}
func (idle) SignalShareSlot(database.Slot) {}
func (idle) SignalShareVote(database.SignedVote) {}
