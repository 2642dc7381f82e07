// Package worker runs the slot pipeline of a node: the PoH clock, the slot
// clock deciding when to produce and when a leader missed, transaction
// processing, and sharing slots, votes and transactions with peers.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/state"
)

// peerUpdateInterval represents the interval of finding new peer nodes
// and catching up on slots this node is missing.
const peerUpdateInterval = time.Minute

// maxShareRequests represents the max number of pending network share
// requests of each kind that can be outstanding before share requests are
// dropped.
const maxShareRequests = 100

// =============================================================================

// Worker manages the slot workflows for the blockchain.
type Worker struct {
	state       *state.State
	wg          sync.WaitGroup
	ticker      *time.Ticker
	shut        chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	banking     chan bool
	slotEnd     chan uint64
	txSharing   chan database.SignedTx
	slotSharing chan database.Slot
	voteSharing chan database.SignedVote
	clock       Clock
	evHandler   state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, evHandler state.EventHandler) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	gen := st.RetrieveGenesis()

	w := Worker{
		state:       st,
		ticker:      time.NewTicker(peerUpdateInterval),
		shut:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		banking:     make(chan bool, 1),
		slotEnd:     make(chan uint64, 1),
		txSharing:   make(chan database.SignedTx, maxShareRequests),
		slotSharing: make(chan database.Slot, maxShareRequests),
		voteSharing: make(chan database.SignedVote, maxShareRequests),
		clock:       NewClock(gen.Date, gen.SlotDuration()),
		evHandler:   evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Update this node before starting any support G's.
	w.Sync()

	// Load the set of operations we need to run.
	operations := []func(){
		w.peerOperations,
		w.pohOperations,
		w.slotOperations,
		w.bankingOperations,
		w.shareOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for range g {
		<-hasStarted
	}

	return &w
}

// CurrentSlot returns the slot the wall clock is in.
func (w *Worker) CurrentSlot() uint64 {
	return w.clock.Slot(time.Now())
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.evHandler("worker: shutdown: cancel slot processing")
	w.cancel()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalBanking starts a transaction processing pass. If there is already a
// signal pending in the channel, just return since a pass will run.
func (w *Worker) SignalBanking() {
	select {
	case w.banking <- true:
	default:
	}
}

// SignalShareTx signals a share transaction operation. If maxShareRequests
// signals exist in the channel, we won't send these.
func (w *Worker) SignalShareTx(tx database.SignedTx) {
	select {
	case w.txSharing <- tx:
		w.evHandler("worker: SignalShareTx: share tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, transactions won't be shared.")
	}
}

// SignalShareSlot signals a closed slot should be sent to the peers.
func (w *Worker) SignalShareSlot(slot database.Slot) {
	select {
	case w.slotSharing <- slot:
		w.evHandler("worker: SignalShareSlot: share slot[%d] signaled", slot.Index)
	default:
		w.evHandler("worker: SignalShareSlot: queue full, slot[%d] won't be shared.", slot.Index)
	}
}

// SignalShareVote signals a vote should be sent to the peers.
func (w *Worker) SignalShareVote(vote database.SignedVote) {
	select {
	case w.voteSharing <- vote:
	default:
		w.evHandler("worker: SignalShareVote: queue full, vote for slot[%d] won't be shared.", vote.Slot)
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
