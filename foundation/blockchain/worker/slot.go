package worker

import (
	"errors"
	"time"

	"github.com/ardanlabs/pohchain/foundation/blockchain/forktree"
	"github.com/ardanlabs/pohchain/foundation/blockchain/state"
)

// missGrace is the number of slots a slot's entries have to arrive before
// the slot is declared missed.
const missGrace = 2

// pohOperations runs the PoH clock. Once the slot being produced has used
// its tick budget the slot operations are told to close it.
func (w *Worker) pohOperations() {
	w.evHandler("worker: pohOperations: G started")
	defer w.evHandler("worker: pohOperations: G completed")

	budget := w.state.RetrieveGenesis().TicksPerSlot

	w.state.RunPoH(w.ctx, func(ticks uint64) {
		if ticks < budget {
			return
		}

		select {
		case w.slotEnd <- ticks:
		default:
		}
	})
}

// slotOperations follows the slot clock. At every slot boundary it closes
// any slot still in production, declares missed slots and starts producing
// when this node leads the new slot.
func (w *Worker) slotOperations() {
	w.evHandler("worker: slotOperations: G started")
	defer w.evHandler("worker: slotOperations: G completed")

	current := w.clock.Slot(time.Now())
	checked := current

	timer := time.NewTimer(time.Until(w.clock.Start(current + 1)))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if w.isShutdown() {
				continue
			}

			current = w.clock.Slot(time.Now())
			w.runSlotOperation(current)

			if current > missGrace {
				checked = w.runMissedOperation(checked, current-missGrace)
			}

			timer.Reset(time.Until(w.clock.Start(current + 1)))

		case <-w.slotEnd:
			if !w.isShutdown() {
				w.runEndSlotOperation()
			}

		case <-w.shut:
			w.evHandler("worker: slotOperations: received shut signal")
			return
		}
	}
}

// runSlotOperation closes the previous production and starts the new slot
// when this node is its leader.
func (w *Worker) runSlotOperation(slot uint64) {
	w.runEndSlotOperation()

	leader := w.state.Leader(slot)
	if leader != w.state.RetrieveAccount() {
		w.evHandler("worker: runSlotOperation: slot[%d]: leader[%s]", slot, leader)
		return
	}

	if err := w.state.StartSlot(slot); err != nil {
		w.evHandler("worker: runSlotOperation: slot[%d]: ERROR: %s", slot, err)
		return
	}

	w.SignalBanking()
}

// runEndSlotOperation closes the slot being produced, if any.
func (w *Worker) runEndSlotOperation() {
	slot, producing := w.state.Producing()
	if !producing {
		return
	}

	closed, err := w.state.EndSlot(slot)
	if err != nil {
		w.evHandler("worker: runEndSlotOperation: slot[%d]: ERROR: %s", slot, err)
		return
	}

	w.evHandler("worker: runEndSlotOperation: slot[%d]: entries[%d] txs[%d]", slot, len(closed.Entries), closed.TransactionCount())
}

// runMissedOperation declares the slots after from up to and including to
// missed when nothing valid arrived for them. It returns the last slot
// checked.
func (w *Worker) runMissedOperation(from uint64, to uint64) uint64 {
	if root, _ := w.state.RetrieveRoot(); from < root {
		from = root
	}

	for slot := from + 1; slot <= to; slot++ {
		status, err := w.state.QuerySlotStatus(slot)
		if err == nil && status != forktree.Building {
			continue
		}

		if err := w.state.MarkSlotMissed(slot); err != nil {
			w.evHandler("worker: runMissedOperation: slot[%d]: ERROR: %s", slot, err)
			continue
		}
		w.evHandler("worker: runMissedOperation: slot[%d]: %s", slot, state.ErrSlotMissed)
	}

	if to > from {
		return to
	}
	return from
}

// =============================================================================

// bankingOperations processes the pending transactions into the slot being
// produced.
func (w *Worker) bankingOperations() {
	w.evHandler("worker: bankingOperations: G started")
	defer w.evHandler("worker: bankingOperations: G completed")

	for {
		select {
		case <-w.banking:
			if !w.isShutdown() {
				w.runBankingOperation()
			}
		case <-w.shut:
			w.evHandler("worker: bankingOperations: received shut signal")
			return
		}
	}
}

// runBankingOperation drains the pending queue into the current slot.
func (w *Worker) runBankingOperation() {
	n, err := w.state.ProcessTransactions(w.ctx)
	switch {
	case errors.Is(err, state.ErrNotProducing):
	case err != nil:
		w.evHandler("worker: runBankingOperation: ERROR: %s", err)
	case n > 0:
		w.evHandler("worker: runBankingOperation: processed[%d]", n)
	}
}
