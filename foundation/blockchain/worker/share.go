package worker

// shareOperations handles sending new transactions, closed slots and votes
// to the known peers.
func (w *Worker) shareOperations() {
	w.evHandler("worker: shareOperations: G started")
	defer w.evHandler("worker: shareOperations: G completed")

	for {
		select {
		case slot := <-w.slotSharing:
			if !w.isShutdown() {
				w.state.NetSendSlotToPeers(slot)
			}
		case vote := <-w.voteSharing:
			if !w.isShutdown() {
				w.state.NetSendVoteToPeers(vote)
			}
		case tx := <-w.txSharing:
			if !w.isShutdown() {
				w.state.NetSendTxToPeers(tx)
			}
		case <-w.shut:
			w.evHandler("worker: shareOperations: received shut signal")
			return
		}
	}
}
