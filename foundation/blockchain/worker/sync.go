package worker

// Sync updates the peer list and replays the closed slots peers hold that
// this node is missing.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {
		w.syncPeer(pr)
	}
}
