package worker

import (
	"github.com/ardanlabs/pohchain/foundation/blockchain/peer"
)

// peerOperations handles finding new peers and catching up on slots.
func (w *Worker) peerOperations() {
	w.evHandler("worker: peerOperations: G started")
	defer w.evHandler("worker: peerOperations: G completed")

	for {
		select {
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runPeersOperation()
			}
		case <-w.shut:
			w.evHandler("worker: peerOperations: received shut signal")
			return
		}
	}
}

// runPeersOperation updates the peer list.
func (w *Worker) runPeersOperation() {
	w.evHandler("worker: runPeersOperation: started")
	defer w.evHandler("worker: runPeersOperation: completed")

	for _, pr := range w.state.RetrieveKnownPeers() {
		w.syncPeer(pr)
	}

	// Get the latest peers and let them know this node is available to chat.
	for _, pr := range w.state.RetrieveKnownPeers() {
		if err := w.state.NetRequestAddPeer(pr); err != nil {
			w.evHandler("worker: runPeersOperation: addPeer: %s: ERROR: %s", pr.Host, err)
		}
	}
}

// syncPeer retrieves the peer's status, learns its peers and replays the
// slots it holds when it is ahead of this node.
func (w *Worker) syncPeer(pr peer.Peer) {
	status, err := w.state.NetRequestPeerStatus(pr)
	if err != nil {
		w.evHandler("worker: syncPeer: queryPeerStatus: %s: ERROR: %s", pr.Host, err)
		w.state.RemoveKnownPeer(pr)
		return
	}

	w.addNewPeers(status.KnownPeers)

	if status.BestTip > w.state.RetrieveBestTip() {
		w.evHandler("worker: syncPeer: retrievePeerSlots: %s: bestTip[%d]", pr.Host, status.BestTip)

		if err := w.state.NetRequestPeerSlots(w.ctx, pr); err != nil {
			w.evHandler("worker: syncPeer: retrievePeerSlots: %s: ERROR: %s", pr.Host, err)
		}
	}
}

// addNewPeers takes the list of known peers and makes sure they are included
// in the nodes list of know peers.
func (w *Worker) addNewPeers(knownPeers []peer.Peer) {
	for _, pr := range knownPeers {

		// Don't add this running node to the known peer list.
		if pr.Match(w.state.RetrieveHost()) {
			continue
		}

		if w.state.AddKnownPeer(pr) {
			w.evHandler("worker: addNewPeers: adding peer-node %s", pr.Host)
		}
	}
}
