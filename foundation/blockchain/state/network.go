package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/peer"
)

const baseURL = "http://%s/v1/node"

// netTimeout bounds every request made to a peer.
const netTimeout = 5 * time.Second

// NetSendSlotToPeers sends a closed slot to all known peers in its binary
// form.
func (s *State) NetSendSlotToPeers(slot database.Slot) {
	s.evHandler("state: NetSendSlotToPeers: started: slot[%d]", slot.Index)
	defer s.evHandler("state: NetSendSlotToPeers: completed: slot[%d]", slot.Index)

	data := slot.Encode()

	for _, pr := range s.RetrieveKnownPeers() {
		url := fmt.Sprintf("%s/slots/propose", fmt.Sprintf(baseURL, pr.Host))
		s.track(pr, send(http.MethodPost, url, rawBody(data), nil))
	}
}

// NetSendVoteToPeers sends a vote to all known peers.
func (s *State) NetSendVoteToPeers(vote database.SignedVote) {
	s.evHandler("state: NetSendVoteToPeers: started: slot[%d]", vote.Slot)
	defer s.evHandler("state: NetSendVoteToPeers: completed: slot[%d]", vote.Slot)

	for _, pr := range s.RetrieveKnownPeers() {
		url := fmt.Sprintf("%s/votes/submit", fmt.Sprintf(baseURL, pr.Host))
		s.track(pr, send(http.MethodPost, url, vote, nil))
	}
}

// NetSendTxToPeers shares a new transaction with the known peers so whoever
// leads the next slot has it queued.
func (s *State) NetSendTxToPeers(tx database.SignedTx) {
	s.evHandler("state: NetSendTxToPeers: started: tx[%s]", tx.ID)
	defer s.evHandler("state: NetSendTxToPeers: completed: tx[%s]", tx.ID)

	for _, pr := range s.RetrieveKnownPeers() {
		url := fmt.Sprintf("%s/tx/submit", fmt.Sprintf(baseURL, pr.Host))
		s.track(pr, send(http.MethodPost, url, tx, nil))
	}
}

// NetRequestPeerStatus asks a peer for its view of the chain and its list of
// known peers.
func (s *State) NetRequestPeerStatus(pr peer.Peer) (peer.Status, error) {
	s.evHandler("state: NetRequestPeerStatus: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerStatus: completed: %s", pr.Host)

	url := fmt.Sprintf("%s/status", fmt.Sprintf(baseURL, pr.Host))

	var ps peer.Status
	if err := send(http.MethodGet, url, nil, &ps); err != nil {
		return peer.Status{}, err
	}

	s.evHandler("state: NetRequestPeerStatus: peer-node[%s]: root[%d] tip[%d] peers[%d]", pr.Host, ps.RootSlot, ps.BestTip, len(ps.KnownPeers))

	return ps, nil
}

// NetRequestAddPeer tells a peer this node is available.
func (s *State) NetRequestAddPeer(pr peer.Peer) error {
	url := fmt.Sprintf("%s/peers", fmt.Sprintf(baseURL, pr.Host))
	return send(http.MethodPost, url, peer.New(s.host), nil)
}

// NetRequestPeerSlots asks a peer for the closed slots it holds above this
// node's root and replays the ones this node is missing.
func (s *State) NetRequestPeerSlots(ctx context.Context, pr peer.Peer) error {
	s.evHandler("state: NetRequestPeerSlots: started: %s", pr.Host)
	defer s.evHandler("state: NetRequestPeerSlots: completed: %s", pr.Host)

	root, _ := s.tree.Root()
	url := fmt.Sprintf("%s/slots/list/%d", fmt.Sprintf(baseURL, pr.Host), root+1)

	var slots []database.Slot
	if err := send(http.MethodGet, url, nil, &slots); err != nil {
		return err
	}

	for _, slot := range slots {
		if _, err := s.tree.Status(slot.Index); err == nil {
			continue
		}

		if err := s.ReplaySlot(ctx, slot); err != nil {
			s.evHandler("state: NetRequestPeerSlots: slot[%d]: WARNING: %s", slot.Index, err)
		}
	}

	return nil
}

// =============================================================================

// track records the outcome of a request to a peer. Peers failing too often
// are dropped.
func (s *State) track(pr peer.Peer, err error) {
	if err == nil {
		s.knownPeers.Succeeded(pr)
		return
	}

	s.evHandler("state: peer[%s]: WARNING: %s", pr.Host, err)
	if s.knownPeers.Failed(pr) {
		s.evHandler("state: peer[%s]: removed", pr.Host)
	}
}

// rawBody marks data that is sent as is instead of JSON encoded.
type rawBody []byte

// send is a helper function to send an HTTP request to a node.
func send(method string, url string, dataSend any, dataRecv any) error {
	var body io.Reader
	contentType := "application/json"

	switch v := dataSend.(type) {
	case nil:
	case rawBody:
		body = bytes.NewReader(v)
		contentType = "application/octet-stream"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}

	client := http.Client{Timeout: netTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		return errors.New(string(msg))
	}

	if dataRecv != nil {
		if err := json.NewDecoder(resp.Body).Decode(dataRecv); err != nil {
			return err
		}
	}

	return nil
}
