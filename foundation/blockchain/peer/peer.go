// Package peer maintains the peer related information such as the set
// of know peers and their status.
package peer

import (
	"sort"
	"sync"
)

// Peer represents information about a Node in the network.
type Peer struct {
	Host string
}

// New contructs a new info value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// Status represents what a node reports about its view of the chain.
type Status struct {
	Account       string `json:"account"`
	RootSlot      uint64 `json:"root_slot"`
	RootHash      string `json:"root_hash"`
	BestTip       uint64 `json:"best_tip"`
	CurrentSlot   uint64 `json:"current_slot"`
	CurrentLeader string `json:"current_leader"`
	Pending       int    `json:"pending"`
	KnownPeers    []Peer `json:"known_peers"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known peers.
// Failures counts consecutive send failures so unreachable peers can be
// dropped.
type PeerSet struct {
	mu       sync.RWMutex
	set      map[Peer]int
	maxFails int
}

// NewPeerSet constructs a new info set to manage node peer information. A
// peer is removed after maxFails consecutive failures, zero keeps it forever.
func NewPeerSet(maxFails int) *PeerSet {
	return &PeerSet{
		set:      make(map[Peer]int),
		maxFails: maxFails,
	}
}

// Add adds a new node to the set.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = 0
		return true
	}

	return false
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Failed records a failed send and reports whether the peer was dropped.
func (ps *PeerSet) Failed(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	fails, exists := ps.set[peer]
	if !exists {
		return false
	}

	fails++
	if ps.maxFails > 0 && fails >= ps.maxFails {
		delete(ps.set, peer)
		return true
	}

	ps.set[peer] = fails
	return false
}

// Succeeded clears the failure count of the peer.
func (ps *PeerSet) Succeeded(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; exists {
		ps.set[peer] = 0
	}
}

// Copy returns a list of the known peers sorted by host, excluding host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Host < peers[j].Host
	})

	return peers
}
