// Package peer maintains the set of known peers and the status
// exchanged between them.
package peer

import (
	"sync"
)

// Peer identifies a node in the network by host address.
type Peer struct {
	Host string
}

// New constructs a peer for the host address.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match reports whether the peer is the specified host.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// PeerStatus is the chain position a peer reports about itself. The
// cumulative work string decides which peer is ahead, not the height.
type PeerStatus struct {
	TipHash        string `json:"tip_hash"`
	TipHeight      uint32 `json:"tip_height"`
	CumulativeWork string `json:"cumulative_work"`
	KnownPeers     []Peer `json:"known_peers"`
}

// =============================================================================

// PeerSet maintains the set of known peers.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewPeerSet constructs an empty peer set.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]struct{}),
	}
}

// Add inserts the peer and reports whether it was newly added.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; exists {
		return false
	}

	ps.set[peer] = struct{}{}
	return true
}

// Remove deletes the peer from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Copy returns the known peers, excluding the specified host so a node
// can leave itself out of the list.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]Peer, 0, len(ps.set))
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	return peers
}
