// Package peer maintains the peer related information such as the set
// of known peers and their health.
package peer

import (
	"sync"
)

// maxFailures is the number of consecutive failed exchanges after which a
// peer is dropped from the set.
const maxFailures = 3

// Peer represents information about a node in the network.
type Peer struct {
	Host string
}

// New constructs a new peer value.
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

// PeerStatus represents information about the status of any given peer.
type PeerStatus struct {
	LatestBlockHash   string `json:"latest_block_hash"`
	LatestBlockNumber uint64 `json:"latest_block_number"`
	KnownPeers        []Peer `json:"known_peers"`
}

// =============================================================================

// PeerSet represents the data representation to maintain a set of known
// peers and their consecutive failure counts.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]int
}

// NewPeerSet constructs a new set to manage node peer information.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		set: make(map[Peer]int),
	}
}

// Add adds a new node to the set. A peer that is already known is left
// untouched so its failure count survives the periodic rediscovery; only a
// successful exchange resets the count.
func (ps *PeerSet) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; exists {
		return false
	}
	ps.set[peer] = 0

	return true
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// RecordSuccess resets the failure count for the specified peer after a
// successful exchange.
func (ps *PeerSet) RecordSuccess(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; exists {
		ps.set[peer] = 0
	}
}

// RecordFailure increments the failure count for the specified peer. Once
// the count reaches the drop threshold the peer is removed from the set and
// true is returned. The peer stays eligible to rejoin through Add later.
func (ps *PeerSet) RecordFailure(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	count, exists := ps.set[peer]
	if !exists {
		return false
	}

	count++
	if count >= maxFailures {
		delete(ps.set, peer)
		return true
	}

	ps.set[peer] = count
	return false
}

// Count returns the current number of known peers.
func (ps *PeerSet) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns a list of the known peers, excluding the specified host.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	return peers
}
