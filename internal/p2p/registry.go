// Package p2p implements the node's peer-to-peer networking: a peer
// registry, a length-framed JSON wire protocol, an inbound connection
// server, and the outbound sync/broadcast loops that keep this node's
// chain converging with its peers.
package p2p

import (
	"fmt"
	"sync"
	"time"

	"annalink.dev/annalink/internal/obs"
)

var logger = obs.For("p2p")

// DefaultMaxPeers bounds the registry's known-peer set.
const DefaultMaxPeers = 10

// Peer is a known remote node, addressed by host:port.
type Peer struct {
	Host      string  `json:"host"`
	Port      int     `json:"port"`
	LastSeen  float64 `json:"last_seen"`
	Connected bool    `json:"connected"`
}

// Key returns the registry key for a peer: "host:port".
func (p *Peer) Key() string {
	return peerKey(p.Host, p.Port)
}

func peerKey(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

// Registry tracks known peers, capped at a maximum count.
type Registry struct {
	mu       sync.RWMutex
	peers    map[string]*Peer
	maxPeers int
}

// NewRegistry creates an empty registry bounded at maxPeers entries. A
// non-positive maxPeers falls back to DefaultMaxPeers.
func NewRegistry(maxPeers int) *Registry {
	if maxPeers <= 0 {
		maxPeers = DefaultMaxPeers
	}
	return &Registry{
		peers:    make(map[string]*Peer),
		maxPeers: maxPeers,
	}
}

// AddPeer registers a peer if it is not already known and the registry
// has not reached its cap. It is a no-op (not an error) in either case:
// peer discovery is best effort.
func (r *Registry) AddPeer(host string, port int) *Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := peerKey(host, port)
	if existing, ok := r.peers[key]; ok {
		return existing
	}
	if len(r.peers) >= r.maxPeers {
		logger.WithField("peer", key).Warn("peer registry full, dropping new peer")
		return nil
	}
	peer := &Peer{Host: host, Port: port}
	r.peers[key] = peer
	logger.WithField("peer", key).Info("peer added")
	return peer
}

// UpdatePeerStatus marks a known peer connected/disconnected and
// refreshes its last-seen timestamp.
func (r *Registry) UpdatePeerStatus(host string, port int, connected bool, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := peerKey(host, port)
	peer, ok := r.peers[key]
	if !ok {
		return
	}
	peer.Connected = connected
	peer.LastSeen = float64(now.UnixNano()) / 1e9
}

// GetConnectedPeers returns every peer currently marked connected.
func (r *Registry) GetConnectedPeers() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if p.Connected {
			out = append(out, p)
		}
	}
	return out
}

// GetUnconnectedPeers returns every known peer not currently marked
// connected: the candidates for an outbound dial.
func (r *Registry) GetUnconnectedPeers() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		if !p.Connected {
			out = append(out, p)
		}
	}
	return out
}

// GetKnownPeers returns every peer the registry has ever recorded,
// connected or not.
func (r *Registry) GetKnownPeers() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}
