package p2p

import (
	"testing"
	"time"
)

func TestRegistryAddPeerIsIdempotent(t *testing.T) {
	r := NewRegistry(5)
	first := r.AddPeer("10.0.0.1", 9000)
	second := r.AddPeer("10.0.0.1", 9000)
	if first == nil || first != second {
		t.Fatalf("AddPeer twice for the same host:port returned distinct peers")
	}
	if len(r.GetKnownPeers()) != 1 {
		t.Fatalf("known peers = %d, want 1", len(r.GetKnownPeers()))
	}
}

func TestRegistryDropsPeersBeyondCap(t *testing.T) {
	r := NewRegistry(2)
	r.AddPeer("10.0.0.1", 9000)
	r.AddPeer("10.0.0.2", 9000)
	if p := r.AddPeer("10.0.0.3", 9000); p != nil {
		t.Fatalf("AddPeer past capacity returned %+v, want nil", p)
	}
	if len(r.GetKnownPeers()) != 2 {
		t.Fatalf("known peers = %d, want 2", len(r.GetKnownPeers()))
	}
}

func TestRegistryUpdatePeerStatus(t *testing.T) {
	r := NewRegistry(0)
	r.AddPeer("10.0.0.1", 9000)

	now := time.Now()
	r.UpdatePeerStatus("10.0.0.1", 9000, true, now)

	connected := r.GetConnectedPeers()
	if len(connected) != 1 {
		t.Fatalf("connected peers = %d, want 1", len(connected))
	}
	if connected[0].LastSeen != float64(now.UnixNano())/1e9 {
		t.Fatalf("LastSeen not stamped: %v", connected[0].LastSeen)
	}

	if len(r.GetUnconnectedPeers()) != 0 {
		t.Fatalf("connected peer still listed as a dial candidate")
	}

	r.UpdatePeerStatus("10.0.0.1", 9000, false, now.Add(time.Second))
	if len(r.GetConnectedPeers()) != 0 {
		t.Fatalf("peer still reported connected after disconnect")
	}
	if len(r.GetUnconnectedPeers()) != 1 {
		t.Fatalf("disconnected peer not listed as a dial candidate")
	}
}

func TestRegistryUpdateUnknownPeerIsNoOp(t *testing.T) {
	r := NewRegistry(0)
	r.UpdatePeerStatus("10.0.0.9", 9000, true, time.Now())
	if len(r.GetKnownPeers()) != 0 {
		t.Fatalf("UpdatePeerStatus on an unknown peer created a registry entry")
	}
}

func TestPeerKey(t *testing.T) {
	p := &Peer{Host: "example.com", Port: 9000}
	if p.Key() != "example.com:9000" {
		t.Fatalf("Key() = %q, want example.com:9000", p.Key())
	}
}
