package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"annalink.dev/annalink/internal/chaincore"
	"annalink.dev/annalink/internal/nodeerrors"
)

// SyncInterval is how often the outbound sync loop requests blocks from
// every connected peer.
const SyncInterval = 15 * time.Second

// SyncStartupDelay is how long the sync loop waits after Start before
// its first pass, giving the server a moment to finish accepting any
// connections already in flight.
const SyncStartupDelay = 5 * time.Second

// ConnectTimeout bounds dialing and handshaking with a peer.
const ConnectTimeout = 5 * time.Second

// BulkReplyTimeout bounds waiting for a get_blocks response, which may
// carry up to 100 full blocks.
const BulkReplyTimeout = 30 * time.Second

// RunSyncLoop periodically requests blocks from every connected peer
// and folds any response into the chain, until ctx is cancelled.
func RunSyncLoop(ctx context.Context, server *Server) {
	select {
	case <-time.After(SyncStartupDelay):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(SyncInterval)
	defer ticker.Stop()
	for {
		syncOnce(server)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ConnectToPeer dials a known peer, exchanges a handshake, and marks it
// connected in the registry. A dial or handshake failure marks the peer
// not connected and is returned wrapped as ErrPeerUnreachable; the
// registry entry remains so a later round can retry.
func ConnectToPeer(server *Server, peer *Peer) error {
	addr := net.JoinHostPort(peer.Host, strconv.Itoa(peer.Port))
	conn, err := net.DialTimeout("tcp", addr, ConnectTimeout)
	if err != nil {
		server.Registry.UpdatePeerStatus(peer.Host, peer.Port, false, time.Now())
		return fmt.Errorf("%w: %s: %v", nodeerrors.ErrPeerUnreachable, addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ConnectTimeout))

	if err := WriteFrame(conn, Frame{
		Type: MsgHandshake,
		Data: encodeData(HandshakePayload{
			Version:    "1.0",
			BestHeight: server.Chain.Height(),
			Host:       server.Host,
			Port:       server.Port,
		}),
	}); err != nil {
		server.Registry.UpdatePeerStatus(peer.Host, peer.Port, false, time.Now())
		return fmt.Errorf("%w: %s: %v", nodeerrors.ErrPeerUnreachable, addr, err)
	}
	if _, err := ReadFrame(conn); err != nil {
		server.Registry.UpdatePeerStatus(peer.Host, peer.Port, false, time.Now())
		return fmt.Errorf("%w: %s: %v", nodeerrors.ErrPeerUnreachable, addr, err)
	}

	server.Registry.UpdatePeerStatus(peer.Host, peer.Port, true, time.Now())
	logger.WithField("peer", peer.Key()).Info("connected to peer")
	return nil
}

// connectKnownPeers dials every known peer not currently marked
// connected. Seeded peers and peers learned through a peers message
// start life unconnected; this is the step that promotes them.
func connectKnownPeers(server *Server) {
	for _, peer := range server.Registry.GetUnconnectedPeers() {
		if err := ConnectToPeer(server, peer); err != nil {
			logger.WithField("peer", peer.Key()).WithError(err).Debug("peer connect failed")
		}
	}
}

func syncOnce(server *Server) {
	connectKnownPeers(server)
	peers := server.Registry.GetConnectedPeers()
	logger.WithField("peers", len(peers)).Info("syncing with peers")
	for _, peer := range peers {
		if err := syncWithPeer(server, peer); err != nil {
			logger.WithField("peer", peer.Key()).WithError(err).Debug("sync with peer failed")
			server.Registry.UpdatePeerStatus(peer.Host, peer.Port, false, time.Now())
		}
	}
}

// syncWithPeer opens a fresh connection, exchanges a handshake, requests
// the peer's chain from height 0, and applies the three-way resolution
// rule: a strictly longer valid chain replaces ours outright, an
// equal-length reply only fills in blocks we're missing, and a shorter
// reply is ignored.
func syncWithPeer(server *Server, peer *Peer) error {
	addr := net.JoinHostPort(peer.Host, strconv.Itoa(peer.Port))
	conn, err := net.DialTimeout("tcp", addr, ConnectTimeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", nodeerrors.ErrPeerUnreachable, addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(ConnectTimeout))

	if err := WriteFrame(conn, Frame{
		Type: MsgHandshake,
		Data: encodeData(HandshakePayload{
			Version:    "1.0",
			BestHeight: server.Chain.Height(),
			Host:       server.Host,
			Port:       server.Port,
		}),
	}); err != nil {
		return err
	}
	if _, err := ReadFrame(conn); err != nil {
		return err
	}

	conn.SetDeadline(time.Now().Add(BulkReplyTimeout))
	if err := WriteFrame(conn, Frame{
		Type: MsgGetBlocks,
		Data: encodeData(GetBlocksPayload{StartHeight: 0}),
	}); err != nil {
		return err
	}
	frame, err := ReadFrame(conn)
	if err != nil {
		return err
	}
	if frame.Type != MsgBlocks {
		return nil
	}
	var payload BlocksPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		return err
	}
	remote := make([]*chaincore.Block, 0, len(payload.Blocks))
	for _, raw := range payload.Blocks {
		b, err := chaincore.BlockFromJSON(raw)
		if err != nil {
			return err
		}
		remote = append(remote, b)
	}

	local := server.Chain.Blocks()
	switch {
	case len(remote) > len(local):
		if err := server.Chain.ReplaceChain(remote); err != nil {
			logger.WithField("peer", peer.Key()).WithError(err).Debug("chain replacement declined")
		}
	case len(remote) == len(local):
		for _, b := range remote {
			if int(b.Index) >= len(local) {
				if err := server.Chain.AddBlock(b); err != nil {
					logger.WithField("peer", peer.Key()).WithError(err).Debug("block rejected during sync")
				}
			}
		}
	}
	return nil
}

// Broadcast sends a frame to every connected peer over a fresh
// connection each time, swallowing per-peer failures so one unreachable
// peer never blocks delivery to the rest.
func Broadcast(registry *Registry, frame Frame) {
	for _, peer := range registry.GetConnectedPeers() {
		addr := net.JoinHostPort(peer.Host, strconv.Itoa(peer.Port))
		conn, err := net.DialTimeout("tcp", addr, ConnectTimeout)
		if err != nil {
			logger.WithField("peer", peer.Key()).WithError(err).Debug("broadcast dial failed")
			continue
		}
		if err := WriteFrame(conn, frame); err != nil {
			logger.WithField("peer", peer.Key()).WithError(err).Debug("broadcast write failed")
		}
		conn.Close()
	}
}

// BroadcastTransaction broadcasts a new transaction to every connected peer.
func BroadcastTransaction(registry *Registry, tx *chaincore.Transaction) {
	data, err := tx.ToJSON()
	if err != nil {
		return
	}
	Broadcast(registry, Frame{Type: MsgNewTransaction, Data: json.RawMessage(data)})
}

// BroadcastBlock broadcasts a newly mined or accepted block to every
// connected peer.
func BroadcastBlock(registry *Registry, block *chaincore.Block) {
	data, err := block.ToJSON()
	if err != nil {
		return
	}
	Broadcast(registry, Frame{Type: MsgNewBlock, Data: json.RawMessage(data)})
}
