package p2p

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	"annalink.dev/annalink/internal/chaincore"
)

// ChainAccessor is the subset of the chain manager the P2P layer needs.
// Defining it here (rather than importing *chain.Manager directly)
// keeps this package's dependency on the chain package to an interface
// its tests can fake.
type ChainAccessor interface {
	Height() int64
	Blocks() []*chaincore.Block
	AddBlock(block *chaincore.Block) error
	AddTransaction(tx *chaincore.Transaction) error
	ReplaceChain(candidate []*chaincore.Block) error
}

// Server accepts inbound peer connections and serves the wire protocol.
type Server struct {
	Host     string
	Port     int
	Chain    ChainAccessor
	Registry *Registry

	mu       sync.Mutex
	listener net.Listener
}

// NewServer builds a Server bound to host:port, backed by chain for
// state and registry for known-peer bookkeeping.
func NewServer(host string, port int, chain ChainAccessor, registry *Registry) *Server {
	return &Server{Host: host, Port: port, Chain: chain, Registry: registry}
}

// Start listens on Host:Port and serves connections until ctx is
// cancelled, at which point the listener is closed and Start returns.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.Host, strconv.Itoa(s.Port)))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logger.WithField("host", s.Host).WithField("port", s.Port).Info("p2p server listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				logger.WithError(err).Warn("accept failed")
				return err
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	remoteHost, remotePortStr, err := net.SplitHostPort(conn.RemoteAddr().String())
	remotePort, _ := strconv.Atoi(remotePortStr)
	if err == nil {
		s.Registry.AddPeer(remoteHost, remotePort)
		s.Registry.UpdatePeerStatus(remoteHost, remotePort, true, time.Now())
		defer s.Registry.UpdatePeerStatus(remoteHost, remotePort, false, time.Now())
	}

	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			return
		}
		if err := s.dispatch(conn, frame); err != nil {
			logger.WithError(err).Warn("failed to handle frame")
		}
	}
}

func (s *Server) dispatch(conn net.Conn, frame Frame) error {
	switch frame.Type {
	case MsgHandshake:
		return s.handleHandshake(conn)
	case MsgGetBlocks:
		return s.handleGetBlocks(conn, frame)
	case MsgBlocks:
		return s.handleBlocks(frame)
	case MsgNewTransaction:
		return s.handleNewTransaction(frame)
	case MsgNewBlock:
		return s.handleNewBlock(frame)
	case MsgGetPeers:
		return s.handleGetPeers(conn)
	case MsgPeers:
		return s.handlePeers(frame)
	default:
		logger.WithField("type", frame.Type).Warn("unknown message type")
		return nil
	}
}

func (s *Server) handleHandshake(conn net.Conn) error {
	return WriteFrame(conn, Frame{
		Type: MsgHandshake,
		Data: encodeData(HandshakePayload{
			Version:    "1.0",
			BestHeight: s.Chain.Height(),
			Host:       s.Host,
			Port:       s.Port,
		}),
	})
}

func (s *Server) handleGetBlocks(conn net.Conn, frame Frame) error {
	var req GetBlocksPayload
	_ = json.Unmarshal(frame.Data, &req)

	all := s.Chain.Blocks()
	start := int(req.StartHeight)
	if start < 0 {
		start = 0
	}
	end := start + 100
	if end > len(all) {
		end = len(all)
	}
	var raw []json.RawMessage
	if start < end {
		for _, b := range all[start:end] {
			data, err := b.ToJSON()
			if err != nil {
				continue
			}
			raw = append(raw, data)
		}
	}
	return WriteFrame(conn, Frame{Type: MsgBlocks, Data: encodeData(BlocksPayload{Blocks: raw})})
}

func (s *Server) handleBlocks(frame Frame) error {
	var payload BlocksPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil || len(payload.Blocks) == 0 {
		return nil
	}
	blocks := make([]*chaincore.Block, 0, len(payload.Blocks))
	for _, raw := range payload.Blocks {
		b, err := chaincore.BlockFromJSON(raw)
		if err != nil {
			return err
		}
		blocks = append(blocks, b)
	}

	if len(blocks) > 1 {
		current := s.Chain.Blocks()
		prefix := current
		if int(blocks[0].Index) < len(current) {
			prefix = current[:blocks[0].Index]
		}
		candidate := append(append([]*chaincore.Block{}, prefix...), blocks...)
		if err := s.Chain.ReplaceChain(candidate); err != nil {
			logger.WithError(err).Debug("chain replacement declined")
		}
		return nil
	}
	if err := s.Chain.AddBlock(blocks[0]); err != nil {
		logger.WithError(err).Debug("block rejected")
	}
	return nil
}

func (s *Server) handleNewTransaction(frame Frame) error {
	tx, err := chaincore.TransactionFromJSON(frame.Data)
	if err != nil {
		return err
	}
	if err := s.Chain.AddTransaction(tx); err != nil {
		logger.WithError(err).Debug("transaction rejected")
		return nil
	}
	// Re-broadcast only on admission: a duplicate is rejected above, so
	// gossip between two peers cannot ping-pong forever.
	go BroadcastTransaction(s.Registry, tx)
	return nil
}

func (s *Server) handleNewBlock(frame Frame) error {
	block, err := chaincore.BlockFromJSON(frame.Data)
	if err != nil {
		return err
	}
	if err := s.Chain.AddBlock(block); err != nil {
		logger.WithError(err).Debug("block rejected")
		return nil
	}
	go BroadcastBlock(s.Registry, block)
	return nil
}

func (s *Server) handleGetPeers(conn net.Conn) error {
	return WriteFrame(conn, Frame{
		Type: MsgPeers,
		Data: encodeData(PeersPayload{Peers: s.Registry.GetKnownPeers()}),
	})
}

func (s *Server) handlePeers(frame Frame) error {
	var payload PeersPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		return nil
	}
	for _, p := range payload.Peers {
		s.Registry.AddPeer(p.Host, p.Port)
	}
	return nil
}
