// Package httpapi is the node's thin HTTP projection of the chain
// manager and peer registry: read endpoints for chain/blocks/pending
// transactions/peers/balance, and write endpoints to submit a
// transaction or trigger mining.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"annalink.dev/annalink/internal/chaincore"
	"annalink.dev/annalink/internal/obs"
	"annalink.dev/annalink/internal/p2p"
)

var errBlockNotFound = errors.New("httpapi: block not found")

var logger = obs.For("httpapi")

// ChainAccessor is the subset of the chain manager the HTTP API needs.
// Defined locally (rather than importing *chain.Manager) so this
// package's tests can exercise it against a fake.
type ChainAccessor interface {
	Height() int64
	LatestBlock() *chaincore.Block
	Blocks() []*chaincore.Block
	BlockCount() int64
	TransactionCount() int64
	GetBalance(address string) float64
	AddTransaction(tx *chaincore.Transaction) error
	PendingTransactions() []*chaincore.Transaction
	MinePending(ctx context.Context, minerAddress string) (*chaincore.Block, error)
}

// Server wires a ChainAccessor and peer registry into an HTTP router.
type Server struct {
	Chain    ChainAccessor
	Registry *p2p.Registry
}

// NewRouter builds the gorilla/mux router exposing this node's HTTP API.
func NewRouter(chain ChainAccessor, registry *p2p.Registry) *mux.Router {
	s := &Server{Chain: chain, Registry: registry}
	r := mux.NewRouter()
	r.HandleFunc("/blockchain", s.handleBlockchainInfo).Methods(http.MethodGet)
	r.HandleFunc("/blocks", s.handleBlocks).Methods(http.MethodGet)
	r.HandleFunc("/blocks/{index}", s.handleBlock).Methods(http.MethodGet)
	r.HandleFunc("/pending", s.handlePending).Methods(http.MethodGet)
	r.HandleFunc("/peers", s.handlePeers).Methods(http.MethodGet)
	r.HandleFunc("/balance/{address}", s.handleBalance).Methods(http.MethodGet)
	r.HandleFunc("/transactions", s.handleSubmitTransaction).Methods(http.MethodPost)
	r.HandleFunc("/mine", s.handleMine).Methods(http.MethodPost)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Warn("failed to encode response body")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type blockchainInfo struct {
	Height           int64  `json:"height"`
	BlockCount       int64  `json:"block_count"`
	TransactionCount int64  `json:"transaction_count"`
	LatestHash       string `json:"latest_hash"`
	Difficulty       int    `json:"difficulty"`
}

func (s *Server) handleBlockchainInfo(w http.ResponseWriter, r *http.Request) {
	latest := s.Chain.LatestBlock()
	info := blockchainInfo{
		Height:           s.Chain.Height(),
		BlockCount:       s.Chain.BlockCount(),
		TransactionCount: s.Chain.TransactionCount(),
	}
	if latest != nil {
		info.LatestHash = latest.Hash
		info.Difficulty = latest.Difficulty
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Chain.Blocks())
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseInt(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	for _, b := range s.Chain.Blocks() {
		if b.Index == index {
			writeJSON(w, http.StatusOK, b)
			return
		}
	}
	writeError(w, http.StatusNotFound, errBlockNotFound)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Chain.PendingTransactions())
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.GetKnownPeers())
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	writeJSON(w, http.StatusOK, map[string]any{
		"address": address,
		"balance": s.Chain.GetBalance(address),
	})
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var tx chaincore.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Chain.AddTransaction(&tx); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	go p2p.BroadcastTransaction(s.Registry, &tx)
	writeJSON(w, http.StatusAccepted, map[string]string{"txid": tx.TxID})
}

type mineRequest struct {
	MinerAddress string `json:"miner_address"`
}

func (s *Server) handleMine(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req mineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	block, err := s.Chain.MinePending(r.Context(), req.MinerAddress)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	go p2p.BroadcastBlock(s.Registry, block)
	writeJSON(w, http.StatusOK, block)
}
