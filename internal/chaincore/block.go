package chaincore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"annalink.dev/annalink/internal/nodeerrors"
)

// GenesisPreviousHash is the sentinel previous-hash value of the chain's
// first block.
const GenesisPreviousHash = "0"

// Block is one link in the chain: an ordered set of transactions sealed
// behind a hash that satisfies the proof-of-work target recorded in
// Difficulty.
type Block struct {
	Index        int64          `json:"index"`
	Timestamp    float64        `json:"timestamp"`
	Transactions []*Transaction `json:"transactions"`
	PreviousHash string         `json:"previous_hash"`
	Nonce        uint64         `json:"nonce"`
	Difficulty   int            `json:"difficulty"`
	Hash         string         `json:"hash"`
}

// NewBlock builds an unmined block: its hash is computed once (over
// nonce 0) but does not yet satisfy any proof-of-work target. The
// consensus engine is responsible for mining it.
func NewBlock(index int64, transactions []*Transaction, previousHash string, difficulty int) *Block {
	b := &Block{
		Index:        index,
		Timestamp:    float64(time.Now().UnixNano()) / 1e9,
		Transactions: transactions,
		PreviousHash: previousHash,
		Nonce:        0,
		Difficulty:   difficulty,
	}
	b.Hash, _ = b.CalculateHash()
	return b
}

// txIDs returns the ordered list of contained transaction ids, the only
// part of each transaction hashed into the block hash. The transactions
// themselves are persisted and verified independently; folding their
// full bodies into the block hash would make the block hash recompute
// on every field a transaction carries instead of just its identity.
func (b *Block) txIDs() []string {
	ids := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.TxID
	}
	return ids
}

// CalculateHash returns the SHA256 of the canonical pre-image over the
// block's header fields and its transactions' ids, hex encoded. It does
// not mutate b.Hash.
func (b *Block) CalculateHash() (string, error) {
	fields := map[string]any{
		"index":         b.Index,
		"timestamp":     b.Timestamp,
		"transactions":  b.txIDs(),
		"previous_hash": b.PreviousHash,
		"nonce":         b.Nonce,
		"difficulty":    b.Difficulty,
	}
	data, err := CanonicalJSON(fields)
	if err != nil {
		return "", fmt.Errorf("chaincore: canonicalize block: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// SatisfiesProof reports whether hash has at least difficulty leading
// hex zero nibbles. Shared by Block.IsValid and the mining loop so the
// two can never disagree about what counts as a valid proof.
func SatisfiesProof(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	if len(hash) < difficulty {
		return false
	}
	return hash[:difficulty] == strings.Repeat("0", difficulty)
}

// IsValid checks that the block's stored hash matches its recomputed
// hash, that the hash satisfies the block's own difficulty target, that
// every contained transaction is structurally valid (only the first
// transaction may be a coinbase), and, when previous is non-nil, that
// the block correctly links to it.
func (b *Block) IsValid(previous *Block) bool {
	want, err := b.CalculateHash()
	if err != nil || want != b.Hash {
		return false
	}
	if !SatisfiesProof(b.Hash, b.Difficulty) {
		return false
	}
	for i, tx := range b.Transactions {
		if i == 0 {
			if !tx.IsValid() {
				return false
			}
			continue
		}
		if tx.IsCoinbase() {
			return false
		}
		if !tx.IsValid() {
			return false
		}
	}
	if previous == nil {
		return true
	}
	if b.Index != previous.Index+1 {
		return false
	}
	return b.PreviousHash == previous.Hash
}

// IsGenesis reports whether b is the chain's first block.
func (b *Block) IsGenesis() bool {
	return b.Index == 0 && b.PreviousHash == GenesisPreviousHash
}

// ToJSON renders the block's wire representation.
func (b *Block) ToJSON() ([]byte, error) {
	return json.Marshal(b)
}

// BlockFromJSON parses a block's wire representation.
func BlockFromJSON(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrMalformedFrame, err)
	}
	return &b, nil
}
