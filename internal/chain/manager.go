// Package chain manages the canonical sequence of blocks: the mempool
// of pending transactions, genesis construction, mining, validation,
// and fork resolution. It is the component every other subsystem
// (HTTP API, P2P, CLI) drives to read or extend the chain.
package chain

import (
	"context"
	"fmt"
	"sync"

	"annalink.dev/annalink/internal/chaincore"
	"annalink.dev/annalink/internal/consensus"
	"annalink.dev/annalink/internal/crypto"
	"annalink.dev/annalink/internal/nodeerrors"
	"annalink.dev/annalink/internal/obs"
	"annalink.dev/annalink/internal/storage"
)

var logger = obs.For("chain")

const difficultyStateKey = "difficulty"

// Manager owns the in-memory view of the chain plus its SQLite-backed
// store, and the one-pending-transaction-per-sender mempool. The
// mempool is not persisted: a restart starts with an empty mempool, as
// pending transactions are re-submitted by their originating wallets.
type Manager struct {
	mu sync.RWMutex

	store      *storage.Store
	engine     *consensus.Engine
	blocks     []*chaincore.Block
	difficulty int

	mempool map[string]*chaincore.Transaction // keyed by sender address
}

// NewManager loads the chain from store, mining and persisting a genesis
// block if the store is empty. The genesis block's sole transaction is a
// coinbase from the sentinel address to itself carrying zero value: it
// exists only to give the chain a well-formed first block, not to pay
// any real party.
func NewManager(store *storage.Store, engine *consensus.Engine) (*Manager, error) {
	m := &Manager{
		store:      store,
		engine:     engine,
		mempool:    make(map[string]*chaincore.Transaction),
		difficulty: engine.Retarget.MinDifficulty,
	}

	blocks, err := store.LoadAllBlocks()
	if err != nil {
		return nil, err
	}
	if len(blocks) > 0 {
		m.blocks = blocks
		if raw, ok, err := store.LoadState(difficultyStateKey); err == nil && ok {
			fmt.Sscanf(raw, "%d", &m.difficulty)
		} else {
			m.difficulty = blocks[len(blocks)-1].Difficulty
		}
		logger.WithField("height", m.currentHeightInternal()).Info("chain loaded from storage")
		return m, nil
	}

	logger.Info("empty store, mining genesis block")
	coinbase := chaincore.NewCoinbaseTransaction(crypto.SentinelAddress, 0)
	genesis := chaincore.NewBlock(0, []*chaincore.Transaction{coinbase}, chaincore.GenesisPreviousHash, m.difficulty)
	if err := engine.Mine(context.Background(), genesis); err != nil {
		return nil, fmt.Errorf("chain: mine genesis block: %w", err)
	}
	if err := store.SaveBlock(genesis); err != nil {
		return nil, err
	}
	m.blocks = []*chaincore.Block{genesis}
	return m, nil
}

func (m *Manager) currentHeightInternal() int64 {
	if len(m.blocks) == 0 {
		return -1
	}
	return m.blocks[len(m.blocks)-1].Index
}

func (m *Manager) latestBlockInternal() *chaincore.Block {
	if len(m.blocks) == 0 {
		return nil
	}
	return m.blocks[len(m.blocks)-1]
}

// Height returns the index of the latest block, or -1 if the chain is
// somehow empty (it never is once NewManager has returned).
func (m *Manager) Height() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentHeightInternal()
}

// LatestBlock returns the chain tip.
func (m *Manager) LatestBlock() *chaincore.Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestBlockInternal()
}

// Blocks returns every block in the chain, ascending by index. The
// returned slice is a copy; callers may not mutate it into the chain's
// internal state.
func (m *Manager) Blocks() []*chaincore.Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*chaincore.Block, len(m.blocks))
	copy(out, m.blocks)
	return out
}

// BlockCount and TransactionCount report the live (in-memory) chain's
// size. The in-memory slice, not the persistence layer, is the source
// of truth for every read path.
func (m *Manager) BlockCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.blocks))
}

func (m *Manager) TransactionCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, b := range m.blocks {
		n += int64(len(b.Transactions))
	}
	return n
}

// balanceInternal scans every block's transactions to compute address's
// current balance. There is no UTXO set or account table to consult
// instead: the full history is the ledger.
func (m *Manager) balanceInternal(address string) float64 {
	var balance float64
	for _, b := range m.blocks {
		for _, tx := range b.Transactions {
			if tx.Receiver == address {
				balance += tx.Amount
			}
			if tx.Sender == address {
				balance -= tx.Amount + tx.Fee
			}
		}
	}
	return balance
}

// GetBalance returns address's current balance, computed from the full
// transaction history.
func (m *Manager) GetBalance(address string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balanceInternal(address)
}

// AddTransaction validates tx and, if valid, admits it to the mempool.
// Only one pending transaction per sender is allowed at a time; a
// second submission from the same sender is rejected until the first
// clears (is mined locally or arrives in a block accepted by AddBlock).
func (m *Manager) AddTransaction(tx *chaincore.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !tx.IsValid() || tx.IsCoinbase() {
		return fmt.Errorf("%w: %s", nodeerrors.ErrInvalidTransaction, tx.TxID)
	}
	if _, pending := m.mempool[tx.Sender]; pending {
		return fmt.Errorf("%w: %s", nodeerrors.ErrDuplicateSender, tx.Sender)
	}
	if m.balanceInternal(tx.Sender) < tx.Amount+tx.Fee {
		return fmt.Errorf("%w: sender %s", nodeerrors.ErrInsufficientBalance, tx.Sender)
	}

	m.mempool[tx.Sender] = tx
	logger.WithField("txid", tx.TxID).Info("transaction admitted to mempool")
	return nil
}

// PendingTransactions returns every transaction currently sitting in
// the mempool, in unspecified order.
func (m *Manager) PendingTransactions() []*chaincore.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*chaincore.Transaction, 0, len(m.mempool))
	for _, tx := range m.mempool {
		out = append(out, tx)
	}
	return out
}

// MinePending assembles every pending transaction plus a coinbase reward
// into a new block, mines it, and on success appends and persists
// it, clears the mined transactions from the mempool, and retargets
// difficulty over the most recent adjustment window. On a mining
// timeout the mempool is left untouched so a later call can retry.
func (m *Manager) MinePending(ctx context.Context, minerAddress string) (*chaincore.Block, error) {
	m.mu.Lock()
	pending := make([]*chaincore.Transaction, 0, len(m.mempool))
	for _, tx := range m.mempool {
		pending = append(pending, tx)
	}
	previous := m.latestBlockInternal()
	nextIndex := m.currentHeightInternal() + 1
	difficulty := m.difficulty
	m.mu.Unlock()

	coinbase := chaincore.NewCoinbaseTransaction(minerAddress, consensus.MiningReward(nextIndex))
	txs := append([]*chaincore.Transaction{coinbase}, pending...)
	block := chaincore.NewBlock(nextIndex, txs, previous.Hash, difficulty)

	if err := m.engine.Mine(ctx, block); err != nil {
		return nil, err
	}

	return block, m.admitMinedBlock(block, pending)
}

func (m *Manager) admitMinedBlock(block *chaincore.Block, mined []*chaincore.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.latestBlockInternal()
	if !block.IsValid(previous) {
		return fmt.Errorf("%w: freshly mined block failed validation", nodeerrors.ErrInvalidBlock)
	}
	if err := m.store.SaveBlock(block); err != nil {
		return err
	}
	m.blocks = append(m.blocks, block)
	for _, tx := range mined {
		delete(m.mempool, tx.Sender)
	}

	m.difficulty = m.engine.CalculateDifficulty(m.blocks)
	_ = m.store.SaveState(difficultyStateKey, fmt.Sprintf("%d", m.difficulty))
	logger.WithField("index", block.Index).WithField("difficulty", m.difficulty).Info("block mined and admitted")
	return nil
}

// AddBlock validates an externally received block against the current
// tip and, if it extends the chain correctly, appends and persists it.
// It is the entry point the P2P layer uses for blocks received from
// peers.
func (m *Manager) AddBlock(block *chaincore.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.latestBlockInternal()
	if !block.IsValid(previous) {
		return fmt.Errorf("%w: block %d", nodeerrors.ErrInvalidBlock, block.Index)
	}
	if err := m.store.SaveBlock(block); err != nil {
		return err
	}
	m.blocks = append(m.blocks, block)
	for _, tx := range block.Transactions {
		delete(m.mempool, tx.Sender)
	}
	return nil
}

// IsChainValid walks every block in blocks verifying hash, proof, and
// linkage against its predecessor.
func IsChainValid(blocks []*chaincore.Block) bool {
	for i, b := range blocks {
		var previous *chaincore.Block
		if i > 0 {
			previous = blocks[i-1]
		}
		if !b.IsValid(previous) {
			return false
		}
	}
	return len(blocks) > 0
}

// ReplaceChain swaps in candidate if it is longer than the current
// chain, internally valid, and shares the same genesis block. It is how
// this node resolves forks in favor of the longest valid chain it has
// seen.
func (m *Manager) ReplaceChain(candidate []*chaincore.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(candidate) <= len(m.blocks) {
		return nodeerrors.ErrShorterChain
	}
	if !IsChainValid(candidate) {
		return fmt.Errorf("%w: candidate chain", nodeerrors.ErrInvalidBlock)
	}
	if len(m.blocks) > 0 && candidate[0].Hash != m.blocks[0].Hash {
		return fmt.Errorf("%w: candidate chain has a different genesis block", nodeerrors.ErrInvalidLinkage)
	}

	// Every candidate block is persisted, not just the tail past our
	// current height: the candidate may have diverged from our chain at
	// any index after genesis, and a restart replays storage rows as the
	// canonical chain. INSERT OR REPLACE overwrites the superseded rows
	// at shared indices.
	for _, b := range candidate {
		if err := m.store.SaveBlock(b); err != nil {
			return err
		}
	}
	m.blocks = candidate
	logger.WithField("height", m.currentHeightInternal()).Warn("chain replaced by a longer valid chain")
	return nil
}
