// Package storage persists the chain and its transactions to a SQLite
// database using github.com/mattn/go-sqlite3. A block and its
// transactions are written in a single transaction so a crash mid-save
// never leaves a block without its transactions or vice versa.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"annalink.dev/annalink/internal/chaincore"
	"annalink.dev/annalink/internal/nodeerrors"
	"annalink.dev/annalink/internal/obs"
)

var logger = obs.For("storage")

// schema uses idx rather than index as the blocks primary key column:
// INDEX is a reserved word in SQLite's dialect and a literal column
// named index requires quoting everywhere it is referenced.
const schema = `
CREATE TABLE IF NOT EXISTS blocks (
	idx           INTEGER PRIMARY KEY,
	timestamp     REAL NOT NULL,
	previous_hash TEXT NOT NULL,
	nonce         INTEGER NOT NULL,
	difficulty    INTEGER NOT NULL,
	hash          TEXT NOT NULL,
	data          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	txid        TEXT PRIMARY KEY,
	block_index INTEGER NOT NULL REFERENCES blocks(idx),
	position    INTEGER NOT NULL,
	sender      TEXT NOT NULL,
	receiver    TEXT NOT NULL,
	amount      REAL NOT NULL,
	fee         REAL NOT NULL,
	timestamp   REAL NOT NULL,
	public_key  TEXT,
	signature   TEXT
);

CREATE INDEX IF NOT EXISTS idx_transactions_block ON transactions(block_index);

CREATE TABLE IF NOT EXISTS chain_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is the node's SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path,
// applying the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: create data directory: %v", nodeerrors.ErrStorage, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", nodeerrors.ErrStorage, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 only supports one writer

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", nodeerrors.ErrStorage, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", nodeerrors.ErrStorage, err)
	}
	logger.WithField("path", path).Info("storage opened")
	return &Store{db: db}, nil
}

// Close shuts down the database connection. It is safe to call more
// than once.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBlock persists a block and every one of its transactions in a
// single transaction. The data column carries the full serialized block,
// which is what the load paths reconstruct from; the scalar columns and
// the transactions table exist so the chain can be queried relationally
// without parsing every block's JSON.
func (s *Store) SaveBlock(block *chaincore.Block) error {
	data, err := block.ToJSON()
	if err != nil {
		return fmt.Errorf("%w: serialize block %d: %v", nodeerrors.ErrStorage, block.Index, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", nodeerrors.ErrStorage, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO blocks (idx, timestamp, previous_hash, nonce, difficulty, hash, data) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		block.Index, block.Timestamp, block.PreviousHash, block.Nonce, block.Difficulty, block.Hash, string(data),
	); err != nil {
		return fmt.Errorf("%w: insert block %d: %v", nodeerrors.ErrStorage, block.Index, err)
	}

	// Fork resolution can land a different block at an index this store
	// has already seen; the replaced block's transaction rows would
	// otherwise linger attributed to the new occupant of the index.
	if _, err := tx.Exec(`DELETE FROM transactions WHERE block_index = ?`, block.Index); err != nil {
		return fmt.Errorf("%w: clear transactions for block %d: %v", nodeerrors.ErrStorage, block.Index, err)
	}

	for i, t := range block.Transactions {
		if _, err := tx.Exec(
			`INSERT OR REPLACE INTO transactions (txid, block_index, position, sender, receiver, amount, fee, timestamp, public_key, signature)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.TxID, block.Index, i, t.Sender, t.Receiver, t.Amount, t.Fee, t.Timestamp, t.PublicKey, t.Signature,
		); err != nil {
			return fmt.Errorf("%w: insert transaction %s: %v", nodeerrors.ErrStorage, t.TxID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit block %d: %v", nodeerrors.ErrStorage, block.Index, err)
	}
	logger.WithField("index", block.Index).WithField("txs", len(block.Transactions)).Info("block saved")
	return nil
}

func decodeBlockData(data string) (*chaincore.Block, error) {
	b, err := chaincore.BlockFromJSON([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode stored block: %v", nodeerrors.ErrStorage, err)
	}
	return b, nil
}

// LoadBlock loads the block at the given index, or (nil, nil) if no such
// block exists.
func (s *Store) LoadBlock(index int64) (*chaincore.Block, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM blocks WHERE idx = ?`, index).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan block: %v", nodeerrors.ErrStorage, err)
	}
	return decodeBlockData(data)
}

// LoadLatestBlock loads the highest-indexed block, or (nil, nil) if the
// chain is empty.
func (s *Store) LoadLatestBlock() (*chaincore.Block, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM blocks ORDER BY idx DESC LIMIT 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan block: %v", nodeerrors.ErrStorage, err)
	}
	return decodeBlockData(data)
}

// LoadAllBlocks loads every block in ascending index order.
func (s *Store) LoadAllBlocks() ([]*chaincore.Block, error) {
	rows, err := s.db.Query(`SELECT data FROM blocks ORDER BY idx ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: query blocks: %v", nodeerrors.ErrStorage, err)
	}
	defer rows.Close()

	var blocks []*chaincore.Block
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("%w: scan block: %v", nodeerrors.ErrStorage, err)
		}
		b, err := decodeBlockData(data)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// GetBlockCount returns the number of persisted blocks.
func (s *Store) GetBlockCount() (int64, error) {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM blocks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count blocks: %v", nodeerrors.ErrStorage, err)
	}
	return count, nil
}

// GetTransactionCount returns the number of persisted transactions.
func (s *Store) GetTransactionCount() (int64, error) {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM transactions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count transactions: %v", nodeerrors.ErrStorage, err)
	}
	return count, nil
}

// SaveState upserts a key/value pair into the chain_state table, used
// for small pieces of chain metadata that don't belong on a block (e.g.
// the current difficulty).
func (s *Store) SaveState(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO chain_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("%w: save state %s: %v", nodeerrors.ErrStorage, key, err)
	}
	return nil
}

// LoadState reads a chain_state value. It returns ("", false, nil) if
// the key is absent.
func (s *Store) LoadState(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM chain_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: load state %s: %v", nodeerrors.ErrStorage, key, err)
	}
	return value, true, nil
}
