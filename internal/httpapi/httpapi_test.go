package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"annalink.dev/annalink/internal/chaincore"
	"annalink.dev/annalink/internal/p2p"
)

type fakeChain struct {
	blocks  []*chaincore.Block
	pending []*chaincore.Transaction
	added   *chaincore.Transaction
	balance float64
}

func (f *fakeChain) Height() int64 {
	return int64(len(f.blocks)) - 1
}

func (f *fakeChain) LatestBlock() *chaincore.Block {
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[len(f.blocks)-1]
}

func (f *fakeChain) Blocks() []*chaincore.Block { return f.blocks }

func (f *fakeChain) BlockCount() int64 { return int64(len(f.blocks)) }

func (f *fakeChain) TransactionCount() int64 {
	var n int64
	for _, b := range f.blocks {
		n += int64(len(b.Transactions))
	}
	return n
}

func (f *fakeChain) GetBalance(address string) float64 { return f.balance }

func (f *fakeChain) AddTransaction(tx *chaincore.Transaction) error {
	f.added = tx
	return nil
}

func (f *fakeChain) PendingTransactions() []*chaincore.Transaction { return f.pending }

func (f *fakeChain) MinePending(ctx context.Context, minerAddress string) (*chaincore.Block, error) {
	return f.blocks[0], nil
}

func TestHandleBlockchainInfo(t *testing.T) {
	chain := &fakeChain{blocks: []*chaincore.Block{
		{Index: 0, Hash: "abc", Difficulty: 2},
	}}
	router := NewRouter(chain, p2p.NewRegistry(0))

	req := httptest.NewRequest(http.MethodGet, "/blockchain", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var info blockchainInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if info.LatestHash != "abc" || info.BlockCount != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestHandleBalance(t *testing.T) {
	chain := &fakeChain{balance: 42.5}
	router := NewRouter(chain, p2p.NewRegistry(0))

	req := httptest.NewRequest(http.MethodGet, "/balance/someaddress", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["balance"].(float64) != 42.5 {
		t.Fatalf("balance = %v, want 42.5", body["balance"])
	}
}

func TestHandleSubmitTransaction(t *testing.T) {
	chain := &fakeChain{}
	router := NewRouter(chain, p2p.NewRegistry(0))

	tx := chaincore.NewTransaction("sender", "receiver", 1, 0)
	body, _ := tx.ToJSON()
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if chain.added == nil || chain.added.TxID != tx.TxID {
		t.Fatalf("transaction was not forwarded to the chain accessor")
	}
}

func TestHandleBlockNotFound(t *testing.T) {
	chain := &fakeChain{blocks: []*chaincore.Block{{Index: 0}}}
	router := NewRouter(chain, p2p.NewRegistry(0))

	req := httptest.NewRequest(http.MethodGet, "/blocks/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
