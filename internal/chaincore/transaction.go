package chaincore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"annalink.dev/annalink/internal/crypto"
	"annalink.dev/annalink/internal/nodeerrors"
)

// Transaction moves value from one address to another. Sender is the
// coinbase sentinel for block-reward transactions, which carry no public
// key or signature. Amount and Fee are float64 to match the wire format's
// IEEE-754 JSON numbers.
type Transaction struct {
	Sender    string  `json:"sender"`
	Receiver  string  `json:"receiver"`
	Amount    float64 `json:"amount"`
	Fee       float64 `json:"fee"`
	Timestamp float64 `json:"timestamp"`
	PublicKey string  `json:"public_key,omitempty"`
	Signature string  `json:"signature,omitempty"`
	TxID      string  `json:"txid"`
}

// NewTransaction builds an unsigned transaction stamped with the current
// time and its txid already computed. The signature is excluded from the
// hashed pre-image, but the public key is not, so Sign recomputes the
// txid when it attaches the signer's public key.
func NewTransaction(sender, receiver string, amount, fee float64) *Transaction {
	tx := &Transaction{
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Fee:       fee,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
	tx.TxID, _ = tx.CalculateTxID()
	return tx
}

// NewCoinbaseTransaction builds the unsigned, unsigned-forever reward
// transaction a miner prepends to a block it mines.
func NewCoinbaseTransaction(receiver string, reward float64) *Transaction {
	return NewTransaction(crypto.SentinelAddress, receiver, reward, 0)
}

// preimageFields returns the field set hashed into the txid: every
// transaction field except the signature itself.
func (tx *Transaction) preimageFields() map[string]any {
	fields := map[string]any{
		"sender":    tx.Sender,
		"receiver":  tx.Receiver,
		"amount":    tx.Amount,
		"fee":       tx.Fee,
		"timestamp": tx.Timestamp,
	}
	if tx.PublicKey != "" {
		fields["public_key"] = tx.PublicKey
	} else {
		fields["public_key"] = nil
	}
	return fields
}

// CalculateTxID returns the SHA256 of the canonical pre-image, hex
// encoded. It does not mutate tx.TxID; callers that want the field
// refreshed must assign the result themselves.
func (tx *Transaction) CalculateTxID() (string, error) {
	data, err := CanonicalJSON(tx.preimageFields())
	if err != nil {
		return "", fmt.Errorf("chaincore: canonicalize transaction: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// IsCoinbase reports whether tx is a block-reward transaction.
func (tx *Transaction) IsCoinbase() bool {
	return tx.Sender == crypto.SentinelAddress
}

// Sign attaches the signer's public key (if not already set) and an
// ECDSA signature over the txid, then refreshes tx.TxID and tx.Signature
// in place.
func (tx *Transaction) Sign(kp *crypto.KeyPair) error {
	if tx.IsCoinbase() {
		return fmt.Errorf("%w: coinbase transactions are never signed", nodeerrors.ErrInvalidTransaction)
	}
	if tx.PublicKey == "" {
		tx.PublicKey = kp.PublicKeyHex()
	}
	txid, err := tx.CalculateTxID()
	if err != nil {
		return err
	}
	digest, err := hex.DecodeString(txid)
	if err != nil {
		return fmt.Errorf("chaincore: decode txid: %w", err)
	}
	tx.TxID = txid
	tx.Signature = crypto.Sign(kp.Private, digest)
	return nil
}

// VerifySignature recomputes the txid and checks the stored signature
// against the stored public key. It never errors: any malformed field
// simply fails verification.
func (tx *Transaction) VerifySignature() bool {
	if tx.Signature == "" || tx.PublicKey == "" {
		return false
	}
	txid, err := tx.CalculateTxID()
	if err != nil {
		return false
	}
	digest, err := hex.DecodeString(txid)
	if err != nil {
		return false
	}
	pub, err := crypto.PublicKeyFromHex(tx.PublicKey)
	if err != nil {
		return false
	}
	return crypto.Verify(pub, digest, tx.Signature)
}

// IsValid checks structural validity: well-formed addresses, a txid that
// matches the recomputed pre-image, and, for any transaction other than
// a coinbase, a positive amount, a non-negative fee, and a signature
// that verifies against the claimed public key. Coinbase transactions are
// exempt from the signature check since they originate from the miner,
// not a wallet, and may carry a zero amount (the genesis block's
// sentinel-to-sentinel reward is exactly this case); a non-coinbase
// transfer of zero or negative value is never valid.
func (tx *Transaction) IsValid() bool {
	if tx.Fee < 0 {
		return false
	}
	if !tx.IsCoinbase() && tx.Amount <= 0 {
		return false
	}
	if tx.Amount < 0 {
		return false
	}
	if err := crypto.ValidateAddress(tx.Sender); err != nil {
		return false
	}
	if err := crypto.ValidateAddress(tx.Receiver); err != nil {
		return false
	}
	want, err := tx.CalculateTxID()
	if err != nil || want != tx.TxID {
		return false
	}
	if tx.IsCoinbase() {
		return true
	}
	return tx.VerifySignature()
}

// ToJSON renders the transaction's wire representation: this is a
// distinct encoding from the canonical hashing pre-image, since it also
// carries the signature and txid.
func (tx *Transaction) ToJSON() ([]byte, error) {
	return json.Marshal(tx)
}

// TransactionFromJSON parses a transaction's wire representation. A
// missing fee, public_key, or signature field decodes to its Go zero
// value, matching the optional fields the wire format allows.
func TransactionFromJSON(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", nodeerrors.ErrMalformedFrame, err)
	}
	return &tx, nil
}
