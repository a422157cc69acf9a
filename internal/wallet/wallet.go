// Package wallet persists a node operator's signing key to disk. The
// file is either plain JSON or that same JSON XORed byte-for-byte with
// the repeating SHA256 of a password. The scheme is explicitly
// non-cryptographic: it obscures the file from casual inspection, it
// does not protect it from a motivated attacker who can brute-force or
// guess the password offline.
package wallet

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"

	"annalink.dev/annalink/internal/crypto"
)

// File is the on-disk (or XOR-obscured) representation of a wallet: a
// private key and the address it derives, so a wallet file can be
// inspected without re-deriving the address from the key every time.
type File struct {
	PrivateKey string `json:"private_key"`
	Address    string `json:"address"`
}

// KeyPair returns the wallet's signing key pair, reconstructed from the
// stored hex private key.
func (f *File) KeyPair() (*crypto.KeyPair, error) {
	return crypto.KeyPairFromPrivateHex(f.PrivateKey)
}

// New builds a wallet file record from a freshly generated key pair.
func New() (*File, *crypto.KeyPair, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("wallet: generate key pair: %w", err)
	}
	return &File{
		PrivateKey: kp.PrivateHex(),
		Address:    crypto.AddressFromPublicKey(kp.Public),
	}, kp, nil
}

// xorWithKey XORs data with a repeating key, the obfuscation primitive
// shared by Save and Load. XOR is its own inverse, so the same function
// both encodes and decodes.
func xorWithKey(data, key []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return out
}

// passwordKey derives the repeating XOR key from a password: SHA256(password).
func passwordKey(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}

// Save writes f to path as plain JSON, or, when password is non-empty,
// as that same JSON XORed with SHA256(password). This is obfuscation,
// not encryption: anyone who recovers the password (or brute-forces the
// short XOR period) recovers the private key outright.
func Save(path string, f *File, password string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("wallet: encode file: %w", err)
	}
	if password != "" {
		data = xorWithKey(data, passwordKey(password))
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("wallet: write %s: %w", path, err)
	}
	return nil
}

// Load reads a wallet file from path, reversing the XOR obfuscation if
// password is non-empty. A wrong password simply yields a JSON decode
// error: there is no authentication tag to fail on first.
func Load(path string, password string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: read %s: %w", path, err)
	}
	if password != "" {
		data = xorWithKey(data, passwordKey(password))
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("wallet: decode %s (wrong password?): %w", path, err)
	}
	return &f, nil
}
