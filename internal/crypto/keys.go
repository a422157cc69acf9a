// Package crypto implements the node's elliptic-curve signing primitives
// and Base58Check address scheme on top of secp256k1. It is the single
// source of truth for turning a public key into an address, and is used by
// both the wallet and the transaction signing/verification path so that
// the two can never disagree about address derivation.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ripemd160"
)

// Errors returned by this package. Malformed input (bad base58, wrong
// length, checksum mismatch, unparsable curve point) never panics; it is
// always reported through one of these.
var (
	ErrInvalidChecksum   = errors.New("crypto: base58check checksum mismatch")
	ErrInvalidLength     = errors.New("crypto: decoded payload has the wrong length")
	ErrInvalidPublicKey  = errors.New("crypto: malformed public key")
	ErrInvalidPrivateKey = errors.New("crypto: malformed private key")
)

const (
	addressVersion = 0x00
	wifVersion     = 0x80

	addressPayloadLen = 21 // version + 20-byte hash
	addressTotalLen   = 25 // payload + 4-byte checksum
	addressTextLen    = 34 // length of the base58-encoded address string

	checksumLen = 4
)

// SentinelAddress is the 34-character coinbase sender/no-party address:
// the ASCII character '0' repeated addressTextLen times.
const SentinelAddress = "0000000000000000000000000000000000"

// KeyPair holds a secp256k1 signing key and its derived verifying key.
type KeyPair struct {
	Private *secp256k1.PrivateKey
	Public  *secp256k1.PublicKey
}

// GenerateKeyPair creates a new random secp256k1 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &KeyPair{Private: priv, Public: priv.PubKey()}, nil
}

// KeyPairFromPrivateHex rebuilds a KeyPair from the hex encoding of a
// 32-byte big-endian private scalar.
func KeyPairFromPrivateHex(hexKey string) (*KeyPair, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes hex", ErrInvalidPrivateKey)
	}
	priv := secp256k1.PrivKeyFromBytes(raw)
	return &KeyPair{Private: priv, Public: priv.PubKey()}, nil
}

// PrivateHex returns the 32-byte big-endian private scalar, hex-encoded.
func (kp *KeyPair) PrivateHex() string {
	return hex.EncodeToString(kp.Private.Serialize())
}

// PublicKeyHex returns the 64 raw uncompressed-point bytes (x||y, no 0x04
// prefix), hex-encoded. This is the exact form stored in
// Transaction.PublicKey per the wire format.
func (kp *KeyPair) PublicKeyHex() string {
	return hex.EncodeToString(uncompressedXY(kp.Public))
}

// uncompressedXY strips the leading 0x04 prefix from the standard SEC1
// uncompressed point encoding, leaving the raw 64-byte x||y.
func uncompressedXY(pub *secp256k1.PublicKey) []byte {
	full := pub.SerializeUncompressed() // 65 bytes: 0x04 || X(32) || Y(32)
	return full[1:]
}

// PublicKeyFromHex parses the 64-byte hex x||y form back into a curve
// point. Any malformed input yields ErrInvalidPublicKey rather than a
// panic.
func PublicKeyFromHex(hexKey string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 64 {
		return nil, ErrInvalidPublicKey
	}
	withPrefix := make([]byte, 0, 65)
	withPrefix = append(withPrefix, 0x04)
	withPrefix = append(withPrefix, raw...)
	pub, err := secp256k1.ParsePubKey(withPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// Sign signs an arbitrary message digest with the private key, returning
// the DER-encoded ECDSA signature hex-encoded.
func Sign(priv *secp256k1.PrivateKey, digest []byte) string {
	sig := ecdsa.Sign(priv, digest)
	return hex.EncodeToString(sig.Serialize())
}

// Verify checks a hex-encoded DER signature against a digest and public
// key. It never returns an error: any decoding or curve-point failure is
// reported simply as false.
func Verify(pub *secp256k1.PublicKey, digest []byte, sigHex string) bool {
	if pub == nil || sigHex == "" {
		return false
	}
	raw, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(raw)
	if err != nil {
		return false
	}
	return sig.Verify(digest, pub)
}

// doubleSHA256 computes SHA256(SHA256(data)), the checksum primitive used
// by both address and WIF encoding.
func doubleSHA256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

// base58CheckEncode appends a 4-byte double-SHA256 checksum to payload
// and base58-encodes the result.
func base58CheckEncode(payload []byte) string {
	checksum := doubleSHA256(payload)[:checksumLen]
	full := append(append([]byte{}, payload...), checksum...)
	return base58.Encode(full)
}

// base58CheckDecode reverses base58CheckEncode, validating the checksum
// and total length.
func base58CheckDecode(s string, wantLen int) ([]byte, error) {
	decoded := base58.Decode(s)
	if len(decoded) == 0 {
		return nil, ErrInvalidLength
	}
	if len(decoded) != wantLen {
		return nil, ErrInvalidLength
	}
	payload := decoded[:len(decoded)-checksumLen]
	checksum := decoded[len(decoded)-checksumLen:]
	want := doubleSHA256(payload)[:checksumLen]
	for i := range checksum {
		if checksum[i] != want[i] {
			return nil, ErrInvalidChecksum
		}
	}
	return payload, nil
}

// AddressFromPublicKey derives the Base58Check address from a public key:
// version(1) || RIPEMD160(SHA256(0x04||x||y))(20), checksummed.
func AddressFromPublicKey(pub *secp256k1.PublicKey) string {
	full := pub.SerializeUncompressed() // includes 0x04 prefix
	sha := sha256.Sum256(full)
	ripe := ripemd160.New()
	ripe.Write(sha[:])
	pubKeyHash := ripe.Sum(nil)

	payload := make([]byte, 0, addressPayloadLen)
	payload = append(payload, addressVersion)
	payload = append(payload, pubKeyHash...)
	return base58CheckEncode(payload)
}

// ValidateAddress decodes and checksums an address string. It enforces
// the exact 25-byte decoded payload and 34-character textual length.
func ValidateAddress(address string) error {
	if len(address) != addressTextLen {
		return fmt.Errorf("%w: want %d characters, got %d", ErrInvalidLength, addressTextLen, len(address))
	}
	if address == SentinelAddress {
		return nil
	}
	_, err := base58CheckDecode(address, addressTotalLen)
	return err
}

// ExportWIF exports the private key in Wallet-Import-Format: version
// 0x80, optional trailing compression flag 0x01, Base58Check encoded.
func ExportWIF(kp *KeyPair, compressed bool) string {
	raw := kp.Private.Serialize()
	payload := make([]byte, 0, 34)
	payload = append(payload, wifVersion)
	payload = append(payload, raw...)
	if compressed {
		payload = append(payload, 0x01)
	}
	return base58CheckEncode(payload)
}

// ImportWIF parses a Wallet-Import-Format string back into a KeyPair.
func ImportWIF(wif string) (*KeyPair, error) {
	decoded := base58.Decode(wif)
	if len(decoded) <= checksumLen {
		return nil, ErrInvalidLength
	}
	checksum := decoded[len(decoded)-checksumLen:]
	payload := decoded[:len(decoded)-checksumLen]
	want := doubleSHA256(payload)[:checksumLen]
	for i := range checksum {
		if checksum[i] != want[i] {
			return nil, ErrInvalidChecksum
		}
	}
	if len(payload) < 1 || payload[0] != wifVersion {
		return nil, ErrInvalidPrivateKey
	}
	keyBytes := payload[1:]
	if len(keyBytes) == 33 && keyBytes[32] == 0x01 {
		keyBytes = keyBytes[:32]
	}
	if len(keyBytes) != 32 {
		return nil, ErrInvalidPrivateKey
	}
	priv := secp256k1.PrivKeyFromBytes(keyBytes)
	return &KeyPair{Private: priv, Public: priv.PubKey()}, nil
}
