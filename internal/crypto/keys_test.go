package crypto

import "testing"

func TestGenerateAddressRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	addr := AddressFromPublicKey(kp.Public)
	if len(addr) != addressTextLen {
		t.Fatalf("address length = %d, want %d", len(addr), addressTextLen)
	}
	if err := ValidateAddress(addr); err != nil {
		t.Fatalf("ValidateAddress(%q): %v", addr, err)
	}
}

func TestValidateAddressRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not-base58!!!",
		SentinelAddress[:33],
	}
	for _, c := range cases {
		if err := ValidateAddress(c); err == nil {
			t.Errorf("ValidateAddress(%q) = nil, want error", c)
		}
	}
}

func TestValidateAddressSentinel(t *testing.T) {
	if len(SentinelAddress) != addressTextLen {
		t.Fatalf("sentinel length = %d, want %d", len(SentinelAddress), addressTextLen)
	}
	if err := ValidateAddress(SentinelAddress); err != nil {
		t.Fatalf("ValidateAddress(sentinel): %v", err)
	}
}

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	digest := []byte("hello world, this is a 32+ byte digest!!")
	sigHex := Sign(kp.Private, digest)
	if !Verify(kp.Public, digest, sigHex) {
		t.Fatalf("Verify: signature did not verify")
	}
	if Verify(kp.Public, []byte("different message padded to length"), sigHex) {
		t.Fatalf("Verify: signature verified against tampered digest")
	}
}

func TestWIFRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	for _, compressed := range []bool{true, false} {
		wif := ExportWIF(kp, compressed)
		imported, err := ImportWIF(wif)
		if err != nil {
			t.Fatalf("ImportWIF(compressed=%v): %v", compressed, err)
		}
		if imported.PrivateHex() != kp.PrivateHex() {
			t.Fatalf("imported private key mismatch: got %s want %s", imported.PrivateHex(), kp.PrivateHex())
		}
	}
}

func TestPublicKeyHexRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	hexKey := kp.PublicKeyHex()
	if len(hexKey) != 128 {
		t.Fatalf("public key hex length = %d, want 128", len(hexKey))
	}
	pub, err := PublicKeyFromHex(hexKey)
	if err != nil {
		t.Fatalf("PublicKeyFromHex: %v", err)
	}
	if AddressFromPublicKey(pub) != AddressFromPublicKey(kp.Public) {
		t.Fatalf("round-tripped public key derives a different address")
	}
}
