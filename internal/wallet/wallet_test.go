package wallet

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadPlain(t *testing.T) {
	f, kp, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := Save(path, f, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Address != f.Address || got.PrivateKey != f.PrivateKey {
		t.Fatalf("loaded file does not match saved file: %+v vs %+v", got, f)
	}
	if _, err := got.KeyPair(); err != nil {
		t.Fatalf("KeyPair: %v", err)
	}
	_ = kp
}

func TestSaveLoadXORObfuscated(t *testing.T) {
	f, _, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := Save(path, f, "hunter2"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := Load(path, ""); err == nil {
		t.Fatalf("Load with no password: want error decoding an obfuscated file")
	}

	got, err := Load(path, "hunter2")
	if err != nil {
		t.Fatalf("Load with correct password: %v", err)
	}
	if got.Address != f.Address {
		t.Fatalf("loaded address = %s, want %s", got.Address, f.Address)
	}
}

func TestSaveLoadWrongPasswordFails(t *testing.T) {
	f, _, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path := filepath.Join(t.TempDir(), "wallet.json")
	if err := Save(path, f, "correct-password"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := Load(path, "wrong-password"); err == nil {
		t.Fatalf("Load with wrong password: want error")
	}
}
