package main

import (
	"path/filepath"
	"testing"
)

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	want := []string{"create-wallet", "send", "mine", "balance", "blockchain", "node"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %q not registered: %v", name, err)
		}
	}
}

func TestOpenChainMinesGenesisOnFreshDataFile(t *testing.T) {
	dataFile = filepath.Join(t.TempDir(), "annalink.db")
	defer func() { dataFile = "" }()

	store, manager, err := openChain()
	if err != nil {
		t.Fatalf("openChain: %v", err)
	}
	defer store.Close()

	if manager.Height() != 0 {
		t.Fatalf("Height() = %d, want 0 after mining genesis", manager.Height())
	}
}
