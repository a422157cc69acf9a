// Command annalinkd is the node's command-line entry point: wallet
// management, transaction submission, mining, and starting the
// long-running node daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"annalink.dev/annalink/internal/chain"
	"annalink.dev/annalink/internal/config"
	"annalink.dev/annalink/internal/consensus"
	"annalink.dev/annalink/internal/storage"
)

var (
	configPath string
	dataFile   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd assembles the full annalinkd command tree. Split out of
// main so tests can inspect the tree without calling os.Exit.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "annalinkd",
		Short: "Annalink proof-of-work node",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional)")
	root.PersistentFlags().StringVar(&dataFile, "data-file", "", "override the configured SQLite data file")

	root.AddCommand(createWalletCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(mineCmd())
	root.AddCommand(balanceCmd())
	root.AddCommand(blockchainCmd())
	root.AddCommand(nodeCmd())
	return root
}

// loadConfig resolves the node's configuration for the subcommands that
// need it, applying --data-file on top of whatever --config/env
// resolved.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataFile != "" {
		cfg.DataFile = dataFile
	}
	return cfg, nil
}

// openChain opens the configured SQLite store and builds a chain
// manager on top of it, mining genesis if the store is empty. Callers
// own the returned store's lifetime and must Close it.
func openChain() (*storage.Store, *chain.Manager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.Open(cfg.DataFile)
	if err != nil {
		return nil, nil, err
	}
	engine := consensus.NewEngine()
	engine.Retarget.AdjustmentInterval = cfg.AdjustmentInterval
	engine.Retarget.TargetBlockTime = float64(cfg.TargetBlockTime)
	engine.Retarget.MinDifficulty = cfg.Difficulty

	manager, err := chain.NewManager(store, engine)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, manager, nil
}
