package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"annalink.dev/annalink/internal/chaincore"
	"annalink.dev/annalink/internal/wallet"
)

func createWalletCmd() *cobra.Command {
	var savePath, password string
	cmd := &cobra.Command{
		Use:   "create-wallet",
		Short: "Create a new wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, kp, err := wallet.New()
			if err != nil {
				return err
			}
			fmt.Println("New wallet created!")
			fmt.Printf("Address: %s\n", f.Address)
			fmt.Printf("Private Key: %s\n", kp.PrivateHex())

			if savePath != "" {
				if err := wallet.Save(savePath, f, password); err != nil {
					return err
				}
				fmt.Printf("Wallet saved to %s\n", savePath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&savePath, "save", "", "save wallet to file")
	cmd.Flags().StringVar(&password, "password", "", "obfuscate the saved wallet file with this password")
	return cmd
}

func loadWalletFile(path, password string) (*wallet.File, error) {
	f, err := wallet.Load(path, password)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	fmt.Printf("Wallet loaded: %s\n", f.Address)
	return f, nil
}

func sendCmd() *cobra.Command {
	var walletFile, password, to string
	var amount, fee float64
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadWalletFile(walletFile, password)
			if err != nil {
				return err
			}
			kp, err := f.KeyPair()
			if err != nil {
				return err
			}

			store, manager, err := openChain()
			if err != nil {
				return err
			}
			defer store.Close()

			tx := chaincore.NewTransaction(f.Address, to, amount, fee)
			if err := tx.Sign(kp); err != nil {
				return err
			}
			if err := manager.AddTransaction(tx); err != nil {
				fmt.Println("Failed to send transaction:", err)
				return err
			}
			fmt.Printf("Transaction sent: %s\n", tx.TxID)

			block, err := manager.MinePending(context.Background(), f.Address)
			if err != nil {
				fmt.Println("Failed to mine transaction:", err)
				return err
			}
			fmt.Printf("Transaction mined in block %d\n", block.Index)
			return nil
		},
	}
	cmd.Flags().StringVar(&walletFile, "wallet-file", "", "wallet file")
	cmd.Flags().StringVar(&password, "password", "", "password protecting the wallet file")
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount to send")
	cmd.Flags().Float64Var(&fee, "fee", 0, "transaction fee")
	cmd.MarkFlagRequired("wallet-file")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("amount")
	return cmd
}

func mineCmd() *cobra.Command {
	var walletFile, password string
	var loop bool
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Mine the pending transaction pool into a block",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadWalletFile(walletFile, password)
			if err != nil {
				return err
			}

			store, manager, err := openChain()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for {
				block, err := manager.MinePending(ctx, f.Address)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					fmt.Println("Mining failed:", err)
					return err
				}
				fmt.Printf("Mined block %d with %d transactions\n", block.Index, len(block.Transactions))
				if !loop {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Second):
				}
			}
		},
	}
	cmd.Flags().StringVar(&walletFile, "wallet-file", "", "wallet file for rewards")
	cmd.Flags().StringVar(&password, "password", "", "password protecting the wallet file")
	cmd.Flags().BoolVar(&loop, "loop", false, "keep mining blocks, pausing a second between each")
	cmd.MarkFlagRequired("wallet-file")
	return cmd
}

func balanceCmd() *cobra.Command {
	var walletFile, password string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show wallet balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadWalletFile(walletFile, password)
			if err != nil {
				return err
			}

			store, manager, err := openChain()
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Printf("Balance: %v\n", manager.GetBalance(f.Address))
			return nil
		},
	}
	cmd.Flags().StringVar(&walletFile, "wallet-file", "", "wallet file")
	cmd.Flags().StringVar(&password, "password", "", "password protecting the wallet file")
	cmd.MarkFlagRequired("wallet-file")
	return cmd
}

func blockchainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blockchain",
		Short: "Show blockchain info",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, manager, err := openChain()
			if err != nil {
				return err
			}
			defer store.Close()

			latest := manager.LatestBlock()
			difficulty := 0
			if latest != nil {
				difficulty = latest.Difficulty
			}
			fmt.Printf("Blocks: %d\n", manager.BlockCount())
			fmt.Printf("Difficulty: %d\n", difficulty)
			fmt.Printf("Pending transactions: %d\n", len(manager.PendingTransactions()))
			return nil
		},
	}
}
